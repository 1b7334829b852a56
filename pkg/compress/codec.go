// Package compress implements the run-length, delta and hybrid encodings
// used to squeeze a single-bit sample stream into a fixed record budget.
package compress

import (
	"pinscope/pkg/config"
	"pinscope/pkg/signal"
)

// Encoding tags one compressed record.
type Encoding uint8

const (
	// EncodingRLE marks a record carrying a level, a run count and the
	// anchor timestamp of the first sample in the run.
	EncodingRLE Encoding = iota + 1
	// EncodingDelta marks a record carrying a level and the time delta from
	// the previous raw sample.
	EncodingDelta
)

// On-flash record sizes. A raw sample serializes to 5 bytes (uint32 µs +
// level), a compressed record to 8 (tag, level, count, time). The ratio
// calculation uses these sizes.
const (
	RawRecordSize        = 5
	CompressedRecordSize = 8
)

// MaxRunLength is the largest run a single RLE record can carry.
const MaxRunLength = 65535

// Record is one compressed sample record. Time is an absolute anchor
// timestamp for RLE records and a delta for delta records, both in µs
// truncated to 32 bits.
type Record struct {
	Time  uint32
	Count uint16
	Level bool
	Tag   Encoding
}

// Codec encodes a sample stream into a fixed-capacity record array. Once
// the array is full further records are silently dropped; the Dropped
// counter is the only trace. That boundary is deliberate: the hot path must
// not fail, and the status surface exposes the loss.
type Codec struct {
	typ      config.CompressionType
	records  []Record
	capacity int

	rawCount int
	dropped  int

	runActive bool
	runLevel  bool
	runCount  uint32
	runAnchor uint32

	lastTime uint32
	haveLast bool
}

// New creates a codec for the given encoding with a fixed record capacity.
func New(typ config.CompressionType, capacity int) *Codec {
	if capacity <= 0 {
		capacity = 1
	}
	return &Codec{
		typ:      typ,
		records:  make([]Record, 0, capacity),
		capacity: capacity,
	}
}

// Reset reinitializes the codec for a new session, possibly with a new
// encoding. The record array is reused.
func (c *Codec) Reset(typ config.CompressionType) {
	c.typ = typ
	c.records = c.records[:0]
	c.rawCount = 0
	c.dropped = 0
	c.runActive = false
	c.haveLast = false
}

// Type returns the active encoding.
func (c *Codec) Type() config.CompressionType { return c.typ }

// Encode consumes one raw sample.
func (c *Codec) Encode(s signal.Sample) {
	ts := uint32(s.Time)
	c.rawCount++

	switch c.typ {
	case config.CompressionRLE:
		c.encodeRun(ts, s.Level, false)
	case config.CompressionDelta:
		c.emitDelta(ts, s.Level)
	case config.CompressionHybrid:
		c.encodeRun(ts, s.Level, true)
	default:
		// CompressionNone: nothing to record, raw samples go elsewhere.
		c.rawCount--
	}
}

// encodeRun accumulates level runs. With hybrid set, a level change flushes
// the run as one RLE record and emits the changed sample as one delta
// record; plain RLE instead starts a fresh run at the changed sample.
func (c *Codec) encodeRun(ts uint32, level bool, hybrid bool) {
	if !c.runActive {
		c.startRun(ts, level)
		c.lastTime = ts
		c.haveLast = true
		return
	}

	if level == c.runLevel && c.runCount < MaxRunLength {
		c.runCount++
		c.lastTime = ts
		return
	}

	if level == c.runLevel {
		// Run overflow: flush and continue accumulating the same level.
		c.flushRun()
		c.startRun(ts, level)
		c.lastTime = ts
		return
	}

	c.flushRun()
	if hybrid {
		c.emitDelta(ts, level)
		// The changed sample is already emitted; the next run starts with
		// the sample after it.
	} else {
		c.startRun(ts, level)
		c.lastTime = ts
	}
}

func (c *Codec) startRun(ts uint32, level bool) {
	c.runActive = true
	c.runLevel = level
	c.runCount = 1
	c.runAnchor = ts
}

func (c *Codec) flushRun() {
	if !c.runActive {
		return
	}
	c.emit(Record{
		Time:  c.runAnchor,
		Count: uint16(c.runCount),
		Level: c.runLevel,
		Tag:   EncodingRLE,
	})
	c.runActive = false
}

func (c *Codec) emitDelta(ts uint32, level bool) {
	delta := ts
	if c.haveLast {
		delta = ts - c.lastTime
	}
	c.emit(Record{
		Time:  delta,
		Count: 1,
		Level: level,
		Tag:   EncodingDelta,
	})
	c.lastTime = ts
	c.haveLast = true
}

func (c *Codec) emit(r Record) {
	if len(c.records) >= c.capacity {
		c.dropped++
		return
	}
	c.records = append(c.records, r)
}

// Flush emits any pending unflushed run. Call on capture stop so the tail
// of the stream is not lost.
func (c *Codec) Flush() {
	c.flushRun()
}

// Records returns the encoded records. The slice aliases internal storage
// and is only valid until the next Encode or Reset.
func (c *Codec) Records() []Record { return c.records }

// Len returns the number of encoded records.
func (c *Codec) Len() int { return len(c.records) }

// Full reports whether the record array has no room left.
func (c *Codec) Full() bool { return len(c.records) >= c.capacity }

// Dropped returns how many records were discarded after the array filled.
func (c *Codec) Dropped() int { return c.dropped }

// RawCount returns how many raw samples were consumed.
func (c *Codec) RawCount() int { return c.rawCount }

// Ratio returns the compression ratio as a percentage:
// 100×(rawBytes−compressedBytes)/rawBytes. It is 0 while no records have
// been produced, and can go negative when the encoding expands the stream
// (delta encoding on a fast-toggling signal).
func (c *Codec) Ratio() float64 {
	if len(c.records) == 0 || c.rawCount == 0 {
		return 0
	}
	rawBytes := float64(c.rawCount * RawRecordSize)
	compBytes := float64(len(c.records) * CompressedRecordSize)
	return 100 * (rawBytes - compBytes) / rawBytes
}
