package analyzer

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"pinscope/pkg/compress"
	"pinscope/pkg/config"
	"pinscope/pkg/flashstore"
	"pinscope/pkg/signal"
)

// controller routes samples to the active backing store. Exactly one of
// ring, store or codec is non-nil at a time; which one is selected by the
// buffer mode.
type controller struct {
	log    zerolog.Logger
	fs     afero.Fs
	budget *flashstore.Budget
	flash  config.FlashConfig

	mode        config.BufferMode
	compression config.CompressionType
	capacity    int
	rateHz      int

	ring  *Ring
	store *flashstore.SampleStore
	codec *compress.Codec
}

func newController(log zerolog.Logger, fs afero.Fs, budget *flashstore.Budget, flash config.FlashConfig, logic config.LogicConfig) *controller {
	return &controller{
		log:         log,
		fs:          fs,
		budget:      budget,
		flash:       flash,
		mode:        config.BufferRAM,
		compression: config.CompressionHybrid,
		capacity:    logic.BufferCapacity,
		rateHz:      logic.SampleRateHz,
		ring:        NewRing(logic.BufferCapacity),
	}
}

func (c *controller) samplePath() string {
	return filepath.Join(c.flash.Dir, c.flash.SampleFile)
}

func (c *controller) header() flashstore.Header {
	compression := config.CompressionNone
	if c.mode == config.BufferCompressed {
		compression = c.compression
	}
	return flashstore.Header{
		Capacity:     uint32(c.capacity),
		SampleRateHz: uint32(c.rateHz),
		Compression:  compression,
	}
}

// setMode switches the active store. In-flight data of the previous store
// is discarded. When a flash session cannot be opened the controller falls
// back to RAM; storage trouble is never fatal to the engine.
func (c *controller) setMode(mode config.BufferMode) {
	c.dropActive()
	c.mode = mode

	switch mode {
	case config.BufferFlash, config.BufferStreaming:
		if err := c.openSession(); err != nil {
			c.log.Warn().Err(err).Msg("flash session unavailable, falling back to RAM buffer")
			c.mode = config.BufferRAM
			c.ring = NewRing(c.capacity)
		}
	case config.BufferCompressed:
		c.codec = compress.New(c.compression, c.capacity)
	default:
		c.ring = NewRing(c.capacity)
	}
}

func (c *controller) openSession() error {
	store, err := flashstore.OpenSampleStore(c.fs, c.samplePath(), c.budget, c.flash.ChunkBytes, c.header())
	if err != nil {
		return err
	}
	c.store = store
	return nil
}

func (c *controller) dropActive() {
	if c.store != nil {
		if err := c.store.Clear(); err != nil {
			c.log.Warn().Err(err).Msg("failed to clear flash session")
		}
		c.store = nil
	}
	c.ring = nil
	c.codec = nil
}

// setCompression selects the codec encoding and enters compressed mode.
func (c *controller) setCompression(typ config.CompressionType) {
	c.compression = typ
	if typ == config.CompressionNone {
		c.setMode(config.BufferRAM)
		return
	}
	c.setMode(config.BufferCompressed)
}

// reconfigure applies new capture settings, rebuilding the active store.
func (c *controller) reconfigure(logic config.LogicConfig) {
	c.capacity = logic.BufferCapacity
	c.rateHz = logic.SampleRateHz
	c.setMode(c.mode)
}

// record stores one sample. stop is true when the capture must halt: the
// RAM ring is full, or the flash sample cap is reached in flash mode. In
// streaming mode the cap rotates the session instead so capture continues.
func (c *controller) record(s signal.Sample) (stop bool, err error) {
	switch c.mode {
	case config.BufferFlash:
		if c.store.SampleCount() >= c.flash.MaxFlashSamples {
			return true, nil
		}
		if err := c.store.WriteSample(s); err != nil {
			return true, fmt.Errorf("flash write failed: %w", err)
		}
	case config.BufferStreaming:
		if c.store.SampleCount() >= c.flash.MaxFlashSamples {
			if err := c.rotateSession(); err != nil {
				return true, err
			}
		}
		if err := c.store.WriteSample(s); err != nil {
			return true, fmt.Errorf("flash write failed: %w", err)
		}
	case config.BufferCompressed:
		// Overflow drops records silently; capture continues.
		c.codec.Encode(s)
	default:
		if !c.ring.Push(s) {
			return true, nil
		}
	}
	return false, nil
}

// recordPre stores a pre-trigger sample in the RAM ring, dropping the
// oldest once the window limit is reached. Only RAM mode keeps a
// pre-trigger window.
func (c *controller) recordPre(s signal.Sample, limit int) {
	if c.mode != config.BufferRAM || limit <= 0 {
		return
	}
	// A full window request still has to fit the ring, guard slot excluded,
	// or Push would refuse samples instead of the window rolling.
	if limit > c.ring.Capacity() {
		limit = c.ring.Capacity()
	}
	for c.ring.Usage() >= limit {
		c.ring.DropOldest()
	}
	c.ring.Push(s)
}

// rotateSession starts a fresh flash file so streaming keeps ring-like
// semantics on flash.
func (c *controller) rotateSession() error {
	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("failed to rotate streaming session: %w", err)
	}
	c.store = nil
	if err := c.openSession(); err != nil {
		return fmt.Errorf("failed to rotate streaming session: %w", err)
	}
	return nil
}

// flush pushes buffered state out: partial flash chunks, or the codec's
// pending run.
func (c *controller) flush() error {
	if c.store != nil {
		if err := c.store.Flush(); err != nil {
			return fmt.Errorf("failed to flush flash session: %w", err)
		}
	}
	if c.codec != nil {
		c.codec.Flush()
	}
	return nil
}

// clear empties the active store, starting a fresh flash session in flash
// modes.
func (c *controller) clear() error {
	switch {
	case c.store != nil:
		if err := c.store.Clear(); err != nil {
			return fmt.Errorf("failed to clear flash session: %w", err)
		}
		c.store = nil
		if err := c.openSession(); err != nil {
			c.log.Warn().Err(err).Msg("flash session unavailable, falling back to RAM buffer")
			c.mode = config.BufferRAM
			c.ring = NewRing(c.capacity)
		}
	case c.codec != nil:
		c.codec.Reset(c.compression)
	default:
		c.ring.Clear()
	}
	return nil
}

func (c *controller) usage() int {
	switch {
	case c.store != nil:
		return c.store.SampleCount()
	case c.codec != nil:
		return c.codec.Len()
	default:
		return c.ring.Usage()
	}
}

func (c *controller) bufferCapacity() int {
	switch c.mode {
	case config.BufferFlash, config.BufferStreaming:
		return c.flash.MaxFlashSamples
	case config.BufferCompressed:
		return c.capacity
	default:
		return c.ring.Capacity()
	}
}

func (c *controller) full() bool {
	switch {
	case c.store != nil:
		return c.store.SampleCount() >= c.flash.MaxFlashSamples
	case c.codec != nil:
		return c.codec.Full()
	default:
		return c.ring.Full()
	}
}

func (c *controller) flashBytes() int64 {
	if c.store != nil {
		return c.store.BytesUsed()
	}
	return 0
}

func (c *controller) ratio() float64 {
	if c.codec != nil {
		return c.codec.Ratio()
	}
	return 0
}

func (c *controller) droppedRecords() int {
	if c.codec != nil {
		return c.codec.Dropped()
	}
	return 0
}

// snapshot returns the RAM capture oldest first, or nil outside RAM mode.
func (c *controller) snapshot() []signal.Sample {
	if c.ring == nil {
		return nil
	}
	return c.ring.Snapshot()
}

// records returns the compressed capture, or nil outside compressed mode.
func (c *controller) records() []compress.Record {
	if c.codec == nil {
		return nil
	}
	return c.codec.Records()
}

// shutdown releases the active flash session, keeping its file on flash.
func (c *controller) shutdown() error {
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			return err
		}
		c.store = nil
	}
	return nil
}
