package flashstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"pinscope/pkg/compress"
	"pinscope/pkg/signal"
)

// ErrClosed indicates an operation on a closed store.
var ErrClosed = errors.New("flashstore: store closed")

// DefaultChunkSize batches sample writes into one flash-page-sized physical
// write. Smaller chunks wear the flash faster; larger ones lose more on
// power loss.
const DefaultChunkSize = 512

// SampleStore is a chunked append-only capture session. Writes accumulate
// in a fixed chunk buffer and hit the file only when a full chunk is ready
// or on explicit Flush/Close, so the sampling hot path never waits on I/O.
//
// The store does not enforce a sample cap: maxFlashSamples is the
// buffer-mode controller's responsibility.
type SampleStore struct {
	fs     afero.Fs
	path   string
	budget *Budget

	file   afero.File
	header Header

	chunk     []byte
	chunkSize int

	flushes int
	bytes   int64

	closed bool
}

// OpenSampleStore creates (truncating) the capture file and writes the
// initial header. The header bytes count against the shared budget.
func OpenSampleStore(fs afero.Fs, path string, budget *Budget, chunkSize int, hdr Header) (*SampleStore, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if budget == nil {
		budget = NewBudget(0)
	}

	if err := budget.Reserve(HeaderSize); err != nil {
		return nil, err
	}

	file, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		budget.Release(HeaderSize)
		return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}

	hdr.SampleCount = 0
	s := &SampleStore{
		fs:        fs,
		path:      path,
		budget:    budget,
		file:      file,
		header:    hdr,
		chunk:     make([]byte, 0, chunkSize*2),
		chunkSize: chunkSize,
	}

	if _, err := file.Write(hdr.marshal()); err != nil {
		file.Close()
		budget.Release(HeaderSize)
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	s.bytes = HeaderSize

	return s, nil
}

// WriteSample appends one raw sample (5 bytes: µs timestamp + level).
func (s *SampleStore) WriteSample(smp signal.Sample) error {
	if s.closed {
		return ErrClosed
	}

	var rec [compress.RawRecordSize]byte
	binary.LittleEndian.PutUint32(rec[0:], uint32(smp.Time))
	if smp.Level {
		rec[4] = 1
	}

	s.chunk = append(s.chunk, rec[:]...)
	s.header.SampleCount++
	return s.drainFullChunks()
}

// WriteRecord appends one compressed record (8 bytes).
func (s *SampleStore) WriteRecord(r compress.Record) error {
	if s.closed {
		return ErrClosed
	}

	var rec [compress.CompressedRecordSize]byte
	rec[0] = byte(r.Tag)
	if r.Level {
		rec[1] = 1
	}
	binary.LittleEndian.PutUint16(rec[2:], r.Count)
	binary.LittleEndian.PutUint32(rec[4:], r.Time)

	s.chunk = append(s.chunk, rec[:]...)
	s.header.SampleCount++
	return s.drainFullChunks()
}

// drainFullChunks writes out whole chunks, carrying any remainder. Records
// may straddle a chunk boundary; the file is a byte stream.
func (s *SampleStore) drainFullChunks() error {
	for len(s.chunk) >= s.chunkSize {
		if err := s.writeOut(s.chunk[:s.chunkSize]); err != nil {
			return err
		}
		s.chunk = s.chunk[:copy(s.chunk, s.chunk[s.chunkSize:])]
	}
	return nil
}

func (s *SampleStore) writeOut(p []byte) error {
	if err := s.budget.Reserve(int64(len(p))); err != nil {
		return err
	}
	if _, err := s.file.Write(p); err != nil {
		s.budget.Release(int64(len(p)))
		return fmt.Errorf("failed to write chunk: %w", err)
	}
	s.flushes++
	s.bytes += int64(len(p))
	return nil
}

// Flush writes any partial chunk and rewrites the header with the current
// count and checksum. Safe to call at any point in a session.
func (s *SampleStore) Flush() error {
	if s.closed {
		return ErrClosed
	}

	if len(s.chunk) > 0 {
		if err := s.writeOut(s.chunk); err != nil {
			return err
		}
		s.chunk = s.chunk[:0]
	}

	if _, err := s.file.WriteAt(s.header.marshal(), 0); err != nil {
		return fmt.Errorf("failed to update header: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the file. The file remains on
// flash and keeps its budget reservation until Clear.
func (s *SampleStore) Close() error {
	if s.closed {
		return nil
	}
	flushErr := s.Flush()
	s.closed = true
	if err := s.file.Close(); err != nil && flushErr == nil {
		flushErr = fmt.Errorf("failed to close capture file: %w", err)
	}
	return flushErr
}

// Clear closes the store, deletes the backing file and returns its bytes to
// the shared budget.
func (s *SampleStore) Clear() error {
	if !s.closed {
		s.closed = true
		s.file.Close()
	}
	if err := s.fs.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove capture file: %w", err)
	}
	s.budget.Release(s.bytes)
	s.bytes = 0
	return nil
}

// SampleCount returns the number of samples (or compressed records) written
// this session, including ones still buffered in the chunk.
func (s *SampleStore) SampleCount() int { return int(s.header.SampleCount) }

// FlushCount returns how many physical writes the session has issued,
// header excluded.
func (s *SampleStore) FlushCount() int { return s.flushes }

// BytesUsed returns the bytes this session holds on flash.
func (s *SampleStore) BytesUsed() int64 { return s.bytes }

// Path returns the backing file path.
func (s *SampleStore) Path() string { return s.path }
