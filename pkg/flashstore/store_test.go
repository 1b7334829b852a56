package flashstore

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinscope/pkg/compress"
	"pinscope/pkg/config"
	"pinscope/pkg/signal"
)

func newTestStore(t *testing.T, chunkSize int, budget *Budget) (*SampleStore, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := OpenSampleStore(fs, "capture.bin", budget, chunkSize, Header{
		Capacity:     16384,
		SampleRateHz: 1000000,
		Compression:  config.CompressionNone,
	})
	require.NoError(t, err)
	return s, fs
}

func TestSampleStore_flushCount(t *testing.T) {
	tests := []struct {
		name        string
		samples     int
		chunkSize   int
		wantFlushes int
	}{
		// Total flushes must be ceil(M*recordSize/chunkSize), counting the
		// final partial flush issued on Close.
		{name: "exact chunk", samples: 100, chunkSize: 500, wantFlushes: 1},
		{name: "one partial", samples: 10, chunkSize: 500, wantFlushes: 1},
		{name: "two full one partial", samples: 210, chunkSize: 500, wantFlushes: 3},
		{name: "boundary straddling records", samples: 205, chunkSize: 512, wantFlushes: 3}, // 1025 bytes
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t, tt.chunkSize, nil)
			for i := 0; i < tt.samples; i++ {
				require.NoError(t, s.WriteSample(signal.Sample{Time: uint64(i), Level: i%2 == 0}))
			}
			require.NoError(t, s.Close())
			assert.Equal(t, tt.wantFlushes, s.FlushCount())
			assert.Equal(t, tt.samples, s.SampleCount())
		})
	}
}

func TestSampleStore_headerRoundTrip(t *testing.T) {
	s, fs := newTestStore(t, 512, nil)
	for i := 0; i < 7; i++ {
		require.NoError(t, s.WriteSample(signal.Sample{Time: uint64(100 + i), Level: true}))
	}
	require.NoError(t, s.Close())

	data, err := afero.ReadFile(fs, "capture.bin")
	require.NoError(t, err)
	require.Equal(t, HeaderSize+7*compress.RawRecordSize, len(data))

	hdr, err := ReadHeader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, uint32(7), hdr.SampleCount)
	assert.Equal(t, uint32(16384), hdr.Capacity)
	assert.Equal(t, uint32(1000000), hdr.SampleRateHz)
	assert.Equal(t, config.CompressionNone, hdr.Compression)
}

func TestReadHeader_rejectsCorruption(t *testing.T) {
	s, fs := newTestStore(t, 512, nil)
	require.NoError(t, s.WriteSample(signal.Sample{Time: 1, Level: true}))
	require.NoError(t, s.Close())

	data, err := afero.ReadFile(fs, "capture.bin")
	require.NoError(t, err)

	t.Run("checksum mismatch", func(t *testing.T) {
		corrupt := append([]byte(nil), data...)
		corrupt[8] ^= 0xFF // sample count field
		_, err := ReadHeader(bytes.NewReader(corrupt))
		assert.ErrorIs(t, err, ErrChecksum)
	})

	t.Run("bad magic", func(t *testing.T) {
		corrupt := append([]byte(nil), data...)
		corrupt[0] = 0
		_, err := ReadHeader(bytes.NewReader(corrupt))
		assert.ErrorIs(t, err, ErrBadMagic)
	})
}

func TestSampleStore_writeRecord(t *testing.T) {
	s, fs := newTestStore(t, 512, nil)
	require.NoError(t, s.WriteRecord(compress.Record{Time: 100, Count: 5, Level: true, Tag: compress.EncodingRLE}))
	require.NoError(t, s.WriteRecord(compress.Record{Time: 3, Count: 1, Level: false, Tag: compress.EncodingDelta}))
	require.NoError(t, s.Close())

	data, err := afero.ReadFile(fs, "capture.bin")
	require.NoError(t, err)
	assert.Equal(t, HeaderSize+2*compress.CompressedRecordSize, len(data))
	assert.Equal(t, byte(compress.EncodingRLE), data[HeaderSize])
	assert.Equal(t, byte(1), data[HeaderSize+1], "level byte")
}

func TestSampleStore_clearDeletesAndReleasesBudget(t *testing.T) {
	budget := NewBudget(4096)
	s, fs := newTestStore(t, 64, budget)
	for i := 0; i < 50; i++ {
		require.NoError(t, s.WriteSample(signal.Sample{Time: uint64(i)}))
	}
	require.NoError(t, s.Flush())
	require.Positive(t, budget.Used())

	require.NoError(t, s.Clear())
	assert.Zero(t, budget.Used())

	exists, err := afero.Exists(fs, "capture.bin")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSampleStore_budgetExhaustion(t *testing.T) {
	budget := NewBudget(HeaderSize + 100)
	s, _ := newTestStore(t, 100, budget)

	var writeErr error
	for i := 0; i < 100 && writeErr == nil; i++ {
		writeErr = s.WriteSample(signal.Sample{Time: uint64(i)})
	}
	assert.ErrorIs(t, writeErr, ErrBudgetExhausted)
}

func TestSampleStore_closedOps(t *testing.T) {
	s, _ := newTestStore(t, 512, nil)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.WriteSample(signal.Sample{}), ErrClosed)
	assert.ErrorIs(t, s.Flush(), ErrClosed)
	assert.NoError(t, s.Close(), "double close is a no-op")
}

func TestOpenSampleStore_mountFailure(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	_, err := OpenSampleStore(fs, "capture.bin", nil, 512, Header{})
	assert.Error(t, err, "read-only filesystem must fail the open so callers can fall back to RAM")
}
