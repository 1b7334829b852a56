package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinscope/pkg/signal"
)

func TestRing_usageAndFull(t *testing.T) {
	r := NewRing(8)
	assert.Equal(t, 7, r.Capacity())

	for i := 0; i < 7; i++ {
		require.True(t, r.Push(signal.Sample{Time: uint64(i)}))
		assert.Equal(t, i+1, r.Usage())
	}
	assert.True(t, r.Full())
	assert.False(t, r.Push(signal.Sample{Time: 99}), "push into a full ring is refused")
	assert.Equal(t, 7, r.Usage())
}

func TestRing_wraparound(t *testing.T) {
	r := NewRing(4)

	// Fill, drain half, fill again so the indices wrap.
	require.True(t, r.Push(signal.Sample{Time: 0}))
	require.True(t, r.Push(signal.Sample{Time: 1}))
	require.True(t, r.Push(signal.Sample{Time: 2}))
	r.DropOldest()
	r.DropOldest()
	require.True(t, r.Push(signal.Sample{Time: 3}))
	require.True(t, r.Push(signal.Sample{Time: 4}))

	assert.Equal(t, 3, r.Usage())
	assert.True(t, r.Full())

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, uint64(2), snap[0].Time)
	assert.Equal(t, uint64(4), snap[2].Time)
}

func TestRing_clearResetsIndicesOnly(t *testing.T) {
	r := NewRing(4)
	r.Push(signal.Sample{Time: 1})
	r.Push(signal.Sample{Time: 2})

	r.Clear()
	assert.Zero(t, r.Usage())
	assert.False(t, r.Full())
	assert.Empty(t, r.Snapshot())

	require.True(t, r.Push(signal.Sample{Time: 3}))
	assert.Equal(t, uint64(3), r.Snapshot()[0].Time)
}

func TestRing_dropOldestOnEmpty(t *testing.T) {
	r := NewRing(4)
	r.DropOldest()
	assert.Zero(t, r.Usage())
}
