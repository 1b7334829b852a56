package bus

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinscope/pkg/config"
)

type fakeSender struct {
	sent  [][]byte
	times []uint64
	err   error
}

func (f *fakeSender) Send(nowMs uint64, p []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, append([]byte(nil), p...))
	f.times = append(f.times, nowMs)
	return nil
}

func TestArbiter_enqueueTransmitTurnaround(t *testing.T) {
	sender := &fakeSender{}
	a := New(sender, config.HalfDuplex, 100)

	status, err := a.Enqueue([]byte("CMD1"))
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, status)
	assert.True(t, a.Busy())
	assert.Equal(t, StateRX, a.State(), "transmit happens on tick, not enqueue")

	require.NoError(t, a.Tick(10))
	assert.Equal(t, StateTX, a.State())
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []byte("CMD1"), sender.sent[0])
	assert.Equal(t, uint64(10), sender.times[0])

	// Still inside the turnaround window.
	require.NoError(t, a.Tick(109))
	assert.Equal(t, StateTX, a.State())

	// Deadline expiry forces RX whether or not a response arrived.
	require.NoError(t, a.Tick(110))
	assert.Equal(t, StateRX, a.State())
	assert.False(t, a.Busy())
}

func TestArbiter_rejectsWhileBusy(t *testing.T) {
	sender := &fakeSender{}
	a := New(sender, config.HalfDuplex, 100)

	status, err := a.Enqueue([]byte("first"))
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, status)

	// Queued but not yet transmitted.
	status, err = a.Enqueue([]byte("second"))
	require.NoError(t, err)
	assert.Equal(t, StatusBusy, status)

	require.NoError(t, a.Tick(0))
	require.Equal(t, StateTX, a.State())

	// Transmitting.
	status, err = a.Enqueue([]byte("third"))
	require.NoError(t, err)
	assert.Equal(t, StatusBusy, status)

	// The rejected commands were never queued; nothing transmits after
	// the window closes.
	require.NoError(t, a.Tick(100))
	require.NoError(t, a.Tick(200))
	assert.Len(t, sender.sent, 1)
}

func TestArbiter_fullDuplexEnqueueIsUsageError(t *testing.T) {
	a := New(&fakeSender{}, config.FullDuplex, 100)

	status, err := a.Enqueue([]byte("cmd"))
	assert.Equal(t, StatusError, status)
	assert.Error(t, err)
	assert.False(t, a.Pending(), "no partial effect")
}

func TestArbiter_sendFailureRevertsToRX(t *testing.T) {
	sender := &fakeSender{err: fmt.Errorf("port gone")}
	a := New(sender, config.HalfDuplex, 100)

	status, err := a.Enqueue([]byte("cmd"))
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, status)

	err = a.Tick(0)
	assert.Error(t, err)
	assert.Equal(t, StateRX, a.State())
	assert.False(t, a.Busy(), "failed command is not retried")
}

func TestArbiter_setDuplexDropsQueue(t *testing.T) {
	sender := &fakeSender{}
	a := New(sender, config.HalfDuplex, 100)

	_, err := a.Enqueue([]byte("cmd"))
	require.NoError(t, err)

	a.SetDuplex(config.FullDuplex)
	assert.False(t, a.Pending())
	require.NoError(t, a.Tick(0))
	assert.Empty(t, sender.sent)
}

func TestArbiter_backToBackCommands(t *testing.T) {
	sender := &fakeSender{}
	a := New(sender, config.HalfDuplex, 50)

	_, err := a.Enqueue([]byte("one"))
	require.NoError(t, err)
	require.NoError(t, a.Tick(0))

	// Accepted again only after the turnaround releases the bus.
	status, _ := a.Enqueue([]byte("two"))
	require.Equal(t, StatusBusy, status)

	require.NoError(t, a.Tick(50))
	status, err = a.Enqueue([]byte("two"))
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, status)

	require.NoError(t, a.Tick(60))
	require.Len(t, sender.sent, 2)
	assert.Equal(t, []byte("two"), sender.sent[1])
}
