// Package bus arbitrates a single shared pin between receive and transmit
// when the UART runs half-duplex.
package bus

import (
	"fmt"

	"pinscope/pkg/config"
)

// DefaultTurnaround is how long the bus stays in TX after a command before
// it is forced back to RX, in the caller's tick time units.
const DefaultTurnaround = 100

// State is the current bus direction. The two are mutually exclusive on the
// one physical pin.
type State uint8

const (
	StateRX State = iota
	StateTX
)

func (s State) String() string {
	if s == StateTX {
		return "TX"
	}
	return "RX"
}

// Status is the outcome of an enqueue attempt.
type Status uint8

const (
	// StatusAccepted means the command was queued and will transmit on
	// the next tick the bus is idle.
	StatusAccepted Status = iota
	// StatusBusy means a command is already queued or transmitting. The
	// queue is depth one and never overwrites; callers retry.
	StatusBusy
	// StatusError means the enqueue was a usage error, e.g. the bus is
	// configured full-duplex.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusBusy:
		return "busy"
	case StatusError:
		return "error"
	default:
		return "accepted"
	}
}

// Sender transmits a command and logs it, timestamped with the caller's
// clock.
type Sender interface {
	Send(nowMs uint64, p []byte) error
}

// Arbiter owns the RX/TX direction of a half-duplex pin. Commands are
// queued one deep, transmitted when the bus is idle, and the bus reverts to
// RX after a fixed turnaround whether or not a response arrived.
type Arbiter struct {
	sender     Sender
	duplex     config.DuplexMode
	turnaround uint64

	state    State
	queued   []byte
	pending  bool
	deadline uint64
}

// New creates an Arbiter. turnaround of zero selects DefaultTurnaround.
func New(sender Sender, duplex config.DuplexMode, turnaround uint64) *Arbiter {
	if turnaround == 0 {
		turnaround = DefaultTurnaround
	}
	return &Arbiter{
		sender:     sender,
		duplex:     duplex,
		turnaround: turnaround,
	}
}

// SetDuplex reconfigures the duplex mode. Switching to full duplex drops
// any queued command and returns the bus to RX.
func (a *Arbiter) SetDuplex(mode config.DuplexMode) {
	a.duplex = mode
	if mode == config.FullDuplex {
		a.pending = false
		a.queued = nil
		a.state = StateRX
	}
}

// Enqueue queues one outbound command. While a command is queued or
// transmitting the bus is busy and the new command is rejected, never
// overwritten or held.
func (a *Arbiter) Enqueue(cmd []byte) (Status, error) {
	if a.duplex != config.HalfDuplex {
		return StatusError, fmt.Errorf("bus is full-duplex, use the monitor's direct send")
	}
	if a.pending || a.state == StateTX {
		return StatusBusy, nil
	}

	a.queued = append(a.queued[:0], cmd...)
	a.pending = true
	return StatusAccepted, nil
}

// Tick advances the arbiter: transmits a queued command when the bus is
// idle, and forces the direction back to RX once the turnaround deadline
// passes.
func (a *Arbiter) Tick(nowMs uint64) error {
	if a.duplex != config.HalfDuplex {
		return nil
	}

	if a.state == StateTX && nowMs >= a.deadline {
		a.state = StateRX
	}

	if a.state == StateRX && a.pending {
		a.pending = false
		a.state = StateTX
		a.deadline = nowMs + a.turnaround
		if err := a.sender.Send(nowMs, a.queued); err != nil {
			a.state = StateRX
			return fmt.Errorf("failed to transmit queued command: %w", err)
		}
	}
	return nil
}

// State returns the current bus direction.
func (a *Arbiter) State() State { return a.state }

// Pending reports whether a command is queued but not yet transmitted.
func (a *Arbiter) Pending() bool { return a.pending }

// Busy reports whether an enqueue right now would be rejected.
func (a *Arbiter) Busy() bool { return a.pending || a.state == StateTX }
