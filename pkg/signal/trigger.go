package signal

import "pinscope/pkg/config"

// Armer is the trigger state machine gating when samples start being
// recorded. Arming latches: once the configured edge or level condition has
// been observed, the armer stays armed until Reset and the condition is
// never re-evaluated mid-capture.
type Armer struct {
	mode      config.TriggerMode
	armed     bool
	lastLevel bool
	seenLevel bool
}

// NewArmer creates an armer for the given trigger mode. With TriggerNone the
// armer starts armed; every other mode starts disarmed.
func NewArmer(mode config.TriggerMode) *Armer {
	return &Armer{
		mode:  mode,
		armed: mode == config.TriggerNone,
	}
}

// Mode returns the configured trigger mode.
func (a *Armer) Mode() config.TriggerMode { return a.mode }

// Armed reports whether recording is gated open.
func (a *Armer) Armed() bool { return a.armed }

// Reset disarms the trigger for a new capture session. TriggerNone re-arms
// immediately.
func (a *Armer) Reset() {
	a.armed = a.mode == config.TriggerNone
	a.seenLevel = false
}

// Observe feeds the current pin level into the state machine and returns
// true exactly when this observation caused the trigger to fire. Edge modes
// need one previous observation to compare against.
func (a *Armer) Observe(level bool) bool {
	if a.armed {
		a.lastLevel = level
		a.seenLevel = true
		return false
	}

	fired := false
	switch a.mode {
	case config.TriggerRising:
		fired = a.seenLevel && !a.lastLevel && level
	case config.TriggerFalling:
		fired = a.seenLevel && a.lastLevel && !level
	case config.TriggerBoth:
		fired = a.seenLevel && a.lastLevel != level
	case config.TriggerHighLevel:
		fired = level
	case config.TriggerLowLevel:
		fired = !level
	case config.TriggerNone:
		fired = true
	}

	a.lastLevel = level
	a.seenLevel = true

	if fired {
		a.armed = true
	}
	return fired
}
