package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pinscope/pkg/config"
)

func TestNewArmer_initialState(t *testing.T) {
	tests := []struct {
		name      string
		mode      config.TriggerMode
		wantArmed bool
	}{
		{name: "none starts armed", mode: config.TriggerNone, wantArmed: true},
		{name: "rising starts disarmed", mode: config.TriggerRising, wantArmed: false},
		{name: "falling starts disarmed", mode: config.TriggerFalling, wantArmed: false},
		{name: "both starts disarmed", mode: config.TriggerBoth, wantArmed: false},
		{name: "high level starts disarmed", mode: config.TriggerHighLevel, wantArmed: false},
		{name: "low level starts disarmed", mode: config.TriggerLowLevel, wantArmed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewArmer(tt.mode)
			assert.Equal(t, tt.wantArmed, a.Armed())
		})
	}
}

func TestArmer_edgeConditions(t *testing.T) {
	tests := []struct {
		name       string
		mode       config.TriggerMode
		levels     []bool
		firedAt    int // index into levels where the trigger must fire, -1 never
	}{
		{name: "rising fires on low to high", mode: config.TriggerRising, levels: []bool{false, false, true}, firedAt: 2},
		{name: "rising ignores high to low", mode: config.TriggerRising, levels: []bool{true, false, false}, firedAt: -1},
		{name: "rising needs a previous observation", mode: config.TriggerRising, levels: []bool{true}, firedAt: -1},
		{name: "falling fires on high to low", mode: config.TriggerFalling, levels: []bool{true, false}, firedAt: 1},
		{name: "falling ignores rising edge", mode: config.TriggerFalling, levels: []bool{false, true, true}, firedAt: -1},
		{name: "both fires on first change", mode: config.TriggerBoth, levels: []bool{false, false, true}, firedAt: 2},
		{name: "high level fires immediately on high", mode: config.TriggerHighLevel, levels: []bool{true}, firedAt: 0},
		{name: "high level waits for high", mode: config.TriggerHighLevel, levels: []bool{false, false, true}, firedAt: 2},
		{name: "low level fires immediately on low", mode: config.TriggerLowLevel, levels: []bool{false}, firedAt: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewArmer(tt.mode)
			fired := -1
			for i, lvl := range tt.levels {
				if a.Observe(lvl) && fired == -1 {
					fired = i
				}
			}
			assert.Equal(t, tt.firedAt, fired)
			assert.Equal(t, tt.firedAt >= 0, a.Armed())
		})
	}
}

func TestArmer_latchesOnceFired(t *testing.T) {
	a := NewArmer(config.TriggerRising)

	a.Observe(false)
	assert.True(t, a.Observe(true), "rising edge should fire")
	assert.True(t, a.Armed())

	// Condition is never re-evaluated once latched: a falling edge and a
	// second rising edge must not change the armed state.
	a.Observe(false)
	a.Observe(true)
	assert.True(t, a.Armed())
}

func TestArmer_resetDisarms(t *testing.T) {
	a := NewArmer(config.TriggerFalling)
	a.Observe(true)
	a.Observe(false)
	assert.True(t, a.Armed())

	a.Reset()
	assert.False(t, a.Armed())

	// After reset the previous-level history must not leak into the new
	// session: the first observation alone cannot fire an edge trigger.
	assert.False(t, a.Observe(false))
}

func TestArmer_noneAlwaysArmedAfterReset(t *testing.T) {
	a := NewArmer(config.TriggerNone)
	a.Reset()
	assert.True(t, a.Armed())
}
