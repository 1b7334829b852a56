package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterval(t *testing.T) {
	tests := []struct {
		name   string
		rateHz int
		want   uint64
	}{
		{name: "1 kHz", rateHz: 1000, want: 1000},
		{name: "1 MHz", rateHz: 1000000, want: 1},
		{name: "10 MHz floors at 1us", rateHz: 10000000, want: 1},
		{name: "3 Hz rounds", rateHz: 3, want: 333333},
		{name: "400 kHz rounds up", rateHz: 400000, want: 3}, // 2.5us rounds to 3
		{name: "zero rate floors at 1us", rateHz: 0, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Interval(tt.rateHz))
		})
	}
}

func TestScriptPin(t *testing.T) {
	p := NewScriptPin(false, true, true)

	assert.Equal(t, 3, p.Remaining())
	assert.False(t, p.ReadLevel())
	assert.True(t, p.ReadLevel())
	assert.True(t, p.ReadLevel())
	assert.Equal(t, 0, p.Remaining())

	// Holds the final level after the script runs out.
	assert.True(t, p.ReadLevel())
	assert.True(t, p.ReadLevel())
}

func TestScriptPin_empty(t *testing.T) {
	p := NewScriptPin()
	assert.False(t, p.ReadLevel())
}

func TestWavePin_dutyCycle(t *testing.T) {
	var now uint64
	clock := Clock(func() uint64 { return now })

	p := NewWavePin(clock, 100, 50, 0)

	// With zero noise the wave is an exact square: high for the first half
	// of each period, low for the second.
	for _, tc := range []struct {
		at   uint64
		want bool
	}{
		{at: 0, want: true},
		{at: 49, want: true},
		{at: 50, want: false},
		{at: 99, want: false},
		{at: 100, want: true},
		{at: 175, want: false},
	} {
		now = tc.at
		assert.Equal(t, tc.want, p.ReadLevel(), "at t=%dus", tc.at)
	}
}

func TestWavePin_noiseShiftsEdgesWithinBound(t *testing.T) {
	var now uint64
	clock := Clock(func() uint64 { return now })

	const period = 1000
	noisy := NewWavePin(clock, period, 50, 0.1)
	clean := NewWavePin(clock, period, 50, 0)

	// The sinusoid pair stays in [-1, 1], so the phase shift never exceeds
	// noise*period = 100us: levels more than that away from either edge are
	// unaffected, while levels near an edge may flip.
	differs := false
	for at := uint64(0); at < 10*period; at++ {
		now = at
		phase := at % period
		got := noisy.ReadLevel()
		if phase >= 150 && phase <= 350 {
			assert.True(t, got, "at t=%dus", at)
		}
		if phase >= 650 && phase <= 850 {
			assert.False(t, got, "at t=%dus", at)
		}
		if got != clean.ReadLevel() {
			differs = true
		}
	}
	assert.True(t, differs, "jitter must move at least one edge")
}

func TestSystemClock_monotonic(t *testing.T) {
	clock := SystemClock()
	a := clock()
	b := clock()
	assert.LessOrEqual(t, a, b)
}
