package signal

import (
	"github.com/chewxy/math32"
)

// PinReader reads the instantaneous level of the monitored pin. Hardware
// implementations should poll the input register directly rather than go
// through a generic digital-read layer; at multi-MHz rates the extra
// indirection shows up as jitter.
type PinReader interface {
	ReadLevel() bool
}

// WavePin simulates a square wave on a pin, with optional phase noise. It
// stands in for real hardware during development and tests, the same way the
// mock device stands in for the serial instrument.
type WavePin struct {
	clock    Clock
	periodUs uint64
	dutyPct  int
	noise    float32 // fraction of the period, 0 disables jitter
}

var _ PinReader = (*WavePin)(nil)

// NewWavePin creates a square-wave pin source. periodUs is the full wave
// period in microseconds, dutyPct the high portion in percent, noise the
// edge jitter as a fraction of the period.
func NewWavePin(clock Clock, periodUs uint64, dutyPct int, noise float32) *WavePin {
	if periodUs == 0 {
		periodUs = 1000
	}
	if dutyPct < 1 {
		dutyPct = 1
	}
	if dutyPct > 99 {
		dutyPct = 99
	}
	return &WavePin{
		clock:    clock,
		periodUs: periodUs,
		dutyPct:  dutyPct,
		noise:    noise,
	}
}

// ReadLevel returns the simulated level at the current clock instant.
func (p *WavePin) ReadLevel() bool {
	now := p.clock()
	phase := now % p.periodUs

	if p.noise > 0 {
		// Deterministic jitter: a pair of incommensurate sinusoids, like the
		// mock thermal noise model. Shifts the perceived phase, not the duty.
		t := float32(now)
		j := (math32.Sin(t*0.001) + math32.Cos(t*0.0013)) * 0.5
		shift := int64(j * p.noise * float32(p.periodUs))
		phase = uint64((int64(phase) + shift + int64(p.periodUs)) % int64(p.periodUs))
	}

	threshold := p.periodUs * uint64(p.dutyPct) / 100
	return phase < threshold
}

// ScriptPin replays a fixed sequence of levels, one per ReadLevel call, and
// holds the final level afterwards. Intended for tests.
type ScriptPin struct {
	levels []bool
	pos    int
}

var _ PinReader = (*ScriptPin)(nil)

// NewScriptPin creates a scripted pin source.
func NewScriptPin(levels ...bool) *ScriptPin {
	return &ScriptPin{levels: levels}
}

// ReadLevel returns the next scripted level.
func (p *ScriptPin) ReadLevel() bool {
	if len(p.levels) == 0 {
		return false
	}
	if p.pos >= len(p.levels) {
		return p.levels[len(p.levels)-1]
	}
	l := p.levels[p.pos]
	p.pos++
	return l
}

// Remaining reports how many scripted levels have not been consumed yet.
func (p *ScriptPin) Remaining() int {
	if p.pos >= len(p.levels) {
		return 0
	}
	return len(p.levels) - p.pos
}
