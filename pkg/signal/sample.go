// Package signal provides the sample model, the monotonic clock, the pin
// read capability and the trigger state machine for single-pin capture.
package signal

import "time"

// Sample is one observation of the monitored pin. Time is microseconds on a
// monotonic scale; within one capture session timestamps never decrease.
type Sample struct {
	Time  uint64 // monotonic µs
	Level bool
}

// Clock returns the current time in microseconds on a monotonic scale.
// Injected so tests can script time exactly.
type Clock func() uint64

// SystemClock returns a Clock anchored at its creation instant.
func SystemClock() Clock {
	start := time.Now()
	return func() uint64 {
		return uint64(time.Since(start).Microseconds())
	}
}

// Interval returns the sampling interval in µs for a rate in Hz, rounded to
// the nearest microsecond. Rates above 1 MHz all collapse to a 1 µs floor;
// the cadence is free-running with no phase correction, so drift under load
// is expected and not compensated.
func Interval(rateHz int) uint64 {
	if rateHz <= 0 {
		return 1
	}
	iv := (1000000 + uint64(rateHz)/2) / uint64(rateHz)
	if iv == 0 {
		iv = 1
	}
	return iv
}
