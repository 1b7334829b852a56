//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	DEFAULT_SAMPLE_INTERVAL_US = 1       // 1 MHz default rate
	MIN_SAMPLE_INTERVAL_US     = 1       // 10 MHz is not reachable through machine.Pin.Get, 1 MHz is the honest ceiling here
	MAX_SAMPLE_INTERVAL_US     = 1000000 // 1 Hz floor

	// Probe pin (AtomS3 grove connector)
	PIN_PROBE = machine.GPIO1

	// Target UART pins bridged to the host (AtomS3 G43/G44)
	PIN_UART_RX = machine.GPIO43
	PIN_UART_TX = machine.GPIO44

	// Serial configuration
	// Host link format: "<micros>,<level>\n" per recorded edge,
	// "U,<micros>,<byte>\n" per bridged UART byte.
	// Example: "1234567890,1\n" = ~13 bytes per edge. A 115200 8N1 link
	// moves ~11,520 bytes/sec, so the bridge keeps up to roughly 800
	// edges/sec sustained; bursts ride the UART FIFO.
	HOST_BAUD_RATE   = 115200
	TARGET_BAUD_RATE = 115200
)
