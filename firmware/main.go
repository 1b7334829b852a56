//go:build tinygo

//go:generate tinygo flash -target=m5stack-atoms3

package main

import (
	"machine"
	"time"
)

var (
	host   = machine.Serial
	target = machine.UART1

	// Sampling state
	sampling   bool
	intervalUs int64
	lastSample time.Time
	lastLevel  bool
	haveLevel  bool
	edgesOnly  bool

	// Serial buffer for reading host commands
	cmdBuffer [16]byte
	cmdPos    int
)

func main() {
	PIN_PROBE.Configure(machine.PinConfig{Mode: machine.PinInput})

	target.Configure(machine.UARTConfig{
		BaudRate: TARGET_BAUD_RATE,
		RX:       PIN_UART_RX,
		TX:       PIN_UART_TX,
	})

	intervalUs = DEFAULT_SAMPLE_INTERVAL_US
	edgesOnly = true
	lastSample = time.Now()

	// Main loop
	for {
		now := time.Now()

		// Check for host commands (non-blocking)
		processCommands()

		// Bridge target UART bytes up to the host
		bridgeTarget(now)

		// Poll the probe pin at the configured cadence
		if sampling && now.Sub(lastSample) >= time.Duration(intervalUs)*time.Microsecond {
			samplePin(now)
			lastSample = now
		}
	}
}

func samplePin(now time.Time) {
	level := PIN_PROBE.Get()

	// In edges-only mode, report transitions; the host rebuilds runs.
	if edgesOnly && haveLevel && level == lastLevel {
		return
	}
	lastLevel = level
	haveLevel = true

	print(now.UnixNano() / 1000)
	print(",")
	if level {
		print("1")
	} else {
		print("0")
	}
	print("\n")
}

func bridgeTarget(now time.Time) {
	for target.Buffered() > 0 {
		data, err := target.ReadByte()
		if err != nil {
			break
		}
		print("U,")
		print(now.UnixNano() / 1000)
		print(",")
		print(int(data))
		print("\n")
	}
}

func processCommands() {
	for host.Buffered() > 0 {
		data, err := host.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if cmdPos > 0 {
				runCommand()
			}
			cmdPos = 0
			continue
		}

		if data == ' ' || data == '\t' {
			continue
		}

		if cmdPos < len(cmdBuffer) {
			cmdBuffer[cmdPos] = data
			cmdPos++
		}
		// Overlong commands are truncated; the tail is ignored until newline.
	}
}

// Commands, one per line:
//
//	S          start sampling
//	P          pause sampling
//	E0 / E1    report every poll / edges only
//	I<micros>  set the poll interval
//	W<text>    write text plus newline to the target UART
func runCommand() {
	switch cmdBuffer[0] {
	case 'S':
		sampling = true
		haveLevel = false
	case 'P':
		sampling = false
	case 'E':
		if cmdPos > 1 {
			edgesOnly = cmdBuffer[1] == '1'
		}
	case 'I':
		us := parseInt(cmdBuffer[1:cmdPos])
		if us < MIN_SAMPLE_INTERVAL_US {
			us = MIN_SAMPLE_INTERVAL_US
		}
		if us > MAX_SAMPLE_INTERVAL_US {
			us = MAX_SAMPLE_INTERVAL_US
		}
		intervalUs = us
	case 'W':
		target.Write(cmdBuffer[1:cmdPos])
		target.WriteByte('\n')
	}
}

func parseInt(b []byte) int64 {
	var v int64
	for _, c := range b {
		if c < '0' || c > '9' {
			break
		}
		v = v*10 + int64(c-'0')
	}
	return v
}
