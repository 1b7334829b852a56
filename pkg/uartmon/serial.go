package uartmon

import (
	"context"
	"fmt"
	"sync"

	"go.bug.st/serial"

	"pinscope/pkg/config"
)

// DefaultRxBuffer is the capacity of the receive channel between the reader
// goroutine and the tick loop.
const DefaultRxBuffer = 4096

// Port represents an available serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(names))
	for _, name := range names {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// mode maps the UART settings onto a serial.Mode.
func mode(cfg config.UartConfig) *serial.Mode {
	parity := serial.NoParity
	switch cfg.Parity {
	case config.ParityOdd:
		parity = serial.OddParity
	case config.ParityEven:
		parity = serial.EvenParity
	}

	stop := serial.OneStopBit
	if cfg.StopBits == 2 {
		stop = serial.TwoStopBits
	}

	return &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: cfg.DataBits,
		Parity:   parity,
		StopBits: stop,
	}
}

// SerialPort adapts a host serial port to the monitor's non-blocking
// ByteSource and Transmitter. A reader goroutine feeds a bounded channel;
// ReadByte drains it without ever blocking the tick loop. When the channel
// is full the reader drops bytes and counts them.
type SerialPort struct {
	name    string
	bufSize int

	conn   serial.Port
	rx     chan byte
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc

	connected bool
	dropped   uint64
}

var (
	_ ByteSource  = (*SerialPort)(nil)
	_ Transmitter = (*SerialPort)(nil)
)

// NewSerialPort creates a SerialPort for the named device. bufSize is the
// receive channel capacity; zero means DefaultRxBuffer.
func NewSerialPort(name string, bufSize int) *SerialPort {
	if bufSize <= 0 {
		bufSize = DefaultRxBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &SerialPort{
		name:    name,
		bufSize: bufSize,
		rx:      make(chan byte, bufSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect opens the port with the given settings and starts the reader.
func (p *SerialPort) Connect(cfg config.UartConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		return fmt.Errorf("already connected")
	}

	conn, err := serial.Open(p.name, mode(cfg))
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", p.name, err)
	}

	p.conn = conn
	p.connected = true

	go p.readLoop(conn)

	return nil
}

// Close stops the reader and closes the port.
func (p *SerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil
	}

	p.cancel()

	if err := p.conn.Close(); err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	p.conn = nil
	p.connected = false
	return nil
}

// ReadByte returns the next buffered byte without blocking.
func (p *SerialPort) ReadByte() (byte, bool) {
	select {
	case b := <-p.rx:
		return b, true
	default:
		return 0, false
	}
}

// Transmit writes p to the port.
func (p *SerialPort) Transmit(data []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.connected {
		return fmt.Errorf("not connected")
	}
	if _, err := p.conn.Write(data); err != nil {
		return fmt.Errorf("failed to write serial port: %w", err)
	}
	return nil
}

// IsConnected reports whether the port is open.
func (p *SerialPort) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Dropped returns the number of received bytes discarded because the
// receive channel was full.
func (p *SerialPort) Dropped() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dropped
}

func (p *SerialPort) readLoop(conn serial.Port) {
	buf := make([]byte, 256)
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		for _, b := range buf[:n] {
			select {
			case p.rx <- b:
			default:
				p.mu.Lock()
				p.dropped++
				p.mu.Unlock()
			}
		}
	}
}
