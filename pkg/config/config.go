package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Sampling limits. The upper rate assumes direct register polling on the
// target; anything above it is clamped, never rejected.
const (
	MinSampleRate     = 1000     // 1 kHz
	MaxSampleRate     = 10000000 // 10 MHz
	DefaultSampleRate = 1000000  // 1 MHz

	MaxBufferCapacity     = 16384
	DefaultBufferCapacity = 16384

	MaxPin     = 48
	DefaultPin = 1
)

// UART monitor defaults, carried over from the AtomS3 pin mapping.
const (
	DefaultBaud       = 115200
	DefaultRxPin      = 43
	DefaultTxPin      = 44
	DefaultMaxLineLen = 200
	DefaultIdleMs     = 1000
	DefaultMaxEntries = 1000
)

// TriggerMode selects the condition that arms sample recording.
type TriggerMode int

const (
	TriggerNone TriggerMode = iota
	TriggerRising
	TriggerFalling
	TriggerBoth
	TriggerHighLevel
	TriggerLowLevel
)

func (m TriggerMode) String() string {
	switch m {
	case TriggerNone:
		return "none"
	case TriggerRising:
		return "rising"
	case TriggerFalling:
		return "falling"
	case TriggerBoth:
		return "both"
	case TriggerHighLevel:
		return "high"
	case TriggerLowLevel:
		return "low"
	default:
		return fmt.Sprintf("trigger(%d)", int(m))
	}
}

// BufferMode selects the sink that receives accepted samples.
type BufferMode int

const (
	BufferRAM BufferMode = iota
	BufferFlash
	BufferStreaming
	BufferCompressed
)

func (m BufferMode) String() string {
	switch m {
	case BufferRAM:
		return "ram"
	case BufferFlash:
		return "flash"
	case BufferStreaming:
		return "streaming"
	case BufferCompressed:
		return "compressed"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// CompressionType selects the codec encoding.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionRLE
	CompressionDelta
	CompressionHybrid
)

func (t CompressionType) String() string {
	switch t {
	case CompressionNone:
		return "none"
	case CompressionRLE:
		return "rle"
	case CompressionDelta:
		return "delta"
	case CompressionHybrid:
		return "hybrid"
	default:
		return fmt.Sprintf("compression(%d)", int(t))
	}
}

// ParityMode mirrors the usual 0=None 1=Odd 2=Even serial convention.
type ParityMode int

const (
	ParityNone ParityMode = iota
	ParityOdd
	ParityEven
)

func (p ParityMode) String() string {
	switch p {
	case ParityOdd:
		return "O"
	case ParityEven:
		return "E"
	default:
		return "N"
	}
}

// DuplexMode selects whether the UART pins are driven full- or half-duplex.
type DuplexMode int

const (
	FullDuplex DuplexMode = iota
	HalfDuplex
)

func (d DuplexMode) String() string {
	if d == HalfDuplex {
		return "half"
	}
	return "full"
}

// Config is the application configuration.
type Config struct {
	Logic LogicConfig `yaml:"logic"`
	Uart  UartConfig  `yaml:"uart"`
	Flash FlashConfig `yaml:"flash"`
}

// LogicConfig configures the capture engine.
type LogicConfig struct {
	SampleRateHz      int         `yaml:"sample_rate_hz"`
	Pin               int         `yaml:"pin"`
	TriggerMode       TriggerMode `yaml:"trigger_mode"`
	BufferCapacity    int         `yaml:"buffer_capacity"`
	PreTriggerPercent int         `yaml:"pre_trigger_percent"`
}

// UartConfig configures the serial line monitor.
type UartConfig struct {
	Baud       int        `yaml:"baud"`
	DataBits   int        `yaml:"data_bits"`
	Parity     ParityMode `yaml:"parity"`
	StopBits   int        `yaml:"stop_bits"`
	RxPin      int        `yaml:"rx_pin"`
	TxPin      int        `yaml:"tx_pin"` // -1 disables the TX side
	Duplex     DuplexMode `yaml:"duplex"`
	MaxLineLen int        `yaml:"max_line_len"`
	IdleMs     int        `yaml:"idle_ms"`
	MaxEntries int        `yaml:"max_entries"`
}

// FlashConfig configures persistent storage. BudgetBytes is the single
// platform ceiling shared by the sample store and the UART line log; the two
// do not get independent guarantees.
type FlashConfig struct {
	Dir             string `yaml:"dir"`
	SampleFile      string `yaml:"sample_file"`
	UartFile        string `yaml:"uart_file"`
	BudgetBytes     int64  `yaml:"budget_bytes"`
	MaxFlashSamples int    `yaml:"max_flash_samples"`
	ChunkBytes      int    `yaml:"chunk_bytes"`
}

// Default returns a configuration with sensible values for the reference
// hardware (AtomS3-class part, GPIO1 probe, G43/G44 UART).
func Default() *Config {
	return &Config{
		Logic: LogicConfig{
			SampleRateHz:      DefaultSampleRate,
			Pin:               DefaultPin,
			TriggerMode:       TriggerNone,
			BufferCapacity:    DefaultBufferCapacity,
			PreTriggerPercent: 0,
		},
		Uart: UartConfig{
			Baud:       DefaultBaud,
			DataBits:   8,
			Parity:     ParityNone,
			StopBits:   1,
			RxPin:      DefaultRxPin,
			TxPin:      DefaultTxPin,
			Duplex:     FullDuplex,
			MaxLineLen: DefaultMaxLineLen,
			IdleMs:     DefaultIdleMs,
			MaxEntries: DefaultMaxEntries,
		},
		Flash: FlashConfig{
			Dir:             "data",
			SampleFile:      "capture.bin",
			UartFile:        "uart.log",
			BudgetBytes:     1 << 20,
			MaxFlashSamples: 65536,
			ChunkBytes:      512,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults fills zero-valued fields that have no meaningful zero.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Logic.SampleRateHz == 0 {
		c.Logic.SampleRateHz = def.Logic.SampleRateHz
	}
	if c.Logic.BufferCapacity == 0 {
		c.Logic.BufferCapacity = def.Logic.BufferCapacity
	}

	if c.Uart.Baud == 0 {
		c.Uart.Baud = def.Uart.Baud
	}
	if c.Uart.DataBits == 0 {
		c.Uart.DataBits = def.Uart.DataBits
	}
	if c.Uart.StopBits == 0 {
		c.Uart.StopBits = def.Uart.StopBits
	}
	if c.Uart.MaxLineLen == 0 {
		c.Uart.MaxLineLen = def.Uart.MaxLineLen
	}
	if c.Uart.IdleMs == 0 {
		c.Uart.IdleMs = def.Uart.IdleMs
	}
	if c.Uart.MaxEntries == 0 {
		c.Uart.MaxEntries = def.Uart.MaxEntries
	}

	if c.Flash.Dir == "" {
		c.Flash.Dir = def.Flash.Dir
	}
	if c.Flash.SampleFile == "" {
		c.Flash.SampleFile = def.Flash.SampleFile
	}
	if c.Flash.UartFile == "" {
		c.Flash.UartFile = def.Flash.UartFile
	}
	if c.Flash.BudgetBytes == 0 {
		c.Flash.BudgetBytes = def.Flash.BudgetBytes
	}
	if c.Flash.MaxFlashSamples == 0 {
		c.Flash.MaxFlashSamples = def.Flash.MaxFlashSamples
	}
	if c.Flash.ChunkBytes == 0 {
		c.Flash.ChunkBytes = def.Flash.ChunkBytes
	}
}
