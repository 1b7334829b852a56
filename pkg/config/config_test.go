package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, DefaultSampleRate, cfg.Logic.SampleRateHz)
	assert.Equal(t, DefaultPin, cfg.Logic.Pin)
	assert.Equal(t, TriggerNone, cfg.Logic.TriggerMode)
	assert.Equal(t, DefaultBufferCapacity, cfg.Logic.BufferCapacity)
	assert.Equal(t, DefaultBaud, cfg.Uart.Baud)
	assert.Equal(t, DefaultRxPin, cfg.Uart.RxPin)
	assert.Equal(t, DefaultTxPin, cfg.Uart.TxPin)
	assert.Equal(t, FullDuplex, cfg.Uart.Duplex)
	assert.Equal(t, int64(1<<20), cfg.Flash.BudgetBytes)
	assert.Equal(t, 512, cfg.Flash.ChunkBytes)
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, DefaultSampleRate, cfg.Logic.SampleRateHz)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
logic:
  sample_rate_hz: 500000
  pin: 2
  trigger_mode: 1
  buffer_capacity: 4096

uart:
  baud: 9600
  rx_pin: 2
  tx_pin: -1
  duplex: 1

flash:
  dir: "storage"
  budget_bytes: 524288
`
	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)

	assert.Equal(t, 500000, cfg.Logic.SampleRateHz)
	assert.Equal(t, 2, cfg.Logic.Pin)
	assert.Equal(t, TriggerRising, cfg.Logic.TriggerMode)
	assert.Equal(t, 4096, cfg.Logic.BufferCapacity)
	assert.Equal(t, 9600, cfg.Uart.Baud)
	assert.Equal(t, -1, cfg.Uart.TxPin)
	assert.Equal(t, HalfDuplex, cfg.Uart.Duplex)
	assert.Equal(t, "storage", cfg.Flash.Dir)
	assert.Equal(t, int64(524288), cfg.Flash.BudgetBytes)

	// Fields the file omits fall back to defaults.
	assert.Equal(t, 8, cfg.Uart.DataBits)
	assert.Equal(t, DefaultMaxLineLen, cfg.Uart.MaxLineLen)
	assert.Equal(t, 65536, cfg.Flash.MaxFlashSamples)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("logic: [not a mapping")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	_, err = Load(tmpfile.Name())
	assert.Error(t, err)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Logic.SampleRateHz = 250000
	cfg.Logic.TriggerMode = TriggerBoth
	cfg.Uart.Baud = 57600
	cfg.Uart.Duplex = HalfDuplex
	cfg.Flash.MaxFlashSamples = 1024

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLogicClamp(t *testing.T) {
	tests := []struct {
		name     string
		in       LogicConfig
		want     LogicConfig
		wantAdjs int
	}{
		{
			name:     "in range untouched",
			in:       LogicConfig{SampleRateHz: 1000000, Pin: 1, TriggerMode: TriggerRising, BufferCapacity: 8192, PreTriggerPercent: 50},
			want:     LogicConfig{SampleRateHz: 1000000, Pin: 1, TriggerMode: TriggerRising, BufferCapacity: 8192, PreTriggerPercent: 50},
			wantAdjs: 0,
		},
		{
			name:     "rate too high",
			in:       LogicConfig{SampleRateHz: 99999999, Pin: 1, BufferCapacity: 100},
			want:     LogicConfig{SampleRateHz: MaxSampleRate, Pin: 1, BufferCapacity: 100},
			wantAdjs: 1,
		},
		{
			name:     "rate too low",
			in:       LogicConfig{SampleRateHz: 10, Pin: 1, BufferCapacity: 100},
			want:     LogicConfig{SampleRateHz: MinSampleRate, Pin: 1, BufferCapacity: 100},
			wantAdjs: 1,
		},
		{
			name:     "everything out of range",
			in:       LogicConfig{SampleRateHz: -5, Pin: 500, TriggerMode: TriggerMode(42), BufferCapacity: 1 << 24, PreTriggerPercent: 150},
			want:     LogicConfig{SampleRateHz: MinSampleRate, Pin: MaxPin, TriggerMode: TriggerNone, BufferCapacity: MaxBufferCapacity, PreTriggerPercent: 100},
			wantAdjs: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adjs := tt.in.Clamp()
			assert.Equal(t, tt.want, tt.in)
			assert.Len(t, adjs, tt.wantAdjs)
		})
	}
}

func TestUartClamp(t *testing.T) {
	tests := []struct {
		name     string
		in       UartConfig
		check    func(t *testing.T, c UartConfig)
		wantAdjs int
	}{
		{
			name: "in range untouched",
			in:   UartConfig{Baud: 115200, DataBits: 8, StopBits: 1, RxPin: 43, TxPin: 44, MaxLineLen: 200, IdleMs: 1000, MaxEntries: 1000},
			check: func(t *testing.T, c UartConfig) {
				assert.Equal(t, 115200, c.Baud)
			},
			wantAdjs: 0,
		},
		{
			name: "tx pin disabled stays disabled",
			in:   UartConfig{Baud: 115200, DataBits: 8, StopBits: 1, RxPin: 43, TxPin: -1, MaxLineLen: 200, IdleMs: 1000, MaxEntries: 1000},
			check: func(t *testing.T, c UartConfig) {
				assert.Equal(t, -1, c.TxPin)
			},
			wantAdjs: 0,
		},
		{
			name: "baud and pins clamped",
			in:   UartConfig{Baud: 50, DataBits: 9, StopBits: 3, RxPin: 99, TxPin: 99, Parity: ParityMode(7), MaxLineLen: 200, IdleMs: 1000, MaxEntries: 1000},
			check: func(t *testing.T, c UartConfig) {
				assert.Equal(t, 300, c.Baud)
				assert.Equal(t, 8, c.DataBits)
				assert.Equal(t, 2, c.StopBits)
				assert.Equal(t, MaxPin, c.RxPin)
				assert.Equal(t, MaxPin, c.TxPin)
				assert.Equal(t, ParityNone, c.Parity)
			},
			wantAdjs: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adjs := tt.in.Clamp()
			tt.check(t, tt.in)
			assert.Len(t, adjs, tt.wantAdjs)
		})
	}
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "rising", TriggerRising.String())
	assert.Equal(t, "none", TriggerNone.String())
	assert.Equal(t, "flash", BufferFlash.String())
	assert.Equal(t, "hybrid", CompressionHybrid.String())
	assert.Equal(t, "half", HalfDuplex.String())
	assert.Equal(t, "E", ParityEven.String())
}
