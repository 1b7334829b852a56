package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"pinscope/pkg/analyzer"
	"pinscope/pkg/config"
	"pinscope/pkg/signal"
)

var (
	captureRate     int
	capturePin      int
	captureTrigger  string
	captureMode     string
	captureCompress string
	captureDuration time.Duration
	captureFormat   string
	captureOutput   string
	capturePeriod   time.Duration
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run a capture against a simulated square-wave source",
	Long: `Runs the capture engine on the host against a simulated wave on the
probe pin, then writes the result. On-target sampling lives in the
firmware build; this command exercises the same engine end to end.`,
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().IntVar(&captureRate, "rate", 0, "sample rate in Hz (defaults to the config)")
	captureCmd.Flags().IntVar(&capturePin, "pin", -1, "probe pin (defaults to the config)")
	captureCmd.Flags().StringVar(&captureTrigger, "trigger", "", "trigger mode: none|rising|falling|both|high|low")
	captureCmd.Flags().StringVar(&captureMode, "mode", "ram", "buffer mode: ram|flash|streaming")
	captureCmd.Flags().StringVar(&captureCompress, "compress", "", "compression: rle|delta|hybrid")
	captureCmd.Flags().DurationVar(&captureDuration, "duration", time.Second, "capture duration")
	captureCmd.Flags().StringVar(&captureFormat, "format", "csv", "output format: csv|json")
	captureCmd.Flags().StringVarP(&captureOutput, "output", "o", "-", "output file, - for stdout")
	captureCmd.Flags().DurationVar(&capturePeriod, "wave-period", time.Millisecond, "simulated wave period")
	rootCmd.AddCommand(captureCmd)
}

func parseTrigger(s string) (config.TriggerMode, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return config.TriggerNone, nil
	case "rising":
		return config.TriggerRising, nil
	case "falling":
		return config.TriggerFalling, nil
	case "both":
		return config.TriggerBoth, nil
	case "high":
		return config.TriggerHighLevel, nil
	case "low":
		return config.TriggerLowLevel, nil
	default:
		return config.TriggerNone, fmt.Errorf("unknown trigger mode %q", s)
	}
}

func parseBufferMode(s string) (config.BufferMode, error) {
	switch strings.ToLower(s) {
	case "", "ram":
		return config.BufferRAM, nil
	case "flash":
		return config.BufferFlash, nil
	case "streaming":
		return config.BufferStreaming, nil
	default:
		return config.BufferRAM, fmt.Errorf("unknown buffer mode %q", s)
	}
}

func parseCompression(s string) (config.CompressionType, error) {
	switch strings.ToLower(s) {
	case "":
		return config.CompressionNone, nil
	case "rle":
		return config.CompressionRLE, nil
	case "delta":
		return config.CompressionDelta, nil
	case "hybrid":
		return config.CompressionHybrid, nil
	default:
		return config.CompressionNone, fmt.Errorf("unknown compression type %q", s)
	}
}

func runCapture(cmd *cobra.Command, args []string) error {
	if captureRate > 0 {
		cfg.Logic.SampleRateHz = captureRate
	}
	if capturePin >= 0 {
		cfg.Logic.Pin = capturePin
	}
	trigger, err := parseTrigger(captureTrigger)
	if err != nil {
		return err
	}
	if captureTrigger != "" {
		cfg.Logic.TriggerMode = trigger
	}
	mode, err := parseBufferMode(captureMode)
	if err != nil {
		return err
	}
	compression, err := parseCompression(captureCompress)
	if err != nil {
		return err
	}

	clock := signal.SystemClock()
	pin := signal.NewWavePin(clock, uint64(capturePeriod.Microseconds()), 50, 0)

	a := analyzer.New(*cfg, pin, clock, afero.NewOsFs(), log)
	defer a.Close()

	if compression != config.CompressionNone {
		if err := a.EnableCompression(compression); err != nil {
			return err
		}
	} else if err := a.SetBufferMode(mode, 0); err != nil {
		return err
	}

	if err := a.StartCapture(); err != nil {
		return err
	}

	deadline := time.Now().Add(captureDuration)
	for time.Now().Before(deadline) && a.Status().Capturing {
		if err := a.Tick(); err != nil {
			log.Warn().Err(err).Msg("tick failed")
		}
	}
	if a.Status().Capturing {
		if err := a.StopCapture(); err != nil {
			return err
		}
	}

	st := a.Status()
	log.Info().
		Int("samples", st.BufferUsage).
		Stringer("mode", st.BufferMode).
		Float64("ratio", st.CompressionRatio).
		Int64("flash_bytes", st.FlashBytesUsed).
		Msg("capture finished")

	if st.BufferMode != config.BufferRAM {
		// Flash and compressed captures already live in their stores.
		return nil
	}

	out := os.Stdout
	if captureOutput != "-" {
		f, err := os.Create(captureOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if strings.EqualFold(captureFormat, "json") {
		return a.ExportJSON(out)
	}
	return a.ExportCSV(out)
}
