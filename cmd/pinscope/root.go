package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pinscope/pkg/config"
)

var (
	cfgFile string
	verbose bool

	log zerolog.Logger
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pinscope",
	Short: "Single-pin logic capture and serial line monitor",
	Long: `Pinscope drives a single-pin digital capture engine and a
line-oriented serial monitor: edge/level triggered sampling into RAM,
flash or a compressing codec, plus UART line reassembly with optional
half-duplex command arbitration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).
			With().Timestamp().Logger()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "pinscope.yaml", "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
