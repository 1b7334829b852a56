package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"pinscope/pkg/analyzer"
	"pinscope/pkg/config"
	sig "pinscope/pkg/signal"
	"pinscope/pkg/uartmon"
)

var (
	monitorPort     string
	monitorBaud     int
	monitorFlashLog bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor a serial port, printing reassembled lines",
	Long: `Opens a serial port and runs the UART line monitor: bytes are
reassembled into timestamped lines on CR/LF, long lines are truncated
and idle partial lines are flushed. Edits to the config file are picked
up live.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVarP(&monitorPort, "port", "p", "", "serial port name (required)")
	monitorCmd.Flags().IntVarP(&monitorBaud, "baud", "b", 0, "baud rate (defaults to the config)")
	monitorCmd.Flags().BoolVar(&monitorFlashLog, "flash-log", false, "append entries to the flash log file instead of RAM")
	monitorCmd.MarkFlagRequired("port")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if monitorBaud > 0 {
		cfg.Uart.Baud = monitorBaud
	}

	port := uartmon.NewSerialPort(monitorPort, 0)
	if err := port.Connect(cfg.Uart); err != nil {
		return err
	}
	defer port.Close()

	clock := sig.SystemClock()
	a := analyzer.New(*cfg, sig.NewScriptPin(false), clock, afero.NewOsFs(), log)
	defer a.Close()

	a.AttachUart(port, port)
	if err := a.EnableUartMonitoring(); err != nil {
		return err
	}
	if monitorFlashLog {
		if err := a.EnableUartFlashLog(); err != nil {
			return err
		}
	}

	// Re-apply UART settings when the config file changes on disk.
	watcher, err := config.Watch(cfgFile,
		func(updated *config.Config) {
			if _, err := a.ConfigureUart(updated.Uart); err != nil {
				log.Warn().Err(err).Msg("failed to apply updated uart config")
				return
			}
			log.Info().Int("baud", updated.Uart.Baud).Msg("uart config reloaded")
		},
		func(err error) {
			log.Warn().Err(err).Msg("config watcher error")
		},
	)
	if err != nil {
		log.Warn().Err(err).Msg("config watching disabled")
	} else {
		defer watcher.Close()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	log.Info().Str("port", monitorPort).Int("baud", cfg.Uart.Baud).Msg("monitoring")

	seen := 0
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			st := a.Status()
			log.Info().
				Uint64("rx_bytes", st.UartRxBytes).
				Int("entries", st.UartEntries).
				Uint64("dropped", port.Dropped()).
				Msg("monitor stopped")
			return nil
		case <-ticker.C:
			if err := a.Tick(); err != nil {
				log.Warn().Err(err).Msg("tick failed")
			}
			entries := a.UartEntries()
			if len(entries) < seen {
				seen = len(entries) // log was compacted
			}
			for _, e := range entries[seen:] {
				mark := ""
				if e.Flag != uartmon.FlagNone {
					mark = " [" + e.Flag.String() + "]"
				}
				fmt.Printf("%8dms %s %s%s\n", e.TimeMs, e.Dir, e.Text, mark)
			}
			seen = len(entries)
		}
	}
}
