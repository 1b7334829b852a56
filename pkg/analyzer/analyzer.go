// Package analyzer is the capture engine: a single cooperative tick drives
// the trigger, the pin sampler and the buffer controller, and on the side
// the UART line monitor and the half-duplex arbiter. Nothing in the tick
// path blocks.
package analyzer

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"pinscope/pkg/bus"
	"pinscope/pkg/config"
	"pinscope/pkg/flashstore"
	"pinscope/pkg/signal"
	"pinscope/pkg/uartmon"
)

var (
	// ErrCapturing is returned when an operation needs a stopped engine.
	ErrCapturing = errors.New("analyzer: capture in progress")
	// ErrNotCapturing is returned by StopCapture when nothing runs.
	ErrNotCapturing = errors.New("analyzer: no capture in progress")
	// ErrUartDisabled is returned by UART operations while monitoring is
	// off.
	ErrUartDisabled = errors.New("analyzer: uart monitoring disabled")
	// ErrIncompatiblePins rejects dual mode when the UART receive pin and
	// the logic probe pin differ.
	ErrIncompatiblePins = errors.New("analyzer: uart rx pin does not match logic pin")
)

// maxEvents bounds the in-RAM event log.
const maxEvents = 100

// Event is one entry of the engine's bounded event log.
type Event struct {
	TimeMs  uint64 `json:"time_ms"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Status is the read-only surface a UI or CLI polls.
type Status struct {
	Capturing        bool
	SampleRateHz     int
	TriggerMode      config.TriggerMode
	Armed            bool
	BufferMode       config.BufferMode
	BufferUsage      int
	BufferCapacity   int
	BufferFull       bool
	Compression      config.CompressionType
	CompressionRatio float64
	DroppedRecords   int
	FlashBytesUsed   int64
	UartEnabled      bool
	UartRxBytes      uint64
	UartTxBytes      uint64
	UartEntries      int
	UartFlashActive  bool
	HalfDuplex       bool
	BusState         bus.State
	BusBusy          bool
	DualMode         bool
}

// Analyzer owns the capture configuration and every runtime piece. It is
// single-threaded: all methods including Tick must be called from one
// goroutine.
type Analyzer struct {
	log    zerolog.Logger
	cfg    config.Config
	fs     afero.Fs
	budget *flashstore.Budget

	clock signal.Clock
	pin   signal.PinReader
	armer *signal.Armer
	ctrl  *controller

	uartSource uartmon.ByteSource
	uartTx     uartmon.Transmitter
	monitor    *uartmon.Monitor
	arbiter    *bus.Arbiter

	// Log state carried across DisableUartMonitoring so entries are only
	// ever lost to an explicit clear.
	uartBacklog []uartmon.UartLogEntry
	uartFlash   *flashstore.LineStore

	events []Event

	capturing  bool
	dualMode   bool
	interval   uint64
	nextSample uint64
}

// New creates an Analyzer. The logic and UART settings are clamped into
// range, never rejected; every adjustment is logged.
func New(cfg config.Config, pin signal.PinReader, clock signal.Clock, fs afero.Fs, log zerolog.Logger) *Analyzer {
	a := &Analyzer{
		log:    log,
		cfg:    cfg,
		fs:     fs,
		budget: flashstore.NewBudget(cfg.Flash.BudgetBytes),
		clock:  clock,
		pin:    pin,
	}
	a.applyLogic(cfg.Logic)
	a.applyUart(cfg.Uart)
	a.ctrl = newController(log, fs, a.budget, cfg.Flash, a.cfg.Logic)
	return a
}

// AttachUart sets the byte source and transmitter the monitor will use. A
// running monitor is rerouted to the new source immediately; the
// transmitter change takes effect on the next rebuild.
func (a *Analyzer) AttachUart(source uartmon.ByteSource, tx uartmon.Transmitter) {
	a.uartSource = source
	a.uartTx = tx
	if a.monitor != nil {
		a.monitor.SetSource(source)
	}
}

func (a *Analyzer) applyLogic(lc config.LogicConfig) []config.Adjustment {
	adjustments := lc.Clamp()
	for _, adj := range adjustments {
		a.log.Warn().
			Str("field", adj.Field).
			Int64("requested", adj.Requested).
			Int64("applied", adj.Applied).
			Msg("logic setting clamped")
	}
	a.cfg.Logic = lc
	a.armer = signal.NewArmer(lc.TriggerMode)
	a.interval = signal.Interval(lc.SampleRateHz)
	return adjustments
}

func (a *Analyzer) applyUart(uc config.UartConfig) []config.Adjustment {
	adjustments := uc.Clamp()
	for _, adj := range adjustments {
		a.log.Warn().
			Str("field", adj.Field).
			Int64("requested", adj.Requested).
			Int64("applied", adj.Applied).
			Msg("uart setting clamped")
	}
	a.cfg.Uart = uc
	return adjustments
}

// addEvent appends to the bounded event log, evicting the oldest entry.
func (a *Analyzer) addEvent(level, msg string) {
	a.events = append(a.events, Event{
		TimeMs:  a.clock() / 1000,
		Level:   level,
		Message: msg,
	})
	if len(a.events) > maxEvents {
		a.events = a.events[1:]
	}
}

// Tick runs one engine cycle: at the sampling cadence it evaluates the
// trigger and records a sample, and independently it drains the UART
// monitor and advances the bus arbiter. Errors are reported but never stop
// the engine; the capture halts by policy, not by panic.
func (a *Analyzer) Tick() error {
	now := a.clock()
	var firstErr error

	if a.capturing && now >= a.nextSample {
		// Free running cadence: the next deadline is measured from now,
		// so drift under load accumulates rather than being corrected.
		a.nextSample = now + a.interval

		level := a.pin.ReadLevel()
		if a.armer.Observe(level) {
			a.log.Debug().Uint64("time_us", now).Msg("trigger fired")
			a.addEvent("info", "trigger fired")
		}
		if a.armer.Armed() {
			stop, err := a.ctrl.record(signal.Sample{Time: now, Level: level})
			if err != nil {
				firstErr = err
				a.log.Warn().Err(err).Msg("sample store failed, stopping capture")
				a.addEvent("error", "capture stopped: "+err.Error())
			}
			if stop {
				a.haltCapture("buffer full")
			}
		} else {
			a.ctrl.recordPre(signal.Sample{Time: now, Level: level}, a.preTriggerLimit())
		}
	}

	nowMs := now / 1000
	if a.monitor != nil {
		if err := a.monitor.Tick(nowMs); err != nil && firstErr == nil {
			firstErr = err
			a.log.Warn().Err(err).Msg("uart monitor tick failed")
		}
	}
	if a.arbiter != nil {
		if err := a.arbiter.Tick(nowMs); err != nil && firstErr == nil {
			firstErr = err
			a.log.Warn().Err(err).Msg("bus arbiter tick failed")
		}
	}
	return firstErr
}

func (a *Analyzer) preTriggerLimit() int {
	pct := a.cfg.Logic.PreTriggerPercent
	if pct <= 0 {
		return 0
	}
	return a.cfg.Logic.BufferCapacity * pct / 100
}

func (a *Analyzer) haltCapture(reason string) {
	a.capturing = false
	if err := a.ctrl.flush(); err != nil {
		a.log.Warn().Err(err).Msg("failed to flush on capture halt")
	}
	a.log.Info().Str("reason", reason).Int("samples", a.ctrl.usage()).Msg("capture stopped")
	a.addEvent("info", "capture stopped: "+reason)
}

// StartCapture clears the buffer, re-arms the trigger and begins sampling.
func (a *Analyzer) StartCapture() error {
	if a.capturing {
		return ErrCapturing
	}
	if err := a.ctrl.clear(); err != nil {
		return err
	}
	a.armer.Reset()
	a.nextSample = a.clock()
	a.capturing = true
	a.log.Info().
		Int("rate_hz", a.cfg.Logic.SampleRateHz).
		Int("pin", a.cfg.Logic.Pin).
		Stringer("trigger", a.cfg.Logic.TriggerMode).
		Stringer("mode", a.ctrl.mode).
		Msg("capture started")
	a.addEvent("info", "capture started")
	return nil
}

// StopCapture halts sampling and flushes any buffered flash data before
// returning, so an explicit stop never loses samples.
func (a *Analyzer) StopCapture() error {
	if !a.capturing {
		return ErrNotCapturing
	}
	a.haltCapture("stop requested")
	return nil
}

// ClearBuffer empties the active store. Safe at any point; in flash modes
// it starts a fresh session.
func (a *Analyzer) ClearBuffer() error {
	if err := a.ctrl.clear(); err != nil {
		return err
	}
	a.armer.Reset()
	a.addEvent("info", "buffer cleared")
	return nil
}

// ConfigureLogic applies new capture settings, clamping out-of-range values
// and reporting what was adjusted. A running capture is stopped first.
func (a *Analyzer) ConfigureLogic(lc config.LogicConfig) ([]config.Adjustment, error) {
	if a.capturing {
		a.haltCapture("reconfigured")
	}
	adjustments := a.applyLogic(lc)
	a.ctrl.reconfigure(a.cfg.Logic)
	a.addEvent("info", "logic reconfigured")
	return adjustments, nil
}

// SetBufferMode switches the backing store. In-flight capture data of the
// previous store is discarded. maxSamples overrides the flash sample cap
// when positive; zero keeps the configured value.
func (a *Analyzer) SetBufferMode(mode config.BufferMode, maxSamples int) error {
	if a.capturing {
		a.haltCapture("buffer mode changed")
	}
	if maxSamples > 0 {
		a.cfg.Flash.MaxFlashSamples = maxSamples
		a.ctrl.flash.MaxFlashSamples = maxSamples
	}
	a.ctrl.setMode(mode)
	a.addEvent("info", "buffer mode set to "+a.ctrl.mode.String())
	return nil
}

// EnableCompression selects the codec encoding and enters compressed mode.
// CompressionNone returns the engine to the plain RAM buffer.
func (a *Analyzer) EnableCompression(typ config.CompressionType) error {
	if a.capturing {
		a.haltCapture("compression changed")
	}
	a.ctrl.setCompression(typ)
	a.addEvent("info", "compression set to "+typ.String())
	return nil
}

// ConfigureUart applies new serial settings. An active monitor is rebuilt
// with the new settings; its entries and its flash sink carry over.
func (a *Analyzer) ConfigureUart(uc config.UartConfig) ([]config.Adjustment, error) {
	adjustments := a.applyUart(uc)
	if a.monitor != nil {
		flash := a.monitor.DetachFlash()
		backlog := a.monitor.Entries()
		a.monitor = uartmon.New(a.cfg.Uart, a.uartSource, a.uartTx)
		if flash != nil {
			if err := a.monitor.AttachFlash(flash); err != nil {
				a.log.Warn().Err(err).Msg("failed to carry uart flash log, keeping file")
				flash.Close()
			}
		} else {
			a.monitor.Restore(backlog)
		}
		a.arbiter = bus.New(a.monitor, a.cfg.Uart.Duplex, 0)
	}
	a.addEvent("info", "uart reconfigured")
	return adjustments, nil
}

// EnableUartMonitoring starts the line monitor and the bus arbiter. A
// no-op when already enabled.
func (a *Analyzer) EnableUartMonitoring() error {
	if a.monitor != nil {
		return nil
	}
	a.monitor = uartmon.New(a.cfg.Uart, a.uartSource, a.uartTx)
	a.arbiter = bus.New(a.monitor, a.cfg.Uart.Duplex, 0)
	if a.uartFlash != nil {
		if err := a.monitor.AttachFlash(a.uartFlash); err != nil {
			a.log.Warn().Err(err).Msg("failed to resume uart flash log, keeping file")
			a.uartFlash.Close()
		}
		a.uartFlash = nil
	} else {
		a.monitor.Restore(a.uartBacklog)
	}
	a.uartBacklog = nil
	a.log.Info().
		Int("baud", a.cfg.Uart.Baud).
		Int("rx_pin", a.cfg.Uart.RxPin).
		Stringer("duplex", a.cfg.Uart.Duplex).
		Msg("uart monitoring enabled")
	a.addEvent("info", "uart monitoring enabled")
	return nil
}

// DisableUartMonitoring stops the monitor. The log is kept: RAM entries are
// carried to the next enable, and an active flash log keeps its file and
// resumes then. Only ClearUartLog discards entries.
func (a *Analyzer) DisableUartMonitoring() error {
	if a.monitor == nil {
		return nil
	}
	a.uartFlash = a.monitor.DetachFlash()
	a.uartBacklog = a.monitor.Entries()
	a.monitor = nil
	a.arbiter = nil
	a.addEvent("info", "uart monitoring disabled")
	return nil
}

// SendHalfDuplexCommand queues one outbound command on the shared bus.
func (a *Analyzer) SendHalfDuplexCommand(cmd string) (bus.Status, error) {
	if a.arbiter == nil {
		return bus.StatusError, ErrUartDisabled
	}
	status, err := a.arbiter.Enqueue([]byte(cmd))
	if status == bus.StatusAccepted {
		a.addEvent("info", "half-duplex command queued")
	}
	return status, err
}

// EnableDualMode time-shares the probe pin between capture and the UART
// monitor. The sole compatibility gate is pin identity: the UART receive
// pin must equal the logic pin. A mismatch is rejected with no partial
// effect.
func (a *Analyzer) EnableDualMode(enable bool) error {
	if !enable {
		a.dualMode = false
		a.addEvent("info", "dual mode disabled")
		return nil
	}
	if a.cfg.Uart.RxPin != a.cfg.Logic.Pin {
		a.log.Warn().
			Int("rx_pin", a.cfg.Uart.RxPin).
			Int("logic_pin", a.cfg.Logic.Pin).
			Msg("dual mode rejected")
		return ErrIncompatiblePins
	}
	if err := a.EnableUartMonitoring(); err != nil {
		return err
	}
	a.dualMode = true
	a.addEvent("info", "dual mode enabled")
	return nil
}

// EnableUartFlashLog reroutes the UART log to a fresh flash file, migrating
// existing RAM entries.
func (a *Analyzer) EnableUartFlashLog() error {
	if a.monitor == nil {
		return ErrUartDisabled
	}
	path := filepath.Join(a.cfg.Flash.Dir, a.cfg.Flash.UartFile)
	if err := a.monitor.EnableFlash(a.fs, path, a.budget); err != nil {
		return err
	}
	a.addEvent("info", "uart flash log enabled")
	return nil
}

// DisableUartFlashLog migrates the flash log back into RAM.
func (a *Analyzer) DisableUartFlashLog() error {
	if a.monitor == nil {
		return ErrUartDisabled
	}
	if err := a.monitor.DisableFlash(); err != nil {
		return err
	}
	a.addEvent("info", "uart flash log disabled")
	return nil
}

// ClearUartLog discards every UART log entry, the one path that does. With
// the flash log active its file is deleted and a fresh one started.
func (a *Analyzer) ClearUartLog() error {
	if a.monitor == nil {
		return ErrUartDisabled
	}
	a.monitor.Clear()
	if store := a.monitor.DetachFlash(); store != nil {
		if err := store.Clear(); err != nil {
			return err
		}
		path := filepath.Join(a.cfg.Flash.Dir, a.cfg.Flash.UartFile)
		if err := a.monitor.EnableFlash(a.fs, path, a.budget); err != nil {
			return err
		}
	}
	a.addEvent("info", "uart log cleared")
	return nil
}

// CompactUartLog forces a RAM log compaction and returns how many entries
// were dropped.
func (a *Analyzer) CompactUartLog() (int, error) {
	if a.monitor == nil {
		return 0, ErrUartDisabled
	}
	return a.monitor.CompactNow(), nil
}

// UartEntries returns the monitor's RAM log, or nil while disabled.
func (a *Analyzer) UartEntries() []uartmon.UartLogEntry {
	if a.monitor == nil {
		return nil
	}
	return a.monitor.Entries()
}

// EventLog returns the bounded engine event log, oldest first.
func (a *Analyzer) EventLog() []Event { return a.events }

// Config returns a copy of the active configuration.
func (a *Analyzer) Config() config.Config { return a.cfg }

// SaveConfig persists the active configuration.
func (a *Analyzer) SaveConfig(path string) error {
	if err := a.cfg.Save(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// Status returns the read-only query surface.
func (a *Analyzer) Status() Status {
	s := Status{
		Capturing:        a.capturing,
		SampleRateHz:     a.cfg.Logic.SampleRateHz,
		TriggerMode:      a.cfg.Logic.TriggerMode,
		Armed:            a.armer.Armed(),
		BufferMode:       a.ctrl.mode,
		BufferUsage:      a.ctrl.usage(),
		BufferCapacity:   a.ctrl.bufferCapacity(),
		BufferFull:       a.ctrl.full(),
		Compression:      a.ctrl.compression,
		CompressionRatio: a.ctrl.ratio(),
		DroppedRecords:   a.ctrl.droppedRecords(),
		FlashBytesUsed:   a.ctrl.flashBytes(),
		HalfDuplex:       a.cfg.Uart.Duplex == config.HalfDuplex,
		DualMode:         a.dualMode,
	}
	if a.ctrl.mode != config.BufferCompressed {
		s.Compression = config.CompressionNone
	}
	if a.monitor != nil {
		s.UartEnabled = true
		s.UartRxBytes = a.monitor.RxBytes()
		s.UartTxBytes = a.monitor.TxBytes()
		s.UartEntries = a.monitor.EntryCount()
		s.UartFlashActive = a.monitor.FlashActive()
		s.FlashBytesUsed += a.monitor.FlashBytes()
	}
	if a.arbiter != nil {
		s.BusState = a.arbiter.State()
		s.BusBusy = a.arbiter.Busy()
	}
	return s
}

// Close shuts the engine down, flushing and closing every flash session.
// Files stay on flash.
func (a *Analyzer) Close() error {
	if a.capturing {
		a.haltCapture("shutdown")
	}
	var firstErr error
	if a.monitor != nil {
		a.uartFlash = a.monitor.DetachFlash()
	}
	if a.uartFlash != nil {
		if err := a.uartFlash.Close(); err != nil {
			firstErr = err
		}
		a.uartFlash = nil
	}
	if err := a.ctrl.shutdown(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
