package uartmon

import (
	"fmt"

	"github.com/spf13/afero"

	"pinscope/pkg/config"
	"pinscope/pkg/flashstore"
)

// ByteSource yields received bytes without blocking. ok is false when no
// byte is available right now.
type ByteSource interface {
	ReadByte() (b byte, ok bool)
}

// Transmitter writes outbound bytes to the wire.
type Transmitter interface {
	Transmit(p []byte) error
}

// entryOverhead approximates the per-entry bookkeeping cost when reporting
// RAM usage of the log.
const entryOverhead = 32

// Monitor reassembles a serial byte stream into timestamped lines. A line
// is emitted on CR/LF, when it reaches the maximum length (truncated), or
// when bytes sit unterminated past the idle period (timeout). Entries land
// in a bounded RAM log, or stream to flash once EnableFlash is called.
type Monitor struct {
	maxLine    int
	idleMs     uint64
	maxEntries int

	source ByteSource
	tx     Transmitter

	pending      []byte
	pendingBytes int
	lastByteMs   uint64
	skipLF       bool

	entries []UartLogEntry
	flash   *flashstore.LineStore

	rxBytes      uint64
	txBytes      uint64
	totalEntries uint64
	compactions  int
}

// New creates a Monitor for the given UART settings. source and tx may be
// nil; ticking without a source is a no-op and Send without a transmitter
// fails.
func New(cfg config.UartConfig, source ByteSource, tx Transmitter) *Monitor {
	maxLine := cfg.MaxLineLen
	if maxLine <= 0 {
		maxLine = config.DefaultMaxLineLen
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = config.DefaultMaxEntries
	}
	idle := cfg.IdleMs
	if idle <= 0 {
		idle = config.DefaultIdleMs
	}

	return &Monitor{
		maxLine:    maxLine,
		idleMs:     uint64(idle),
		maxEntries: maxEntries,
		source:     source,
		tx:         tx,
	}
}

// SetSource swaps the receive byte source on a live monitor, leaving the
// log and any partial line intact.
func (m *Monitor) SetSource(src ByteSource) { m.source = src }

// Tick drains every byte the source has buffered, then checks the idle
// timeout. Never blocks.
func (m *Monitor) Tick(nowMs uint64) error {
	if m.source != nil {
		for {
			b, ok := m.source.ReadByte()
			if !ok {
				break
			}
			m.rxBytes++
			m.lastByteMs = nowMs

			if m.skipLF && b == '\n' {
				m.skipLF = false
				continue
			}
			m.skipLF = false

			if b == '\r' || b == '\n' {
				m.skipLF = b == '\r'
				if m.pendingBytes == 0 {
					continue
				}
				if err := m.emit(nowMs, DirRX, FlagNone); err != nil {
					return err
				}
				continue
			}

			m.pending = appendEscaped(m.pending, b)
			m.pendingBytes++
			if m.pendingBytes >= m.maxLine {
				if err := m.emit(nowMs, DirRX, FlagTruncated); err != nil {
					return err
				}
			}
		}
	}

	if m.pendingBytes > 0 && nowMs-m.lastByteMs >= m.idleMs {
		return m.emit(nowMs, DirRX, FlagTimeout)
	}
	return nil
}

// Send transmits p and logs it as a TX entry.
func (m *Monitor) Send(nowMs uint64, p []byte) error {
	if m.tx == nil {
		return fmt.Errorf("no transmitter attached")
	}
	if err := m.tx.Transmit(p); err != nil {
		return fmt.Errorf("failed to transmit: %w", err)
	}
	m.txBytes += uint64(len(p))

	var text []byte
	for _, b := range p {
		text = appendEscaped(text, b)
	}
	return m.push(UartLogEntry{TimeMs: nowMs, Dir: DirTX, Text: string(text)})
}

// appendEscaped appends b as itself when printable, or as an inline hex
// escape so no byte is ever dropped from the log text.
func appendEscaped(dst []byte, b byte) []byte {
	if b >= 0x20 && b <= 0x7E {
		return append(dst, b)
	}
	return append(dst, fmt.Sprintf("[0x%02X]", b)...)
}

func (m *Monitor) emit(nowMs uint64, dir Direction, flag Flag) error {
	e := UartLogEntry{TimeMs: nowMs, Dir: dir, Text: string(m.pending), Flag: flag}
	m.pending = m.pending[:0]
	m.pendingBytes = 0
	return m.push(e)
}

func (m *Monitor) push(e UartLogEntry) error {
	m.totalEntries++
	if m.flash != nil {
		if err := m.flash.Append(formatEntry(e)); err != nil {
			return fmt.Errorf("failed to log uart entry to flash: %w", err)
		}
		return nil
	}
	m.entries = append(m.entries, e)
	if len(m.entries) > m.maxEntries {
		m.compact()
	}
	return nil
}

// compact drops the oldest fifth of the RAM log in one pass.
func (m *Monitor) compact() int {
	drop := len(m.entries) / 5
	if drop < 1 {
		drop = 1
	}
	n := copy(m.entries, m.entries[drop:])
	m.entries = m.entries[:n]
	m.compactions++
	return drop
}

// CompactNow forces a compaction pass and reports how many entries were
// dropped. Zero when the RAM log is empty.
func (m *Monitor) CompactNow() int {
	if len(m.entries) == 0 {
		return 0
	}
	return m.compact()
}

// EnableFlash switches the log sink to a fresh flash file, migrating the
// current RAM entries into it. On any migration failure the file is removed
// and the RAM log is left untouched.
func (m *Monitor) EnableFlash(fs afero.Fs, path string, budget *flashstore.Budget) error {
	if m.flash != nil {
		return nil
	}

	store, err := flashstore.OpenLineStore(fs, path, budget)
	if err != nil {
		return fmt.Errorf("failed to enable uart flash log: %w", err)
	}
	for _, e := range m.entries {
		if err := store.Append(formatEntry(e)); err != nil {
			store.Clear()
			return fmt.Errorf("failed to migrate uart log to flash: %w", err)
		}
	}

	m.flash = store
	m.entries = nil
	return nil
}

// DisableFlash migrates the flash log back into RAM, keeping the newest
// entries up to the RAM capacity, then removes the flash file.
func (m *Monitor) DisableFlash() error {
	if m.flash == nil {
		return nil
	}

	lines, err := m.flash.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read uart flash log: %w", err)
	}
	if len(lines) > m.maxEntries {
		lines = lines[len(lines)-m.maxEntries:]
	}

	entries := make([]UartLogEntry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, parseEntry(line))
	}

	if err := m.flash.Clear(); err != nil {
		return fmt.Errorf("failed to clear uart flash log: %w", err)
	}
	m.flash = nil
	m.entries = entries
	return nil
}

// DetachFlash hands the flash sink to the caller, leaving it open, so the
// log survives a monitor rebuild. Nil when flash is inactive.
func (m *Monitor) DetachFlash() *flashstore.LineStore {
	store := m.flash
	m.flash = nil
	return store
}

// AttachFlash resumes logging to an already open flash sink, appending any
// RAM entries to it first. On a migration failure the sink stays detached
// and the RAM log is left untouched.
func (m *Monitor) AttachFlash(store *flashstore.LineStore) error {
	if store == nil || m.flash != nil {
		return nil
	}
	for _, e := range m.entries {
		if err := store.Append(formatEntry(e)); err != nil {
			return fmt.Errorf("failed to resume uart flash log: %w", err)
		}
	}
	m.flash = store
	m.entries = nil
	return nil
}

// Restore seeds the RAM log with entries carried across a monitor rebuild,
// keeping the newest up to the RAM capacity.
func (m *Monitor) Restore(entries []UartLogEntry) {
	if len(entries) > m.maxEntries {
		entries = entries[len(entries)-m.maxEntries:]
	}
	m.entries = append([]UartLogEntry(nil), entries...)
}

// FlashActive reports whether entries currently go to flash.
func (m *Monitor) FlashActive() bool { return m.flash != nil }

// FlashBytes returns the bytes the flash log occupies, zero when inactive.
func (m *Monitor) FlashBytes() int64 {
	if m.flash == nil {
		return 0
	}
	return m.flash.BytesUsed()
}

// Entries returns the RAM log, oldest first. Empty while flash is active.
func (m *Monitor) Entries() []UartLogEntry { return m.entries }

// EntryCount returns the number of entries in the active sink.
func (m *Monitor) EntryCount() int {
	if m.flash != nil {
		return m.flash.Count()
	}
	return len(m.entries)
}

// TotalEntries returns the number of entries emitted since creation,
// including ones since compacted away.
func (m *Monitor) TotalEntries() uint64 { return m.totalEntries }

// RxBytes returns the number of bytes received.
func (m *Monitor) RxBytes() uint64 { return m.rxBytes }

// TxBytes returns the number of bytes transmitted.
func (m *Monitor) TxBytes() uint64 { return m.txBytes }

// Compactions returns how many compaction passes have run.
func (m *Monitor) Compactions() int { return m.compactions }

// MemoryUsage estimates the RAM log footprint in bytes.
func (m *Monitor) MemoryUsage() int {
	total := 0
	for _, e := range m.entries {
		total += len(e.Text) + entryOverhead
	}
	return total
}

// Clear empties the RAM log. The flash log, if active, is untouched; use
// DisableFlash or the store's own Clear for that.
func (m *Monitor) Clear() {
	m.entries = nil
	m.pending = m.pending[:0]
	m.pendingBytes = 0
}
