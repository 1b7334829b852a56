package flashstore

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// LineStore is the flash sink for the UART line log: newline-terminated
// text lines, one physical append per entry. Unlike SampleStore there is no
// chunk batching here; losing at most one line on power loss is the
// durability trade-off the monitor wants.
type LineStore struct {
	fs     afero.Fs
	path   string
	budget *Budget

	file   afero.File
	count  int
	bytes  int64
	closed bool
}

// OpenLineStore creates a fresh (truncated) line log file. Every
// flash-enable starts a new file.
func OpenLineStore(fs afero.Fs, path string, budget *Budget) (*LineStore, error) {
	if budget == nil {
		budget = NewBudget(0)
	}

	file, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open uart log %s: %w", path, err)
	}

	return &LineStore{
		fs:     fs,
		path:   path,
		budget: budget,
		file:   file,
	}, nil
}

// Append writes one entry as its own newline-terminated line.
func (l *LineStore) Append(line string) error {
	if l.closed {
		return ErrClosed
	}

	n := int64(len(line) + 1)
	if err := l.budget.Reserve(n); err != nil {
		return err
	}
	if _, err := l.file.Write(append([]byte(line), '\n')); err != nil {
		l.budget.Release(n)
		return fmt.Errorf("failed to append uart log line: %w", err)
	}
	l.count++
	l.bytes += n
	return nil
}

// ReadAll returns every line in the log, oldest first. Used when migrating
// the flash log back into RAM.
func (l *LineStore) ReadAll() ([]string, error) {
	if l.closed {
		return nil, ErrClosed
	}

	if _, err := l.file.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("failed to rewind uart log: %w", err)
	}

	var lines []string
	sc := bufio.NewScanner(l.file)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read uart log: %w", err)
	}

	// Restore the append position for subsequent writes.
	if _, err := l.file.Seek(0, 2); err != nil {
		return nil, fmt.Errorf("failed to seek uart log: %w", err)
	}
	return lines, nil
}

// Clear closes the store, deletes the file and returns its bytes to the
// shared budget.
func (l *LineStore) Clear() error {
	if !l.closed {
		l.closed = true
		l.file.Close()
	}
	if err := l.fs.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove uart log: %w", err)
	}
	l.budget.Release(l.bytes)
	l.bytes = 0
	l.count = 0
	return nil
}

// Close closes the file, keeping it on flash with its budget reservation.
func (l *LineStore) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close uart log: %w", err)
	}
	return nil
}

// Count returns the number of entries appended this session.
func (l *LineStore) Count() int { return l.count }

// BytesUsed returns the bytes this log holds on flash.
func (l *LineStore) BytesUsed() int64 { return l.bytes }

// Path returns the backing file path.
func (l *LineStore) Path() string { return l.path }
