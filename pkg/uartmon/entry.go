package uartmon

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction tells which side of the link produced an entry.
type Direction uint8

const (
	DirRX Direction = iota
	DirTX
)

func (d Direction) String() string {
	if d == DirTX {
		return "TX"
	}
	return "RX"
}

// Flag marks why a line was emitted when it was not a clean terminator.
type Flag uint8

const (
	FlagNone Flag = iota
	// FlagTruncated marks a line cut at the maximum line length.
	FlagTruncated
	// FlagTimeout marks a partial line flushed after the idle period.
	FlagTimeout
)

func (f Flag) String() string {
	switch f {
	case FlagTruncated:
		return "truncated"
	case FlagTimeout:
		return "timeout"
	default:
		return "none"
	}
}

// UartLogEntry is one reassembled line with its capture metadata.
type UartLogEntry struct {
	TimeMs uint64
	Dir    Direction
	Text   string
	Flag   Flag
}

// flagMark is the single-character flash encoding of a Flag.
func flagMark(f Flag) string {
	switch f {
	case FlagTruncated:
		return "*"
	case FlagTimeout:
		return "~"
	default:
		return "-"
	}
}

func flagFromMark(s string) Flag {
	switch s {
	case "*":
		return FlagTruncated
	case "~":
		return FlagTimeout
	default:
		return FlagNone
	}
}

// formatEntry renders an entry as one flash log line:
// "<ms> <RX|TX> <-|*|~> <text>". Text never contains newlines (bytes are
// hex-escaped before they reach an entry), so one line is one entry.
func formatEntry(e UartLogEntry) string {
	return fmt.Sprintf("%d %s %s %s", e.TimeMs, e.Dir, flagMark(e.Flag), e.Text)
}

// parseEntry is the inverse of formatEntry, used when migrating a flash log
// back into RAM. Malformed lines come back as RX entries holding the raw
// line so nothing is silently dropped.
func parseEntry(line string) UartLogEntry {
	parts := strings.SplitN(line, " ", 4)
	if len(parts) < 3 {
		return UartLogEntry{Text: line}
	}
	ms, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return UartLogEntry{Text: line}
	}
	dir := DirRX
	if parts[1] == "TX" {
		dir = DirTX
	}
	text := ""
	if len(parts) == 4 {
		text = parts[3]
	}
	return UartLogEntry{TimeMs: ms, Dir: dir, Text: text, Flag: flagFromMark(parts[2])}
}
