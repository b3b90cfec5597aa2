// Package logging provides a small leveled, named-logger facility used
// throughout corecalib. Loggers are organized hierarchically by dotted
// name ("corecalib.bundle.solver") and their levels can be bulk-overridden
// at runtime via glob-style patterns without recompiling.
package logging

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/atomic"
)

// Level is a logging severity.
type Level int32

// The four supported severities, ordered from most to least verbose.
const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "Debug"
	case INFO:
		return "Info"
	case WARN:
		return "Warn"
	case ERROR:
		return "Error"
	default:
		return "Level(" + strconv.Itoa(int(l)) + ")"
	}
}

// LevelFromString parses a level name, case-insensitively, accepting
// "warning" as a synonym for WARN.
func LevelFromString(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (l Level) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(l.String())), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Level) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("log level must be a JSON string: %w", err)
	}
	parsed, err := LevelFromString(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// AtomicLevel is a Level that can be read and updated concurrently.
type AtomicLevel struct {
	v atomic.Int32
}

// NewAtomicLevelAt creates an AtomicLevel initialized to level.
func NewAtomicLevelAt(level Level) *AtomicLevel {
	a := &AtomicLevel{}
	a.Set(level)
	return a
}

// Get returns the current level.
func (a *AtomicLevel) Get() Level {
	return Level(a.v.Load())
}

// Set updates the current level.
func (a *AtomicLevel) Set(level Level) {
	a.v.Store(int32(level))
}
