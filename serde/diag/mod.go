// Package diag defines the diagnostic sink the codecs report to when they
// recover from a decoding problem.
//
// A sink never fails and must be safe for concurrent use.
package diag

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Level is the severity of a diagnostic.
type Level int

const (
	// WarnLevel is used when a value has been degraded to a generic
	// representation.
	WarnLevel Level = iota

	// ErrorLevel is used when a reference cannot be resolved.
	ErrorLevel
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

// Sink is the interface to record diagnostics.
type Sink interface {
	Warn(message string)

	Error(message string)
}

// logSink is a sink that forwards the diagnostics to a logger.
//
// - implements diag.Sink
type logSink struct {
	logger zerolog.Logger
}

// NewLogSink returns a sink that logs the diagnostics.
func NewLogSink(logger zerolog.Logger) Sink {
	return logSink{
		logger: logger,
	}
}

// Warn implements diag.Sink. It logs a warning.
func (s logSink) Warn(message string) {
	s.logger.Warn().Msg(message)
}

// Error implements diag.Sink. It logs an error.
func (s logSink) Error(message string) {
	s.logger.Error().Msg(message)
}

// Entry is a diagnostic recorded by a recorder.
type Entry struct {
	Level   Level
	Message string
}

// String implements fmt.Stringer.
func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s", e.Level, e.Message)
}

// Recorder is a sink that keeps the diagnostics in memory.
//
// - implements diag.Sink
type Recorder struct {
	sync.Mutex
	entries []Entry
}

// Warn implements diag.Sink. It records a warning.
func (r *Recorder) Warn(message string) {
	r.add(WarnLevel, message)
}

// Error implements diag.Sink. It records an error.
func (r *Recorder) Error(message string) {
	r.add(ErrorLevel, message)
}

// Entries returns a copy of the recorded diagnostics.
func (r *Recorder) Entries() []Entry {
	r.Lock()
	defer r.Unlock()

	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)

	return entries
}

// Count returns the number of diagnostics of the given level.
func (r *Recorder) Count(level Level) int {
	r.Lock()
	defer r.Unlock()

	count := 0
	for _, e := range r.entries {
		if e.Level == level {
			count++
		}
	}

	return count
}

func (r *Recorder) add(level Level, message string) {
	r.Lock()
	r.entries = append(r.entries, Entry{Level: level, Message: message})
	r.Unlock()
}
