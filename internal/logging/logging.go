package logging

import (
	"io"
	"log"
	"os"
)

// Logger is a leveled wrapper around the standard logger.
type Logger struct {
	*log.Logger
	verbose bool
}

// NewLogger creates a Logger writing to stderr. Debug output is only written
// when verbose is set.
func NewLogger(verbose bool) *Logger {
	return New(os.Stderr, verbose)
}

// New creates a Logger writing to w.
func New(w io.Writer, verbose bool) *Logger {
	return &Logger{
		Logger:  log.New(w, "", log.LstdFlags),
		verbose: verbose,
	}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return New(io.Discard, false)
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *Logger) *Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// Info logs an informational message.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.Printf("INFO: "+msg, args...)
}

// Warn logs a warning.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.Printf("WARN: "+msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.Printf("ERROR: "+msg, args...)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) {
	if !l.verbose {
		return
	}
	l.Printf("DEBUG: "+msg, args...)
}
