package process

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a structurally invalid pipeline or step
// configuration. It is raised before any row is processed where possible.
type ConfigurationError struct {
	Pipeline string
	Plugin   string
	Message  string
	Err      error
}

func (e *ConfigurationError) Error() string {
	msg := e.Message
	if e.Plugin != "" {
		msg = fmt.Sprintf("plugin %q: %s", e.Plugin, msg)
	}
	if e.Pipeline != "" {
		msg = fmt.Sprintf("pipeline %q: %s", e.Pipeline, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return "configuration error: " + msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Configf builds a ConfigurationError for a plugin.
func Configf(plugin, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Plugin: plugin, Message: fmt.Sprintf(format, args...)}
}

// SkipRowError stops processing of the current row. The row is not written.
type SkipRowError struct {
	Reason string
	// SaveToMap records the row in the identity map with status ignored so
	// that later runs do not pick it up again.
	SaveToMap bool
}

func (e *SkipRowError) Error() string {
	if e.Reason == "" {
		return "row skipped"
	}
	return "row skipped: " + e.Reason
}

// Skipf builds a SkipRowError.
func Skipf(format string, args ...any) *SkipRowError {
	return &SkipRowError{Reason: fmt.Sprintf(format, args...)}
}

// FatalStepError is an unexpected condition that makes it unsafe to continue
// the batch.
type FatalStepError struct {
	Plugin   string
	Property string
	Err      error
}

func (e *FatalStepError) Error() string {
	return fmt.Sprintf("fatal error in plugin %q for %q: %v", e.Plugin, e.Property, e.Err)
}

func (e *FatalStepError) Unwrap() error { return e.Err }

// Fatalf builds a FatalStepError. Plugin and Property are filled in by the
// executor when left empty.
func Fatalf(format string, args ...any) *FatalStepError {
	return &FatalStepError{Err: fmt.Errorf(format, args...)}
}

// ErrStopPipeline halts the remaining steps of the current destination
// property without skipping the row. The property is left unset.
var ErrStopPipeline = errors.New("stop pipeline")

// IsSkip reports whether err carries a SkipRowError.
func IsSkip(err error) (*SkipRowError, bool) {
	var skip *SkipRowError
	if errors.As(err, &skip) {
		return skip, true
	}
	return nil, false
}
