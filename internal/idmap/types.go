package idmap

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the processing state of a source row.
type Status int

const (
	StatusImported Status = iota
	StatusNeedsUpdate
	StatusIgnored
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusImported:
		return "imported"
	case StatusNeedsUpdate:
		return "needs-update"
	case StatusIgnored:
		return "ignored"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Statuses lists every status in storage order.
var Statuses = []Status{StatusImported, StatusNeedsUpdate, StatusIgnored, StatusFailed}

// RollbackAction decides what a rollback does to the destination entity.
type RollbackAction int

const (
	// RollbackDelete removes the destination entity.
	RollbackDelete RollbackAction = iota
	// RollbackPreserve leaves the destination entity untouched; only the
	// map entry is dropped.
	RollbackPreserve
)

func (a RollbackAction) String() string {
	switch a {
	case RollbackDelete:
		return "delete"
	case RollbackPreserve:
		return "preserve"
	default:
		return fmt.Sprintf("rollback(%d)", int(a))
	}
}

// ParseRollbackAction accepts "delete" or "preserve". The empty string means
// delete.
func ParseRollbackAction(s string) (RollbackAction, error) {
	switch strings.ToLower(s) {
	case "", "delete":
		return RollbackDelete, nil
	case "preserve":
		return RollbackPreserve, nil
	default:
		return 0, fmt.Errorf("unknown rollback action %q (expected delete or preserve)", s)
	}
}

// Level is the severity of a message log entry. Lower is more severe.
type Level int

const (
	LevelError Level = iota + 1
	LevelWarning
	LevelNotice
	LevelInformational
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelNotice:
		return "notice"
	case LevelInformational:
		return "info"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel parses a level name as printed by String.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "error":
		return LevelError, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "notice":
		return LevelNotice, nil
	case "info", "informational":
		return LevelInformational, nil
	default:
		return 0, fmt.Errorf("unknown message level %q", s)
	}
}

// Entry is one row of the identity map.
type Entry struct {
	SourceIDsHash  string
	SourceIDs      []string
	DestinationIDs []string
	Status         Status
	RollbackAction RollbackAction
	ContentHash    string
	LastImported   *time.Time

	// Only populated when the map stores row data.
	SourceData      json.RawMessage
	DestinationData json.RawMessage
}

// Message is one row of the message log.
type Message struct {
	ID            int64
	SourceIDsHash string
	Level         Level
	Text          string
	RunID         string
}

// MapPersistenceError reports that a map entry could not be written.
// Malformed errors concern the row's key and are recoverable; any other
// failure comes from storage and is fatal to the batch.
type MapPersistenceError struct {
	SourceIDsHash string
	Malformed     bool
	Err           error
}

func (e *MapPersistenceError) Error() string {
	if e.Malformed {
		return fmt.Sprintf("malformed map entry: %v", e.Err)
	}
	return fmt.Sprintf("failed to save map entry %s: %v", e.SourceIDsHash, e.Err)
}

func (e *MapPersistenceError) Unwrap() error { return e.Err }
