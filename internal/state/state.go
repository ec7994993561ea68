// Package state records which migrations have an import or rollback in
// progress, so a second invocation against the same environment refuses to
// start instead of interleaving with the first.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// StateFile is the filename for state tracking, kept next to rowplane.toml
// (git-ignored).
const StateFile = ".rowplane-state.json"

// Operation kinds.
const (
	OperationImport   = "import"
	OperationRollback = "rollback"
)

// State is the content of .rowplane-state.json.
type State struct {
	Version    string                `json:"version"` // State file format version
	Operations map[string]*Operation `json:"operations,omitempty"`

	path string
}

// Operation is an import or rollback that has started and not finished.
type Operation struct {
	Environment string    `json:"environment"`
	MigrationID string    `json:"migration_id"`
	Kind        string    `json:"kind"`
	PID         int       `json:"pid"`
	StartedAt   time.Time `json:"started_at"`
}

// BusyError is returned by Begin when the migration already has an
// operation in progress.
type BusyError struct {
	Operation *Operation
}

func (e *BusyError) Error() string {
	op := e.Operation
	return fmt.Sprintf("migration %s is busy with %s (pid %d, started %s); run reset-status if that process is gone",
		op.MigrationID, op.Kind, op.PID, op.StartedAt.Format(time.RFC3339))
}

func key(environment, migrationID string) string {
	return environment + "/" + migrationID
}

// Load reads the state file in dir.
// Returns empty state if the file doesn't exist
func Load(dir string) (*State, error) {
	path := filepath.Join(dir, StateFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &State{Version: "1", path: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	state.path = path
	return &state, nil
}

// Save writes the state file, or removes it once nothing is in progress.
func (s *State) Save() error {
	if len(s.Operations) == 0 {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove state file: %w", err)
		}
		return nil
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Write atomically (write to temp file, then rename)
	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tempFile, s.path); err != nil {
		return fmt.Errorf("failed to save state file: %w", err)
	}
	return nil
}

// Begin records an operation on a migration and saves the file.
func (s *State) Begin(environment, migrationID, kind string) error {
	if op, ok := s.Operations[key(environment, migrationID)]; ok {
		return &BusyError{Operation: op}
	}
	if s.Operations == nil {
		s.Operations = make(map[string]*Operation)
	}
	s.Operations[key(environment, migrationID)] = &Operation{
		Environment: environment,
		MigrationID: migrationID,
		Kind:        kind,
		PID:         os.Getpid(),
		StartedAt:   time.Now().UTC(),
	}
	return s.Save()
}

// End clears the operation on a migration and saves the file.
func (s *State) End(environment, migrationID string) error {
	delete(s.Operations, key(environment, migrationID))
	return s.Save()
}

// Reset clears an operation left behind by a process that died, returning
// it, or nil when the migration was idle.
func (s *State) Reset(environment, migrationID string) (*Operation, error) {
	op, ok := s.Operations[key(environment, migrationID)]
	if !ok {
		return nil, nil
	}
	return op, s.End(environment, migrationID)
}

// Active lists the operations in progress for an environment, by migration.
func (s *State) Active(environment string) []*Operation {
	var ops []*Operation
	for _, op := range s.Operations {
		if op.Environment == environment {
			ops = append(ops, op)
		}
	}
	slices.SortFunc(ops, func(a, b *Operation) int {
		switch {
		case a.MigrationID < b.MigrationID:
			return -1
		case a.MigrationID > b.MigrationID:
			return 1
		}
		return 0
	})
	return ops
}
