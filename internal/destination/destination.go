// Package destination provides the stores a migration writes rows to.
package destination

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/rowplane/rowplane/database"
	"github.com/rowplane/rowplane/internal/idmap"
	"github.com/rowplane/rowplane/internal/logging"
	"github.com/rowplane/rowplane/internal/row"
)

// Destination persists processed rows.
type Destination interface {
	// IDs names the destination properties identifying a written entity.
	IDs() []string
	// Import writes r and returns the destination ids of the written entity.
	// oldIDs holds the ids recorded by an earlier run, or nil.
	Import(ctx context.Context, r *row.Row, oldIDs []string) ([]string, error)
	// Rollback removes the entity identified by ids.
	Rollback(ctx context.Context, ids []string) error
	// RollbackAction is recorded in the map for every imported row.
	RollbackAction() idmap.RollbackAction
}

// Error is a row-level rejection by the destination. The row is marked
// failed and the batch continues; any other Import error ends the batch.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Config is the destination section of a migration definition.
type Config struct {
	Plugin  string
	IDs     []string
	Options map[string]any

	DB      *sql.DB
	Dialect database.Driver
	Logger  *logging.Logger
}

// Factory builds a destination from its configuration.
type Factory func(cfg Config) (Destination, error)

// Registry maps destination plugin names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in destinations.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{
		"table": NewTable,
	}}
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Names returns the registered plugin names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs the destination named by cfg.Plugin.
func (r *Registry) Build(cfg Config) (Destination, error) {
	f, ok := r.factories[cfg.Plugin]
	if !ok {
		return nil, fmt.Errorf("unknown destination plugin %q", cfg.Plugin)
	}
	if len(cfg.IDs) == 0 {
		return nil, fmt.Errorf("destination %s declares no ids", cfg.Plugin)
	}
	return f(cfg)
}
