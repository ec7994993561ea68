// Package source provides the record readers a migration pulls rows from.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"sort"

	"github.com/rowplane/rowplane/database"
	"github.com/rowplane/rowplane/internal/row"
)

// Source produces the rows of a migration. Rows may be called repeatedly;
// every call starts from the first record.
type Source interface {
	// IDs names the source properties forming the unique key of a row.
	IDs() []string
	Rows(ctx context.Context) iter.Seq2[*row.Row, error]
}

// Config is the source section of a migration definition.
type Config struct {
	Plugin  string
	IDs     []string
	Options map[string]any

	// BaseDir resolves relative file paths.
	BaseDir string
	// DB is the migration database, used unless the source names its own.
	DB      *sql.DB
	Dialect database.Driver
}

// Factory builds a source from its configuration.
type Factory func(cfg Config) (Source, error)

// Registry maps source plugin names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in sources.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{
		"csv": NewCSV,
		"sql": NewSQL,
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

// Build constructs the source named by cfg.Plugin.
func (r *Registry) Build(cfg Config) (Source, error) {
	f, ok := r.factories[cfg.Plugin]
	if !ok {
		return nil, fmt.Errorf("unknown source plugin %q", cfg.Plugin)
	}
	if len(cfg.IDs) == 0 {
		return nil, fmt.Errorf("source %s declares no ids", cfg.Plugin)
	}
	rules, err := parseDerivations(cfg.Options["derive"])
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", cfg.Plugin, err)
	}

	src, err := f(cfg)
	if err != nil || len(rules) == 0 {
		return src, err
	}
	return &derived{Source: src, rules: rules}, nil
}

func stringOption(opts map[string]any, key string) (string, error) {
	raw, ok := opts[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, raw)
	}
	return s, nil
}

func intOption(opts map[string]any, key string, fallback int) (int, error) {
	raw, ok := opts[key]
	if !ok || raw == nil {
		return fallback, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	}
	return 0, fmt.Errorf("%s must be an integer, got %v", key, raw)
}
