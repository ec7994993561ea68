package process

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/rowplane/rowplane/database"
	"github.com/rowplane/rowplane/internal/pipeline"
	"github.com/rowplane/rowplane/internal/row"
)

// Plugin is a unit transform applied to one value of one row.
//
// Transform returns the new value, a *SkipRowError to drop the row,
// ErrStopPipeline to stop the current property, or any other error, which
// aborts the batch.
type Plugin interface {
	Transform(ctx context.Context, value any, exec Executable, r *row.Row, destination string) (any, error)
}

// PluginFunc adapts a function to the Plugin interface.
type PluginFunc func(ctx context.Context, value any, exec Executable, r *row.Row, destination string) (any, error)

// Transform calls f.
func (f PluginFunc) Transform(ctx context.Context, value any, exec Executable, r *row.Row, destination string) (any, error) {
	return f(ctx, value, exec, r, destination)
}

// Executable is the callback surface a plugin sees for running nested
// pipelines.
type Executable interface {
	RunPipeline(ctx context.Context, r *row.Row, id string, placeholders map[string]any, destination string, seed any) (any, error)
}

// MapLookup resolves the destination ids another migration recorded for a
// source identity. It returns nil when nothing was recorded.
type MapLookup interface {
	LookupDestinationIDs(ctx context.Context, migrationID string, sourceIDs []string) ([]string, error)
}

// Deps are the collaborators handed to plugin factories.
type Deps struct {
	Store  pipeline.Store
	Lookup MapLookup

	// DB and Dialect reach the destination database.
	DB      *sql.DB
	Dialect database.Driver
}

// Factory constructs a plugin from its step configuration. Configuration
// problems must be reported as *ConfigurationError.
type Factory func(step pipeline.Step, deps Deps) (Plugin, error)

// Registry maps plugin names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// DefaultRegistry returns a registry holding the built-in plugins.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(pipeline.PassthroughPlugin, newPassthrough)
	r.MustRegister("get", newPassthrough)
	r.MustRegister(PipelinePlugin, newPipelinePlugin)
	r.MustRegister("default_value", newDefaultValue)
	r.MustRegister("static_map", newStaticMap)
	r.MustRegister("concat", newConcat)
	r.MustRegister("skip_on_empty", newSkipOnEmpty)
	r.MustRegister("format", newFormat)
	r.MustRegister("workflow_state", newWorkflowState)
	r.MustRegister("migration_lookup", newMigrationLookup)
	r.MustRegister("destination_lookup", newDestinationLookup)
	return r
}

// Register adds a factory. Names are unique.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("plugin name must not be empty")
	}
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("plugin %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister is Register for static tables; it panics on conflicts.
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Has reports whether a plugin is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
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

// Build constructs the plugin named by step.
func (r *Registry) Build(step pipeline.Step, deps Deps) (Plugin, error) {
	name := step.Plugin()
	factory, ok := r.factories[name]
	if !ok {
		return nil, &ConfigurationError{Plugin: name, Message: "unknown process plugin"}
	}

	plugin, err := factory(step, deps)
	if err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			if cfgErr.Plugin == "" {
				cfgErr.Plugin = name
			}
			return nil, cfgErr
		}
		return nil, &ConfigurationError{Plugin: name, Message: "invalid configuration", Err: err}
	}
	return plugin, nil
}
