package process

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rowplane/rowplane/database"
	"github.com/rowplane/rowplane/internal/logging"
	"github.com/rowplane/rowplane/internal/pipeline"
	"github.com/rowplane/rowplane/internal/row"
)

// DefaultMaxDepth bounds pipeline nesting.
const DefaultMaxDepth = 16

// Executor drives rows through process steps.
type Executor struct {
	registry *Registry
	deps     Deps
	maxDepth int
	log      *logging.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxDepth overrides the nesting bound for sub-pipelines.
func WithMaxDepth(depth int) Option {
	return func(e *Executor) { e.maxDepth = depth }
}

// WithLookup supplies the identity map lookup used by migration_lookup.
func WithLookup(lookup MapLookup) Option {
	return func(e *Executor) { e.deps.Lookup = lookup }
}

// WithDatabase supplies the destination database read by destination_lookup.
func WithDatabase(db *sql.DB, dialect database.Driver) Option {
	return func(e *Executor) {
		e.deps.DB = db
		e.deps.Dialect = dialect
	}
}

// WithLogger sets the logger used for step tracing.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// NewExecutor creates an executor resolving plugins from registry and
// pipeline definitions from store.
func NewExecutor(registry *Registry, store pipeline.Store, opts ...Option) *Executor {
	if store == nil {
		store = pipeline.NewMemoryStore()
	}
	e := &Executor{
		registry: registry,
		deps:     Deps{Store: store},
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logging.OrDiscard(e.log)
	return e
}

// Expand resolves a stored pipeline into its normalized steps.
func (e *Executor) Expand(id string, placeholders map[string]any) ([]pipeline.Step, error) {
	def, ok := e.deps.Store.Load(id)
	if !ok {
		return nil, &ConfigurationError{Pipeline: id, Message: "process pipeline not found"}
	}
	steps, err := def.Steps(placeholders)
	if err != nil {
		return nil, &ConfigurationError{Pipeline: id, Message: "invalid process", Err: err}
	}
	return steps, nil
}

// Run executes steps in order against r. The first step receives seed, each
// later step the previous step's output. The final value is assigned to
// destination on r and returned.
func (e *Executor) Run(ctx context.Context, r *row.Row, steps []pipeline.Step, destination string, seed any) (any, error) {
	value := seed
	for _, step := range withImplicitSources(steps) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		plugin, err := e.registry.Build(step, e.deps)
		if err != nil {
			return nil, err
		}

		e.log.Debug("%s: running %s", destination, step.Plugin())
		value, err = plugin.Transform(ctx, value, e, r, destination)
		if err == nil {
			continue
		}

		if errors.Is(err, ErrStopPipeline) {
			r.RemoveDestinationProperty(destination)
			return nil, nil
		}
		return nil, classify(err, step.Plugin(), destination)
	}

	r.SetDestinationProperty(destination, value)
	return value, nil
}

// RunPipeline expands the stored pipeline id and runs it in a fresh
// destination scope of r. The pipeline ids in progress travel with ctx; a
// repeated id is reported instead of recursing forever.
func (e *Executor) RunPipeline(ctx context.Context, r *row.Row, id string, placeholders map[string]any, destination string, seed any) (any, error) {
	ctx, err := e.enter(ctx, id)
	if err != nil {
		return nil, err
	}

	steps, err := e.Expand(id, placeholders)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, r.Child(), steps, destination, seed)
}

// Validate builds every plugin referenced by steps, following nested
// pipelines, so that configuration problems surface before rows are read.
func (e *Executor) Validate(steps []pipeline.Step) error {
	return e.validate(context.Background(), steps)
}

func (e *Executor) validate(ctx context.Context, steps []pipeline.Step) error {
	for _, step := range withImplicitSources(steps) {
		plugin, err := e.registry.Build(step, e.deps)
		if err != nil {
			return err
		}

		composite, ok := plugin.(Composite)
		if !ok {
			continue
		}
		id, placeholders := composite.Pipeline()
		nested, err := e.enter(ctx, id)
		if err != nil {
			return err
		}
		subSteps, err := e.Expand(id, placeholders)
		if err != nil {
			return err
		}
		if err := e.validate(nested, subSteps); err != nil {
			return err
		}
	}
	return nil
}

// Composite is implemented by plugins that run a stored pipeline.
type Composite interface {
	Pipeline() (id string, placeholders map[string]any)
}

type stackKey struct{}

func (e *Executor) enter(ctx context.Context, id string) (context.Context, error) {
	stack, _ := ctx.Value(stackKey{}).([]string)
	if slices.Contains(stack, id) {
		return nil, &ConfigurationError{
			Pipeline: id,
			Message:  fmt.Sprintf("recursive pipeline reference %s", strings.Join(append(slices.Clone(stack), id), " -> ")),
		}
	}
	if len(stack) >= e.maxDepth {
		return nil, &ConfigurationError{
			Pipeline: id,
			Message:  fmt.Sprintf("pipeline nesting deeper than %d", e.maxDepth),
		}
	}
	next := append(slices.Clone(stack), id)
	return context.WithValue(ctx, stackKey{}, next), nil
}

// withImplicitSources inserts a passthrough in front of every step that
// names a source but is not itself a passthrough.
func withImplicitSources(steps []pipeline.Step) []pipeline.Step {
	out := make([]pipeline.Step, 0, len(steps))
	for _, step := range steps {
		if source, ok := step["source"]; ok && !isPassthrough(step.Plugin()) {
			out = append(out, pipeline.Step{"plugin": pipeline.PassthroughPlugin, "source": source})
		}
		out = append(out, step)
	}
	return out
}

func isPassthrough(name string) bool {
	return name == pipeline.PassthroughPlugin || name == "get"
}

func classify(err error, plugin, destination string) error {
	var (
		skip  *SkipRowError
		cfg   *ConfigurationError
		fatal *FatalStepError
	)
	switch {
	case errors.As(err, &skip), errors.As(err, &cfg):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.As(err, &fatal):
		if fatal.Plugin == "" {
			fatal.Plugin = plugin
		}
		if fatal.Property == "" {
			fatal.Property = destination
		}
		return fatal
	default:
		return &FatalStepError{Plugin: plugin, Property: destination, Err: err}
	}
}
