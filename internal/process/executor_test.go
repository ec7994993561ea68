package process

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowplane/rowplane/internal/pipeline"
	"github.com/rowplane/rowplane/internal/row"
)

// testRegistry returns the built-in plugins plus arithmetic helpers and a
// plugin that counts its invocations.
func testRegistry(calls *int) *Registry {
	r := DefaultRegistry()
	r.MustRegister("double", func(pipeline.Step, Deps) (Plugin, error) {
		return PluginFunc(func(_ context.Context, v any, _ Executable, _ *row.Row, _ string) (any, error) {
			return v.(int) * 2, nil
		}), nil
	})
	r.MustRegister("increment", func(pipeline.Step, Deps) (Plugin, error) {
		return PluginFunc(func(_ context.Context, v any, _ Executable, _ *row.Row, _ string) (any, error) {
			return v.(int) + 1, nil
		}), nil
	})
	r.MustRegister("skip", func(step pipeline.Step, _ Deps) (Plugin, error) {
		return PluginFunc(func(context.Context, any, Executable, *row.Row, string) (any, error) {
			return nil, Skipf("skipped by test")
		}), nil
	})
	r.MustRegister("count", func(pipeline.Step, Deps) (Plugin, error) {
		return PluginFunc(func(_ context.Context, v any, _ Executable, _ *row.Row, _ string) (any, error) {
			if calls != nil {
				*calls++
			}
			return v, nil
		}), nil
	})
	r.MustRegister("explode", func(pipeline.Step, Deps) (Plugin, error) {
		return PluginFunc(func(context.Context, any, Executable, *row.Row, string) (any, error) {
			return nil, errors.New("boom")
		}), nil
	})
	return r
}

func steps(entries ...any) []pipeline.Step {
	s, err := pipeline.Normalize(entries, nil)
	if err != nil {
		panic(err)
	}
	return s
}

func TestRun_SequentialOrder(t *testing.T) {
	exec := NewExecutor(testRegistry(nil), nil)
	r := row.New(nil)

	got, err := exec.Run(context.Background(), r, steps(
		map[string]any{"plugin": "double"},
		map[string]any{"plugin": "increment"},
	), "total", 3)
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	v, ok := r.DestinationProperty("total")
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestRun_SkipHaltsRemainingSteps(t *testing.T) {
	calls := 0
	exec := NewExecutor(testRegistry(&calls), nil)
	r := row.New(nil)

	_, err := exec.Run(context.Background(), r, steps(
		map[string]any{"plugin": "count"},
		map[string]any{"plugin": "skip"},
		map[string]any{"plugin": "count"},
	), "title", "x")

	skip, ok := IsSkip(err)
	require.True(t, ok, "expected a skip, got %v", err)
	assert.Equal(t, "skipped by test", skip.Reason)
	assert.Equal(t, 1, calls)
	_, set := r.DestinationProperty("title")
	assert.False(t, set)
}

func TestRun_UnexpectedErrorIsFatal(t *testing.T) {
	exec := NewExecutor(testRegistry(nil), nil)

	_, err := exec.Run(context.Background(), row.New(nil), steps(map[string]any{"plugin": "explode"}), "title", nil)

	var fatal *FatalStepError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "explode", fatal.Plugin)
	assert.Equal(t, "title", fatal.Property)
}

func TestRun_UnknownPlugin(t *testing.T) {
	exec := NewExecutor(testRegistry(nil), nil)

	_, err := exec.Run(context.Background(), row.New(nil), steps(map[string]any{"plugin": "nope"}), "title", nil)

	var cfg *ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "nope", cfg.Plugin)
}

func TestRun_ImplicitSource(t *testing.T) {
	exec := NewExecutor(testRegistry(nil), nil)
	r := row.New(map[string]any{"count": 4})

	got, err := exec.Run(context.Background(), r, steps(
		map[string]any{"plugin": "double", "source": "count"},
	), "doubled", nil)
	require.NoError(t, err)
	assert.Equal(t, 8, got)
}

func TestRun_DestinationReference(t *testing.T) {
	exec := NewExecutor(testRegistry(nil), nil)
	r := row.New(map[string]any{"n": 2})
	ctx := context.Background()

	_, err := exec.Run(ctx, r, steps("n", map[string]any{"plugin": "double"}), "first", nil)
	require.NoError(t, err)

	got, err := exec.Run(ctx, r, steps("@first", map[string]any{"plugin": "increment"}), "second", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, got)
}

func TestRun_StopPipeline(t *testing.T) {
	calls := 0
	exec := NewExecutor(testRegistry(&calls), nil)
	r := row.New(map[string]any{"summary": ""})
	r.SetDestinationProperty("summary", "stale")

	got, err := exec.Run(context.Background(), r, steps(
		"summary",
		map[string]any{"plugin": "skip_on_empty", "method": "process"},
		map[string]any{"plugin": "count"},
	), "summary", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, calls)
	_, set := r.DestinationProperty("summary")
	assert.False(t, set)
}

func TestRun_ContextCancelled(t *testing.T) {
	exec := NewExecutor(testRegistry(nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Run(ctx, row.New(nil), steps(map[string]any{"plugin": "double"}), "x", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExpand(t *testing.T) {
	store := pipeline.NewMemoryStore(&pipeline.Definition{
		ID: "clean",
		Process: []any{
			"a",
			map[string]any{"plugin": "x", "source": "b", "value": "TOKEN"},
		},
	})
	exec := NewExecutor(testRegistry(nil), store)

	got, err := exec.Expand("clean", map[string]any{"TOKEN": "replaced"})
	require.NoError(t, err)
	assert.Equal(t, []pipeline.Step{
		{"plugin": "passthrough", "source": "a"},
		{"plugin": "x", "source": "b", "value": "replaced"},
	}, got)

	_, err = exec.Expand("missing", nil)
	var cfg *ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "missing", cfg.Pipeline)
}

func TestRun_NestedPipeline(t *testing.T) {
	store := pipeline.NewMemoryStore(
		&pipeline.Definition{ID: "double_then", Process: []any{
			map[string]any{"plugin": "double"},
			map[string]any{"plugin": "STEP"},
		}},
	)
	exec := NewExecutor(testRegistry(nil), store)
	r := row.New(map[string]any{"n": 5})

	got, err := exec.Run(context.Background(), r, steps(
		map[string]any{
			"plugin":       "pipeline",
			"id":           "double_then",
			"source":       "n",
			"placeholders": map[string]any{"STEP": "increment"},
		},
		map[string]any{"plugin": "double"},
	), "result", nil)
	require.NoError(t, err)
	assert.Equal(t, 22, got)

	// the nested run wrote to its own scope only
	assert.Equal(t, map[string]any{"result": 22}, r.Destination())
}

func TestRun_PipelineCycle(t *testing.T) {
	store := pipeline.NewMemoryStore(
		&pipeline.Definition{ID: "a", Process: []any{map[string]any{"plugin": "pipeline", "id": "b"}}},
		&pipeline.Definition{ID: "b", Process: []any{map[string]any{"plugin": "pipeline", "id": "a"}}},
	)
	exec := NewExecutor(testRegistry(nil), store)

	_, err := exec.Run(context.Background(), row.New(nil), steps(
		map[string]any{"plugin": "pipeline", "id": "a"},
	), "x", nil)

	var cfg *ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Contains(t, cfg.Error(), "a -> b -> a")

	err = exec.Validate(steps(map[string]any{"plugin": "pipeline", "id": "a"}))
	require.ErrorAs(t, err, &cfg)
}

func TestRun_MaxDepth(t *testing.T) {
	store := pipeline.NewMemoryStore(
		&pipeline.Definition{ID: "p1", Process: []any{map[string]any{"plugin": "pipeline", "id": "p2"}}},
		&pipeline.Definition{ID: "p2", Process: []any{map[string]any{"plugin": "pipeline", "id": "p3"}}},
		&pipeline.Definition{ID: "p3", Process: []any{map[string]any{"plugin": "increment"}}},
	)
	exec := NewExecutor(testRegistry(nil), store, WithMaxDepth(2))

	_, err := exec.Run(context.Background(), row.New(nil), steps(
		map[string]any{"plugin": "pipeline", "id": "p1"},
	), "x", 1)
	assert.ErrorContains(t, err, "deeper than 2")
}

func TestValidate(t *testing.T) {
	store := pipeline.NewMemoryStore(
		&pipeline.Definition{ID: "ok", Process: []any{"title"}},
		&pipeline.Definition{ID: "broken", Process: []any{map[string]any{"plugin": "does_not_exist"}}},
	)
	exec := NewExecutor(testRegistry(nil), store)

	assert.NoError(t, exec.Validate(steps(map[string]any{"plugin": "pipeline", "id": "ok"})))

	err := exec.Validate(steps(map[string]any{"plugin": "pipeline", "id": "broken"}))
	var cfg *ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "does_not_exist", cfg.Plugin)

	err = exec.Validate(steps(map[string]any{"plugin": "pipeline", "id": "absent"}))
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "absent", cfg.Pipeline)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", newPassthrough))
	assert.Error(t, r.Register("a", newPassthrough))
	assert.Error(t, r.Register("", newPassthrough))
	assert.True(t, r.Has("a"))
	assert.Equal(t, []string{"a"}, r.Names())
}
