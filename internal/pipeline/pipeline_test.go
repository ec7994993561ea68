package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Shorthand(t *testing.T) {
	steps, err := Normalize([]any{
		"a",
		map[string]any{"plugin": "x", "source": "b"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []Step{
		{"plugin": "passthrough", "source": "a"},
		{"plugin": "x", "source": "b"},
	}, steps)
}

func TestNormalize_PlaceholdersExactMatchOnly(t *testing.T) {
	placeholders := map[string]any{"TOKEN": "replaced"}

	steps, err := Normalize([]any{
		map[string]any{"plugin": "x", "value": "TOKEN"},
		map[string]any{"plugin": "x", "value": "prefix_TOKEN"},
	}, placeholders)
	require.NoError(t, err)

	assert.Equal(t, "replaced", steps[0]["value"])
	assert.Equal(t, "prefix_TOKEN", steps[1]["value"])
}

func TestNormalize_PlaceholdersInNestedValues(t *testing.T) {
	steps, err := Normalize([]any{
		map[string]any{
			"plugin": "static_map",
			"map":    map[string]any{"1": "PUBLISHED"},
			"list":   []any{"PUBLISHED", "draft"},
		},
	}, map[string]any{"PUBLISHED": "published"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"1": "published"}, steps[0]["map"])
	assert.Equal(t, []any{"published", "draft"}, steps[0]["list"])
}

func TestDefinitionSteps_DoesNotMutate(t *testing.T) {
	def := &Definition{
		ID: "clean",
		Process: []any{
			map[string]any{"plugin": "x", "value": "TOKEN", "nested": map[string]any{"k": "TOKEN"}},
		},
	}

	first, err := def.Steps(map[string]any{"TOKEN": "one"})
	require.NoError(t, err)
	second, err := def.Steps(map[string]any{"TOKEN": "two"})
	require.NoError(t, err)

	assert.Equal(t, "one", first[0]["value"])
	assert.Equal(t, "two", second[0]["value"])
	assert.Equal(t, "TOKEN", def.Process[0].(map[string]any)["value"])
	assert.Equal(t, "TOKEN", def.Process[0].(map[string]any)["nested"].(map[string]any)["k"])
}

func TestDefinitionSteps_Deterministic(t *testing.T) {
	def := &Definition{ID: "p", Process: []any{"a", map[string]any{"plugin": "x", "v": "T"}}}
	placeholders := map[string]any{"T": 1}

	a, err := def.Steps(placeholders)
	require.NoError(t, err)
	b, err := def.Steps(placeholders)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalize_Invalid(t *testing.T) {
	_, err := Normalize([]any{42}, nil)
	assert.Error(t, err)

	_, err = Normalize([]any{map[string]any{"source": "a"}}, nil)
	assert.ErrorContains(t, err, "missing plugin")
}

func TestNormalizeEntry(t *testing.T) {
	steps, err := NormalizeEntry("title", nil)
	require.NoError(t, err)
	assert.Equal(t, []Step{{"plugin": "passthrough", "source": "title"}}, steps)

	steps, err = NormalizeEntry(map[string]any{"plugin": "default_value", "default_value": 1}, nil)
	require.NoError(t, err)
	assert.Len(t, steps, 1)

	steps, err = NormalizeEntry([]any{"a", "b"}, nil)
	require.NoError(t, err)
	assert.Len(t, steps, 2)

	_, err = NormalizeEntry(nil, nil)
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}

	write("clean_body.yml", `
id: clean_body
label: Clean body
process:
  - plugin: format
    operation: trim
  - plugin: default_value
    default_value: EMPTY
`)
	write("title.json", `{"id": "title", "process": ["title"]}`)

	store, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"clean_body", "title"}, store.IDs())

	def, ok := store.Load("clean_body")
	require.True(t, ok)
	steps, err := def.Steps(map[string]any{"EMPTY": "n/a"})
	require.NoError(t, err)
	assert.Equal(t, "format", steps[0].Plugin())
	assert.Equal(t, "n/a", steps[1]["default_value"])
}

func TestLoadDir_Duplicate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte("id: p\nprocess: [a]\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("id: p\nprocess: [b]\n"), 0644))

	_, err := LoadDir(dir)
	var dup *DuplicateIDError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "p", dup.ID)
	assert.Equal(t, []string{filepath.Join(dir, "a.yml"), filepath.Join(dir, "b.yml")}, dup.Files)
	assert.ErrorContains(t, err, "defined twice")
}

func TestParse_SchemaViolation(t *testing.T) {
	_, err := Parse("bad.yml", []byte("id: p\nprocess: []\n"))
	assert.Error(t, err)

	_, err = Parse("bad.yml", []byte("id: p\nprocess:\n  - source: a\n"))
	assert.Error(t, err)
}
