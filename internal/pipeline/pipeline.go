package pipeline

import (
	"fmt"
	"sort"
)

// PassthroughPlugin is the plugin a bare string step expands to.
const PassthroughPlugin = "passthrough"

// Step is one configured plugin invocation. The "plugin" key names the plugin,
// every other key is plugin configuration.
type Step map[string]any

// Plugin returns the configured plugin name.
func (s Step) Plugin() string {
	name, _ := s["plugin"].(string)
	return name
}

// String returns the configured string value for key.
func (s Step) String(key string) (string, bool) {
	v, ok := s[key].(string)
	return v, ok
}

// Definition is a named, reusable list of process steps.
type Definition struct {
	ID          string `json:"id" yaml:"id"`
	Label       string `json:"label,omitempty" yaml:"label,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Process     []any  `json:"process" yaml:"process"`

	// File the definition was loaded from, empty for in-memory definitions.
	File string `json:"-" yaml:"-"`
}

// Steps returns the normalized step list: string shorthands are expanded to
// passthrough steps and placeholders are substituted. The definition itself
// is never modified.
func (d *Definition) Steps(placeholders map[string]any) ([]Step, error) {
	return Normalize(d.Process, placeholders)
}

// Normalize expands a raw process list. Each entry is either a property name
// (shorthand for a passthrough of that source property) or a mapping with a
// "plugin" key. Placeholder substitution replaces configuration values that
// are exactly equal to a placeholder name; values that merely contain the
// name are left alone.
func Normalize(process []any, placeholders map[string]any) ([]Step, error) {
	steps := make([]Step, 0, len(process))
	for i, entry := range process {
		var step Step
		switch e := entry.(type) {
		case string:
			step = Step{"plugin": PassthroughPlugin, "source": e}
		case Step:
			step = copyMap(e)
		case map[string]any:
			step = copyMap(e)
		default:
			return nil, fmt.Errorf("step %d: expected a property name or a plugin mapping, got %T", i, entry)
		}
		if step.Plugin() == "" {
			return nil, fmt.Errorf("step %d: missing plugin name", i)
		}
		steps = append(steps, substitute(step, placeholders))
	}
	return steps, nil
}

// NormalizeEntry expands the process value of a single destination property:
// a string, a single plugin mapping, or a list of either.
func NormalizeEntry(entry any, placeholders map[string]any) ([]Step, error) {
	switch e := entry.(type) {
	case []any:
		return Normalize(e, placeholders)
	case nil:
		return nil, fmt.Errorf("empty process entry")
	default:
		return Normalize([]any{e}, placeholders)
	}
}

func substitute(step Step, placeholders map[string]any) Step {
	if len(placeholders) == 0 {
		return step
	}
	for key, value := range step {
		step[key] = substituteValue(value, placeholders)
	}
	return step
}

func substituteValue(value any, placeholders map[string]any) any {
	switch v := value.(type) {
	case string:
		if replacement, ok := placeholders[v]; ok {
			return replacement
		}
		return v
	case map[string]any:
		for key, nested := range v {
			v[key] = substituteValue(nested, placeholders)
		}
		return v
	case []any:
		for i, nested := range v {
			v[i] = substituteValue(nested, placeholders)
		}
		return v
	default:
		return v
	}
}

func copyMap(m map[string]any) Step {
	out := make(Step, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(copyMap(t))
	case Step:
		return map[string]any(copyMap(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return t
	}
}

// Store resolves pipeline definitions by id.
type Store interface {
	Load(id string) (*Definition, bool)
}

// MemoryStore is a Store backed by a map.
type MemoryStore struct {
	definitions map[string]*Definition
}

// NewMemoryStore creates a store holding the given definitions.
func NewMemoryStore(defs ...*Definition) *MemoryStore {
	s := &MemoryStore{definitions: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		s.definitions[d.ID] = d
	}
	return s
}

// Load returns the definition with the given id.
func (s *MemoryStore) Load(id string) (*Definition, bool) {
	d, ok := s.definitions[id]
	return d, ok
}

// Add registers a definition, replacing any existing one with the same id.
func (s *MemoryStore) Add(d *Definition) {
	s.definitions[d.ID] = d
}

// IDs returns the ids of all stored definitions, sorted.
func (s *MemoryStore) IDs() []string {
	ids := make([]string, 0, len(s.definitions))
	for id := range s.definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
