package process

import (
	"context"
	"reflect"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/rowplane/rowplane/internal/pipeline"
	"github.com/rowplane/rowplane/internal/row"
)

// passthrough reads a source property, or a destination property when the
// name starts with "@". A list of names yields a list of values.
type passthrough struct {
	sources []string
	multi   bool
}

func newPassthrough(step pipeline.Step, _ Deps) (Plugin, error) {
	switch src := step["source"].(type) {
	case string:
		if src == "" {
			return nil, Configf(step.Plugin(), "source must not be empty")
		}
		return &passthrough{sources: []string{src}}, nil
	case []any:
		p := &passthrough{multi: true}
		for _, s := range src {
			name, ok := s.(string)
			if !ok || name == "" {
				return nil, Configf(step.Plugin(), "source list must contain property names")
			}
			p.sources = append(p.sources, name)
		}
		return p, nil
	default:
		return nil, Configf(step.Plugin(), "source is required")
	}
}

func (p *passthrough) Transform(_ context.Context, _ any, _ Executable, r *row.Row, _ string) (any, error) {
	if !p.multi {
		return readProperty(r, p.sources[0]), nil
	}
	values := make([]any, 0, len(p.sources))
	for _, name := range p.sources {
		values = append(values, readProperty(r, name))
	}
	return values, nil
}

func readProperty(r *row.Row, name string) any {
	if strings.HasPrefix(name, "@") {
		v, _ := r.DestinationProperty(strings.TrimPrefix(name, "@"))
		return v
	}
	v, _ := r.SourceProperty(name)
	return v
}

type defaultValue struct {
	value  any
	strict bool
}

func newDefaultValue(step pipeline.Step, _ Deps) (Plugin, error) {
	value, ok := step["default_value"]
	if !ok {
		return nil, Configf(step.Plugin(), "default_value is required")
	}
	strict, err := boolOption(step, "strict")
	if err != nil {
		return nil, err
	}
	return &defaultValue{value: value, strict: strict}, nil
}

func (p *defaultValue) Transform(_ context.Context, value any, _ Executable, _ *row.Row, _ string) (any, error) {
	if p.strict {
		if value == nil {
			return p.value, nil
		}
		return value, nil
	}
	if isEmpty(value) {
		return p.value, nil
	}
	return value, nil
}

type staticMap struct {
	mapping    map[string]any
	fallback   any
	hasDefault bool
	bypass     bool
}

func newStaticMap(step pipeline.Step, _ Deps) (Plugin, error) {
	mapping, ok := step["map"].(map[string]any)
	if !ok || len(mapping) == 0 {
		return nil, Configf(step.Plugin(), "map must be a non-empty mapping")
	}
	bypass, err := boolOption(step, "bypass")
	if err != nil {
		return nil, err
	}
	fallback, hasDefault := step["default_value"]
	return &staticMap{mapping: mapping, fallback: fallback, hasDefault: hasDefault, bypass: bypass}, nil
}

func (p *staticMap) Transform(_ context.Context, value any, _ Executable, _ *row.Row, _ string) (any, error) {
	key := row.Stringify(value)
	if mapped, ok := p.mapping[key]; ok {
		return mapped, nil
	}
	switch {
	case p.bypass:
		return value, nil
	case p.hasDefault:
		return p.fallback, nil
	default:
		return nil, Skipf("no static mapping found for %q", key)
	}
}

type concat struct {
	delimiter string
}

func newConcat(step pipeline.Step, _ Deps) (Plugin, error) {
	delimiter := ""
	if raw, ok := step["delimiter"]; ok {
		d, ok := raw.(string)
		if !ok {
			return nil, Configf(step.Plugin(), "delimiter must be a string")
		}
		delimiter = d
	}
	return &concat{delimiter: delimiter}, nil
}

func (p *concat) Transform(_ context.Context, value any, _ Executable, _ *row.Row, _ string) (any, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, Fatalf("concat expects a list, got %T", value)
	}
	parts := make([]string, 0, len(list))
	for _, v := range list {
		parts = append(parts, row.Stringify(v))
	}
	return strings.Join(parts, p.delimiter), nil
}

type skipOnEmpty struct {
	method  string
	message string
}

func newSkipOnEmpty(step pipeline.Step, _ Deps) (Plugin, error) {
	method, _ := step.String("method")
	if method != "row" && method != "process" {
		return nil, Configf(step.Plugin(), `method must be "row" or "process"`)
	}
	message, _ := step.String("message")
	return &skipOnEmpty{method: method, message: message}, nil
}

func (p *skipOnEmpty) Transform(_ context.Context, value any, _ Executable, _ *row.Row, destination string) (any, error) {
	if !isEmpty(value) {
		return value, nil
	}
	if p.method == "process" {
		return nil, ErrStopPipeline
	}
	reason := p.message
	if reason == "" {
		reason = "empty value for " + destination
	}
	return nil, &SkipRowError{Reason: reason}
}

var formatOperations = map[string]func(string) string{
	"trim":          strings.TrimSpace,
	"lower":         strings.ToLower,
	"upper":         strings.ToUpper,
	"nfc":           norm.NFC.String,
	"strip_accents": stripAccents,
}

// stripAccents decomposes s and drops the combining marks, so "Crème" becomes
// "Creme".
func stripAccents(s string) string {
	var sb strings.Builder
	decomposed := norm.NFD.String(s)
	sb.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		sb.WriteRune(r)
	}
	return norm.NFC.String(sb.String())
}

type format struct {
	operation func(string) string
}

func newFormat(step pipeline.Step, _ Deps) (Plugin, error) {
	name, _ := step.String("operation")
	op, ok := formatOperations[name]
	if !ok {
		return nil, Configf(step.Plugin(), "unknown operation %q", name)
	}
	return &format{operation: op}, nil
}

func (p *format) Transform(_ context.Context, value any, _ Executable, _ *row.Row, _ string) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return p.operation(v), nil
	default:
		return nil, Fatalf("format expects a string, got %T", value)
	}
}

func boolOption(step pipeline.Step, key string) (bool, error) {
	raw, ok := step[key]
	if !ok {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, Configf(step.Plugin(), "%s must be a boolean", key)
	}
	return b, nil
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	switch v := value.(type) {
	case string:
		return v == ""
	case bool:
		return !v
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	}
	return false
}
