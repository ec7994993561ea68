package row

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PathSeparator separates the segments of a nested property name,
// e.g. "body/0/value".
const PathSeparator = "/"

// Row is one unit of work flowing through a migration. It carries the source
// record and the destination properties built up by the process pipeline.
type Row struct {
	source      map[string]any
	destination map[string]any
	parent      *Row
}

// New creates a row from a source record. The map is copied.
func New(source map[string]any) *Row {
	src := make(map[string]any, len(source))
	for k, v := range source {
		src[k] = v
	}
	return &Row{
		source:      src,
		destination: map[string]any{},
	}
}

// Source returns the full source property set.
func (r *Row) Source() map[string]any {
	return r.source
}

// SourceProperty returns a source property. Names containing "/" walk into
// nested maps and slices.
func (r *Row) SourceProperty(name string) (any, bool) {
	return lookupPath(r.source, name)
}

// SetSourceProperty sets a top-level source property. Sources use this for
// derived values, such as a node id parsed out of a link path.
func (r *Row) SetSourceProperty(name string, value any) {
	r.source[name] = value
}

// Destination returns the destination properties of this scope only.
func (r *Row) Destination() map[string]any {
	return r.destination
}

// DestinationProperty returns a destination property, falling back to the
// enclosing scopes for rows created with Child.
func (r *Row) DestinationProperty(name string) (any, bool) {
	for scope := r; scope != nil; scope = scope.parent {
		if v, ok := lookupPath(scope.destination, name); ok {
			return v, true
		}
	}
	return nil, false
}

// SetDestinationProperty sets a destination property in this scope.
func (r *Row) SetDestinationProperty(name string, value any) {
	r.destination[name] = value
}

// RemoveDestinationProperty deletes a destination property from this scope.
func (r *Row) RemoveDestinationProperty(name string) {
	delete(r.destination, name)
}

// Child returns a row sharing this row's source with a fresh destination scope.
// Reads of destination properties fall through to r, writes stay in the child.
func (r *Row) Child() *Row {
	return &Row{
		source:      r.source,
		destination: map[string]any{},
		parent:      r,
	}
}

// SourceIDValues returns the values of the given key fields, in order, as
// strings. It fails on the first field that is missing or nil.
func (r *Row) SourceIDValues(fields []string) ([]string, error) {
	values := make([]string, 0, len(fields))
	for _, field := range fields {
		v, ok := r.SourceProperty(field)
		if !ok || v == nil {
			return nil, &MissingIDError{Field: field}
		}
		values = append(values, Stringify(v))
	}
	return values, nil
}

// Hash returns the content hash of the full source property set.
func (r *Row) Hash() string {
	// encoding/json sorts map keys, which keeps the digest stable
	data, err := json.Marshal(r.source)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", r.source))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MissingIDError reports a declared source key field that has no value.
type MissingIDError struct {
	Field string
}

func (e *MissingIDError) Error() string {
	return fmt.Sprintf("missing value for source id field %q", e.Field)
}

// Stringify renders a scalar property value the way it is stored in key columns.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func lookupPath(props map[string]any, name string) (any, bool) {
	if v, ok := props[name]; ok {
		return v, true
	}
	if !strings.Contains(name, PathSeparator) {
		return nil, false
	}

	var current any = props
	for _, segment := range strings.Split(name, PathSeparator) {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}
