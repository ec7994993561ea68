package source

import (
	"context"
	"fmt"
	"iter"
	"regexp"
	"sort"

	"github.com/rowplane/rowplane/internal/row"
)

// derivation computes a source property from another one. The first capture
// group of pattern becomes the value, or the whole match when the pattern has
// no groups. A value that does not match leaves the property null.
//
//	source:
//	  plugin: csv
//	  ids: [nid]
//	  path: menu.csv
//	  derive:
//	    nid: {from: link_path, pattern: '^node/(\d+)$'}
type derivation struct {
	name    string
	from    string
	pattern *regexp.Regexp
}

func (d derivation) apply(r *row.Row) {
	v, ok := r.SourceProperty(d.from)
	if !ok || v == nil {
		r.SetSourceProperty(d.name, nil)
		return
	}
	m := d.pattern.FindStringSubmatch(row.Stringify(v))
	switch {
	case m == nil:
		r.SetSourceProperty(d.name, nil)
	case len(m) > 1:
		r.SetSourceProperty(d.name, m[1])
	default:
		r.SetSourceProperty(d.name, m[0])
	}
}

func parseDerivations(raw any) ([]derivation, error) {
	if raw == nil {
		return nil, nil
	}
	specs, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("derive must map property names to {from, pattern}, got %T", raw)
	}

	out := make([]derivation, 0, len(specs))
	for name, spec := range specs {
		opts, ok := spec.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("derive.%s must be a mapping", name)
		}
		from, err := stringOption(opts, "from")
		if err != nil || from == "" {
			return nil, fmt.Errorf("derive.%s requires from", name)
		}
		pattern, err := stringOption(opts, "pattern")
		if err != nil || pattern == "" {
			return nil, fmt.Errorf("derive.%s requires pattern", name)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("derive.%s: %w", name, err)
		}
		out = append(out, derivation{name: name, from: from, pattern: re})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

// derived adds computed properties to the rows of another source.
type derived struct {
	Source
	rules []derivation
}

func (s *derived) Rows(ctx context.Context) iter.Seq2[*row.Row, error] {
	return func(yield func(*row.Row, error) bool) {
		for r, err := range s.Source.Rows(ctx) {
			if err == nil {
				for _, d := range s.rules {
					d.apply(r)
				}
			}
			if !yield(r, err) {
				return
			}
		}
	}
}
