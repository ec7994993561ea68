package migration

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rowplane/rowplane/internal/schema"
)

// Catalog holds the known migration definitions by id.
type Catalog struct {
	defs map[string]*Definition
}

// NewCatalog builds a catalog. Duplicate ids and dependencies on unknown
// migrations are rejected.
func NewCatalog(defs ...*Definition) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]*Definition, len(defs))}
	for _, def := range defs {
		if existing, ok := c.defs[def.ID]; ok {
			return nil, fmt.Errorf("migration %q defined twice (%s and %s)", def.ID, existing.File, def.File)
		}
		c.defs[def.ID] = def
	}
	for _, def := range defs {
		for _, dep := range def.Dependencies {
			if _, ok := c.defs[dep]; !ok {
				return nil, fmt.Errorf("migration %q depends on unknown migration %q", def.ID, dep)
			}
		}
	}
	return c, nil
}

// LoadDir loads every migration definition file in dir.
func LoadDir(dir string) (*Catalog, error) {
	files, err := schema.DefinitionFiles(dir)
	if err != nil {
		return nil, err
	}

	defs := make([]*Definition, 0, len(files))
	for _, file := range files {
		def, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return NewCatalog(defs...)
}

// Get returns the definition with the given id.
func (c *Catalog) Get(id string) (*Definition, bool) {
	def, ok := c.defs[id]
	return def, ok
}

// IDs returns every migration id, sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.defs))
	for id := range c.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Ordered returns the requested migrations, or all of them when ids is
// empty, arranged so that every migration follows its dependencies.
// Dependencies that were not requested are not added.
func (c *Catalog) Ordered(ids ...string) ([]*Definition, error) {
	if len(ids) == 0 {
		ids = c.IDs()
	}

	requested := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := c.defs[id]; !ok {
			return nil, fmt.Errorf("unknown migration %q", id)
		}
		requested[id] = true
	}

	const (
		visiting = 1
		done     = 2
	)
	state := map[string]int{}
	var ordered []*Definition
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle: %s -> %s", strings.Join(stack, " -> "), id)
		}
		state[id] = visiting
		stack = append(stack, id)

		deps := append([]string(nil), c.defs[id].Dependencies...)
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done
		if requested[id] {
			ordered = append(ordered, c.defs[id])
		}
		return nil
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	for _, id := range sorted {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}
