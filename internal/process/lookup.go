package process

import (
	"context"
	"fmt"

	"github.com/rowplane/rowplane/internal/pipeline"
	"github.com/rowplane/rowplane/internal/row"
)

// migrationLookup maps a source id of another migration to the destination id
// that migration recorded. A list value is treated as a multi-column key.
//
//	parent:
//	  - plugin: migration_lookup
//	    source: parent_nid
//	    migration: [pages, articles]
//	    on_missing: skip
type migrationLookup struct {
	migrations []string
	skipMiss   bool
	lookup     MapLookup
}

func newMigrationLookup(step pipeline.Step, deps Deps) (Plugin, error) {
	p := &migrationLookup{lookup: deps.Lookup}
	switch m := step["migration"].(type) {
	case string:
		p.migrations = []string{m}
	case []any:
		for _, v := range m {
			id, ok := v.(string)
			if !ok || id == "" {
				return nil, Configf(step.Plugin(), "migration list must contain migration ids")
			}
			p.migrations = append(p.migrations, id)
		}
	}
	if len(p.migrations) == 0 {
		return nil, Configf(step.Plugin(), "migration is required")
	}

	switch mode, _ := step.String("on_missing"); mode {
	case "", "null":
	case "skip":
		p.skipMiss = true
	default:
		return nil, Configf(step.Plugin(), `on_missing must be "null" or "skip"`)
	}

	if deps.Lookup == nil {
		return nil, Configf(step.Plugin(), "no identity map lookup available")
	}
	return p, nil
}

func (p *migrationLookup) Transform(ctx context.Context, value any, _ Executable, _ *row.Row, _ string) (any, error) {
	if isEmpty(value) {
		return nil, nil
	}

	var sourceIDs []string
	if list, ok := value.([]any); ok {
		for _, v := range list {
			sourceIDs = append(sourceIDs, row.Stringify(v))
		}
	} else {
		sourceIDs = []string{row.Stringify(value)}
	}

	for _, migration := range p.migrations {
		ids, err := p.lookup.LookupDestinationIDs(ctx, migration, sourceIDs)
		if err != nil {
			return nil, fmt.Errorf("lookup in %s: %w", migration, err)
		}
		switch len(ids) {
		case 0:
			continue
		case 1:
			return ids[0], nil
		default:
			out := make([]any, len(ids))
			for i, id := range ids {
				out[i] = id
			}
			return out, nil
		}
	}

	if p.skipMiss {
		return nil, Skipf("%v was not imported by %v", sourceIDs, p.migrations)
	}
	return nil, nil
}
