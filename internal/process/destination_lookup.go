package process

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rowplane/rowplane/database"
	"github.com/rowplane/rowplane/internal/pipeline"
	"github.com/rowplane/rowplane/internal/row"
)

// destinationLookup reads one field of a record that already exists in the
// destination database, found by the incoming value. A null value yields "";
// a missing record or an unset field skips the row.
//
//	author_name:
//	  - plugin: destination_lookup
//	    source: uid
//	    table: users
//	    key: id
//	    field: name
type destinationLookup struct {
	query string
	table string
	db    *sql.DB
}

func newDestinationLookup(step pipeline.Step, deps Deps) (Plugin, error) {
	opts := map[string]string{}
	for _, key := range []string{"table", "key", "field"} {
		v, ok := step.String(key)
		if !ok || v == "" {
			return nil, Configf(step.Plugin(), "%s is required", key)
		}
		opts[key] = v
	}
	if deps.DB == nil || deps.Dialect == nil {
		return nil, Configf(step.Plugin(), "no destination database available")
	}

	return &destinationLookup{
		query: lookupQuery(deps.Dialect, opts["table"], opts["key"], opts["field"]),
		table: opts["table"],
		db:    deps.DB,
	}, nil
}

func lookupQuery(d database.Driver, table, key, field string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		d.QuoteIdentifier(field), d.QuoteIdentifier(table), d.QuoteIdentifier(key), d.ParameterPlaceholder(1))
}

func (p *destinationLookup) Transform(ctx context.Context, value any, _ Executable, _ *row.Row, _ string) (any, error) {
	if value == nil || value == "" {
		return "", nil
	}

	var got any
	err := p.db.QueryRowContext(ctx, p.query, value).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Skipf("no record %v in %s", value, p.table)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p.table, err)
	}

	switch v := got.(type) {
	case nil:
		return nil, Skipf("record %v in %s has no value", value, p.table)
	case []byte:
		return string(v), nil
	default:
		return v, nil
	}
}
