package destination

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/rowplane/rowplane/database"
	"github.com/rowplane/rowplane/internal/idmap"
	"github.com/rowplane/rowplane/internal/logging"
	"github.com/rowplane/rowplane/internal/row"
)

// Table writes each row into a database table, one destination property per
// column.
//
//	destination:
//	  plugin: table
//	  ids: [id]
//	  table: articles
//	  overwrite_properties: [title]
//	  rollback_action: preserve
//
// With overwrite_properties the destination only updates rows that already
// exist and touches only the listed columns. A single auto-assigned key
// column may be left unset; the database then allocates it.
type Table struct {
	ids       []string
	table     string
	overwrite []string
	action    idmap.RollbackAction
	db        *sql.DB
	dialect   database.Driver
	log       *logging.Logger

	mu      sync.Mutex
	columns map[string]database.Column
}

// NewTable builds a table destination.
func NewTable(cfg Config) (Destination, error) {
	table, _ := cfg.Options["table"].(string)
	if table == "" {
		return nil, fmt.Errorf("table destination requires a table")
	}
	if cfg.DB == nil || cfg.Dialect == nil {
		return nil, fmt.Errorf("table destination has no database connection")
	}

	overwrite, err := stringList(cfg.Options["overwrite_properties"])
	if err != nil {
		return nil, fmt.Errorf("overwrite_properties: %w", err)
	}

	actionName, _ := cfg.Options["rollback_action"].(string)
	action, err := idmap.ParseRollbackAction(actionName)
	if err != nil {
		return nil, err
	}

	return &Table{
		ids:       cfg.IDs,
		table:     table,
		overwrite: overwrite,
		action:    action,
		db:        cfg.DB,
		dialect:   cfg.Dialect,
		log:       logging.OrDiscard(cfg.Logger),
	}, nil
}

// IDs implements Destination.
func (t *Table) IDs() []string {
	return t.ids
}

// RollbackAction implements Destination.
func (t *Table) RollbackAction() idmap.RollbackAction {
	return t.action
}

// Import implements Destination.
func (t *Table) Import(ctx context.Context, r *row.Row, oldIDs []string) ([]string, error) {
	columns, err := t.loadColumns(ctx)
	if err != nil {
		return nil, err
	}

	values := make(map[string]any, len(r.Destination()))
	for name, v := range r.Destination() {
		if _, ok := columns[name]; !ok {
			return nil, &Error{Reason: fmt.Sprintf("unknown field %q for table %s", name, t.table)}
		}
		encoded, err := encodeValue(v)
		if err != nil {
			return nil, &Error{Reason: fmt.Sprintf("cannot store field %q", name), Err: err}
		}
		values[name] = encoded
	}

	var missing []string
	for i, id := range t.ids {
		if values[id] != nil {
			continue
		}
		if len(oldIDs) == len(t.ids) && oldIDs[i] != "" {
			values[id] = oldIDs[i]
			continue
		}
		delete(values, id)
		missing = append(missing, id)
	}

	switch {
	case len(t.overwrite) > 0:
		if len(missing) > 0 {
			return nil, &Error{Reason: fmt.Sprintf("missing required field %q", missing[0])}
		}
		return t.update(ctx, values)
	case len(missing) == 1 && len(t.ids) == 1 && columns[missing[0]].AutoIncrement:
		return t.insert(ctx, values)
	case len(missing) > 0:
		return nil, &Error{Reason: fmt.Sprintf("missing required field %q", missing[0])}
	}

	names := sortedKeys(values)
	args := make([]any, len(names))
	for i, name := range names {
		args[i] = values[name]
	}
	if _, err := t.db.ExecContext(ctx, t.dialect.Upsert(t.table, names, t.ids), args...); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", t.table, err)
	}
	return t.keyValues(values), nil
}

// insert adds a row whose key is assigned by the database.
func (t *Table) insert(ctx context.Context, values map[string]any) ([]string, error) {
	if !t.dialect.SupportsFeature("RETURNING") {
		return nil, &Error{Reason: fmt.Sprintf("missing required field %q", t.ids[0])}
	}

	q := t.dialect.QuoteIdentifier
	names := sortedKeys(values)
	var stmt string
	if len(names) == 0 {
		stmt = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", q(t.table), q(t.ids[0]))
	} else {
		quoted := make([]string, len(names))
		params := make([]string, len(names))
		for i, name := range names {
			quoted[i] = q(name)
			params[i] = t.dialect.ParameterPlaceholder(i + 1)
		}
		stmt = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			q(t.table), strings.Join(quoted, ", "), strings.Join(params, ", "), q(t.ids[0]))
	}

	args := make([]any, len(names))
	for i, name := range names {
		args[i] = values[name]
	}

	var id any
	if err := t.db.QueryRowContext(ctx, stmt, args...).Scan(&id); err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", t.table, err)
	}
	t.log.Debug("%s: allocated %s %v", t.table, t.ids[0], id)
	return []string{row.Stringify(id)}, nil
}

// update rewrites the overwrite properties of an existing row.
func (t *Table) update(ctx context.Context, values map[string]any) ([]string, error) {
	q := t.dialect.QuoteIdentifier
	keys := t.keyValues(values)

	where, args := t.whereKeys(keys, 1)
	var exists int
	err := t.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT 1 FROM %s WHERE %s", q(t.table), where), args...).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &Error{Reason: fmt.Sprintf("no writable target in %s for %v", t.table, keys)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", t.table, err)
	}

	var sets []string
	var setArgs []any
	for _, name := range t.overwrite {
		v, ok := values[name]
		if !ok || slices.Contains(t.ids, name) {
			continue
		}
		setArgs = append(setArgs, v)
		sets = append(sets, fmt.Sprintf("%s = %s", q(name), t.dialect.ParameterPlaceholder(len(setArgs))))
	}
	if len(sets) == 0 {
		return keys, nil
	}

	where, args = t.whereKeys(keys, len(setArgs)+1)
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s", q(t.table), strings.Join(sets, ", "), where)
	if _, err := t.db.ExecContext(ctx, stmt, append(setArgs, args...)...); err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", t.table, err)
	}
	return keys, nil
}

// Rollback implements Destination.
func (t *Table) Rollback(ctx context.Context, ids []string) error {
	if len(ids) != len(t.ids) {
		return fmt.Errorf("rollback of %s expects %d ids, got %d", t.table, len(t.ids), len(ids))
	}
	where, args := t.whereKeys(ids, 1)
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", t.dialect.QuoteIdentifier(t.table), where)
	if _, err := t.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", t.table, err)
	}
	return nil
}

func (t *Table) loadColumns(ctx context.Context) (map[string]database.Column, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.columns != nil {
		return t.columns, nil
	}

	exists, err := t.dialect.TableExists(ctx, t.db, t.table)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", t.table, err)
	}
	if !exists {
		return nil, fmt.Errorf("destination table %s does not exist", t.table)
	}

	cols, err := t.dialect.GetColumns(ctx, t.db, t.table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", t.table, err)
	}
	columns := make(map[string]database.Column, len(cols))
	for _, col := range cols {
		columns[col.Name] = col
	}
	for _, id := range append(slices.Clone(t.ids), t.overwrite...) {
		if _, ok := columns[id]; !ok {
			return nil, fmt.Errorf("destination table %s has no column %q", t.table, id)
		}
	}

	t.columns = columns
	return columns, nil
}

func (t *Table) whereKeys(keys []string, first int) (string, []any) {
	parts := make([]string, len(t.ids))
	args := make([]any, len(t.ids))
	for i, id := range t.ids {
		parts[i] = fmt.Sprintf("%s = %s", t.dialect.QuoteIdentifier(id), t.dialect.ParameterPlaceholder(first+i))
		args[i] = keys[i]
	}
	return strings.Join(parts, " AND "), args
}

func (t *Table) keyValues(values map[string]any) []string {
	keys := make([]string, len(t.ids))
	for i, id := range t.ids {
		keys[i] = row.Stringify(values[id])
	}
	return keys
}

// encodeValue stores structured values as JSON text.
func encodeValue(v any) (any, error) {
	switch v.(type) {
	case map[string]any, []any, []string:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	default:
		return v, nil
	}
}

func stringList(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok || s == "" {
				return nil, fmt.Errorf("expected a list of property names")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of property names")
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
