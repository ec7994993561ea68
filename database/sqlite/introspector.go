package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rowplane/rowplane/database"
)

// Introspector implements database.Introspector for SQLite
type Introspector struct{}

// NewIntrospector creates a new SQLite introspector
func NewIntrospector() *Introspector {
	return &Introspector{}
}

// GetTables returns all table names in the SQLite database
func (i *Introspector) GetTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tableNames []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tableNames = append(tableNames, tableName)
	}

	return tableNames, rows.Err()
}

// TableExists reports whether tableName is present
func (i *Introspector) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", tableName).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up table %s: %w", tableName, err)
	}
	return n > 0, nil
}

// GetColumns returns all columns for a given SQLite table
func (i *Introspector) GetColumns(ctx context.Context, db *sql.DB, tableName string) ([]database.Column, error) {
	// PRAGMA table_info does not take bound parameters
	query := fmt.Sprintf("PRAGMA table_info(%s)", NewGenerator().QuoteIdentifier(tableName))

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []database.Column
	for rows.Next() {
		var cid int
		var col database.Column
		var notNull int
		var defaultVal sql.NullString
		var pk int

		// PRAGMA table_info returns: cid, name, type, notnull, dflt_value, pk
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}

		col.Nullable = notNull == 0
		col.IsPrimaryKey = pk > 0
		if defaultVal.Valid {
			col.Default = &defaultVal.String
		}

		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// a lone INTEGER PRIMARY KEY aliases the rowid and is assigned on insert
	var keys []int
	for i, col := range columns {
		if col.IsPrimaryKey {
			keys = append(keys, i)
		}
	}
	if len(keys) == 1 && strings.EqualFold(columns[keys[0]].Type, "INTEGER") {
		columns[keys[0]].AutoIncrement = true
	}

	return columns, nil
}
