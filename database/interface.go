package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Generic column types. Each dialect maps them to its own SQL type.
const (
	TypeText      = "text"
	TypeInteger   = "integer"
	TypeJSON      = "json"
	TypeTimestamp = "timestamp"
)

// Table represents a database table
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
	Indexes []Index  `json:"indexes,omitempty"`
}

// Column represents a table column
type Column struct {
	Name          string  `json:"name"`
	Type          string  `json:"type"`
	Nullable      bool    `json:"nullable"`
	Default       *string `json:"default,omitempty"`
	IsPrimaryKey  bool    `json:"is_primary_key"`
	AutoIncrement bool    `json:"auto_increment,omitempty"`
}

// Index represents a table index
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// Introspector defines the interface for database schema introspection
type Introspector interface {
	// GetTables returns all table names in the database
	GetTables(ctx context.Context, db *sql.DB) ([]string, error)

	// GetColumns returns all columns for a given table
	GetColumns(ctx context.Context, db *sql.DB, tableName string) ([]Column, error)

	// TableExists reports whether a table is present
	TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error)
}

// SQLGenerator defines the interface for generating database-specific SQL
type SQLGenerator interface {
	// CreateTable generates SQL to create a table if it does not exist
	CreateTable(table Table) (sql string, description string)

	// DropTable generates SQL to drop a table
	DropTable(tableName string) (sql string, description string)

	// AddColumn generates SQL to add a column to a table
	AddColumn(tableName string, col Column) (sql string, description string)

	// DropColumn generates SQL to drop a column from a table
	DropColumn(tableName string, columnName string) (sql string, description string)

	// AddIndex generates SQL to add an index
	AddIndex(tableName string, idx Index) (sql string, description string)

	// FormatColumnDefinition formats a column definition for CREATE TABLE
	FormatColumnDefinition(col Column) string

	// QuoteIdentifier quotes a table or column name
	QuoteIdentifier(name string) string

	// ParameterPlaceholder returns the parameter placeholder for this database
	// PostgreSQL: $1, $2, etc.
	// SQLite: ?, ?, etc.
	ParameterPlaceholder(position int) string

	// Upsert generates an INSERT that updates the non-key columns when a row
	// with the same conflict columns already exists.
	Upsert(tableName string, columns []string, conflict []string) string
}

// Driver represents a database driver with introspection and SQL generation
type Driver interface {
	Introspector
	SQLGenerator

	// Name returns the database driver name (e.g., "postgres", "sqlite")
	Name() string

	// SupportsFeature checks if the database supports a specific feature
	SupportsFeature(feature string) bool
}

// BuildUpsert renders an ON CONFLICT upsert. Both SQLite (3.24+) and
// PostgreSQL accept the same syntax; only quoting and placeholders differ.
func BuildUpsert(g SQLGenerator, tableName string, columns []string, conflict []string) string {
	quoted := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = g.QuoteIdentifier(c)
		params[i] = g.ParameterPlaceholder(i + 1)
	}

	isKey := make(map[string]bool, len(conflict))
	keys := make([]string, len(conflict))
	for i, c := range conflict {
		isKey[c] = true
		keys[i] = g.QuoteIdentifier(c)
	}

	var updates []string
	for _, c := range columns {
		if isKey[c] {
			continue
		}
		q := g.QuoteIdentifier(c)
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", q, q))
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s)",
		g.QuoteIdentifier(tableName),
		strings.Join(quoted, ", "),
		strings.Join(params, ", "),
		strings.Join(keys, ", "))
	if len(updates) == 0 {
		return stmt + " DO NOTHING"
	}
	return stmt + " DO UPDATE SET " + strings.Join(updates, ", ")
}
