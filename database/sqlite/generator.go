package sqlite

import (
	"fmt"
	"strings"

	"github.com/rowplane/rowplane/database"
)

// Generator implements database.SQLGenerator for SQLite
type Generator struct{}

// NewGenerator creates a new SQLite SQL generator
func NewGenerator() *Generator {
	return &Generator{}
}

// CreateTable generates SQLite SQL to create a table
func (g *Generator) CreateTable(table database.Table) (string, string) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n", g.QuoteIdentifier(table.Name)))

	var keys []string
	for _, col := range table.Columns {
		if col.IsPrimaryKey && !col.AutoIncrement {
			keys = append(keys, g.QuoteIdentifier(col.Name))
		}
	}

	for i, col := range table.Columns {
		sb.WriteString("  ")
		sb.WriteString(g.FormatColumnDefinition(col))
		if i < len(table.Columns)-1 || len(keys) > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}

	// Composite and text primary keys are declared as a table constraint
	if len(keys) > 0 {
		sb.WriteString(fmt.Sprintf("  PRIMARY KEY (%s)\n", strings.Join(keys, ", ")))
	}

	sb.WriteString(")")

	description := fmt.Sprintf("Create table %s", table.Name)
	return sb.String(), description
}

// DropTable generates SQLite SQL to drop a table
func (g *Generator) DropTable(tableName string) (string, string) {
	// SQLite doesn't support CASCADE
	sql := fmt.Sprintf("DROP TABLE IF EXISTS %s", g.QuoteIdentifier(tableName))
	description := fmt.Sprintf("Drop table %s", tableName)
	return sql, description
}

// AddColumn generates SQLite SQL to add a column
func (g *Generator) AddColumn(tableName string, col database.Column) (string, string) {
	sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s",
		g.QuoteIdentifier(tableName),
		g.FormatColumnDefinition(col))
	description := fmt.Sprintf("Add column %s to table %s", col.Name, tableName)
	return sql, description
}

// DropColumn generates SQLite SQL to drop a column
func (g *Generator) DropColumn(tableName string, columnName string) (string, string) {
	// SQLite 3.35.0+
	sql := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", g.QuoteIdentifier(tableName), g.QuoteIdentifier(columnName))
	description := fmt.Sprintf("Drop column %s from table %s", columnName, tableName)
	return sql, description
}

// AddIndex generates SQLite SQL to add an index
func (g *Generator) AddIndex(tableName string, idx database.Index) (string, string) {
	uniqueStr := ""
	if idx.Unique {
		uniqueStr = "UNIQUE "
	}

	columns := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		columns[i] = g.QuoteIdentifier(c)
	}

	sql := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		uniqueStr, g.QuoteIdentifier(idx.Name), g.QuoteIdentifier(tableName), strings.Join(columns, ", "))

	description := fmt.Sprintf("Create index %s on table %s", idx.Name, tableName)
	return sql, description
}

// FormatColumnDefinition formats a column definition for CREATE/ALTER statements
func (g *Generator) FormatColumnDefinition(col database.Column) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s %s", g.QuoteIdentifier(col.Name), g.columnType(col.Type)))

	// An INTEGER PRIMARY KEY is the rowid alias; AUTOINCREMENT keeps ids
	// from being reused after deletes.
	if col.AutoIncrement {
		sb.WriteString(" PRIMARY KEY AUTOINCREMENT")
		return sb.String()
	}

	if !col.Nullable {
		sb.WriteString(" NOT NULL")
	}

	if col.Default != nil {
		sb.WriteString(fmt.Sprintf(" DEFAULT %s", *col.Default))
	}

	return sb.String()
}

func (g *Generator) columnType(generic string) string {
	switch generic {
	case database.TypeInteger, database.TypeTimestamp:
		return "INTEGER"
	case database.TypeText, database.TypeJSON:
		return "TEXT"
	default:
		return generic
	}
}

// QuoteIdentifier wraps a name in double quotes, doubling embedded quotes.
func (g *Generator) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ParameterPlaceholder returns the SQLite parameter placeholder (?)
func (g *Generator) ParameterPlaceholder(position int) string {
	return "?"
}

// Upsert generates an INSERT ... ON CONFLICT statement
func (g *Generator) Upsert(tableName string, columns []string, conflict []string) string {
	return database.BuildUpsert(g, tableName, columns, conflict)
}
