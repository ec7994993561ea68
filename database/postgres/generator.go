package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/rowplane/rowplane/database"
)

// Generator implements database.SQLGenerator for PostgreSQL
type Generator struct{}

// NewGenerator creates a new PostgreSQL SQL generator
func NewGenerator() *Generator {
	return &Generator{}
}

// CreateTable generates PostgreSQL SQL to create a table
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

	if len(keys) > 0 {
		sb.WriteString(fmt.Sprintf("  PRIMARY KEY (%s)\n", strings.Join(keys, ", ")))
	}

	sb.WriteString(")")

	description := fmt.Sprintf("Create table %s", table.Name)
	return sb.String(), description
}

// DropTable generates PostgreSQL SQL to drop a table
func (g *Generator) DropTable(tableName string) (string, string) {
	sql := fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", g.QuoteIdentifier(tableName))
	description := fmt.Sprintf("Drop table %s", tableName)
	return sql, description
}

// AddColumn generates PostgreSQL SQL to add a column
func (g *Generator) AddColumn(tableName string, col database.Column) (string, string) {
	sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s",
		g.QuoteIdentifier(tableName),
		g.FormatColumnDefinition(col))
	description := fmt.Sprintf("Add column %s to table %s", col.Name, tableName)
	return sql, description
}

// DropColumn generates PostgreSQL SQL to drop a column
func (g *Generator) DropColumn(tableName string, columnName string) (string, string) {
	sql := fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s", g.QuoteIdentifier(tableName), g.QuoteIdentifier(columnName))
	description := fmt.Sprintf("Drop column %s from table %s", columnName, tableName)
	return sql, description
}

// AddIndex generates PostgreSQL SQL to add an index
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

	if col.AutoIncrement {
		sb.WriteString(fmt.Sprintf("%s BIGSERIAL PRIMARY KEY", g.QuoteIdentifier(col.Name)))
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("%s %s", g.QuoteIdentifier(col.Name), g.columnType(col.Type)))

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
	case database.TypeText:
		return "TEXT"
	case database.TypeInteger, database.TypeTimestamp:
		return "BIGINT"
	case database.TypeJSON:
		return "JSONB"
	default:
		return generic
	}
}

// QuoteIdentifier quotes a name using lib/pq's rules
func (g *Generator) QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

// ParameterPlaceholder returns the PostgreSQL parameter placeholder ($1, $2, etc.)
func (g *Generator) ParameterPlaceholder(position int) string {
	return fmt.Sprintf("$%d", position)
}

// Upsert generates an INSERT ... ON CONFLICT statement
func (g *Generator) Upsert(tableName string, columns []string, conflict []string) string {
	return database.BuildUpsert(g, tableName, columns, conflict)
}
