package postgres

import (
	"github.com/rowplane/rowplane/database"
)

// Driver implements database.Driver for PostgreSQL
type Driver struct {
	*Introspector
	*Generator
}

// NewDriver creates a new PostgreSQL driver
func NewDriver() *Driver {
	return &Driver{
		Introspector: NewIntrospector(),
		Generator:    NewGenerator(),
	}
}

// Name returns the database driver name
func (d *Driver) Name() string {
	return "postgres"
}

// SupportsFeature checks if PostgreSQL supports a specific feature
func (d *Driver) SupportsFeature(feature string) bool {
	switch feature {
	case "CASCADE", "DROP_COLUMN", "UPSERT", "RETURNING", "JSONB":
		return true
	default:
		return false
	}
}

// Ensure Driver implements database.Driver
var _ database.Driver = (*Driver)(nil)

// Ensure Introspector implements database.Introspector
var _ database.Introspector = (*Introspector)(nil)

// Ensure Generator implements database.SQLGenerator
var _ database.SQLGenerator = (*Generator)(nil)
