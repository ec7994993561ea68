package sqlite

import (
	"github.com/rowplane/rowplane/database"
)

// Driver implements database.Driver for SQLite and libSQL
type Driver struct {
	*Introspector
	*Generator
}

// NewDriver creates a new SQLite driver
func NewDriver() *Driver {
	return &Driver{
		Introspector: NewIntrospector(),
		Generator:    NewGenerator(),
	}
}

// Name returns the database driver name
func (d *Driver) Name() string {
	return "sqlite"
}

// SupportsFeature checks if SQLite supports a specific feature
func (d *Driver) SupportsFeature(feature string) bool {
	switch feature {
	case "CASCADE":
		return false // SQLite doesn't support CASCADE on DROP TABLE
	case "DROP_COLUMN":
		return true // SQLite 3.35.0+
	case "UPSERT":
		return true // SQLite 3.24.0+
	case "RETURNING":
		return true // SQLite 3.35.0+
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
