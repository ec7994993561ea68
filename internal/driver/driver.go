// Package driver picks the SQL dialect and database/sql driver for a
// connection string and opens it.
package driver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rowplane/rowplane/database"
	"github.com/rowplane/rowplane/database/postgres"
	"github.com/rowplane/rowplane/database/sqlite"
)

// PingTimeout bounds the connectivity check made by Open.
const PingTimeout = 5 * time.Second

// DetectDriver returns the driver type for a connection string:
// "postgres", "libsql" or "sqlite".
func DetectDriver(connString string) string {
	lower := strings.ToLower(connString)

	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(lower, "libsql://"):
		return "libsql"
	case strings.HasPrefix(lower, "sqlite://"), strings.HasPrefix(lower, "file:"), lower == ":memory:":
		return "sqlite"
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return "sqlite"
	default:
		// lib/pq also accepts key=value DSNs
		return "postgres"
	}
}

// SQLDriverName maps a driver type to the name registered with database/sql.
func SQLDriverName(driverType string) string {
	switch driverType {
	case "postgres", "postgresql":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	case "libsql":
		return "libsql"
	default:
		return driverType
	}
}

// NewDriver creates the SQL dialect for a driver type. libSQL speaks the
// SQLite dialect.
func NewDriver(driverType string) (database.Driver, error) {
	switch driverType {
	case "postgres", "postgresql":
		return postgres.NewDriver(), nil
	case "sqlite", "sqlite3", "libsql":
		return sqlite.NewDriver(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driverType)
	}
}

// DataSource strips the sqlite:// scheme modernc.org/sqlite does not understand.
func DataSource(driverType, connString string) string {
	if driverType == "sqlite" && strings.HasPrefix(strings.ToLower(connString), "sqlite://") {
		return connString[len("sqlite://"):]
	}
	return connString
}

// Open a connection to the database, and run a ping to test it
func Open(ctx context.Context, connString string) (*sql.DB, database.Driver, error) {
	driverType := DetectDriver(connString)
	dialect, err := NewDriver(driverType)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open(SQLDriverName(driverType), DataSource(driverType, connString))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open connection: %w", err)
	}

	if driverType == "sqlite" {
		// SQLite serialises writers; a single connection avoids SQLITE_BUSY
		// and keeps :memory: databases alive across calls.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, dialect, nil
}
