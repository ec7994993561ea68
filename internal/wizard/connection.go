package wizard

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rowplane/rowplane/internal/driver"
)

// ValidateEnvironmentName checks if an environment name is valid
func ValidateEnvironmentName(name string) error {
	if name == "" {
		return fmt.Errorf("environment name cannot be empty")
	}
	for _, ch := range name {
		isValid := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_' || ch == '-'
		if !isValid {
			return fmt.Errorf("environment name must contain only letters, numbers, underscores and hyphens")
		}
	}
	return nil
}

// ValidatePort checks if a port number is valid
func ValidatePort(port string) error {
	if port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be a number")
	}
	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

// ConnectionURL builds the connection string for an environment, in the
// form driver.Open and the dotenv loader understand.
func ConnectionURL(env Environment) string {
	switch env.DatabaseType {
	case "postgres":
		u := url.URL{
			Scheme:   "postgresql",
			User:     url.UserPassword(env.User, env.Password),
			Host:     net.JoinHostPort(env.Host, env.Port),
			Path:     "/" + env.Database,
			RawQuery: "sslmode=" + sslMode(env),
		}
		return u.String()
	case "sqlite":
		return "sqlite://" + sqlitePath(env.FilePath)
	case "libsql":
		if env.AuthToken != "" {
			return fmt.Sprintf("%s?authToken=%s", env.URL, env.AuthToken)
		}
		return env.URL
	}
	return ""
}

func sslMode(env Environment) string {
	if env.SSLMode != "" {
		return env.SSLMode
	}
	if env.Host == "localhost" || env.Host == "127.0.0.1" {
		return "disable"
	}
	return "require"
}

func sqlitePath(path string) string {
	if path == "" {
		return "./rowplane.db"
	}
	if !strings.HasPrefix(path, "./") && !strings.HasPrefix(path, "/") {
		return "./" + path
	}
	return path
}

// EnvironmentFromURL fills an Environment from an existing connection
// string, for the non-interactive path.
func EnvironmentFromURL(name, connStr string) (Environment, error) {
	if err := ValidateEnvironmentName(name); err != nil {
		return Environment{}, err
	}
	env := Environment{Name: name, DatabaseType: driver.DetectDriver(connStr)}

	switch env.DatabaseType {
	case "sqlite":
		path := driver.DataSource("sqlite", connStr)
		if path == ":memory:" {
			return env, fmt.Errorf("an in-memory database cannot be shared between commands")
		}
		env.FilePath = path
		return env, nil

	case "libsql":
		u, err := url.Parse(connStr)
		if err != nil {
			return env, fmt.Errorf("invalid connection string: %w", err)
		}
		env.AuthToken = u.Query().Get("authToken")
		u.RawQuery = ""
		env.URL = u.String()
		return env, nil
	}

	if !strings.HasPrefix(connStr, "postgres://") && !strings.HasPrefix(connStr, "postgresql://") {
		return env, fmt.Errorf("connection string must start with postgres://, postgresql://, libsql:// or sqlite://")
	}
	u, err := url.Parse(connStr)
	if err != nil {
		return env, fmt.Errorf("invalid connection string: %w", err)
	}
	if u.User != nil {
		env.User = u.User.Username()
		env.Password, _ = u.User.Password()
	}
	env.Host = u.Hostname()
	env.Port = u.Port()
	if env.Port == "" {
		env.Port = "5432"
	}
	env.Database = strings.TrimPrefix(u.Path, "/")
	env.SSLMode = u.Query().Get("sslmode")

	if env.Host == "" {
		return env, fmt.Errorf("connection string missing host")
	}
	if env.Database == "" {
		return env, fmt.Errorf("connection string missing database name")
	}
	return env, nil
}

// TestConnection opens and pings the environment's database. For SQLite the
// parent directory of the file is created first.
func TestConnection(ctx context.Context, env Environment) error {
	if env.DatabaseType == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(sqlitePath(env.FilePath)), 0o755); err != nil {
			return err
		}
	}
	db, _, err := driver.Open(ctx, ConnectionURL(env))
	if err != nil {
		return err
	}
	return db.Close()
}
