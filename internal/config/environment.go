package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// ResolvedEnvironment represents a fully-resolved environment with concrete values.
type ResolvedEnvironment struct {
	Name        string
	DatabaseURL string
	DotenvPath  string
	FromConfig  bool
	FromDotenv  bool
}

// ResolveEnvironment resolves a named environment into a concrete connection
// string. Values from .env.<name> take precedence over rowplane.toml.
func ResolveEnvironment(config *Config, name string) (*ResolvedEnvironment, error) {
	envName := strings.TrimSpace(name)
	if envName == "" {
		if config != nil && config.DefaultEnvironment != "" {
			envName = config.DefaultEnvironment
		} else {
			envName = defaultEnvironmentName
		}
	}

	var (
		envConfig EnvironmentConfig
		envExists bool
	)
	if config != nil && config.Environments != nil {
		envConfig, envExists = config.Environments[envName]
	}
	if config != nil && envConfig.DatabaseURL == "" {
		envConfig.DatabaseURL = config.DatabaseURL
	}

	resolved := &ResolvedEnvironment{
		Name:        envName,
		DatabaseURL: envConfig.DatabaseURL,
		FromConfig:  envExists,
	}

	dotenvFileName := ".env." + envName
	var baseDir, projectDir string
	if config != nil {
		baseDir = config.ConfigDir()
		projectDir = config.ProjectDir()
	}
	if baseDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			baseDir = cwd
		}
	}
	resolved.DotenvPath = filepath.Join(baseDir, dotenvFileName)

	if _, err := os.Stat(resolved.DotenvPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to access %s: %w", resolved.DotenvPath, err)
		}
		if projectDir != "" && projectDir != baseDir {
			altPath := filepath.Join(projectDir, dotenvFileName)
			if info, err := os.Stat(altPath); err == nil && !info.IsDir() {
				resolved.DotenvPath = altPath
			}
		}
	}

	if info, err := os.Stat(resolved.DotenvPath); err == nil && !info.IsDir() {
		values, err := godotenv.Read(resolved.DotenvPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", resolved.DotenvPath, err)
		}
		resolved.FromDotenv = true
		if url := databaseURLFromDotenv(values); url != "" {
			resolved.DatabaseURL = url
		}
	}

	if config != nil && len(config.Environments) > 0 && !envExists && !resolved.FromDotenv {
		return nil, fmt.Errorf("environment %q not defined in %s and %s not found", envName, FileName, resolved.DotenvPath)
	}

	if resolved.DatabaseURL == "" {
		resolved.DatabaseURL = defaultDatabaseURL
	}
	return resolved, nil
}

// databaseURLFromDotenv picks the connection string from a dotenv file.
// DATABASE_URL wins over the database specific variables.
func databaseURLFromDotenv(values map[string]string) string {
	if v := values["DATABASE_URL"]; v != "" {
		return v
	}
	if v := values["POSTGRES_URL"]; v != "" {
		return v
	}
	if v := values["SQLITE_DB_PATH"]; v != "" {
		return v
	}
	if v := values["LIBSQL_URL"]; v != "" {
		if token := values["LIBSQL_AUTH_TOKEN"]; token != "" {
			return fmt.Sprintf("%s?authToken=%s", v, token)
		}
		return v
	}
	return ""
}
