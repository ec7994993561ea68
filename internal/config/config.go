package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the name of the project configuration file.
const FileName = "rowplane.toml"

const (
	defaultEnvironmentName = "local"
	defaultDatabaseURL     = "sqlite://rowplane.db"
	defaultPipelinesDir    = "pipelines"
	defaultMigrationsDir   = "migrations"
)

// EnvironmentConfig describes a single named environment from rowplane.toml.
type EnvironmentConfig struct {
	Description string `toml:"description,omitempty"`
	DatabaseURL string `toml:"database_url,omitempty"`
}

// Config is the content of rowplane.toml.
//
//	default_environment = "local"
//	migrations_dir = "migrations"
//	pipelines_dir = "pipelines"
//	workers = 4
//
//	[environments.local]
//	database_url = "sqlite://rowplane.db"
type Config struct {
	DefaultEnvironment string                       `toml:"default_environment"`
	DatabaseURL        string                       `toml:"database_url"`
	PipelinesDir       string                       `toml:"pipelines_dir"`
	MigrationsDir      string                       `toml:"migrations_dir"`
	Workers            int                          `toml:"workers"`
	Environments       map[string]EnvironmentConfig `toml:"environments"`
	ConfigFilePath     string                       `toml:"-"`

	configDir  string
	projectDir string
}

// LoadConfig looks for rowplane.toml in the working directory and its
// parents, stopping at the project root. A missing file yields an empty
// configuration rooted at the working directory.
func LoadConfig() (*Config, error) {
	startDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return LoadConfigFrom(startDir)
}

// LoadConfigFrom is LoadConfig starting at startDir.
func LoadConfigFrom(startDir string) (*Config, error) {
	dir := startDir
	for {
		configPath := filepath.Join(dir, FileName)
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, err
			}

			var config Config
			if err := toml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
			}
			if config.Workers < 0 {
				return nil, fmt.Errorf("%s: workers must not be negative", configPath)
			}

			config.ConfigFilePath = configPath
			config.configDir = dir
			config.projectDir = findProjectRoot(dir)
			return &config, nil
		}

		if isProjectRoot(dir) {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return &Config{configDir: startDir, projectDir: findProjectRoot(startDir)}, nil
}

// ConfigDir is the directory holding rowplane.toml, or the starting
// directory when there is none.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// ProjectDir is the nearest enclosing project root, or empty.
func (c *Config) ProjectDir() string {
	return c.projectDir
}

// PipelinesPath returns the absolute pipeline definition directory.
func (c *Config) PipelinesPath() string {
	return c.resolve(c.PipelinesDir, defaultPipelinesDir)
}

// MigrationsPath returns the absolute migration definition directory.
func (c *Config) MigrationsPath() string {
	return c.resolve(c.MigrationsDir, defaultMigrationsDir)
}

func (c *Config) resolve(path, fallback string) string {
	if path == "" {
		path = fallback
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.configDir, path)
}

func findProjectRoot(dir string) string {
	for {
		if isProjectRoot(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// isProjectRoot checks if the directory is a project root based on common markers
func isProjectRoot(dir string) bool {
	for _, marker := range []string{".git", "go.mod", "package.json"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}
