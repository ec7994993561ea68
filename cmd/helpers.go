package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/rowplane/rowplane/database"
	"github.com/rowplane/rowplane/internal/config"
	"github.com/rowplane/rowplane/internal/driver"
	"github.com/rowplane/rowplane/internal/logging"
	"github.com/rowplane/rowplane/internal/migration"
	"github.com/rowplane/rowplane/internal/pipeline"
	"github.com/rowplane/rowplane/internal/state"
)

// printConfigNotFound prints a helpful message when no migrations are found
func printConfigNotFound(dir string) {
	fmt.Fprintf(os.Stderr, `No migration definitions found in %s.

Create rowplane.toml in your project root, for example:

migrations_dir = "migrations"
pipelines_dir = "pipelines"

[environments.local]
database_url = "sqlite://rowplane.db"
`, dir)
}

// session is the state shared by commands that work on migrations.
type session struct {
	cfg     *config.Config
	env     *config.ResolvedEnvironment
	db      *sql.DB
	dialect database.Driver
	catalog *migration.Catalog
	migrate *migration.Env
	log     *logging.Logger
}

// loadDefinitions reads rowplane.toml and the migration and pipeline
// definitions it points at.
func loadDefinitions() (*config.Config, *migration.Catalog, pipeline.Store, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	dir := cfg.MigrationsPath()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		printConfigNotFound(dir)
		return nil, nil, nil, fmt.Errorf("migrations directory %s does not exist", dir)
	}
	catalog, err := migration.LoadDir(dir)
	if err != nil {
		return nil, nil, nil, err
	}

	var store pipeline.Store = pipeline.NewMemoryStore()
	if _, err := os.Stat(cfg.PipelinesPath()); err == nil {
		if store, err = pipeline.LoadDir(cfg.PipelinesPath()); err != nil {
			return nil, nil, nil, err
		}
	}
	return cfg, catalog, store, nil
}

// openSession loads the definitions and connects to the environment's
// database.
func openSession(ctx context.Context) (*session, error) {
	cfg, catalog, store, err := loadDefinitions()
	if err != nil {
		return nil, err
	}

	env, err := config.ResolveEnvironment(cfg, envName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve environment: %w", err)
	}

	db, dialect, err := driver.Open(ctx, env.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("environment %s: %w", env.Name, err)
	}

	log := logging.NewLogger(verbose)
	log.Debug("environment %s using %s database", env.Name, dialect.Name())

	return &session{
		cfg:     cfg,
		env:     env,
		db:      db,
		dialect: dialect,
		catalog: catalog,
		log:     log,
		migrate: &migration.Env{
			DB:        db,
			Dialect:   dialect,
			Catalog:   catalog,
			Pipelines: store,
			Logger:    log,
			BaseDir:   cfg.ConfigDir(),
		},
	}, nil
}

func (s *session) Close() {
	_ = s.db.Close()
}

// selectMigrations resolves the command arguments to definitions in
// dependency order.
func (s *session) selectMigrations(args []string, all bool) ([]*migration.Definition, error) {
	if len(args) == 0 && !all {
		return nil, fmt.Errorf("name at least one migration or pass --all")
	}
	if all {
		args = nil
	}
	return s.catalog.Ordered(args...)
}

// workers picks the worker count: the flag wins over rowplane.toml.
func (s *session) workers(flag int) int {
	if flag > 0 {
		return flag
	}
	return max(s.cfg.Workers, 1)
}

// guarded runs fn while the migration is marked busy in the state file.
// The mark is cleared before returning, whatever fn returns.
func (s *session) guarded(migrationID, kind string, fn func() error) error {
	st, err := state.Load(s.cfg.ConfigDir())
	if err != nil {
		return err
	}
	if err := st.Begin(s.env.Name, migrationID, kind); err != nil {
		return err
	}

	fnErr := fn()

	// Reload: other migrations may have started meanwhile.
	st, err = state.Load(s.cfg.ConfigDir())
	if err == nil {
		err = st.End(s.env.Name, migrationID)
	}
	if fnErr != nil {
		return fnErr
	}
	return err
}
