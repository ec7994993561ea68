package migration

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/rowplane/rowplane/database"
	"github.com/rowplane/rowplane/internal/destination"
	"github.com/rowplane/rowplane/internal/idmap"
	"github.com/rowplane/rowplane/internal/logging"
	"github.com/rowplane/rowplane/internal/pipeline"
	"github.com/rowplane/rowplane/internal/process"
	"github.com/rowplane/rowplane/internal/source"
)

// Env holds everything runners share: the migration database, the plugin
// registries and the loaded definitions. Nil registries and stores fall back
// to the built-in ones.
type Env struct {
	DB           *sql.DB
	Dialect      database.Driver
	Catalog      *Catalog
	Pipelines    pipeline.Store
	Plugins      *process.Registry
	Sources      *source.Registry
	Destinations *destination.Registry
	Logger       *logging.Logger

	// BaseDir resolves relative source paths of in-memory definitions.
	BaseDir string
}

// Runner builds the runner of one migration. Every process pipeline is
// validated here, before any row is read.
func (e *Env) Runner(id string) (*Runner, error) {
	if e.Catalog == nil {
		return nil, fmt.Errorf("no migrations loaded")
	}
	def, ok := e.Catalog.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown migration %q", id)
	}

	log := logging.OrDiscard(e.Logger)
	plugins := e.Plugins
	if plugins == nil {
		plugins = process.DefaultRegistry()
	}
	sources := e.Sources
	if sources == nil {
		sources = source.NewRegistry()
	}
	destinations := e.Destinations
	if destinations == nil {
		destinations = destination.NewRegistry()
	}

	baseDir := e.BaseDir
	if def.File != "" {
		baseDir = filepath.Dir(def.File)
	}

	src, err := sources.Build(source.Config{
		Plugin:  def.Source.Plugin,
		IDs:     def.Source.IDs,
		Options: def.Source.Options,
		BaseDir: baseDir,
		DB:      e.DB,
		Dialect: e.Dialect,
	})
	if err != nil {
		return nil, fmt.Errorf("migration %q: %w", id, err)
	}

	dest, err := destinations.Build(destination.Config{
		Plugin:  def.Destination.Plugin,
		IDs:     def.Destination.IDs,
		Options: def.Destination.Options,
		DB:      e.DB,
		Dialect: e.Dialect,
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("migration %q: %w", id, err)
	}

	m, err := e.identityMap(def)
	if err != nil {
		return nil, err
	}

	exec := process.NewExecutor(plugins, e.Pipelines,
		process.WithLookup(mapLookup{env: e}),
		process.WithDatabase(e.DB, e.Dialect),
		process.WithLogger(log))
	for _, prop := range def.Process {
		if err := exec.Validate(prop.Steps); err != nil {
			return nil, fmt.Errorf("migration %q property %q: %w", id, prop.Name, err)
		}
	}

	return &Runner{
		def:    def,
		source: src,
		dest:   dest,
		idmap:  m,
		exec:   exec,
		log:    log,
	}, nil
}

func (e *Env) identityMap(def *Definition) (*idmap.IdentityMap, error) {
	return idmap.New(e.DB, e.Dialect, idmap.Options{
		MigrationID:         def.ID,
		SourceIDFields:      def.Source.IDs,
		DestinationIDFields: def.Destination.IDs,
		TrackLastImported:   def.TrackLastImported,
		StoreRowData:        def.StoreRowData,
		Logger:              e.Logger,
	})
}

// mapLookup resolves migration_lookup steps against the identity maps of the
// catalog's migrations.
type mapLookup struct {
	env *Env
}

func (l mapLookup) LookupDestinationIDs(ctx context.Context, migrationID string, sourceIDs []string) ([]string, error) {
	def, ok := l.env.Catalog.Get(migrationID)
	if !ok {
		return nil, fmt.Errorf("unknown migration %q", migrationID)
	}
	m, err := l.env.identityMap(def)
	if err != nil {
		return nil, err
	}

	// a migration that never ran has no map yet
	exists, err := m.TableExists(ctx)
	if err != nil || !exists {
		return nil, err
	}
	return m.LookupDestinationIDs(ctx, sourceIDs)
}
