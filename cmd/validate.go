package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/rowplane/rowplane/database/sqlite"
	"github.com/rowplane/rowplane/diagnostic"
	"github.com/rowplane/rowplane/internal/config"
	"github.com/rowplane/rowplane/internal/migration"
	"github.com/rowplane/rowplane/internal/pipeline"
	"github.com/rowplane/rowplane/internal/process"
	"github.com/rowplane/rowplane/internal/schema"
)

var validateContext bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate migration and pipeline definitions",
	Long: `Validate loads every migration and pipeline definition, checks them
against their schemas and builds every process plugin, without touching a
database.`,
	Example: `  # Validate every definition in the project
  rowplane validate

  # Without the source line under each problem
  rowplane validate --context=false`,
	Run: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&validateContext, "context", true, "Print the offending line under each problem")
}

func runValidate(cmd *cobra.Command, args []string) {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	collectors, err := validateDefinitions(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	formatter := diagnostic.NewFormatter()
	formatter.ShowCodeContext = validateContext

	failed := false
	for _, c := range collectors {
		fmt.Fprint(os.Stderr, formatter.FormatAll(c))
		failed = failed || c.HasErrors()
	}
	if failed {
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, "✓ All definitions are valid")
}

// validateDefinitions returns one collector per definition file. Runners are
// built against a throwaway in-memory database: constructing them checks
// plugins and options but runs no queries.
func validateDefinitions(cfg *config.Config) ([]*diagnostic.Collector, error) {
	var collectors []*diagnostic.Collector
	collector := func(file string) *diagnostic.Collector {
		content, _ := os.ReadFile(file)
		c := diagnostic.NewCollector(file, string(content))
		collectors = append(collectors, c)
		return c
	}

	store := pipeline.NewMemoryStore()
	if files, err := schema.DefinitionFiles(cfg.PipelinesPath()); err == nil {
		for _, file := range files {
			def, err := pipeline.LoadFile(file)
			if err != nil {
				reportLoadError(collector(file), err)
				continue
			}
			if existing, ok := store.Load(def.ID); ok {
				dup := &pipeline.DuplicateIDError{ID: def.ID, Files: []string{existing.File, file}}
				collector(file).AddAtToken(diagnostic.SeverityError, "id:", def.ID, "duplicate", dup.Error())
				continue
			}
			store.Add(def)
		}
	}

	files, err := schema.DefinitionFiles(cfg.MigrationsPath())
	if err != nil {
		return nil, err
	}
	var defs []*migration.Definition
	for _, file := range files {
		def, err := migration.LoadFile(file)
		if err != nil {
			reportLoadError(collector(file), err)
			continue
		}
		defs = append(defs, def)
	}

	catalog, err := migration.NewCatalog(defs...)
	if err != nil {
		return nil, err
	}
	if _, err := catalog.Ordered(); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	env := &migration.Env{DB: db, Dialect: sqlite.NewDriver(), Catalog: catalog, Pipelines: store}
	for _, def := range defs {
		c := collector(def.File)
		if _, err := env.Runner(def.ID); err != nil {
			var cfgErr *process.ConfigurationError
			if errors.As(err, &cfgErr) && cfgErr.Plugin != "" {
				c.AddAtToken(diagnostic.SeverityError, "plugin:", cfgErr.Plugin, "process", err.Error())
			} else {
				c.AddAtToken(diagnostic.SeverityError, "", def.ID, "migration", err.Error())
			}
		}
		checkDestinationIDs(c, def)
		if def.StoreRowData {
			c.AddAtToken(diagnostic.SeverityInfo, "", "store_row_data", "row_data",
				"Row data is stored in the map table; drop it with cleanup-map-tables when done")
		}
	}
	return collectors, nil
}

// checkDestinationIDs warns about destination keys no process property
// writes. A single key may still be allocated by the destination.
func checkDestinationIDs(c *diagnostic.Collector, def *migration.Definition) {
	if len(def.Destination.IDs) == 1 {
		return
	}
	var written []string
	for _, prop := range def.Process {
		written = append(written, prop.Name)
	}
	for _, id := range def.Destination.IDs {
		if !slices.Contains(written, id) {
			c.AddAtToken(diagnostic.SeverityWarning, "destination:", id, "destination_id",
				fmt.Sprintf("Destination id %q is not written by any process property", id))
		}
	}
}

func reportLoadError(c *diagnostic.Collector, err error) {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		for _, problem := range verr.Problems {
			c.AddError(diagnostic.Range{}, "schema", problem)
		}
		return
	}
	c.AddError(diagnostic.Range{}, "load", err.Error())
}
