package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rowplane/rowplane/internal/idmap"
)

var (
	cleanupAll    bool
	cleanupTables bool
	cleanupYes    bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup-map-tables [migration...]",
	Short: "Drop stored row data, or whole map tables",
	Long: `By default the source_data and destination_data columns are dropped from
the map tables of the named migrations. With --tables the map and message
tables are dropped entirely, which forgets everything the migration imported.

Nothing is changed without --yes; the planned statements are printed instead.`,
	Example: `  # Preview what would be dropped
  rowplane cleanup-map-tables --all

  # Forget a migration completely
  rowplane cleanup-map-tables articles --tables --yes`,
	Run: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Clean up every migration")
	cleanupCmd.Flags().BoolVar(&cleanupTables, "tables", false, "Drop the map and message tables instead of the row data columns")
	cleanupCmd.Flags().BoolVarP(&cleanupYes, "yes", "y", false, "Apply the changes")
}

func runCleanup(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer s.Close()

	defs, err := s.selectMigrations(args, cleanupAll)
	if err != nil {
		log.Fatalf("%v", err)
	}

	for _, def := range defs {
		runner, err := s.migrate.Runner(def.ID)
		if err != nil {
			log.Fatalf("%v", err)
		}
		m := runner.IdentityMap()

		exists, err := m.TableExists(ctx)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if !exists {
			continue
		}

		if !cleanupTables {
			if !cleanupYes {
				fmt.Printf("%s: would drop %v from %s\n", def.ID, idmap.RowDataColumns, m.Table())
				continue
			}
			dropped, err := m.DropRowDataColumns(ctx)
			if err != nil {
				log.Fatalf("%s: %v", def.ID, err)
			}
			_, _ = color.New(color.FgGreen).Fprintf(os.Stderr, "✓ %s: dropped %d row data columns\n", def.ID, len(dropped))
			continue
		}

		for _, table := range []string{m.Table(), m.Messages().Table()} {
			stmt, desc := s.dialect.DropTable(table)
			if !cleanupYes {
				fmt.Printf("%s;\n", stmt)
				continue
			}
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				log.Fatalf("%s: %v", desc, err)
			}
			_, _ = color.New(color.FgGreen).Fprintf(os.Stderr, "✓ %s\n", desc)
		}
	}

	if !cleanupYes {
		fmt.Fprintln(os.Stderr, "Run again with --yes to apply")
	}
}
