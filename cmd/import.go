package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rowplane/rowplane/internal/migration"
	"github.com/rowplane/rowplane/internal/state"
)

var (
	importAll     bool
	importUpdate  bool
	importWorkers int
)

var importCmd = &cobra.Command{
	Use:   "import [migration...]",
	Short: "Import rows for one or more migrations",
	Long: `Import runs the named migrations, or every migration with --all, in
dependency order. Rows imported before whose source data did not change are
skipped, so an interrupted import can simply be run again.`,
	Example: `  # Import a single migration
  rowplane import articles

  # Import everything, reprocessing rows imported before
  rowplane import --all --update

  # Process rows with 8 workers
  rowplane import articles --workers 8`,
	Run: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVar(&importAll, "all", false, "Import every migration")
	importCmd.Flags().BoolVar(&importUpdate, "update", false, "Reprocess rows that were imported before")
	importCmd.Flags().IntVar(&importWorkers, "workers", 0, "Rows processed concurrently (defaults to workers in rowplane.toml)")
}

func runImport(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer s.Close()

	defs, err := s.selectMigrations(args, importAll)
	if err != nil {
		log.Fatalf("%v", err)
	}

	opts := migration.ImportOptions{Update: importUpdate, Workers: s.workers(importWorkers)}
	failed := false
	for _, def := range defs {
		runner, err := s.migrate.Runner(def.ID)
		if err != nil {
			log.Fatalf("%v", err)
		}

		var summary *migration.Summary
		err = s.guarded(def.ID, state.OperationImport, func() error {
			summary, err = runner.Import(ctx, opts)
			return err
		})
		printImportSummary(summary)
		if err != nil {
			var batchErr *migration.BatchError
			if errors.As(err, &batchErr) {
				_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "✗ %s stopped at row %v: %v\n", def.ID, batchErr.SourceIDs, batchErr.Err)
			} else {
				_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "✗ %s: %v\n", def.ID, err)
			}
			failed = true
			break
		}
	}

	if failed {
		os.Exit(1)
	}
}

func printImportSummary(s *migration.Summary) {
	if s == nil {
		return
	}
	marker := color.New(color.FgGreen).Sprint("✓")
	if s.Failed > 0 {
		marker = color.New(color.FgYellow).Sprint("!")
	}
	fmt.Fprintf(os.Stderr, "%s %s: %d processed (%d created, %d updated, %d unchanged, %d skipped, %d failed, %d ignored)\n",
		marker, s.MigrationID, s.Processed, s.Created, s.Updated, s.Unchanged, s.Skipped, s.Failed, s.Ignored)
	if verbose {
		fmt.Fprintf(os.Stderr, "  run %s\n", s.RunID)
	}
}
