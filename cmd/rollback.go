package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"slices"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rowplane/rowplane/internal/migration"
	"github.com/rowplane/rowplane/internal/state"
)

var rollbackAll bool

var rollbackCmd = &cobra.Command{
	Use:   "rollback [migration...]",
	Short: "Undo the imports of one or more migrations",
	Long: `Rollback removes what the named migrations imported, dependents first.

Rows recorded with the delete rollback action have their destination entity
removed; rows recorded with preserve keep it. In both cases the identity map
entry is dropped. The message log is kept.`,
	Example: `  # Roll back a single migration
  rowplane rollback articles

  # Roll back everything
  rowplane rollback --all`,
	Run: runRollback,
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
	rollbackCmd.Flags().BoolVar(&rollbackAll, "all", false, "Roll back every migration")
}

func runRollback(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer s.Close()

	defs, err := s.selectMigrations(args, rollbackAll)
	if err != nil {
		log.Fatalf("%v", err)
	}
	slices.Reverse(defs)

	for _, def := range defs {
		runner, err := s.migrate.Runner(def.ID)
		if err != nil {
			log.Fatalf("%v", err)
		}
		var summary *migration.RollbackSummary
		err = s.guarded(def.ID, state.OperationRollback, func() error {
			summary, err = runner.Rollback(ctx)
			return err
		})
		if err != nil {
			_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "✗ %s: %v\n", def.ID, err)
			os.Exit(1)
		}
		_, _ = color.New(color.FgGreen).Fprintf(os.Stderr, "✓ %s: %d deleted, %d preserved\n",
			summary.MigrationID, summary.Deleted, summary.Preserved)
	}
}
