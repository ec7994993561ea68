package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rowplane/rowplane/internal/config"
	"github.com/rowplane/rowplane/internal/state"
)

var resetStatusCmd = &cobra.Command{
	Use:   "reset-status <migration>",
	Short: "Mark a migration idle after an import or rollback was killed",
	Long: `import and rollback mark a migration busy in .rowplane-state.json while
they run, and refuse to start while another process holds the mark. When a
process dies without clearing it, reset-status clears it.

Only do this when the process shown is really gone.`,
	Args: cobra.ExactArgs(1),
	Run:  runResetStatus,
}

func init() {
	rootCmd.AddCommand(resetStatusCmd)
}

func runResetStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	env, err := config.ResolveEnvironment(cfg, envName)
	if err != nil {
		log.Fatalf("Failed to resolve environment: %v", err)
	}

	st, err := state.Load(cfg.ConfigDir())
	if err != nil {
		log.Fatalf("%v", err)
	}
	op, err := st.Reset(env.Name, args[0])
	if err != nil {
		log.Fatalf("%v", err)
	}
	if op == nil {
		fmt.Fprintf(os.Stderr, "%s is idle in environment %s\n", args[0], env.Name)
		return
	}
	_, _ = color.New(color.FgGreen).Fprintf(os.Stderr, "✓ %s: cleared %s started %s by pid %d\n",
		op.MigrationID, op.Kind, op.StartedAt.Local().Format("2006-01-02 15:04:05"), op.PID)
}
