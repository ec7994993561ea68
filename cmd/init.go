package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rowplane/rowplane/internal/wizard"
)

var (
	initForce       bool
	initYes         bool
	initExample     bool
	initDatabaseURL string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new rowplane project",
	Long: `Initialize a rowplane project in the current directory.

Without --yes an interactive wizard asks for one or more database
environments and tests each connection. With --yes a single environment is
written from --env and --database-url without prompting.`,
	Example: `  # Interactive setup
  rowplane init

  # Scripted setup with the example migration
  rowplane init --yes --example --database-url sqlite://./rowplane.db`,
	Run: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing rowplane.toml")
	initCmd.Flags().BoolVarP(&initYes, "yes", "y", false, "Skip the wizard and use the flag values")
	initCmd.Flags().BoolVar(&initExample, "example", false, "Write an example migration with CSV data")
	initCmd.Flags().StringVar(&initDatabaseURL, "database-url", "sqlite://./rowplane.db", "Connection string used with --yes")
}

func runInit(cmd *cobra.Command, args []string) {
	dir, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	opts := wizard.Options{Force: initForce, Example: initExample}

	if !initYes {
		if err := wizard.Run(dir, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	name := envName
	if name == "" {
		name = "local"
	}
	env, err := wizard.EnvironmentFromURL(name, initDatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if _, err := wizard.RunNonInteractive(dir, env, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
