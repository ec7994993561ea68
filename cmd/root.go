package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	envName string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "rowplane",
	Short: "Repeatable record migrations with an identity map",
	Long: `rowplane reads records from a source, runs every destination property
through its process pipeline, writes the result to a destination and keeps an
identity map per migration so that runs can be repeated, resumed and rolled
back.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envName, "env", "", "Environment from rowplane.toml (defaults to default_environment)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
