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

var messagesLevel string

var messagesCmd = &cobra.Command{
	Use:   "messages <migration>",
	Short: "List the messages logged while importing a migration",
	Example: `  # Show errors and warnings
  rowplane messages articles --level warning`,
	Args: cobra.ExactArgs(1),
	Run:  runMessages,
}

func init() {
	rootCmd.AddCommand(messagesCmd)
	messagesCmd.Flags().StringVar(&messagesLevel, "level", "info", "Least severe level to show: error, warning, notice or info")
}

var levelColors = map[idmap.Level]*color.Color{
	idmap.LevelError:         color.New(color.FgRed),
	idmap.LevelWarning:       color.New(color.FgYellow),
	idmap.LevelNotice:        color.New(color.FgCyan),
	idmap.LevelInformational: color.New(color.Faint),
}

func runMessages(cmd *cobra.Command, args []string) {
	level, err := idmap.ParseLevel(messagesLevel)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer s.Close()

	runner, err := s.migrate.Runner(args[0])
	if err != nil {
		log.Fatalf("%v", err)
	}
	m := runner.IdentityMap()

	exists, err := m.TableExists(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if !exists {
		fmt.Fprintf(os.Stderr, "%s has not been imported yet\n", args[0])
		return
	}

	messages, err := m.Messages().All(ctx, level)
	if err != nil {
		log.Fatalf("%v", err)
	}
	for _, msg := range messages {
		hash := msg.SourceIDsHash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		if hash == "" {
			hash = "(no ids)"
		}
		fmt.Printf("%-8s %-12s %s\n", levelColors[msg.Level].Sprint(msg.Level), hash, msg.Text)
	}
	if len(messages) == 0 {
		fmt.Fprintf(os.Stderr, "No messages at level %s or above\n", level)
	}
}
