package cmd

import (
	"testing"
)

func TestRootCommand(t *testing.T) {
	if rootCmd == nil {
		t.Fatal("rootCmd should not be nil")
	}

	if rootCmd.Use != "rowplane" {
		t.Errorf("expected Use to be 'rowplane', got %q", rootCmd.Use)
	}

	if rootCmd.Short != "Repeatable record migrations with an identity map" {
		t.Errorf("expected Short description, got %q", rootCmd.Short)
	}

	for _, name := range []string{"env", "verbose"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("expected persistent flag --%s", name)
		}
	}
}

func TestVersionSet(t *testing.T) {
	if version == "" {
		t.Error("version should not be empty")
	}

	if rootCmd.Version == "" {
		t.Error("rootCmd.Version should not be empty")
	}
}

func TestCommandsRegistered(t *testing.T) {
	commands := rootCmd.Commands()
	if len(commands) == 0 {
		t.Fatal("expected at least one subcommand to be registered")
	}

	expectedCommands := map[string]bool{
		"init":               false,
		"import":             false,
		"rollback":           false,
		"status":             false,
		"messages":           false,
		"validate":           false,
		"cleanup-map-tables": false,
		"reset-status":       false,
		"version":            false,
	}

	for _, cmd := range commands {
		if _, exists := expectedCommands[cmd.Name()]; exists {
			expectedCommands[cmd.Name()] = true
		}
	}

	for cmdName, registered := range expectedCommands {
		if !registered {
			t.Errorf("expected command %q to be registered", cmdName)
		}
	}
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command string
		flags   []string
	}{
		{"import", []string{"all", "update", "workers"}},
		{"rollback", []string{"all"}},
		{"messages", []string{"level"}},
		{"validate", []string{"context"}},
		{"cleanup-map-tables", []string{"all", "tables", "yes"}},
		{"init", []string{"force", "yes", "example", "database-url"}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			cmd, _, err := rootCmd.Find([]string{tt.command})
			if err != nil {
				t.Fatalf("command not found: %v", err)
			}
			for _, flag := range tt.flags {
				if cmd.Flags().Lookup(flag) == nil {
					t.Errorf("expected --%s on %s", flag, tt.command)
				}
			}
		})
	}
}
