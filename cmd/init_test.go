package cmd

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestRunInit_ExistingConfig(t *testing.T) {
	if os.Getenv("TEST_RUN_INIT") == "1" {
		tmpDir := os.Getenv("TEST_TMPDIR")
		if tmpDir == "" {
			t.Fatal("TEST_TMPDIR not set")
		}
		if err := os.Chdir(tmpDir); err != nil {
			t.Fatalf("failed to change to temp directory: %v", err)
		}

		// rowplane.toml exists and --force is missing, so init must exit 1.
		if err := os.WriteFile("rowplane.toml", []byte("existing"), 0600); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
		rootCmd.SetArgs([]string{"init", "--yes"})
		_ = rootCmd.Execute()
		return
	}

	tmpDir := t.TempDir()

	cmd := exec.Command(os.Args[0], "-test.run=TestRunInit_ExistingConfig")
	cmd.Env = append(os.Environ(), "TEST_RUN_INIT=1", "TEST_TMPDIR="+tmpDir)

	err := cmd.Run()
	if err == nil {
		t.Error("expected command to exit with error, but it succeeded")
		return
	}
	if exitError, ok := err.(*exec.ExitError); ok {
		if exitError.ExitCode() != 1 {
			t.Errorf("expected exit code 1, got %d", exitError.ExitCode())
		}
	} else {
		t.Errorf("expected ExitError, got %v", err)
	}
}

func TestRunInit_Success(t *testing.T) {
	if os.Getenv("TEST_RUN_INIT_SUCCESS") == "1" {
		tmpDir := os.Getenv("TEST_TMPDIR")
		if tmpDir == "" {
			t.Fatal("TEST_TMPDIR not set")
		}
		if err := os.Chdir(tmpDir); err != nil {
			t.Fatalf("failed to change to temp directory: %v", err)
		}

		rootCmd.SetArgs([]string{"init", "--yes", "--example", "--database-url", "sqlite://./data/app.db"})
		_ = rootCmd.Execute()
		return
	}

	tmpDir := t.TempDir()

	cmd := exec.Command(os.Args[0], "-test.run=TestRunInit_Success")
	cmd.Env = append(os.Environ(), "TEST_RUN_INIT_SUCCESS=1", "TEST_TMPDIR="+tmpDir)

	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Errorf("expected command to succeed, got error: %v\nOutput: %s", err, string(output))
	}

	for _, path := range []string{
		"rowplane.toml",
		".env.local",
		filepath.Join("migrations", "example.yml"),
		filepath.Join("migrations", "data", "example.csv"),
		"pipelines",
		filepath.Join("data", "app.db"),
	} {
		if _, err := os.Stat(filepath.Join(tmpDir, path)); os.IsNotExist(err) {
			t.Errorf("expected %s to be created", path)
		}
	}
}
