package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestBeginEnd(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := s.Begin("local", "articles", OperationImport); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, StateFile)); err != nil {
		t.Fatalf("expected state file to be written: %v", err)
	}

	// A second process sees the operation.
	other, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	err = other.Begin("local", "articles", OperationRollback)
	var busy *BusyError
	if !errors.As(err, &busy) {
		t.Fatalf("expected BusyError, got %v", err)
	}
	if busy.Operation.Kind != OperationImport || busy.Operation.PID != os.Getpid() {
		t.Errorf("unexpected operation: %+v", busy.Operation)
	}

	// Other environments and migrations are independent.
	if err := other.Begin("staging", "articles", OperationImport); err != nil {
		t.Errorf("expected another environment to be free: %v", err)
	}
	if err := other.Begin("local", "users", OperationImport); err != nil {
		t.Errorf("expected another migration to be free: %v", err)
	}

	if err := s.End("local", "articles"); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, StateFile)); !os.IsNotExist(err) {
		t.Error("expected the state file to be removed once idle")
	}
}

func TestReset(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}

	op, err := s.Reset("local", "articles")
	if err != nil || op != nil {
		t.Fatalf("expected nothing to reset, got %v, %v", op, err)
	}

	if err := s.Begin("local", "articles", OperationRollback); err != nil {
		t.Fatal(err)
	}
	if err := s.Begin("local", "users", OperationImport); err != nil {
		t.Fatal(err)
	}

	active := s.Active("local")
	if len(active) != 2 || active[0].MigrationID != "articles" || active[1].MigrationID != "users" {
		t.Fatalf("unexpected active operations: %v", active)
	}

	op, err = s.Reset("local", "articles")
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if op == nil || op.Kind != OperationRollback {
		t.Errorf("expected the rollback to be reset, got %+v", op)
	}

	reloaded, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(reloaded.Active("local")) != 1 {
		t.Errorf("expected one operation left, got %v", reloaded.Active("local"))
	}
}

func TestLoad_Corrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, StateFile), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected a parse error")
	}
}
