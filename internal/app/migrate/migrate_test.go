package migrate

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

func TestNewValidatesArguments(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := New("", t.TempDir(), log); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
	if _, err := New("postgres://localhost/db", "", log); err == nil {
		t.Fatalf("expected error for empty dir")
	}
	if _, err := New("postgres://localhost/db", filepath.Join(t.TempDir(), "missing"), log); err == nil {
		t.Fatalf("expected error for missing dir")
	}
	runner, err := New("postgres://localhost/db", t.TempDir(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.log == nil {
		t.Fatalf("expected default logger")
	}
}

func TestRepositoryMigrationsDirExists(t *testing.T) {
	dir := filepath.Join("..", "..", "..", "db", "migrations")
	if _, err := New("postgres://localhost/db", dir, nil); err != nil {
		t.Fatalf("expected shipped migrations dir to exist: %v", err)
	}
}
