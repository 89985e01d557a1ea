package connectors

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTempCSV(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.csv")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp csv: %v", err)
	}
	return path
}

func TestCSVSourceStreamsRowsLazily(t *testing.T) {
	path := writeTempCSV(t, "first_name,last_name\nJane,Doe\nJohn,Smith\n")

	source, err := NewCSVSource(map[string]interface{}{"path": path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()
	if err := source.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer source.Close(ctx)

	row1, ok, err := source.Next(ctx)
	if err != nil || !ok {
		t.Fatalf("expected first row, got ok=%v err=%v", ok, err)
	}
	if row1["first_name"] != "Jane" || row1["last_name"] != "Doe" {
		t.Fatalf("unexpected first row: %+v", row1)
	}

	row2, ok, err := source.Next(ctx)
	if err != nil || !ok {
		t.Fatalf("expected second row, got ok=%v err=%v", ok, err)
	}
	if row2["first_name"] != "John" {
		t.Fatalf("unexpected second row: %+v", row2)
	}

	_, ok, err = source.Next(ctx)
	if err != nil || ok {
		t.Fatalf("expected end of sequence, got ok=%v err=%v", ok, err)
	}
}

func TestCSVSourceMissingPathErrors(t *testing.T) {
	if _, err := NewCSVSource(map[string]interface{}{}); err == nil {
		t.Fatal("expected error for missing path config")
	}
}

func TestResolveCSVPathPrefersExplicitPath(t *testing.T) {
	path, err := ResolveCSVPath(map[string]interface{}{"path": "/data/a.csv", "directory": "/other", "filename": "b.csv"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/data/a.csv" {
		t.Fatalf("expected explicit path to win, got %s", path)
	}
}

func TestResolveCSVPathFallsBackToDirectoryAndFilename(t *testing.T) {
	path, err := ResolveCSVPath(map[string]interface{}{"directory": "/data", "filename": "a.csv"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/data/a.csv" {
		t.Fatalf("expected joined path, got %s", path)
	}
}
