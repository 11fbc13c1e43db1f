package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Index.WorkerFraction != 0.275 {
		t.Fatalf("expected default worker_fraction 0.275, got %v", cfg.Index.WorkerFraction)
	}
	if cfg.Project.DefaultBranch != "_default" {
		t.Fatalf("expected default branch sentinel, got %q", cfg.Project.DefaultBranch)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
version = 1

[project]
root = "/workspace/app"

[index]
worker_fraction = 0.5
large_workspace_threshold = 5000

[search]
default_context_lines = 5
max_context_lines = 20
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Index.WorkerFraction != 0.5 {
		t.Fatalf("expected worker_fraction 0.5, got %v", cfg.Index.WorkerFraction)
	}
	if cfg.Index.LargeWorkspaceThreshold != 5000 {
		t.Fatalf("expected large_workspace_threshold 5000, got %d", cfg.Index.LargeWorkspaceThreshold)
	}
	if cfg.Search.DefaultContextLines != 5 || cfg.Search.MaxContextLines != 20 {
		t.Fatalf("unexpected search settings: %+v", cfg.Search)
	}
	// batch_flush_threshold wasn't in the file, so it keeps its default.
	if cfg.Index.BatchFlushThreshold != 2_000_000 {
		t.Fatalf("expected default batch_flush_threshold preserved, got %d", cfg.Index.BatchFlushThreshold)
	}
}

func TestLoadRejectsInvalidWorkerFraction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[index]\nworker_fraction = 1.5\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for worker_fraction > 1")
	}
}

func TestLoadRejectsMaxLessThanDefaultContextLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := "[search]\ndefault_context_lines = 10\nmax_context_lines = 3\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error when max_context_lines < default_context_lines")
	}
}

func TestWorkerLimitAtLeastOne(t *testing.T) {
	cfg := Default()
	cfg.Index.WorkerFraction = 0.0001
	if cfg.WorkerLimit() < 1 {
		t.Fatalf("WorkerLimit must never be below 1")
	}
}
