package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"tilebatch/internal/config"
	"tilebatch/internal/ledger"
	"tilebatch/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryReadable("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDirectoryReadable_Empty(t *testing.T) {
	if CheckDirectoryReadable("test", "").Passed {
		t.Fatal("expected failure for unconfigured path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 0); !result.Passed {
		t.Fatalf("expected pass with no minimum, got: %s", result.Detail)
	}
	if result := CheckFreeSpace("space", dir, 1<<40); result.Passed {
		t.Fatalf("expected failure for an exabyte minimum, got: %s", result.Detail)
	}
	if result := CheckFreeSpace("space", filepath.Join(dir, "nope"), 1); result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckLedgerUnlocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.jsonl")
	if result := CheckLedgerUnlocked(context.Background(), path); !result.Passed {
		t.Fatalf("expected pass without a ledger, got: %s", result.Detail)
	}

	l, err := ledger.Open(path, ledger.Options{})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	if result := CheckLedgerUnlocked(context.Background(), path); result.Passed {
		t.Fatal("expected failure while the ledger is open")
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close ledger: %v", err)
	}
	if result := CheckLedgerUnlocked(context.Background(), path); !result.Passed {
		t.Fatalf("expected pass after close, got: %s", result.Detail)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_TestConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Preflight.MinFreeMiB = 0

	results := RunAll(context.Background(), cfg)
	// tiles, textures, state, state space, ledger lock
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_IncludesOutputForGLB(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithGLBOutput())
	cfg.Preflight.MinFreeMiB = 0
	if err := os.MkdirAll(filepath.Dir(cfg.Output.Path), 0o755); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), cfg)
	found := false
	for _, r := range results {
		if r.Name == "Output directory" {
			found = true
			if !r.Passed {
				t.Errorf("output check failed: %s", r.Detail)
			}
		}
	}
	if !found {
		t.Fatal("expected output directory check in results")
	}
}

func TestRunAll_MissingTilesDir(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.TilesDir = filepath.Join(t.TempDir(), "absent")
	cfg.Paths.StateDir = t.TempDir()
	cfg.Ledger.Path = filepath.Join(cfg.Paths.StateDir, "progress.jsonl")
	cfg.Output.Format = config.OutputMemory
	cfg.Preflight.MinFreeMiB = 0

	failed := Failed(RunAll(context.Background(), &cfg))
	if len(failed) != 1 || failed[0].Name != "Tiles directory" {
		t.Fatalf("expected only the tiles directory to fail, got %+v", failed)
	}
}
