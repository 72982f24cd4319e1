package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tilebatch/internal/config"
	"tilebatch/internal/importer"
	"tilebatch/internal/logs"
	"tilebatch/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	opts = append([]testsupport.ConfigOption{testsupport.WithGLBOutput()}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Preflight.MinFreeMiB = 0
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))
	if err := os.MkdirAll(filepath.Dir(cfg.Output.Path), 0o755); err != nil {
		t.Fatalf("mkdir output: %v", err)
	}

	env := &cliTestEnv{cfg: cfg, configPath: filepath.Join(testsupport.BaseDir(cfg), "config.toml")}
	env.writeConfig(t)
	return env
}

func (e *cliTestEnv) writeConfig(t *testing.T) {
	t.Helper()
	data, err := e.cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(e.configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *cliTestEnv) writeTiles(t *testing.T, texture string, names ...string) {
	t.Helper()
	if texture != "" {
		testsupport.WriteTexture(t, filepath.Join(e.cfg.Paths.TextureDir, texture), 4, 4)
	}
	for _, name := range names {
		testsupport.WriteTile(t, e.cfg.Paths.TilesDir, testsupport.SimpleTile(name, texture))
	}
}

func TestImportCommandRunsAndResumes(t *testing.T) {
	env := setupCLITestEnv(t)
	env.writeTiles(t, "grass.png", "t01", "t02")

	out, err := env.run(t, "import", "--no-progress")
	if err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Materials created") {
		t.Fatalf("expected summary table, got:\n%s", out)
	}

	out, err = env.run(t, "import", "--json")
	if err != nil {
		t.Fatalf("second import: %v\n%s", err, out)
	}
	var summary importer.Summary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, out)
	}
	if summary.AlreadyDone != 2 || summary.Processed() != 0 {
		t.Fatalf("expected resume to skip finished tiles, got %+v", summary)
	}
}

func TestImportCommandFailsWhenTilesFail(t *testing.T) {
	env := setupCLITestEnv(t)
	env.writeTiles(t, "grass.png", "t01")
	testsupport.WriteTile(t, env.cfg.Paths.TilesDir, testsupport.SimpleTile("t02", "absent.png"))

	out, err := env.run(t, "import", "--no-progress")
	if err == nil {
		t.Fatalf("expected an error when a tile fails\n%s", out)
	}
	if !strings.Contains(err.Error(), "1 of 2 tiles failed") {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "MissingAssetError") {
		t.Fatalf("expected failure reason in output:\n%s", out)
	}

	out, err = env.run(t, "status", "--failed")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "t02") || strings.Contains(out, "t01 ") {
		t.Fatalf("status --failed should list only t02:\n%s", out)
	}
}

func TestImportDryRunLeavesStoresUntouched(t *testing.T) {
	env := setupCLITestEnv(t)
	env.writeTiles(t, "grass.png", "t01", "t02")

	out, err := env.run(t, "import", "--dry-run")
	if err != nil {
		t.Fatalf("dry run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 to import") {
		t.Fatalf("unexpected plan output:\n%s", out)
	}
	if _, err := os.Stat(env.cfg.Cache.Path); !os.IsNotExist(err) {
		t.Fatalf("dry run created the cache (stat err %v)", err)
	}
}

func TestImportRejectsMemoryOutput(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Output.Format = config.OutputMemory
	env.writeConfig(t)
	env.writeTiles(t, "grass.png", "t01")

	out, err := env.run(t, "import", "--no-progress")
	if err == nil || !strings.Contains(err.Error(), "does not persist the scene") {
		t.Fatalf("expected memory output to be rejected, got %v\n%s", err, out)
	}
	if _, err := os.Stat(env.cfg.Cache.Path); !os.IsNotExist(err) {
		t.Fatalf("rejected import opened the cache (stat err %v)", err)
	}

	out, err = env.run(t, "import", "--dry-run")
	if err != nil {
		t.Fatalf("dry run with memory output: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 to import") {
		t.Fatalf("unexpected plan output:\n%s", out)
	}
}

func TestImportWritesGLBScene(t *testing.T) {
	env := setupCLITestEnv(t)
	env.writeTiles(t, "grass.png", "t01")
	if out, err := env.run(t, "import", "--no-progress"); err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}
	if info, err := os.Stat(env.cfg.Output.Path); err != nil || info.Size() == 0 {
		t.Fatalf("expected a written scene at %s (%v)", env.cfg.Output.Path, err)
	}
}

func TestLedgerResetCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	env.writeTiles(t, "grass.png", "t01", "t02")
	if out, err := env.run(t, "import", "--no-progress"); err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}

	if _, err := env.run(t, "ledger", "reset"); err == nil {
		t.Fatal("expected reset without targets to be rejected")
	}
	out, err := env.run(t, "ledger", "reset", "t01")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !strings.Contains(out, "Reset 1 tile(s)") {
		t.Fatalf("unexpected reset output: %s", out)
	}

	out, err = env.run(t, "import", "--json")
	if err != nil {
		t.Fatalf("reimport: %v", err)
	}
	var summary importer.Summary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Done != 1 || summary.CacheHits != 1 || summary.AlreadyDone != 1 {
		t.Fatalf("expected one cached reimport, got %+v", summary)
	}
}

func TestCacheCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	env.writeTiles(t, "", "t01")
	if out, err := env.run(t, "import", "--no-progress"); err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}

	out, err := env.run(t, "cache", "stats")
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	if !strings.Contains(out, "Entries: 1") {
		t.Fatalf("unexpected stats:\n%s", out)
	}

	out, err = env.run(t, "cache", "clear")
	if err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	if !strings.Contains(out, "Removed 1") {
		t.Fatalf("unexpected clear output: %s", out)
	}
}

func TestPreflightCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "preflight")
	if err != nil {
		t.Fatalf("preflight: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Tiles directory") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestLogsCommandFiltersByTile(t *testing.T) {
	env := setupCLITestEnv(t)
	env.writeTiles(t, "grass.png", "t01")
	testsupport.WriteTile(t, env.cfg.Paths.TilesDir, testsupport.SimpleTile("t02", "absent.png"))

	if out, err := env.run(t, "import", "--no-progress"); err == nil {
		t.Fatalf("expected import to report the failed tile\n%s", out)
	}

	out, err := env.run(t, "logs", "--list")
	if err != nil {
		t.Fatalf("logs --list: %v", err)
	}
	runs, err := logs.List(env.cfg.Paths.LogDir)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected one run log, got %v (%v)", runs, err)
	}
	if !strings.Contains(out, shortRun(runs[0].RunID)) {
		t.Fatalf("expected run %s in table:\n%s", runs[0].RunID, out)
	}

	out, err = env.run(t, "logs", "--tile", "t02")
	if err != nil {
		t.Fatalf("logs --tile: %v", err)
	}
	if !strings.Contains(out, "tile failed") || !strings.Contains(out, "tile=t02") {
		t.Fatalf("expected t02 failure in run log:\n%s", out)
	}
	if strings.Contains(out, "tile=t01") {
		t.Fatalf("tile filter leaked other tiles:\n%s", out)
	}
}
