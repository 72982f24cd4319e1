package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"tilebatch/internal/config"
)

func TestLoadDefaultConfigUsesEnvAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("TILEBATCH_TILES_DIR", "~/export/tiles")
	t.Setenv("TILEBATCH_TEXTURE_DIR", "~/export/textures")
	chdir(t, t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if want := filepath.Join(tempHome, "export", "tiles"); cfg.Paths.TilesDir != want {
		t.Fatalf("unexpected tiles dir: got %q want %q", cfg.Paths.TilesDir, want)
	}
	if want := filepath.Join(tempHome, "export", "textures"); cfg.Paths.TextureDir != want {
		t.Fatalf("unexpected texture dir: got %q want %q", cfg.Paths.TextureDir, want)
	}
	wantState := filepath.Join(tempHome, ".local", "share", "tilebatch")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	if cfg.Cache.Path != filepath.Join(wantState, "content_cache.db") {
		t.Fatalf("unexpected cache path: %q", cfg.Cache.Path)
	}
	if cfg.Ledger.Path != filepath.Join(wantState, "progress.jsonl") {
		t.Fatalf("unexpected ledger path: %q", cfg.Ledger.Path)
	}
	if cfg.Import.Workers != 1 || cfg.Import.Window != 4 {
		t.Fatalf("unexpected worker defaults: workers=%d window=%d", cfg.Import.Workers, cfg.Import.Window)
	}
	if cfg.Import.CheckpointInterval != config.Default().Import.CheckpointInterval {
		t.Fatalf("unexpected checkpoint interval: %d", cfg.Import.CheckpointInterval)
	}
	if !cfg.Import.ImportTextures || cfg.Import.MissingTexture != config.MissingTextureFail {
		t.Fatalf("unexpected texture defaults: %+v", cfg.Import)
	}
	if !cfg.Ledger.Sync {
		t.Fatal("expected ledger sync enabled by default")
	}
	if cfg.Grouping.Mode != config.GroupingTile {
		t.Fatalf("unexpected grouping mode: %q", cfg.Grouping.Mode)
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("TILEBATCH_TILES_DIR", "/ignored")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `[paths]
tiles_dir = "~/tiles"
state_dir = "~/state"

[import]
workers = 8
checkpoint_interval = 10
missing_texture = "IGNORE"

[cache]
path = "~/cache/geometry.db"

[grouping]
mode = "prefix"
prefix_tokens = 2

[output]
format = "memory"

[logging]
format = "JSON"
level = "debug"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected explicit config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.TilesDir != filepath.Join(tempHome, "tiles") {
		t.Fatalf("file value should win over env fallback, got %q", cfg.Paths.TilesDir)
	}
	if cfg.Import.Workers != 8 || cfg.Import.Window != 32 {
		t.Fatalf("unexpected worker settings: %+v", cfg.Import)
	}
	if cfg.Import.MissingTexture != config.MissingTextureIgnore {
		t.Fatalf("expected normalized missing_texture, got %q", cfg.Import.MissingTexture)
	}
	if cfg.Cache.Path != filepath.Join(tempHome, "cache", "geometry.db") {
		t.Fatalf("unexpected cache path: %q", cfg.Cache.Path)
	}
	if cfg.Ledger.Path != filepath.Join(tempHome, "state", "progress.jsonl") {
		t.Fatalf("ledger should default under state dir, got %q", cfg.Ledger.Path)
	}
	if cfg.Grouping.Mode != config.GroupingPrefix || cfg.Grouping.PrefixTokens != 2 {
		t.Fatalf("unexpected grouping: %+v", cfg.Grouping)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected normalized log format, got %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[import]\nworkerz = 2\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"missing texture policy", func(c *config.Config) { c.Import.MissingTexture = "skip" }, "import.missing_texture"},
		{"grouping mode", func(c *config.Config) { c.Grouping.Mode = "quadtree" }, "grouping.mode"},
		{"output format", func(c *config.Config) { c.Output.Format = "fbx" }, "output.format"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"pattern", func(c *config.Config) { c.Import.Pattern = "[" }, "import.pattern"},
		{"window", func(c *config.Config) { c.Import.Workers = 4; c.Import.Window = 2 }, "import.window"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Import.Window = 4
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateTiles(t *testing.T) {
	cfg := config.Default()
	if err := cfg.ValidateTiles(); err == nil {
		t.Fatal("expected error for empty tiles dir")
	}
	dir := t.TempDir()
	cfg.Paths.TilesDir = dir
	if err := cfg.ValidateTiles(); err != nil {
		t.Fatalf("ValidateTiles: %v", err)
	}
	file := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Paths.TilesDir = file
	if err := cfg.ValidateTiles(); err == nil {
		t.Fatal("expected error for file tiles dir")
	}
}

func TestEnsureDirectoriesCreatesStoreParents(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Cache.Path = filepath.Join(base, "cache", "c.db")
	cfg.Ledger.Path = filepath.Join(base, "ledger", "p.jsonl")
	cfg.Output.Path = filepath.Join(base, "out", "scene.glb")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{"state", "logs", "cache", "ledger", "out"} {
		if info, err := os.Stat(filepath.Join(base, dir)); err != nil || !info.IsDir() {
			t.Fatalf("expected %s directory, err=%v", dir, err)
		}
	}
}

func TestSampleConfigParses(t *testing.T) {
	var cfg config.Config
	if err := toml.Unmarshal([]byte(config.SampleConfig()), &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if cfg.Import.Pattern != "*.gltf" {
		t.Fatalf("unexpected sample pattern %q", cfg.Import.Pattern)
	}

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample file: %v", err)
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
