package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"tilebatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Tile and texture directories are created so fixtures can be written into
// them directly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.TilesDir = filepath.Join(base, "tiles")
	cfgVal.Paths.TextureDir = filepath.Join(base, "textures")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Cache.Path = filepath.Join(base, "state", "content_cache.db")
	cfgVal.Ledger.Path = filepath.Join(base, "state", "progress.jsonl")
	cfgVal.Output.Format = config.OutputMemory
	cfgVal.Output.Path = filepath.Join(base, "out", "scene.glb")
	cfgVal.Import.Window = cfgVal.Import.Workers * 4
	cfgVal.Import.CheckpointInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	for _, dir := range []string{cfgVal.Paths.TilesDir, cfgVal.Paths.TextureDir, cfgVal.Paths.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return builder.cfg
}

// WithWorkers sets the worker pool size and a matching window.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Import.Workers = n
		b.cfg.Import.Window = n * 4
	}
}

// WithCheckpointInterval overrides how many commits happen between checkpoints.
func WithCheckpointInterval(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Import.CheckpointInterval = n
	}
}

// WithGLBOutput switches the destination to the glTF binary scene.
func WithGLBOutput() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Output.Format = config.OutputGLB
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.TilesDir)
}
