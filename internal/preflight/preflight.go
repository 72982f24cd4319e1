package preflight

import (
	"context"
	"path/filepath"

	"tilebatch/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Tiles directory (always checked)
	results = append(results, CheckDirectoryReadable("Tiles directory", cfg.Paths.TilesDir))

	// Texture directory (when configured)
	if cfg.Paths.TextureDir != "" {
		results = append(results, CheckDirectoryReadable("Texture directory", cfg.Paths.TextureDir))
	}

	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	results = append(results, CheckFreeSpace("State free space", cfg.Paths.StateDir, cfg.Preflight.MinFreeMiB))

	if cfg.Output.Format == config.OutputGLB {
		outDir := filepath.Dir(cfg.Output.Path)
		results = append(results, CheckDirectoryAccess("Output directory", outDir))
		results = append(results, CheckFreeSpace("Output free space", outDir, cfg.Preflight.MinFreeMiB))
	}

	results = append(results, CheckLedgerUnlocked(ctx, cfg.Ledger.Path))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
