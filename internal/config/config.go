package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"tilebatch/internal/fileutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Missing texture policies.
const (
	MissingTextureFail   = "fail"
	MissingTextureIgnore = "ignore"
)

// Grouping modes.
const (
	GroupingTile   = "tile"
	GroupingPrefix = "prefix"
)

// Output formats.
const (
	OutputGLB    = "glb"
	OutputMemory = "memory"
)

// Paths contains input and state directory configuration.
type Paths struct {
	TilesDir   string `toml:"tiles_dir"`
	TextureDir string `toml:"texture_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
}

// Import contains batch execution settings.
type Import struct {
	Pattern            string `toml:"pattern"`
	Recursive          bool   `toml:"recursive"`
	Workers            int    `toml:"workers"`
	Window             int    `toml:"window"`
	CheckpointInterval int    `toml:"checkpoint_interval"`
	ImportTextures     bool   `toml:"import_textures"`
	MissingTexture     string `toml:"missing_texture"`
	RetryFailed        bool   `toml:"retry_failed"`
	RetrySkipped       bool   `toml:"retry_skipped"`
}

// Cache contains configuration for the persistent content cache.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // Default: <state_dir>/content_cache.db
}

// Ledger contains configuration for the progress ledger.
type Ledger struct {
	Path string `toml:"path"` // Default: <state_dir>/progress.jsonl
	Sync bool   `toml:"sync"`
}

// Grouping controls how tiles are assigned to scene groups.
type Grouping struct {
	Mode         string `toml:"mode"`
	PrefixTokens int    `toml:"prefix_tokens"`
}

// Output selects the destination scene.
type Output struct {
	Format string `toml:"format"`
	Path   string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Preflight contains thresholds for environment checks.
type Preflight struct {
	MinFreeMiB int `toml:"min_free_mib"`
}

// Config encapsulates all configuration values for tilebatch.
//
// Configuration sections by subsystem:
//   - Paths: tile, texture, state, and log directories
//   - Import: scan pattern, worker pool, checkpoints, texture policy
//   - Cache: content cache location
//   - Ledger: progress ledger location and durability
//   - Grouping: scene group assignment
//   - Output: destination scene format and file
//   - Logging: log format, level, and retention
//   - Preflight: free-space thresholds
type Config struct {
	Paths     Paths     `toml:"paths"`
	Import    Import    `toml:"import"`
	Cache     Cache     `toml:"cache"`
	Ledger    Ledger    `toml:"ledger"`
	Grouping  Grouping  `toml:"grouping"`
	Output    Output    `toml:"output"`
	Logging   Logging   `toml:"logging"`
	Preflight Preflight `toml:"preflight"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/tilebatch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tilebatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories plus the parents of
// the cache, ledger, and output files. Failure here is a configuration
// precondition and aborts the run.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	files := []string{c.Ledger.Path}
	if c.Cache.Enabled {
		files = append(files, c.Cache.Path)
	}
	if c.Output.Format == OutputGLB {
		files = append(files, c.Output.Path)
	}
	for _, file := range files {
		if strings.TrimSpace(file) == "" {
			continue
		}
		dir := filepath.Dir(file)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RunLogPath returns the per-run log file for the given run identifier.
func (c *Config) RunLogPath(runID string) string {
	if strings.TrimSpace(c.Paths.LogDir) == "" || strings.TrimSpace(runID) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "run-"+runID+".log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := fileutil.WriteFileAtomic(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
