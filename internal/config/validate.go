package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateImport(); err != nil {
		return err
	}
	if err := c.validateGrouping(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Preflight.MinFreeMiB < 0 {
		return errors.New("preflight.min_free_mib must be >= 0")
	}
	return nil
}

// ValidateTiles checks that the tile directory is set and readable. It is kept
// apart from Validate so commands that never scan tiles (status, cache) can
// load a config without one.
func (c *Config) ValidateTiles() error {
	if strings.TrimSpace(c.Paths.TilesDir) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/tilebatch/config.toml"
		}
		return fmt.Errorf("paths.tiles_dir is required. Set TILEBATCH_TILES_DIR, pass --tiles, or edit %s (create with 'tilebatch config init')", defaultPath)
	}
	info, err := os.Stat(c.Paths.TilesDir)
	if err != nil {
		return fmt.Errorf("paths.tiles_dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("paths.tiles_dir %q is not a directory", c.Paths.TilesDir)
	}
	return nil
}

func (c *Config) validateImport() error {
	if _, err := filepath.Match(c.Import.Pattern, "probe"); err != nil {
		return fmt.Errorf("import.pattern %q: %w", c.Import.Pattern, err)
	}
	if c.Import.Workers > 256 {
		return errors.New("import.workers must be between 1 and 256")
	}
	if c.Import.Window < c.Import.Workers {
		return errors.New("import.window must be >= import.workers")
	}
	switch c.Import.MissingTexture {
	case MissingTextureFail, MissingTextureIgnore:
	default:
		return fmt.Errorf("import.missing_texture: unsupported value %q (want %q or %q)", c.Import.MissingTexture, MissingTextureFail, MissingTextureIgnore)
	}
	return nil
}

func (c *Config) validateGrouping() error {
	switch c.Grouping.Mode {
	case GroupingTile, GroupingPrefix:
		return nil
	default:
		return fmt.Errorf("grouping.mode: unsupported value %q", c.Grouping.Mode)
	}
}

func (c *Config) validateOutput() error {
	switch c.Output.Format {
	case OutputGLB:
		if strings.TrimSpace(c.Output.Path) == "" {
			return errors.New("output.path must be set when output.format is glb")
		}
		return nil
	case OutputMemory:
		// Tests and dry runs only; the import command refuses it.
		return nil
	default:
		return fmt.Errorf("output.format: unsupported value %q", c.Output.Format)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json", "styled":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
