package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeImport()
	if err := c.normalizeStores(); err != nil {
		return err
	}
	c.normalizeGrouping()
	if err := c.normalizeOutput(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.TilesDir) == "" {
		if value, ok := os.LookupEnv("TILEBATCH_TILES_DIR"); ok {
			c.Paths.TilesDir = value
		}
	}
	if strings.TrimSpace(c.Paths.TextureDir) == "" {
		if value, ok := os.LookupEnv("TILEBATCH_TEXTURE_DIR"); ok {
			c.Paths.TextureDir = value
		}
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}

	var err error
	if c.Paths.TilesDir, err = expandPath(strings.TrimSpace(c.Paths.TilesDir)); err != nil {
		return fmt.Errorf("paths.tiles_dir: %w", err)
	}
	if c.Paths.TextureDir, err = expandPath(strings.TrimSpace(c.Paths.TextureDir)); err != nil {
		return fmt.Errorf("paths.texture_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeImport() {
	c.Import.Pattern = strings.TrimSpace(c.Import.Pattern)
	if c.Import.Pattern == "" {
		c.Import.Pattern = defaultTilePattern
	}
	if c.Import.Workers <= 0 {
		c.Import.Workers = defaultWorkers
	}
	if c.Import.Window <= 0 {
		c.Import.Window = c.Import.Workers * 4
	}
	if c.Import.CheckpointInterval <= 0 {
		c.Import.CheckpointInterval = defaultCheckpointInterval
	}
	c.Import.MissingTexture = strings.ToLower(strings.TrimSpace(c.Import.MissingTexture))
	if c.Import.MissingTexture == "" {
		c.Import.MissingTexture = defaultMissingTexture
	}
}

func (c *Config) normalizeStores() error {
	var err error
	if strings.TrimSpace(c.Cache.Path) == "" {
		c.Cache.Path = filepath.Join(c.Paths.StateDir, defaultCacheFile)
	}
	if c.Cache.Path, err = expandPath(strings.TrimSpace(c.Cache.Path)); err != nil {
		return fmt.Errorf("cache.path: %w", err)
	}
	if strings.TrimSpace(c.Ledger.Path) == "" {
		c.Ledger.Path = filepath.Join(c.Paths.StateDir, defaultLedgerFile)
	}
	if c.Ledger.Path, err = expandPath(strings.TrimSpace(c.Ledger.Path)); err != nil {
		return fmt.Errorf("ledger.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeGrouping() {
	c.Grouping.Mode = strings.ToLower(strings.TrimSpace(c.Grouping.Mode))
	if c.Grouping.Mode == "" {
		c.Grouping.Mode = defaultGroupingMode
	}
	if c.Grouping.PrefixTokens <= 0 {
		c.Grouping.PrefixTokens = defaultPrefixTokens
	}
}

func (c *Config) normalizeOutput() error {
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	if c.Output.Format == "" {
		c.Output.Format = defaultOutputFormat
	}
	if strings.TrimSpace(c.Output.Path) == "" {
		c.Output.Path = defaultOutputPath
	}
	var err error
	if c.Output.Path, err = expandPath(strings.TrimSpace(c.Output.Path)); err != nil {
		return fmt.Errorf("output.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
