package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"tilebatch/internal/config"
	"tilebatch/internal/contentcache"
	"tilebatch/internal/ledger"
	"tilebatch/internal/logging"
	"tilebatch/internal/scene"
	"tilebatch/internal/scene/gltfscene"
	"tilebatch/internal/scene/memscene"
)

type commandContext struct {
	configFlag *string
	tilesFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, tilesFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		tilesFlag:  tilesFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.tilesFlag != nil && strings.TrimSpace(*c.tilesFlag) != "" {
			tiles, err := config.ExpandPath(strings.TrimSpace(*c.tilesFlag))
			if err != nil {
				c.configErr = fmt.Errorf("resolve --tiles: %w", err)
				return
			}
			cfg.Paths.TilesDir = tiles
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// newLogger builds the console logger and, when runID is set, the per-run
// JSON log. The returned func closes the run log.
func (c *commandContext) newLogger(runID string) (*slog.Logger, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, func() {}, err
	}
	logger, closer, err := logging.NewFromConfig(cfg, runID)
	if err != nil {
		return nil, func() {}, err
	}
	return logger, func() { _ = closer.Close() }, nil
}

// stores bundles everything an import writes to.
type stores struct {
	cache  *contentcache.Cache
	ledger *ledger.Ledger
	host   scene.Host
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger, runID string) (*stores, error) {
	l, err := openLedger(cfg, logger, runID)
	if err != nil {
		return nil, err
	}
	st := &stores{ledger: l}
	if cfg.Cache.Enabled {
		cache, err := contentcache.Open(ctx, cfg.Cache.Path, contentcache.Options{Logger: logger})
		if err != nil {
			_ = l.Close()
			return nil, err
		}
		st.cache = cache
	}
	host, err := openHost(ctx, cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	st.host = host
	return st, nil
}

func (s *stores) Close() error {
	var errs []error
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	if s.ledger != nil {
		errs = append(errs, s.ledger.Close())
	}
	return errors.Join(errs...)
}

func openLedger(cfg *config.Config, logger *slog.Logger, runID string) (*ledger.Ledger, error) {
	l, err := ledger.Open(cfg.Ledger.Path, ledger.Options{Sync: cfg.Ledger.Sync, RunID: runID, Logger: logger})
	if errors.Is(err, ledger.ErrLocked) {
		return nil, fmt.Errorf("%w: another tilebatch run is using %s", err, cfg.Ledger.Path)
	}
	return l, err
}

func openHost(ctx context.Context, cfg *config.Config, logger *slog.Logger) (scene.Host, error) {
	switch cfg.Output.Format {
	case config.OutputGLB:
		return gltfscene.Open(ctx, cfg.Output.Path, gltfscene.Options{Logger: logger})
	default:
		return memscene.New(memscene.Options{}), nil
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
