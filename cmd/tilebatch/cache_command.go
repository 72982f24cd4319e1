package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tilebatch/internal/contentcache"
	"tilebatch/internal/logging"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the content cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show content cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, warn, err := openCache(cmd, ctx)
			if warn != "" {
				fmt.Fprintln(cmd.OutOrStdout(), warn)
			}
			if err != nil || cache == nil {
				return err
			}
			defer cache.Close()

			stats, err := cache.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Path:    %s\n", stats.Path)
			fmt.Fprintf(out, "Entries: %s\n", humanize.Comma(int64(stats.Entries)))
			fmt.Fprintf(out, "Payload: %s\n", humanize.IBytes(uint64(stats.PayloadBytes)))
			fmt.Fprintf(out, "File:    %s\n", humanize.IBytes(uint64(stats.FileBytes)))
			if !stats.UpdatedAt.IsZero() {
				fmt.Fprintf(out, "Updated: %s (%s)\n", stats.UpdatedAt.Local().Format(time.DateTime), humanize.Time(stats.UpdatedAt))
			}
			if stats.MovedTo != "" {
				fmt.Fprintf(out, "Recovered: unreadable file moved to %s\n", stats.MovedTo)
			}
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, warn, err := openCache(cmd, ctx)
			if warn != "" {
				fmt.Fprintln(cmd.OutOrStdout(), warn)
			}
			if err != nil || cache == nil {
				return err
			}
			defer cache.Close()

			removed, err := cache.Clear(cmd.Context())
			if err != nil {
				return err
			}
			if removed == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Cache already empty")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s cached tile(s)\n", humanize.Comma(int64(removed)))
			return nil
		},
	}
}

func openCache(cmd *cobra.Command, ctx *commandContext) (*contentcache.Cache, string, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, "", err
	}
	if !cfg.Cache.Enabled {
		return nil, "Content cache is disabled (set [cache] enabled = true in config.toml)", nil
	}
	logger, err := logging.New(logging.Options{Level: "warn", Format: cfg.Logging.Format, OutputPaths: []string{"stderr"}})
	if err != nil {
		return nil, "", fmt.Errorf("init logger: %w", err)
	}
	logger = logging.NewComponentLogger(logger, "cli-cache")
	cache, err := contentcache.Open(cmd.Context(), cfg.Cache.Path, contentcache.Options{Logger: logger})
	if err != nil {
		return nil, "", err
	}
	return cache, "", nil
}
