package config

const (
	defaultStateDir           = "~/.local/share/tilebatch"
	defaultLogDir             = "~/.local/share/tilebatch/logs"
	defaultOutputPath         = "~/.local/share/tilebatch/scene.glb"
	defaultCacheFile          = "content_cache.db"
	defaultLedgerFile         = "progress.jsonl"
	defaultTilePattern        = "*.gltf"
	defaultWorkers            = 1
	defaultCheckpointInterval = 50
	defaultMissingTexture     = MissingTextureFail
	defaultGroupingMode       = GroupingTile
	defaultPrefixTokens       = 1
	defaultOutputFormat       = OutputGLB
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
	defaultMinFreeMiB         = 512
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Import: Import{
			Pattern:            defaultTilePattern,
			Workers:            defaultWorkers,
			CheckpointInterval: defaultCheckpointInterval,
			ImportTextures:     true,
			MissingTexture:     defaultMissingTexture,
			RetryFailed:        true,
		},
		Cache: Cache{
			Enabled: true,
		},
		Ledger: Ledger{
			Sync: true,
		},
		Grouping: Grouping{
			Mode:         defaultGroupingMode,
			PrefixTokens: defaultPrefixTokens,
		},
		Output: Output{
			Format: defaultOutputFormat,
			Path:   defaultOutputPath,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Preflight: Preflight{
			MinFreeMiB: defaultMinFreeMiB,
		},
	}
}
