package config

const (
	defaultConfigPath      = "~/.config/bimcvprep/config.toml"
	defaultArchiveDir      = "~/data/bimcv-covid19/original"
	defaultPreparedDir     = "~/data/bimcv-covid19/prepared"
	defaultScratchDir      = "~/.cache/bimcvprep/scratch"
	defaultLogDir          = "~/.local/share/bimcvprep/logs"
	defaultCatalogPath     = "~/.local/share/bimcvprep/catalog.db"
	defaultShardPattern    = "*part*.tar.gz"
	defaultLogFormat       = "auto"
	defaultLogLevel        = "info"
	defaultStaleAfterHours = 24
	rotationTableEnv       = "BIMCVPREP_ROTATION_TABLE"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ArchiveDir:  defaultArchiveDir,
			PreparedDir: defaultPreparedDir,
			ScratchDir:  defaultScratchDir,
			LogDir:      defaultLogDir,
		},
		Extraction: Extraction{
			ShardPattern: defaultShardPattern,
			OnShardError: ShardErrorSkip,
		},
		Normalization: Normalization{
			RotateCT: true,
			TrimCT:   true,
		},
		Series: Series{
			SkipColorStills: true,
		},
		Catalog: Catalog{
			Enabled: true,
			Path:    defaultCatalogPath,
		},
		Scratch: Scratch{
			StaleAfterHours: defaultStaleAfterHours,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
