package config

const (
	defaultStorageDir       = "~/.local/share/uniloader/artifacts"
	defaultStateDir         = "~/.local/share/uniloader"
	defaultLogDir           = "~/.local/share/uniloader/logs"
	defaultAPIBind          = "127.0.0.1:3001"
	defaultYtDlpBinary      = "yt-dlp"
	defaultMetadataTimeout  = 60
	defaultRetrievalTimeout = 1800
	defaultMaxMetadataBytes = 10 * 1024 * 1024
	defaultRetentionWindow  = 3600
	defaultSweepInterval    = 600
	defaultLedgerKeepDays   = 7
	defaultRateLimit        = 10
	defaultRateBurst        = 20
	defaultCORSOrigin       = "*"
	defaultFilenamePrefix   = "UniLoader"
	defaultMinFreeMiB       = 512
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StorageDir: defaultStorageDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Tools: Tools{
			YtDlpBinary:      defaultYtDlpBinary,
			MetadataTimeout:  defaultMetadataTimeout,
			RetrievalTimeout: defaultRetrievalTimeout,
			MaxMetadataBytes: defaultMaxMetadataBytes,
		},
		Retention: Retention{
			WindowSeconds:   defaultRetentionWindow,
			PersistSchedule: true,
			SweepInterval:   defaultSweepInterval,
			LedgerKeepDays:  defaultLedgerKeepDays,
		},
		Server: Server{
			RateLimit:      defaultRateLimit,
			RateBurst:      defaultRateBurst,
			CORSOrigin:     defaultCORSOrigin,
			FilenamePrefix: defaultFilenamePrefix,
			MinFreeMiB:     defaultMinFreeMiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
