package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeRetention()
	c.normalizeServer()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StorageDir) == "" {
		c.Paths.StorageDir = defaultStorageDir
	}
	if c.Paths.StorageDir, err = expandPath(c.Paths.StorageDir); err != nil {
		return fmt.Errorf("paths.storage_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if value, ok := os.LookupEnv("UNILOADER_API_BIND"); ok && strings.TrimSpace(value) != "" {
		c.Paths.APIBind = strings.TrimSpace(value)
	} else if value, ok := os.LookupEnv("PORT"); ok && strings.TrimSpace(value) != "" {
		c.Paths.APIBind = ":" + strings.TrimSpace(value)
	}
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.YtDlpBinary = strings.TrimSpace(c.Tools.YtDlpBinary)
	if value, ok := os.LookupEnv("UNILOADER_YTDLP"); ok && strings.TrimSpace(value) != "" {
		c.Tools.YtDlpBinary = strings.TrimSpace(value)
	}
	if c.Tools.YtDlpBinary == "" {
		c.Tools.YtDlpBinary = defaultYtDlpBinary
	}
	c.Tools.FFmpegLocation = strings.TrimSpace(c.Tools.FFmpegLocation)
	if c.Tools.MetadataTimeout <= 0 {
		c.Tools.MetadataTimeout = defaultMetadataTimeout
	}
	if c.Tools.RetrievalTimeout <= 0 {
		c.Tools.RetrievalTimeout = defaultRetrievalTimeout
	}
	if c.Tools.MaxMetadataBytes <= 0 {
		c.Tools.MaxMetadataBytes = defaultMaxMetadataBytes
	}
}

func (c *Config) normalizeRetention() {
	if c.Retention.SweepInterval <= 0 {
		c.Retention.SweepInterval = defaultSweepInterval
	}
	if c.Retention.LedgerKeepDays < 0 {
		c.Retention.LedgerKeepDays = 0
	}
}

func (c *Config) normalizeServer() {
	if c.Server.RateLimit < 0 {
		c.Server.RateLimit = 0
	}
	if c.Server.RateBurst <= 0 {
		c.Server.RateBurst = defaultRateBurst
	}
	c.Server.CORSOrigin = strings.TrimSpace(c.Server.CORSOrigin)
	c.Server.FilenamePrefix = strings.TrimSpace(c.Server.FilenamePrefix)
	if c.Server.FilenamePrefix == "" {
		c.Server.FilenamePrefix = defaultFilenamePrefix
	}
	if c.Server.MinFreeMiB < 0 {
		c.Server.MinFreeMiB = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
