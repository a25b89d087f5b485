package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StorageDir) == "" {
		return errors.New("paths.storage_dir must be set")
	}
	if c.Paths.StorageDir == c.Paths.StateDir {
		return errors.New("paths.storage_dir must differ from paths.state_dir; the storage root holds artifacts only")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q: %w", c.Paths.APIBind, err)
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.WindowSeconds <= 0 {
		return errors.New("retention.window_seconds must be positive")
	}
	return nil
}

func (c *Config) validateServer() error {
	if strings.ContainsAny(c.Server.FilenamePrefix, `/\`) {
		return fmt.Errorf("server.filename_prefix %q must not contain path separators", c.Server.FilenamePrefix)
	}
	return nil
}
