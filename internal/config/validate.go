package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var validQualities = []string{"LOW", "HIGH", "LOSSLESS", "HI_RES_LOSSLESS"}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRecovery(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.SeratoDir == "" {
		return errors.New("paths.serato_dir must be set")
	}
	if c.Paths.StagingDir == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateRecovery() error {
	if !slices.Contains(validQualities, c.Recovery.Quality) {
		return fmt.Errorf("recovery.quality %q must be one of %v", c.Recovery.Quality, validQualities)
	}
	if c.Recovery.DownloadTimeout <= 0 {
		return errors.New("recovery.download_timeout must be positive")
	}
	if c.Recovery.AssumeLosslessBitrate < 0 {
		return errors.New("recovery.assume_lossless_bitrate must be >= 0 (0 disables the assumption)")
	}
	if c.Recovery.StagingMaxAgeHours < 0 {
		return errors.New("recovery.staging_max_age_hours must be >= 0")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.MaxBitrate < 0 {
		return errors.New("sync.max_bitrate must be >= 0 (0 disables the ceiling)")
	}
	if c.Sync.Interval <= 0 {
		return errors.New("sync.interval must be positive")
	}
	if c.Sync.ErrorRetryInterval <= 0 {
		return errors.New("sync.error_retry_interval must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic %q must be a full http(s) URL", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return errors.New("logging rotation settings must be >= 0")
	}
	return nil
}
