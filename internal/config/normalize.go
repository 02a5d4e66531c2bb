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
	if err := c.normalizeTidal(); err != nil {
		return err
	}
	c.normalizeRecovery()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.SeratoDir, err = expandPath(strings.TrimSpace(c.Paths.SeratoDir)); err != nil {
		return fmt.Errorf("paths.serato_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.VolumeRoot) == "" {
		c.Paths.VolumeRoot = defaultVolumeRoot
	}
	if c.Paths.VolumeRoot, err = expandPath(strings.TrimSpace(c.Paths.VolumeRoot)); err != nil {
		return fmt.Errorf("paths.volume_root: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(strings.TrimSpace(c.Paths.StagingDir)); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTidal() error {
	if c.Tidal.ClientID == "" {
		c.Tidal.ClientID = os.Getenv(envClientID)
	}
	if c.Tidal.ClientSecret == "" {
		c.Tidal.ClientSecret = os.Getenv(envClientSecret)
	}
	c.Tidal.ClientID = strings.TrimSpace(c.Tidal.ClientID)
	c.Tidal.ClientSecret = strings.TrimSpace(c.Tidal.ClientSecret)
	c.Tidal.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.Tidal.APIBaseURL), "/")
	if c.Tidal.APIBaseURL == "" {
		c.Tidal.APIBaseURL = defaultTidalAPIBaseURL
	}
	c.Tidal.AuthBaseURL = strings.TrimRight(strings.TrimSpace(c.Tidal.AuthBaseURL), "/")
	if c.Tidal.AuthBaseURL == "" {
		c.Tidal.AuthBaseURL = defaultTidalAuthBaseURL
	}
	c.Tidal.CountryCode = strings.ToUpper(strings.TrimSpace(c.Tidal.CountryCode))
	if c.Tidal.CountryCode == "" {
		c.Tidal.CountryCode = defaultTidalCountryCode
	}
	c.Tidal.PlaylistFolder = strings.TrimSpace(c.Tidal.PlaylistFolder)
	if c.Tidal.RequestTimeout <= 0 {
		c.Tidal.RequestTimeout = defaultTidalRequestTimeout
	}
	if c.Tidal.SearchLimit <= 0 {
		c.Tidal.SearchLimit = defaultTidalSearchLimit
	}
	if strings.TrimSpace(c.Tidal.TokenFile) != "" {
		var err error
		if c.Tidal.TokenFile, err = expandPath(strings.TrimSpace(c.Tidal.TokenFile)); err != nil {
			return fmt.Errorf("tidal.token_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeRecovery() {
	c.Recovery.DownloaderBinary = strings.TrimSpace(c.Recovery.DownloaderBinary)
	if c.Recovery.DownloaderBinary == "" {
		c.Recovery.DownloaderBinary = defaultDownloaderBinary
	}
	c.Recovery.Quality = strings.ToUpper(strings.TrimSpace(c.Recovery.Quality))
	if c.Recovery.Quality == "" {
		c.Recovery.Quality = defaultQuality
	}
	c.Recovery.FFprobeBinary = strings.TrimSpace(c.Recovery.FFprobeBinary)

	seen := make(map[string]struct{}, len(c.Recovery.AllowedExtensions))
	exts := make([]string, 0, len(c.Recovery.AllowedExtensions))
	for _, ext := range c.Recovery.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		exts = append(exts, defaultAllowedExtensions...)
	}
	c.Recovery.AllowedExtensions = exts
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
