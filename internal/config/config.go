package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	SeratoDir  string `toml:"serato_dir"`
	VolumeRoot string `toml:"volume_root"`
	StagingDir string `toml:"staging_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
}

// Tidal contains remote catalog settings.
type Tidal struct {
	APIBaseURL     string `toml:"api_base_url"`
	AuthBaseURL    string `toml:"auth_base_url"`
	ClientID       string `toml:"client_id"`
	ClientSecret   string `toml:"client_secret"`
	CountryCode    string `toml:"country_code"`
	PlaylistFolder string `toml:"playlist_folder"`
	TokenFile      string `toml:"token_file"`
	RequestTimeout int    `toml:"request_timeout"`
	SearchLimit    int    `toml:"search_limit"`
}

// Recovery contains download and file replacement settings.
type Recovery struct {
	DownloaderBinary      string   `toml:"downloader_binary"`
	Quality               string   `toml:"quality"`
	DownloadTimeout       int      `toml:"download_timeout"`
	AllowedExtensions     []string `toml:"allowed_extensions"`
	AssumeLosslessBitrate int      `toml:"assume_lossless_bitrate"`
	StagingMaxAgeHours    int      `toml:"staging_max_age_hours"`
	FFprobeBinary         string   `toml:"ffprobe_binary"`
}

// Sync contains reconciliation pass settings.
type Sync struct {
	MaxBitrate         int  `toml:"max_bitrate"`
	ForceUpdate        bool `toml:"force_update"`
	Interval           int  `toml:"interval"`
	ErrorRetryInterval int  `toml:"error_retry_interval"`
	RecoverAfterSync   bool `toml:"recover_after_sync"`
}

// Notifications contains optional ntfy delivery settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	// NotifyIdle also reports iterations that changed nothing.
	NotifyIdle bool `toml:"notify_idle"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Config encapsulates all configuration values for cratesync.
//
// Configuration sections by subsystem:
//   - Paths: Serato library, staging, state and log directories
//   - Tidal: API endpoints, client credentials and playlist placement
//   - Recovery: downloader invocation and bitrate heuristics
//   - Sync: bitrate ceiling and daemon intervals
//   - Notifications: ntfy topic for daemon iteration summaries
//   - Logging: log format, level, and rotation
type Config struct {
	Paths         Paths         `toml:"paths"`
	Tidal         Tidal         `toml:"tidal"`
	Recovery      Recovery      `toml:"recovery"`
	Sync          Sync          `toml:"sync"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

const defaultConfigLocation = "~/.config/cratesync/config.toml"

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigLocation)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if err := loadEnvFile(filepath.Join(filepath.Dir(resolvedPath), ".env")); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadEnvFile populates unset environment variables from an optional .env file.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigLocation)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cratesync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon and CLI write into.
// The Serato directory is never created; it belongs to the DJ software.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the mapping database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "sync_map.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "cratesync.lock")
}

// TokenPath returns the Tidal session token file location.
func (c *Config) TokenPath() string {
	if c.Tidal.TokenFile != "" {
		return c.Tidal.TokenFile
	}
	return filepath.Join(c.Paths.StateDir, "tidal_session.json")
}

// PIDPath returns the file the running daemon writes its process id to.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "cratesync.pid")
}

// LogFilePath returns the rotating log file location.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "cratesync.log")
}

// FFprobeBinary returns the ffprobe executable used for bitrate probing.
func (c *Config) FFprobeBinary() string {
	if c.Recovery.FFprobeBinary != "" {
		return c.Recovery.FFprobeBinary
	}
	return "ffprobe"
}

// ResolveLocal turns a normalized crate key (no leading separator) into an
// absolute filesystem path under the configured volume root.
func (c *Config) ResolveLocal(key string) string {
	root := c.Paths.VolumeRoot
	if root == "" {
		root = "/"
	}
	return filepath.Join(root, strings.TrimPrefix(key, "/"))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
