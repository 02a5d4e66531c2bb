package config

const (
	defaultSeratoDir             = "~/Music/_Serato_"
	defaultVolumeRoot            = "/"
	defaultStagingDir            = "~/.local/share/cratesync/staging"
	defaultStateDir              = "~/.local/share/cratesync"
	defaultLogDir                = "~/.local/share/cratesync/logs"
	defaultTidalAPIBaseURL       = "https://api.tidal.com"
	defaultTidalAuthBaseURL      = "https://auth.tidal.com"
	defaultTidalCountryCode      = "US"
	defaultTidalPlaylistFolder   = "Serato"
	defaultTidalRequestTimeout   = 15
	defaultTidalSearchLimit      = 10
	defaultDownloaderBinary      = "tidal-dl-ng"
	defaultQuality               = "LOSSLESS"
	defaultDownloadTimeout       = 900
	defaultAssumeLosslessBitrate = 1411
	defaultStagingMaxAgeHours    = 72
	defaultSyncInterval          = 900
	defaultErrorRetryInterval    = 60
	defaultNtfyRequestTimeout    = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogMaxSizeMB          = 10
	defaultLogMaxBackups         = 5
	defaultLogMaxAgeDays         = 30

	envClientID     = "CRATESYNC_TIDAL_CLIENT_ID"
	envClientSecret = "CRATESYNC_TIDAL_CLIENT_SECRET"
)

var defaultAllowedExtensions = []string{".flac", ".mp3", ".m4a", ".mp4", ".wav"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SeratoDir:  defaultSeratoDir,
			VolumeRoot: defaultVolumeRoot,
			StagingDir: defaultStagingDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
		},
		Tidal: Tidal{
			APIBaseURL:     defaultTidalAPIBaseURL,
			AuthBaseURL:    defaultTidalAuthBaseURL,
			CountryCode:    defaultTidalCountryCode,
			PlaylistFolder: defaultTidalPlaylistFolder,
			RequestTimeout: defaultTidalRequestTimeout,
			SearchLimit:    defaultTidalSearchLimit,
		},
		Recovery: Recovery{
			DownloaderBinary:      defaultDownloaderBinary,
			Quality:               defaultQuality,
			DownloadTimeout:       defaultDownloadTimeout,
			AllowedExtensions:     append([]string(nil), defaultAllowedExtensions...),
			AssumeLosslessBitrate: defaultAssumeLosslessBitrate,
			StagingMaxAgeHours:    defaultStagingMaxAgeHours,
		},
		Sync: Sync{
			Interval:           defaultSyncInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			RecoverAfterSync:   true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}
