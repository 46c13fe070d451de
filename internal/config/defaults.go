package config

const (
	defaultConfigPath           = "~/.config/splicer/config.toml"
	defaultStateDir             = "~/.local/share/splicer"
	defaultLogDir               = "~/.local/share/splicer/logs"
	defaultFFmpeg               = "ffmpeg"
	defaultFFprobe              = "ffprobe"
	defaultGracePeriodMS        = 500
	defaultDeleteMaxAttempts    = 10
	defaultDeleteBackoffMS      = 500
	defaultDeleteMaxBackoffMS   = 5000
	defaultDeleteConfirmDelayMS = 100
	defaultDeleteErrorPauseMS   = 1000
	defaultDeleteSettleDelayMS  = 200
	defaultDeleteShellTimeout   = 10
	defaultHistoryFile          = "history.db"
	defaultHistoryRetentionDays = 30
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Tools: Tools{
			FFmpeg:  defaultFFmpeg,
			FFprobe: defaultFFprobe,
		},
		Merge: Merge{
			GracePeriodMS: defaultGracePeriodMS,
		},
		Deletion: Deletion{
			MaxAttempts:         defaultDeleteMaxAttempts,
			BackoffMS:           defaultDeleteBackoffMS,
			MaxBackoffMS:        defaultDeleteMaxBackoffMS,
			ConfirmDelayMS:      defaultDeleteConfirmDelayMS,
			ErrorPauseMS:        defaultDeleteErrorPauseMS,
			SettleDelayMS:       defaultDeleteSettleDelayMS,
			ShellTimeoutSeconds: defaultDeleteShellTimeout,
		},
		History: History{
			RetentionDays: defaultHistoryRetentionDays,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
