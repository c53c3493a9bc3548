package config

const (
	defaultDataDir             = "~/supernote/data"
	defaultBackupDir           = "~/.local/share/inkdex/backups"
	defaultStateDir            = "~/.local/share/inkdex/state"
	defaultLogDir              = "~/.local/share/inkdex/logs"
	defaultOCRBaseURL          = "http://localhost:8100"
	defaultOCRTimeoutSeconds   = 180
	defaultOCRMaxAttempts      = 3
	defaultRecognitionLanguage = "en_US"
	defaultRecognitionType     = "keep"
	defaultPollIntervalSeconds = 300
	defaultSettleSeconds       = 30
	defaultHealthBind          = "127.0.0.1:8180"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			BackupDir: defaultBackupDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
		},
		OCR: OCR{
			BaseURL:        defaultOCRBaseURL,
			TimeoutSeconds: defaultOCRTimeoutSeconds,
			MaxAttempts:    defaultOCRMaxAttempts,
		},
		Recognition: Recognition{
			Language: defaultRecognitionLanguage,
			Type:     defaultRecognitionType,
		},
		Daemon: Daemon{
			PollIntervalSeconds: defaultPollIntervalSeconds,
			SettleSeconds:       defaultSettleSeconds,
			HealthBind:          defaultHealthBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
