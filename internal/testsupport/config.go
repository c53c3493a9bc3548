package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"inkdex/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// WithConverterBinary points the page image converter at the given binary.
func WithConverterBinary(path string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Daemon.ConverterBinary = path
	}
}

// WithRecognitionType overrides the tri-state recognition type flag.
func WithRecognitionType(value string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Recognition.Type = value
	}
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.BackupDir = filepath.Join(base, "backups")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.OCR.BaseURL = "http://127.0.0.1:0"
	cfg.Daemon.PollIntervalSeconds = 1
	cfg.Daemon.SettleSeconds = 0
	cfg.Daemon.HealthBind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure test directories: %v", err)
	}
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		t.Fatalf("create test data dir: %v", err)
	}
	return &cfg
}
