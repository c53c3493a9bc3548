package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	// DataDir is the synced notebook tree scanned for .note files.
	DataDir string `toml:"data_dir"`
	// BackupDir receives one timestamped copy per injection attempt.
	// Empty disables backups.
	BackupDir string `toml:"backup_dir"`
	// StateDir holds the processing database and other daemon state.
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// OCR contains configuration for the external recognition engine.
type OCR struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxAttempts    int    `toml:"max_attempts"`
}

// Recognition contains configuration for the flags written into notebook headers.
type Recognition struct {
	// Language is the locale written into the recognition-language header flag.
	Language string `toml:"language"`
	// Type is a tri-state: "keep" preserves the existing header value, "0" and
	// "1" overwrite it. "1" lets the device keep recognizing new strokes.
	Type string `toml:"type"`
}

// Daemon contains configuration for the watch/process loop.
type Daemon struct {
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	SettleSeconds       int    `toml:"settle_seconds"`
	HealthBind          string `toml:"health_bind"`
	// ConverterBinary renders notebook pages to PNG. Empty falls back to
	// extracting embedded background images only.
	ConverterBinary string `toml:"converter_binary"`
}

// Export contains configuration for plain-text export of recognized text.
type Export struct {
	TextEnabled bool   `toml:"text_enabled"`
	TextDir     string `toml:"text_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for inkdex.
//
// Configuration sections by subsystem:
//   - Paths: notebook data tree, backups, state, and logs
//   - OCR: recognition engine endpoint and retry budget
//   - Recognition: header flags written during injection
//   - Daemon: watch loop timing and page image conversion
//   - Export: optional plain-text export of recognized text
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	OCR         OCR         `toml:"ocr"`
	Recognition Recognition `toml:"recognition"`
	Daemon      Daemon      `toml:"daemon"`
	Export      Export      `toml:"export"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/inkdex/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
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

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("inkdex.toml")
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

// EnsureDirectories creates the directories the daemon needs at runtime.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.LogDir}
	if c.Paths.BackupDir != "" {
		dirs = append(dirs, c.Paths.BackupDir)
	}
	if c.Export.TextEnabled && c.Export.TextDir != "" {
		dirs = append(dirs, c.Export.TextDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the processing database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "processing.db")
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Abs(trimmed)
}
