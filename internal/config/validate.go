package config

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Recognized values for recognition.type.
const (
	RecognitionTypeKeep = "keep"
	RecognitionTypeOff  = "0"
	RecognitionTypeOn   = "1"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateOCR(); err != nil {
		return err
	}
	if err := c.validateRecognition(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateOCR() error {
	if strings.TrimSpace(c.OCR.BaseURL) == "" {
		return errors.New("ocr.base_url must be set")
	}
	if c.OCR.TimeoutSeconds <= 0 {
		return errors.New("ocr.timeout_seconds must be positive")
	}
	if c.OCR.MaxAttempts <= 0 {
		return errors.New("ocr.max_attempts must be positive")
	}
	return nil
}

func (c *Config) validateRecognition() error {
	lang := strings.TrimSpace(c.Recognition.Language)
	if lang == "" {
		return errors.New("recognition.language must be set")
	}
	// Device headers carry underscore locales (en_US); BCP 47 wants hyphens.
	if _, err := language.Parse(strings.ReplaceAll(lang, "_", "-")); err != nil {
		return fmt.Errorf("recognition.language %q is not a valid locale: %w", lang, err)
	}
	switch c.Recognition.Type {
	case RecognitionTypeKeep, RecognitionTypeOff, RecognitionTypeOn:
		return nil
	default:
		return fmt.Errorf("recognition.type must be %q, %q, or %q", RecognitionTypeKeep, RecognitionTypeOff, RecognitionTypeOn)
	}
}

func (c *Config) validateDaemon() error {
	if c.Daemon.PollIntervalSeconds <= 0 {
		return errors.New("daemon.poll_interval_seconds must be positive")
	}
	if c.Daemon.SettleSeconds < 0 {
		return errors.New("daemon.settle_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateExport() error {
	if c.Export.TextEnabled && strings.TrimSpace(c.Export.TextDir) == "" {
		return errors.New("export.text_dir must be set when export.text_enabled is true")
	}
	return nil
}
