package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeOCR()
	c.normalizeRecognition()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.BackupDir, err = expandPath(c.Paths.BackupDir); err != nil {
		return fmt.Errorf("paths.backup_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Export.TextDir, err = expandPath(c.Export.TextDir); err != nil {
		return fmt.Errorf("export.text_dir: %w", err)
	}
	if c.Daemon.ConverterBinary, err = expandPath(c.Daemon.ConverterBinary); err != nil {
		return fmt.Errorf("daemon.converter_binary: %w", err)
	}
	return nil
}

func (c *Config) normalizeOCR() {
	c.OCR.BaseURL = strings.TrimRight(strings.TrimSpace(c.OCR.BaseURL), "/")
	if c.OCR.TimeoutSeconds == 0 {
		c.OCR.TimeoutSeconds = defaultOCRTimeoutSeconds
	}
	if c.OCR.MaxAttempts == 0 {
		c.OCR.MaxAttempts = defaultOCRMaxAttempts
	}
}

func (c *Config) normalizeRecognition() {
	c.Recognition.Language = strings.TrimSpace(c.Recognition.Language)
	c.Recognition.Type = strings.ToLower(strings.TrimSpace(c.Recognition.Type))
	if c.Recognition.Type == "" {
		c.Recognition.Type = defaultRecognitionType
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
