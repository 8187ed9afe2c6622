package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fluxcrop/internal/cropcanvas"
)

type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

type RecaptionConfig struct {
	Concurrency  int               `yaml:"concurrency"`
	BackupDir    string            `yaml:"backup_dir"`
	Replacements map[string]string `yaml:"replacements"`
}

type Config struct {
	Server        string          `yaml:"server"`
	Preset        string          `yaml:"preset"`
	SaveDirectory string          `yaml:"save_directory"`
	LogFile       string          `yaml:"log_file"`
	Reconnect     ReconnectConfig `yaml:"reconnect"`
	Pulse         time.Duration   `yaml:"pulse"`
	GracePeriod   time.Duration   `yaml:"grace_period"`
	Recaption     RecaptionConfig `yaml:"recaption"`
	Confirmations bool            `yaml:"confirmations"`
}

func defaultConfig() *Config {
	cfg := &Config{
		Server: "http://localhost:8000",
		Preset: cropcanvas.PresetWidescreen.String(),
		Reconnect: ReconnectConfig{
			InitialDelay: time.Second,
			MaxAttempts:  5,
		},
		Pulse:         300 * time.Millisecond,
		GracePeriod:   150 * time.Millisecond,
		Recaption:     RecaptionConfig{Concurrency: 2},
		Confirmations: true,
	}
	if dir, err := os.UserCacheDir(); err == nil {
		cfg.LogFile = filepath.Join(dir, "fluxcrop", "fluxcrop.log")
	}
	if dir, err := os.UserConfigDir(); err == nil {
		cfg.Recaption.BackupDir = filepath.Join(dir, "fluxcrop", "caption-backups")
	}
	return cfg
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "fluxcrop", "config.yaml")
}

// loadConfig reads path, or the default location when path is empty. A
// missing default file yields the defaults; a missing explicit file is an
// error.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if _, err := cropcanvas.ParsePreset(c.Preset); err != nil {
		return err
	}
	c.Server = strings.TrimRight(strings.TrimSpace(c.Server), "/")
	if c.Server == "" {
		return errors.New("server must not be empty")
	}
	c.SaveDirectory = expandPath(c.SaveDirectory)
	c.LogFile = expandPath(c.LogFile)
	c.Recaption.BackupDir = expandPath(c.Recaption.BackupDir)
	if c.Reconnect.InitialDelay <= 0 {
		c.Reconnect.InitialDelay = time.Second
	}
	if c.Reconnect.MaxAttempts <= 0 {
		c.Reconnect.MaxAttempts = 5
	}
	if c.Recaption.Concurrency <= 0 {
		c.Recaption.Concurrency = 1
	}
	return nil
}

func (c *Config) preset() cropcanvas.Preset {
	p, _ := cropcanvas.ParsePreset(c.Preset)
	return p
}

// expandPath resolves a leading ~ and makes the path absolute.
func expandPath(value string) string {
	if value == "" {
		return value
	}
	if value == "~" || strings.HasPrefix(value, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			value = filepath.Join(home, strings.TrimPrefix(value, "~"))
		}
	}
	if !filepath.IsAbs(value) {
		if absPath, err := filepath.Abs(value); err == nil {
			value = absPath
		}
	}
	return value
}

// GetSavePath places filename inside the save directory, creating it on
// demand. Without a save directory the working directory is used.
func (c *Config) GetSavePath(filename string) (string, error) {
	if c.SaveDirectory == "" {
		return filename, nil
	}
	if err := os.MkdirAll(c.SaveDirectory, 0o755); err != nil {
		return "", fmt.Errorf("create save directory: %w", err)
	}
	return filepath.Join(c.SaveDirectory, filename), nil
}
