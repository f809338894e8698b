// Package config provides YAML-based configuration loading for modelyard.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where commands look for the config file unless --config is given.
const DefaultPath = "modelyard.yaml"

// Config is the top-level modelyard configuration, loaded from modelyard.yaml.
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Log       LogConfig       `yaml:"log"`
	Upload    UploadConfig    `yaml:"upload"`
	Watch     WatchConfig     `yaml:"watch"`
	Notify    NotifyConfig    `yaml:"notify"`
	DevServer DevServerConfig `yaml:"devserver"`
}

// BackendConfig locates the fine-tuning API server.
type BackendConfig struct {
	BaseURL  string         `yaml:"base_url"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// TimeoutsConfig bounds how long a request may stay pending.
type TimeoutsConfig struct {
	Default   time.Duration `yaml:"default"`
	Training  time.Duration `yaml:"training"`
	Inference time.Duration `yaml:"inference"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// UploadConfig restricts which dataset files may be uploaded.
type UploadConfig struct {
	Extensions []string `yaml:"extensions"`
}

// WatchConfig schedules registry polling.
type WatchConfig struct {
	Schedule string `yaml:"schedule"`
}

// NotifyConfig holds optional chat webhooks for registry events.
type NotifyConfig struct {
	Slack   WebhookConfig `yaml:"slack"`
	Discord WebhookConfig `yaml:"discord"`
}

// WebhookConfig is a single incoming-webhook destination.
type WebhookConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// DevServerConfig configures the bundled reference backend.
type DevServerConfig struct {
	Port         int            `yaml:"port"`
	ArtifactsDir string         `yaml:"artifacts_dir"`
	Database     DatabaseConfig `yaml:"database"`
}

// DatabaseConfig selects the dev backend's storage.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// LoadOrDefault behaves like Load but falls back to Default when the file
// does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://127.0.0.1:8000"
	}
	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")
	if c.Backend.Timeouts.Default == 0 {
		c.Backend.Timeouts.Default = 30 * time.Second
	}
	if c.Backend.Timeouts.Training == 0 {
		c.Backend.Timeouts.Training = 2 * time.Hour
	}
	if c.Backend.Timeouts.Inference == 0 {
		c.Backend.Timeouts.Inference = 5 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 10
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 7
	}
	if len(c.Upload.Extensions) == 0 {
		c.Upload.Extensions = []string{".xlsx", ".csv"}
	}
	for i, ext := range c.Upload.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Upload.Extensions[i] = ext
	}
	if c.Watch.Schedule == "" {
		c.Watch.Schedule = "*/5 * * * *"
	}
	if c.DevServer.Port == 0 {
		c.DevServer.Port = 8000
	}
	if c.DevServer.ArtifactsDir == "" {
		c.DevServer.ArtifactsDir = "artifacts"
	}
	db := &c.DevServer.Database
	if db.Driver == "" {
		db.Driver = "sqlite"
	}
	if db.Driver == "sqlite" && db.Path == "" {
		db.Path = "modelyard-dev.db"
	}
	if db.Driver == "mysql" {
		if db.Host == "" {
			db.Host = "127.0.0.1"
		}
		if db.Port == 0 {
			db.Port = 3306
		}
		if db.User == "" {
			db.User = "root"
		}
		if db.Name == "" {
			db.Name = "modelyard"
		}
	}
}

// Validate checks that all required fields are present and consistent.
func (c *Config) Validate() error {
	var errs []string
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("backend.base_url %q must be an http(s) URL", c.Backend.BaseURL))
	}
	if c.Backend.Timeouts.Default < 0 || c.Backend.Timeouts.Training < 0 || c.Backend.Timeouts.Inference < 0 {
		errs = append(errs, "backend.timeouts must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q must be one of debug, info, warn, error", c.Log.Level))
	}
	for i, ext := range c.Upload.Extensions {
		if ext == "" || ext == "." {
			errs = append(errs, fmt.Sprintf("upload.extensions[%d] is empty", i))
		}
	}
	if len(strings.Fields(c.Watch.Schedule)) != 5 {
		errs = append(errs, fmt.Sprintf("watch.schedule %q must be a 5-field cron expression", c.Watch.Schedule))
	}
	if c.DevServer.Port < 0 || c.DevServer.Port > 65535 {
		errs = append(errs, fmt.Sprintf("devserver.port %d out of range", c.DevServer.Port))
	}
	switch c.DevServer.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("devserver.database.driver %q must be sqlite or mysql", c.DevServer.Database.Driver))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// AllowsUpload reports whether filename has an allowed upload extension.
func (c *UploadConfig) AllowsUpload(filename string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range c.Extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
