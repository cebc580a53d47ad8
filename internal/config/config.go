// Package config loads service settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
	Images   ImagesConfig   `yaml:"images"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Mail     MailConfig     `yaml:"mail"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig controls the optional rotated log file. An empty Path logs to
// stdout and stderr only.
type LogConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type AdminConfig struct {
	Username string `yaml:"username"`
}

type ImagesConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	MaxDimension   int   `yaml:"max_dimension"`
	JPEGQuality    int   `yaml:"jpeg_quality"`
}

type RealtimeConfig struct {
	SendBuffer   int           `yaml:"send_buffer"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

// JobsConfig holds cron specs for the maintenance jobs.
type JobsConfig struct {
	Overdue          string `yaml:"overdue"`
	Expiring         string `yaml:"expiring"`
	TokenPurge       string `yaml:"token_purge"`
	ExpiryWindowDays int    `yaml:"expiry_window_days"`
	Timezone         string `yaml:"timezone"`
}

// MailConfig configures SMTP delivery. Mail is disabled when Host is empty.
type MailConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	From      string `yaml:"from"`
	QueueSize int    `yaml:"queue_size"`
}

// Enabled reports whether mail delivery is configured.
func (m MailConfig) Enabled() bool {
	return m.Host != ""
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			TokenTTL:          24 * time.Hour,
		},
		Database: DatabaseConfig{Path: "kmetija.sqlite3"},
		Log: LogConfig{
			MaxSizeMB:  64,
			MaxBackups: 7,
			MaxAgeDays: 7,
		},
		Admin: AdminConfig{Username: "admin"},
		Images: ImagesConfig{
			MaxUploadBytes: 10 << 20,
			MaxDimension:   1024,
			JPEGQuality:    85,
		},
		Realtime: RealtimeConfig{
			SendBuffer:   64,
			PingInterval: 54 * time.Second,
		},
		Jobs: JobsConfig{
			Overdue:          "0 0 7 * * *",
			Expiring:         "0 30 6 * * *",
			TokenPurge:       "@hourly",
			ExpiryWindowDays: 3,
			Timezone:         "Local",
		},
		Mail: MailConfig{
			Port:      587,
			QueueSize: 100,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"KMETIJA_DB":            &c.Database.Path,
		"KMETIJA_ADDR":          &c.Server.Addr,
		"KMETIJA_LOG":           &c.Log.Path,
		"KMETIJA_ADMIN":         &c.Admin.Username,
		"KMETIJA_SMTP_HOST":     &c.Mail.Host,
		"KMETIJA_SMTP_USER":     &c.Mail.Username,
		"KMETIJA_SMTP_PASSWORD": &c.Mail.Password,
		"KMETIJA_SMTP_FROM":     &c.Mail.From,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	if v, ok := lookup("KMETIJA_SMTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KMETIJA_SMTP_PORT: %w", err)
		}
		c.Mail.Port = port
	}
	return nil
}

// Location resolves the jobs timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Jobs.Timezone == "" || c.Jobs.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Jobs.Timezone)
}

// Validate checks the configuration for values the service can't run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.TokenTTL <= 0 {
		errs = append(errs, errors.New("server.token_ttl must be positive"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Admin.Username == "" {
		errs = append(errs, errors.New("admin.username is required"))
	}
	if c.Images.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("images.max_upload_bytes must be positive"))
	}
	if c.Images.MaxDimension <= 0 {
		errs = append(errs, errors.New("images.max_dimension must be positive"))
	}
	if c.Images.JPEGQuality < 1 || c.Images.JPEGQuality > 100 {
		errs = append(errs, errors.New("images.jpeg_quality must be between 1 and 100"))
	}
	if c.Realtime.SendBuffer <= 0 {
		errs = append(errs, errors.New("realtime.send_buffer must be positive"))
	}
	if c.Realtime.PingInterval <= 0 {
		errs = append(errs, errors.New("realtime.ping_interval must be positive"))
	}
	if c.Jobs.ExpiryWindowDays < 0 {
		errs = append(errs, errors.New("jobs.expiry_window_days must not be negative"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("jobs.timezone: %w", err))
	}
	if c.Mail.Enabled() {
		if c.Mail.Port <= 0 || c.Mail.Port > 65535 {
			errs = append(errs, errors.New("mail.port must be a valid port"))
		}
		if c.Mail.From == "" {
			errs = append(errs, errors.New("mail.from is required when mail is enabled"))
		}
	}
	return errors.Join(errs...)
}
