package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kmetija.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: 127.0.0.1:9000
  token_ttl: 2h
database:
  path: /var/lib/kmetija/db.sqlite3
images:
  max_dimension: 640
jobs:
  overdue: "@daily"
  expiry_window_days: 5
  timezone: UTC
mail:
  host: smtp.example.com
  from: kmetija@example.com
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 2*time.Hour, cfg.Server.TokenTTL)
	assert.Equal(t, "/var/lib/kmetija/db.sqlite3", cfg.Database.Path)
	assert.Equal(t, 640, cfg.Images.MaxDimension)
	assert.Equal(t, 85, cfg.Images.JPEGQuality, "unset fields keep defaults")
	assert.Equal(t, "@daily", cfg.Jobs.Overdue)
	assert.Equal(t, 5, cfg.Jobs.ExpiryWindowDays)
	assert.True(t, cfg.Mail.Enabled())
	assert.Equal(t, 587, cfg.Mail.Port)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "database:\n  path: from-file.sqlite3\n")
	t.Setenv("KMETIJA_DB", "from-env.sqlite3")
	t.Setenv("KMETIJA_ADDR", ":9999")
	t.Setenv("KMETIJA_SMTP_HOST", "mail.local")
	t.Setenv("KMETIJA_SMTP_PORT", "2525")
	t.Setenv("KMETIJA_SMTP_FROM", "noreply@mail.local")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.sqlite3", cfg.Database.Path)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "mail.local", cfg.Mail.Host)
	assert.Equal(t, 2525, cfg.Mail.Port)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not, a, map]"))
	assert.Error(t, err)

	t.Setenv("KMETIJA_SMTP_PORT", "abc")
	_, err = Load("")
	assert.ErrorContains(t, err, "KMETIJA_SMTP_PORT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"bad quality", func(c *Config) { c.Images.JPEGQuality = 101 }, "jpeg_quality"},
		{"negative window", func(c *Config) { c.Jobs.ExpiryWindowDays = -1 }, "expiry_window_days"},
		{"bad timezone", func(c *Config) { c.Jobs.Timezone = "Mars/Olympus" }, "jobs.timezone"},
		{"mail without from", func(c *Config) { c.Mail.Host = "smtp" }, "mail.from"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
