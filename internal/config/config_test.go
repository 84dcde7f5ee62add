package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var settingKeys = []string{
	"CONFIG_FILE", "DATABASE_DRIVER", "DATABASE_URI", "SQLITE_PATH", "SQLITE_BUSY_TIMEOUT",
	"LOG_LEVEL", "ENVIRONMENT", "CRON_SPEC_REMINDER_CHECK", "LOOKAHEAD", "RUN_TIMEOUT",
	"WORKERS", "MAX_OCCURRENCES_PER_SCHEDULE", "HTTP_ADDR", "CRON_SECRET",
	"TRIGGER_RATE_PER_MINUTE", "TELEGRAM_TOKEN", "ALERT_CHAT_ID",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range settingKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URI", "postgres://localhost/reminders")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.DatabaseDriver)
	assert.Equal(t, "*/5 * * * *", cfg.CronSpecReminderCheck)
	assert.Equal(t, 5*time.Minute, cfg.Lookahead)
	assert.Equal(t, 4*time.Minute, cfg.RunTimeout)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 500, cfg.MaxOccurrencesPerSchedule)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.AlertsEnabled())
}

func TestLoadHTTPAddrOffDisablesTrigger(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URI", "postgres://localhost/reminders")
	t.Setenv("HTTP_ADDR", "OFF")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.HTTPAddr)
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/r.db")
	t.Setenv("LOOKAHEAD", "10m")
	t.Setenv("WORKERS", "8")
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("ALERT_CHAT_ID", "-100200")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, "/tmp/r.db", cfg.SQLitePath)
	assert.Equal(t, 10*time.Minute, cfg.Lookahead)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, int64(-100200), cfg.AlertChatID)
	assert.True(t, cfg.AlertsEnabled())
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "reminders.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"database_driver: sqlite\nsqlite_path: /var/lib/reminders.db\nworkers: 2\nlookahead: 15m\n",
	), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("WORKERS", "6")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, "/var/lib/reminders.db", cfg.SQLitePath)
	assert.Equal(t, 15*time.Minute, cfg.Lookahead)
	assert.Equal(t, 6, cfg.Workers)
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URI", "postgres://localhost/reminders")
	t.Setenv("LOOKAHEAD", "soon")
	t.Setenv("WORKERS", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOOKAHEAD")
	assert.Contains(t, err.Error(), "WORKERS")
}

func TestLoadRejectsNonYAMLFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "reminders.toml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		DatabaseDriver:            DriverPostgres,
		DatabaseURI:               "postgres://localhost/reminders",
		CronSpecReminderCheck:     "*/5 * * * *",
		Lookahead:                 5 * time.Minute,
		RunTimeout:                time.Minute,
		Workers:                   1,
		MaxOccurrencesPerSchedule: 1,
		TriggerRatePerMinute:      1,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown driver", func(c *Config) { c.DatabaseDriver = "mysql" }},
		{"postgres without uri", func(c *Config) { c.DatabaseURI = "" }},
		{"sqlite without path", func(c *Config) { c.DatabaseDriver = DriverSQLite; c.SQLitePath = " " }},
		{"bad cron", func(c *Config) { c.CronSpecReminderCheck = "every five minutes" }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"zero lookahead", func(c *Config) { c.Lookahead = 0 }},
		{"token without chat", func(c *Config) { c.TelegramToken = "123:abc" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("X", "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	d, err = ParseDurationOrDefault("X", " 90s ", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = ParseDurationOrDefault("X", "-1s", time.Second)
	assert.Error(t, err)
}
