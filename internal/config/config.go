package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	DatabaseDriver    string
	DatabaseURI       string
	SQLitePath        string
	SQLiteBusyTimeout time.Duration

	LogLevel    string
	Environment string

	CronSpecReminderCheck     string
	Lookahead                 time.Duration
	RunTimeout                time.Duration
	Workers                   int
	MaxOccurrencesPerSchedule int

	HTTPAddr             string
	CronSecret           string
	TriggerRatePerMinute int

	TelegramToken string
	AlertChatID   int64
}

// Load reads configuration from the environment, a .env file and an optional
// YAML file named by CONFIG_FILE. Environment variables win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional in production
	}

	file, err := readFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	env := func(key string) string {
		if value := os.Getenv(key); value != "" {
			return value
		}
		return file[key]
	}
	getEnvOrDefault := func(key, defaultValue string) string {
		if value := env(key); value != "" {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		DatabaseDriver:        strings.ToLower(getEnvOrDefault("DATABASE_DRIVER", DriverPostgres)),
		DatabaseURI:           env("DATABASE_URI"),
		SQLitePath:            getEnvOrDefault("SQLITE_PATH", "data/reminders.db"),
		LogLevel:              strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Environment:           strings.ToLower(getEnvOrDefault("ENVIRONMENT", "development")),
		CronSpecReminderCheck: getEnvOrDefault("CRON_SPEC_REMINDER_CHECK", "*/5 * * * *"),
		HTTPAddr:              httpAddr(getEnvOrDefault("HTTP_ADDR", ":8080")),
		CronSecret:            env("CRON_SECRET"),
		TelegramToken:         env("TELEGRAM_TOKEN"),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.SQLiteBusyTimeout, err = ParseDurationOrDefault("SQLITE_BUSY_TIMEOUT", env("SQLITE_BUSY_TIMEOUT"), 2*time.Second)
	collect(err)
	cfg.Lookahead, err = ParseDurationOrDefault("LOOKAHEAD", env("LOOKAHEAD"), 5*time.Minute)
	collect(err)
	cfg.RunTimeout, err = ParseDurationOrDefault("RUN_TIMEOUT", env("RUN_TIMEOUT"), 4*time.Minute)
	collect(err)
	cfg.Workers, err = parseIntOrDefault("WORKERS", env("WORKERS"), 4)
	collect(err)
	cfg.MaxOccurrencesPerSchedule, err = parseIntOrDefault("MAX_OCCURRENCES_PER_SCHEDULE", env("MAX_OCCURRENCES_PER_SCHEDULE"), 500)
	collect(err)
	cfg.TriggerRatePerMinute, err = parseIntOrDefault("TRIGGER_RATE_PER_MINUTE", env("TRIGGER_RATE_PER_MINUTE"), 12)
	collect(err)

	if raw := env("ALERT_CHAT_ID"); raw != "" {
		cfg.AlertChatID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			collect(fmt.Errorf("invalid ALERT_CHAT_ID: %w", err))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HTTPDisabled is the HTTP_ADDR value that turns the HTTP trigger off.
const HTTPDisabled = "off"

func httpAddr(v string) string {
	if strings.EqualFold(strings.TrimSpace(v), HTTPDisabled) {
		return ""
	}
	return v
}

// Validate reports missing or contradictory settings.
func (c *Config) Validate() error {
	var errs []error

	switch c.DatabaseDriver {
	case DriverPostgres:
		if c.DatabaseURI == "" {
			errs = append(errs, errors.New("DATABASE_URI is required for the postgres driver"))
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DatabaseDriver))
	}

	if _, err := cron.ParseStandard(c.CronSpecReminderCheck); err != nil {
		errs = append(errs, fmt.Errorf("invalid CRON_SPEC_REMINDER_CHECK %q: %w", c.CronSpecReminderCheck, err))
	}
	if c.Lookahead <= 0 {
		errs = append(errs, errors.New("LOOKAHEAD must be positive"))
	}
	if c.RunTimeout <= 0 {
		errs = append(errs, errors.New("RUN_TIMEOUT must be positive"))
	}
	if c.Workers < 1 {
		errs = append(errs, errors.New("WORKERS must be at least 1"))
	}
	if c.MaxOccurrencesPerSchedule < 1 {
		errs = append(errs, errors.New("MAX_OCCURRENCES_PER_SCHEDULE must be at least 1"))
	}
	if c.TriggerRatePerMinute < 1 {
		errs = append(errs, errors.New("TRIGGER_RATE_PER_MINUTE must be at least 1"))
	}
	if c.TelegramToken != "" && c.AlertChatID == 0 {
		errs = append(errs, errors.New("ALERT_CHAT_ID is required when TELEGRAM_TOKEN is set"))
	}

	return errors.Join(errs...)
}

// AlertsEnabled reports whether operator alerts are configured.
func (c *Config) AlertsEnabled() bool {
	return c.TelegramToken != "" && c.AlertChatID != 0
}

func parseIntOrDefault(path, raw string, def int) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", path, raw, err)
	}
	return n, nil
}
