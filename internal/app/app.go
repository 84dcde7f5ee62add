// Package app wires configuration, storage and the generator together for the
// command binaries.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hray3182/reminder-engine/internal/alert"
	"github.com/hray3182/reminder-engine/internal/config"
	"github.com/hray3182/reminder-engine/internal/database"
	"github.com/hray3182/reminder-engine/internal/generator"
	"github.com/hray3182/reminder-engine/internal/materializer"
	"github.com/hray3182/reminder-engine/internal/repository"
	"github.com/hray3182/reminder-engine/internal/repository/sqlite"
)

// Stores groups the schedule and notification stores of one backend.
type Stores struct {
	Schedules     generator.ScheduleStore
	Notifications materializer.Store
	close         func()
}

// App holds the long-lived dependencies shared by the binaries.
type App struct {
	Config    *config.Config
	Log       *logrus.Logger
	Generator *generator.Generator
	Alerter   alert.Alerter

	stores *Stores
}

// New opens the configured backend, applies migrations and builds the generator.
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	stores, err := OpenStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var alerter alert.Alerter = alert.Nop{}
	if cfg.AlertsEnabled() {
		tg, err := alert.Dial(cfg.TelegramToken, cfg.AlertChatID, log)
		if err != nil {
			// Alerts are optional.
			log.WithError(err).Warn("Operator alerts disabled")
		} else {
			alerter = tg
			log.WithField("chat_id", cfg.AlertChatID).Info("Operator alerts enabled")
		}
	}

	gen := generator.New(
		stores.Schedules,
		materializer.New(stores.Notifications),
		generator.Config{
			Lookahead:      cfg.Lookahead,
			Workers:        cfg.Workers,
			MaxOccurrences: cfg.MaxOccurrencesPerSchedule,
		},
		generator.WithLogger(log.WithField("component", "generator")),
	)

	return &App{
		Config:    cfg,
		Log:       log,
		Generator: gen,
		Alerter:   alerter,
		stores:    stores,
	}, nil
}

func (a *App) Close() {
	if a.stores != nil && a.stores.close != nil {
		a.stores.close()
	}
}

// OpenStores connects to the backend named by cfg.DatabaseDriver and migrates it.
func OpenStores(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*Stores, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		db, err := database.New(ctx, cfg.DatabaseURI)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info("Connected to database")
		if err := db.Migrate(ctx, log); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return &Stores{
			Schedules:     repository.NewScheduleRepository(db),
			Notifications: repository.NewNotificationRepository(db),
			close:         db.Close,
		}, nil

	case config.DriverSQLite:
		db, err := database.OpenSQLite(cfg.SQLitePath, cfg.SQLiteBusyTimeout)
		if err != nil {
			return nil, err
		}
		log.WithField("path", cfg.SQLitePath).Info("Opened sqlite database")
		if err := database.MigrateSQLite(ctx, db, log); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return &Stores{
			Schedules:     sqlite.NewScheduleRepository(db),
			Notifications: sqlite.NewNotificationRepository(db),
			close:         func() { _ = db.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}
