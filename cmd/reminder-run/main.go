// Command reminder-run performs a single reminder generator pass and prints
// the run summary as JSON. It exits non-zero when the run did not succeed.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/hray3182/reminder-engine/internal/alert"
	"github.com/hray3182/reminder-engine/internal/app"
	"github.com/hray3182/reminder-engine/internal/config"
	"github.com/hray3182/reminder-engine/internal/generator"
	"github.com/hray3182/reminder-engine/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "").Fatalf("Failed to load config: %v", err)
	}
	// Keep stdout for the summary.
	log := logger.New(cfg.LogLevel, cfg.Environment)
	log.SetOutput(os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	runCtx, runCancel := context.WithTimeout(ctx, cfg.RunTimeout)
	summary, err := a.Generator.RunOnce(runCtx)
	runCancel()
	if err != nil {
		log.WithError(err).Error("Reminder run failed")
	}
	if alert.ShouldAlert(summary, err) {
		a.Alerter.RunFailed(ctx, summary, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(summary)

	a.Close()
	if summary.Status != generator.StatusSuccess {
		os.Exit(1)
	}
}
