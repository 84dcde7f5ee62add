package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hray3182/reminder-engine/internal/app"
	"github.com/hray3182/reminder-engine/internal/config"
	"github.com/hray3182/reminder-engine/internal/logger"
	"github.com/hray3182/reminder-engine/internal/scheduler"
	"github.com/hray3182/reminder-engine/internal/server"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "").Fatalf("Failed to load config: %v", err)
	}
	log := logger.New(cfg.LogLevel, cfg.Environment)

	// Create context with cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	sched, err := scheduler.New(a.Generator, scheduler.Config{
		Spec:       cfg.CronSpecReminderCheck,
		RunTimeout: cfg.RunTimeout,
		Lookahead:  cfg.Lookahead,
		RunOnStart: true,
	}, log, scheduler.WithAlerter(a.Alerter))
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Start(gctx)
		return nil
	})
	// SIGHUP asks for an out-of-band pass, e.g. after a bulk schedule import.
	g.Go(func() error {
		forwardHangups(gctx, hup, sched.Notify, log)
		return nil
	})
	if cfg.HTTPAddr != "" {
		srv := server.New(a.Generator, server.Config{
			Secret:        cfg.CronSecret,
			RatePerMinute: cfg.TriggerRatePerMinute,
			RunTimeout:    cfg.RunTimeout,
		}, log, a.Alerter)
		g.Go(func() error {
			return srv.ListenAndServe(gctx, cfg.HTTPAddr)
		})
	} else {
		log.Info("HTTP_ADDR is off, HTTP trigger disabled")
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Service stopped with error")
		a.Close()
		os.Exit(1)
	}
	log.Info("Shutting down...")
}

// forwardHangups calls notify for every signal received until ctx is done.
func forwardHangups(ctx context.Context, signals <-chan os.Signal, notify func(), log logrus.FieldLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			log.WithField("signal", sig.String()).Info("Received signal, triggering reminder pass")
			notify()
		}
	}
}
