package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/hray3182/reminder-engine/internal/alert"
	"github.com/hray3182/reminder-engine/internal/generator"
)

// Runner performs one generator pass.
type Runner interface {
	RunOnce(ctx context.Context) (generator.Summary, error)
}

type Config struct {
	// Spec is a standard five-field cron expression, evaluated in UTC.
	Spec       string
	RunTimeout time.Duration
	// Lookahead is the generator window; a cron gap larger than it is logged.
	Lookahead  time.Duration
	RunOnStart bool
}

type Scheduler struct {
	runner   Runner
	alerter  alert.Alerter
	log      logrus.FieldLogger
	clock    clock.Clock
	cfg      Config
	schedule cron.Schedule
	notifyCh chan struct{}

	mu      sync.Mutex
	baseCtx context.Context
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithAlerter(a alert.Alerter) Option {
	return func(s *Scheduler) { s.alerter = a }
}

func New(runner Runner, cfg Config, log logrus.FieldLogger, opts ...Option) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(cfg.Spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", cfg.Spec, err)
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = time.Minute
	}

	s := &Scheduler{
		runner:   runner,
		alerter:  alert.Nop{},
		log:      log.WithField("component", "scheduler"),
		clock:    clock.New(),
		cfg:      cfg,
		schedule: schedule,
		notifyCh: make(chan struct{}, 1),
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Lookahead > 0 {
		if gap := MaxGap(schedule, s.clock.Now().UTC(), 64); gap > cfg.Lookahead {
			s.log.WithFields(logrus.Fields{
				"cron_spec": cfg.Spec,
				"max_gap":   gap.String(),
				"lookahead": cfg.Lookahead.String(),
			}).Warn("Cron gap exceeds lookahead, occurrences will be materialized late")
		}
	}
	return s, nil
}

// Notify triggers an immediate run. Non-blocking if a run is already pending.
func (s *Scheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
		// Channel already has a pending notification, skip
	}
}

// Start runs the cron loop until ctx is cancelled, then waits for in-flight
// runs to return.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	engine := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{log: s.log}),
		cron.WithChain(cron.Recover(cronLogger{log: s.log})),
	)
	engine.Schedule(s.schedule, cron.FuncJob(func() { s.Run("cron") }))
	engine.Start()
	s.log.WithField("cron_spec", s.cfg.Spec).Info("Scheduler started")

	if s.cfg.RunOnStart {
		s.Run("startup")
	}

	for {
		select {
		case <-ctx.Done():
			stopCtx := engine.Stop()
			<-stopCtx.Done()
			s.log.Info("Scheduler stopped")
			return
		case <-s.notifyCh:
			s.Run("notify")
		}
	}
}

// Run executes one pass with the configured timeout and alerts on failure.
func (s *Scheduler) Run(trigger string) {
	s.mu.Lock()
	base := s.baseCtx
	s.mu.Unlock()
	if base.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(base, s.cfg.RunTimeout)
	defer cancel()

	log := s.log.WithField("trigger", trigger)
	log.Debug("Reminder run triggered")
	summary, err := s.runner.RunOnce(ctx)
	if err != nil {
		log.WithError(err).Error("Reminder run failed")
	}
	if alert.ShouldAlert(summary, err) {
		s.alerter.RunFailed(base, summary, err)
	}
}

// MaxGap returns the longest interval between consecutive activations of
// schedule over the next samples activations after from.
func MaxGap(schedule cron.Schedule, from time.Time, samples int) time.Duration {
	var longest time.Duration
	prev := schedule.Next(from)
	for i := 0; i < samples && !prev.IsZero(); i++ {
		next := schedule.Next(prev)
		if next.IsZero() {
			break
		}
		if gap := next.Sub(prev); gap > longest {
			longest = gap
		}
		prev = next
	}
	return longest
}

// cronLogger adapts a logrus logger to cron.Logger.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}
