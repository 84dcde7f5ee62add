// Package generator runs one pass of the reminder notification generator:
// fetch due schedules, expand each rule over the current window, materialize
// the occurrences and advance each schedule's cursor.
package generator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hray3182/reminder-engine/internal/materializer"
	"github.com/hray3182/reminder-engine/internal/models"
	"github.com/hray3182/reminder-engine/internal/rrule"
)

const (
	DefaultLookahead = 5 * time.Minute
	DefaultWorkers   = 4
)

// ScheduleStore reads due schedules and writes their cursors.
type ScheduleStore interface {
	FetchDueSchedules(ctx context.Context, asOf time.Time) ([]*models.ReminderSchedule, error)
	AdvanceCursor(ctx context.Context, scheduleID string, next *time.Time, evaluatedAt time.Time) error
}

// NotificationMaterializer creates one notification per occurrence.
type NotificationMaterializer interface {
	Materialize(ctx context.Context, scheduleID, ownerID string, triggerAt time.Time) (materializer.Result, error)
}

type Config struct {
	// Lookahead is how far past now a run materializes occurrences. It must
	// cover the gap between two invocations.
	Lookahead time.Duration
	// Workers bounds how many schedules are processed at once.
	Workers int
	// MaxOccurrences caps the occurrences handled per schedule per run.
	MaxOccurrences int
}

type Generator struct {
	schedules    ScheduleStore
	materializer NotificationMaterializer
	clock        clock.Clock
	log          logrus.FieldLogger

	lookahead      time.Duration
	workers        int
	maxOccurrences int
}

type Option func(*Generator)

func WithClock(c clock.Clock) Option {
	return func(g *Generator) { g.clock = c }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(g *Generator) { g.log = log }
}

func New(schedules ScheduleStore, m NotificationMaterializer, cfg Config, opts ...Option) *Generator {
	g := &Generator{
		schedules:      schedules,
		materializer:   m,
		clock:          clock.New(),
		log:            logrus.StandardLogger(),
		lookahead:      cfg.Lookahead,
		workers:        cfg.Workers,
		maxOccurrences: cfg.MaxOccurrences,
	}
	if g.lookahead <= 0 {
		g.lookahead = DefaultLookahead
	}
	if g.workers <= 0 {
		g.workers = DefaultWorkers
	}
	if g.maxOccurrences <= 0 {
		g.maxOccurrences = rrule.DefaultMaxOccurrences
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Lookahead returns the window length used past now.
func (g *Generator) Lookahead() time.Duration { return g.lookahead }

// RunOnce performs a single generator pass. A failed fetch returns a
// *StoreReadError and processes nothing. Cancellation stops new schedules
// from starting and returns the partial summary with ctx.Err().
func (g *Generator) RunOnce(ctx context.Context) (Summary, error) {
	now := g.clock.Now().UTC()
	summary := Summary{StartedAt: now}
	log := g.log.WithField("run_at", now.Format(time.RFC3339))

	finish := func(status Status, err error) (Summary, error) {
		summary.Status = status
		summary.FinishedAt = g.clock.Now().UTC()
		entry := log.WithFields(logrus.Fields{
			"status":     status,
			"fetched":    summary.SchedulesFetched,
			"processed":  summary.SchedulesProcessed,
			"skipped":    summary.SchedulesSkipped,
			"errored":    summary.Errors,
			"created":    summary.NotificationsCreated,
			"duplicates": summary.NotificationsSkippedDuplicate,
			"duration":   summary.FinishedAt.Sub(summary.StartedAt).String(),
		})
		if err != nil {
			entry.WithError(err).Error("Reminder run did not complete")
		} else {
			entry.Info("Reminder run completed")
		}
		return summary, err
	}

	schedules, err := g.schedules.FetchDueSchedules(ctx, now)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return finish(StatusCancelled, ctxErr)
		}
		return finish(StatusFailed, &StoreReadError{Err: err})
	}
	summary.SchedulesFetched = len(schedules)
	log.WithField("count", len(schedules)).Debug("Fetched due schedules")

	var (
		mu sync.Mutex
		eg errgroup.Group
	)
	eg.SetLimit(g.workers)

	for _, s := range schedules {
		if ctx.Err() != nil {
			break
		}
		s := s
		eg.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			o := g.processSafely(ctx, s, now)
			mu.Lock()
			summary.add(o)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return finish(StatusCancelled, err)
	}
	return finish(StatusSuccess, nil)
}

func (g *Generator) processSafely(ctx context.Context, s *models.ReminderSchedule, now time.Time) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			g.log.WithFields(logrus.Fields{
				"schedule_id": s.ScheduleID,
				"rule":        s.RecurrenceRule,
				"panic":       r,
				"stack":       string(debug.Stack()),
			}).Error("Recovered from panic while processing schedule")
			o = outcome{
				errored:  true,
				failures: []Failure{{ScheduleID: s.ScheduleID, Error: fmt.Sprintf("panic: %v", r)}},
			}
		}
	}()
	return g.processSchedule(ctx, s, now)
}

func (g *Generator) processSchedule(ctx context.Context, s *models.ReminderSchedule, now time.Time) outcome {
	log := g.log.WithFields(logrus.Fields{
		"schedule_id": s.ScheduleID,
		"rule":        s.RecurrenceRule,
	})

	rule, err := g.compile(s)
	if err != nil {
		if errors.Is(err, rrule.ErrMalformedRule) {
			log.WithError(err).Warn("Skipping schedule with malformed recurrence rule")
		} else {
			log.WithError(err).Warn("Skipping schedule with incomplete data")
		}
		return outcome{skipped: true}
	}

	from := now.Add(-g.lookahead)
	if s.NextTriggerAt != nil {
		from = s.NextTriggerAt.UTC()
	}
	end := now.Add(g.lookahead)

	var window rrule.Window
	if from.Before(end) {
		window, err = rule.OccurrencesInWindowContext(ctx, from, end)
		if ctx.Err() != nil {
			return interrupted(log, s, ctx.Err())
		}
		if err != nil {
			log.WithError(err).Warn("Skipping schedule with unusable window")
			return outcome{skipped: true}
		}
	}
	if window.Truncated {
		log.WithField("occurrences", len(window.Occurrences)).Warn("Occurrence cap reached, remaining backlog deferred to next run")
	}

	var (
		o           outcome
		firstFailed *time.Time
	)
	for _, at := range window.Occurrences {
		res, err := g.materializer.Materialize(ctx, s.ScheduleID, s.OwnerID, at)
		if err != nil {
			at := at
			werr := &StoreWriteError{Op: "insert notification", ScheduleID: s.ScheduleID, TriggerAt: &at, Err: err}
			log.WithError(werr).WithField("trigger_at", at.Format(time.RFC3339)).Error("Failed to materialize notification")
			if firstFailed == nil {
				firstFailed = &at
			}
			o.failures = append(o.failures, Failure{ScheduleID: s.ScheduleID, TriggerAt: &at, Error: werr.Error()})
			continue
		}
		if res.Created {
			o.created++
		} else {
			o.duplicates++
		}
	}

	next, err := nextCursor(ctx, rule, from, window, firstFailed)
	if err != nil {
		return interrupted(log, s, err)
	}
	if err := g.schedules.AdvanceCursor(ctx, s.ScheduleID, next, now); err != nil {
		werr := &StoreWriteError{Op: "advance cursor", ScheduleID: s.ScheduleID, Err: err}
		log.WithError(werr).Error("Failed to advance schedule cursor")
		o.failures = append(o.failures, Failure{ScheduleID: s.ScheduleID, Error: werr.Error()})
		o.errored = true
		return o
	}

	entry := log.WithFields(logrus.Fields{"created": o.created, "duplicates": o.duplicates})
	if next != nil {
		entry = entry.WithField("next_trigger_at", next.Format(time.RFC3339))
	} else {
		entry = entry.WithField("next_trigger_at", nil)
	}
	entry.Debug("Processed schedule")

	o.errored = firstFailed != nil
	o.processed = !o.errored
	return o
}

// interrupted reports a schedule whose evaluation was cut short by ctx.
// Its cursor is left alone so the next run starts from the same place.
func interrupted(log logrus.FieldLogger, s *models.ReminderSchedule, err error) outcome {
	log.WithError(err).Warn("Schedule evaluation interrupted")
	return outcome{
		errored:  true,
		failures: []Failure{{ScheduleID: s.ScheduleID, Error: err.Error()}},
	}
}

// compile validates the stored fields and compiles the schedule's rule.
func (g *Generator) compile(s *models.ReminderSchedule) (*rrule.Rule, error) {
	switch {
	case strings.TrimSpace(s.ScheduleID) == "":
		return nil, integrityError("id", "")
	case strings.TrimSpace(s.OwnerID) == "":
		return nil, integrityError("owner_id", "")
	case strings.TrimSpace(s.RecurrenceRule) == "":
		return nil, integrityError("recurrence_rule", "")
	case strings.TrimSpace(s.TimeOfDay) == "":
		return nil, integrityError("time_of_day", "")
	case strings.TrimSpace(s.Timezone) == "":
		return nil, integrityError("timezone", "")
	}

	spec, err := rrule.SpecFor(s)
	if err != nil {
		return nil, integrityError("time_of_day", fmt.Sprintf("%q is not a wall-clock time", s.TimeOfDay))
	}
	spec.MaxOccurrences = g.maxOccurrences

	rule, err := rrule.Compile(spec)
	switch {
	case err == nil:
		return rule, nil
	case errors.Is(err, rrule.ErrUnknownTimezone):
		return nil, integrityError("timezone", fmt.Sprintf("%q is not a known zone", s.Timezone))
	case errors.Is(err, rrule.ErrNoAnchor):
		return nil, integrityError("start_date", "and created_at are both missing")
	default:
		return nil, err
	}
}

// nextCursor picks the value written to next_trigger_at after a pass.
// A failed occurrence pins the cursor so the next run retries it.
func nextCursor(ctx context.Context, rule *rrule.Rule, from time.Time, w rrule.Window, firstFailed *time.Time) (*time.Time, error) {
	switch {
	case firstFailed != nil:
		return firstFailed, nil
	case w.Exhausted:
		return nil, nil
	case len(w.Occurrences) > 0:
		return rule.Next(ctx, w.Occurrences[len(w.Occurrences)-1], false)
	default:
		return rule.Next(ctx, from, true)
	}
}
