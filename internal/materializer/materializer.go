// Package materializer turns occurrence instants into stored notifications.
package materializer

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/hray3182/reminder-engine/internal/models"
)

// Store persists notifications. InsertNotification must return
// models.ErrDuplicateNotification when the (schedule, trigger) pair exists.
type Store interface {
	InsertNotification(ctx context.Context, n *models.ReminderNotification) error
}

type Reason string

const (
	ReasonNone      Reason = ""
	ReasonDuplicate Reason = "duplicate"
)

// Result reports what Materialize did for one occurrence.
type Result struct {
	Created bool
	Reason  Reason
	// NotificationID is set when Created is true.
	NotificationID string
}

type Materializer struct {
	store Store
	clock clock.Clock
	newID func() string
}

type Option func(*Materializer)

// WithClock overrides the clock used for created_at.
func WithClock(c clock.Clock) Option {
	return func(m *Materializer) { m.clock = c }
}

// WithIDGenerator overrides notification id generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Materializer) { m.newID = fn }
}

func New(store Store, opts ...Option) *Materializer {
	m := &Materializer{
		store: store,
		clock: clock.New(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Materialize creates a pending notification for triggerAt. A notification
// that already exists is reported as a duplicate, not an error.
func (m *Materializer) Materialize(ctx context.Context, scheduleID, ownerID string, triggerAt time.Time) (Result, error) {
	n := &models.ReminderNotification{
		NotificationID: m.newID(),
		ScheduleID:     scheduleID,
		OwnerID:        ownerID,
		TriggerAt:      triggerAt.UTC(),
		Status:         models.NotificationPending,
		CreatedAt:      m.clock.Now().UTC(),
	}

	err := m.store.InsertNotification(ctx, n)
	switch {
	case err == nil:
		return Result{Created: true, NotificationID: n.NotificationID}, nil
	case errors.Is(err, models.ErrDuplicateNotification):
		return Result{Reason: ReasonDuplicate}, nil
	default:
		return Result{}, err
	}
}
