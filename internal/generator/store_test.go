package generator

import (
	"context"
	"sync"
	"time"

	"github.com/hray3182/reminder-engine/internal/models"
)

// memoryStore is an in-memory schedule and notification store honouring the
// (schedule_id, trigger_at) uniqueness the real stores enforce.
type memoryStore struct {
	mu            sync.Mutex
	schedules     map[string]*models.ReminderSchedule
	notifications map[string]*models.ReminderNotification

	fetchErr   error
	advanceErr error
	insertErr  func(n *models.ReminderNotification) error
}

func newMemoryStore(schedules ...*models.ReminderSchedule) *memoryStore {
	s := &memoryStore{
		schedules:     make(map[string]*models.ReminderSchedule),
		notifications: make(map[string]*models.ReminderNotification),
	}
	for _, sc := range schedules {
		s.schedules[sc.ScheduleID] = sc
	}
	return s
}

func (s *memoryStore) FetchDueSchedules(_ context.Context, asOf time.Time) ([]*models.ReminderSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var due []*models.ReminderSchedule
	for _, sc := range s.schedules {
		if !sc.IsActive {
			continue
		}
		if sc.NeverEvaluated() || (sc.NextTriggerAt != nil && !sc.NextTriggerAt.After(asOf)) {
			c := *sc
			due = append(due, &c)
		}
	}
	return due, nil
}

func (s *memoryStore) AdvanceCursor(_ context.Context, scheduleID string, next *time.Time, evaluatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.advanceErr != nil {
		return s.advanceErr
	}
	sc, ok := s.schedules[scheduleID]
	if !ok {
		return models.ErrScheduleNotFound
	}
	if next != nil {
		n := *next
		sc.NextTriggerAt = &n
	} else {
		sc.NextTriggerAt = nil
	}
	sc.LastEvaluatedAt = &evaluatedAt
	return nil
}

func (s *memoryStore) InsertNotification(_ context.Context, n *models.ReminderNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		if err := s.insertErr(n); err != nil {
			return err
		}
	}
	key := n.ScheduleID + "|" + n.TriggerAt.UTC().Format(time.RFC3339Nano)
	if _, ok := s.notifications[key]; ok {
		return models.ErrDuplicateNotification
	}
	s.notifications[key] = n
	return nil
}

// schedule returns a snapshot of the stored row.
func (s *memoryStore) schedule(id string) *models.ReminderSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *s.schedules[id]
	return &c
}

func (s *memoryStore) triggers(scheduleID string) []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Time
	for _, n := range s.notifications {
		if n.ScheduleID == scheduleID {
			out = append(out, n.TriggerAt)
		}
	}
	return out
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notifications)
}
