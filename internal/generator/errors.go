package generator

import (
	"errors"
	"fmt"
	"time"
)

// ErrDataIntegrity marks a schedule that cannot be evaluated because a
// required field is missing or unusable.
var ErrDataIntegrity = errors.New("schedule data integrity")

// StoreReadError is returned by RunOnce when due schedules cannot be fetched.
type StoreReadError struct {
	Err error
}

func (e *StoreReadError) Error() string {
	return fmt.Sprintf("failed to fetch due schedules: %v", e.Err)
}

func (e *StoreReadError) Unwrap() error { return e.Err }

// StoreWriteError describes a failed notification insert or cursor update for
// one schedule.
type StoreWriteError struct {
	Op         string
	ScheduleID string
	// TriggerAt is the occurrence being written, nil for cursor updates.
	TriggerAt *time.Time
	Err       error
}

func (e *StoreWriteError) Error() string {
	if e.TriggerAt != nil {
		return fmt.Sprintf("%s for schedule %s at %s: %v", e.Op, e.ScheduleID, e.TriggerAt.Format(time.RFC3339), e.Err)
	}
	return fmt.Sprintf("%s for schedule %s: %v", e.Op, e.ScheduleID, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

func integrityError(field, detail string) error {
	if detail == "" {
		return fmt.Errorf("%w: %s is missing", ErrDataIntegrity, field)
	}
	return fmt.Errorf("%w: %s %s", ErrDataIntegrity, field, detail)
}
