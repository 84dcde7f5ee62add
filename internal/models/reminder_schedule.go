package models

import "time"

type ReminderSchedule struct {
	ScheduleID      string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	Title           string     `json:"title"`
	RecurrenceRule  string     `json:"recurrence_rule"` // RFC 5545 RRULE
	TimeOfDay       string     `json:"time_of_day"`     // Local wall-clock time, HH:MM[:SS]
	Timezone        string     `json:"timezone"`        // IANA zone for TimeOfDay and the rule's dates
	IsActive        bool       `json:"is_active"`
	StartDate       *time.Time `json:"start_date"`        // Calendar date, read in Timezone
	EndDate         *time.Time `json:"end_date"`          // Exclusive calendar date, read in Timezone
	NextTriggerAt   *time.Time `json:"next_trigger_at"`   // Earliest occurrence not yet materialized
	LastEvaluatedAt *time.Time `json:"last_evaluated_at"` // nil until the generator first advances the cursor
	CreatedAt       time.Time  `json:"created_at"`
}

// NeverEvaluated reports whether the generator has not yet processed this schedule.
func (s *ReminderSchedule) NeverEvaluated() bool {
	return s.NextTriggerAt == nil && s.LastEvaluatedAt == nil
}

