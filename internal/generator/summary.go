package generator

import "time"

type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Failure records why one schedule did not complete cleanly.
type Failure struct {
	ScheduleID string     `json:"scheduleId"`
	TriggerAt  *time.Time `json:"triggerAt,omitempty"`
	Error      string     `json:"error"`
}

// Summary aggregates the outcome of one run.
type Summary struct {
	Status                        Status    `json:"status"`
	StartedAt                     time.Time `json:"startedAt"`
	FinishedAt                    time.Time `json:"finishedAt"`
	SchedulesFetched              int       `json:"schedulesFetched"`
	SchedulesProcessed            int       `json:"schedulesProcessed"`
	SchedulesSkipped              int       `json:"schedulesSkipped"`
	NotificationsCreated          int       `json:"notificationsCreated"`
	NotificationsSkippedDuplicate int       `json:"notificationsSkippedDuplicate"`
	// Errors counts schedules that hit a store write failure or panicked.
	Errors   int       `json:"errors"`
	Failures []Failure `json:"failures,omitempty"`
}

// maxFailures bounds how many failures a summary carries.
const maxFailures = 50

type outcome struct {
	processed  bool
	skipped    bool
	errored    bool
	created    int
	duplicates int
	failures   []Failure
}

func (s *Summary) add(o outcome) {
	switch {
	case o.errored:
		s.Errors++
	case o.skipped:
		s.SchedulesSkipped++
	case o.processed:
		s.SchedulesProcessed++
	}
	s.NotificationsCreated += o.created
	s.NotificationsSkippedDuplicate += o.duplicates
	for _, f := range o.failures {
		if len(s.Failures) >= maxFailures {
			break
		}
		s.Failures = append(s.Failures, f)
	}
}
