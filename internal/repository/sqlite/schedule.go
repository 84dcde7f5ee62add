// Package sqlite implements the schedule and notification stores on an
// embedded SQLite database. Instants are stored as unix milliseconds and
// calendar dates as YYYY-MM-DD text.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hray3182/reminder-engine/internal/models"
)

const dateLayout = "2006-01-02"

const scheduleColumns = `id, owner_id, title, recurrence_rule, time_of_day, timezone, is_active,
	start_date, end_date, next_trigger_at, last_evaluated_at, created_at`

type ScheduleRepository struct {
	db *sql.DB
}

func NewScheduleRepository(db *sql.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) Create(ctx context.Context, s *models.ReminderSchedule) error {
	if s.ScheduleID == "" {
		s.ScheduleID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reminder_schedules (id, owner_id, title, recurrence_rule, time_of_day, timezone, is_active,
		 start_date, end_date, next_trigger_at, last_evaluated_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ScheduleID, nullStr(s.OwnerID), s.Title, nullStr(s.RecurrenceRule), nullStr(s.TimeOfDay), nullStr(s.Timezone),
		s.IsActive, dateValue(s.StartDate), dateValue(s.EndDate), millisValue(s.NextTriggerAt),
		millisValue(s.LastEvaluatedAt), s.CreatedAt.UnixMilli(),
	)
	return err
}

func (r *ScheduleRepository) GetByID(ctx context.Context, scheduleID string) (*models.ReminderSchedule, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM reminder_schedules WHERE id = ?`,
		scheduleID,
	)
	s, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrScheduleNotFound
	}
	return s, err
}

// FetchDueSchedules returns active schedules that were never evaluated or whose
// cursor is at or before asOf.
func (r *ScheduleRepository) FetchDueSchedules(ctx context.Context, asOf time.Time) ([]*models.ReminderSchedule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+`
		 FROM reminder_schedules
		 WHERE is_active = 1
		 AND ((next_trigger_at IS NULL AND last_evaluated_at IS NULL) OR next_trigger_at <= ?)
		 ORDER BY next_trigger_at ASC`,
		asOf.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.ReminderSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schedules: %w", err)
	}
	return schedules, nil
}

// AdvanceCursor overwrites the schedule's cursor. A nil next retires the schedule.
func (r *ScheduleRepository) AdvanceCursor(ctx context.Context, scheduleID string, next *time.Time, evaluatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reminder_schedules SET next_trigger_at = ?, last_evaluated_at = ? WHERE id = ?`,
		millisValue(next), evaluatedAt.UnixMilli(), scheduleID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrScheduleNotFound
	}
	return nil
}

func (r *ScheduleRepository) SetActive(ctx context.Context, scheduleID string, active bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE reminder_schedules SET is_active = ? WHERE id = ?`,
		active, scheduleID,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (*models.ReminderSchedule, error) {
	var (
		s                                  models.ReminderSchedule
		ownerID, rule, timeOfDay, timezone sql.NullString
		startDate, endDate                 sql.NullString
		next, evaluated                    sql.NullInt64
		createdAt                          int64
	)
	if err := row.Scan(&s.ScheduleID, &ownerID, &s.Title, &rule, &timeOfDay, &timezone, &s.IsActive,
		&startDate, &endDate, &next, &evaluated, &createdAt); err != nil {
		return nil, err
	}
	s.OwnerID = ownerID.String
	s.RecurrenceRule = rule.String
	s.TimeOfDay = timeOfDay.String
	s.Timezone = timezone.String
	s.NextTriggerAt = millisTime(next)
	s.LastEvaluatedAt = millisTime(evaluated)
	s.CreatedAt = time.UnixMilli(createdAt).UTC()

	var err error
	if s.StartDate, err = parseDate(startDate); err != nil {
		return nil, err
	}
	if s.EndDate, err = parseDate(endDate); err != nil {
		return nil, err
	}
	return &s, nil
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func dateValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func parseDate(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, v.String)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", v.String, err)
	}
	return &t, nil
}

func millisValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func millisTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
