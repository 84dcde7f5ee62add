package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hray3182/reminder-engine/internal/database"
	"github.com/hray3182/reminder-engine/internal/models"
)

const scheduleColumns = `id, owner_id, title, recurrence_rule, time_of_day::text, timezone, is_active,
	start_date, end_date, next_trigger_at, last_evaluated_at, created_at`

type ScheduleRepository struct {
	db *database.DB
}

func NewScheduleRepository(db *database.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) Create(ctx context.Context, s *models.ReminderSchedule) error {
	if s.ScheduleID == "" {
		s.ScheduleID = uuid.NewString()
	}
	var createdAt *time.Time
	if !s.CreatedAt.IsZero() {
		createdAt = utcPtr(&s.CreatedAt)
	}
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO reminder_schedules (id, owner_id, title, recurrence_rule, time_of_day, timezone, is_active,
		 start_date, end_date, next_trigger_at, last_evaluated_at, created_at)
		 VALUES ($1, $2, $3, $4, $5::time, $6, $7, $8, $9, $10, $11, COALESCE($12, NOW()))
		 RETURNING created_at`,
		s.ScheduleID, nullString(s.OwnerID), s.Title, nullString(s.RecurrenceRule), nullString(s.TimeOfDay),
		nullString(s.Timezone), s.IsActive, s.StartDate, s.EndDate, utcPtr(s.NextTriggerAt),
		utcPtr(s.LastEvaluatedAt), createdAt,
	).Scan(&s.CreatedAt)
}

func (r *ScheduleRepository) GetByID(ctx context.Context, scheduleID string) (*models.ReminderSchedule, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM reminder_schedules WHERE id = $1`,
		scheduleID,
	)
	s, err := scanSchedule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrScheduleNotFound
	}
	return s, err
}

// FetchDueSchedules returns active schedules that were never evaluated or whose
// cursor is at or before asOf.
func (r *ScheduleRepository) FetchDueSchedules(ctx context.Context, asOf time.Time) ([]*models.ReminderSchedule, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+scheduleColumns+`
		 FROM reminder_schedules
		 WHERE is_active = true
		 AND ((next_trigger_at IS NULL AND last_evaluated_at IS NULL) OR next_trigger_at <= $1)
		 ORDER BY next_trigger_at ASC NULLS FIRST`,
		asOf.UTC(),
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
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE reminder_schedules SET next_trigger_at = $1, last_evaluated_at = $2 WHERE id = $3`,
		utcPtr(next), evaluatedAt.UTC(), scheduleID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrScheduleNotFound
	}
	return nil
}

func (r *ScheduleRepository) SetActive(ctx context.Context, scheduleID string, active bool) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE reminder_schedules SET is_active = $1 WHERE id = $2`,
		active, scheduleID,
	)
	return err
}

func scanSchedule(row pgx.Row) (*models.ReminderSchedule, error) {
	var (
		s                                  models.ReminderSchedule
		ownerID, rule, timeOfDay, timezone *string
	)
	if err := row.Scan(&s.ScheduleID, &ownerID, &s.Title, &rule, &timeOfDay, &timezone, &s.IsActive,
		&s.StartDate, &s.EndDate, &s.NextTriggerAt, &s.LastEvaluatedAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.OwnerID = deref(ownerID)
	s.RecurrenceRule = deref(rule)
	s.TimeOfDay = deref(timeOfDay)
	s.Timezone = deref(timezone)
	s.NextTriggerAt = utcPtr(s.NextTriggerAt)
	s.LastEvaluatedAt = utcPtr(s.LastEvaluatedAt)
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}
