package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hray3182/reminder-engine/internal/database"
	"github.com/hray3182/reminder-engine/internal/models"
)

const (
	uniqueViolation             = "23505"
	notificationOccurrenceIndex = "reminder_notifications_schedule_trigger_key"
)

type NotificationRepository struct {
	db *database.DB
}

func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// InsertNotification stores n, returning models.ErrDuplicateNotification when
// the schedule already has a notification for n.TriggerAt.
func (r *NotificationRepository) InsertNotification(ctx context.Context, n *models.ReminderNotification) error {
	tag, err := r.db.Pool.Exec(ctx,
		`INSERT INTO reminder_notifications (id, schedule_id, owner_id, trigger_at, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT ON CONSTRAINT `+notificationOccurrenceIndex+` DO NOTHING`,
		n.NotificationID, n.ScheduleID, n.OwnerID, n.TriggerAt.UTC(), n.Status, n.CreatedAt.UTC(),
	)
	if err != nil {
		if isOccurrenceConflict(err) {
			return models.ErrDuplicateNotification
		}
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrDuplicateNotification
	}
	return nil
}

func (r *NotificationRepository) ListBySchedule(ctx context.Context, scheduleID string) ([]*models.ReminderNotification, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, schedule_id, owner_id, trigger_at, status, created_at
		 FROM reminder_notifications WHERE schedule_id = $1 ORDER BY trigger_at ASC`,
		scheduleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*models.ReminderNotification
	for rows.Next() {
		n := &models.ReminderNotification{}
		if err := rows.Scan(&n.NotificationID, &n.ScheduleID, &n.OwnerID, &n.TriggerAt, &n.Status, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.TriggerAt = n.TriggerAt.UTC()
		n.CreatedAt = n.CreatedAt.UTC()
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// isOccurrenceConflict reports a unique violation on (schedule_id, trigger_at).
// Violations of other constraints are real errors.
func isOccurrenceConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == uniqueViolation &&
		pgErr.ConstraintName == notificationOccurrenceIndex
}
