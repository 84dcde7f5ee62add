package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hray3182/reminder-engine/internal/models"
)

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// InsertNotification stores n, returning models.ErrDuplicateNotification when
// the schedule already has a notification for n.TriggerAt.
func (r *NotificationRepository) InsertNotification(ctx context.Context, n *models.ReminderNotification) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO reminder_notifications (id, schedule_id, owner_id, trigger_at, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (schedule_id, trigger_at) DO NOTHING`,
		n.NotificationID, n.ScheduleID, n.OwnerID, n.TriggerAt.UnixMilli(), string(n.Status), n.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	if affected == 0 {
		return models.ErrDuplicateNotification
	}
	return nil
}

func (r *NotificationRepository) ListBySchedule(ctx context.Context, scheduleID string) ([]*models.ReminderNotification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, schedule_id, owner_id, trigger_at, status, created_at
		 FROM reminder_notifications WHERE schedule_id = ? ORDER BY trigger_at ASC`,
		scheduleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*models.ReminderNotification
	for rows.Next() {
		var (
			n                    models.ReminderNotification
			status               string
			triggerAt, createdAt int64
		)
		if err := rows.Scan(&n.NotificationID, &n.ScheduleID, &n.OwnerID, &triggerAt, &status, &createdAt); err != nil {
			return nil, err
		}
		n.Status = models.NotificationStatus(status)
		if !n.Status.Valid() {
			return nil, fmt.Errorf("notification %s has unknown status %q", n.NotificationID, status)
		}
		n.TriggerAt = time.UnixMilli(triggerAt).UTC()
		n.CreatedAt = time.UnixMilli(createdAt).UTC()
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}
