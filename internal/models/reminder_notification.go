package models

import "time"

type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationCompleted NotificationStatus = "completed"
	NotificationSkipped   NotificationStatus = "skipped"
)

func (s NotificationStatus) Valid() bool {
	switch s {
	case NotificationPending, NotificationCompleted, NotificationSkipped:
		return true
	}
	return false
}

type ReminderNotification struct {
	NotificationID string             `json:"id"`
	ScheduleID     string             `json:"schedule_id"`
	OwnerID        string             `json:"owner_id"`
	TriggerAt      time.Time          `json:"trigger_at"` // UTC; unique together with ScheduleID
	Status         NotificationStatus `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
}
