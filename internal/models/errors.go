package models

import "errors"

// ErrDuplicateNotification is returned by notification stores when a row for
// the same (schedule_id, trigger_at) already exists.
var ErrDuplicateNotification = errors.New("notification already exists for schedule and trigger time")

var ErrScheduleNotFound = errors.New("reminder schedule not found")
