package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in   string
		want TimeOfDay
	}{
		{"08:00", TimeOfDay{Hour: 8}},
		{"09:30:15", TimeOfDay{Hour: 9, Minute: 30, Second: 15}},
		{" 23:59 ", TimeOfDay{Hour: 23, Minute: 59}},
		{"07:05:00.000000", TimeOfDay{Hour: 7, Minute: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTimeOfDayInvalid(t *testing.T) {
	for _, in := range []string{"", "24:00", "8am", "12:61"} {
		_, err := ParseTimeOfDay(in)
		assert.Error(t, err, in)
	}
}

func TestTimeOfDayOnUsesLocationOffset(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tod := TimeOfDay{Hour: 9}
	winter := tod.On(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), ny)
	summer := tod.On(time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC), ny)

	assert.Equal(t, 14, winter.UTC().Hour())
	assert.Equal(t, 13, summer.UTC().Hour())
}

func TestTimeOfDayOnSkippedByDSTUsesOffsetBeforeGap(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tod := TimeOfDay{Hour: 2, Minute: 30}
	tests := []struct {
		day  int
		want time.Time
	}{
		{8, time.Date(2025, 3, 8, 7, 30, 0, 0, time.UTC)},
		{9, time.Date(2025, 3, 9, 7, 30, 0, 0, time.UTC)},
		{10, time.Date(2025, 3, 10, 6, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got := tod.On(time.Date(2025, 3, tt.day, 0, 0, 0, 0, time.UTC), ny)
		assert.True(t, tt.want.Equal(got), "March %d: got %s", tt.day, got.UTC())
	}
}

func TestLocalTimeRepeatedHourTakesFirstOccurrence(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	got := LocalTime(time.Date(2025, 11, 2, 1, 30, 0, 0, time.UTC), ny)
	assert.Equal(t, time.Date(2025, 11, 2, 5, 30, 0, 0, time.UTC), got.UTC())
}

func TestScheduleNeverEvaluated(t *testing.T) {
	s := &ReminderSchedule{}
	assert.True(t, s.NeverEvaluated())

	now := time.Now()
	s.LastEvaluatedAt = &now
	assert.False(t, s.NeverEvaluated())
}
