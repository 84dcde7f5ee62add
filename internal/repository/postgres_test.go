package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/reminder-engine/internal/database"
	"github.com/hray3182/reminder-engine/internal/models"
)

// openTestDB connects to the database named by TEST_DATABASE_URI and applies
// the migrations. Rows written under the returned owner id are removed when
// the test ends.
func openTestDB(t *testing.T) (*database.DB, string) {
	t.Helper()
	uri := os.Getenv("TEST_DATABASE_URI")
	if uri == "" {
		t.Skip("TEST_DATABASE_URI not set")
	}

	ctx := context.Background()
	db, err := database.New(ctx, uri)
	require.NoError(t, err)
	log, _ := test.NewNullLogger()
	require.NoError(t, db.Migrate(ctx, log))

	owner := "test-" + uuid.NewString()
	t.Cleanup(func() {
		_, err := db.Pool.Exec(context.Background(), `DELETE FROM reminder_schedules WHERE owner_id = $1`, owner)
		assert.NoError(t, err)
		db.Close()
	})
	return db, owner
}

func newSchedule(owner string) *models.ReminderSchedule {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &models.ReminderSchedule{
		OwnerID:        owner,
		Title:          "stand-up",
		RecurrenceRule: "FREQ=DAILY",
		TimeOfDay:      "08:00",
		Timezone:       "America/New_York",
		IsActive:       true,
		StartDate:      &start,
		CreatedAt:      time.Date(2024, 12, 31, 12, 0, 0, 0, time.UTC),
	}
}

func TestPostgresScheduleRoundTrip(t *testing.T) {
	db, owner := openTestDB(t)
	ctx := context.Background()
	repo := NewScheduleRepository(db)

	s := newSchedule(owner)
	end := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s.EndDate = &end
	require.NoError(t, repo.Create(ctx, s))
	require.NotEmpty(t, s.ScheduleID)

	got, err := repo.GetByID(ctx, s.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, owner, got.OwnerID)
	assert.Equal(t, "FREQ=DAILY", got.RecurrenceRule)
	assert.Equal(t, "America/New_York", got.Timezone)
	assert.True(t, got.IsActive)
	assert.True(t, got.NeverEvaluated())
	assert.True(t, s.CreatedAt.Equal(got.CreatedAt))

	tod, err := models.ParseTimeOfDay(got.TimeOfDay)
	require.NoError(t, err)
	assert.Equal(t, models.TimeOfDay{Hour: 8}, tod)

	require.NotNil(t, got.StartDate)
	assert.Equal(t, "2025-01-01", got.StartDate.Format("2006-01-02"))
	require.NotNil(t, got.EndDate)
	assert.Equal(t, "2025-06-01", got.EndDate.Format("2006-01-02"))

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, models.ErrScheduleNotFound)
}

func TestPostgresFetchDueSchedules(t *testing.T) {
	db, owner := openTestDB(t)
	ctx := context.Background()
	repo := NewScheduleRepository(db)
	now := time.Date(2025, 1, 1, 8, 2, 0, 0, time.UTC)

	create := func() *models.ReminderSchedule {
		s := newSchedule(owner)
		require.NoError(t, repo.Create(ctx, s))
		return s
	}
	fresh := create()
	due := create()
	require.NoError(t, repo.AdvanceCursor(ctx, due.ScheduleID, ptr(now.Add(-time.Minute)), now.Add(-time.Hour)))
	onTheDot := create()
	require.NoError(t, repo.AdvanceCursor(ctx, onTheDot.ScheduleID, ptr(now), now.Add(-time.Hour)))
	future := create()
	require.NoError(t, repo.AdvanceCursor(ctx, future.ScheduleID, ptr(now.Add(time.Hour)), now))
	retired := create()
	require.NoError(t, repo.AdvanceCursor(ctx, retired.ScheduleID, nil, now))
	inactive := create()
	require.NoError(t, repo.SetActive(ctx, inactive.ScheduleID, false))

	schedules, err := repo.FetchDueSchedules(ctx, now)
	require.NoError(t, err)

	// The table may hold other rows; only this test's owner is checked.
	var ids []string
	for _, s := range schedules {
		if s.OwnerID == owner {
			ids = append(ids, s.ScheduleID)
		}
	}
	assert.ElementsMatch(t, []string{fresh.ScheduleID, due.ScheduleID, onTheDot.ScheduleID}, ids)
}

func TestPostgresAdvanceCursor(t *testing.T) {
	db, owner := openTestDB(t)
	ctx := context.Background()
	repo := NewScheduleRepository(db)

	s := newSchedule(owner)
	require.NoError(t, repo.Create(ctx, s))

	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	next := time.Date(2025, 1, 2, 22, 0, 0, 0, loc)
	evaluated := time.Date(2025, 1, 1, 8, 2, 0, 0, time.UTC)
	require.NoError(t, repo.AdvanceCursor(ctx, s.ScheduleID, &next, evaluated))

	got, err := repo.GetByID(ctx, s.ScheduleID)
	require.NoError(t, err)
	require.NotNil(t, got.NextTriggerAt)
	assert.True(t, next.Equal(*got.NextTriggerAt))
	assert.Equal(t, time.UTC, got.NextTriggerAt.Location())
	require.NotNil(t, got.LastEvaluatedAt)
	assert.True(t, evaluated.Equal(*got.LastEvaluatedAt))

	require.NoError(t, repo.AdvanceCursor(ctx, s.ScheduleID, nil, evaluated.Add(time.Hour)))
	got, err = repo.GetByID(ctx, s.ScheduleID)
	require.NoError(t, err)
	assert.Nil(t, got.NextTriggerAt)

	assert.ErrorIs(t, repo.AdvanceCursor(ctx, uuid.NewString(), &next, evaluated), models.ErrScheduleNotFound)
}

func TestPostgresInsertNotificationIsIdempotent(t *testing.T) {
	db, owner := openTestDB(t)
	ctx := context.Background()
	schedules := NewScheduleRepository(db)
	repo := NewNotificationRepository(db)

	s := newSchedule(owner)
	require.NoError(t, schedules.Create(ctx, s))

	triggerAt := time.Date(2025, 1, 1, 13, 0, 0, 0, time.UTC)
	n := &models.ReminderNotification{
		NotificationID: uuid.NewString(),
		ScheduleID:     s.ScheduleID,
		OwnerID:        owner,
		TriggerAt:      triggerAt,
		Status:         models.NotificationPending,
		CreatedAt:      triggerAt.Add(-time.Minute),
	}
	require.NoError(t, repo.InsertNotification(ctx, n))

	// Same occurrence expressed in another zone is still the same instant.
	dup := *n
	dup.NotificationID = uuid.NewString()
	dup.TriggerAt = triggerAt.In(time.FixedZone("EST", -5*3600))
	assert.ErrorIs(t, repo.InsertNotification(ctx, &dup), models.ErrDuplicateNotification)

	other := *n
	other.NotificationID = uuid.NewString()
	other.TriggerAt = triggerAt.Add(24 * time.Hour)
	require.NoError(t, repo.InsertNotification(ctx, &other))

	list, err := repo.ListBySchedule(ctx, s.ScheduleID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, n.NotificationID, list[0].NotificationID)
	assert.True(t, triggerAt.Equal(list[0].TriggerAt))
	assert.Equal(t, models.NotificationPending, list[0].Status)
	assert.Equal(t, other.NotificationID, list[1].NotificationID)
}

func TestPostgresConcurrentInsertsKeepOneRow(t *testing.T) {
	db, owner := openTestDB(t)
	ctx := context.Background()
	schedules := NewScheduleRepository(db)
	repo := NewNotificationRepository(db)

	s := newSchedule(owner)
	require.NoError(t, schedules.Create(ctx, s))
	triggerAt := time.Date(2025, 1, 1, 13, 0, 0, 0, time.UTC)

	const writers = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		duplicates int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.InsertNotification(ctx, &models.ReminderNotification{
				NotificationID: uuid.NewString(),
				ScheduleID:     s.ScheduleID,
				OwnerID:        owner,
				TriggerAt:      triggerAt,
				Status:         models.NotificationPending,
				CreatedAt:      time.Now(),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, models.ErrDuplicateNotification):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, writers-1, duplicates)
}

func ptr(t time.Time) *time.Time { return &t }
