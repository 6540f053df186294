package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"autoagenda/internal/database"
	"autoagenda/internal/events"
	"autoagenda/internal/models"
	"autoagenda/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCalendar struct {
	mu        sync.Mutex
	createErr error
	created   int
	deleted   []string
}

func (c *fakeCalendar) CreateEvent(ctx context.Context, booking *models.BookingRecord) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return "", c.createErr
	}
	c.created++
	return fmt.Sprintf("event-%d", c.created), nil
}

func (c *fakeCalendar) DeleteEvent(ctx context.Context, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, eventID)
	return nil
}

type capturingReporter struct {
	mu     sync.Mutex
	events []*models.ErrorEvent
}

func (r *capturingReporter) Report(ctx context.Context, event *models.ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func newTestService(t *testing.T, cal *fakeCalendar) (*BookingService, *database.DB, *capturingReporter, *events.EventBus) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reporter := &capturingReporter{}
	bus := events.NewEventBus()
	saga := NewCalendarSyncSaga(db, cal, reporter, bus, &logger)
	svc := NewBookingService(db, repository.NewMemorySlotLocker(), saga, bus, BookingOptions{
		LockWait:        200 * time.Millisecond,
		LockTTL:         5 * time.Second,
		SlotGranularity: 15 * time.Minute,
	}, &logger)
	return svc, db, reporter, bus
}

func testRequest(start time.Time) *models.BookingRequest {
	return &models.BookingRequest{
		ProfessionalID: "prof-1",
		UserID:         "123456789",
		ServiceID:      "corte-pelo",
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
	}
}

func TestBookHappyPath(t *testing.T) {
	cal := &fakeCalendar{}
	svc, db, _, bus := newTestService(t, cal)
	ctx := context.Background()

	var confirmedEvents int
	bus.Subscribe(events.EventBookingConfirmed, func(ev *events.Event) error {
		confirmedEvents++
		return nil
	})

	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	booking, err := svc.Book(ctx, testRequest(start), "corr-1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusConfirmed, booking.Status)
	assert.Equal(t, models.SyncOK, booking.SyncStatus)
	assert.Equal(t, "event-1", booking.CalendarEventID)
	assert.Equal(t, "corr-1", booking.CorrelationID)
	assert.Equal(t, 1, confirmedEvents)

	stored, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
	assert.Equal(t, models.SyncOK, stored.SyncStatus)
}

func TestBookSecondRequestSeesOccupied(t *testing.T) {
	cal := &fakeCalendar{}
	svc, _, _, _ := newTestService(t, cal)
	ctx := context.Background()

	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	_, err := svc.Book(ctx, testRequest(start), "")
	require.NoError(t, err)

	_, err = svc.Book(ctx, testRequest(start), "")
	assert.ErrorIs(t, err, database.ErrSlotOccupied)
}

func TestBookExactlyOneWinnerUnderContention(t *testing.T) {
	cal := &fakeCalendar{}
	svc, db, _, _ := newTestService(t, cal)
	ctx := context.Background()
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.Book(ctx, testRequest(start), "")
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
		} else {
			losingErr := errors.Is(err, database.ErrSlotOccupied) || errors.Is(err, ErrSlotLocked)
			assert.True(t, losingErr, "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent request should win")

	bookings, err := db.GetBookingsByDateRange(ctx, start.Add(-time.Hour), start.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
}

func TestBookDisjointSlotsDoNotContend(t *testing.T) {
	cal := &fakeCalendar{}
	svc, _, _, _ := newTestService(t, cal)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	const numGoroutines = 5
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := svc.Book(ctx, testRequest(base.Add(time.Duration(i)*time.Hour)), "")
			results <- err
		}(i)
	}

	wg.Wait()
	close(results)

	for err := range results {
		assert.NoError(t, err)
	}
}

func TestBookCalendarFailureRollsBack(t *testing.T) {
	cal := &fakeCalendar{createErr: errors.New("calendar API error: 503")}
	svc, db, reporter, bus := newTestService(t, cal)
	ctx := context.Background()

	var rolledBackEvents int
	bus.Subscribe(events.EventBookingRolledBack, func(ev *events.Event) error {
		rolledBackEvents++
		return nil
	})

	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	_, err := svc.Book(ctx, testRequest(start), "corr-fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rollback")

	bookings, err := db.GetBookingsByDateRange(ctx, start.Add(-time.Hour), start.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, bookings, "rolled back booking must not appear in the calendar view")

	assert.Equal(t, 1, rolledBackEvents)
	require.Len(t, reporter.events, 1)
	assert.Equal(t, "calendar_sync", reporter.events[0].Source)
	assert.Equal(t, "corr-fail", reporter.events[0].CorrelationID)
}

func TestBookSlotFreeAfterRollback(t *testing.T) {
	cal := &fakeCalendar{createErr: errors.New("calendar down")}
	svc, _, _, _ := newTestService(t, cal)
	ctx := context.Background()

	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	_, err := svc.Book(ctx, testRequest(start), "")
	require.Error(t, err)

	cal.mu.Lock()
	cal.createErr = nil
	cal.mu.Unlock()

	booking, err := svc.Book(ctx, testRequest(start), "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, booking.Status)
}

func TestBookValidation(t *testing.T) {
	cal := &fakeCalendar{}
	svc, _, _, _ := newTestService(t, cal)
	ctx := context.Background()
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(*models.BookingRequest)
	}{
		{"MissingProfessional", func(r *models.BookingRequest) { r.ProfessionalID = "" }},
		{"MissingUser", func(r *models.BookingRequest) { r.UserID = "" }},
		{"MissingService", func(r *models.BookingRequest) { r.ServiceID = "" }},
		{"EndBeforeStart", func(r *models.BookingRequest) { r.EndTime = r.StartTime.Add(-time.Hour) }},
		{"ZeroTimes", func(r *models.BookingRequest) { r.StartTime = time.Time{}; r.EndTime = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest(start)
			tt.mutate(req)
			_, err := svc.Book(ctx, req, "")
			assert.Error(t, err)
		})
	}
}

func TestGetBookingsByDateRangeCap(t *testing.T) {
	cal := &fakeCalendar{}
	svc, _, _, _ := newTestService(t, cal)
	ctx := context.Background()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.GetBookingsByDateRange(ctx, start, start.AddDate(2, 0, 0))
	assert.ErrorIs(t, err, ErrRangeTooWide)

	_, err = svc.GetBookingsByDateRange(ctx, start, start.AddDate(0, 0, 364))
	assert.NoError(t, err)
}
