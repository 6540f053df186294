package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"autoagenda/internal/database"
	"autoagenda/internal/domain"
	"autoagenda/internal/events"
	"autoagenda/internal/metrics"
	"autoagenda/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service-level sentinel errors.
var (
	// ErrSlotLocked: the slot lock could not be acquired within the
	// bounded wait. The caller should treat the slot as occupied.
	ErrSlotLocked = errors.New("slot is locked by another request")

	// ErrRangeTooWide: admin calendar query exceeds the range ceiling.
	ErrRangeTooWide = fmt.Errorf("date range exceeds %d days", models.MaxCalendarRangeDays)
)

const lockRetryInterval = 50 * time.Millisecond

// BookingOptions tunes the coordinator's locking behavior.
type BookingOptions struct {
	LockWait        time.Duration
	LockTTL         time.Duration
	SlotGranularity time.Duration
}

func (o *BookingOptions) applyDefaults() {
	if o.LockWait <= 0 {
		o.LockWait = time.Duration(models.DefaultLockWaitSeconds) * time.Second
	}
	if o.LockTTL <= 0 {
		o.LockTTL = time.Duration(models.DefaultLockTTLSeconds) * time.Second
	}
	if o.SlotGranularity <= 0 {
		o.SlotGranularity = time.Duration(models.DefaultSlotGranularityMinutes) * time.Minute
	}
}

// BookingService coordinates a booking attempt: slot lock, durable commit,
// calendar sync saga, event publication. Exactly one of N concurrent
// requests for the same slot wins; the rest observe ErrSlotOccupied or
// ErrSlotLocked.
type BookingService struct {
	repo     domain.Repository
	locker   domain.SlotLocker
	saga     *CalendarSyncSaga
	eventBus domain.EventPublisher
	opts     BookingOptions
	logger   zerolog.Logger
}

func NewBookingService(repo domain.Repository, locker domain.SlotLocker, saga *CalendarSyncSaga, eventBus domain.EventPublisher, opts BookingOptions, logger *zerolog.Logger) *BookingService {
	opts.applyDefaults()

	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "booking").Logger()
	}

	return &BookingService{
		repo:     repo,
		locker:   locker,
		saga:     saga,
		eventBus: eventBus,
		opts:     opts,
		logger:   base,
	}
}

// Book runs the full reservation flow. The slot lock is held only around
// the durable commit, never across the calendar call: once the row exists
// the database overlap check protects the slot on its own.
func (s *BookingService) Book(ctx context.Context, req *models.BookingRequest, correlationID string) (*models.BookingRecord, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if err := req.Validate(); err != nil {
		metrics.IncBooking("invalid")
		return nil, err
	}
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	key := req.SlotKey(s.opts.SlotGranularity)
	owner := uuid.New().String()

	acquired, err := s.acquireWithWait(ctx, key, owner)
	if err != nil {
		metrics.IncBooking("lock_error")
		return nil, err
	}
	if !acquired {
		metrics.IncBooking("lock_timeout")
		s.logger.Info().Str("slot_key", key).Str("correlation_id", correlationID).Msg("slot lock wait exhausted")
		return nil, ErrSlotLocked
	}

	booking := &models.BookingRecord{
		ProfessionalID: req.ProfessionalID,
		UserID:         req.UserID,
		ServiceID:      req.ServiceID,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		CorrelationID:  correlationID,
	}

	err = s.repo.CreateBookingIfFree(ctx, booking)

	// Release before the calendar call: holding a lock across an external
	// HTTP round trip would serialize unrelated requests behind it.
	if relErr := s.locker.Release(ctx, key, owner); relErr != nil {
		s.logger.Warn().Err(relErr).Str("slot_key", key).Msg("slot lock release failed")
	}

	if err != nil {
		if errors.Is(err, database.ErrSlotOccupied) {
			metrics.IncBooking("occupied")
			return nil, err
		}
		metrics.IncBooking("error")
		return nil, err
	}

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Str("slot_key", key).
		Str("correlation_id", correlationID).
		Msg("booking committed")

	if s.saga != nil {
		if err := s.saga.Sync(ctx, booking); err != nil {
			metrics.IncBooking("rolled_back")
			return nil, err
		}
	}

	metrics.IncBooking("confirmed")
	s.publishBookingEvent(events.EventBookingConfirmed, booking)
	return booking, nil
}

// acquireWithWait polls the atomic TryAcquire until it succeeds, the wait
// deadline passes, or ctx is done. Polling keeps the locker interface a
// pure test-and-set, which every backend can provide atomically.
func (s *BookingService) acquireWithWait(ctx context.Context, key, owner string) (bool, error) {
	deadline := time.Now().Add(s.opts.LockWait)

	for {
		acquired, err := s.locker.TryAcquire(ctx, key, owner, s.opts.LockTTL)
		if err != nil {
			return false, fmt.Errorf("acquire slot lock: %w", err)
		}
		if acquired {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.BookingRecord, error) {
	return s.repo.GetBooking(ctx, id)
}

// GetBookingsByDateRange serves the admin calendar view. The range is
// capped to keep the query bounded.
func (s *BookingService) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.BookingRecord, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("end must not be before start")
	}
	if end.Sub(start) > time.Duration(models.MaxCalendarRangeDays)*24*time.Hour {
		return nil, ErrRangeTooWide
	}
	return s.repo.GetBookingsByDateRange(ctx, start, end)
}

func (s *BookingService) publishBookingEvent(eventType string, booking *models.BookingRecord) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:      booking.ID,
		ProfessionalID: booking.ProfessionalID,
		UserID:         booking.UserID,
		ServiceID:      booking.ServiceID,
		StartTime:      booking.StartTime,
		EndTime:        booking.EndTime,
		Status:         booking.Status,
		CorrelationID:  booking.CorrelationID,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}
