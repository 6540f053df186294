package service

import (
	"context"
	"fmt"

	"autoagenda/internal/domain"
	"autoagenda/internal/events"
	"autoagenda/internal/models"

	"github.com/rs/zerolog"
)

// CalendarSyncSaga is the two-step sync after a booking commit: create the
// calendar event, then confirm the booking. If either step fails the
// booking is compensated back to rolled_back and the slot frees up again.
type CalendarSyncSaga struct {
	repo     domain.Repository
	calendar domain.CalendarClient
	reporter domain.ErrorReporter
	eventBus domain.EventPublisher
	logger   zerolog.Logger
}

func NewCalendarSyncSaga(repo domain.Repository, calendar domain.CalendarClient, reporter domain.ErrorReporter, eventBus domain.EventPublisher, logger *zerolog.Logger) *CalendarSyncSaga {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "saga").Logger()
	}
	return &CalendarSyncSaga{
		repo:     repo,
		calendar: calendar,
		reporter: reporter,
		eventBus: eventBus,
		logger:   base,
	}
}

// Sync drives the saga for one booking. On success the booking leaves as
// confirmed with sync "ok". On any failure the returned error message
// contains "rollback" so callers can tell compensation from plain errors.
func (s *CalendarSyncSaga) Sync(ctx context.Context, booking *models.BookingRecord) error {
	eventID, err := s.calendar.CreateEvent(ctx, booking)
	if err != nil {
		s.compensate(ctx, booking, "", fmt.Sprintf("calendar event creation failed: %v", err))
		return fmt.Errorf("booking %d rollback: calendar sync failed: %w", booking.ID, err)
	}

	if err := s.repo.ConfirmBooking(ctx, booking.ID, eventID); err != nil {
		// The event exists but the booking could not be confirmed. Delete
		// the event too, otherwise the calendar shows a phantom slot.
		s.compensate(ctx, booking, eventID, fmt.Sprintf("booking confirmation failed: %v", err))
		return fmt.Errorf("booking %d rollback: confirmation failed: %w", booking.ID, err)
	}

	booking.Status = models.StatusConfirmed
	booking.SyncStatus = models.SyncOK
	booking.CalendarEventID = eventID

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Str("event_id", eventID).
		Msg("calendar sync complete")
	return nil
}

// compensate is idempotent: RollbackBooking tolerates repeated calls and
// bookings that never left pending.
func (s *CalendarSyncSaga) compensate(ctx context.Context, booking *models.BookingRecord, eventID, reason string) {
	s.logger.Warn().
		Int64("booking_id", booking.ID).
		Str("reason", reason).
		Msg("compensating booking")

	if eventID != "" {
		if err := s.calendar.DeleteEvent(ctx, eventID); err != nil {
			s.logger.Error().Err(err).Str("event_id", eventID).Msg("compensation event delete failed")
		}
	}

	if err := s.repo.RollbackBooking(ctx, booking.ID); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("booking rollback failed")
	}
	booking.Status = models.StatusRolledBack
	booking.SyncStatus = models.SyncFailed

	if s.reporter != nil {
		s.reporter.Report(ctx, &models.ErrorEvent{
			Source:        "calendar_sync",
			CorrelationID: booking.CorrelationID,
			Message:       reason,
			Context: map[string]any{
				"booking_id": booking.ID,
			},
		})
	}

	if s.eventBus != nil {
		payload := events.BookingEventPayload{
			BookingID:      booking.ID,
			ProfessionalID: booking.ProfessionalID,
			UserID:         booking.UserID,
			ServiceID:      booking.ServiceID,
			StartTime:      booking.StartTime,
			EndTime:        booking.EndTime,
			Status:         models.StatusRolledBack,
			CorrelationID:  booking.CorrelationID,
		}
		if err := s.eventBus.PublishJSON(events.EventBookingRolledBack, payload); err != nil {
			s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("publish rollback event error")
		}
	}
}
