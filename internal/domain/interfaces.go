package domain

import (
	"context"
	"time"

	"autoagenda/internal/models"
)

// Repository is the durable store for bookings, notification jobs and the
// error log. Backed by sqlite in this deployment.
type Repository interface {
	CreateBookingIfFree(ctx context.Context, booking *models.BookingRecord) error
	GetBooking(ctx context.Context, id int64) (*models.BookingRecord, error)
	UpdateBookingStatus(ctx context.Context, id int64, status, syncStatus string) error
	ConfirmBooking(ctx context.Context, id int64, eventID string) error
	RollbackBooking(ctx context.Context, id int64) error
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.BookingRecord, error)

	CreateNotificationJob(ctx context.Context, job *models.NotificationJob) error
	GetDueNotificationJobs(ctx context.Context, now time.Time, limit int) ([]*models.NotificationJob, error)
	MarkNotificationDelivered(ctx context.Context, id int64) error
	MarkNotificationRetry(ctx context.Context, id int64, lastError string, nextAttemptAt time.Time) error
	MarkNotificationAbandoned(ctx context.Context, id int64, lastError string) error

	LogErrorEvent(ctx context.Context, source, correlationID, severity string, redactedPayload []byte) error
}

// SlotLocker is the per-slot mutual exclusion point. TryAcquire is an atomic
// test-and-set: it never blocks and never acquires a held key.
type SlotLocker interface {
	TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

// AlertWindow counts alert emissions within the current rate-limit window.
// Incr must be atomic with respect to concurrent classification calls.
type AlertWindow interface {
	Incr(ctx context.Context, window time.Duration) (int64, error)
}

// CalendarClient is the external calendar collaborator. Its failures are the
// sole trigger for saga compensation.
type CalendarClient interface {
	CreateEvent(ctx context.Context, booking *models.BookingRecord) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// MessageSender delivers a notification message to a user.
type MessageSender interface {
	Send(ctx context.Context, userID, message string) error
}

// AlertSender delivers a redacted operational alert to the admin channel.
type AlertSender interface {
	SendAlert(ctx context.Context, severity, text string) error
}

// ErrorReporter is the entry point of the classify/redact/limit/deliver
// pipeline. Implementations must never panic on a bad event.
type ErrorReporter interface {
	Report(ctx context.Context, event *models.ErrorEvent)
}

// EventPublisher fans domain events out to in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// BookingService is the caller-facing booking contract.
type BookingService interface {
	Book(ctx context.Context, req *models.BookingRequest, correlationID string) (*models.BookingRecord, error)
	GetBooking(ctx context.Context, id int64) (*models.BookingRecord, error)
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.BookingRecord, error)
}
