package models

import (
	"fmt"
	"time"
)

// BookingRequest is the inbound payload of a booking attempt. It is never
// persisted as-is; the coordinator turns it into a BookingRecord on commit.
type BookingRequest struct {
	ProfessionalID string    `json:"professional_id"`
	UserID         string    `json:"user_id"`
	ServiceID      string    `json:"service_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
}

// Validate checks the request's own fields, not slot availability.
func (r *BookingRequest) Validate() error {
	if r.ProfessionalID == "" {
		return fmt.Errorf("professional_id is required")
	}
	if r.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if r.ServiceID == "" {
		return fmt.Errorf("service_id is required")
	}
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return fmt.Errorf("start_time and end_time are required")
	}
	if !r.StartTime.Before(r.EndTime) {
		return fmt.Errorf("start_time must be before end_time")
	}
	return nil
}

// SlotKey canonicalizes the (professional, interval) pair to the given
// granularity. Two requests for the same slot always produce the same key.
func (r *BookingRequest) SlotKey(granularity time.Duration) string {
	if granularity <= 0 {
		granularity = time.Minute
	}
	start := r.StartTime.UTC().Truncate(granularity)
	end := r.EndTime.UTC().Truncate(granularity)
	return fmt.Sprintf("slot:%s:%d:%d", r.ProfessionalID, start.Unix(), end.Unix())
}

// BookingRecord is the durable reservation row. Owned by the coordinator
// until it is handed to the calendar saga, which may transition the status
// to rolled_back.
type BookingRecord struct {
	ID              int64     `json:"id"`
	ProfessionalID  string    `json:"professional_id"`
	UserID          string    `json:"user_id"`
	ServiceID       string    `json:"service_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Status          string    `json:"status"` // pending, confirmed, rolled_back
	SyncStatus      string    `json:"sync"`   // unsynced, ok, failed
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	CorrelationID   string    `json:"correlation_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Version         int64     `json:"version"`
}
