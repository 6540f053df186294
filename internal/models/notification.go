package models

import "time"

// NotificationJob is a queued delivery attempt tied to a booking. Created on
// successful booking, terminated on delivery, on the retry ceiling, or when
// its age exceeds the retry TTL.
type NotificationJob struct {
	ID            int64      `json:"id"`
	BookingID     int64      `json:"booking_id"`
	UserID        string     `json:"user_id"`
	Message       string     `json:"message"`
	Status        string     `json:"status"` // pending, delivered, abandoned
	RetryCount    int        `json:"retry_count"`
	LastError     *string    `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
}

// Age reports how long the job has existed.
func (j *NotificationJob) Age(now time.Time) time.Duration {
	return now.Sub(j.CreatedAt)
}
