package models

// Booking statuses.
const (
	StatusPending    = "pending"
	StatusConfirmed  = "confirmed"
	StatusRolledBack = "rolled_back"
)

// Calendar sync states.
const (
	SyncUnsynced = "unsynced"
	SyncOK       = "ok"
	SyncFailed   = "failed"
)

// Notification job states.
const (
	NotifyPending   = "pending"
	NotifyDelivered = "delivered"
	NotifyAbandoned = "abandoned"
)

// Alert severities, lowest to highest.
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

const (
	// DefaultAlertRateLimit alerts per window before non-critical
	// severities are suppressed.
	DefaultAlertRateLimit = 10

	// DefaultAlertWindow seconds per rate-limit window.
	DefaultAlertWindow = 300

	// DefaultNotifyMaxRetries delivery attempts per notification job.
	DefaultNotifyMaxRetries = 3

	// DefaultNotifyTTLMinutes age after which a job is abandoned.
	DefaultNotifyTTLMinutes = 60

	// DefaultLockWaitSeconds bounded wait for a slot lock.
	DefaultLockWaitSeconds = 3

	// DefaultLockTTLSeconds slot lock expiry in the shared store.
	DefaultLockTTLSeconds = 30

	// DefaultSlotGranularityMinutes slot key canonicalization step.
	DefaultSlotGranularityMinutes = 15

	// MaxCalendarRangeDays admin calendar query ceiling.
	MaxCalendarRangeDays = 365
)

// ValidSeverity reports whether s is one of the four severity tiers.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}
