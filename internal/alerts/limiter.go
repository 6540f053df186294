package alerts

import (
	"autoagenda/internal/models"
)

// Decision is the rate limiter's verdict for a single alert.
type Decision struct {
	RateLimitExceeded bool `json:"rate_limit_exceeded"`
	CanSendAlert      bool `json:"can_send_alert"`
}

// Admit applies the window policy to an observed emission count. CRITICAL
// alerts are always deliverable, even when the window is saturated; every
// other severity is suppressed once count exceeds the ceiling.
func Admit(severity string, count int64, ceiling int) Decision {
	if ceiling <= 0 {
		ceiling = models.DefaultAlertRateLimit
	}

	exceeded := count > int64(ceiling)
	return Decision{
		RateLimitExceeded: exceeded,
		CanSendAlert:      severity == models.SeverityCritical || !exceeded,
	}
}
