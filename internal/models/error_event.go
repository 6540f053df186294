package models

import "time"

// ErrorEvent is a raw operational failure flowing into the alert pipeline.
// Payload and Context are arbitrary JSON-ish trees; the classifier derives
// severity from them and the redactor scrubs them before delivery.
type ErrorEvent struct {
	Source        string         `json:"source"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Message       string         `json:"message"`
	Payload       map[string]any `json:"payload,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}
