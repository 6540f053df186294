package alerts

import (
	"strings"

	"autoagenda/internal/models"
)

// Classification is the outcome of running an ErrorEvent through the
// severity rules.
type Classification struct {
	Severity  string
	Reason    string
	DBOffline bool
}

// Ordered severity rules. First match wins, except that a db-connectivity
// signal overrides everything, including an explicitly provided severity:
// if the database is unreachable the alert must go out as CRITICAL.
var (
	dbOfflinePatterns = []string{
		"connection refused",
		"econnrefused",
		"database is closed",
		"db connection",
		"no such host",
		"connection reset by peer",
	}

	criticalPatterns = []string{
		"database", "postgres", "sqlite",
		"authentication failed", "credential",
		"out of memory", "disk full", "fatal", "panic",
		"data corruption", "integrity", "deadlock",
	}

	highPatterns = []string{
		"timeout", "etimedout", "unauthorized", "401", "403",
		"too many requests", "429",
		"internal server error", "500", "bad gateway", "502",
		"service unavailable", "503",
		"webhook failed", "api error", "external service",
	}

	lowPatterns = []string{
		"not found", "404", "validation", "invalid input",
		"bad request", "400", "duplicate", "already exists",
		"no data", "empty response", "missing field", "format error",
	}
)

// Classify derives the severity of an event. It never panics: any failure
// inside classification degrades to a best-effort CRITICAL result so the
// alert is not swallowed.
func Classify(event *models.ErrorEvent) (c Classification) {
	defer func() {
		if r := recover(); r != nil {
			c = Classification{Severity: models.SeverityCritical, Reason: "classification_panic"}
		}
	}()

	if event == nil {
		return Classification{Severity: models.SeverityHigh, Reason: "no_event"}
	}

	haystack := strings.ToLower(event.Message + " " + flattenStrings(event.Payload))

	if matchesAny(haystack, dbOfflinePatterns) {
		return Classification{
			Severity:  models.SeverityCritical,
			Reason:    "db_offline",
			DBOffline: true,
		}
	}

	if provided := providedSeverity(event); provided != "" {
		return Classification{Severity: provided, Reason: "provided_by_caller"}
	}

	switch {
	case matchesAny(haystack, criticalPatterns):
		return Classification{Severity: models.SeverityCritical, Reason: "critical_pattern"}
	case matchesAny(haystack, highPatterns):
		return Classification{Severity: models.SeverityHigh, Reason: "high_pattern"}
	case matchesAny(haystack, lowPatterns):
		return Classification{Severity: models.SeverityLow, Reason: "low_pattern"}
	}

	return Classification{Severity: models.SeverityMedium, Reason: "default"}
}

func providedSeverity(event *models.ErrorEvent) string {
	if event.Context == nil {
		return ""
	}
	raw, ok := event.Context["provided_severity"]
	if !ok {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		return ""
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	if models.ValidSeverity(s) {
		return s
	}
	return ""
}

func matchesAny(haystack string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(haystack, p) {
			return true
		}
	}
	return false
}

// flattenStrings collects string leaves so nested error context is visible
// to the pattern rules.
func flattenStrings(node any) string {
	switch v := node.(type) {
	case string:
		return v
	case map[string]any:
		var sb strings.Builder
		for _, item := range v {
			sb.WriteString(flattenStrings(item))
			sb.WriteByte(' ')
		}
		return sb.String()
	case []any:
		var sb strings.Builder
		for _, item := range v {
			sb.WriteString(flattenStrings(item))
			sb.WriteByte(' ')
		}
		return sb.String()
	default:
		return ""
	}
}
