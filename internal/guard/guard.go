package guard

import (
	"encoding/json"
	"fmt"
	"regexp"
	"unicode/utf8"
)

// Validation error codes. Every violation is fatal for the whole payload;
// there is no partial acceptance.
const (
	CodePayloadTooLarge     = "PAYLOAD_TOO_LARGE"
	CodeStringTooLong       = "STRING_TOO_LONG"
	CodeArrayTooLong        = "ARRAY_TOO_LONG"
	CodeObjectDepthExceeded = "OBJECT_DEPTH_EXCEEDED"
	CodeSQLInjection        = "SQL_INJECTION_DETECTED"
	CodeInvalidJSON         = "INVALID_JSON"
)

// Limits bound the shape of an inbound payload.
type Limits struct {
	MaxPayloadBytes int
	MaxStringLength int
	MaxArrayLength  int
	MaxObjectDepth  int
}

// DefaultLimits returns the production limits: 100 KiB payload, 1000-char
// strings, 100-element arrays, depth 10.
func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 102400,
		MaxStringLength: 1000,
		MaxArrayLength:  100,
		MaxObjectDepth:  10,
	}
}

// ValidationError carries the categorical code of the first violation found.
type ValidationError struct {
	Code   string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|UNION|EXEC)\b`),
	regexp.MustCompile(`--|;|/\*|\*/`),
	regexp.MustCompile(`(?i)\bor\b\s*['"]?\s*1\s*['"]?\s*=\s*['"]?\s*1\s*['"]?`),
}

// Guard validates inbound payloads before they reach business logic.
type Guard struct {
	limits Limits
}

func New(limits Limits) *Guard {
	if limits.MaxPayloadBytes <= 0 {
		limits = DefaultLimits()
	}
	return &Guard{limits: limits}
}

// Validate checks the serialized size of raw, parses it and walks the whole
// tree. It returns the decoded payload on success and a *ValidationError on
// the first violation.
func (g *Guard) Validate(raw []byte) (any, error) {
	if len(raw) > g.limits.MaxPayloadBytes {
		return nil, &ValidationError{
			Code:   CodePayloadTooLarge,
			Detail: fmt.Sprintf("payload is %d bytes, max %d", len(raw), g.limits.MaxPayloadBytes),
		}
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &ValidationError{Code: CodeInvalidJSON, Detail: err.Error()}
	}

	if err := g.validateNode(payload, 0); err != nil {
		return nil, err
	}
	return payload, nil
}

// ValidateValue walks an already-decoded payload tree.
func (g *Guard) ValidateValue(payload any) error {
	return g.validateNode(payload, 0)
}

func (g *Guard) validateNode(node any, depth int) error {
	if depth > g.limits.MaxObjectDepth {
		return &ValidationError{Code: CodeObjectDepthExceeded}
	}

	switch v := node.(type) {
	case string:
		if utf8.RuneCountInString(v) > g.limits.MaxStringLength {
			return &ValidationError{Code: CodeStringTooLong}
		}
		if matchesSQLInjection(v) {
			return &ValidationError{Code: CodeSQLInjection}
		}
	case []any:
		if len(v) > g.limits.MaxArrayLength {
			return &ValidationError{Code: CodeArrayTooLong}
		}
		for _, item := range v {
			if err := g.validateNode(item, depth+1); err != nil {
				return err
			}
		}
	case map[string]any:
		for _, item := range v {
			if err := g.validateNode(item, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func matchesSQLInjection(s string) bool {
	for _, pattern := range sqlPatterns {
		if pattern.MatchString(s) {
			return true
		}
	}
	return false
}
