package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"autoagenda/internal/domain"
	"autoagenda/internal/metrics"
	"autoagenda/internal/models"

	"github.com/rs/zerolog"
)

// Pipeline routes operational errors through classification, redaction,
// rate limiting and delivery. It is the only consumer of the alert window
// and must never let a bad event crash the process.
type Pipeline struct {
	window  domain.AlertWindow
	sender  domain.AlertSender
	repo    domain.Repository
	ceiling int
	winDur  time.Duration
	logger  zerolog.Logger
}

func NewPipeline(window domain.AlertWindow, sender domain.AlertSender, repo domain.Repository, ceiling int, windowDur time.Duration, logger *zerolog.Logger) *Pipeline {
	if ceiling <= 0 {
		ceiling = models.DefaultAlertRateLimit
	}
	if windowDur <= 0 {
		windowDur = time.Duration(models.DefaultAlertWindow) * time.Second
	}

	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "alerts").Logger()
	}

	return &Pipeline{
		window:  window,
		sender:  sender,
		repo:    repo,
		ceiling: ceiling,
		winDur:  windowDur,
		logger:  base,
	}
}

// Report classifies, redacts, persists and (subject to the window policy)
// delivers one error event. Redaction happens before anything leaves the
// process; a failing window store fails open so CRITICAL alerts still flow.
func (p *Pipeline) Report(ctx context.Context, event *models.ErrorEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("alert pipeline panic")
			p.bestEffortCritical(ctx, fmt.Sprintf("alert pipeline failure: %v", r))
		}
	}()

	if event == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	classification := Classify(event)
	redacted := Redact(event.Payload)

	count, err := p.window.Incr(ctx, p.winDur)
	if err != nil {
		// Window store unreachable: do not suppress, this is exactly
		// when alerts matter most.
		p.logger.Warn().Err(err).Msg("alert window unavailable")
		count = 0
	}

	decision := Admit(classification.Severity, count, p.ceiling)

	p.persist(ctx, event, classification.Severity, redacted)

	if !decision.CanSendAlert {
		metrics.IncAlert(classification.Severity, "suppressed")
		p.logger.Info().
			Str("source", event.Source).
			Str("severity", classification.Severity).
			Int64("window_count", count).
			Msg("alert suppressed by rate limit")
		return
	}

	text := p.formatAlert(event, classification, redacted)
	if err := p.sender.SendAlert(ctx, classification.Severity, text); err != nil {
		metrics.IncAlert(classification.Severity, "failed")
		p.logger.Error().Err(err).Str("source", event.Source).Msg("alert delivery failed")
		return
	}
	metrics.IncAlert(classification.Severity, "sent")
}

func (p *Pipeline) persist(ctx context.Context, event *models.ErrorEvent, severity string, redacted map[string]any) {
	if p.repo == nil {
		return
	}
	raw, err := json.Marshal(redacted)
	if err != nil {
		raw = []byte("{}")
	}
	if err := p.repo.LogErrorEvent(ctx, event.Source, event.CorrelationID, severity, raw); err != nil {
		p.logger.Error().Err(err).Str("source", event.Source).Msg("error log write failed")
	}
}

func (p *Pipeline) formatAlert(event *models.ErrorEvent, c Classification, redacted map[string]any) string {
	text := fmt.Sprintf("🚨 %s [%s]\nsource: %s\nmessage: %s",
		c.Severity, c.Reason, event.Source, event.Message)
	if event.CorrelationID != "" {
		text += fmt.Sprintf("\ncorrelation_id: %s", event.CorrelationID)
	}
	if c.DBOffline {
		text += "\n⚠️ database unreachable"
	}
	if len(redacted) > 0 {
		if raw, err := json.Marshal(redacted); err == nil {
			text += fmt.Sprintf("\npayload: %s", raw)
		}
	}
	return text
}

func (p *Pipeline) bestEffortCritical(ctx context.Context, message string) {
	if p.sender == nil {
		return
	}
	if err := p.sender.SendAlert(ctx, models.SeverityCritical, message); err != nil {
		p.logger.Error().Err(err).Msg("best-effort critical alert failed")
	}
}
