package worker

import (
	"context"
	"fmt"
	"time"

	"autoagenda/internal/domain"
	"autoagenda/internal/events"
	"autoagenda/internal/metrics"
	"autoagenda/internal/models"

	"github.com/rs/zerolog"
)

// NotifyWorker drains pending notification jobs and delivers them with
// bounded retries. A job gets at most MaxRetries delivery attempts and
// is abandoned outright once it outlives the TTL, whichever comes first.
// Abandonment is always loud: reported to the error pipeline and
// published on the event bus, never silently dropped.
type NotifyWorker struct {
	repo         domain.Repository
	sender       domain.MessageSender
	reporter     domain.ErrorReporter
	eventBus     domain.EventPublisher
	retryPolicy  RetryPolicy
	ttl          time.Duration
	pollInterval time.Duration
	batchSize    int
	logger       zerolog.Logger
}

func NewNotifyWorker(repo domain.Repository, sender domain.MessageSender, reporter domain.ErrorReporter, eventBus domain.EventPublisher, retry RetryPolicy, ttl, pollInterval time.Duration, batchSize int, logger *zerolog.Logger) *NotifyWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = models.DefaultNotifyMaxRetries
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if ttl <= 0 {
		ttl = time.Duration(models.DefaultNotifyTTLMinutes) * time.Minute
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 20
	}

	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "notify_worker").Logger()
	}

	return &NotifyWorker{
		repo:         repo,
		sender:       sender,
		reporter:     reporter,
		eventBus:     eventBus,
		retryPolicy:  retry,
		ttl:          ttl,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       base,
	}
}

// Enqueue persists a new delivery job. Called from the booking_confirmed
// event subscription.
func (w *NotifyWorker) Enqueue(ctx context.Context, bookingID int64, userID, message string) error {
	job := &models.NotificationJob{
		BookingID: bookingID,
		UserID:    userID,
		Message:   message,
	}
	if err := w.repo.CreateNotificationJob(ctx, job); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	w.logger.Debug().Int64("job_id", job.ID).Int64("booking_id", bookingID).Msg("notification enqueued")
	return nil
}

// Start runs the poll loop until ctx is done.
func (w *NotifyWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("notify worker started")
	defer w.logger.Info().Msg("notify worker stopped")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessDue(ctx, time.Now())
		}
	}
}

// ProcessDue handles one poll round. Exposed for tests and for a drain on
// shutdown.
func (w *NotifyWorker) ProcessDue(ctx context.Context, now time.Time) {
	jobs, err := w.repo.GetDueNotificationJobs(ctx, now, w.batchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("fetch due notifications")
		return
	}

	for _, job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}
		w.processJob(ctx, job, now)
	}
}

func (w *NotifyWorker) processJob(ctx context.Context, job *models.NotificationJob, now time.Time) {
	// TTL is checked before attempting delivery: an expired job gets no
	// further attempts regardless of how many it has left.
	if job.Age(now) > w.ttl {
		w.abandon(ctx, job, "ttl expired")
		return
	}

	err := w.sender.Send(ctx, job.UserID, job.Message)
	if err == nil {
		if err := w.repo.MarkNotificationDelivered(ctx, job.ID); err != nil {
			w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("mark delivered failed")
			return
		}
		metrics.IncNotification("delivered")
		w.logger.Info().Int64("job_id", job.ID).Int64("booking_id", job.BookingID).Msg("notification delivered")
		return
	}

	attempt := job.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.abandon(ctx, job, fmt.Sprintf("retries exhausted: %v", err))
		return
	}

	nextAttempt := now.Add(w.retryPolicy.NextDelay(attempt))
	if mErr := w.repo.MarkNotificationRetry(ctx, job.ID, err.Error(), nextAttempt); mErr != nil {
		w.logger.Error().Err(mErr).Int64("job_id", job.ID).Msg("mark retry failed")
		return
	}
	metrics.IncNotification("retried")
	w.logger.Warn().
		Err(err).
		Int64("job_id", job.ID).
		Int("attempt", attempt).
		Time("next_attempt", nextAttempt).
		Msg("notification delivery failed, will retry")
}

func (w *NotifyWorker) abandon(ctx context.Context, job *models.NotificationJob, reason string) {
	if err := w.repo.MarkNotificationAbandoned(ctx, job.ID, reason); err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("mark abandoned failed")
		return
	}
	metrics.IncNotification("abandoned")
	w.logger.Error().
		Int64("job_id", job.ID).
		Int64("booking_id", job.BookingID).
		Str("reason", reason).
		Msg("notification abandoned")

	if w.reporter != nil {
		w.reporter.Report(ctx, &models.ErrorEvent{
			Source:  "notify_worker",
			Message: fmt.Sprintf("notification %d abandoned: %s", job.ID, reason),
			Context: map[string]any{
				"booking_id": job.BookingID,
				"job_id":     job.ID,
			},
		})
	}

	if w.eventBus != nil {
		payload := map[string]any{
			"job_id":     job.ID,
			"booking_id": job.BookingID,
			"reason":     reason,
		}
		if err := w.eventBus.PublishJSON(events.EventNotificationAbandoned, payload); err != nil {
			w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("publish abandoned event error")
		}
	}
}
