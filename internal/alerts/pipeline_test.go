package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"autoagenda/internal/database"
	"autoagenda/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWindow struct {
	mu    sync.Mutex
	count int64
	err   error
}

func (w *stubWindow) Incr(ctx context.Context, window time.Duration) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return 0, w.err
	}
	w.count++
	return w.count, nil
}

type stubSender struct {
	mu    sync.Mutex
	sent  []string
	texts []string
	err   error
}

func (s *stubSender) SendAlert(ctx context.Context, severity, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, severity)
	s.texts = append(s.texts, text)
	return nil
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPipelineSendsAndPersists(t *testing.T) {
	db := newTestDB(t)
	window := &stubWindow{}
	sender := &stubSender{}
	logger := zerolog.Nop()
	p := NewPipeline(window, sender, db, 10, 5*time.Minute, &logger)

	p.Report(context.Background(), &models.ErrorEvent{
		Source:        "calendar_sync",
		CorrelationID: "corr-1",
		Message:       "calendar API error: 503 service unavailable",
		Payload:       map[string]any{"email": "juan.perez@dominio.com"},
	})

	require.Len(t, sender.sent, 1)
	assert.Equal(t, models.SeverityHigh, sender.sent[0])
	assert.Contains(t, sender.texts[0], "corr-1")
	// Redaction must happen before delivery.
	assert.NotContains(t, sender.texts[0], "juan.perez@dominio.com")
	assert.Contains(t, sender.texts[0], "j***om")

	count, err := db.CountRecentErrors(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPipelineSuppressesOverCeiling(t *testing.T) {
	db := newTestDB(t)
	window := &stubWindow{count: 10} // next Incr returns 11
	sender := &stubSender{}
	logger := zerolog.Nop()
	p := NewPipeline(window, sender, db, 10, 5*time.Minute, &logger)

	p.Report(context.Background(), &models.ErrorEvent{
		Source:  "worker",
		Message: "request timeout",
	})

	assert.Empty(t, sender.sent)

	// Suppressed alerts still reach the error log.
	count, err := db.CountRecentErrors(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPipelineCriticalBypassesSuppression(t *testing.T) {
	db := newTestDB(t)
	window := &stubWindow{count: 100}
	sender := &stubSender{}
	logger := zerolog.Nop()
	p := NewPipeline(window, sender, db, 10, 5*time.Minute, &logger)

	p.Report(context.Background(), &models.ErrorEvent{
		Source:  "repository",
		Message: "dial tcp: connection refused",
	})

	require.Len(t, sender.sent, 1)
	assert.Equal(t, models.SeverityCritical, sender.sent[0])
	assert.Contains(t, sender.texts[0], "database unreachable")
}

func TestPipelineFailsOpenOnWindowError(t *testing.T) {
	db := newTestDB(t)
	window := &stubWindow{err: errors.New("redis down")}
	sender := &stubSender{}
	logger := zerolog.Nop()
	p := NewPipeline(window, sender, db, 10, 5*time.Minute, &logger)

	p.Report(context.Background(), &models.ErrorEvent{
		Source:  "worker",
		Message: "request timeout",
	})

	require.Len(t, sender.sent, 1)
	assert.Equal(t, models.SeverityHigh, sender.sent[0])
}

func TestPipelineNilEventIsNoop(t *testing.T) {
	db := newTestDB(t)
	sender := &stubSender{}
	logger := zerolog.Nop()
	p := NewPipeline(&stubWindow{}, sender, db, 10, 5*time.Minute, &logger)

	p.Report(context.Background(), nil)
	assert.Empty(t, sender.sent)
}
