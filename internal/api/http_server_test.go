package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"autoagenda/internal/config"
	"autoagenda/internal/database"
	"autoagenda/internal/guard"
	"autoagenda/internal/models"
	"autoagenda/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBookingService struct {
	bookErr  error
	booking  *models.BookingRecord
	rangeErr error
}

func (s *stubBookingService) Book(ctx context.Context, req *models.BookingRequest, correlationID string) (*models.BookingRecord, error) {
	if s.bookErr != nil {
		return nil, s.bookErr
	}
	b := *s.booking
	b.CorrelationID = correlationID
	return &b, nil
}

func (s *stubBookingService) GetBooking(ctx context.Context, id int64) (*models.BookingRecord, error) {
	if s.booking != nil && s.booking.ID == id {
		return s.booking, nil
	}
	return nil, database.ErrNotFound
}

func (s *stubBookingService) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.BookingRecord, error) {
	if s.rangeErr != nil {
		return nil, s.rangeErr
	}
	if s.booking == nil {
		return nil, nil
	}
	return []*models.BookingRecord{s.booking}, nil
}

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		Port:    0,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: "frontend-key", Name: "frontend", Permissions: []string{"write:bookings", "read:bookings"}},
				{Key: "admin-key", Name: "admin", Permissions: []string{"admin", "read:bookings"}},
			},
		},
	}
}

func newTestServer(t *testing.T, svc *stubBookingService) *HTTPServer {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	exporter := NewExporter(t.TempDir(), &logger)
	return NewHTTPServer(testAPIConfig(), svc, db, guard.New(guard.DefaultLimits()), exporter, &logger)
}

func confirmedBooking() *models.BookingRecord {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	return &models.BookingRecord{
		ID:              42,
		ProfessionalID:  "prof-1",
		UserID:          "123456789",
		ServiceID:       "corte-pelo",
		StartTime:       start,
		EndTime:         start.Add(30 * time.Minute),
		Status:          models.StatusConfirmed,
		SyncStatus:      models.SyncOK,
		CalendarEventID: "event-1",
	}
}

func bookingBody() []byte {
	raw, _ := json.Marshal(map[string]any{
		"professional_id": "prof-1",
		"user_id":         "123456789",
		"service_id":      "corte-pelo",
		"start_time":      "2026-09-01T10:00:00Z",
		"end_time":        "2026-09-01T10:30:00Z",
	})
	return raw
}

func doRequest(srv *HTTPServer, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateBookingSuccess(t *testing.T) {
	srv := newTestServer(t, &stubBookingService{booking: confirmedBooking()})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewReader(bookingBody()))
	req.Header.Set("x-api-key", "frontend-key")
	rec := doRequest(srv, req)

	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp bookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, int64(42), resp.BookingID)
	assert.Equal(t, "ok", resp.Sync)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateBookingEchoesRequestID(t *testing.T) {
	srv := newTestServer(t, &stubBookingService{booking: confirmedBooking()})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewReader(bookingBody()))
	req.Header.Set("x-api-key", "frontend-key")
	req.Header.Set("X-Request-ID", "corr-from-client")
	rec := doRequest(srv, req)

	assert.Equal(t, "corr-from-client", rec.Header().Get("X-Request-ID"))
}

func TestCreateBookingOccupied(t *testing.T) {
	srv := newTestServer(t, &stubBookingService{bookErr: database.ErrSlotOccupied})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewReader(bookingBody()))
	req.Header.Set("x-api-key", "frontend-key")
	rec := doRequest(srv, req)

	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp bookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp.Status)
	assert.True(t, resp.Error)
	assert.Contains(t, resp.Message, "occupied")
}

func TestCreateBookingLockedMapsToConflict(t *testing.T) {
	srv := newTestServer(t, &stubBookingService{bookErr: service.ErrSlotLocked})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewReader(bookingBody()))
	req.Header.Set("x-api-key", "frontend-key")
	rec := doRequest(srv, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateBookingRollback(t *testing.T) {
	srv := newTestServer(t, &stubBookingService{
		bookErr: fmt.Errorf("booking 7 rollback: calendar sync failed"),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewReader(bookingBody()))
	req.Header.Set("x-api-key", "frontend-key")
	rec := doRequest(srv, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var resp bookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp.Status)
	assert.Contains(t, resp.Message, "rollback")
}

func TestCreateBookingGuardRejects(t *testing.T) {
	srv := newTestServer(t, &stubBookingService{booking: confirmedBooking()})

	raw, _ := json.Marshal(map[string]any{
		"professional_id": "x'; DROP TABLE bookings--",
		"user_id":         "123456789",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewReader(raw))
	req.Header.Set("x-api-key", "frontend-key")
	rec := doRequest(srv, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp bookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Error)
	assert.Contains(t, resp.Message, guard.CodeSQLInjection)
}

func TestAuthRejectsMissingAndUnknownKeys(t *testing.T) {
	srv := newTestServer(t, &stubBookingService{booking: confirmedBooking()})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewReader(bookingBody()))
	rec := doRequest(srv, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewReader(bookingBody()))
	req.Header.Set("x-api-key", "wrong-key")
	rec = doRequest(srv, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthEnforcesPermissions(t *testing.T) {
	srv := newTestServer(t, &stubBookingService{booking: confirmedBooking()})

	// frontend key lacks the admin permission.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
	req.Header.Set("x-api-key", "frontend-key")
	rec := doRequest(srv, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
	req.Header.Set("x-api-key", "admin-key")
	rec = doRequest(srv, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetBookingByID(t *testing.T) {
	srv := newTestServer(t, &stubBookingService{booking: confirmedBooking()})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/42", nil)
	req.Header.Set("x-api-key", "frontend-key")
	rec := doRequest(srv, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/bookings/777", nil)
	req.Header.Set("x-api-key", "frontend-key")
	rec = doRequest(srv, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminCalendarValidatesRange(t *testing.T) {
	srv := newTestServer(t, &stubBookingService{booking: confirmedBooking()})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/calendar?start=2026-09-01&end=2026-09-07", nil)
	req.Header.Set("x-api-key", "admin-key")
	rec := doRequest(srv, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/calendar?start=2026-09-07&end=2026-09-01", nil)
	req.Header.Set("x-api-key", "admin-key")
	rec = doRequest(srv, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/calendar?start=2026-09-01", nil)
	req.Header.Set("x-api-key", "admin-key")
	rec = doRequest(srv, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminCalendarRangeTooWide(t *testing.T) {
	srv := newTestServer(t, &stubBookingService{rangeErr: service.ErrRangeTooWide})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/calendar?start=2025-01-01&end=2026-12-31", nil)
	req.Header.Set("x-api-key", "admin-key")
	rec := doRequest(srv, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminExportWritesFile(t *testing.T) {
	srv := newTestServer(t, &stubBookingService{booking: confirmedBooking()})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/export?start=2026-09-01&end=2026-09-07", nil)
	req.Header.Set("x-api-key", "admin-key")
	rec := doRequest(srv, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	assert.Contains(t, resp["file"], "export_2026-09-01_to_2026-09-07.xlsx")
	assert.Equal(t, float64(1), resp["count"])
}

func TestRateLimitPerKey(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := testAPIConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 1}
	srv := NewHTTPServer(cfg, &stubBookingService{booking: confirmedBooking()}, db,
		guard.New(guard.DefaultLimits()), NewExporter(t.TempDir(), &logger), &logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/42", nil)
	req.Header.Set("x-api-key", "frontend-key")
	rec := doRequest(srv, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// The burst is spent; the next request from the same key is throttled.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/bookings/42", nil)
	req.Header.Set("x-api-key", "frontend-key")
	rec = doRequest(srv, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// A different key has its own bucket.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
	req.Header.Set("x-api-key", "admin-key")
	rec = doRequest(srv, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthSkipsAuth(t *testing.T) {
	srv := newTestServer(t, &stubBookingService{booking: confirmedBooking()})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := doRequest(srv, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
