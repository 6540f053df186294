package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"autoagenda/internal/database"
	"autoagenda/internal/guard"
	"autoagenda/internal/models"
	"autoagenda/internal/service"
)

const maxBodyBytes = 1 << 20

type bookingResponse struct {
	Status    string `json:"status"`
	BookingID int64  `json:"booking_id,omitempty"`
	Sync      string `json:"sync,omitempty"`
	Error     bool   `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
}

func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read body")
		return
	}

	// Structural validation before anything touches the payload.
	if _, err := s.guard.Validate(raw); err != nil {
		var vErr *guard.ValidationError
		if errors.As(err, &vErr) {
			writeJSON(w, http.StatusBadRequest, bookingResponse{
				Status:  "failed",
				Error:   true,
				Message: vErr.Error(),
			})
			return
		}
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	var req models.BookingRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	booking, err := s.bookings.Book(r.Context(), &req, RequestID(r.Context()))
	if err != nil {
		s.writeBookingError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, bookingResponse{
		Status:    "success",
		BookingID: booking.ID,
		Sync:      booking.SyncStatus,
	})
}

func (s *HTTPServer) writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrSlotOccupied):
		writeJSON(w, http.StatusConflict, bookingResponse{
			Status:  "failed",
			Error:   true,
			Message: "slot is occupied",
		})
	case errors.Is(err, service.ErrSlotLocked):
		writeJSON(w, http.StatusConflict, bookingResponse{
			Status:  "failed",
			Error:   true,
			Message: "slot is occupied by a concurrent request",
		})
	case strings.Contains(err.Error(), "rollback"):
		writeJSON(w, http.StatusBadGateway, bookingResponse{
			Status:  "failed",
			Error:   true,
			Message: err.Error(),
		})
	default:
		writeJSON(w, http.StatusBadRequest, bookingResponse{
			Status:  "failed",
			Error:   true,
			Message: err.Error(),
		})
	}
}

func (s *HTTPServer) handleBookingByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/bookings/")
	id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	booking, err := s.bookings.GetBooking(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "booking not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleAdminCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	start, end, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bookings, err := s.bookings.GetBookingsByDateRange(r.Context(), start, end)
	if err != nil {
		if errors.Is(err, service.ErrRangeTooWide) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"start":    start.Format("2006-01-02"),
		"end":      end.Format("2006-01-02"),
		"bookings": bookings,
	})
}

func (s *HTTPServer) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := s.db.BookingStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	errorCount, err := s.db.CountRecentErrors(r.Context(), 5*time.Minute)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bookings":         stats,
		"error_count_5min": errorCount,
	})
}

func (s *HTTPServer) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export is not configured")
		return
	}

	start, end, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bookings, err := s.bookings.GetBookingsByDateRange(r.Context(), start, end)
	if err != nil {
		if errors.Is(err, service.ErrRangeTooWide) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	path, err := s.exporter.ExportBookings(r.Context(), start, end, bookings)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"file":   path,
		"count":  len(bookings),
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseDateRange(r *http.Request) (time.Time, time.Time, error) {
	startStr := strings.TrimSpace(r.URL.Query().Get("start"))
	endStr := strings.TrimSpace(r.URL.Query().Get("end"))
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, errors.New("start and end are required")
	}

	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid start date; expected YYYY-MM-DD")
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid end date; expected YYYY-MM-DD")
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("end must not be before start")
	}

	// The end date is inclusive.
	return start, end.AddDate(0, 0, 1), nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
