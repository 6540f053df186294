package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"autoagenda/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Service talks to Google Calendar through a service account. It is the
// external side of the booking sync saga: event creation happens after the
// booking row exists, and a failure here triggers compensation upstream.
type Service struct {
	service    *calendar.Service
	calendarID string
	timezone   string
}

func NewService(ctx context.Context, credentialsFile, calendarID, timezone string) (*Service, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	client := config.Client(ctx)

	srv, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %v", err)
	}

	return &Service{
		service:    srv,
		calendarID: calendarID,
		timezone:   timezone,
	}, nil
}

// TestConnection verifies the calendar is reachable and readable.
func (s *Service) TestConnection(ctx context.Context) error {
	_, err := s.service.Calendars.Get(s.calendarID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// GetServiceAccountEmail reads the client_email from the credentials file,
// needed when sharing the calendar with the service account.
func (s *Service) GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// CreateEvent inserts a calendar event for the booking and returns the
// provider event id.
func (s *Service) CreateEvent(ctx context.Context, booking *models.BookingRecord) (string, error) {
	if booking == nil {
		return "", fmt.Errorf("booking is nil")
	}

	event := &calendar.Event{
		Summary:     fmt.Sprintf("Reserva #%d — servicio %s", booking.ID, booking.ServiceID),
		Description: fmt.Sprintf("Profesional: %s\nUsuario: %s\nReserva: %d", booking.ProfessionalID, booking.UserID, booking.ID),
		Start: &calendar.EventDateTime{
			DateTime: booking.StartTime.Format("2006-01-02T15:04:05-07:00"),
			TimeZone: s.timezone,
		},
		End: &calendar.EventDateTime{
			DateTime: booking.EndTime.Format("2006-01-02T15:04:05-07:00"),
			TimeZone: s.timezone,
		},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				"booking_id":     fmt.Sprintf("%d", booking.ID),
				"correlation_id": booking.CorrelationID,
			},
		},
	}

	created, err := s.service.Events.Insert(s.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create calendar event: %w", err)
	}
	return created.Id, nil
}

// DeleteEvent removes a previously created event. Used by compensation when
// a later saga step fails after the event already exists.
func (s *Service) DeleteEvent(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	if err := s.service.Events.Delete(s.calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete calendar event %s: %w", eventID, err)
	}
	return nil
}
