package integration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrEventNotFound is returned when a calendar event is already gone
var ErrEventNotFound = errors.New("calendar event not found")

// CalendarEvent is a timed reminder to create
type CalendarEvent struct {
	Summary         string
	Description     string
	Start           time.Time
	End             time.Time
	TimeZone        string
	ReminderMinutes int // Popup reminder before Start, 0 uses the calendar default
	ColorID         string
}

// CalendarClient creates and deletes events in an external calendar
type CalendarClient interface {
	CreateEvent(ctx context.Context, calendarID string, ev CalendarEvent) (string, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// GoogleCalendar implements CalendarClient with the Google Calendar API
type GoogleCalendar struct {
	service *calendar.Service
}

// NewGoogleCalendar creates a calendar client from client options, usually an
// authorized HTTP client
func NewGoogleCalendar(ctx context.Context, opts ...option.ClientOption) (*GoogleCalendar, error) {
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &GoogleCalendar{service: service}, nil
}

// CreateEvent inserts ev and returns the new event id
func (g *GoogleCalendar) CreateEvent(ctx context.Context, calendarID string, ev CalendarEvent) (string, error) {
	event := &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		ColorId:     ev.ColorID,
		Start: &calendar.EventDateTime{
			DateTime: ev.Start.Format(time.RFC3339),
			TimeZone: ev.TimeZone,
		},
		End: &calendar.EventDateTime{
			DateTime: ev.End.Format(time.RFC3339),
			TimeZone: ev.TimeZone,
		},
		Reminders: &calendar.EventReminders{UseDefault: true},
	}
	if ev.ReminderMinutes > 0 {
		event.Reminders = &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "popup", Minutes: int64(ev.ReminderMinutes)},
			},
			ForceSendFields: []string{"UseDefault"},
		}
	}

	created, err := g.service.Events.Insert(calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to insert event: %w", err)
	}
	log.Printf("Created calendar event %s on %s", created.Id, ev.Start.Format(time.RFC3339))
	return created.Id, nil
}

// DeleteEvent removes an event. Already deleted events yield ErrEventNotFound.
func (g *GoogleCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := g.service.Events.Delete(calendarID, eventID).Context(ctx).Do()
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
		return fmt.Errorf("event %s: %w", eventID, ErrEventNotFound)
	}
	return fmt.Errorf("failed to delete event %s: %w", eventID, err)
}
