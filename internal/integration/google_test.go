package integration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

func TestGoogleCalendarCreateAndDelete(t *testing.T) {
	var inserted map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/calendars/primary/events"):
			body, _ := io.ReadAll(r.Body)
			json.Unmarshal(body, &inserted)
			io.WriteString(w, `{"id": "evt-123"}`)
		case r.Method == http.MethodDelete && strings.HasSuffix(r.URL.Path, "/events/live"):
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodDelete && strings.HasSuffix(r.URL.Path, "/events/gone"):
			w.WriteHeader(http.StatusGone)
			io.WriteString(w, `{"error": {"code": 410, "message": "Resource has been deleted"}}`)
		case r.Method == http.MethodDelete && strings.HasSuffix(r.URL.Path, "/events/missing"):
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error": {"code": 404, "message": "Not Found"}}`)
		default:
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"error": {"code": 403, "message": "Forbidden"}}`)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	cal, err := NewGoogleCalendar(ctx, option.WithEndpoint(server.URL+"/"), option.WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("Failed to create calendar client: %v", err)
	}

	start := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	id, err := cal.CreateEvent(ctx, "primary", CalendarEvent{
		Summary:         "Regar Gelato",
		Start:           start,
		End:             start.Add(time.Hour),
		TimeZone:        "America/Argentina/Cordoba",
		ReminderMinutes: 60,
	})
	if err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}
	if id != "evt-123" {
		t.Errorf("Expected evt-123, got %s", id)
	}
	if inserted["summary"] != "Regar Gelato" {
		t.Errorf("Unexpected summary in request: %v", inserted["summary"])
	}
	reminders, _ := inserted["reminders"].(map[string]any)
	if reminders == nil || reminders["useDefault"] != false {
		t.Errorf("Expected explicit reminders, got %v", inserted["reminders"])
	}

	if err := cal.DeleteEvent(ctx, "primary", "live"); err != nil {
		t.Errorf("Expected delete to succeed, got %v", err)
	}
	for _, id := range []string{"gone", "missing"} {
		if err := cal.DeleteEvent(ctx, "primary", id); !errors.Is(err, ErrEventNotFound) {
			t.Errorf("Expected ErrEventNotFound for %s, got %v", id, err)
		}
	}
	if err := cal.DeleteEvent(ctx, "primary", "forbidden"); err == nil || errors.Is(err, ErrEventNotFound) {
		t.Errorf("Expected a plain error for forbidden delete, got %v", err)
	}
}

func newTokenServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGoogleOAuthRefresh(t *testing.T) {
	server := newTokenServer(t, http.StatusOK, `{"access_token": "new-access", "token_type": "Bearer", "expires_in": 3600}`)
	auth := NewGoogleOAuthWithEndpoint("id", "secret", "http://localhost/cb", oauth2.Endpoint{
		TokenURL:  server.URL,
		AuthStyle: oauth2.AuthStyleInParams,
	})

	tok, err := auth.Refresh(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("Failed to refresh: %v", err)
	}
	if tok.AccessToken != "new-access" {
		t.Errorf("Expected new-access, got %s", tok.AccessToken)
	}
	if tok.RefreshToken != "" {
		t.Errorf("Expected no rotated refresh token, got %s", tok.RefreshToken)
	}
	if tok.Expiry.Before(time.Now().Add(50 * time.Minute)) {
		t.Errorf("Expected expiry about an hour ahead, got %v", tok.Expiry)
	}
}

func TestGoogleOAuthInvalidGrant(t *testing.T) {
	server := newTokenServer(t, http.StatusBadRequest, `{"error": "invalid_grant", "error_description": "Token has been expired or revoked."}`)
	auth := NewGoogleOAuthWithEndpoint("id", "secret", "http://localhost/cb", oauth2.Endpoint{
		TokenURL:  server.URL,
		AuthStyle: oauth2.AuthStyleInParams,
	})

	_, err := auth.Refresh(context.Background(), "revoked")
	if !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("Expected ErrInvalidGrant, got %v", err)
	}

	url := auth.AuthCodeURL("state-1")
	if !strings.Contains(url, "access_type=offline") || !strings.Contains(url, "prompt=consent") || !strings.Contains(url, "state=state-1") {
		t.Errorf("Unexpected auth URL %s", url)
	}
}

func TestGeocoder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("address") == "nowhere" {
			io.WriteString(w, `{"status": "ZERO_RESULTS", "results": []}`)
			return
		}
		io.WriteString(w, `{"status": "OK", "results": [{"formatted_address": "Córdoba, Argentina", "geometry": {"location": {"lat": -31.42, "lng": -64.18}}}]}`)
	}))
	defer server.Close()

	g := NewGeocoder(server.URL, "key", time.Second)
	place, err := g.Geocode(context.Background(), "Cordoba")
	if err != nil {
		t.Fatalf("Failed to geocode: %v", err)
	}
	if place.Name != "Córdoba, Argentina" || place.Latitude != -31.42 || place.Longitude != -64.18 {
		t.Errorf("Unexpected place %+v", place)
	}

	if _, err := g.Geocode(context.Background(), "nowhere"); !errors.Is(err, ErrGeocodeNotFound) {
		t.Errorf("Expected ErrGeocodeNotFound, got %v", err)
	}
}
