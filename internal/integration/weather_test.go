package integration

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
)

// mockServer creates a test server that serves a fixed response
func mockServer(status int, contentType, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
}

func TestWeatherClientCurrentConditions(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"temperature": {"degrees": 24.5, "unit": "CELSIUS"},
			"relativeHumidity": 35,
			"precipitation": {"qpf": {"quantity": 1.2, "unit": "MILLIMETERS"}},
			"wind": {"speed": {"value": 5, "unit": "METERS_PER_SECOND"}},
			"currentConditionsHistory": {
				"maxTemperature": {"degrees": 31.0},
				"minTemperature": {"degrees": 17.0},
				"qpf": {"quantity": 6.5}
			}
		}`)
	}))
	defer server.Close()

	client := NewWeatherClient(server.URL, "test-key", 5*time.Second)
	w, err := client.CurrentConditions(context.Background(), -31.42, -64.18)
	if err != nil {
		t.Fatalf("Failed to fetch conditions: %v", err)
	}

	if w.MaxTemp != 31 || w.MinTemp != 17 || w.MeanHumidity != 35 || w.PrecipitationMM != 6.5 {
		t.Errorf("Unexpected weather: %+v", w)
	}
	if math.Abs(w.WindKMH-18) > 1e-9 {
		t.Errorf("Expected wind converted to 18 km/h, got %v", w.WindKMH)
	}
	if gotQuery == "" {
		t.Error("Expected query parameters to be sent")
	}
}

func TestWeatherClientWithoutHistory(t *testing.T) {
	server := mockServer(http.StatusOK, "application/json", `{
		"temperature": {"degrees": 20},
		"wind": {"speed": {"value": 12, "unit": "KILOMETERS_PER_HOUR"}}
	}`)
	defer server.Close()

	w, err := NewWeatherClient(server.URL, "k", time.Second).CurrentConditions(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("Failed to fetch conditions: %v", err)
	}
	if w.MaxTemp != 20 || w.MinTemp != 15 || w.MeanHumidity != 50 || w.WindKMH != 12 {
		t.Errorf("Unexpected weather: %+v", w)
	}
}

func TestWeatherClientFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{}`},
		{"malformed", http.StatusOK, `{"temperature": `},
		{"missing temperature", http.StatusOK, `{"relativeHumidity": 40}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := mockServer(tt.status, "application/json", tt.body)
			defer server.Close()

			_, err := NewWeatherClient(server.URL, "k", time.Second).CurrentConditions(context.Background(), 0, 0)
			if !errors.Is(err, ErrWeatherUnavailable) {
				t.Errorf("Expected ErrWeatherUnavailable, got %v", err)
			}
		})
	}
}

const observationsHTML = `
<!DOCTYPE html>
<html>
<body>
	<h4>Observaciones - Actualizado: 01/02/2025 06:00 UTC</h4>
	<table>
		<thead><tr><th>Estación</th><th>Lat</th><th>Lon</th><th>Máx</th><th>Mín</th><th>Hum</th><th>Pp</th><th>Viento</th></tr></thead>
		<tbody>
			<tr><td>Córdoba Aero</td><td>-31,31</td><td>-64,21</td><td>33,5</td><td>19,0</td><td>40</td><td>0</td><td>22</td></tr>
			<tr><td>Mendoza Aero</td><td>-32,83</td><td>-68,79</td><td>35,0</td><td>20,0</td><td>25</td><td>-</td><td>10</td></tr>
			<tr><td>Roto</td><td>abc</td><td>-64</td><td>1</td><td>1</td><td>1</td><td>1</td><td>1</td></tr>
		</tbody>
	</table>
</body>
</html>`

func TestWeatherScraperNearestStation(t *testing.T) {
	server := mockServer(http.StatusOK, "text/html", observationsHTML)
	defer server.Close()

	scraper := NewWeatherScraper(server.URL, 5*time.Second)
	scraper.now = func() time.Time { return time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC) }

	readings, observedAt, err := scraper.FetchStations(context.Background())
	if err != nil {
		t.Fatalf("Failed to fetch stations: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("Expected 2 valid readings, got %d", len(readings))
	}
	if !observedAt.Equal(time.Date(2025, 2, 1, 6, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected observation time %v", observedAt)
	}

	w, err := scraper.CurrentConditions(context.Background(), -31.42, -64.18)
	if err != nil {
		t.Fatalf("Failed to get conditions: %v", err)
	}
	if w.MaxTemp != 33.5 || w.MeanHumidity != 40 || w.Source != "station:Córdoba Aero" {
		t.Errorf("Expected Córdoba reading, got %+v", w)
	}

	// Far away from every station
	if _, err := scraper.CurrentConditions(context.Background(), 40.4, -3.7); !errors.Is(err, ErrWeatherUnavailable) {
		t.Errorf("Expected ErrWeatherUnavailable far from stations, got %v", err)
	}
}

func TestWeatherScraperStaleTable(t *testing.T) {
	server := mockServer(http.StatusOK, "text/html", observationsHTML)
	defer server.Close()

	scraper := NewWeatherScraper(server.URL, time.Second)
	scraper.now = func() time.Time { return time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC) }

	if _, err := scraper.CurrentConditions(context.Background(), -31.42, -64.18); !errors.Is(err, ErrWeatherUnavailable) {
		t.Errorf("Expected stale observations to be rejected, got %v", err)
	}
}

type stubWeather struct {
	w   *entities.Weather
	err error
}

func (s stubWeather) CurrentConditions(context.Context, float64, float64) (*entities.Weather, error) {
	return s.w, s.err
}

func TestFallbackWeather(t *testing.T) {
	fallback := NewFallbackWeather(
		stubWeather{err: errors.New("boom")},
		nil,
		stubWeather{w: &entities.Weather{MaxTemp: 21}},
	)
	w, err := fallback.CurrentConditions(context.Background(), 0, 0)
	if err != nil || w.MaxTemp != 21 {
		t.Fatalf("Expected second provider to answer, got %+v %v", w, err)
	}

	_, err = NewFallbackWeather(stubWeather{err: errors.New("boom")}).CurrentConditions(context.Background(), 0, 0)
	if !errors.Is(err, ErrWeatherUnavailable) {
		t.Errorf("Expected ErrWeatherUnavailable, got %v", err)
	}
}
