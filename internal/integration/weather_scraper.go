package integration

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/abelzeko/riego-bot/internal/entities"
)

// maxStationDistanceKM limits how far a station may be from the requested point
const maxStationDistanceKM = 150.0

// maxObservationAge rejects tables that have not been refreshed recently
const maxObservationAge = 36 * time.Hour

// StationReading is one row of the observations table
type StationReading struct {
	Station   string
	Latitude  float64
	Longitude float64
	entities.Weather
}

// WeatherScraper reads station observations from an HTML table.
// Expected columns: station, latitude, longitude, max °C, min °C, humidity %,
// precipitation mm, wind km/h.
type WeatherScraper struct {
	sourceURL  string
	httpClient *http.Client
	now        func() time.Time
}

// NewWeatherScraper creates a scraper for the given observations page
func NewWeatherScraper(url string, timeout time.Duration) *WeatherScraper {
	return &WeatherScraper{
		sourceURL:  url,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// CurrentConditions implements WeatherProvider using the nearest station
func (ws *WeatherScraper) CurrentConditions(ctx context.Context, lat, lon float64) (*entities.Weather, error) {
	readings, observedAt, err := ws.FetchStations(ctx)
	if err != nil {
		return nil, err
	}
	if !observedAt.IsZero() && ws.now().Sub(observedAt) > maxObservationAge {
		return nil, weatherError("observations are stale (%s)", observedAt.Format(time.RFC3339))
	}

	nearest, dist := NearestStation(readings, lat, lon)
	if nearest == nil || dist > maxStationDistanceKM {
		return nil, weatherError("no station within %.0f km of (%.4f, %.4f)", maxStationDistanceKM, lat, lon)
	}

	log.Printf("Using station %s at %.1f km for (%.4f, %.4f)", nearest.Station, dist, lat, lon)
	w := nearest.Weather
	w.Source = "station:" + nearest.Station
	return &w, nil
}

// FetchStations downloads and parses the observations table
func (ws *WeatherScraper) FetchStations(ctx context.Context) ([]StationReading, time.Time, error) {
	if ws.sourceURL == "" {
		return nil, time.Time{}, weatherError("no observations page configured")
	}

	log.Printf("Sending HTTP request to weather observations page")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ws.sourceURL, nil)
	if err != nil {
		return nil, time.Time{}, weatherError("failed to build request: %v", err)
	}
	res, err := ws.httpClient.Do(req)
	if err != nil {
		log.Printf("Error fetching observations: %v", err)
		return nil, time.Time{}, weatherError("failed to fetch the webpage: %v", err)
	}
	defer res.Body.Close()

	// Check for successful response
	if res.StatusCode != http.StatusOK {
		log.Printf("Received unexpected status code: %d %s", res.StatusCode, res.Status)
		return nil, time.Time{}, weatherError("unexpected status code: %d %s", res.StatusCode, res.Status)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, time.Time{}, weatherError("failed to parse the webpage: %v", err)
	}

	observedAt := ExtractObservationTime(doc)

	var readings []StationReading
	rowCount := 0
	doc.Find("table tbody tr").Each(func(index int, row *goquery.Selection) {
		rowCount++
		cells := row.Find("td")
		if cells.Length() < 8 {
			return
		}

		values := make([]float64, 7)
		for i := range values {
			v, err := parseNumber(cells.Eq(i + 1).Text())
			if err != nil {
				log.Printf("Warning: skipping row %d with invalid value %q", index, strings.TrimSpace(cells.Eq(i+1).Text()))
				return
			}
			values[i] = v
		}

		readings = append(readings, StationReading{
			Station:   strings.TrimSpace(cells.Eq(0).Text()),
			Latitude:  values[0],
			Longitude: values[1],
			Weather: entities.Weather{
				MaxTemp:         values[2],
				MinTemp:         values[3],
				MeanHumidity:    values[4],
				PrecipitationMM: values[5],
				WindKMH:         values[6],
			},
		})
	})

	log.Printf("Parsed %d rows, extracted %d station readings", rowCount, len(readings))
	if len(readings) == 0 {
		return nil, observedAt, weatherError("observations table is empty")
	}
	return readings, observedAt, nil
}

var observationTimeRe = regexp.MustCompile(`(\d{2}/\d{2}/\d{4})\s+(\d{1,2}:\d{2})`)

// ExtractObservationTime finds the "Actualizado: dd/mm/yyyy hh:mm" header of the page.
// Times are published in UTC. A zero time is returned when none is found.
func ExtractObservationTime(doc *goquery.Document) time.Time {
	var found time.Time
	doc.Find("h1, h2, h3, h4, p, span, div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if !strings.Contains(strings.ToLower(text), "actualizado") {
			return true
		}
		m := observationTimeRe.FindStringSubmatch(text)
		if m == nil {
			return true
		}
		t, err := time.ParseInLocation("02/01/2006 15:04", m[1]+" "+m[2], time.UTC)
		if err != nil {
			log.Printf("Warning: failed to parse observation time %q: %v", m[0], err)
			return true
		}
		found = t
		return false
	})
	return found
}

// NearestStation returns the reading closest to (lat, lon) and its distance in km
func NearestStation(readings []StationReading, lat, lon float64) (*StationReading, float64) {
	var best *StationReading
	bestDist := math.Inf(1)
	for i := range readings {
		d := haversineKM(lat, lon, readings[i].Latitude, readings[i].Longitude)
		if d < bestDist {
			best, bestDist = &readings[i], d
		}
	}
	return best, bestDist
}

func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKM = 6371.0
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}

// parseNumber accepts decimal commas and empty cells as zero
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || s == "S/D" {
		return 0, nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return v, nil
}
