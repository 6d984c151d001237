package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrGeocodeNotFound is returned when a place name resolves to nothing
var ErrGeocodeNotFound = errors.New("place not found")

const defaultGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Place is a resolved place name
type Place struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Geocoder resolves place names with the Google Geocoding API
type Geocoder struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewGeocoder creates a geocoder. An empty baseURL uses the public endpoint.
func NewGeocoder(baseURL, apiKey string, timeout time.Duration) *Geocoder {
	if baseURL == "" {
		baseURL = defaultGeocodeURL
	}
	return &Geocoder{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves a free-text place name
func (g *Geocoder) Geocode(ctx context.Context, query string) (*Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrGeocodeNotFound
	}

	params := url.Values{}
	params.Set("address", query)
	params.Set("key", g.apiKey)
	params.Set("language", "es")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geocode request: %w", err)
	}

	log.Printf("Geocoding %q", query)
	res, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call geocoding API: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected geocoding status code: %d %s", res.StatusCode, res.Status)
	}

	var body geocodeResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode geocoding response: %w", err)
	}

	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, fmt.Errorf("%w: %s", ErrGeocodeNotFound, query)
	default:
		return nil, fmt.Errorf("geocoding failed with status %s: %s", body.Status, body.ErrorMessage)
	}
	if len(body.Results) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrGeocodeNotFound, query)
	}

	first := body.Results[0]
	return &Place{
		Name:      first.FormattedAddress,
		Latitude:  first.Geometry.Location.Lat,
		Longitude: first.Geometry.Location.Lng,
	}, nil
}
