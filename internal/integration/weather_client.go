package integration

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
)

const defaultWeatherURL = "https://weather.googleapis.com/v1/currentConditions:lookup"

// WeatherClient reads current conditions from the Google Weather API
type WeatherClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewWeatherClient creates a weather client. An empty baseURL uses the public endpoint.
func NewWeatherClient(baseURL, apiKey string, timeout time.Duration) *WeatherClient {
	if baseURL == "" {
		baseURL = defaultWeatherURL
	}
	return &WeatherClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type quantity struct {
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

type temperature struct {
	Degrees *float64 `json:"degrees"`
	Unit    string   `json:"unit"`
}

type currentConditionsResponse struct {
	Temperature      temperature `json:"temperature"`
	RelativeHumidity *float64    `json:"relativeHumidity"`
	Precipitation    struct {
		QPF quantity `json:"qpf"`
	} `json:"precipitation"`
	Wind struct {
		Speed struct {
			Value float64 `json:"value"`
			Unit  string  `json:"unit"`
		} `json:"speed"`
	} `json:"wind"`
	History *struct {
		MaxTemperature temperature `json:"maxTemperature"`
		MinTemperature temperature `json:"minTemperature"`
		QPF            *quantity   `json:"qpf"`
	} `json:"currentConditionsHistory"`
}

// CurrentConditions implements WeatherProvider
func (c *WeatherClient) CurrentConditions(ctx context.Context, lat, lon float64) (*entities.Weather, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("location.latitude", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Set("location.longitude", strconv.FormatFloat(lon, 'f', 6, 64))
	params.Set("unitsSystem", "METRIC")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, weatherError("failed to build request: %v", err)
	}

	log.Printf("Requesting current conditions for (%.4f, %.4f)", lat, lon)
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, weatherError("failed to fetch current conditions: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, weatherError("unexpected status code: %d %s", res.StatusCode, res.Status)
	}

	var body currentConditionsResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, weatherError("failed to decode current conditions: %v", err)
	}
	return body.toWeather()
}

func (r currentConditionsResponse) toWeather() (*entities.Weather, error) {
	if r.Temperature.Degrees == nil {
		return nil, weatherError("response has no temperature")
	}
	current := *r.Temperature.Degrees

	w := &entities.Weather{
		MaxTemp:         current,
		MinTemp:         current - 5, // Current conditions carry no daily minimum
		MeanHumidity:    50,
		PrecipitationMM: r.Precipitation.QPF.Quantity,
		WindKMH:         r.Wind.Speed.Value,
		Source:          "google-weather",
	}
	if r.RelativeHumidity != nil {
		w.MeanHumidity = *r.RelativeHumidity
	}
	if r.Wind.Speed.Unit == "METERS_PER_SECOND" {
		w.WindKMH = r.Wind.Speed.Value * 3.6
	}

	if h := r.History; h != nil {
		if h.MaxTemperature.Degrees != nil {
			w.MaxTemp = *h.MaxTemperature.Degrees
		}
		if h.MinTemperature.Degrees != nil {
			w.MinTemp = *h.MinTemperature.Degrees
		}
		if h.QPF != nil {
			w.PrecipitationMM = h.QPF.Quantity
		}
	}

	if w.PrecipitationMM < 0 || w.WindKMH < 0 || w.MeanHumidity < 0 || w.MeanHumidity > 100 {
		return nil, weatherError("implausible reading %+v", *w)
	}
	return w, nil
}
