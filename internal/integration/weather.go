// Package integration handles external service interactions
package integration

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/abelzeko/riego-bot/internal/entities"
)

// ErrWeatherUnavailable is returned for any weather provider failure
var ErrWeatherUnavailable = errors.New("weather unavailable")

// WeatherProvider returns the current weather at a point
type WeatherProvider interface {
	CurrentConditions(ctx context.Context, lat, lon float64) (*entities.Weather, error)
}

// FallbackWeather asks each provider in order until one answers
type FallbackWeather struct {
	providers []WeatherProvider
}

// NewFallbackWeather chains providers, skipping nil ones
func NewFallbackWeather(providers ...WeatherProvider) *FallbackWeather {
	fw := &FallbackWeather{}
	for _, p := range providers {
		if p != nil {
			fw.providers = append(fw.providers, p)
		}
	}
	return fw
}

// CurrentConditions implements WeatherProvider
func (f *FallbackWeather) CurrentConditions(ctx context.Context, lat, lon float64) (*entities.Weather, error) {
	var errs []error
	for i, p := range f.providers {
		w, err := p.CurrentConditions(ctx, lat, lon)
		if err == nil {
			return w, nil
		}
		log.Printf("Warning: weather provider %d failed for (%.4f, %.4f): %v", i, lat, lon, err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no providers configured", ErrWeatherUnavailable)
	}
	return nil, fmt.Errorf("%w: %w", ErrWeatherUnavailable, errors.Join(errs...))
}

func weatherError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrWeatherUnavailable, fmt.Sprintf(format, args...))
}
