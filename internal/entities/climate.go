package entities

import "time"

// Location is the geographic point used for an owner's outdoor plants
type Location struct {
	ID               int64
	OwnerID          int64
	Name             string
	Latitude         float64
	Longitude        float64
	Active           bool
	LastClimateFetch time.Time // Zero when weather was never fetched
}

// Weather is a single reading returned by a weather provider
type Weather struct {
	MaxTemp         float64 // °C
	MinTemp         float64 // °C
	MeanHumidity    float64 // %
	PrecipitationMM float64
	WindKMH         float64
	Source          string
}

// ClimateSample is the stored daily weather of a location
type ClimateSample struct {
	ID         int64
	LocationID int64
	Date       time.Time
	Weather
	Processed bool
	CreatedAt time.Time
}
