// Package watering computes watering schedules from plant attributes and weather
package watering

import (
	"fmt"
	"math"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
)

const (
	// MinPotLiters is the smallest pot volume used in computations
	MinPotLiters = 0.1
	// MaxVolumeML caps the recommended amount of water
	MaxVolumeML = 5000
	// MinFrequencyDays and MaxFrequencyDays bound the watering interval
	MinFrequencyDays = 2
	MaxFrequencyDays = 7
)

// Status is the watering urgency of a plant
type Status int

const (
	StatusNotNeeded Status = iota
	StatusSoon
	StatusDueToday
	StatusOverdue
)

func (s Status) String() string {
	switch s {
	case StatusNotNeeded:
		return "not_needed"
	case StatusSoon:
		return "soon"
	case StatusDueToday:
		return "due_today"
	case StatusOverdue:
		return "overdue"
	}
	return "unknown"
}

// Input carries everything the calculator looks at
type Input struct {
	PotLiters   float64
	Size        entities.SizeCategory
	Flowering   bool
	LastWatered time.Time
	Temperature *float64 // Ambient °C, nil when unknown
	Humidity    *float64 // Ambient %, nil when unknown
}

// InputFromPlant builds calculator input from a stored plant
func InputFromPlant(p entities.Plant) Input {
	return Input{
		PotLiters:   p.PotLiters,
		Size:        p.Size,
		Flowering:   p.Flowering,
		LastWatered: p.LastWatered,
	}
}

// WithAmbient returns a copy of in with the ambient readings set
func (in Input) WithAmbient(temp, humidity *float64) Input {
	in.Temperature = temp
	in.Humidity = humidity
	return in
}

// Computation is the derived watering schedule of a plant
type Computation struct {
	RecommendedML int
	FrequencyDays int
	NextWatering  time.Time
	DaysRemaining int
	Status        Status
	OverdueDays   int
	Advice        string
}

// StatusText renders the status for people
func (c Computation) StatusText() string {
	switch c.Status {
	case StatusNotNeeded:
		return "No necesita agua"
	case StatusSoon:
		return "Regar mañana"
	case StatusDueToday:
		return "Regar hoy"
	case StatusOverdue:
		return fmt.Sprintf("Atrasado %d día(s)", c.OverdueDays)
	}
	return ""
}

const (
	bloomAdvice = "Floración: Base Bloom ~1 ml/L + Cal-Mag ~0.5 ml/L (arrancar bajo). Ajustar pH según sustrato."
	growAdvice  = "Vegetación: Base Grow ~1 ml/L + Cal-Mag ~0.5 ml/L (arrancar bajo). Ajustar pH según sustrato."
)

// Calculate derives the watering schedule for in as of today.
// It is pure: the same input and day always give the same result.
func Calculate(in Input, today time.Time) Computation {
	liters := math.Max(in.PotLiters, MinPotLiters)

	freq := int(math.RoundToEven(frequencySum(in, liters)))
	freq = min(max(freq, MinFrequencyDays), MaxFrequencyDays)

	next := entities.Day(in.LastWatered).AddDate(0, 0, freq)
	remaining := entities.DaysBetween(today, next)

	c := Computation{
		RecommendedML: recommendedVolume(liters, in.Flowering),
		FrequencyDays: freq,
		NextWatering:  next,
		DaysRemaining: remaining,
		Advice:        growAdvice,
	}
	if in.Flowering {
		c.Advice = bloomAdvice
	}

	switch {
	case remaining > 1:
		c.Status = StatusNotNeeded
	case remaining == 1:
		c.Status = StatusSoon
	case remaining == 0:
		c.Status = StatusDueToday
	default:
		c.Status = StatusOverdue
		c.OverdueDays = -remaining
	}
	return c
}

func recommendedVolume(liters float64, flowering bool) int {
	pct := 0.15
	if flowering {
		pct = 0.20
	}
	return min(int(liters*1000*pct), MaxVolumeML)
}

// frequencySum returns the unrounded interval in days
func frequencySum(in Input, liters float64) float64 {
	base := 2.0
	if liters > 0 {
		base = liters / 2
	}

	sum := base + sizeOffset(in.Size)
	if in.Flowering {
		sum--
	}
	// Pot too small for a large plant dries fast, oversized pot for a small one stays wet
	if in.Size == entities.SizeLarge && liters < 10 {
		sum--
	} else if in.Size == entities.SizeSmall && liters > 15 {
		sum += 0.5
	}
	if in.Temperature != nil {
		sum += temperatureOffset(*in.Temperature)
	}
	if in.Humidity != nil {
		sum += humidityOffset(*in.Humidity)
	}
	return sum
}

func sizeOffset(s entities.SizeCategory) float64 {
	switch s {
	case entities.SizeSmall:
		return -1
	case entities.SizeLarge:
		return 1
	}
	return 0
}

func temperatureOffset(t float64) float64 {
	switch {
	case t > 30:
		return -2
	case t > 28:
		return -1
	case t > 25:
		return -0.5
	case t < 12:
		return 2
	case t < 15:
		return 1
	case t < 18:
		return 0.5
	}
	return 0
}

func humidityOffset(h float64) float64 {
	switch {
	case h < 30:
		return -1
	case h < 40:
		return -0.5
	case h > 70:
		return 1
	case h > 60:
		return 0.5
	}
	return 0
}
