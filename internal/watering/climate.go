package watering

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
)

const (
	// MaxClimateOffset bounds the weather adjustment in both directions
	MaxClimateOffset = 3.0

	heavyRainMM = 15.0

	noAdjustmentReason = "Condiciones normales - sin ajuste"
)

// Adjustment is the effect of one day of weather on an outdoor plant
type Adjustment struct {
	OffsetDays float64
	Reset      bool // Heavy rain counts as a watering
	Reason     string
}

// AdjustForClimate maps a weather reading to a day offset.
// A positive offset delays watering, a negative one brings it forward.
func AdjustForClimate(w entities.Weather) Adjustment {
	if w.PrecipitationMM > heavyRainMM {
		return Adjustment{
			Reset:  true,
			Reason: fmt.Sprintf("Lluvia intensa (%.1fmm) - se considera como riego", w.PrecipitationMM),
		}
	}

	var offset float64
	var reasons []string
	add := func(days float64, format string, value float64) {
		offset += days
		reasons = append(reasons, fmt.Sprintf(format, value))
	}

	switch {
	case w.PrecipitationMM > 5:
		add(1, "Lluvia moderada (%.1fmm) +1 día", w.PrecipitationMM)
	case w.PrecipitationMM > 2:
		add(0.5, "Lluvia leve (%.1fmm) +0.5 días", w.PrecipitationMM)
	}

	switch {
	case w.MaxTemp > 35:
		add(-2, "Calor extremo (%.1f°C) -2 días", w.MaxTemp)
	case w.MaxTemp > 30:
		add(-1, "Calor alto (%.1f°C) -1 día", w.MaxTemp)
	case w.MaxTemp > 25:
		add(-0.5, "Temperatura alta (%.1f°C) -0.5 días", w.MaxTemp)
	case w.MaxTemp < 15:
		add(0.5, "Temperatura baja (%.1f°C) +0.5 días", w.MaxTemp)
	}

	switch {
	case w.MeanHumidity < 30:
		add(-0.5, "Humedad baja (%.1f%%) -0.5 días", w.MeanHumidity)
	case w.MeanHumidity > 80:
		add(0.5, "Humedad alta (%.1f%%) +0.5 días", w.MeanHumidity)
	}

	switch {
	case w.WindKMH > 40:
		add(-1, "Viento muy fuerte (%.1fkm/h) -1 día", w.WindKMH)
	case w.WindKMH > 25:
		add(-0.5, "Viento fuerte (%.1fkm/h) -0.5 días", w.WindKMH)
	}

	adj := Adjustment{
		OffsetDays: math.Max(-MaxClimateOffset, math.Min(MaxClimateOffset, offset)),
		Reason:     noAdjustmentReason,
	}
	if len(reasons) > 0 {
		adj.Reason = strings.Join(reasons, "; ")
	}
	return adj
}

// OutdoorResult is the recomputed schedule of an outdoor plant
type OutdoorResult struct {
	Base          Computation // Calculator output the adjustment was applied to
	Adjustment    Adjustment
	NextWatering  time.Time
	DaysRemaining int
	LastWatered   time.Time // Changed only when the adjustment is a reset
}

// RecomputeOutdoor applies a climate sample to an outdoor plant.
// On heavy rain the sample date becomes the last watering and the plant is
// computed from scratch. Otherwise the base interval is shifted by the offset.
func RecomputeOutdoor(in Input, sample entities.ClimateSample, today time.Time) OutdoorResult {
	adj := AdjustForClimate(sample.Weather)

	if adj.Reset {
		in.LastWatered = entities.Day(sample.Date)
		base := Calculate(in, today)
		return OutdoorResult{
			Base:          base,
			Adjustment:    adj,
			NextWatering:  base.NextWatering,
			DaysRemaining: base.DaysRemaining,
			LastWatered:   in.LastWatered,
		}
	}

	base := Calculate(in, today)
	adjusted := math.Max(1, float64(base.FrequencyDays)+adj.OffsetDays)
	since := float64(entities.DaysBetween(in.LastWatered, today))
	remaining := max(0, int(math.Trunc(adjusted-since)))

	return OutdoorResult{
		Base:          base,
		Adjustment:    adj,
		NextWatering:  entities.Day(today).AddDate(0, 0, remaining),
		DaysRemaining: remaining,
		LastWatered:   entities.Day(in.LastWatered),
	}
}
