package watering

import (
	"testing"

	"github.com/abelzeko/riego-bot/internal/entities"
)

func TestAdjustForHeavyRain(t *testing.T) {
	adj := AdjustForClimate(entities.Weather{PrecipitationMM: 20, MaxTemp: 40, WindKMH: 60})

	if !adj.Reset {
		t.Fatal("Expected heavy rain to reset the schedule")
	}
	if adj.OffsetDays != 0 {
		t.Errorf("Expected zero offset, got %v", adj.OffsetDays)
	}
	if want := "Lluvia intensa (20.0mm) - se considera como riego"; adj.Reason != want {
		t.Errorf("Expected reason %q, got %q", want, adj.Reason)
	}
}

func TestAdjustForClimateRules(t *testing.T) {
	tests := []struct {
		name    string
		weather entities.Weather
		offset  float64
		reason  string
	}{
		{
			name:    "calm day",
			weather: entities.Weather{MaxTemp: 22, MeanHumidity: 50},
			offset:  0,
			reason:  "Condiciones normales - sin ajuste",
		},
		{
			name:    "moderate rain and cool",
			weather: entities.Weather{MaxTemp: 12, MeanHumidity: 50, PrecipitationMM: 8},
			offset:  1.5,
			reason:  "Lluvia moderada (8.0mm) +1 día; Temperatura baja (12.0°C) +0.5 días",
		},
		{
			name:    "light rain",
			weather: entities.Weather{MaxTemp: 20, MeanHumidity: 50, PrecipitationMM: 3},
			offset:  0.5,
			reason:  "Lluvia leve (3.0mm) +0.5 días",
		},
		{
			name:    "strong wind only",
			weather: entities.Weather{MaxTemp: 20, MeanHumidity: 50, WindKMH: 30},
			offset:  -0.5,
			reason:  "Viento fuerte (30.0km/h) -0.5 días",
		},
		{
			name:    "very strong wind",
			weather: entities.Weather{MaxTemp: 20, MeanHumidity: 50, WindKMH: 45},
			offset:  -1,
			reason:  "Viento muy fuerte (45.0km/h) -1 día",
		},
		{
			name:    "humid",
			weather: entities.Weather{MaxTemp: 20, MeanHumidity: 85},
			offset:  0.5,
			reason:  "Humedad alta (85.0%) +0.5 días",
		},
		{
			name:    "hot dry windy clamped",
			weather: entities.Weather{MaxTemp: 38, MeanHumidity: 20, WindKMH: 50},
			offset:  -3,
			reason:  "Calor extremo (38.0°C) -2 días; Humedad baja (20.0%) -0.5 días; Viento muy fuerte (50.0km/h) -1 día",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adj := AdjustForClimate(tt.weather)
			if adj.Reset {
				t.Fatal("Expected no reset")
			}
			if adj.OffsetDays != tt.offset {
				t.Errorf("Expected offset %v, got %v", tt.offset, adj.OffsetDays)
			}
			if adj.Reason != tt.reason {
				t.Errorf("Expected reason %q, got %q", tt.reason, adj.Reason)
			}
		})
	}
}

func TestAdjustmentAlwaysClamped(t *testing.T) {
	for _, rain := range []float64{0, 1, 3, 6, 15} {
		for _, temp := range []float64{-5, 14, 20, 26, 31, 36} {
			for _, hum := range []float64{5, 50, 95} {
				for _, wind := range []float64{0, 30, 80} {
					adj := AdjustForClimate(entities.Weather{PrecipitationMM: rain, MaxTemp: temp, MeanHumidity: hum, WindKMH: wind})
					if adj.OffsetDays < -MaxClimateOffset || adj.OffsetDays > MaxClimateOffset {
						t.Fatalf("Offset %v out of range for rain=%v temp=%v hum=%v wind=%v", adj.OffsetDays, rain, temp, hum, wind)
					}
				}
			}
		}
	}
}

func TestRecomputeOutdoorReset(t *testing.T) {
	in := Input{PotLiters: 10, Size: entities.SizeMedium, LastWatered: day("2025-01-01")}
	sample := entities.ClimateSample{Date: day("2025-01-04"), Weather: entities.Weather{PrecipitationMM: 20}}

	res := RecomputeOutdoor(in, sample, day("2025-01-04"))

	if !res.Adjustment.Reset {
		t.Fatal("Expected a reset")
	}
	if !res.LastWatered.Equal(day("2025-01-04")) {
		t.Errorf("Expected last watered moved to sample date, got %s", res.LastWatered.Format(entities.DateLayout))
	}
	if !res.NextWatering.Equal(day("2025-01-09")) {
		t.Errorf("Expected next watering 2025-01-09, got %s", res.NextWatering.Format(entities.DateLayout))
	}
}

func TestRecomputeOutdoorOffset(t *testing.T) {
	in := Input{PotLiters: 10, Size: entities.SizeMedium, LastWatered: day("2025-01-01")} // base 5 days

	// Hot day: 5 - 1 = 4 days, 2 already elapsed
	hot := entities.ClimateSample{Date: day("2025-01-03"), Weather: entities.Weather{MaxTemp: 32, MeanHumidity: 50}}
	res := RecomputeOutdoor(in, hot, day("2025-01-03"))
	if res.DaysRemaining != 2 || !res.NextWatering.Equal(day("2025-01-05")) {
		t.Errorf("Expected 2 days remaining on 2025-01-05, got %d on %s", res.DaysRemaining, res.NextWatering.Format(entities.DateLayout))
	}

	// Light rain: 5.5 - 2 = 3.5, truncated to 3
	rain := entities.ClimateSample{Date: day("2025-01-03"), Weather: entities.Weather{MaxTemp: 20, MeanHumidity: 50, PrecipitationMM: 3}}
	res = RecomputeOutdoor(in, rain, day("2025-01-03"))
	if res.DaysRemaining != 3 {
		t.Errorf("Expected 3 days remaining, got %d", res.DaysRemaining)
	}

	// Long overdue never goes below today
	res = RecomputeOutdoor(in, hot, day("2025-01-20"))
	if res.DaysRemaining != 0 || !res.NextWatering.Equal(day("2025-01-20")) {
		t.Errorf("Expected watering today, got %d on %s", res.DaysRemaining, res.NextWatering.Format(entities.DateLayout))
	}
	if !res.LastWatered.Equal(day("2025-01-01")) {
		t.Errorf("Expected last watered unchanged, got %s", res.LastWatered.Format(entities.DateLayout))
	}
}
