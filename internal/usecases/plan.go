package usecases

import (
	"fmt"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
	"github.com/abelzeko/riego-bot/internal/watering"
)

// PlantPlan is the schedule decided for a plant before it is synced
type PlantPlan struct {
	Computation   watering.Computation
	NextWatering  time.Time // Never before today
	DaysRemaining int
	Reason        string
	Reset         bool
	LastWatered   time.Time
}

// PlanPlant decides the next watering of a plant. Indoor plants use the owner's
// indoor climate. Outdoor plants use sample when it is not older than the last
// watering, otherwise only the plant attributes.
func PlanPlant(plant entities.Plant, owner entities.Owner, sample *entities.ClimateSample, today time.Time) PlantPlan {
	in := watering.InputFromPlant(plant)

	if !plant.IsOutdoor() {
		in = in.WithAmbient(owner.IndoorTemp, owner.IndoorHumidity)
		return fromComputation(watering.Calculate(in, today), indoorReason(owner), plant, today)
	}

	if sample == nil || sample.Date.Before(entities.Day(plant.LastWatered)) {
		return fromComputation(watering.Calculate(in, today), "Sin datos de clima recientes", plant, today)
	}

	res := watering.RecomputeOutdoor(in, *sample, today)
	plan := PlantPlan{
		Computation:   res.Base,
		NextWatering:  res.NextWatering,
		DaysRemaining: res.DaysRemaining,
		Reason:        res.Adjustment.Reason,
		Reset:         res.Adjustment.Reset,
		LastWatered:   entities.Day(plant.LastWatered),
	}
	if res.Adjustment.Reset && res.LastWatered.After(plan.LastWatered) {
		plan.LastWatered = res.LastWatered
	}
	return plan
}

func fromComputation(c watering.Computation, reason string, plant entities.Plant, today time.Time) PlantPlan {
	plan := PlantPlan{
		Computation:   c,
		NextWatering:  c.NextWatering,
		DaysRemaining: c.DaysRemaining,
		Reason:        reason,
		LastWatered:   entities.Day(plant.LastWatered),
	}
	if c.Status == watering.StatusOverdue {
		plan.NextWatering = entities.Day(today)
		plan.DaysRemaining = 0
		plan.Reason = fmt.Sprintf("%s - riego atrasado %d día(s)", reason, c.OverdueDays)
	}
	return plan
}

func indoorReason(owner entities.Owner) string {
	switch {
	case owner.IndoorTemp != nil && owner.IndoorHumidity != nil:
		return fmt.Sprintf("Interior: %.1f°C y %.0f%% de humedad", *owner.IndoorTemp, *owner.IndoorHumidity)
	case owner.IndoorTemp != nil:
		return fmt.Sprintf("Interior: %.1f°C", *owner.IndoorTemp)
	case owner.IndoorHumidity != nil:
		return fmt.Sprintf("Interior: %.0f%% de humedad", *owner.IndoorHumidity)
	}
	return "Calculado según maceta y tamaño"
}
