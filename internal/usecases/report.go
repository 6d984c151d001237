package usecases

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
)

// Batch triggers
const (
	TriggerDaily    = "daily"
	TriggerManual   = "manual"
	TriggerBackfill = "backfill"
	TriggerMutation = "mutation"
)

// PlantReport is the outcome of recomputing and syncing one plant
type PlantReport struct {
	PlantID       int64
	OwnerID       int64
	Name          string
	NextWatering  time.Time
	RecommendedML int
	Reason        string
	Reset         bool
	Sync          SyncResult
}

// LocationState is the terminal state of a location in a batch
type LocationState int

const (
	LocationProcessed LocationState = iota
	LocationSkipped
)

func (s LocationState) String() string {
	if s == LocationSkipped {
		return "skipped"
	}
	return "processed"
}

// LocationReport is the outcome of one location in a batch
type LocationReport struct {
	LocationID int64
	OwnerID    int64
	Name       string
	State      LocationState
	Err        error
	SampleID   int64
	Weather    *entities.Weather
	Plants     []PlantReport
}

// BatchReport describes one recalculation run
type BatchReport struct {
	RunID      string
	Trigger    string
	StartedAt  time.Time
	FinishedAt time.Time
	Locations  []LocationReport
	Plants     []PlantReport // Plants handled outside a location, e.g. backfill
}

// Counts aggregates a batch report
type Counts struct {
	Locations        int
	LocationsSkipped int
	Synced           int
	Skipped          int
	Failed           int
}

// AllPlants returns every plant report of the batch
func (r *BatchReport) AllPlants() []PlantReport {
	all := append([]PlantReport(nil), r.Plants...)
	for _, l := range r.Locations {
		all = append(all, l.Plants...)
	}
	return all
}

// Counts tallies locations and plant outcomes
func (r *BatchReport) Counts() Counts {
	c := Counts{Locations: len(r.Locations)}
	for _, l := range r.Locations {
		if l.State == LocationSkipped {
			c.LocationsSkipped++
		}
	}
	for _, p := range r.AllPlants() {
		switch p.Sync.Status {
		case SyncOK:
			c.Synced++
		case SyncSkipped:
			c.Skipped++
		case SyncFailed:
			c.Failed++
		}
	}
	return c
}

// HasWarnings reports whether anything was skipped or failed
func (r *BatchReport) HasWarnings() bool {
	c := r.Counts()
	return c.LocationsSkipped > 0 || c.Skipped > 0 || c.Failed > 0
}

// Messages lists one line per skipped location or unsuccessful plant
func (r *BatchReport) Messages() []string {
	var msgs []string
	for _, l := range r.Locations {
		if l.State == LocationSkipped {
			msgs = append(msgs, fmt.Sprintf("location %s skipped: %v", l.Name, l.Err))
		}
	}
	for _, p := range r.AllPlants() {
		if p.Sync.Status != SyncOK {
			msgs = append(msgs, fmt.Sprintf("plant %s %s: %v", p.Name, p.Sync.Status, p.Sync.Err))
		}
	}
	return msgs
}

// Summary is a one-line description for logs
func (r *BatchReport) Summary() string {
	c := r.Counts()
	return fmt.Sprintf("run %s (%s): %d locations (%d skipped), %d synced, %d skipped, %d failed in %s",
		r.RunID, r.Trigger, c.Locations, c.LocationsSkipped, c.Synced, c.Skipped, c.Failed,
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}

// FormatReport renders a report for a chat message
func FormatReport(r *BatchReport) string {
	var b strings.Builder
	c := r.Counts()
	fmt.Fprintf(&b, "🔄 Recálculo terminado: %d planta(s) sincronizadas", c.Synced)
	if c.Skipped > 0 {
		fmt.Fprintf(&b, ", %d sin calendario", c.Skipped)
	}
	if c.Failed > 0 {
		fmt.Fprintf(&b, ", %d con error", c.Failed)
	}
	b.WriteString(".\n")

	for _, l := range r.Locations {
		if l.State == LocationSkipped {
			fmt.Fprintf(&b, "\n⚠️ No se pudo obtener el clima de %s.", l.Name)
		}
	}
	for _, p := range r.AllPlants() {
		fmt.Fprintf(&b, "\n🌱 %s → %s", p.Name, p.NextWatering.Format("02/01"))
		if p.Reason != "" {
			fmt.Fprintf(&b, " (%s)", p.Reason)
		}
	}
	return b.String()
}
