package usecases

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
	"github.com/abelzeko/riego-bot/internal/integration"
	"github.com/abelzeko/riego-bot/internal/repository"
	"github.com/abelzeko/riego-bot/internal/watering"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Phase is the current step of a running batch
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseFetchingWeather
	PhaseAdjusting
	PhaseSyncingPlants
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetchingWeather:
		return "fetching_weather"
	case PhaseAdjusting:
		return "adjusting"
	case PhaseSyncingPlants:
		return "syncing_plants"
	}
	return "unknown"
}

// SchedulerStore is the persistence the scheduler needs
type SchedulerStore interface {
	repository.PlantRepository
	repository.OwnerRepository
	repository.LocationRepository
}

// SchedulerOptions configures a RecalculationScheduler
type SchedulerOptions struct {
	Spec           string         // Cron spec of the daily batch
	Location       *time.Location // Timezone the cron spec is evaluated in
	DayLocation    *time.Location // Timezone that decides what "today" is
	WeatherTimeout time.Duration
}

// RecalculationScheduler recomputes watering dates and keeps calendar events in sync.
// Batches run one location at a time and never overlap each other.
type RecalculationScheduler struct {
	store   SchedulerStore
	weather integration.WeatherProvider
	sync    *CalendarSync
	opts    SchedulerOptions
	now     func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	batchMu sync.Mutex
	phase   atomic.Int32
}

// NewRecalculationScheduler creates a stopped scheduler
func NewRecalculationScheduler(store SchedulerStore, weather integration.WeatherProvider, calendarSync *CalendarSync, opts SchedulerOptions) *RecalculationScheduler {
	if opts.Spec == "" {
		opts.Spec = "0 3 * * *"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DayLocation == nil {
		opts.DayLocation = time.UTC
	}
	if opts.WeatherTimeout <= 0 {
		opts.WeatherTimeout = 15 * time.Second
	}
	return &RecalculationScheduler{
		store:   store,
		weather: weather,
		sync:    calendarSync,
		opts:    opts,
		now:     time.Now,
	}
}

// Start schedules the daily batch. Calling Start on a running scheduler is a no-op.
func (s *RecalculationScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New(
		cron.WithLocation(s.opts.Location),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if _, err := c.AddFunc(s.opts.Spec, func() {
		s.RunDaily(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to set up cron job: %w", err)
	}
	c.Start()
	s.cron = c

	log.Printf("Daily recalculation scheduled at %q (%s)", s.opts.Spec, s.opts.Location)
	if _, err := s.CheckMissedDays(context.Background()); err != nil {
		log.Printf("Missed days check failed: %v", err)
	}
	return nil
}

// Stop unschedules the daily batch and waits for a running one to finish
func (s *RecalculationScheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	log.Println("Daily recalculation stopped")
}

// IsRunning reports whether the daily batch is scheduled
func (s *RecalculationScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// NextRun returns when the daily batch fires next, zero when stopped
func (s *RecalculationScheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Phase returns the step the current batch is in
func (s *RecalculationScheduler) Phase() Phase {
	return Phase(s.phase.Load())
}

func (s *RecalculationScheduler) setPhase(p Phase) {
	if Phase(s.phase.Swap(int32(p))) != p {
		log.Printf("Recalculation phase: %s", p)
	}
}

func (s *RecalculationScheduler) today() time.Time {
	return entities.Today(s.now(), s.opts.DayLocation)
}

func (s *RecalculationScheduler) newReport(trigger string) *BatchReport {
	return &BatchReport{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: s.now(),
	}
}

func (s *RecalculationScheduler) finish(report *BatchReport) {
	report.FinishedAt = s.now()
	log.Printf("Recalculation %s", report.Summary())
	for _, msg := range report.Messages() {
		log.Printf("Recalculation %s: %s", report.RunID, msg)
	}
}

// RunDaily fetches weather for every active location and resyncs its outdoor plants
func (s *RecalculationScheduler) RunDaily(ctx context.Context) *BatchReport {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	defer s.setPhase(PhaseIdle)

	report := s.newReport(TriggerDaily)
	defer s.finish(report)

	locations, err := s.store.ListActiveLocations(ctx)
	if err != nil {
		log.Printf("Failed to list locations: %v", err)
		return report
	}

	today := s.today()
	log.Printf("Starting daily recalculation %s for %d location(s), day %s", report.RunID, len(locations), today.Format(entities.DateLayout))
	for _, loc := range locations {
		if ctx.Err() != nil {
			log.Printf("Recalculation %s interrupted: %v", report.RunID, ctx.Err())
			break
		}
		report.Locations = append(report.Locations, s.processLocation(ctx, loc, today))
	}
	return report
}

// RunForOwner runs the batch for the owner's location only
func (s *RecalculationScheduler) RunForOwner(ctx context.Context, ownerID int64) (*BatchReport, error) {
	loc, err := s.store.GetLocationByOwner(ctx, ownerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("owner %d: %w", ownerID, ErrNoLocation)
	}
	if err != nil {
		return nil, err
	}

	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	defer s.setPhase(PhaseIdle)

	report := s.newReport(TriggerManual)
	defer s.finish(report)
	report.Locations = append(report.Locations, s.processLocation(ctx, *loc, s.today()))
	return report, nil
}

func (s *RecalculationScheduler) processLocation(ctx context.Context, loc entities.Location, today time.Time) LocationReport {
	lr := LocationReport{LocationID: loc.ID, OwnerID: loc.OwnerID, Name: loc.Name, State: LocationProcessed}

	s.setPhase(PhaseFetchingWeather)
	wctx, cancel := context.WithTimeout(ctx, s.opts.WeatherTimeout)
	weather, err := s.weather.CurrentConditions(wctx, loc.Latitude, loc.Longitude)
	cancel()
	if err != nil {
		log.Printf("Skipping location %d (%s): %v", loc.ID, loc.Name, err)
		lr.State = LocationSkipped
		lr.Err = err
		return lr
	}
	lr.Weather = weather

	sample, err := s.store.UpsertClimateSample(ctx, entities.ClimateSample{
		LocationID: loc.ID,
		Date:       today,
		Weather:    *weather,
	})
	if err != nil {
		log.Printf("Skipping location %d (%s): %v", loc.ID, loc.Name, err)
		lr.State = LocationSkipped
		lr.Err = err
		return lr
	}
	lr.SampleID = sample.ID
	if err := s.store.TouchClimateFetch(ctx, loc.ID, s.now()); err != nil {
		log.Printf("Failed to record climate fetch of location %d: %v", loc.ID, err)
	}

	s.setPhase(PhaseAdjusting)
	plants, err := s.store.ListOutdoorPlants(ctx, loc.OwnerID)
	if err != nil {
		log.Printf("Skipping location %d (%s): %v", loc.ID, loc.Name, err)
		lr.State = LocationSkipped
		lr.Err = err
		return lr
	}
	owner := s.owner(ctx, loc.OwnerID)
	log.Printf("Location %s: %d outdoor plant(s), %s", loc.Name, len(plants), watering.AdjustForClimate(*weather).Reason)

	for i := range plants {
		if ctx.Err() != nil {
			break
		}
		lr.Plants = append(lr.Plants, s.recomputeAndSync(ctx, &plants[i], owner, sample, today, true))
	}

	if ctx.Err() == nil {
		if err := s.store.MarkSampleProcessed(ctx, sample.ID); err != nil {
			log.Printf("Failed to mark climate sample %d processed: %v", sample.ID, err)
		}
	}
	return lr
}

// RecomputePlant recomputes one plant without fetching weather. Outdoor plants
// use the latest stored sample of the owner's location.
func (s *RecalculationScheduler) RecomputePlant(ctx context.Context, plantID int64) (PlantReport, error) {
	plant, err := s.store.GetPlant(ctx, plantID)
	if err != nil {
		return PlantReport{PlantID: plantID}, err
	}
	owner := s.owner(ctx, plant.OwnerID)

	var sample *entities.ClimateSample
	if plant.IsOutdoor() {
		sample = s.latestSample(ctx, plant.OwnerID)
	}
	return s.recomputeAndSync(ctx, plant, owner, sample, s.today(), false), nil
}

// Backfill creates events for the owner's plants that have none
func (s *RecalculationScheduler) Backfill(ctx context.Context, ownerID int64) (*BatchReport, error) {
	plants, err := s.store.ListPlantsWithoutEvent(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	report := s.newReport(TriggerBackfill)
	defer s.finish(report)

	owner := s.owner(ctx, ownerID)
	sample := s.latestSample(ctx, ownerID)
	today := s.today()
	for i := range plants {
		if ctx.Err() != nil {
			break
		}
		var plantSample *entities.ClimateSample
		if plants[i].IsOutdoor() {
			plantSample = sample
		}
		report.Plants = append(report.Plants, s.recomputeAndSync(ctx, &plants[i], owner, plantSample, today, false))
	}
	return report, nil
}

// Preview computes a plant's schedule without touching storage or the calendar
func (s *RecalculationScheduler) Preview(ctx context.Context, plant entities.Plant) PlantPlan {
	owner := s.owner(ctx, plant.OwnerID)
	var sample *entities.ClimateSample
	if plant.IsOutdoor() {
		sample = s.latestSample(ctx, plant.OwnerID)
	}
	return PlanPlant(plant, owner, sample, s.today())
}

func (s *RecalculationScheduler) recomputeAndSync(ctx context.Context, plant *entities.Plant, owner entities.Owner, sample *entities.ClimateSample, today time.Time, inBatch bool) PlantReport {
	plan := PlanPlant(*plant, owner, sample, today)

	if plan.Reset && plan.LastWatered.After(entities.Day(plant.LastWatered)) {
		if err := s.store.SetPlantLastWatered(ctx, plant.ID, plan.LastWatered); err != nil {
			log.Printf("Failed to store rain reset of plant %d: %v", plant.ID, err)
		} else {
			plant.LastWatered = plan.LastWatered
		}
	}

	report := PlantReport{
		PlantID:       plant.ID,
		OwnerID:       plant.OwnerID,
		Name:          plant.Name,
		NextWatering:  plan.NextWatering,
		RecommendedML: plan.Computation.RecommendedML,
		Reason:        plan.Reason,
		Reset:         plan.Reset,
	}

	if inBatch {
		s.setPhase(PhaseSyncingPlants)
	}
	report.Sync = s.sync.Upsert(ctx, plant, Reminder{
		Date:          plan.NextWatering,
		RecommendedML: plan.Computation.RecommendedML,
		Reason:        plan.Reason,
	})
	if inBatch {
		s.setPhase(PhaseAdjusting)
	}
	return report
}

func (s *RecalculationScheduler) owner(ctx context.Context, ownerID int64) entities.Owner {
	o, err := s.store.GetOwner(ctx, ownerID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Printf("Failed to load owner %d, using defaults: %v", ownerID, err)
		}
		return entities.NewOwner(ownerID, "", 0)
	}
	return *o
}

// latestSample returns the newest climate sample of the owner's location, or nil
func (s *RecalculationScheduler) latestSample(ctx context.Context, ownerID int64) *entities.ClimateSample {
	loc, err := s.store.GetLocationByOwner(ctx, ownerID)
	if err != nil {
		return nil
	}
	sample, err := s.store.LatestClimateSample(ctx, loc.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Printf("Failed to load latest climate sample of location %d: %v", loc.ID, err)
		}
		return nil
	}
	return sample
}

// MissedDays describes a gap in the climate history of a location
type MissedDays struct {
	LocationID int64
	Name       string
	LastSample time.Time // Zero when the location never got weather
	Days       int
}

// CheckMissedDays logs locations whose climate history has gaps up to today
func (s *RecalculationScheduler) CheckMissedDays(ctx context.Context) ([]MissedDays, error) {
	locations, err := s.store.ListActiveLocations(ctx)
	if err != nil {
		return nil, err
	}

	today := s.today()
	var missed []MissedDays
	for _, loc := range locations {
		sample, err := s.store.LatestClimateSample(ctx, loc.ID)
		if errors.Is(err, repository.ErrNotFound) {
			log.Printf("Location %s has no climate data yet", loc.Name)
			missed = append(missed, MissedDays{LocationID: loc.ID, Name: loc.Name})
			continue
		}
		if err != nil {
			return missed, err
		}
		if gap := entities.DaysBetween(sample.Date, today) - 1; gap > 0 {
			log.Printf("Location %s missed %d day(s) of climate data since %s", loc.Name, gap, sample.Date.Format(entities.DateLayout))
			missed = append(missed, MissedDays{LocationID: loc.ID, Name: loc.Name, LastSample: sample.Date, Days: gap})
		}
	}
	return missed, nil
}
