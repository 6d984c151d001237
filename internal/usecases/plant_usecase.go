package usecases

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/abelzeko/riego-bot/internal/entities"
	"github.com/abelzeko/riego-bot/internal/integration/openai"
	"github.com/abelzeko/riego-bot/internal/repository"
)

// PlantStatus is a plant together with its current schedule
type PlantStatus struct {
	Plant entities.Plant
	Plan  PlantPlan
}

// PlantHistory is the watering log of a plant
type PlantHistory struct {
	Plant   entities.Plant
	Records []entities.WateringRecord
	Stats   entities.WateringStats
}

// PlantUseCase handles plant mutations and reads. Every mutation that changes
// the schedule submits a recompute to the task queue and returns immediately.
type PlantUseCase struct {
	repo          repository.PlantRepository
	recalc        *RecalculationScheduler
	calendar      *CalendarSync
	tasks         Dispatcher
	openAIService openai.OpenAIService
}

// NewPlantUseCase creates a plant use case. openAIService may be nil.
func NewPlantUseCase(repo repository.PlantRepository, recalc *RecalculationScheduler, calendar *CalendarSync, tasks Dispatcher, openAIService openai.OpenAIService) *PlantUseCase {
	return &PlantUseCase{
		repo:          repo,
		recalc:        recalc,
		calendar:      calendar,
		tasks:         tasks,
		openAIService: openAIService,
	}
}

// CreatePlant stores a new plant and schedules its first reminder
func (uc *PlantUseCase) CreatePlant(ctx context.Context, p *entities.Plant) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.LastWatered.IsZero() {
		p.LastWatered = uc.recalc.today()
	}
	if p.Kind == "" {
		p.Kind = entities.KindPhoto
	}
	p.EventID = ""
	if err := p.Validate(); err != nil {
		return err
	}
	if err := uc.repo.CreatePlant(ctx, p); err != nil {
		return fmt.Errorf("failed to create plant: %w", err)
	}
	log.Printf("Created plant %d (%s) for owner %d", p.ID, p.Name, p.OwnerID)
	submitRecompute(uc.tasks, uc.recalc, p.ID)
	return nil
}

// UpdatePlant saves new attributes of an owned plant. The event reference is
// never written here, and last watered only when p carries one.
func (uc *PlantUseCase) UpdatePlant(ctx context.Context, ownerID int64, p entities.Plant) error {
	current, err := uc.ownedPlant(ctx, ownerID, p.ID)
	if err != nil {
		return err
	}
	p.OwnerID = current.OwnerID
	p.Name = strings.TrimSpace(p.Name)
	p.EventID = current.EventID
	if p.Kind == "" {
		p.Kind = current.Kind
	}
	check := p
	if check.LastWatered.IsZero() {
		check.LastWatered = current.LastWatered
	}
	if err := check.Validate(); err != nil {
		return err
	}
	if err := uc.repo.UpdatePlant(ctx, p); err != nil {
		return fmt.Errorf("failed to update plant %d: %w", p.ID, err)
	}
	submitRecompute(uc.tasks, uc.recalc, p.ID)
	return nil
}

// DeletePlant removes an owned plant with its history and then its calendar event
func (uc *PlantUseCase) DeletePlant(ctx context.Context, ownerID, plantID int64) error {
	plant, err := uc.ownedPlant(ctx, ownerID, plantID)
	if err != nil {
		return err
	}
	if err := uc.repo.DeletePlant(ctx, plantID); err != nil {
		return fmt.Errorf("failed to delete plant %d: %w", plantID, err)
	}
	log.Printf("Deleted plant %d (%s)", plant.ID, plant.Name)

	if !plant.HasEvent() {
		return nil
	}
	snapshot := *plant
	err = uc.tasks.Submit(Task{
		Name: fmt.Sprintf("remove event of plant %d", snapshot.ID),
		Run: func(ctx context.Context) error {
			return uc.calendar.Remove(ctx, &snapshot).Err
		},
	})
	if err != nil {
		log.Printf("Warning: could not queue event removal of plant %d: %v", snapshot.ID, err)
	}
	return nil
}

// RecordWatering logs a watering and moves the plant's last watering forward
func (uc *PlantUseCase) RecordWatering(ctx context.Context, ownerID int64, rec *entities.WateringRecord) error {
	plant, err := uc.ownedPlant(ctx, ownerID, rec.PlantID)
	if err != nil {
		return err
	}
	if rec.Date.IsZero() {
		rec.Date = uc.recalc.today()
	}
	rec.Date = entities.Day(rec.Date)
	if err := rec.Validate(); err != nil {
		return err
	}
	if err := uc.repo.AddWateringRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to record watering of plant %d: %w", plant.ID, err)
	}

	if rec.Date.Before(entities.Day(plant.LastWatered)) {
		log.Printf("Watering of plant %d on %s is older than its last watering, schedule unchanged", plant.ID, rec.Date.Format(entities.DateLayout))
		return nil
	}
	if err := uc.repo.SetPlantLastWatered(ctx, plant.ID, rec.Date); err != nil {
		return fmt.Errorf("failed to update last watering of plant %d: %w", plant.ID, err)
	}
	submitRecompute(uc.tasks, uc.recalc, plant.ID)
	return nil
}

// ListPlants returns every plant of the owner with its schedule
func (uc *PlantUseCase) ListPlants(ctx context.Context, ownerID int64) ([]PlantStatus, error) {
	plants, err := uc.repo.ListPlantsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	statuses := make([]PlantStatus, 0, len(plants))
	for _, p := range plants {
		statuses = append(statuses, PlantStatus{Plant: p, Plan: uc.recalc.Preview(ctx, p)})
	}
	return statuses, nil
}

// GetPlantStatus returns an owned plant with its schedule
func (uc *PlantUseCase) GetPlantStatus(ctx context.Context, ownerID, plantID int64) (*PlantStatus, error) {
	plant, err := uc.ownedPlant(ctx, ownerID, plantID)
	if err != nil {
		return nil, err
	}
	return &PlantStatus{Plant: *plant, Plan: uc.recalc.Preview(ctx, *plant)}, nil
}

// GetHistory returns the latest watering records of an owned plant and its stats
func (uc *PlantUseCase) GetHistory(ctx context.Context, ownerID, plantID int64, limit int) (*PlantHistory, error) {
	plant, err := uc.ownedPlant(ctx, ownerID, plantID)
	if err != nil {
		return nil, err
	}
	records, err := uc.repo.ListWateringRecords(ctx, plantID, limit)
	if err != nil {
		return nil, err
	}
	stats, err := uc.repo.GetWateringStats(ctx, plantID)
	if err != nil {
		return nil, err
	}
	return &PlantHistory{Plant: *plant, Records: records, Stats: stats}, nil
}

// FindPlantByName looks up an owned plant by case-insensitive name
func (uc *PlantUseCase) FindPlantByName(ctx context.Context, ownerID int64, name string) (*entities.Plant, error) {
	plants, err := uc.repo.ListPlantsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	for i := range plants {
		if strings.EqualFold(plants[i].Name, name) {
			return &plants[i], nil
		}
	}
	return nil, fmt.Errorf("plant %q: %w", name, repository.ErrNotFound)
}

// HandleNaturalLanguageMessage interprets free text with the AI service and
// answers with the plant status or records a watering.
func (uc *PlantUseCase) HandleNaturalLanguageMessage(ctx context.Context, ownerID int64, text string) (string, error) {
	if uc.openAIService == nil {
		return "No entiendo mensajes libres. Usá /help para ver los comandos.", nil
	}

	plants, err := uc.repo.ListPlantsByOwner(ctx, ownerID)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(plants))
	for _, p := range plants {
		names = append(names, p.Name)
	}

	log.Printf("Interpreting message of owner %d: %s", ownerID, text)
	resp, err := uc.openAIService.InterpretUserMessage(ctx, text, names)
	if err != nil {
		log.Printf("Error interpreting message via OpenAI: %v", err)
		return "Perdón, no pude entender el mensaje. Probá de nuevo o usá /help.", nil
	}
	log.Printf("Agent response: Intent='%s', Plant='%s', Amount=%d", resp.Intent, resp.PlantName, resp.AmountML)

	switch resp.Intent {
	case openai.IntentPlantStatus:
		plant, err := uc.FindPlantByName(ctx, ownerID, resp.PlantName)
		if err != nil {
			return joinReply(resp.UserMessage, "No encontré esa planta."), nil
		}
		status, err := uc.GetPlantStatus(ctx, ownerID, plant.ID)
		if err != nil {
			return "", err
		}
		return FormatPlantStatus(*status), nil

	case openai.IntentRecordWatering:
		plant, err := uc.FindPlantByName(ctx, ownerID, resp.PlantName)
		if err != nil {
			return joinReply(resp.UserMessage, "No encontré esa planta."), nil
		}
		rec := &entities.WateringRecord{PlantID: plant.ID, AmountML: resp.AmountML}
		if err := uc.RecordWatering(ctx, ownerID, rec); err != nil {
			var verr *entities.ValidationError
			if errors.As(err, &verr) {
				return verr.Error(), nil
			}
			return "", err
		}
		return joinReply(resp.UserMessage, fmt.Sprintf("💧 Riego de %s registrado.", plant.Name)), nil
	}

	if resp.UserMessage != "" {
		return resp.UserMessage, nil
	}
	return "Usá /help para ver los comandos.", nil
}

func joinReply(agentMsg, msg string) string {
	if agentMsg == "" {
		return msg
	}
	return agentMsg + "\n\n" + msg
}

// ownedPlant loads a plant and hides plants of other owners
func (uc *PlantUseCase) ownedPlant(ctx context.Context, ownerID, plantID int64) (*entities.Plant, error) {
	plant, err := uc.repo.GetPlant(ctx, plantID)
	if err != nil {
		return nil, err
	}
	if plant.OwnerID != ownerID {
		return nil, fmt.Errorf("plant %d: %w", plantID, repository.ErrNotFound)
	}
	return plant, nil
}

// submitRecompute queues a single-plant recompute after a mutation
func submitRecompute(tasks Dispatcher, recalc *RecalculationScheduler, plantID int64) {
	err := tasks.Submit(Task{
		Name: fmt.Sprintf("%s recompute of plant %d", TriggerMutation, plantID),
		Run: func(ctx context.Context) error {
			report, err := recalc.RecomputePlant(ctx, plantID)
			if err != nil {
				return err
			}
			if report.Sync.Status == SyncFailed {
				return report.Sync.Err
			}
			return nil
		},
	})
	if err != nil {
		// The daily batch picks the plant up again
		log.Printf("Warning: could not queue recompute of plant %d: %v", plantID, err)
	}
}

// FormatPlantStatus renders a plant status for chat
func FormatPlantStatus(s PlantStatus) string {
	var b strings.Builder
	c := s.Plan.Computation
	fmt.Fprintf(&b, "🪴 %s (%s, %.1f L, %s)\n", s.Plant.Name, s.Plant.Mode, s.Plant.PotLiters, s.Plant.Size)
	fmt.Fprintf(&b, "Último riego: %s\n", s.Plant.LastWatered.Format("02/01/2006"))
	fmt.Fprintf(&b, "Próximo riego: %s (%s)\n", s.Plan.NextWatering.Format("02/01/2006"), c.StatusText())
	fmt.Fprintf(&b, "Cantidad: %d ml, cada %d días\n", c.RecommendedML, c.FrequencyDays)
	if s.Plan.Reason != "" {
		fmt.Fprintf(&b, "%s\n", s.Plan.Reason)
	}
	b.WriteString(c.Advice)
	return b.String()
}
