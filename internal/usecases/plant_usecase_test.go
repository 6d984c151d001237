package usecases

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
	"github.com/abelzeko/riego-bot/internal/integration/openai"
	"github.com/abelzeko/riego-bot/internal/repository"
)

type fakeAgent struct {
	resp *openai.AgentResponse
	err  error
	seen []string
}

func (f *fakeAgent) InterpretUserMessage(ctx context.Context, userMessage string, plantNames []string) (*openai.AgentResponse, error) {
	f.seen = plantNames
	return f.resp, f.err
}

func newTestPlantUseCase(t *testing.T, tasks Dispatcher, agent openai.OpenAIService) (*PlantUseCase, *repository.SQLiteRepository, *fakeCalendar) {
	t.Helper()
	repo := newTestRepository(t)
	cal := newFakeCalendar()
	s := newTestScheduler(repo, &fakeWeather{weather: mildWeather()}, cal, mustDay(t, "2025-01-03"))
	return NewPlantUseCase(repo, s, s.sync, tasks, agent), repo, cal
}

func TestCreatePlantSchedulesReminder(t *testing.T) {
	tasks := &inlineDispatcher{}
	uc, repo, cal := newTestPlantUseCase(t, tasks, nil)
	seedOwner(t, repo, 1)

	p := &entities.Plant{OwnerID: 1, Name: "  Gorilla ", PotLiters: 10, Size: entities.SizeMedium, Mode: entities.ModeIndoor}
	if err := uc.CreatePlant(context.Background(), p); err != nil {
		t.Fatalf("CreatePlant failed: %v", err)
	}
	if p.Name != "Gorilla" || p.Kind != entities.KindPhoto {
		t.Errorf("Expected trimmed name and default kind, got %q %q", p.Name, p.Kind)
	}
	if !p.LastWatered.Equal(mustDay(t, "2025-01-03")) {
		t.Errorf("Expected last watered to default to today, got %s", p.LastWatered)
	}
	if len(tasks.errs) != 0 {
		t.Errorf("Unexpected task errors %v", tasks.errs)
	}
	if got := storedPlant(t, repo, p.ID).EventID; got == "" || !cal.has(got) {
		t.Errorf("Expected a live event after create, got %q", got)
	}
}

func TestCreatePlantValidation(t *testing.T) {
	tasks := &recordingDispatcher{}
	uc, repo, _ := newTestPlantUseCase(t, tasks, nil)
	seedOwner(t, repo, 1)

	tests := []struct {
		name  string
		plant entities.Plant
		field string
	}{
		{"empty name", entities.Plant{OwnerID: 1, Name: " ", PotLiters: 10, Size: entities.SizeMedium, Mode: entities.ModeIndoor}, "name"},
		{"zero pot", entities.Plant{OwnerID: 1, Name: "A", Size: entities.SizeMedium, Mode: entities.ModeIndoor}, "pot_liters"},
		{"bad size", entities.Plant{OwnerID: 1, Name: "A", PotLiters: 5, Size: "huge", Mode: entities.ModeIndoor}, "size"},
		{"bad mode", entities.Plant{OwnerID: 1, Name: "A", PotLiters: 5, Size: entities.SizeSmall, Mode: "greenhouse"}, "mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.plant
			err := uc.CreatePlant(context.Background(), &p)
			var verr *entities.ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Errorf("Expected validation error on %s, got %v", tt.field, err)
			}
		})
	}
	if len(tasks.tasks) != 0 {
		t.Errorf("Invalid plants must not trigger recomputes, got %d", len(tasks.tasks))
	}
}

func TestUpdatePlantKeepsEventReference(t *testing.T) {
	tasks := &recordingDispatcher{}
	uc, repo, _ := newTestPlantUseCase(t, tasks, nil)
	ctx := context.Background()
	plant := seedPlant(t, repo, 1, "Gorilla", entities.ModeIndoor, "2025-01-01")
	repo.SetPlantEventID(ctx, plant.ID, "evt-live")

	update := *plant
	update.EventID = ""
	update.PotLiters = 20
	update.Flowering = true
	if err := uc.UpdatePlant(ctx, 1, update); err != nil {
		t.Fatalf("UpdatePlant failed: %v", err)
	}
	stored := storedPlant(t, repo, plant.ID)
	if stored.EventID != "evt-live" || stored.PotLiters != 20 || !stored.Flowering {
		t.Errorf("Unexpected stored plant %+v", stored)
	}
	if len(tasks.tasks) != 1 || !strings.HasPrefix(tasks.tasks[0].Name, TriggerMutation+" recompute") {
		t.Errorf("Expected one recompute task, got %+v", tasks.tasks)
	}

	if err := uc.UpdatePlant(ctx, 2, update); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for another owner, got %v", err)
	}
}

func TestUpdatePlantKeepsConcurrentWatering(t *testing.T) {
	tasks := &recordingDispatcher{}
	uc, repo, _ := newTestPlantUseCase(t, tasks, nil)
	ctx := context.Background()
	plant := seedPlant(t, repo, 1, "Gorilla", entities.ModeOutdoor, "2025-01-01")

	// A watering or rain reset lands after the caller read the plant
	if err := repo.SetPlantLastWatered(ctx, plant.ID, mustDay(t, "2025-01-03")); err != nil {
		t.Fatalf("SetPlantLastWatered failed: %v", err)
	}

	update := *plant
	update.LastWatered = time.Time{}
	update.Flowering = true
	if err := uc.UpdatePlant(ctx, 1, update); err != nil {
		t.Fatalf("UpdatePlant failed: %v", err)
	}
	stored := storedPlant(t, repo, plant.ID)
	if !stored.LastWatered.Equal(mustDay(t, "2025-01-03")) {
		t.Errorf("Expected last watered 2025-01-03 to survive the update, got %s", stored.LastWatered)
	}
	if !stored.Flowering {
		t.Error("Expected flowering to be saved")
	}
}

func TestDeletePlantRemovesEvent(t *testing.T) {
	tasks := &inlineDispatcher{}
	uc, repo, cal := newTestPlantUseCase(t, tasks, nil)
	ctx := context.Background()
	seedOwner(t, repo, 1)

	p := &entities.Plant{OwnerID: 1, Name: "Gorilla", PotLiters: 10, Size: entities.SizeMedium, Mode: entities.ModeIndoor}
	if err := uc.CreatePlant(ctx, p); err != nil {
		t.Fatalf("CreatePlant failed: %v", err)
	}
	if cal.liveCount() != 1 {
		t.Fatalf("Expected one event, got %d", cal.liveCount())
	}
	if err := uc.RecordWatering(ctx, 1, &entities.WateringRecord{PlantID: p.ID, AmountML: 500}); err != nil {
		t.Fatalf("RecordWatering failed: %v", err)
	}

	if err := uc.DeletePlant(ctx, 2, p.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for another owner, got %v", err)
	}
	if err := uc.DeletePlant(ctx, 1, p.ID); err != nil {
		t.Fatalf("DeletePlant failed: %v", err)
	}
	if cal.liveCount() != 0 {
		t.Errorf("Expected the event to be removed, %d live", cal.liveCount())
	}
	if _, err := repo.GetPlant(ctx, p.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected plant to be gone, got %v", err)
	}
	if len(tasks.errs) != 0 {
		t.Errorf("Unexpected task errors %v", tasks.errs)
	}
}

func TestRecordWatering(t *testing.T) {
	tasks := &recordingDispatcher{}
	uc, repo, _ := newTestPlantUseCase(t, tasks, nil)
	ctx := context.Background()
	plant := seedPlant(t, repo, 1, "Gorilla", entities.ModeIndoor, "2025-01-02")

	ph := 6.2
	if err := uc.RecordWatering(ctx, 1, &entities.WateringRecord{PlantID: plant.ID, Date: mustDay(t, "2025-01-03"), AmountML: 1200, PH: &ph}); err != nil {
		t.Fatalf("RecordWatering failed: %v", err)
	}
	if got := storedPlant(t, repo, plant.ID).LastWatered; !got.Equal(mustDay(t, "2025-01-03")) {
		t.Errorf("Expected last watered advanced, got %s", got)
	}
	if len(tasks.tasks) != 1 {
		t.Errorf("Expected one recompute, got %d", len(tasks.tasks))
	}

	// An older record is logged but does not move the schedule back
	if err := uc.RecordWatering(ctx, 1, &entities.WateringRecord{PlantID: plant.ID, Date: mustDay(t, "2024-12-28"), AmountML: 800}); err != nil {
		t.Fatalf("RecordWatering failed: %v", err)
	}
	if got := storedPlant(t, repo, plant.ID).LastWatered; !got.Equal(mustDay(t, "2025-01-03")) {
		t.Errorf("Expected last watered unchanged, got %s", got)
	}
	if len(tasks.tasks) != 1 {
		t.Errorf("Older record must not trigger a recompute, got %d tasks", len(tasks.tasks))
	}

	badPH := 15.0
	var verr *entities.ValidationError
	if err := uc.RecordWatering(ctx, 1, &entities.WateringRecord{PlantID: plant.ID, PH: &badPH}); !errors.As(err, &verr) {
		t.Errorf("Expected validation error, got %v", err)
	}

	history, err := uc.GetHistory(ctx, 1, plant.ID, 10)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history.Records) != 2 || history.Stats.Count != 2 || history.Stats.TotalML != 2000 {
		t.Errorf("Unexpected history %+v", history)
	}
}

func TestPlantStatusAndLookup(t *testing.T) {
	uc, repo, _ := newTestPlantUseCase(t, &recordingDispatcher{}, nil)
	ctx := context.Background()
	plant := seedPlant(t, repo, 1, "Gorilla Glue", entities.ModeIndoor, "2025-01-01")
	seedPlant(t, repo, 2, "Other", entities.ModeIndoor, "2025-01-01")

	found, err := uc.FindPlantByName(ctx, 1, "gorilla glue")
	if err != nil || found.ID != plant.ID {
		t.Fatalf("Expected to find the plant, got %v %v", found, err)
	}
	if _, err := uc.FindPlantByName(ctx, 1, "Other"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Plants of other owners must not be found, got %v", err)
	}

	status, err := uc.GetPlantStatus(ctx, 1, plant.ID)
	if err != nil {
		t.Fatalf("GetPlantStatus failed: %v", err)
	}
	if status.Plan.Computation.RecommendedML != 1500 || !status.Plan.NextWatering.Equal(mustDay(t, "2025-01-06")) {
		t.Errorf("Unexpected plan %+v", status.Plan)
	}
	text := FormatPlantStatus(*status)
	if !strings.Contains(text, "1500 ml") || !strings.Contains(text, "06/01/2025") {
		t.Errorf("Unexpected status text %q", text)
	}

	list, err := uc.ListPlants(ctx, 1)
	if err != nil || len(list) != 1 {
		t.Errorf("Expected one plant, got %d (%v)", len(list), err)
	}
}

func TestHandleNaturalLanguageMessage(t *testing.T) {
	agent := &fakeAgent{resp: &openai.AgentResponse{Intent: openai.IntentRecordWatering, PlantName: "gorilla", AmountML: 700, UserMessage: "¡Listo!"}}
	tasks := &recordingDispatcher{}
	uc, repo, _ := newTestPlantUseCase(t, tasks, agent)
	ctx := context.Background()
	plant := seedPlant(t, repo, 1, "Gorilla", entities.ModeIndoor, "2025-01-01")

	reply, err := uc.HandleNaturalLanguageMessage(ctx, 1, "regué la gorilla con 700ml")
	if err != nil {
		t.Fatalf("HandleNaturalLanguageMessage failed: %v", err)
	}
	if !strings.Contains(reply, "Gorilla") {
		t.Errorf("Unexpected reply %q", reply)
	}
	if len(agent.seen) != 1 || agent.seen[0] != "Gorilla" {
		t.Errorf("Expected plant names to be passed to the agent, got %v", agent.seen)
	}
	history, _ := uc.GetHistory(ctx, 1, plant.ID, 5)
	if len(history.Records) != 1 || history.Records[0].AmountML != 700 {
		t.Errorf("Expected a recorded watering, got %+v", history.Records)
	}

	agent.resp = nil
	agent.err = errors.New("rate limited")
	reply, err = uc.HandleNaturalLanguageMessage(ctx, 1, "hola")
	if err != nil || reply == "" {
		t.Errorf("Agent failures must produce a friendly reply, got %q %v", reply, err)
	}

	noAgent := NewPlantUseCase(repo, nil, nil, tasks, nil)
	if reply, _ := noAgent.HandleNaturalLanguageMessage(ctx, 1, "hola"); !strings.Contains(reply, "/help") {
		t.Errorf("Expected help hint without an agent, got %q", reply)
	}
}
