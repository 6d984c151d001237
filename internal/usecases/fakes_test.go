package usecases

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
	"github.com/abelzeko/riego-bot/internal/integration"
	"github.com/abelzeko/riego-bot/internal/repository"
	"golang.org/x/oauth2"
)

func newTestRepository(t *testing.T) *repository.SQLiteRepository {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "riego-usecases-test")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	repo, err := repository.NewSQLiteRepository(filepath.Join(tempDir, "test-riego.db"))
	if err != nil {
		t.Fatalf("Failed to initialize repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := entities.ParseDay(s)
	if err != nil {
		t.Fatalf("Bad date %s: %v", s, err)
	}
	return d
}

func seedOwner(t *testing.T, repo *repository.SQLiteRepository, ownerID int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := repo.GetOwner(ctx, ownerID); errors.Is(err, repository.ErrNotFound) {
		o := entities.NewOwner(ownerID, "grower", ownerID)
		o.Timezone = "UTC"
		if err := repo.SaveOwner(ctx, o); err != nil {
			t.Fatalf("Failed to save owner: %v", err)
		}
	}
}

func seedPlant(t *testing.T, repo *repository.SQLiteRepository, ownerID int64, name string, mode entities.CultivationMode, lastWatered string) *entities.Plant {
	t.Helper()
	seedOwner(t, repo, ownerID)
	p := &entities.Plant{
		OwnerID:     ownerID,
		Name:        name,
		Kind:        entities.KindPhoto,
		PotLiters:   10,
		Size:        entities.SizeMedium,
		Mode:        mode,
		LastWatered: mustDay(t, lastWatered),
	}
	if err := repo.CreatePlant(context.Background(), p); err != nil {
		t.Fatalf("Failed to create plant: %v", err)
	}
	return p
}

func seedLocation(t *testing.T, repo *repository.SQLiteRepository, ownerID int64, name string) *entities.Location {
	t.Helper()
	seedOwner(t, repo, ownerID)
	l := &entities.Location{OwnerID: ownerID, Name: name, Latitude: -31.42, Longitude: -64.18, Active: true}
	if err := repo.SaveLocation(context.Background(), l); err != nil {
		t.Fatalf("Failed to save location: %v", err)
	}
	return l
}

func storedPlant(t *testing.T, repo *repository.SQLiteRepository, id int64) *entities.Plant {
	t.Helper()
	p, err := repo.GetPlant(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to load plant %d: %v", id, err)
	}
	return p
}

// fakeCalendar keeps live events in memory
type fakeCalendar struct {
	mu        sync.Mutex
	next      int
	live      map[string]integration.CalendarEvent
	created   []integration.CalendarEvent
	deletes   int
	createErr error
	failFor   map[string]bool // Summaries whose creation fails
	deleteErr error
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{live: make(map[string]integration.CalendarEvent), failFor: make(map[string]bool)}
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, calendarID string, ev integration.CalendarEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	if f.failFor[ev.Summary] {
		return "", errors.New("googleapi: Error 500: backendError")
	}
	f.next++
	id := fmt.Sprintf("evt-%d", f.next)
	f.live[id] = ev
	f.created = append(f.created, ev)
	return id, nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.live[eventID]; !ok {
		return integration.ErrEventNotFound
	}
	delete(f.live, eventID)
	return nil
}

func (f *fakeCalendar) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

func (f *fakeCalendar) has(eventID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.live[eventID]
	return ok
}

// fakeClients hands out the same client to every owner
type fakeClients struct {
	client integration.CalendarClient
	err    error
}

func (f fakeClients) GetClient(ctx context.Context, ownerID int64) (integration.CalendarClient, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

type fakeWeather struct {
	mu      sync.Mutex
	weather entities.Weather
	err     error
	calls   int
}

func (f *fakeWeather) CurrentConditions(ctx context.Context, lat, lon float64) (*entities.Weather, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	w := f.weather
	return &w, nil
}

type fakeTokens struct {
	refreshed *oauth2.Token
	err       error
	calls     int
	client    integration.CalendarClient
	lastToken string
}

func (f *fakeTokens) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.refreshed, nil
}

func (f *fakeTokens) CalendarClient(ctx context.Context, accessToken string) (integration.CalendarClient, error) {
	f.lastToken = accessToken
	return f.client, nil
}

// inlineDispatcher runs tasks on Submit and keeps their errors
type inlineDispatcher struct {
	mu    sync.Mutex
	names []string
	errs  []error
}

func (d *inlineDispatcher) Submit(t Task) error {
	err := t.Run(context.Background())
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names = append(d.names, t.Name)
	if err != nil {
		d.errs = append(d.errs, err)
	}
	return nil
}

func mildWeather() entities.Weather {
	return entities.Weather{MaxTemp: 24, MinTemp: 14, MeanHumidity: 55, Source: "test"}
}

// newTestScheduler wires a scheduler whose "today" is fixed
func newTestScheduler(repo *repository.SQLiteRepository, weather integration.WeatherProvider, cal integration.CalendarClient, today time.Time) *RecalculationScheduler {
	cs := NewCalendarSync(fakeClients{client: cal}, repo, repo, 60, time.Second)
	s := NewRecalculationScheduler(repo, weather, cs, SchedulerOptions{WeatherTimeout: time.Second})
	s.now = func() time.Time { return today.Add(10 * time.Hour) }
	return s
}

// recordingDispatcher keeps tasks without running them
type recordingDispatcher struct {
	tasks []Task
}

func (d *recordingDispatcher) Submit(t Task) error {
	d.tasks = append(d.tasks, t)
	return nil
}
