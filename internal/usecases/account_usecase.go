package usecases

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
	"github.com/abelzeko/riego-bot/internal/integration"
	"github.com/abelzeko/riego-bot/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// linkStateTTL bounds how long an authorization link stays usable
const linkStateTTL = 10 * time.Minute

// OAuthProvider starts and completes the calendar authorization flow
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// GeocodeProvider resolves free-text place names
type GeocodeProvider interface {
	Geocode(ctx context.Context, query string) (*integration.Place, error)
}

// Notifier delivers messages to an owner
type Notifier interface {
	NotifyOwner(ctx context.Context, ownerID int64, text string) error
}

// AccountStore is the persistence the account use case needs
type AccountStore interface {
	repository.PlantRepository
	repository.OwnerRepository
	repository.LocationRepository
}

// CalendarStatus describes the calendar link of an owner
type CalendarStatus struct {
	Linked       bool
	CalendarID   string
	SyncedPlants int
	TotalPlants  int
}

type linkState struct {
	ownerID int64
	expires time.Time
}

// AccountUseCase handles owner preferences and the calendar link
type AccountUseCase struct {
	store    AccountStore
	creds    *CredentialManager
	oauth    OAuthProvider
	geocoder GeocodeProvider
	recalc   *RecalculationScheduler
	calendar *CalendarSync
	tasks    Dispatcher
	now      func() time.Time

	mu       sync.Mutex // Guards notifier and states
	notifier Notifier
	states   map[string]linkState
}

// NewAccountUseCase creates an account use case
func NewAccountUseCase(store AccountStore, creds *CredentialManager, oauth OAuthProvider, geocoder GeocodeProvider, recalc *RecalculationScheduler, calendar *CalendarSync, tasks Dispatcher) *AccountUseCase {
	return &AccountUseCase{
		store:    store,
		creds:    creds,
		oauth:    oauth,
		geocoder: geocoder,
		recalc:   recalc,
		calendar: calendar,
		tasks:    tasks,
		now:      time.Now,
		states:   make(map[string]linkState),
	}
}

// SetNotifier sets where background results are reported. The bot registers
// itself after it is created.
func (uc *AccountUseCase) SetNotifier(n Notifier) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.notifier = n
}

func (uc *AccountUseCase) currentNotifier() Notifier {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.notifier
}

// RegisterOwner creates the owner or refreshes its contact fields
func (uc *AccountUseCase) RegisterOwner(ctx context.Context, ownerID int64, username string, chatID int64) (*entities.Owner, error) {
	owner, err := uc.store.GetOwner(ctx, ownerID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		o := entities.NewOwner(ownerID, username, chatID)
		if err := uc.store.SaveOwner(ctx, o); err != nil {
			return nil, err
		}
		log.Printf("Registered owner %d (%s)", ownerID, username)
		return uc.store.GetOwner(ctx, ownerID)
	case err != nil:
		return nil, err
	}

	if owner.Username == username && owner.ChatID == chatID {
		return owner, nil
	}
	owner.Username = username
	if chatID != 0 {
		owner.ChatID = chatID
	}
	if err := uc.store.SaveOwner(ctx, *owner); err != nil {
		return nil, err
	}
	return owner, nil
}

// EnsureOwner registers an owner known only by id
func (uc *AccountUseCase) EnsureOwner(ctx context.Context, ownerID int64) error {
	_, err := uc.store.GetOwner(ctx, ownerID)
	if errors.Is(err, repository.ErrNotFound) {
		return uc.store.SaveOwner(ctx, entities.NewOwner(ownerID, "", 0))
	}
	return err
}

// GetOwner returns the stored owner
func (uc *AccountUseCase) GetOwner(ctx context.Context, ownerID int64) (*entities.Owner, error) {
	return uc.store.GetOwner(ctx, ownerID)
}

// SetLocation geocodes query and stores it as the owner's location. Outdoor
// plants are recomputed with the new location's weather in the background.
func (uc *AccountUseCase) SetLocation(ctx context.Context, ownerID int64, query string) (*entities.Location, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &entities.ValidationError{Field: "location", Reason: "must not be empty"}
	}
	place, err := uc.geocoder.Geocode(ctx, query)
	if err != nil {
		return nil, err
	}
	if err := uc.EnsureOwner(ctx, ownerID); err != nil {
		return nil, err
	}

	loc := &entities.Location{
		OwnerID:   ownerID,
		Name:      place.Name,
		Latitude:  place.Latitude,
		Longitude: place.Longitude,
		Active:    true,
	}
	if err := uc.store.SaveLocation(ctx, loc); err != nil {
		return nil, err
	}

	uc.submitReport(ownerID, fmt.Sprintf("recalculate owner %d", ownerID), func(ctx context.Context) (*BatchReport, error) {
		return uc.recalc.RunForOwner(ctx, ownerID)
	})
	return loc, nil
}

// SetIndoorClimate stores the owner's indoor temperature and humidity and
// recomputes every indoor plant. nil values clear a reading.
func (uc *AccountUseCase) SetIndoorClimate(ctx context.Context, ownerID int64, temp, humidity *float64) error {
	if err := entities.ValidateIndoorClimate(temp, humidity); err != nil {
		return err
	}
	if err := uc.EnsureOwner(ctx, ownerID); err != nil {
		return err
	}
	if err := uc.store.SetIndoorClimate(ctx, ownerID, temp, humidity); err != nil {
		return err
	}

	plants, err := uc.store.ListPlantsByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, p := range plants {
		if !p.IsOutdoor() {
			submitRecompute(uc.tasks, uc.recalc, p.ID)
		}
	}
	return nil
}

// SetReminderTime changes when reminders fire and moves existing events
func (uc *AccountUseCase) SetReminderTime(ctx context.Context, ownerID int64, hour, minute int) error {
	if err := entities.ValidateReminderTime(hour, minute); err != nil {
		return err
	}
	if err := uc.EnsureOwner(ctx, ownerID); err != nil {
		return err
	}
	if err := uc.store.SetReminderTime(ctx, ownerID, hour, minute); err != nil {
		return err
	}

	plants, err := uc.store.ListPlantsByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, p := range plants {
		if p.HasEvent() {
			submitRecompute(uc.tasks, uc.recalc, p.ID)
		}
	}
	return nil
}

// CalendarStatus reports whether the owner has a linked calendar
func (uc *AccountUseCase) CalendarStatus(ctx context.Context, ownerID int64) (*CalendarStatus, error) {
	linked, err := uc.creds.IsLinked(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	plants, err := uc.store.ListPlantsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	status := &CalendarStatus{Linked: linked, CalendarID: entities.DefaultCalendarID, TotalPlants: len(plants)}
	if owner, err := uc.store.GetOwner(ctx, ownerID); err == nil && owner.CalendarID != "" {
		status.CalendarID = owner.CalendarID
	}
	for _, p := range plants {
		if p.HasEvent() {
			status.SyncedPlants++
		}
	}
	return status, nil
}

// StartCalendarLink returns the authorization URL the owner has to open
func (uc *AccountUseCase) StartCalendarLink(ctx context.Context, ownerID int64) (string, error) {
	if err := uc.EnsureOwner(ctx, ownerID); err != nil {
		return "", err
	}

	state := uuid.NewString()
	now := uc.now()

	uc.mu.Lock()
	for s, ls := range uc.states {
		if now.After(ls.expires) {
			delete(uc.states, s)
		}
	}
	uc.states[state] = linkState{ownerID: ownerID, expires: now.Add(linkStateTTL)}
	uc.mu.Unlock()

	return uc.oauth.AuthCodeURL(state), nil
}

// CompleteCalendarLink exchanges the authorization code, stores the
// credential and backfills events for plants that have none.
func (uc *AccountUseCase) CompleteCalendarLink(ctx context.Context, state, code string) (int64, error) {
	uc.mu.Lock()
	ls, ok := uc.states[state]
	delete(uc.states, state)
	uc.mu.Unlock()

	if !ok || uc.now().After(ls.expires) {
		return 0, ErrInvalidState
	}
	if code == "" {
		return 0, &entities.ValidationError{Field: "code", Reason: "is required"}
	}

	tok, err := uc.oauth.Exchange(ctx, code)
	if err != nil {
		return 0, err
	}
	if err := uc.creds.Link(ctx, ls.ownerID, tok); err != nil {
		return 0, err
	}
	log.Printf("Owner %d linked a calendar", ls.ownerID)

	uc.submitReport(ls.ownerID, fmt.Sprintf("backfill owner %d", ls.ownerID), func(ctx context.Context) (*BatchReport, error) {
		return uc.recalc.Backfill(ctx, ls.ownerID)
	})
	return ls.ownerID, nil
}

// DisconnectCalendar deletes every event of the owner's plants, best effort,
// and then forgets the credential. The report lists events that could not be deleted.
func (uc *AccountUseCase) DisconnectCalendar(ctx context.Context, ownerID int64) (*BatchReport, error) {
	plants, err := uc.store.ListPlantsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	report := &BatchReport{RunID: uuid.NewString(), Trigger: TriggerManual, StartedAt: uc.now()}
	for i := range plants {
		if !plants[i].HasEvent() {
			continue
		}
		res := uc.calendar.Remove(ctx, &plants[i])
		report.Plants = append(report.Plants, PlantReport{
			PlantID: plants[i].ID,
			OwnerID: ownerID,
			Name:    plants[i].Name,
			Sync:    res,
		})
	}

	if err := uc.creds.Disconnect(ctx, ownerID); err != nil {
		return report, err
	}
	report.FinishedAt = uc.now()
	log.Printf("Owner %d disconnected the calendar: %s", ownerID, report.Summary())
	return report, nil
}

// Recalculate runs the owner's location batch. With wait it returns the
// report, otherwise the batch is queued and the owner is notified when done.
func (uc *AccountUseCase) Recalculate(ctx context.Context, ownerID int64, wait bool) (*BatchReport, error) {
	if _, err := uc.store.GetLocationByOwner(ctx, ownerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoLocation
		}
		return nil, err
	}
	if wait {
		return uc.recalc.RunForOwner(ctx, ownerID)
	}

	err := uc.tasks.Submit(Task{
		Name: fmt.Sprintf("recalculate owner %d", ownerID),
		Run:  uc.reportTask(ownerID, func(ctx context.Context) (*BatchReport, error) { return uc.recalc.RunForOwner(ctx, ownerID) }),
	})
	return nil, err
}

func (uc *AccountUseCase) submitReport(ownerID int64, name string, run func(ctx context.Context) (*BatchReport, error)) {
	if err := uc.tasks.Submit(Task{Name: name, Run: uc.reportTask(ownerID, run)}); err != nil {
		log.Printf("Warning: could not queue %s: %v", name, err)
	}
}

// reportTask wraps a batch so its report is sent to the owner
func (uc *AccountUseCase) reportTask(ownerID int64, run func(ctx context.Context) (*BatchReport, error)) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		report, err := run(ctx)
		if err != nil {
			return err
		}
		if n := uc.currentNotifier(); n != nil && len(report.AllPlants()) > 0 {
			if err := n.NotifyOwner(ctx, ownerID, FormatReport(report)); err != nil {
				log.Printf("Failed to notify owner %d: %v", ownerID, err)
			}
		}
		return nil
	}
}
