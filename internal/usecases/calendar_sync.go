package usecases

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
	"github.com/abelzeko/riego-bot/internal/integration"
	"github.com/abelzeko/riego-bot/internal/repository"
)

// eventColorID is "Blueberry" in Google Calendar
const eventColorID = "9"

// SyncStatus is the outcome of one calendar operation
type SyncStatus int

const (
	SyncOK SyncStatus = iota
	SyncSkipped
	SyncFailed
)

func (s SyncStatus) String() string {
	switch s {
	case SyncOK:
		return "ok"
	case SyncSkipped:
		return "skipped"
	case SyncFailed:
		return "failed"
	}
	return "unknown"
}

// SyncResult is returned by every CalendarSync operation
type SyncResult struct {
	PlantID int64
	Status  SyncStatus
	EventID string // Event referenced by the plant afterwards
	Err     error
}

// ClientProvider hands out authorized calendar clients per owner
type ClientProvider interface {
	GetClient(ctx context.Context, ownerID int64) (integration.CalendarClient, error)
}

// Reminder is what gets written to the calendar for a plant
type Reminder struct {
	Date          time.Time
	RecommendedML int
	Reason        string
}

// CalendarSync keeps exactly one calendar event per plant
type CalendarSync struct {
	clients         ClientProvider
	plants          repository.PlantRepository
	owners          repository.OwnerRepository
	reminderMinutes int
	timeout         time.Duration
}

// NewCalendarSync creates a synchronizer. reminderMinutes is the popup lead time,
// timeout bounds every calendar call.
func NewCalendarSync(clients ClientProvider, plants repository.PlantRepository, owners repository.OwnerRepository, reminderMinutes int, timeout time.Duration) *CalendarSync {
	return &CalendarSync{
		clients:         clients,
		plants:          plants,
		owners:          owners,
		reminderMinutes: reminderMinutes,
		timeout:         timeout,
	}
}

// Upsert replaces the plant's event with one on r.Date. The old events, the one
// on plant and the one stored for it, are deleted first; a failed delete is
// logged and ignored. After a failed create the plant references no event.
// The plant's EventID is updated in place.
func (s *CalendarSync) Upsert(ctx context.Context, plant *entities.Plant, r Reminder) SyncResult {
	result := SyncResult{PlantID: plant.ID, EventID: plant.EventID}

	client, err := s.clients.GetClient(ctx, plant.OwnerID)
	if err != nil {
		return s.clientFailure(result, plant, err)
	}

	owner := s.owner(ctx, plant.OwnerID)
	calendarID := owner.CalendarID

	for _, id := range s.knownEvents(ctx, plant) {
		s.deleteEvent(ctx, client, calendarID, plant.ID, id)
	}

	ev := s.buildEvent(plant, owner, r)
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	eventID, err := client.CreateEvent(cctx, calendarID, ev)
	cancel()
	if err != nil {
		log.Printf("Failed to create calendar event for plant %d (%s): %v", plant.ID, plant.Name, err)
		if clearErr := s.plants.SetPlantEventID(ctx, plant.ID, ""); clearErr != nil && !errors.Is(clearErr, repository.ErrNotFound) {
			log.Printf("Failed to clear event reference of plant %d: %v", plant.ID, clearErr)
		}
		plant.EventID = ""
		result.EventID = ""
		result.Status = SyncFailed
		result.Err = &CalendarAPIError{Op: "create", PlantID: plant.ID, Err: err}
		return result
	}

	if err := s.plants.SetPlantEventID(ctx, plant.ID, eventID); err != nil {
		// Roll the new event back so no event exists without a reference
		log.Printf("Failed to store event %s for plant %d, deleting it: %v", eventID, plant.ID, err)
		dctx, cancel := context.WithTimeout(ctx, s.timeout)
		if delErr := client.DeleteEvent(dctx, calendarID, eventID); delErr != nil && !errors.Is(delErr, integration.ErrEventNotFound) {
			log.Printf("Failed to roll back event %s: %v", eventID, delErr)
		}
		cancel()
		plant.EventID = ""
		result.EventID = ""
		result.Status = SyncFailed
		result.Err = fmt.Errorf("failed to store event reference of plant %d: %w", plant.ID, err)
		return result
	}

	log.Printf("Synced plant %d (%s) to %s, event %s", plant.ID, plant.Name, r.Date.Format(entities.DateLayout), eventID)
	plant.EventID = eventID
	result.EventID = eventID
	result.Status = SyncOK
	return result
}

// Remove deletes the plant's events if any and always clears the reference
func (s *CalendarSync) Remove(ctx context.Context, plant *entities.Plant) SyncResult {
	result := SyncResult{PlantID: plant.ID, Status: SyncOK}

	if ids := s.knownEvents(ctx, plant); len(ids) > 0 {
		client, err := s.clients.GetClient(ctx, plant.OwnerID)
		if err != nil {
			log.Printf("Cannot delete events %v of plant %d, clearing reference only: %v", ids, plant.ID, err)
			result.Status = SyncSkipped
			result.Err = err
		} else {
			owner := s.owner(ctx, plant.OwnerID)
			for _, id := range ids {
				if err := s.deleteEvent(ctx, client, owner.CalendarID, plant.ID, id); err != nil && result.Err == nil {
					result.Status = SyncFailed
					result.Err = &CalendarAPIError{Op: "delete", PlantID: plant.ID, Err: err}
				}
			}
		}
	}

	// The plant row may already be gone when it was deleted
	if err := s.plants.SetPlantEventID(ctx, plant.ID, ""); err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.Printf("Failed to clear event reference of plant %d: %v", plant.ID, err)
		if result.Err == nil {
			result.Status = SyncFailed
			result.Err = err
		}
	}
	plant.EventID = ""
	return result
}

// knownEvents returns the event on plant plus the one currently stored for it,
// which a concurrent recompute may have replaced since plant was read.
func (s *CalendarSync) knownEvents(ctx context.Context, plant *entities.Plant) []string {
	var ids []string
	if plant.HasEvent() {
		ids = append(ids, plant.EventID)
	}
	stored, err := s.plants.GetPlant(ctx, plant.ID)
	switch {
	case err == nil:
		if stored.HasEvent() && stored.EventID != plant.EventID {
			ids = append(ids, stored.EventID)
		}
	case !errors.Is(err, repository.ErrNotFound):
		log.Printf("Failed to reload event reference of plant %d: %v", plant.ID, err)
	}
	return ids
}

// deleteEvent removes one event of a plant. Missing events count as deleted.
func (s *CalendarSync) deleteEvent(ctx context.Context, client integration.CalendarClient, calendarID string, plantID int64, eventID string) error {
	dctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := client.DeleteEvent(dctx, calendarID, eventID)
	switch {
	case err == nil:
		log.Printf("Deleted event %s of plant %d", eventID, plantID)
		return nil
	case errors.Is(err, integration.ErrEventNotFound):
		log.Printf("Event %s of plant %d was already gone", eventID, plantID)
		return nil
	default:
		log.Printf("Warning: failed to delete event %s of plant %d: %v", eventID, plantID, err)
		return err
	}
}

func (s *CalendarSync) clientFailure(result SyncResult, plant *entities.Plant, err error) SyncResult {
	result.Err = err
	if isCredentialError(err) {
		log.Printf("Skipping calendar sync of plant %d: %v", plant.ID, err)
		result.Status = SyncSkipped
		return result
	}
	log.Printf("Failed to get calendar client for plant %d: %v", plant.ID, err)
	result.Status = SyncFailed
	return result
}

// owner loads calendar preferences, falling back to defaults
func (s *CalendarSync) owner(ctx context.Context, ownerID int64) entities.Owner {
	o, err := s.owners.GetOwner(ctx, ownerID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Printf("Failed to load owner %d, using defaults: %v", ownerID, err)
		}
		return entities.NewOwner(ownerID, "", 0)
	}
	if o.CalendarID == "" {
		o.CalendarID = entities.DefaultCalendarID
	}
	return *o
}

func (s *CalendarSync) buildEvent(plant *entities.Plant, owner entities.Owner, r Reminder) integration.CalendarEvent {
	loc := owner.Location()
	y, m, d := r.Date.Date()
	start := time.Date(y, m, d, owner.ReminderHour, owner.ReminderMinute, 0, 0, loc)

	return integration.CalendarEvent{
		Summary:         "Regar " + plant.Name,
		Description:     EventDescription(plant, r),
		Start:           start,
		End:             start.Add(time.Hour),
		TimeZone:        loc.String(),
		ReminderMinutes: s.reminderMinutes,
		ColorID:         eventColorID,
	}
}

// EventDescription renders the body of a watering reminder
func EventDescription(plant *entities.Plant, r Reminder) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💧 Riego programado para %s\n\n", plant.Name)
	fmt.Fprintf(&b, "💧 Cantidad de agua recomendada: %d ml.\n", r.RecommendedML)
	fmt.Fprintf(&b, "🪴 Tipo de planta: %s, maceta de %.1f L (%s).", plant.Kind, plant.PotLiters, plant.Mode)
	if r.Reason != "" {
		fmt.Fprintf(&b, "\n\n%s", r.Reason)
	}
	return b.String()
}
