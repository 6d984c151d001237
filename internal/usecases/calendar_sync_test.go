package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
)

func TestUpsertTwiceLeavesOneEvent(t *testing.T) {
	repo := newTestRepository(t)
	cal := newFakeCalendar()
	cs := NewCalendarSync(fakeClients{client: cal}, repo, repo, 60, time.Second)
	plant := seedPlant(t, repo, 1, "Amnesia", entities.ModeIndoor, "2025-01-01")
	ctx := context.Background()

	r := Reminder{Date: mustDay(t, "2025-01-06"), RecommendedML: 1500}
	first := cs.Upsert(ctx, plant, r)
	if first.Status != SyncOK {
		t.Fatalf("First upsert failed: %v", first.Err)
	}
	second := cs.Upsert(ctx, plant, r)
	if second.Status != SyncOK {
		t.Fatalf("Second upsert failed: %v", second.Err)
	}

	if cal.liveCount() != 1 {
		t.Errorf("Expected exactly one live event, got %d", cal.liveCount())
	}
	if cal.has(first.EventID) {
		t.Errorf("First event %s should have been deleted", first.EventID)
	}
	if got := storedPlant(t, repo, plant.ID).EventID; got != second.EventID || !cal.has(got) {
		t.Errorf("Expected stored reference %s to be live, got %s", second.EventID, got)
	}
}

func TestRemoveAfterOutOfBandDelete(t *testing.T) {
	repo := newTestRepository(t)
	cal := newFakeCalendar()
	cs := NewCalendarSync(fakeClients{client: cal}, repo, repo, 60, time.Second)
	plant := seedPlant(t, repo, 1, "Amnesia", entities.ModeIndoor, "2025-01-01")
	ctx := context.Background()

	res := cs.Upsert(ctx, plant, Reminder{Date: mustDay(t, "2025-01-06")})
	if res.Status != SyncOK {
		t.Fatalf("Upsert failed: %v", res.Err)
	}
	// Deleted by the user in the calendar app
	cal.DeleteEvent(ctx, "primary", res.EventID)

	removed := cs.Remove(ctx, plant)
	if removed.Status != SyncOK || removed.Err != nil {
		t.Errorf("Expected clean removal, got %s: %v", removed.Status, removed.Err)
	}
	if got := storedPlant(t, repo, plant.ID).EventID; got != "" {
		t.Errorf("Expected cleared reference, got %s", got)
	}
}

func TestRemoveDeletedPlant(t *testing.T) {
	repo := newTestRepository(t)
	cal := newFakeCalendar()
	cs := NewCalendarSync(fakeClients{client: cal}, repo, repo, 60, time.Second)
	plant := seedPlant(t, repo, 1, "Amnesia", entities.ModeIndoor, "2025-01-01")
	ctx := context.Background()

	cs.Upsert(ctx, plant, Reminder{Date: mustDay(t, "2025-01-06")})
	snapshot := *plant
	if err := repo.DeletePlant(ctx, plant.ID); err != nil {
		t.Fatalf("Failed to delete plant: %v", err)
	}

	res := cs.Remove(ctx, &snapshot)
	if res.Status != SyncOK {
		t.Errorf("Expected ok, got %s: %v", res.Status, res.Err)
	}
	if cal.liveCount() != 0 {
		t.Errorf("Expected no live events, got %d", cal.liveCount())
	}
}

func TestUpsertCreateFailureClearsReference(t *testing.T) {
	repo := newTestRepository(t)
	cal := newFakeCalendar()
	cs := NewCalendarSync(fakeClients{client: cal}, repo, repo, 60, time.Second)
	plant := seedPlant(t, repo, 1, "Amnesia", entities.ModeIndoor, "2025-01-01")
	ctx := context.Background()

	if res := cs.Upsert(ctx, plant, Reminder{Date: mustDay(t, "2025-01-06")}); res.Status != SyncOK {
		t.Fatalf("Upsert failed: %v", res.Err)
	}

	cal.createErr = errors.New("quota exceeded")
	res := cs.Upsert(ctx, plant, Reminder{Date: mustDay(t, "2025-01-07")})
	if res.Status != SyncFailed {
		t.Fatalf("Expected failure, got %s", res.Status)
	}
	var apiErr *CalendarAPIError
	if !errors.As(res.Err, &apiErr) || apiErr.Op != "create" {
		t.Errorf("Expected CalendarAPIError on create, got %v", res.Err)
	}
	if got := storedPlant(t, repo, plant.ID).EventID; got != "" {
		t.Errorf("Expected no reference after failed create, got %s", got)
	}
	if plant.EventID != "" || res.EventID != "" {
		t.Errorf("Expected in-memory reference cleared, got %q / %q", plant.EventID, res.EventID)
	}
	if cal.liveCount() != 0 {
		t.Errorf("Expected the previous event deleted, %d live", cal.liveCount())
	}
}

func TestUpsertIgnoresFailedDelete(t *testing.T) {
	repo := newTestRepository(t)
	cal := newFakeCalendar()
	cs := NewCalendarSync(fakeClients{client: cal}, repo, repo, 60, time.Second)
	plant := seedPlant(t, repo, 1, "Amnesia", entities.ModeIndoor, "2025-01-01")
	ctx := context.Background()

	cs.Upsert(ctx, plant, Reminder{Date: mustDay(t, "2025-01-06")})
	cal.deleteErr = errors.New("backend error")
	res := cs.Upsert(ctx, plant, Reminder{Date: mustDay(t, "2025-01-07")})
	if res.Status != SyncOK {
		t.Fatalf("Expected the new event despite delete failure, got %s: %v", res.Status, res.Err)
	}
	if got := storedPlant(t, repo, plant.ID).EventID; got != res.EventID {
		t.Errorf("Expected reference %s, got %s", res.EventID, got)
	}
}

func TestUpsertWithoutCredentialIsSkipped(t *testing.T) {
	repo := newTestRepository(t)
	plant := seedPlant(t, repo, 1, "Amnesia", entities.ModeIndoor, "2025-01-01")
	ctx := context.Background()
	if err := repo.SetPlantEventID(ctx, plant.ID, "old-event"); err != nil {
		t.Fatalf("Failed to set event: %v", err)
	}
	plant.EventID = "old-event"

	for _, credErr := range []error{ErrCredentialMissing, ErrCredentialExpired} {
		cs := NewCalendarSync(fakeClients{err: fmt.Errorf("owner 1: %w", credErr)}, repo, repo, 60, time.Second)
		res := cs.Upsert(ctx, plant, Reminder{Date: mustDay(t, "2025-01-06")})
		if res.Status != SyncSkipped {
			t.Errorf("%v: expected skipped, got %s", credErr, res.Status)
		}
		if !errors.Is(res.Err, credErr) {
			t.Errorf("Expected %v, got %v", credErr, res.Err)
		}
		if got := storedPlant(t, repo, plant.ID).EventID; got != "old-event" {
			t.Errorf("Reference should be untouched, got %q", got)
		}
	}
}

func TestUpsertTransientClientErrorFails(t *testing.T) {
	repo := newTestRepository(t)
	plant := seedPlant(t, repo, 1, "Amnesia", entities.ModeIndoor, "2025-01-01")
	cs := NewCalendarSync(fakeClients{err: errors.New("connection reset")}, repo, repo, 60, time.Second)

	res := cs.Upsert(context.Background(), plant, Reminder{Date: mustDay(t, "2025-01-06")})
	if res.Status != SyncFailed {
		t.Errorf("Expected failed, got %s", res.Status)
	}
}

func TestEventDetails(t *testing.T) {
	repo := newTestRepository(t)
	cal := newFakeCalendar()
	cs := NewCalendarSync(fakeClients{client: cal}, repo, repo, 45, time.Second)
	plant := seedPlant(t, repo, 7, "Gorilla", entities.ModeOutdoor, "2025-01-01")
	ctx := context.Background()
	if err := repo.SetReminderTime(ctx, 7, 20, 30); err != nil {
		t.Fatalf("Failed to set reminder time: %v", err)
	}

	res := cs.Upsert(ctx, plant, Reminder{Date: mustDay(t, "2025-01-06"), RecommendedML: 1500, Reason: "Lluvia leve (3.0mm) +0.5 días"})
	if res.Status != SyncOK {
		t.Fatalf("Upsert failed: %v", res.Err)
	}
	ev := cal.created[0]
	if ev.Summary != "Regar Gorilla" {
		t.Errorf("Unexpected summary %q", ev.Summary)
	}
	want := time.Date(2025, 1, 6, 20, 30, 0, 0, time.UTC)
	if !ev.Start.Equal(want) || ev.End.Sub(ev.Start) != time.Hour {
		t.Errorf("Expected 1h event at %s, got %s - %s", want, ev.Start, ev.End)
	}
	if ev.ReminderMinutes != 45 {
		t.Errorf("Expected 45 minute reminder, got %d", ev.ReminderMinutes)
	}
	for _, part := range []string{"1500 ml", "photo", "Lluvia leve"} {
		if !strings.Contains(ev.Description, part) {
			t.Errorf("Description %q misses %q", ev.Description, part)
		}
	}
}

func TestUpsertWithStaleSnapshotDeletesStoredEvent(t *testing.T) {
	repo := newTestRepository(t)
	cal := newFakeCalendar()
	cs := NewCalendarSync(fakeClients{client: cal}, repo, repo, 60, time.Second)
	plant := seedPlant(t, repo, 1, "Amnesia", entities.ModeOutdoor, "2025-01-01")
	ctx := context.Background()
	r := Reminder{Date: mustDay(t, "2025-01-06"), RecommendedML: 1500}

	first := cs.Upsert(ctx, plant, r)
	stale := *plant

	// Another recompute replaces the event after the snapshot was taken
	second := cs.Upsert(ctx, storedPlant(t, repo, plant.ID), r)
	if second.Status != SyncOK {
		t.Fatalf("Second upsert failed: %v", second.Err)
	}

	third := cs.Upsert(ctx, &stale, r)
	if third.Status != SyncOK {
		t.Fatalf("Upsert from the stale snapshot failed: %v", third.Err)
	}
	if cal.liveCount() != 1 {
		t.Errorf("Expected exactly one live event, got %d", cal.liveCount())
	}
	if cal.has(first.EventID) || cal.has(second.EventID) {
		t.Errorf("Events %s and %s should be gone", first.EventID, second.EventID)
	}
	if got := storedPlant(t, repo, plant.ID).EventID; got != third.EventID || !cal.has(got) {
		t.Errorf("Expected stored reference %s to be live, got %s", third.EventID, got)
	}
}

func TestRemoveWithStaleSnapshotDeletesStoredEvent(t *testing.T) {
	repo := newTestRepository(t)
	cal := newFakeCalendar()
	cs := NewCalendarSync(fakeClients{client: cal}, repo, repo, 60, time.Second)
	plant := seedPlant(t, repo, 1, "Amnesia", entities.ModeIndoor, "2025-01-01")
	ctx := context.Background()

	stale := *plant
	cs.Upsert(ctx, plant, Reminder{Date: mustDay(t, "2025-01-06")})

	res := cs.Remove(ctx, &stale)
	if res.Status != SyncOK {
		t.Errorf("Expected ok, got %s: %v", res.Status, res.Err)
	}
	if cal.liveCount() != 0 {
		t.Errorf("Expected no live events, got %d", cal.liveCount())
	}
	if got := storedPlant(t, repo, plant.ID).EventID; got != "" {
		t.Errorf("Expected cleared reference, got %s", got)
	}
}
