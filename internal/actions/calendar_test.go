package actions_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pipewise/pipewise/agent-core/internal/actions"
	"github.com/pipewise/pipewise/agent-core/internal/store"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

var calBase = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func seedEvent(t *testing.T, s store.Store, id string, start, end time.Time, attendees ...string) {
	t.Helper()
	err := s.CreateEvent(context.Background(), &models.CalendarEvent{
		ID:        id,
		OrgID:     testOrg,
		Title:     "Existing " + id,
		Start:     start,
		End:       end,
		Attendees: attendees,
		Status:    models.EventConfirmed,
	})
	if err != nil {
		t.Fatalf("CreateEvent(%s): %v", id, err)
	}
}

func createRequest(params models.CreateEventParams) actions.Request {
	return actions.Request{
		OrgID:      testOrg,
		DecisionID: "dec-1",
		Action:     models.AgentAction{Kind: models.ActionCreateEvent, CreateEvent: &params},
	}
}

func TestCreateEvent(t *testing.T) {
	s := store.NewMemoryStore()
	h := actions.EventCreator{CalendarManager: actions.NewCalendarManager(s)}

	data, err := h.Execute(context.Background(), createRequest(models.CreateEventParams{
		Title:     "Kickoff",
		Start:     calBase,
		End:       calBase.Add(time.Hour),
		Attendees: []string{"ada@example.com"},
	}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	eventID, _ := data["event_id"].(string)
	event, err := s.GetEvent(context.Background(), testOrg, eventID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if event.Status != models.EventConfirmed || event.Title != "Kickoff" {
		t.Errorf("event = %+v, want confirmed Kickoff", event)
	}
}

func TestCreateEventDetectsAttendeeOverlap(t *testing.T) {
	s := store.NewMemoryStore()
	seedEvent(t, s, "busy", calBase, calBase.Add(time.Hour), "ada@example.com")
	h := actions.EventCreator{CalendarManager: actions.NewCalendarManager(s)}

	_, err := h.Execute(context.Background(), createRequest(models.CreateEventParams{
		Title:     "Clash",
		Start:     calBase.Add(30 * time.Minute),
		End:       calBase.Add(90 * time.Minute),
		Attendees: []string{"Ada@Example.com"}, // attendee match is case-insensitive
	}))
	var conflict *actions.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
	if len(conflict.Result.Conflicts) != 1 || conflict.Result.Conflicts[0].ID != "busy" {
		t.Errorf("conflicts = %+v, want [busy]", conflict.Result.Conflicts)
	}
	if actions.Retryable(err) {
		t.Error("ConflictError reported retryable")
	}
}

func TestCreateEventDisjointAttendeesDoNotConflict(t *testing.T) {
	s := store.NewMemoryStore()
	seedEvent(t, s, "busy", calBase, calBase.Add(time.Hour), "ada@example.com")
	h := actions.EventCreator{CalendarManager: actions.NewCalendarManager(s)}

	_, err := h.Execute(context.Background(), createRequest(models.CreateEventParams{
		Title:     "Parallel",
		Start:     calBase,
		End:       calBase.Add(time.Hour),
		Attendees: []string{"ben@example.com"},
	}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestCreateEventOverrideSkipsConflicts(t *testing.T) {
	s := store.NewMemoryStore()
	seedEvent(t, s, "busy", calBase, calBase.Add(time.Hour), "ada@example.com")
	h := actions.EventCreator{CalendarManager: actions.NewCalendarManager(s)}

	_, err := h.Execute(context.Background(), createRequest(models.CreateEventParams{
		Title:     "Double-booked on purpose",
		Start:     calBase,
		End:       calBase.Add(time.Hour),
		Attendees: []string{"ada@example.com"},
		Override:  true,
	}))
	if err != nil {
		t.Fatalf("Execute with override: %v", err)
	}
}

func TestUpdateEventReschedules(t *testing.T) {
	s := store.NewMemoryStore()
	seedEvent(t, s, "ev-1", calBase, calBase.Add(time.Hour), "ada@example.com")
	h := actions.EventUpdater{CalendarManager: actions.NewCalendarManager(s)}

	newStart := calBase.Add(24 * time.Hour)
	newEnd := newStart.Add(time.Hour)
	_, err := h.Execute(context.Background(), actions.Request{
		OrgID: testOrg,
		Action: models.AgentAction{
			Kind: models.ActionUpdateEvent,
			UpdateEvent: &models.UpdateEventParams{
				EventID:      "ev-1",
				Start:        &newStart,
				End:          &newEnd,
				AddAttendees: []string{"ben@example.com"},
			},
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	event, _ := s.GetEvent(context.Background(), testOrg, "ev-1")
	if !event.Start.Equal(newStart) {
		t.Errorf("Start = %v, want %v", event.Start, newStart)
	}
	if !event.HasAttendee("ben@example.com") {
		t.Errorf("attendees = %v, want ben@example.com added", event.Attendees)
	}
}

func TestUpdateEventRescheduleIntoConflict(t *testing.T) {
	s := store.NewMemoryStore()
	seedEvent(t, s, "ev-1", calBase, calBase.Add(time.Hour), "ada@example.com")
	seedEvent(t, s, "blocker", calBase.Add(2*time.Hour), calBase.Add(3*time.Hour), "ada@example.com")
	h := actions.EventUpdater{CalendarManager: actions.NewCalendarManager(s)}

	newStart := calBase.Add(2 * time.Hour)
	newEnd := newStart.Add(time.Hour)
	_, err := h.Execute(context.Background(), actions.Request{
		OrgID: testOrg,
		Action: models.AgentAction{
			Kind:        models.ActionUpdateEvent,
			UpdateEvent: &models.UpdateEventParams{EventID: "ev-1", Start: &newStart, End: &newEnd},
		},
	})
	var conflict *actions.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
}

func TestCancelEvent(t *testing.T) {
	s := store.NewMemoryStore()
	seedEvent(t, s, "ev-1", calBase, calBase.Add(time.Hour), "ada@example.com")
	h := actions.EventCanceller{CalendarManager: actions.NewCalendarManager(s)}

	req := actions.Request{
		OrgID: testOrg,
		Action: models.AgentAction{
			Kind:        models.ActionCancelEvent,
			CancelEvent: &models.CancelEventParams{EventID: "ev-1", Reason: "client withdrew"},
		},
	}
	if _, err := h.Execute(context.Background(), req); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	event, _ := s.GetEvent(context.Background(), testOrg, "ev-1")
	if event.Status != models.EventCancelled {
		t.Errorf("Status = %s, want cancelled", event.Status)
	}

	// A second cancel is an invalid state, not a repeatable success.
	_, err := h.Execute(context.Background(), req)
	var invalid *actions.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("second cancel err = %v, want InvalidStateError", err)
	}
}

func TestCancelUnknownEvent(t *testing.T) {
	s := store.NewMemoryStore()
	h := actions.EventCanceller{CalendarManager: actions.NewCalendarManager(s)}

	_, err := h.Execute(context.Background(), actions.Request{
		OrgID: testOrg,
		Action: models.AgentAction{
			Kind:        models.ActionCancelEvent,
			CancelEvent: &models.CancelEventParams{EventID: "missing"},
		},
	})
	var notFound *actions.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}
