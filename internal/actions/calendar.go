package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/internal/store"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// CalendarManager owns event scheduling: creation with conflict detection,
// updates with re-detection when the window moves, and cancellation. The
// three action kinds are exposed as thin Handler wrappers over the manager.
type CalendarManager struct {
	store store.Store
}

func NewCalendarManager(s store.Store) *CalendarManager {
	return &CalendarManager{store: s}
}

// DetectConflicts finds confirmed events overlapping [start, end) that share
// at least one attendee with the proposed set. excludeID skips the event
// being rescheduled.
func (m *CalendarManager) DetectConflicts(ctx context.Context, orgID string, start, end time.Time, attendees []string, excludeID string) (models.ConflictResult, error) {
	existing, err := m.store.ListEventsInWindow(ctx, orgID, start, end)
	if err != nil {
		return models.ConflictResult{}, fmt.Errorf("list events in window: %w", err)
	}

	result := models.ConflictResult{Type: models.ConflictNone}
	for _, ev := range existing {
		if ev.ID == excludeID || !ev.Overlaps(start, end) {
			continue
		}
		for _, a := range attendees {
			if ev.HasAttendee(a) {
				result.Conflicts = append(result.Conflicts, ev)
				result.Type = models.ConflictOverlap
				break
			}
		}
	}
	return result, nil
}

func (m *CalendarManager) recordActivity(ctx context.Context, orgID, verb, eventID, decisionID string, detail map[string]interface{}) {
	if detail == nil {
		detail = map[string]interface{}{}
	}
	detail["decision_id"] = decisionID
	entry := &models.ActivityEntry{
		ID:      uuid.NewString(),
		OrgID:   orgID,
		Actor:   "agent",
		Verb:    verb,
		Subject: "event:" + eventID,
		Detail:  detail,
		At:      time.Now().UTC(),
	}
	if err := m.store.AppendActivity(ctx, entry); err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("activity append failed")
	}
}

// ── Create ───────────────────────────────────────────────────

type EventCreator struct{ *CalendarManager }

func (h EventCreator) Kind() models.ActionKind { return models.ActionCreateEvent }

func (h EventCreator) Execute(ctx context.Context, req Request) (map[string]interface{}, error) {
	params := req.Action.CreateEvent
	if !params.End.After(params.Start) {
		return nil, &InvalidStateError{Entity: "event", Key: params.Title, Reason: "end must be after start"}
	}

	if !params.Override {
		conflicts, err := h.DetectConflicts(ctx, req.OrgID, params.Start, params.End, params.Attendees, "")
		if err != nil {
			return nil, err
		}
		if conflicts.HasConflicts() {
			return nil, &ConflictError{Result: conflicts}
		}
	}

	now := time.Now().UTC()
	event := &models.CalendarEvent{
		ID:          uuid.NewString(),
		OrgID:       req.OrgID,
		Title:       params.Title,
		Description: params.Description,
		Start:       params.Start,
		End:         params.End,
		Attendees:   params.Attendees,
		Location:    params.Location,
		IntakeID:    params.IntakeID,
		Status:      models.EventConfirmed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.store.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	h.recordActivity(ctx, req.OrgID, "scheduled", event.ID, req.DecisionID, map[string]interface{}{
		"title": event.Title,
		"start": event.Start,
		"end":   event.End,
	})

	log.Info().
		Str("org_id", req.OrgID).
		Str("event_id", event.ID).
		Time("start", event.Start).
		Bool("override", params.Override).
		Msg("event scheduled")

	return map[string]interface{}{"event_id": event.ID}, nil
}

// ── Update ───────────────────────────────────────────────────

type EventUpdater struct{ *CalendarManager }

func (h EventUpdater) Kind() models.ActionKind { return models.ActionUpdateEvent }

func (h EventUpdater) Execute(ctx context.Context, req Request) (map[string]interface{}, error) {
	params := req.Action.UpdateEvent

	event, err := h.store.GetEvent(ctx, req.OrgID, params.EventID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, &NotFoundError{Entity: "event", Key: params.EventID}
		}
		return nil, fmt.Errorf("load event: %w", err)
	}
	if event.Status == models.EventCancelled {
		return nil, &InvalidStateError{Entity: "event", Key: event.ID, Reason: "is cancelled"}
	}

	if params.Title != "" {
		event.Title = params.Title
	}
	if params.Description != "" {
		event.Description = params.Description
	}

	windowMoved := false
	if params.Start != nil {
		event.Start = *params.Start
		windowMoved = true
	}
	if params.End != nil {
		event.End = *params.End
		windowMoved = true
	}
	if !event.End.After(event.Start) {
		return nil, &InvalidStateError{Entity: "event", Key: event.ID, Reason: "end must be after start"}
	}

	for _, add := range params.AddAttendees {
		if !event.HasAttendee(add) {
			event.Attendees = append(event.Attendees, add)
		}
	}
	for _, remove := range params.RemoveAttendees {
		event.Attendees = withoutAttendee(event.Attendees, remove)
	}

	if windowMoved {
		conflicts, err := h.DetectConflicts(ctx, req.OrgID, event.Start, event.End, event.Attendees, event.ID)
		if err != nil {
			return nil, err
		}
		if conflicts.HasConflicts() {
			return nil, &ConflictError{Result: conflicts}
		}
	}

	event.UpdatedAt = time.Now().UTC()
	if err := h.store.UpdateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}

	h.recordActivity(ctx, req.OrgID, "rescheduled", event.ID, req.DecisionID, map[string]interface{}{
		"start": event.Start,
		"end":   event.End,
	})

	return map[string]interface{}{"event_id": event.ID}, nil
}

// ── Cancel ───────────────────────────────────────────────────

type EventCanceller struct{ *CalendarManager }

func (h EventCanceller) Kind() models.ActionKind { return models.ActionCancelEvent }

func (h EventCanceller) Execute(ctx context.Context, req Request) (map[string]interface{}, error) {
	params := req.Action.CancelEvent

	event, err := h.store.GetEvent(ctx, req.OrgID, params.EventID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, &NotFoundError{Entity: "event", Key: params.EventID}
		}
		return nil, fmt.Errorf("load event: %w", err)
	}
	if event.Status == models.EventCancelled {
		return nil, &InvalidStateError{Entity: "event", Key: event.ID, Reason: "is already cancelled"}
	}

	event.Status = models.EventCancelled
	event.UpdatedAt = time.Now().UTC()
	if err := h.store.UpdateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("cancel event: %w", err)
	}

	h.recordActivity(ctx, req.OrgID, "cancelled", event.ID, req.DecisionID, map[string]interface{}{
		"reason": params.Reason,
	})

	log.Info().
		Str("org_id", req.OrgID).
		Str("event_id", event.ID).
		Str("reason", params.Reason).
		Msg("event cancelled")

	return map[string]interface{}{
		"event_id":         event.ID,
		"notify_attendees": params.NotifyAttendees,
		"attendees":        event.Attendees,
	}, nil
}

func withoutAttendee(attendees []string, remove string) []string {
	out := attendees[:0]
	for _, a := range attendees {
		if a != remove {
			out = append(out, a)
		}
	}
	return out
}
