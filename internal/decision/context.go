// Package decision implements the LLM-backed decision engine: context
// assembly, prompting, response parsing, the confirmation gate, and the
// pending-decision tracker for human-approval flows.
package decision

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/internal/store"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// Context is everything the model sees besides the input itself: org
// configuration and a bounded window of operational state.
type Context struct {
	Settings models.AgentSettings

	// PriorDecisions for the same correlation id, newest first. Lets the
	// model see a reply thread's history.
	PriorDecisions []models.AgentDecisionResult

	// Pipelines the org can assign into.
	Pipelines []models.Pipeline

	// OpenIntakeCounts per assignee, for load-aware suggestions.
	OpenIntakeCounts map[string]int

	// UpcomingEvents in the next scheduling horizon.
	UpcomingEvents []models.CalendarEvent
}

const (
	priorDecisionLimit = 5
	schedulingHorizon  = 14 * 24 * time.Hour
)

// ContextBuilder assembles decision contexts from the store.
type ContextBuilder struct {
	store store.Store
}

func NewContextBuilder(s store.Store) *ContextBuilder {
	return &ContextBuilder{store: s}
}

// Build gathers the context for one input. Partial failures degrade to an
// emptier context rather than failing the decision: a missing history is
// survivable, a dropped input is not.
func (b *ContextBuilder) Build(ctx context.Context, input *models.AgentInput, settings models.AgentSettings) *Context {
	dc := &Context{Settings: settings}

	if input.CorrelationID != "" {
		prior, err := b.store.ListDecisions(ctx, input.OrgID, store.DecisionFilter{
			CorrelationID: input.CorrelationID,
			Limit:         priorDecisionLimit,
		})
		if err != nil {
			log.Warn().Err(err).Str("org_id", input.OrgID).Msg("load prior decisions")
		} else {
			dc.PriorDecisions = prior
		}
	}

	pipelines, err := b.store.ListPipelines(ctx, input.OrgID)
	if err != nil {
		log.Warn().Err(err).Str("org_id", input.OrgID).Msg("load pipelines")
	} else {
		dc.Pipelines = pipelines
	}

	counts, err := b.store.CountOpenIntakes(ctx, input.OrgID)
	if err != nil {
		log.Warn().Err(err).Str("org_id", input.OrgID).Msg("count open intakes")
	} else {
		dc.OpenIntakeCounts = counts
	}

	now := time.Now().UTC()
	events, err := b.store.ListEventsInWindow(ctx, input.OrgID, now, now.Add(schedulingHorizon))
	if err != nil {
		log.Warn().Err(err).Str("org_id", input.OrgID).Msg("load upcoming events")
	} else {
		dc.UpcomingEvents = events
	}

	return dc
}
