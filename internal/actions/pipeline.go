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

// PipelineAssigner moves intakes into pipeline stages. An action without an
// explicit assignee picks the pipeline member with the fewest open intakes.
type PipelineAssigner struct {
	store store.Store
}

func NewPipelineAssigner(s store.Store) *PipelineAssigner {
	return &PipelineAssigner{store: s}
}

func (h *PipelineAssigner) Kind() models.ActionKind { return models.ActionAssignPipeline }

func (h *PipelineAssigner) Execute(ctx context.Context, req Request) (map[string]interface{}, error) {
	params := req.Action.AssignPipeline

	intake, err := h.store.GetIntake(ctx, req.OrgID, params.IntakeID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, &NotFoundError{Entity: "intake", Key: params.IntakeID}
		}
		return nil, fmt.Errorf("load intake: %w", err)
	}
	if intake.PipelineID != "" {
		return nil, &InvalidStateError{
			Entity: "intake",
			Key:    intake.ID,
			Reason: fmt.Sprintf("already assigned to pipeline %s", intake.PipelineID),
		}
	}

	pipeline, err := h.store.GetPipeline(ctx, req.OrgID, params.PipelineID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, &NotFoundError{Entity: "pipeline", Key: params.PipelineID}
		}
		return nil, fmt.Errorf("load pipeline: %w", err)
	}

	stageID := params.StageID
	if stageID == "" {
		first := pipeline.FirstStage()
		if first == nil {
			return nil, &InvalidStateError{Entity: "pipeline", Key: pipeline.ID, Reason: "has no stages"}
		}
		stageID = first.ID
	} else if !pipeline.HasStage(stageID) {
		return nil, &NotFoundError{Entity: "stage", Key: stageID}
	}

	assigneeID := params.AssigneeID
	if assigneeID != "" {
		if !hasMember(pipeline, assigneeID) {
			return nil, &NotFoundError{Entity: "team member", Key: assigneeID}
		}
	} else {
		assigneeID, err = h.leastLoaded(ctx, req.OrgID, pipeline)
		if err != nil {
			return nil, err
		}
	}

	intake.PipelineID = pipeline.ID
	intake.StageID = stageID
	intake.AssigneeID = assigneeID
	intake.Status = models.IntakeAssigned
	intake.UpdatedAt = time.Now().UTC()
	if err := h.store.UpdateIntake(ctx, intake); err != nil {
		return nil, fmt.Errorf("update intake: %w", err)
	}

	h.recordActivity(ctx, req, intake)

	log.Info().
		Str("org_id", req.OrgID).
		Str("intake_id", intake.ID).
		Str("pipeline_id", pipeline.ID).
		Str("assignee_id", assigneeID).
		Msg("intake assigned")

	return map[string]interface{}{
		"intake_id":   intake.ID,
		"pipeline_id": pipeline.ID,
		"stage_id":    stageID,
		"assignee_id": assigneeID,
	}, nil
}

// leastLoaded picks the pipeline member with the fewest open intakes.
// Members with no open intakes count as zero; ties break on member order.
func (h *PipelineAssigner) leastLoaded(ctx context.Context, orgID string, pipeline *models.Pipeline) (string, error) {
	if len(pipeline.Members) == 0 {
		return "", &InvalidStateError{Entity: "pipeline", Key: pipeline.ID, Reason: "has no members to assign"}
	}

	counts, err := h.store.CountOpenIntakes(ctx, orgID)
	if err != nil {
		return "", fmt.Errorf("count open intakes: %w", err)
	}

	best := pipeline.Members[0].ID
	bestLoad := counts[best]
	for _, m := range pipeline.Members[1:] {
		if load := counts[m.ID]; load < bestLoad {
			best = m.ID
			bestLoad = load
		}
	}
	return best, nil
}

func (h *PipelineAssigner) recordActivity(ctx context.Context, req Request, intake *models.Intake) {
	entry := &models.ActivityEntry{
		ID:      uuid.NewString(),
		OrgID:   req.OrgID,
		Actor:   "agent",
		Verb:    "assigned",
		Subject: "intake:" + intake.ID,
		Detail: map[string]interface{}{
			"pipeline_id": intake.PipelineID,
			"stage_id":    intake.StageID,
			"assignee_id": intake.AssigneeID,
			"decision_id": req.DecisionID,
		},
		At: time.Now().UTC(),
	}
	if err := h.store.AppendActivity(ctx, entry); err != nil {
		log.Warn().Err(err).Str("intake_id", intake.ID).Msg("activity append failed")
	}
}

func hasMember(p *models.Pipeline, id string) bool {
	for _, m := range p.Members {
		if m.ID == id {
			return true
		}
	}
	return false
}
