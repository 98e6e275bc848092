// Package agent wires one organization's full orchestration pipeline: the
// ingress handlers publish onto a per-org bus, the decision engine
// classifies asynchronously, and approved decisions flow into the executor.
package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/internal/actions"
	"github.com/pipewise/pipewise/agent-core/internal/bus"
	"github.com/pipewise/pipewise/agent-core/internal/config"
	"github.com/pipewise/pipewise/agent-core/internal/decision"
	"github.com/pipewise/pipewise/agent-core/internal/executor"
	"github.com/pipewise/pipewise/agent-core/internal/idempotency"
	"github.com/pipewise/pipewise/agent-core/internal/inputs"
	"github.com/pipewise/pipewise/agent-core/internal/llm"
	"github.com/pipewise/pipewise/agent-core/internal/metrics"
	"github.com/pipewise/pipewise/agent-core/internal/queue"
	"github.com/pipewise/pipewise/agent-core/internal/ratelimit"
	"github.com/pipewise/pipewise/agent-core/internal/store"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// Deps are the shared process-level dependencies an agent builds on. The
// bus, engine, tracker and executor are per-agent; these are not.
type Deps struct {
	Store    store.Store
	LLM      *llm.Client
	Queue    queue.Queue
	Keeper   idempotency.Keeper
	Limiter  ratelimit.Limiter
	Executor config.ExecutorConfig

	// SweepInterval overrides the tracker's expiry sweep cadence.
	SweepInterval time.Duration
}

// Agent is one organization's orchestration pipeline.
type Agent struct {
	orgID    string
	settings models.AgentSettings
	store    store.Store
	bus      *bus.Bus
	engine   *decision.Engine
	tracker  *decision.Tracker
	exec     *executor.Executor

	webhook   *inputs.WebhookHandler
	email     *inputs.EmailHandler
	worker    *inputs.WorkerEventHandler
	dbTrigger *inputs.DBTriggerHandler

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	baseCtx context.Context
	wg      sync.WaitGroup // in-flight decisions and executions
	sweepWg sync.WaitGroup
	unsubs  []func()

	startedAt         time.Time
	inputsReceived    atomic.Int64
	decisionsMade     atomic.Int64
	fallbackDecisions atomic.Int64
	autoExecuted      atomic.Int64
	actionsCompleted  atomic.Int64
	actionsFailed     atomic.Int64
}

// New builds an agent for one org. It fails only on configuration errors,
// such as an action kind without a handler.
func New(orgID string, settings models.AgentSettings, deps Deps) (*Agent, error) {
	b := bus.New(deps.Store)

	exec := executor.New(orgID, deps.Store, b, deps.Queue, deps.Keeper, deps.Executor)
	calendar := actions.NewCalendarManager(deps.Store)
	exec.Register(actions.NewPipelineAssigner(deps.Store))
	exec.Register(actions.EventCreator{CalendarManager: calendar})
	exec.Register(actions.EventUpdater{CalendarManager: calendar})
	exec.Register(actions.EventCanceller{CalendarManager: calendar})
	exec.Register(actions.NewNotificationDispatcher(deps.Store, settings, deps.Limiter))
	exec.Register(actions.NewAutomationTrigger(settings))
	exec.Register(actions.NewEscalator(deps.Store))
	if err := exec.VerifyRegistrations(); err != nil {
		return nil, err
	}

	return &Agent{
		orgID:     orgID,
		settings:  settings,
		store:     deps.Store,
		bus:       b,
		engine:    decision.NewEngine(orgID, settings, deps.LLM, deps.Store, b),
		tracker:   decision.NewTracker(orgID, settings, deps.Store, b, deps.SweepInterval),
		exec:      exec,
		webhook:   inputs.NewWebhookHandler(orgID, settings, b),
		email:     inputs.NewEmailHandler(orgID, settings, b),
		worker:    inputs.NewWorkerEventHandler(orgID, b),
		dbTrigger: inputs.NewDBTriggerHandler(orgID, settings, b),
	}, nil
}

// Start subscribes the pipeline stages and launches the expiry sweeper.
func (a *Agent) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	a.running = true
	a.startedAt = time.Now().UTC()
	a.baseCtx, a.cancel = context.WithCancel(context.Background())

	a.unsubs = []func(){
		a.bus.Subscribe(decision.EventDecisionApproved, "agent.execute", a.onApproved),
		a.bus.Subscribe(executor.EventActionCompleted, "agent.count", a.onActionDone),
		a.bus.Subscribe(executor.EventActionFailed, "agent.count", a.onActionDone),
	}
	for _, name := range inputs.ReceivedEvents {
		a.unsubs = append(a.unsubs, a.bus.Subscribe(name, "agent.decide", a.onInput))
	}

	a.sweepWg.Add(1)
	go func() {
		defer a.sweepWg.Done()
		a.tracker.Start(a.baseCtx)
	}()

	log.Info().Str("org_id", a.orgID).Msg("agent started")
}

// Stop cancels in-flight work and waits for it, bounded by ctx.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	for _, unsub := range a.unsubs {
		unsub()
	}
	a.unsubs = nil
	a.cancel()
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		a.sweepWg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Str("org_id", a.orgID).Msg("agent stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ── Ingress ──────────────────────────────────────────────────

// HandleWebhook verifies and normalizes a webhook payload. It returns as
// soon as the input is published; classification continues in background.
func (a *Agent) HandleWebhook(ctx context.Context, body []byte, headers map[string]string) (*inputs.ProcessingResult, error) {
	return a.handled(a.webhook.Handle(ctx, body, headers))
}

// HandleEmail verifies and normalizes an inbound email payload.
func (a *Agent) HandleEmail(ctx context.Context, body []byte, headers map[string]string) (*inputs.ProcessingResult, error) {
	return a.handled(a.email.Handle(ctx, body, headers))
}

func (a *Agent) HandleWorkerEvent(ctx context.Context, body []byte) (*inputs.ProcessingResult, error) {
	return a.handled(a.worker.Handle(ctx, body))
}

func (a *Agent) HandleDBChange(ctx context.Context, body []byte) (*inputs.ProcessingResult, error) {
	return a.handled(a.dbTrigger.Handle(ctx, body))
}

func (a *Agent) handled(result *inputs.ProcessingResult, err error) (*inputs.ProcessingResult, error) {
	if err == nil && result != nil && result.EventEmitted {
		a.inputsReceived.Add(1)
		metrics.InputsReceived.WithLabelValues(a.orgID, string(result.Input.Source)).Inc()
	}
	return result, err
}

// ── Pending decisions ────────────────────────────────────────

// Pending lists decisions awaiting human confirmation.
func (a *Agent) Pending() []models.AgentDecisionResult {
	return a.tracker.List()
}

// Confirm approves a pending decision; execution follows asynchronously.
func (a *Agent) Confirm(ctx context.Context, decisionID, resolvedBy string) (*models.AgentDecisionResult, error) {
	d, err := a.tracker.Confirm(ctx, decisionID, resolvedBy)
	if err == nil {
		metrics.PendingDecisions.WithLabelValues(a.orgID).Set(float64(len(a.tracker.List())))
	}
	return d, err
}

// Reject declines a pending decision.
func (a *Agent) Reject(ctx context.Context, decisionID, resolvedBy string) error {
	err := a.tracker.Reject(ctx, decisionID, resolvedBy)
	if err == nil {
		metrics.PendingDecisions.WithLabelValues(a.orgID).Set(float64(len(a.tracker.List())))
	}
	return err
}

// Stats snapshots the agent's counters.
func (a *Agent) Stats() models.AgentStats {
	return models.AgentStats{
		OrgID:                a.orgID,
		StartedAt:            a.startedAt,
		InputsReceived:       a.inputsReceived.Load(),
		DecisionsMade:        a.decisionsMade.Load(),
		FallbackDecisions:    a.fallbackDecisions.Load(),
		AutoExecuted:         a.autoExecuted.Load(),
		PendingConfirmations: int64(len(a.tracker.List())),
		ActionsCompleted:     a.actionsCompleted.Load(),
		ActionsFailed:        a.actionsFailed.Load(),
	}
}

// Drain waits for in-flight decision goroutines, for tests.
func (a *Agent) Drain() { a.wg.Wait() }

// ── Pipeline stages ──────────────────────────────────────────

// onInput hands a published input to the decision engine. The bus delivery
// is synchronous, so the ingress path only pays for the goroutine spawn.
func (a *Agent) onInput(ctx context.Context, event bus.Event) error {
	input, ok := event.Payload["input"].(*models.AgentInput)
	if !ok {
		log.Error().Str("org_id", a.orgID).Msg("input event without input payload")
		return nil
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.decide(a.baseCtx, input)
	}()
	return nil
}

func (a *Agent) decide(ctx context.Context, input *models.AgentInput) {
	d, err := a.engine.Decide(ctx, input)
	if err != nil {
		log.Error().Err(err).Str("org_id", a.orgID).Str("input_id", input.ID).Msg("decision failed")
		return
	}

	a.decisionsMade.Add(1)
	metrics.DecisionsTotal.WithLabelValues(a.orgID, string(d.State)).Inc()
	if d.Fallback {
		a.fallbackDecisions.Add(1)
		metrics.FallbackDecisions.WithLabelValues(a.orgID).Inc()
	}

	if d.RequiresConfirmation {
		a.tracker.Track(d)
		metrics.PendingDecisions.WithLabelValues(a.orgID).Set(float64(len(a.tracker.List())))
		return
	}

	a.autoExecuted.Add(1)
	if _, err := a.exec.ExecuteDecision(ctx, d, models.ResolutionAuto, ""); err != nil {
		log.Error().Err(err).Str("decision_id", d.ID).Msg("auto execution failed")
	}
}

// onApproved executes a decision a human confirmed.
func (a *Agent) onApproved(ctx context.Context, event bus.Event) error {
	decisionID, _ := event.Payload["decision_id"].(string)
	resolvedBy, _ := event.Payload["resolved_by"].(string)
	if decisionID == "" {
		return nil
	}

	d, err := a.store.GetDecision(ctx, a.orgID, decisionID)
	if err != nil {
		log.Error().Err(err).Str("decision_id", decisionID).Msg("approved decision not found")
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if _, err := a.exec.ExecuteDecision(a.baseCtx, d, models.ResolutionApproved, resolvedBy); err != nil {
			log.Error().Err(err).Str("decision_id", decisionID).Msg("approved execution failed")
		}
	}()
	return nil
}

func (a *Agent) onActionDone(ctx context.Context, event bus.Event) error {
	kind, _ := event.Payload["kind"].(string)
	result := "completed"
	if event.Name == executor.EventActionFailed {
		a.actionsFailed.Add(1)
		result = "failed"
	} else {
		a.actionsCompleted.Add(1)
	}
	metrics.ActionsTotal.WithLabelValues(a.orgID, kind, result).Inc()
	return nil
}
