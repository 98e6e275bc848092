// Package handlers implements the HTTP handlers of the agent core API:
// the ingress endpoints the outside world pushes raw payloads into, and the
// admin surface for orgs, pending decisions and audit data.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/internal/agent"
	"github.com/pipewise/pipewise/agent-core/internal/decision"
	"github.com/pipewise/pipewise/agent-core/internal/inputs"
	"github.com/pipewise/pipewise/agent-core/internal/store"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// maxBodyBytes bounds every ingress payload.
const maxBodyBytes = 1 << 20

// Handlers carries the dependencies shared by all HTTP handlers.
type Handlers struct {
	registry *agent.Registry
	store    store.Store
	version  string
}

func New(registry *agent.Registry, s store.Store, version string) *Handlers {
	return &Handlers{registry: registry, store: s, version: version}
}

// ── Ingress ──────────────────────────────────────────────────

// IngestWebhook accepts a signed webhook payload. The response reports
// acceptance only; classification and execution complete asynchronously.
func (h *Handlers) IngestWebhook(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, func(ag *agent.Agent, body []byte) (*inputs.ProcessingResult, error) {
		return ag.HandleWebhook(r.Context(), body, flattenHeaders(r))
	})
}

// IngestEmail accepts a signed inbound email payload.
func (h *Handlers) IngestEmail(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, func(ag *agent.Agent, body []byte) (*inputs.ProcessingResult, error) {
		return ag.HandleEmail(r.Context(), body, flattenHeaders(r))
	})
}

// IngestWorkerEvent accepts a background worker lifecycle event.
func (h *Handlers) IngestWorkerEvent(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, func(ag *agent.Agent, body []byte) (*inputs.ProcessingResult, error) {
		return ag.HandleWorkerEvent(r.Context(), body)
	})
}

// IngestDBChange accepts a database change notification.
func (h *Handlers) IngestDBChange(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, func(ag *agent.Agent, body []byte) (*inputs.ProcessingResult, error) {
		return ag.HandleDBChange(r.Context(), body)
	})
}

func (h *Handlers) ingest(w http.ResponseWriter, r *http.Request, handle func(*agent.Agent, []byte) (*inputs.ProcessingResult, error)) {
	ag, ok := h.agentFor(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "could not read request body")
		return
	}

	result, err := handle(ag, body)
	if err != nil {
		var authErr *inputs.AuthError
		if errors.As(err, &authErr) {
			respondError(w, http.StatusUnauthorized, "authentication_failed", authErr.Reason)
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}
	if !result.Success {
		respondError(w, http.StatusBadRequest, "invalid_payload", result.Error)
		return
	}

	resp := map[string]interface{}{"accepted": true}
	if result.SkipReason != "" {
		resp["skipped"] = result.SkipReason
	}
	if result.Input != nil {
		resp["input_id"] = result.Input.ID
		resp["correlation_id"] = result.Input.CorrelationID
	}
	respondJSON(w, http.StatusAccepted, resp)
}

// ── Pending decisions ────────────────────────────────────────

func (h *Handlers) ListPending(w http.ResponseWriter, r *http.Request) {
	ag, ok := h.agentFor(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"pending": ag.Pending()})
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

func (h *Handlers) ConfirmDecision(w http.ResponseWriter, r *http.Request) {
	h.resolveDecision(w, r, func(ag *agent.Agent, decisionID, by string) error {
		_, err := ag.Confirm(r.Context(), decisionID, by)
		return err
	})
}

func (h *Handlers) RejectDecision(w http.ResponseWriter, r *http.Request) {
	h.resolveDecision(w, r, func(ag *agent.Agent, decisionID, by string) error {
		return ag.Reject(r.Context(), decisionID, by)
	})
}

func (h *Handlers) resolveDecision(w http.ResponseWriter, r *http.Request, resolve func(ag *agent.Agent, decisionID, by string) error) {
	ag, ok := h.agentFor(w, r)
	if !ok {
		return
	}
	decisionID := chi.URLParam(r, "decisionID")

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = "api"
	}

	switch err := resolve(ag, decisionID, req.ResolvedBy); {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]interface{}{"decision_id": decisionID, "resolved": true})
	case errors.Is(err, decision.ErrNotPending):
		respondError(w, http.StatusNotFound, "not_pending", "decision is not awaiting confirmation")
	case errors.Is(err, decision.ErrAlreadyResolved):
		respondError(w, http.StatusConflict, "already_resolved", "decision was already resolved")
	default:
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

// ── Decisions & audit data ───────────────────────────────────

func (h *Handlers) GetDecision(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	decisionID := chi.URLParam(r, "decisionID")

	d, err := h.store.GetDecision(r.Context(), orgID, decisionID)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	resp := map[string]interface{}{"decision": d}
	if record, err := h.store.GetRecord(r.Context(), orgID, decisionID); err == nil {
		resp["record"] = record
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) ListDecisions(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	filter := store.DecisionFilter{
		CorrelationID: r.URL.Query().Get("correlation_id"),
		EntityKey:     r.URL.Query().Get("entity"),
		Limit:         queryInt(r, "limit", 50),
	}
	list, err := h.store.ListDecisions(r.Context(), orgID, filter)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"decisions": list})
}

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	events, err := h.store.ListEvents(r.Context(), orgID, queryInt(r, "limit", 100))
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (h *Handlers) ListActivity(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	entries, err := h.store.ListActivity(r.Context(), orgID, queryInt(r, "limit", 100))
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"activity": entries})
}

// ── Organizations ────────────────────────────────────────────

type createOrgRequest struct {
	ID       string                `json:"id"`
	Name     string                `json:"name"`
	Settings *models.AgentSettings `json:"settings"`
}

func (h *Handlers) CreateOrg(w http.ResponseWriter, r *http.Request) {
	var req createOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "validation", "name is required")
		return
	}

	org := &models.Organization{
		ID:        req.ID,
		Name:      req.Name,
		Settings:  models.DefaultAgentSettings(),
		CreatedAt: time.Now().UTC(),
	}
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	if req.Settings != nil {
		org.Settings = *req.Settings
	}

	if err := h.store.CreateOrg(r.Context(), org); err != nil {
		respondError(w, http.StatusConflict, "conflict", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, org)
}

func (h *Handlers) GetOrg(w http.ResponseWriter, r *http.Request) {
	org, err := h.store.GetOrg(r.Context(), chi.URLParam(r, "orgID"))
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, org)
}

// UpdateOrgSettings replaces the org's agent settings. A running agent for
// the org is retired so the next input builds one on the new settings.
func (h *Handlers) UpdateOrgSettings(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var settings models.AgentSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}

	if err := h.store.UpdateOrgSettings(r.Context(), orgID, settings); err != nil {
		h.respondStoreError(w, err)
		return
	}
	if err := h.registry.Remove(r.Context(), orgID); err != nil {
		log.Warn().Err(err).Str("org_id", orgID).Msg("agent restart after settings update failed")
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"org_id": orgID, "updated": true})
}

// ── Stats ────────────────────────────────────────────────────

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"agents": h.registry.Stats()})
}

func (h *Handlers) OrgStats(w http.ResponseWriter, r *http.Request) {
	ag, running := h.registry.Peek(chi.URLParam(r, "orgID"))
	if !running {
		respondError(w, http.StatusNotFound, "not_running", "no agent is running for this org")
		return
	}
	respondJSON(w, http.StatusOK, ag.Stats())
}

// ── Helpers ──────────────────────────────────────────────────

func (h *Handlers) agentFor(w http.ResponseWriter, r *http.Request) (*agent.Agent, bool) {
	orgID := chi.URLParam(r, "orgID")
	ag, err := h.registry.Get(r.Context(), orgID)
	if err != nil {
		if store.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "unknown_org", "organization not found")
		} else {
			respondError(w, http.StatusInternalServerError, "internal", err.Error())
		}
		return nil, false
	}
	return ag, true
}

func (h *Handlers) respondStoreError(w http.ResponseWriter, err error) {
	if store.IsNotFound(err) {
		respondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, "internal", err.Error())
}

func flattenHeaders(r *http.Request) map[string]string {
	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}
	return headers
}

func queryInt(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encode failed")
	}
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, map[string]string{"error": code, "message": msg})
}
