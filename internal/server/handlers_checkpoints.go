package server

import (
	"net/http"

	"github.com/radiant-ai/radiant/internal/auth"
	"github.com/radiant-ai/radiant/internal/authz"
	"github.com/radiant-ai/radiant/internal/model"
)

// HandleEvaluateCheckpoint handles POST /v1/checkpoints/evaluate.
func (h *Handlers) HandleEvaluateCheckpoint(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionEvaluate)
	if !ok {
		return
	}
	var req model.EvaluateRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	res, err := h.checkpoints.Evaluate(r.Context(), model.EvaluationContext{
		TenantID:       claims.TenantID,
		PipelineID:     req.PipelineID,
		CheckpointType: req.CheckpointType,
		Envelope:       req.Envelope,
	})
	if err != nil {
		h.writeServiceError(w, r, "evaluate checkpoint", err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// HandleListPendingCheckpoints handles GET /v1/checkpoints/pending.
func (h *Handlers) HandleListPendingCheckpoints(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionRead)
	if !ok {
		return
	}
	pending, err := h.checkpoints.ListPending(r.Context(), claims.TenantID, queryLimit(r, 100))
	if err != nil {
		h.writeServiceError(w, r, "list pending decisions", err)
		return
	}
	writeList(w, r, pending)
}

// loadDecision fetches a decision and checks it belongs to the caller's tenant.
func (h *Handlers) loadDecision(w http.ResponseWriter, r *http.Request, claims *auth.Claims) (model.CheckpointDecision, bool) {
	id, err := pathUUID(r, "decision_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return model.CheckpointDecision{}, false
	}
	d, err := h.checkpoints.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "load decision", err)
		return model.CheckpointDecision{}, false
	}
	if !ownedBy(w, r, claims, d.TenantID, "decision") {
		return model.CheckpointDecision{}, false
	}
	return d, true
}

// HandleGetCheckpoint handles GET /v1/checkpoints/{decision_id}.
func (h *Handlers) HandleGetCheckpoint(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionRead)
	if !ok {
		return
	}
	d, ok := h.loadDecision(w, r, claims)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, d)
}

// HandleResolveCheckpoint handles POST /v1/checkpoints/{decision_id}/resolve.
// A decision that was already resolved returns applied=false with the
// stored decision.
func (h *Handlers) HandleResolveCheckpoint(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionDecide)
	if !ok {
		return
	}
	d, ok := h.loadDecision(w, r, claims)
	if !ok {
		return
	}
	var req model.ResolveCheckpointRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	res, err := h.checkpoints.Resolve(r.Context(), d.ID, model.Resolution{
		Decision:      req.Decision,
		DecidedBy:     authz.Actor(claims),
		Feedback:      req.Feedback,
		Modifications: req.Modifications,
	})
	if err != nil {
		h.writeServiceError(w, r, "resolve decision", err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// HandleEscalateCheckpoint handles POST /v1/checkpoints/{decision_id}/escalate.
func (h *Handlers) HandleEscalateCheckpoint(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionDecide)
	if !ok {
		return
	}
	d, ok := h.loadDecision(w, r, claims)
	if !ok {
		return
	}
	var req model.EscalateRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
			handleDecodeError(w, r, err)
			return
		}
	}
	res, err := h.checkpoints.Escalate(r.Context(), d.ID, authz.Actor(claims), req.Reason)
	if err != nil {
		h.writeServiceError(w, r, "escalate decision", err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// HandleListCheckpointConfigs handles GET /v1/checkpoints/config.
func (h *Handlers) HandleListCheckpointConfigs(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionRead)
	if !ok {
		return
	}
	cfgs, err := h.checkpoints.ListConfigs(r.Context(), claims.TenantID)
	if err != nil {
		h.writeServiceError(w, r, "list checkpoint configs", err)
		return
	}
	writeList(w, r, cfgs)
}

// HandleSetCheckpointConfig handles PUT /v1/checkpoints/config.
func (h *Handlers) HandleSetCheckpointConfig(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionAdminister)
	if !ok {
		return
	}
	var cfg model.CheckpointConfig
	if err := decodeJSON(w, r, &cfg, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	cfg.TenantID = claims.TenantID
	stored, err := h.checkpoints.SetConfig(r.Context(), cfg)
	if err != nil {
		h.writeServiceError(w, r, "store checkpoint config", err)
		return
	}
	writeJSON(w, r, http.StatusOK, stored)
}

// HandleDeleteCheckpointConfig handles
// DELETE /v1/checkpoints/config?checkpoint_type=CP2&scope_kind=domain&scope_value=legal.
func (h *Handlers) HandleDeleteCheckpointConfig(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionAdminister)
	if !ok {
		return
	}
	q := r.URL.Query()
	cp := model.CheckpointType(q.Get("checkpoint_type"))
	if !cp.Valid() {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "checkpoint_type must be one of CP1..CP5")
		return
	}
	kind := model.ScopeKind(q.Get("scope_kind"))
	switch kind {
	case model.ScopeTenant, model.ScopeDomain, model.ScopeActionType:
	default:
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "scope_kind must be tenant, domain or action_type")
		return
	}
	if err := h.checkpoints.DeleteOverride(r.Context(), claims.TenantID, cp, kind, q.Get("scope_value")); err != nil {
		h.writeServiceError(w, r, "delete checkpoint config", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListPredicates handles GET /v1/checkpoints/predicates.
func (h *Handlers) HandleListPredicates(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, authz.ActionRead); !ok {
		return
	}
	writeList(w, r, h.checkpoints.Registry().Names())
}
