package server

import (
	"net/http"

	"github.com/radiant-ai/radiant/internal/authz"
	"github.com/radiant-ai/radiant/internal/model"
)

// HandleGetGovernance handles GET /v1/governance.
func (h *Handlers) HandleGetGovernance(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionRead)
	if !ok {
		return
	}
	eff, err := h.governance.EffectiveConfig(r.Context(), claims.TenantID)
	if err != nil {
		h.writeServiceError(w, r, "governance", err)
		return
	}
	writeJSON(w, r, http.StatusOK, eff)
}

// HandleSetPreset handles PUT /v1/governance/preset.
func (h *Handlers) HandleSetPreset(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionAdminister)
	if !ok {
		return
	}
	var req model.SetPresetRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.Validate(req); err != nil {
		h.writeServiceError(w, r, "set preset", err)
		return
	}
	eff, err := h.governance.SetPreset(r.Context(), claims.TenantID, req.Preset, authz.Actor(claims), req.Reason)
	if err != nil {
		h.writeServiceError(w, r, "set preset", err)
		return
	}
	writeJSON(w, r, http.StatusOK, eff)
}

// HandleSetOverrides handles PUT /v1/governance/overrides.
func (h *Handlers) HandleSetOverrides(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionAdminister)
	if !ok {
		return
	}
	var req model.GovernanceOverrides
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	eff, err := h.governance.SetOverrides(r.Context(), claims.TenantID, req, authz.Actor(claims))
	if err != nil {
		h.writeServiceError(w, r, "set overrides", err)
		return
	}
	writeJSON(w, r, http.StatusOK, eff)
}

// HandleShouldCheckpoint handles POST /v1/governance/should-checkpoint.
func (h *Handlers) HandleShouldCheckpoint(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionEvaluate)
	if !ok {
		return
	}
	var req model.ShouldCheckpointRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.Validate(req); err != nil {
		h.writeServiceError(w, r, "should checkpoint", err)
		return
	}
	reqd, err := h.governance.ShouldCheckpoint(r.Context(), claims.TenantID, req.CheckpointType, req.RiskScore)
	if err != nil {
		h.writeServiceError(w, r, "should checkpoint", err)
		return
	}
	writeJSON(w, r, http.StatusOK, reqd)
}

// HandleGovernanceHistory handles GET /v1/governance/history.
func (h *Handlers) HandleGovernanceHistory(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionRead)
	if !ok {
		return
	}
	changes, err := h.governance.History(r.Context(), claims.TenantID, queryLimit(r, 50))
	if err != nil {
		h.writeServiceError(w, r, "preset history", err)
		return
	}
	writeList(w, r, changes)
}
