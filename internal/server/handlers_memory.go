package server

import (
	"net/http"
	"time"

	"github.com/radiant-ai/radiant/internal/authz"
	"github.com/radiant-ai/radiant/internal/model"
)

// HandleRemember handles POST /v1/memory.
func (h *Handlers) HandleRemember(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionEvaluate)
	if !ok {
		return
	}
	var req model.RememberRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	rec, err := h.tiering.Remember(r.Context(), model.MemoryRecord{
		TenantID:          claims.TenantID,
		UserID:            req.UserID,
		NodeType:          req.NodeType,
		Label:             req.Label,
		Content:           req.Content,
		Properties:        req.Properties,
		EmbeddingRef:      req.EmbeddingRef,
		Confidence:        req.Confidence,
		IsEvergreen:       req.IsEvergreen,
		SourceDocumentIDs: req.SourceDocumentIDs,
	})
	if err != nil {
		h.writeServiceError(w, r, "remember record", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, rec)
}

// HandleRecall handles GET /v1/memory/{node_id}.
func (h *Handlers) HandleRecall(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionRead)
	if !ok {
		return
	}
	id, err := pathUUID(r, "node_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	rec, err := h.tiering.Recall(r.Context(), claims.TenantID, id)
	if err != nil {
		h.writeServiceError(w, r, "recall record", err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// HandleRetrieve handles POST /v1/memory/retrieve (Cold to Warm).
func (h *Handlers) HandleRetrieve(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionEvaluate)
	if !ok {
		return
	}
	var req model.RetrieveRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.Validate(req); err != nil {
		h.writeServiceError(w, r, "retrieve records", err)
		return
	}
	res, err := h.tiering.RetrieveColdToWarm(r.Context(), claims.TenantID, req.NodeIDs)
	if err != nil {
		h.writeServiceError(w, r, "retrieve records", err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// HandleGetTierConfig handles GET /v1/tiers/config.
func (h *Handlers) HandleGetTierConfig(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionRead)
	if !ok {
		return
	}
	cfg, err := h.tiering.TierConfig(r.Context(), claims.TenantID)
	if err != nil {
		h.writeServiceError(w, r, "load tier config", err)
		return
	}
	writeJSON(w, r, http.StatusOK, cfg)
}

// HandleSetTierConfig handles PUT /v1/tiers/config.
func (h *Handlers) HandleSetTierConfig(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionAdminister)
	if !ok {
		return
	}
	var cfg model.TierConfig
	if err := decodeJSON(w, r, &cfg, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	cfg.TenantID = claims.TenantID
	stored, err := h.tiering.SetTierConfig(r.Context(), cfg)
	if err != nil {
		h.writeServiceError(w, r, "store tier config", err)
		return
	}
	writeJSON(w, r, http.StatusOK, stored)
}

// HandleFlowMetrics handles GET /v1/tiers/metrics?period=hour&since=RFC3339.
func (h *Handlers) HandleFlowMetrics(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionRead)
	if !ok {
		return
	}
	period := model.MetricPeriod(r.URL.Query().Get("period"))
	switch period {
	case "":
		period = model.PeriodHour
	case model.PeriodHour, model.PeriodDay:
	default:
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "period must be hour or day")
		return
	}
	since, err := queryTime(r, "since")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	from := time.Now().UTC().Add(-24 * time.Hour)
	if since != nil {
		from = *since
	}
	metrics, err := h.tiering.FlowMetrics(r.Context(), claims.TenantID, period, from)
	if err != nil {
		h.writeServiceError(w, r, "list flow metrics", err)
		return
	}
	writeList(w, r, metrics)
}

// HandleListAlerts handles GET /v1/tiers/alerts?open=true.
func (h *Handlers) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionRead)
	if !ok {
		return
	}
	openOnly := r.URL.Query().Get("open") == "true"
	alerts, err := h.tiering.Alerts(r.Context(), claims.TenantID, openOnly, queryLimit(r, 100))
	if err != nil {
		h.writeServiceError(w, r, "list alerts", err)
		return
	}
	writeList(w, r, alerts)
}

// HandleCheckTierHealth handles POST /v1/tiers/health (run a check now).
func (h *Handlers) HandleCheckTierHealth(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionAdminister)
	if !ok {
		return
	}
	alerts, err := h.tiering.CheckTierHealth(r.Context(), claims.TenantID)
	if err != nil {
		h.writeServiceError(w, r, "check tier health", err)
		return
	}
	writeList(w, r, alerts)
}

// HandleAcknowledgeAlert handles POST /v1/tiers/alerts/{alert_id}/ack.
func (h *Handlers) HandleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionAdminister)
	if !ok {
		return
	}
	id, err := pathUUID(r, "alert_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	applied, err := h.tiering.AcknowledgeAlert(r.Context(), claims.TenantID, id, authz.Actor(claims))
	if err != nil {
		h.writeServiceError(w, r, "acknowledge alert", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"applied": applied})
}

// HandleRequestErasure handles POST /v1/erasure.
func (h *Handlers) HandleRequestErasure(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionAdminister)
	if !ok {
		return
	}
	var req model.ErasureCreateRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	er, err := h.tiering.RequestErasure(r.Context(), model.ErasureRequestInput{
		TenantID:    claims.TenantID,
		Scope:       req.Scope,
		UserID:      req.UserID,
		RequestedBy: authz.Actor(claims),
	})
	if err != nil {
		h.writeServiceError(w, r, "request erasure", err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, er)
}

// HandleGetErasure handles GET /v1/erasure/{request_id}.
func (h *Handlers) HandleGetErasure(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionAdminister)
	if !ok {
		return
	}
	id, err := pathUUID(r, "request_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	er, err := h.tiering.ErasureRequest(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "load erasure request", err)
		return
	}
	if !ownedBy(w, r, claims, er.TenantID, "erasure request") {
		return
	}
	writeJSON(w, r, http.StatusOK, er)
}

// HandleProcessErasure handles POST /v1/erasure/{request_id}/process. The
// request is run immediately instead of waiting for the erasure sweep; the
// response carries the request's final state either way.
func (h *Handlers) HandleProcessErasure(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionAdminister)
	if !ok {
		return
	}
	id, err := pathUUID(r, "request_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	er, err := h.tiering.ErasureRequest(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "load erasure request", err)
		return
	}
	if !ownedBy(w, r, claims, er.TenantID, "erasure request") {
		return
	}
	procErr := h.tiering.ProcessGdprErasure(r.Context(), id)
	if er, err = h.tiering.ErasureRequest(r.Context(), id); err != nil {
		h.writeServiceError(w, r, "load erasure request", err)
		return
	}
	if procErr != nil {
		h.logger.Warn("http: erasure failed", "request_id", id, "error", procErr)
		writeJSON(w, r, http.StatusBadGateway, er)
		return
	}
	writeJSON(w, r, http.StatusOK, er)
}
