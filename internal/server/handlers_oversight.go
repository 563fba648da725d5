package server

import (
	"net/http"

	"github.com/radiant-ai/radiant/internal/authz"
	"github.com/radiant-ai/radiant/internal/model"
	"github.com/radiant-ai/radiant/internal/service/oversight"
)

// HandleSubmitOversight handles POST /v1/oversight.
func (h *Handlers) HandleSubmitOversight(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionEvaluate)
	if !ok {
		return
	}
	var req model.SubmitOversightRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	it, err := h.oversight.Submit(r.Context(), model.OversightSubmission{
		TenantID:  claims.TenantID,
		InsightID: req.InsightID,
		Domain:    req.Domain,
		Payload:   req.Payload,
	})
	if err != nil {
		h.writeServiceError(w, r, "submit for oversight", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, it)
}

// HandleListPendingOversight handles GET /v1/oversight/pending.
func (h *Handlers) HandleListPendingOversight(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionRead)
	if !ok {
		return
	}
	items, err := h.oversight.ListPending(r.Context(), claims.TenantID, queryLimit(r, 100))
	if err != nil {
		h.writeServiceError(w, r, "list oversight items", err)
		return
	}
	writeList(w, r, items)
}

func (h *Handlers) loadOversightItem(w http.ResponseWriter, r *http.Request) (model.OversightItem, bool) {
	id, err := pathUUID(r, "item_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return model.OversightItem{}, false
	}
	it, err := h.oversight.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "oversight item", err)
		return model.OversightItem{}, false
	}
	return it, true
}

// HandleGetOversightItem handles GET /v1/oversight/{item_id}.
func (h *Handlers) HandleGetOversightItem(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionRead)
	if !ok {
		return
	}
	it, ok := h.loadOversightItem(w, r)
	if !ok || !ownedBy(w, r, claims, it.TenantID, "oversight item") {
		return
	}
	writeJSON(w, r, http.StatusOK, it)
}

// HandleGetOversightDecision handles GET /v1/oversight/{item_id}/decision.
func (h *Handlers) HandleGetOversightDecision(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionRead)
	if !ok {
		return
	}
	it, ok := h.loadOversightItem(w, r)
	if !ok || !ownedBy(w, r, claims, it.TenantID, "oversight item") {
		return
	}
	d, err := h.oversight.Decision(r.Context(), it.ID)
	if err != nil {
		h.writeServiceError(w, r, "oversight decision", err)
		return
	}
	writeJSON(w, r, http.StatusOK, d)
}

// HandleDecideOversight returns the handler for one oversight outcome:
// approve, reject or modify. A lost race answers 200 with applied=false
// and the decision that won.
func (h *Handlers) HandleDecideOversight(outcome model.OversightOutcome) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := h.authorize(w, r, authz.ActionDecide)
		if !ok {
			return
		}
		it, ok := h.loadOversightItem(w, r)
		if !ok || !ownedBy(w, r, claims, it.TenantID, "oversight item") {
			return
		}
		var req model.OversightDecisionRequest
		if r.ContentLength != 0 {
			if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
				handleDecodeError(w, r, err)
				return
			}
		}

		by := authz.Actor(claims)
		var (
			res oversight.Result
			err error
		)
		switch outcome {
		case model.OutcomeApproved:
			res, err = h.oversight.Approve(r.Context(), it.ID, by, req.Reason)
		case model.OutcomeRejected:
			reason := ""
			if req.Reason != nil {
				reason = *req.Reason
			}
			res, err = h.oversight.Reject(r.Context(), it.ID, by, reason)
		case model.OutcomeModified:
			res, err = h.oversight.Modify(r.Context(), it.ID, by, req.Modifications, req.Reason)
		default:
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unsupported outcome")
			return
		}
		if err != nil {
			h.writeServiceError(w, r, "record oversight decision", err)
			return
		}
		writeJSON(w, r, http.StatusOK, res)
	}
}
