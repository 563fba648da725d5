package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// ListResponse is the standard envelope for list endpoints.
type ListResponse struct {
	Data  any          `json:"data"`
	Total int          `json:"total"`
	Meta  ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// RememberRequest is the request body for POST /v1/memory.
type RememberRequest struct {
	UserID            *string        `json:"user_id,omitempty"`
	NodeType          string         `json:"node_type"`
	Label             string         `json:"label"`
	Content           string         `json:"content"`
	Properties        map[string]any `json:"properties,omitempty"`
	EmbeddingRef      *string        `json:"embedding_ref,omitempty"`
	Confidence        float64        `json:"confidence"`
	IsEvergreen       bool           `json:"is_evergreen"`
	SourceDocumentIDs []string       `json:"source_document_ids,omitempty"`
}

// RetrieveRequest is the request body for POST /v1/memory/retrieve.
type RetrieveRequest struct {
	NodeIDs []uuid.UUID `json:"node_ids" validate:"required,min=1,max=1000"`
}

// EvaluateRequest is the request body for POST /v1/checkpoints/evaluate.
// The tenant comes from the caller's token.
type EvaluateRequest struct {
	PipelineID     string         `json:"pipeline_id"`
	CheckpointType CheckpointType `json:"checkpoint_type"`
	Envelope       Envelope       `json:"envelope"`
}

// SubmitOversightRequest is the request body for POST /v1/oversight.
type SubmitOversightRequest struct {
	InsightID string         `json:"insight_id"`
	Domain    string         `json:"domain"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// ResolveCheckpointRequest is the request body for POST /v1/checkpoints/{id}/resolve.
type ResolveCheckpointRequest struct {
	Decision      DecisionValue  `json:"decision"`
	Feedback      *string        `json:"feedback,omitempty"`
	Modifications map[string]any `json:"modifications,omitempty"`
}

// EscalateRequest is the request body for escalation endpoints.
type EscalateRequest struct {
	Reason string `json:"reason,omitempty"`
}

// OversightDecisionRequest is the request body for oversight approve/reject/modify.
type OversightDecisionRequest struct {
	Reason        *string        `json:"reason,omitempty"`
	Modifications map[string]any `json:"modifications,omitempty"`
}

// SetPresetRequest is the request body for PUT /v1/governance/preset.
type SetPresetRequest struct {
	Preset Preset `json:"preset" validate:"oneof=paranoid balanced cowboy"`
	Reason string `json:"reason,omitempty" validate:"max=1000"`
}

// ShouldCheckpointRequest is the request body for POST /v1/governance/should-checkpoint.
type ShouldCheckpointRequest struct {
	CheckpointType CheckpointType `json:"checkpoint_type" validate:"oneof=CP1 CP2 CP3 CP4 CP5"`
	RiskScore      float64        `json:"risk_score" validate:"gte=0,lte=1"`
}

// ErasureCreateRequest is the request body for POST /v1/erasure.
type ErasureCreateRequest struct {
	Scope  ErasureScope `json:"scope"`
	UserID *string      `json:"user_id,omitempty"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Cache    string `json:"cache"`
	Qdrant   string `json:"qdrant,omitempty"`
	Uptime   int64  `json:"uptime_seconds"`
}
