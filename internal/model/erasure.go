package model

import (
	"time"

	"github.com/google/uuid"
)

// ErasureScope selects what a GDPR erasure request covers.
type ErasureScope string

const (
	ErasureScopeUser   ErasureScope = "user"
	ErasureScopeTenant ErasureScope = "tenant"
)

// ErasureStatus is the progress of an erasure request or one of its tiers.
type ErasureStatus string

const (
	ErasurePending    ErasureStatus = "pending"
	ErasureProcessing ErasureStatus = "processing"
	ErasureCompleted  ErasureStatus = "completed"
	ErasureFailed     ErasureStatus = "failed"
)

// ErasureRequest tracks a GDPR erasure across the three tiers.
type ErasureRequest struct {
	ID           uuid.UUID     `json:"id"`
	TenantID     string        `json:"tenant_id"`
	Scope        ErasureScope  `json:"scope"`
	UserID       *string       `json:"user_id,omitempty"`
	Status       ErasureStatus `json:"status"`
	HotStatus    ErasureStatus `json:"hot_status"`
	WarmStatus   ErasureStatus `json:"warm_status"`
	ColdStatus   ErasureStatus `json:"cold_status"`
	RequestedBy  string        `json:"requested_by"`
	Error        *string       `json:"error,omitempty"`
	RequestedAt  time.Time     `json:"requested_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	ColdPurgedAt *time.Time    `json:"cold_purged_at,omitempty"`
}

// ErasureRequestInput is the body of a new erasure request.
type ErasureRequestInput struct {
	TenantID    string       `json:"tenant_id" validate:"required,tenant_id"`
	Scope       ErasureScope `json:"scope" validate:"oneof=user tenant"`
	UserID      *string      `json:"user_id,omitempty" validate:"required_if=Scope user"`
	RequestedBy string       `json:"requested_by" validate:"required"`
}

// ColdPurgeEntry is an archive object (or tenant prefix) awaiting physical deletion.
type ColdPurgeEntry struct {
	ID        uuid.UUID  `json:"id"`
	RequestID uuid.UUID  `json:"request_id"`
	TenantID  string     `json:"tenant_id"`
	ObjectKey *string    `json:"object_key,omitempty"`
	Prefix    *string    `json:"prefix,omitempty"`
	Attempts  int        `json:"attempts"`
	LastError *string    `json:"last_error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	PurgedAt  *time.Time `json:"purged_at,omitempty"`
}
