package model

import (
	"time"

	"github.com/google/uuid"
)

// OversightStatus is the state of an oversight queue item.
type OversightStatus string

const (
	OversightPending   OversightStatus = "pending"
	OversightApproved  OversightStatus = "approved"
	OversightRejected  OversightStatus = "rejected"
	OversightModified  OversightStatus = "modified"
	OversightEscalated OversightStatus = "escalated"
	OversightExpired   OversightStatus = "expired"
)

// Open reports whether the item still awaits a human decision.
func (s OversightStatus) Open() bool {
	return s == OversightPending || s == OversightEscalated
}

// OversightOutcome is the immutable decision recorded against an item.
// Expired counts as a rejection.
type OversightOutcome string

const (
	OutcomeApproved OversightOutcome = "approved"
	OutcomeRejected OversightOutcome = "rejected"
	OutcomeModified OversightOutcome = "modified"
	OutcomeExpired  OversightOutcome = "expired"
)

// Status returns the item status that corresponds to the outcome.
func (o OversightOutcome) Status() OversightStatus {
	switch o {
	case OutcomeApproved:
		return OversightApproved
	case OutcomeModified:
		return OversightModified
	case OutcomeExpired:
		return OversightExpired
	default:
		return OversightRejected
	}
}

// IsRejection reports whether the outcome blocks the insight.
func (o OversightOutcome) IsRejection() bool {
	return o == OutcomeRejected || o == OutcomeExpired
}

// OversightItem is a regulated-domain insight awaiting human review.
type OversightItem struct {
	ID          uuid.UUID       `json:"id"`
	TenantID    string          `json:"tenant_id"`
	InsightID   string          `json:"insight_id"`
	Domain      string          `json:"domain"`
	Payload     map[string]any  `json:"payload"`
	Status      OversightStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	EscalateAt  time.Time       `json:"escalate_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	EscalatedAt *time.Time      `json:"escalated_at,omitempty"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
}

// OversightSubmission is the input to submitToOversight.
type OversightSubmission struct {
	TenantID  string         `json:"tenant_id" validate:"required,tenant_id"`
	InsightID string         `json:"insight_id" validate:"required,max=200"`
	Domain    string         `json:"domain" validate:"required,max=100"`
	Payload   map[string]any `json:"payload"`
}

// OversightDecision is the single terminal decision for an item.
type OversightDecision struct {
	ID            uuid.UUID        `json:"id"`
	ItemID        uuid.UUID        `json:"item_id"`
	TenantID      string           `json:"tenant_id"`
	Outcome       OversightOutcome `json:"outcome"`
	DecidedBy     string           `json:"decided_by"`
	Reason        *string          `json:"reason,omitempty"`
	Modifications map[string]any   `json:"modifications,omitempty"`
	DecidedAt     time.Time        `json:"decided_at"`
}

// OversightSweep summarizes one processTimeouts run.
type OversightSweep struct {
	Expired   int `json:"expired"`
	Escalated int `json:"escalated"`
}
