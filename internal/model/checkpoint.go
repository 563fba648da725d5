package model

import (
	"time"

	"github.com/google/uuid"
)

// CheckpointType names a gate in a pipeline.
type CheckpointType string

const (
	CP1 CheckpointType = "CP1" // intent and context clarification
	CP2 CheckpointType = "CP2" // plan approval
	CP3 CheckpointType = "CP3" // consensus review
	CP4 CheckpointType = "CP4" // cost and risk gate
	CP5 CheckpointType = "CP5" // final output approval
)

// CheckpointTypes lists every checkpoint in pipeline order.
var CheckpointTypes = []CheckpointType{CP1, CP2, CP3, CP4, CP5}

// Valid reports whether t is a known checkpoint type.
func (t CheckpointType) Valid() bool {
	switch t {
	case CP1, CP2, CP3, CP4, CP5:
		return true
	}
	return false
}

// CheckpointMode is how the engine handles a checkpoint once configuration is resolved.
type CheckpointMode string

const (
	ModeDisabled    CheckpointMode = "DISABLED"
	ModeAuto        CheckpointMode = "AUTO"
	ModeConditional CheckpointMode = "CONDITIONAL"
	ModeManual      CheckpointMode = "MANUAL"
)

// Valid reports whether m is a known mode.
func (m CheckpointMode) Valid() bool {
	switch m {
	case ModeDisabled, ModeAuto, ModeConditional, ModeManual:
		return true
	}
	return false
}

// DecisionStatus is the state of a CheckpointDecision. PENDING is the only
// non-terminal status.
type DecisionStatus string

const (
	StatusPending   DecisionStatus = "PENDING"
	StatusDecided   DecisionStatus = "DECIDED"
	StatusTimeout   DecisionStatus = "TIMEOUT"
	StatusEscalated DecisionStatus = "ESCALATED"
)

// Terminal reports whether the status is final.
func (s DecisionStatus) Terminal() bool {
	return s == StatusDecided || s == StatusTimeout || s == StatusEscalated
}

// DecisionValue is the outcome recorded on a resolved decision.
type DecisionValue string

const (
	DecisionApproved     DecisionValue = "APPROVED"
	DecisionRejected     DecisionValue = "REJECTED"
	DecisionModified     DecisionValue = "MODIFIED"
	DecisionAutoApproved DecisionValue = "AUTO_APPROVED"
	DecisionEscalated    DecisionValue = "ESCALATED"
)

// Valid reports whether v is a known decision value.
func (v DecisionValue) Valid() bool {
	switch v {
	case DecisionApproved, DecisionRejected, DecisionModified, DecisionAutoApproved, DecisionEscalated:
		return true
	}
	return false
}

// Resolvable reports whether v may be supplied to an explicit resolve call.
func (v DecisionValue) Resolvable() bool {
	switch v {
	case DecisionApproved, DecisionRejected, DecisionModified, DecisionAutoApproved:
		return true
	}
	return false
}

// ScopeKind identifies which level of the override chain a config row belongs to.
type ScopeKind string

const (
	ScopeTenant     ScopeKind = "tenant"
	ScopeDomain     ScopeKind = "domain"
	ScopeActionType ScopeKind = "action_type"
)

// ConfigSource records which link of the override chain produced an effective config.
type ConfigSource string

const (
	SourceDomain     ConfigSource = "domain_override"
	SourceActionType ConfigSource = "action_type_override"
	SourceTenant     ConfigSource = "tenant_default"
	SourcePreset     ConfigSource = "preset_default"
)

// CheckpointConfig is one rule in the override chain for (tenant, checkpoint type).
type CheckpointConfig struct {
	TenantID              string         `json:"tenant_id" validate:"required,tenant_id"`
	CheckpointType        CheckpointType `json:"checkpoint_type" validate:"oneof=CP1 CP2 CP3 CP4 CP5"`
	ScopeKind             ScopeKind      `json:"scope_kind" validate:"oneof=tenant domain action_type"`
	ScopeValue            string         `json:"scope_value" validate:"max=200"`
	Mode                  CheckpointMode `json:"mode" validate:"oneof=DISABLED AUTO CONDITIONAL MANUAL"`
	TriggerOn             []string       `json:"trigger_on" validate:"dive,required"`
	AutoApproveConditions []string       `json:"auto_approve_conditions" validate:"dive,required"`
	TimeoutSeconds        int            `json:"timeout_seconds" validate:"gt=0"`
	TimeoutAction         DecisionValue  `json:"timeout_action" validate:"oneof=APPROVED REJECTED ESCALATED"`
	NotifyOnly            bool           `json:"notify_only,omitempty"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// RiskSeverity grades a risk signal attached to an envelope.
type RiskSeverity string

const (
	RiskLow      RiskSeverity = "LOW"
	RiskMedium   RiskSeverity = "MEDIUM"
	RiskHigh     RiskSeverity = "HIGH"
	RiskCritical RiskSeverity = "CRITICAL"
)

// RiskSignal is one risk observation produced upstream.
type RiskSignal struct {
	Type        string       `json:"type"`
	Severity    RiskSeverity `json:"severity"`
	Description string       `json:"description,omitempty"`
}

// Envelope is a unit of proposed AI output or action submitted for checkpoint evaluation.
type Envelope struct {
	ID            string         `json:"id" validate:"required"`
	Domain        string         `json:"domain,omitempty"`
	ActionType    string         `json:"action_type,omitempty"`
	RiskSignals   []RiskSignal   `json:"risk_signals,omitempty"`
	CostCents     int64          `json:"cost_cents"`
	Confidence    float64        `json:"confidence" validate:"gte=0,lte=1"`
	RiskScore     float64        `json:"risk_score" validate:"gte=0,lte=1"`
	TriggerReason string         `json:"trigger_reason,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// EvaluationContext is the input to a checkpoint evaluation.
type EvaluationContext struct {
	TenantID       string         `json:"tenant_id" validate:"required,tenant_id"`
	PipelineID     string         `json:"pipeline_id" validate:"required"`
	CheckpointType CheckpointType `json:"checkpoint_type" validate:"oneof=CP1 CP2 CP3 CP4 CP5"`
	Envelope       Envelope       `json:"envelope"`
}

// EvaluationResult is the structured answer to "is a checkpoint required?".
type EvaluationResult struct {
	Triggered    bool           `json:"triggered"`
	WaitRequired bool           `json:"wait_required"`
	Decision     *DecisionValue `json:"decision,omitempty"`
	DecisionID   *uuid.UUID     `json:"decision_id,omitempty"`
	Deadline     *time.Time     `json:"deadline,omitempty"`
	Mode         CheckpointMode `json:"mode"`
	ConfigSource ConfigSource   `json:"config_source"`
	Reason       string         `json:"reason"`
}

// CheckpointDecision is a pending or resolved approval unit. Once Status
// leaves PENDING the row is never modified again.
type CheckpointDecision struct {
	ID               uuid.UUID      `json:"id"`
	PipelineID       string         `json:"pipeline_id"`
	TenantID         string         `json:"tenant_id"`
	EnvelopeID       string         `json:"envelope_id"`
	CheckpointType   CheckpointType `json:"checkpoint_type"`
	TriggerReason    string         `json:"trigger_reason"`
	PresentedData    map[string]any `json:"presented_data"`
	Status           DecisionStatus `json:"status"`
	Decision         *DecisionValue `json:"decision,omitempty"`
	DecidedBy        *string        `json:"decided_by,omitempty"`
	Feedback         *string        `json:"feedback,omitempty"`
	Modifications    map[string]any `json:"modifications,omitempty"`
	TimeoutAction    DecisionValue  `json:"timeout_action"`
	Deadline         time.Time      `json:"deadline"`
	EscalationLevel  int            `json:"escalation_level"`
	ParentDecisionID *uuid.UUID     `json:"parent_decision_id,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	DecidedAt        *time.Time     `json:"decided_at,omitempty"`
}

// Resolution is a request to move a PENDING decision to DECIDED.
type Resolution struct {
	Decision      DecisionValue  `json:"decision"`
	DecidedBy     string         `json:"decided_by" validate:"required"`
	Feedback      *string        `json:"feedback,omitempty"`
	Modifications map[string]any `json:"modifications,omitempty"`
}

// ResolveResult reports whether a conditional state transition took effect.
// Applied is false when another actor resolved the decision first.
type ResolveResult struct {
	Applied  bool               `json:"applied"`
	Decision CheckpointDecision `json:"decision"`
}
