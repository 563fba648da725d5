package model

import (
	"time"

	"github.com/google/uuid"
)

// Preset is a named bundle of governance defaults.
type Preset string

const (
	PresetParanoid Preset = "paranoid"
	PresetBalanced Preset = "balanced"
	PresetCowboy   Preset = "cowboy"
)

// Valid reports whether p is a known preset.
func (p Preset) Valid() bool {
	switch p {
	case PresetParanoid, PresetBalanced, PresetCowboy:
		return true
	}
	return false
}

// GovernanceMode is the user-facing per-checkpoint setting of a preset.
type GovernanceMode string

const (
	GovernAlways      GovernanceMode = "ALWAYS"
	GovernNever       GovernanceMode = "NEVER"
	GovernNotifyOnly  GovernanceMode = "NOTIFY_ONLY"
	GovernConditional GovernanceMode = "CONDITIONAL"
)

// Valid reports whether m is a known governance mode.
func (m GovernanceMode) Valid() bool {
	switch m {
	case GovernAlways, GovernNever, GovernNotifyOnly, GovernConditional:
		return true
	}
	return false
}

// PresetDefinition is the fixed table behind a preset.
type PresetDefinition struct {
	Name                 Preset                            `json:"name"`
	FrictionLevel        float64                           `json:"friction_level"`
	AutoApproveThreshold float64                           `json:"auto_approve_threshold"`
	TimeoutSeconds       int                               `json:"timeout_seconds"`
	TimeoutAction        DecisionValue                     `json:"timeout_action"`
	Checkpoints          map[CheckpointType]GovernanceMode `json:"checkpoints"`
}

// TenantGovernance is the stored per-tenant preset choice plus overrides.
type TenantGovernance struct {
	TenantID                     string                            `json:"tenant_id"`
	Preset                       Preset                            `json:"preset"`
	FrictionLevelOverride        *float64                          `json:"friction_level_override,omitempty"`
	AutoApproveThresholdOverride *float64                          `json:"auto_approve_threshold_override,omitempty"`
	CheckpointOverrides          map[CheckpointType]GovernanceMode `json:"checkpoint_overrides,omitempty"`
	UpdatedBy                    string                            `json:"updated_by,omitempty"`
	UpdatedAt                    time.Time                         `json:"updated_at"`
}

// GovernanceOverrides is a partial update to a tenant's overrides. Nil
// fields are left unchanged.
type GovernanceOverrides struct {
	FrictionLevel        *float64                          `json:"friction_level,omitempty" validate:"omitempty,gte=0,lte=1"`
	AutoApproveThreshold *float64                          `json:"auto_approve_threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	Checkpoints          map[CheckpointType]GovernanceMode `json:"checkpoints,omitempty" validate:"dive,keys,oneof=CP1 CP2 CP3 CP4 CP5,endkeys,oneof=ALWAYS NEVER NOTIFY_ONLY CONDITIONAL"`
}

// EffectiveGovernance is a preset merged with the tenant's overrides.
type EffectiveGovernance struct {
	TenantID             string                            `json:"tenant_id"`
	Preset               Preset                            `json:"preset"`
	FrictionLevel        float64                           `json:"friction_level"`
	AutoApproveThreshold float64                           `json:"auto_approve_threshold"`
	TimeoutSeconds       int                               `json:"timeout_seconds"`
	TimeoutAction        DecisionValue                     `json:"timeout_action"`
	Checkpoints          map[CheckpointType]GovernanceMode `json:"checkpoints"`
	Customized           bool                              `json:"customized"`
}

// PresetChange is the audit row written by every preset switch.
type PresetChange struct {
	ID            uuid.UUID           `json:"id"`
	TenantID      string              `json:"tenant_id"`
	FromPreset    *Preset             `json:"from_preset,omitempty"`
	ToPreset      Preset              `json:"to_preset"`
	ChangedBy     string              `json:"changed_by"`
	Reason        string              `json:"reason,omitempty"`
	PriorSnapshot EffectiveGovernance `json:"prior_snapshot"`
	ChangedAt     time.Time           `json:"changed_at"`
}

// CheckpointRequirement answers shouldCheckpoint for one checkpoint type.
type CheckpointRequirement struct {
	Required bool           `json:"required"`
	Notify   bool           `json:"notify"`
	Mode     GovernanceMode `json:"mode"`
	Reason   string         `json:"reason"`
}
