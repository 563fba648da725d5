package governance

import (
	"maps"

	"github.com/radiant-ai/radiant/internal/model"
)

var presets = map[model.Preset]model.PresetDefinition{
	model.PresetParanoid: {
		Name:                 model.PresetParanoid,
		FrictionLevel:        0.9,
		AutoApproveThreshold: 0.1,
		TimeoutSeconds:       24 * 3600,
		TimeoutAction:        model.DecisionRejected,
		Checkpoints: map[model.CheckpointType]model.GovernanceMode{
			model.CP1: model.GovernAlways,
			model.CP2: model.GovernAlways,
			model.CP3: model.GovernAlways,
			model.CP4: model.GovernAlways,
			model.CP5: model.GovernAlways,
		},
	},
	model.PresetBalanced: {
		Name:                 model.PresetBalanced,
		FrictionLevel:        0.5,
		AutoApproveThreshold: 0.5,
		TimeoutSeconds:       4 * 3600,
		TimeoutAction:        model.DecisionRejected,
		Checkpoints: map[model.CheckpointType]model.GovernanceMode{
			model.CP1: model.GovernConditional,
			model.CP2: model.GovernAlways,
			model.CP3: model.GovernConditional,
			model.CP4: model.GovernConditional,
			model.CP5: model.GovernNotifyOnly,
		},
	},
	model.PresetCowboy: {
		Name:                 model.PresetCowboy,
		FrictionLevel:        0.1,
		AutoApproveThreshold: 0.9,
		TimeoutSeconds:       3600,
		TimeoutAction:        model.DecisionApproved,
		Checkpoints: map[model.CheckpointType]model.GovernanceMode{
			model.CP1: model.GovernNever,
			model.CP2: model.GovernNotifyOnly,
			model.CP3: model.GovernNever,
			model.CP4: model.GovernConditional,
			model.CP5: model.GovernNotifyOnly,
		},
	},
}

// Definition returns the fixed table behind a preset. The returned
// checkpoint map is a copy.
func Definition(p model.Preset) (model.PresetDefinition, bool) {
	d, ok := presets[p]
	if !ok {
		return model.PresetDefinition{}, false
	}
	d.Checkpoints = maps.Clone(d.Checkpoints)
	return d, true
}

// Merge applies a tenant's overrides to its preset. Overrides win.
func Merge(def model.PresetDefinition, g model.TenantGovernance) model.EffectiveGovernance {
	eff := model.EffectiveGovernance{
		TenantID:             g.TenantID,
		Preset:               def.Name,
		FrictionLevel:        def.FrictionLevel,
		AutoApproveThreshold: def.AutoApproveThreshold,
		TimeoutSeconds:       def.TimeoutSeconds,
		TimeoutAction:        def.TimeoutAction,
		Checkpoints:          maps.Clone(def.Checkpoints),
	}
	if g.FrictionLevelOverride != nil {
		eff.FrictionLevel = *g.FrictionLevelOverride
		eff.Customized = true
	}
	if g.AutoApproveThresholdOverride != nil {
		eff.AutoApproveThreshold = *g.AutoApproveThresholdOverride
		eff.Customized = true
	}
	for cp, mode := range g.CheckpointOverrides {
		eff.Checkpoints[cp] = mode
		eff.Customized = true
	}
	return eff
}

// CheckpointConfigFor translates a governance mode into the checkpoint
// engine's rule for the same checkpoint. CONDITIONAL gates on the risk
// score exceeding the tenant's auto-approve threshold.
func CheckpointConfigFor(eff model.EffectiveGovernance, cp model.CheckpointType) model.CheckpointConfig {
	cfg := model.CheckpointConfig{
		TenantID:              eff.TenantID,
		CheckpointType:        cp,
		ScopeKind:             model.ScopeTenant,
		TriggerOn:             []string{},
		AutoApproveConditions: []string{},
		TimeoutSeconds:        eff.TimeoutSeconds,
		TimeoutAction:         eff.TimeoutAction,
	}
	switch eff.Checkpoints[cp] {
	case model.GovernAlways:
		cfg.Mode = model.ModeManual
		cfg.TriggerOn = []string{"always"}
	case model.GovernNotifyOnly:
		cfg.Mode = model.ModeAuto
		cfg.NotifyOnly = true
	case model.GovernConditional:
		cfg.Mode = model.ModeConditional
		cfg.TriggerOn = []string{"risk_score_above_threshold"}
	default:
		cfg.Mode = model.ModeDisabled
	}
	return cfg
}
