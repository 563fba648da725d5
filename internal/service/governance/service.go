// Package governance resolves a tenant's effective governance settings from
// a named preset plus its overrides, and answers whether a checkpoint is
// required under them.
//
// Checkpoint decisions themselves are not persisted here. The checkpoint
// engine owns the single decision state machine and asks this service for
// the preset-level rule when a tenant has no explicit checkpoint config.
package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/radiant-ai/radiant/internal/clock"
	"github.com/radiant-ai/radiant/internal/model"
	"github.com/radiant-ai/radiant/internal/notify"
	"github.com/radiant-ai/radiant/internal/storage"
)

// Store is the slice of storage.DB the service needs.
type Store interface {
	EnsureTenant(ctx context.Context, tenantID string) error
	GetTenantGovernance(ctx context.Context, tenantID string) (model.TenantGovernance, error)
	UpsertTenantGovernance(ctx context.Context, g model.TenantGovernance) error
	ReplaceGovernance(ctx context.Context, g model.TenantGovernance, change model.PresetChange) error
	ListPresetHistory(ctx context.Context, tenantID string, limit int) ([]model.PresetChange, error)
}

// Options configure a Service. Zero values pick defaults.
type Options struct {
	// DefaultPreset applies to tenants that never chose one.
	DefaultPreset model.Preset
	// CacheTTL bounds how long an effective config is served from memory.
	// Writes through this Service invalidate immediately; the TTL only
	// matters for writes made by other processes.
	CacheTTL time.Duration
	Notify   notify.Sink
}

// Service is the governance preset service.
type Service struct {
	store  Store
	clock  clock.Clock
	opts   Options
	cache  *ristretto.Cache[string, model.EffectiveGovernance]
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a Service. Close releases the cache.
func New(store Store, clk clock.Clock, opts Options, logger *slog.Logger) (*Service, error) {
	if opts.DefaultPreset == "" {
		opts.DefaultPreset = model.PresetBalanced
	}
	if !opts.DefaultPreset.Valid() {
		return nil, fmt.Errorf("governance: unknown default preset %q", opts.DefaultPreset)
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	if opts.Notify == nil {
		opts.Notify = notify.Nop
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, model.EffectiveGovernance]{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("governance: create cache: %w", err)
	}
	return &Service{
		store:  store,
		clock:  clk,
		opts:   opts,
		cache:  cache,
		logger: logger,
		tracer: otel.Tracer("radiant/governance"),
	}, nil
}

// Close releases the config cache.
func (s *Service) Close() {
	s.cache.Close()
}

// EffectiveConfig returns the tenant's preset merged with its overrides.
func (s *Service) EffectiveConfig(ctx context.Context, tenantID string) (model.EffectiveGovernance, error) {
	if eff, ok := s.cache.Get(tenantID); ok {
		return eff, nil
	}
	g, err := s.load(ctx, tenantID)
	if err != nil {
		return model.EffectiveGovernance{}, err
	}
	def, ok := Definition(g.Preset)
	if !ok {
		return model.EffectiveGovernance{}, fmt.Errorf("governance: tenant %s has unknown preset %q", tenantID, g.Preset)
	}
	eff := Merge(def, g)
	s.cache.SetWithTTL(tenantID, eff, 1, s.opts.CacheTTL)
	return eff, nil
}

// load returns the stored governance row, or an unstored row on the
// default preset.
func (s *Service) load(ctx context.Context, tenantID string) (model.TenantGovernance, error) {
	g, err := s.store.GetTenantGovernance(ctx, tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.TenantGovernance{TenantID: tenantID, Preset: s.opts.DefaultPreset}, nil
	}
	if err != nil {
		return model.TenantGovernance{}, fmt.Errorf("governance: load: %w", err)
	}
	return g, nil
}

// SetPreset switches a tenant to a preset. All overrides are dropped, not
// merged, and the configuration in force before the switch is recorded in
// the preset history.
func (s *Service) SetPreset(ctx context.Context, tenantID string, preset model.Preset, by, reason string) (model.EffectiveGovernance, error) {
	ctx, span := s.tracer.Start(ctx, "governance.SetPreset", trace.WithAttributes(
		attribute.String("radiant.tenant_id", tenantID),
		attribute.String("radiant.preset", string(preset)),
	))
	defer span.End()

	if err := model.ValidateTenantID(tenantID); err != nil {
		return model.EffectiveGovernance{}, fmt.Errorf("%w: %v", model.ErrInvalid, err)
	}
	def, ok := Definition(preset)
	if !ok {
		return model.EffectiveGovernance{}, fmt.Errorf("%w: unknown preset %q", model.ErrInvalid, preset)
	}
	if err := s.store.EnsureTenant(ctx, tenantID); err != nil {
		return model.EffectiveGovernance{}, fmt.Errorf("governance: %w", err)
	}

	prior, err := s.load(ctx, tenantID)
	if err != nil {
		return model.EffectiveGovernance{}, err
	}
	priorDef, ok := Definition(prior.Preset)
	if !ok {
		priorDef, _ = Definition(s.opts.DefaultPreset)
	}
	var from *model.Preset
	if !prior.UpdatedAt.IsZero() {
		p := prior.Preset
		from = &p
	}

	now := s.clock.Now()
	next := model.TenantGovernance{TenantID: tenantID, Preset: preset, UpdatedBy: by, UpdatedAt: now}
	change := model.PresetChange{
		TenantID:      tenantID,
		FromPreset:    from,
		ToPreset:      preset,
		ChangedBy:     by,
		Reason:        reason,
		PriorSnapshot: Merge(priorDef, prior),
		ChangedAt:     now,
	}
	if err := s.store.ReplaceGovernance(ctx, next, change); err != nil {
		return model.EffectiveGovernance{}, fmt.Errorf("governance: set preset: %w", err)
	}
	s.cache.Del(tenantID)

	s.logger.Info("governance: preset changed", "tenant_id", tenantID, "preset", preset, "changed_by", by)
	return Merge(def, next), nil
}

// SetOverrides applies a partial update to the tenant's overrides on top
// of its current preset.
func (s *Service) SetOverrides(ctx context.Context, tenantID string, ov model.GovernanceOverrides, by string) (model.EffectiveGovernance, error) {
	if err := model.ValidateTenantID(tenantID); err != nil {
		return model.EffectiveGovernance{}, fmt.Errorf("%w: %v", model.ErrInvalid, err)
	}
	if err := model.Validate(ov); err != nil {
		return model.EffectiveGovernance{}, err
	}
	if err := s.store.EnsureTenant(ctx, tenantID); err != nil {
		return model.EffectiveGovernance{}, fmt.Errorf("governance: %w", err)
	}
	g, err := s.load(ctx, tenantID)
	if err != nil {
		return model.EffectiveGovernance{}, err
	}
	if ov.FrictionLevel != nil {
		g.FrictionLevelOverride = ov.FrictionLevel
	}
	if ov.AutoApproveThreshold != nil {
		g.AutoApproveThresholdOverride = ov.AutoApproveThreshold
	}
	if len(ov.Checkpoints) > 0 {
		if g.CheckpointOverrides == nil {
			g.CheckpointOverrides = make(map[model.CheckpointType]model.GovernanceMode, len(ov.Checkpoints))
		}
		for cp, mode := range ov.Checkpoints {
			g.CheckpointOverrides[cp] = mode
		}
	}
	g.UpdatedBy = by
	g.UpdatedAt = s.clock.Now()
	if err := s.store.UpsertTenantGovernance(ctx, g); err != nil {
		return model.EffectiveGovernance{}, fmt.Errorf("governance: set overrides: %w", err)
	}
	s.cache.Del(tenantID)

	def, ok := Definition(g.Preset)
	if !ok {
		return model.EffectiveGovernance{}, fmt.Errorf("governance: tenant %s has unknown preset %q", tenantID, g.Preset)
	}
	return Merge(def, g), nil
}

// ShouldCheckpoint evaluates the tenant's mode for one checkpoint.
// NOTIFY_ONLY is never required but emits a notification.
func (s *Service) ShouldCheckpoint(ctx context.Context, tenantID string, cp model.CheckpointType, riskScore float64) (model.CheckpointRequirement, error) {
	if !cp.Valid() {
		return model.CheckpointRequirement{}, fmt.Errorf("%w: unknown checkpoint type %q", model.ErrInvalid, cp)
	}
	eff, err := s.EffectiveConfig(ctx, tenantID)
	if err != nil {
		return model.CheckpointRequirement{}, err
	}
	mode := eff.Checkpoints[cp]
	req := model.CheckpointRequirement{Mode: mode}
	switch mode {
	case model.GovernAlways:
		req.Required = true
		req.Reason = "checkpoint always required"
	case model.GovernNotifyOnly:
		req.Notify = true
		req.Reason = "notify only"
		if err := s.opts.Notify.Notify(ctx, notify.Event{
			Kind:     notify.GovernanceNotifyOnly,
			TenantID: tenantID,
			Subject:  string(cp),
			Data:     map[string]any{"risk_score": riskScore},
			At:       s.clock.Now(),
		}); err != nil {
			s.logger.Warn("governance: notify-only notification failed", "tenant_id", tenantID, "checkpoint", cp, "error", err)
		}
	case model.GovernConditional:
		req.Required = riskScore > eff.AutoApproveThreshold
		if req.Required {
			req.Reason = fmt.Sprintf("risk score %.2f above threshold %.2f", riskScore, eff.AutoApproveThreshold)
		} else {
			req.Reason = fmt.Sprintf("risk score %.2f within threshold %.2f", riskScore, eff.AutoApproveThreshold)
		}
	default:
		req.Mode = model.GovernNever
		req.Reason = "checkpoint disabled"
	}
	return req, nil
}

// CheckpointDefaults returns the preset-level checkpoint rule for cp along
// with the effective governance it was derived from.
func (s *Service) CheckpointDefaults(ctx context.Context, tenantID string, cp model.CheckpointType) (model.CheckpointConfig, model.EffectiveGovernance, error) {
	eff, err := s.EffectiveConfig(ctx, tenantID)
	if err != nil {
		return model.CheckpointConfig{}, model.EffectiveGovernance{}, err
	}
	return CheckpointConfigFor(eff, cp), eff, nil
}

// History returns the tenant's preset changes, newest first.
func (s *Service) History(ctx context.Context, tenantID string, limit int) ([]model.PresetChange, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListPresetHistory(ctx, tenantID, limit)
}
