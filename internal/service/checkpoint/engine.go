// Package checkpoint decides whether a pipeline must pause for human review
// at a checkpoint, and owns the lifecycle of the resulting decisions.
//
// Configuration is resolved per evaluation through an override chain:
// a domain override beats an action-type override, which beats the tenant
// default, which beats the rule derived from the tenant's governance preset.
// A PENDING decision leaves that state exactly once, through an explicit
// resolve, an escalation or a timeout; the storage layer enforces that with
// conditional updates.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/radiant-ai/radiant/internal/clock"
	"github.com/radiant-ai/radiant/internal/model"
	"github.com/radiant-ai/radiant/internal/notify"
	"github.com/radiant-ai/radiant/internal/storage"
	"github.com/radiant-ai/radiant/internal/telemetry"
)

// SystemActor is recorded as decided_by on decisions the engine makes itself.
const SystemActor = "system"

var (
	// ErrDecisionNotFound is returned for unknown decision IDs.
	ErrDecisionNotFound = fmt.Errorf("checkpoint: decision %w", storage.ErrNotFound)
	// ErrMaxEscalation is returned when a decision is already at the last
	// escalation level.
	ErrMaxEscalation = errors.New("checkpoint: maximum escalation level reached")
)

// Store is the slice of storage.DB the engine needs.
type Store interface {
	EnsureTenant(ctx context.Context, tenantID string) error
	UpsertCheckpointConfig(ctx context.Context, c model.CheckpointConfig) error
	DeleteCheckpointConfig(ctx context.Context, tenantID string, cpType model.CheckpointType, kind model.ScopeKind, value string) error
	ListCheckpointConfigs(ctx context.Context, tenantID string) ([]model.CheckpointConfig, error)
	CheckpointConfigCandidates(ctx context.Context, tenantID string, cpType model.CheckpointType, domain, actionType string) ([]model.CheckpointConfig, error)
	InsertCheckpointDecision(ctx context.Context, d model.CheckpointDecision) error
	GetCheckpointDecision(ctx context.Context, id uuid.UUID) (model.CheckpointDecision, error)
	ResolveCheckpointDecision(ctx context.Context, id uuid.UUID, res model.Resolution, at time.Time) (model.CheckpointDecision, bool, error)
	EscalateCheckpointDecision(ctx context.Context, id uuid.UUID, by string, at time.Time, successor model.CheckpointDecision) (bool, error)
	TimeoutCheckpointDecisions(ctx context.Context, now time.Time) ([]model.CheckpointDecision, error)
	ListPendingCheckpointDecisions(ctx context.Context, tenantID string, limit int) ([]model.CheckpointDecision, error)
}

// Governance supplies the preset-level rule for a checkpoint along with
// the tenant's effective governance. Satisfied by *governance.Service.
type Governance interface {
	CheckpointDefaults(ctx context.Context, tenantID string, cp model.CheckpointType) (model.CheckpointConfig, model.EffectiveGovernance, error)
}

// Options configure an Engine. Zero values pick defaults.
type Options struct {
	// MaxEscalationLevel bounds escalation chains. A decision at this level
	// cannot be escalated again and times out to REJECTED.
	MaxEscalationLevel int
	Registry           *Registry
	Notify             notify.Sink
}

// TimeoutResult summarises one ProcessTimeouts pass.
type TimeoutResult struct {
	TimedOut  int `json:"timed_out"`
	Escalated int `json:"escalated"`
	Errors    int `json:"errors"`
}

// Engine is the checkpoint engine.
type Engine struct {
	store  Store
	gov    Governance
	clock  clock.Clock
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer

	evaluations metric.Int64Counter
	resolutions metric.Int64Counter
	timeouts    metric.Int64Counter
	escalations metric.Int64Counter
}

// New creates an Engine.
func New(store Store, gov Governance, clk clock.Clock, opts Options, logger *slog.Logger) *Engine {
	if opts.MaxEscalationLevel <= 0 {
		opts.MaxEscalationLevel = 3
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Notify == nil {
		opts.Notify = notify.Nop
	}
	meter := telemetry.Meter("radiant/checkpoint")
	evaluations, _ := meter.Int64Counter("radiant.checkpoint.evaluations",
		metric.WithDescription("Checkpoint evaluations by outcome"))
	resolutions, _ := meter.Int64Counter("radiant.checkpoint.resolutions",
		metric.WithDescription("Explicit decision resolutions by outcome"))
	timeouts, _ := meter.Int64Counter("radiant.checkpoint.timeouts",
		metric.WithDescription("Decisions resolved by deadline expiry"))
	escalations, _ := meter.Int64Counter("radiant.checkpoint.escalations",
		metric.WithDescription("Decisions escalated to the next level"))
	return &Engine{
		store:       store,
		gov:         gov,
		clock:       clk,
		opts:        opts,
		logger:      logger,
		tracer:      otel.Tracer("radiant/checkpoint"),
		evaluations: evaluations,
		resolutions: resolutions,
		timeouts:    timeouts,
		escalations: escalations,
	}
}

// Registry returns the predicate registry the engine evaluates against.
func (e *Engine) Registry() *Registry { return e.opts.Registry }

// Evaluate decides whether the envelope must wait for a human at the
// given checkpoint. Every triggered evaluation is recorded as a decision,
// including ones the engine resolves itself.
func (e *Engine) Evaluate(ctx context.Context, ec model.EvaluationContext) (model.EvaluationResult, error) {
	ctx, span := e.tracer.Start(ctx, "checkpoint.Evaluate", trace.WithAttributes(
		attribute.String("radiant.tenant_id", ec.TenantID),
		attribute.String("radiant.checkpoint_type", string(ec.CheckpointType)),
	))
	defer span.End()

	if err := model.Validate(ec); err != nil {
		return model.EvaluationResult{}, err
	}

	cfg, source, eff, err := e.resolveConfig(ctx, ec)
	if err != nil {
		return model.EvaluationResult{}, err
	}
	params := Params{RiskThreshold: eff.AutoApproveThreshold}
	res := model.EvaluationResult{Mode: cfg.Mode, ConfigSource: source}

	defer func() {
		outcome := "not_triggered"
		switch {
		case res.WaitRequired:
			outcome = "pending"
		case res.Triggered:
			outcome = "auto_approved"
		}
		e.evaluations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("checkpoint_type", string(ec.CheckpointType)),
			attribute.String("outcome", outcome),
		))
	}()

	if cfg.Mode == model.ModeDisabled {
		res.Reason = "checkpoint disabled"
		return res, nil
	}

	if conds := cfg.AutoApproveConditions; len(conds) > 0 && e.allMatch(conds, ec.Envelope, params) {
		d, err := e.recordAutoApproval(ctx, ec, cfg, "auto-approve: "+strings.Join(conds, ","))
		if err != nil {
			return model.EvaluationResult{}, err
		}
		return e.autoResult(res, d, "auto-approve conditions satisfied"), nil
	}

	var matched []string
	if cfg.Mode == model.ModeConditional {
		matched = e.matching(cfg.TriggerOn, ec.Envelope, params)
		if len(matched) == 0 {
			res.Reason = "no trigger condition matched"
			return res, nil
		}
	}

	if cfg.Mode == model.ModeAuto {
		d, err := e.recordAutoApproval(ctx, ec, cfg, "auto mode")
		if err != nil {
			return model.EvaluationResult{}, err
		}
		if cfg.NotifyOnly {
			e.emit(ctx, notify.GovernanceNotifyOnly, d, nil)
		}
		return e.autoResult(res, d, "auto mode"), nil
	}

	reason := "manual review required"
	if len(matched) > 0 {
		reason = "triggered by " + strings.Join(matched, ",")
	}
	now := e.clock.Now()
	d := model.CheckpointDecision{
		ID:             uuid.New(),
		PipelineID:     ec.PipelineID,
		TenantID:       ec.TenantID,
		EnvelopeID:     ec.Envelope.ID,
		CheckpointType: ec.CheckpointType,
		TriggerReason:  reason,
		PresentedData:  presented(ec.Envelope),
		Status:         model.StatusPending,
		TimeoutAction:  e.capTimeoutAction(cfg.TimeoutAction, 0),
		Deadline:       now.Add(time.Duration(cfg.TimeoutSeconds) * time.Second),
		CreatedAt:      now,
	}
	if err := e.insert(ctx, d); err != nil {
		return model.EvaluationResult{}, err
	}
	e.emit(ctx, notify.CheckpointAwaitingReview, d, map[string]any{"deadline": d.Deadline})

	res.Triggered = true
	res.WaitRequired = true
	res.DecisionID = &d.ID
	res.Deadline = &d.Deadline
	res.Reason = reason
	return res, nil
}

// resolveConfig walks the override chain. The returned effective
// governance supplies the risk threshold regardless of which link won.
func (e *Engine) resolveConfig(ctx context.Context, ec model.EvaluationContext) (model.CheckpointConfig, model.ConfigSource, model.EffectiveGovernance, error) {
	presetCfg, eff, err := e.gov.CheckpointDefaults(ctx, ec.TenantID, ec.CheckpointType)
	if err != nil {
		return model.CheckpointConfig{}, "", model.EffectiveGovernance{}, fmt.Errorf("checkpoint: governance defaults: %w", err)
	}
	candidates, err := e.store.CheckpointConfigCandidates(ctx, ec.TenantID, ec.CheckpointType, ec.Envelope.Domain, ec.Envelope.ActionType)
	if err != nil {
		return model.CheckpointConfig{}, "", model.EffectiveGovernance{}, fmt.Errorf("checkpoint: load configs: %w", err)
	}

	var byDomain, byAction, byTenant *model.CheckpointConfig
	for i := range candidates {
		c := &candidates[i]
		switch {
		case c.ScopeKind == model.ScopeDomain && ec.Envelope.Domain != "" && c.ScopeValue == ec.Envelope.Domain:
			byDomain = c
		case c.ScopeKind == model.ScopeActionType && ec.Envelope.ActionType != "" && c.ScopeValue == ec.Envelope.ActionType:
			byAction = c
		case c.ScopeKind == model.ScopeTenant:
			byTenant = c
		}
	}
	switch {
	case byDomain != nil:
		return *byDomain, model.SourceDomain, eff, nil
	case byAction != nil:
		return *byAction, model.SourceActionType, eff, nil
	case byTenant != nil:
		return *byTenant, model.SourceTenant, eff, nil
	}
	return presetCfg, model.SourcePreset, eff, nil
}

// allMatch reports whether every named predicate holds. Unknown names count as false.
func (e *Engine) allMatch(names []string, env model.Envelope, p Params) bool {
	for _, n := range names {
		pred, ok := e.opts.Registry.Lookup(n)
		if !ok {
			e.logger.Warn("checkpoint: unknown predicate", "name", n)
			return false
		}
		if !pred(env, p) {
			return false
		}
	}
	return true
}

// matching returns the names of the predicates that hold.
func (e *Engine) matching(names []string, env model.Envelope, p Params) []string {
	var out []string
	for _, n := range names {
		pred, ok := e.opts.Registry.Lookup(n)
		if !ok {
			e.logger.Warn("checkpoint: unknown predicate", "name", n)
			continue
		}
		if pred(env, p) {
			out = append(out, n)
		}
	}
	return out
}

func (e *Engine) recordAutoApproval(ctx context.Context, ec model.EvaluationContext, cfg model.CheckpointConfig, reason string) (model.CheckpointDecision, error) {
	now := e.clock.Now()
	auto := model.DecisionAutoApproved
	by := SystemActor
	d := model.CheckpointDecision{
		ID:             uuid.New(),
		PipelineID:     ec.PipelineID,
		TenantID:       ec.TenantID,
		EnvelopeID:     ec.Envelope.ID,
		CheckpointType: ec.CheckpointType,
		TriggerReason:  reason,
		PresentedData:  presented(ec.Envelope),
		Status:         model.StatusDecided,
		Decision:       &auto,
		DecidedBy:      &by,
		TimeoutAction:  cfg.TimeoutAction,
		Deadline:       now,
		CreatedAt:      now,
		DecidedAt:      &now,
	}
	return d, e.insert(ctx, d)
}

func (e *Engine) autoResult(res model.EvaluationResult, d model.CheckpointDecision, reason string) model.EvaluationResult {
	res.Triggered = true
	res.Decision = d.Decision
	res.DecisionID = &d.ID
	res.Reason = reason
	return res
}

func (e *Engine) insert(ctx context.Context, d model.CheckpointDecision) error {
	if err := e.store.EnsureTenant(ctx, d.TenantID); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := e.store.InsertCheckpointDecision(ctx, d); err != nil {
		return fmt.Errorf("checkpoint: record decision: %w", err)
	}
	return nil
}

// capTimeoutAction keeps escalation chains finite: a decision at the last
// level that would time out to ESCALATED times out to REJECTED instead.
func (e *Engine) capTimeoutAction(action model.DecisionValue, level int) model.DecisionValue {
	if action == model.DecisionEscalated && level >= e.opts.MaxEscalationLevel {
		return model.DecisionRejected
	}
	return action
}

func presented(env model.Envelope) map[string]any {
	out := map[string]any{
		"envelope_id": env.ID,
		"cost_cents":  env.CostCents,
		"confidence":  env.Confidence,
		"risk_score":  env.RiskScore,
	}
	if env.Domain != "" {
		out["domain"] = env.Domain
	}
	if env.ActionType != "" {
		out["action_type"] = env.ActionType
	}
	if len(env.RiskSignals) > 0 {
		signals := make([]map[string]any, 0, len(env.RiskSignals))
		for _, s := range env.RiskSignals {
			signals = append(signals, map[string]any{"type": s.Type, "severity": string(s.Severity), "description": s.Description})
		}
		out["risk_signals"] = signals
	}
	if len(env.Payload) > 0 {
		out["payload"] = env.Payload
	}
	return out
}

// Resolve records a reviewer's decision. When the decision already left
// PENDING, Applied is false and the stored decision is returned unchanged.
func (e *Engine) Resolve(ctx context.Context, id uuid.UUID, res model.Resolution) (model.ResolveResult, error) {
	ctx, span := e.tracer.Start(ctx, "checkpoint.Resolve", trace.WithAttributes(
		attribute.String("radiant.decision_id", id.String()),
	))
	defer span.End()

	if err := model.Validate(res); err != nil {
		return model.ResolveResult{}, err
	}
	if !res.Decision.Resolvable() {
		return model.ResolveResult{}, fmt.Errorf("%w: decision %q cannot be set by resolve", model.ErrInvalid, res.Decision)
	}
	if res.Decision == model.DecisionModified && len(res.Modifications) == 0 {
		return model.ResolveResult{}, fmt.Errorf("%w: MODIFIED requires modifications", model.ErrInvalid)
	}

	d, applied, err := e.store.ResolveCheckpointDecision(ctx, id, res, e.clock.Now())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.ResolveResult{}, fmt.Errorf("%w: %s", ErrDecisionNotFound, id)
		}
		return model.ResolveResult{}, fmt.Errorf("checkpoint: resolve: %w", err)
	}
	outcome := "applied"
	if !applied {
		outcome = "already_resolved"
		e.logger.Info("checkpoint: resolve lost race", "decision_id", id, "status", d.Status)
	}
	e.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return model.ResolveResult{Applied: applied, Decision: d}, nil
}

// Escalate moves a PENDING decision one level up. The original becomes
// ESCALATED and a new PENDING decision, linked to it, takes its place with
// a fresh deadline of the same length. The returned decision is the
// successor when applied, otherwise the stored original.
func (e *Engine) Escalate(ctx context.Context, id uuid.UUID, by, reason string) (model.ResolveResult, error) {
	ctx, span := e.tracer.Start(ctx, "checkpoint.Escalate", trace.WithAttributes(
		attribute.String("radiant.decision_id", id.String()),
	))
	defer span.End()

	if by == "" {
		return model.ResolveResult{}, fmt.Errorf("%w: escalated_by is required", model.ErrInvalid)
	}
	d, err := e.Get(ctx, id)
	if err != nil {
		return model.ResolveResult{}, err
	}
	if d.Status != model.StatusPending {
		return model.ResolveResult{Applied: false, Decision: d}, nil
	}
	if d.EscalationLevel >= e.opts.MaxEscalationLevel {
		return model.ResolveResult{}, fmt.Errorf("%w: decision %s is at level %d", ErrMaxEscalation, id, d.EscalationLevel)
	}

	now := e.clock.Now()
	if reason == "" {
		reason = "escalated by " + by
	}
	next := e.successor(d, now, reason)
	applied, err := e.store.EscalateCheckpointDecision(ctx, id, by, now, next)
	if err != nil {
		return model.ResolveResult{}, fmt.Errorf("checkpoint: escalate: %w", err)
	}
	if !applied {
		current, err := e.Get(ctx, id)
		if err != nil {
			return model.ResolveResult{}, err
		}
		return model.ResolveResult{Applied: false, Decision: current}, nil
	}

	e.escalations.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", "manual")))
	e.emit(ctx, notify.CheckpointEscalated, next, map[string]any{
		"parent_decision_id": d.ID.String(),
		"escalation_level":   next.EscalationLevel,
	})
	e.logger.Info("checkpoint: escalated", "decision_id", id, "successor_id", next.ID, "level", next.EscalationLevel)
	return model.ResolveResult{Applied: true, Decision: next}, nil
}

// successor builds the next-level PENDING decision for d.
func (e *Engine) successor(d model.CheckpointDecision, now time.Time, reason string) model.CheckpointDecision {
	window := d.Deadline.Sub(d.CreatedAt)
	if window <= 0 {
		window = time.Hour
	}
	parent := d.ID
	level := d.EscalationLevel + 1
	return model.CheckpointDecision{
		ID:               uuid.New(),
		PipelineID:       d.PipelineID,
		TenantID:         d.TenantID,
		EnvelopeID:       d.EnvelopeID,
		CheckpointType:   d.CheckpointType,
		TriggerReason:    reason,
		PresentedData:    d.PresentedData,
		Status:           model.StatusPending,
		TimeoutAction:    e.capTimeoutAction(d.TimeoutAction, level),
		Deadline:         now.Add(window),
		EscalationLevel:  level,
		ParentDecisionID: &parent,
		CreatedAt:        now,
	}
}

// ProcessTimeouts resolves every PENDING decision past its deadline to its
// timeout action. Decisions whose timeout action is ESCALATED get a
// successor at the next level. Running it again without new expiries
// changes nothing.
func (e *Engine) ProcessTimeouts(ctx context.Context) (TimeoutResult, error) {
	ctx, span := e.tracer.Start(ctx, "checkpoint.ProcessTimeouts")
	defer span.End()

	now := e.clock.Now()
	expired, err := e.store.TimeoutCheckpointDecisions(ctx, now)
	if err != nil {
		return TimeoutResult{}, fmt.Errorf("checkpoint: process timeouts: %w", err)
	}

	var out TimeoutResult
	for _, d := range expired {
		out.TimedOut++
		e.timeouts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("checkpoint_type", string(d.CheckpointType)),
		))
		e.emit(ctx, notify.CheckpointTimedOut, d, map[string]any{"timeout_action": string(d.TimeoutAction)})

		if d.Decision == nil || *d.Decision != model.DecisionEscalated {
			continue
		}
		next := e.successor(d, now, "escalated after timeout")
		if err := e.store.InsertCheckpointDecision(ctx, next); err != nil {
			out.Errors++
			e.logger.Error("checkpoint: insert timeout successor failed", "decision_id", d.ID, "error", err)
			continue
		}
		out.Escalated++
		e.escalations.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", "timeout")))
		e.emit(ctx, notify.CheckpointEscalated, next, map[string]any{
			"parent_decision_id": d.ID.String(),
			"escalation_level":   next.EscalationLevel,
		})
	}
	if out.TimedOut > 0 {
		e.logger.Info("checkpoint: timeouts processed", "timed_out", out.TimedOut, "escalated", out.Escalated, "errors", out.Errors)
	}
	return out, nil
}

// Get loads a decision.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (model.CheckpointDecision, error) {
	d, err := e.store.GetCheckpointDecision(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.CheckpointDecision{}, fmt.Errorf("%w: %s", ErrDecisionNotFound, id)
		}
		return model.CheckpointDecision{}, fmt.Errorf("checkpoint: get: %w", err)
	}
	return d, nil
}

// ListPending returns a tenant's PENDING decisions, earliest deadline first.
func (e *Engine) ListPending(ctx context.Context, tenantID string, limit int) ([]model.CheckpointDecision, error) {
	if err := model.ValidateTenantID(tenantID); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalid, err)
	}
	out, err := e.store.ListPendingCheckpointDecisions(ctx, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list pending: %w", err)
	}
	return out, nil
}

// SetConfig creates or replaces one rule in the override chain. Predicate
// names must be registered.
func (e *Engine) SetConfig(ctx context.Context, cfg model.CheckpointConfig) (model.CheckpointConfig, error) {
	if cfg.TriggerOn == nil {
		cfg.TriggerOn = []string{}
	}
	if cfg.AutoApproveConditions == nil {
		cfg.AutoApproveConditions = []string{}
	}
	if err := model.Validate(cfg); err != nil {
		return model.CheckpointConfig{}, err
	}
	switch cfg.ScopeKind {
	case model.ScopeTenant:
		if cfg.ScopeValue != "" {
			return model.CheckpointConfig{}, fmt.Errorf("%w: tenant scope takes no scope_value", model.ErrInvalid)
		}
	default:
		if cfg.ScopeValue == "" {
			return model.CheckpointConfig{}, fmt.Errorf("%w: %s scope requires scope_value", model.ErrInvalid, cfg.ScopeKind)
		}
	}
	for _, n := range append(append([]string{}, cfg.TriggerOn...), cfg.AutoApproveConditions...) {
		if _, ok := e.opts.Registry.Lookup(n); !ok {
			return model.CheckpointConfig{}, fmt.Errorf("%w: unknown predicate %q", model.ErrInvalid, n)
		}
	}
	if err := e.store.EnsureTenant(ctx, cfg.TenantID); err != nil {
		return model.CheckpointConfig{}, fmt.Errorf("checkpoint: %w", err)
	}
	cfg.UpdatedAt = e.clock.Now()
	if err := e.store.UpsertCheckpointConfig(ctx, cfg); err != nil {
		return model.CheckpointConfig{}, fmt.Errorf("checkpoint: set config: %w", err)
	}
	e.logger.Info("checkpoint: config set", "tenant_id", cfg.TenantID, "checkpoint_type", cfg.CheckpointType,
		"scope_kind", cfg.ScopeKind, "scope_value", cfg.ScopeValue, "mode", cfg.Mode)
	return cfg, nil
}

// DeleteOverride removes one rule from the override chain.
func (e *Engine) DeleteOverride(ctx context.Context, tenantID string, cp model.CheckpointType, kind model.ScopeKind, value string) error {
	if err := e.store.DeleteCheckpointConfig(ctx, tenantID, cp, kind, value); err != nil {
		return fmt.Errorf("checkpoint: delete override: %w", err)
	}
	return nil
}

// ListConfigs returns every rule stored for a tenant.
func (e *Engine) ListConfigs(ctx context.Context, tenantID string) ([]model.CheckpointConfig, error) {
	out, err := e.store.ListCheckpointConfigs(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list configs: %w", err)
	}
	return out, nil
}

func (e *Engine) emit(ctx context.Context, kind notify.Kind, d model.CheckpointDecision, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["checkpoint_type"] = string(d.CheckpointType)
	data["pipeline_id"] = d.PipelineID
	if err := e.opts.Notify.Notify(ctx, notify.Event{
		Kind:     kind,
		TenantID: d.TenantID,
		Subject:  d.ID.String(),
		Data:     data,
		At:       e.clock.Now(),
	}); err != nil {
		e.logger.Warn("checkpoint: notification failed", "kind", kind, "decision_id", d.ID, "error", err)
	}
}
