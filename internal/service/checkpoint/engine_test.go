package checkpoint_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiant-ai/radiant/internal/clock"
	"github.com/radiant-ai/radiant/internal/model"
	"github.com/radiant-ai/radiant/internal/notify"
	"github.com/radiant-ai/radiant/internal/service/checkpoint"
	"github.com/radiant-ai/radiant/internal/service/governance"
	"github.com/radiant-ai/radiant/internal/storage"
	"github.com/radiant-ai/radiant/internal/testutil"
)

type fakeStore struct {
	mu        sync.Mutex
	configs   map[string]model.CheckpointConfig
	decisions map[uuid.UUID]model.CheckpointDecision
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		configs:   map[string]model.CheckpointConfig{},
		decisions: map[uuid.UUID]model.CheckpointDecision{},
	}
}

func configKey(tenant string, cp model.CheckpointType, kind model.ScopeKind, value string) string {
	return fmt.Sprintf("%s|%s|%s|%s", tenant, cp, kind, value)
}

func (f *fakeStore) EnsureTenant(context.Context, string) error { return nil }

func (f *fakeStore) UpsertCheckpointConfig(_ context.Context, c model.CheckpointConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs[configKey(c.TenantID, c.CheckpointType, c.ScopeKind, c.ScopeValue)] = c
	return nil
}

func (f *fakeStore) DeleteCheckpointConfig(_ context.Context, tenant string, cp model.CheckpointType, kind model.ScopeKind, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := configKey(tenant, cp, kind, value)
	if _, ok := f.configs[k]; !ok {
		return fmt.Errorf("fake: %w", storage.ErrNotFound)
	}
	delete(f.configs, k)
	return nil
}

func (f *fakeStore) ListCheckpointConfigs(_ context.Context, tenant string) ([]model.CheckpointConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.CheckpointConfig
	for _, c := range f.configs {
		if c.TenantID == tenant {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) CheckpointConfigCandidates(_ context.Context, tenant string, cp model.CheckpointType, domain, action string) ([]model.CheckpointConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.CheckpointConfig
	for _, k := range []string{
		configKey(tenant, cp, model.ScopeTenant, ""),
		configKey(tenant, cp, model.ScopeDomain, domain),
		configKey(tenant, cp, model.ScopeActionType, action),
	} {
		if c, ok := f.configs[k]; ok && (c.ScopeKind == model.ScopeTenant || c.ScopeValue != "") {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertCheckpointDecision(_ context.Context, d model.CheckpointDecision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions[d.ID] = d
	return nil
}

func (f *fakeStore) GetCheckpointDecision(_ context.Context, id uuid.UUID) (model.CheckpointDecision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.decisions[id]
	if !ok {
		return model.CheckpointDecision{}, fmt.Errorf("fake: %w", storage.ErrNotFound)
	}
	return d, nil
}

func (f *fakeStore) ResolveCheckpointDecision(_ context.Context, id uuid.UUID, res model.Resolution, at time.Time) (model.CheckpointDecision, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.decisions[id]
	if !ok {
		return model.CheckpointDecision{}, false, fmt.Errorf("fake: %w", storage.ErrNotFound)
	}
	if d.Status != model.StatusPending {
		return d, false, nil
	}
	v, by := res.Decision, res.DecidedBy
	d.Status = model.StatusDecided
	d.Decision = &v
	d.DecidedBy = &by
	d.Feedback = res.Feedback
	d.Modifications = res.Modifications
	d.DecidedAt = &at
	f.decisions[id] = d
	return d, true, nil
}

func (f *fakeStore) EscalateCheckpointDecision(_ context.Context, id uuid.UUID, by string, at time.Time, successor model.CheckpointDecision) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.decisions[id]
	if !ok || d.Status != model.StatusPending {
		return false, nil
	}
	d.Status = model.StatusEscalated
	d.DecidedBy = &by
	d.DecidedAt = &at
	f.decisions[id] = d
	f.decisions[successor.ID] = successor
	return true, nil
}

func (f *fakeStore) TimeoutCheckpointDecisions(_ context.Context, now time.Time) ([]model.CheckpointDecision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.CheckpointDecision
	for id, d := range f.decisions {
		if d.Status != model.StatusPending || d.Deadline.After(now) {
			continue
		}
		v, by := d.TimeoutAction, checkpoint.SystemActor
		d.Status = model.StatusTimeout
		d.Decision = &v
		d.DecidedBy = &by
		d.DecidedAt = &now
		f.decisions[id] = d
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeStore) ListPendingCheckpointDecisions(_ context.Context, tenant string, limit int) ([]model.CheckpointDecision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.CheckpointDecision
	for _, d := range f.decisions {
		if d.TenantID == tenant && d.Status == model.StatusPending {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) byStatus(s model.DecisionStatus) []model.CheckpointDecision {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.CheckpointDecision
	for _, d := range f.decisions {
		if d.Status == s {
			out = append(out, d)
		}
	}
	return out
}

// presetGov serves a fixed preset for every tenant.
type presetGov struct{ preset model.Preset }

func (g presetGov) CheckpointDefaults(_ context.Context, tenantID string, cp model.CheckpointType) (model.CheckpointConfig, model.EffectiveGovernance, error) {
	def, _ := governance.Definition(g.preset)
	eff := governance.Merge(def, model.TenantGovernance{TenantID: tenantID, Preset: g.preset})
	return governance.CheckpointConfigFor(eff, cp), eff, nil
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

var start = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	engine *checkpoint.Engine
	store  *fakeStore
	clock  *clock.Manual
	events *recorder
}

func newHarness(t *testing.T, preset model.Preset) *harness {
	t.Helper()
	h := &harness{store: newFakeStore(), clock: clock.NewManual(start), events: &recorder{}}
	h.engine = checkpoint.New(h.store, presetGov{preset: preset}, h.clock,
		checkpoint.Options{Notify: h.events}, testutil.TestLogger())
	return h
}

func (h *harness) setConfig(t *testing.T, cfg model.CheckpointConfig) {
	t.Helper()
	if cfg.TenantID == "" {
		cfg.TenantID = "acme"
	}
	if cfg.ScopeKind == "" {
		cfg.ScopeKind = model.ScopeTenant
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = 3600
	}
	if cfg.TimeoutAction == "" {
		cfg.TimeoutAction = model.DecisionRejected
	}
	_, err := h.engine.SetConfig(context.Background(), cfg)
	require.NoError(t, err)
}

func evalCtx(cp model.CheckpointType, env model.Envelope) model.EvaluationContext {
	if env.ID == "" {
		env.ID = "env-" + uuid.NewString()[:8]
	}
	return model.EvaluationContext{TenantID: "acme", PipelineID: "pipe-1", CheckpointType: cp, Envelope: env}
}

func TestConditionalHighCost(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.PresetBalanced)
	h.setConfig(t, model.CheckpointConfig{CheckpointType: model.CP4, Mode: model.ModeConditional, TriggerOn: []string{"high_cost"}})

	res, err := h.engine.Evaluate(ctx, evalCtx(model.CP4, model.Envelope{CostCents: 150, Confidence: 0.8}))
	require.NoError(t, err)
	assert.True(t, res.Triggered)
	assert.True(t, res.WaitRequired)
	assert.Equal(t, model.SourceTenant, res.ConfigSource)
	require.NotNil(t, res.DecisionID)
	require.NotNil(t, res.Deadline)
	assert.Equal(t, start.Add(time.Hour), *res.Deadline)
	assert.Contains(t, res.Reason, "high_cost")

	d, err := h.engine.Get(ctx, *res.DecisionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, d.Status)
	assert.Nil(t, d.Decision)
	assert.Equal(t, []notify.Kind{notify.CheckpointAwaitingReview}, h.events.kinds())

	res, err = h.engine.Evaluate(ctx, evalCtx(model.CP4, model.Envelope{CostCents: 10, Confidence: 0.8}))
	require.NoError(t, err)
	assert.False(t, res.Triggered)
	assert.False(t, res.WaitRequired)
	assert.Nil(t, res.DecisionID)
}

func TestOverridePrecedence(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.PresetBalanced)
	h.setConfig(t, model.CheckpointConfig{CheckpointType: model.CP2, Mode: model.ModeManual})
	h.setConfig(t, model.CheckpointConfig{CheckpointType: model.CP2, ScopeKind: model.ScopeActionType, ScopeValue: "send_email", Mode: model.ModeAuto})
	h.setConfig(t, model.CheckpointConfig{CheckpointType: model.CP2, ScopeKind: model.ScopeDomain, ScopeValue: "marketing", Mode: model.ModeDisabled})

	tests := []struct {
		name   string
		env    model.Envelope
		source model.ConfigSource
		mode   model.CheckpointMode
	}{
		{name: "domain beats action type", env: model.Envelope{Domain: "marketing", ActionType: "send_email"}, source: model.SourceDomain, mode: model.ModeDisabled},
		{name: "action type beats tenant", env: model.Envelope{Domain: "sales", ActionType: "send_email"}, source: model.SourceActionType, mode: model.ModeAuto},
		{name: "tenant default", env: model.Envelope{Domain: "sales", ActionType: "call"}, source: model.SourceTenant, mode: model.ModeManual},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.engine.Evaluate(ctx, evalCtx(model.CP2, tt.env))
			require.NoError(t, err)
			assert.Equal(t, tt.source, res.ConfigSource)
			assert.Equal(t, tt.mode, res.Mode)
		})
	}

	// Without any stored rule the preset decides: balanced CP1 gates on risk score.
	res, err := h.engine.Evaluate(ctx, evalCtx(model.CP1, model.Envelope{RiskScore: 0.2}))
	require.NoError(t, err)
	assert.Equal(t, model.SourcePreset, res.ConfigSource)
	assert.Equal(t, model.ModeConditional, res.Mode)
	assert.False(t, res.Triggered, "risk 0.2 is within balanced threshold 0.5")

	res, err = h.engine.Evaluate(ctx, evalCtx(model.CP1, model.Envelope{RiskScore: 0.7}))
	require.NoError(t, err)
	assert.True(t, res.WaitRequired)

	require.NoError(t, h.engine.DeleteOverride(ctx, "acme", model.CP2, model.ScopeDomain, "marketing"))
	res, err = h.engine.Evaluate(ctx, evalCtx(model.CP2, model.Envelope{Domain: "marketing", ActionType: "send_email"}))
	require.NoError(t, err)
	assert.Equal(t, model.SourceActionType, res.ConfigSource)

	err = h.engine.DeleteOverride(ctx, "acme", model.CP2, model.ScopeDomain, "marketing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAutoApproveAndAutoMode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.PresetBalanced)
	h.setConfig(t, model.CheckpointConfig{
		CheckpointType:        model.CP3,
		Mode:                  model.ModeManual,
		AutoApproveConditions: []string{"low_risk", "high_confidence"},
	})

	res, err := h.engine.Evaluate(ctx, evalCtx(model.CP3, model.Envelope{Confidence: 0.95}))
	require.NoError(t, err)
	assert.True(t, res.Triggered)
	assert.False(t, res.WaitRequired)
	require.NotNil(t, res.Decision)
	assert.Equal(t, model.DecisionAutoApproved, *res.Decision)
	d, err := h.engine.Get(ctx, *res.DecisionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDecided, d.Status)
	require.NotNil(t, d.DecidedBy)
	assert.Equal(t, checkpoint.SystemActor, *d.DecidedBy)

	// One failing condition is enough to fall through to MANUAL.
	res, err = h.engine.Evaluate(ctx, evalCtx(model.CP3, model.Envelope{
		Confidence:  0.95,
		RiskSignals: []model.RiskSignal{{Type: "pii", Severity: model.RiskHigh}},
	}))
	require.NoError(t, err)
	assert.True(t, res.WaitRequired)

	h.setConfig(t, model.CheckpointConfig{CheckpointType: model.CP5, Mode: model.ModeAuto, NotifyOnly: true})
	res, err = h.engine.Evaluate(ctx, evalCtx(model.CP5, model.Envelope{}))
	require.NoError(t, err)
	assert.True(t, res.Triggered)
	assert.False(t, res.WaitRequired)
	assert.Equal(t, model.DecisionAutoApproved, *res.Decision)
	assert.Contains(t, h.events.kinds(), notify.GovernanceNotifyOnly)
}

func TestUnknownPredicate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.PresetBalanced)
	_, err := h.engine.SetConfig(ctx, model.CheckpointConfig{
		TenantID: "acme", CheckpointType: model.CP1, ScopeKind: model.ScopeTenant,
		Mode: model.ModeConditional, TriggerOn: []string{"moon_phase"},
		TimeoutSeconds: 60, TimeoutAction: model.DecisionRejected,
	})
	assert.ErrorIs(t, err, model.ErrInvalid)

	// A rule stored by another process may still name one.
	require.NoError(t, h.store.UpsertCheckpointConfig(ctx, model.CheckpointConfig{
		TenantID: "acme", CheckpointType: model.CP1, ScopeKind: model.ScopeTenant,
		Mode: model.ModeConditional, TriggerOn: []string{"moon_phase"},
		AutoApproveConditions: []string{"moon_phase"},
		TimeoutSeconds:        60, TimeoutAction: model.DecisionRejected,
	}))
	res, err := h.engine.Evaluate(ctx, evalCtx(model.CP1, model.Envelope{}))
	require.NoError(t, err)
	assert.False(t, res.Triggered)
}

func TestResolveExactlyOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.PresetParanoid)
	res, err := h.engine.Evaluate(ctx, evalCtx(model.CP2, model.Envelope{}))
	require.NoError(t, err)
	require.True(t, res.WaitRequired)
	id := *res.DecisionID

	var applied atomic.Int32
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := h.engine.Resolve(ctx, id, model.Resolution{Decision: model.DecisionApproved, DecidedBy: fmt.Sprintf("reviewer-%d", i)})
			if err == nil && r.Applied {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), applied.Load())

	d, err := h.engine.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDecided, d.Status)

	// Deadline passing after the decision changes nothing.
	h.clock.Advance(48 * time.Hour)
	out, err := h.engine.ProcessTimeouts(ctx)
	require.NoError(t, err)
	assert.Zero(t, out.TimedOut)
	again, err := h.engine.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, d, again)

	_, err = h.engine.Resolve(ctx, uuid.New(), model.Resolution{Decision: model.DecisionApproved, DecidedBy: "x"})
	assert.ErrorIs(t, err, checkpoint.ErrDecisionNotFound)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = h.engine.Resolve(ctx, id, model.Resolution{Decision: model.DecisionEscalated, DecidedBy: "x"})
	assert.ErrorIs(t, err, model.ErrInvalid)
	_, err = h.engine.Resolve(ctx, id, model.Resolution{Decision: model.DecisionModified, DecidedBy: "x"})
	assert.ErrorIs(t, err, model.ErrInvalid)
}

func TestProcessTimeouts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.PresetBalanced)
	h.setConfig(t, model.CheckpointConfig{CheckpointType: model.CP2, Mode: model.ModeManual, TimeoutSeconds: 600})
	h.setConfig(t, model.CheckpointConfig{CheckpointType: model.CP5, Mode: model.ModeManual, TimeoutSeconds: 600, TimeoutAction: model.DecisionEscalated})

	r1, err := h.engine.Evaluate(ctx, evalCtx(model.CP2, model.Envelope{}))
	require.NoError(t, err)
	r2, err := h.engine.Evaluate(ctx, evalCtx(model.CP5, model.Envelope{}))
	require.NoError(t, err)

	h.clock.Advance(5 * time.Minute)
	out, err := h.engine.ProcessTimeouts(ctx)
	require.NoError(t, err)
	assert.Zero(t, out.TimedOut)

	h.clock.Advance(5 * time.Minute)
	out, err = h.engine.ProcessTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.TimeoutResult{TimedOut: 2, Escalated: 1}, out)

	d1, err := h.engine.Get(ctx, *r1.DecisionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTimeout, d1.Status)
	assert.Equal(t, model.DecisionRejected, *d1.Decision)

	pending, err := h.engine.ListPending(ctx, "acme", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	succ := pending[0]
	assert.Equal(t, 1, succ.EscalationLevel)
	require.NotNil(t, succ.ParentDecisionID)
	assert.Equal(t, *r2.DecisionID, *succ.ParentDecisionID)
	assert.Equal(t, h.clock.Now().Add(10*time.Minute), succ.Deadline)

	// A second pass with nothing new expiring is a no-op.
	out, err = h.engine.ProcessTimeouts(ctx)
	require.NoError(t, err)
	assert.Zero(t, out.TimedOut)

	// The chain ends: the last level times out to REJECTED.
	for range 3 {
		h.clock.Advance(10 * time.Minute)
		_, err = h.engine.ProcessTimeouts(ctx)
		require.NoError(t, err)
	}
	assert.Empty(t, h.store.byStatus(model.StatusPending))
	var last model.CheckpointDecision
	for _, d := range h.store.byStatus(model.StatusTimeout) {
		if d.EscalationLevel > last.EscalationLevel {
			last = d
		}
	}
	assert.Equal(t, 3, last.EscalationLevel)
	assert.Equal(t, model.DecisionRejected, *last.Decision)
	assert.Contains(t, h.events.kinds(), notify.CheckpointTimedOut)
	assert.Contains(t, h.events.kinds(), notify.CheckpointEscalated)
}

func TestEscalate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.PresetParanoid)
	res, err := h.engine.Evaluate(ctx, evalCtx(model.CP1, model.Envelope{}))
	require.NoError(t, err)
	id := *res.DecisionID

	h.clock.Advance(time.Hour)
	esc, err := h.engine.Escalate(ctx, id, "lead", "needs legal")
	require.NoError(t, err)
	require.True(t, esc.Applied)
	assert.Equal(t, 1, esc.Decision.EscalationLevel)
	assert.Equal(t, model.StatusPending, esc.Decision.Status)
	assert.Equal(t, "needs legal", esc.Decision.TriggerReason)
	assert.Equal(t, h.clock.Now().Add(24*time.Hour), esc.Decision.Deadline)

	orig, err := h.engine.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEscalated, orig.Status)

	again, err := h.engine.Escalate(ctx, id, "lead", "")
	require.NoError(t, err)
	assert.False(t, again.Applied)

	next := esc.Decision.ID
	for range 2 {
		r, err := h.engine.Escalate(ctx, next, "lead", "")
		require.NoError(t, err)
		require.True(t, r.Applied)
		next = r.Decision.ID
	}
	_, err = h.engine.Escalate(ctx, next, "lead", "")
	assert.ErrorIs(t, err, checkpoint.ErrMaxEscalation)

	_, err = h.engine.Escalate(ctx, uuid.New(), "lead", "")
	assert.ErrorIs(t, err, checkpoint.ErrDecisionNotFound)
}

func TestDisabledAndValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.PresetCowboy)

	res, err := h.engine.Evaluate(ctx, evalCtx(model.CP1, model.Envelope{RiskScore: 1}))
	require.NoError(t, err)
	assert.False(t, res.Triggered)
	assert.Equal(t, model.ModeDisabled, res.Mode)
	assert.Equal(t, model.SourcePreset, res.ConfigSource)

	_, err = h.engine.Evaluate(ctx, evalCtx("CP9", model.Envelope{}))
	assert.ErrorIs(t, err, model.ErrInvalid)

	bad := evalCtx(model.CP1, model.Envelope{})
	bad.TenantID = ""
	_, err = h.engine.Evaluate(ctx, bad)
	assert.ErrorIs(t, err, model.ErrInvalid)

	_, err = h.engine.SetConfig(ctx, model.CheckpointConfig{
		TenantID: "acme", CheckpointType: model.CP1, ScopeKind: model.ScopeDomain,
		Mode: model.ModeManual, TimeoutSeconds: 60, TimeoutAction: model.DecisionRejected,
	})
	assert.ErrorIs(t, err, model.ErrInvalid, "domain scope needs a value")
}

func TestPredicates(t *testing.T) {
	reg := checkpoint.NewRegistry()
	tests := []struct {
		name string
		env  model.Envelope
		want bool
	}{
		{name: "high_cost", env: model.Envelope{CostCents: 101}, want: true},
		{name: "high_cost", env: model.Envelope{CostCents: 100}, want: false},
		{name: "low_cost", env: model.Envelope{CostCents: 10}, want: true},
		{name: "risk_above_threshold", env: model.Envelope{RiskSignals: []model.RiskSignal{{Type: "x", Severity: model.RiskHigh}}}, want: true},
		{name: "risk_above_threshold", env: model.Envelope{RiskSignals: []model.RiskSignal{{Type: "x", Severity: model.RiskMedium}}}, want: false},
		{name: "critical_risk", env: model.Envelope{RiskSignals: []model.RiskSignal{{Type: "x", Severity: model.RiskCritical}}}, want: true},
		{name: "destructive_action", env: model.Envelope{ActionType: "delete"}, want: true},
		{name: "destructive_action", env: model.Envelope{ActionType: "read"}, want: false},
		{name: "ambiguous_intent", env: model.Envelope{TriggerReason: "ambiguous_intent"}, want: true},
		{name: "missing_context", env: model.Envelope{RiskSignals: []model.RiskSignal{{Type: "missing_context", Severity: model.RiskLow}}}, want: true},
		{name: "low_confidence", env: model.Envelope{Confidence: 0.4}, want: true},
		{name: "high_confidence", env: model.Envelope{Confidence: 0.9}, want: true},
		{name: "low_risk", env: model.Envelope{RiskSignals: []model.RiskSignal{{Type: "x", Severity: model.RiskLow}}}, want: true},
		{name: "no_risk_signals", env: model.Envelope{}, want: true},
		{name: "risk_score_above_threshold", env: model.Envelope{RiskScore: 0.6}, want: true},
		{name: "risk_score_above_threshold", env: model.Envelope{RiskScore: 0.5}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := reg.Lookup(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.want, p(tt.env, checkpoint.Params{RiskThreshold: 0.5}))
		})
	}

	reg.Register("weekend", func(model.Envelope, checkpoint.Params) bool { return true })
	assert.Contains(t, reg.Names(), "weekend")
}
