package governance_test

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiant-ai/radiant/internal/clock"
	"github.com/radiant-ai/radiant/internal/model"
	"github.com/radiant-ai/radiant/internal/notify"
	"github.com/radiant-ai/radiant/internal/service/governance"
	"github.com/radiant-ai/radiant/internal/storage"
	"github.com/radiant-ai/radiant/internal/testutil"
)

type fakeStore struct {
	mu      sync.Mutex
	rows    map[string]model.TenantGovernance
	history []model.PresetChange
	loads   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]model.TenantGovernance{}}
}

func (f *fakeStore) EnsureTenant(context.Context, string) error { return nil }

func (f *fakeStore) GetTenantGovernance(_ context.Context, tenantID string) (model.TenantGovernance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	g, ok := f.rows[tenantID]
	if !ok {
		return model.TenantGovernance{}, fmt.Errorf("fake: %w", storage.ErrNotFound)
	}
	return g, nil
}

func (f *fakeStore) UpsertTenantGovernance(_ context.Context, g model.TenantGovernance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[g.TenantID] = g
	return nil
}

func (f *fakeStore) ReplaceGovernance(_ context.Context, g model.TenantGovernance, change model.PresetChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[g.TenantID] = g
	f.history = append(f.history, change)
	return nil
}

func (f *fakeStore) ListPresetHistory(_ context.Context, tenantID string, limit int) ([]model.PresetChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PresetChange
	for _, c := range slices.Backward(f.history) {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newService(t *testing.T, sink notify.Sink) (*governance.Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	svc, err := governance.New(store, clock.NewManual(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)),
		governance.Options{Notify: sink}, testutil.TestLogger())
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc, store
}

func f64(v float64) *float64 { return &v }

func TestPresetTables(t *testing.T) {
	paranoid, ok := governance.Definition(model.PresetParanoid)
	require.True(t, ok)
	assert.Equal(t, 0.9, paranoid.FrictionLevel)
	assert.Equal(t, 0.1, paranoid.AutoApproveThreshold)
	for _, cp := range model.CheckpointTypes {
		assert.Equal(t, model.GovernAlways, paranoid.Checkpoints[cp], cp)
	}

	cowboy, ok := governance.Definition(model.PresetCowboy)
	require.True(t, ok)
	assert.Equal(t, 0.1, cowboy.FrictionLevel)
	assert.Equal(t, 0.9, cowboy.AutoApproveThreshold)
	assert.Equal(t, model.GovernConditional, cowboy.Checkpoints[model.CP4])

	balanced, ok := governance.Definition(model.PresetBalanced)
	require.True(t, ok)
	assert.Equal(t, 0.5, balanced.AutoApproveThreshold)

	// Definitions hand out copies.
	paranoid.Checkpoints[model.CP1] = model.GovernNever
	again, _ := governance.Definition(model.PresetParanoid)
	assert.Equal(t, model.GovernAlways, again.Checkpoints[model.CP1])

	_, ok = governance.Definition("reckless")
	assert.False(t, ok)
}

func TestEffectiveConfigDefaultsToBalanced(t *testing.T) {
	svc, _ := newService(t, nil)
	eff, err := svc.EffectiveConfig(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, model.PresetBalanced, eff.Preset)
	assert.False(t, eff.Customized)
}

func TestOverridesWinOverPreset(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)
	_, err := svc.SetPreset(ctx, "acme", model.PresetCowboy, "admin", "")
	require.NoError(t, err)

	eff, err := svc.SetOverrides(ctx, "acme", model.GovernanceOverrides{
		AutoApproveThreshold: f64(0.3),
		Checkpoints:          map[model.CheckpointType]model.GovernanceMode{model.CP1: model.GovernAlways},
	}, "admin")
	require.NoError(t, err)
	assert.Equal(t, model.PresetCowboy, eff.Preset)
	assert.Equal(t, 0.3, eff.AutoApproveThreshold)
	assert.Equal(t, 0.1, eff.FrictionLevel)
	assert.Equal(t, model.GovernAlways, eff.Checkpoints[model.CP1])
	assert.Equal(t, model.GovernNever, eff.Checkpoints[model.CP3])
	assert.True(t, eff.Customized)

	got, err := svc.EffectiveConfig(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, eff, got)

	_, err = svc.SetOverrides(ctx, "acme", model.GovernanceOverrides{FrictionLevel: f64(1.5)}, "admin")
	assert.ErrorIs(t, err, model.ErrInvalid)
	_, err = svc.SetOverrides(ctx, "acme", model.GovernanceOverrides{
		Checkpoints: map[model.CheckpointType]model.GovernanceMode{model.CP1: "SOMETIMES"},
	}, "admin")
	assert.ErrorIs(t, err, model.ErrInvalid)
}

func TestSetPresetResetsOverridesAndRecordsHistory(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t, nil)

	_, err := svc.SetPreset(ctx, "acme", model.PresetBalanced, "admin", "initial")
	require.NoError(t, err)
	_, err = svc.SetOverrides(ctx, "acme", model.GovernanceOverrides{
		FrictionLevel: f64(0.2),
		Checkpoints:   map[model.CheckpointType]model.GovernanceMode{model.CP2: model.GovernNever},
	}, "admin")
	require.NoError(t, err)

	eff, err := svc.SetPreset(ctx, "acme", model.PresetParanoid, "ciso", "audit finding")
	require.NoError(t, err)
	assert.Equal(t, model.PresetParanoid, eff.Preset)
	assert.False(t, eff.Customized)
	assert.Equal(t, 0.9, eff.FrictionLevel)
	assert.Equal(t, model.GovernAlways, eff.Checkpoints[model.CP2])
	assert.Nil(t, store.rows["acme"].FrictionLevelOverride)
	assert.Empty(t, store.rows["acme"].CheckpointOverrides)

	hist, err := svc.History(ctx, "acme", 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	latest := hist[0]
	require.NotNil(t, latest.FromPreset)
	assert.Equal(t, model.PresetBalanced, *latest.FromPreset)
	assert.Equal(t, model.PresetParanoid, latest.ToPreset)
	assert.Equal(t, "ciso", latest.ChangedBy)
	assert.Equal(t, 0.2, latest.PriorSnapshot.FrictionLevel)
	assert.Equal(t, model.GovernNever, latest.PriorSnapshot.Checkpoints[model.CP2])
	assert.Nil(t, hist[1].FromPreset, "first choice has no prior preset")

	_, err = svc.SetPreset(ctx, "acme", "reckless", "ciso", "")
	assert.ErrorIs(t, err, model.ErrInvalid)
}

func TestShouldCheckpoint(t *testing.T) {
	ctx := context.Background()
	var events []notify.Event
	sink := notify.SinkFunc(func(_ context.Context, e notify.Event) error {
		events = append(events, e)
		return nil
	})
	svc, _ := newService(t, sink)
	_, err := svc.SetPreset(ctx, "acme", model.PresetCowboy, "admin", "")
	require.NoError(t, err)

	tests := []struct {
		name     string
		cp       model.CheckpointType
		risk     float64
		required bool
		mode     model.GovernanceMode
	}{
		{name: "never", cp: model.CP1, risk: 1, required: false, mode: model.GovernNever},
		{name: "conditional below threshold", cp: model.CP4, risk: 0.5, required: false, mode: model.GovernConditional},
		{name: "conditional at threshold", cp: model.CP4, risk: 0.9, required: false, mode: model.GovernConditional},
		{name: "conditional above threshold", cp: model.CP4, risk: 0.95, required: true, mode: model.GovernConditional},
		{name: "notify only", cp: model.CP5, risk: 1, required: false, mode: model.GovernNotifyOnly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := svc.ShouldCheckpoint(ctx, "acme", tt.cp, tt.risk)
			require.NoError(t, err)
			assert.Equal(t, tt.required, req.Required)
			assert.Equal(t, tt.mode, req.Mode)
		})
	}
	require.Len(t, events, 1)
	assert.Equal(t, notify.GovernanceNotifyOnly, events[0].Kind)
	assert.Equal(t, "CP5", events[0].Subject)

	_, err = svc.SetPreset(ctx, "acme", model.PresetParanoid, "admin", "")
	require.NoError(t, err)
	req, err := svc.ShouldCheckpoint(ctx, "acme", model.CP1, 0)
	require.NoError(t, err)
	assert.True(t, req.Required)

	_, err = svc.ShouldCheckpoint(ctx, "acme", "CP9", 0)
	assert.ErrorIs(t, err, model.ErrInvalid)
}

func TestCheckpointConfigFor(t *testing.T) {
	def, _ := governance.Definition(model.PresetBalanced)
	eff := governance.Merge(def, model.TenantGovernance{
		TenantID:            "acme",
		CheckpointOverrides: map[model.CheckpointType]model.GovernanceMode{model.CP3: model.GovernNever},
	})

	tests := []struct {
		cp       model.CheckpointType
		mode     model.CheckpointMode
		triggers []string
		notify   bool
	}{
		{cp: model.CP2, mode: model.ModeManual, triggers: []string{"always"}},
		{cp: model.CP3, mode: model.ModeDisabled, triggers: []string{}},
		{cp: model.CP4, mode: model.ModeConditional, triggers: []string{"risk_score_above_threshold"}},
		{cp: model.CP5, mode: model.ModeAuto, triggers: []string{}, notify: true},
	}
	for _, tt := range tests {
		t.Run(string(tt.cp), func(t *testing.T) {
			cfg := governance.CheckpointConfigFor(eff, tt.cp)
			assert.Equal(t, tt.mode, cfg.Mode)
			assert.Equal(t, tt.triggers, cfg.TriggerOn)
			assert.Equal(t, tt.notify, cfg.NotifyOnly)
			assert.Equal(t, def.TimeoutSeconds, cfg.TimeoutSeconds)
			assert.Equal(t, model.ScopeTenant, cfg.ScopeKind)
			assert.NoError(t, model.Validate(cfg))
		})
	}
}

func TestNewRejectsUnknownDefaultPreset(t *testing.T) {
	_, err := governance.New(newFakeStore(), clock.System{}, governance.Options{DefaultPreset: "yolo"}, testutil.TestLogger())
	assert.Error(t, err)
}
