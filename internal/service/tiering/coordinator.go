// Package tiering moves memory records between the Hot cache, the Warm
// graph in Postgres, and the Cold object archive, and carries GDPR erasure
// across all three.
//
// Postgres is the source of truth for a record's status. The Hot cache and
// the archive can be rebuilt or lost without making a status wrong; the
// one exception is archived content whose Cold write never succeeded.
package tiering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/radiant-ai/radiant/internal/archive"
	"github.com/radiant-ai/radiant/internal/clock"
	"github.com/radiant-ai/radiant/internal/kv"
	"github.com/radiant-ai/radiant/internal/model"
	"github.com/radiant-ai/radiant/internal/notify"
	"github.com/radiant-ai/radiant/internal/storage"
	"github.com/radiant-ai/radiant/internal/telemetry"
	"github.com/radiant-ai/radiant/internal/vectorindex"
)

// Store is the slice of storage.DB the coordinator needs.
type Store interface {
	EnsureTenant(ctx context.Context, tenantID string) error
	GetTierConfig(ctx context.Context, tenantID string) (model.TierConfig, error)
	UpsertTierConfig(ctx context.Context, c model.TierConfig) error

	UpsertMemoryNode(ctx context.Context, r model.MemoryRecord, now time.Time) (uuid.UUID, error)
	GetMemoryNode(ctx context.Context, tenantID string, id uuid.UUID) (model.MemoryRecord, error)
	ListArchiveCandidates(ctx context.Context, tenantID string, cutoff time.Time, evergreenTypes []string, limit int) ([]model.MemoryRecord, error)
	MarkArchived(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) (bool, error)
	SetColdKey(ctx context.Context, tenantID string, id uuid.UUID, key string) error
	RestoreArchived(ctx context.Context, tenantID string, id uuid.UUID, cold *model.MemoryRecord, at time.Time) (bool, error)
	RecordNodeAlias(ctx context.Context, tenantID string, aliasID, nodeID uuid.UUID, at time.Time) error
	ResolveNodeAlias(ctx context.Context, tenantID string, aliasID uuid.UUID) (uuid.UUID, error)
	RecordColdObject(ctx context.Context, tenantID string, nodeID uuid.UUID, userID *string, key string, at time.Time) error
	ColdObjectKeys(ctx context.Context, tenantID, userID string, nodeIDs []uuid.UUID) ([]string, error)
	ForgetColdObjects(ctx context.Context, tenantID string, keys []string) error
	ListDuplicateGroups(ctx context.Context, tenantID string, limit int) ([]storage.DuplicateGroup, error)
	MergeDuplicates(ctx context.Context, tenantID string, keepID uuid.UUID, mergeIDs []uuid.UUID, at time.Time) (storage.MergeResult, error)
	CountMemoryNodes(ctx context.Context, tenantID string) (storage.NodeCounts, error)

	CreateErasureRequest(ctx context.Context, in model.ErasureRequestInput, at time.Time) (model.ErasureRequest, error)
	GetErasureRequest(ctx context.Context, id uuid.UUID) (model.ErasureRequest, error)
	ListOpenErasureRequests(ctx context.Context, limit int) ([]model.ErasureRequest, error)
	SetErasureStatus(ctx context.Context, id uuid.UUID, status model.ErasureStatus) error
	SetErasureTierStatus(ctx context.Context, id uuid.UUID, tier model.Tier, status model.ErasureStatus) error
	CompleteErasureRequest(ctx context.Context, id uuid.UUID, at time.Time) error
	FailErasureRequest(ctx context.Context, id uuid.UUID, msg string) error
	EraseUserNodes(ctx context.Context, tenantID, userID string, at time.Time) ([]storage.ErasedNode, error)
	EraseTenantNodes(ctx context.Context, tenantID string, at time.Time) (int64, error)
	EnqueueColdPurges(ctx context.Context, entries []model.ColdPurgeEntry) error
	ListPendingColdPurges(ctx context.Context, maxAttempts, limit int) ([]model.ColdPurgeEntry, error)
	MarkColdPurged(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkColdPurgeFailed(ctx context.Context, id uuid.UUID, msg string) error
	FinalizeColdPurges(ctx context.Context, at time.Time) (int64, error)

	IncrementFlowMetric(ctx context.Context, tenantID string, period model.MetricPeriod, periodStart time.Time, d model.FlowDelta) error
	ListFlowMetrics(ctx context.Context, tenantID string, period model.MetricPeriod, since time.Time) ([]model.DataFlowMetric, error)
	InsertTierAlert(ctx context.Context, a model.TierAlert) error
	ListTierAlerts(ctx context.Context, tenantID string, openOnly bool, limit int) ([]model.TierAlert, error)
	AcknowledgeTierAlert(ctx context.Context, tenantID string, id uuid.UUID, by string, at time.Time) (bool, error)
	InsertHealthSnapshot(ctx context.Context, s model.TierHealthSnapshot) error
}

// HealthThresholds are the fixed limits checked by CheckTierHealth.
type HealthThresholds struct {
	CacheMemoryPct float64 // alert above
	CacheHitRate   float64 // alert below
	WarmNodeCount  int64   // alert above
}

// DefaultHealthThresholds returns the production limits.
func DefaultHealthThresholds() HealthThresholds {
	return HealthThresholds{
		CacheMemoryPct: 80,
		CacheHitRate:   90,
		WarmNodeCount:  100_000_000,
	}
}

// Options tune batch sizes and side channels. Zero values pick defaults.
type Options struct {
	PromoteBatch     int
	ArchiveBatch     int
	DedupGroupLimit  int
	PurgeMaxAttempts int
	// HotGrace is added to the Hot retention when setting cache TTLs so an
	// entry survives until the promotion sweep after it becomes eligible.
	HotGrace   time.Duration
	Thresholds HealthThresholds
	// Vectors, when set, has embedding points purged on erasure and merge.
	Vectors vectorindex.Index
	Notify  notify.Sink
}

func (o Options) withDefaults() Options {
	if o.PromoteBatch <= 0 {
		o.PromoteBatch = 500
	}
	if o.ArchiveBatch <= 0 {
		o.ArchiveBatch = 1000
	}
	if o.DedupGroupLimit <= 0 {
		o.DedupGroupLimit = 1000
	}
	if o.PurgeMaxAttempts <= 0 {
		o.PurgeMaxAttempts = 5
	}
	if o.HotGrace <= 0 {
		o.HotGrace = 24 * time.Hour
	}
	if o.Thresholds == (HealthThresholds{}) {
		o.Thresholds = DefaultHealthThresholds()
	}
	if o.Notify == nil {
		o.Notify = notify.Nop
	}
	return o
}

// Coordinator runs the tier lifecycle for every tenant.
type Coordinator struct {
	store   Store
	hot     kv.Store
	cold    archive.Archive
	clock   clock.Clock
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics coordinatorMetrics
}

type coordinatorMetrics struct {
	promotions metric.Int64Counter
	archivals  metric.Int64Counter
	retrievals metric.Int64Counter
	itemErrors metric.Int64Counter
	erasures   metric.Int64Counter
}

// New creates a Coordinator.
func New(store Store, hot kv.Store, cold archive.Archive, clk clock.Clock, opts Options, logger *slog.Logger) *Coordinator {
	meter := telemetry.Meter("radiant/tiering")
	promotions, _ := meter.Int64Counter("radiant.tiering.promotions",
		metric.WithDescription("Records promoted from Hot to Warm"))
	archivals, _ := meter.Int64Counter("radiant.tiering.archivals",
		metric.WithDescription("Records archived from Warm to Cold"))
	retrievals, _ := meter.Int64Counter("radiant.tiering.retrievals",
		metric.WithDescription("Records restored from Cold to Warm"))
	itemErrors, _ := meter.Int64Counter("radiant.tiering.item_errors",
		metric.WithDescription("Per-record failures inside tier sweeps"))
	erasures, _ := meter.Int64Counter("radiant.tiering.erasures",
		metric.WithDescription("GDPR erasure requests processed"))

	return &Coordinator{
		store:  store,
		hot:    hot,
		cold:   cold,
		clock:  clk,
		opts:   opts.withDefaults(),
		logger: logger,
		tracer: otel.Tracer("radiant/tiering"),
		metrics: coordinatorMetrics{
			promotions: promotions,
			archivals:  archivals,
			retrievals: retrievals,
			itemErrors: itemErrors,
			erasures:   erasures,
		},
	}
}

// TierConfig returns the tenant's tiering policy, or the defaults when the
// tenant has never stored one.
func (c *Coordinator) TierConfig(ctx context.Context, tenantID string) (model.TierConfig, error) {
	cfg, err := c.store.GetTierConfig(ctx, tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.DefaultTierConfig(tenantID), nil
	}
	if err != nil {
		return model.TierConfig{}, fmt.Errorf("tiering: load tier config: %w", err)
	}
	return cfg, nil
}

// SetTierConfig validates and stores a tenant's tiering policy.
func (c *Coordinator) SetTierConfig(ctx context.Context, cfg model.TierConfig) (model.TierConfig, error) {
	if cfg.ColdPartitionScheme == "" {
		cfg.ColdPartitionScheme = model.PartitionMonthly
	}
	if cfg.EvergreenNodeTypes == nil {
		cfg.EvergreenNodeTypes = []string{}
	}
	if err := model.Validate(cfg); err != nil {
		return model.TierConfig{}, err
	}
	cfg.UpdatedAt = c.clock.Now()
	if err := c.store.EnsureTenant(ctx, cfg.TenantID); err != nil {
		return model.TierConfig{}, fmt.Errorf("tiering: %w", err)
	}
	if err := c.store.UpsertTierConfig(ctx, cfg); err != nil {
		return model.TierConfig{}, fmt.Errorf("tiering: %w", err)
	}
	return cfg, nil
}

// FlowMetrics lists a tenant's data-flow buckets since the given time.
func (c *Coordinator) FlowMetrics(ctx context.Context, tenantID string, period model.MetricPeriod, since time.Time) ([]model.DataFlowMetric, error) {
	return c.store.ListFlowMetrics(ctx, tenantID, period, since)
}

// recordFlow adds d to the hourly and daily buckets. Metric writes never
// fail a sweep.
func (c *Coordinator) recordFlow(ctx context.Context, tenantID string, d model.FlowDelta) {
	if d.IsZero() {
		return
	}
	now := c.clock.Now()
	for _, p := range []model.MetricPeriod{model.PeriodHour, model.PeriodDay} {
		if err := c.store.IncrementFlowMetric(ctx, tenantID, p, p.BucketStart(now), d); err != nil {
			c.logger.Warn("tiering: record flow metric failed", "tenant_id", tenantID, "period", p, "error", err)
		}
	}
}
