package tiering

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/radiant-ai/radiant/internal/kv"
	"github.com/radiant-ai/radiant/internal/model"
	"github.com/radiant-ai/radiant/internal/notify"
)

// criticalMemoryPct is the cache memory level at which the alert is raised
// as critical instead of warning.
const criticalMemoryPct = 95

// CheckTierHealth compares current tier metrics against the fixed health
// thresholds, stores an alert for each breach, and always stores a health
// snapshot. Returns the alerts raised by this check.
func (c *Coordinator) CheckTierHealth(ctx context.Context, tenantID string) ([]model.TierAlert, error) {
	ctx, span := c.tracer.Start(ctx, "tiering.CheckTierHealth",
		trace.WithAttributes(attribute.String("radiant.tenant_id", tenantID)))
	defer span.End()

	now := c.clock.Now()
	snap := model.TierHealthSnapshot{
		ID:           uuid.New(),
		TenantID:     tenantID,
		CacheHitRate: 100,
		TakenAt:      now,
	}

	var stats *kv.Stats
	if sp, ok := c.hot.(kv.StatsProvider); ok {
		s, err := sp.Stats(ctx)
		if err != nil {
			c.logger.Warn("tiering: cache stats unavailable", "tenant_id", tenantID, "error", err)
		} else {
			stats = &s
			snap.CacheMemoryPct = s.MemoryUsedPct()
			snap.CacheHitRate = s.HitRate()
		}
	}
	if keys, err := c.hot.ScanPrefix(ctx, hotPrefix(tenantID)); err != nil {
		c.logger.Warn("tiering: hot key count failed", "tenant_id", tenantID, "error", err)
	} else {
		snap.HotKeyCount = int64(len(keys))
	}
	counts, err := c.store.CountMemoryNodes(ctx, tenantID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("tiering: count warm nodes: %w", err)
	}
	snap.WarmNodeCount = counts.Active
	snap.ArchivedCount = counts.Archived

	th := c.opts.Thresholds
	var alerts []model.TierAlert
	raise := func(tier model.Tier, sev model.AlertSeverity, metric string, threshold, current float64, msg string) {
		alerts = append(alerts, model.TierAlert{
			ID:           uuid.New(),
			TenantID:     tenantID,
			Tier:         tier,
			Severity:     sev,
			Metric:       metric,
			Threshold:    threshold,
			CurrentValue: current,
			Message:      msg,
			TriggeredAt:  now,
		})
	}
	if stats != nil && snap.CacheMemoryPct > th.CacheMemoryPct {
		sev := model.SeverityWarning
		if snap.CacheMemoryPct > criticalMemoryPct {
			sev = model.SeverityCritical
		}
		raise(model.TierHot, sev, "cache_memory_pct", th.CacheMemoryPct, snap.CacheMemoryPct,
			fmt.Sprintf("hot cache memory at %.1f%%", snap.CacheMemoryPct))
	}
	if stats != nil && snap.CacheHitRate < th.CacheHitRate {
		raise(model.TierHot, model.SeverityWarning, "cache_hit_rate", th.CacheHitRate, snap.CacheHitRate,
			fmt.Sprintf("hot cache hit rate at %.1f%%", snap.CacheHitRate))
	}
	if snap.WarmNodeCount > th.WarmNodeCount {
		raise(model.TierWarm, model.SeverityWarning, "warm_node_count", float64(th.WarmNodeCount), float64(snap.WarmNodeCount),
			fmt.Sprintf("warm tier holds %d active records", snap.WarmNodeCount))
	}

	stored := alerts[:0]
	for _, a := range alerts {
		if err := c.store.InsertTierAlert(ctx, a); err != nil {
			c.logger.Error("tiering: store alert failed", "tenant_id", tenantID, "metric", a.Metric, "error", err)
			continue
		}
		stored = append(stored, a)
		if err := c.opts.Notify.Notify(ctx, notify.Event{
			Kind:     notify.TierAlertRaised,
			TenantID: tenantID,
			Subject:  a.ID.String(),
			Data: map[string]any{
				"tier":          a.Tier,
				"severity":      a.Severity,
				"metric":        a.Metric,
				"threshold":     a.Threshold,
				"current_value": a.CurrentValue,
			},
			At: now,
		}); err != nil {
			c.logger.Warn("tiering: alert notification failed", "tenant_id", tenantID, "alert_id", a.ID, "error", err)
		}
	}

	snap.AlertsTriggered = len(stored)
	if err := c.store.InsertHealthSnapshot(ctx, snap); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return stored, fmt.Errorf("tiering: store health snapshot: %w", err)
	}
	if len(stored) > 0 {
		c.logger.Warn("tiering: health thresholds breached", "tenant_id", tenantID, "alerts", len(stored))
	}
	return stored, nil
}

// Alerts lists a tenant's alerts, newest first.
func (c *Coordinator) Alerts(ctx context.Context, tenantID string, openOnly bool, limit int) ([]model.TierAlert, error) {
	return c.store.ListTierAlerts(ctx, tenantID, openOnly, limit)
}

// AcknowledgeAlert stamps an alert as acknowledged. Acknowledging twice is
// a no-op reported as false.
func (c *Coordinator) AcknowledgeAlert(ctx context.Context, tenantID string, id uuid.UUID, by string) (bool, error) {
	ok, err := c.store.AcknowledgeTierAlert(ctx, tenantID, id, by, c.clock.Now())
	if err != nil {
		return false, fmt.Errorf("tiering: acknowledge alert: %w", err)
	}
	return ok, nil
}
