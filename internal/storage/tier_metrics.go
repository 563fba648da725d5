package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radiant-ai/radiant/internal/model"
)

// IncrementFlowMetric adds delta to the (tenant, period, periodStart)
// bucket, creating it if needed.
func (db *DB) IncrementFlowMetric(ctx context.Context, tenantID string, period model.MetricPeriod, periodStart time.Time, d model.FlowDelta) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO data_flow_metrics (tenant_id, period, period_start, hot_to_warm_promotions,
		                                warm_to_cold_archivals, cold_to_warm_retrievals, cold_retrieval_misses,
		                                total_retrieval_latency_ms, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 ON CONFLICT (tenant_id, period, period_start) DO UPDATE SET
		     hot_to_warm_promotions     = data_flow_metrics.hot_to_warm_promotions + EXCLUDED.hot_to_warm_promotions,
		     warm_to_cold_archivals     = data_flow_metrics.warm_to_cold_archivals + EXCLUDED.warm_to_cold_archivals,
		     cold_to_warm_retrievals    = data_flow_metrics.cold_to_warm_retrievals + EXCLUDED.cold_to_warm_retrievals,
		     cold_retrieval_misses      = data_flow_metrics.cold_retrieval_misses + EXCLUDED.cold_retrieval_misses,
		     total_retrieval_latency_ms = data_flow_metrics.total_retrieval_latency_ms + EXCLUDED.total_retrieval_latency_ms,
		     updated_at                 = now()`,
		tenantID, string(period), periodStart, d.Promotions, d.Archivals, d.Retrievals, d.RetrievalMisses,
		d.RetrievalLatency.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("storage: increment flow metric: %w", err)
	}
	return nil
}

// ListFlowMetrics returns a tenant's buckets starting at or after since,
// oldest first, with derived miss-rate and latency fields filled in.
func (db *DB) ListFlowMetrics(ctx context.Context, tenantID string, period model.MetricPeriod, since time.Time) ([]model.DataFlowMetric, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT tenant_id, period, period_start, hot_to_warm_promotions, warm_to_cold_archivals,
		        cold_to_warm_retrievals, cold_retrieval_misses, total_retrieval_latency_ms, updated_at
		 FROM data_flow_metrics
		 WHERE tenant_id = $1 AND period = $2 AND period_start >= $3
		 ORDER BY period_start`,
		tenantID, string(period), since,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list flow metrics: %w", err)
	}
	defer rows.Close()

	var out []model.DataFlowMetric
	for rows.Next() {
		var m model.DataFlowMetric
		if err := rows.Scan(
			&m.TenantID, &m.Period, &m.PeriodStart, &m.HotToWarmPromotions, &m.WarmToColdArchivals,
			&m.ColdToWarmRetrievals, &m.ColdRetrievalMisses, &m.TotalRetrievalLatencyMs, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan flow metric: %w", err)
		}
		if attempts := m.ColdToWarmRetrievals + m.ColdRetrievalMisses; attempts > 0 {
			m.ColdMissRate = float64(m.ColdRetrievalMisses) / float64(attempts)
			m.AvgRetrievalLatencyMs = float64(m.TotalRetrievalLatencyMs) / float64(attempts)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertTierAlert stores a new alert.
func (db *DB) InsertTierAlert(ctx context.Context, a model.TierAlert) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO tier_alerts (id, tenant_id, tier, severity, metric, threshold, current_value, message, triggered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.TenantID, string(a.Tier), string(a.Severity), a.Metric, a.Threshold, a.CurrentValue, a.Message, a.TriggeredAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert tier alert: %w", err)
	}
	return nil
}

// ListTierAlerts returns a tenant's alerts, newest first.
func (db *DB) ListTierAlerts(ctx context.Context, tenantID string, openOnly bool, limit int) ([]model.TierAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, tenant_id, tier, severity, metric, threshold, current_value, message,
		        triggered_at, acknowledged_at, acknowledged_by
		 FROM tier_alerts
		 WHERE tenant_id = $1 AND (NOT $2 OR acknowledged_at IS NULL)
		 ORDER BY triggered_at DESC
		 LIMIT $3`,
		tenantID, openOnly, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list tier alerts: %w", err)
	}
	defer rows.Close()

	var out []model.TierAlert
	for rows.Next() {
		var a model.TierAlert
		if err := rows.Scan(
			&a.ID, &a.TenantID, &a.Tier, &a.Severity, &a.Metric, &a.Threshold, &a.CurrentValue, &a.Message,
			&a.TriggeredAt, &a.AcknowledgedAt, &a.AcknowledgedBy,
		); err != nil {
			return nil, fmt.Errorf("storage: scan tier alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AcknowledgeTierAlert stamps an alert as acknowledged. Returns false when
// it was already acknowledged, ErrNotFound when it does not exist.
func (db *DB) AcknowledgeTierAlert(ctx context.Context, tenantID string, id uuid.UUID, by string, at time.Time) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE tier_alerts SET acknowledged_at = $3, acknowledged_by = $4
		 WHERE id = $1 AND tenant_id = $2 AND acknowledged_at IS NULL`,
		id, tenantID, at, by,
	)
	if err != nil {
		return false, fmt.Errorf("storage: acknowledge tier alert: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tier_alerts WHERE id = $1 AND tenant_id = $2)`, id, tenantID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("storage: acknowledge tier alert: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("storage: tier alert %s: %w", id, ErrNotFound)
	}
	return false, nil
}

// InsertHealthSnapshot stores the result of a health check.
func (db *DB) InsertHealthSnapshot(ctx context.Context, s model.TierHealthSnapshot) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO tier_health_snapshots (id, tenant_id, cache_memory_pct, cache_hit_rate, hot_key_count,
		                                    warm_node_count, archived_count, alerts_triggered, taken_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.TenantID, s.CacheMemoryPct, s.CacheHitRate, s.HotKeyCount,
		s.WarmNodeCount, s.ArchivedCount, s.AlertsTriggered, s.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert health snapshot: %w", err)
	}
	return nil
}

// ListHealthSnapshots returns a tenant's most recent snapshots, newest first.
func (db *DB) ListHealthSnapshots(ctx context.Context, tenantID string, limit int) ([]model.TierHealthSnapshot, error) {
	if limit <= 0 {
		limit = 24
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, tenant_id, cache_memory_pct, cache_hit_rate, hot_key_count, warm_node_count,
		        archived_count, alerts_triggered, taken_at
		 FROM tier_health_snapshots WHERE tenant_id = $1
		 ORDER BY taken_at DESC LIMIT $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list health snapshots: %w", err)
	}
	defer rows.Close()

	var out []model.TierHealthSnapshot
	for rows.Next() {
		var s model.TierHealthSnapshot
		if err := rows.Scan(
			&s.ID, &s.TenantID, &s.CacheMemoryPct, &s.CacheHitRate, &s.HotKeyCount, &s.WarmNodeCount,
			&s.ArchivedCount, &s.AlertsTriggered, &s.TakenAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan health snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
