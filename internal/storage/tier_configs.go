package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/radiant-ai/radiant/internal/model"
)

// GetTierConfig returns the stored tiering policy for a tenant, or ErrNotFound.
func (db *DB) GetTierConfig(ctx context.Context, tenantID string) (model.TierConfig, error) {
	var c model.TierConfig
	err := db.pool.QueryRow(ctx,
		`SELECT tenant_id, hot_retention_hours, warm_retention_days, hot_enabled, warm_enabled,
		        cold_enabled, cold_partition_scheme, evergreen_node_types, updated_at
		 FROM tier_configs WHERE tenant_id = $1`, tenantID,
	).Scan(
		&c.TenantID, &c.HotRetentionHours, &c.WarmRetentionDays, &c.HotEnabled, &c.WarmEnabled,
		&c.ColdEnabled, &c.ColdPartitionScheme, &c.EvergreenNodeTypes, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TierConfig{}, fmt.Errorf("storage: tier config %s: %w", tenantID, ErrNotFound)
		}
		return model.TierConfig{}, fmt.Errorf("storage: get tier config: %w", err)
	}
	return c, nil
}

// UpsertTierConfig stores the tiering policy for c.TenantID.
func (db *DB) UpsertTierConfig(ctx context.Context, c model.TierConfig) error {
	evergreen := c.EvergreenNodeTypes
	if evergreen == nil {
		evergreen = []string{}
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO tier_configs (tenant_id, hot_retention_hours, warm_retention_days, hot_enabled,
		                           warm_enabled, cold_enabled, cold_partition_scheme, evergreen_node_types, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (tenant_id) DO UPDATE SET
		     hot_retention_hours   = EXCLUDED.hot_retention_hours,
		     warm_retention_days   = EXCLUDED.warm_retention_days,
		     hot_enabled           = EXCLUDED.hot_enabled,
		     warm_enabled          = EXCLUDED.warm_enabled,
		     cold_enabled          = EXCLUDED.cold_enabled,
		     cold_partition_scheme = EXCLUDED.cold_partition_scheme,
		     evergreen_node_types  = EXCLUDED.evergreen_node_types,
		     updated_at            = EXCLUDED.updated_at`,
		c.TenantID, c.HotRetentionHours, c.WarmRetentionDays, c.HotEnabled,
		c.WarmEnabled, c.ColdEnabled, string(c.ColdPartitionScheme), evergreen, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert tier config: %w", err)
	}
	return nil
}
