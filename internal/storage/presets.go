package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/radiant-ai/radiant/internal/model"
)

const governanceColumns = `tenant_id, preset, friction_level_override, auto_approve_threshold_override,
	checkpoint_overrides, updated_by, updated_at`

func scanGovernance(row pgx.Row) (model.TenantGovernance, error) {
	var g model.TenantGovernance
	var overrides map[string]string
	err := row.Scan(
		&g.TenantID, &g.Preset, &g.FrictionLevelOverride, &g.AutoApproveThresholdOverride,
		&overrides, &g.UpdatedBy, &g.UpdatedAt,
	)
	if err != nil {
		return g, err
	}
	if len(overrides) > 0 {
		g.CheckpointOverrides = make(map[model.CheckpointType]model.GovernanceMode, len(overrides))
		for k, v := range overrides {
			g.CheckpointOverrides[model.CheckpointType(k)] = model.GovernanceMode(v)
		}
	}
	return g, nil
}

func overridesArg(m map[model.CheckpointType]model.GovernanceMode) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[string(k)] = string(v)
	}
	return out
}

// GetTenantGovernance returns the stored preset row for a tenant, or
// ErrNotFound when the tenant has never chosen one.
func (db *DB) GetTenantGovernance(ctx context.Context, tenantID string) (model.TenantGovernance, error) {
	g, err := scanGovernance(db.pool.QueryRow(ctx,
		`SELECT `+governanceColumns+` FROM tenant_governance WHERE tenant_id = $1`, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TenantGovernance{}, fmt.Errorf("storage: governance for %s: %w", tenantID, ErrNotFound)
		}
		return model.TenantGovernance{}, fmt.Errorf("storage: get tenant governance: %w", err)
	}
	return g, nil
}

// UpsertTenantGovernance writes the full governance row, preset and overrides.
func (db *DB) UpsertTenantGovernance(ctx context.Context, g model.TenantGovernance) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO tenant_governance (`+governanceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (tenant_id) DO UPDATE SET
		     preset                          = EXCLUDED.preset,
		     friction_level_override         = EXCLUDED.friction_level_override,
		     auto_approve_threshold_override = EXCLUDED.auto_approve_threshold_override,
		     checkpoint_overrides            = EXCLUDED.checkpoint_overrides,
		     updated_by                      = EXCLUDED.updated_by,
		     updated_at                      = EXCLUDED.updated_at`,
		g.TenantID, string(g.Preset), g.FrictionLevelOverride, g.AutoApproveThresholdOverride,
		overridesArg(g.CheckpointOverrides), g.UpdatedBy, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert tenant governance: %w", err)
	}
	return nil
}

// ReplaceGovernance switches a tenant to g and appends change to the
// preset history in one transaction. Overrides on g replace whatever was
// stored, so a preset switch with empty overrides clears them.
func (db *DB) ReplaceGovernance(ctx context.Context, g model.TenantGovernance, change model.PresetChange) error {
	return db.inTx(ctx, "replace governance", func(tx pgx.Tx) error {

		if _, err := tx.Exec(ctx,
			`INSERT INTO tenant_governance (`+governanceColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (tenant_id) DO UPDATE SET
			     preset                          = EXCLUDED.preset,
			     friction_level_override         = EXCLUDED.friction_level_override,
			     auto_approve_threshold_override = EXCLUDED.auto_approve_threshold_override,
			     checkpoint_overrides            = EXCLUDED.checkpoint_overrides,
			     updated_by                      = EXCLUDED.updated_by,
			     updated_at                      = EXCLUDED.updated_at`,
			g.TenantID, string(g.Preset), g.FrictionLevelOverride, g.AutoApproveThresholdOverride,
			overridesArg(g.CheckpointOverrides), g.UpdatedBy, g.UpdatedAt,
		); err != nil {
			return fmt.Errorf("storage: write tenant governance: %w", err)
		}

		if change.ID == uuid.Nil {
			change.ID = uuid.New()
		}
		var from *string
		if change.FromPreset != nil {
			s := string(*change.FromPreset)
			from = &s
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO governance_preset_history (id, tenant_id, from_preset, to_preset, changed_by,
			                                        reason, prior_snapshot, changed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			change.ID, change.TenantID, from, string(change.ToPreset), change.ChangedBy,
			change.Reason, change.PriorSnapshot, change.ChangedAt,
		); err != nil {
			return fmt.Errorf("storage: insert preset history: %w", err)
		}
		return nil
	})
}

// ListPresetHistory returns a tenant's preset changes, newest first.
func (db *DB) ListPresetHistory(ctx context.Context, tenantID string, limit int) ([]model.PresetChange, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, tenant_id, from_preset, to_preset, changed_by, reason, prior_snapshot, changed_at
		 FROM governance_preset_history
		 WHERE tenant_id = $1
		 ORDER BY changed_at DESC LIMIT $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list preset history: %w", err)
	}
	defer rows.Close()

	var out []model.PresetChange
	for rows.Next() {
		var c model.PresetChange
		if err := rows.Scan(&c.ID, &c.TenantID, &c.FromPreset, &c.ToPreset, &c.ChangedBy,
			&c.Reason, &c.PriorSnapshot, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("storage: scan preset history: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
