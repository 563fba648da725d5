package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/radiant-ai/radiant/internal/model"
)

const checkpointConfigColumns = `tenant_id, checkpoint_type, scope_kind, scope_value, mode, trigger_on,
	auto_approve_conditions, timeout_seconds, timeout_action, notify_only, updated_at`

func scanCheckpointConfig(row pgx.Row) (model.CheckpointConfig, error) {
	var c model.CheckpointConfig
	err := row.Scan(
		&c.TenantID, &c.CheckpointType, &c.ScopeKind, &c.ScopeValue, &c.Mode, &c.TriggerOn,
		&c.AutoApproveConditions, &c.TimeoutSeconds, &c.TimeoutAction, &c.NotifyOnly, &c.UpdatedAt,
	)
	return c, err
}

func collectCheckpointConfigs(rows pgx.Rows) ([]model.CheckpointConfig, error) {
	defer rows.Close()
	var out []model.CheckpointConfig
	for rows.Next() {
		c, err := scanCheckpointConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan checkpoint config: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertCheckpointConfig stores a rule at its (tenant, type, scope) slot.
func (db *DB) UpsertCheckpointConfig(ctx context.Context, c model.CheckpointConfig) error {
	triggers := c.TriggerOn
	if triggers == nil {
		triggers = []string{}
	}
	auto := c.AutoApproveConditions
	if auto == nil {
		auto = []string{}
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO checkpoint_configs (`+checkpointConfigColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (tenant_id, checkpoint_type, scope_kind, scope_value) DO UPDATE SET
		     mode                    = EXCLUDED.mode,
		     trigger_on              = EXCLUDED.trigger_on,
		     auto_approve_conditions = EXCLUDED.auto_approve_conditions,
		     timeout_seconds         = EXCLUDED.timeout_seconds,
		     timeout_action          = EXCLUDED.timeout_action,
		     notify_only             = EXCLUDED.notify_only,
		     updated_at              = EXCLUDED.updated_at`,
		c.TenantID, string(c.CheckpointType), string(c.ScopeKind), c.ScopeValue, string(c.Mode), triggers,
		auto, c.TimeoutSeconds, string(c.TimeoutAction), c.NotifyOnly, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert checkpoint config: %w", err)
	}
	return nil
}

// DeleteCheckpointConfig removes one rule. Returns ErrNotFound if absent.
func (db *DB) DeleteCheckpointConfig(ctx context.Context, tenantID string, cpType model.CheckpointType, kind model.ScopeKind, value string) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM checkpoint_configs
		 WHERE tenant_id = $1 AND checkpoint_type = $2 AND scope_kind = $3 AND scope_value = $4`,
		tenantID, string(cpType), string(kind), value,
	)
	if err != nil {
		return fmt.Errorf("storage: delete checkpoint config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: checkpoint config %s/%s/%s: %w", cpType, kind, value, ErrNotFound)
	}
	return nil
}

// DeleteTenantCheckpointConfigs removes every stored rule for a tenant.
func (db *DB) DeleteTenantCheckpointConfigs(ctx context.Context, tenantID string) (int64, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM checkpoint_configs WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("storage: delete tenant checkpoint configs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListCheckpointConfigs returns every rule stored for a tenant.
func (db *DB) ListCheckpointConfigs(ctx context.Context, tenantID string) ([]model.CheckpointConfig, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+checkpointConfigColumns+` FROM checkpoint_configs
		 WHERE tenant_id = $1
		 ORDER BY checkpoint_type, scope_kind, scope_value`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("storage: list checkpoint configs: %w", err)
	}
	return collectCheckpointConfigs(rows)
}

// CheckpointConfigCandidates returns the rules that could apply to an
// evaluation: the tenant default plus any domain and action-type override
// matching the given values. Precedence is decided by the caller.
func (db *DB) CheckpointConfigCandidates(ctx context.Context, tenantID string, cpType model.CheckpointType, domain, actionType string) ([]model.CheckpointConfig, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+checkpointConfigColumns+` FROM checkpoint_configs
		 WHERE tenant_id = $1 AND checkpoint_type = $2 AND (
		       (scope_kind = 'tenant' AND scope_value = '')
		    OR (scope_kind = 'domain' AND scope_value = $3 AND $3 <> '')
		    OR (scope_kind = 'action_type' AND scope_value = $4 AND $4 <> ''))`,
		tenantID, string(cpType), domain, actionType,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: checkpoint config candidates: %w", err)
	}
	return collectCheckpointConfigs(rows)
}

const checkpointDecisionColumns = `id, pipeline_id, tenant_id, envelope_id, checkpoint_type, trigger_reason,
	presented_data, status, decision, decided_by, feedback, modifications, timeout_action, deadline,
	escalation_level, parent_decision_id, created_at, decided_at`

func scanCheckpointDecision(row pgx.Row) (model.CheckpointDecision, error) {
	var d model.CheckpointDecision
	err := row.Scan(
		&d.ID, &d.PipelineID, &d.TenantID, &d.EnvelopeID, &d.CheckpointType, &d.TriggerReason,
		&d.PresentedData, &d.Status, &d.Decision, &d.DecidedBy, &d.Feedback, &d.Modifications, &d.TimeoutAction, &d.Deadline,
		&d.EscalationLevel, &d.ParentDecisionID, &d.CreatedAt, &d.DecidedAt,
	)
	return d, err
}

func collectCheckpointDecisions(rows pgx.Rows) ([]model.CheckpointDecision, error) {
	defer rows.Close()
	var out []model.CheckpointDecision
	for rows.Next() {
		d, err := scanCheckpointDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan checkpoint decision: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func insertCheckpointDecision(ctx context.Context, tx pgx.Tx, d model.CheckpointDecision) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO checkpoint_decisions (`+checkpointDecisionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		decisionArgs(d)...,
	)
	return err
}

func decisionArgs(d model.CheckpointDecision) []any {
	presented := d.PresentedData
	if presented == nil {
		presented = map[string]any{}
	}
	var decision *string
	if d.Decision != nil {
		s := string(*d.Decision)
		decision = &s
	}
	return []any{
		d.ID, d.PipelineID, d.TenantID, d.EnvelopeID, string(d.CheckpointType), d.TriggerReason,
		presented, string(d.Status), decision, d.DecidedBy, d.Feedback, jsonOrNull(d.Modifications), string(d.TimeoutAction), d.Deadline,
		d.EscalationLevel, d.ParentDecisionID, d.CreatedAt, d.DecidedAt,
	}
}

// InsertCheckpointDecision stores a new decision. Decisions created
// already resolved (AUTO mode, auto-approve rules) are inserted with their
// terminal status directly.
func (db *DB) InsertCheckpointDecision(ctx context.Context, d model.CheckpointDecision) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO checkpoint_decisions (`+checkpointDecisionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		decisionArgs(d)...,
	)
	if err != nil {
		return fmt.Errorf("storage: insert checkpoint decision: %w", err)
	}
	return nil
}

// GetCheckpointDecision loads a decision by ID.
func (db *DB) GetCheckpointDecision(ctx context.Context, id uuid.UUID) (model.CheckpointDecision, error) {
	d, err := scanCheckpointDecision(db.pool.QueryRow(ctx,
		`SELECT `+checkpointDecisionColumns+` FROM checkpoint_decisions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CheckpointDecision{}, fmt.Errorf("storage: checkpoint decision %s: %w", id, ErrNotFound)
		}
		return model.CheckpointDecision{}, fmt.Errorf("storage: get checkpoint decision: %w", err)
	}
	return d, nil
}

// ResolveCheckpointDecision moves a PENDING decision to DECIDED. When the
// decision is no longer PENDING the stored row is returned with applied
// false. ErrNotFound is returned for unknown IDs.
func (db *DB) ResolveCheckpointDecision(ctx context.Context, id uuid.UUID, res model.Resolution, at time.Time) (model.CheckpointDecision, bool, error) {
	d, err := scanCheckpointDecision(db.pool.QueryRow(ctx,
		`UPDATE checkpoint_decisions
		 SET status = 'DECIDED', decision = $2, decided_by = $3, feedback = $4, modifications = $5, decided_at = $6
		 WHERE id = $1 AND status = 'PENDING'
		 RETURNING `+checkpointDecisionColumns,
		id, string(res.Decision), res.DecidedBy, res.Feedback, jsonOrNull(res.Modifications), at,
	))
	if err == nil {
		return d, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.CheckpointDecision{}, false, fmt.Errorf("storage: resolve checkpoint decision: %w", err)
	}
	current, err := db.GetCheckpointDecision(ctx, id)
	if err != nil {
		return model.CheckpointDecision{}, false, err
	}
	return current, false, nil
}

// EscalateCheckpointDecision flips a PENDING decision to ESCALATED and, in
// the same transaction, inserts successor as the new PENDING decision at
// the next escalation level. Returns false (and inserts nothing) if the
// original was no longer PENDING.
func (db *DB) EscalateCheckpointDecision(ctx context.Context, id uuid.UUID, by string, at time.Time, successor model.CheckpointDecision) (bool, error) {
	applied := false
	err := db.inTx(ctx, "escalate", func(tx pgx.Tx) error {
		applied = false

		tag, err := tx.Exec(ctx,
			`UPDATE checkpoint_decisions SET status = 'ESCALATED', decided_by = $2, decided_at = $3
			 WHERE id = $1 AND status = 'PENDING'`,
			id, by, at,
		)
		if err != nil {
			return fmt.Errorf("storage: escalate checkpoint decision: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if err := insertCheckpointDecision(ctx, tx, successor); err != nil {
			return fmt.Errorf("storage: insert escalated successor: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}

// TimeoutCheckpointDecisions resolves every PENDING decision whose
// deadline is at or before now in a single statement: status becomes
// TIMEOUT, decision becomes the row's timeout_action, decided_by 'system'.
// Returns the rows it changed; a second call with no new expiries returns none.
func (db *DB) TimeoutCheckpointDecisions(ctx context.Context, now time.Time) ([]model.CheckpointDecision, error) {
	rows, err := db.pool.Query(ctx,
		`UPDATE checkpoint_decisions
		 SET status = 'TIMEOUT', decision = timeout_action, decided_by = 'system', decided_at = $1
		 WHERE status = 'PENDING' AND deadline <= $1
		 RETURNING `+checkpointDecisionColumns,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: timeout checkpoint decisions: %w", err)
	}
	return collectCheckpointDecisions(rows)
}

// ListPendingCheckpointDecisions returns a tenant's PENDING decisions by deadline.
func (db *DB) ListPendingCheckpointDecisions(ctx context.Context, tenantID string, limit int) ([]model.CheckpointDecision, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+checkpointDecisionColumns+` FROM checkpoint_decisions
		 WHERE tenant_id = $1 AND status = 'PENDING'
		 ORDER BY deadline LIMIT $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list pending checkpoint decisions: %w", err)
	}
	return collectCheckpointDecisions(rows)
}

// jsonOrNull maps a nil map to SQL NULL rather than the JSON literal null.
func jsonOrNull(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}
