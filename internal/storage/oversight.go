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

const oversightColumns = `id, tenant_id, insight_id, domain, payload, status, created_at,
	escalate_at, expires_at, escalated_at, resolved_at`

func scanOversightItem(row pgx.Row) (model.OversightItem, error) {
	var it model.OversightItem
	err := row.Scan(
		&it.ID, &it.TenantID, &it.InsightID, &it.Domain, &it.Payload, &it.Status, &it.CreatedAt,
		&it.EscalateAt, &it.ExpiresAt, &it.EscalatedAt, &it.ResolvedAt,
	)
	return it, err
}

func collectOversightItems(rows pgx.Rows) ([]model.OversightItem, error) {
	defer rows.Close()
	var out []model.OversightItem
	for rows.Next() {
		it, err := scanOversightItem(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan oversight item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// InsertOversightItem queues a new item for review.
func (db *DB) InsertOversightItem(ctx context.Context, it model.OversightItem) error {
	payload := it.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO oversight_queue (id, tenant_id, insight_id, domain, payload, status,
		                              created_at, escalate_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		it.ID, it.TenantID, it.InsightID, it.Domain, payload, string(it.Status),
		it.CreatedAt, it.EscalateAt, it.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert oversight item: %w", err)
	}
	return nil
}

// GetOversightItem loads an item by ID.
func (db *DB) GetOversightItem(ctx context.Context, id uuid.UUID) (model.OversightItem, error) {
	it, err := scanOversightItem(db.pool.QueryRow(ctx,
		`SELECT `+oversightColumns+` FROM oversight_queue WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.OversightItem{}, fmt.Errorf("storage: oversight item %s: %w", id, ErrNotFound)
		}
		return model.OversightItem{}, fmt.Errorf("storage: get oversight item: %w", err)
	}
	return it, nil
}

// GetOversightDecision returns the decision recorded for an item.
func (db *DB) GetOversightDecision(ctx context.Context, itemID uuid.UUID) (model.OversightDecision, error) {
	var d model.OversightDecision
	err := db.pool.QueryRow(ctx,
		`SELECT id, item_id, tenant_id, outcome, decided_by, reason, modifications, decided_at
		 FROM oversight_decisions WHERE item_id = $1`, itemID,
	).Scan(&d.ID, &d.ItemID, &d.TenantID, &d.Outcome, &d.DecidedBy, &d.Reason, &d.Modifications, &d.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.OversightDecision{}, fmt.Errorf("storage: oversight decision for %s: %w", itemID, ErrNotFound)
		}
		return model.OversightDecision{}, fmt.Errorf("storage: get oversight decision: %w", err)
	}
	return d, nil
}

// ListOpenOversightItems returns a tenant's pending and escalated items,
// soonest expiry first.
func (db *DB) ListOpenOversightItems(ctx context.Context, tenantID string, limit int) ([]model.OversightItem, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+oversightColumns+` FROM oversight_queue
		 WHERE tenant_id = $1 AND status IN ('pending', 'escalated')
		 ORDER BY expires_at LIMIT $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list open oversight items: %w", err)
	}
	return collectOversightItems(rows)
}

// DecideOversightItem records the single decision for an open item and
// moves it to the matching terminal status. Returns false when the item
// was already closed; ErrNotFound when it does not exist.
func (db *DB) DecideOversightItem(ctx context.Context, d model.OversightDecision) (bool, error) {
	applied := false
	err := db.inTx(ctx, "oversight decision", func(tx pgx.Tx) error {
		applied = false

		var tenantID string
		err := tx.QueryRow(ctx,
			`UPDATE oversight_queue SET status = $2, resolved_at = $3
			 WHERE id = $1 AND status IN ('pending', 'escalated')
			 RETURNING tenant_id`,
			d.ItemID, string(d.Outcome.Status()), d.DecidedAt,
		).Scan(&tenantID)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM oversight_queue WHERE id = $1)`, d.ItemID).Scan(&exists); err != nil {
				return fmt.Errorf("storage: oversight item exists: %w", err)
			}
			if !exists {
				return fmt.Errorf("storage: oversight item %s: %w", d.ItemID, ErrNotFound)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("storage: close oversight item: %w", err)
		}

		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO oversight_decisions (id, item_id, tenant_id, outcome, decided_by, reason, modifications, decided_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			d.ID, d.ItemID, tenantID, string(d.Outcome), d.DecidedBy, d.Reason, jsonOrNull(d.Modifications), d.DecidedAt,
		); err != nil {
			// A concurrent decider won; the failed insert aborted this tx.
			if isUniqueViolation(err) {
				return errRollback
			}
			return fmt.Errorf("storage: insert oversight decision: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}

// ExpireOversightItems closes every open item whose expires_at is at or
// before now and records an 'expired' decision by 'system' for each, in
// one statement. Returns the expired items.
func (db *DB) ExpireOversightItems(ctx context.Context, now time.Time) ([]model.OversightItem, error) {
	rows, err := db.pool.Query(ctx,
		`WITH expired AS (
		     UPDATE oversight_queue SET status = 'expired', resolved_at = $1
		     WHERE status IN ('pending', 'escalated') AND expires_at <= $1
		     RETURNING `+oversightColumns+`
		 ), recorded AS (
		     INSERT INTO oversight_decisions (id, item_id, tenant_id, outcome, decided_by, reason, decided_at)
		     SELECT gen_random_uuid(), id, tenant_id, 'expired', 'system', 'review window elapsed', $1
		     FROM expired
		     ON CONFLICT (item_id) DO NOTHING
		 )
		 SELECT `+oversightColumns+` FROM expired`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: expire oversight items: %w", err)
	}
	return collectOversightItems(rows)
}

// EscalateOversightItems moves pending items whose escalate_at has passed
// but which have not yet expired to 'escalated'. Returns the escalated items.
func (db *DB) EscalateOversightItems(ctx context.Context, now time.Time) ([]model.OversightItem, error) {
	rows, err := db.pool.Query(ctx,
		`UPDATE oversight_queue SET status = 'escalated', escalated_at = $1
		 WHERE status = 'pending' AND escalate_at <= $1 AND expires_at > $1
		 RETURNING `+oversightColumns,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: escalate oversight items: %w", err)
	}
	return collectOversightItems(rows)
}
