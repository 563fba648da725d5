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

const erasureColumns = `id, tenant_id, scope, user_id, status, hot_status, warm_status, cold_status,
	requested_by, error, requested_at, completed_at, cold_purged_at`

func scanErasureRequest(row pgx.Row) (model.ErasureRequest, error) {
	var r model.ErasureRequest
	err := row.Scan(
		&r.ID, &r.TenantID, &r.Scope, &r.UserID, &r.Status, &r.HotStatus, &r.WarmStatus, &r.ColdStatus,
		&r.RequestedBy, &r.Error, &r.RequestedAt, &r.CompletedAt, &r.ColdPurgedAt,
	)
	return r, err
}

// CreateErasureRequest inserts a new pending erasure request.
func (db *DB) CreateErasureRequest(ctx context.Context, in model.ErasureRequestInput, at time.Time) (model.ErasureRequest, error) {
	r := model.ErasureRequest{
		ID:          uuid.New(),
		TenantID:    in.TenantID,
		Scope:       in.Scope,
		UserID:      in.UserID,
		Status:      model.ErasurePending,
		HotStatus:   model.ErasurePending,
		WarmStatus:  model.ErasurePending,
		ColdStatus:  model.ErasurePending,
		RequestedBy: in.RequestedBy,
		RequestedAt: at,
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO erasure_requests (id, tenant_id, scope, user_id, status, hot_status, warm_status,
		                               cold_status, requested_by, requested_at)
		 VALUES ($1, $2, $3, $4, 'pending', 'pending', 'pending', 'pending', $5, $6)`,
		r.ID, r.TenantID, string(r.Scope), r.UserID, r.RequestedBy, r.RequestedAt,
	)
	if err != nil {
		return model.ErasureRequest{}, fmt.Errorf("storage: create erasure request: %w", err)
	}
	return r, nil
}

// GetErasureRequest loads an erasure request by ID.
func (db *DB) GetErasureRequest(ctx context.Context, id uuid.UUID) (model.ErasureRequest, error) {
	r, err := scanErasureRequest(db.pool.QueryRow(ctx,
		`SELECT `+erasureColumns+` FROM erasure_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErasureRequest{}, fmt.Errorf("storage: erasure request %s: %w", id, ErrNotFound)
		}
		return model.ErasureRequest{}, fmt.Errorf("storage: get erasure request: %w", err)
	}
	return r, nil
}

// ListOpenErasureRequests returns pending or failed requests, oldest first.
func (db *DB) ListOpenErasureRequests(ctx context.Context, limit int) ([]model.ErasureRequest, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+erasureColumns+` FROM erasure_requests
		 WHERE status IN ('pending', 'failed')
		 ORDER BY requested_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list open erasure requests: %w", err)
	}
	defer rows.Close()

	var out []model.ErasureRequest
	for rows.Next() {
		r, err := scanErasureRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan erasure request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetErasureStatus updates the overall status of a request and clears any
// previous error.
func (db *DB) SetErasureStatus(ctx context.Context, id uuid.UUID, status model.ErasureStatus) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE erasure_requests SET status = $2, error = NULL WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("storage: set erasure status: %w", err)
	}
	return nil
}

// SetErasureTierStatus updates one tier's status field on a request.
func (db *DB) SetErasureTierStatus(ctx context.Context, id uuid.UUID, tier model.Tier, status model.ErasureStatus) error {
	var column string
	switch tier {
	case model.TierHot:
		column = "hot_status"
	case model.TierWarm:
		column = "warm_status"
	case model.TierCold:
		column = "cold_status"
	default:
		return fmt.Errorf("storage: unknown tier %q", tier)
	}
	_, err := db.pool.Exec(ctx,
		`UPDATE erasure_requests SET `+column+` = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("storage: set erasure %s: %w", column, err)
	}
	return nil
}

// CompleteErasureRequest marks a request completed.
func (db *DB) CompleteErasureRequest(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE erasure_requests SET status = 'completed', error = NULL, completed_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("storage: complete erasure request: %w", err)
	}
	return nil
}

// FailErasureRequest marks a request failed with the captured error.
func (db *DB) FailErasureRequest(ctx context.Context, id uuid.UUID, msg string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE erasure_requests SET status = 'failed', error = $2 WHERE id = $1`, id, msg)
	if err != nil {
		return fmt.Errorf("storage: fail erasure request: %w", err)
	}
	return nil
}

// EnqueueColdPurges records archive objects or prefixes for physical
// deletion. Entries already queued for the same request are skipped.
func (db *DB) EnqueueColdPurges(ctx context.Context, entries []model.ColdPurgeEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		batch.Queue(
			`INSERT INTO cold_purge_queue (id, request_id, tenant_id, object_key, prefix, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT DO NOTHING`,
			e.ID, e.RequestID, e.TenantID, e.ObjectKey, e.Prefix, e.CreatedAt,
		)
	}
	if err := db.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("storage: enqueue cold purges: %w", err)
	}
	return nil
}

// ListPendingColdPurges returns unpurged entries that have been attempted
// fewer than maxAttempts times, oldest first.
func (db *DB) ListPendingColdPurges(ctx context.Context, maxAttempts, limit int) ([]model.ColdPurgeEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, request_id, tenant_id, object_key, prefix, attempts, last_error, created_at, purged_at
		 FROM cold_purge_queue
		 WHERE purged_at IS NULL AND attempts < $1
		 ORDER BY created_at LIMIT $2`,
		maxAttempts, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list pending cold purges: %w", err)
	}
	defer rows.Close()

	var out []model.ColdPurgeEntry
	for rows.Next() {
		var e model.ColdPurgeEntry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.TenantID, &e.ObjectKey, &e.Prefix,
			&e.Attempts, &e.LastError, &e.CreatedAt, &e.PurgedAt); err != nil {
			return nil, fmt.Errorf("storage: scan cold purge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkColdPurged stamps a queue entry as done.
func (db *DB) MarkColdPurged(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE cold_purge_queue SET purged_at = $2, attempts = attempts + 1, last_error = NULL
		 WHERE id = $1 AND purged_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("storage: mark cold purged: %w", err)
	}
	return nil
}

// MarkColdPurgeFailed records a failed purge attempt.
func (db *DB) MarkColdPurgeFailed(ctx context.Context, id uuid.UUID, msg string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE cold_purge_queue SET attempts = attempts + 1, last_error = $2 WHERE id = $1`, id, msg)
	if err != nil {
		return fmt.Errorf("storage: mark cold purge failed: %w", err)
	}
	return nil
}

// FinalizeColdPurges stamps cold_purged_at on completed requests whose
// queue entries have all been purged. Returns the number of requests stamped.
func (db *DB) FinalizeColdPurges(ctx context.Context, at time.Time) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE erasure_requests r SET cold_purged_at = $1
		 WHERE r.status = 'completed' AND r.cold_purged_at IS NULL
		   AND NOT EXISTS (
		       SELECT 1 FROM cold_purge_queue q WHERE q.request_id = r.id AND q.purged_at IS NULL)`,
		at,
	)
	if err != nil {
		return 0, fmt.Errorf("storage: finalize cold purges: %w", err)
	}
	return tag.RowsAffected(), nil
}
