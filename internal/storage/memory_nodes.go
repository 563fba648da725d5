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

const memoryNodeColumns = `id, tenant_id, user_id, node_type, label, content, properties, embedding_ref,
	confidence, status, is_evergreen, source_tier, source_document_ids, cold_key,
	created_at, updated_at, archived_at, deleted_at`

func scanMemoryNode(row pgx.Row) (model.MemoryRecord, error) {
	var r model.MemoryRecord
	err := row.Scan(
		&r.ID, &r.TenantID, &r.UserID, &r.NodeType, &r.Label, &r.Content, &r.Properties, &r.EmbeddingRef,
		&r.Confidence, &r.Status, &r.IsEvergreen, &r.SourceTier, &r.SourceDocumentIDs, &r.ColdKey,
		&r.CreatedAt, &r.UpdatedAt, &r.ArchivedAt, &r.DeletedAt,
	)
	return r, err
}

func collectMemoryNodes(rows pgx.Rows) ([]model.MemoryRecord, error) {
	defer rows.Close()
	var out []model.MemoryRecord
	for rows.Next() {
		r, err := scanMemoryNode(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan memory node: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertMemoryNode writes r into the Warm tier keyed by (tenant, label,
// node type). On conflict the incoming record wins and the row becomes
// active again. Returns the ID of the stored row, which is the existing ID
// when the natural key already existed.
func (db *DB) UpsertMemoryNode(ctx context.Context, r model.MemoryRecord, now time.Time) (uuid.UUID, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	props := r.Properties
	if props == nil {
		props = map[string]any{}
	}
	docs := r.SourceDocumentIDs
	if docs == nil {
		docs = []string{}
	}
	sourceTier := r.SourceTier
	if sourceTier == "" {
		sourceTier = model.TierWarm
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO memory_nodes (id, tenant_id, user_id, node_type, label, content, properties, embedding_ref,
		                           confidence, status, is_evergreen, source_tier, source_document_ids,
		                           created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'active', $10, $11, $12, $13, $14)
		 ON CONFLICT ON CONSTRAINT memory_nodes_natural_key DO UPDATE SET
		     user_id             = EXCLUDED.user_id,
		     content             = EXCLUDED.content,
		     properties          = EXCLUDED.properties,
		     embedding_ref       = EXCLUDED.embedding_ref,
		     confidence          = EXCLUDED.confidence,
		     is_evergreen        = EXCLUDED.is_evergreen,
		     source_tier         = EXCLUDED.source_tier,
		     source_document_ids = EXCLUDED.source_document_ids,
		     status              = 'active',
		     cold_key            = NULL,
		     archived_at         = NULL,
		     deleted_at          = NULL,
		     created_at          = EXCLUDED.created_at,
		     updated_at          = EXCLUDED.updated_at
		 RETURNING id`,
		r.ID, r.TenantID, r.UserID, r.NodeType, r.Label, r.Content, props, r.EmbeddingRef,
		r.Confidence, r.IsEvergreen, string(sourceTier), docs,
		createdAt, now,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("storage: upsert memory node: %w", err)
	}
	return id, nil
}

// GetMemoryNode returns a Warm-tier record scoped to the tenant.
func (db *DB) GetMemoryNode(ctx context.Context, tenantID string, id uuid.UUID) (model.MemoryRecord, error) {
	r, err := scanMemoryNode(db.pool.QueryRow(ctx,
		`SELECT `+memoryNodeColumns+` FROM memory_nodes WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MemoryRecord{}, fmt.Errorf("storage: memory node %s: %w", id, ErrNotFound)
		}
		return model.MemoryRecord{}, fmt.Errorf("storage: get memory node: %w", err)
	}
	return r, nil
}

// ListArchiveCandidates returns active, non-evergreen records created before
// cutoff, oldest first. Records whose node type is in evergreenTypes are
// also excluded.
func (db *DB) ListArchiveCandidates(ctx context.Context, tenantID string, cutoff time.Time, evergreenTypes []string, limit int) ([]model.MemoryRecord, error) {
	if evergreenTypes == nil {
		evergreenTypes = []string{}
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+memoryNodeColumns+`
		 FROM memory_nodes
		 WHERE tenant_id = $1 AND status = 'active' AND is_evergreen = false
		   AND created_at < $2 AND NOT (node_type = ANY($3))
		 ORDER BY created_at
		 LIMIT $4`,
		tenantID, cutoff, evergreenTypes, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list archive candidates: %w", err)
	}
	return collectMemoryNodes(rows)
}

// MarkArchived claims an active record for archival. Returns false if the
// record is no longer active (already archived, deleted, or gone) or has
// since become evergreen.
func (db *DB) MarkArchived(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE memory_nodes SET status = 'archived', archived_at = $3, updated_at = $3
		 WHERE id = $1 AND tenant_id = $2 AND status = 'active' AND is_evergreen = false`,
		id, tenantID, at,
	)
	if err != nil {
		return false, fmt.Errorf("storage: mark archived: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetColdKey records where an archived record's Cold-tier copy lives.
func (db *DB) SetColdKey(ctx context.Context, tenantID string, id uuid.UUID, key string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE memory_nodes SET cold_key = $3 WHERE id = $1 AND tenant_id = $2 AND status = 'archived'`,
		id, tenantID, key,
	)
	if err != nil {
		return fmt.Errorf("storage: set cold key: %w", err)
	}
	return nil
}

// RestoreArchived flips an archived record back to active. When cold is
// non-nil its content replaces the Warm content and its properties are
// merged over the Warm properties. Returns false if the record was not
// archived (deleted records are never restored).
func (db *DB) RestoreArchived(ctx context.Context, tenantID string, id uuid.UUID, cold *model.MemoryRecord, at time.Time) (bool, error) {
	var (
		sql  string
		args []any
	)
	if cold != nil {
		props := cold.Properties
		if props == nil {
			props = map[string]any{}
		}
		sql = `UPDATE memory_nodes
		       SET status = 'active', archived_at = NULL, updated_at = $3,
		           content = $4, properties = properties || $5
		       WHERE id = $1 AND tenant_id = $2 AND status = 'archived'`
		args = []any{id, tenantID, at, cold.Content, props}
	} else {
		sql = `UPDATE memory_nodes
		       SET status = 'active', archived_at = NULL, updated_at = $3
		       WHERE id = $1 AND tenant_id = $2 AND status = 'archived'`
		args = []any{id, tenantID, at}
	}
	tag, err := db.pool.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("storage: restore archived: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DuplicateGroup is a set of active records sharing a case-insensitive
// label. IDs are ordered so that IDs[0] is the record to keep: highest
// confidence, then oldest.
type DuplicateGroup struct {
	Label string
	IDs   []uuid.UUID
}

// ListDuplicateGroups returns up to limit groups of active records with
// more than one member.
func (db *DB) ListDuplicateGroups(ctx context.Context, tenantID string, limit int) ([]DuplicateGroup, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT lower(label), array_agg(id ORDER BY confidence DESC, created_at ASC, id ASC)
		 FROM memory_nodes
		 WHERE tenant_id = $1 AND status = 'active'
		 GROUP BY lower(label)
		 HAVING count(*) > 1
		 ORDER BY lower(label)
		 LIMIT $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list duplicate groups: %w", err)
	}
	defer rows.Close()

	var groups []DuplicateGroup
	for rows.Next() {
		var g DuplicateGroup
		if err := rows.Scan(&g.Label, &g.IDs); err != nil {
			return nil, fmt.Errorf("storage: scan duplicate group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// MergeResult reports the effect of merging one duplicate group.
type MergeResult struct {
	Merged         int64
	EdgesRepointed int64
	// EmbeddingRefs are the embedding references of the merged-away records.
	EmbeddingRefs []string
}

// MergeDuplicates folds mergeIDs into keepID in one transaction: source
// documents are unioned onto the kept record, edges are repointed, and the
// merged records are marked deleted. Either all of that happens or none.
func (db *DB) MergeDuplicates(ctx context.Context, tenantID string, keepID uuid.UUID, mergeIDs []uuid.UUID, at time.Time) (MergeResult, error) {
	var res MergeResult
	err := db.inTx(ctx, "merge", func(tx pgx.Tx) error {
		res = MergeResult{}

		// Lock the group in ID order so concurrent merges cannot deadlock
		// on the same rows, and drop members no longer active.
		all := append([]uuid.UUID{keepID}, mergeIDs...)
		rows, err := tx.Query(ctx,
			`SELECT id, embedding_ref FROM memory_nodes
			 WHERE tenant_id = $1 AND id = ANY($2) AND status = 'active'
			 ORDER BY id FOR UPDATE`,
			tenantID, all,
		)
		if err != nil {
			return fmt.Errorf("storage: lock merge group: %w", err)
		}
		live := make(map[uuid.UUID]*string, len(all))
		for rows.Next() {
			var id uuid.UUID
			var ref *string
			if err := rows.Scan(&id, &ref); err != nil {
				rows.Close()
				return fmt.Errorf("storage: scan merge group: %w", err)
			}
			live[id] = ref
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("storage: lock merge group: %w", err)
		}
		if _, ok := live[keepID]; !ok {
			return fmt.Errorf("storage: merge keep node %s: %w", keepID, ErrNotFound)
		}
		var merging []uuid.UUID
		for _, id := range mergeIDs {
			if ref, ok := live[id]; ok {
				merging = append(merging, id)
				if ref != nil {
					res.EmbeddingRefs = append(res.EmbeddingRefs, *ref)
				}
			}
		}
		if len(merging) == 0 {
			return nil
		}

		if _, err := tx.Exec(ctx,
			`UPDATE memory_nodes SET
			     source_document_ids = ARRAY(
			         SELECT DISTINCT d FROM memory_nodes n, unnest(n.source_document_ids) AS d
			         WHERE n.id = ANY($2) ORDER BY d),
			     updated_at = $3
			 WHERE id = $1`,
			keepID, append([]uuid.UUID{keepID}, merging...), at,
		); err != nil {
			return fmt.Errorf("storage: union source documents: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE memory_edges SET source_id = $1 WHERE tenant_id = $2 AND source_id = ANY($3)`,
			keepID, tenantID, merging)
		if err != nil {
			return fmt.Errorf("storage: repoint edge sources: %w", err)
		}
		res.EdgesRepointed += tag.RowsAffected()
		tag, err = tx.Exec(ctx,
			`UPDATE memory_edges SET target_id = $1 WHERE tenant_id = $2 AND target_id = ANY($3)`,
			keepID, tenantID, merging)
		if err != nil {
			return fmt.Errorf("storage: repoint edge targets: %w", err)
		}
		res.EdgesRepointed += tag.RowsAffected()

		// Edges between the kept record and a merged one collapse into self-loops.
		if _, err := tx.Exec(ctx,
			`DELETE FROM memory_edges WHERE tenant_id = $1 AND source_id = $2 AND target_id = $2`,
			tenantID, keepID); err != nil {
			return fmt.Errorf("storage: drop self-loop edges: %w", err)
		}

		tag, err = tx.Exec(ctx,
			`UPDATE memory_nodes SET status = 'deleted', deleted_at = $2, updated_at = $2
			 WHERE id = ANY($1) AND status = 'active'`,
			merging, at)
		if err != nil {
			return fmt.Errorf("storage: mark merged deleted: %w", err)
		}
		res.Merged = tag.RowsAffected()

		return nil
	})
	return res, err
}

// CreateMemoryEdge inserts an edge between two Warm-tier records.
func (db *DB) CreateMemoryEdge(ctx context.Context, e model.MemoryEdge) (model.MemoryEdge, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO memory_edges (id, tenant_id, source_id, target_id, relation, weight, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.TenantID, e.SourceID, e.TargetID, e.Relation, e.Weight, e.CreatedAt,
	)
	if err != nil {
		return model.MemoryEdge{}, fmt.Errorf("storage: create memory edge: %w", err)
	}
	return e, nil
}

// ListEdgesForNode returns edges touching the node in either direction.
func (db *DB) ListEdgesForNode(ctx context.Context, tenantID string, nodeID uuid.UUID) ([]model.MemoryEdge, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, tenant_id, source_id, target_id, relation, weight, created_at
		 FROM memory_edges
		 WHERE tenant_id = $1 AND (source_id = $2 OR target_id = $2)
		 ORDER BY created_at`,
		tenantID, nodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list edges: %w", err)
	}
	defer rows.Close()

	var edges []model.MemoryEdge
	for rows.Next() {
		var e model.MemoryEdge
		if err := rows.Scan(&e.ID, &e.TenantID, &e.SourceID, &e.TargetID, &e.Relation, &e.Weight, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// ErasedNode identifies a record scrubbed by a user-scoped erasure.
type ErasedNode struct {
	ID           uuid.UUID
	ColdKey      *string
	EmbeddingRef *string
}

// EraseUserNodes scrubs every record owned by userID (by user_id column or
// properties.userId), blanking content and properties and marking it
// deleted. The user_id column is filled from the property match so a
// repeated erasure still finds the same rows. Already-deleted matches are
// returned too, so callers can finish downstream steps on retry.
func (db *DB) EraseUserNodes(ctx context.Context, tenantID, userID string, at time.Time) ([]ErasedNode, error) {
	rows, err := db.pool.Query(ctx,
		`WITH target AS (
		     SELECT id, cold_key, embedding_ref FROM memory_nodes
		     WHERE tenant_id = $1 AND (user_id = $2 OR properties->>'userId' = $2)
		     FOR UPDATE
		 )
		 UPDATE memory_nodes m SET
		     user_id       = $2,
		     content       = '',
		     properties    = '{}'::jsonb,
		     embedding_ref = NULL,
		     status        = 'deleted',
		     deleted_at    = COALESCE(m.deleted_at, $3),
		     updated_at    = $3
		 FROM target t
		 WHERE m.id = t.id
		 RETURNING t.id, t.cold_key, t.embedding_ref`,
		tenantID, userID, at,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: erase user nodes: %w", err)
	}
	defer rows.Close()

	var out []ErasedNode
	for rows.Next() {
		var n ErasedNode
		if err := rows.Scan(&n.ID, &n.ColdKey, &n.EmbeddingRef); err != nil {
			return nil, fmt.Errorf("storage: scan erased node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// EraseTenantNodes scrubs every record of the tenant. Returns the number
// of rows touched.
func (db *DB) EraseTenantNodes(ctx context.Context, tenantID string, at time.Time) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE memory_nodes SET
		     content       = '',
		     properties    = '{}'::jsonb,
		     embedding_ref = NULL,
		     status        = 'deleted',
		     deleted_at    = COALESCE(deleted_at, $2),
		     updated_at    = $2
		 WHERE tenant_id = $1`,
		tenantID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("storage: erase tenant nodes: %w", err)
	}
	return tag.RowsAffected(), nil
}

// NodeCounts is the Warm-tier population of a tenant by status.
type NodeCounts struct {
	Active   int64
	Archived int64
	Deleted  int64
}

// CountMemoryNodes returns the tenant's node counts by status.
func (db *DB) CountMemoryNodes(ctx context.Context, tenantID string) (NodeCounts, error) {
	var c NodeCounts
	err := db.pool.QueryRow(ctx,
		`SELECT count(*) FILTER (WHERE status = 'active'),
		        count(*) FILTER (WHERE status = 'archived'),
		        count(*) FILTER (WHERE status = 'deleted')
		 FROM memory_nodes WHERE tenant_id = $1`, tenantID,
	).Scan(&c.Active, &c.Archived, &c.Deleted)
	if err != nil {
		return NodeCounts{}, fmt.Errorf("storage: count memory nodes: %w", err)
	}
	return c, nil
}

// CountActiveUserNodes returns how many active records still reference userID.
func (db *DB) CountActiveUserNodes(ctx context.Context, tenantID, userID string) (int64, error) {
	var n int64
	err := db.pool.QueryRow(ctx,
		`SELECT count(*) FROM memory_nodes
		 WHERE tenant_id = $1 AND status = 'active'
		   AND (user_id = $2 OR properties->>'userId' = $2)`,
		tenantID, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count user nodes: %w", err)
	}
	return n, nil
}

// RecordNodeAlias makes aliasID resolve to nodeID. A later alias for the
// same id replaces the earlier one.
func (db *DB) RecordNodeAlias(ctx context.Context, tenantID string, aliasID, nodeID uuid.UUID, at time.Time) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO memory_node_aliases (tenant_id, alias_id, node_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tenant_id, alias_id) DO UPDATE SET node_id = EXCLUDED.node_id, created_at = EXCLUDED.created_at`,
		tenantID, aliasID, nodeID, at,
	)
	if err != nil {
		return fmt.Errorf("storage: record node alias: %w", err)
	}
	return nil
}

// ResolveNodeAlias returns the record id aliasID was promoted into.
func (db *DB) ResolveNodeAlias(ctx context.Context, tenantID string, aliasID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`SELECT node_id FROM memory_node_aliases WHERE tenant_id = $1 AND alias_id = $2`,
		tenantID, aliasID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("storage: node alias %s: %w", aliasID, ErrNotFound)
		}
		return uuid.Nil, fmt.Errorf("storage: resolve node alias: %w", err)
	}
	return id, nil
}
