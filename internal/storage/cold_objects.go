package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordColdObject notes that key holds (or is about to hold) an archived
// copy of nodeID owned by userID. Written before the object itself, so any
// object that exists has a row. Rewriting the same key updates the owner.
func (db *DB) RecordColdObject(ctx context.Context, tenantID string, nodeID uuid.UUID, userID *string, key string, at time.Time) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO cold_objects (object_key, tenant_id, node_id, user_id, written_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (object_key) DO UPDATE SET
		     node_id    = EXCLUDED.node_id,
		     user_id    = EXCLUDED.user_id,
		     written_at = EXCLUDED.written_at`,
		key, tenantID, nodeID, userID, at,
	)
	if err != nil {
		return fmt.Errorf("storage: record cold object: %w", err)
	}
	return nil
}

// ColdObjectKeys returns every recorded archive object of the tenant that
// was written for userID or belongs to one of nodeIDs, oldest first.
func (db *DB) ColdObjectKeys(ctx context.Context, tenantID, userID string, nodeIDs []uuid.UUID) ([]string, error) {
	if nodeIDs == nil {
		nodeIDs = []uuid.UUID{}
	}
	rows, err := db.pool.Query(ctx,
		`SELECT object_key FROM cold_objects
		 WHERE tenant_id = $1 AND (user_id = $2 OR node_id = ANY($3))
		 ORDER BY written_at, object_key`,
		tenantID, userID, nodeIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list cold objects: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("storage: scan cold object: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ForgetColdObjects drops the rows of deleted archive objects.
func (db *DB) ForgetColdObjects(ctx context.Context, tenantID string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := db.pool.Exec(ctx,
		`DELETE FROM cold_objects WHERE tenant_id = $1 AND object_key = ANY($2)`, tenantID, keys)
	if err != nil {
		return fmt.Errorf("storage: forget cold objects: %w", err)
	}
	return nil
}
