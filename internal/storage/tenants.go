package storage

import (
	"context"
	"fmt"
)

// EnsureTenant registers tenantID so periodic jobs pick it up. Idempotent.
func (db *DB) EnsureTenant(ctx context.Context, tenantID string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO tenants (tenant_id) VALUES ($1) ON CONFLICT (tenant_id) DO NOTHING`, tenantID)
	if err != nil {
		return fmt.Errorf("storage: ensure tenant: %w", err)
	}
	return nil
}

// ListTenants returns every registered tenant, ordered by ID.
func (db *DB) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx, `SELECT tenant_id FROM tenants ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("storage: list tenants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage: scan tenant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
