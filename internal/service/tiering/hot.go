package tiering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/radiant-ai/radiant/internal/kv"
	"github.com/radiant-ai/radiant/internal/model"
	"github.com/radiant-ai/radiant/internal/storage"
)

// claimTTL bounds how long a crashed promoter can hold a record.
const claimTTL = 5 * time.Minute

// hotEntry is the value stored under a Hot-tier key. PromotedAt is the
// promoted marker: once set, the entry is only waiting to be evicted.
// WarmID is set with it when the record landed on an existing Warm row.
type hotEntry struct {
	Record     model.MemoryRecord `json:"record"`
	PromotedAt *time.Time         `json:"promoted_at,omitempty"`
	WarmID     *uuid.UUID         `json:"warm_id,omitempty"`
}

func hotPrefix(tenantID string) string { return "hot:" + tenantID + ":" }

func hotKey(tenantID string, id uuid.UUID) string { return hotPrefix(tenantID) + id.String() }

func claimKey(tenantID, id string) string { return "claim:promote:" + tenantID + ":" + id }

// PromoteResult reports one promotion sweep.
type PromoteResult struct {
	Promoted int `json:"promoted"`
	Errors   int `json:"errors"`
	// Evicted counts promoted entries removed from the Hot tier.
	Evicted int `json:"evicted"`
}

// Remember writes a new record into the Hot tier. With the Hot tier
// disabled the record goes straight to Warm.
func (c *Coordinator) Remember(ctx context.Context, r model.MemoryRecord) (model.MemoryRecord, error) {
	now := c.clock.Now()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.Status = model.RecordActive
	r.UpdatedAt = now
	if err := model.Validate(r); err != nil {
		return model.MemoryRecord{}, err
	}
	if err := c.store.EnsureTenant(ctx, r.TenantID); err != nil {
		return model.MemoryRecord{}, fmt.Errorf("tiering: %w", err)
	}
	cfg, err := c.TierConfig(ctx, r.TenantID)
	if err != nil {
		return model.MemoryRecord{}, err
	}
	if cfg.IsEvergreenType(r.NodeType) {
		r.IsEvergreen = true
	}

	if !cfg.HotEnabled {
		r.SourceTier = model.TierWarm
		id, err := c.store.UpsertMemoryNode(ctx, r, now)
		if err != nil {
			return model.MemoryRecord{}, fmt.Errorf("tiering: remember: %w", err)
		}
		r.ID = id
		return r, nil
	}

	r.SourceTier = model.TierHot
	data, err := json.Marshal(hotEntry{Record: r})
	if err != nil {
		return model.MemoryRecord{}, fmt.Errorf("tiering: encode hot entry: %w", err)
	}
	if err := c.hot.Set(ctx, hotKey(r.TenantID, r.ID), data, cfg.HotRetention()+c.opts.HotGrace); err != nil {
		return model.MemoryRecord{}, fmt.Errorf("tiering: remember: %w", err)
	}
	return r, nil
}

// Recall returns a record from the Hot tier, falling back to Warm. An id
// whose promotion merged into an existing Warm record resolves to that
// record.
func (c *Coordinator) Recall(ctx context.Context, tenantID string, id uuid.UUID) (model.MemoryRecord, error) {
	warmID := id
	data, err := c.hot.Get(ctx, hotKey(tenantID, id))
	switch {
	case err == nil:
		var e hotEntry
		if err := json.Unmarshal(data, &e); err == nil {
			if e.PromotedAt == nil {
				return e.Record, nil
			}
			if e.WarmID != nil {
				warmID = *e.WarmID
			}
		}
	case !errors.Is(err, kv.ErrNotFound):
		c.logger.Warn("tiering: hot read failed, falling back to warm", "tenant_id", tenantID, "node_id", id, "error", err)
	}
	r, err := c.store.GetMemoryNode(ctx, tenantID, warmID)
	if errors.Is(err, storage.ErrNotFound) {
		target, aerr := c.store.ResolveNodeAlias(ctx, tenantID, id)
		if aerr == nil {
			r, err = c.store.GetMemoryNode(ctx, tenantID, target)
		} else if !errors.Is(aerr, storage.ErrNotFound) {
			err = aerr
		}
	}
	if err != nil {
		return model.MemoryRecord{}, fmt.Errorf("tiering: recall: %w", err)
	}
	return r, nil
}

// PromoteHotToWarm copies Hot records older than the tenant's Hot
// retention into the Warm graph. Each record is claimed with a set-if-absent
// key before it is written, marked promoted afterwards, and evicted once
// marked. Running it again with no new Hot writes promotes nothing.
func (c *Coordinator) PromoteHotToWarm(ctx context.Context, tenantID string) (PromoteResult, error) {
	ctx, span := c.tracer.Start(ctx, "tiering.PromoteHotToWarm",
		trace.WithAttributes(attribute.String("radiant.tenant_id", tenantID)))
	defer span.End()

	var res PromoteResult
	cfg, err := c.TierConfig(ctx, tenantID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	if !cfg.HotEnabled || !cfg.WarmEnabled {
		return res, nil
	}

	keys, err := c.hot.ScanPrefix(ctx, hotPrefix(tenantID))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("tiering: promotion scan failed", "tenant_id", tenantID, "error", err)
		return res, fmt.Errorf("tiering: scan hot tier: %w", err)
	}

	now := c.clock.Now()
	cutoff := now.Add(-cfg.HotRetention())
	var evict []string
	for _, key := range keys {
		if res.Promoted+res.Errors >= c.opts.PromoteBatch {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		data, err := c.hot.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			res.Errors++
			c.logger.Warn("tiering: read hot entry failed", "tenant_id", tenantID, "key", key, "error", err)
			continue
		}
		var e hotEntry
		if err := json.Unmarshal(data, &e); err != nil {
			res.Errors++
			c.logger.Warn("tiering: corrupt hot entry", "tenant_id", tenantID, "key", key, "error", err)
			continue
		}
		if e.PromotedAt != nil {
			evict = append(evict, key)
			continue
		}
		if !e.Record.CreatedAt.Before(cutoff) {
			continue
		}

		promoted, err := c.promoteOne(ctx, key, e, now)
		if err != nil {
			res.Errors++
			c.logger.Warn("tiering: promote record failed", "tenant_id", tenantID, "node_id", e.Record.ID, "error", err)
			continue
		}
		if promoted {
			res.Promoted++
			evict = append(evict, key)
		}
	}

	if len(evict) > 0 {
		if err := c.hot.Delete(ctx, evict...); err != nil {
			c.logger.Warn("tiering: evict promoted entries failed", "tenant_id", tenantID, "count", len(evict), "error", err)
		} else {
			res.Evicted = len(evict)
		}
	}

	c.metrics.promotions.Add(ctx, int64(res.Promoted))
	c.metrics.itemErrors.Add(ctx, int64(res.Errors))
	c.recordFlow(ctx, tenantID, model.FlowDelta{Promotions: int64(res.Promoted)})
	if res.Promoted > 0 || res.Errors > 0 {
		c.logger.Info("tiering: promotion sweep", "tenant_id", tenantID,
			"promoted", res.Promoted, "errors", res.Errors, "evicted", res.Evicted)
	}
	return res, nil
}

// promoteOne claims, upserts, and marks a single entry. Returns false if
// another sweep holds the claim.
func (c *Coordinator) promoteOne(ctx context.Context, key string, e hotEntry, now time.Time) (bool, error) {
	r := e.Record
	id := strings.TrimPrefix(key, hotPrefix(r.TenantID))
	claim := claimKey(r.TenantID, id)
	won, err := c.hot.SetNX(ctx, claim, []byte(now.Format(time.RFC3339Nano)), claimTTL)
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}
	if !won {
		return false, nil
	}
	defer func() {
		if err := c.hot.Delete(ctx, claim); err != nil {
			c.logger.Debug("tiering: release claim failed", "key", claim, "error", err)
		}
	}()

	// Re-read under the claim: a sweep that finished between our read and
	// the claim has already marked or evicted the entry.
	data, err := c.hot.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reread: %w", err)
	}
	var current hotEntry
	if err := json.Unmarshal(data, &current); err != nil {
		return false, fmt.Errorf("reread: %w", err)
	}
	if current.PromotedAt != nil {
		return false, nil
	}

	r.SourceTier = model.TierHot
	warmID, err := c.store.UpsertMemoryNode(ctx, r, now)
	if err != nil {
		return false, fmt.Errorf("upsert warm: %w", err)
	}
	if warmID != r.ID {
		// The natural key matched an existing row, whose id wins.
		if err := c.store.RecordNodeAlias(ctx, r.TenantID, r.ID, warmID, now); err != nil {
			return false, fmt.Errorf("record alias: %w", err)
		}
		e.WarmID = &warmID
		c.logger.Info("tiering: promoted into existing warm record", "tenant_id", r.TenantID,
			"node_id", r.ID, "warm_id", warmID)
	}

	e.PromotedAt = &now
	data, err = json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("encode promoted marker: %w", err)
	}
	// The marker outlives the claim so a failed eviction is retried rather
	// than the record being promoted twice.
	if err := c.hot.Set(ctx, key, data, c.opts.HotGrace); err != nil {
		return false, fmt.Errorf("mark promoted: %w", err)
	}
	return true, nil
}
