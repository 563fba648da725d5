package tiering

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/radiant-ai/radiant/internal/archive"
	"github.com/radiant-ai/radiant/internal/model"
	"github.com/radiant-ai/radiant/internal/storage"
)

// ArchiveResult reports one archival sweep.
type ArchiveResult struct {
	Archived int `json:"archived"`
	Errors   int `json:"errors"`
	// Skipped counts candidates that changed state between selection and
	// the status flip.
	Skipped int `json:"skipped"`
	// ColdWriteFailures counts records flipped to archived whose Cold copy
	// could not be written. They stay archived; Retrieve restores them
	// without content.
	ColdWriteFailures int `json:"cold_write_failures"`
}

// RetrieveResult reports one Cold-to-Warm retrieval.
type RetrieveResult struct {
	// Retrieved counts records restored with their archived content.
	Retrieved int `json:"retrieved"`
	// Partial counts records restored to active without content because the
	// Cold object was missing or unreadable. Each is also counted in Errors.
	Partial int `json:"partial"`
	Errors  int `json:"errors"`
	// Skipped counts ids that were not archived (active or deleted).
	Skipped int `json:"skipped"`
}

// ArchiveWarmToCold archives active, non-evergreen Warm records older than
// the tenant's Warm retention. The status flip happens first and is never
// undone; the Cold write afterwards is best effort.
func (c *Coordinator) ArchiveWarmToCold(ctx context.Context, tenantID string) (ArchiveResult, error) {
	ctx, span := c.tracer.Start(ctx, "tiering.ArchiveWarmToCold",
		trace.WithAttributes(attribute.String("radiant.tenant_id", tenantID)))
	defer span.End()

	var res ArchiveResult
	cfg, err := c.TierConfig(ctx, tenantID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	if !cfg.WarmEnabled || !cfg.ColdEnabled {
		return res, nil
	}

	now := c.clock.Now()
	candidates, err := c.store.ListArchiveCandidates(ctx, tenantID, now.Add(-cfg.WarmRetention()), cfg.EvergreenNodeTypes, c.opts.ArchiveBatch)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("tiering: archive candidate query failed", "tenant_id", tenantID, "error", err)
		return res, fmt.Errorf("tiering: list archive candidates: %w", err)
	}

	for _, r := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		flipped, err := c.store.MarkArchived(ctx, tenantID, r.ID, now)
		if err != nil {
			res.Errors++
			c.logger.Warn("tiering: mark archived failed", "tenant_id", tenantID, "node_id", r.ID, "error", err)
			continue
		}
		if !flipped {
			res.Skipped++
			continue
		}
		res.Archived++

		if err := c.writeCold(ctx, cfg, r, now); err != nil {
			res.ColdWriteFailures++
			c.logger.Warn("tiering: cold write failed, record stays archived", "tenant_id", tenantID, "node_id", r.ID, "error", err)
		}
	}

	c.metrics.archivals.Add(ctx, int64(res.Archived))
	c.metrics.itemErrors.Add(ctx, int64(res.Errors))
	c.recordFlow(ctx, tenantID, model.FlowDelta{Archivals: int64(res.Archived)})
	if res.Archived > 0 || res.Errors > 0 {
		c.logger.Info("tiering: archival sweep", "tenant_id", tenantID,
			"archived", res.Archived, "errors", res.Errors,
			"skipped", res.Skipped, "cold_write_failures", res.ColdWriteFailures)
	}
	return res, nil
}

func (c *Coordinator) writeCold(ctx context.Context, cfg model.TierConfig, r model.MemoryRecord, now time.Time) error {
	r.Status = model.RecordArchived
	r.ArchivedAt = &now
	data, err := archive.Encode(model.ColdRecord{Record: r, ArchivedAt: now})
	if err != nil {
		return err
	}
	key := cfg.ColdPartitionScheme.ColdKey(r.TenantID, r.ID, now)
	owner := r.Owner()
	meta := map[string]string{
		"tenant_id": r.TenantID,
		"node_id":   r.ID.String(),
		"node_type": r.NodeType,
	}
	if owner != nil {
		meta["user_id"] = *owner
	}
	// The object is recorded before it exists so erasure can always find it.
	if err := c.store.RecordColdObject(ctx, r.TenantID, r.ID, owner, key, now); err != nil {
		return err
	}
	if err := c.cold.Put(ctx, key, data, meta); err != nil {
		return err
	}
	if err := c.store.SetColdKey(ctx, r.TenantID, r.ID, key); err != nil {
		return err
	}
	if r.ColdKey != nil && *r.ColdKey != key {
		c.dropSuperseded(ctx, r.TenantID, r.ID, *r.ColdKey)
	}
	return nil
}

// dropSuperseded removes the object an earlier archival of the same record
// wrote under another partition. A failure leaves it recorded in
// cold_objects, where erasure still finds it.
func (c *Coordinator) dropSuperseded(ctx context.Context, tenantID string, id uuid.UUID, key string) {
	if err := c.cold.Delete(ctx, key); err != nil {
		c.logger.Warn("tiering: superseded cold object not deleted", "tenant_id", tenantID, "node_id", id, "key", key, "error", err)
		return
	}
	if err := c.store.ForgetColdObjects(ctx, tenantID, []string{key}); err != nil {
		c.logger.Warn("tiering: forget superseded cold object", "tenant_id", tenantID, "node_id", id, "key", key, "error", err)
	}
}

// RetrieveColdToWarm restores archived records to active. Content comes
// from the Cold object when it can be found and decoded; otherwise the
// record is still reactivated but counted as Partial.
func (c *Coordinator) RetrieveColdToWarm(ctx context.Context, tenantID string, ids []uuid.UUID) (RetrieveResult, error) {
	ctx, span := c.tracer.Start(ctx, "tiering.RetrieveColdToWarm",
		trace.WithAttributes(
			attribute.String("radiant.tenant_id", tenantID),
			attribute.Int("radiant.ids", len(ids)),
		))
	defer span.End()

	var (
		res     RetrieveResult
		listing []string
		listed  bool
		latency time.Duration
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r, err := c.store.GetMemoryNode(ctx, tenantID, id)
		if err != nil {
			res.Errors++
			if !errors.Is(err, storage.ErrNotFound) {
				c.logger.Warn("tiering: load node for retrieval failed", "tenant_id", tenantID, "node_id", id, "error", err)
			}
			continue
		}
		if r.Status != model.RecordArchived {
			res.Skipped++
			continue
		}

		start := time.Now()
		key := ""
		if r.ColdKey != nil {
			key = *r.ColdKey
		} else {
			if !listed {
				listing, err = c.cold.ListByPrefix(ctx, model.TenantPrefix(tenantID))
				if err != nil {
					c.logger.Warn("tiering: cold listing failed", "tenant_id", tenantID, "error", err)
				}
				listed = true
			}
			// Keys sort by partition date, so the last match is the newest copy.
			if found := findColdKeys(listing, id); len(found) > 0 {
				key = found[len(found)-1]
			}
		}

		var restored *model.MemoryRecord
		if key != "" {
			cold, err := c.readCold(ctx, key)
			if err != nil {
				c.logger.Warn("tiering: cold read failed, restoring without content", "tenant_id", tenantID, "node_id", id, "key", key, "error", err)
			} else {
				restored = &cold.Record
			}
		}
		latency += time.Since(start)

		ok, err := c.store.RestoreArchived(ctx, tenantID, id, restored, c.clock.Now())
		if err != nil {
			res.Errors++
			c.logger.Warn("tiering: restore failed", "tenant_id", tenantID, "node_id", id, "error", err)
			continue
		}
		if !ok {
			res.Skipped++
			continue
		}
		if restored != nil {
			res.Retrieved++
		} else {
			res.Partial++
			res.Errors++
		}
	}

	c.metrics.retrievals.Add(ctx, int64(res.Retrieved))
	c.metrics.itemErrors.Add(ctx, int64(res.Errors))
	c.recordFlow(ctx, tenantID, model.FlowDelta{
		Retrievals:       int64(res.Retrieved),
		RetrievalMisses:  int64(res.Partial),
		RetrievalLatency: latency,
	})
	if res.Retrieved > 0 || res.Errors > 0 {
		c.logger.Info("tiering: cold retrieval", "tenant_id", tenantID,
			"retrieved", res.Retrieved, "partial", res.Partial, "errors", res.Errors, "skipped", res.Skipped)
	}
	return res, nil
}

func (c *Coordinator) readCold(ctx context.Context, key string) (model.ColdRecord, error) {
	data, err := c.cold.Get(ctx, key)
	if err != nil {
		return model.ColdRecord{}, err
	}
	return archive.Decode(data)
}

// findColdKeys returns every listed object holding a copy of id, sorted.
func findColdKeys(keys []string, id uuid.UUID) []string {
	suffix := "/" + id.String() + ".json.gz"
	var found []string
	for _, k := range keys {
		if strings.HasSuffix(k, suffix) {
			found = append(found, k)
		}
	}
	sort.Strings(found)
	return found
}
