package tiering

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DedupResult reports one deduplication pass.
type DedupResult struct {
	Groups         int   `json:"groups"`
	Merged         int64 `json:"merged"`
	EdgesRepointed int64 `json:"edges_repointed"`
	Errors         int   `json:"errors"`
}

// RunDeduplication merges active Warm records that share a label
// (case-insensitive). In each group the highest-confidence record is kept;
// the others are folded into it. Groups are merged in separate
// transactions, so a failing group is counted and the rest proceed.
func (c *Coordinator) RunDeduplication(ctx context.Context, tenantID string) (DedupResult, error) {
	ctx, span := c.tracer.Start(ctx, "tiering.RunDeduplication",
		trace.WithAttributes(attribute.String("radiant.tenant_id", tenantID)))
	defer span.End()

	var res DedupResult
	groups, err := c.store.ListDuplicateGroups(ctx, tenantID, c.opts.DedupGroupLimit)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("tiering: duplicate group query failed", "tenant_id", tenantID, "error", err)
		return res, fmt.Errorf("tiering: list duplicate groups: %w", err)
	}

	now := c.clock.Now()
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if len(g.IDs) < 2 {
			continue
		}
		res.Groups++
		m, err := c.store.MergeDuplicates(ctx, tenantID, g.IDs[0], g.IDs[1:], now)
		if err != nil {
			res.Errors++
			c.logger.Warn("tiering: merge duplicate group failed", "tenant_id", tenantID, "label", g.Label, "error", err)
			continue
		}
		res.Merged += m.Merged
		res.EdgesRepointed += m.EdgesRepointed

		if c.opts.Vectors != nil && len(m.EmbeddingRefs) > 0 {
			if err := c.opts.Vectors.DeleteRefs(ctx, tenantID, m.EmbeddingRefs); err != nil {
				c.logger.Warn("tiering: drop merged embeddings failed", "tenant_id", tenantID, "label", g.Label, "error", err)
			}
		}
	}

	c.metrics.itemErrors.Add(ctx, int64(res.Errors))
	if res.Merged > 0 || res.Errors > 0 {
		c.logger.Info("tiering: deduplication", "tenant_id", tenantID,
			"groups", res.Groups, "merged", res.Merged, "edges_repointed", res.EdgesRepointed, "errors", res.Errors)
	}
	return res, nil
}
