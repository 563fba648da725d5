package tiering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/radiant-ai/radiant/internal/kv"
	"github.com/radiant-ai/radiant/internal/model"
)

// CompactResult reports one pass over the cold purge queue.
type CompactResult struct {
	Purged    int   `json:"purged"`
	Failed    int   `json:"failed"`
	Finalized int64 `json:"finalized"`
}

// RequestErasure records a new GDPR erasure request. Processing is a
// separate step so the request survives a crash before it runs.
func (c *Coordinator) RequestErasure(ctx context.Context, in model.ErasureRequestInput) (model.ErasureRequest, error) {
	if err := model.Validate(in); err != nil {
		return model.ErasureRequest{}, err
	}
	if in.Scope == model.ErasureScopeTenant {
		in.UserID = nil
	}
	req, err := c.store.CreateErasureRequest(ctx, in, c.clock.Now())
	if err != nil {
		return model.ErasureRequest{}, fmt.Errorf("tiering: %w", err)
	}
	c.logger.Info("tiering: erasure requested", "request_id", req.ID, "tenant_id", req.TenantID, "scope", req.Scope)
	return req, nil
}

// ErasureRequest loads a request.
func (c *Coordinator) ErasureRequest(ctx context.Context, id uuid.UUID) (model.ErasureRequest, error) {
	return c.store.GetErasureRequest(ctx, id)
}

// ProcessGdprErasure runs an erasure request through Hot, Warm and Cold in
// that order, recording each tier's status on the request. Any failure
// marks the request (and the failing tier) failed and is returned. A
// failed request can be processed again; every step is repeatable.
func (c *Coordinator) ProcessGdprErasure(ctx context.Context, requestID uuid.UUID) error {
	ctx, span := c.tracer.Start(ctx, "tiering.ProcessGdprErasure",
		trace.WithAttributes(attribute.String("radiant.request_id", requestID.String())))
	defer span.End()

	req, err := c.store.GetErasureRequest(ctx, requestID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("tiering: load erasure request: %w", err)
	}
	if req.Status == model.ErasureCompleted {
		return nil
	}
	if req.Scope == model.ErasureScopeUser && (req.UserID == nil || *req.UserID == "") {
		err := errors.New("user-scoped erasure without user_id")
		c.failErasure(ctx, req.ID, "", err)
		return fmt.Errorf("tiering: erasure %s: %w", req.ID, err)
	}
	if err := c.store.SetErasureStatus(ctx, req.ID, model.ErasureProcessing); err != nil {
		return fmt.Errorf("tiering: erasure %s: %w", req.ID, err)
	}

	steps := []struct {
		tier model.Tier
		done model.ErasureStatus
		run  func(context.Context, model.ErasureRequest) error
	}{
		{model.TierHot, req.HotStatus, c.eraseHot},
		{model.TierWarm, req.WarmStatus, c.eraseWarm},
		{model.TierCold, req.ColdStatus, c.eraseCold},
	}
	for _, s := range steps {
		if s.done == model.ErasureCompleted {
			continue
		}
		if err := s.run(ctx, req); err != nil {
			span.SetStatus(codes.Error, err.Error())
			c.failErasure(ctx, req.ID, s.tier, err)
			return fmt.Errorf("tiering: erasure %s %s tier: %w", req.ID, s.tier, err)
		}
		if err := c.store.SetErasureTierStatus(ctx, req.ID, s.tier, model.ErasureCompleted); err != nil {
			c.failErasure(ctx, req.ID, "", err)
			return fmt.Errorf("tiering: erasure %s: %w", req.ID, err)
		}
	}

	if err := c.store.CompleteErasureRequest(ctx, req.ID, c.clock.Now()); err != nil {
		c.failErasure(ctx, req.ID, "", err)
		return fmt.Errorf("tiering: erasure %s: %w", req.ID, err)
	}
	c.metrics.erasures.Add(ctx, 1)
	c.logger.Info("tiering: erasure completed", "request_id", req.ID, "tenant_id", req.TenantID, "scope", req.Scope)
	return nil
}

// ProcessOpenErasures processes pending and previously failed requests,
// oldest first. Failures are logged and counted; the sweep continues.
func (c *Coordinator) ProcessOpenErasures(ctx context.Context, limit int) (completed, failed int, err error) {
	reqs, err := c.store.ListOpenErasureRequests(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("tiering: list open erasures: %w", err)
	}
	for _, r := range reqs {
		if err := c.ProcessGdprErasure(ctx, r.ID); err != nil {
			failed++
			c.logger.Error("tiering: erasure failed", "request_id", r.ID, "tenant_id", r.TenantID, "error", err)
			continue
		}
		completed++
	}
	return completed, failed, nil
}

// failErasure persists the failure. The original error is what the caller
// sees, so bookkeeping errors here are only logged.
func (c *Coordinator) failErasure(ctx context.Context, id uuid.UUID, tier model.Tier, cause error) {
	if tier != "" {
		if err := c.store.SetErasureTierStatus(ctx, id, tier, model.ErasureFailed); err != nil {
			c.logger.Error("tiering: record erasure tier failure", "request_id", id, "tier", tier, "error", err)
		}
	}
	if err := c.store.FailErasureRequest(ctx, id, cause.Error()); err != nil {
		c.logger.Error("tiering: record erasure failure", "request_id", id, "error", err)
	}
}

func (c *Coordinator) eraseHot(ctx context.Context, req model.ErasureRequest) error {
	keys, err := c.hot.ScanPrefix(ctx, hotPrefix(req.TenantID))
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	var doomed []string
	for _, key := range keys {
		if req.Scope == model.ErasureScopeTenant {
			id := strings.TrimPrefix(key, hotPrefix(req.TenantID))
			doomed = append(doomed, key, claimKey(req.TenantID, id))
			continue
		}
		data, err := c.hot.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
		var e hotEntry
		if err := json.Unmarshal(data, &e); err != nil {
			// Unreadable entries cannot be proven not to hold the user's data.
			doomed = append(doomed, key)
			continue
		}
		if e.Record.OwnedBy(*req.UserID) {
			doomed = append(doomed, key)
		}
	}
	if len(doomed) == 0 {
		return nil
	}
	if err := c.hot.Delete(ctx, doomed...); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

func (c *Coordinator) eraseWarm(ctx context.Context, req model.ErasureRequest) error {
	now := c.clock.Now()
	if req.Scope == model.ErasureScopeTenant {
		n, err := c.store.EraseTenantNodes(ctx, req.TenantID, now)
		if err != nil {
			return err
		}
		c.logger.Info("tiering: tenant warm records erased", "request_id", req.ID, "tenant_id", req.TenantID, "count", n)
		if c.opts.Vectors != nil {
			if err := c.opts.Vectors.DeleteByTenant(ctx, req.TenantID); err != nil {
				return fmt.Errorf("purge vectors: %w", err)
			}
		}
		return nil
	}

	erased, err := c.store.EraseUserNodes(ctx, req.TenantID, *req.UserID, now)
	if err != nil {
		return err
	}
	c.logger.Info("tiering: user warm records erased", "request_id", req.ID, "tenant_id", req.TenantID, "count", len(erased))
	if c.opts.Vectors != nil {
		var refs []string
		for _, n := range erased {
			if n.EmbeddingRef != nil {
				refs = append(refs, *n.EmbeddingRef)
			}
		}
		if len(refs) > 0 {
			if err := c.opts.Vectors.DeleteRefs(ctx, req.TenantID, refs); err != nil {
				return fmt.Errorf("purge vectors: %w", err)
			}
		}
		if err := c.opts.Vectors.DeleteByUser(ctx, req.TenantID, *req.UserID); err != nil {
			return fmt.Errorf("purge vectors: %w", err)
		}
	}
	return nil
}

// eraseCold queues archive objects for physical deletion by
// CompactColdErasures. Tenant scope queues the whole tenant prefix. User
// scope queues every object recorded in cold_objects for the user or for
// one of the erased records, the current cold key of each erased record,
// and any listed object named after one. History rows cover copies left by
// earlier archivals and copies written while another user owned the record.
func (c *Coordinator) eraseCold(ctx context.Context, req model.ErasureRequest) error {
	now := c.clock.Now()
	prefix := model.TenantPrefix(req.TenantID)
	if req.Scope == model.ErasureScopeTenant {
		return c.store.EnqueueColdPurges(ctx, []model.ColdPurgeEntry{{
			RequestID: req.ID, TenantID: req.TenantID, Prefix: &prefix, CreatedAt: now,
		}})
	}

	// Already-deleted rows come back too, so a retry sees the same set.
	erased, err := c.store.EraseUserNodes(ctx, req.TenantID, *req.UserID, now)
	if err != nil {
		return err
	}
	keys := make(map[string]struct{})
	ids := make([]uuid.UUID, 0, len(erased))
	for _, n := range erased {
		ids = append(ids, n.ID)
		if n.ColdKey != nil {
			keys[*n.ColdKey] = struct{}{}
		}
	}
	recorded, err := c.store.ColdObjectKeys(ctx, req.TenantID, *req.UserID, ids)
	if err != nil {
		return fmt.Errorf("archive history: %w", err)
	}
	for _, k := range recorded {
		keys[k] = struct{}{}
	}
	if len(erased) > 0 {
		listing, err := c.cold.ListByPrefix(ctx, prefix)
		if err != nil {
			return fmt.Errorf("list archive: %w", err)
		}
		for _, n := range erased {
			for _, k := range findColdKeys(listing, n.ID) {
				keys[k] = struct{}{}
			}
		}
	}

	entries := make([]model.ColdPurgeEntry, 0, len(keys))
	for k := range keys {
		entries = append(entries, model.ColdPurgeEntry{
			RequestID: req.ID, TenantID: req.TenantID, ObjectKey: &k, CreatedAt: now,
		})
	}
	if len(entries) > 0 {
		c.logger.Info("tiering: cold objects queued for purge", "request_id", req.ID, "tenant_id", req.TenantID, "count", len(entries))
	}
	return c.store.EnqueueColdPurges(ctx, entries)
}

// CompactColdErasures deletes queued archive objects. Entries that fail
// are retried on later passes until they reach the attempt limit. Requests
// whose entries are all purged get their cold_purged_at stamp.
func (c *Coordinator) CompactColdErasures(ctx context.Context, limit int) (CompactResult, error) {
	ctx, span := c.tracer.Start(ctx, "tiering.CompactColdErasures")
	defer span.End()

	var res CompactResult
	entries, err := c.store.ListPendingColdPurges(ctx, c.opts.PurgeMaxAttempts, limit)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return res, fmt.Errorf("tiering: list cold purges: %w", err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := c.purgeEntry(ctx, e); err != nil {
			res.Failed++
			c.logger.Warn("tiering: cold purge failed", "tenant_id", e.TenantID, "entry_id", e.ID,
				"attempts", e.Attempts+1, "error", err)
			if err := c.store.MarkColdPurgeFailed(ctx, e.ID, err.Error()); err != nil {
				c.logger.Error("tiering: record cold purge failure", "entry_id", e.ID, "error", err)
			}
			continue
		}
		if err := c.store.MarkColdPurged(ctx, e.ID, c.clock.Now()); err != nil {
			res.Failed++
			c.logger.Error("tiering: mark cold purged", "entry_id", e.ID, "error", err)
			continue
		}
		res.Purged++
	}

	n, err := c.store.FinalizeColdPurges(ctx, c.clock.Now())
	if err != nil {
		return res, fmt.Errorf("tiering: finalize cold purges: %w", err)
	}
	res.Finalized = n
	if res.Purged > 0 || res.Failed > 0 {
		c.logger.Info("tiering: cold compaction", "purged", res.Purged, "failed", res.Failed, "finalized", res.Finalized)
	}
	return res, nil
}

func (c *Coordinator) purgeEntry(ctx context.Context, e model.ColdPurgeEntry) error {
	if e.ObjectKey != nil {
		if err := c.cold.Delete(ctx, *e.ObjectKey); err != nil {
			return err
		}
		return c.store.ForgetColdObjects(ctx, e.TenantID, []string{*e.ObjectKey})
	}
	if e.Prefix == nil {
		return errors.New("purge entry has neither key nor prefix")
	}
	keys, err := c.cold.ListByPrefix(ctx, *e.Prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := c.cold.Delete(ctx, k); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return c.store.ForgetColdObjects(ctx, e.TenantID, keys)
}
