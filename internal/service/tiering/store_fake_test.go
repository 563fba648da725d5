package tiering_test

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/radiant-ai/radiant/internal/model"
	"github.com/radiant-ai/radiant/internal/storage"
)

// fakeStore is an in-memory tiering.Store with the same conditional-update
// semantics as the Postgres implementation.
type fakeStore struct {
	mu        sync.Mutex
	tenants   map[string]bool
	configs   map[string]model.TierConfig
	nodes     map[uuid.UUID]model.MemoryRecord
	edges     []model.MemoryEdge
	requests  map[uuid.UUID]model.ErasureRequest
	purges    []model.ColdPurgeEntry
	flows     map[string]model.DataFlowMetric
	alerts    []model.TierAlert
	snapshots []model.TierHealthSnapshot
	coldObjs  map[string]coldObject
	aliases   map[string]uuid.UUID

	failMarkArchived map[uuid.UUID]bool
	failMergeKeep    map[uuid.UUID]bool
	failEraseUser    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants:          map[string]bool{},
		configs:          map[string]model.TierConfig{},
		nodes:            map[uuid.UUID]model.MemoryRecord{},
		requests:         map[uuid.UUID]model.ErasureRequest{},
		flows:            map[string]model.DataFlowMetric{},
		coldObjs:         map[string]coldObject{},
		aliases:          map[string]uuid.UUID{},
		failMarkArchived: map[uuid.UUID]bool{},
		failMergeKeep:    map[uuid.UUID]bool{},
	}
}

func notFound(what string) error { return fmt.Errorf("fake: %s: %w", what, storage.ErrNotFound) }

func (f *fakeStore) node(id uuid.UUID) model.MemoryRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes[id]
}

func (f *fakeStore) put(r model.MemoryRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[r.ID] = r
}

func (f *fakeStore) EnsureTenant(_ context.Context, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants[tenantID] = true
	return nil
}

func (f *fakeStore) GetTierConfig(_ context.Context, tenantID string) (model.TierConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.configs[tenantID]
	if !ok {
		return model.TierConfig{}, notFound("tier config")
	}
	return c, nil
}

func (f *fakeStore) UpsertTierConfig(_ context.Context, c model.TierConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs[c.TenantID] = c
	return nil
}

func (f *fakeStore) UpsertMemoryNode(_ context.Context, r model.MemoryRecord, now time.Time) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, n := range f.nodes {
		if n.TenantID == r.TenantID && n.Label == r.Label && n.NodeType == r.NodeType {
			n.Content = r.Content
			n.Properties = r.Properties
			n.Confidence = r.Confidence
			n.UserID = r.UserID
			n.EmbeddingRef = r.EmbeddingRef
			n.IsEvergreen = r.IsEvergreen
			n.Status = model.RecordActive
			n.ColdKey = nil
			n.ArchivedAt = nil
			n.DeletedAt = nil
			if !r.CreatedAt.IsZero() {
				n.CreatedAt = r.CreatedAt
			}
			n.UpdatedAt = now
			f.nodes[id] = n
			return id, nil
		}
	}
	r.Status = model.RecordActive
	r.UpdatedAt = now
	f.nodes[r.ID] = r
	return r.ID, nil
}

func (f *fakeStore) GetMemoryNode(_ context.Context, tenantID string, id uuid.UUID) (model.MemoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok || n.TenantID != tenantID {
		return model.MemoryRecord{}, notFound("memory node")
	}
	return n, nil
}

func (f *fakeStore) ListArchiveCandidates(_ context.Context, tenantID string, cutoff time.Time, evergreenTypes []string, limit int) ([]model.MemoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.MemoryRecord
	for _, n := range f.nodes {
		if n.TenantID == tenantID && n.Status == model.RecordActive && !n.IsEvergreen &&
			n.CreatedAt.Before(cutoff) && !slices.Contains(evergreenTypes, n.NodeType) {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b model.MemoryRecord) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) MarkArchived(_ context.Context, tenantID string, id uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMarkArchived[id] {
		return false, errors.New("fake: mark archived failed")
	}
	n, ok := f.nodes[id]
	if !ok || n.TenantID != tenantID || n.Status != model.RecordActive || n.IsEvergreen {
		return false, nil
	}
	n.Status = model.RecordArchived
	n.ArchivedAt = &at
	f.nodes[id] = n
	return true, nil
}

func (f *fakeStore) SetColdKey(_ context.Context, tenantID string, id uuid.UUID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if ok && n.TenantID == tenantID && n.Status == model.RecordArchived {
		n.ColdKey = &key
		f.nodes[id] = n
	}
	return nil
}

func (f *fakeStore) RestoreArchived(_ context.Context, tenantID string, id uuid.UUID, cold *model.MemoryRecord, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok || n.TenantID != tenantID || n.Status != model.RecordArchived {
		return false, nil
	}
	n.Status = model.RecordActive
	n.ArchivedAt = nil
	n.UpdatedAt = at
	if cold != nil {
		n.Content = cold.Content
		props := maps.Clone(n.Properties)
		if props == nil {
			props = map[string]any{}
		}
		maps.Copy(props, cold.Properties)
		n.Properties = props
	}
	f.nodes[id] = n
	return true, nil
}

func (f *fakeStore) ListDuplicateGroups(_ context.Context, tenantID string, limit int) ([]storage.DuplicateGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byLabel := map[string][]model.MemoryRecord{}
	for _, n := range f.nodes {
		if n.TenantID == tenantID && n.Status == model.RecordActive {
			l := strings.ToLower(n.Label)
			byLabel[l] = append(byLabel[l], n)
		}
	}
	var groups []storage.DuplicateGroup
	for _, label := range slices.Sorted(maps.Keys(byLabel)) {
		members := byLabel[label]
		if len(members) < 2 {
			continue
		}
		slices.SortFunc(members, func(a, b model.MemoryRecord) int {
			if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
				return c
			}
			return a.CreatedAt.Compare(b.CreatedAt)
		})
		g := storage.DuplicateGroup{Label: label}
		for _, m := range members {
			g.IDs = append(g.IDs, m.ID)
		}
		groups = append(groups, g)
		if len(groups) == limit {
			break
		}
	}
	return groups, nil
}

func (f *fakeStore) MergeDuplicates(_ context.Context, tenantID string, keepID uuid.UUID, mergeIDs []uuid.UUID, at time.Time) (storage.MergeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res storage.MergeResult
	if f.failMergeKeep[keepID] {
		return res, errors.New("fake: merge failed")
	}
	keep := f.nodes[keepID]
	docs := slices.Clone(keep.SourceDocumentIDs)
	for _, id := range mergeIDs {
		n := f.nodes[id]
		if n.Status != model.RecordActive {
			continue
		}
		docs = append(docs, n.SourceDocumentIDs...)
		if n.EmbeddingRef != nil {
			res.EmbeddingRefs = append(res.EmbeddingRefs, *n.EmbeddingRef)
		}
		n.Status = model.RecordDeleted
		n.DeletedAt = &at
		f.nodes[id] = n
		res.Merged++
		for i, e := range f.edges {
			if e.SourceID == id {
				f.edges[i].SourceID = keepID
				res.EdgesRepointed++
			}
			if e.TargetID == id {
				f.edges[i].TargetID = keepID
				res.EdgesRepointed++
			}
		}
	}
	slices.Sort(docs)
	keep.SourceDocumentIDs = slices.Compact(docs)
	keep.UpdatedAt = at
	f.nodes[keepID] = keep
	return res, nil
}

func (f *fakeStore) CountMemoryNodes(_ context.Context, tenantID string) (storage.NodeCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var c storage.NodeCounts
	for _, n := range f.nodes {
		if n.TenantID != tenantID {
			continue
		}
		switch n.Status {
		case model.RecordActive:
			c.Active++
		case model.RecordArchived:
			c.Archived++
		case model.RecordDeleted:
			c.Deleted++
		}
	}
	return c, nil
}

func (f *fakeStore) RecordNodeAlias(_ context.Context, tenantID string, aliasID, nodeID uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aliases[tenantID+"/"+aliasID.String()] = nodeID
	return nil
}

func (f *fakeStore) ResolveNodeAlias(_ context.Context, tenantID string, aliasID uuid.UUID) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.aliases[tenantID+"/"+aliasID.String()]
	if !ok {
		return uuid.Nil, notFound("node alias")
	}
	return id, nil
}

type coldObject struct {
	tenantID string
	nodeID   uuid.UUID
	userID   *string
	at       time.Time
}

func (f *fakeStore) RecordColdObject(_ context.Context, tenantID string, nodeID uuid.UUID, userID *string, key string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coldObjs[key] = coldObject{tenantID: tenantID, nodeID: nodeID, userID: userID, at: at}
	return nil
}

func (f *fakeStore) ColdObjectKeys(_ context.Context, tenantID, userID string, nodeIDs []uuid.UUID) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k, o := range f.coldObjs {
		if o.tenantID != tenantID {
			continue
		}
		if (o.userID != nil && *o.userID == userID) || slices.Contains(nodeIDs, o.nodeID) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (f *fakeStore) ForgetColdObjects(_ context.Context, tenantID string, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		if o, ok := f.coldObjs[k]; ok && o.tenantID == tenantID {
			delete(f.coldObjs, k)
		}
	}
	return nil
}

func (f *fakeStore) coldObjectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.coldObjs)
}

func (f *fakeStore) CreateErasureRequest(_ context.Context, in model.ErasureRequestInput, at time.Time) (model.ErasureRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := model.ErasureRequest{
		ID: uuid.New(), TenantID: in.TenantID, Scope: in.Scope, UserID: in.UserID,
		Status: model.ErasurePending, HotStatus: model.ErasurePending,
		WarmStatus: model.ErasurePending, ColdStatus: model.ErasurePending,
		RequestedBy: in.RequestedBy, RequestedAt: at,
	}
	f.requests[r.ID] = r
	return r, nil
}

func (f *fakeStore) GetErasureRequest(_ context.Context, id uuid.UUID) (model.ErasureRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return model.ErasureRequest{}, notFound("erasure request")
	}
	return r, nil
}

func (f *fakeStore) ListOpenErasureRequests(_ context.Context, limit int) ([]model.ErasureRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ErasureRequest
	for _, r := range f.requests {
		if r.Status == model.ErasurePending || r.Status == model.ErasureFailed {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b model.ErasureRequest) int { return a.RequestedAt.Compare(b.RequestedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) updateRequest(id uuid.UUID, fn func(*model.ErasureRequest)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return notFound("erasure request")
	}
	fn(&r)
	f.requests[id] = r
	return nil
}

func (f *fakeStore) SetErasureStatus(_ context.Context, id uuid.UUID, status model.ErasureStatus) error {
	return f.updateRequest(id, func(r *model.ErasureRequest) { r.Status = status; r.Error = nil })
}

func (f *fakeStore) SetErasureTierStatus(_ context.Context, id uuid.UUID, tier model.Tier, status model.ErasureStatus) error {
	return f.updateRequest(id, func(r *model.ErasureRequest) {
		switch tier {
		case model.TierHot:
			r.HotStatus = status
		case model.TierWarm:
			r.WarmStatus = status
		case model.TierCold:
			r.ColdStatus = status
		}
	})
}

func (f *fakeStore) CompleteErasureRequest(_ context.Context, id uuid.UUID, at time.Time) error {
	return f.updateRequest(id, func(r *model.ErasureRequest) {
		r.Status = model.ErasureCompleted
		r.Error = nil
		r.CompletedAt = &at
	})
}

func (f *fakeStore) FailErasureRequest(_ context.Context, id uuid.UUID, msg string) error {
	return f.updateRequest(id, func(r *model.ErasureRequest) {
		r.Status = model.ErasureFailed
		r.Error = &msg
	})
}

func (f *fakeStore) EraseUserNodes(_ context.Context, tenantID, userID string, at time.Time) ([]storage.ErasedNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEraseUser != nil {
		return nil, f.failEraseUser
	}
	var out []storage.ErasedNode
	for id, n := range f.nodes {
		if n.TenantID != tenantID || !n.OwnedBy(userID) {
			continue
		}
		out = append(out, storage.ErasedNode{ID: id, ColdKey: n.ColdKey, EmbeddingRef: n.EmbeddingRef})
		u := userID
		n.UserID = &u
		n.Content = ""
		n.Properties = map[string]any{}
		n.EmbeddingRef = nil
		n.Status = model.RecordDeleted
		if n.DeletedAt == nil {
			n.DeletedAt = &at
		}
		f.nodes[id] = n
	}
	return out, nil
}

func (f *fakeStore) EraseTenantNodes(_ context.Context, tenantID string, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for id, n := range f.nodes {
		if n.TenantID != tenantID {
			continue
		}
		n.Content = ""
		n.Properties = map[string]any{}
		n.EmbeddingRef = nil
		n.Status = model.RecordDeleted
		if n.DeletedAt == nil {
			n.DeletedAt = &at
		}
		f.nodes[id] = n
		count++
	}
	return count, nil
}

func (f *fakeStore) EnqueueColdPurges(_ context.Context, entries []model.ColdPurgeEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entries {
		dup := slices.ContainsFunc(f.purges, func(p model.ColdPurgeEntry) bool {
			return p.RequestID == e.RequestID && ptrEq(p.ObjectKey, e.ObjectKey) && ptrEq(p.Prefix, e.Prefix)
		})
		if dup {
			continue
		}
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		f.purges = append(f.purges, e)
	}
	return nil
}

func ptrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (f *fakeStore) ListPendingColdPurges(_ context.Context, maxAttempts, limit int) ([]model.ColdPurgeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ColdPurgeEntry
	for _, p := range f.purges {
		if p.PurgedAt == nil && p.Attempts < maxAttempts {
			out = append(out, p)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) updatePurge(id uuid.UUID, fn func(*model.ColdPurgeEntry)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.purges {
		if f.purges[i].ID == id {
			fn(&f.purges[i])
		}
	}
}

func (f *fakeStore) MarkColdPurged(_ context.Context, id uuid.UUID, at time.Time) error {
	f.updatePurge(id, func(p *model.ColdPurgeEntry) { p.PurgedAt = &at; p.Attempts++ })
	return nil
}

func (f *fakeStore) MarkColdPurgeFailed(_ context.Context, id uuid.UUID, msg string) error {
	f.updatePurge(id, func(p *model.ColdPurgeEntry) { p.Attempts++; p.LastError = &msg })
	return nil
}

func (f *fakeStore) FinalizeColdPurges(_ context.Context, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, r := range f.requests {
		if r.Status != model.ErasureCompleted || r.ColdPurgedAt != nil {
			continue
		}
		pending := slices.ContainsFunc(f.purges, func(p model.ColdPurgeEntry) bool {
			return p.RequestID == id && p.PurgedAt == nil
		})
		if pending {
			continue
		}
		r.ColdPurgedAt = &at
		f.requests[id] = r
		n++
	}
	return n, nil
}

func (f *fakeStore) IncrementFlowMetric(_ context.Context, tenantID string, period model.MetricPeriod, periodStart time.Time, d model.FlowDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := tenantID + "|" + string(period) + "|" + periodStart.Format(time.RFC3339)
	m := f.flows[key]
	m.TenantID, m.Period, m.PeriodStart = tenantID, period, periodStart
	m.HotToWarmPromotions += d.Promotions
	m.WarmToColdArchivals += d.Archivals
	m.ColdToWarmRetrievals += d.Retrievals
	m.ColdRetrievalMisses += d.RetrievalMisses
	m.TotalRetrievalLatencyMs += d.RetrievalLatency.Milliseconds()
	f.flows[key] = m
	return nil
}

func (f *fakeStore) ListFlowMetrics(_ context.Context, tenantID string, period model.MetricPeriod, since time.Time) ([]model.DataFlowMetric, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DataFlowMetric
	for _, m := range f.flows {
		if m.TenantID == tenantID && m.Period == period && !m.PeriodStart.Before(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertTierAlert(_ context.Context, a model.TierAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return nil
}

func (f *fakeStore) ListTierAlerts(_ context.Context, tenantID string, openOnly bool, limit int) ([]model.TierAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TierAlert
	for _, a := range f.alerts {
		if a.TenantID == tenantID && (!openOnly || a.AcknowledgedAt == nil) {
			out = append(out, a)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) AcknowledgeTierAlert(_ context.Context, tenantID string, id uuid.UUID, by string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.alerts {
		if a.ID != id || a.TenantID != tenantID {
			continue
		}
		if a.AcknowledgedAt != nil {
			return false, nil
		}
		f.alerts[i].AcknowledgedAt = &at
		f.alerts[i].AcknowledgedBy = &by
		return true, nil
	}
	return false, notFound("tier alert")
}

func (f *fakeStore) InsertHealthSnapshot(_ context.Context, s model.TierHealthSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, s)
	return nil
}
