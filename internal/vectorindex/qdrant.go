// Package vectorindex removes memory-record embeddings from the Qdrant
// collection that backs semantic recall. Records only hold an embedding
// reference; the vectors themselves live here and must be purged when a
// record is erased or merged away.
package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/singleflight"
)

// Index is the purge surface used by the tier coordinator.
type Index interface {
	// DeleteRefs removes the points named by embedding references.
	DeleteRefs(ctx context.Context, tenantID string, refs []string) error
	// DeleteByUser removes every point owned by userID within the tenant.
	DeleteByUser(ctx context.Context, tenantID, userID string) error
	// DeleteByTenant removes every point of the tenant.
	DeleteByTenant(ctx context.Context, tenantID string) error
	Healthy(ctx context.Context) error
}

// Config holds configuration for connecting to Qdrant.
type Config struct {
	URL        string // e.g. "https://xyz.cloud.qdrant.io:6333" or "http://localhost:6333"
	APIKey     string
	Collection string
}

// Qdrant implements Index over the Qdrant gRPC API. Points carry
// tenant_id, user_id and ref payload fields.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger

	healthGroup singleflight.Group
	healthErr   atomic.Value // *error
	healthAt    atomic.Int64 // unix nanos of last check
}

// parseURL extracts host, port, and TLS flag from a Qdrant URL. The REST
// port 6333 is mapped to the gRPC port 6334.
func parseURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("vectorindex: invalid qdrant URL: %q", rawURL)
	}
	useTLS = u.Scheme == "https"
	host = u.Hostname()

	port = 6334
	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("vectorindex: invalid port in qdrant URL: %q", portStr)
		}
		if p != 6333 {
			port = p
		}
	}
	return host, port, useTLS, nil
}

// NewQdrant connects to Qdrant.
func NewQdrant(cfg Config, logger *slog.Logger) (*Qdrant, error) {
	host, port, useTLS, err := parseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: connect to qdrant at %s:%d: %w", host, port, err)
	}
	return &Qdrant{client: client, collection: cfg.Collection, logger: logger}, nil
}

// splitRefs separates references that are valid point IDs from opaque ones,
// which are matched on the ref payload field instead.
func splitRefs(refs []string) (ids []*qdrant.PointId, opaque []string) {
	for _, ref := range refs {
		if _, err := uuid.Parse(ref); err == nil {
			ids = append(ids, qdrant.NewID(ref))
			continue
		}
		opaque = append(opaque, ref)
	}
	return ids, opaque
}

// DeleteRefs implements Index.
func (q *Qdrant) DeleteRefs(ctx context.Context, tenantID string, refs []string) error {
	if len(refs) == 0 {
		return nil
	}
	ids, opaque := splitRefs(refs)
	if len(ids) > 0 {
		if _, err := q.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: q.collection,
			Wait:           qdrant.PtrOf(true),
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{Ids: ids},
				},
			},
		}); err != nil {
			return fmt.Errorf("vectorindex: delete %d points: %w", len(ids), err)
		}
	}
	if len(opaque) > 0 {
		if err := q.deleteByFilter(ctx, &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("tenant_id", tenantID),
				qdrant.NewMatchKeywords("ref", opaque...),
			},
		}); err != nil {
			return fmt.Errorf("vectorindex: delete %d refs: %w", len(opaque), err)
		}
	}
	return nil
}

// DeleteByUser implements Index.
func (q *Qdrant) DeleteByUser(ctx context.Context, tenantID, userID string) error {
	err := q.deleteByFilter(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("tenant_id", tenantID),
			qdrant.NewMatch("user_id", userID),
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: delete by user: %w", err)
	}
	return nil
}

// DeleteByTenant implements Index.
func (q *Qdrant) DeleteByTenant(ctx context.Context, tenantID string) error {
	err := q.deleteByFilter(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("tenant_id", tenantID)},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: delete by tenant %s: %w", tenantID, err)
	}
	return nil
}

func (q *Qdrant) deleteByFilter(ctx context.Context, f *qdrant.Filter) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: f},
		},
	})
	return err
}

// Healthy returns nil if Qdrant is reachable. Results are cached for 5
// seconds and concurrent checks share one gRPC call.
func (q *Qdrant) Healthy(ctx context.Context) error {
	if time.Since(time.Unix(0, q.healthAt.Load())) < 5*time.Second {
		return q.loadHealthErr()
	}
	// singleflight hands the first caller's context to every waiter, so the
	// check runs on its own.
	result, _, _ := q.healthGroup.Do("health", func() (any, error) {
		checkCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if _, err := q.client.HealthCheck(checkCtx); err != nil {
			q.storeHealthErr(fmt.Errorf("vectorindex: qdrant unhealthy: %w", err))
		} else {
			q.storeHealthErr(nil)
		}
		q.healthAt.Store(time.Now().UnixNano())
		return q.loadHealthErr(), nil
	})
	if result == nil {
		return nil
	}
	return result.(error)
}

func (q *Qdrant) storeHealthErr(err error) {
	q.healthErr.Store(&err)
}

func (q *Qdrant) loadHealthErr() error {
	v := q.healthErr.Load()
	if v == nil {
		return nil
	}
	return *v.(*error)
}

// Close shuts down the gRPC connection.
func (q *Qdrant) Close() error {
	return q.client.Close()
}
