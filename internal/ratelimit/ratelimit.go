// Package ratelimit throttles the write paths of the Radiant API per caller.
//
// Single-node deployments use the in-memory token bucket (MemoryLimiter).
// Deployments running several API replicas use RedisLimiter so every
// replica counts against the same window.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if the request should proceed. Returning an error
	// signals a limiter malfunction; callers treat errors as fail-open.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// RetryAdvisor is implemented by limiters that can tell a rejected caller
// how long to back off.
type RetryAdvisor interface {
	RetryAfter() time.Duration
}

// Class groups routes that draw on one budget. Each caller has a separate
// budget per class.
type Class string

const (
	ClassMemory   Class = "memory"   // hot tier writes and cold retrievals
	ClassEvaluate Class = "evaluate" // checkpoint evaluation and should-checkpoint
	ClassDecide   Class = "decide"   // reviewer resolutions and escalations
	ClassSubmit   Class = "submit"   // oversight submissions
)

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
