// Package kv provides the Hot-tier key/value store: a TTL-capable cache
// with prefix scans and an atomic set-if-absent used to claim records.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or has expired.
var ErrNotFound = errors.New("kv: not found")

// Store is the Hot-tier cache contract.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX writes value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// ScanPrefix returns every live key starting with prefix.
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Stats is a point-in-time view of cache utilisation.
type Stats struct {
	UsedMemoryBytes int64
	MaxMemoryBytes  int64
	Hits            int64
	Misses          int64
	Keys            int64
}

// MemoryUsedPct returns used/max as a percentage, or 0 when no limit is set.
func (s Stats) MemoryUsedPct() float64 {
	if s.MaxMemoryBytes <= 0 {
		return 0
	}
	return float64(s.UsedMemoryBytes) / float64(s.MaxMemoryBytes) * 100
}

// HitRate returns hits/(hits+misses) as a percentage. With no lookups yet
// the rate is reported as 100.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 100
	}
	return float64(s.Hits) / float64(total) * 100
}

// StatsProvider is implemented by stores that can report utilisation.
type StatsProvider interface {
	Stats(ctx context.Context) (Stats, error)
}
