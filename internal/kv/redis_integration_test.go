package kv

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiant-ai/radiant/internal/testutil"
)

func startRedis(t *testing.T) *Redis {
	t.Helper()
	addr := testutil.StartRedis(t)
	r, err := NewRedis(context.Background(), "redis://"+addr+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	r := startRedis(t)

	_, err := r.Get(ctx, "hot:T1:none")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Set(ctx, "hot:T1:a", []byte("a"), time.Hour))
	require.NoError(t, r.Set(ctx, "hot:T1:b", []byte("b"), 0))
	require.NoError(t, r.Set(ctx, "hot:T2:a", []byte("c"), 0))

	keys, err := r.ScanPrefix(ctx, "hot:T1:")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"hot:T1:a", "hot:T1:b"}, keys)

	ok, err := r.SetNX(ctx, "claim:a", []byte("1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.SetNX(ctx, "claim:a", []byte("1"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Delete(ctx, "hot:T1:a", "hot:T1:b"))
	keys, err = r.ScanPrefix(ctx, "hot:T1:")
	require.NoError(t, err)
	assert.Empty(t, keys)

	s, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Positive(t, s.UsedMemoryBytes)
	assert.Positive(t, s.Hits+s.Misses)
}
