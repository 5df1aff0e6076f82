package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
	val, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), val)
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire after its TTL")
}

func TestMemoryStoreSetNX(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	acquired, err := store.SetNX(ctx, "lock", []byte("a"), time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = store.SetNX(ctx, "lock", []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired, "second SetNX must lose")

	val, ok, err := store.Get(ctx, "lock")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("a"), val)
}

func TestMemoryStoreSetNXTakesOverExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	acquired, err := store.SetNX(ctx, "lock", []byte("a"), time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	now = now.Add(2 * time.Minute)
	acquired, err = store.SetNX(ctx, "lock", []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired, "expired lock slot should be reusable")
}

func TestMemoryStoreIncrFloat(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	got, err := store.IncrFloat(ctx, "counter", 0.25, time.Hour)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, got, 1e-9)

	got, err = store.IncrFloat(ctx, "counter", 0.50, time.Hour)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, got, 1e-9)
}

func TestMemoryStoreIncrFloatResetsAfterExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	_, err := store.IncrFloat(ctx, "counter", 5, time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	got, err := store.IncrFloat(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-9, "expired counter starts a new window")
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Delete(ctx, "k"), "deleting a missing key is fine")

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEncodeKey(t *testing.T) {
	assert.Equal(t, "etym.v3.telephone", encodeKey("etym:v3:telephone"))
	assert.Equal(t, "lock.caf_", encodeKey("lock:café"))
	assert.Equal(t, "cost.usd.2026-08", encodeKey("cost:usd:2026-08"))
}
