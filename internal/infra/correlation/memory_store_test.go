package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntry struct {
	Name string `json:"name"`
}

func TestMemoryStore_SetGetDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k1", testEntry{Name: "a"}, 0))

	var got testEntry
	found, err := store.Get(ctx, "k1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "a", got.Name)

	found, err = store.Get(ctx, "missing", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Delete(ctx, "k1"))
	found, err = store.Get(ctx, "k1", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now()
	store.now = func() time.Time { return current }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "ttl", testEntry{Name: "x"}, time.Minute))
	require.NoError(t, store.Set(ctx, "forever", testEntry{Name: "y"}, 0))

	var got testEntry
	found, err := store.Get(ctx, "ttl", &got)
	require.NoError(t, err)
	assert.True(t, found)

	current = current.Add(2 * time.Minute)

	found, err = store.Get(ctx, "ttl", &got)
	require.NoError(t, err)
	assert.False(t, found, "expired entries are dropped on read")

	found, err = store.Get(ctx, "forever", &got)
	require.NoError(t, err)
	assert.True(t, found, "zero TTL means no expiry")
}

func TestMemoryStore_ExpiredReadKeepsConcurrentOverwrite(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	current := time.Now()

	calls := 0
	store.now = func() time.Time {
		calls++
		if calls == 2 {
			// Lands between the expiry check and the deletion, like a Set
			// racing the Get on another goroutine.
			require.NoError(t, store.Set(ctx, "k", testEntry{Name: "fresh"}, 0))
		}
		return current
	}

	require.NoError(t, store.Set(ctx, "k", testEntry{Name: "stale"}, time.Minute))
	current = current.Add(2 * time.Minute)

	var got testEntry
	found, err := store.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found, "the read itself observed the expired entry")

	found, err = store.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found, "the overwrite written during the read survives")
	assert.Equal(t, "fresh", got.Name)
}

func TestMemoryStore_Sweep(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now()
	store.now = func() time.Time { return current }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", testEntry{}, time.Minute))
	require.NoError(t, store.Set(ctx, "b", testEntry{}, time.Minute))
	require.NoError(t, store.Set(ctx, "c", testEntry{}, 0))
	assert.Equal(t, 3, store.Len())

	assert.Equal(t, 0, store.Sweep(), "nothing expired yet")

	current = current.Add(2 * time.Minute)
	assert.Equal(t, 2, store.Sweep())
	assert.Equal(t, 1, store.Len(), "only the non-expiring entry survives")
}

func TestMemoryStore_OverwriteResetsTTL(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now()
	store.now = func() time.Time { return current }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", testEntry{Name: "old"}, time.Minute))
	current = current.Add(50 * time.Second)
	require.NoError(t, store.Set(ctx, "k", testEntry{Name: "new"}, time.Minute))
	current = current.Add(30 * time.Second)

	var got testEntry
	found, err := store.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "new", got.Name)
}
