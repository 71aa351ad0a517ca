package storage

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRedisStoreRoundTrip needs a reachable server named by TOKENWATCH_TEST_REDIS_ADDR.
func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("TOKENWATCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TOKENWATCH_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	key := "tokenwatch:test:" + t.Name()
	require.NoError(t, client.Del(ctx, key).Err())
	t.Cleanup(func() { _ = client.Del(context.Background(), key).Err() })

	store := NewRedisStoreWithClient(client, key)
	t.Cleanup(func() { _ = store.Close() })

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, store.Save(ctx, sampleRecord()))
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.Equal(sampleRecord()), "loaded %v", loaded)
}

func TestRedisStoreNotConfigured(t *testing.T) {
	var store *RedisStore
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.NoError(t, store.Close())
}
