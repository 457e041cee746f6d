package repository

import (
	"context"
	"os"
	"testing"
	"time"

	auth "github.com/eularod/faculty-infortmation-system-eula"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("FIS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FIS_TEST_REDIS_ADDR not set")
	}

	client := NewRedisClient(auth.SessionOptions{RedisAddr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewRedisSessionStoreDefaults(t *testing.T) {
	store := NewRedisSessionStore(nil, "", 0)
	assert.Equal(t, DefaultSessionKeyPrefix+"abc", store.key("abc"))
	assert.Equal(t, 2*auth.DefaultSessionTimeout, store.ttl)

	store = NewRedisSessionStore(nil, "test:", 10*time.Minute)
	assert.Equal(t, "test:abc", store.key("abc"))
	assert.Equal(t, 20*time.Minute, store.ttl)
}

func TestRedisSessionStoreContract(t *testing.T) {
	client := redisTestClient(t)
	prefix := "fis:test:" + uuid.NewString() + ":"
	testSessionStore(t, NewRedisSessionStore(client, prefix, time.Minute), uuid.New(), uuid.New())
}

func TestRedisSessionStoreSetsTTL(t *testing.T) {
	ctx := context.Background()
	client := redisTestClient(t)
	store := NewRedisSessionStore(client, "fis:test:"+uuid.NewString()+":", time.Minute)

	_, err := store.Update(ctx, "s1", func(*auth.Session) (*auth.Session, error) {
		return &auth.Session{LastActivity: time.Now(), CreatedAt: time.Now()}, nil
	})
	require.NoError(t, err)

	ttl, err := client.TTL(ctx, store.key("s1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Minute)
	assert.LessOrEqual(t, ttl, 2*time.Minute)
}
