package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camuig/smartapi-proxy/internal/logger"
	"github.com/camuig/smartapi-proxy/internal/session"
)

func newRedisStore(t *testing.T) (*session.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := session.NewRedisStore(client, "test:session:")
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	_, ok, err := store.Load(ctx, "A1")
	require.NoError(t, err)
	assert.False(t, ok)

	rec := session.Record{
		AccountID: "A1",
		AuthToken: "jwt",
		FeedToken: "feed",
		CreatedAt: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(ctx, rec, time.Hour))
	assert.True(t, mr.Exists("test:session:A1"))
	assert.Equal(t, time.Hour, mr.TTL("test:session:A1"))

	got, ok, err := store.Load(ctx, "A1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.AuthToken, got.AuthToken)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

	require.NoError(t, store.Delete(ctx, "A1"))
	assert.False(t, mr.Exists("test:session:A1"))
}

func TestRedisStore_NeverStoresCredentials(t *testing.T) {
	store, mr := newRedisStore(t)
	h := &harness{}
	m := session.NewManager(h.dial, logger.Discard(), session.WithStore(store))

	c := creds("A1")
	c.Password = "super-secret"
	c.APIKey = "private-api-key"
	_, err := m.Login(context.Background(), c)
	require.NoError(t, err)

	raw, err := mr.Get("test:session:A1")
	require.NoError(t, err)
	assert.NotContains(t, raw, "super-secret")
	assert.NotContains(t, raw, c.APIKey)
	assert.Contains(t, raw, "jwt-A1-1")
}

func TestManager_RestoresFromStore(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, session.Record{
		AccountID: "A1",
		AuthToken: "persisted-jwt",
		FeedToken: "feed",
		CreatedAt: now.Add(-time.Hour),
	}, 0))

	h := &harness{}
	m := session.NewManager(h.dial, logger.Discard(), session.WithStore(store))
	require.NoError(t, m.Register(creds("A1")))

	s, err := m.EnsureSession(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "persisted-jwt", s.AuthToken)
	assert.Equal(t, int32(0), h.logins.Load())
	assert.Equal(t, "persisted-jwt", h.last.tokens.JWT)
}

func TestManager_IgnoresStaleStoredSession(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, session.Record{
		AccountID: "A1",
		AuthToken: "old-jwt",
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}, 0))

	h := &harness{}
	m := session.NewManager(h.dial, logger.Discard(), session.WithStore(store))
	require.NoError(t, m.Register(creds("A1")))

	s, err := m.EnsureSession(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "jwt-A1-1", s.AuthToken)
	assert.Equal(t, int32(1), h.logins.Load())
}

func TestManager_InvalidateDeletesStoredSession(t *testing.T) {
	store, mr := newRedisStore(t)
	h := &harness{}
	m := session.NewManager(h.dial, logger.Discard(), session.WithStore(store))
	require.NoError(t, m.Register(creds("A1")))

	_, err := m.EnsureSession(context.Background(), "A1")
	require.NoError(t, err)
	require.True(t, mr.Exists("test:session:A1"))

	m.Invalidate("A1")
	assert.False(t, mr.Exists("test:session:A1"))
}
