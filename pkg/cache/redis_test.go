package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestCache(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	c := NewRedisFromClient(client, "snap:", zap.NewNop())
	t.Cleanup(func() { _ = c.Close() })
	return c, srv
}

func TestRedis_SetGet(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", doc{Name: "a", Count: 2}, time.Minute))
	assert.True(t, srv.Exists("snap:k"))

	var got doc
	ok, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, doc{Name: "a", Count: 2}, got)
}

func TestRedis_Miss(t *testing.T) {
	c, _ := newTestCache(t)

	var got doc
	ok, err := c.Get(context.Background(), "absent", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_Expiry(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", doc{Name: "a"}, time.Minute))
	srv.FastForward(2 * time.Minute)

	var got doc
	ok, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_CorruptEntryIsMiss(t *testing.T) {
	c, srv := newTestCache(t)
	require.NoError(t, srv.Set("snap:k", "{not json"))

	var got doc
	ok, err := c.Get(context.Background(), "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_Delete(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", doc{}, time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))
	assert.False(t, srv.Exists("snap:k"))
	require.NoError(t, c.HealthCheck(ctx))
}

func TestRedis_Unavailable(t *testing.T) {
	c, srv := newTestCache(t)
	srv.Close()

	var got doc
	_, err := c.Get(context.Background(), "k", &got)
	assert.Error(t, err)
}
