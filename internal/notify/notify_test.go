package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	ts    time.Time
	ok    bool
	err   error
	calls int
}

func (f *fakeSource) NewestPendingTimestamp(context.Context) (time.Time, bool, error) {
	f.calls++
	return f.ts, f.ok, f.err
}

func newTestCache(t *testing.T, src PendingSource) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, src, time.Hour), mr
}

func TestCache_ReadThrough(t *testing.T) {
	ts := time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC)
	src := &fakeSource{ts: ts, ok: true}
	c, mr := newTestCache(t, src)
	ctx := context.Background()

	got, ok, err := c.NewestPending(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ts.Equal(got))

	got, ok, err = c.NewestPending(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ts.Equal(got))
	assert.Equal(t, 1, src.calls, "second read should come from redis")

	val, err := mr.Get(c.key)
	require.NoError(t, err)
	assert.Equal(t, "2024-04-30T09:00:00Z", val)
	assert.Equal(t, time.Hour, mr.TTL(c.key))
}

func TestCache_EmptyQueueIsCached(t *testing.T) {
	src := &fakeSource{}
	c, _ := newTestCache(t, src)
	ctx := context.Background()

	for range 2 {
		_, ok, err := c.NewestPending(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, src.calls)
}

func TestCache_Invalidate(t *testing.T) {
	src := &fakeSource{}
	c, mr := newTestCache(t, src)
	ctx := context.Background()

	_, _, err := c.NewestPending(ctx)
	require.NoError(t, err)

	src.ts, src.ok = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), true
	require.NoError(t, c.Invalidate(ctx))
	assert.False(t, mr.Exists(c.key))

	_, ok, err := c.NewestPending(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, src.calls)
}

func TestCache_CorruptValueFallsBack(t *testing.T) {
	src := &fakeSource{ts: time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC), ok: true}
	c, mr := newTestCache(t, src)
	require.NoError(t, mr.Set(c.key, "garbage"))

	_, ok, err := c.NewestPending(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, src.calls)
}

func TestCache_RedisDown(t *testing.T) {
	src := &fakeSource{ts: time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC), ok: true}
	c, mr := newTestCache(t, src)
	mr.Close()

	_, ok, err := c.NewestPending(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCache_SourceError(t *testing.T) {
	boom := errors.New("db down")
	c, _ := newTestCache(t, &fakeSource{err: boom})

	_, _, err := c.NewestPending(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestCache_WithoutRedis(t *testing.T) {
	src := &fakeSource{ts: time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC), ok: true}
	c := New(nil, src, time.Hour)
	ctx := context.Background()

	for range 2 {
		_, ok, err := c.NewestPending(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 2, src.calls)
	assert.NoError(t, c.Invalidate(ctx))
}

func TestHasNewChanges(t *testing.T) {
	newest := time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC)
	c, _ := newTestCache(t, &fakeSource{ts: newest, ok: true})
	ctx := context.Background()

	got, err := c.HasNewChanges(ctx, newest.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, got)

	got, err = c.HasNewChanges(ctx, newest)
	require.NoError(t, err)
	assert.False(t, got)

	empty := New(nil, &fakeSource{}, time.Hour)
	got, err = empty.HasNewChanges(ctx, time.Time{})
	require.NoError(t, err)
	assert.False(t, got)
}
