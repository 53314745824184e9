// Package notify tells moderators whether new changes are waiting for them.
// The newest pending timestamp is cached in redis and dropped whenever the
// queue changes.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "wikimod:"
	newestPendingKey = "moderation:newest-pending"
	nonePending      = "none"
)

// PendingSource reports the submission time of the newest pending change.
type PendingSource interface {
	NewestPendingTimestamp(ctx context.Context) (time.Time, bool, error)
}

// Cache is a read-through cache of the newest pending timestamp. A nil redis
// client turns it into a plain pass-through.
type Cache struct {
	rdb redis.UniversalClient
	src PendingSource
	ttl time.Duration
	key string
}

// New creates a cache in front of src.
func New(rdb redis.UniversalClient, src PendingSource, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, src: src, ttl: ttl, key: defaultKeyPrefix + newestPendingKey}
}

// NewestPending returns the timestamp of the newest pending change, and false
// if the queue is empty.
func (c *Cache) NewestPending(ctx context.Context) (time.Time, bool, error) {
	if c.rdb != nil {
		val, err := c.rdb.Get(ctx, c.key).Result()
		switch {
		case err == nil:
			if ts, ok := decode(val); ok || val == nonePending {
				return ts, ok, nil
			}
		case err != redis.Nil:
			slog.Warn("notification cache read failed", "error", err)
		}
	}

	ts, ok, err := c.src.NewestPendingTimestamp(ctx)
	if err != nil {
		return time.Time{}, false, err
	}

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, c.key, encode(ts, ok), c.ttl).Err(); err != nil {
			slog.Warn("notification cache write failed", "error", err)
		}
	}
	return ts, ok, nil
}

// HasNewChanges reports whether a change arrived after seenAt.
func (c *Cache) HasNewChanges(ctx context.Context, seenAt time.Time) (bool, error) {
	ts, ok, err := c.NewestPending(ctx)
	if err != nil || !ok {
		return false, err
	}
	return ts.After(seenAt), nil
}

// Invalidate drops the cached timestamp.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, c.key).Err()
}

func encode(ts time.Time, ok bool) string {
	if !ok {
		return nonePending
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

func decode(val string) (time.Time, bool) {
	ts, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
