package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ViewCache is a generic JSON-backed Redis cache for read models.
// Each instance holds a Redis client, a key prefix and an optional TTL
// (pass 0 for keys that should not expire). Every id carries a version
// counter so a read that raced with Invalidate cannot repopulate stale data.
type ViewCache[T any] struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewViewCache creates a ViewCache backed by the provided Redis client.
func NewViewCache[T any](client redis.UniversalClient, prefix string, ttl time.Duration) *ViewCache[T] {
	return &ViewCache[T]{client: client, prefix: prefix, ttl: ttl, logger: slog.Default()}
}

// WithLogger replaces the logger used for non-fatal cache errors.
func (c *ViewCache[T]) WithLogger(logger *slog.Logger) *ViewCache[T] {
	c.logger = logger
	return c
}

func (c *ViewCache[T]) key(id string) string {
	return c.prefix + id
}

func (c *ViewCache[T]) versionKey(id string) string {
	return c.prefix + "version:" + id
}

// versionTTL keeps version counters around well past any read that could
// still be holding one.
const versionTTL = 24 * time.Hour

// setIfVersion writes KEYS[1] only while KEYS[2] still equals ARGV[2].
var setIfVersion = redis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if (cur or '0') ~= ARGV[2] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// Get retrieves and unmarshals a value together with the current version of
// id. On a miss the version is meant to be handed back to SetIfVersion; -1
// means it is unknown and the value must not be cached.
func (c *ViewCache[T]) Get(ctx context.Context, id string) (*T, int64, bool) {
	vals, err := c.client.MGet(ctx, c.key(id), c.versionKey(id)).Result()
	if err != nil {
		c.logger.Warn("view cache read failed", slog.String("key", c.key(id)), slog.Any("error", err))
		return nil, -1, false
	}
	version := int64(0)
	if raw, ok := vals[1].(string); ok {
		if version, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, -1, false
		}
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, version, false
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		c.logger.Warn("view cache decode failed", slog.String("key", c.key(id)), slog.Any("error", err))
		return nil, version, false
	}
	return &v, version, true
}

// SetIfVersion stores value only if Invalidate has not run for id since the
// Get call that returned version. Errors are logged rather than returned, a
// failed cache write is non-fatal.
func (c *ViewCache[T]) SetIfVersion(ctx context.Context, id string, value *T, version int64) bool {
	if version < 0 {
		return false
	}
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("view cache encode failed", slog.String("key", c.key(id)), slog.Any("error", err))
		return false
	}
	n, err := setIfVersion.Run(ctx, c.client,
		[]string{c.key(id), c.versionKey(id)},
		data, strconv.FormatInt(version, 10), c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		c.logger.Warn("view cache write failed", slog.String("key", c.key(id)), slog.Any("error", err))
		return false
	}
	return n == 1
}

// Invalidate deletes ids and bumps their versions so that fills started
// before this call are dropped.
func (c *ViewCache[T]) Invalidate(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Incr(ctx, c.versionKey(id))
			pipe.Expire(ctx, c.versionKey(id), versionTTL)
			pipe.Del(ctx, c.key(id))
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("view cache invalidate failed", slog.Any("ids", ids), slog.Any("error", err))
	}
}
