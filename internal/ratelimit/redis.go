package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter shares counters between processes. Each window gets its own key
// that expires shortly after the window closes.
type RedisCounter struct {
	client redis.Cmdable
	prefix string
}

// NewRedisCounter wraps client. Keys are namespaced with prefix when set.
func NewRedisCounter(client redis.Cmdable, prefix string) *RedisCounter {
	return &RedisCounter{client: client, prefix: strings.TrimSpace(prefix)}
}

// Hit implements Counter with INCR + EXPIREAT in one transaction.
func (c *RedisCounter) Hit(ctx context.Context, key string, w Window) (Result, error) {
	if w.Limit <= 0 || key == "" || c == nil || c.client == nil {
		return Result{Allowed: true}, nil
	}
	redisKey := c.key(key, w.index())

	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireAt(ctx, redisKey, w.end().Add(time.Second))
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: redis hit: %w", err)
	}
	return w.result(incr.Val()), nil
}

func (c *RedisCounter) key(member string, window int64) string {
	parts := []string{member, strconv.FormatInt(window, 10)}
	if c.prefix != "" {
		parts = append([]string{c.prefix}, parts...)
	}
	return strings.Join(parts, ":")
}
