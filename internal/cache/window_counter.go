package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyRateLimit = "accounthub:ratelimit:"

// incrWindow bumps the counter and starts its expiry on the first hit of a
// window, atomically.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// RedisWindowCounter is a fixed-window hit counter shared by every API
// replica.
type RedisWindowCounter struct {
	rdb redis.Scripter
}

func NewRedisWindowCounter(rdb redis.Scripter) *RedisWindowCounter {
	return &RedisWindowCounter{rdb: rdb}
}

func (c *RedisWindowCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := incrWindow.Run(ctx, c.rdb, []string{keyRateLimit + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit hit: %w", err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("rate limit hit: unexpected reply %v", res)
	}

	ttl := time.Duration(res[1]) * time.Millisecond
	if ttl < 0 {
		// key without expiry (should not happen); treat as a full window
		ttl = window
	}
	return res[0], ttl, nil
}
