package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	windowMs = 1000

	// minGlobalWait keeps denied callers from spinning on a nearly expired window.
	minGlobalWait = 10 * time.Millisecond

	// degradedProbeInterval is how long the limiter stays local-only after a
	// Redis failure before trying Redis again.
	degradedProbeInterval = 30 * time.Second
)

// WindowCounter counts hits in a fixed window shared across processes.
// Hit returns whether the call is admitted and, when it is not, how long until
// the window resets.
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration, limit int) (allowed bool, wait time.Duration, err error)
}

// fixedWindowScript counts requests in a window keyed by KEYS[1]; it returns
// {1, remaining} when admitted and {0, pttl} when the window is full.
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])

local current = redis.call('GET', key)
if current == false then
	redis.call('SET', key, 1, 'PX', window)
	return {1, limit - 1}
end

local count = tonumber(current)
if count < limit then
	local newCount = redis.call('INCR', key)
	if redis.call('PTTL', key) == -1 then
		redis.call('PEXPIRE', key, window)
	end
	return {1, limit - newCount}
end

return {0, redis.call('PTTL', key)}
`)

// RedisWindowCounter implements WindowCounter with an atomic Lua script.
type RedisWindowCounter struct {
	client redis.Scripter
}

// NewRedisWindowCounter wraps a Redis client.
func NewRedisWindowCounter(client redis.Scripter) *RedisWindowCounter {
	return &RedisWindowCounter{client: client}
}

// Hit implements WindowCounter.
func (c *RedisWindowCounter) Hit(ctx context.Context, key string, window time.Duration, limit int) (bool, time.Duration, error) {
	result, err := fixedWindowScript.Run(ctx, c.client, []string{"rl:global:" + key},
		window.Milliseconds(), limit).Result()
	if err != nil {
		return false, 0, fmt.Errorf("global rate limit check failed: %w", err)
	}

	res, ok := result.([]any)
	if !ok || len(res) < 2 {
		return false, 0, fmt.Errorf("unexpected script result %v", result)
	}
	allowed, ok := res[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected admitted flag %v", res[0])
	}
	if allowed == 1 {
		return true, 0, nil
	}
	ttl, _ := res[1].(int64)
	return false, time.Duration(ttl) * time.Millisecond, nil
}

type globalLimiter struct {
	counter WindowCounter
	limit   int
	key     string
	logger  *slog.Logger

	degraded      atomic.Bool
	degradedUntil atomic.Int64 // unix nanos
}

func newGlobalLimiter(counter WindowCounter, limit int, key string, logger *slog.Logger) *globalLimiter {
	return &globalLimiter{counter: counter, limit: limit, key: key, logger: logger}
}

// wait blocks until the shared window admits the caller. Counter failures put
// the limiter in degraded mode and admit the caller.
func (l *globalLimiter) wait(ctx context.Context, stats *gateStats) error {
	for {
		if l.degraded.Load() && time.Now().UnixNano() < l.degradedUntil.Load() {
			return nil
		}

		allowed, wait, err := l.counter.Hit(ctx, l.key, windowMs*time.Millisecond, l.limit)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !l.degraded.Swap(true) {
				l.logger.Warn("Redis error, switching to degraded mode", "error", err)
			}
			l.degradedUntil.Store(time.Now().Add(degradedProbeInterval).UnixNano())
			return nil
		}
		if l.degraded.Swap(false) {
			l.logger.Info("Redis recovered, leaving degraded mode")
		}
		if allowed {
			return nil
		}

		stats.globalDenials.Add(1)
		wait = max(wait, minGlobalWait)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
