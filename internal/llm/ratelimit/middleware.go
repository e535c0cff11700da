// Package ratelimit gates dispatch to the model service. A local token bucket
// serializes callers in this process; an optional Redis fixed window extends
// the limit across processes. Callers block until their turn instead of being
// rejected, and a Redis outage degrades to local-only limiting.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-grader/internal/llm/configuration"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

// Redis connection settings for the global limiter.
const (
	RedisDialTimeout  = 2 * time.Second
	RedisReadTimeout  = 2 * time.Second
	RedisWriteTimeout = 2 * time.Second
	RedisPoolSize     = 10
)

// Gate is the blocking dispatch gate shared by every concurrent caller of the
// gateway.
type Gate struct {
	local      *rate.Limiter
	global     *globalLimiter
	ownsClient *redis.Client
	logger     *slog.Logger
	stats      gateStats
}

// Option customizes a Gate.
type Option func(*Gate)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = l
		if g.global != nil {
			g.global.logger = l
		}
	}
}

// WithWindowCounter replaces the Redis window counter; used by tests and by
// callers that share a counter implementation.
func WithWindowCounter(c WindowCounter, limit int, key string) Option {
	return func(g *Gate) {
		g.global = newGlobalLimiter(c, limit, key, g.logger)
	}
}

// New builds a Gate from configuration. When the global limiter is enabled
// and client is nil, a client is created from the configuration and closed by
// Close.
func New(cfg configuration.RateLimitConfig, client *redis.Client, opts ...Option) (*Gate, error) {
	if cfg.Local.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("requests per second must be positive, got %v", cfg.Local.RequestsPerSecond)
	}
	burst := max(cfg.Local.Burst, 1)

	g := &Gate{
		local:  rate.NewLimiter(rate.Limit(cfg.Local.RequestsPerSecond), burst),
		logger: slog.Default().With("component", "ratelimit"),
	}

	if cfg.Global.Enabled && cfg.Global.RequestsPerSecond > 0 {
		if client == nil {
			client = redis.NewClient(&redis.Options{
				Addr:         cfg.Global.RedisAddr,
				Password:     cfg.Global.RedisPassword,
				DB:           cfg.Global.RedisDB,
				DialTimeout:  RedisDialTimeout,
				ReadTimeout:  RedisReadTimeout,
				WriteTimeout: RedisWriteTimeout,
				PoolSize:     RedisPoolSize,
			})
			g.ownsClient = client
		}
		key := cfg.Global.Key
		if key == "" {
			key = configuration.DefaultGlobalKey
		}
		g.global = newGlobalLimiter(NewRedisWindowCounter(client), cfg.Global.RequestsPerSecond, key, g.logger)
	}

	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Wait blocks until the caller may dispatch one request or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	start := time.Now()
	if err := g.local.Wait(ctx); err != nil {
		return fmt.Errorf("local rate gate: %w", err)
	}
	if g.global != nil {
		if err := g.global.wait(ctx, &g.stats); err != nil {
			return fmt.Errorf("global rate gate: %w", err)
		}
	}
	g.stats.record(time.Since(start))
	return nil
}

// Middleware gates every attempt that passes through it.
func (g *Gate) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if err := g.Wait(ctx); err != nil {
				return nil, err
			}
			return next.Handle(ctx, req)
		})
	}
}

// Stats returns a snapshot of gate activity.
func (g *Gate) Stats() Stats {
	s := g.stats.snapshot()
	if g.global != nil {
		s.Degraded = g.global.degraded.Load()
	}
	return s
}

// Close releases the Redis client created by New.
func (g *Gate) Close() error {
	if g.ownsClient != nil {
		return g.ownsClient.Close()
	}
	return nil
}
