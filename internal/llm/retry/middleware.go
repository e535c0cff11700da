package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

var (
	errContextCancelledBeforeRetry = errors.New("context cancelled before retry")
	errContextCancelledDuringRetry = errors.New("context cancelled during retry")
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option customizes the middleware.
type Option func(*retryMiddleware)

// WithSleep replaces the backoff wait, letting tests run without real delays.
func WithSleep(fn SleepFunc) Option {
	return func(r *retryMiddleware) { r.sleep = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *retryMiddleware) { r.logger = l }
}

// WithRetryable replaces the retry classification.
func WithRetryable(fn func(error) bool) Option {
	return func(r *retryMiddleware) { r.retryable = fn }
}

// Middleware applies a Policy around a transport.Handler.
type Middleware struct {
	rm *retryMiddleware
}

type retryMiddleware struct {
	policy    Policy
	sleep     SleepFunc
	retryable func(error) bool
	logger    *slog.Logger
	stats     retryStats
}

// New validates the policy and builds the middleware. Failed attempts are
// retried while the error is retryable and attempts remain; the last error is
// returned wrapped with llmerrors.ErrModelCallFailed.
func New(policy Policy, opts ...Option) (*Middleware, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	rm := &retryMiddleware{
		policy:    policy,
		sleep:     sleepContext,
		retryable: llmerrors.IsRetryable,
		logger:    slog.Default().With("component", "retry"),
	}
	for _, opt := range opts {
		opt(rm)
	}
	return &Middleware{rm: rm}, nil
}

// Wrap returns the transport.Middleware form.
func (m *Middleware) Wrap() transport.Middleware {
	return m.rm.middleware()
}

// Stats returns a snapshot of the counters.
func (m *Middleware) Stats() Stats {
	return m.rm.stats.snapshot()
}

func (r *retryMiddleware) middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %w", errContextCancelledBeforeRetry, err)
			}

			var lastErr error
			attempts := 0
			for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
				if delay := r.policy.Delay(attempt); delay > 0 {
					r.logger.Debug("retrying after backoff",
						"attempt", attempt,
						"backoff", delay,
						"operation", req.Operation,
						"label", req.Label,
						"error", lastErr)
					if err := r.sleep(ctx, delay); err != nil {
						return nil, fmt.Errorf("%w: %w", errContextCancelledDuringRetry, err)
					}
				}

				attempts = attempt
				r.stats.totalAttempts.Add(1)
				resp, err := next.Handle(ctx, req)
				if err == nil {
					if attempt > 1 {
						r.stats.successfulRetries.Add(1)
						r.logger.Info("request succeeded after retry",
							"attempt", attempt,
							"operation", req.Operation,
							"label", req.Label)
					}
					return resp, nil
				}
				lastErr = err

				if !r.retryable(err) {
					r.stats.nonRetryable.Add(1)
					r.logger.Debug("non-retryable error",
						"error", err,
						"attempt", attempt,
						"operation", req.Operation)
					break
				}
			}

			r.stats.exhausted.Add(1)
			r.logger.Warn("model call failed",
				"attempts", attempts,
				"operation", req.Operation,
				"label", req.Label,
				"error", lastErr)
			return nil, fmt.Errorf("%w after %d attempts: %w", llmerrors.ErrModelCallFailed, attempts, lastErr)
		})
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
