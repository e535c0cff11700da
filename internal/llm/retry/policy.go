// Package retry implements the gateway retry policy as data plus the
// middleware that applies it around each model call.
package retry

import (
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/go-grader/internal/llm/configuration"
)

var (
	errMaxAttemptsInvalid = errors.New("maxAttempts must be greater than 0")
	errBackoffInvalid     = errors.New("backoff must be >= 0")
)

// Policy describes how many times a call is attempted and how long to wait
// between attempts. The wait is fixed and carries no jitter.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultPolicy returns three attempts one second apart.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: configuration.DefaultMaxAttempts,
		Backoff:     configuration.DefaultBackoff,
	}
}

// PolicyFromConfig converts the configuration section into a Policy.
func PolicyFromConfig(cfg configuration.RetryConfig) Policy {
	return Policy{MaxAttempts: cfg.MaxAttempts, Backoff: cfg.Backoff}
}

// Validate rejects policies that would never attempt a call.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("%w, got %d", errMaxAttemptsInvalid, p.MaxAttempts)
	}
	if p.Backoff < 0 {
		return fmt.Errorf("%w, got %v", errBackoffInvalid, p.Backoff)
	}
	return nil
}

// Delay returns the wait before the given retry. Attempt numbers start at 1;
// no wait precedes the first attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return p.Backoff
}
