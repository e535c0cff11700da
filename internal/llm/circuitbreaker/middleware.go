package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

// Middleware rejects calls with llmerrors.ErrCircuitOpen while the breaker is
// open. Only service failures count against it: cancellation, invalid
// requests and unparseable output do not.
func (b *Breaker) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			release, ok := b.allow()
			if !ok {
				b.logger.Debug("call rejected", "operation", req.Operation, "label", req.Label)
				return nil, fmt.Errorf("%w: %w", llmerrors.ErrModelCallFailed, llmerrors.ErrCircuitOpen)
			}
			defer release()

			resp, err := next.Handle(ctx, req)
			switch {
			case err == nil:
				b.recordSuccess()
			case countsAsFailure(err):
				b.recordFailure()
			}
			return resp, err
		})
	}
}

func countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, llmerrors.ErrModelCallFailed) || llmerrors.IsRetryable(err)
}

type breakerStats struct {
	allowed     atomic.Int64
	rejected    atomic.Int64
	probes      atomic.Int64
	transitions atomic.Int64
}

// Stats is a snapshot of breaker activity.
type Stats struct {
	State       string `json:"state"`
	Allowed     int64  `json:"allowed"`
	Rejected    int64  `json:"rejected"`
	Probes      int64  `json:"probes"`
	Transitions int64  `json:"transitions"`
}

// Stats reports the current state and counters.
func (b *Breaker) Stats() Stats {
	return Stats{
		State:       b.State().String(),
		Allowed:     b.stats.allowed.Load(),
		Rejected:    b.stats.rejected.Load(),
		Probes:      b.stats.probes.Load(),
		Transitions: b.stats.transitions.Load(),
	}
}
