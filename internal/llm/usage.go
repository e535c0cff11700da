package llm

import (
	"context"
	"sync/atomic"

	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

// UsageMeter accumulates model traffic for one run. The zero value is ready
// to use and safe for concurrent updates.
type UsageMeter struct {
	requests     atomic.Int64
	inputTokens  atomic.Int64
	outputTokens atomic.Int64
}

// Record counts one successful call.
func (m *UsageMeter) Record(u transport.Usage) {
	m.requests.Add(1)
	m.inputTokens.Add(u.InputTokens)
	m.outputTokens.Add(u.OutputTokens)
}

// Snapshot returns the current counters.
func (m *UsageMeter) Snapshot() domain.UsageStats {
	return domain.UsageStats{
		APIRequests:  m.requests.Load(),
		InputTokens:  m.inputTokens.Load(),
		OutputTokens: m.outputTokens.Load(),
	}
}

// Metered wraps a Completer so every successful call is recorded on meter.
// Failed calls, including those that exhausted their retries, are not counted.
func Metered(c Completer, meter *UsageMeter) Completer {
	return CompleterFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		resp, err := c.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		meter.Record(resp.Usage)
		return resp, nil
	})
}
