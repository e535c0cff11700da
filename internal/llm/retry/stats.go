package retry

import "sync/atomic"

// retryStats provides thread-safe retry metrics using atomic operations.
type retryStats struct {
	totalAttempts     atomic.Int64
	successfulRetries atomic.Int64
	nonRetryable      atomic.Int64
	exhausted         atomic.Int64
}

// Stats is a snapshot of retry activity.
type Stats struct {
	// TotalAttempts counts every attempt, first tries included.
	TotalAttempts int64 `json:"total_attempts"`
	// SuccessfulRetries counts calls that succeeded only after a retry.
	SuccessfulRetries int64 `json:"successful_retries"`
	// NonRetryable counts calls stopped early by a permanent error.
	NonRetryable int64 `json:"non_retryable"`
	// Failed counts calls that returned an error.
	Failed int64 `json:"failed"`
}

func (s *retryStats) snapshot() Stats {
	return Stats{
		TotalAttempts:     s.totalAttempts.Load(),
		SuccessfulRetries: s.successfulRetries.Load(),
		NonRetryable:      s.nonRetryable.Load(),
		Failed:            s.exhausted.Load(),
	}
}
