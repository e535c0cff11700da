package activity

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
)

// ErrActivityValidation is returned when activity input is structurally
// invalid. It is never retried.
var ErrActivityValidation = errors.New("activity input validation failed")

// nonRetryable wraps an error as a Temporal non-retryable application error.
// The tag names the failing activity.
func nonRetryable(tag string, cause error, msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, tag, cause)
}

// retryable wraps an error as a Temporal application error that the
// workflow's retry policy may retry.
func retryable(tag string, cause error, msg string) error {
	return temporal.NewApplicationError(msg, tag, cause)
}

// stageFailure converts a stage error. Document-level and configuration
// failures fail the workflow at once; anything else is left to the retry
// policy, since the gateway already spent its own attempts.
func stageFailure(tag string, err error, msg string) error {
	if llmerrors.IsFatal(err) || errors.Is(err, context.Canceled) {
		return nonRetryable(tag, err, msg)
	}
	return retryable(tag, err, msg)
}
