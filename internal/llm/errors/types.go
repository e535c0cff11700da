// Package errors defines the failure taxonomy of the grading pipeline and the
// classification helpers the gateway and stages use to decide between
// retrying, degrading a single item and aborting a run.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType categorizes pipeline failures for retry and propagation decisions.
type ErrorType string

const (
	// ErrorTypeTransient covers service hiccups worth retrying (5xx, empty bodies).
	ErrorTypeTransient ErrorType = "transient_service"

	// ErrorTypeMalformed indicates model output whose JSON could not be located or parsed.
	ErrorTypeMalformed ErrorType = "malformed_response"

	// ErrorTypeMissingInput indicates an empty question or answer; resolved locally.
	ErrorTypeMissingInput ErrorType = "missing_input"

	// ErrorTypeConfiguration indicates absent credentials or an unusable setup (fatal).
	ErrorTypeConfiguration ErrorType = "configuration"

	// ErrorTypeRateLimit indicates the service rejected the call for rate (retryable).
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeTimeout indicates request timeout or deadline exceeded (retryable).
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeNetwork indicates network connectivity issues (retryable).
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeProvider indicates the provider is unavailable (retryable).
	ErrorTypeProvider ErrorType = "provider_unavailable"

	// ErrorTypeAuth indicates authentication failed (non-retryable).
	ErrorTypeAuth ErrorType = "authentication"

	// ErrorTypePermission indicates insufficient permissions (non-retryable).
	ErrorTypePermission ErrorType = "permission_denied"

	// ErrorTypeQuota indicates account quota exceeded (non-retryable).
	ErrorTypeQuota ErrorType = "quota_exceeded"

	// ErrorTypeValidation indicates the request was rejected as invalid (non-retryable).
	ErrorTypeValidation ErrorType = "validation_failed"

	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = "unknown"
)

// Pipeline errors.
var (
	// ErrModelUnavailable indicates no credential or client is configured.
	ErrModelUnavailable = errors.New("model unavailable: no credential configured")

	// ErrModelCallFailed indicates the call failed after exhausting the retry policy.
	ErrModelCallFailed = errors.New("model call failed")

	// ErrCircuitOpen indicates the gateway is failing calls fast after
	// repeated model failures.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrEmptyResponse indicates a response with no candidates, no parts or non-text parts.
	ErrEmptyResponse = errors.New("empty model response")

	// ErrMalformedResponse indicates no parseable JSON value in the model output.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrConfiguration indicates a fatal configuration problem detected at run start.
	ErrConfiguration = errors.New("configuration error")

	// ErrNoQuestionsProvided indicates alignment was requested without a question set.
	ErrNoQuestionsProvided = errors.New("no questions provided")

	// ErrMalformedMapping indicates the alignment response lacked a complete mapping object.
	ErrMalformedMapping = errors.New("malformed answer mapping")

	// ErrMissingInput indicates an empty question or answer.
	ErrMissingInput = errors.New("missing question or answer text")

	// ErrNoExtractableText indicates a document produced no usable page text.
	ErrNoExtractableText = errors.New("no extractable text")

	// ErrUnsupportedDocument indicates a document type extraction cannot handle.
	ErrUnsupportedDocument = errors.New("unsupported document type")
)

// ProviderError captures structured error responses from the model service.
type ProviderError struct {
	Provider   string    `json:"provider"`
	StatusCode int       `json:"status_code"`
	Message    string    `json:"message"`
	Code       string    `json:"code"`
	Type       ErrorType `json:"type"`
	RetryAfter int       `json:"retry_after"` // seconds
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable reports whether the failure is transient.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeProvider, ErrorTypeTransient:
		return true
	default:
		return false
	}
}

// GetRetryAfter returns the server-suggested wait, or zero.
func (e *ProviderError) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Second
	}
	return 0
}

// RateLimitError reports a denial from the local or global rate gate.
type RateLimitError struct {
	Scope      string `json:"scope"` // "local" or "global"
	RetryAfter int    `json:"retry_after"`
	Limit      int    `json:"limit"`
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limit exceeded, retry after %d seconds", e.Scope, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limit exceeded", e.Scope)
}

// ValidationError captures input validation failures with field context.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ResponseError wraps a malformed or empty response with the operation that
// produced it and a truncated excerpt of the raw output.
type ResponseError struct {
	Op      string
	Excerpt string
	Err     error
}

func (e *ResponseError) Error() string {
	if e.Excerpt == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v (response: %q)", e.Op, e.Err, e.Excerpt)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// Excerpt truncates raw model output for error messages and logs.
func Excerpt(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
