package errors

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
)

// Classify maps an error onto the taxonomy. Typed errors are examined first,
// then sentinels, then network conditions and message patterns.
func Classify(err error) ErrorType {
	if err == nil {
		return ""
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Type
	}
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return ErrorTypeRateLimit
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return ErrorTypeValidation
	}

	switch {
	case errors.Is(err, ErrModelUnavailable), errors.Is(err, ErrConfiguration):
		return ErrorTypeConfiguration
	case errors.Is(err, ErrMalformedResponse), errors.Is(err, ErrMalformedMapping):
		return ErrorTypeMalformed
	case errors.Is(err, ErrMissingInput):
		return ErrorTypeMissingInput
	case errors.Is(err, ErrEmptyResponse):
		return ErrorTypeTransient
	case errors.Is(err, ErrCircuitOpen):
		return ErrorTypeProvider
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	}

	if isNetworkError(err) {
		return ErrorTypeNetwork
	}
	return classifyByMessage(err.Error())
}

// IsRetryable reports whether another attempt may succeed. Context
// cancellation is never retryable; a deadline hit inside a single attempt is.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.IsRetryable()
	}
	switch Classify(err) {
	case ErrorTypeTransient, ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeNetwork, ErrorTypeProvider:
		return true
	default:
		return false
	}
}

// IsFatal reports whether the error must abort the whole run rather than a
// single page or question.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoQuestionsProvided) ||
		errors.Is(err, ErrNoExtractableText) ||
		errors.Is(err, ErrUnsupportedDocument) ||
		errors.Is(err, ErrMalformedMapping) {
		return true
	}
	return Classify(err) == ErrorTypeConfiguration
}

func isNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var netErr net.Error
		if errors.As(urlErr.Err, &netErr) && netErr.Timeout() {
			return true
		}
		return hasNetworkIndicator(urlErr.Err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return hasNetworkIndicator(err.Error())
}

var networkIndicators = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"unexpected eof",
}

func hasNetworkIndicator(msg string) bool {
	lowered := strings.ToLower(msg)
	for _, indicator := range networkIndicators {
		if strings.Contains(lowered, indicator) {
			return true
		}
	}
	return false
}

func classifyByMessage(msg string) ErrorType {
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "rate limit"), strings.Contains(lowered, "resource_exhausted"):
		return ErrorTypeRateLimit
	case strings.Contains(lowered, "timeout"), strings.Contains(lowered, "deadline"):
		return ErrorTypeTimeout
	case strings.Contains(lowered, "unavailable"), strings.Contains(lowered, "overloaded"):
		return ErrorTypeProvider
	case strings.Contains(lowered, "api key"), strings.Contains(lowered, "unauthorized"):
		return ErrorTypeAuth
	default:
		return ErrorTypeUnknown
	}
}
