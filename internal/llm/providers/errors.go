package providers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
)

// ServerErrorStatusThreshold defines the HTTP status code threshold for server errors.
const ServerErrorStatusThreshold = 500

// classifyErrorType determines ErrorType from HTTP status and provider error codes.
// Provider status strings take precedence over the HTTP status.
func classifyErrorType(statusCode int, errorCode string) llmerrors.ErrorType {
	lowerCode := strings.ToLower(errorCode)
	switch {
	case strings.Contains(lowerCode, "resource_exhausted"):
		// Gemini reports both per-minute limits and exhausted quota this way;
		// the status code separates them below.
		if statusCode == http.StatusTooManyRequests {
			return llmerrors.ErrorTypeRateLimit
		}
		return llmerrors.ErrorTypeQuota
	case strings.Contains(lowerCode, "unauthenticated"):
		return llmerrors.ErrorTypeAuth
	case strings.Contains(lowerCode, "permission"):
		return llmerrors.ErrorTypePermission
	case strings.Contains(lowerCode, "deadline"):
		return llmerrors.ErrorTypeTimeout
	case strings.Contains(lowerCode, "unavailable"):
		return llmerrors.ErrorTypeProvider
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return llmerrors.ErrorTypeRateLimit
	case http.StatusUnauthorized:
		return llmerrors.ErrorTypeAuth
	case http.StatusForbidden:
		return llmerrors.ErrorTypePermission
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return llmerrors.ErrorTypeTimeout
	case http.StatusBadRequest, http.StatusNotFound:
		return llmerrors.ErrorTypeValidation
	default:
		if statusCode >= ServerErrorStatusThreshold {
			return llmerrors.ErrorTypeProvider
		}
		return llmerrors.ErrorTypeUnknown
	}
}

// parseGoogleError converts a non-200 Gemini response into a ProviderError.
func parseGoogleError(statusCode int, header http.Header, body []byte) error {
	pe := &llmerrors.ProviderError{
		Provider:   ProviderGoogle,
		StatusCode: statusCode,
		Message:    llmerrors.Excerpt(string(body), maxErrorBody),
	}
	if ra, err := strconv.Atoi(header.Get("Retry-After")); err == nil && ra > 0 {
		pe.RetryAfter = ra
	}

	var errResp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		pe.Message = errResp.Error.Message
		pe.Code = errResp.Error.Status
	}
	pe.Type = classifyErrorType(statusCode, pe.Code)
	return pe
}
