package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/flowmatic/flowmatic/engine/core"
)

// Error codes for model construction.
const (
	ErrCodeUnsupportedProvider = "UNSUPPORTED_PROVIDER"
	ErrCodeMissingCredential   = "MISSING_CREDENTIAL"
	ErrCodeModelCreation       = "MODEL_CREATION_ERROR"
)

// Error is an agent execution failure classified for upstream layers:
// a human-readable message, the provider HTTP status (or a synthetic one),
// and whether a retry layer could reasonably try again.
type Error struct {
	Message    string
	StatusCode int
	Retryable  bool
	cause      error
}

func NewError(message string, statusCode int, retryable bool, cause error) *Error {
	return &Error{
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		cause:      cause,
	}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// IsExecutionError extracts a classified execution error from an error chain.
func IsExecutionError(err error) (*Error, bool) {
	var execErr *Error
	if errors.As(err, &execErr) {
		return execErr, true
	}
	return nil, false
}

// Classify maps any error escaping a provider call onto the execution error
// taxonomy. The messages are operator-facing: they name the fix, not the
// stack trace.
func Classify(err error, provider core.ProviderName) *Error {
	if err == nil {
		return nil
	}
	if execErr, ok := IsExecutionError(err); ok {
		return execErr
	}
	if isTimeout(err) {
		return NewError("AI didn't respond in time.", http.StatusRequestTimeout, true, err)
	}
	if code := extractStatusCode(err.Error()); code > 0 {
		return classifyHTTP(code, err)
	}
	return NewError(
		fmt.Sprintf("Internal Agent Error: %s", err.Error()),
		http.StatusInternalServerError,
		false,
		err,
	)
}

func classifyHTTP(code int, cause error) *Error {
	switch code {
	case http.StatusNotFound:
		return NewError("Model not found. Check your YAML config (provider/model name).", code, false, cause)
	case http.StatusTooManyRequests:
		return NewError("Rate limit exceeded (Quota full). Please try again later.", code, true, cause)
	case http.StatusUnauthorized:
		return NewError("Invalid API Key. Contact Administrator.", code, false, cause)
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		return NewError("AI Provider is currently down.", code, true, cause)
	default:
		return NewError(fmt.Sprintf("AI Provider Error: %s", cause.Error()), code, false, cause)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "deadline exceeded")
}

// statusPrefixes are common shapes provider SDKs use when surfacing HTTP
// failures as flat error strings.
var statusPrefixes = []string{
	"status code: ",
	"status code ",
	"status: ",
	"http ",
	"error ",
	"code ",
}

// extractStatusCode pulls an HTTP status code out of an error message.
// Provider SDKs rarely expose typed HTTP errors, so pattern matching on the
// message is the portable route.
func extractStatusCode(errMsg string) int {
	lower := strings.ToLower(errMsg)
	for _, prefix := range statusPrefixes {
		idx := strings.Index(lower, prefix)
		if idx < 0 {
			continue
		}
		start := idx + len(prefix)
		var digits strings.Builder
		for i := start; i < len(lower) && i < start+3; i++ {
			if lower[i] < '0' || lower[i] > '9' {
				break
			}
			digits.WriteByte(lower[i])
		}
		if digits.Len() == 3 {
			if code, err := strconv.Atoi(digits.String()); err == nil && code >= 100 && code < 600 {
				return code
			}
		}
	}
	// Rate-limit and auth phrasing without an explicit code.
	ratePatterns := []string{"rate limit", "rate-limit", "ratelimit", "too many requests", "quota exceeded", "throttl"}
	for _, p := range ratePatterns {
		if strings.Contains(lower, p) {
			return http.StatusTooManyRequests
		}
	}
	authPatterns := []string{"unauthorized", "invalid api key", "invalid_api_key", "authentication"}
	for _, p := range authPatterns {
		if strings.Contains(lower, p) {
			return http.StatusUnauthorized
		}
	}
	unavailablePatterns := []string{"service unavailable", "temporarily unavailable", "overloaded"}
	for _, p := range unavailablePatterns {
		if strings.Contains(lower, p) {
			return http.StatusServiceUnavailable
		}
	}
	return 0
}
