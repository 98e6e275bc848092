package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode classifies an LLM call failure. Codes decide retryability: the
// client retries transient failures and fails fast on everything else.
type ErrorCode string

const (
	ErrProviderUnavailable  ErrorCode = "LLM_PROVIDER_UNAVAILABLE"
	ErrProviderUnauthorized ErrorCode = "LLM_PROVIDER_UNAUTHORIZED"
	ErrRateLimited          ErrorCode = "LLM_RATE_LIMITED"
	ErrInvalidRequest       ErrorCode = "LLM_INVALID_REQUEST"
	ErrContentFiltered      ErrorCode = "LLM_CONTENT_FILTERED"
	ErrContextExceeded      ErrorCode = "LLM_CONTEXT_EXCEEDED"
	ErrTimeout              ErrorCode = "LLM_TIMEOUT"
	ErrNetwork              ErrorCode = "LLM_NETWORK_FAILED"
	ErrResponseMalformed    ErrorCode = "LLM_RESPONSE_MALFORMED"
	ErrNoProviders          ErrorCode = "LLM_NO_PROVIDERS"
	ErrAllProvidersFailed   ErrorCode = "LLM_ALL_PROVIDERS_FAILED"
)

// Error is a classified LLM failure carrying the provider that produced it.
type Error struct {
	Code     ErrorCode
	Provider string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(code ErrorCode, provider, msg string, cause error) *Error {
	return &Error{Code: code, Provider: provider, Message: msg, Cause: cause}
}

// IsRetryable reports whether err is transient and may succeed on retry.
func IsRetryable(err error) bool {
	var lerr *Error
	if !errors.As(err, &lerr) {
		return false
	}
	switch lerr.Code {
	case ErrNetwork, ErrTimeout, ErrRateLimited, ErrProviderUnavailable:
		return true
	default:
		return false
	}
}

// CodeOf extracts the error code, or "" when err is not an llm.Error.
func CodeOf(err error) ErrorCode {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Code
	}
	return ""
}

// classifyStatus maps a provider HTTP status to an error code. The response
// body disambiguates content-filter rejections, which providers report as a
// generic 4xx with a filter marker in the error payload.
func classifyStatus(status int, body []byte) ErrorCode {
	if status >= 400 && status < 500 && isContentFilterBody(body) {
		return ErrContentFiltered
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrProviderUnauthorized
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusRequestEntityTooLarge:
		return ErrContextExceeded
	case status >= 500:
		return ErrProviderUnavailable
	case status >= 400:
		return ErrInvalidRequest
	default:
		return ErrProviderUnavailable
	}
}

// isContentFilterBody detects provider content-policy rejections: OpenAI and
// Azure report code "content_filter", Anthropic "content_policy".
func isContentFilterBody(body []byte) bool {
	s := string(body)
	return strings.Contains(s, "content_filter") || strings.Contains(s, "content_policy")
}
