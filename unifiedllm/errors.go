package unifiedllm

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies a provider failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidRequest
	KindAuthentication
	KindAccessDenied
	KindNotFound
	KindContextLength
	KindContentFilter
	KindRateLimit
	KindServer
	KindTimeout
)

var kindNames = map[ErrorKind]string{
	KindUnknown:        "unknown",
	KindInvalidRequest: "invalid_request",
	KindAuthentication: "authentication",
	KindAccessDenied:   "access_denied",
	KindNotFound:       "not_found",
	KindContextLength:  "context_length",
	KindContentFilter:  "content_filter",
	KindRateLimit:      "rate_limit",
	KindServer:         "server",
	KindTimeout:        "timeout",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Retryable reports whether a request failing with k may succeed if sent
// again unchanged. Unclassified failures are retried.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimit, KindServer, KindTimeout, KindUnknown:
		return true
	}
	return false
}

// KindFromStatus maps an HTTP status code to a kind.
func KindFromStatus(status int) ErrorKind {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindInvalidRequest
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindAccessDenied
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusRequestTimeout:
		return KindTimeout
	case status == http.StatusRequestEntityTooLarge:
		return KindContextLength
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500 && status <= 504:
		return KindServer
	}
	return KindUnknown
}

// ProviderError is a failure reported by, or attributed to, a provider.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int    // 0 when the failure carried no HTTP status
	Code       string // provider-specific error code, if any
	Message    string
	RetryAfter time.Duration // server-requested backoff, 0 if none
	Cause      error
}

// NewProviderError builds a ProviderError classified by status.
func NewProviderError(provider string, status int, code, message string) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Kind:       KindFromStatus(status),
		StatusCode: status,
		Code:       code,
		Message:    message,
	}
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// retryAfter parses a Retry-After header given in seconds or as an HTTP
// date. Unparseable or past values yield 0.
func retryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(header, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// ConfigurationError reports a client or adapter that cannot serve a
// request as configured.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// AbortError reports a request or stream ended by its context.
type AbortError struct {
	Message string
	Cause   error
}

func (e *AbortError) Error() string { return fmt.Sprintf("%s: %v", e.Message, e.Cause) }
func (e *AbortError) Unwrap() error { return e.Cause }

// NetworkError reports a transport failure with no provider response.
type NetworkError struct {
	Message string
	Cause   error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: %v", e.Message, e.Cause) }
func (e *NetworkError) Unwrap() error { return e.Cause }

// IsRetryable reports whether err, or any error it wraps, is worth
// retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind.Retryable()
	}
	var cfg *ConfigurationError
	var abort *AbortError
	if errors.As(err, &cfg) || errors.As(err, &abort) {
		return false
	}
	return true
}

// KindOf returns the kind of the first ProviderError in err's chain.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}
