package gmail

import (
	"errors"
	"fmt"
	"time"
)

// AuthError indicates the credential was rejected (401, or a 403 that is not
// quota-related). Not retryable; the caller must re-authenticate.
type AuthError struct {
	StatusCode int
	Detail     string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%d): %s", e.StatusCode, e.Detail)
}

// RateLimitError indicates the provider signaled throttling (429, or 403 with
// a quota reason). Retryable after backoff.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// TransientServiceError indicates a 5xx-class failure or a network error.
// Retryable.
type TransientServiceError struct {
	StatusCode int
	Err        error
}

func (e *TransientServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("service error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("service error: %v", e.Err)
}

func (e *TransientServiceError) Unwrap() error { return e.Err }

// ProtocolError indicates a malformed or unexpected response shape.
// Not retryable.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error in %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// NotFoundError indicates a 404 response.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Path)
}

// IsRetryable reports whether the error is worth retrying with backoff.
func IsRetryable(err error) bool {
	var rl *RateLimitError
	var ts *TransientServiceError
	return errors.As(err, &rl) || errors.As(err, &ts)
}
