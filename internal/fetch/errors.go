package fetch

import (
	"errors"
	"fmt"
	"time"
)

// ConnectionError represents a failure to reach the remote host at all:
// DNS errors, refused connections, resets before any response arrived.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed for %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TimeoutError represents a request that exceeded the configured deadline.
type TimeoutError struct {
	URL string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out for %s", e.URL)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// ClientError represents a non-retryable 4xx response (429 excluded).
type ClientError struct {
	URL        string
	StatusCode int
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("client error for %s (HTTP %d)", e.URL, e.StatusCode)
}

// RateLimitError represents an HTTP 429. RetryAfter carries the
// server-supplied delay when present, zero otherwise. Err, when set, wraps
// the backoff library's retry-after marker so the retry loop honors it.
type RateLimitError struct {
	URL        string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited for %s (HTTP 429), retry after %s", e.URL, e.RetryAfter)
	}

	return fmt.Sprintf("rate limited for %s (HTTP 429)", e.URL)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// ServerError represents a retryable 5xx response.
type ServerError struct {
	URL        string
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error for %s (HTTP %d)", e.URL, e.StatusCode)
}

// IsRateLimit reports whether err carries a 429 anywhere in its chain.
// The download queue keys its backoff policy on this.
func IsRateLimit(err error) bool {
	var rl *RateLimitError

	return errors.As(err, &rl)
}
