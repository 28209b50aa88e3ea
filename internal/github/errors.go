package github

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned for 404 responses: the repository or user does
// not exist, or the token cannot see it.
var ErrNotFound = errors.New("github: not found")

// RateLimitedError is returned when the API rejects a request because the
// quota is exhausted (403 with X-RateLimit-Remaining: 0).
type RateLimitedError struct {
	// Wait is how long to hold off before the quota resets. Always >= 1s.
	Wait time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("github: rate limited, retry in %s", e.Wait.Round(time.Second))
}

// APIError covers non-200 responses that are not a 404 or a rate limit.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("github: api error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("github: api error %d", e.Status)
}

// TransportError wraps connection-level failures (DNS, refused, timeout).
type TransportError struct {
	Err     error
	Timeout bool
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("github: request timed out: %v", e.Err)
	}
	return fmt.Sprintf("github: network error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
