package github

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	logx "ghtrack/pkg/logx"
)

// waitThreshold is how low the remaining quota may drop before callers are
// held back until the reset. Keeping a small reserve leaves headroom for
// interactive commands while the pollers sleep.
const waitThreshold = 5

// Quota is a point-in-time copy of the shared rate-limit state.
type Quota struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Known is false until the first response has been observed.
	Known bool
}

// RateLimiter tracks the account-wide quota across every poller and
// command. All requests that share a token share one limiter.
type RateLimiter struct {
	mu        sync.Mutex
	limit     int
	remaining int
	resetAt   time.Time
	known     bool

	log logx.Logger
	now func() time.Time
}

func NewRateLimiter(log logx.Logger) *RateLimiter {
	return &RateLimiter{log: log, now: time.Now}
}

// Update ingests the X-RateLimit-* headers from a response. It is called
// for every response regardless of status code, since GitHub reports the
// quota on errors too.
func (r *RateLimiter) Update(h http.Header) {
	limit, okL := headerInt(h, "X-RateLimit-Limit")
	remaining, okR := headerInt(h, "X-RateLimit-Remaining")
	reset, okT := headerInt(h, "X-RateLimit-Reset")
	if !okL && !okR && !okT {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if okL {
		r.limit = limit
	}
	if okR {
		r.remaining = remaining
	}
	if okT {
		r.resetAt = time.Unix(int64(reset), 0)
	}
	r.known = r.known || okR
}

// CheckAndWait blocks until the quota allows another request or ctx is
// done. With plenty of quota (or before the first response) it returns
// immediately.
func (r *RateLimiter) CheckAndWait(ctx context.Context) error {
	wait := r.delay()
	if wait <= 0 {
		return nil
	}

	if !r.log.IsZero() {
		r.log.Warn("rate limit low; pausing requests", logx.Duration("wait", wait))
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// delay computes how long the next request should be held back.
func (r *RateLimiter) delay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.known || r.remaining >= waitThreshold {
		return 0
	}
	wait := r.resetAt.Sub(r.now()) + time.Second
	if wait < 0 {
		return 0
	}
	return wait
}

// Snapshot returns the current quota for status display.
func (r *RateLimiter) Snapshot() Quota {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Quota{Limit: r.limit, Remaining: r.remaining, ResetAt: r.resetAt, Known: r.known}
}

// backoffFor sizes the wait carried by a RateLimitedError: time until the
// reset plus a second of slack, never less than a second.
func (r *RateLimiter) backoffFor() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	wait := r.resetAt.Sub(r.now()) + time.Second
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}

func headerInt(h http.Header, key string) (int, bool) {
	v := h.Get(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
