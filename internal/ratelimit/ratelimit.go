// Package ratelimit bounds how often a caller may hit an endpoint using a
// sliding window. Claim submissions are limited per hunter so puzzle answers
// cannot be brute forced.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Result reports the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until a slot frees up.
func (r Result) RetryAfter(now time.Time) int {
	if r.Allowed || !r.ResetAt.After(now) {
		return 0
	}
	return int(math.Ceil(r.ResetAt.Sub(now).Seconds()))
}

// Store counts requests per key within a window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}
