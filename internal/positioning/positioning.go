// Package positioning adapts an external positioning service (device GPS,
// browser geolocation) into one-shot lookups and continuous subscriptions.
//
// Every failure leaving this package is one of ErrPermissionDenied,
// ErrUnavailable, ErrTimeout or ErrUnsupported (possibly wrapped); the caller
// decides whether to retry.
package positioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"geosats/internal/geo"
	dErrors "geosats/pkg/domain-errors"
)

var (
	ErrPermissionDenied = dErrors.New(dErrors.CodeForbidden, "location access denied by user")
	ErrUnavailable      = dErrors.New(dErrors.CodeUnavailable, "location information unavailable")
	ErrTimeout          = dErrors.New(dErrors.CodeTimeout, "location request timed out")
	ErrUnsupported      = dErrors.New(dErrors.CodeUnsupported, "positioning is not supported")
)

// Defaults for one-shot and tracking requests.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultMaxAge      = 60 * time.Second
	DefaultWatchMaxAge = 30 * time.Second
)

// Fix is a single position report.
type Fix struct {
	Coordinate geo.Coordinate `json:"coordinate"`
	AccuracyM  float64        `json:"accuracy_m,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Age of the fix relative to now.
func (f Fix) Age(now time.Time) time.Duration {
	return now.Sub(f.Timestamp)
}

// Update is one element of a subscription stream: either a fix or an error.
type Update struct {
	Fix Fix
	Err error
}

// Source is the external positioning service.
type Source interface {
	// Current returns a fix no older than maxAge, blocking until one is
	// available or ctx is done.
	Current(ctx context.Context, maxAge time.Duration) (Fix, error)
	// Subscribe streams updates until ctx is done, then closes the channel.
	Subscribe(ctx context.Context, maxAge time.Duration) (<-chan Update, error)
}

// Classify maps an arbitrary source error onto the package taxonomy.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrUnsupported):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}
