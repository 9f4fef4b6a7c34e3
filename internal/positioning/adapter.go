package positioning

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"geosats/internal/geo"
)

// Adapter wraps a Source with timeouts, a staleness-bounded cache and
// subscription management.
type Adapter struct {
	source      Source
	timeout     time.Duration
	maxAge      time.Duration
	watchMaxAge time.Duration
	now         func() time.Time
	logger      *slog.Logger

	flight singleflight.Group

	mu   sync.RWMutex
	last *Fix
}

type Option func(*Adapter)

func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithMaxAge bounds how stale a cached fix may be for one-shot lookups.
func WithMaxAge(d time.Duration) Option {
	return func(a *Adapter) {
		if d >= 0 {
			a.maxAge = d
		}
	}
}

// WithWatchMaxAge bounds how stale a fix may be when tracking.
func WithWatchMaxAge(d time.Duration) Option {
	return func(a *Adapter) {
		if d >= 0 {
			a.watchMaxAge = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAdapter builds an adapter. A nil source yields ErrUnsupported from every call.
func NewAdapter(source Source, opts ...Option) *Adapter {
	a := &Adapter{
		source:      source,
		timeout:     DefaultTimeout,
		maxAge:      DefaultMaxAge,
		watchMaxAge: DefaultWatchMaxAge,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CurrentLocation returns the caller's coordinate.
func (a *Adapter) CurrentLocation(ctx context.Context) (geo.Coordinate, error) {
	fix, err := a.CurrentFix(ctx)
	if err != nil {
		return geo.Coordinate{}, err
	}
	return fix.Coordinate, nil
}

// CurrentFix returns a cached fix when it is fresh enough, otherwise queries
// the source. Concurrent lookups share one source query.
func (a *Adapter) CurrentFix(ctx context.Context) (Fix, error) {
	if a.source == nil {
		return Fix{}, ErrUnsupported
	}
	if fix, ok := a.cached(a.maxAge); ok {
		return fix, nil
	}

	ch := a.flight.DoChan("current", func() (any, error) {
		// detached so that one caller giving up does not fail the others
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		fix, err := a.source.Current(qctx, a.maxAge)
		if err != nil {
			return Fix{}, Classify(err)
		}
		a.remember(fix)
		return fix, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			a.logWarn(ctx, "location lookup failed", res.Err)
			return Fix{}, res.Err
		}
		return res.Val.(Fix), nil
	case <-ctx.Done():
		return Fix{}, Classify(ctx.Err())
	}
}

// Watch invokes onFix for every new fix until the subscription is cancelled or
// ctx is done. Stream errors go to onErr when it is non-nil. Fixes older than
// the last delivered one are dropped.
func (a *Adapter) Watch(ctx context.Context, onFix func(Fix), onErr func(error)) (*Subscription, error) {
	if a.source == nil {
		return nil, ErrUnsupported
	}
	sctx, cancel := context.WithCancel(ctx)
	updates, err := a.source.Subscribe(sctx, a.watchMaxAge)
	if err != nil {
		cancel()
		return nil, Classify(err)
	}

	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	go a.deliver(sctx, sub, updates, onFix, onErr)
	return sub, nil
}

func (a *Adapter) deliver(ctx context.Context, sub *Subscription, updates <-chan Update, onFix func(Fix), onErr func(error)) {
	defer close(sub.done)
	var lastSeen time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if sub.stopped.Load() {
				return
			}
			if u.Err != nil {
				err := Classify(u.Err)
				a.logWarn(ctx, "location watch error", err)
				if onErr != nil {
					onErr(err)
				}
				continue
			}
			if u.Fix.Timestamp.Before(lastSeen) {
				continue
			}
			if a.watchMaxAge > 0 && u.Fix.Age(a.now()) > a.watchMaxAge {
				continue
			}
			lastSeen = u.Fix.Timestamp
			a.remember(u.Fix)
			onFix(u.Fix)
		}
	}
}

func (a *Adapter) cached(maxAge time.Duration) (Fix, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last == nil || a.last.Age(a.now()) > maxAge {
		return Fix{}, false
	}
	return *a.last, true
}

func (a *Adapter) remember(fix Fix) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil || !fix.Timestamp.Before(a.last.Timestamp) {
		a.last = &fix
	}
}

func (a *Adapter) logWarn(ctx context.Context, msg string, err error) {
	if a.logger != nil {
		a.logger.WarnContext(ctx, msg, "error", err)
	}
}

// Subscription is the handle returned by Watch.
type Subscription struct {
	cancel  context.CancelFunc
	stopped atomic.Bool
	done    chan struct{}
}

// Cancel stops further callbacks. It is idempotent and does not wait for the
// delivery goroutine, so it may be called from inside a callback.
func (s *Subscription) Cancel() {
	if s.stopped.CompareAndSwap(false, true) {
		s.cancel()
	}
}

// Done is closed once the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}
