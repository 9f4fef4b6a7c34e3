package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"geosats/internal/identity"
	dErrors "geosats/pkg/domain-errors"
	"geosats/pkg/platform/httputil"
	"geosats/pkg/requestcontext"
)

// KeyFunc picks the bucket a request counts against.
type KeyFunc func(r *http.Request) string

// CallerKey buckets identified callers by key and anonymous ones by client IP.
func CallerKey(r *http.Request) string {
	ctx := r.Context()
	if who := requestcontext.Identity(ctx); who != "" && who != identity.AnonymousID {
		return "id:" + who
	}
	return "ip:" + requestcontext.ClientIP(ctx)
}

// Limiter enforces limit requests per window for one scope.
type Limiter struct {
	store   Store
	scope   string
	limit   int
	window  time.Duration
	key     KeyFunc
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Limiter)

func WithKeyFunc(fn KeyFunc) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.key = fn
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// New returns a limiter for scope. A non-positive limit disables it.
func New(store Store, scope string, limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		scope:  scope,
		limit:  limit,
		window: window,
		key:    CallerKey,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Middleware rejects requests over the limit with 429. Store failures let the
// request through.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	if l == nil || l.store == nil || l.limit <= 0 || l.window <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := l.scope + ":" + l.key(r)
		res, err := l.store.Allow(ctx, key, l.limit, l.window)
		if err != nil {
			l.logger.ErrorContext(ctx, "rate limit check failed",
				"scope", l.scope,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			l.metrics.observe(l.scope, "error")
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			l.metrics.observe(l.scope, "rejected")
			l.logger.WarnContext(ctx, "rate limit exceeded",
				"scope", l.scope,
				"request_id", requestcontext.RequestID(ctx),
			)
			h.Set("Retry-After", strconv.Itoa(res.RetryAfter(requestcontext.Now(ctx))))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, try again later"))
			return
		}
		l.metrics.observe(l.scope, "allowed")
		next.ServeHTTP(w, r)
	})
}
