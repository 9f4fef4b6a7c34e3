package middleware

import (
	"log/slog"
	"net/http"

	"geosats/internal/identity"
	"geosats/pkg/platform/httputil"
	"geosats/pkg/requestcontext"
)

// IdentityHeader carries the caller's hex public key. Absent means anonymous.
const IdentityHeader = "X-Identity-Pubkey"

// ResolveIdentity stores the caller's identifier in the request context. A
// malformed key is rejected; a missing one resolves to the anonymous identity.
func ResolveIdentity(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			provider, err := identity.FromHeader(r.Header.Get(IdentityHeader))
			if err != nil {
				logger.WarnContext(ctx, "rejected identity header",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}
			who, err := provider.Identify(ctx)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithIdentity(ctx, who)))
		})
	}
}
