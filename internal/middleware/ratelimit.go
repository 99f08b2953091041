package middleware

import (
	"net"
	"net/http"

	"pollstream/internal/ratelimit"
	"pollstream/pkg/errors"
	"pollstream/pkg/logger"
)

// RateLimit creates a middleware throttling requests under the given
// policy, keyed by the caller's network address. Chi's RealIP middleware
// must run earlier so RemoteAddr reflects the forwarded client.
func RateLimit(limiter ratelimit.Limiter, policy ratelimit.Policy, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := clientAddress(r)

			decision, err := limiter.Allow(r.Context(), policy, identity)
			if err != nil {
				// A broken limiter must not take the service down with it
				log.WithError(err).Warn("Rate limit check failed, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				WriteError(w, errors.NewRateLimitError("too many requests", decision.RetryAfter), log)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientAddress strips the port from RemoteAddr
func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
