package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// LimitWrites caps state-changing requests at limit per client IP per minute.
// Requests with a safe method (GET, HEAD, OPTIONS) are never counted. A limit
// of zero or less disables the check.
//
// The client IP comes from r.RemoteAddr, so chi's RealIP must run first when
// the server sits behind a proxy.
func LimitWrites(limit int) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	limiter := httprate.LimitByIP(limit, time.Minute)
	return func(next http.Handler) http.Handler {
		limited := limiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
			default:
				limited.ServeHTTP(w, r)
			}
		})
	}
}
