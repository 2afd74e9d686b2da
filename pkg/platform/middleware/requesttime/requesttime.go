// Package requesttime pins one "now" per HTTP request so audit entries,
// credential timestamps and expiry checks within a request agree.
package requesttime

import (
	"net/http"
	"time"

	"racepass/pkg/requestcontext"
)

// Middleware pins the request time in UTC at millisecond precision, the
// resolution credentials and tickets carry.
func Middleware(next http.Handler) http.Handler {
	return MiddlewareWithClock(time.Now)(next)
}

// MiddlewareWithClock is Middleware with an injectable clock.
func MiddlewareWithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pinned := now().UTC().Truncate(time.Millisecond)
			ctx := requestcontext.WithTime(r.Context(), pinned)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
