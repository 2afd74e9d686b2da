package request

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"racepass/pkg/requestcontext"
)

// AccessLog logs each request and, when m is non-nil, observes its latency.
// Successful health probes are not logged.
func AccessLog(logger *slog.Logger, m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			if m != nil {
				m.Observe(r, status, elapsed)
			}
			if strings.HasPrefix(r.URL.Path, "/health") && status < http.StatusInternalServerError {
				return
			}

			ctx := r.Context()
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(ctx, level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", elapsed.Milliseconds(),
				"request_id", requestcontext.RequestID(ctx),
				"remote_addr_prefix", maskIP(requestcontext.ClientIP(ctx)),
			)
		})
	}
}

// Timeout bounds handler execution. A handler still running at the deadline
// is answered with 503 and a JSON error body.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	const body = `{"error":"timeout","kind":"internal","error_description":"request timed out"}`
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, body)
	}
}
