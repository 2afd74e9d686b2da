package auth

import (
	"log/slog"
	"net/http"
	"strings"

	dErrors "racepass/pkg/domain-errors"
	"racepass/pkg/platform/httputil"
	"racepass/pkg/requestcontext"
)

// ScannerValidator validates venue scanner bearer tokens.
type ScannerValidator interface {
	ValidateScannerToken(tokenString string) (*ScannerClaims, error)
}

// ScannerClaims is the part of a scanner token the HTTP layer needs.
type ScannerClaims struct {
	ScannerID string
	Venue     string
	JTI       string
}

// RequireScanner rejects requests without a valid scanner bearer token and
// records the scanner id in the request context.
func RequireScanner(validator ScannerValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized scan - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateScannerToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized scan - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			ctx = requestcontext.WithScanner(ctx, claims.ScannerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
