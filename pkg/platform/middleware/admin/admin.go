package admin

import (
	"context"
	"log/slog"
	"net/http"

	dErrors "racepass/pkg/domain-errors"
	"racepass/pkg/platform/httputil"
	"racepass/pkg/requestcontext"
	"racepass/pkg/secrets"
)

type contextKeyAdminActorID struct{}

// ContextKeyAdminActorID is exported for use in handlers and tests.
var ContextKeyAdminActorID = contextKeyAdminActorID{}

// GetAdminActorID returns the X-Admin-Actor-ID captured for audit
// attribution, or "" outside admin requests.
func GetAdminActorID(ctx context.Context) string {
	if actorID, ok := ctx.Value(ContextKeyAdminActorID).(string); ok {
		return actorID
	}
	return ""
}

// RequireAdminToken checks X-Admin-Token against a bcrypt hash produced by
// secrets.Hash. The plaintext token is never held by the middleware.
func RequireAdminToken(tokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := r.Header.Get("X-Admin-Token")
			if token == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}
			if err := secrets.Verify(token, tokenHash); err != nil {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				if !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
					httputil.WriteError(w, err)
					return
				}
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}

			if actorID := r.Header.Get("X-Admin-Actor-ID"); actorID != "" {
				ctx = context.WithValue(ctx, ContextKeyAdminActorID, actorID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
