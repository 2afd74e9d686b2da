package request

import (
	"net/http"

	dErrors "racepass/pkg/domain-errors"
	"racepass/pkg/platform/httputil"
)

// BodyLimit caps request bodies at maxBytes. A declared Content-Length over
// the cap is rejected with 413 before the handler runs; undeclared bodies are
// wrapped in http.MaxBytesReader so decoding fails once the cap is crossed.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, httputil.ErrorResponse{
					Error:            "request_too_large",
					Kind:             string(dErrors.KindValidation),
					ErrorDescription: "request body too large",
				})
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
