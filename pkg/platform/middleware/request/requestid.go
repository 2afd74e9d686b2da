package request

import (
	"net/http"

	"github.com/google/uuid"

	"racepass/pkg/requestcontext"
)

const requestIDHeader = "X-Request-ID"

// MaxRequestIDLength caps client-supplied X-Request-ID values.
const MaxRequestIDLength = 128

// RequestID propagates X-Request-ID. A client value made only of letters,
// digits, '.', '_' and '-' is kept; anything else is replaced with a UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if !acceptableRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), id)))
	})
}

func acceptableRequestID(id string) bool {
	if id == "" || len(id) > MaxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		switch c := id[i]; {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
