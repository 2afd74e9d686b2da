package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "racepass/pkg/domain-errors"
)

// ErrorResponse is the wire form of the (kind, code, message) error triple.
type ErrorResponse struct {
	Error            string `json:"error"`
	Kind             string `json:"kind"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError translates domain errors to HTTP responses. Anything without a
// domain code is reported as internal_error with no description.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		response := ErrorResponse{
			Error: string(domainErr.Code),
			Kind:  string(domainErr.Code.Kind()),
		}
		if domainErr.Code != dErrors.CodeInternal {
			response.ErrorDescription = domainErr.Message
		}
		WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), response)
		return
	}

	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: string(dErrors.CodeInternal),
		Kind:  string(dErrors.KindInternal),
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeNotFound, dErrors.CodeInvalidTicket, dErrors.CodeNoCredential:
		return http.StatusNotFound
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeNotInitialized:
		return http.StatusServiceUnavailable
	case dErrors.CodeSignatureMismatch, dErrors.CodeBadCommitment:
		return http.StatusUnprocessableEntity
	}

	switch code.Kind() {
	case dErrors.KindValidation:
		return http.StatusBadRequest
	case dErrors.KindFlow:
		return http.StatusConflict
	case dErrors.KindPolicy:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
