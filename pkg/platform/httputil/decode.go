package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "racepass/pkg/domain-errors"
	"racepass/pkg/requestcontext"
)

// Normalizable request types trim and canonicalize fields before validation.
type Normalizable interface {
	Normalize()
}

// Validatable request types check their own fields.
type Validatable interface {
	Validate() error
}

// DecodeJSON reads the request body into a T. On failure it writes a
// bad_request response and returns false; callers simply return.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		derr := decodeError(err)
		logger.WarnContext(r.Context(), "failed to decode request body",
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		WriteError(w, derr)
		return nil, false
	}
	return &req, true
}

func decodeError(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return dErrors.New(dErrors.CodeBadRequest, "request body too large")
	case errors.Is(err, io.EOF):
		return dErrors.New(dErrors.CodeBadRequest, "request body is empty")
	default:
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
}

// Prepare normalizes then validates req. Plain validation errors become
// CodeValidation; domain errors keep their code.
func Prepare(req any) error {
	if n, ok := req.(Normalizable); ok {
		n.Normalize()
	}
	v, ok := req.(Validatable)
	if !ok {
		return nil
	}
	err := v.Validate()
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.New(dErrors.CodeValidation, err.Error())
}

// DecodeAndPrepare is DecodeJSON followed by Prepare.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	req, ok := DecodeJSON[T](w, r, logger)
	if !ok {
		return nil, false
	}
	if err := Prepare(req); err != nil {
		logger.WarnContext(r.Context(), "invalid request",
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
