package domainerrors

import "errors"

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in business logic terms, not HTTP terms.
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeValidation   Code = "validation_failed"
	CodeInternal     Code = "internal_error"
	CodeConflict     Code = "conflict"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"

	// Application validation
	CodeInvalidSubject Code = "invalid_subject"
	CodeInvalidName    Code = "invalid_name"
	CodeInvalidDob     Code = "invalid_dob"
	CodeInvalidID      Code = "invalid_id"
	CodeInvalidAge     Code = "invalid_age"
	CodeUnknownClaim   Code = "unknown_claim"

	// Flow
	CodeDuplicateSubject  Code = "duplicate_subject"
	CodeAlreadyRegistered Code = "already_registered"
	CodeEventFull         Code = "event_full"
	CodeAlreadyUsed       Code = "already_used"
	CodeInvalidTicket     Code = "invalid_ticket"

	// Policy
	CodeRateLimited   Code = "rate_limited"
	CodeRevoked       Code = "revoked"
	CodeExpired       Code = "expired"
	CodeNoCredential  Code = "no_credential"
	CodeAgeRestricted Code = "age_restricted"

	// Crypto
	CodeNotInitialized    Code = "not_initialized"
	CodeSignatureMismatch Code = "signature_mismatch"
	CodeBadCommitment     Code = "bad_commitment"

	// External collaborators. These are recorded in receipts, never returned.
	CodeAnchorUnavailable Code = "anchor_unavailable"
	CodeAnchorFailure     Code = "anchor_failure"
)

// Kind groups codes into the families callers branch on.
type Kind string

const (
	KindValidation Kind = "validation"
	KindFlow       Kind = "flow"
	KindPolicy     Kind = "policy"
	KindCrypto     Kind = "crypto"
	KindExternal   Kind = "external"
	KindInternal   Kind = "internal"
)

// Kind returns the family a code belongs to.
func (c Code) Kind() Kind {
	switch c {
	case CodeInvalidSubject, CodeInvalidName, CodeInvalidDob, CodeInvalidID, CodeInvalidAge,
		CodeUnknownClaim, CodeBadRequest, CodeInvalidInput, CodeValidation:
		return KindValidation
	case CodeDuplicateSubject, CodeAlreadyRegistered, CodeEventFull, CodeAlreadyUsed,
		CodeInvalidTicket, CodeConflict, CodeNotFound:
		return KindFlow
	case CodeRateLimited, CodeRevoked, CodeExpired, CodeNoCredential, CodeAgeRestricted,
		CodeUnauthorized, CodeForbidden:
		return KindPolicy
	case CodeNotInitialized, CodeSignatureMismatch, CodeBadCommitment:
		return KindCrypto
	case CodeAnchorUnavailable, CodeAnchorFailure:
		return KindExternal
	default:
		return KindInternal
	}
}

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Kind returns the family of the error's code.
func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		// Preserve the original domain code, update message
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the domain code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
