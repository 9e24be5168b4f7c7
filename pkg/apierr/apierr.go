// Package apierr maps error kinds to small stable integer codes and
// HTTP statuses, and renders them into the coordinator API's JSON
// envelope ({code, message, data}). No library offers a JSON-envelope
// error mapper for this exact contract, so it is a handful of
// sentinel errors and a switch, not a dependency.
package apierr

import (
	"errors"
	"net/http"

	"github.com/cuemby/cascade/pkg/credential"
	"github.com/cuemby/cascade/pkg/storage"
)

// Code is the envelope's stable integer error code.
type Code int

const (
	CodeOK         Code = 0
	CodeValidation Code = 1000
	CodeAuth       Code = 2000
	CodeNotFound   Code = 3000
	CodeConflict   Code = 4000
	CodeInternal   Code = 5000
)

// Error is a coded API error. Message is safe to return to the
// caller; it never names which credential field failed auth, so a
// response can't be used to enumerate valid access keys.
type Error struct {
	Code    Code
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.cause }

func newErr(code Code, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Validation wraps a malformed-request error (400).
func Validation(message string) *Error {
	return newErr(CodeValidation, http.StatusBadRequest, message)
}

// Auth is the single 401 error returned for any authentication
// failure (unknown access key, wrong secret, inactive node), all
// rendered identically so the response never discloses which.
func Auth() *Error {
	return newErr(CodeAuth, http.StatusUnauthorized, "authentication failed")
}

// NotFound wraps a missing-resource error (404).
func NotFound(resource string) *Error {
	return newErr(CodeNotFound, http.StatusNotFound, resource+" not found")
}

// Conflict wraps a rejected state transition (409).
func Conflict(message string) *Error {
	return newErr(CodeConflict, http.StatusConflict, message)
}

// Internal wraps an unexpected failure (500). The coordinator does not
// retry the failed operation before returning it. The underlying cause
// is retained for logging but never placed in Message.
func Internal(cause error) *Error {
	e := newErr(CodeInternal, http.StatusInternalServerError, "internal error")
	e.cause = cause
	return e
}

// Translate maps a storage/credential sentinel error (or an *Error
// already produced by a handler) to the envelope's code/status pair.
// Any other error is treated as internal.
func Translate(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return NotFound("resource")
	case errors.Is(err, storage.ErrConflict):
		return Conflict(err.Error())
	case errors.Is(err, credential.ErrAuth):
		return Auth()
	default:
		return Internal(err)
	}
}
