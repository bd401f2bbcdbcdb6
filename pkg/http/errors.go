package http

import (
	"fmt"
	"net/http"
)

// AppError carries a stable code and the status it is answered with. The
// wrapped cause is for logs only.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

// Wrap attaches the cause and returns e.
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

func newAppError(status int, code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Status: status}
}

func BadRequestError(msg string) *AppError {
	return newAppError(http.StatusBadRequest, "ERR_BAD_REQUEST", msg)
}

func BadRequestErrorf(format string, args ...interface{}) *AppError {
	return BadRequestError(fmt.Sprintf(format, args...))
}

func NotFoundError(msg string) *AppError {
	return newAppError(http.StatusNotFound, "ERR_NOT_FOUND", msg)
}

// ConflictError is returned while a training run for the same target holds
// the lock.
func ConflictError(msg string) *AppError {
	return newAppError(http.StatusConflict, "ERR_TRAINING_IN_PROGRESS", msg)
}

// UnavailableError names an integration that is not configured.
func UnavailableError(msg string) *AppError {
	return newAppError(http.StatusServiceUnavailable, "ERR_UNAVAILABLE", msg)
}

// UnprocessableError reports a request that was valid but could not be
// served with the data at hand.
func UnprocessableError(msg string) *AppError {
	return newAppError(http.StatusUnprocessableEntity, "ERR_INSUFFICIENT_DATA", msg)
}

func InternalError(msg string) *AppError {
	return newAppError(http.StatusInternalServerError, "ERR_INTERNAL", msg)
}
