package floor

import (
	"errors"
	"net/http"
)

type ErrorCode string

const (
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrTableNotFound     ErrorCode = "TABLE_NOT_FOUND"
	ErrGroupNotFound     ErrorCode = "GROUP_NOT_FOUND"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrAlreadyInState    ErrorCode = "ALREADY_IN_STATE"
	ErrTableUnavailable  ErrorCode = "TABLE_UNAVAILABLE"
	ErrInsufficientTable ErrorCode = "INSUFFICIENT_TABLES"
	ErrTooManyTables     ErrorCode = "TOO_MANY_TABLES"
	ErrEmptyCart         ErrorCode = "EMPTY_CART"
	ErrSubmissionFailed  ErrorCode = "SUBMISSION_FAILED"
	ErrInvalidItem       ErrorCode = "INVALID_ITEM"
	ErrConflict          ErrorCode = "CONFLICT"
	ErrValidation        ErrorCode = "VALIDATION_ERROR"
)

// Error is the domain error returned by every floor operation. Handlers map
// StatusCode and Code straight onto the response envelope.
type Error struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	Details    map[string]any
	cause      error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(code ErrorCode, message string, status int, details map[string]any) *Error {
	return &Error{Code: code, Message: message, StatusCode: status, Details: details}
}

func notFound(code ErrorCode, message string, details map[string]any) *Error {
	return newError(code, message, http.StatusNotFound, details)
}

func invalidTransition(message string, details map[string]any) *Error {
	return newError(ErrInvalidTransition, message, http.StatusConflict, details)
}

func alreadyInState(message string, details map[string]any) *Error {
	return newError(ErrAlreadyInState, message, http.StatusOK, details)
}

func tableUnavailable(message string, details map[string]any) *Error {
	return newError(ErrTableUnavailable, message, http.StatusConflict, details)
}

func conflict(message string, details map[string]any) *Error {
	return newError(ErrConflict, message, http.StatusConflict, details)
}

func validationError(code ErrorCode, message string, details map[string]any) *Error {
	return newError(code, message, http.StatusBadRequest, details)
}

func emptyCart(message string, details map[string]any) *Error {
	return newError(ErrEmptyCart, message, http.StatusUnprocessableEntity, details)
}

func submissionFailed(cause error) *Error {
	e := newError(ErrSubmissionFailed, "Failed to submit order", http.StatusBadGateway, nil)
	e.cause = cause
	return e
}

// CodeOf returns the domain code carried by err, or "" for infrastructure errors.
func CodeOf(err error) ErrorCode {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsAlreadyInState reports the benign outcome of repeating a kitchen transition.
func IsAlreadyInState(err error) bool {
	return CodeOf(err) == ErrAlreadyInState
}

// Repository sentinels. Stores return these; services translate them into *Error.
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicate      = errors.New("duplicate record")
)
