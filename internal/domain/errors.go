package domain

import (
	"errors"
	"maps"
	"net/http"
)

// ErrorCode classifies an AppError.
type ErrorCode int

const (
	CodeNotFound ErrorCode = iota + 1
	CodeAlreadyExists
	CodeValidation
	CodeInternal
)

var codeStatus = map[ErrorCode]int{
	CodeNotFound:      http.StatusNotFound,
	CodeAlreadyExists: http.StatusConflict,
	CodeValidation:    http.StatusBadRequest,
	CodeInternal:      http.StatusInternalServerError,
}

var codeNames = map[ErrorCode]string{
	CodeNotFound:      "not_found",
	CodeAlreadyExists: "already_exists",
	CodeValidation:    "validation",
	CodeInternal:      "internal",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

// AppError is the error type returned by services and repositories.
// Validation errors of a user form carry the per-field messages in Fields,
// keyed by form field name.
type AppError struct {
	Code    ErrorCode         `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"errors,omitempty"`
	Err     error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any *AppError with the same code, so
// errors.Is(err, ErrNotFound) holds for every not-found error.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is and for returning a bare category.
var (
	ErrNotFound      = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists = &AppError{Code: CodeAlreadyExists, Message: "already exists"}
	ErrValidation    = &AppError{Code: CodeValidation, Message: "validation error"}
	ErrInternal      = &AppError{Code: CodeInternal, Message: "internal error"}
)

// NewAppError creates an AppError wrapping err (which may be nil).
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewFieldErrors returns a validation error carrying a copy of fields.
func NewFieldErrors(fields map[string]string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: "validation error",
		Fields:  maps.Clone(fields),
	}
}

// FieldErrors returns the per-field messages carried by err, or nil.
func FieldErrors(err error) map[string]string {
	if appErr, ok := asAppError(err); ok {
		return appErr.Fields
	}
	return nil
}

func IsNotFound(err error) bool      { return hasCode(err, CodeNotFound) }
func IsAlreadyExists(err error) bool { return hasCode(err, CodeAlreadyExists) }
func IsValidation(err error) bool    { return hasCode(err, CodeValidation) }
func IsInternal(err error) bool      { return hasCode(err, CodeInternal) }

// HTTPStatusCode maps err to a status code. Anything that is not an
// *AppError with a known code is a 500.
func HTTPStatusCode(err error) int {
	if appErr, ok := asAppError(err); ok {
		if status, ok := codeStatus[appErr.Code]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

func hasCode(err error, code ErrorCode) bool {
	appErr, ok := asAppError(err)
	return ok && appErr.Code == code
}

func asAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if err == nil || !errors.As(err, &appErr) {
		return nil, false
	}
	return appErr, true
}
