package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can decide between retry,
// compensation and surfacing.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindPrecondition      ErrorKind = "precondition_failed"
	KindConflict          ErrorKind = "conflict"
	KindResourceExhausted ErrorKind = "resource_exhausted"
	KindDependency        ErrorKind = "dependency_failure"
	KindInconsistent      ErrorKind = "inconsistent"
	KindNotFound          ErrorKind = "not_found"
	KindForbidden         ErrorKind = "forbidden"
)

// AppError is the typed error returned by the domain services.
type AppError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(kind ErrorKind, code, message string, cause error) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message, Err: cause}
}

func NewValidationError(code, message string) *AppError {
	return NewAppError(KindValidation, code, message, nil)
}

func NewPreconditionError(code, message string) *AppError {
	return NewAppError(KindPrecondition, code, message, nil)
}

func NewConflictError(code, message string) *AppError {
	return NewAppError(KindConflict, code, message, nil)
}

func NewResourceExhaustedError(code, message string) *AppError {
	return NewAppError(KindResourceExhausted, code, message, nil)
}

func NewDependencyError(code, message string, cause error) *AppError {
	return NewAppError(KindDependency, code, message, cause)
}

func NewInconsistentError(code, message string) *AppError {
	return NewAppError(KindInconsistent, code, message, nil)
}

func NewNotFoundError(code, message string) *AppError {
	return NewAppError(KindNotFound, code, message, nil)
}

func NewForbiddenError(code, message string) *AppError {
	return NewAppError(KindForbidden, code, message, nil)
}

// AsAppError extracts the first AppError in the chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the error kind, or "" for untyped errors.
func KindOf(err error) ErrorKind {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// CodeOf returns the machine-readable code, or "" for untyped errors.
func CodeOf(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ""
}
