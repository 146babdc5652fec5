package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to callers.
const (
	CodeValidation        = "VALIDATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeAuth              = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeIllegalTransition = "ILLEGAL_TRANSITION"
	CodeConflict          = "CONFLICT"
	CodeCapacity          = "CAPACITY_EXCEEDED"
	CodeUnavailable       = "UNAVAILABLE"
	CodeInternal          = "INTERNAL_ERROR"
)

// Sentinels usable with errors.Is; matching is by code only.
var (
	ErrValidation        = &DomainError{Code: CodeValidation}
	ErrNotFound          = &DomainError{Code: CodeNotFound}
	ErrAuth              = &DomainError{Code: CodeAuth}
	ErrForbidden         = &DomainError{Code: CodeForbidden}
	ErrIllegalTransition = &DomainError{Code: CodeIllegalTransition}
	ErrConflict          = &DomainError{Code: CodeConflict}
	ErrCapacity          = &DomainError{Code: CodeCapacity}
	ErrUnavailable       = &DomainError{Code: CodeUnavailable}
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Retryable reports whether the caller may retry the operation with backoff.
func (e *DomainError) Retryable() bool {
	return e.Code == CodeUnavailable || e.Code == CodeConflict
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewAuthError signals that the session is not authenticated and must log in again.
func NewAuthError(message string) error {
	return NewDomainError(CodeAuth, message, http.StatusUnauthorized, map[string]any{"relogin": true})
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

// NewScopeForbidden names the resource whose scope blocked the write.
func NewScopeForbidden(resource, actorID string) error {
	return NewDomainError(CodeForbidden,
		fmt.Sprintf("actor lacks scope over this %s", resource),
		http.StatusForbidden,
		map[string]any{"resource": resource, "actor_id": actorID})
}

// NewIllegalTransition reports a status change outside the ticket state graph.
func NewIllegalTransition(from, to string) error {
	return NewDomainError(CodeIllegalTransition,
		fmt.Sprintf("transition %s -> %s is not allowed", from, to),
		http.StatusUnprocessableEntity,
		map[string]any{"from": from, "to": to})
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewCapacityError reports that a team reached its provisioning cap.
func NewCapacityError(resource string, limit int) error {
	return NewDomainError(CodeCapacity,
		fmt.Sprintf("%s capacity of %d reached for this team", resource, limit),
		http.StatusUnprocessableEntity,
		map[string]any{"resource": resource, "limit": limit})
}

// NewUnavailable wraps a backing store failure or timeout.
func NewUnavailable(err error) error {
	return &DomainError{
		Code:       CodeUnavailable,
		Message:    "backing store unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"retryable": true},
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewUnavailable(err).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

func MapError(err error) error {
	return ToDomainError(err)
}
