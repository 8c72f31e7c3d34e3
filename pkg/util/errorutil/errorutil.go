package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes shared by the moderation pipeline and the HTTP layer.
const (
	CodeValidation             = "VALIDATION_FAILED"
	CodeNotFound               = "NOT_FOUND"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeConflict               = "CONFLICT"
	CodeInternal               = "INTERNAL_ERROR"
	CodePolicyViolation        = "POLICY_VIOLATION"
	CodeRateExceeded           = "RATE_EXCEEDED"
	CodeClassifierUnavailable  = "CLASSIFIER_UNAVAILABLE"
	CodeSanctionActive         = "SANCTION_ACTIVE"
	CodeAdminTargetNotFound    = "ADMIN_TARGET_NOT_FOUND"
	CodePersistenceUnavailable = "PERSISTENCE_UNAVAILABLE"
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

// Is matches on error code so callers can compare against the exported sentinels.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrAdminTargetNotFound    = &DomainError{Code: CodeAdminTargetNotFound}
	ErrPersistenceUnavailable = &DomainError{Code: CodePersistenceUnavailable}
	ErrClassifierUnavailable  = &DomainError{Code: CodeClassifierUnavailable}
)

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

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewAdminTargetNotFound reports a command that referenced an unknown user.
func NewAdminTargetNotFound(target string) error {
	return &DomainError{
		Code:       CodeAdminTargetNotFound,
		Message:    fmt.Sprintf("user %q not found", target),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"target": target},
	}
}

// NewPersistenceUnavailable wraps a store failure; it fails the current action only.
func NewPersistenceUnavailable(err error) error {
	return &DomainError{
		Code:       CodePersistenceUnavailable,
		Message:    "storage unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewClassifierUnavailable wraps an image classifier failure.
func NewClassifierUnavailable(err error) error {
	return &DomainError{
		Code:       CodeClassifierUnavailable,
		Message:    "content classifier unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
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
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
