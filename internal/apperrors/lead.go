package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrMissingField is matched by every *MissingFieldError.
	ErrMissingField = errors.New("missing required field")
	// ErrInsufficientContact is returned when a submission has neither email nor phone.
	ErrInsufficientContact = fmt.Errorf("%w: at least one of email or phone is required", ErrBadRequest)
	// ErrOrganizationNotFound covers absent, soft-deleted and inactive organizations.
	ErrOrganizationNotFound = fmt.Errorf("%w: organization not found or inactive", ErrNotFound)
	// ErrLandingPageNotFound covers absent landing pages and pages owned by another organization.
	ErrLandingPageNotFound = fmt.Errorf("%w: landing page", ErrNotFound)
	// ErrLeadNotFound is returned when a lead does not exist within the caller's organization.
	ErrLeadNotFound = fmt.Errorf("%w: lead", ErrNotFound)
	// ErrInvalidTransition is matched by every *InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStorageFailure is matched by every *StorageFailureError.
	ErrStorageFailure = errors.New("storage failure")
)

// MissingFieldError names the first required field absent from a submission.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingField.Error(), e.Field)
}

// Is reports ErrMissingField and ErrBadRequest as matches.
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField || target == ErrBadRequest
}

// NewMissingField builds a MissingFieldError for field.
func NewMissingField(field string) error {
	return &MissingFieldError{Field: field}
}

// InvalidTransitionError carries the rejected edge and the legal alternatives.
type InvalidTransitionError struct {
	Current   string
	Requested string
	Allowed   []string
}

func (e *InvalidTransitionError) Error() string {
	allowed := "none"
	if len(e.Allowed) > 0 {
		allowed = strings.Join(e.Allowed, ", ")
	}
	return fmt.Sprintf("%s: %s -> %s (allowed: %s)", ErrInvalidTransition.Error(), e.Current, e.Requested, allowed)
}

// Is reports ErrInvalidTransition and ErrConflict as matches.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition || target == ErrConflict
}

// StorageFailureError wraps an underlying persistence error with the failing operation.
type StorageFailureError struct {
	Op  string
	Err error
}

func (e *StorageFailureError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorageFailure.Error(), e.Op, e.Err)
}

func (e *StorageFailureError) Unwrap() error {
	return e.Err
}

// Is reports ErrStorageFailure as a match; the cause is reachable through Unwrap.
func (e *StorageFailureError) Is(target error) bool {
	return target == ErrStorageFailure
}

// NewStorageFailure wraps err, returning nil when err is nil.
func NewStorageFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageFailureError{Op: op, Err: err}
}

// IsInvalidTransition checks if the error is or wraps an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsStorageFailure checks if the error is or wraps a StorageFailureError.
func IsStorageFailure(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}

// HTTPStatus maps an application error to the response status used by the API.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMissingField), errors.Is(err, ErrBadRequest), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrConflict), errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrStorageFailure), errors.Is(err, ErrDatabase):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
