package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation error")
	ErrConflict         = errors.New("conflict")
	ErrForbidden        = errors.New("forbidden")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrIndexUnavailable = errors.New("index unavailable")
)

// ValidationError reports a rejected parameter.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError creates a new validation error
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// IsValidationError checks if an error is a validation error (including wrapped errors)
func IsValidationError(err error) bool {
	var validationErr ValidationError
	return errors.As(err, &validationErr)
}

// UnavailableError wraps a backend failure. It matches its sentinel
// (ErrStoreUnavailable or ErrIndexUnavailable) and unwraps to the cause.
type UnavailableError struct {
	Sentinel error
	Op       string
	Err      error
}

func (e *UnavailableError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%v: %v", e.Sentinel, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", e.Sentinel, e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == e.Sentinel }

// StoreUnavailable marks err as a failure of the authoritative store.
func StoreUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Sentinel: ErrStoreUnavailable, Op: op, Err: err}
}

// IndexUnavailable marks err as a failure of the geo index or cache store.
func IndexUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Sentinel: ErrIndexUnavailable, Op: op, Err: err}
}
