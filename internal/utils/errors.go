package utils

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when input validation fails
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when a requested resource is not found
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when the request clashes with the current state
	ErrConflict = errors.New("conflict")

	// ErrDatabase is returned when there's a database operation error
	ErrDatabase = errors.New("database error")

	// ErrUnauthorized is returned when credentials are missing or wrong
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError represents an error that occurs during input validation
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with ID '%s' not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ConflictError covers duplicates (Field/Value set) and invalid state
// transitions (Reason set)
type ConflictError struct {
	Resource string
	Field    string
	Value    string
	Reason   string
}

func (e *ConflictError) Error() string {
	switch {
	case e.Reason != "":
		return fmt.Sprintf("%s %s", e.Resource, e.Reason)
	case e.Field != "" && e.Value != "":
		return fmt.Sprintf("%s already exists with %s='%s'", e.Resource, e.Field, e.Value)
	default:
		return fmt.Sprintf("%s already exists", e.Resource)
	}
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// DatabaseError represents an error that occurs during database operations
type DatabaseError struct {
	Operation string
	Cause     error
}

func (e *DatabaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("database error during %s: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("database error during %s", e.Operation)
}

// Unwrap exposes both the sentinel and the driver error
func (e *DatabaseError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrDatabase}
	}
	return []error{ErrDatabase, e.Cause}
}

// WrapValidationError creates a validation error for a field
func WrapValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// WrapNotFoundError creates a not found error
func WrapNotFoundError(resource, id string) error {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// WrapConflictError creates a duplicate-value conflict error
func WrapConflictError(resource, field, value string) error {
	return &ConflictError{
		Resource: resource,
		Field:    field,
		Value:    value,
	}
}

// WrapStateError creates a conflict error for an invalid state transition,
// e.g. WrapStateError("reminder", "is already sent")
func WrapStateError(resource, reason string) error {
	return &ConflictError{
		Resource: resource,
		Reason:   reason,
	}
}

// WrapDatabaseError wraps an error as a database error
func WrapDatabaseError(operation string, cause error) error {
	return &DatabaseError{
		Operation: operation,
		Cause:     cause,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsDatabaseError checks if an error is a database error
func IsDatabaseError(err error) bool {
	return errors.Is(err, ErrDatabase)
}

// IsUnauthorizedError checks if an error is an authentication failure
func IsUnauthorizedError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// RequiredFieldError creates a validation error for a missing field
func RequiredFieldError(field string) error {
	return WrapValidationError(field, "field is required")
}

// InvalidFieldError creates a validation error for an invalid field value
func InvalidFieldError(field, reason string) error {
	return WrapValidationError(field, reason)
}

// PublicMessage returns the text that is safe to show a client. Database
// errors are collapsed so driver details never leave the process.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if IsDatabaseError(err) {
		var dbErr *DatabaseError
		if errors.As(err, &dbErr) {
			return fmt.Sprintf("internal error during %s", dbErr.Operation)
		}
		return "internal error"
	}
	return err.Error()
}
