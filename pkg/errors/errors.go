package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Generic error kinds shared by every layer

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a service is unavailable
	ErrUnavailable = errors.New("service unavailable")

	// ErrRateLimitExceeded indicates the caller is being throttled
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrUnauthorized indicates missing or rejected credentials
	ErrUnauthorized = errors.New("unauthorized")
)

// Prediction pipeline errors

var (
	// ErrUnknownCategory indicates a categorical value that was never seen during training
	ErrUnknownCategory = errors.New("unknown category")

	// ErrModelNotLoaded indicates no model bundle is active
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrScalerNotFitted indicates the scaler has no fitted parameters
	ErrScalerNotFitted = errors.New("scaler not fitted")

	// ErrFeatureMismatch indicates a vector does not match the bundle feature contract
	ErrFeatureMismatch = errors.New("feature contract mismatch")
)

// Training errors

var (
	// ErrInvalidDataset indicates a malformed or insufficient training dataset
	ErrInvalidDataset = errors.New("invalid training dataset")

	// ErrTrainingFailed indicates the classifier could not be fitted or persisted
	ErrTrainingFailed = errors.New("training failed")

	// ErrRetrainInProgress indicates another retrain is already running
	ErrRetrainInProgress = errors.New("retrain already in progress")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error with field-specific details.
// It matches ErrInvalidInput via errors.Is.
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("validation error: field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// Is reports ErrInvalidInput as the error kind
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// CategoryError reports a categorical value absent from the fitted vocabulary.
// It matches both ErrUnknownCategory and ErrInvalidInput.
type CategoryError struct {
	Field string
	Value interface{}
	Known []string
}

// Error implements the error interface
func (e *CategoryError) Error() string {
	msg := fmt.Sprintf("unknown category for field '%s': %v", e.Field, e.Value)
	if len(e.Known) > 0 {
		msg += fmt.Sprintf(" (known: %s)", strings.Join(e.Known, ", "))
	}
	return msg
}

// Is matches the unknown-category and invalid-input kinds
func (e *CategoryError) Is(target error) bool {
	return target == ErrUnknownCategory || target == ErrInvalidInput
}

// NewCategoryError creates a new unknown category error
func NewCategoryError(field string, value interface{}, known []string) *CategoryError {
	return &CategoryError{Field: field, Value: value, Known: known}
}

// DatasetError points at the offending row/column of an uploaded dataset.
// Row is 1-based and counts the header line; zero means the header itself.
type DatasetError struct {
	Row     int
	Column  string
	Message string
}

// Error implements the error interface
func (e *DatasetError) Error() string {
	switch {
	case e.Row == 0 && e.Column != "":
		return fmt.Sprintf("dataset: column '%s': %s", e.Column, e.Message)
	case e.Column != "":
		return fmt.Sprintf("dataset: row %d, column '%s': %s", e.Row, e.Column, e.Message)
	default:
		return fmt.Sprintf("dataset: %s", e.Message)
	}
}

// Is matches ErrInvalidDataset
func (e *DatasetError) Is(target error) bool {
	return target == ErrInvalidDataset
}

// NewDatasetError creates a new dataset error
func NewDatasetError(row int, column, message string) *DatasetError {
	return &DatasetError{Row: row, Column: column, Message: message}
}

// MultiError wraps multiple errors
type MultiError struct {
	Errors []error
}

// Error implements the error interface
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("multiple errors (%d): %v", len(m.Errors), m.Errors[0])
}

// Unwrap exposes every collected error to errors.Is/As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add adds an error to the list
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// ToError returns the MultiError as an error, or nil if no errors
func (m *MultiError) ToError() error {
	if !m.HasErrors() {
		return nil
	}
	return m
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join combines errors, dropping nils
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
