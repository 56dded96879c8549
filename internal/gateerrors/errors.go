// Package gateerrors provides sentinel and custom error types for the application.
package gateerrors

import "fmt"

// ErrNotFound represents a "not found" error.
// Use when a requested resource (identity, invitation, webhook) doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrValidation represents a validation error.
// Use when client input fails validation (e.g. an invitation window ending
// before it starts).
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrDimensionMismatch is the sentinel for embedding dimensionality errors.
// A probe whose vector length differs from the enrolled population is a
// programming error on the caller's side; the request fails and is not retried.
var ErrDimensionMismatch = &DimensionMismatchError{}

// DimensionMismatchError reports a probe/candidate vector length mismatch.
type DimensionMismatchError struct {
	Want int
	Got  int
}

// NewDimensionMismatchError creates a DimensionMismatchError for the given lengths.
func NewDimensionMismatchError(want, got int) *DimensionMismatchError {
	return &DimensionMismatchError{Want: want, Got: got}
}

// Error implements the error interface.
func (e *DimensionMismatchError) Error() string {
	if e.Want != 0 || e.Got != 0 {
		return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
	}

	return "embedding dimension mismatch"
}

// Is implements the error interface for error comparison.
func (e *DimensionMismatchError) Is(target error) bool {
	_, ok := target.(*DimensionMismatchError)

	return ok
}

// ErrNoFace is the sentinel for the embedder collaborator finding no usable
// face region in the submitted image. Bad input, not a system fault.
var ErrNoFace = &NoFaceError{}

// NoFaceError is a sentinel error for images without a detectable face.
type NoFaceError struct {
	Message string
}

// NewNoFaceError creates a NoFaceError with a custom message.
func NewNoFaceError(message string) *NoFaceError {
	return &NoFaceError{Message: message}
}

// Error implements the error interface.
func (e *NoFaceError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "no face detected"
}

// Is implements the error interface for error comparison.
func (e *NoFaceError) Is(target error) bool {
	_, ok := target.(*NoFaceError)

	return ok
}

// ErrNoPlate is the sentinel for the detector collaborator finding no license
// plate in the submitted image.
var ErrNoPlate = &NoPlateError{}

// NoPlateError is a sentinel error for images without a detectable plate.
type NoPlateError struct {
	Message string
}

// NewNoPlateError creates a NoPlateError with a custom message.
func NewNoPlateError(message string) *NoPlateError {
	return &NoPlateError{Message: message}
}

// Error implements the error interface.
func (e *NoPlateError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "no license plate detected"
}

// Is implements the error interface for error comparison.
func (e *NoPlateError) Is(target error) bool {
	_, ok := target.(*NoPlateError)

	return ok
}
