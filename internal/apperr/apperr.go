// Package apperr carries the error variants shared by the service layer.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist for the owner.
	ErrNotFound = errors.New("record not found")
	// ErrStorageUnavailable indicates the database could not serve the request.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrInvalidInput indicates the caller supplied unusable data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict indicates the write collides with existing data.
	ErrConflict = errors.New("conflict")
)

// ServiceError attaches an operation.reason code to an underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

// New builds a ServiceError with the code "<operation>.<reason>".
func New(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Storage marks a database failure as ErrStorageUnavailable while keeping the driver error.
func Storage(operation, reason string, cause error) error {
	return New(operation, reason, fmt.Errorf("%w: %v", ErrStorageUnavailable, cause))
}

// Code extracts the ServiceError code from err, or returns "".
func Code(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code()
	}
	return ""
}
