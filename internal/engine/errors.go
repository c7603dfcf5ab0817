package engine

import (
	"errors"
	"fmt"
)

// ResourceError represents a failure confined to one managed path.
//
// Resource errors include:
//   - Source unavailable: the content locator could not be resolved or read
//   - Write error: the target could not be written, created or removed
//   - Invalid resource: the declaration cannot be applied as written
//
// A ResourceError never aborts a cycle; it is recorded in the Report.
type ResourceError struct {
	// Code identifies the error category.
	Code ResourceErrorCode

	// Path is the target path that failed.
	Path string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ResourceErrorCode categorizes resource errors.
type ResourceErrorCode string

const (
	// ErrCodeSourceUnavailable indicates the content could not be retrieved.
	ErrCodeSourceUnavailable ResourceErrorCode = "SOURCE_UNAVAILABLE"

	// ErrCodeWriteError indicates the target could not be changed.
	ErrCodeWriteError ResourceErrorCode = "WRITE_ERROR"

	// ErrCodeInvalidResource indicates a declaration that cannot be applied.
	ErrCodeInvalidResource ResourceErrorCode = "INVALID_RESOURCE"
)

// Error implements the error interface.
func (e *ResourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Code, e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// IsSourceUnavailable returns true if the error is a source unavailable error.
// Uses errors.As to handle wrapped errors.
func IsSourceUnavailable(err error) bool {
	var re *ResourceError
	if errors.As(err, &re) {
		return re.Code == ErrCodeSourceUnavailable
	}
	return false
}

// IsWriteError returns true if the error is a write error.
// Uses errors.As to handle wrapped errors.
func IsWriteError(err error) bool {
	var re *ResourceError
	if errors.As(err, &re) {
		return re.Code == ErrCodeWriteError
	}
	return false
}

// NewSourceUnavailableError creates a ResourceError for missing content.
func NewSourceUnavailableError(path string, err error) *ResourceError {
	return &ResourceError{
		Code:    ErrCodeSourceUnavailable,
		Path:    path,
		Message: "content could not be retrieved",
		Err:     err,
	}
}

// NewWriteError creates a ResourceError for a failed filesystem change.
func NewWriteError(path, message string, err error) *ResourceError {
	return &ResourceError{
		Code:    ErrCodeWriteError,
		Path:    path,
		Message: message,
		Err:     err,
	}
}
