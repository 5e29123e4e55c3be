// Package errors provides structured error handling for scanward operations.
// It defines error codes, error types, and utilities for creating and
// classifying errors raised by job execution, storage, and configuration.
package errors

import (
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeNotFound      ErrorCode = "NOT_FOUND"

	// Job submission and execution errors.
	CodeInvalidTarget        ErrorCode = "INVALID_TARGET"
	CodeBusy                 ErrorCode = "BUSY"
	CodeProcessLaunchFailed  ErrorCode = "PROCESS_LAUNCH_FAILED"
	CodeProcessExitedNonzero ErrorCode = "PROCESS_EXITED_NONZERO"
	CodeTimeout              ErrorCode = "TIMEOUT"

	// Result store errors.
	CodeStorageWriteFailed ErrorCode = "STORAGE_WRITE_FAILED"
	CodeStorageReadFailed  ErrorCode = "STORAGE_READ_FAILED"

	// Job archive errors.
	CodeArchiveConnection ErrorCode = "ARCHIVE_CONNECTION"
	CodeArchiveQuery      ErrorCode = "ARCHIVE_QUERY"
)

// JobError represents an error raised while submitting or executing a job.
type JobError struct {
	Code    ErrorCode
	Message string
	Kind    string
	Target  string
	Cause   error
}

// Error implements the error interface.
func (e *JobError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s (target: %s)", e.Code, e.Message, e.Target)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *JobError) Unwrap() error {
	return e.Cause
}

// WithKind records the job kind the error belongs to.
func (e *JobError) WithKind(kind string) *JobError {
	e.Kind = kind
	return e
}

// NewJobError creates a new job error with the specified code and message.
func NewJobError(code ErrorCode, message string) *JobError {
	return &JobError{
		Code:    code,
		Message: message,
	}
}

// NewJobErrorWithTarget creates a job error for a specific target.
func NewJobErrorWithTarget(code ErrorCode, message, target string) *JobError {
	return &JobError{
		Code:    code,
		Message: message,
		Target:  target,
	}
}

// WrapJobError wraps an existing error as a job error.
func WrapJobError(code ErrorCode, message string, err error) *JobError {
	return &JobError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WrapJobErrorWithTarget wraps an error with target information.
func WrapJobErrorWithTarget(code ErrorCode, message, target string, err error) *JobError {
	return &JobError{
		Code:    code,
		Message: message,
		Target:  target,
		Cause:   err,
	}
}

// StorageError represents result store failures.
type StorageError struct {
	Code    ErrorCode
	Message string
	Path    string
	Cause   error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s (path: %s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// WithPath records the filesystem path involved in the failure.
func (e *StorageError) WithPath(path string) *StorageError {
	e.Path = path
	return e
}

// NewStorageError creates a new storage error.
func NewStorageError(code ErrorCode, message string) *StorageError {
	return &StorageError{
		Code:    code,
		Message: message,
	}
}

// WrapStorageError wraps an existing error as a storage error.
func WrapStorageError(code ErrorCode, message string, err error) *StorageError {
	return &StorageError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// ArchiveError represents job archive (database) errors.
type ArchiveError struct {
	Code      ErrorCode
	Message   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *ArchiveError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation: %s)", e.Code, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ArchiveError) Unwrap() error {
	return e.Cause
}

// WrapArchiveError wraps an existing error as an archive error.
func WrapArchiveError(code ErrorCode, message, operation string, err error) *ArchiveError {
	return &ArchiveError{
		Code:      code,
		Message:   message,
		Operation: operation,
		Cause:     err,
	}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
	}
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Utility functions for common error operations

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	switch e := err.(type) {
	case *JobError:
		return e.Code == code
	case *StorageError:
		return e.Code == code
	case *ArchiveError:
		return e.Code == code
	case *ConfigError:
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error if it has one.
func GetCode(err error) ErrorCode {
	switch e := err.(type) {
	case *JobError:
		return e.Code
	case *StorageError:
		return e.Code
	case *ArchiveError:
		return e.Code
	case *ConfigError:
		return e.Code
	}
	return CodeUnknown
}

// IsBusy reports whether the error is a single-flight rejection.
func IsBusy(err error) bool {
	return IsCode(err, CodeBusy)
}

// IsTerminalFailure reports whether the error describes a completed job
// that ended in failure rather than a rejected submission.
func IsTerminalFailure(err error) bool {
	switch GetCode(err) {
	case CodeProcessLaunchFailed, CodeProcessExitedNonzero, CodeTimeout, CodeStorageWriteFailed:
		return true
	default:
		return false
	}
}

// IsFatal determines if an error indicates a fatal condition that should stop execution.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeConfiguration, CodeArchiveConnection:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrInvalidTarget creates an error for invalid scan targets.
func ErrInvalidTarget(target string) *JobError {
	return NewJobErrorWithTarget(CodeInvalidTarget, "target is not a valid CIDR network", target)
}

// ErrBusy creates an error for a rejected submission while a job of the
// same kind is already active.
func ErrBusy(kind string) *JobError {
	return NewJobError(CodeBusy, fmt.Sprintf("a %s job is already in progress", kind)).WithKind(kind)
}

// ErrScanTimeout creates an error for scans killed by their deadline.
func ErrScanTimeout(target string) *JobError {
	return NewJobErrorWithTarget(CodeTimeout, "scan exceeded its timeout and was terminated", target)
}

// ErrLaunchFailed creates an error for subprocesses that never started.
func ErrLaunchFailed(err error) *JobError {
	return WrapJobError(CodeProcessLaunchFailed, "failed to launch scan process", err)
}

// ErrStorageWrite creates an error for failed artifact writes.
func ErrStorageWrite(path string, err error) *StorageError {
	return WrapStorageError(CodeStorageWriteFailed, "failed to write result artifact", err).WithPath(path)
}

// ErrJobNotFound creates an error for status lookups of unknown jobs.
func ErrJobNotFound(id string) *JobError {
	return NewJobError(CodeNotFound, fmt.Sprintf("no job with id %s", id))
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "Invalid configuration value", field, value)
}

// ErrConfigMissing creates an error for missing required configuration.
func ErrConfigMissing(field string) *ConfigError {
	return NewConfigFieldError(CodeConfiguration, "Required configuration field missing", field, nil)
}
