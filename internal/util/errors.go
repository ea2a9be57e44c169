// Package util provides utility functions and types for the routing engine.
//
// # Error Conventions
//
// This project follows a standardized error pattern across all packages:
//
//   - Sentinel errors (errors.New) for well-known, stable conditions
//     that callers check with errors.Is(). Example: ErrInvalidPattern.
//   - Structured error types for context-rich errors that carry
//     additional fields (e.g., PatternError, ConfigError). Each type
//     implements Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping that adds context to an
//     existing error without introducing a new type.
//
// All custom error types must implement:
//
//	Error() string           – human-readable message
//	Unwrap() error           – if the type wraps another error
//	Is(target error) bool    – for errors.Is() compatibility
package util

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	ErrInvalidPattern = errors.New("invalid path pattern")
	ErrInvalidInput   = errors.New("invalid input")
	ErrTimeout        = errors.New("timeout")
	ErrConfigInvalid  = errors.New("invalid configuration")
)

// PatternError represents a path pattern compilation error.
// Pattern compilation happens at configuration-load time, so a
// PatternError always indicates a configuration mistake, never a
// request-time failure.
type PatternError struct {
	Pattern string
	Segment string
	Message string
}

// Error implements the error interface.
func (e *PatternError) Error() string {
	if e.Segment != "" {
		return fmt.Sprintf("pattern %q: segment %q: %s", e.Pattern, e.Segment, e.Message)
	}
	return fmt.Sprintf("pattern %q: %s", e.Pattern, e.Message)
}

// Is checks if the error matches the target.
func (e *PatternError) Is(target error) bool {
	if target == ErrInvalidPattern {
		return true
	}
	_, ok := target.(*PatternError)
	return ok
}

// NewPatternError creates a new PatternError.
func NewPatternError(pattern, segment, message string) *PatternError {
	return &PatternError{Pattern: pattern, Segment: segment, Message: message}
}

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with a cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// ValidationError represents a validation failure over a rule set.
type ValidationError struct {
	Fields  map[string]string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s (fields: %v)", e.Message, e.Fields)
}

// Is checks if the error matches the target.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message, Fields: make(map[string]string)}
}

// AddField adds a field error.
func (e *ValidationError) AddField(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
}

// HandlerError represents a failure raised by a middleware handler.
// The executor maps it to a generic 500 response unless the caller
// opted into continue-on-error.
type HandlerError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("middleware handler: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("middleware handler: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *HandlerError) Is(target error) bool {
	_, ok := target.(*HandlerError)
	return ok || errors.Is(e.Cause, target)
}

// NewHandlerError creates a new HandlerError.
func NewHandlerError(message string, cause error) *HandlerError {
	return &HandlerError{Message: message, Cause: cause}
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
