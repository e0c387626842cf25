package errors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Configuration errors
	ErrConfigNotFound   = errors.New("configuration source not found")
	ErrConfigParse      = errors.New("configuration parse failed")
	ErrConfigValidation = errors.New("configuration validation failed")

	// Registry errors
	ErrDuplicateName    = errors.New("component name already registered")
	ErrUnknownComponent = errors.New("component not registered")

	// Dependency resolution errors
	ErrCycleDetected     = errors.New("dependency cycle detected")
	ErrMissingDependency = errors.New("missing dependency")

	// Lifecycle errors
	ErrConfigBinding     = errors.New("configuration binding failed")
	ErrStartTimeout      = errors.New("component start timed out")
	ErrStartFailed       = errors.New("component start failed")
	ErrStopFailed        = errors.New("component stop failed")
	ErrReconfigureFailed = errors.New("component reconfigure failed")
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// Health check errors
	ErrProbeTimeout = errors.New("health probe timed out")
	ErrProbeFailed  = errors.New("health probe failed")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// CycleError reports a dependency cycle among enabled components.
// Path holds the component names along the cycle; the first name is
// repeated at the end so the path reads a -> b -> a.
type CycleError struct {
	Path []string
}

// Error implements the error interface
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Path, " -> "))
}

// Unwrap returns ErrCycleDetected so errors.Is matches the sentinel
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

// MissingDependencyError reports a declared dependency that is either
// absent from the registry or registered but disabled.
type MissingDependencyError struct {
	Component string // component declaring the dependency
	Missing   string // dependency that cannot be satisfied
	Disabled  bool   // true when the dependency exists but is disabled
}

// Error implements the error interface
func (e *MissingDependencyError) Error() string {
	if e.Disabled {
		return fmt.Sprintf("component %q depends on %q which is disabled", e.Component, e.Missing)
	}
	return fmt.Sprintf("component %q depends on %q which is not registered", e.Component, e.Missing)
}

// Unwrap returns ErrMissingDependency so errors.Is matches the sentinel
func (e *MissingDependencyError) Unwrap() error {
	return ErrMissingDependency
}

// BuildError reports the single component that aborted a build, with
// its cause. The cause wraps ErrStartTimeout, ErrConfigBinding, or the
// component's own start error.
type BuildError struct {
	Component string
	Cause     error
}

// Error implements the error interface
func (e *BuildError) Error() string {
	return fmt.Sprintf("build aborted: component %q: %v", e.Component, e.Cause)
}

// Unwrap returns the chain [ErrStartFailed, Cause]
func (e *BuildError) Unwrap() []error {
	return []error{ErrStartFailed, e.Cause}
}

// ShutdownError collects stop failures from a shutdown walk. Shutdown
// always attempts every remaining component; failures are recorded here
// rather than aborting the walk.
type ShutdownError struct {
	Failures map[string]error
}

// Error implements the error interface
func (e *ShutdownError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("shutdown completed with %d stop failure(s): %s",
		len(e.Failures), strings.Join(names, ", "))
}

// Unwrap returns ErrStopFailed so errors.Is matches the sentinel
func (e *ShutdownError) Unwrap() error {
	return ErrStopFailed
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	return errors.Is(err, ErrProbeTimeout) ||
		errors.Is(err, ErrStartTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrStartFailed) ||
		errors.Is(err, ErrCycleDetected)
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrConfigParse) ||
		errors.Is(err, ErrConfigValidation) ||
		errors.Is(err, ErrConfigBinding) ||
		errors.Is(err, ErrDuplicateName) ||
		errors.Is(err, ErrMissingDependency) ||
		errors.Is(err, ErrInvalidTransition)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	// Default to transient for unknown errors to allow retry
	return ErrorTransient
}

// newClassified creates a new classified error
// This is an internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}
