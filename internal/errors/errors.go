package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// Error types for different categories of failures
type ErrorType string

const (
	ErrorTypeCapacity     ErrorType = "capacity"
	ErrorTypeUnresolved   ErrorType = "unresolved"
	ErrorTypePropertyType ErrorType = "property_type"
	ErrorTypeMisuse       ErrorType = "misuse"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeCancelled    ErrorType = "cancelled"
)

// Sentinels matched by errors.Is against any StructuredError of the same type.
var (
	ErrCapacityOverflow  = stderrors.New("capacity overflow")
	ErrUnresolvedNode    = stderrors.New("unresolved node")
	ErrMalformedProperty = stderrors.New("malformed property")
	ErrBuildMisuse       = stderrors.New("build misuse")
	ErrInvalidConfig     = stderrors.New("invalid configuration")
	ErrTerminated        = stderrors.New("terminated")
)

var sentinels = map[ErrorType]error{
	ErrorTypeCapacity:     ErrCapacityOverflow,
	ErrorTypeUnresolved:   ErrUnresolvedNode,
	ErrorTypePropertyType: ErrMalformedProperty,
	ErrorTypeMisuse:       ErrBuildMisuse,
	ErrorTypeValidation:   ErrInvalidConfig,
	ErrorTypeCancelled:    ErrTerminated,
}

// StructuredError provides rich error context
type StructuredError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
	Context   map[string]interface{}
	Stack     []uintptr
}

// Error implements the error interface
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Operation, e.Message)
}

// Unwrap returns the underlying cause
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel of this error's type.
func (e *StructuredError) Is(target error) bool {
	s, ok := sentinels[e.Type]
	return ok && s == target
}

// New creates a new structured error
func New(errType ErrorType, operation, message string) *StructuredError {
	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, operation, message string) *StructuredError {
	if err == nil {
		return nil
	}
	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Message:   message,
		Cause:     err,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
	}
}

// WithContext adds context information to an error
func (e *StructuredError) WithContext(key string, value interface{}) *StructuredError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// TypeOf returns the type of the first StructuredError in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Type, true
	}
	return "", false
}

func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[:n]
}

// NewCapacityError reports a buffer that would exceed its addressable length.
func NewCapacityError(operation string, required, limit int64) *StructuredError {
	return New(ErrorTypeCapacity, operation,
		fmt.Sprintf("required %d exceeds limit %d", required, limit)).
		WithContext("required", required).
		WithContext("limit", limit)
}

// NewUnresolvedError names the external id that could not be mapped.
func NewUnresolvedError(operation string, originalID int64) *StructuredError {
	return New(ErrorTypeUnresolved, operation,
		fmt.Sprintf("node with id %d was not loaded", originalID)).
		WithContext("original_id", originalID)
}

// NewPropertyTypeError reports a value that is not a number or numeric array.
func NewPropertyTypeError(operation string, value interface{}) *StructuredError {
	return New(ErrorTypePropertyType, operation,
		fmt.Sprintf("unsupported property value %v of type %T", value, value)).
		WithContext("value_type", fmt.Sprintf("%T", value))
}

// NewMisuseError reports a call made out of lifecycle order.
func NewMisuseError(operation, message string) *StructuredError {
	return New(ErrorTypeMisuse, operation, message)
}

// NewValidationError creates a validation error
func NewValidationError(operation, message string) *StructuredError {
	return New(ErrorTypeValidation, operation, message)
}

// NewCancelledError reports cooperative termination.
func NewCancelledError(operation string, cause error) *StructuredError {
	if cause == nil {
		return New(ErrorTypeCancelled, operation, "terminated")
	}
	return Wrap(cause, ErrorTypeCancelled, operation, "terminated")
}

// FromPanic converts a recovered panic value into an error. Panics carrying an
// error keep it as the cause so typed errors survive the recovery.
func FromPanic(operation string, recovered interface{}) error {
	if err, ok := recovered.(error); ok {
		if _, typed := TypeOf(err); typed {
			return err
		}
		return Wrap(err, ErrorTypeMisuse, operation, "panic")
	}
	return New(ErrorTypeMisuse, operation, fmt.Sprintf("panic: %v", recovered))
}
