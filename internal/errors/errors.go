package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"strings"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// Configuration errors - missing or invalid configuration
	ErrorTypeConfig ErrorType = iota
	// Validation errors - malformed resource or descriptor
	ErrorTypeValidation
	// Database errors - non-transient store failures outside a mutation
	ErrorTypeDatabase
	// RetryExhausted errors - transient store failures outlasted the retry bound
	ErrorTypeRetryExhausted
	// ParentNotFound errors - dependency resolved to zero parent vertices
	ErrorTypeParentNotFound
	// NotFound errors - the addressed resource (or a relation target) does not exist
	ErrorTypeNotFound
	// Conflict errors - the resource already exists
	ErrorTypeConflict
	// Precondition errors - resource-version mismatch
	ErrorTypePrecondition
	// Ambiguous errors - a locator matched more than one vertex
	ErrorTypeAmbiguous
	// Mutation errors - store failure while applying a mutation
	ErrorTypeMutation
	// Unavailable errors - the graph store is known to be down
	ErrorTypeUnavailable
	// Internal errors - unexpected internal state
	ErrorTypeInternal
)

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - can continue with degraded functionality
	SeverityLow Severity = iota
	// SeverityMedium - should be addressed but not fatal
	SeverityMedium
	// SeverityHigh - significant issue, the request fails
	SeverityHigh
	// SeverityCritical - must be addressed, stops execution
	SeverityCritical
)

// Stable error codes surfaced to operators and API clients.
const (
	CodeValidation         = "INV_3000"
	CodeDatabase           = "INV_5100"
	CodeMutationFailure    = "INV_5102"
	CodeStoreUnavailable   = "INV_5104"
	CodeMaxRetriesExceeded = "INV_5105"
	CodeParentNotFound     = "INV_6114"
	CodeResourceNotFound   = "INV_6115"
	CodeAlreadyExists      = "INV_6117"
	CodePreconditionFailed = "INV_6130"
	CodeAmbiguousParent    = "INV_6140"
	CodeAmbiguousTarget    = "INV_6141"
	CodeInternal           = "INV_5000"
	CodeConfig             = "INV_1000"
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType
	Severity   Severity
	Code       string
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := e.Message
	if e.Code != "" {
		prefix = e.Code + ": " + e.Message
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", prefix, e.Cause)
	}
	return prefix
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is checks if this error matches the target error type.
// A target carrying a Code must match it as well, so the two ambiguity
// sentinels stay distinguishable.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Type != t.Type {
		return false
	}
	return t.Code == "" || e.Code == t.Code
}

// IsFatal returns true if this error should stop execution
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// HTTPStatus maps the error kind to the status code a REST layer should answer with
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeParentNotFound, ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypePrecondition:
		return http.StatusPreconditionFailed
	case ErrorTypeRetryExhausted, ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DetailedString returns a detailed error message with context
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] [%s] [%s] %s\n",
		severityString(e.Severity),
		typeString(e.Type),
		e.Code,
		e.Message))

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("Context:\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, e.Context[k]))
		}
	}

	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("Stack trace:\n%s\n", e.StackTrace))
	}

	return sb.String()
}

func typeString(t ErrorType) string {
	switch t {
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeValidation:
		return "VALIDATION"
	case ErrorTypeDatabase:
		return "DATABASE"
	case ErrorTypeRetryExhausted:
		return "RETRY_EXHAUSTED"
	case ErrorTypeParentNotFound:
		return "PARENT_NOT_FOUND"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypePrecondition:
		return "PRECONDITION"
	case ErrorTypeAmbiguous:
		return "AMBIGUOUS"
	case ErrorTypeMutation:
		return "MUTATION"
	case ErrorTypeUnavailable:
		return "UNAVAILABLE"
	case ErrorTypeInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// captureStackTrace captures the current stack trace
func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new error with the given type, severity, code and message
func New(errType ErrorType, severity Severity, code, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Code:       code,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(3),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, severity Severity, code, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Type:       errType,
		Severity:   severity,
		Code:       code,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(3),
	}
}

// Sentinels for errors.Is matching. Only Type (and Code where set) is compared.
var (
	ErrValidation         = &Error{Type: ErrorTypeValidation}
	ErrDatabase           = &Error{Type: ErrorTypeDatabase}
	ErrMaxRetriesExceeded = &Error{Type: ErrorTypeRetryExhausted}
	ErrParentNotFound     = &Error{Type: ErrorTypeParentNotFound}
	ErrResourceNotFound   = &Error{Type: ErrorTypeNotFound}
	ErrAlreadyExists      = &Error{Type: ErrorTypeConflict}
	ErrPreconditionFailed = &Error{Type: ErrorTypePrecondition}
	ErrAmbiguousParent    = &Error{Type: ErrorTypeAmbiguous, Code: CodeAmbiguousParent}
	ErrAmbiguousTarget    = &Error{Type: ErrorTypeAmbiguous, Code: CodeAmbiguousTarget}
	ErrMutationFailure    = &Error{Type: ErrorTypeMutation}
	ErrStoreUnavailable   = &Error{Type: ErrorTypeUnavailable}
)

// Convenience constructors for the serialization taxonomy

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, CodeConfig, fmt.Sprintf(format, args...))
}

// ValidationErrorf creates a validation error with formatting
func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, SeverityHigh, CodeValidation, fmt.Sprintf(format, args...))
}

// DatabaseErrorf wraps a non-transient store error with formatting
func DatabaseErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeDatabase, SeverityHigh, CodeDatabase, fmt.Sprintf(format, args...))
}

// MaxRetriesExceeded reports that parent resolution kept failing transiently.
// The store error is kept as the cause but its text is not repeated in the message.
func MaxRetriesExceeded(resourceType, key string, attempts int, cause error) *Error {
	e := Wrap(cause, ErrorTypeRetryExhausted, SeverityHigh, CodeMaxRetriesExceeded,
		fmt.Sprintf("max retries exceeded resolving parent of %s %q after %d attempts", resourceType, key, attempts))
	if e == nil {
		e = New(ErrorTypeRetryExhausted, SeverityHigh, CodeMaxRetriesExceeded,
			fmt.Sprintf("max retries exceeded resolving parent of %s %q after %d attempts", resourceType, key, attempts))
	}
	return e.WithContext("resource_type", resourceType).
		WithContext("resource_key", key).
		WithContext("attempts", attempts)
}

// ParentNotFound reports a dependency that resolved to no vertex
func ParentNotFound(resourceType, key string) *Error {
	return New(ErrorTypeParentNotFound, SeverityHigh, CodeParentNotFound,
		fmt.Sprintf("parent of %s %q not found", resourceType, key)).
		WithContext("resource_type", resourceType).
		WithContext("resource_key", key)
}

// AmbiguousParent reports a dependency that resolved to more than one vertex
func AmbiguousParent(resourceType, key string, matches int) *Error {
	return New(ErrorTypeAmbiguous, SeverityHigh, CodeAmbiguousParent,
		fmt.Sprintf("parent of %s %q is ambiguous: %d matches", resourceType, key, matches)).
		WithContext("resource_type", resourceType).
		WithContext("resource_key", key).
		WithContext("matches", matches)
}

// AmbiguousTarget reports a target locator that matched more than one vertex
func AmbiguousTarget(resourceType, key string, matches int) *Error {
	return New(ErrorTypeAmbiguous, SeverityHigh, CodeAmbiguousTarget,
		fmt.Sprintf("%s %q is ambiguous: %d matches", resourceType, key, matches)).
		WithContext("resource_type", resourceType).
		WithContext("resource_key", key).
		WithContext("matches", matches)
}

// ResourceNotFound reports a missing resource
func ResourceNotFound(resourceType, key string) *Error {
	return New(ErrorTypeNotFound, SeverityMedium, CodeResourceNotFound,
		fmt.Sprintf("%s %q not found", resourceType, key)).
		WithContext("resource_type", resourceType).
		WithContext("resource_key", key)
}

// AlreadyExists reports a create against an existing resource
func AlreadyExists(resourceType, key string) *Error {
	return New(ErrorTypeConflict, SeverityMedium, CodeAlreadyExists,
		fmt.Sprintf("%s %q already exists", resourceType, key)).
		WithContext("resource_type", resourceType).
		WithContext("resource_key", key)
}

// PreconditionFailed reports a resource-version mismatch
func PreconditionFailed(resourceType, key, expected, actual string) *Error {
	return New(ErrorTypePrecondition, SeverityMedium, CodePreconditionFailed,
		fmt.Sprintf("resource-version mismatch on %s %q: got %q, stored %q", resourceType, key, expected, actual)).
		WithContext("resource_type", resourceType).
		WithContext("resource_key", key)
}

// MutationFailure wraps a store error raised while applying a mutation
func MutationFailure(resourceType, key string, cause error) *Error {
	return Wrap(cause, ErrorTypeMutation, SeverityHigh, CodeMutationFailure,
		fmt.Sprintf("failed to apply mutation to %s %q", resourceType, key)).
		WithContext("resource_type", resourceType).
		WithContext("resource_key", key)
}

// StoreUnavailable reports that the graph store is known to be down
func StoreUnavailable(message string) *Error {
	return New(ErrorTypeUnavailable, SeverityHigh, CodeStoreUnavailable, message)
}

// InternalErrorf creates an internal error
func InternalErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeInternal, SeverityCritical, CodeInternal, fmt.Sprintf(format, args...))
}

// As finds the first *Error in err's chain
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsFatal checks if an error is fatal (should stop execution)
func IsFatal(err error) bool {
	if e, ok := As(err); ok {
		return e.IsFatal()
	}
	return false
}

// GetSeverity returns the severity of an error
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityLow
	}
	if e, ok := As(err); ok {
		return e.Severity
	}
	return SeverityMedium
}

// GetType returns the type of an error
func GetType(err error) ErrorType {
	if e, ok := As(err); ok {
		return e.Type
	}
	return ErrorTypeInternal
}

// CodeOf returns the stable code for err, CodeInternal for untyped errors
func CodeOf(err error) string {
	if e, ok := As(err); ok && e.Code != "" {
		return e.Code
	}
	return CodeInternal
}

// StatusOf returns the HTTP status for err
func StatusOf(err error) int {
	if e, ok := As(err); ok {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
