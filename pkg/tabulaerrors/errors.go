// Package tabulaerrors provides structured error handling for tabula with
// error categorization, key-value context, and stack traces.
//
// # Overview
//
// Every pipeline stage returns either a value or one typed error. The type
// identifies the failure class (a malformed record, a failed type conversion,
// a corrupt footer) and the details carry the offending position:
//
//	err := tabulaerrors.New(tabulaerrors.ErrorTypeTypeConversion, "cannot parse value").
//	    WithDetail("row", 42).
//	    WithDetail("column", "score").
//	    WithDetail("raw_value", "n/a").
//	    WithDetail("target_type", "float")
//
// Existing errors are wrapped with Wrap, which keeps the cause available to
// errors.Is and errors.As:
//
//	f, err := os.Open(path)
//	if err != nil {
//	    return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to open input").
//	        WithDetail("path", path)
//	}
//
// # Retry
//
// Nothing in tabula retries internally. IsRetryable only tells a host
// application whether running the same invocation again could succeed.
//
// # Thread Safety
//
// Error instances are not safe for concurrent modification. Attach all
// details before sharing an error across goroutines.
package tabulaerrors

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// ErrorType represents the category of an error.
type ErrorType string

const (
	// ErrorTypeIO represents open, read and write failures
	ErrorTypeIO ErrorType = "io"
	// ErrorTypeMalformedRecord represents delimited text that cannot be split into records
	ErrorTypeMalformedRecord ErrorType = "malformed_record"
	// ErrorTypeTypeConversion represents a raw value that does not parse under its column type
	ErrorTypeTypeConversion ErrorType = "type_conversion"
	// ErrorTypeUnsupportedVersion represents a colfile written by an unknown format version
	ErrorTypeUnsupportedVersion ErrorType = "unsupported_version"
	// ErrorTypeCorruptFooter represents a missing, truncated or checksum-failing footer
	ErrorTypeCorruptFooter ErrorType = "corrupt_footer"
	// ErrorTypeCorruptChunk represents chunk data that fails its checksum or layout
	ErrorTypeCorruptChunk ErrorType = "corrupt_chunk"
	// ErrorTypeSchemaMismatch represents a stored schema that disagrees with the expected one
	ErrorTypeSchemaMismatch ErrorType = "schema_mismatch"
	// ErrorTypeInvalidFormat represents input that is not in the format it claims to be
	ErrorTypeInvalidFormat ErrorType = "invalid_format"
	// ErrorTypeTimeout represents a stalled read or write on a network source
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeCanceled represents a run aborted through its context
	ErrorTypeCanceled ErrorType = "canceled"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeValidation represents invalid arguments
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeInternal represents internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// Error represents a structured error with context.
//
// Fields:
//   - Type: Categorizes the error
//   - Message: Human-readable error description
//   - Cause: The underlying error, if any
//   - Details: Key-value pairs such as row, column or path
//   - Stack: Call stack at the point of creation
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface. The format is "type: message" with
// ": cause" appended when a cause is present.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. Calls can be chained.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Detail returns the detail stored under key.
func (e *Error) Detail(key string) (interface{}, bool) {
	v, ok := e.Details[key]
	return v, ok
}

// Context renders the details as "k=v" pairs sorted by key, or "" when there
// are none. Used by the CLI to print the offending row and column.
func (e *Error) Context() string {
	if len(e.Details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, e.Details[k])
	}
	return strings.Join(parts, " ")
}

// New creates a new error of the given type and captures the call stack.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error, preserving it as the cause. If the error is
// already a structured Error its stack and details are carried over. Returns
// nil if err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existingErr *Error
	if errors.As(err, &existingErr) {
		wrapped := &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
		for k, v := range existingErr.Details {
			wrapped.WithDetail(k, v)
		}
		return wrapped
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, errType, fmt.Sprintf(format, args...))
}

// FromContext converts a context error into a structured error: deadlines
// become ErrorTypeTimeout and cancellations ErrorTypeCanceled. Returns nil
// if err is nil.
func FromContext(err error, message string) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, ErrorTypeTimeout, message)
	}
	return Wrap(err, ErrorTypeCanceled, message)
}

// IsRetryable reports whether repeating the same invocation could succeed.
// Only timeout and io errors qualify.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeIO:
		return true
	default:
		return false
	}
}

// IsType checks whether the outermost structured error in the chain has the
// given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// GetType returns the type of the outermost structured error in the chain,
// or ErrorTypeInternal for plain errors.
func GetType(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the given number of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
