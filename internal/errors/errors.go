// Package errors classifies failures of a graph build by where they came from:
// configuration, source data, files, or a database.
package errors

import "fmt"

// ErrorType is the origin of a failure
type ErrorType int

const (
	ErrorTypeConfig     ErrorType = iota // bad or missing settings
	ErrorTypeValidation                  // source data or labels that cannot be mapped
	ErrorTypeFileSystem                  // dataset, CSV or script I/O
	ErrorTypeDatabase                    // Neo4j or the staging store
	ErrorTypeInternal                    // anything not raised through this package
)

// Error carries a message, its origin and an optional cause
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value, e.g. the path of the file being read
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is matches any *Error of the same type, so callers can test
// errors.Is(err, &Error{Type: ErrorTypeDatabase}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Type == t.Type
}

func wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Type: errType, Message: message, Cause: err}
}

// ConfigError reports an unusable setting
func ConfigError(message string) *Error {
	return &Error{Type: ErrorTypeConfig, Message: message}
}

// ValidationError wraps a failure to accept input
func ValidationError(err error, message string) *Error {
	return wrap(err, ErrorTypeValidation, message)
}

func ValidationErrorf(format string, args ...interface{}) *Error {
	return &Error{Type: ErrorTypeValidation, Message: fmt.Sprintf(format, args...)}
}

// FileSystemErrorf wraps an I/O failure. It returns nil for a nil err.
func FileSystemErrorf(err error, format string, args ...interface{}) *Error {
	return wrap(err, ErrorTypeFileSystem, fmt.Sprintf(format, args...))
}

// DatabaseError wraps a driver or query failure. It returns nil for a nil err.
func DatabaseError(err error, message string) *Error {
	return wrap(err, ErrorTypeDatabase, message)
}

func DatabaseErrorf(err error, format string, args ...interface{}) *Error {
	return wrap(err, ErrorTypeDatabase, fmt.Sprintf(format, args...))
}

// GetType returns the origin of err, or ErrorTypeInternal when err was not
// raised through this package.
func GetType(err error) ErrorType {
	if e, ok := err.(*Error); ok {
		return e.Type
	}
	return ErrorTypeInternal
}
