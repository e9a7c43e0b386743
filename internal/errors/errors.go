package errors

import (
	stderrors "errors"
	"fmt"
)

// ParleyError is the structured error type returned across package boundaries.
// Callers classify it by code (errors.Is) or by the Is* predicates below.
type ParleyError struct {
	// Code is the unique error code (e.g., "ERR_401_INVALID_INPUT").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates the same call may succeed later.
	Retryable bool

	// Suggestion is an actionable hint for the operator.
	Suggestion string
}

// Error implements the error interface.
func (e *ParleyError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ParleyError) Unwrap() error {
	return e.Cause
}

// Is matches another ParleyError by code.
func (e *ParleyError) Is(target error) bool {
	if t, ok := target.(*ParleyError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *ParleyError) WithDetail(key, value string) *ParleyError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the operator.
func (e *ParleyError) WithSuggestion(suggestion string) *ParleyError {
	e.Suggestion = suggestion
	return e
}

// New creates a ParleyError. Category, severity and the retryable flag are
// derived from the code.
func New(code string, message string, cause error) *ParleyError {
	return &ParleyError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ParleyError from an existing error, reusing its message.
func Wrap(code string, err error) *ParleyError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *ParleyError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError reports a missing or malformed client input.
func ValidationError(message string, cause error) *ParleyError {
	return New(ErrCodeInvalidInput, message, cause)
}

// PersistenceError reports that the canonical store could not complete a write or read.
func PersistenceError(message string, cause error) *ParleyError {
	return New(ErrCodeStoreFailed, message, cause)
}

// IndexUnavailableError reports that the search index rejected or timed out a write.
func IndexUnavailableError(message string, cause error) *ParleyError {
	return New(ErrCodeIndexUnavailable, message, cause)
}

// SearchUnavailableError reports that a query could not be served. The message
// is fixed; backend detail stays in Cause.
func SearchUnavailableError(cause error) *ParleyError {
	return New(ErrCodeSearchUnavailable, "search temporarily unavailable", cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *ParleyError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first ParleyError in err's chain.
func As(err error) (*ParleyError, bool) {
	var pe *ParleyError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	pe, ok := As(err)
	return ok && pe.Retryable
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	pe, ok := As(err)
	return ok && pe.Severity == SeverityFatal
}

// IsValidation reports whether err is a client input error of any 4XX code.
func IsValidation(err error) bool {
	pe, ok := As(err)
	return ok && pe.Category == CategoryValidation
}

// IsPersistence reports whether err came from the canonical store.
func IsPersistence(err error) bool {
	return GetCode(err) == ErrCodeStoreFailed
}

// IsIndexUnavailable reports whether err is an index write failure.
func IsIndexUnavailable(err error) bool {
	return GetCode(err) == ErrCodeIndexUnavailable
}

// IsSearchUnavailable reports whether err is a query backend failure.
func IsSearchUnavailable(err error) bool {
	return GetCode(err) == ErrCodeSearchUnavailable
}

// GetCode extracts the error code, or "" when err carries none.
func GetCode(err error) string {
	if pe, ok := As(err); ok {
		return pe.Code
	}
	return ""
}

// GetCategory extracts the category, or "" when err carries none.
func GetCategory(err error) Category {
	if pe, ok := As(err); ok {
		return pe.Category
	}
	return ""
}
