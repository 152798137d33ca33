// Package errors provides structured error types for flowydb.
// Every error carries a category, a code, a message and a retryable flag so
// callers can branch on what went wrong without matching strings.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the component that raised them.
type ErrorCategory string

const (
	ErrCategorySchema     ErrorCategory = "SCHEMA"
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryQuery      ErrorCategory = "QUERY"
	ErrCategoryBackup     ErrorCategory = "BACKUP"
	ErrCategoryMigration  ErrorCategory = "MIGRATION"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Schema codes
	CodeInvalidDeclaration = "INVALID_DECLARATION"
	CodeSchemaDrift        = "SCHEMA_DRIFT"

	// Validation codes
	CodeUnknownTable  = "UNKNOWN_TABLE"
	CodeUnknownColumn = "UNKNOWN_COLUMN"
	CodeMissingColumn = "MISSING_COLUMN"
	CodeTypeMismatch  = "TYPE_MISMATCH"

	// Storage codes
	CodeDuplicateKey   = "DUPLICATE_KEY"
	CodeRecordNotFound = "RECORD_NOT_FOUND"
	CodeBusy           = "BUSY"
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Query codes
	CodeJoinNotAllowed = "JOIN_NOT_ALLOWED"
	CodeInvalidQuery   = "INVALID_QUERY"

	// Migration codes
	CodeMigrationFailed = "MIGRATION_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// FlowyError is the structured error type used throughout the module.
type FlowyError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *FlowyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *FlowyError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *FlowyError) Is(target error) bool {
	var t *FlowyError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new FlowyError.
func New(category ErrorCategory, code, message string) *FlowyError {
	return &FlowyError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new FlowyError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *FlowyError {
	return &FlowyError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *FlowyError) WithDetails(details map[string]interface{}) *FlowyError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var fe *FlowyError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a FlowyError.
func GetCategory(err error) ErrorCategory {
	var fe *FlowyError
	if errors.As(err, &fe) {
		return fe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a FlowyError.
func GetCode(err error) string {
	var fe *FlowyError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// HasCode reports whether any FlowyError in the chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var fe *FlowyError
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Code == code {
			return true
		}
		err = fe.Cause
	}
	return false
}

func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeBusy:
		return true
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	case category == ErrCategoryBackup && code == CodeUploadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewSchemaError(code, message string) *FlowyError {
	return New(ErrCategorySchema, code, message)
}

func NewValidationError(code, message string) *FlowyError {
	return New(ErrCategoryValidation, code, message)
}

func NewStorageError(code, message string, cause error) *FlowyError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewQueryError(code, message string) *FlowyError {
	return New(ErrCategoryQuery, code, message)
}

func NewBackupError(code, message string, cause error) *FlowyError {
	return Wrap(ErrCategoryBackup, code, message, cause)
}

func NewMigrationError(message string, cause error) *FlowyError {
	return Wrap(ErrCategoryMigration, CodeMigrationFailed, message, cause)
}

func NewInternalError(message string, cause error) *FlowyError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
