package command

import (
	"errors"
	"fmt"

	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/naming"
)

// ErrorCode categorizes a failed command at the Result boundary.
type ErrorCode string

const (
	CodeValidation ErrorCode = "VALIDATION"
	CodeNotFound   ErrorCode = "NOT_FOUND"
	CodeProtected  ErrorCode = "PROTECTED"
	CodeDecode     ErrorCode = "DECODE"
	CodeInternal   ErrorCode = "INTERNAL"
)

// ValidationError reports bad command arguments.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return "invalid arguments: " + e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError reports a missing feature, sketch element or variable.
type NotFoundError struct {
	What string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.What, e.ID)
}

// ProtectedFeatureError reports an attempt to mutate a pinned datum.
type ProtectedFeatureError struct {
	ID        document.FeatureID
	Operation string
}

func (e *ProtectedFeatureError) Error() string {
	return fmt.Sprintf("cannot %s pinned datum %s", e.Operation, e.ID)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsProtected reports whether err is a ProtectedFeatureError.
func IsProtected(err error) bool {
	var pe *ProtectedFeatureError
	return errors.As(err, &pe)
}

// Code maps err to its category. Validation is checked before decode so a
// ValidationError wrapping a DecodeError reports as validation.
func Code(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case IsValidation(err):
		return CodeValidation
	case IsNotFound(err):
		return CodeNotFound
	case IsProtected(err):
		return CodeProtected
	case naming.IsDecodeError(err):
		return CodeDecode
	}
	return CodeInternal
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func featureNotFound(id document.FeatureID) *NotFoundError {
	return &NotFoundError{What: "feature", ID: string(id)}
}
