package domain

import (
	"errors"
	"fmt"
)

// ErrNoAnswer is returned by a QA backend that found no answer candidates.
// It is a successful-empty result, not a failure.
var ErrNoAnswer = errors.New("no answer found")

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeExtraction  ErrorType = "extraction"
	ErrorTypeTranslation ErrorType = "translation"
	ErrorTypeNoContext   ErrorType = "no_context"
	ErrorTypeBackend     ErrorType = "backend"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeAPI         ErrorType = "api"
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeIO          ErrorType = "io"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func ExtractionError(message string, err error) *DomainError {
	return NewError(ErrorTypeExtraction, message, err)
}

func TranslationError(message string, err error) *DomainError {
	return NewError(ErrorTypeTranslation, message, err)
}

// NoContextUserMessage is the user-facing text for a NoContext error.
const NoContextUserMessage = "请先上传并翻译PDF"

// NoContextError is returned when a question arrives before any document was translated.
func NoContextError() *DomainError {
	return NewError(ErrorTypeNoContext, "no document context, upload and translate a document first", nil)
}

func BackendError(message string, err error) *DomainError {
	return NewError(ErrorTypeBackend, message, err)
}

func NotFoundError(message string, err error) *DomainError {
	return NewError(ErrorTypeNotFound, message, err)
}

func APIError(message string, err error) *DomainError {
	return NewError(ErrorTypeAPI, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

// TypeOf returns the type of the outermost DomainError in the chain, or "" if there is none.
func TypeOf(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

// IsType reports whether err carries a DomainError of the given type.
func IsType(err error, errType ErrorType) bool {
	return TypeOf(err) == errType
}
