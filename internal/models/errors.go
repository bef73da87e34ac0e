package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes surfaced in the error envelope.
const (
	CodeBadRequest        = "BadRequest"
	CodeUnsafeFilename    = "UnsafeFilename"
	CodeTooLarge          = "TooLarge"
	CodeUnsafePath        = "UnsafePath"
	CodeUnauthorized      = "Unauthorized"
	CodeForbidden         = "Forbidden"
	CodeNotFound          = "NotFound"
	CodeEmailInUse        = "EmailInUse"
	CodeInvalidResetToken = "InvalidResetToken"
	CodeInternal          = "Internal"
)

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Status maps the error code onto an HTTP status.
func (e *AppError) Status() int {
	switch e.Code {
	case CodeBadRequest, CodeUnsafeFilename, CodeTooLarge, CodeUnsafePath, CodeInvalidResetToken:
		return fiber.StatusBadRequest
	case CodeUnauthorized:
		return fiber.StatusUnauthorized
	case CodeForbidden:
		return fiber.StatusForbidden
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeEmailInUse:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
	}
}

func NewEmailInUseError(email string) *AppError {
	return &AppError{
		Code:    CodeEmailInUse,
		Message: fmt.Sprintf("email %s is already registered", email),
	}
}

func NewInvalidResetTokenError(err error) *AppError {
	return &AppError{
		Code:    CodeInvalidResetToken,
		Message: "reset token is invalid or expired",
		Err:     err,
	}
}

func NewUnsafeFilenameError(name string) *AppError {
	return &AppError{
		Code:    CodeUnsafeFilename,
		Message: fmt.Sprintf("filename %q is not allowed", name),
	}
}

func NewTooLargeError(limit int64) *AppError {
	return &AppError{
		Code:    CodeTooLarge,
		Message: fmt.Sprintf("file exceeds the %d byte upload limit", limit),
	}
}

func NewUnsafePathError(err error) *AppError {
	return &AppError{
		Code:    CodeUnsafePath,
		Message: "attachment path is not allowed",
		Err:     err,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// AsAppError unwraps err into an AppError, wrapping unknown errors as Internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError(err)
}

// IsCode reports whether err is an AppError carrying code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
