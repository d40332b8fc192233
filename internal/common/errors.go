package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConfig       = errors.New("configuration error")
	ErrConflict     = errors.New("conflicting state")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// DatabaseError wraps a driver error so callers can match ErrDatabase.
func DatabaseError(code, message string, cause error) error {
	return NewAppError(code, message, fmt.Errorf("%w: %w", ErrDatabase, cause))
}

// UserMessage returns the human-readable part of err, without codes or causes.
// Queue items and editor banners show this text.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	var msg interface{ UserMessage() string }
	if errors.As(err, &msg) {
		if m := msg.UserMessage(); m != "" {
			return m
		}
	}
	return fallback
}
