package ocr

import (
	"errors"
	"fmt"
)

// Kind classifies an OCR failure for the retry policy.
type Kind string

const (
	KindConfig    Kind = "config"
	KindTransport Kind = "transport"
	KindContent   Kind = "content"
	KindTimeout   Kind = "timeout"
)

var (
	// ErrNotConfigured is returned when no webhook URL is set. It is never retried.
	ErrNotConfigured = errors.New("ocr webhook url not configured")
	ErrHTTPStatus    = errors.New("unexpected http status")
	ErrInvalidJSON   = errors.New("response is not valid json")
	ErrSchema        = errors.New("response does not match schema")
	ErrTimeout       = errors.New("ocr polling timed out")
)

// Error is an OCR failure carrying the operation, its kind and a message fit
// for display next to a queue item.
type Error struct {
	Op      string
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("ocr: %s (%s): %s: %v", e.Op, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("ocr: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// UserMessage returns the display text for the failure.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func newError(op string, kind Kind, message string, err error) *Error {
	return &Error{Op: op, Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of an OCR error, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether another attempt may succeed. Configuration
// errors never are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) != KindConfig && !errors.Is(err, ErrNotConfigured)
}
