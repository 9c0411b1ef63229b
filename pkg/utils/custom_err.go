package utils

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNotFound         ErrorKind = "not_found"
	KindValidation       ErrorKind = "validation"
	KindBadRequest       ErrorKind = "bad_request"
	KindGateway          ErrorKind = "gateway"
	KindTerminal         ErrorKind = "terminal"
	KindInvalidSignature ErrorKind = "invalid_signature"
	KindConflict         ErrorKind = "conflict"
	KindInternal         ErrorKind = "internal"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation error")
	ErrBadRequest       = errors.New("bad request")
	ErrGateway          = errors.New("payment gateway error")
	ErrTerminal         = errors.New("terminal payment condition")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrConflict         = errors.New("conflict")
	ErrDatabaseError    = errors.New("database error")
)

// AppError carries a kind for HTTP mapping and a message safe to show to callers.
// Err keeps the underlying cause for logs.
type AppError struct {
	Kind    ErrorKind
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

// Is matches the sentinel of the error kind. Validation and gateway errors are
// both members of the bad-request family.
func (e *AppError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrBadRequest:
		return e.Kind == KindBadRequest || e.Kind == KindValidation || e.Kind == KindGateway
	case ErrGateway:
		return e.Kind == KindGateway
	case ErrTerminal:
		return e.Kind == KindTerminal
	case ErrInvalidSignature:
		return e.Kind == KindInvalidSignature
	case ErrConflict:
		return e.Kind == KindConflict
	}
	return false
}

func NewNotFound(format string, args ...any) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewValidation(format string, args ...any) *AppError {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewBadRequest(message string, cause error) *AppError {
	return &AppError{Kind: KindBadRequest, Message: message, Err: cause}
}

func NewGatewayError(message string, cause error) *AppError {
	return &AppError{Kind: KindGateway, Message: message, Err: cause}
}

func NewTerminal(format string, args ...any) *AppError {
	return &AppError{Kind: KindTerminal, Message: fmt.Sprintf(format, args...)}
}

func NewConflict(format string, args ...any) *AppError {
	return &AppError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func NewInvalidSignature(cause error) *AppError {
	return &AppError{Kind: KindInvalidSignature, Message: "invalid webhook signature", Err: cause}
}

// PublicMessage returns the sanitized message of an AppError, or a generic text.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

// KindOf reports the kind of err, KindInternal when err is not an AppError.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
