package provider

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindRateLimited     ErrorKind = "rate_limited"
	KindTimeout         ErrorKind = "timeout"
	KindInvalidResponse ErrorKind = "invalid_response"
	KindAuth            ErrorKind = "auth_error"
	KindQuotaExceeded   ErrorKind = "quota_exceeded"
)

// Error is the taxonomy every adapter maps vendor failures into.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Provider, e.Kind, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether waiting and trying again may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTimeout
}

// Terminal reports whether the failure invalidates the whole job.
func (e *Error) Terminal() bool {
	return e.Kind == KindAuth || e.Kind == KindQuotaExceeded
}

func NewError(provider string, kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Err: err}
}

// KindOf returns the taxonomy kind carried by err, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsTerminal reports whether err must abort the whole job.
func IsTerminal(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Terminal()
}
