// Package apperr is the error taxonomy shared by the registration and
// webhook layers.  Every error that crosses the HTTP boundary is an
// *Error carrying a Kind and a stable, machine-readable Reason.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	InvalidArgument  Kind = "invalid_argument"
	NotFound         Kind = "not_found"
	AlreadyExists    Kind = "already_exists"
	DeadlineExceeded Kind = "deadline_exceeded"
	PermissionDenied Kind = "permission_denied"
	Internal         Kind = "internal"
)

// Error is a classified failure.  Reason never changes once published;
// Message is human readable and may be reworded freely.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error // internal cause, logged but never returned to clients
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s(%s): %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s(%s): %s", e.Kind, e.Reason, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind and Reason so callers can compare against a
// template error with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Reason == "" || e.Reason == t.Reason)
}

func New(kind Kind, reason, msg string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: msg}
}

func Invalid(reason, msg string) *Error { return New(InvalidArgument, reason, msg) }
func Missing(reason, msg string) *Error { return New(NotFound, reason, msg) }
func Exists(reason, msg string) *Error  { return New(AlreadyExists, reason, msg) }
func Deadline(reason, msg string) *Error {
	return New(DeadlineExceeded, reason, msg)
}
func Denied(reason, msg string) *Error { return New(PermissionDenied, reason, msg) }

// Wrap classifies an unexpected failure as Internal.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	if ae, ok := As(err); ok {
		return ae
	}
	return &Error{Kind: Internal, Reason: "internal", Message: "unexpected error", Err: err}
}

func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the Kind of err, Internal for unclassified errors.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return Internal
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case InvalidArgument:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case AlreadyExists:
		return http.StatusConflict
	case DeadlineExceeded:
		return http.StatusUnprocessableEntity
	case PermissionDenied:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// Reason returns the stable reason string of err.
func Reason(err error) string {
	if ae, ok := As(err); ok && ae.Reason != "" {
		return ae.Reason
	}
	return "internal"
}

// PublicMessage returns the message safe to show to clients.
func PublicMessage(err error) string {
	if ae, ok := As(err); ok && ae.Kind != Internal && ae.Message != "" {
		return ae.Message
	}
	return "unexpected error"
}
