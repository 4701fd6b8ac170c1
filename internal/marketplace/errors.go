package marketplace

import (
	"errors"
	"fmt"
)

// Kind classifies a refused operation.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindForbidden        Kind = "forbidden"
	KindInvalidOperation Kind = "invalid_operation"
	KindValidation       Kind = "validation_error"
	KindUnauthorized     Kind = "unauthorized"
	KindConflict         Kind = "conflict"
)

// Error is a business-rule violation returned at the operation boundary.
// Details carries the facts behind the refusal (acting role, current status)
// so callers can show exactly why a transition was refused.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s %v", e.Kind, e.Message, e.Details)
}

// NewError builds an *Error. details is read as key/value pairs.
func NewError(kind Kind, msg string, details ...any) *Error {
	e := &Error{Kind: kind, Message: msg}
	if len(details) > 0 {
		e.Details = make(map[string]any, len(details)/2)
		for i := 0; i+1 < len(details); i += 2 {
			key, ok := details[i].(string)
			if !ok {
				key = fmt.Sprint(details[i])
			}
			e.Details[key] = details[i+1]
		}
	}
	return e
}

func errNotFound(msg string, details ...any) error {
	return NewError(KindNotFound, msg, details...)
}

func errForbidden(msg string, details ...any) error {
	return NewError(KindForbidden, msg, details...)
}

func errInvalid(msg string, details ...any) error {
	return NewError(KindInvalidOperation, msg, details...)
}

func errValidation(msg string, details ...any) error {
	return NewError(KindValidation, msg, details...)
}

func errConflict(msg string, details ...any) error {
	return NewError(KindConflict, msg, details...)
}

// KindOf returns the Kind of err, or "" for errors that are not business
// errors (persistence failures and the like).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ErrNoRecord is returned by Store implementations when a lookup matches
// nothing.
var ErrNoRecord = errors.New("marketplace: no record")
