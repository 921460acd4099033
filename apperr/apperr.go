// Package apperr classifies domain failures so the HTTP boundary can map them
// to precise client responses without knowing each package's sentinels.
package apperr

import "errors"

// Kinds. Every classified error unwraps to exactly one of these.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrBusinessRule = errors.New("business rule violation")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error is a classified failure. Package-level *Error values act as specific
// sentinels while still matching their Kind through errors.Is.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func NotFound(msg string) *Error     { return &Error{Kind: ErrNotFound, Message: msg} }
func Forbidden(msg string) *Error    { return &Error{Kind: ErrForbidden, Message: msg} }
func BusinessRule(msg string) *Error { return &Error{Kind: ErrBusinessRule, Message: msg} }
func Validation(msg string) *Error   { return &Error{Kind: ErrValidation, Message: msg} }
func Unauthorized(msg string) *Error { return &Error{Kind: ErrUnauthorized, Message: msg} }

var kinds = []error{ErrNotFound, ErrForbidden, ErrBusinessRule, ErrValidation, ErrUnauthorized}

// KindOf returns the kind err is classified as, or nil for infrastructure errors.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Label is a short stable name for err's kind, used for metrics and logs.
func Label(err error) string {
	switch KindOf(err) {
	case nil:
		if err == nil {
			return "ok"
		}
		return "error"
	case ErrNotFound:
		return "not_found"
	case ErrForbidden:
		return "forbidden"
	case ErrBusinessRule:
		return "business_rule"
	case ErrValidation:
		return "validation"
	default:
		return "unauthorized"
	}
}

// Message returns the client-safe message for a classified error.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
