// Package apperr holds the error kinds shared by the lifecycle manager,
// the dispatcher and the HTTP handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by who is at fault and whether a retry can help.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindStoreUnavailable
	KindNotificationDelivery
	KindConflict
	KindRemediation
)

var kindNames = map[Kind]string{
	KindInternal:             "internal",
	KindValidation:           "validation",
	KindNotFound:             "not_found",
	KindStoreUnavailable:     "store_unavailable",
	KindNotificationDelivery: "notification_delivery",
	KindConflict:             "conflict",
	KindRemediation:          "remediation",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind_%d", int(k))
}

// StatusCode is the HTTP-equivalent status reported to callers.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may retry the operation.
func (k Kind) Retryable() bool {
	switch k {
	case KindStoreUnavailable, KindNotificationDelivery, KindConflict, KindRemediation:
		return true
	default:
		return false
	}
}

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the bare kind sentinels below (ErrValidation, ErrNotFound, ...).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

func Validation(op, msg string) *Error { return newError(KindValidation, op, msg, nil) }

func NotFound(op, msg string) *Error { return newError(KindNotFound, op, msg, nil) }

func StoreUnavailable(op string, err error) *Error {
	return newError(KindStoreUnavailable, op, "store unavailable", err)
}

func NotificationDelivery(op string, err error) *Error {
	return newError(KindNotificationDelivery, op, "notification delivery failed", err)
}

func Conflict(op string, err error) *Error {
	return newError(KindConflict, op, "concurrent update", err)
}

func Remediation(op string, err error) *Error {
	return newError(KindRemediation, op, "remediation trigger failed", err)
}

func Internal(op string, err error) *Error { return newError(KindInternal, op, "", err) }

// Sentinels for errors.Is checks against a kind.
var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrStoreUnavailable     = &Error{Kind: KindStoreUnavailable}
	ErrNotificationDelivery = &Error{Kind: KindNotificationDelivery}
	ErrConflict             = &Error{Kind: KindConflict}
	ErrRemediation          = &Error{Kind: KindRemediation}
)

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
