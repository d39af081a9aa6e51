package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the handler layer can translate it into a
// stable HTTP status without inspecting message text.
type Kind int

const (
	KindUnknown Kind = iota

	// KindValidation — bad input shape or range (e.g. return date outside
	// the allowed window).
	KindValidation

	// KindPrecondition — a business-rule gate failed (unpaid payments,
	// zero inventory, already-returned).
	KindPrecondition

	// KindPermission — the actor is not allowed to touch this resource.
	KindPermission

	// KindNotFound — unknown id or checkout session.
	KindNotFound

	// KindGatewayUnavailable — the external payment provider failed;
	// retryable, aborts the enclosing transaction.
	KindGatewayUnavailable

	// KindConflict — a concurrent-mutation race was lost.
	KindConflict
)

// Error is the typed failure every core operation returns instead of a
// bare error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match two apperr values by kind, so sentinel-style
// comparisons keep working across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from an error chain, KindUnknown if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Shared sentinels for the gates that appear in more than one place.
var (
	ErrUnpaidPayments     = New(KindPrecondition, "unpaid payments detected")
	ErrBookNotAvailable   = New(KindPrecondition, "book is not available")
	ErrAlreadyReturned    = New(KindPrecondition, "book is already returned")
	ErrNotPermitted       = New(KindPermission, "not permitted")
	ErrBookNotFound       = New(KindNotFound, "book not found")
	ErrBorrowingNotFound  = New(KindNotFound, "borrowing not found")
	ErrPaymentNotFound    = New(KindNotFound, "payment not found")
	ErrGatewayUnavailable = New(KindGatewayUnavailable, "payment gateway unavailable")
	ErrPaymentNotComplete = New(KindPrecondition, "payment is not completed")
)
