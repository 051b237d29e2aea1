package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart            = errors.New("cart is empty, nothing to checkout")
	ErrMissingIdentity      = errors.New("identity is not verified")
	ErrMissingPaymentMethod = errors.New("no payment method selected")
	ErrIllegalTransition    = errors.New("illegal transition of checkout step")
	ErrStaleQuote           = errors.New("quote response is for a superseded selection")
	ErrOrderExpired         = errors.New("order payment window has expired")
	ErrDegradedQuote        = errors.New("price quote is unavailable for this payment method")
)

// Kind classifies failures the presentation layer renders differently.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindDegradedQuote   Kind = "degraded_quote"
	KindSubmission      Kind = "submission"
	KindInvoice         Kind = "invoice"
	KindExpired         Kind = "expired"
	KindUpload          Kind = "upload"
	KindBotsUnavailable Kind = "bots_unavailable"
)

// Error is a typed checkout failure. Bots is only set for KindBotsUnavailable.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Bots    []Bot  `json:"bots,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the buyer can try the same action again.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindSubmission, KindInvoice, KindUpload:
		return true
	}
	return false
}

func NewError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(err error) *Error {
	return &Error{Kind: KindValidation, Message: err.Error(), Err: err}
}

// KindOf returns the kind of a typed error, or "" when err is not one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
