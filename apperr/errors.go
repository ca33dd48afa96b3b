package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindNotFound:
		return "NotFound"
	case KindForbidden:
		return "Forbidden"
	case KindConflict:
		return "Conflict"
	case KindUnauthorized:
		return "Unauthorized"
	}
	return "InternalError"
}

// Machine-checkable codes carried next to the kind.
const (
	CodeProductNotFound   = "ProductNotFound"
	CodeProductInactive   = "ProductInactive"
	CodeInsufficientStock = "InsufficientStock"
	CodeInvalidTransition = "InvalidTransition"
	CodeOrderNotFound     = "OrderNotFound"
	CodePendingApproval   = "PendingApproval"
	CodeDuplicateAccount  = "DuplicateAccount"
)

// Error is a business-rule failure returned at an operation boundary.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Stock is set for InsufficientStock so the app can show what is left.
	Stock *int
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

func New(kind Kind, code, message string) *Error {
	if code == "" {
		code = kind.String()
	}
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validation(message string) *Error   { return New(KindValidation, "", message) }
func NotFound(message string) *Error     { return New(KindNotFound, "", message) }
func Forbidden(message string) *Error    { return New(KindForbidden, "", message) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, "", message) }
func Conflict(message string) *Error     { return New(KindConflict, "", message) }

func InsufficientStock(remaining int) *Error {
	e := New(KindConflict, CodeInsufficientStock, fmt.Sprintf("Stock insuffisant. Reste : %d", remaining))
	e.Stock = &remaining
	return e
}

func InvalidTransition(from, to string) *Error {
	return New(KindConflict, CodeInvalidTransition,
		fmt.Sprintf("Impossible de passer la commande de %q à %q", from, to))
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err; anything that is not an *Error is internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the machine code of err, or "" for internal errors.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}
