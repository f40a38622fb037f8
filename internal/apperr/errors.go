// Package apperr holds the error taxonomy shared by every service and the
// JSON envelope those errors travel in.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation                Kind = "VALIDATION_ERROR"
	KindNotFound                  Kind = "NOT_FOUND"
	KindConflict                  Kind = "CONFLICT"
	KindInsufficientStock         Kind = "INSUFFICIENT_STOCK"
	KindCancellationWindowExpired Kind = "CANCELLATION_WINDOW_EXPIRED"
	KindDependencyUnavailable     Kind = "DEPENDENCY_UNAVAILABLE"
	KindInternal                  Kind = "INTERNAL"
)

const (
	CodeValidation                = "VALIDATION_ERROR"
	CodeIdempotencyKeyRequired    = "IDEMPOTENCY_KEY_REQUIRED"
	CodeAmountOverflow            = "AMOUNT_OVERFLOW"
	CodeOrderNotFound             = "ORDER_NOT_FOUND"
	CodeProductNotFound           = "PRODUCT_NOT_FOUND"
	CodeCustomerNotFound          = "CUSTOMER_NOT_FOUND"
	CodeNotFound                  = "NOT_FOUND"
	CodeRequestInProgress         = "REQUEST_IN_PROGRESS"
	CodeIdempotencyKeyMismatch    = "IDEMPOTENCY_KEY_MISMATCH"
	CodeOrderCanceled             = "ORDER_CANCELED"
	CodeDuplicate                 = "DUPLICATE"
	CodeResourceBusy              = "RESOURCE_BUSY"
	CodeInsufficientStock         = "INSUFFICIENT_STOCK"
	CodeCancellationWindowExpired = "CANCELLATION_WINDOW_EXPIRED"
	CodeDependencyUnavailable     = "DEPENDENCY_UNAVAILABLE"
	CodeUnauthorized              = "UNAUTHORIZED"
	CodeInternal                  = "INTERNAL"
)

var (
	ErrIdempotencyKeyRequired    = New(KindValidation, CodeIdempotencyKeyRequired, "X-Idempotency-Key header is required")
	ErrAmountOverflow            = New(KindValidation, CodeAmountOverflow, "Order amount exceeds supported range")
	ErrOrderNotFound             = New(KindNotFound, CodeOrderNotFound, "Order not found")
	ErrProductNotFound           = New(KindNotFound, CodeProductNotFound, "Product not found")
	ErrCustomerNotFound          = New(KindNotFound, CodeCustomerNotFound, "Customer not found")
	ErrRequestInProgress         = New(KindConflict, CodeRequestInProgress, "Request already in progress")
	ErrIdempotencyKeyMismatch    = New(KindConflict, CodeIdempotencyKeyMismatch, "Idempotency key was already used for a different request")
	ErrOrderCanceled             = New(KindConflict, CodeOrderCanceled, "Order is canceled")
	ErrResourceBusy              = New(KindConflict, CodeResourceBusy, "Resource is locked by another request")
	ErrInsufficientStock         = New(KindInsufficientStock, CodeInsufficientStock, "Insufficient stock")
	ErrCancellationWindowExpired = New(KindCancellationWindowExpired, CodeCancellationWindowExpired, "Cannot cancel confirmed order after 10 minutes")
	ErrDependencyUnavailable     = New(KindDependencyUnavailable, CodeDependencyUnavailable, "Dependency unavailable")
	ErrUnauthorized              = New(KindInternal, CodeUnauthorized, "Unauthorized")
)

// Error is a classified failure. Two errors match under errors.Is when their
// codes match, so decorated copies still compare equal to the sentinels.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Validation(msg string) *Error {
	return New(KindValidation, CodeValidation, msg)
}

func Conflict(code, msg string) *Error {
	return New(KindConflict, code, msg)
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "Internal server error", Err: err}
}

func Unavailable(msg string, err error) *Error {
	return &Error{Kind: KindDependencyUnavailable, Code: CodeDependencyUnavailable, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// From classifies any error; unknown errors become Internal.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}

// KindOf reports the kind of err, or KindInternal when it is unclassified.
func KindOf(err error) Kind {
	return From(err).Kind
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInsufficientStock, KindCancellationWindowExpired:
		return http.StatusConflict
	case KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var byCode = map[string]*Error{}

func init() {
	for _, e := range []*Error{
		ErrIdempotencyKeyRequired, ErrAmountOverflow, ErrOrderNotFound, ErrProductNotFound,
		ErrCustomerNotFound, ErrRequestInProgress, ErrIdempotencyKeyMismatch, ErrOrderCanceled,
		ErrResourceBusy, ErrInsufficientStock, ErrCancellationWindowExpired, ErrDependencyUnavailable,
		ErrUnauthorized,
	} {
		byCode[e.Code] = e
	}
}

// Decode rebuilds an Error received from another service. Known codes keep
// their kind; unknown codes fall back to the kind implied by the HTTP status.
func Decode(status int, code, msg string, details map[string]any) *Error {
	if known, ok := byCode[code]; ok {
		out := *known
		if msg != "" {
			out.Message = msg
		}
		out.Details = details
		return &out
	}
	if code == "" {
		code = CodeInternal
	}
	return &Error{Kind: kindForStatus(status), Code: code, Message: msg, Details: details}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusBadRequest:
		return KindValidation
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout || status == http.StatusBadGateway:
		return KindDependencyUnavailable
	default:
		return KindInternal
	}
}
