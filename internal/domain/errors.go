package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrProductUnavailable indicates the product is unknown or inactive.
	ErrProductUnavailable = errors.New("product unavailable")
	// ErrEmptyCart indicates checkout was attempted with no items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidTransition indicates a forbidden payment-status transition.
	ErrInvalidTransition = errors.New("invalid payment status transition")
	// ErrPaymentIDConflict indicates a confirmation carried a payment id that
	// differs from the one already stored on the order.
	ErrPaymentIDConflict = errors.New("conflicting payment id")
	// ErrOrderNotPending indicates an operation allowed only on pending orders.
	ErrOrderNotPending = errors.New("order is not pending")
	// ErrDuplicateOrderNumber indicates an order_number collision on insert.
	ErrDuplicateOrderNumber = errors.New("duplicate order number")
	// ErrQuotaExceeded indicates the download quota is exhausted.
	ErrQuotaExceeded = errors.New("download quota exceeded")
)

// ValidationError describes a single checkout validation failure tied to a
// cart line.
type ValidationError struct {
	ProductID string `json:"productId"`
	Reason    string `json:"reason"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("product %s: %s", e.ProductID, e.Reason)
}

// ValidationErrors aggregates all line violations found during checkout
// validation; checkout never partially succeeds.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, v := range e {
		msgs = append(msgs, v.Error())
	}
	return "cart validation failed: " + strings.Join(msgs, "; ")
}
