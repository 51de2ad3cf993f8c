package order

import (
	"context"

	"storefront/internal/domain"
)

// StatusChange is the only mutation the state machine may apply to an order.
type StatusChange struct {
	Status        domain.PaymentStatus
	PaymentID     *string
	FailureReason *domain.FailureReason
}

// TransitionFunc inspects the current order under lock and returns the change
// to apply, or nil to leave the order untouched (an observed no-op).
type TransitionFunc func(o *domain.Order) (*StatusChange, error)

type Repository interface {
	// CreateWithItems inserts the order and its items in one transaction.
	// A duplicate order_number yields domain.ErrDuplicateOrderNumber so the
	// caller can regenerate and retry.
	CreateWithItems(ctx context.Context, o domain.Order, items []domain.OrderItem) (*domain.Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	// SetGatewayOrderID stores the gateway correlation token after
	// createPayment; the order stays pending.
	SetGatewayOrderID(ctx context.Context, orderID, gatewayOrderID string) error
	// Transition runs fn with the order row locked (single writer per
	// order), applies the returned change, and returns the resulting order.
	Transition(ctx context.Context, orderNumber string, fn TransitionFunc) (*domain.Order, error)
}
