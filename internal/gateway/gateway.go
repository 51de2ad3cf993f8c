// Package gateway adapts the remote payment providers (Stripe, PayPal,
// MercadoPago) to one capability set. Adapters are selected once at checkout;
// nothing downstream re-inspects the payment method.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

var centsPerUnit = decimal.NewFromInt(100)

// Status is the normalized remote payment state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// PaymentIntent is the result of initiating a remote payment. Exactly one of
// RedirectURL (hosted flows) or ClientSecret (client-side card flow) is set;
// completion is never assumed synchronous.
type PaymentIntent struct {
	GatewayOrderID string
	RedirectURL    string
	ClientSecret   string
}

// Confirmation is a provider callback or poll result normalized for the order
// state machine.
type Confirmation struct {
	OrderNumber   string
	Status        Status
	TransactionID string
	Reason        domain.FailureReason
}

// PollResult is the outcome of an active status query. TransactionID carries
// the same correlation token the provider's webhook would deliver, so the
// poll and webhook paths settle an order under one payment id.
type PollResult struct {
	Status        Status
	TransactionID string
}

type Gateway interface {
	Name() domain.PaymentMethod
	// CreatePayment initiates the remote payment for a pending order.
	CreatePayment(ctx context.Context, o *domain.Order) (*PaymentIntent, error)
	// ConfirmPayment parses a provider-specific webhook/return payload.
	ConfirmPayment(ctx context.Context, payload []byte) (*Confirmation, error)
	// QueryStatus is the active poll fallback for providers without
	// reliable webhooks.
	QueryStatus(ctx context.Context, gatewayOrderID string) (*PollResult, error)
}

// Error classifies a gateway failure. Transient errors (network, 5xx, 429)
// are retried at the adapter boundary; declines are not.
type Error struct {
	Gateway   domain.PaymentMethod
	Transient bool
	Reason    domain.FailureReason
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s gateway: %s: %v", e.Gateway, e.Message, e.Err)
	}
	return fmt.Sprintf("%s gateway: %s", e.Gateway, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func transientErr(gw domain.PaymentMethod, msg string, err error) *Error {
	return &Error{Gateway: gw, Transient: true, Reason: domain.ReasonNetworkError, Message: msg, Err: err}
}

func declineErr(gw domain.PaymentMethod, reason domain.FailureReason, msg string) *Error {
	return &Error{Gateway: gw, Reason: reason, Message: msg}
}

// IsDecline reports whether err is a gateway-reported decline carrying a
// failure reason (as opposed to a transient transport failure).
func IsDecline(err error) (domain.FailureReason, bool) {
	var gerr *Error
	if errors.As(err, &gerr) && !gerr.Transient {
		return gerr.Reason, true
	}
	return "", false
}

// withRetry runs op with bounded exponential backoff, giving up immediately
// on non-transient errors.
func withRetry(ctx context.Context, maxRetries uint64, op func() error) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		var gerr *Error
		if errors.As(err, &gerr) && !gerr.Transient {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}

// Selector holds the configured adapters and picks one per payment method.
type Selector struct {
	gateways map[domain.PaymentMethod]Gateway
}

func NewSelector(gateways ...Gateway) *Selector {
	m := make(map[domain.PaymentMethod]Gateway, len(gateways))
	for _, g := range gateways {
		m[g.Name()] = g
	}
	return &Selector{gateways: m}
}

func (s *Selector) Get(method domain.PaymentMethod) (Gateway, error) {
	g, ok := s.gateways[method]
	if !ok {
		return nil, fmt.Errorf("no gateway configured for method %q", method)
	}
	return g, nil
}
