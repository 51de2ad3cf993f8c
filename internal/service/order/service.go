package order

import (
	"context"
	"fmt"
	"io"
	"log"

	"storefront/internal/domain"
	"storefront/internal/gateway"
	orderrepo "storefront/internal/repository/order"
)

// Service is the order state machine: the only component allowed to mutate
// payment_status. Every transition runs under the repository's per-order lock,
// so racing confirmation signals (webhook, return URL, client poll) serialize
// and exactly one performs the change.
type Service struct {
	repo     orderrepo.Repository
	gateways gatewaySelector
	licenses granter
	carts    cartClearer
	sink     sink
	logger   *log.Logger
}

type gatewaySelector interface {
	Get(method domain.PaymentMethod) (gateway.Gateway, error)
}

type granter interface {
	Grant(ctx context.Context, o *domain.Order) error
}

type cartClearer interface {
	Clear(ctx context.Context, ownerKey string) error
}

type sink interface {
	SendOrderConfirmation(order domain.Order, items []domain.OrderItem)
	NotifyPaymentFailed(order domain.Order, reason domain.FailureReason)
}

func New(repo orderrepo.Repository, gateways gatewaySelector, licenses granter, carts cartClearer, sink sink, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{repo: repo, gateways: gateways, licenses: licenses, carts: carts, sink: sink, logger: logger}
}

// ApplyConfirmation feeds a normalized gateway confirmation into the state
// machine. Pending confirmations are observed without effect.
func (s *Service) ApplyConfirmation(ctx context.Context, conf *gateway.Confirmation) (*domain.Order, error) {
	switch conf.Status {
	case gateway.StatusCompleted:
		return s.Complete(ctx, conf.OrderNumber, conf.TransactionID)
	case gateway.StatusFailed:
		reason := conf.Reason
		if !reason.Valid() {
			reason = domain.ReasonUnknown
		}
		return s.MarkFailed(ctx, conf.OrderNumber, reason)
	default:
		return s.repo.GetByNumber(ctx, conf.OrderNumber)
	}
}

// Complete transitions pending -> completed and sets payment_id exactly once.
// Re-applying a confirmation with the same payment_id is a no-op; a different
// payment_id is rejected and logged, never overwritten.
func (s *Service) Complete(ctx context.Context, orderNumber, paymentID string) (*domain.Order, error) {
	transitioned := false
	o, err := s.repo.Transition(ctx, orderNumber, func(o *domain.Order) (*orderrepo.StatusChange, error) {
		switch o.PaymentStatus {
		case domain.PaymentStatusPending:
			if o.PaymentID != nil && *o.PaymentID != paymentID {
				s.logger.Printf("order %s: ERROR conflicting payment id %q (stored %q), rejecting confirmation", orderNumber, paymentID, *o.PaymentID)
				return nil, domain.ErrPaymentIDConflict
			}
			transitioned = true
			id := paymentID
			return &orderrepo.StatusChange{Status: domain.PaymentStatusCompleted, PaymentID: &id}, nil
		case domain.PaymentStatusCompleted:
			if o.PaymentID != nil && *o.PaymentID == paymentID {
				// Duplicate delivery of the same confirmation.
				return nil, nil
			}
			s.logger.Printf("order %s: ERROR conflicting payment id %q on completed order (stored %v)", orderNumber, paymentID, o.PaymentID)
			return nil, domain.ErrPaymentIDConflict
		default:
			s.logger.Printf("order %s: ERROR completion signal on %s order", orderNumber, o.PaymentStatus)
			return nil, fmt.Errorf("%w: %s -> completed", domain.ErrInvalidTransition, o.PaymentStatus)
		}
	})
	if err != nil {
		return nil, err
	}

	if transitioned {
		if err := s.licenses.Grant(ctx, o); err != nil {
			// The order stays completed; grants are idempotent and the
			// duplicate-signal paths will retry them.
			s.logger.Printf("order %s: ERROR granting licenses: %v", orderNumber, err)
		}
		if o.CartOwnerKey != "" {
			if err := s.carts.Clear(ctx, o.CartOwnerKey); err != nil {
				s.logger.Printf("order %s: clearing cart %s: %v", orderNumber, o.CartOwnerKey, err)
			}
		}
		s.sink.SendOrderConfirmation(*o, o.Items)
	}
	return o, nil
}

// MarkFailed transitions pending -> failed with a reason from the closed set.
// A repeated failure signal on an already-failed order is a no-op.
func (s *Service) MarkFailed(ctx context.Context, orderNumber string, reason domain.FailureReason) (*domain.Order, error) {
	if !reason.Valid() {
		reason = domain.ReasonUnknown
	}
	transitioned := false
	o, err := s.repo.Transition(ctx, orderNumber, func(o *domain.Order) (*orderrepo.StatusChange, error) {
		switch o.PaymentStatus {
		case domain.PaymentStatusPending:
			transitioned = true
			r := reason
			return &orderrepo.StatusChange{Status: domain.PaymentStatusFailed, FailureReason: &r}, nil
		case domain.PaymentStatusFailed:
			return nil, nil
		default:
			s.logger.Printf("order %s: ERROR failure signal on %s order", orderNumber, o.PaymentStatus)
			return nil, fmt.Errorf("%w: %s -> failed", domain.ErrInvalidTransition, o.PaymentStatus)
		}
	})
	if err != nil {
		return nil, err
	}

	if transitioned {
		s.sink.NotifyPaymentFailed(*o, reason)
	}
	return o, nil
}

// Refund transitions completed -> refunded; triggered by support action.
func (s *Service) Refund(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return s.repo.Transition(ctx, orderNumber, func(o *domain.Order) (*orderrepo.StatusChange, error) {
		switch o.PaymentStatus {
		case domain.PaymentStatusCompleted:
			return &orderrepo.StatusChange{Status: domain.PaymentStatusRefunded, PaymentID: o.PaymentID}, nil
		case domain.PaymentStatusRefunded:
			return nil, nil
		default:
			return nil, fmt.Errorf("%w: %s -> refunded", domain.ErrInvalidTransition, o.PaymentStatus)
		}
	})
}

// Cancel abandons a checkout; permitted only while the order is pending.
func (s *Service) Cancel(ctx context.Context, orderNumber string) (*domain.Order, error) {
	o, err := s.repo.Transition(ctx, orderNumber, func(o *domain.Order) (*orderrepo.StatusChange, error) {
		if o.PaymentStatus != domain.PaymentStatusPending {
			return nil, domain.ErrOrderNotPending
		}
		r := domain.ReasonCancelled
		return &orderrepo.StatusChange{Status: domain.PaymentStatusFailed, FailureReason: &r}, nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Status returns the order for the client-side poll endpoint, reconciling
// against the gateway first when the order is still pending.
func (s *Service) Status(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return s.Reconcile(ctx, orderNumber)
}

// Reconcile actively polls the gateway for a pending order and applies the
// result. Transient gateway trouble leaves the order pending; the caller
// retries later.
func (s *Service) Reconcile(ctx context.Context, orderNumber string) (*domain.Order, error) {
	o, err := s.repo.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus != domain.PaymentStatusPending || o.GatewayOrderID == nil {
		return o, nil
	}

	gw, err := s.gateways.Get(o.PaymentMethod)
	if err != nil {
		return o, nil
	}
	result, err := gw.QueryStatus(ctx, *o.GatewayOrderID)
	if err != nil {
		s.logger.Printf("order %s: gateway status query failed: %v", orderNumber, err)
		return o, nil
	}

	switch result.Status {
	case gateway.StatusCompleted:
		// Anchor on the transaction id the poll reports so a later webhook
		// retry for the same payment lands on the same payment id.
		paymentID := result.TransactionID
		if paymentID == "" {
			paymentID = *o.GatewayOrderID
		}
		return s.Complete(ctx, orderNumber, paymentID)
	case gateway.StatusFailed:
		return s.MarkFailed(ctx, orderNumber, domain.ReasonUnknown)
	default:
		return o, nil
	}
}

// Get returns the order without touching the gateway.
func (s *Service) Get(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return s.repo.GetByNumber(ctx, orderNumber)
}
