package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	"storefront/internal/gateway"
	"storefront/internal/pricing"
	orderrepo "storefront/internal/repository/order"
)

const createAttempts = 3

// Service orchestrates checkout: it validates the cart against the live
// catalog, snapshots it, persists the order and hands paid orders to a
// gateway adapter.
type Service struct {
	carts    cartReader
	products productRepo
	orders   orderrepo.Repository
	machine  stateMachine
	gateways gatewaySelector
	taxRate  decimal.Decimal
	logger   *log.Logger
	now      func() time.Time
}

type cartReader interface {
	Items(ctx context.Context, ownerKey string) ([]domain.CartItem, error)
}

type productRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

type stateMachine interface {
	Complete(ctx context.Context, orderNumber, paymentID string) (*domain.Order, error)
}

type gatewaySelector interface {
	Get(method domain.PaymentMethod) (gateway.Gateway, error)
}

func New(carts cartReader, products productRepo, orders orderrepo.Repository, machine stateMachine, gateways gatewaySelector, taxRate decimal.Decimal, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{
		carts:    carts,
		products: products,
		orders:   orders,
		machine:  machine,
		gateways: gateways,
		taxRate:  taxRate,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckoutData is the validated snapshot that becomes the order; the live
// cart is not consulted again after Prepare.
type CheckoutData struct {
	OwnerKey        string            `json:"-"`
	Items           []domain.CartItem `json:"items"`
	Totals          domain.CartTotals `json:"totals"`
	RequiresPayment bool              `json:"requiresPayment"`
}

type BuyerInfo struct {
	UserID *string `json:"userId,omitempty"`
	Name   string  `json:"name"`
	Email  string  `json:"email"`
}

// SubmitResult tells the caller how to proceed: follow a redirect, confirm
// with a client secret, or nothing at all for already-completed orders.
type SubmitResult struct {
	Order        *domain.Order `json:"order"`
	RedirectURL  string        `json:"redirectUrl,omitempty"`
	ClientSecret string        `json:"clientSecret,omitempty"`
	Completed    bool          `json:"completed"`
}

// Prepare validates the cart and returns the checkout snapshot. All line
// violations are aggregated; there is no partial success.
func (s *Service) Prepare(ctx context.Context, ownerKey string) (*CheckoutData, error) {
	items, err := s.carts.Items(ctx, ownerKey)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrEmptyCart
	}

	var violations domain.ValidationErrors
	for _, item := range items {
		if item.Invalid {
			violations = append(violations, domain.ValidationError{
				ProductID: item.ProductID,
				Reason:    "product is no longer available",
			})
		}
	}
	if len(violations) > 0 {
		return nil, violations
	}

	totals := pricing.ComputeTotals(items, s.taxRate)
	return &CheckoutData{
		OwnerKey:        ownerKey,
		Items:           items,
		Totals:          totals,
		RequiresPayment: totals.Total.IsPositive(),
	}, nil
}

// Submit creates the order from the snapshot and initiates payment. A
// gateway error on createPayment leaves the order pending: no money moved,
// the caller can retry or abandon.
func (s *Service) Submit(ctx context.Context, data *CheckoutData, buyer BuyerInfo, method domain.PaymentMethod) (*SubmitResult, error) {
	if strings.TrimSpace(buyer.Email) == "" {
		return nil, errors.New("buyer email required")
	}
	if !data.RequiresPayment {
		method = domain.PaymentMethodFree
	}
	if !method.Valid() || (data.RequiresPayment && method == domain.PaymentMethodFree) {
		return nil, fmt.Errorf("invalid payment method %q", method)
	}

	products, err := s.revalidate(ctx, data)
	if err != nil {
		return nil, err
	}

	orderItems := make([]domain.OrderItem, 0, len(data.Items))
	for _, item := range data.Items {
		p := products[item.ProductID]
		orderItems = append(orderItems, domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Price:       item.UnitPrice,
			Quantity:    item.Quantity,
			IsFree:      item.IsFree,
			// License terms are frozen here; the grant at completion reads the
			// snapshot, not the catalog.
			DownloadLimit: p.DownloadLimit,
			UpdateMonths:  p.UpdateMonths,
		})
	}

	created, err := s.createWithUniqueNumber(ctx, domain.Order{
		UserID:        buyer.UserID,
		CustomerName:  buyer.Name,
		CustomerEmail: buyer.Email,
		PaymentMethod: method,
		TotalAmount:   data.Totals.Total,
		CartOwnerKey:  data.OwnerKey,
	}, orderItems)
	if err != nil {
		return nil, err
	}
	s.logger.Printf("checkout: created order %s method=%s total=%s", created.OrderNumber, method, created.TotalAmount.StringFixed(2))

	if method == domain.PaymentMethodFree {
		completed, err := s.machine.Complete(ctx, created.OrderNumber, "free-"+created.OrderNumber)
		if err != nil {
			return nil, err
		}
		return &SubmitResult{Order: completed, Completed: true}, nil
	}

	gw, err := s.gateways.Get(method)
	if err != nil {
		return nil, err
	}
	intent, err := gw.CreatePayment(ctx, created)
	if err != nil {
		// No money has moved; the order stays pending and retryable.
		s.logger.Printf("checkout: order %s createPayment failed: %v", created.OrderNumber, err)
		return nil, fmt.Errorf("initiate payment for order %s: %w", created.OrderNumber, err)
	}
	if err := s.orders.SetGatewayOrderID(ctx, created.ID, intent.GatewayOrderID); err != nil {
		return nil, err
	}

	return &SubmitResult{
		Order:        created,
		RedirectURL:  intent.RedirectURL,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// revalidate re-checks every snapshot line against current catalog state at
// the moment money is about to move. Price drift tolerance is zero. The
// products it loads are returned so the caller can snapshot license terms
// from the same catalog read it validated against.
func (s *Service) revalidate(ctx context.Context, data *CheckoutData) (map[string]*domain.Product, error) {
	products := make(map[string]*domain.Product, len(data.Items))
	var violations domain.ValidationErrors
	for _, item := range data.Items {
		p, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				violations = append(violations, domain.ValidationError{ProductID: item.ProductID, Reason: "product is no longer available"})
				continue
			}
			return nil, err
		}
		if !p.IsActive {
			violations = append(violations, domain.ValidationError{ProductID: item.ProductID, Reason: "product is no longer available"})
			continue
		}
		if !p.IsFree && !p.Price.Equal(item.UnitPrice) {
			violations = append(violations, domain.ValidationError{
				ProductID: item.ProductID,
				Reason:    fmt.Sprintf("price changed from %s to %s", item.UnitPrice.StringFixed(2), p.Price.StringFixed(2)),
			})
		}
		products[item.ProductID] = p
	}
	if len(violations) > 0 {
		return nil, violations
	}
	return products, nil
}

func (s *Service) createWithUniqueNumber(ctx context.Context, o domain.Order, items []domain.OrderItem) (*domain.Order, error) {
	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		o.OrderNumber = s.newOrderNumber()
		created, err := s.orders.CreateWithItems(ctx, o, items)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, domain.ErrDuplicateOrderNumber) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("allocate order number: %w", lastErr)
}

// newOrderNumber builds a timestamped number with a random suffix; the
// unique index on orders.order_number backstops the residual collision risk.
func (s *Service) newOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", s.now().UTC().Format("20060102150405"), suffix)
}
