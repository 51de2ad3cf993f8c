package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront/internal/domain"
)

// MemoryRepo is an in-memory Repository used by unit and race tests. It
// serializes transitions per order the way the postgres implementation does
// with row locks.
type MemoryRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order // keyed by order_number
	nextID int
}

func NewMemory() *MemoryRepo {
	return &MemoryRepo{orders: make(map[string]*domain.Order)}
}

func (r *MemoryRepo) CreateWithItems(_ context.Context, o domain.Order, items []domain.OrderItem) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[o.OrderNumber]; ok {
		return nil, domain.ErrDuplicateOrderNumber
	}
	r.nextID++
	o.ID = fmt.Sprintf("order-%d", r.nextID)
	o.PaymentStatus = domain.PaymentStatusPending
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt
	for i := range items {
		items[i].ID = fmt.Sprintf("%s-item-%d", o.ID, i)
		items[i].OrderID = o.ID
	}
	o.Items = items
	stored := o
	r.orders[o.OrderNumber] = &stored
	copied := cloneOrder(&stored)
	return &copied, nil
}

func (r *MemoryRepo) GetByNumber(_ context.Context, orderNumber string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderNumber]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := cloneOrder(o)
	return &copied, nil
}

func (r *MemoryRepo) SetGatewayOrderID(_ context.Context, orderID, gatewayOrderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range r.orders {
		if o.ID == orderID {
			id := gatewayOrderID
			o.GatewayOrderID = &id
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *MemoryRepo) Transition(_ context.Context, orderNumber string, fn TransitionFunc) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderNumber]
	if !ok {
		return nil, domain.ErrNotFound
	}

	snapshot := cloneOrder(o)
	change, err := fn(&snapshot)
	if err != nil {
		return nil, err
	}
	if change != nil {
		o.PaymentStatus = change.Status
		if change.PaymentID != nil {
			o.PaymentID = change.PaymentID
		}
		o.FailureReason = change.FailureReason
		o.UpdatedAt = time.Now().UTC()
	}
	copied := cloneOrder(o)
	return &copied, nil
}

func cloneOrder(o *domain.Order) domain.Order {
	copied := *o
	copied.Items = append([]domain.OrderItem(nil), o.Items...)
	if o.PaymentID != nil {
		id := *o.PaymentID
		copied.PaymentID = &id
	}
	if o.FailureReason != nil {
		fr := *o.FailureReason
		copied.FailureReason = &fr
	}
	return copied
}
