package license

import (
	"context"

	"storefront/internal/domain"
)

type Repository interface {
	// CreateIfAbsent inserts the license unless one already exists for the
	// same (order_id, product_id); the duplicate case is a silent no-op,
	// which is what makes entitlement grants idempotent.
	CreateIfAbsent(ctx context.Context, l domain.UserLicense) error
	// Consume atomically increments downloads_used if and only if quota
	// remains on an active license; domain.ErrQuotaExceeded otherwise.
	// There is no separate check-then-increment window.
	Consume(ctx context.Context, userID, productID string) (*domain.UserLicense, error)
	GetByUserAndProduct(ctx context.Context, userID, productID string) (*domain.UserLicense, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.UserLicense, error)
}
