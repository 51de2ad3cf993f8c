package cart

import (
	"context"

	"storefront/internal/domain"
)

// Repository persists cart quantities keyed by owner. Prices and product
// names are never stored; reads re-join the live catalog.
type Repository interface {
	// UpsertItem sets the quantity for (ownerKey, productID), creating the
	// cart row on first use.
	UpsertItem(ctx context.Context, ownerKey, productID string, quantity int) error
	RemoveItem(ctx context.Context, ownerKey, productID string) error
	Clear(ctx context.Context, ownerKey string) error
	// Items returns cart lines re-joined against products; lines whose
	// product is missing or inactive come back flagged Invalid.
	Items(ctx context.Context, ownerKey string) ([]domain.CartItem, error)
	Quantity(ctx context.Context, ownerKey, productID string) (int, error)
}
