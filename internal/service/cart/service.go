package cart

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain"
)

// Service owns cart mutations. Quantities are clamped to the allowed range,
// products are validated against the live catalog before any write, and reads
// always reflect current catalog pricing.
type Service struct {
	repo        cartRepo
	productRepo productRepo
}

type cartRepo interface {
	UpsertItem(ctx context.Context, ownerKey, productID string, quantity int) error
	RemoveItem(ctx context.Context, ownerKey, productID string) error
	Clear(ctx context.Context, ownerKey string) error
	Items(ctx context.Context, ownerKey string) ([]domain.CartItem, error)
	Quantity(ctx context.Context, ownerKey, productID string) (int, error)
}

type productRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

func New(repo cartRepo, productRepo productRepo) *Service {
	return &Service{repo: repo, productRepo: productRepo}
}

// Add puts qty more units of the product into the cart, clamped to the
// quantity bounds.
func (s *Service) Add(ctx context.Context, ownerKey, productID string, qty int) error {
	if err := s.checkAvailable(ctx, productID); err != nil {
		return err
	}
	existing, err := s.repo.Quantity(ctx, ownerKey, productID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return s.repo.UpsertItem(ctx, ownerKey, productID, clampQuantity(existing+qty))
}

// Update sets the quantity outright; zero or less removes the line.
func (s *Service) Update(ctx context.Context, ownerKey, productID string, qty int) error {
	if qty <= 0 {
		return s.Remove(ctx, ownerKey, productID)
	}
	if err := s.checkAvailable(ctx, productID); err != nil {
		return err
	}
	return s.repo.UpsertItem(ctx, ownerKey, productID, clampQuantity(qty))
}

func (s *Service) Remove(ctx context.Context, ownerKey, productID string) error {
	return s.repo.RemoveItem(ctx, ownerKey, productID)
}

func (s *Service) Clear(ctx context.Context, ownerKey string) error {
	return s.repo.Clear(ctx, ownerKey)
}

// Items re-joins the cart against the catalog. Lines whose product has been
// deactivated come back flagged Invalid; checkout validation rejects them
// explicitly instead of this read silently dropping them.
func (s *Service) Items(ctx context.Context, ownerKey string) ([]domain.CartItem, error) {
	return s.repo.Items(ctx, ownerKey)
}

func (s *Service) IsEmpty(ctx context.Context, ownerKey string) (bool, error) {
	items, err := s.repo.Items(ctx, ownerKey)
	if err != nil {
		return false, err
	}
	return len(items) == 0, nil
}

func (s *Service) checkAvailable(ctx context.Context, productID string) error {
	p, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrProductUnavailable, productID)
		}
		return err
	}
	if !p.IsActive {
		return fmt.Errorf("%w: %s", domain.ErrProductUnavailable, productID)
	}
	return nil
}

func clampQuantity(qty int) int {
	if qty < domain.MinQuantity {
		return domain.MinQuantity
	}
	if qty > domain.MaxQuantity {
		return domain.MaxQuantity
	}
	return qty
}
