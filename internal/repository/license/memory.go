package license

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront/internal/domain"
)

// MemoryRepo is an in-memory Repository with the same atomicity guarantees as
// the postgres implementation; used by unit and stress tests.
type MemoryRepo struct {
	mu       sync.Mutex
	licenses []*domain.UserLicense
	nextID   int
}

func NewMemory() *MemoryRepo {
	return &MemoryRepo{}
}

func (r *MemoryRepo) CreateIfAbsent(_ context.Context, l domain.UserLicense) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.licenses {
		if existing.OrderID == l.OrderID && existing.ProductID == l.ProductID {
			return nil
		}
	}
	r.nextID++
	l.ID = fmt.Sprintf("license-%d", r.nextID)
	l.DownloadsUsed = 0
	l.IsActive = true
	l.CreatedAt = time.Now().UTC()
	stored := l
	r.licenses = append(r.licenses, &stored)
	return nil
}

func (r *MemoryRepo) Consume(_ context.Context, userID, productID string) (*domain.UserLicense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	for _, l := range r.licenses {
		if l.UserID != userID || l.ProductID != productID || !l.IsActive {
			continue
		}
		found = true
		if l.DownloadsUsed < l.DownloadsLimit {
			l.DownloadsUsed++
			copied := *l
			return &copied, nil
		}
	}
	if !found {
		return nil, domain.ErrNotFound
	}
	return nil, domain.ErrQuotaExceeded
}

func (r *MemoryRepo) GetByUserAndProduct(_ context.Context, userID, productID string) (*domain.UserLicense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range r.licenses {
		if l.UserID == userID && l.ProductID == productID && l.IsActive {
			copied := *l
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MemoryRepo) ListByOrder(_ context.Context, orderID string) ([]domain.UserLicense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.UserLicense
	for _, l := range r.licenses {
		if l.OrderID == orderID {
			result = append(result, *l)
		}
	}
	return result, nil
}
