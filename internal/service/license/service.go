package license

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"storefront/internal/domain"
)

// Service is the entitlement issuer: it turns completed orders into
// UserLicense rows and meters downloads against them.
type Service struct {
	repo   licenseRepo
	logger *log.Logger
	now    func() time.Time
}

type licenseRepo interface {
	CreateIfAbsent(ctx context.Context, l domain.UserLicense) error
	Consume(ctx context.Context, userID, productID string) (*domain.UserLicense, error)
	GetByUserAndProduct(ctx context.Context, userID, productID string) (*domain.UserLicense, error)
}

func New(repo licenseRepo, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Grant materializes one license per order item. The upsert is keyed on
// (order_id, product_id), so re-granting for the same order under duplicate
// completion signals is a no-op. Orders without an identified user produce no
// licenses; entitlements need someone to attach to.
//
// License terms come from the order item snapshot, not the live catalog, so
// a product edit between purchase and completion cannot change what the
// buyer paid for.
func (s *Service) Grant(ctx context.Context, o *domain.Order) error {
	if o.UserID == nil || *o.UserID == "" {
		s.logger.Printf("license: order %s has no user, skipping grant", o.OrderNumber)
		return nil
	}

	for _, item := range o.Items {
		var updatesUntil *time.Time
		if item.UpdateMonths > 0 {
			u := s.now().UTC().AddDate(0, item.UpdateMonths, 0)
			updatesUntil = &u
		}

		err := s.repo.CreateIfAbsent(ctx, domain.UserLicense{
			UserID:         *o.UserID,
			ProductID:      item.ProductID,
			OrderID:        o.ID,
			DownloadsLimit: item.DownloadLimit,
			UpdatesUntil:   updatesUntil,
		})
		if err != nil {
			return fmt.Errorf("grant order %s: product %s: %w", o.OrderNumber, item.ProductID, err)
		}
	}
	return nil
}

// ConsumeDownload checks and spends one download in a single atomic step and
// returns a fresh token. ErrQuotaExceeded is user-visible, not an order error.
func (s *Service) ConsumeDownload(ctx context.Context, userID, productID string) (*domain.DownloadToken, error) {
	l, err := s.repo.Consume(ctx, userID, productID)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			s.logger.Printf("license: user %s product %s quota exhausted", userID, productID)
		}
		return nil, err
	}
	return &domain.DownloadToken{
		Token:              uuid.NewString(),
		ProductID:          productID,
		DownloadsRemaining: l.DownloadsLimit - l.DownloadsUsed,
		IssuedAt:           s.now().UTC(),
	}, nil
}
