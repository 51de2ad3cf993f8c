package seed

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	productrepo "storefront/internal/repository/product"
)

// Apply inserts demo digital products for manual testing. It is idempotent
// via the product repository's SKU upsert.
func Apply(ctx context.Context, pool *pgxpool.Pool, logger *log.Logger) error {
	products := []domain.Product{
		{
			SKU:           "WP-SEO-PRO",
			Name:          "SEO Toolkit Pro",
			Description:   "Search optimization plugin with structured data and sitemap support",
			Price:         decimal.RequireFromString("19.99"),
			DownloadLimit: 5,
			UpdateMonths:  12,
			IsActive:      true,
		},
		{
			SKU:           "WP-FORMS-PLUS",
			Name:          "Forms Plus",
			Description:   "Drag and drop form builder with spam protection",
			Price:         decimal.RequireFromString("34.50"),
			DownloadLimit: 5,
			UpdateMonths:  12,
			IsActive:      true,
		},
		{
			SKU:           "WP-CACHE-LITE",
			Name:          "Cache Lite",
			Description:   "Free page caching plugin",
			Price:         decimal.Zero,
			IsFree:        true,
			DownloadLimit: 3,
			UpdateMonths:  6,
			IsActive:      true,
		},
		{
			SKU:           "WP-GALLERY-RETIRED",
			Name:          "Gallery Classic",
			Description:   "Retired gallery plugin kept for existing license holders",
			Price:         decimal.RequireFromString("12.00"),
			DownloadLimit: 5,
			UpdateMonths:  12,
			IsActive:      false,
		},
	}

	repo := productrepo.NewPostgres(pool, logger)
	for _, p := range products {
		if _, err := repo.Upsert(ctx, p); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.SKU, err)
		}
	}

	return nil
}
