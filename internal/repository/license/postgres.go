package license

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront/internal/domain"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

const licenseColumns = `id::text, user_id, product_id::text, order_id::text, downloads_used, downloads_limit, updates_until, is_active, created_at`

func (r *postgresRepo) CreateIfAbsent(ctx context.Context, l domain.UserLicense) error {
	cmd, err := r.pool.Exec(ctx, `
INSERT INTO user_licenses (user_id, product_id, order_id, downloads_used, downloads_limit, updates_until, is_active)
VALUES ($1, $2, $3, 0, $4, $5, true)
ON CONFLICT (order_id, product_id) DO NOTHING
`, l.UserID, l.ProductID, l.OrderID, l.DownloadsLimit, l.UpdatesUntil)
	if err != nil {
		r.logger.Printf("license repo: create order=%s product=%s error=%v", l.OrderID, l.ProductID, err)
		return err
	}
	if cmd.RowsAffected() == 0 {
		r.logger.Printf("license repo: create order=%s product=%s already granted", l.OrderID, l.ProductID)
	}
	return nil
}

func (r *postgresRepo) Consume(ctx context.Context, userID, productID string) (*domain.UserLicense, error) {
	// The subselect locks the candidate row and the outer WHERE repeats the
	// quota guard: a concurrent consumer that waited on the lock re-checks
	// downloads_used against the committed row version and falls through to
	// the quota path instead of incrementing past the limit.
	const q = `
UPDATE user_licenses
SET downloads_used = downloads_used + 1
WHERE id = (
    SELECT id FROM user_licenses
    WHERE user_id = $1 AND product_id = $2 AND is_active
      AND downloads_used < downloads_limit
    ORDER BY created_at ASC
    LIMIT 1
    FOR UPDATE
)
  AND downloads_used < downloads_limit
RETURNING ` + licenseColumns + `
`
	l, err := scanLicense(r.pool.QueryRow(ctx, q, userID, productID))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.Printf("license repo: consume user=%s product=%s error=%v", userID, productID, err)
		return nil, err
	}

	// Distinguish exhausted quota from a missing license.
	if _, err := r.GetByUserAndProduct(ctx, userID, productID); err != nil {
		return nil, err
	}
	return nil, domain.ErrQuotaExceeded
}

func (r *postgresRepo) GetByUserAndProduct(ctx context.Context, userID, productID string) (*domain.UserLicense, error) {
	const q = `
SELECT ` + licenseColumns + `
FROM user_licenses
WHERE user_id = $1 AND product_id = $2 AND is_active
ORDER BY created_at ASC
LIMIT 1
`
	l, err := scanLicense(r.pool.QueryRow(ctx, q, userID, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

func (r *postgresRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.UserLicense, error) {
	const q = `
SELECT ` + licenseColumns + `
FROM user_licenses
WHERE order_id = $1
ORDER BY created_at ASC
`
	rows, err := r.pool.Query(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.UserLicense
	for rows.Next() {
		var l domain.UserLicense
		if err := rows.Scan(&l.ID, &l.UserID, &l.ProductID, &l.OrderID, &l.DownloadsUsed, &l.DownloadsLimit, &l.UpdatesUntil, &l.IsActive, &l.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func scanLicense(row pgx.Row) (*domain.UserLicense, error) {
	var l domain.UserLicense
	if err := row.Scan(&l.ID, &l.UserID, &l.ProductID, &l.OrderID, &l.DownloadsUsed, &l.DownloadsLimit, &l.UpdatesUntil, &l.IsActive, &l.CreatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}
