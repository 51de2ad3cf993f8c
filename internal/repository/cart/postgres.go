package cart

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

func (r *postgresRepo) UpsertItem(ctx context.Context, ownerKey, productID string, quantity int) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var cartID string
	err = tx.QueryRow(ctx, `
INSERT INTO carts (owner_key)
VALUES ($1)
ON CONFLICT (owner_key) DO UPDATE SET updated_at = now()
RETURNING id::text
`, ownerKey).Scan(&cartID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO cart_items (cart_id, product_id, quantity)
VALUES ($1, $2, $3)
ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity
`, cartID, productID, quantity); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *postgresRepo) RemoveItem(ctx context.Context, ownerKey, productID string) error {
	cmd, err := r.pool.Exec(ctx, `
DELETE FROM cart_items
WHERE cart_id = (SELECT id FROM carts WHERE owner_key = $1)
  AND product_id = $2
`, ownerKey, productID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) Clear(ctx context.Context, ownerKey string) error {
	_, err := r.pool.Exec(ctx, `
DELETE FROM carts
WHERE owner_key = $1
`, ownerKey)
	return err
}

func (r *postgresRepo) Items(ctx context.Context, ownerKey string) ([]domain.CartItem, error) {
	const q = `
SELECT ci.product_id::text,
       COALESCE(p.name, ''),
       ci.quantity,
       COALESCE(p.price, 0),
       COALESCE(p.is_free, false),
       (p.id IS NULL OR NOT p.is_active) AS invalid
FROM cart_items ci
JOIN carts c ON c.id = ci.cart_id
LEFT JOIN products p ON p.id = ci.product_id
WHERE c.owner_key = $1
ORDER BY ci.added_at ASC
`
	rows, err := r.pool.Query(ctx, q, ownerKey)
	if err != nil {
		r.logger.Printf("cart repo: items owner=%s error=%v", ownerKey, err)
		return nil, err
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.IsFree, &item.Invalid); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		r.logger.Printf("cart repo: items rows owner=%s error=%v", ownerKey, err)
		return nil, err
	}
	return items, nil
}

func (r *postgresRepo) Quantity(ctx context.Context, ownerKey, productID string) (int, error) {
	var qty int
	err := r.pool.QueryRow(ctx, `
SELECT ci.quantity
FROM cart_items ci
JOIN carts c ON c.id = ci.cart_id
WHERE c.owner_key = $1 AND ci.product_id = $2
`, ownerKey, productID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return qty, nil
}
