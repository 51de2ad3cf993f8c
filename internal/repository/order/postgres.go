package order

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

const orderColumns = `id::text, order_number, user_id, customer_name, customer_email,
       payment_method, payment_status, failure_reason, total_amount, cart_owner_key,
       gateway_order_id, payment_id, created_at, updated_at`

func (r *postgresRepo) CreateWithItems(ctx context.Context, o domain.Order, items []domain.OrderItem) (*domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	created := o
	err = tx.QueryRow(ctx, `
INSERT INTO orders (order_number, user_id, customer_name, customer_email, payment_method, payment_status, total_amount, cart_owner_key)
VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7)
RETURNING id::text, created_at, updated_at
`, o.OrderNumber, o.UserID, o.CustomerName, o.CustomerEmail, string(o.PaymentMethod), o.TotalAmount, o.CartOwnerKey).Scan(
		&created.ID, &created.CreatedAt, &created.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDuplicateOrderNumber
		}
		r.logger.Printf("order repo: create number=%s error=%v", o.OrderNumber, err)
		return nil, err
	}
	created.PaymentStatus = domain.PaymentStatusPending

	for _, item := range items {
		var id string
		if err := tx.QueryRow(ctx, `
INSERT INTO order_items (order_id, product_id, product_name, price, quantity, is_free, download_limit, update_months)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id::text
`, created.ID, item.ProductID, item.ProductName, item.Price, item.Quantity, item.IsFree, item.DownloadLimit, item.UpdateMonths).Scan(&id); err != nil {
			r.logger.Printf("order repo: insert item order=%s product=%s error=%v", created.ID, item.ProductID, err)
			return nil, err
		}
		item.ID = id
		item.OrderID = created.ID
		created.Items = append(created.Items, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *postgresRepo) GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	const q = `
SELECT ` + orderColumns + `
FROM orders
WHERE order_number = $1
`
	o, err := scanOrder(r.pool.QueryRow(ctx, q, orderNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	items, err := r.fetchItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *postgresRepo) SetGatewayOrderID(ctx context.Context, orderID, gatewayOrderID string) error {
	cmd, err := r.pool.Exec(ctx, `
UPDATE orders
SET gateway_order_id = $1, updated_at = now()
WHERE id = $2
`, gatewayOrderID, orderID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) Transition(ctx context.Context, orderNumber string, fn TransitionFunc) (*domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const q = `
SELECT ` + orderColumns + `
FROM orders
WHERE order_number = $1
FOR UPDATE
`
	o, err := scanOrder(tx.QueryRow(ctx, q, orderNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	change, err := fn(o)
	if err != nil {
		return nil, err
	}
	if change == nil {
		// Another signal already applied the change; observe and release.
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return r.GetByNumber(ctx, orderNumber)
	}

	var reason *string
	if change.FailureReason != nil {
		s := string(*change.FailureReason)
		reason = &s
	}
	if _, err := tx.Exec(ctx, `
UPDATE orders
SET payment_status = $1,
    payment_id = COALESCE($2, payment_id),
    failure_reason = $3,
    updated_at = now()
WHERE id = $4
`, string(change.Status), change.PaymentID, reason, o.ID); err != nil {
		r.logger.Printf("order repo: transition number=%s to=%s error=%v", orderNumber, change.Status, err)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetByNumber(ctx, orderNumber)
}

func (r *postgresRepo) fetchItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	const q = `
SELECT id::text, order_id::text, product_id::text, product_name, price, quantity, is_free, download_limit, update_months
FROM order_items
WHERE order_id = $1
ORDER BY product_name ASC
`
	rows, err := r.pool.Query(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Price, &item.Quantity, &item.IsFree, &item.DownloadLimit, &item.UpdateMonths); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var method, status string
	var reason *string
	if err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.CustomerName, &o.CustomerEmail,
		&method, &status, &reason, &o.TotalAmount, &o.CartOwnerKey,
		&o.GatewayOrderID, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	o.PaymentMethod = domain.PaymentMethod(method)
	o.PaymentStatus = domain.PaymentStatus(status)
	if reason != nil {
		fr := domain.FailureReason(*reason)
		o.FailureReason = &fr
	}
	return &o, nil
}
