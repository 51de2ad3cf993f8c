package cart

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	"storefront/internal/migrate"
)

func TestPostgres_UpsertAndItems(t *testing.T) {
	ctx := context.Background()
	pool := testPool(ctx, t)
	defer pool.Close()
	resetTables(ctx, t, pool)

	productID := insertProduct(ctx, t, pool, "SKU-CART-1", true)
	repo := NewPostgres(pool, nil)

	if err := repo.UpsertItem(ctx, "sess-1", productID, 2); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	// Second upsert replaces the quantity, no duplicate line.
	if err := repo.UpsertItem(ctx, "sess-1", productID, 5); err != nil {
		t.Fatalf("UpsertItem replace: %v", err)
	}

	items, err := repo.Items(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 line, got %d", len(items))
	}
	if items[0].Quantity != 5 || items[0].ProductName != "Plugin One" {
		t.Fatalf("unexpected line %+v", items[0])
	}
	if !items[0].UnitPrice.Equal(decimal.RequireFromString("19.99")) {
		t.Fatalf("expected live catalog price, got %s", items[0].UnitPrice)
	}
	if items[0].Invalid {
		t.Fatal("active product must not be flagged invalid")
	}

	qty, err := repo.Quantity(ctx, "sess-1", productID)
	if err != nil {
		t.Fatalf("Quantity: %v", err)
	}
	if qty != 5 {
		t.Fatalf("expected quantity 5, got %d", qty)
	}
}

func TestPostgres_DeactivatedProductFlaggedInvalid(t *testing.T) {
	ctx := context.Background()
	pool := testPool(ctx, t)
	defer pool.Close()
	resetTables(ctx, t, pool)

	productID := insertProduct(ctx, t, pool, "SKU-CART-2", true)
	repo := NewPostgres(pool, nil)

	if err := repo.UpsertItem(ctx, "sess-1", productID, 1); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	if _, err := pool.Exec(ctx, `UPDATE products SET is_active = false WHERE id = $1`, productID); err != nil {
		t.Fatalf("deactivate product: %v", err)
	}

	items, err := repo.Items(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 1 || !items[0].Invalid {
		t.Fatalf("expected invalid line, got %+v", items)
	}
}

func TestPostgres_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	pool := testPool(ctx, t)
	defer pool.Close()
	resetTables(ctx, t, pool)

	productID := insertProduct(ctx, t, pool, "SKU-CART-3", true)
	repo := NewPostgres(pool, nil)

	if err := repo.RemoveItem(ctx, "sess-1", productID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound removing from empty cart, got %v", err)
	}

	if err := repo.UpsertItem(ctx, "sess-1", productID, 2); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	if err := repo.RemoveItem(ctx, "sess-1", productID); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}

	if err := repo.UpsertItem(ctx, "sess-1", productID, 2); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	if err := repo.Clear(ctx, "sess-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	items, err := repo.Items(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty cart after clear, got %d lines", len(items))
	}
}

func testPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	if err := migrate.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return pool
}

func resetTables(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(ctx, `TRUNCATE user_licenses, order_items, orders, cart_items, carts, products RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func insertProduct(ctx context.Context, t *testing.T, pool *pgxpool.Pool, sku string, active bool) string {
	t.Helper()
	var id string
	err := pool.QueryRow(ctx, `
INSERT INTO products (sku, name, price, is_active)
VALUES ($1, 'Plugin One', 19.99, $2)
RETURNING id::text
`, sku, active).Scan(&id)
	if err != nil {
		t.Fatalf("insert product: %v", err)
	}
	return id
}
