package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/pagination"
	"github.com/ariefcatur/go-order-saga/internal/postgres"
	"github.com/jackc/pgx/v5"
)

func (l *Ledger) Create(ctx context.Context, in CreateInput) (Product, error) {
	if err := in.Validate(); err != nil {
		return Product{}, err
	}
	p, err := scanProduct(postgres.Q(ctx, l.pool).QueryRow(ctx, `
INSERT INTO products (sku, name, price_cents, stock)
VALUES ($1, $2, $3, $4)
RETURNING `+productColumns,
		in.SKU, in.Name, in.PriceCents, in.Stock))
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return Product{}, ErrDuplicateSKU
		}
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

func (l *Ledger) Get(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(postgres.Q(ctx, l.pool).QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, apperr.ErrProductNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// Search lists products whose name or sku contains q, after the page cursor.
func (l *Ledger) Search(ctx context.Context, q string, page pagination.Page) ([]Product, pagination.Info, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(q)) + "%"
	rows, err := postgres.Q(ctx, l.pool).Query(ctx, `
SELECT `+productColumns+`
FROM products
WHERE id > $1 AND ($2 = '%%' OR lower(name) LIKE $2 OR lower(sku) LIKE $2)
ORDER BY id
LIMIT $3`, page.Cursor, pattern, page.Fetch())
	if err != nil {
		return nil, pagination.Info{}, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, pagination.Info{}, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, pagination.Info{}, err
	}
	items, info := pagination.Trim(out, page, func(p Product) int64 { return p.ID })
	return items, info, nil
}

// Update is the direct adjustment path for price and stock.
func (l *Ledger) Update(ctx context.Context, id int64, in UpdateInput) (Product, error) {
	if err := in.Validate(); err != nil {
		return Product{}, err
	}
	p, err := scanProduct(postgres.Q(ctx, l.pool).QueryRow(ctx, `
UPDATE products
SET price_cents = COALESCE($2, price_cents),
    stock = COALESCE($3, stock),
    updated_at = NOW()
WHERE id = $1
RETURNING `+productColumns, id, in.PriceCents, in.Stock))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, apperr.ErrProductNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	return p, nil
}
