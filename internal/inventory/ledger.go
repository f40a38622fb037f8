// Package inventory owns product stock. Stock mutations only happen inside a
// caller-supplied transaction (see postgres.TxRunner).
package inventory

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var errNoTx = errors.New("inventory: stock mutation outside transaction")

type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

const productColumns = `id, sku, name, price_cents, stock, created_at, updated_at`

// LockProducts takes a row lock on every product in ids, one at a time in
// ascending id order. Missing products are absent from the result.
func (l *Ledger) LockProducts(ctx context.Context, ids []int64) (map[int64]Product, error) {
	tx := postgres.TxFromContext(ctx)
	if tx == nil {
		return nil, errNoTx
	}
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	out := make(map[int64]Product, len(sorted))
	for _, id := range sorted {
		p, err := scanProduct(tx.QueryRow(ctx,
			`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lock product %d: %w", id, err)
		}
		out[id] = p
	}
	return out, nil
}

// Decrement takes qty units of stock. The guard in the WHERE clause keeps
// stock from going negative even if a caller skipped LockProducts.
func (l *Ledger) Decrement(ctx context.Context, productID, qty int64) error {
	tx := postgres.TxFromContext(ctx)
	if tx == nil {
		return errNoTx
	}
	tag, err := tx.Exec(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = NOW() WHERE id = $1 AND stock >= $2`,
		productID, qty)
	if err != nil {
		return fmt.Errorf("decrement stock %d: %w", productID, err)
	}
	if tag.RowsAffected() != 1 {
		return apperr.ErrInsufficientStock.WithDetails(map[string]any{
			"product_id": productID,
			"requested":  qty,
		})
	}
	return nil
}

func (l *Ledger) Increment(ctx context.Context, productID, qty int64) error {
	tx := postgres.TxFromContext(ctx)
	if tx == nil {
		return errNoTx
	}
	tag, err := tx.Exec(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1`,
		productID, qty)
	if err != nil {
		return fmt.Errorf("increment stock %d: %w", productID, err)
	}
	if tag.RowsAffected() != 1 {
		return apperr.ErrProductNotFound.WithDetails(map[string]any{"product_id": productID})
	}
	return nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
