package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the Postgres order store. Writes join the transaction carried by
// ctx; reads outside a transaction go to the pool.
type Repo struct{ DB *pgxpool.Pool }

func NewRepo(db *pgxpool.Pool) *Repo { return &Repo{DB: db} }

const orderColumns = `id, customer_id, status, total_cents, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	if err := row.Scan(&o.ID, &o.CustomerID, &status, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	return o, nil
}

func (r *Repo) InsertOrder(ctx context.Context, o Order) (Order, error) {
	out, err := scanOrder(postgres.Q(ctx, r.DB).QueryRow(ctx, `
INSERT INTO orders (customer_id, status, total_cents, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
RETURNING `+orderColumns,
		o.CustomerID, string(o.Status), o.TotalCents, o.CreatedAt))
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}
	return out, nil
}

func (r *Repo) InsertItems(ctx context.Context, orderID int64, items []Item) error {
	q := postgres.Q(ctx, r.DB)
	for _, it := range items {
		if _, err := q.Exec(ctx, `
INSERT INTO order_items (order_id, product_id, qty, unit_price_cents, subtotal_cents)
VALUES ($1, $2, $3, $4, $5)`,
			orderID, it.ProductID, it.Qty, it.UnitPriceCents, it.SubtotalCents,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *Repo) GetOrder(ctx context.Context, id int64) (Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// LockOrder reads the order under a row lock held until the transaction ends.
func (r *Repo) LockOrder(ctx context.Context, id int64) (Order, error) {
	if postgres.TxFromContext(ctx) == nil {
		return Order{}, errors.New("orders: LockOrder outside transaction")
	}
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repo) getOrder(ctx context.Context, sql string, id int64) (Order, error) {
	o, err := scanOrder(postgres.Q(ctx, r.DB).QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.ErrOrderNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (r *Repo) ListItems(ctx context.Context, orderID int64) ([]Item, error) {
	rows, err := postgres.Q(ctx, r.DB).Query(ctx, `
SELECT product_id, qty, unit_price_cents, subtotal_cents
FROM order_items
WHERE order_id = $1
ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Qty, &it.UnitPriceCents, &it.SubtotalCents); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) SetStatus(ctx context.Context, id int64, status Status, at time.Time) (Order, error) {
	o, err := scanOrder(postgres.Q(ctx, r.DB).QueryRow(ctx, `
UPDATE orders SET status = $2, updated_at = $3
WHERE id = $1
RETURNING `+orderColumns, id, string(status), at))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.ErrOrderNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("update order status: %w", err)
	}
	return o, nil
}

// ListOrders returns up to Page.Fetch() orders after the cursor.
func (r *Repo) ListOrders(ctx context.Context, f ListFilter) ([]Order, error) {
	where := []string{"id > $1"}
	args := []any{f.Page.Cursor}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	args = append(args, f.Page.Fetch())

	rows, err := postgres.Q(ctx, r.DB).Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+strings.Join(where, " AND ")+
			fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListStale returns ids of orders still CREATED at or before the cutoff.
func (r *Repo) ListStale(ctx context.Context, before time.Time, limit int) ([]int64, error) {
	rows, err := postgres.Q(ctx, r.DB).Query(ctx, `
SELECT id FROM orders
WHERE status = $1 AND created_at <= $2
ORDER BY created_at
LIMIT $3`, string(StatusCreated), before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale orders: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
