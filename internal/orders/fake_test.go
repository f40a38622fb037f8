package orders

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/customers"
	"github.com/ariefcatur/go-order-saga/internal/idempotency"
	"github.com/ariefcatur/go-order-saga/internal/inventory"
	kafkax "github.com/ariefcatur/go-order-saga/internal/kafka"
)

// memDB is an in-memory stand-in for Postgres. Transactions are serialized
// and roll back by restoring a snapshot.
type memDB struct {
	mu sync.Mutex

	products map[int64]inventory.Product
	orders   map[int64]Order
	items    map[int64][]Item
	keys     map[string]idempotency.Record
	nextID   int64

	lockOrder []int64
	// afterRead runs once after the next unlocked order read.
	afterRead func()
}

func newMemDB() *memDB {
	return &memDB{
		products: map[int64]inventory.Product{},
		orders:   map[int64]Order{},
		items:    map[int64][]Item{},
		keys:     map[string]idempotency.Record{},
	}
}

func (db *memDB) addProduct(id, price, stock int64) {
	db.products[id] = inventory.Product{ID: id, SKU: "SKU", Name: "p", PriceCents: price, Stock: stock}
}

func (db *memDB) stock(id int64) int64 { return db.products[id].Stock }

func (db *memDB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	products := maps.Clone(db.products)
	orders := maps.Clone(db.orders)
	items := maps.Clone(db.items)
	keys := maps.Clone(db.keys)
	nextID := db.nextID

	if err := fn(ctx); err != nil {
		db.products, db.orders, db.items, db.keys, db.nextID = products, orders, items, keys, nextID
		return err
	}
	return nil
}

func (db *memDB) InsertOrder(_ context.Context, o Order) (Order, error) {
	db.nextID++
	o.ID = db.nextID
	o.UpdatedAt = o.CreatedAt
	db.orders[o.ID] = o
	return o, nil
}

func (db *memDB) InsertItems(_ context.Context, orderID int64, items []Item) error {
	db.items[orderID] = append([]Item(nil), items...)
	return nil
}

func (db *memDB) order(id int64) (Order, error) {
	o, ok := db.orders[id]
	if !ok {
		return Order{}, apperr.ErrOrderNotFound
	}
	return o, nil
}

func (db *memDB) GetOrder(_ context.Context, id int64) (Order, error) {
	o, err := db.order(id)
	if hook := db.afterRead; hook != nil {
		db.afterRead = nil
		hook()
	}
	return o, err
}

func (db *memDB) LockOrder(_ context.Context, id int64) (Order, error) {
	return db.order(id)
}

func (db *memDB) ListItems(_ context.Context, orderID int64) ([]Item, error) {
	return append([]Item(nil), db.items[orderID]...), nil
}

func (db *memDB) SetStatus(_ context.Context, id int64, status Status, at time.Time) (Order, error) {
	o, ok := db.orders[id]
	if !ok {
		return Order{}, apperr.ErrOrderNotFound
	}
	o.Status, o.UpdatedAt = status, at
	db.orders[id] = o
	return o, nil
}

func (db *memDB) ListOrders(_ context.Context, f ListFilter) ([]Order, error) {
	ids := slices.Sorted(maps.Keys(db.orders))
	out := []Order{}
	for _, id := range ids {
		o := db.orders[id]
		if id <= f.Page.Cursor || (f.Status != "" && o.Status != f.Status) {
			continue
		}
		if f.From != nil && o.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && o.CreatedAt.After(*f.To) {
			continue
		}
		out = append(out, o)
		if len(out) == f.Page.Fetch() {
			break
		}
	}
	return out, nil
}

func (db *memDB) ListStale(_ context.Context, before time.Time, limit int) ([]int64, error) {
	var out []int64
	for _, id := range slices.Sorted(maps.Keys(db.orders)) {
		o := db.orders[id]
		if o.Status == StatusCreated && !o.CreatedAt.After(before) && len(out) < limit {
			out = append(out, id)
		}
	}
	return out, nil
}

func (db *memDB) LockProducts(_ context.Context, ids []int64) (map[int64]inventory.Product, error) {
	sorted := slices.Compact(slices.Sorted(slices.Values(ids)))
	out := map[int64]inventory.Product{}
	for _, id := range sorted {
		db.lockOrder = append(db.lockOrder, id)
		if p, ok := db.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (db *memDB) Decrement(_ context.Context, id, qty int64) error {
	p := db.products[id]
	if p.Stock < qty {
		return apperr.ErrInsufficientStock
	}
	p.Stock -= qty
	db.products[id] = p
	return nil
}

func (db *memDB) Increment(_ context.Context, id, qty int64) error {
	p := db.products[id]
	p.Stock += qty
	db.products[id] = p
	return nil
}

func (db *memDB) Acquire(_ context.Context, key string) (*idempotency.Record, error) {
	rec, ok := db.keys[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (db *memDB) Peek(_ context.Context, key string) (*idempotency.Record, error) {
	rec, ok := db.keys[key]
	if !ok || rec.Status != idempotency.StatusCompleted {
		return nil, nil
	}
	return &rec, nil
}

func (db *memDB) Begin(_ context.Context, c idempotency.Claim) error {
	if _, ok := db.keys[c.Key]; ok {
		return apperr.ErrRequestInProgress
	}
	db.keys[c.Key] = idempotency.Record{
		Key:         c.Key,
		TargetType:  c.TargetType,
		TargetID:    c.TargetID,
		Fingerprint: c.Fingerprint,
		Status:      idempotency.StatusInProgress,
	}
	return nil
}

func (db *memDB) Complete(_ context.Context, key string, targetID int64, body []byte) error {
	rec := db.keys[key]
	rec.Status, rec.TargetID, rec.ResponseBody = idempotency.StatusCompleted, targetID, body
	db.keys[key] = rec
	return nil
}

type stubDirectory struct {
	customers map[int64]customers.Customer
	err       error
	calls     int
}

func (d *stubDirectory) Lookup(_ context.Context, id int64) (customers.Customer, error) {
	d.calls++
	if d.err != nil {
		return customers.Customer{}, d.err
	}
	c, ok := d.customers[id]
	if !ok {
		return customers.Customer{}, apperr.ErrCustomerNotFound
	}
	return c, nil
}

type memCache struct{ m map[string][]byte }

func newMemCache() *memCache { return &memCache{m: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	b, ok := c.m[key]
	return b, ok
}

func (c *memCache) Set(_ context.Context, key string, val []byte, _ time.Duration) { c.m[key] = val }

type recordingPublisher struct{ msgs []kafkax.Message }

func (p *recordingPublisher) Publish(_ context.Context, m kafkax.Message) { p.msgs = append(p.msgs, m) }

func (p *recordingPublisher) topics() []string {
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.Topic)
	}
	return out
}
