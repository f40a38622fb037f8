package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/clock"
	"github.com/ariefcatur/go-order-saga/internal/customers"
	"github.com/ariefcatur/go-order-saga/internal/idempotency"
	"github.com/ariefcatur/go-order-saga/internal/inventory"
	kafkax "github.com/ariefcatur/go-order-saga/internal/kafka"
	"github.com/ariefcatur/go-order-saga/internal/metrics"
	"github.com/ariefcatur/go-order-saga/internal/pagination"
	"github.com/ariefcatur/go-order-saga/internal/redisx"
	"github.com/rs/zerolog"
)

const (
	TargetOrderCreate  = "order_create"
	TargetOrderConfirm = "order_confirm"

	DefaultCancelWindow = 10 * time.Minute
)

type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Store interface {
	InsertOrder(ctx context.Context, o Order) (Order, error)
	InsertItems(ctx context.Context, orderID int64, items []Item) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	LockOrder(ctx context.Context, id int64) (Order, error)
	ListItems(ctx context.Context, orderID int64) ([]Item, error)
	SetStatus(ctx context.Context, id int64, status Status, at time.Time) (Order, error)
	ListOrders(ctx context.Context, f ListFilter) ([]Order, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]int64, error)
}

type Inventory interface {
	LockProducts(ctx context.Context, ids []int64) (map[int64]inventory.Product, error)
	Decrement(ctx context.Context, productID, qty int64) error
	Increment(ctx context.Context, productID, qty int64) error
}

type Directory interface {
	Lookup(ctx context.Context, id int64) (customers.Customer, error)
}

// Ledger is the idempotency store plus a lock-free read of completed keys.
type Ledger interface {
	idempotency.Store
	Peek(ctx context.Context, key string) (*idempotency.Record, error)
}

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

// Service is the order state machine. Every call runs in one local
// transaction; cross-request correctness relies on row locks only.
type Service struct {
	tx    TxRunner
	store Store
	inv   Inventory
	idem  Ledger
	dir   Directory

	cache        Cache
	pub          Publisher
	clock        clock.Clock
	log          zerolog.Logger
	cancelWindow time.Duration
	producer     string
}

type Option func(*Service)

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.log = l } }

func WithCache(c Cache) Option { return func(s *Service) { s.cache = c } }

func WithPublisher(p Publisher) Option { return func(s *Service) { s.pub = p } }

func WithProducerName(name string) Option { return func(s *Service) { s.producer = name } }

func WithCancelWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cancelWindow = d
		}
	}
}

func NewService(tx TxRunner, store Store, inv Inventory, idem Ledger, dir Directory, opts ...Option) *Service {
	s := &Service{
		tx:           tx,
		store:        store,
		inv:          inv,
		idem:         idem,
		dir:          dir,
		cache:        redisx.Noop{},
		pub:          kafkax.Noop{},
		clock:        clock.NewSystem(),
		log:          zerolog.Nop(),
		cancelWindow: DefaultCancelWindow,
		producer:     "orders-api",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create places an order: the customer is checked first, then every product
// is locked, checked and decremented together with the order insert.
func (s *Service) Create(ctx context.Context, in CreateInput) (rc Receipt, err error) {
	defer func() { s.observe("create", rc, err) }()

	if err := in.Validate(); err != nil {
		return Receipt{}, err
	}
	var claim idempotency.Claim
	cacheKey := ""
	if in.IdempotencyKey != "" {
		claim = idempotency.Claim{Key: in.IdempotencyKey, TargetType: TargetOrderCreate, Fingerprint: in.Fingerprint()}
		cacheKey = redisx.IdemReplayKey(TargetOrderCreate, claim.Fingerprint, claim.Key)
		if body, ok := s.cache.Get(ctx, cacheKey); ok {
			metrics.IdempotentReplays.WithLabelValues(TargetOrderCreate, "cache").Inc()
			return Receipt{Body: body, Replayed: true}, nil
		}
		// a completed creation replays without asking the directory again
		rec, err := s.idem.Peek(ctx, claim.Key)
		if err != nil {
			return Receipt{}, err
		}
		if rec != nil {
			out, err := idempotency.Replay(rec, claim)
			if err != nil {
				return Receipt{}, err
			}
			metrics.IdempotentReplays.WithLabelValues(TargetOrderCreate, "ledger").Inc()
			s.cache.Set(ctx, cacheKey, out.Body, redisx.TTLIdempotency)
			return Receipt{OrderID: out.TargetID, Body: out.Body, Replayed: true}, nil
		}
	}

	// network call stays outside the transaction so no row lock waits on it
	cust, err := s.dir.Lookup(ctx, in.CustomerID)
	if err != nil {
		return Receipt{}, err
	}

	var placed Order
	op := func(ctx context.Context) (int64, []byte, error) {
		o, err := s.place(ctx, in)
		if err != nil {
			return 0, nil, err
		}
		placed = o
		body, err := encode("Order created successfully", Placement{Customer: cust, Order: o}, in.CorrelationID)
		return o.ID, body, err
	}

	var out idempotency.Outcome
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if in.IdempotencyKey == "" {
			out.TargetID, out.Body, err = op(ctx)
			return err
		}
		out, err = idempotency.Run(ctx, s.idem, claim, op)
		return err
	})
	if err != nil {
		return Receipt{}, err
	}

	if out.Replayed {
		metrics.IdempotentReplays.WithLabelValues(TargetOrderCreate, "ledger").Inc()
	} else {
		s.emit(ctx, TopicOrderCreated, EventOrderCreated, placed.ID, in.CorrelationID, OrderCreatedPayload{
			OrderID:    placed.ID,
			CustomerID: placed.CustomerID,
			TotalCents: placed.TotalCents,
			Items:      placed.Items,
		})
	}
	if cacheKey != "" {
		s.cache.Set(ctx, cacheKey, out.Body, redisx.TTLIdempotency)
	}
	return Receipt{OrderID: out.TargetID, Body: out.Body, Replayed: out.Replayed}, nil
}

// place runs inside the creation transaction.
func (s *Service) place(ctx context.Context, in CreateInput) (Order, error) {
	// the same product may appear on several lines; stock is checked against the sum
	requested := make(map[int64]int64, len(in.Items))
	ids := make([]int64, 0, len(in.Items))
	for _, it := range in.Items {
		if _, seen := requested[it.ProductID]; !seen {
			ids = append(ids, it.ProductID)
		}
		sum, err := AddCents(requested[it.ProductID], it.Qty)
		if err != nil {
			return Order{}, err
		}
		requested[it.ProductID] = sum
	}

	products, err := s.inv.LockProducts(ctx, ids)
	if err != nil {
		return Order{}, err
	}
	for _, id := range ids {
		p, ok := products[id]
		if !ok {
			return Order{}, apperr.ErrProductNotFound.WithDetails(map[string]any{"product_id": id})
		}
		if p.Stock < requested[id] {
			return Order{}, apperr.ErrInsufficientStock.WithDetails(map[string]any{
				"product_id": id,
				"available":  p.Stock,
				"requested":  requested[id],
			})
		}
	}

	items := make([]Item, 0, len(in.Items))
	var total int64
	for _, it := range in.Items {
		unit := products[it.ProductID].PriceCents
		sub, err := LineTotal(unit, it.Qty)
		if err != nil {
			return Order{}, err
		}
		if total, err = AddCents(total, sub); err != nil {
			return Order{}, err
		}
		items = append(items, Item{ProductID: it.ProductID, Qty: it.Qty, UnitPriceCents: unit, SubtotalCents: sub})
	}

	now := s.clock.Now()
	o, err := s.store.InsertOrder(ctx, Order{
		CustomerID: in.CustomerID,
		Status:     StatusCreated,
		TotalCents: total,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return Order{}, err
	}
	if err := s.store.InsertItems(ctx, o.ID, items); err != nil {
		return Order{}, err
	}

	slices.Sort(ids)
	for _, id := range ids {
		if err := s.inv.Decrement(ctx, id, requested[id]); err != nil {
			return Order{}, err
		}
	}
	o.Items = items
	return o, nil
}

// Confirm moves a CREATED order to CONFIRMED at most once per key. A repeated
// key gets the stored response back byte for byte.
func (s *Service) Confirm(ctx context.Context, orderID int64, key, correlationID string) (rc Receipt, err error) {
	defer func() { s.observe("confirm", rc, err) }()

	key = strings.TrimSpace(key)
	if key == "" {
		return Receipt{}, apperr.ErrIdempotencyKeyRequired
	}
	if orderID <= 0 {
		return Receipt{}, apperr.Validation("order id must be a positive integer")
	}
	cacheKey := redisx.IdemReplayKey(TargetOrderConfirm, strconv.FormatInt(orderID, 10), key)
	if body, ok := s.cache.Get(ctx, cacheKey); ok {
		metrics.IdempotentReplays.WithLabelValues(TargetOrderConfirm, "cache").Inc()
		return Receipt{OrderID: orderID, Body: body, Replayed: true}, nil
	}

	transitioned := false
	var out idempotency.Outcome
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		out, err = idempotency.Run(ctx, s.idem, idempotency.Claim{Key: key, TargetType: TargetOrderConfirm, TargetID: orderID}, func(ctx context.Context) (int64, []byte, error) {
			o, err := s.store.LockOrder(ctx, orderID)
			if err != nil {
				return 0, nil, err
			}
			msg := "Order already confirmed"
			switch o.Status {
			case StatusCanceled:
				return 0, nil, apperr.ErrOrderCanceled
			case StatusCreated:
				if o, err = s.transition(ctx, o, StatusConfirmed); err != nil {
					return 0, nil, err
				}
				transitioned = true
				msg = "Order confirmed successfully"
			}
			if o.Items, err = s.store.ListItems(ctx, orderID); err != nil {
				return 0, nil, err
			}
			body, err := encode(msg, o, correlationID)
			return orderID, body, err
		})
		return err
	})
	if err != nil {
		return Receipt{}, err
	}

	s.cache.Set(ctx, cacheKey, out.Body, redisx.TTLIdempotency)
	if out.Replayed {
		metrics.IdempotentReplays.WithLabelValues(TargetOrderConfirm, "ledger").Inc()
	}
	if transitioned {
		s.emit(ctx, TopicOrderConfirmed, EventOrderConfirmed, orderID, correlationID,
			OrderStatusPayload{OrderID: orderID, Status: StatusConfirmed})
	}
	return Receipt{OrderID: orderID, Body: out.Body, Replayed: out.Replayed}, nil
}

// Cancel is safe to repeat: an already canceled order reports success.
func (s *Service) Cancel(ctx context.Context, orderID int64, correlationID string) (rc Receipt, err error) {
	defer func() { s.observe("cancel", rc, err) }()
	rc, _, err = s.cancel(ctx, orderID, correlationID, false)
	return rc, err
}

// cancel with onlyCreated set leaves orders that are no longer CREATED
// untouched and reports skipped.
func (s *Service) cancel(ctx context.Context, orderID int64, correlationID string, onlyCreated bool) (Receipt, bool, error) {
	if orderID <= 0 {
		return Receipt{}, false, apperr.Validation("order id must be a positive integer")
	}

	transitioned, skipped := false, false
	var body []byte
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.store.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if onlyCreated && o.Status != StatusCreated {
			skipped = true
			return nil
		}

		msg := "Order already canceled"
		switch o.Status {
		case StatusConfirmed:
			if s.clock.Now().Sub(o.CreatedAt) > s.cancelWindow {
				return apperr.ErrCancellationWindowExpired.
					WithMessage(fmt.Sprintf("Cannot cancel confirmed order after %d minutes", int(s.cancelWindow.Minutes()))).
					WithDetails(map[string]any{"order_id": orderID, "created_at": o.CreatedAt})
			}
			fallthrough
		case StatusCreated:
			if err := s.restoreStock(ctx, orderID); err != nil {
				return err
			}
			if o, err = s.transition(ctx, o, StatusCanceled); err != nil {
				return err
			}
			transitioned = true
			msg = "Order canceled successfully"
		}
		body, err = encode(msg, StatusView{ID: o.ID, Status: o.Status}, correlationID)
		return err
	})
	if err != nil || skipped {
		return Receipt{}, skipped, err
	}

	if transitioned {
		s.emit(ctx, TopicOrderCanceled, EventOrderCanceled, orderID, correlationID,
			OrderStatusPayload{OrderID: orderID, Status: StatusCanceled})
	}
	return Receipt{OrderID: orderID, Body: body}, false, nil
}

func (s *Service) transition(ctx context.Context, o Order, to Status) (Order, error) {
	if !CanTransition(o.Status, to) {
		return Order{}, fmt.Errorf("order %d: transition %s -> %s not allowed", o.ID, o.Status, to)
	}
	return s.store.SetStatus(ctx, o.ID, to, s.clock.Now())
}

// restoreStock gives back exactly what the order consumed, product locks in
// ascending id order.
func (s *Service) restoreStock(ctx context.Context, orderID int64) error {
	items, err := s.store.ListItems(ctx, orderID)
	if err != nil {
		return err
	}
	qty := make(map[int64]int64, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if _, seen := qty[it.ProductID]; !seen {
			ids = append(ids, it.ProductID)
		}
		qty[it.ProductID] += it.Qty
	}
	slices.Sort(ids)
	for _, id := range ids {
		if err := s.inv.Increment(ctx, id, qty[id]); err != nil {
			return err
		}
	}
	return nil
}

// Get reads through the order cache. Only CANCELED orders are cached: they
// never change again, so a read racing a transition cannot store a stale
// status.
func (s *Service) Get(ctx context.Context, orderID int64) (Order, error) {
	key := redisx.OrderKey(orderID)
	if b, ok := s.cache.Get(ctx, key); ok {
		var o Order
		if err := json.Unmarshal(b, &o); err == nil {
			return o, nil
		}
	}

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.Items, err = s.store.ListItems(ctx, orderID); err != nil {
		return Order{}, err
	}
	if o.Status != StatusCanceled {
		return o, nil
	}
	if b, err := json.Marshal(o); err == nil {
		s.cache.Set(ctx, key, b, redisx.TTLOrderCache)
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, pagination.Info, error) {
	rows, err := s.store.ListOrders(ctx, f)
	if err != nil {
		return nil, pagination.Info{}, err
	}
	out, info := pagination.Trim(rows, f.Page, func(o Order) int64 { return o.ID })
	return out, info, nil
}

func (s *Service) observe(op string, rc Receipt, err error) {
	metrics.OrderOps.WithLabelValues(op, metrics.Outcome(err)).Inc()
	switch {
	case err == nil:
		s.log.Info().Str("op", op).Int64("order_id", rc.OrderID).Bool("replayed", rc.Replayed).Msg("order operation")
	case apperr.KindOf(err) == apperr.KindInternal:
		s.log.Error().Err(err).Str("op", op).Msg("order operation failed")
	default:
		s.log.Warn().Err(err).Str("op", op).Msg("order operation rejected")
	}
}

func encode(msg string, data any, correlationID string) ([]byte, error) {
	env, err := apperr.Success(msg, data, correlationID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
