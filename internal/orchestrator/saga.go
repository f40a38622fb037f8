// Package orchestrator places and confirms an order for an external client
// in one call. Steps commit independently and nothing is compensated: a
// failure after creation reports the order id so the caller can retry the
// confirmation under the same key or cancel the order.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/customers"
	"github.com/ariefcatur/go-order-saga/internal/metrics"
	"github.com/ariefcatur/go-order-saga/internal/orders"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	StepValidateCustomer = "validate_customer"
	StepCreateOrder      = "create_order"
	StepConfirmOrder     = "confirm_order"
)

type CustomerLookup interface {
	Lookup(ctx context.Context, id int64) (customers.Customer, error)
}

type OrderAPI interface {
	Create(ctx context.Context, in orders.CreateInput) (orders.Placement, error)
	Confirm(ctx context.Context, orderID int64, key, correlationID string) (orders.Order, error)
}

type Timeouts struct {
	Customer time.Duration
	Create   time.Duration
	Confirm  time.Duration
}

var DefaultTimeouts = Timeouts{Customer: 5 * time.Second, Create: 10 * time.Second, Confirm: 10 * time.Second}

type Request struct {
	CustomerID     int64              `json:"customer_id"`
	Items          []orders.ItemInput `json:"items"`
	IdempotencyKey string             `json:"idempotency_key"`
	CorrelationID  string             `json:"correlation_id,omitempty"`
}

func (r *Request) Validate() error {
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	if r.CustomerID <= 0 {
		return apperr.Validation("customer_id must be a positive integer")
	}
	if err := orders.ValidateItems(r.Items); err != nil {
		return err
	}
	if r.IdempotencyKey == "" {
		return apperr.Validation("idempotency_key is required")
	}
	return nil
}

type Result struct {
	Customer customers.Customer `json:"customer"`
	Order    orders.Order       `json:"order"`
}

type Saga struct {
	customers CustomerLookup
	orders    OrderAPI
	timeouts  Timeouts
	log       zerolog.Logger
}

func NewSaga(c CustomerLookup, o OrderAPI, t Timeouts, log zerolog.Logger) *Saga {
	if t.Customer <= 0 {
		t.Customer = DefaultTimeouts.Customer
	}
	if t.Create <= 0 {
		t.Create = DefaultTimeouts.Create
	}
	if t.Confirm <= 0 {
		t.Confirm = DefaultTimeouts.Confirm
	}
	return &Saga{customers: c, orders: o, timeouts: t, log: log.With().Str("component", "saga").Logger()}
}

// NewCorrelationID is used when the client sends none.
func NewCorrelationID() string { return "orchestrator-" + uuid.NewString() }

// CreateAndConfirm runs the three steps in order. Sub-calls are detached from
// ctx cancellation: once dispatched, a step runs until it returns or its own
// timeout fires. Errors are *apperr.StepFailure.
func (s *Saga) CreateAndConfirm(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	if req.CorrelationID == "" {
		req.CorrelationID = NewCorrelationID()
	}
	log := s.log.With().Str("correlation_id", req.CorrelationID).Int64("customer_id", req.CustomerID).Logger()
	detached := context.WithoutCancel(ctx)

	var cust customers.Customer
	err := s.step(detached, StepValidateCustomer, s.timeouts.Customer, func(ctx context.Context) error {
		var err error
		cust, err = s.customers.Lookup(ctx, req.CustomerID)
		return err
	})
	if err != nil {
		log.Warn().Err(err).Str("step", StepValidateCustomer).Msg("saga step failed")
		return Result{}, &apperr.StepFailure{Step: StepValidateCustomer, Err: err}
	}

	var placed orders.Placement
	err = s.step(detached, StepCreateOrder, s.timeouts.Create, func(ctx context.Context) error {
		var err error
		placed, err = s.orders.Create(ctx, orders.CreateInput{
			CustomerID:     req.CustomerID,
			Items:          req.Items,
			CorrelationID:  req.CorrelationID,
			IdempotencyKey: req.IdempotencyKey + ":create",
		})
		return err
	})
	if err != nil {
		log.Warn().Err(err).Str("step", StepCreateOrder).Msg("saga step failed")
		return Result{}, &apperr.StepFailure{Step: StepCreateOrder, Err: err}
	}
	orderID := placed.Order.ID

	var confirmed orders.Order
	err = s.step(detached, StepConfirmOrder, s.timeouts.Confirm, func(ctx context.Context) error {
		var err error
		confirmed, err = s.orders.Confirm(ctx, orderID, req.IdempotencyKey, req.CorrelationID)
		return err
	})
	if err != nil {
		log.Warn().Err(err).Str("step", StepConfirmOrder).Int64("order_id", orderID).Msg("saga step failed, order left CREATED")
		return Result{}, &apperr.StepFailure{Step: StepConfirmOrder, OrderID: orderID, Err: err}
	}

	log.Info().Int64("order_id", orderID).Msg("order placed and confirmed")
	return Result{Customer: cust, Order: confirmed}, nil
}

func (s *Saga) step(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil) && apperr.KindOf(err) != apperr.KindDependencyUnavailable {
		err = apperr.Unavailable(name+" timed out", err)
	}
	metrics.SagaSteps.WithLabelValues(name, metrics.Outcome(err)).Observe(time.Since(start).Seconds())
	return err
}
