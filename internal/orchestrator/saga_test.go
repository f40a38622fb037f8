package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/customers"
	"github.com/ariefcatur/go-order-saga/internal/orders"
	"github.com/rs/zerolog"
)

type stubCustomers struct {
	delay time.Duration
	err   error
}

func (s stubCustomers) Lookup(ctx context.Context, id int64) (customers.Customer, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return customers.Customer{}, ctx.Err()
		}
	}
	if s.err != nil {
		return customers.Customer{}, s.err
	}
	return customers.Customer{ID: id, Name: "Ann", Email: "ann@example.com"}, nil
}

// memOrders mimics orders-api keyed behavior: one order per creation key and
// one outcome per confirmation key.
type memOrders struct {
	mu         sync.Mutex
	nextID     int64
	byKey      map[string]orders.Placement
	confirmed  map[string]orders.Order
	status     map[int64]orders.Status
	confirmErr error
	creates    int
}

func newMemOrders() *memOrders {
	return &memOrders{byKey: map[string]orders.Placement{}, confirmed: map[string]orders.Order{}, status: map[int64]orders.Status{}}
}

func (m *memOrders) Create(_ context.Context, in orders.CreateInput) (orders.Placement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byKey[in.IdempotencyKey]; ok {
		return p, nil
	}
	m.creates++
	m.nextID++
	p := orders.Placement{
		Customer: customers.Customer{ID: in.CustomerID},
		Order:    orders.Order{ID: m.nextID, CustomerID: in.CustomerID, Status: orders.StatusCreated, TotalCents: 2000},
	}
	m.byKey[in.IdempotencyKey] = p
	m.status[p.Order.ID] = orders.StatusCreated
	return p, nil
}

func (m *memOrders) Confirm(_ context.Context, id int64, key, _ string) (orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.confirmErr != nil {
		return orders.Order{}, m.confirmErr
	}
	if o, ok := m.confirmed[key]; ok {
		return o, nil
	}
	m.status[id] = orders.StatusConfirmed
	o := orders.Order{ID: id, Status: orders.StatusConfirmed, TotalCents: 2000}
	m.confirmed[key] = o
	return o, nil
}

func request() Request {
	return Request{CustomerID: 1, Items: []orders.ItemInput{{ProductID: 10, Qty: 2}}, IdempotencyKey: "k1"}
}

func TestCreateAndConfirm(t *testing.T) {
	om := newMemOrders()
	s := NewSaga(stubCustomers{}, om, DefaultTimeouts, zerolog.Nop())

	res, err := s.CreateAndConfirm(context.Background(), request())
	if err != nil {
		t.Fatalf("saga: %v", err)
	}
	if res.Order.Status != orders.StatusConfirmed || res.Customer.ID != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	again, err := s.CreateAndConfirm(context.Background(), request())
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if again.Order.ID != res.Order.ID || again.Order.Status != orders.StatusConfirmed {
		t.Fatalf("reissue returned a different order: %+v", again.Order)
	}
	if om.creates != 1 {
		t.Fatalf("expected one order, got %d", om.creates)
	}
	if _, ok := om.byKey["k1:create"]; !ok {
		t.Fatalf("creation key not derived from the client key")
	}
}

func TestCreateAndConfirmCustomerTimeout(t *testing.T) {
	om := newMemOrders()
	s := NewSaga(stubCustomers{delay: time.Second}, om, Timeouts{Customer: 20 * time.Millisecond}, zerolog.Nop())

	_, err := s.CreateAndConfirm(context.Background(), request())
	if apperr.KindOf(err) != apperr.KindDependencyUnavailable {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	var sf *apperr.StepFailure
	if !errors.As(err, &sf) || sf.Step != StepValidateCustomer || sf.OrderID != 0 {
		t.Fatalf("unexpected step failure %+v", sf)
	}
	if om.creates != 0 {
		t.Fatalf("order created after customer timeout")
	}
}

func TestCreateAndConfirmUnknownCustomer(t *testing.T) {
	om := newMemOrders()
	s := NewSaga(stubCustomers{err: apperr.ErrCustomerNotFound}, om, DefaultTimeouts, zerolog.Nop())

	_, err := s.CreateAndConfirm(context.Background(), request())
	if !errors.Is(err, apperr.ErrCustomerNotFound) {
		t.Fatalf("expected customer not found, got %v", err)
	}
	if om.creates != 0 {
		t.Fatalf("order created for unknown customer")
	}
}

func TestCreateAndConfirmReportsOrderOnConfirmFailure(t *testing.T) {
	om := newMemOrders()
	om.confirmErr = apperr.Unavailable("orders-api unavailable", nil)
	s := NewSaga(stubCustomers{}, om, DefaultTimeouts, zerolog.Nop())

	_, err := s.CreateAndConfirm(context.Background(), request())
	var sf *apperr.StepFailure
	if !errors.As(err, &sf) || sf.Step != StepConfirmOrder || sf.OrderID != 1 {
		t.Fatalf("unexpected error %v", err)
	}
	if om.status[1] != orders.StatusCreated {
		t.Fatalf("order must stay CREATED, got %s", om.status[1])
	}
	env := apperr.FailureEnvelope(err, "cid")
	if env.FailedStep != StepConfirmOrder || env.OrderID != 1 || env.Code != apperr.CodeDependencyUnavailable {
		t.Fatalf("unexpected envelope %+v", env)
	}

	// the same key finishes the job once orders-api recovers
	om.confirmErr = nil
	res, err := s.CreateAndConfirm(context.Background(), request())
	if err != nil || res.Order.ID != 1 || res.Order.Status != orders.StatusConfirmed {
		t.Fatalf("retry: %+v %v", res, err)
	}
}

func TestCreateAndConfirmIgnoresCallerCancellation(t *testing.T) {
	om := newMemOrders()
	s := NewSaga(stubCustomers{delay: 30 * time.Millisecond}, om, DefaultTimeouts, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.CreateAndConfirm(ctx, request()); err != nil {
		t.Fatalf("saga stopped on caller cancellation: %v", err)
	}
}

func TestRequestValidate(t *testing.T) {
	for _, r := range []Request{
		{CustomerID: 0, Items: request().Items, IdempotencyKey: "k"},
		{CustomerID: 1, IdempotencyKey: "k"},
		{CustomerID: 1, Items: request().Items, IdempotencyKey: " "},
	} {
		if err := r.Validate(); apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("expected validation error for %+v, got %v", r, err)
		}
	}
}
