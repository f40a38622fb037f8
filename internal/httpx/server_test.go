package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/customers"
	"github.com/ariefcatur/go-order-saga/internal/orchestrator"
	"github.com/ariefcatur/go-order-saga/internal/orders"
	"github.com/ariefcatur/go-order-saga/internal/pagination"
	"github.com/rs/zerolog"
)

type stubOrders struct {
	lastCreate orders.CreateInput
	lastKey    string
	lastCID    string
}

func (s *stubOrders) Create(_ context.Context, in orders.CreateInput) (orders.Receipt, error) {
	s.lastCreate = in
	if err := in.Validate(); err != nil {
		return orders.Receipt{}, err
	}
	return orders.Receipt{OrderID: 1, Body: []byte(`{"success":true,"data":{"order":{"id":1}}}`), Replayed: in.IdempotencyKey == "seen"}, nil
}

func (s *stubOrders) Confirm(_ context.Context, id int64, key, cid string) (orders.Receipt, error) {
	s.lastKey, s.lastCID = key, cid
	if key == "" {
		return orders.Receipt{}, apperr.ErrIdempotencyKeyRequired
	}
	return orders.Receipt{OrderID: id, Body: []byte(`{"success":true}`)}, nil
}

func (s *stubOrders) Cancel(_ context.Context, id int64, _ string) (orders.Receipt, error) {
	return orders.Receipt{}, apperr.ErrCancellationWindowExpired
}

func (s *stubOrders) Get(_ context.Context, id int64) (orders.Order, error) {
	if id != 1 {
		return orders.Order{}, apperr.ErrOrderNotFound
	}
	return orders.Order{ID: 1, Status: orders.StatusCreated}, nil
}

func (s *stubOrders) List(_ context.Context, f orders.ListFilter) ([]orders.Order, pagination.Info, error) {
	next := int64(2)
	return []orders.Order{{ID: 1}, {ID: 2}}, pagination.Info{Limit: f.Page.Limit, NextCursor: &next, HasMore: true}, nil
}

type stubCustomerStore struct{}

func (stubCustomerStore) Create(_ context.Context, in customers.CreateInput) (customers.Customer, error) {
	return customers.Customer{}, customers.ErrDuplicateEmail
}

func (stubCustomerStore) Get(_ context.Context, id int64) (customers.Customer, error) {
	return customers.Customer{ID: id, Name: "Ann", Email: "ann@example.com"}, nil
}

func (stubCustomerStore) Search(context.Context, string, pagination.Page) ([]customers.Customer, pagination.Info, error) {
	return nil, pagination.Info{}, nil
}

func (stubCustomerStore) Update(_ context.Context, id int64, _ customers.UpdateInput) (customers.Customer, error) {
	return customers.Customer{ID: id}, nil
}

func (stubCustomerStore) Delete(context.Context, int64) error { return apperr.ErrCustomerNotFound }

type stubSaga struct{ err error }

func (s stubSaga) CreateAndConfirm(_ context.Context, req orchestrator.Request) (orchestrator.Result, error) {
	if s.err != nil {
		return orchestrator.Result{}, s.err
	}
	return orchestrator.Result{Order: orders.Order{ID: 5, Status: orders.StatusConfirmed}}, nil
}

func newTestRouter(so *stubOrders, saga stubSaga) http.Handler {
	r := NewRouter(zerolog.Nop(), "test", 5*time.Second)
	(&OrdersHandler{Orders: so}).Register(r)
	(&CustomersHandler{Store: stubCustomerStore{}, ServiceToken: "secret"}).Register(r)
	(&OrchestratorHandler{Saga: saga}).Register(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) (*httptest.ResponseRecorder, apperr.Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env apperr.Envelope
	if ct := rec.Header().Get("Content-Type"); strings.HasPrefix(ct, "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v: %s", method, path, err, rec.Body.String())
		}
	}
	return rec, env
}

func TestHealthz(t *testing.T) {
	rec, _ := do(t, newTestRouter(&stubOrders{}, stubSaga{}), http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz %d %q", rec.Code, rec.Body.String())
	}
}

func TestCreateOrderPassesKeyAndReturnsStoredBody(t *testing.T) {
	so := &stubOrders{}
	h := newTestRouter(so, stubSaga{})

	body := `{"customer_id":7,"items":[{"product_id":1,"qty":2}],"correlation_id":"cid-9"}`
	rec, _ := do(t, h, http.MethodPost, "/orders", body, map[string]string{HeaderIdempotencyKey: "seen"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if rec.Body.String() != `{"success":true,"data":{"order":{"id":1}}}` {
		t.Fatalf("stored body altered: %s", rec.Body.String())
	}
	if rec.Header().Get(HeaderReplayed) != "true" || rec.Header().Get(HeaderCorrelationID) != "cid-9" {
		t.Fatalf("unexpected headers %v", rec.Header())
	}
	if so.lastCreate.IdempotencyKey != "seen" || so.lastCreate.CorrelationID != "cid-9" {
		t.Fatalf("input not forwarded: %+v", so.lastCreate)
	}
}

func TestCreateOrderValidationError(t *testing.T) {
	h := newTestRouter(&stubOrders{}, stubSaga{})

	rec, env := do(t, h, http.MethodPost, "/orders", `{"customer_id":7,"items":[]}`, map[string]string{HeaderCorrelationID: "cid-1"})
	if rec.Code != http.StatusBadRequest || env.Success || env.Code != apperr.CodeValidation || env.CorrelationID != "cid-1" {
		t.Fatalf("unexpected response %d %+v", rec.Code, env)
	}

	rec, env = do(t, h, http.MethodPost, "/orders", `{`, nil)
	if rec.Code != http.StatusBadRequest || env.Code != apperr.CodeValidation {
		t.Fatalf("malformed json: %d %+v", rec.Code, env)
	}
}

func TestConfirmRequiresKeyHeader(t *testing.T) {
	so := &stubOrders{}
	h := newTestRouter(so, stubSaga{})

	rec, env := do(t, h, http.MethodPost, "/orders/1/confirm", "", nil)
	if rec.Code != http.StatusBadRequest || env.Code != apperr.CodeIdempotencyKeyRequired {
		t.Fatalf("unexpected response %d %+v", rec.Code, env)
	}

	rec, _ = do(t, h, http.MethodPost, "/orders/1/confirm", `{"correlation_id":"c2"}`, map[string]string{HeaderIdempotencyKey: "k"})
	if rec.Code != http.StatusOK || so.lastKey != "k" || so.lastCID != "c2" {
		t.Fatalf("unexpected confirm %d key=%q cid=%q", rec.Code, so.lastKey, so.lastCID)
	}
}

func TestOrderErrorsMapToStatus(t *testing.T) {
	h := newTestRouter(&stubOrders{}, stubSaga{})

	rec, env := do(t, h, http.MethodPost, "/orders/1/cancel", "", nil)
	if rec.Code != http.StatusConflict || env.Code != apperr.CodeCancellationWindowExpired {
		t.Fatalf("cancel: %d %+v", rec.Code, env)
	}
	rec, env = do(t, h, http.MethodGet, "/orders/2", "", nil)
	if rec.Code != http.StatusNotFound || env.Code != apperr.CodeOrderNotFound {
		t.Fatalf("get: %d %+v", rec.Code, env)
	}
	rec, _ = do(t, h, http.MethodGet, "/orders/abc", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", rec.Code)
	}
}

func TestListOrdersCarriesPagination(t *testing.T) {
	h := newTestRouter(&stubOrders{}, stubSaga{})

	rec, env := do(t, h, http.MethodGet, "/orders?limit=2", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	page, ok := env.Pagination.(map[string]any)
	if !ok || page["hasMore"] != true || page["nextCursor"] != float64(2) || page["limit"] != float64(2) {
		t.Fatalf("unexpected pagination %#v", env.Pagination)
	}

	rec, _ = do(t, h, http.MethodGet, "/orders?status=SHIPPED", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status filter: %d", rec.Code)
	}
}

func TestInternalCustomerLookupNeedsServiceToken(t *testing.T) {
	h := newTestRouter(&stubOrders{}, stubSaga{})

	rec, env := do(t, h, http.MethodGet, "/customers/internal/3", "", nil)
	if rec.Code != http.StatusUnauthorized || env.Code != apperr.CodeUnauthorized {
		t.Fatalf("no token: %d %+v", rec.Code, env)
	}
	rec, _ = do(t, h, http.MethodGet, "/customers/internal/3", "", map[string]string{"Authorization": "Bearer wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: %d", rec.Code)
	}
	rec, env = do(t, h, http.MethodGet, "/customers/internal/3", "", map[string]string{"Authorization": "Bearer secret"})
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("valid token: %d %+v", rec.Code, env)
	}
	var c customers.Customer
	if err := json.Unmarshal(env.Data, &c); err != nil || c.ID != 3 {
		t.Fatalf("unexpected customer %s", env.Data)
	}
}

func TestCustomerErrors(t *testing.T) {
	h := newTestRouter(&stubOrders{}, stubSaga{})

	rec, env := do(t, h, http.MethodPost, "/customers", `{"name":"A","email":"a@example.com"}`, nil)
	if rec.Code != http.StatusConflict || env.Code != apperr.CodeDuplicate {
		t.Fatalf("duplicate: %d %+v", rec.Code, env)
	}
	rec, _ = do(t, h, http.MethodDelete, "/customers/9", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete missing: %d", rec.Code)
	}
}

func TestOrchestratorReportsFailedStep(t *testing.T) {
	err := &apperr.StepFailure{Step: orchestrator.StepConfirmOrder, OrderID: 12, Err: apperr.Unavailable("orders-api unavailable", nil)}
	h := newTestRouter(&stubOrders{}, stubSaga{err: err})

	rec, env := do(t, h, http.MethodPost, "/orchestrator/orders", `{"customer_id":1,"items":[{"product_id":10,"qty":2}],"idempotency_key":"k1"}`, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if env.FailedStep != orchestrator.StepConfirmOrder || env.OrderID != 12 || env.Code != apperr.CodeDependencyUnavailable {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if !strings.HasPrefix(env.CorrelationID, "orchestrator-") {
		t.Fatalf("expected generated correlation id, got %q", env.CorrelationID)
	}
}

func TestOrchestratorSuccess(t *testing.T) {
	h := newTestRouter(&stubOrders{}, stubSaga{})

	rec, env := do(t, h, http.MethodPost, "/orchestrator/orders",
		`{"customer_id":1,"items":[{"product_id":10,"qty":2}],"idempotency_key":"k1","correlation_id":"abc"}`, nil)
	if rec.Code != http.StatusCreated || !env.Success || env.CorrelationID != "abc" {
		t.Fatalf("unexpected response %d %+v", rec.Code, env)
	}
	var res orchestrator.Result
	if err := json.Unmarshal(env.Data, &res); err != nil || res.Order.Status != orders.StatusConfirmed {
		t.Fatalf("unexpected data %s", env.Data)
	}
}
