package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-order-saga/internal/orders"
	"github.com/ariefcatur/go-order-saga/internal/pagination"
	"github.com/go-chi/chi/v5"
)

const (
	HeaderIdempotencyKey = "X-Idempotency-Key"
	HeaderReplayed       = "X-Idempotent-Replay"
)

type OrderService interface {
	Create(ctx context.Context, in orders.CreateInput) (orders.Receipt, error)
	Confirm(ctx context.Context, orderID int64, key, correlationID string) (orders.Receipt, error)
	Cancel(ctx context.Context, orderID int64, correlationID string) (orders.Receipt, error)
	Get(ctx context.Context, orderID int64) (orders.Order, error)
	List(ctx context.Context, f orders.ListFilter) ([]orders.Order, pagination.Info, error)
}

type OrdersHandler struct {
	Orders OrderService
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Post("/{id}/confirm", h.confirm)
		r.Post("/{id}/cancel", h.cancel)
	})
}

type transitionReq struct {
	CorrelationID string `json:"correlation_id"`
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	var in orders.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	r = overrideCorrelation(w, r, in.CorrelationID)
	in.CorrelationID = CorrelationID(r.Context())
	in.IdempotencyKey = strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))

	rc, err := h.Orders.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeReceipt(w, http.StatusCreated, rc)
}

func (h *OrdersHandler) confirm(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req transitionReq
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	r = overrideCorrelation(w, r, req.CorrelationID)

	rc, err := h.Orders.Confirm(r.Context(), id, r.Header.Get(HeaderIdempotencyKey), CorrelationID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeReceipt(w, http.StatusOK, rc)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req transitionReq
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	r = overrideCorrelation(w, r, req.CorrelationID)

	rc, err := h.Orders.Cancel(r.Context(), id, CorrelationID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeReceipt(w, http.StatusOK, rc)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, "", o, nil)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	f, err := orders.ParseListFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, info, err := h.Orders.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, "", out, info)
}

// writeReceipt returns the stored body as is, so a replay is byte for byte
// the first response.
func writeReceipt(w http.ResponseWriter, code int, rc orders.Receipt) {
	if rc.Replayed {
		w.Header().Set(HeaderReplayed, "true")
	}
	writeRaw(w, code, rc.Body)
}
