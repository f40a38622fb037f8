package httpx

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/customers"
	"github.com/ariefcatur/go-order-saga/internal/pagination"
	"github.com/go-chi/chi/v5"
)

type CustomerStore interface {
	Create(ctx context.Context, in customers.CreateInput) (customers.Customer, error)
	Get(ctx context.Context, id int64) (customers.Customer, error)
	Search(ctx context.Context, q string, page pagination.Page) ([]customers.Customer, pagination.Info, error)
	Update(ctx context.Context, id int64, in customers.UpdateInput) (customers.Customer, error)
	Delete(ctx context.Context, id int64) error
}

type CustomersHandler struct {
	Store        CustomerStore
	ServiceToken string
}

func (h *CustomersHandler) Register(r chi.Router) {
	r.Route("/customers", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.search)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.With(h.requireServiceToken).Get("/internal/{id}", h.get)
	})
}

func (h *CustomersHandler) requireServiceToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || h.ServiceToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.ServiceToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, apperr.Failure(apperr.ErrUnauthorized, CorrelationID(r.Context())))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *CustomersHandler) create(w http.ResponseWriter, r *http.Request) {
	var in customers.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Store.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, "Customer created successfully", c, nil)
}

func (h *CustomersHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, "", c, nil)
}

func (h *CustomersHandler) search(w http.ResponseWriter, r *http.Request) {
	page, err := pagination.FromQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, info, err := h.Store.Search(r.Context(), r.URL.Query().Get("search"), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, "", out, info)
}

func (h *CustomersHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in customers.UpdateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Store.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, "Customer updated successfully", c, nil)
}

func (h *CustomersHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Store.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, "Customer deleted successfully", nil, nil)
}
