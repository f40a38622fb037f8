package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-order-saga/internal/inventory"
	"github.com/ariefcatur/go-order-saga/internal/pagination"
	"github.com/go-chi/chi/v5"
)

type ProductCatalog interface {
	Create(ctx context.Context, in inventory.CreateInput) (inventory.Product, error)
	Get(ctx context.Context, id int64) (inventory.Product, error)
	Search(ctx context.Context, q string, page pagination.Page) ([]inventory.Product, pagination.Info, error)
	Update(ctx context.Context, id int64, in inventory.UpdateInput) (inventory.Product, error)
}

type ProductsHandler struct {
	Catalog ProductCatalog
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.search)
		r.Get("/{id}", h.get)
		r.Patch("/{id}", h.update)
	})
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in inventory.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Catalog.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, "Product created successfully", p, nil)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, "", p, nil)
}

func (h *ProductsHandler) search(w http.ResponseWriter, r *http.Request) {
	page, err := pagination.FromQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, info, err := h.Catalog.Search(r.Context(), r.URL.Query().Get("search"), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, "", out, info)
}

func (h *ProductsHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in inventory.UpdateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Catalog.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, "Product updated successfully", p, nil)
}
