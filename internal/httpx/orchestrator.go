package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-order-saga/internal/orchestrator"
	"github.com/go-chi/chi/v5"
)

type Saga interface {
	CreateAndConfirm(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

type OrchestratorHandler struct {
	Saga Saga
}

func (h *OrchestratorHandler) Register(r chi.Router) {
	r.Post("/orchestrator/orders", h.createAndConfirm)
}

func (h *OrchestratorHandler) createAndConfirm(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.CorrelationID == "" && r.Header.Get(HeaderCorrelationID) == "" {
		req.CorrelationID = orchestrator.NewCorrelationID()
	}
	r = overrideCorrelation(w, r, req.CorrelationID)
	req.CorrelationID = CorrelationID(r.Context())

	res, err := h.Saga.CreateAndConfirm(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, "Order created and confirmed successfully", res, nil)
}
