package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/httpclient"
	"github.com/ariefcatur/go-order-saga/internal/orders"
)

const (
	HeaderIdempotencyKey = "X-Idempotency-Key"
	HeaderCorrelationID  = "X-Correlation-Id"
)

// OrdersClient drives orders-api over HTTP. Deadlines come from the caller.
type OrdersClient struct {
	http    *httpclient.Client
	baseURL string
}

func NewOrdersClient(baseURL string) *OrdersClient {
	return &OrdersClient{http: httpclient.New("orders-api"), baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *OrdersClient) Create(ctx context.Context, in orders.CreateInput) (orders.Placement, error) {
	var out orders.Placement
	err := c.call(ctx, http.MethodPost, c.baseURL+"/orders", in.IdempotencyKey, in.CorrelationID, in, http.StatusCreated, &out)
	return out, err
}

func (c *OrdersClient) Confirm(ctx context.Context, orderID int64, key, correlationID string) (orders.Order, error) {
	var out orders.Order
	body := map[string]string{"correlation_id": correlationID}
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("%s/orders/%d/confirm", c.baseURL, orderID), key, correlationID, body, http.StatusOK, &out)
	return out, err
}

func (c *OrdersClient) call(ctx context.Context, method, url, key, correlationID string, body any, want int, out any) error {
	h := http.Header{}
	if key != "" {
		h.Set(HeaderIdempotencyKey, key)
	}
	if correlationID != "" {
		h.Set(HeaderCorrelationID, correlationID)
	}
	resp, err := c.http.Do(ctx, httpclient.Request{Method: method, URL: url, Header: h, Body: body})
	if err != nil {
		return err
	}
	if resp.Status != want {
		if err := resp.Err("orders-api"); err != nil {
			return err
		}
		return apperr.Internal(fmt.Errorf("orders-api returned %d, want %d", resp.Status, want))
	}
	if err := json.Unmarshal(resp.Envelope.Data, out); err != nil {
		return apperr.Internal(fmt.Errorf("decode orders-api response: %w", err))
	}
	return nil
}
