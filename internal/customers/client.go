package customers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/httpclient"
)

var errServiceAuth = errors.New("customer directory rejected service credentials")

// Client looks customers up through the directory's internal endpoint.
type Client struct {
	http    *httpclient.Client
	baseURL string
	token   string
	timeout time.Duration
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		http:    httpclient.New("customers-api"),
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
	}
}

// Lookup returns ErrCustomerNotFound for unknown or deleted customers and
// DependencyUnavailable when the directory cannot answer in time.
func (c *Client) Lookup(ctx context.Context, id int64) (Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.http.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/customers/internal/%d", c.baseURL, id),
		Header: http.Header{"Authorization": []string{"Bearer " + c.token}},
	})
	if err != nil {
		return Customer{}, err
	}

	switch {
	case resp.Status == http.StatusOK:
		var cust Customer
		if err := json.Unmarshal(resp.Envelope.Data, &cust); err != nil {
			return Customer{}, apperr.Internal(fmt.Errorf("decode customer: %w", err))
		}
		return cust, nil
	case resp.Status == http.StatusNotFound:
		return Customer{}, apperr.ErrCustomerNotFound
	case resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden:
		return Customer{}, apperr.Internal(errServiceAuth).WithMessage("Service authentication failed")
	case resp.Status >= http.StatusInternalServerError:
		return Customer{}, apperr.Unavailable("Customer service unavailable", resp.Err("customers-api"))
	default:
		return Customer{}, resp.Err("customers-api")
	}
}
