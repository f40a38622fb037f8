package orders

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/customers"
	"github.com/ariefcatur/go-order-saga/internal/pagination"
)

type Order struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	Status     Status    `json:"status"`
	TotalCents int64     `json:"total_cents"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Items      []Item    `json:"items,omitempty"`
}

// Item is a line of an order with the price captured at order time.
type Item struct {
	ProductID      int64 `json:"product_id"`
	Qty            int64 `json:"qty"`
	UnitPriceCents int64 `json:"unit_price_cents"`
	SubtotalCents  int64 `json:"subtotal_cents"`
}

type ItemInput struct {
	ProductID int64 `json:"product_id"`
	Qty       int64 `json:"qty"`
}

type CreateInput struct {
	CustomerID    int64       `json:"customer_id"`
	Items         []ItemInput `json:"items"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	// IdempotencyKey is optional for creation; it arrives as a header.
	IdempotencyKey string `json:"-"`
}

func (in CreateInput) Validate() error {
	if in.CustomerID <= 0 {
		return apperr.Validation("customer_id must be a positive integer")
	}
	return ValidateItems(in.Items)
}

// Fingerprint identifies the cart a creation key was first used for. Line
// order counts since the stored response echoes it.
func (in CreateInput) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "customer=%d", in.CustomerID)
	for _, it := range in.Items {
		fmt.Fprintf(h, ";%d:%d", it.ProductID, it.Qty)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func ValidateItems(items []ItemInput) error {
	if len(items) == 0 {
		return apperr.Validation("items must be a non-empty array")
	}
	for i, it := range items {
		if it.ProductID <= 0 {
			return apperr.Validation(fmt.Sprintf("items[%d].product_id must be a positive integer", i))
		}
		if it.Qty <= 0 {
			return apperr.Validation(fmt.Sprintf("items[%d].qty must be a positive integer", i))
		}
	}
	return nil
}

// Placement is the body of a successful creation.
type Placement struct {
	Customer customers.Customer `json:"customer"`
	Order    Order              `json:"order"`
}

type StatusView struct {
	ID     int64  `json:"id"`
	Status Status `json:"status"`
}

// Receipt carries the exact response body of a state-changing call, so a
// replayed call can return the bytes it returned the first time.
type Receipt struct {
	OrderID  int64
	Body     []byte
	Replayed bool
}

type ListFilter struct {
	Status Status
	From   *time.Time
	To     *time.Time
	Page   pagination.Page
}

// ParseListFilter reads status, from, to, cursor and limit. Dates accept
// RFC 3339 or YYYY-MM-DD.
func ParseListFilter(q url.Values) (ListFilter, error) {
	page, err := pagination.FromQuery(q)
	if err != nil {
		return ListFilter{}, err
	}
	f := ListFilter{Page: page}
	if s := strings.ToUpper(strings.TrimSpace(q.Get("status"))); s != "" {
		f.Status = Status(s)
		if !f.Status.Valid() {
			return ListFilter{}, apperr.Validation("status must be one of CREATED, CONFIRMED, CANCELED")
		}
	}
	if f.From, err = parseDate(q.Get("from"), "from"); err != nil {
		return ListFilter{}, err
	}
	if f.To, err = parseDate(q.Get("to"), "to"); err != nil {
		return ListFilter{}, err
	}
	return f, nil
}

func parseDate(v, field string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, apperr.Validation(field + " must be a date (YYYY-MM-DD or RFC 3339)")
}
