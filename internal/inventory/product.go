package inventory

import (
	"strings"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
)

type Product struct {
	ID         int64     `json:"id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Stock      int64     `json:"stock"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type CreateInput struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Stock      int64  `json:"stock"`
}

func (in *CreateInput) Validate() error {
	in.SKU = strings.TrimSpace(in.SKU)
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.SKU == "":
		return apperr.Validation("sku is required")
	case in.Name == "":
		return apperr.Validation("name is required")
	case in.PriceCents < 0:
		return apperr.Validation("price_cents must be a non-negative integer")
	case in.Stock < 0:
		return apperr.Validation("stock must be a non-negative integer")
	}
	return nil
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	PriceCents *int64 `json:"price_cents"`
	Stock      *int64 `json:"stock"`
}

func (in UpdateInput) Validate() error {
	if in.PriceCents == nil && in.Stock == nil {
		return apperr.Validation("nothing to update")
	}
	if in.PriceCents != nil && *in.PriceCents < 0 {
		return apperr.Validation("price_cents must be a non-negative integer")
	}
	if in.Stock != nil && *in.Stock < 0 {
		return apperr.Validation("stock must be a non-negative integer")
	}
	return nil
}

var ErrDuplicateSKU = apperr.Conflict(apperr.CodeDuplicate, "SKU already exists")
