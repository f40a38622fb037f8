package orders

import (
	"math"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
)

// LineTotal is unit * qty in cents, failing instead of wrapping on overflow.
func LineTotal(unitCents, qty int64) (int64, error) {
	if unitCents < 0 || qty < 0 {
		return 0, apperr.ErrAmountOverflow
	}
	if qty != 0 && unitCents > math.MaxInt64/qty {
		return 0, apperr.ErrAmountOverflow
	}
	return unitCents * qty, nil
}

func AddCents(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, apperr.ErrAmountOverflow
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, apperr.ErrAmountOverflow
	}
	return a + b, nil
}
