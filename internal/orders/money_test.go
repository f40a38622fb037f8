package orders

import (
	"errors"
	"math"
	"testing"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
)

func TestLineTotal(t *testing.T) {
	t.Parallel()

	if got, err := LineTotal(1999, 3); err != nil || got != 5997 {
		t.Fatalf("got %d %v", got, err)
	}
	if _, err := LineTotal(math.MaxInt64/2+1, 2); !errors.Is(err, apperr.ErrAmountOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := LineTotal(-1, 2); !errors.Is(err, apperr.ErrAmountOverflow) {
		t.Fatalf("expected rejection of negative price, got %v", err)
	}
}

func TestAddCents(t *testing.T) {
	t.Parallel()

	if got, err := AddCents(40, 2); err != nil || got != 42 {
		t.Fatalf("got %d %v", got, err)
	}
	if _, err := AddCents(math.MaxInt64, 1); !errors.Is(err, apperr.ErrAmountOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	allowed := [][2]Status{
		{StatusCreated, StatusConfirmed},
		{StatusCreated, StatusCanceled},
		{StatusConfirmed, StatusCanceled},
	}
	for _, tr := range allowed {
		if !CanTransition(tr[0], tr[1]) {
			t.Fatalf("%s -> %s should be allowed", tr[0], tr[1])
		}
	}
	denied := [][2]Status{
		{StatusConfirmed, StatusCreated},
		{StatusCanceled, StatusConfirmed},
		{StatusCanceled, StatusCreated},
	}
	for _, tr := range denied {
		if CanTransition(tr[0], tr[1]) {
			t.Fatalf("%s -> %s should be rejected", tr[0], tr[1])
		}
	}
	if Status("SHIPPED").Valid() {
		t.Fatalf("unknown status reported valid")
	}
}
