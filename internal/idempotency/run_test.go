package idempotency

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
)

type fakeStore struct {
	records map[string]*Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*Record{}}
}

func (f *fakeStore) Acquire(_ context.Context, key string) (*Record, error) {
	rec, ok := f.records[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) Begin(_ context.Context, c Claim) error {
	if _, ok := f.records[c.Key]; ok {
		return apperr.ErrRequestInProgress
	}
	f.records[c.Key] = &Record{Key: c.Key, TargetType: c.TargetType, TargetID: c.TargetID, Fingerprint: c.Fingerprint, Status: StatusInProgress}
	return nil
}

func (f *fakeStore) Complete(_ context.Context, key string, targetID int64, body []byte) error {
	rec := f.records[key]
	rec.Status = StatusCompleted
	rec.TargetID = targetID
	rec.ResponseBody = body
	return nil
}

func TestRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("first call runs op and stores body", func(t *testing.T) {
		store := newFakeStore()
		calls := 0
		out, err := Run(ctx, store, Claim{Key: "k1", TargetType: "order_confirm", TargetID: 7}, func(context.Context) (int64, []byte, error) {
			calls++
			return 7, []byte(`{"ok":true}`), nil
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.Replayed || calls != 1 {
			t.Fatalf("expected fresh run, got replayed=%v calls=%d", out.Replayed, calls)
		}
		if store.records["k1"].Status != StatusCompleted {
			t.Fatalf("expected completed record")
		}
	})

	t.Run("completed key replays without running op", func(t *testing.T) {
		store := newFakeStore()
		store.records["k1"] = &Record{Key: "k1", TargetType: "order_confirm", TargetID: 7, Status: StatusCompleted, ResponseBody: []byte("stored")}
		out, err := Run(ctx, store, Claim{Key: "k1", TargetType: "order_confirm", TargetID: 7}, func(context.Context) (int64, []byte, error) {
			t.Fatalf("op must not run on replay")
			return 0, nil, nil
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !out.Replayed || string(out.Body) != "stored" {
			t.Fatalf("expected stored body replayed, got %+v", out)
		}
	})

	t.Run("in-progress key is rejected", func(t *testing.T) {
		store := newFakeStore()
		store.records["k1"] = &Record{Key: "k1", TargetType: "order_confirm", TargetID: 7, Status: StatusInProgress}
		_, err := Run(ctx, store, Claim{Key: "k1", TargetType: "order_confirm", TargetID: 7}, nil)
		if !errors.Is(err, apperr.ErrRequestInProgress) {
			t.Fatalf("expected request in progress, got %v", err)
		}
	})

	t.Run("key bound to another target is a mismatch", func(t *testing.T) {
		store := newFakeStore()
		store.records["k1"] = &Record{Key: "k1", TargetType: "order_confirm", TargetID: 7, Status: StatusCompleted}
		_, err := Run(ctx, store, Claim{Key: "k1", TargetType: "order_confirm", TargetID: 8}, nil)
		if !errors.Is(err, apperr.ErrIdempotencyKeyMismatch) {
			t.Fatalf("expected mismatch, got %v", err)
		}
		_, err = Run(ctx, store, Claim{Key: "k1", TargetType: "order_create", TargetID: 0}, nil)
		if !errors.Is(err, apperr.ErrIdempotencyKeyMismatch) {
			t.Fatalf("expected mismatch across target types, got %v", err)
		}
	})

	t.Run("key reused with another payload is a mismatch", func(t *testing.T) {
		store := newFakeStore()
		store.records["k1"] = &Record{Key: "k1", TargetType: "order_create", TargetID: 7, Fingerprint: "cart-a", Status: StatusCompleted}
		_, err := Run(ctx, store, Claim{Key: "k1", TargetType: "order_create", Fingerprint: "cart-b"}, nil)
		if !errors.Is(err, apperr.ErrIdempotencyKeyMismatch) {
			t.Fatalf("expected mismatch, got %v", err)
		}
		out, err := Run(ctx, store, Claim{Key: "k1", TargetType: "order_create", Fingerprint: "cart-a"}, nil)
		if err != nil || !out.Replayed || out.TargetID != 7 {
			t.Fatalf("expected replay for same payload, got %+v, %v", out, err)
		}
	})

	t.Run("op error is returned untouched", func(t *testing.T) {
		store := newFakeStore()
		_, err := Run(ctx, store, Claim{Key: "k2", TargetType: "order_confirm", TargetID: 9}, func(context.Context) (int64, []byte, error) {
			return 0, nil, apperr.ErrOrderNotFound
		})
		if !errors.Is(err, apperr.ErrOrderNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}
