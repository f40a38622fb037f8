package idempotency

import (
	"context"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
)

// Store is the part of Ledger that Run needs.
type Store interface {
	Acquire(ctx context.Context, key string) (*Record, error)
	Begin(ctx context.Context, c Claim) error
	Complete(ctx context.Context, key string, targetID int64, body []byte) error
}

// Claim describes the request a key is used for. TargetID of 0 means the
// target is not known before the op runs (creation). Fingerprint identifies
// the request payload; a key reused with another fingerprint is a mismatch.
type Claim struct {
	Key         string
	TargetType  string
	TargetID    int64
	Fingerprint string
}

// Op is the work guarded by a key. It returns the id of the affected record
// and the exact response body to store.
type Op func(ctx context.Context) (targetID int64, body []byte, err error)

type Outcome struct {
	TargetID int64
	Body     []byte
	Replayed bool
}

// Run executes op at most once per key. It must be called inside a
// transaction: the IN_PROGRESS marker, op's writes and the COMPLETED record
// commit or roll back together, so a failed op leaves the key unused.
func Run(ctx context.Context, store Store, c Claim, op Op) (Outcome, error) {
	rec, err := store.Acquire(ctx, c.Key)
	if err != nil {
		return Outcome{}, err
	}
	if rec != nil {
		return Replay(rec, c)
	}

	if err := store.Begin(ctx, c); err != nil {
		return Outcome{}, err
	}
	id, body, err := op(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if err := store.Complete(ctx, c.Key, id, body); err != nil {
		return Outcome{}, err
	}
	return Outcome{TargetID: id, Body: body}, nil
}

// Replay answers c from an existing record: the stored body when rec matches
// c and is completed, an error otherwise.
func Replay(rec *Record, c Claim) (Outcome, error) {
	if rec.TargetType != c.TargetType ||
		(c.TargetID != 0 && rec.TargetID != c.TargetID) ||
		rec.Fingerprint != c.Fingerprint {
		return Outcome{}, apperr.ErrIdempotencyKeyMismatch
	}
	if rec.Status == StatusInProgress {
		return Outcome{}, apperr.ErrRequestInProgress
	}
	return Outcome{TargetID: rec.TargetID, Body: rec.ResponseBody, Replayed: true}, nil
}
