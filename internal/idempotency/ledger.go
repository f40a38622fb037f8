// Package idempotency records the outcome of state-changing calls keyed by a
// client token so a retried call replays the first response instead of
// running again.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

type Record struct {
	Key          string
	TargetType   string
	TargetID     int64
	Fingerprint  string
	Status       Status
	ResponseBody []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var errNoTx = errors.New("idempotency: ledger used outside transaction")

type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Acquire claims key for the current transaction and returns its record, or
// nil when the key is unused. A key held by another open transaction fails
// immediately with ErrRequestInProgress instead of waiting on its row lock.
func (l *Ledger) Acquire(ctx context.Context, key string) (*Record, error) {
	tx := postgres.TxFromContext(ctx)
	if tx == nil {
		return nil, errNoTx
	}

	var locked bool
	if err := tx.QueryRow(ctx,
		`SELECT pg_try_advisory_xact_lock(hashtextextended($1, 0))`, key,
	).Scan(&locked); err != nil {
		return nil, fmt.Errorf("lock idempotency key: %w", err)
	}
	if !locked {
		return nil, apperr.ErrRequestInProgress
	}

	return scanRecord(tx.QueryRow(ctx, recordQuery+` FOR UPDATE`, key))
}

// Peek reads the committed record for key without locking. It lets a caller
// answer a completed request before doing work that must precede the
// transaction. A nil record means the key is unused or still in flight.
func (l *Ledger) Peek(ctx context.Context, key string) (*Record, error) {
	rec, err := scanRecord(postgres.Q(ctx, l.pool).QueryRow(ctx, recordQuery, key))
	if err != nil || rec == nil || rec.Status != StatusCompleted {
		return nil, err
	}
	return rec, nil
}

const recordQuery = `
SELECT key, target_type, target_id, request_hash, status, response_body, created_at, updated_at
FROM idempotency_keys
WHERE key = $1`

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var status string
	err := row.Scan(
		&rec.Key, &rec.TargetType, &rec.TargetID, &rec.Fingerprint, &status, &rec.ResponseBody, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read idempotency key: %w", err)
	}
	rec.Status = Status(status)
	return &rec, nil
}

func (l *Ledger) Begin(ctx context.Context, c Claim) error {
	tx := postgres.TxFromContext(ctx)
	if tx == nil {
		return errNoTx
	}
	_, err := tx.Exec(ctx, `
INSERT INTO idempotency_keys (key, target_type, target_id, request_hash, status)
VALUES ($1, $2, $3, $4, $5)`, c.Key, c.TargetType, c.TargetID, c.Fingerprint, string(StatusInProgress))
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperr.ErrRequestInProgress
		}
		return fmt.Errorf("insert idempotency key: %w", err)
	}
	return nil
}

func (l *Ledger) Complete(ctx context.Context, key string, targetID int64, body []byte) error {
	tx := postgres.TxFromContext(ctx)
	if tx == nil {
		return errNoTx
	}
	tag, err := tx.Exec(ctx, `
UPDATE idempotency_keys
SET status = $2, target_id = $3, response_body = $4, updated_at = NOW()
WHERE key = $1 AND status = $5`,
		key, string(StatusCompleted), targetID, body, string(StatusInProgress))
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("complete idempotency key %q: no in-progress record", key)
	}
	return nil
}
