package orders

import (
	"context"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const reaperBatch = 100

// Reaper cancels orders left in CREATED longer than maxAge, which happens
// when the confirm step of create-and-confirm never arrives. Stock goes back
// through the same path as a client cancel.
type Reaper struct {
	svc      *Service
	interval time.Duration
	maxAge   time.Duration
	log      zerolog.Logger
}

func NewReaper(svc *Service, interval, maxAge time.Duration) *Reaper {
	return &Reaper{
		svc:      svc,
		interval: interval,
		maxAge:   maxAge,
		log:      svc.log.With().Str("component", "reaper").Logger(),
	}
}

// Run sweeps every interval until ctx is done. A zero interval disables it.
func (r *Reaper) Run(ctx context.Context) error {
	if r.interval <= 0 {
		r.log.Info().Msg("reaper disabled")
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n, err := r.Sweep(ctx); err != nil {
				r.log.Error().Err(err).Msg("sweep failed")
			} else if n > 0 {
				r.log.Info().Int("canceled", n).Msg("stale orders canceled")
			}
		}
	}
}

// Sweep cancels one batch of stale orders and returns how many it canceled.
// An order confirmed between listing and locking is skipped.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	ids, err := r.svc.store.ListStale(ctx, r.svc.clock.Now().Add(-r.maxAge), reaperBatch)
	if err != nil {
		return 0, err
	}
	canceled := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return canceled, ctx.Err()
		}
		_, skipped, err := r.svc.cancel(ctx, id, "reaper-"+uuid.NewString(), true)
		if err != nil {
			r.log.Warn().Err(err).Int64("order_id", id).Msg("cancel stale order")
			continue
		}
		if !skipped {
			canceled++
			metrics.ReaperCanceled.Inc()
		}
	}
	return canceled, nil
}
