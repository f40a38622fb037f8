package orders

import (
	"context"
	"encoding/json"
	"time"

	kafkax "github.com/ariefcatur/go-order-saga/internal/kafka"
	"github.com/ariefcatur/go-order-saga/internal/metrics"
	"github.com/ariefcatur/go-order-saga/internal/redisx"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// Claimer marks an event id as seen; false means another delivery got there
// first.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) bool
}

// Auditor consumes lifecycle events and writes one structured log line per
// distinct event. It never feeds back into the order flow.
type Auditor struct {
	name   string
	claims Claimer
	log    zerolog.Logger
}

func NewAuditor(name string, claims Claimer, log zerolog.Logger) *Auditor {
	return &Auditor{name: name, claims: claims, log: log.With().Str("component", "order-audit").Logger()}
}

// Handle is a kafka.Handler. Malformed messages are logged and committed
// since redelivery cannot fix them.
func (a *Auditor) Handle(ctx context.Context, m kafkago.Message) error {
	var ev Event
	if err := json.Unmarshal(m.Value, &ev); err != nil || ev.EventID == "" {
		a.log.Warn().Err(err).Str("topic", m.Topic).Int64("offset", m.Offset).Msg("malformed event skipped")
		metrics.EventsConsumed.WithLabelValues(kafkax.HeaderValue(m, "x-event-type"), "malformed").Inc()
		return nil
	}
	if !a.claims.Claim(ctx, redisx.DedupKey(a.name, ev.EventID), redisx.TTLDedup) {
		metrics.EventsConsumed.WithLabelValues(ev.EventType, "duplicate").Inc()
		return nil
	}

	entry := a.log.Info().
		Str("event_id", ev.EventID).
		Str("event_type", ev.EventType).
		Str("producer", ev.Producer).
		Str("correlation_id", ev.CorrelationID).
		Str("trace_id", ev.TraceID).
		Time("occurred_at", ev.OccurredAt)

	switch ev.EventType {
	case EventOrderCreated:
		p, err := kafkax.UnwrapPayload[OrderCreatedPayload](ev.Payload)
		if err != nil {
			a.log.Warn().Err(err).Str("event_id", ev.EventID).Msg("malformed payload skipped")
			metrics.EventsConsumed.WithLabelValues(ev.EventType, "malformed").Inc()
			return nil
		}
		entry = entry.Int64("order_id", p.OrderID).Int64("customer_id", p.CustomerID).
			Int64("total_cents", p.TotalCents).Int("items", len(p.Items))
	case EventOrderConfirmed, EventOrderCanceled:
		p, err := kafkax.UnwrapPayload[OrderStatusPayload](ev.Payload)
		if err != nil {
			a.log.Warn().Err(err).Str("event_id", ev.EventID).Msg("malformed payload skipped")
			metrics.EventsConsumed.WithLabelValues(ev.EventType, "malformed").Inc()
			return nil
		}
		entry = entry.Int64("order_id", p.OrderID).Str("status", string(p.Status))
	default:
		metrics.EventsConsumed.WithLabelValues(ev.EventType, "ignored").Inc()
		return nil
	}

	entry.Msg("order event")
	metrics.EventsConsumed.WithLabelValues(ev.EventType, "ok").Inc()
	return nil
}
