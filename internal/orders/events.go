package orders

import (
	"context"
	"encoding/json"
	"time"

	kafkax "github.com/ariefcatur/go-order-saga/internal/kafka"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderConfirmed = "OrderConfirmed"
	EventOrderCanceled  = "OrderCanceled"
)

// Event is the envelope of every lifecycle notification. Events are published
// after commit and are informational: nothing in the order flow consumes them.
type Event struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID    int64  `json:"order_id"`
	CustomerID int64  `json:"customer_id"`
	TotalCents int64  `json:"total_cents"`
	Items      []Item `json:"items"`
}

type OrderStatusPayload struct {
	OrderID int64  `json:"order_id"`
	Status  Status `json:"status"`
}

// Publisher is satisfied by *kafka.Producer and kafka.Noop.
type Publisher interface {
	Publish(ctx context.Context, m kafkax.Message)
}

func (s *Service) emit(ctx context.Context, topic, eventType string, orderID int64, correlationID string, payload any) {
	ev := Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.clock.Now(),
		Producer:      s.producer,
		CorrelationID: correlationID,
		Payload:       kafkax.MustMarshal(payload),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		ev.TraceID = sc.TraceID().String()
	}
	s.pub.Publish(ctx, kafkax.Message{
		Topic: topic,
		Key:   PartitionKey(orderID),
		Value: kafkax.MustMarshal(ev),
		Headers: map[string]string{
			"x-event-type":    eventType,
			"x-event-version": "1",
		},
	})
}
