package metrics

import (
	"strings"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrderOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orders",
		Name:      "operations_total",
		Help:      "Order service operations by operation and outcome.",
	}, []string{"op", "outcome"})

	IdempotentReplays = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orders",
		Name:      "idempotent_replays_total",
		Help:      "Responses served from the idempotency ledger or its cache.",
	}, []string{"target_type", "source"})

	ReaperCanceled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orders",
		Name:      "reaper_canceled_total",
		Help:      "Stale CREATED orders canceled by the reaper.",
	})

	SagaSteps = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Name:      "step_duration_seconds",
		Help:      "Duration of each create-and-confirm step.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"step", "outcome"})

	DependencyCalls = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "http_client",
		Name:      "request_duration_seconds",
		Help:      "Outbound calls to other services.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"target", "status"})

	HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "http_server",
		Name:      "request_duration_seconds",
		Help:      "Inbound HTTP requests by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "order_events",
		Name:      "consumed_total",
		Help:      "Order lifecycle events read from Kafka.",
	}, []string{"event_type", "outcome"})
)

// Outcome labels err: "ok" or the lower-cased error kind.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(apperr.KindOf(err)))
}
