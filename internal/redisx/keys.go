package redisx

import (
	"fmt"
	"time"
)

const (
	// Completed idempotent response: idem:{target_type}:{scope}:{key} -> stored body
	keyIdemReplay = "idem:%s:%s:%s"

	// Cached order read model: order:{order_id} -> order JSON with items
	keyOrder = "order:%d"

	// Consumer dedup marker: dedup:{consumer}:{event_id}
	keyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLOrderCache  = 5 * time.Minute
	TTLDedup       = 24 * time.Hour
)

func IdemReplayKey(targetType, scope, key string) string {
	return fmt.Sprintf(keyIdemReplay, targetType, scope, key)
}

func OrderKey(orderID int64) string {
	return fmt.Sprintf(keyOrder, orderID)
}

func DedupKey(consumer, eventID string) string {
	return fmt.Sprintf(keyDedup, consumer, eventID)
}
