package orders

import "strconv"

const (
	TopicOrderCreated   = "order.created"
	TopicOrderConfirmed = "order.confirmed"
	TopicOrderCanceled  = "order.canceled"
)

var LifecycleTopics = []string{TopicOrderCreated, TopicOrderConfirmed, TopicOrderCanceled}

// PartitionKey keeps every event of one order on one partition, in order.
func PartitionKey(orderID int64) []byte { return []byte(strconv.FormatInt(orderID, 10)) }
