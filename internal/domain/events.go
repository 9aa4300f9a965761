package domain

import "time"

const (
	EventOrderPlaced    = "order.placed"
	EventOrderCancelled = "order.cancelled"
	EventOrderSettled   = "order.settled"
	EventOrderFailed    = "order.failed"
	EventOrderExpired   = "order.expired"
	EventOrderFlagged   = "order.flagged"
)

// EventTypeForStatus maps a terminal status to the event announcing it.
func EventTypeForStatus(s OrderStatus) string {
	switch s {
	case OrderStatusSettled:
		return EventOrderSettled
	case OrderStatusFailed:
		return EventOrderFailed
	case OrderStatusExpired:
		return EventOrderExpired
	default:
		return ""
	}
}

// OrderEvent is the payload written to the outbox and published to Kafka.
type OrderEvent struct {
	OrderID    string      `json:"order_id"`
	Identity   string      `json:"identity"`
	Status     OrderStatus `json:"status"`
	Total      int64       `json:"total"`
	Currency   string      `json:"currency"`
	Lines      []OrderLine `json:"lines,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func NewOrderEvent(o *Order, reason string) OrderEvent {
	return OrderEvent{
		OrderID:    o.ID,
		Identity:   o.Identity.Key(),
		Status:     o.Status,
		Total:      o.Total,
		Currency:   o.Currency,
		Lines:      o.Lines,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}
