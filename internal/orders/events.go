package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"

	EnvelopeVersion = 1
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderPlacedPayload struct {
	OrderID    string     `json:"order_id"`
	BuyerID    string     `json:"buyer_id"`
	LineItems  []LineItem `json:"line_items"`
	TotalPrice float64    `json:"total_price"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}

type OrderStatusChangedPayload struct {
	OrderID        string `json:"order_id"`
	BuyerID        string `json:"buyer_id"`
	PreviousStatus Status `json:"previous_status"`
	Status         Status `json:"status"`
}

func NewOrderPlacedPayload(o Order) OrderPlacedPayload {
	return OrderPlacedPayload{
		OrderID:    o.ID,
		BuyerID:    o.BuyerID,
		LineItems:  o.LineItems,
		TotalPrice: o.TotalPrice,
		Status:     o.Status,
		CreatedAt:  o.CreatedAt,
	}
}
