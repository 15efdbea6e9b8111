package kafka

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/storefront-orders/internal/orders"
)

type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error
}

// Notifier publishes committed order changes as envelope v1 events. Delivery
// is best effort: a failed publish is logged and never reaches the caller.
type Notifier struct {
	Placed        Publisher // order.placed
	StatusChanged Publisher // order.status_changed
	ServiceName   string
	// TraceID extracts a request id from ctx; optional.
	TraceID func(ctx context.Context) string
}

var _ orders.Notifier = (*Notifier)(nil)

func (n *Notifier) OrderPlaced(ctx context.Context, o orders.Order) {
	n.publish(ctx, n.Placed, orders.EventOrderPlaced, o.ID, orders.NewOrderPlacedPayload(o))
}

func (n *Notifier) OrderStatusChanged(ctx context.Context, o orders.Order, previous orders.Status) {
	n.publish(ctx, n.StatusChanged, orders.EventOrderStatusChanged, o.ID, orders.OrderStatusChangedPayload{
		OrderID:        o.ID,
		BuyerID:        o.BuyerID,
		PreviousStatus: previous,
		Status:         o.Status,
	})
}

func (n *Notifier) publish(ctx context.Context, p Publisher, eventType, orderID string, payload any) {
	if p == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  orders.EnvelopeVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      n.ServiceName,
		CorrelationID: orderID,
		Payload:       MustMarshal(payload),
	}
	if n.TraceID != nil {
		ev.TraceID = n.TraceID(ctx)
	}

	err := p.Publish(ctx, orders.PartitionKey(orderID), MustMarshal(ev),
		kafka.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(orders.EnvelopeVersion))},
	)
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Str("event_type", eventType).Msg("kafka: publish event")
	}
}
