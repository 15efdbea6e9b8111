package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/storefront-orders/internal/orders"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	args := m.Called(key, value, headers)
	return args.Error(0)
}

func sampleOrder() orders.Order {
	return orders.Order{
		ID:         "order-1",
		BuyerID:    "buyer-1",
		LineItems:  []orders.LineItem{{ProductID: "p-1", Quantity: 2}},
		TotalPrice: 40,
		Status:     orders.StatusPending,
		CreatedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestNotifier_OrderPlaced(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", []byte("order-1"), mock.Anything, mock.Anything).Return(nil).Once()

	n := &Notifier{
		Placed:      pub,
		ServiceName: "order-api",
		TraceID:     func(context.Context) string { return "req-7" },
	}
	n.OrderPlaced(context.Background(), sampleOrder())
	pub.AssertExpectations(t)

	call := pub.Calls[0]
	env, err := DecodeEnvelope(call.Arguments.Get(1).([]byte))
	require.NoError(t, err)
	assert.Equal(t, orders.EventOrderPlaced, env.EventType)
	assert.Equal(t, "order-api", env.Producer)
	assert.Equal(t, "req-7", env.TraceID)
	assert.Equal(t, "order-1", env.CorrelationID)
	assert.NotEmpty(t, env.EventID)

	payload, err := UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, 40.0, payload.TotalPrice)
	assert.Equal(t, []orders.LineItem{{ProductID: "p-1", Quantity: 2}}, payload.LineItems)

	headers := call.Arguments.Get(2).([]kafka.Header)
	require.Len(t, headers, 2)
	assert.Equal(t, "x-event-type", headers[0].Key)
	assert.Equal(t, orders.EventOrderPlaced, string(headers[0].Value))
}

func TestNotifier_OrderStatusChanged(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", []byte("order-1"), mock.Anything, mock.Anything).Return(nil).Once()

	o := sampleOrder()
	o.Status = orders.StatusShipped
	n := &Notifier{StatusChanged: pub, ServiceName: "order-api"}
	n.OrderStatusChanged(context.Background(), o, orders.StatusPending)
	pub.AssertExpectations(t)

	env, err := DecodeEnvelope(pub.Calls[0].Arguments.Get(1).([]byte))
	require.NoError(t, err)
	payload, err := UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, payload.PreviousStatus)
	assert.Equal(t, orders.StatusShipped, payload.Status)
}

func TestNotifier_PublishFailureIsSwallowed(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("inbox full"))

	n := &Notifier{Placed: pub}
	assert.NotPanics(t, func() { n.OrderPlaced(context.Background(), sampleOrder()) })
	// no publisher configured for this event: nothing happens
	assert.NotPanics(t, func() { n.OrderStatusChanged(context.Background(), sampleOrder(), orders.StatusPending) })
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestDecodeEnvelope_RejectsUnknownVersion(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"event_id":"e","event_type":"OrderPlaced","event_version":2,"payload":{}}`))
	assert.Error(t, err)

	_, err = DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
}
