package stats

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkax "github.com/ariefcatur/storefront-orders/internal/kafka"
	"github.com/ariefcatur/storefront-orders/internal/memstore"
	"github.com/ariefcatur/storefront-orders/internal/orders"
	"github.com/ariefcatur/storefront-orders/internal/redisx"
)

type fixedCounter int64

func (f fixedCounter) CountProducts(context.Context) (int64, error) { return int64(f), nil }

func placedMessage(eventID, orderID string, total float64, at time.Time) kafkago.Message {
	env := orders.Envelope{
		EventID:      eventID,
		EventType:    orders.EventOrderPlaced,
		EventVersion: orders.EnvelopeVersion,
		OccurredAt:   at,
		Producer:     "order-api",
		Payload: kafkax.MustMarshal(orders.OrderPlacedPayload{
			OrderID:    orderID,
			BuyerID:    "buyer-1",
			LineItems:  []orders.LineItem{{ProductID: "p-1", Quantity: 1}},
			TotalPrice: total,
			Status:     orders.StatusPending,
			CreatedAt:  at,
		}),
	}
	return kafkago.Message{Topic: orders.TopicOrderPlaced, Value: kafkax.MustMarshal(env)}
}

func setup(t *testing.T) (*Projector, *Reader) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redisx.New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })
	return &Projector{Redis: rdb, ServiceName: "stats"}, &Reader{Redis: rdb, Products: fixedCounter(7)}
}

func TestReader_EmptyProjection(t *testing.T) {
	_, r := setup(t)

	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 7, snap.TotalProducts)
	assert.Zero(t, snap.TotalOrders)
	assert.Zero(t, snap.TotalRevenue)
	assert.Empty(t, snap.LatestOrders)
}

func TestProjector_AppliesEachEventOnce(t *testing.T) {
	p, r := setup(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, p.HandleOrderPlaced(ctx, placedMessage("e-1", "o-1", 40, at)))
	// redelivery of the same event
	require.NoError(t, p.HandleOrderPlaced(ctx, placedMessage("e-1", "o-1", 40, at)))
	require.NoError(t, p.HandleOrderPlaced(ctx, placedMessage("e-2", "o-2", 2.5, at.Add(time.Minute))))

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, snap.TotalOrders)
	assert.InDelta(t, 42.5, snap.TotalRevenue, 1e-9)
	require.Len(t, snap.LatestOrders, 2)
	assert.Equal(t, "o-2", snap.LatestOrders[0].OrderID)
	assert.Equal(t, "o-1", snap.LatestOrders[1].OrderID)
}

func TestProjector_LatestListIsCapped(t *testing.T) {
	p, r := setup(t)
	ctx := context.Background()
	at := time.Now().UTC()

	for i := 0; i < redisx.LatestOrdersCap+3; i++ {
		msg := placedMessage(fmt.Sprintf("e-%d", i), fmt.Sprintf("o-%d", i), 1, at.Add(time.Duration(i)*time.Second))
		require.NoError(t, p.HandleOrderPlaced(ctx, msg))
	}

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, redisx.LatestOrdersCap+3, snap.TotalOrders)
	require.Len(t, snap.LatestOrders, redisx.LatestOrdersCap)
	assert.Equal(t, fmt.Sprintf("o-%d", redisx.LatestOrdersCap+2), snap.LatestOrders[0].OrderID)
}

func TestProjector_SkipsForeignAndBrokenMessages(t *testing.T) {
	p, r := setup(t)
	ctx := context.Background()

	require.NoError(t, p.HandleOrderPlaced(ctx, kafkago.Message{Value: []byte("garbage")}))

	env := orders.Envelope{EventID: "e-9", EventType: orders.EventOrderStatusChanged, EventVersion: orders.EnvelopeVersion, Payload: []byte(`{}`)}
	require.NoError(t, p.HandleOrderPlaced(ctx, kafkago.Message{Value: kafkax.MustMarshal(env)}))

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.TotalOrders)
}

func TestStoreReader(t *testing.T) {
	st := memstore.New()
	st.Seed(orders.Product{ID: "p-1", Name: "Cap", Price: 10, Stock: 100})
	svc := orders.NewService(st, nil)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := svc.PlaceOrder(ctx, orders.PlaceOrderInput{
			BuyerID:       "buyer-1",
			LineItems:     []orders.LineItem{{ProductID: "p-1", Quantity: 1}},
			DeclaredTotal: 10,
		})
		require.NoError(t, err)
	}

	snap, err := (&StoreReader{Store: svc}).Snapshot(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap.TotalProducts)
	assert.EqualValues(t, 7, snap.TotalOrders)
	assert.InDelta(t, 70.0, snap.TotalRevenue, 1e-9)
	assert.Len(t, snap.LatestOrders, redisx.LatestOrdersCap)
}
