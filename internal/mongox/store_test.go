package mongox

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ariefcatur/storefront-orders/internal/orders"
)

func TestWrapLabels(t *testing.T) {
	transient := mongo.CommandError{Code: 112, Name: "WriteConflict", Labels: []string{"TransientTransactionError"}}
	err := wrap("decrement stock", transient)
	assert.ErrorIs(t, err, orders.ErrStorageFailure)
	assert.True(t, orders.IsRetryable(err))

	unknown := mongo.CommandError{Code: 50, Labels: []string{"UnknownTransactionCommitResult"}}
	assert.False(t, orders.IsRetryable(wrap("commit", unknown)))
	assert.False(t, orders.IsRetryable(wrap("find", errors.New("server selection timeout"))))
	assert.NoError(t, wrap("noop", nil))
}

func TestOrderDocRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	o := orders.Order{
		ID:         "o-1",
		BuyerID:    "u-1",
		LineItems:  []orders.LineItem{{ProductID: "p-1", Quantity: 2}, {ProductID: "p-2", Quantity: 1}},
		TotalPrice: 12.5,
		Status:     orders.StatusShipped,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	raw, err := bson.Marshal(fromOrder(o))
	require.NoError(t, err)

	var d orderDoc
	require.NoError(t, bson.Unmarshal(raw, &d))
	assert.Equal(t, o, d.toOrder())

	var m bson.M
	require.NoError(t, bson.Unmarshal(raw, &m))
	assert.Equal(t, "o-1", m["_id"])
	assert.Equal(t, "u-1", m["buyerId"])
}

// Integration tests need a replica set, e.g.
// TEST_MONGO_URI=mongodb://localhost:27017/?replicaSet=rs0
func setup(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	client, err := Connect(ctx, uri)
	require.NoError(t, err)

	dbName := "orders_test_" + uuid.NewString()[:8]
	require.NoError(t, EnsureIndexes(ctx, client.Database(dbName)))
	t.Cleanup(func() {
		_ = client.Database(dbName).Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return NewStore(client, dbName)
}

func seedProduct(t *testing.T, st *Store, name string, price float64, stock int) orders.Product {
	t.Helper()
	now := time.Now().UTC()
	p := orders.Product{ID: uuid.NewString(), Name: name, Price: price, Stock: stock, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, st.CreateProduct(context.Background(), &p))
	return p
}

func stockOf(t *testing.T, st *Store, id string) int {
	t.Helper()
	var d productDoc
	require.NoError(t, st.products.FindOne(context.Background(), bson.M{"_id": id}).Decode(&d))
	return d.Stock
}

func TestStore_InTxRollsBack(t *testing.T) {
	st := setup(t)
	p := seedProduct(t, st, "Lamp", 30, 4)
	boom := errors.New("boom")

	err := st.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		ok, err := tx.DecrementStock(ctx, p.ID, 4)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = tx.DecrementStock(ctx, p.ID, 1)
		require.NoError(t, err)
		assert.False(t, ok)
		return boom
	})

	assert.Equal(t, boom, err)
	assert.Equal(t, 4, stockOf(t, st, p.ID))
}

func TestStore_PlaceAndUpdate(t *testing.T) {
	st := setup(t)
	p := seedProduct(t, st, "Mug", 8, 3)
	svc := orders.NewService(st, nil)
	ctx := context.Background()

	placed, err := svc.PlaceOrder(ctx, orders.PlaceOrderInput{
		BuyerID:       "buyer-1",
		LineItems:     []orders.LineItem{{ProductID: p.ID, Quantity: 2}},
		DeclaredTotal: 16,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stockOf(t, st, p.ID))

	_, err = svc.PlaceOrder(ctx, orders.PlaceOrderInput{
		BuyerID:   "buyer-2",
		LineItems: []orders.LineItem{{ProductID: p.ID, Quantity: 2}},
	})
	assert.ErrorIs(t, err, orders.ErrInsufficientStock)

	updated, previous, err := st.UpdateOrderStatus(ctx, placed.ID, orders.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, previous)
	assert.Equal(t, orders.StatusDelivered, updated.Status)

	_, err = st.OrderByID(ctx, "missing")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)

	n, err := st.CountProducts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	listed, err := svc.OrdersByBuyer(ctx, "buyer-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, &orders.ProductDetails{Name: "Mug", Price: 8}, listed[0].LineItems[0].Product)

	found, err := st.ProductsByIDs(ctx, []string{p.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, p.ID, found[0].ID)
}

func TestStore_ConcurrentPlacementsNeverOversell(t *testing.T) {
	st := setup(t)
	p := seedProduct(t, st, "Pen", 1, 3)
	svc := &orders.Service{Store: st, MaxAttempts: 10, Backoff: 5 * time.Millisecond}

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceOrder(context.Background(), orders.PlaceOrderInput{
				BuyerID:   "buyer",
				LineItems: []orders.LineItem{{ProductID: p.ID, Quantity: 1}},
			})
			if err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 3, successes.Load())
	assert.Equal(t, 0, stockOf(t, st, p.ID))
}
