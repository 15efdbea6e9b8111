package mongox

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/ariefcatur/storefront-orders/internal/orders"
)

// Store is the MongoDB implementation of orders.Store. Placement runs in a
// multi-document transaction, so the deployment must be a replica set.
type Store struct {
	Client   *mongo.Client
	products *mongo.Collection
	orders   *mongo.Collection
}

var _ orders.Store = (*Store)(nil)

func NewStore(client *mongo.Client, dbName string) *Store {
	db := client.Database(dbName)
	return &Store{
		Client:   client,
		products: db.Collection(collProducts),
		orders:   db.Collection(collOrders),
	}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	sess, err := s.Client.StartSession()
	if err != nil {
		return wrap("start session", err)
	}
	defer sess.EndSession(context.Background())

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	var fnErr error
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		fnErr = fn(sc, &txView{s: s})
		return nil, fnErr
	}, txOpts)
	if err == nil {
		return nil
	}
	if fnErr != nil {
		// the transaction was aborted; hand back fn's error untouched
		return fnErr
	}
	return wrap("commit", err)
}

type txView struct{ s *Store }

func (t *txView) ProductsByIDs(ctx context.Context, ids []string) ([]orders.Product, error) {
	return t.s.ProductsByIDs(ctx, ids)
}

func (t *txView) DecrementStock(ctx context.Context, productID string, qty int) (bool, error) {
	res, err := t.s.products.UpdateOne(ctx,
		bson.M{"_id": productID, "stock": bson.M{"$gte": qty}},
		bson.M{
			"$inc": bson.M{"stock": -qty},
			"$set": bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, wrap("decrement stock", err)
	}
	return res.MatchedCount == 1, nil
}

func (t *txView) InsertOrder(ctx context.Context, o *orders.Order) error {
	if _, err := t.s.orders.InsertOne(ctx, fromOrder(*o)); err != nil {
		return wrap("insert order", err)
	}
	return nil
}

func (s *Store) OrderByID(ctx context.Context, id string) (*orders.Order, error) {
	var d orderDoc
	err := s.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, wrap("find order", err)
	}
	o := d.toOrder()
	return &o, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status orders.Status) (*orders.Order, orders.Status, error) {
	now := time.Now().UTC()
	var before orderDoc
	err := s.orders.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": string(status), "updatedAt": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, "", orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, "", wrap("update order status", err)
	}

	o := before.toOrder()
	previous := o.Status
	o.Status = status
	o.UpdatedAt = now
	return &o, previous, nil
}

func (s *Store) OrdersByBuyer(ctx context.Context, buyerID string) ([]orders.Order, error) {
	return s.findOrders(ctx, bson.M{"buyerId": buyerID})
}

func (s *Store) AllOrders(ctx context.Context) ([]orders.Order, error) {
	return s.findOrders(ctx, bson.M{})
}

func (s *Store) findOrders(ctx context.Context, filter bson.M) ([]orders.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := s.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrap("find orders", err)
	}
	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrap("decode orders", err)
	}
	out := make([]orders.Order, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toOrder())
	}
	return out, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]orders.Product, error) {
	cur, err := s.products.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, wrap("find products", err)
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrap("decode products", err)
	}
	out := make([]orders.Product, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toProduct())
	}
	return out, nil
}

// ProductsByIDs reads inside the caller's transaction when ctx is a session
// context.
func (s *Store) ProductsByIDs(ctx context.Context, ids []string) ([]orders.Product, error) {
	cur, err := s.products.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, wrap("find products", err)
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrap("decode products", err)
	}
	out := make([]orders.Product, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toProduct())
	}
	return out, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *orders.Product) error {
	_, err := s.products.InsertOne(ctx, fromProduct(*p))
	return wrap("insert product", err)
}

func (s *Store) CountProducts(ctx context.Context) (int64, error) {
	n, err := s.products.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, wrap("count products", err)
	}
	return n, nil
}

// wrap marks errors the server labelled TransientTransactionError as
// retryable. Those are guaranteed not to have committed.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var le mongo.LabeledError
	if errors.As(err, &le) && le.HasErrorLabel("TransientTransactionError") {
		return orders.TransientStorage(op, err)
	}
	return orders.Storage(op, err)
}
