package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/storefront-orders/internal/orders"
)

// Store is the Postgres implementation of orders.Store.
type Store struct{ DB *pgxpool.Pool }

var _ orders.Store = (*Store)(nil)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const orderColumns = `id, buyer_id, total_price, status, created_at, updated_at`

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return wrap("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &txView{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrap("commit", err)
	}
	return nil
}

type txView struct{ tx pgx.Tx }

func (t *txView) ProductsByIDs(ctx context.Context, ids []string) ([]orders.Product, error) {
	return productsByIDs(ctx, t.tx, ids)
}

// DecrementStock never lets stock go negative: the row only matches when it
// still holds at least qty, and the row lock is held until commit.
func (t *txView) DecrementStock(ctx context.Context, productID string, qty int) (bool, error) {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`, productID, qty)
	if err != nil {
		return false, wrap("decrement stock", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (t *txView) InsertOrder(ctx context.Context, o *orders.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, buyer_id, total_price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.BuyerID, o.TotalPrice, string(o.Status), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return wrap("insert order", err)
	}

	for i, it := range o.LineItems {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_items(order_id, position, product_id, quantity)
			VALUES ($1, $2, $3, $4)`,
			o.ID, i, it.ProductID, it.Quantity,
		); err != nil {
			return wrap("insert order item", err)
		}
	}
	return nil
}

func (s *Store) OrderByID(ctx context.Context, id string) (*orders.Order, error) {
	var o orders.Order
	err := s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.BuyerID, &o.TotalPrice, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, wrap("select order", err)
	}
	list := []orders.Order{o}
	if err := attachItems(ctx, s.DB, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status orders.Status) (*orders.Order, orders.Status, error) {
	var (
		o        orders.Order
		previous orders.Status
	)
	err := s.DB.QueryRow(ctx, `
		WITH prev AS (SELECT id, status FROM orders WHERE id = $1 FOR UPDATE)
		UPDATE orders o SET status = $2, updated_at = now()
		FROM prev WHERE o.id = prev.id
		RETURNING prev.status, o.id, o.buyer_id, o.total_price, o.status, o.created_at, o.updated_at`,
		id, string(status),
	).Scan(&previous, &o.ID, &o.BuyerID, &o.TotalPrice, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, "", wrap("update order status", err)
	}
	list := []orders.Order{o}
	if err := attachItems(ctx, s.DB, list); err != nil {
		return nil, "", err
	}
	return &list[0], previous, nil
}

func (s *Store) OrdersByBuyer(ctx context.Context, buyerID string) ([]orders.Order, error) {
	return s.listOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC`, buyerID)
}

func (s *Store) AllOrders(ctx context.Context) ([]orders.Order, error) {
	return s.listOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
}

func (s *Store) listOrders(ctx context.Context, sql string, args ...any) ([]orders.Order, error) {
	rows, err := s.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrap("select orders", err)
	}
	defer rows.Close()

	out := make([]orders.Order, 0)
	for rows.Next() {
		var o orders.Order
		if err := rows.Scan(&o.ID, &o.BuyerID, &o.TotalPrice, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, wrap("scan order", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate orders", err)
	}
	if err := attachItems(ctx, s.DB, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachItems loads line items for all given orders in one query.
func attachItems(ctx context.Context, q querier, list []orders.Order) error {
	if len(list) == 0 {
		return nil
	}
	idx := make(map[string]int, len(list))
	ids := make([]string, 0, len(list))
	for i := range list {
		idx[list[i].ID] = i
		ids = append(ids, list[i].ID)
		list[i].LineItems = make([]orders.LineItem, 0)
	}

	rows, err := q.Query(ctx, `
		SELECT order_id, product_id, quantity
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, position`, ids)
	if err != nil {
		return wrap("select order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			it      orders.LineItem
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Quantity); err != nil {
			return wrap("scan order item", err)
		}
		if i, ok := idx[orderID]; ok {
			list[i].LineItems = append(list[i].LineItems, it)
		}
	}
	if err := rows.Err(); err != nil {
		return wrap("iterate order items", err)
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]orders.Product, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, price, stock, created_at, updated_at
		FROM products ORDER BY name`)
	if err != nil {
		return nil, wrap("select products", err)
	}
	out, err := scanProducts(rows)
	if err != nil {
		return nil, wrap("scan products", err)
	}
	return out, nil
}

func (s *Store) ProductsByIDs(ctx context.Context, ids []string) ([]orders.Product, error) {
	return productsByIDs(ctx, s.DB, ids)
}

func productsByIDs(ctx context.Context, q querier, ids []string) ([]orders.Product, error) {
	rows, err := q.Query(ctx, `
		SELECT id, name, price, stock, created_at, updated_at
		FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, wrap("select products", err)
	}
	out, err := scanProducts(rows)
	if err != nil {
		return nil, wrap("scan products", err)
	}
	return out, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *orders.Product) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO products(id, name, price, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.Price, p.Stock, p.CreatedAt, p.UpdatedAt)
	return wrap("insert product", err)
}

func (s *Store) CountProducts(ctx context.Context) (int64, error) {
	var n int64
	if err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, wrap("count products", err)
	}
	return n, nil
}

func scanProducts(rows pgx.Rows) ([]orders.Product, error) {
	defer rows.Close()
	out := make([]orders.Product, 0)
	for rows.Next() {
		var p orders.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// wrap marks lock and serialization conflicts as retryable. Everything else
// is a plain storage failure.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable:
			return orders.TransientStorage(op, err)
		}
	}
	return orders.Storage(op, err)
}
