// Package memstore is an in-process orders.Store. Transactions are serialized
// behind one lock and rolled back from a snapshot, so it is only meant for
// local runs and tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/storefront-orders/internal/orders"
)

type Store struct {
	mu       sync.RWMutex
	products map[string]orders.Product
	orders   map[string]orders.Order
	// insertion order, used to break CreatedAt ties
	seq map[string]int
	n   int
}

func New() *Store {
	return &Store{
		products: map[string]orders.Product{},
		orders:   map[string]orders.Order{},
		seq:      map[string]int{},
	}
}

// Seed puts products into the catalog as-is, replacing any with the same id.
func (s *Store) Seed(ps ...orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		s.products[p.ID] = p
	}
}

// Stock returns the current stock of a product and whether it exists.
func (s *Store) Stock(id string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	return p.Stock, ok
}

func (s *Store) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return orders.Storage("begin tx", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	products := make(map[string]orders.Product, len(s.products))
	for k, v := range s.products {
		products[k] = v
	}
	orderIDs := make(map[string]struct{}, len(s.orders))
	for k := range s.orders {
		orderIDs[k] = struct{}{}
	}

	if err := fn(ctx, &tx{s: s}); err != nil {
		s.products = products
		for k := range s.orders {
			if _, ok := orderIDs[k]; !ok {
				delete(s.orders, k)
				delete(s.seq, k)
			}
		}
		return err
	}
	return nil
}

// tx operates on the live maps; the caller holds s.mu.
type tx struct{ s *Store }

func (t *tx) ProductsByIDs(_ context.Context, ids []string) ([]orders.Product, error) {
	return t.s.lookup(ids), nil
}

func (t *tx) DecrementStock(_ context.Context, productID string, qty int) (bool, error) {
	p, ok := t.s.products[productID]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	p.UpdatedAt = time.Now().UTC()
	t.s.products[productID] = p
	return true, nil
}

func (t *tx) InsertOrder(_ context.Context, o *orders.Order) error {
	t.s.n++
	t.s.seq[o.ID] = t.s.n
	t.s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (s *Store) OrderByID(_ context.Context, id string) (*orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	out := cloneOrder(o)
	return &out, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, status orders.Status) (*orders.Order, orders.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, "", orders.ErrOrderNotFound
	}
	previous := o.Status
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	s.orders[id] = o
	out := cloneOrder(o)
	return &out, previous, nil
}

func (s *Store) OrdersByBuyer(_ context.Context, buyerID string) ([]orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(func(o orders.Order) bool { return o.BuyerID == buyerID }), nil
}

func (s *Store) AllOrders(_ context.Context) ([]orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(func(orders.Order) bool { return true }), nil
}

// sorted returns matching orders newest first.
func (s *Store) sorted(match func(orders.Order) bool) []orders.Order {
	out := make([]orders.Order, 0)
	for _, o := range s.orders {
		if match(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] > s.seq[out[j].ID] })
	return out
}

func (s *Store) ListProducts(_ context.Context) ([]orders.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]orders.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ProductsByIDs(_ context.Context, ids []string) ([]orders.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(ids), nil
}

func (s *Store) lookup(ids []string) []orders.Product {
	out := make([]orders.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) CreateProduct(_ context.Context, p *orders.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = *p
	return nil
}

func (s *Store) CountProducts(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.products)), nil
}

func cloneOrder(o orders.Order) orders.Order {
	o.LineItems = append([]orders.LineItem(nil), o.LineItems...)
	return o
}
