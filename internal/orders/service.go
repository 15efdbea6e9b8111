package orders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 50 * time.Millisecond
)

// Service places orders and manages their lifecycle. It keeps no state between
// calls; all shared state lives in Store.
type Service struct {
	Store    Store
	Notifier Notifier
	// MaxAttempts bounds how often a placement is re-run after a retryable
	// storage failure. Zero means the default.
	MaxAttempts int
	Backoff     time.Duration
}

func NewService(store Store, notifier Notifier) *Service {
	return &Service{Store: store, Notifier: notifier}
}

// PlaceOrder validates the requested quantities against current stock, then
// decrements stock and records the order as one atomic unit. On any error the
// store is left untouched.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*Order, error) {
	if err := validatePlaceOrder(in); err != nil {
		log.Warn().Err(err).Str("buyer_id", in.BuyerID).Msg("orders: rejected place order request")
		return nil, err
	}

	requested, ids := requestedByProduct(in.LineItems)
	order := &Order{
		ID:         uuid.NewString(),
		BuyerID:    in.BuyerID,
		LineItems:  append([]LineItem(nil), in.LineItems...),
		TotalPrice: in.DeclaredTotal,
		Status:     StatusPending,
	}

	attempts := s.maxAttempts()
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = s.placeOnce(ctx, order, requested, ids)
		if err == nil || !IsRetryable(err) || attempt == attempts {
			break
		}
		log.Warn().Err(err).Str("order_id", order.ID).Int("attempt", attempt).Msg("orders: transient storage failure, retrying placement")
		select {
		case <-ctx.Done():
			return nil, Storage("place order", ctx.Err())
		case <-time.After(time.Duration(attempt) * s.backoff()):
		}
	}
	if err != nil {
		err = classify("place order", err)
		if errors.Is(err, ErrStorageFailure) {
			log.Error().Err(err).Str("buyer_id", in.BuyerID).Msg("orders: failed to place order")
		} else {
			log.Warn().Err(err).Str("buyer_id", in.BuyerID).Msg("orders: order rejected")
		}
		return nil, err
	}

	log.Info().Str("order_id", order.ID).Str("buyer_id", order.BuyerID).Int("lines", len(order.LineItems)).Msg("orders: order placed")
	s.notifier().OrderPlaced(ctx, *order)
	return order, nil
}

func (s *Service) placeOnce(ctx context.Context, order *Order, requested map[string]int, ids []string) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		products, err := tx.ProductsByIDs(ctx, ids)
		if err != nil {
			return err
		}
		byID := make(map[string]Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		var missing []string
		for _, id := range ids {
			if _, ok := byID[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return &ProductNotFoundError{ProductIDs: missing}
		}

		var shortages []Shortage
		for _, id := range ids {
			if p := byID[id]; p.Stock < requested[id] {
				shortages = append(shortages, Shortage{ProductID: id, Name: p.Name, Requested: requested[id], Available: p.Stock})
			}
		}
		if len(shortages) > 0 {
			return &InsufficientStockError{Shortages: shortages}
		}

		// ids are sorted, so concurrent placements take row locks in the same order.
		for _, id := range ids {
			ok, err := tx.DecrementStock(ctx, id, requested[id])
			if err != nil {
				return err
			}
			if !ok {
				return lostRace(ctx, tx, byID[id], requested[id])
			}
		}

		if catalog := catalogTotal(order.LineItems, byID); math.Abs(catalog-order.TotalPrice) > 0.005 {
			log.Warn().Str("order_id", order.ID).Float64("declared_total", order.TotalPrice).Float64("catalog_total", catalog).Msg("orders: declared total differs from catalog prices")
		}

		now := time.Now().UTC()
		order.CreatedAt, order.UpdatedAt = now, now
		return tx.InsertOrder(ctx, order)
	})
}

// lostRace builds the shortage for a decrement that matched no row. Another
// placement committed after our read, so the stock is read again to report
// what is actually left.
func lostRace(ctx context.Context, tx Tx, p Product, requested int) error {
	fresh, err := tx.ProductsByIDs(ctx, []string{p.ID})
	if err != nil {
		return err
	}
	available := 0
	if len(fresh) == 1 {
		available = fresh[0].Stock
	}
	if available >= requested {
		// stock came back between the miss and the re-read; run the attempt again
		return TransientStorage("decrement stock", errStockMoved)
	}
	return &InsufficientStockError{Shortages: []Shortage{{ProductID: p.ID, Name: p.Name, Requested: requested, Available: available}}}
}

// UpdateOrderStatus sets the status of an existing order. Stock and totals are
// never recomputed.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, status Status, actingAdminID string) (*Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrInvalidRequest)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrInvalidRequest, status)
	}

	o, previous, err := s.Store.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		err = classify("update order status", err)
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Str("order_id", orderID).Stringer("status", status).Msg("orders: order not found for status update")
		} else {
			log.Error().Err(err).Str("order_id", orderID).Msg("orders: failed to update order status")
		}
		return nil, err
	}

	log.Info().
		Str("order_id", orderID).
		Str("admin_id", actingAdminID).
		Stringer("old_status", previous).
		Stringer("new_status", status).
		Msg("orders: order status updated")
	if previous != status {
		s.notifier().OrderStatusChanged(ctx, *o, previous)
	}
	return o, nil
}

func (s *Service) OrderByID(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.Store.OrderByID(ctx, orderID)
	if err != nil {
		return nil, classify("get order", err)
	}
	return o, nil
}

func (s *Service) OrdersByBuyer(ctx context.Context, buyerID string) ([]Order, error) {
	if strings.TrimSpace(buyerID) == "" {
		return nil, fmt.Errorf("%w: buyer id is required", ErrInvalidRequest)
	}
	out, err := s.Store.OrdersByBuyer(ctx, buyerID)
	if err == nil {
		err = s.withProductDetails(ctx, out)
	}
	if err != nil {
		log.Error().Err(err).Str("buyer_id", buyerID).Msg("orders: failed to list buyer orders")
		return nil, classify("list buyer orders", err)
	}
	return out, nil
}

func (s *Service) AllOrders(ctx context.Context) ([]Order, error) {
	out, err := s.Store.AllOrders(ctx)
	if err == nil {
		err = s.withProductDetails(ctx, out)
	}
	if err != nil {
		log.Error().Err(err).Msg("orders: failed to list orders")
		return nil, classify("list orders", err)
	}
	return out, nil
}

// withProductDetails attaches the current name and price of every referenced
// product. Items whose product has since been removed keep a nil Product.
func (s *Service) withProductDetails(ctx context.Context, list []Order) error {
	seen := map[string]struct{}{}
	var ids []string
	for _, o := range list {
		for _, it := range o.LineItems {
			if _, ok := seen[it.ProductID]; !ok {
				seen[it.ProductID] = struct{}{}
				ids = append(ids, it.ProductID)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	products, err := s.Store.ProductsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	details := make(map[string]*ProductDetails, len(products))
	for _, p := range products {
		details[p.ID] = &ProductDetails{Name: p.Name, Price: p.Price}
	}
	for i := range list {
		for j := range list[i].LineItems {
			list[i].LineItems[j].Product = details[list[i].LineItems[j].ProductID]
		}
	}
	return nil
}

func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	out, err := s.Store.ListProducts(ctx)
	if err != nil {
		return nil, classify("list products", err)
	}
	return out, nil
}

func (s *Service) CreateProduct(ctx context.Context, in CreateProductInput) (*Product, error) {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return nil, fmt.Errorf("%w: product name is required", ErrInvalidRequest)
	case in.Price < 0:
		return nil, fmt.Errorf("%w: price must be non-negative", ErrInvalidRequest)
	case in.Stock < 0:
		return nil, fmt.Errorf("%w: stock must be non-negative", ErrInvalidRequest)
	}

	now := time.Now().UTC()
	p := &Product{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(in.Name),
		Price:     in.Price,
		Stock:     in.Stock,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.CreateProduct(ctx, p); err != nil {
		log.Error().Err(err).Str("name", p.Name).Msg("orders: failed to create product")
		return nil, classify("create product", err)
	}
	log.Info().Str("product_id", p.ID).Int("stock", p.Stock).Msg("orders: product created")
	return p, nil
}

func (s *Service) CountProducts(ctx context.Context) (int64, error) {
	n, err := s.Store.CountProducts(ctx)
	if err != nil {
		return 0, classify("count products", err)
	}
	return n, nil
}

func (s *Service) notifier() Notifier {
	if s.Notifier == nil {
		return nopNotifier{}
	}
	return s.Notifier
}

func (s *Service) maxAttempts() int {
	if s.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return s.MaxAttempts
}

func (s *Service) backoff() time.Duration {
	if s.Backoff <= 0 {
		return defaultBackoff
	}
	return s.Backoff
}

func validatePlaceOrder(in PlaceOrderInput) error {
	if strings.TrimSpace(in.BuyerID) == "" {
		return fmt.Errorf("%w: buyer id is required", ErrInvalidRequest)
	}
	if len(in.LineItems) == 0 {
		return fmt.Errorf("%w: order must contain at least one line item", ErrInvalidRequest)
	}
	for i, it := range in.LineItems {
		if strings.TrimSpace(it.ProductID) == "" {
			return fmt.Errorf("%w: line item %d has no product id", ErrInvalidRequest, i)
		}
		if it.Quantity < 1 {
			return fmt.Errorf("%w: line item %d quantity must be at least 1, got %d", ErrInvalidRequest, i, it.Quantity)
		}
	}
	if in.DeclaredTotal < 0 || math.IsNaN(in.DeclaredTotal) || math.IsInf(in.DeclaredTotal, 0) {
		return fmt.Errorf("%w: total price must be a non-negative number", ErrInvalidRequest)
	}
	return nil
}

// requestedByProduct sums quantities per product and returns the distinct ids
// in ascending order.
func requestedByProduct(items []LineItem) (map[string]int, []string) {
	requested := make(map[string]int, len(items))
	for _, it := range items {
		requested[it.ProductID] += it.Quantity
	}
	ids := make([]string, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return requested, ids
}

func catalogTotal(items []LineItem, byID map[string]Product) float64 {
	total := 0.0
	for _, it := range items {
		total += byID[it.ProductID].Price * float64(it.Quantity)
	}
	return total
}

// classify keeps domain errors as they are and turns anything else, including
// context deadlines, into a storage failure.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrStorageFailure):
		return err
	}
	return Storage(op, err)
}
