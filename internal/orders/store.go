package orders

import "context"

// Tx is the view of the store inside one atomic unit. Nothing done through a
// Tx is visible to other callers until InTx returns nil.
type Tx interface {
	ProductsByIDs(ctx context.Context, ids []string) ([]Product, error)
	// DecrementStock applies "stock -= qty where stock >= qty" and reports
	// whether a row matched.
	DecrementStock(ctx context.Context, productID string, qty int) (bool, error)
	InsertOrder(ctx context.Context, o *Order) error
}

type OrderStore interface {
	OrderByID(ctx context.Context, id string) (*Order, error)
	// UpdateOrderStatus returns the updated order and the status it replaced.
	UpdateOrderStatus(ctx context.Context, id string, status Status) (*Order, Status, error)
	OrdersByBuyer(ctx context.Context, buyerID string) ([]Order, error)
	AllOrders(ctx context.Context) ([]Order, error)
}

type CatalogStore interface {
	// ProductsByIDs returns the products that exist; unknown ids are skipped.
	ProductsByIDs(ctx context.Context, ids []string) ([]Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	CreateProduct(ctx context.Context, p *Product) error
	CountProducts(ctx context.Context) (int64, error)
}

type Store interface {
	// InTx runs fn as one atomic unit. Any error returned by fn rolls the
	// unit back and is returned unchanged.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	OrderStore
	CatalogStore
}

// Notifier receives committed order changes.
type Notifier interface {
	OrderPlaced(ctx context.Context, o Order)
	OrderStatusChanged(ctx context.Context, o Order, previous Status)
}

type nopNotifier struct{}

func (nopNotifier) OrderPlaced(context.Context, Order)                {}
func (nopNotifier) OrderStatusChanged(context.Context, Order, Status) {}
