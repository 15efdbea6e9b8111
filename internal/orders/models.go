package orders

import "time"

type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LineItem references a product by id only; later catalog edits do not touch placed orders.
// Product is filled from the current catalog when orders are listed and is
// never stored.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Product   *ProductDetails `json:"product,omitempty"`
}

// ProductDetails is the catalog view of a line item's product at read time.
type ProductDetails struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type Order struct {
	ID         string     `json:"id"`
	BuyerID    string     `json:"buyer_id"`
	LineItems  []LineItem `json:"line_items"`
	TotalPrice float64    `json:"total_price"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type PlaceOrderInput struct {
	BuyerID   string
	LineItems []LineItem
	// DeclaredTotal is stored as sent by the client.
	DeclaredTotal float64
}

type CreateProductInput struct {
	Name  string
	Price float64
	Stock int
}
