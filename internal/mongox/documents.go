package mongox

import (
	"time"

	"github.com/ariefcatur/storefront-orders/internal/orders"
)

type productDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Price     float64   `bson:"price"`
	Stock     int       `bson:"stock"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type lineItemDoc struct {
	ProductID string `bson:"product"`
	Quantity  int    `bson:"quantity"`
}

type orderDoc struct {
	ID         string        `bson:"_id"`
	BuyerID    string        `bson:"buyerId"`
	Products   []lineItemDoc `bson:"products"`
	TotalPrice float64       `bson:"totalPrice"`
	Status     string        `bson:"status"`
	CreatedAt  time.Time     `bson:"createdAt"`
	UpdatedAt  time.Time     `bson:"updatedAt"`
}

func fromProduct(p orders.Product) productDoc {
	return productDoc{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Stock:     p.Stock,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (d productDoc) toProduct() orders.Product {
	return orders.Product{
		ID:        d.ID,
		Name:      d.Name,
		Price:     d.Price,
		Stock:     d.Stock,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func fromOrder(o orders.Order) orderDoc {
	items := make([]lineItemDoc, 0, len(o.LineItems))
	for _, it := range o.LineItems {
		items = append(items, lineItemDoc{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return orderDoc{
		ID:         o.ID,
		BuyerID:    o.BuyerID,
		Products:   items,
		TotalPrice: o.TotalPrice,
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func (d orderDoc) toOrder() orders.Order {
	items := make([]orders.LineItem, 0, len(d.Products))
	for _, it := range d.Products {
		items = append(items, orders.LineItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return orders.Order{
		ID:         d.ID,
		BuyerID:    d.BuyerID,
		LineItems:  items,
		TotalPrice: d.TotalPrice,
		Status:     orders.Status(d.Status),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}
