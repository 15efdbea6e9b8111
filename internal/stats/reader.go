package stats

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/storefront-orders/internal/orders"
	"github.com/ariefcatur/storefront-orders/internal/redisx"
)

type Snapshot struct {
	TotalProducts int64         `json:"total_products"`
	TotalOrders   int64         `json:"total_orders"`
	TotalRevenue  float64       `json:"total_revenue"`
	LatestOrders  []LatestOrder `json:"latest_orders"`
}

type ProductCounter interface {
	CountProducts(ctx context.Context) (int64, error)
}

// Reader serves the projection written by Projector.
type Reader struct {
	Redis    *redis.Client
	Products ProductCounter
}

func (r *Reader) Snapshot(ctx context.Context) (Snapshot, error) {
	var out Snapshot
	n, err := r.Products.CountProducts(ctx)
	if err != nil {
		return out, err
	}
	out.TotalProducts = n

	pipe := r.Redis.Pipeline()
	count := pipe.Get(ctx, redisx.KeyStatsOrderCount)
	revenue := pipe.Get(ctx, redisx.KeyStatsRevenue)
	latest := pipe.LRange(ctx, redisx.KeyStatsLatest, 0, redisx.LatestOrdersCap-1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return out, orders.Storage("read stats", err)
	}

	if out.TotalOrders, err = int64OrZero(count); err != nil {
		return out, orders.Storage("read order count", err)
	}
	if out.TotalRevenue, err = floatOrZero(revenue); err != nil {
		return out, orders.Storage("read revenue", err)
	}
	out.LatestOrders = make([]LatestOrder, 0, redisx.LatestOrdersCap)
	for _, raw := range latest.Val() {
		var lo LatestOrder
		if err := json.Unmarshal([]byte(raw), &lo); err != nil {
			continue
		}
		out.LatestOrders = append(out.LatestOrders, lo)
	}
	return out, nil
}

func int64OrZero(c *redis.StringCmd) (int64, error) {
	v, err := c.Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func floatOrZero(c *redis.StringCmd) (float64, error) {
	s, err := c.Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}

// StoreReader computes the same figures straight from the store. Used when
// no Redis projection is configured.
type StoreReader struct {
	Store interface {
		ProductCounter
		AllOrders(ctx context.Context) ([]orders.Order, error)
	}
}

func (r *StoreReader) Snapshot(ctx context.Context) (Snapshot, error) {
	var out Snapshot
	n, err := r.Store.CountProducts(ctx)
	if err != nil {
		return out, err
	}
	all, err := r.Store.AllOrders(ctx)
	if err != nil {
		return out, err
	}
	out.TotalProducts = n
	out.TotalOrders = int64(len(all))
	for _, o := range all {
		out.TotalRevenue += o.TotalPrice
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	out.LatestOrders = make([]LatestOrder, 0, redisx.LatestOrdersCap)
	for i := 0; i < len(all) && i < redisx.LatestOrdersCap; i++ {
		o := all[i]
		out.LatestOrders = append(out.LatestOrders, LatestOrder{
			OrderID:    o.ID,
			BuyerID:    o.BuyerID,
			TotalPrice: o.TotalPrice,
			Status:     o.Status,
			CreatedAt:  o.CreatedAt,
		})
	}
	return out, nil
}
