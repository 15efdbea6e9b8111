// Package stats maintains the admin dashboard figures. A Kafka consumer
// projects order.placed events into Redis and Reader serves them back.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/storefront-orders/internal/kafka"
	"github.com/ariefcatur/storefront-orders/internal/orders"
	"github.com/ariefcatur/storefront-orders/internal/redisx"
)

// LatestOrder is one entry of the recent orders list.
type LatestOrder struct {
	OrderID    string        `json:"order_id"`
	BuyerID    string        `json:"buyer_id"`
	TotalPrice float64       `json:"total_price"`
	Status     orders.Status `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}

type Projector struct {
	Redis       *redis.Client
	ServiceName string // dedup namespace
}

// HandleOrderPlaced is installed as the consumer handler for order.placed.
// Redelivered events are recognised by event id and applied once.
func (p *Projector) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		// poison message: log and let the offset move on
		log.Error().Err(err).Int64("offset", m.Offset).Msg("stats: skip undecodable event")
		return nil
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil
	}
	payload, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	if err != nil {
		log.Error().Err(err).Str("event_id", env.EventID).Msg("stats: skip undecodable payload")
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, p.ServiceName, env.EventID)
	fresh, err := redisx.Claim(ctx, p.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		return err
	}
	if !fresh {
		log.Debug().Str("event_id", env.EventID).Msg("stats: duplicate event ignored")
		return nil
	}

	entry, err := json.Marshal(LatestOrder{
		OrderID:    payload.OrderID,
		BuyerID:    payload.BuyerID,
		TotalPrice: payload.TotalPrice,
		Status:     payload.Status,
		CreatedAt:  payload.CreatedAt,
	})
	if err != nil {
		return err
	}

	_, err = p.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, redisx.KeyStatsOrderCount)
		pipe.IncrByFloat(ctx, redisx.KeyStatsRevenue, payload.TotalPrice)
		pipe.LPush(ctx, redisx.KeyStatsLatest, entry)
		pipe.LTrim(ctx, redisx.KeyStatsLatest, 0, redisx.LatestOrdersCap-1)
		return nil
	})
	if err != nil {
		// give the redelivery a chance to apply it
		_ = p.Redis.Del(ctx, dkey).Err()
		return err
	}

	log.Info().Str("order_id", payload.OrderID).Str("event_id", env.EventID).Msg("stats: order projected")
	return nil
}
