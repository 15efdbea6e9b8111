package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "pending"

type ClaimState int

const (
	// Claimed: this request owns the key and must Complete or Release it.
	Claimed ClaimState = iota
	// InFlight: an earlier request with the same key has not finished.
	InFlight
	// Done: an earlier request finished; its order id is returned.
	Done
)

// Idempotency guards order placement against client retries that carry the
// same Idempotency-Key. Keys are scoped per buyer.
type Idempotency struct {
	Redis *redis.Client
}

func (i *Idempotency) key(buyerID, idemKey string) string {
	return fmt.Sprintf(KeyIdemOrderPlace, buyerID, idemKey)
}

func (i *Idempotency) Claim(ctx context.Context, buyerID, idemKey string) (ClaimState, string, error) {
	k := i.key(buyerID, idemKey)
	ok, err := i.Redis.SetNX(ctx, k, pendingMarker, TTLIdemPending).Result()
	if err != nil {
		return 0, "", err
	}
	if ok {
		return Claimed, "", nil
	}

	v, err := i.Redis.Get(ctx, k).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// expired between SETNX and GET; report in flight and let the client retry
		return InFlight, "", nil
	case err != nil:
		return 0, "", err
	case v == pendingMarker:
		return InFlight, "", nil
	}
	return Done, v, nil
}

// Complete records the order created under the claimed key.
func (i *Idempotency) Complete(ctx context.Context, buyerID, idemKey, orderID string) error {
	return i.Redis.Set(ctx, i.key(buyerID, idemKey), orderID, TTLIdempotency).Err()
}

// Release drops a claim after a failed placement so the client may retry.
func (i *Idempotency) Release(ctx context.Context, buyerID, idemKey string) error {
	return i.Redis.Del(ctx, i.key(buyerID, idemKey)).Err()
}
