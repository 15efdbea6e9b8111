package redisx

import "time"

const (
	// Idempotent placement: idem:order:place:{buyer_id}:{Idempotency-Key} -> order_id | "pending"
	KeyIdemOrderPlace = "idem:order:place:%s:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Admin dashboard projection, fed by order.placed
	KeyStatsOrderCount = "stats:orders:count"
	KeyStatsRevenue    = "stats:orders:revenue"
	KeyStatsLatest     = "stats:orders:latest" // list, newest first
)

const LatestOrdersCap = 5

var (
	TTLIdempotency = 24 * time.Hour
	// An in-flight claim expires on its own if the API dies mid-request.
	TTLIdemPending = 2 * time.Minute
	TTLDedup       = 48 * time.Hour
)
