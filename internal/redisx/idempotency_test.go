package redisx

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *Idempotency) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, &Idempotency{Redis: rdb}
}

func TestIdempotency_Lifecycle(t *testing.T) {
	mr, idem := newTestRedis(t)
	ctx := context.Background()

	state, _, err := idem.Claim(ctx, "buyer-1", "k1")
	require.NoError(t, err)
	assert.Equal(t, Claimed, state)
	assert.Equal(t, TTLIdemPending, mr.TTL(fmt.Sprintf(KeyIdemOrderPlace, "buyer-1", "k1")))

	state, _, err = idem.Claim(ctx, "buyer-1", "k1")
	require.NoError(t, err)
	assert.Equal(t, InFlight, state)

	// same key, other buyer: independent
	state, _, err = idem.Claim(ctx, "buyer-2", "k1")
	require.NoError(t, err)
	assert.Equal(t, Claimed, state)

	require.NoError(t, idem.Complete(ctx, "buyer-1", "k1", "order-42"))
	state, orderID, err := idem.Claim(ctx, "buyer-1", "k1")
	require.NoError(t, err)
	assert.Equal(t, Done, state)
	assert.Equal(t, "order-42", orderID)
	assert.Equal(t, TTLIdempotency, mr.TTL(fmt.Sprintf(KeyIdemOrderPlace, "buyer-1", "k1")))
}

func TestIdempotency_ReleaseAllowsRetry(t *testing.T) {
	_, idem := newTestRedis(t)
	ctx := context.Background()

	state, _, err := idem.Claim(ctx, "buyer-1", "k2")
	require.NoError(t, err)
	require.Equal(t, Claimed, state)

	require.NoError(t, idem.Release(ctx, "buyer-1", "k2"))

	state, _, err = idem.Claim(ctx, "buyer-1", "k2")
	require.NoError(t, err)
	assert.Equal(t, Claimed, state)
}

func TestIdempotency_PendingClaimExpires(t *testing.T) {
	mr, idem := newTestRedis(t)
	ctx := context.Background()

	_, _, err := idem.Claim(ctx, "buyer-1", "k3")
	require.NoError(t, err)
	mr.FastForward(TTLIdemPending + 1)

	state, _, err := idem.Claim(ctx, "buyer-1", "k3")
	require.NoError(t, err)
	assert.Equal(t, Claimed, state)
}

func TestClaim(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := New(mr.Addr())
	defer rdb.Close()
	ctx := context.Background()

	ok, err := Claim(ctx, rdb, "dedup:test:e1", TTLDedup)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Claim(ctx, rdb, "dedup:test:e1", TTLDedup)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, mr.Exists("dedup:test:e1"))
	assert.Equal(t, TTLDedup, mr.TTL("dedup:test:e1"))
}
