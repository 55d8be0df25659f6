package store

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerostream/indexer/internal/entity"
)

func Test_Memory_PoolRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	_, err := st.Pool(ctx, "0xabc")
	require.ErrorIs(t, err, ErrNotFound)

	pool := &entity.Pool{
		Address:  "0xabc",
		Token0:   "0xt0",
		Token1:   "0xt1",
		Reserve0: decimal.NewFromInt(10),
	}
	require.NoError(t, st.SavePool(ctx, pool))

	got, err := st.Pool(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xt0", got.Token0)
	assert.True(t, got.Reserve0.Equal(decimal.NewFromInt(10)))

	// Loads return copies; mutating the copy must not leak into the store
	got.Reserve0 = decimal.NewFromInt(99)
	again, err := st.Pool(ctx, "0xabc")
	require.NoError(t, err)
	assert.True(t, again.Reserve0.Equal(decimal.NewFromInt(10)))
}

func Test_Memory_SaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	ev := &entity.PoolEvent{
		ID:      "0xtx-1",
		Pool:    "0xabc",
		Type:    entity.EventSwap,
		Amount0: decimal.NewFromInt(5),
	}
	require.NoError(t, st.SavePoolEvent(ctx, ev))
	require.NoError(t, st.SavePoolEvent(ctx, ev))

	got, err := st.PoolEvent(ctx, "0xtx-1")
	require.NoError(t, err)
	assert.True(t, got.Amount0.Equal(decimal.NewFromInt(5)))
}

func Test_Memory_PoolByTokens(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	require.NoError(t, st.SavePool(ctx, &entity.Pool{
		Address: "0xlow", Token0: "0xa", Token1: "0xb",
		TVLUSD: decimal.NewFromInt(100),
	}))
	require.NoError(t, st.SavePool(ctx, &entity.Pool{
		Address: "0xhigh", Token0: "0xb", Token1: "0xa",
		TVLUSD: decimal.NewFromInt(5000),
	}))

	// Highest TVL wins regardless of token orientation
	got, err := st.PoolByTokens(ctx, "0xa", "0xb")
	require.NoError(t, err)
	assert.Equal(t, "0xhigh", got.Address)

	_, err = st.PoolByTokens(ctx, "0xa", "0xc")
	require.ErrorIs(t, err, ErrNotFound)
}

func Test_Memory_PoolsWithGauge(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	gauge := "0xgauge"
	require.NoError(t, st.SavePool(ctx, &entity.Pool{Address: "0xwith", GaugeAddress: &gauge}))
	require.NoError(t, st.SavePool(ctx, &entity.Pool{Address: "0xwithout"}))

	pools, err := st.PoolsWithGauge(ctx)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "0xwith", pools[0].Address)
}

func Test_Memory_SyncStateKeepsMax(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	block, err := st.SyncState(ctx, "amm")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), block)

	require.NoError(t, st.SaveSyncState(ctx, "amm", 100))
	require.NoError(t, st.SaveSyncState(ctx, "amm", 50))

	block, err = st.SyncState(ctx, "amm")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), block)
}
