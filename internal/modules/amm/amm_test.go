package amm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerostream/indexer/internal/chain"
	"github.com/aerostream/indexer/internal/entity"
	"github.com/aerostream/indexer/internal/store"
)

func testLogger() zerolog.Logger { return zerolog.Nop() }

var (
	factoryAddr = common.HexToAddress("0x00000000000000000000000000000000000000fa")
	voterAddr   = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	oracleAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	refAddr     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	usdAddr     = common.HexToAddress("0x0000000000000000000000000000000000000002")
	altAddr     = common.HexToAddress("0x0000000000000000000000000000000000000003")
	poolAddr    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	pool2Addr   = common.HexToAddress("0x00000000000000000000000000000000000000ab")
	gaugeAddr   = common.HexToAddress("0x0000000000000000000000000000000000000099")
)

var errRead = errors.New("read failed")

// fakeReader serves canned contract reads. Nil fields fail the corresponding
// call.
type fakeReader struct {
	metadata    map[common.Address]*chain.TokenMetadata
	fee         *big.Int
	gauges      map[common.Address]common.Address
	rewardRate  *big.Int
	totalSupply *big.Int
}

func (f *fakeReader) TokenMetadata(_ context.Context, token common.Address) (*chain.TokenMetadata, error) {
	md, ok := f.metadata[token]
	if !ok {
		return nil, errRead
	}
	return md, nil
}

func (f *fakeReader) TotalSupply(_ context.Context, _ common.Address) (*big.Int, error) {
	if f.totalSupply == nil {
		return nil, errRead
	}
	return f.totalSupply, nil
}

func (f *fakeReader) Reserves(_ context.Context, _ common.Address) (*big.Int, *big.Int, error) {
	return nil, nil, errRead
}

func (f *fakeReader) PoolFee(_ context.Context, _ common.Address, _ bool) (*big.Int, error) {
	if f.fee == nil {
		return nil, errRead
	}
	return f.fee, nil
}

func (f *fakeReader) GaugeForPool(_ context.Context, pool common.Address) (common.Address, error) {
	if f.gauges == nil {
		return common.Address{}, nil
	}
	return f.gauges[pool], nil
}

func (f *fakeReader) RewardRate(_ context.Context, _ common.Address) (*big.Int, error) {
	if f.rewardRate == nil {
		return nil, errRead
	}
	return f.rewardRate, nil
}

func (f *fakeReader) RateToRef(_ context.Context, _ common.Address) (*big.Int, error) {
	return nil, errRead
}

func (f *fakeReader) RateToRefWithConnectors(_ context.Context, _ common.Address, _ []common.Address) (*big.Int, error) {
	return nil, errRead
}

func writeManifest(t *testing.T, strategy string) string {
	t.Helper()
	manifest := fmt.Sprintf(`name: aerodrome-amm
version: 1.0.0
dataSources:
  - kind: ethereum/contract
    name: PoolFactory
    network: base
    source:
      address: "%s"
      abi: PoolFactory
      startBlock: 100
    mapping:
      kind: ethereum/events
      entities:
        - Pool
      eventHandlers:
        - event: PoolCreated(indexed address,indexed address,indexed bool,address,uint256)
          handler: handlePoolCreated
context:
  factoryAddress: "%s"
  voterAddress: "%s"
  oracleAddress: "%s"
  refToken: "%s"
  usdToken: "%s"
  reserveStrategy: %s
`, factoryAddr.Hex(), factoryAddr.Hex(), voterAddr.Hex(), oracleAddr.Hex(), refAddr.Hex(), usdAddr.Hex(), strategy)

	path := filepath.Join(t.TempDir(), "aerodrome.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))
	return path
}

func defaultReader() *fakeReader {
	weth, _ := new(big.Int).SetString("100000000000000000000", 10) // 100 LP tokens
	return &fakeReader{
		metadata: map[common.Address]*chain.TokenMetadata{
			refAddr: {Name: "Wrapped Ether", Symbol: "WETH", Decimals: 18},
			usdAddr: {Name: "USD Coin", Symbol: "USDC", Decimals: 6},
			altAddr: {Name: "Aerodrome", Symbol: "AERO", Decimals: 18},
		},
		fee:         big.NewInt(30),
		totalSupply: weth,
	}
}

func newTestModule(t *testing.T, st store.Store, reader chain.Reader, strategy string) *Module {
	t.Helper()
	m, err := New(writeManifest(t, strategy), testLogger())
	require.NoError(t, err)
	m.SetReader(reader)
	require.NoError(t, m.Initialize(context.Background(), st))
	m.timestampFor = func(context.Context, uint64) int64 { return 1_700_000_000 }
	return m
}

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(a.Bytes(), 32))
}

func boolTopic(b bool) common.Hash {
	if b {
		return common.BigToHash(big.NewInt(1))
	}
	return common.Hash{}
}

func packWords(vals ...*big.Int) []byte {
	out := make([]byte, 0, len(vals)*32)
	for _, v := range vals {
		out = append(out, common.LeftPadBytes(v.Bytes(), 32)...)
	}
	return out
}

func eth(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func usdc(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), big.NewInt(1_000_000))
}

func poolCreatedLogFor(m *Module, token0, token1, pool common.Address, block uint64, logIndex uint, tx byte) types.Log {
	data := packWords(new(big.Int).SetBytes(pool.Bytes()), big.NewInt(1))
	return types.Log{
		Address: factoryAddr,
		Topics: []common.Hash{
			m.factoryABI.Events["PoolCreated"].ID,
			addrTopic(token0),
			addrTopic(token1),
			boolTopic(false),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.HexToHash(fmt.Sprintf("0x%02x", tx)),
		Index:       logIndex,
	}
}

func poolCreatedLog(m *Module, block uint64, logIndex uint) types.Log {
	return poolCreatedLogFor(m, refAddr, usdAddr, poolAddr, block, logIndex, 0x01)
}

func swapLogFor(m *Module, pool common.Address, in0, in1, out0, out1 *big.Int, block uint64, logIndex uint, txHash common.Hash) types.Log {
	return types.Log{
		Address: pool,
		Topics: []common.Hash{
			m.poolABI.Events["Swap"].ID,
			addrTopic(common.HexToAddress("0xbeef")),
			addrTopic(common.HexToAddress("0xcafe")),
		},
		Data:        packWords(in0, in1, out0, out1),
		BlockNumber: block,
		TxHash:      txHash,
		Index:       logIndex,
	}
}

func swapLog(m *Module, in0, in1, out0, out1 *big.Int, block uint64, logIndex uint, tx byte) types.Log {
	return swapLogFor(m, poolAddr, in0, in1, out0, out1, block, logIndex, common.HexToHash(fmt.Sprintf("0x%02x", tx)))
}

func mintLogFor(m *Module, pool common.Address, amount0, amount1 *big.Int, block uint64, logIndex uint, tx byte) types.Log {
	return types.Log{
		Address: pool,
		Topics: []common.Hash{
			m.poolABI.Events["Mint"].ID,
			addrTopic(common.HexToAddress("0xbeef")),
		},
		Data:        packWords(amount0, amount1),
		BlockNumber: block,
		TxHash:      common.HexToHash(fmt.Sprintf("0x%02x", tx)),
		Index:       logIndex,
	}
}

func mintLog(m *Module, amount0, amount1 *big.Int, block uint64, logIndex uint, tx byte) types.Log {
	return mintLogFor(m, poolAddr, amount0, amount1, block, logIndex, tx)
}

func burnLog(m *Module, amount0, amount1 *big.Int, block uint64, logIndex uint, tx byte) types.Log {
	return types.Log{
		Address: poolAddr,
		Topics: []common.Hash{
			m.poolABI.Events["Burn"].ID,
			addrTopic(common.HexToAddress("0xbeef")),
			addrTopic(common.HexToAddress("0xcafe")),
		},
		Data:        packWords(amount0, amount1),
		BlockNumber: block,
		TxHash:      common.HexToHash(fmt.Sprintf("0x%02x", tx)),
		Index:       logIndex,
	}
}

func syncLog(m *Module, reserve0, reserve1 *big.Int, block uint64, logIndex uint, tx byte) types.Log {
	return types.Log{
		Address:     poolAddr,
		Topics:      []common.Hash{m.poolABI.Events["Sync"].ID},
		Data:        packWords(reserve0, reserve1),
		BlockNumber: block,
		TxHash:      common.HexToHash(fmt.Sprintf("0x%02x", tx)),
		Index:       logIndex,
	}
}

func Test_New_RejectsUnknownStrategy(t *testing.T) {
	_, err := New(writeManifest(t, "block-replay"), testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserve strategy")
}

func Test_PoolCreated(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := newTestModule(t, st, defaultReader(), StrategyEventDelta)

	log := poolCreatedLog(m, 200, 0)
	require.NoError(t, m.HandleEvent(ctx, &log))

	pool, err := st.Pool(ctx, strings.ToLower(poolAddr.Hex()))
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(refAddr.Hex()), pool.Token0)
	assert.Equal(t, strings.ToLower(usdAddr.Hex()), pool.Token1)
	assert.False(t, pool.IsStable)
	assert.True(t, pool.Reserve0.IsZero())
	assert.True(t, pool.FeePercent.Equal(decimal.RequireFromString("0.3")))
	assert.Nil(t, pool.GaugeAddress)
	assert.Equal(t, uint64(200), pool.CreatedAtBlock)

	token0, err := st.Token(ctx, pool.Token0)
	require.NoError(t, err)
	assert.Equal(t, "WETH", token0.Symbol)
	assert.Equal(t, int32(18), token0.Decimals)

	token1, err := st.Token(ctx, pool.Token1)
	require.NoError(t, err)
	assert.Equal(t, "USDC", token1.Symbol)
	assert.Equal(t, int32(6), token1.Decimals)

	factory, err := st.Factory(ctx, strings.ToLower(factoryAddr.Hex()))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), factory.PoolCount)

	// Re-processing the creation log does not double count
	require.NoError(t, m.HandleEvent(ctx, &log))
	factory, err = st.Factory(ctx, strings.ToLower(factoryAddr.Hex()))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), factory.PoolCount)
}

func Test_PoolCreated_FeeReadFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	reader := defaultReader()
	reader.fee = nil
	m := newTestModule(t, st, reader, StrategyEventDelta)

	log := poolCreatedLog(m, 200, 0)
	require.NoError(t, m.HandleEvent(ctx, &log))

	pool, err := st.Pool(ctx, strings.ToLower(poolAddr.Hex()))
	require.NoError(t, err)
	assert.True(t, pool.FeePercent.IsZero())
}

func Test_PoolCreated_HostileTokenMetadata(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	reader := defaultReader()
	delete(reader.metadata, usdAddr)
	m := newTestModule(t, st, reader, StrategyEventDelta)

	log := poolCreatedLog(m, 200, 0)
	require.NoError(t, m.HandleEvent(ctx, &log))

	token, err := st.Token(ctx, strings.ToLower(usdAddr.Hex()))
	require.NoError(t, err)
	assert.Equal(t, "Unknown", token.Name)
	assert.Equal(t, "???", token.Symbol)
	assert.Equal(t, int32(18), token.Decimals)
}

func Test_Mint(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := newTestModule(t, st, defaultReader(), StrategyEventDelta)

	created := poolCreatedLog(m, 200, 0)
	require.NoError(t, m.HandleEvent(ctx, &created))

	mint := mintLog(m, eth(10), usdc(20000), 201, 1, 0x02)
	require.NoError(t, m.HandleEvent(ctx, &mint))

	pool, err := st.Pool(ctx, strings.ToLower(poolAddr.Hex()))
	require.NoError(t, err)
	assert.True(t, pool.Reserve0.Equal(decimal.NewFromInt(10)))
	assert.True(t, pool.Reserve1.Equal(decimal.NewFromInt(20000)))
	assert.True(t, pool.TotalSupply.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, uint64(1), pool.TxCount)

	token0, err := st.Token(ctx, pool.Token0)
	require.NoError(t, err)
	assert.True(t, token0.TotalLiquidity.Equal(decimal.NewFromInt(10)))

	ev, err := st.PoolEvent(ctx, entity.PoolEventID(mint.TxHash.Hex(), mint.Index))
	require.NoError(t, err)
	assert.Equal(t, entity.EventDeposit, ev.Type)
	assert.True(t, ev.Amount0.Equal(decimal.NewFromInt(10)))
	// First deposit lands before any price is known
	assert.Nil(t, ev.AmountUSD)
}

func Test_Swap_EventDelta(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := newTestModule(t, st, defaultReader(), StrategyEventDelta)

	created := poolCreatedLog(m, 200, 0)
	require.NoError(t, m.HandleEvent(ctx, &created))
	mint := mintLog(m, eth(10), usdc(20000), 201, 1, 0x02)
	require.NoError(t, m.HandleEvent(ctx, &mint))

	// 1 WETH in, 1900 USDC out against 10/20000 reserves
	swap := swapLog(m, eth(1), big.NewInt(0), big.NewInt(0), usdc(1900), 202, 2, 0x03)
	require.NoError(t, m.HandleEvent(ctx, &swap))

	poolID := strings.ToLower(poolAddr.Hex())
	pool, err := st.Pool(ctx, poolID)
	require.NoError(t, err)
	assert.True(t, pool.Reserve0.Equal(decimal.NewFromInt(11)))
	assert.True(t, pool.Reserve1.Equal(decimal.NewFromInt(18100)))
	assert.True(t, pool.VolumeToken0.Equal(decimal.NewFromInt(1)))
	assert.True(t, pool.VolumeToken1.Equal(decimal.NewFromInt(1900)))

	// ref = 2000 USD from the 10/20000 anchor, stable = 1 USD:
	// tracked volume 1*2000 + 1900*1
	assert.True(t, pool.VolumeUSD.Equal(decimal.NewFromInt(3900)))
	// TVL from post-swap reserves: 11*2000 + 18100*1
	assert.True(t, pool.TVLUSD.Equal(decimal.NewFromInt(40100)))
	assert.Equal(t, uint64(2), pool.TxCount)

	token0, err := st.Token(ctx, pool.Token0)
	require.NoError(t, err)
	assert.True(t, token0.TradeVolume.Equal(decimal.NewFromInt(1)))
	assert.True(t, token0.TradeVolumeUSD.Equal(decimal.NewFromInt(2000)))
	assert.True(t, token0.PriceUSD.Equal(decimal.NewFromInt(2000)))

	token1, err := st.Token(ctx, pool.Token1)
	require.NoError(t, err)
	assert.True(t, token1.TradeVolume.Equal(decimal.NewFromInt(1900)))
	assert.True(t, token1.PriceUSD.Equal(decimal.NewFromInt(1)))

	factory, err := st.Factory(ctx, strings.ToLower(factoryAddr.Hex()))
	require.NoError(t, err)
	assert.True(t, factory.TotalVolumeUSD.Equal(decimal.NewFromInt(3900)))

	ev, err := st.PoolEvent(ctx, entity.PoolEventID(swap.TxHash.Hex(), swap.Index))
	require.NoError(t, err)
	assert.Equal(t, entity.EventSwap, ev.Type)
	require.NotNil(t, ev.AmountUSD)
	assert.True(t, ev.AmountUSD.Equal(decimal.NewFromInt(3900)))

	// Hour bucket: mint + swap in the same hour, swap volume only
	hourID := entity.BucketID(poolID, 1_700_000_000/3600)
	hour, err := st.PoolHourData(ctx, hourID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), hour.HourlyTxns)
	assert.True(t, hour.HourlyVolumeUSD.Equal(decimal.NewFromInt(3900)))
	assert.True(t, hour.Reserve0.Equal(decimal.NewFromInt(11)))

	dayID := entity.BucketID(poolID, 1_700_000_000/86400)
	day, err := st.PoolDayData(ctx, dayID)
	require.NoError(t, err)
	assert.True(t, day.DailyVolumeToken0.Equal(decimal.NewFromInt(1)))

	tokenDayID := entity.BucketID(pool.Token0, 1_700_000_000/86400)
	tokenDay, err := st.TokenDayData(ctx, tokenDayID)
	require.NoError(t, err)
	assert.True(t, tokenDay.DailyVolumeToken.Equal(decimal.NewFromInt(1)))
	assert.True(t, tokenDay.DailyVolumeUSD.Equal(decimal.NewFromInt(2000)))

	// Protocol day bucket: mint + swap txns, swap volume only
	factoryDayID := entity.BucketID(strings.ToLower(factoryAddr.Hex()), 1_700_000_000/86400)
	factoryDay, err := st.FactoryDayData(ctx, factoryDayID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), factoryDay.DailyTxns)
	assert.True(t, factoryDay.DailyVolumeUSD.Equal(decimal.NewFromInt(3900)))
	assert.True(t, factoryDay.TotalVolumeUSD.Equal(decimal.NewFromInt(3900)))

	block, err := m.GetSyncState(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(202), block)
}

func Test_Swap_ReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := newTestModule(t, st, defaultReader(), StrategyEventDelta)

	created := poolCreatedLog(m, 200, 0)
	require.NoError(t, m.HandleEvent(ctx, &created))
	mint := mintLog(m, eth(10), usdc(20000), 201, 1, 0x02)
	require.NoError(t, m.HandleEvent(ctx, &mint))

	swap := swapLog(m, eth(1), big.NewInt(0), big.NewInt(0), usdc(1900), 202, 2, 0x03)
	require.NoError(t, m.HandleEvent(ctx, &swap))
	require.NoError(t, m.HandleEvent(ctx, &swap))

	pool, err := st.Pool(ctx, strings.ToLower(poolAddr.Hex()))
	require.NoError(t, err)
	assert.True(t, pool.VolumeUSD.Equal(decimal.NewFromInt(3900)))
	assert.True(t, pool.Reserve0.Equal(decimal.NewFromInt(11)))
	assert.Equal(t, uint64(2), pool.TxCount)
}

func Test_Swap_UnknownPoolIsDropped(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := newTestModule(t, st, defaultReader(), StrategyEventDelta)

	swap := swapLog(m, eth(1), big.NewInt(0), big.NewInt(0), usdc(1900), 202, 2, 0x03)
	require.NoError(t, m.HandleEvent(ctx, &swap))

	_, err := st.PoolEvent(ctx, entity.PoolEventID(swap.TxHash.Hex(), swap.Index))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func Test_Swap_ConcurrentPoolsSharedToken(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := newTestModule(t, st, defaultReader(), StrategyEventDelta)

	created1 := poolCreatedLog(m, 200, 0)
	require.NoError(t, m.HandleEvent(ctx, &created1))
	created2 := poolCreatedLogFor(m, refAddr, altAddr, pool2Addr, 200, 1, 0x04)
	require.NoError(t, m.HandleEvent(ctx, &created2))

	mint1 := mintLog(m, eth(10), usdc(20000), 201, 2, 0x05)
	require.NoError(t, m.HandleEvent(ctx, &mint1))
	mint2 := mintLogFor(m, pool2Addr, eth(10), eth(20000), 201, 3, 0x06)
	require.NoError(t, m.HandleEvent(ctx, &mint2))

	// Both pools trade the shared token from separate goroutines, the way
	// backfill shards pools. Every swap must land on the token's counters.
	const rounds = 25
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			log := swapLogFor(m, poolAddr, eth(1), big.NewInt(0), big.NewInt(0), usdc(100),
				210+uint64(i), 0, common.HexToHash(fmt.Sprintf("0x1a%02x", i)))
			assert.NoError(t, m.HandleEvent(ctx, &log))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			log := swapLogFor(m, pool2Addr, eth(1), big.NewInt(0), big.NewInt(0), eth(100),
				210+uint64(i), 1, common.HexToHash(fmt.Sprintf("0x2b%02x", i)))
			assert.NoError(t, m.HandleEvent(ctx, &log))
		}
	}()
	wg.Wait()

	ref, err := st.Token(ctx, strings.ToLower(refAddr.Hex()))
	require.NoError(t, err)
	// Two mints plus every swap from both pools
	assert.Equal(t, uint64(2+2*rounds), ref.TxCount)
	assert.True(t, ref.TradeVolume.Equal(decimal.NewFromInt(2*rounds)))

	factory, err := st.Factory(ctx, strings.ToLower(factoryAddr.Hex()))
	require.NoError(t, err)
	assert.Equal(t, uint64(2+2*rounds), factory.TxCount)
}

func Test_Swap_OutflowExceedingReserveClampsToZero(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := newTestModule(t, st, defaultReader(), StrategyEventDelta)

	created := poolCreatedLog(m, 200, 0)
	require.NoError(t, m.HandleEvent(ctx, &created))
	mint := mintLog(m, eth(10), usdc(20000), 201, 1, 0x02)
	require.NoError(t, m.HandleEvent(ctx, &mint))

	// Outflow larger than the recorded reserve floors at zero instead of
	// going negative
	swap := swapLog(m, big.NewInt(0), usdc(1000), eth(50), big.NewInt(0), 202, 2, 0x03)
	require.NoError(t, m.HandleEvent(ctx, &swap))

	pool, err := st.Pool(ctx, strings.ToLower(poolAddr.Hex()))
	require.NoError(t, err)
	assert.True(t, pool.Reserve0.IsZero())
	assert.True(t, pool.Reserve1.Equal(decimal.NewFromInt(21000)))
}

func Test_MissingTimestampSkipsBuckets(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := newTestModule(t, st, defaultReader(), StrategyEventDelta)

	created := poolCreatedLog(m, 200, 0)
	require.NoError(t, m.HandleEvent(ctx, &created))

	// A header lookup miss yields timestamp zero for later blocks
	m.timestampFor = func(context.Context, uint64) int64 { return 0 }
	mint := mintLog(m, eth(10), usdc(20000), 201, 1, 0x02)
	require.NoError(t, m.HandleEvent(ctx, &mint))

	pool, err := st.Pool(ctx, strings.ToLower(poolAddr.Hex()))
	require.NoError(t, err)
	assert.True(t, pool.Reserve0.Equal(decimal.NewFromInt(10)))
	// The creation timestamp is kept rather than stamping epoch zero
	assert.Equal(t, int64(1_700_000_000), pool.UpdatedAt)

	// No epoch-zero buckets may appear
	_, err = st.PoolHourData(ctx, entity.BucketID(pool.Address, 0))
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.PoolDayData(ctx, entity.BucketID(pool.Address, 0))
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.TokenDayData(ctx, entity.BucketID(pool.Token0, 0))
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.FactoryDayData(ctx, entity.BucketID(strings.ToLower(factoryAddr.Hex()), 0))
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The deposit record itself still lands
	ev, err := st.PoolEvent(ctx, entity.PoolEventID(mint.TxHash.Hex(), mint.Index))
	require.NoError(t, err)
	assert.Equal(t, entity.EventDeposit, ev.Type)
}

func Test_Burn_GuardSkipsReserveUpdate(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := newTestModule(t, st, defaultReader(), StrategyEventDelta)

	created := poolCreatedLog(m, 200, 0)
	require.NoError(t, m.HandleEvent(ctx, &created))
	mint := mintLog(m, eth(10), usdc(20000), 201, 1, 0x02)
	require.NoError(t, m.HandleEvent(ctx, &mint))

	// amount0 exceeds the recorded reserve; both subtractions are skipped
	burn := burnLog(m, eth(50), usdc(1000), 202, 2, 0x03)
	require.NoError(t, m.HandleEvent(ctx, &burn))

	pool, err := st.Pool(ctx, strings.ToLower(poolAddr.Hex()))
	require.NoError(t, err)
	assert.True(t, pool.Reserve0.Equal(decimal.NewFromInt(10)))
	assert.True(t, pool.Reserve1.Equal(decimal.NewFromInt(20000)))

	// Token liquidity is skipped along with the reserves; an overdrawn burn
	// must not drain either side of the books
	token0, err := st.Token(ctx, pool.Token0)
	require.NoError(t, err)
	assert.True(t, token0.TotalLiquidity.Equal(decimal.NewFromInt(10)))
	token1, err := st.Token(ctx, pool.Token1)
	require.NoError(t, err)
	assert.True(t, token1.TotalLiquidity.Equal(decimal.NewFromInt(20000)))

	// The withdrawal record still lands
	ev, err := st.PoolEvent(ctx, entity.PoolEventID(burn.TxHash.Hex(), burn.Index))
	require.NoError(t, err)
	assert.Equal(t, entity.EventWithdraw, ev.Type)
	assert.True(t, ev.Amount0.Equal(decimal.NewFromInt(50)))
}

func Test_Burn(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := newTestModule(t, st, defaultReader(), StrategyEventDelta)

	created := poolCreatedLog(m, 200, 0)
	require.NoError(t, m.HandleEvent(ctx, &created))
	mint := mintLog(m, eth(10), usdc(20000), 201, 1, 0x02)
	require.NoError(t, m.HandleEvent(ctx, &mint))

	burn := burnLog(m, eth(1), usdc(2000), 202, 2, 0x03)
	require.NoError(t, m.HandleEvent(ctx, &burn))

	pool, err := st.Pool(ctx, strings.ToLower(poolAddr.Hex()))
	require.NoError(t, err)
	assert.True(t, pool.Reserve0.Equal(decimal.NewFromInt(9)))
	assert.True(t, pool.Reserve1.Equal(decimal.NewFromInt(18000)))

	token0, err := st.Token(ctx, pool.Token0)
	require.NoError(t, err)
	assert.True(t, token0.TotalLiquidity.Equal(decimal.NewFromInt(9)))
}

func Test_Sync_SnapshotStrategy(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := newTestModule(t, st, defaultReader(), StrategySyncSnapshot)

	created := poolCreatedLog(m, 200, 0)
	require.NoError(t, m.HandleEvent(ctx, &created))
	mint := mintLog(m, eth(10), usdc(20000), 201, 1, 0x02)
	require.NoError(t, m.HandleEvent(ctx, &mint))

	// Under sync-snapshot a swap leaves reserves alone
	swap := swapLog(m, eth(1), big.NewInt(0), big.NewInt(0), usdc(1900), 202, 2, 0x03)
	require.NoError(t, m.HandleEvent(ctx, &swap))

	pool, err := st.Pool(ctx, strings.ToLower(poolAddr.Hex()))
	require.NoError(t, err)
	assert.True(t, pool.Reserve0.Equal(decimal.NewFromInt(10)))
	assert.True(t, pool.Reserve1.Equal(decimal.NewFromInt(20000)))

	// The Sync emitted in the same transaction is authoritative
	snapshot := syncLog(m, eth(11), usdc(18100), 202, 3, 0x03)
	require.NoError(t, m.HandleEvent(ctx, &snapshot))

	pool, err = st.Pool(ctx, strings.ToLower(poolAddr.Hex()))
	require.NoError(t, err)
	assert.True(t, pool.Reserve0.Equal(decimal.NewFromInt(11)))
	assert.True(t, pool.Reserve1.Equal(decimal.NewFromInt(18100)))

	// Token liquidity follows the reserve delta
	token0, err := st.Token(ctx, pool.Token0)
	require.NoError(t, err)
	assert.True(t, token0.TotalLiquidity.Equal(decimal.NewFromInt(11)))
	token1, err := st.Token(ctx, pool.Token1)
	require.NoError(t, err)
	assert.True(t, token1.TotalLiquidity.Equal(decimal.NewFromInt(18100)))
}

func Test_Sync_IgnoredUnderEventDelta(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := newTestModule(t, st, defaultReader(), StrategyEventDelta)

	created := poolCreatedLog(m, 200, 0)
	require.NoError(t, m.HandleEvent(ctx, &created))
	mint := mintLog(m, eth(10), usdc(20000), 201, 1, 0x02)
	require.NoError(t, m.HandleEvent(ctx, &mint))

	snapshot := syncLog(m, eth(999), usdc(999), 202, 2, 0x03)
	require.NoError(t, m.HandleEvent(ctx, &snapshot))

	pool, err := st.Pool(ctx, strings.ToLower(poolAddr.Hex()))
	require.NoError(t, err)
	assert.True(t, pool.Reserve0.Equal(decimal.NewFromInt(10)))
	assert.True(t, pool.Reserve1.Equal(decimal.NewFromInt(20000)))
}

func Test_RefreshEmissions(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	reader := defaultReader()
	reader.gauges = map[common.Address]common.Address{poolAddr: gaugeAddr}
	reader.rewardRate = eth(1)
	m := newTestModule(t, st, reader, StrategyEventDelta)

	pool := &entity.Pool{
		Address:     strings.ToLower(poolAddr.Hex()),
		TotalSupply: decimal.NewFromInt(63_072_000),
	}
	m.refreshEmissions(ctx, pool)

	require.NotNil(t, pool.GaugeAddress)
	assert.Equal(t, strings.ToLower(gaugeAddr.Hex()), *pool.GaugeAddress)
	assert.True(t, pool.EmissionsPerSecond.Equal(decimal.NewFromInt(1)))
	// 31,536,000 yearly over 63,072,000 supply is 50%
	assert.True(t, pool.EmissionsAPR.Equal(decimal.NewFromInt(50)))
}

func Test_RefreshEmissions_ZeroSupply(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	reader := defaultReader()
	reader.gauges = map[common.Address]common.Address{poolAddr: gaugeAddr}
	reader.rewardRate = eth(1)
	m := newTestModule(t, st, reader, StrategyEventDelta)

	pool := &entity.Pool{Address: strings.ToLower(poolAddr.Hex())}
	m.refreshEmissions(ctx, pool)

	assert.True(t, pool.EmissionsPerSecond.Equal(decimal.NewFromInt(1)))
	assert.True(t, pool.EmissionsAPR.IsZero())
}

func Test_RefreshEmissions_NoGauge(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := newTestModule(t, st, defaultReader(), StrategyEventDelta)

	pool := &entity.Pool{Address: strings.ToLower(poolAddr.Hex())}
	m.refreshEmissions(ctx, pool)

	assert.Nil(t, pool.GaugeAddress)
	assert.True(t, pool.EmissionsPerSecond.IsZero())
	assert.True(t, pool.EmissionsAPR.IsZero())
}

func Test_GetEventFilters(t *testing.T) {
	st := store.NewMemory()
	m := newTestModule(t, st, defaultReader(), StrategyEventDelta)

	filters := m.GetEventFilters()
	require.Len(t, filters, 5)
	assert.Equal(t, factoryAddr.Hex(), filters[0].Address)
	for _, f := range filters[1:] {
		assert.Empty(t, f.Address)
		assert.NotEmpty(t, f.Topic0)
	}
}
