package prices

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerostream/indexer/internal/chain"
	"github.com/aerostream/indexer/internal/entity"
	"github.com/aerostream/indexer/internal/store"
)

const (
	refToken = "0x4200000000000000000000000000000000000006"
	usdToken = "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"
	altToken = "0x1111111111111111111111111111111111111111"
)

var errStub = errors.New("stub failure")

// stubReader serves canned oracle rates and fails everything else.
type stubReader struct {
	rates map[string]*big.Int
}

func (s *stubReader) TokenMetadata(_ context.Context, _ common.Address) (*chain.TokenMetadata, error) {
	return nil, errStub
}
func (s *stubReader) TotalSupply(_ context.Context, _ common.Address) (*big.Int, error) {
	return nil, errStub
}
func (s *stubReader) Reserves(_ context.Context, _ common.Address) (*big.Int, *big.Int, error) {
	return nil, nil, errStub
}
func (s *stubReader) PoolFee(_ context.Context, _ common.Address, _ bool) (*big.Int, error) {
	return nil, errStub
}
func (s *stubReader) GaugeForPool(_ context.Context, _ common.Address) (common.Address, error) {
	return common.Address{}, errStub
}
func (s *stubReader) RewardRate(_ context.Context, _ common.Address) (*big.Int, error) {
	return nil, errStub
}
func (s *stubReader) RateToRef(ctx context.Context, token common.Address) (*big.Int, error) {
	return s.RateToRefWithConnectors(ctx, token, nil)
}
func (s *stubReader) RateToRefWithConnectors(_ context.Context, token common.Address, _ []common.Address) (*big.Int, error) {
	rate, ok := s.rates[strings.ToLower(token.Hex())]
	if !ok {
		return nil, errStub
	}
	return rate, nil
}

func newTestResolver(st store.Store, reader chain.Reader) *Resolver {
	return NewResolver(st, reader, refToken, usdToken, nil, zerolog.Nop())
}

func Test_PriceInReference_RefTokenIsOne(t *testing.T) {
	r := newTestResolver(store.NewMemory(), &stubReader{})
	price := r.PriceInReference(context.Background(), strings.ToUpper(refToken))
	assert.True(t, price.Equal(decimal.NewFromInt(1)))
}

func Test_PriceInReference_PoolRatio(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	// 10 ref : 20000 alt, so one alt is worth 0.0005 ref
	require.NoError(t, st.SavePool(ctx, &entity.Pool{
		Address:  "0xpool",
		Token0:   refToken,
		Token1:   altToken,
		Reserve0: decimal.NewFromInt(10),
		Reserve1: decimal.NewFromInt(20000),
	}))

	r := newTestResolver(st, &stubReader{})
	price := r.PriceInReference(ctx, altToken)
	assert.True(t, price.Equal(decimal.RequireFromString("0.0005")))
}

func Test_PriceInReference_OracleFallback(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	// 6-decimal token: rate is 1e18-scaled against raw amounts, so a rate of
	// 2e30 means 2 ref per whole token
	require.NoError(t, st.SaveToken(ctx, &entity.Token{Address: altToken, Decimals: 6}))

	rate, _ := new(big.Int).SetString("2000000000000000000000000000000", 10)
	reader := &stubReader{rates: map[string]*big.Int{altToken: rate}}

	r := newTestResolver(st, reader)
	price := r.PriceInReference(ctx, altToken)
	assert.True(t, price.Equal(decimal.NewFromInt(2)))
}

func Test_PriceInReference_CachedFallback(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.SaveToken(ctx, &entity.Token{Address: altToken, Decimals: 18}))

	rate, _ := new(big.Int).SetString("3000000000000000000", 10) // 3 ref
	reader := &stubReader{rates: map[string]*big.Int{altToken: rate}}

	r := newTestResolver(st, reader)
	first := r.PriceInReference(ctx, altToken)
	require.True(t, first.Equal(decimal.NewFromInt(3)))

	// Oracle goes away; the cached value keeps serving
	delete(reader.rates, altToken)
	second := r.PriceInReference(ctx, altToken)
	assert.True(t, second.Equal(decimal.NewFromInt(3)))
}

func Test_PriceInReference_UnknownIsZero(t *testing.T) {
	r := newTestResolver(store.NewMemory(), &stubReader{})
	price := r.PriceInReference(context.Background(), altToken)
	assert.True(t, price.IsZero())
}

func Test_ReferencePriceUSD_FromAnchorPool(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	require.NoError(t, st.SavePool(ctx, &entity.Pool{
		Address:  "0xanchor",
		Token0:   refToken,
		Token1:   usdToken,
		Reserve0: decimal.NewFromInt(10),
		Reserve1: decimal.NewFromInt(20000),
	}))

	r := newTestResolver(st, &stubReader{})
	price := r.ReferencePriceUSD(ctx)
	assert.True(t, price.Equal(decimal.NewFromInt(2000)))
}

func Test_ReferencePriceUSD_OracleInversion(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.SaveToken(ctx, &entity.Token{Address: usdToken, Decimals: 18}))

	// The stable is worth 0.0005 ref, so one ref is 2000 USD
	rate, _ := new(big.Int).SetString("500000000000000", 10)
	reader := &stubReader{rates: map[string]*big.Int{usdToken: rate}}

	r := newTestResolver(st, reader)
	price := r.ReferencePriceUSD(ctx)
	assert.True(t, price.Equal(decimal.NewFromInt(2000)))
}

func Test_TokenPriceUSD_ZeroShortCircuits(t *testing.T) {
	ctx := context.Background()
	r := newTestResolver(store.NewMemory(), &stubReader{})

	// Unknown reference price keeps USD at zero even for the ref token
	assert.True(t, r.TokenPriceUSD(ctx, altToken).IsZero())
	assert.True(t, r.TokenPriceUSD(ctx, refToken).IsZero())
}

func Test_TokenPriceUSD_Combines(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	require.NoError(t, st.SavePool(ctx, &entity.Pool{
		Address:  "0xanchor",
		Token0:   refToken,
		Token1:   usdToken,
		Reserve0: decimal.NewFromInt(10),
		Reserve1: decimal.NewFromInt(20000),
	}))
	require.NoError(t, st.SavePool(ctx, &entity.Pool{
		Address:  "0xalt",
		Token0:   altToken,
		Token1:   refToken,
		Reserve0: decimal.NewFromInt(1000),
		Reserve1: decimal.NewFromInt(2),
	}))

	r := newTestResolver(st, &stubReader{})

	// alt is 0.002 ref, ref is 2000 USD, so alt is 4 USD
	assert.True(t, r.TokenPriceUSD(ctx, altToken).Equal(decimal.NewFromInt(4)))
}
