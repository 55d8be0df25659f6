// Package prices resolves token prices in the reference currency and USD.
// Resolution walks a fallback chain: direct pool ratio from the store, the
// offchain oracle, the last cached value, then zero. Zero is the
// unknown-price sentinel; resolution never returns an error.
package prices

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aerostream/indexer/internal/chain"
	"github.com/aerostream/indexer/internal/numeric"
	"github.com/aerostream/indexer/internal/store"
)

// Resolver prices tokens against a reference token (typically the wrapped
// native token) and derives USD through a USD-stable anchor pool.
type Resolver struct {
	store      store.Store
	reader     chain.Reader
	refToken   string
	usdToken   string
	connectors []common.Address
	logger     zerolog.Logger

	mu     sync.RWMutex
	cache  map[string]decimal.Decimal
	refUSD decimal.Decimal
}

// NewResolver builds a resolver anchored to refToken and usdToken, both
// lowercase hex addresses. Oracle quotes route through connectors.
func NewResolver(st store.Store, reader chain.Reader, refToken, usdToken string, connectors []string, logger zerolog.Logger) *Resolver {
	conns := make([]common.Address, 0, len(connectors))
	for _, c := range connectors {
		conns = append(conns, common.HexToAddress(c))
	}
	return &Resolver{
		store:      st,
		reader:     reader,
		refToken:   strings.ToLower(refToken),
		usdToken:   strings.ToLower(usdToken),
		connectors: conns,
		logger:     logger.With().Str("component", "prices").Logger(),
		cache:      make(map[string]decimal.Decimal, 256),
	}
}

// PriceInReference returns the token's price expressed in the reference
// token. Zero means unknown.
func (r *Resolver) PriceInReference(ctx context.Context, token string) decimal.Decimal {
	addr := strings.ToLower(token)
	if addr == r.refToken {
		return numeric.One
	}

	if price, ok := r.priceFromPool(ctx, addr, r.refToken); ok {
		r.cachePrice(addr, price)
		return price
	}

	if price, ok := r.priceFromOracle(ctx, addr); ok {
		r.cachePrice(addr, price)
		return price
	}

	r.mu.RLock()
	cached, ok := r.cache[addr]
	r.mu.RUnlock()
	if ok && !cached.IsZero() {
		return cached
	}

	return decimal.Zero
}

// ReferencePriceUSD returns the reference token's USD price. Zero means
// unknown.
func (r *Resolver) ReferencePriceUSD(ctx context.Context) decimal.Decimal {
	// The reference/USD-stable pool quotes USD per reference directly.
	if price, ok := r.priceFromPool(ctx, r.refToken, r.usdToken); ok {
		r.mu.Lock()
		r.refUSD = price
		r.mu.Unlock()
		return price
	}

	// Oracle quotes the stable in reference units; invert for USD per ref.
	if usdInRef, ok := r.priceFromOracle(ctx, r.usdToken); ok && !usdInRef.IsZero() {
		price, err := numeric.SafeDiv(numeric.One, usdInRef)
		if err == nil && !price.IsZero() {
			r.mu.Lock()
			r.refUSD = price
			r.mu.Unlock()
			return price
		}
	}

	r.mu.RLock()
	cached := r.refUSD
	r.mu.RUnlock()
	if !cached.IsZero() {
		return cached
	}

	return decimal.Zero
}

// TokenPriceUSD combines the reference price with the reference/USD rate.
func (r *Resolver) TokenPriceUSD(ctx context.Context, token string) decimal.Decimal {
	priceRef := r.PriceInReference(ctx, token)
	if priceRef.IsZero() {
		return decimal.Zero
	}
	refUSD := r.ReferencePriceUSD(ctx)
	if refUSD.IsZero() {
		return decimal.Zero
	}
	return priceRef.Mul(refUSD)
}

// priceFromPool derives quote-per-base from the highest-TVL pool pairing the
// two tokens. Requires non-zero reserves on both sides.
func (r *Resolver) priceFromPool(ctx context.Context, base, quote string) (decimal.Decimal, bool) {
	pool, err := r.store.PoolByTokens(ctx, base, quote)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn().Err(err).Str("token", base).Msg("Failed to look up pricing pool")
		}
		return decimal.Zero, false
	}

	var reserveBase, reserveQuote decimal.Decimal
	if pool.Token0 == base {
		reserveBase, reserveQuote = pool.Reserve0, pool.Reserve1
	} else {
		reserveBase, reserveQuote = pool.Reserve1, pool.Reserve0
	}
	if reserveBase.IsZero() || reserveQuote.IsZero() {
		return decimal.Zero, false
	}

	price, err := numeric.SafeDiv(reserveQuote, reserveBase)
	if err != nil || price.IsZero() {
		return decimal.Zero, false
	}
	return price, true
}

// priceFromOracle quotes the token in reference units via the offchain
// oracle. The raw rate is 1e18-scaled against raw token amounts, so the
// human-unit price is rate * 10^(decimals-18) / 1e18.
func (r *Resolver) priceFromOracle(ctx context.Context, token string) (decimal.Decimal, bool) {
	if r.reader == nil {
		return decimal.Zero, false
	}

	rate, err := r.reader.RateToRefWithConnectors(ctx, common.HexToAddress(token), r.connectors)
	if err != nil {
		r.logger.Debug().Err(err).Str("token", token).Msg("Oracle rate unavailable")
		return decimal.Zero, false
	}

	decimals := int32(18)
	if t, err := r.store.Token(ctx, token); err == nil {
		decimals = t.Decimals
	}

	price := numeric.FromRawAmount(rate, 18).Shift(decimals - 18)
	if price.IsZero() {
		return decimal.Zero, false
	}
	return price, true
}

func (r *Resolver) cachePrice(token string, price decimal.Decimal) {
	if price.IsZero() {
		return
	}
	r.mu.Lock()
	r.cache[token] = price
	r.mu.Unlock()
}
