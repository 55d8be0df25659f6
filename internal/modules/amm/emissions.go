package amm

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/aerostream/indexer/internal/entity"
	"github.com/aerostream/indexer/internal/numeric"
)

// refreshGauge looks the pool's gauge up in the voter registry. A reverted
// call or the zero address both mean no gauge; the pool keeps a nil gauge
// without it counting as a failure.
func (m *Module) refreshGauge(ctx context.Context, pool *entity.Pool) {
	if m.reader == nil {
		return
	}

	gauge, err := m.reader.GaugeForPool(ctx, common.HexToAddress(pool.Address))
	if err != nil {
		m.logger.Debug().Err(err).Str("pool", pool.Address).Msg("Gauge lookup failed")
		pool.GaugeAddress = nil
		return
	}
	if gauge == (common.Address{}) {
		pool.GaugeAddress = nil
		return
	}

	addr := strings.ToLower(gauge.Hex())
	pool.GaugeAddress = &addr
}

// refreshEmissions recomputes the pool's emission rate and APR from its
// gauge. Pools without a gauge emit nothing. A failed rewardRate read keeps
// the previous figures.
func (m *Module) refreshEmissions(ctx context.Context, pool *entity.Pool) {
	if m.reader == nil {
		return
	}

	if pool.GaugeAddress == nil {
		m.refreshGauge(ctx, pool)
	}
	if pool.GaugeAddress == nil {
		pool.EmissionsPerSecond = numeric.Zero
		pool.EmissionsAPR = numeric.Zero
		return
	}

	rate, err := m.reader.RewardRate(ctx, common.HexToAddress(*pool.GaugeAddress))
	if err != nil {
		m.logger.Warn().Err(err).
			Str("pool", pool.Address).
			Str("gauge", *pool.GaugeAddress).
			Msg("Failed to read gauge reward rate, keeping previous emissions")
		return
	}

	pool.EmissionsPerSecond = numeric.FromRawAmount(rate, 18)
	yearly := pool.EmissionsPerSecond.Mul(decimal.NewFromInt(numeric.SecondsPerYear))

	if pool.TotalSupply.IsPositive() {
		apr, err := numeric.SafeDiv(yearly, pool.TotalSupply)
		if err == nil {
			pool.EmissionsAPR = apr.Mul(numeric.Hundred)
		}
	} else {
		pool.EmissionsAPR = numeric.Zero
	}
}
