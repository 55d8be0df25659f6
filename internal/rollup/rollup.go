// Package rollup maintains hour and day time-bucket aggregates for pools and
// tokens. Buckets are keyed "{subjectId}-{bucketIndex}" with
// bucketIndex = floor(timestamp / size), UTC-epoch aligned. Buckets are
// created lazily on the first event that touches them; empty buckets are
// never backfilled and no state carries across buckets.
package rollup

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aerostream/indexer/internal/entity"
	"github.com/aerostream/indexer/internal/store"
)

const (
	HourSeconds = 3600
	DaySeconds  = 86400
)

// HourIndex returns the hour bucket index for a unix timestamp.
func HourIndex(ts int64) int64 { return ts / HourSeconds }

// DayIndex returns the day bucket index for a unix timestamp.
func DayIndex(ts int64) int64 { return ts / DaySeconds }

// Manager owns bucket get-or-create and snapshot refresh. Callers accumulate
// volume contributions onto the returned bucket and save it through the
// manager.
type Manager struct {
	store  store.Store
	logger zerolog.Logger
}

func NewManager(st store.Store, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  st,
		logger: logger.With().Str("component", "rollup").Logger(),
	}
}

// UpdatePoolHourData gets or creates the pool's hour bucket for ts,
// refreshes the reserve/supply snapshot from the pool and increments the
// bucket's txn counter. The bucket is not saved; the caller saves after
// adding its volume contribution.
func (m *Manager) UpdatePoolHourData(ctx context.Context, pool *entity.Pool, ts int64) (*entity.PoolHourData, error) {
	index := HourIndex(ts)
	id := entity.BucketID(pool.Address, index)

	data, err := m.store.PoolHourData(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load pool hour data %s: %w", id, err)
		}
		data = &entity.PoolHourData{
			ID:            id,
			Pool:          pool.Address,
			HourStartUnix: index * HourSeconds,
		}
	}

	data.Reserve0 = pool.Reserve0
	data.Reserve1 = pool.Reserve1
	data.TotalSupply = pool.TotalSupply
	data.HourlyTxns++

	return data, nil
}

// SavePoolHourData persists an hour bucket.
func (m *Manager) SavePoolHourData(ctx context.Context, data *entity.PoolHourData) error {
	return m.store.SavePoolHourData(ctx, data)
}

// UpdatePoolDayData is the day-sized counterpart of UpdatePoolHourData.
func (m *Manager) UpdatePoolDayData(ctx context.Context, pool *entity.Pool, ts int64) (*entity.PoolDayData, error) {
	index := DayIndex(ts)
	id := entity.BucketID(pool.Address, index)

	data, err := m.store.PoolDayData(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load pool day data %s: %w", id, err)
		}
		data = &entity.PoolDayData{
			ID:   id,
			Pool: pool.Address,
			Date: index * DaySeconds,
		}
	}

	data.Reserve0 = pool.Reserve0
	data.Reserve1 = pool.Reserve1
	data.TotalSupply = pool.TotalSupply
	data.DailyTxns++

	return data, nil
}

// SavePoolDayData persists a day bucket.
func (m *Manager) SavePoolDayData(ctx context.Context, data *entity.PoolDayData) error {
	return m.store.SavePoolDayData(ctx, data)
}

// UpdateTokenDayData gets or creates the token's day bucket for ts and
// refreshes the liquidity/price snapshot.
func (m *Manager) UpdateTokenDayData(ctx context.Context, token *entity.Token, ts int64) (*entity.TokenDayData, error) {
	index := DayIndex(ts)
	id := entity.BucketID(token.Address, index)

	data, err := m.store.TokenDayData(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load token day data %s: %w", id, err)
		}
		data = &entity.TokenDayData{
			ID:    id,
			Token: token.Address,
			Date:  index * DaySeconds,
		}
	}

	data.TotalLiquidity = token.TotalLiquidity
	data.PriceUSD = token.PriceUSD
	data.DailyTxns++

	return data, nil
}

// SaveTokenDayData persists a token day bucket.
func (m *Manager) SaveTokenDayData(ctx context.Context, data *entity.TokenDayData) error {
	return m.store.SaveTokenDayData(ctx, data)
}

// UpdateFactoryDayData gets or creates the protocol-wide day bucket for ts
// and refreshes the cumulative volume snapshot from the factory.
func (m *Manager) UpdateFactoryDayData(ctx context.Context, factory *entity.Factory, ts int64) (*entity.FactoryDayData, error) {
	index := DayIndex(ts)
	id := entity.BucketID(factory.Address, index)

	data, err := m.store.FactoryDayData(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load factory day data %s: %w", id, err)
		}
		data = &entity.FactoryDayData{
			ID:      id,
			Factory: factory.Address,
			Date:    index * DaySeconds,
		}
	}

	data.TotalVolumeUSD = factory.TotalVolumeUSD
	data.DailyTxns++

	return data, nil
}

// SaveFactoryDayData persists a factory day bucket.
func (m *Manager) SaveFactoryDayData(ctx context.Context, data *entity.FactoryDayData) error {
	return m.store.SaveFactoryDayData(ctx, data)
}
