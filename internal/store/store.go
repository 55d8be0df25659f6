// Package store defines the entity store the aggregation engine runs
// against: load-by-key and full-row idempotent upsert, nothing else. The
// engine's only mutation pattern is load, mutate, save.
package store

import (
	"context"
	"errors"

	"github.com/aerostream/indexer/internal/entity"
)

// ErrNotFound is returned by every load when no entity exists for the key.
// For the aggregator an absent pool is a drop-the-event condition, not a
// failure.
var ErrNotFound = errors.New("not found")

// Store is the persistence contract consumed by the engine. Implementations
// must make Save idempotent: saving the same entity twice leaves the same
// stored state as saving it once.
type Store interface {
	Pool(ctx context.Context, address string) (*entity.Pool, error)
	SavePool(ctx context.Context, pool *entity.Pool) error

	// PoolByTokens returns the pool pairing the two tokens in either
	// orientation, preferring the one with the highest TVL when several
	// exist.
	PoolByTokens(ctx context.Context, tokenA, tokenB string) (*entity.Pool, error)

	// PoolsWithGauge lists pools that have an incentive gauge registered.
	PoolsWithGauge(ctx context.Context) ([]*entity.Pool, error)

	Token(ctx context.Context, address string) (*entity.Token, error)
	SaveToken(ctx context.Context, token *entity.Token) error

	PoolEvent(ctx context.Context, id string) (*entity.PoolEvent, error)
	SavePoolEvent(ctx context.Context, ev *entity.PoolEvent) error

	Factory(ctx context.Context, address string) (*entity.Factory, error)
	SaveFactory(ctx context.Context, f *entity.Factory) error

	PoolHourData(ctx context.Context, id string) (*entity.PoolHourData, error)
	SavePoolHourData(ctx context.Context, d *entity.PoolHourData) error

	PoolDayData(ctx context.Context, id string) (*entity.PoolDayData, error)
	SavePoolDayData(ctx context.Context, d *entity.PoolDayData) error

	TokenDayData(ctx context.Context, id string) (*entity.TokenDayData, error)
	SaveTokenDayData(ctx context.Context, d *entity.TokenDayData) error

	FactoryDayData(ctx context.Context, id string) (*entity.FactoryDayData, error)
	SaveFactoryDayData(ctx context.Context, d *entity.FactoryDayData) error

	// SyncState tracks the last processed block per module.
	SyncState(ctx context.Context, module string) (uint64, error)
	SaveSyncState(ctx context.Context, module string, block uint64) error
}
