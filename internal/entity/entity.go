// Package entity defines the persisted objects produced by the indexer.
// Pool and Token are the source of truth; PoolEvent and the time-bucket
// aggregates are derived from them and never feed back.
//
// Keys: lowercase hex contract address for Pool and Token,
// "{txHash}-{logIndex}" for PoolEvent, "{subjectId}-{bucketIndex}" for
// hour/day buckets. All amounts are decimal-normalized token units.
package entity

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// EventType discriminates PoolEvent records.
type EventType string

const (
	EventSwap     EventType = "Swap"
	EventDeposit  EventType = "Deposit"
	EventWithdraw EventType = "Withdraw"
)

// Pool is a tracked liquidity pool. Created on the factory's pool-creation
// event and mutated by every subsequent event for that pool; never deleted.
type Pool struct {
	Address  string
	Token0   string
	Token1   string
	IsStable bool

	Reserve0    decimal.Decimal
	Reserve1    decimal.Decimal
	TotalSupply decimal.Decimal

	VolumeToken0 decimal.Decimal
	VolumeToken1 decimal.Decimal
	VolumeUSD    decimal.Decimal
	TVLUSD       decimal.Decimal
	FeePercent   decimal.Decimal

	// GaugeAddress is nil when no incentive gauge is registered for the
	// pool, which is a normal state, not a failure.
	GaugeAddress       *string
	EmissionsPerSecond decimal.Decimal
	EmissionsAPR       decimal.Decimal

	TxCount        uint64
	CreatedAtBlock uint64
	CreatedAt      int64
	UpdatedAt      int64
}

// Token is an ERC20 leg of one or more pools. Metadata is fetched once at
// first sight and treated as immutable afterwards.
type Token struct {
	Address  string
	Symbol   string
	Name     string
	Decimals int32

	// TotalLiquidity is the running sum of this token's reserves across
	// every pool containing it.
	TotalLiquidity decimal.Decimal

	// DerivedRef is the token price expressed in the reference currency;
	// PriceUSD is the last computed USD price. Zero means unknown.
	DerivedRef decimal.Decimal
	PriceUSD   decimal.Decimal

	TradeVolume    decimal.Decimal
	TradeVolumeUSD decimal.Decimal
	TxCount        uint64
}

// PoolEvent is an immutable record of a swap, deposit or withdrawal. Its id
// is globally unique per on-chain log, so replaying the same log overwrites
// the same record instead of duplicating it.
type PoolEvent struct {
	ID        string
	Pool      string
	Type      EventType
	Amount0   decimal.Decimal
	Amount1   decimal.Decimal
	AmountUSD *decimal.Decimal

	Timestamp   int64
	BlockNumber uint64
	LogIndex    uint
	TxHash      string
}

// Factory tracks protocol-wide running totals.
type Factory struct {
	Address        string
	PoolCount      uint64
	TotalVolumeUSD decimal.Decimal
	TxCount        uint64
}

// PoolHourData is an hour bucket for one pool: snapshot fields reflect the
// pool state at the last event in the bucket, volume fields accumulate.
type PoolHourData struct {
	ID            string
	Pool          string
	HourStartUnix int64

	Reserve0    decimal.Decimal
	Reserve1    decimal.Decimal
	TotalSupply decimal.Decimal

	HourlyVolumeToken0 decimal.Decimal
	HourlyVolumeToken1 decimal.Decimal
	HourlyVolumeUSD    decimal.Decimal
	HourlyTxns         uint64
}

// PoolDayData is the day-sized counterpart of PoolHourData.
type PoolDayData struct {
	ID   string
	Pool string
	Date int64

	Reserve0    decimal.Decimal
	Reserve1    decimal.Decimal
	TotalSupply decimal.Decimal

	DailyVolumeToken0 decimal.Decimal
	DailyVolumeToken1 decimal.Decimal
	DailyVolumeUSD    decimal.Decimal
	DailyTxns         uint64
}

// FactoryDayData is a protocol-wide day bucket: daily volume accumulates,
// the cumulative totals are snapshots of the factory at the last event.
type FactoryDayData struct {
	ID      string
	Factory string
	Date    int64

	DailyVolumeUSD decimal.Decimal
	TotalVolumeUSD decimal.Decimal
	DailyTxns      uint64
}

// TokenDayData is a day bucket for one token.
type TokenDayData struct {
	ID    string
	Token string
	Date  int64

	TotalLiquidity decimal.Decimal
	PriceUSD       decimal.Decimal

	DailyVolumeToken decimal.Decimal
	DailyVolumeUSD   decimal.Decimal
	DailyTxns        uint64
}

// PoolEventID builds the canonical "{txHash}-{logIndex}" identifier.
func PoolEventID(txHash string, logIndex uint) string {
	return fmt.Sprintf("%s-%d", txHash, logIndex)
}

// BucketID builds the canonical "{subjectId}-{bucketIndex}" identifier.
func BucketID(subject string, index int64) string {
	return fmt.Sprintf("%s-%d", subject, index)
}
