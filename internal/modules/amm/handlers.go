package amm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/aerostream/indexer/internal/entity"
	"github.com/aerostream/indexer/internal/modules/core"
	"github.com/aerostream/indexer/internal/numeric"
	"github.com/aerostream/indexer/internal/store"
)

// registerEventHandlers wires topic hashes to handlers
func (m *Module) registerEventHandlers() {
	m.handlers[m.factoryABI.Events["PoolCreated"].ID] = handlePoolCreated
	m.handlers[m.poolABI.Events["Swap"].ID] = handleSwap
	m.handlers[m.poolABI.Events["Mint"].ID] = handleMint
	m.handlers[m.poolABI.Events["Burn"].ID] = handleBurn
	m.handlers[m.poolABI.Events["Sync"].ID] = handleSync
}

func addrArg(event *core.ParsedEvent, name string) (common.Address, error) {
	v, ok := event.Args[name].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("event %s: missing address arg %q", event.EventName, name)
	}
	return v, nil
}

func bigArg(event *core.ParsedEvent, name string) (*big.Int, error) {
	v, ok := event.Args[name].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("event %s: missing uint256 arg %q", event.EventName, name)
	}
	return v, nil
}

func eventTime(event *core.ParsedEvent) int64 {
	if event.Timestamp == nil {
		return 0
	}
	return event.Timestamp.Int64()
}

// handlePoolCreated registers a new pool and its tokens. Re-processing an
// already known pool only re-registers it with the parser.
func handlePoolCreated(ctx context.Context, m *Module, event *core.ParsedEvent) error {
	token0Addr, err := addrArg(event, "token0")
	if err != nil {
		return err
	}
	token1Addr, err := addrArg(event, "token1")
	if err != nil {
		return err
	}
	poolAddr, err := addrArg(event, "pool")
	if err != nil {
		return err
	}
	stable, _ := event.Args["stable"].(bool)

	poolID := strings.ToLower(poolAddr.Hex())

	unlock := m.locks.Lock(poolID)
	defer unlock()

	// Restarted processes re-handle the creation log; the pool entity is
	// already there but the parser registration is not.
	if _, err := m.store.Pool(ctx, poolID); err == nil {
		m.parser.AddContract(poolAddr, m.poolABI)
		m.logger.Debug().Str("pool", poolID).Msg("Pool already tracked, re-registered with parser")
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load pool %s: %w", poolID, err)
	}

	token0, err := m.ensureToken(ctx, token0Addr)
	if err != nil {
		return err
	}
	token1, err := m.ensureToken(ctx, token1Addr)
	if err != nil {
		return err
	}

	pool := &entity.Pool{
		Address:        poolID,
		Token0:         token0.Address,
		Token1:         token1.Address,
		IsStable:       stable,
		CreatedAtBlock: event.BlockNumber,
		CreatedAt:      eventTime(event),
		UpdatedAt:      eventTime(event),
	}

	// Swap fee from the factory; zero when the read fails
	if m.reader != nil {
		if fee, err := m.reader.PoolFee(ctx, poolAddr, stable); err != nil {
			m.logger.Warn().Err(err).Str("pool", poolID).Msg("Failed to read pool fee")
		} else {
			pool.FeePercent = numeric.FeePercentFromBasisPoints(fee)
		}
	}

	m.refreshGauge(ctx, pool)
	m.refreshEmissions(ctx, pool)

	if err := m.store.SavePool(ctx, pool); err != nil {
		return fmt.Errorf("save pool %s: %w", poolID, err)
	}

	m.parser.AddContract(poolAddr, m.poolABI)

	factoryID := strings.ToLower(m.factoryAddress.Hex())
	unlockFactory := m.locks.Lock(factoryID)
	factory, err := m.store.Factory(ctx, factoryID)
	if err != nil {
		unlockFactory()
		return fmt.Errorf("load factory: %w", err)
	}
	factory.PoolCount++
	err = m.store.SaveFactory(ctx, factory)
	unlockFactory()
	if err != nil {
		return fmt.Errorf("save factory: %w", err)
	}

	m.logger.Info().
		Str("pool", poolID).
		Str("token0", token0.Symbol).
		Str("token1", token1.Symbol).
		Bool("stable", stable).
		Uint64("block", event.BlockNumber).
		Msg("Pool created")

	return nil
}

// ensureToken loads a token, fetching metadata on first sight. Metadata reads
// fall back per field inside the reader, so a hostile token still gets a row.
func (m *Module) ensureToken(ctx context.Context, address common.Address) (*entity.Token, error) {
	id := strings.ToLower(address.Hex())

	token, err := m.store.Token(ctx, id)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load token %s: %w", id, err)
	}

	token = &entity.Token{
		Address:  id,
		Name:     "Unknown",
		Symbol:   "???",
		Decimals: 18,
	}
	if m.reader != nil {
		if metadata, err := m.reader.TokenMetadata(ctx, address); err != nil {
			m.logger.Warn().Err(err).Str("token", id).Msg("Failed to fetch token metadata")
		} else {
			token.Name = metadata.Name
			token.Symbol = metadata.Symbol
			token.Decimals = metadata.Decimals
		}
	}

	if err := m.store.SaveToken(ctx, token); err != nil {
		return nil, fmt.Errorf("save token %s: %w", id, err)
	}
	return token, nil
}

// loadPoolAndTokens loads the event's pool and both token legs. A missing
// entity drops the event with a warning rather than failing the handler.
func (m *Module) loadPoolAndTokens(ctx context.Context, event *core.ParsedEvent) (*entity.Pool, *entity.Token, *entity.Token, bool) {
	poolID := strings.ToLower(event.Address.Hex())

	pool, err := m.store.Pool(ctx, poolID)
	if err != nil {
		m.logger.Warn().Err(err).
			Str("pool", poolID).
			Str("event", event.EventName).
			Str("tx", event.TransactionHash.Hex()).
			Msg("Dropping event for unknown pool")
		return nil, nil, nil, false
	}

	token0, err := m.store.Token(ctx, pool.Token0)
	if err != nil {
		m.logger.Warn().Err(err).Str("token", pool.Token0).Str("pool", poolID).Msg("Dropping event, token0 missing")
		return nil, nil, nil, false
	}
	token1, err := m.store.Token(ctx, pool.Token1)
	if err != nil {
		m.logger.Warn().Err(err).Str("token", pool.Token1).Str("pool", poolID).Msg("Dropping event, token1 missing")
		return nil, nil, nil, false
	}

	return pool, token0, token1, true
}

// lockAndReloadTokens takes both token locks in canonical order and reloads
// the tokens, so mutations apply to current stored state rather than to the
// copies read before the locks were held. The caller must invoke the returned
// unlock after saving.
func (m *Module) lockAndReloadTokens(ctx context.Context, addr0, addr1 string) (*entity.Token, *entity.Token, func(), error) {
	unlock := m.locks.LockAll(addr0, addr1)
	t0, err := m.store.Token(ctx, addr0)
	if err != nil {
		unlock()
		return nil, nil, nil, fmt.Errorf("load token %s: %w", addr0, err)
	}
	t1, err := m.store.Token(ctx, addr1)
	if err != nil {
		unlock()
		return nil, nil, nil, fmt.Errorf("load token %s: %w", addr1, err)
	}
	return t0, t1, unlock, nil
}

// alreadyProcessed reports whether the PoolEvent for this log id exists.
func (m *Module) alreadyProcessed(ctx context.Context, event *core.ParsedEvent) bool {
	id := entity.PoolEventID(event.TransactionHash.Hex(), event.LogIndex)
	if _, err := m.store.PoolEvent(ctx, id); err == nil {
		m.logger.Debug().Str("event_id", id).Msg("Skipping already processed event")
		return true
	}
	return false
}

// refreshPrices recomputes both tokens' reference and USD prices and the
// pool's TVL. Zero prices leave the USD figures at zero; structural updates
// still land.
func (m *Module) refreshPrices(ctx context.Context, pool *entity.Pool, token0, token1 *entity.Token) {
	token0.DerivedRef = m.resolver.PriceInReference(ctx, token0.Address)
	token1.DerivedRef = m.resolver.PriceInReference(ctx, token1.Address)
	token0.PriceUSD = m.resolver.TokenPriceUSD(ctx, token0.Address)
	token1.PriceUSD = m.resolver.TokenPriceUSD(ctx, token1.Address)

	pool.TVLUSD = pool.Reserve0.Mul(token0.PriceUSD).Add(pool.Reserve1.Mul(token1.PriceUSD))
}

func (m *Module) publish(ctx context.Context, ev *entity.PoolEvent) {
	if m.publisher != nil {
		m.publisher.PublishPoolEvent(ctx, ev)
	}
}

// updatePoolBuckets refreshes the pool's hour and day buckets and accumulates
// the volume contribution, then persists both.
func (m *Module) updatePoolBuckets(ctx context.Context, pool *entity.Pool, ts int64, vol0, vol1, volUSD decimal.Decimal) error {
	hour, err := m.rollup.UpdatePoolHourData(ctx, pool, ts)
	if err != nil {
		return err
	}
	hour.HourlyVolumeToken0 = hour.HourlyVolumeToken0.Add(vol0)
	hour.HourlyVolumeToken1 = hour.HourlyVolumeToken1.Add(vol1)
	hour.HourlyVolumeUSD = hour.HourlyVolumeUSD.Add(volUSD)
	if err := m.rollup.SavePoolHourData(ctx, hour); err != nil {
		return err
	}

	day, err := m.rollup.UpdatePoolDayData(ctx, pool, ts)
	if err != nil {
		return err
	}
	day.DailyVolumeToken0 = day.DailyVolumeToken0.Add(vol0)
	day.DailyVolumeToken1 = day.DailyVolumeToken1.Add(vol1)
	day.DailyVolumeUSD = day.DailyVolumeUSD.Add(volUSD)
	return m.rollup.SavePoolDayData(ctx, day)
}

// updateTokenBuckets refreshes both tokens' day buckets, accumulating volume
// for swaps and leaving it untouched otherwise.
func (m *Module) updateTokenBuckets(ctx context.Context, ts int64, token0, token1 *entity.Token, vol0, vol1, volUSD0, volUSD1 decimal.Decimal) error {
	day0, err := m.rollup.UpdateTokenDayData(ctx, token0, ts)
	if err != nil {
		return err
	}
	day0.DailyVolumeToken = day0.DailyVolumeToken.Add(vol0)
	day0.DailyVolumeUSD = day0.DailyVolumeUSD.Add(volUSD0)
	if err := m.rollup.SaveTokenDayData(ctx, day0); err != nil {
		return err
	}

	day1, err := m.rollup.UpdateTokenDayData(ctx, token1, ts)
	if err != nil {
		return err
	}
	day1.DailyVolumeToken = day1.DailyVolumeToken.Add(vol1)
	day1.DailyVolumeUSD = day1.DailyVolumeUSD.Add(volUSD1)
	return m.rollup.SaveTokenDayData(ctx, day1)
}

// handleSwap processes a swap: gross per-leg volume, reserve deltas per the
// configured strategy, price and TVL refresh, protocol totals and buckets.
func handleSwap(ctx context.Context, m *Module, event *core.ParsedEvent) error {
	amount0In, err := bigArg(event, "amount0In")
	if err != nil {
		return err
	}
	amount1In, err := bigArg(event, "amount1In")
	if err != nil {
		return err
	}
	amount0Out, err := bigArg(event, "amount0Out")
	if err != nil {
		return err
	}
	amount1Out, err := bigArg(event, "amount1Out")
	if err != nil {
		return err
	}

	poolID := strings.ToLower(event.Address.Hex())
	unlock := m.locks.Lock(poolID)
	defer unlock()

	pool, token0, token1, ok := m.loadPoolAndTokens(ctx, event)
	if !ok {
		return nil
	}
	if m.alreadyProcessed(ctx, event) {
		return nil
	}
	ts := m.bucketTime(event)

	in0 := numeric.FromRawAmount(amount0In, token0.Decimals)
	out0 := numeric.FromRawAmount(amount0Out, token0.Decimals)
	in1 := numeric.FromRawAmount(amount1In, token1.Decimals)
	out1 := numeric.FromRawAmount(amount1Out, token1.Decimals)

	// Gross volume counts both directions of each leg
	amount0Total := in0.Add(out0)
	amount1Total := in1.Add(out1)

	if m.config.ReserveStrategy == StrategyEventDelta {
		pool.Reserve0 = m.clampReserve(event, "reserve0", pool.Reserve0.Add(in0).Sub(out0))
		pool.Reserve1 = m.clampReserve(event, "reserve1", pool.Reserve1.Add(in1).Sub(out1))
	}

	m.refreshPrices(ctx, pool, token0, token1)

	volumeUSD0 := amount0Total.Mul(token0.PriceUSD)
	volumeUSD1 := amount1Total.Mul(token1.PriceUSD)
	trackedUSD := volumeUSD0.Add(volumeUSD1)

	pool.VolumeToken0 = pool.VolumeToken0.Add(amount0Total)
	pool.VolumeToken1 = pool.VolumeToken1.Add(amount1Total)
	pool.VolumeUSD = pool.VolumeUSD.Add(trackedUSD)
	pool.TxCount++
	if ts > 0 {
		pool.UpdatedAt = ts
	}

	fresh0, fresh1, unlockTokens, err := m.lockAndReloadTokens(ctx, token0.Address, token1.Address)
	if err != nil {
		return err
	}
	fresh0.DerivedRef, fresh0.PriceUSD = token0.DerivedRef, token0.PriceUSD
	fresh1.DerivedRef, fresh1.PriceUSD = token1.DerivedRef, token1.PriceUSD
	fresh0.TradeVolume = fresh0.TradeVolume.Add(amount0Total)
	fresh0.TradeVolumeUSD = fresh0.TradeVolumeUSD.Add(volumeUSD0)
	fresh0.TxCount++
	fresh1.TradeVolume = fresh1.TradeVolume.Add(amount1Total)
	fresh1.TradeVolumeUSD = fresh1.TradeVolumeUSD.Add(volumeUSD1)
	fresh1.TxCount++
	err = m.saveTokens(ctx, fresh0, fresh1)
	unlockTokens()
	if err != nil {
		return err
	}
	token0, token1 = fresh0, fresh1

	m.refreshEmissions(ctx, pool)

	if err := m.store.SavePool(ctx, pool); err != nil {
		return fmt.Errorf("save pool %s: %w", poolID, err)
	}

	factory, err := m.updateFactoryTotals(ctx, trackedUSD)
	if err != nil {
		return err
	}

	ev := &entity.PoolEvent{
		ID:          entity.PoolEventID(event.TransactionHash.Hex(), event.LogIndex),
		Pool:        poolID,
		Type:        entity.EventSwap,
		Amount0:     amount0Total,
		Amount1:     amount1Total,
		Timestamp:   eventTime(event),
		BlockNumber: event.BlockNumber,
		LogIndex:    event.LogIndex,
		TxHash:      event.TransactionHash.Hex(),
	}
	if !trackedUSD.IsZero() {
		ev.AmountUSD = &trackedUSD
	}
	if err := m.store.SavePoolEvent(ctx, ev); err != nil {
		return fmt.Errorf("save pool event %s: %w", ev.ID, err)
	}
	m.publish(ctx, ev)

	if ts == 0 {
		return nil
	}
	if err := m.updatePoolBuckets(ctx, pool, ts, amount0Total, amount1Total, trackedUSD); err != nil {
		return err
	}
	if err := m.updateTokenBuckets(ctx, ts, token0, token1, amount0Total, amount1Total, volumeUSD0, volumeUSD1); err != nil {
		return err
	}
	return m.updateFactoryDayData(ctx, factory, ts, trackedUSD)
}

// handleMint processes a liquidity deposit.
func handleMint(ctx context.Context, m *Module, event *core.ParsedEvent) error {
	amount0Raw, err := bigArg(event, "amount0")
	if err != nil {
		return err
	}
	amount1Raw, err := bigArg(event, "amount1")
	if err != nil {
		return err
	}

	poolID := strings.ToLower(event.Address.Hex())
	unlock := m.locks.Lock(poolID)
	defer unlock()

	pool, token0, token1, ok := m.loadPoolAndTokens(ctx, event)
	if !ok {
		return nil
	}
	if m.alreadyProcessed(ctx, event) {
		return nil
	}

	ts := m.bucketTime(event)

	amount0 := numeric.FromRawAmount(amount0Raw, token0.Decimals)
	amount1 := numeric.FromRawAmount(amount1Raw, token1.Decimals)

	pool.Reserve0 = pool.Reserve0.Add(amount0)
	pool.Reserve1 = pool.Reserve1.Add(amount1)
	pool.TxCount++
	if ts > 0 {
		pool.UpdatedAt = ts
	}

	m.refreshTotalSupply(ctx, pool)
	m.refreshPrices(ctx, pool, token0, token1)
	m.refreshEmissions(ctx, pool)

	fresh0, fresh1, unlockTokens, err := m.lockAndReloadTokens(ctx, token0.Address, token1.Address)
	if err != nil {
		return err
	}
	fresh0.DerivedRef, fresh0.PriceUSD = token0.DerivedRef, token0.PriceUSD
	fresh1.DerivedRef, fresh1.PriceUSD = token1.DerivedRef, token1.PriceUSD
	fresh0.TotalLiquidity = fresh0.TotalLiquidity.Add(amount0)
	fresh0.TxCount++
	fresh1.TotalLiquidity = fresh1.TotalLiquidity.Add(amount1)
	fresh1.TxCount++
	err = m.saveTokens(ctx, fresh0, fresh1)
	unlockTokens()
	if err != nil {
		return err
	}
	token0, token1 = fresh0, fresh1

	if err := m.store.SavePool(ctx, pool); err != nil {
		return fmt.Errorf("save pool %s: %w", poolID, err)
	}

	factory, err := m.updateFactoryTotals(ctx, numeric.Zero)
	if err != nil {
		return err
	}

	ev := &entity.PoolEvent{
		ID:          entity.PoolEventID(event.TransactionHash.Hex(), event.LogIndex),
		Pool:        poolID,
		Type:        entity.EventDeposit,
		Amount0:     amount0,
		Amount1:     amount1,
		Timestamp:   eventTime(event),
		BlockNumber: event.BlockNumber,
		LogIndex:    event.LogIndex,
		TxHash:      event.TransactionHash.Hex(),
	}
	usd := amount0.Mul(token0.PriceUSD).Add(amount1.Mul(token1.PriceUSD))
	if !usd.IsZero() {
		ev.AmountUSD = &usd
	}
	if err := m.store.SavePoolEvent(ctx, ev); err != nil {
		return fmt.Errorf("save pool event %s: %w", ev.ID, err)
	}
	m.publish(ctx, ev)

	if ts == 0 {
		return nil
	}
	if err := m.updatePoolBuckets(ctx, pool, ts, numeric.Zero, numeric.Zero, numeric.Zero); err != nil {
		return err
	}
	if err := m.updateTokenBuckets(ctx, ts, token0, token1, numeric.Zero, numeric.Zero, numeric.Zero, numeric.Zero); err != nil {
		return err
	}
	return m.updateFactoryDayData(ctx, factory, ts, numeric.Zero)
}

// handleBurn processes a liquidity withdrawal. If either amount exceeds the
// recorded balances the reserve and token liquidity subtractions are skipped
// for both legs; the remaining refreshes still run.
func handleBurn(ctx context.Context, m *Module, event *core.ParsedEvent) error {
	amount0Raw, err := bigArg(event, "amount0")
	if err != nil {
		return err
	}
	amount1Raw, err := bigArg(event, "amount1")
	if err != nil {
		return err
	}

	poolID := strings.ToLower(event.Address.Hex())
	unlock := m.locks.Lock(poolID)
	defer unlock()

	pool, token0, token1, ok := m.loadPoolAndTokens(ctx, event)
	if !ok {
		return nil
	}
	if m.alreadyProcessed(ctx, event) {
		return nil
	}

	ts := m.bucketTime(event)

	amount0 := numeric.FromRawAmount(amount0Raw, token0.Decimals)
	amount1 := numeric.FromRawAmount(amount1Raw, token1.Decimals)

	// An overdrawn burn means the recorded balances have drifted from chain
	// state; applying the subtraction anywhere would only corrupt them more.
	overdrawn := amount0.GreaterThan(pool.Reserve0) || amount1.GreaterThan(pool.Reserve1)
	if overdrawn {
		m.logger.Warn().
			Str("pool", poolID).
			Str("amount0", amount0.String()).
			Str("amount1", amount1.String()).
			Str("reserve0", pool.Reserve0.String()).
			Str("reserve1", pool.Reserve1.String()).
			Str("tx", event.TransactionHash.Hex()).
			Msg("Burn exceeds recorded reserves, skipping reserve and liquidity update")
	} else {
		pool.Reserve0 = pool.Reserve0.Sub(amount0)
		pool.Reserve1 = pool.Reserve1.Sub(amount1)
	}
	pool.TxCount++
	if ts > 0 {
		pool.UpdatedAt = ts
	}

	m.refreshTotalSupply(ctx, pool)
	m.refreshPrices(ctx, pool, token0, token1)
	m.refreshEmissions(ctx, pool)

	fresh0, fresh1, unlockTokens, err := m.lockAndReloadTokens(ctx, token0.Address, token1.Address)
	if err != nil {
		return err
	}
	fresh0.DerivedRef, fresh0.PriceUSD = token0.DerivedRef, token0.PriceUSD
	fresh1.DerivedRef, fresh1.PriceUSD = token1.DerivedRef, token1.PriceUSD
	if !overdrawn {
		fresh0.TotalLiquidity = clampZero(fresh0.TotalLiquidity.Sub(amount0))
		fresh1.TotalLiquidity = clampZero(fresh1.TotalLiquidity.Sub(amount1))
	}
	fresh0.TxCount++
	fresh1.TxCount++
	err = m.saveTokens(ctx, fresh0, fresh1)
	unlockTokens()
	if err != nil {
		return err
	}
	token0, token1 = fresh0, fresh1

	if err := m.store.SavePool(ctx, pool); err != nil {
		return fmt.Errorf("save pool %s: %w", poolID, err)
	}

	factory, err := m.updateFactoryTotals(ctx, numeric.Zero)
	if err != nil {
		return err
	}

	ev := &entity.PoolEvent{
		ID:          entity.PoolEventID(event.TransactionHash.Hex(), event.LogIndex),
		Pool:        poolID,
		Type:        entity.EventWithdraw,
		Amount0:     amount0,
		Amount1:     amount1,
		Timestamp:   eventTime(event),
		BlockNumber: event.BlockNumber,
		LogIndex:    event.LogIndex,
		TxHash:      event.TransactionHash.Hex(),
	}
	usd := amount0.Mul(token0.PriceUSD).Add(amount1.Mul(token1.PriceUSD))
	if !usd.IsZero() {
		ev.AmountUSD = &usd
	}
	if err := m.store.SavePoolEvent(ctx, ev); err != nil {
		return fmt.Errorf("save pool event %s: %w", ev.ID, err)
	}
	m.publish(ctx, ev)

	if ts == 0 {
		return nil
	}
	if err := m.updatePoolBuckets(ctx, pool, ts, numeric.Zero, numeric.Zero, numeric.Zero); err != nil {
		return err
	}
	if err := m.updateTokenBuckets(ctx, ts, token0, token1, numeric.Zero, numeric.Zero, numeric.Zero, numeric.Zero); err != nil {
		return err
	}
	return m.updateFactoryDayData(ctx, factory, ts, numeric.Zero)
}

// handleSync replaces reserves with the emitted snapshot. Under the
// event-delta strategy the snapshot is ignored and only logged.
func handleSync(ctx context.Context, m *Module, event *core.ParsedEvent) error {
	reserve0Raw, err := bigArg(event, "reserve0")
	if err != nil {
		return err
	}
	reserve1Raw, err := bigArg(event, "reserve1")
	if err != nil {
		return err
	}

	poolID := strings.ToLower(event.Address.Hex())

	if m.config.ReserveStrategy != StrategySyncSnapshot {
		m.logger.Debug().
			Str("pool", poolID).
			Uint64("block", event.BlockNumber).
			Msg("Sync observed")
		return nil
	}

	unlock := m.locks.Lock(poolID)
	defer unlock()

	pool, token0, token1, ok := m.loadPoolAndTokens(ctx, event)
	if !ok {
		return nil
	}

	ts := m.bucketTime(event)

	newReserve0 := numeric.FromRawAmount(reserve0Raw, token0.Decimals)
	newReserve1 := numeric.FromRawAmount(reserve1Raw, token1.Decimals)

	// Token liquidity tracks the delta against the previous stored reserves
	delta0 := newReserve0.Sub(pool.Reserve0)
	delta1 := newReserve1.Sub(pool.Reserve1)

	pool.Reserve0 = newReserve0
	pool.Reserve1 = newReserve1
	if ts > 0 {
		pool.UpdatedAt = ts
	}

	m.refreshPrices(ctx, pool, token0, token1)

	fresh0, fresh1, unlockTokens, err := m.lockAndReloadTokens(ctx, token0.Address, token1.Address)
	if err != nil {
		return err
	}
	fresh0.DerivedRef, fresh0.PriceUSD = token0.DerivedRef, token0.PriceUSD
	fresh1.DerivedRef, fresh1.PriceUSD = token1.DerivedRef, token1.PriceUSD
	fresh0.TotalLiquidity = clampZero(fresh0.TotalLiquidity.Add(delta0))
	fresh1.TotalLiquidity = clampZero(fresh1.TotalLiquidity.Add(delta1))
	err = m.saveTokens(ctx, fresh0, fresh1)
	unlockTokens()
	if err != nil {
		return err
	}

	if err := m.store.SavePool(ctx, pool); err != nil {
		return fmt.Errorf("save pool %s: %w", poolID, err)
	}

	// Snapshot refresh only; Sync contributes no volume and no PoolEvent
	if ts == 0 {
		return nil
	}
	hour, err := m.rollup.UpdatePoolHourData(ctx, pool, ts)
	if err != nil {
		return err
	}
	if err := m.rollup.SavePoolHourData(ctx, hour); err != nil {
		return err
	}
	day, err := m.rollup.UpdatePoolDayData(ctx, pool, ts)
	if err != nil {
		return err
	}
	return m.rollup.SavePoolDayData(ctx, day)
}

// refreshTotalSupply re-reads the pool's LP supply, keeping the previous
// value when the read fails.
func (m *Module) refreshTotalSupply(ctx context.Context, pool *entity.Pool) {
	if m.reader == nil {
		return
	}
	supply, err := m.reader.TotalSupply(ctx, common.HexToAddress(pool.Address))
	if err != nil {
		m.logger.Warn().Err(err).Str("pool", pool.Address).Msg("Failed to read total supply, keeping previous")
		return
	}
	pool.TotalSupply = numeric.FromRawAmount(supply, 18)
}

func (m *Module) saveTokens(ctx context.Context, tokens ...*entity.Token) error {
	for _, t := range tokens {
		if err := m.store.SaveToken(ctx, t); err != nil {
			return fmt.Errorf("save token %s: %w", t.Address, err)
		}
	}
	return nil
}

// updateFactoryTotals increments the protocol tx counter and, for swaps, the
// cumulative volume, under the factory's own lock so pools handled on other
// goroutines cannot lose the increment.
func (m *Module) updateFactoryTotals(ctx context.Context, volumeUSD decimal.Decimal) (*entity.Factory, error) {
	factoryID := strings.ToLower(m.factoryAddress.Hex())
	unlock := m.locks.Lock(factoryID)
	defer unlock()

	factory, err := m.store.Factory(ctx, factoryID)
	if err != nil {
		return nil, fmt.Errorf("load factory: %w", err)
	}
	factory.TotalVolumeUSD = factory.TotalVolumeUSD.Add(volumeUSD)
	factory.TxCount++
	if err := m.store.SaveFactory(ctx, factory); err != nil {
		return nil, fmt.Errorf("save factory: %w", err)
	}
	return factory, nil
}

// updateFactoryDayData refreshes the protocol day bucket and accumulates the
// swap volume contribution.
func (m *Module) updateFactoryDayData(ctx context.Context, factory *entity.Factory, ts int64, volumeUSD decimal.Decimal) error {
	day, err := m.rollup.UpdateFactoryDayData(ctx, factory, ts)
	if err != nil {
		return err
	}
	day.DailyVolumeUSD = day.DailyVolumeUSD.Add(volumeUSD)
	return m.rollup.SaveFactoryDayData(ctx, day)
}

// bucketTime returns the event timestamp for time buckets, or zero with a
// warning when the log carries no block timestamp. Zero must not produce an
// epoch-zero bucket, so callers skip bucket updates when it is returned.
func (m *Module) bucketTime(event *core.ParsedEvent) int64 {
	ts := eventTime(event)
	if ts == 0 {
		m.logger.Warn().
			Str("event", event.EventName).
			Str("tx", event.TransactionHash.Hex()).
			Uint("log_index", event.LogIndex).
			Msg("Event carries no block timestamp, skipping time buckets")
	}
	return ts
}

// clampReserve floors a reserve at zero. A negative running reserve means the
// event deltas have drifted from chain state, which is worth a warning.
func (m *Module) clampReserve(event *core.ParsedEvent, leg string, d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		m.logger.Warn().
			Str("pool", strings.ToLower(event.Address.Hex())).
			Str("leg", leg).
			Str("value", d.String()).
			Str("tx", event.TransactionHash.Hex()).
			Msg("Reserve delta went negative, clamping to zero")
		return decimal.Zero
	}
	return d
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
