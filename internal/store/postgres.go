package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aerostream/indexer/internal/entity"
)

// Postgres is the pgx-backed Store. Numeric columns are bound and scanned as
// strings to keep decimal precision intact end to end.
type Postgres struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Connect opens a pgx pool against connString and pings it.
func Connect(ctx context.Context, connString string, maxConns int32, logger zerolog.Logger) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = maxConns
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().Msg("Connected to database")

	return &Postgres{
		pool:   pool,
		logger: logger.With().Str("component", "store").Logger(),
	}, nil
}

func (s *Postgres) Close() {
	s.pool.Close()
	s.logger.Info().Msg("Database connection closed")
}

func (s *Postgres) PgxPool() *pgxpool.Pool {
	return s.pool
}

func scanDecimal(src string) (decimal.Decimal, error) {
	if src == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(src)
}

func (s *Postgres) Pool(ctx context.Context, address string) (*entity.Pool, error) {
	query := `
		SELECT address, token0, token1, is_stable,
			reserve0::text, reserve1::text, total_supply::text,
			volume_token0::text, volume_token1::text, volume_usd::text,
			tvl_usd::text, fee_percent::text,
			gauge_address, emissions_per_second::text, emissions_apr::text,
			tx_count, created_at_block, created_at, updated_at
		FROM pools WHERE address = $1`

	var p entity.Pool
	var reserve0, reserve1, totalSupply, volToken0, volToken1, volUSD string
	var tvlUSD, feePercent, emissions, apr string

	err := s.pool.QueryRow(ctx, query, address).Scan(
		&p.Address, &p.Token0, &p.Token1, &p.IsStable,
		&reserve0, &reserve1, &totalSupply,
		&volToken0, &volToken1, &volUSD,
		&tvlUSD, &feePercent,
		&p.GaugeAddress, &emissions, &apr,
		&p.TxCount, &p.CreatedAtBlock, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pool %s: %w", address, err)
	}

	for _, pair := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&p.Reserve0, reserve0}, {&p.Reserve1, reserve1}, {&p.TotalSupply, totalSupply},
		{&p.VolumeToken0, volToken0}, {&p.VolumeToken1, volToken1}, {&p.VolumeUSD, volUSD},
		{&p.TVLUSD, tvlUSD}, {&p.FeePercent, feePercent},
		{&p.EmissionsPerSecond, emissions}, {&p.EmissionsAPR, apr},
	} {
		if *pair.dst, err = scanDecimal(pair.src); err != nil {
			return nil, fmt.Errorf("failed to parse pool numeric: %w", err)
		}
	}

	return &p, nil
}

func (s *Postgres) SavePool(ctx context.Context, p *entity.Pool) error {
	query := `
		INSERT INTO pools (
			address, token0, token1, is_stable,
			reserve0, reserve1, total_supply,
			volume_token0, volume_token1, volume_usd,
			tvl_usd, fee_percent,
			gauge_address, emissions_per_second, emissions_apr,
			tx_count, created_at_block, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (address) DO UPDATE SET
			reserve0 = EXCLUDED.reserve0,
			reserve1 = EXCLUDED.reserve1,
			total_supply = EXCLUDED.total_supply,
			volume_token0 = EXCLUDED.volume_token0,
			volume_token1 = EXCLUDED.volume_token1,
			volume_usd = EXCLUDED.volume_usd,
			tvl_usd = EXCLUDED.tvl_usd,
			fee_percent = EXCLUDED.fee_percent,
			gauge_address = EXCLUDED.gauge_address,
			emissions_per_second = EXCLUDED.emissions_per_second,
			emissions_apr = EXCLUDED.emissions_apr,
			tx_count = EXCLUDED.tx_count,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		p.Address, p.Token0, p.Token1, p.IsStable,
		p.Reserve0.String(), p.Reserve1.String(), p.TotalSupply.String(),
		p.VolumeToken0.String(), p.VolumeToken1.String(), p.VolumeUSD.String(),
		p.TVLUSD.String(), p.FeePercent.String(),
		p.GaugeAddress, p.EmissionsPerSecond.String(), p.EmissionsAPR.String(),
		p.TxCount, p.CreatedAtBlock, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save pool %s: %w", p.Address, err)
	}
	return nil
}

func (s *Postgres) PoolByTokens(ctx context.Context, tokenA, tokenB string) (*entity.Pool, error) {
	query := `
		SELECT address FROM pools
		WHERE (token0 = $1 AND token1 = $2) OR (token0 = $2 AND token1 = $1)
		ORDER BY tvl_usd DESC
		LIMIT 1`

	var address string
	err := s.pool.QueryRow(ctx, query, tokenA, tokenB).Scan(&address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pool by tokens: %w", err)
	}
	return s.Pool(ctx, address)
}

func (s *Postgres) PoolsWithGauge(ctx context.Context) ([]*entity.Pool, error) {
	query := `SELECT address FROM pools WHERE gauge_address IS NOT NULL ORDER BY address`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list gauged pools: %w", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, err
		}
		addresses = append(addresses, address)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pools := make([]*entity.Pool, 0, len(addresses))
	for _, address := range addresses {
		p, err := s.Pool(ctx, address)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, nil
}

func (s *Postgres) Token(ctx context.Context, address string) (*entity.Token, error) {
	query := `
		SELECT address, symbol, name, decimals,
			total_liquidity::text, derived_ref::text, price_usd::text,
			trade_volume::text, trade_volume_usd::text, tx_count
		FROM tokens WHERE address = $1`

	var t entity.Token
	var liquidity, derivedRef, priceUSD, volume, volumeUSD string

	err := s.pool.QueryRow(ctx, query, address).Scan(
		&t.Address, &t.Symbol, &t.Name, &t.Decimals,
		&liquidity, &derivedRef, &priceUSD,
		&volume, &volumeUSD, &t.TxCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token %s: %w", address, err)
	}

	for _, pair := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&t.TotalLiquidity, liquidity}, {&t.DerivedRef, derivedRef}, {&t.PriceUSD, priceUSD},
		{&t.TradeVolume, volume}, {&t.TradeVolumeUSD, volumeUSD},
	} {
		if *pair.dst, err = scanDecimal(pair.src); err != nil {
			return nil, fmt.Errorf("failed to parse token numeric: %w", err)
		}
	}

	return &t, nil
}

func (s *Postgres) SaveToken(ctx context.Context, t *entity.Token) error {
	query := `
		INSERT INTO tokens (
			address, symbol, name, decimals,
			total_liquidity, derived_ref, price_usd,
			trade_volume, trade_volume_usd, tx_count
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (address) DO UPDATE SET
			total_liquidity = EXCLUDED.total_liquidity,
			derived_ref = EXCLUDED.derived_ref,
			price_usd = EXCLUDED.price_usd,
			trade_volume = EXCLUDED.trade_volume,
			trade_volume_usd = EXCLUDED.trade_volume_usd,
			tx_count = EXCLUDED.tx_count`

	_, err := s.pool.Exec(ctx, query,
		t.Address, t.Symbol, t.Name, t.Decimals,
		t.TotalLiquidity.String(), t.DerivedRef.String(), t.PriceUSD.String(),
		t.TradeVolume.String(), t.TradeVolumeUSD.String(), t.TxCount,
	)
	if err != nil {
		return fmt.Errorf("failed to save token %s: %w", t.Address, err)
	}
	return nil
}

func (s *Postgres) PoolEvent(ctx context.Context, id string) (*entity.PoolEvent, error) {
	query := `
		SELECT id, pool, type, amount0::text, amount1::text, amount_usd::text,
			timestamp, block_number, log_index, tx_hash
		FROM pool_events WHERE id = $1`

	var ev entity.PoolEvent
	var amount0, amount1 string
	var amountUSD *string

	err := s.pool.QueryRow(ctx, query, id).Scan(
		&ev.ID, &ev.Pool, &ev.Type, &amount0, &amount1, &amountUSD,
		&ev.Timestamp, &ev.BlockNumber, &ev.LogIndex, &ev.TxHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pool event %s: %w", id, err)
	}

	if ev.Amount0, err = scanDecimal(amount0); err != nil {
		return nil, fmt.Errorf("failed to parse event amount0: %w", err)
	}
	if ev.Amount1, err = scanDecimal(amount1); err != nil {
		return nil, fmt.Errorf("failed to parse event amount1: %w", err)
	}
	if amountUSD != nil {
		usd, err := scanDecimal(*amountUSD)
		if err != nil {
			return nil, fmt.Errorf("failed to parse event amount_usd: %w", err)
		}
		ev.AmountUSD = &usd
	}

	return &ev, nil
}

func (s *Postgres) SavePoolEvent(ctx context.Context, ev *entity.PoolEvent) error {
	query := `
		INSERT INTO pool_events (
			id, pool, type, amount0, amount1, amount_usd,
			timestamp, block_number, log_index, tx_hash
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			amount0 = EXCLUDED.amount0,
			amount1 = EXCLUDED.amount1,
			amount_usd = EXCLUDED.amount_usd`

	var amountUSD *string
	if ev.AmountUSD != nil {
		usd := ev.AmountUSD.String()
		amountUSD = &usd
	}

	_, err := s.pool.Exec(ctx, query,
		ev.ID, ev.Pool, ev.Type, ev.Amount0.String(), ev.Amount1.String(), amountUSD,
		ev.Timestamp, ev.BlockNumber, ev.LogIndex, ev.TxHash,
	)
	if err != nil {
		return fmt.Errorf("failed to save pool event %s: %w", ev.ID, err)
	}
	return nil
}

func (s *Postgres) Factory(ctx context.Context, address string) (*entity.Factory, error) {
	query := `
		SELECT address, pool_count, total_volume_usd::text, tx_count
		FROM factories WHERE address = $1`

	var f entity.Factory
	var volumeUSD string

	err := s.pool.QueryRow(ctx, query, address).Scan(
		&f.Address, &f.PoolCount, &volumeUSD, &f.TxCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get factory %s: %w", address, err)
	}

	if f.TotalVolumeUSD, err = scanDecimal(volumeUSD); err != nil {
		return nil, fmt.Errorf("failed to parse factory volume: %w", err)
	}
	return &f, nil
}

func (s *Postgres) SaveFactory(ctx context.Context, f *entity.Factory) error {
	query := `
		INSERT INTO factories (address, pool_count, total_volume_usd, tx_count)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (address) DO UPDATE SET
			pool_count = EXCLUDED.pool_count,
			total_volume_usd = EXCLUDED.total_volume_usd,
			tx_count = EXCLUDED.tx_count`

	_, err := s.pool.Exec(ctx, query,
		f.Address, f.PoolCount, f.TotalVolumeUSD.String(), f.TxCount,
	)
	if err != nil {
		return fmt.Errorf("failed to save factory %s: %w", f.Address, err)
	}
	return nil
}

func (s *Postgres) PoolHourData(ctx context.Context, id string) (*entity.PoolHourData, error) {
	query := `
		SELECT id, pool, hour_start_unix,
			reserve0::text, reserve1::text, total_supply::text,
			hourly_volume_token0::text, hourly_volume_token1::text, hourly_volume_usd::text,
			hourly_txns
		FROM pool_hour_data WHERE id = $1`

	var d entity.PoolHourData
	var reserve0, reserve1, totalSupply, vol0, vol1, volUSD string

	err := s.pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.Pool, &d.HourStartUnix,
		&reserve0, &reserve1, &totalSupply,
		&vol0, &vol1, &volUSD,
		&d.HourlyTxns,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pool hour data %s: %w", id, err)
	}

	for _, pair := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&d.Reserve0, reserve0}, {&d.Reserve1, reserve1}, {&d.TotalSupply, totalSupply},
		{&d.HourlyVolumeToken0, vol0}, {&d.HourlyVolumeToken1, vol1}, {&d.HourlyVolumeUSD, volUSD},
	} {
		if *pair.dst, err = scanDecimal(pair.src); err != nil {
			return nil, fmt.Errorf("failed to parse hour data numeric: %w", err)
		}
	}
	return &d, nil
}

func (s *Postgres) SavePoolHourData(ctx context.Context, d *entity.PoolHourData) error {
	query := `
		INSERT INTO pool_hour_data (
			id, pool, hour_start_unix,
			reserve0, reserve1, total_supply,
			hourly_volume_token0, hourly_volume_token1, hourly_volume_usd,
			hourly_txns
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			reserve0 = EXCLUDED.reserve0,
			reserve1 = EXCLUDED.reserve1,
			total_supply = EXCLUDED.total_supply,
			hourly_volume_token0 = EXCLUDED.hourly_volume_token0,
			hourly_volume_token1 = EXCLUDED.hourly_volume_token1,
			hourly_volume_usd = EXCLUDED.hourly_volume_usd,
			hourly_txns = EXCLUDED.hourly_txns`

	_, err := s.pool.Exec(ctx, query,
		d.ID, d.Pool, d.HourStartUnix,
		d.Reserve0.String(), d.Reserve1.String(), d.TotalSupply.String(),
		d.HourlyVolumeToken0.String(), d.HourlyVolumeToken1.String(), d.HourlyVolumeUSD.String(),
		d.HourlyTxns,
	)
	if err != nil {
		return fmt.Errorf("failed to save pool hour data %s: %w", d.ID, err)
	}
	return nil
}

func (s *Postgres) PoolDayData(ctx context.Context, id string) (*entity.PoolDayData, error) {
	query := `
		SELECT id, pool, date,
			reserve0::text, reserve1::text, total_supply::text,
			daily_volume_token0::text, daily_volume_token1::text, daily_volume_usd::text,
			daily_txns
		FROM pool_day_data WHERE id = $1`

	var d entity.PoolDayData
	var reserve0, reserve1, totalSupply, vol0, vol1, volUSD string

	err := s.pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.Pool, &d.Date,
		&reserve0, &reserve1, &totalSupply,
		&vol0, &vol1, &volUSD,
		&d.DailyTxns,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pool day data %s: %w", id, err)
	}

	for _, pair := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&d.Reserve0, reserve0}, {&d.Reserve1, reserve1}, {&d.TotalSupply, totalSupply},
		{&d.DailyVolumeToken0, vol0}, {&d.DailyVolumeToken1, vol1}, {&d.DailyVolumeUSD, volUSD},
	} {
		if *pair.dst, err = scanDecimal(pair.src); err != nil {
			return nil, fmt.Errorf("failed to parse day data numeric: %w", err)
		}
	}
	return &d, nil
}

func (s *Postgres) SavePoolDayData(ctx context.Context, d *entity.PoolDayData) error {
	query := `
		INSERT INTO pool_day_data (
			id, pool, date,
			reserve0, reserve1, total_supply,
			daily_volume_token0, daily_volume_token1, daily_volume_usd,
			daily_txns
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			reserve0 = EXCLUDED.reserve0,
			reserve1 = EXCLUDED.reserve1,
			total_supply = EXCLUDED.total_supply,
			daily_volume_token0 = EXCLUDED.daily_volume_token0,
			daily_volume_token1 = EXCLUDED.daily_volume_token1,
			daily_volume_usd = EXCLUDED.daily_volume_usd,
			daily_txns = EXCLUDED.daily_txns`

	_, err := s.pool.Exec(ctx, query,
		d.ID, d.Pool, d.Date,
		d.Reserve0.String(), d.Reserve1.String(), d.TotalSupply.String(),
		d.DailyVolumeToken0.String(), d.DailyVolumeToken1.String(), d.DailyVolumeUSD.String(),
		d.DailyTxns,
	)
	if err != nil {
		return fmt.Errorf("failed to save pool day data %s: %w", d.ID, err)
	}
	return nil
}

func (s *Postgres) TokenDayData(ctx context.Context, id string) (*entity.TokenDayData, error) {
	query := `
		SELECT id, token, date,
			total_liquidity::text, price_usd::text,
			daily_volume_token::text, daily_volume_usd::text, daily_txns
		FROM token_day_data WHERE id = $1`

	var d entity.TokenDayData
	var liquidity, priceUSD, volToken, volUSD string

	err := s.pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.Token, &d.Date,
		&liquidity, &priceUSD,
		&volToken, &volUSD, &d.DailyTxns,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token day data %s: %w", id, err)
	}

	for _, pair := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&d.TotalLiquidity, liquidity}, {&d.PriceUSD, priceUSD},
		{&d.DailyVolumeToken, volToken}, {&d.DailyVolumeUSD, volUSD},
	} {
		if *pair.dst, err = scanDecimal(pair.src); err != nil {
			return nil, fmt.Errorf("failed to parse token day data numeric: %w", err)
		}
	}
	return &d, nil
}

func (s *Postgres) SaveTokenDayData(ctx context.Context, d *entity.TokenDayData) error {
	query := `
		INSERT INTO token_day_data (
			id, token, date,
			total_liquidity, price_usd,
			daily_volume_token, daily_volume_usd, daily_txns
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			total_liquidity = EXCLUDED.total_liquidity,
			price_usd = EXCLUDED.price_usd,
			daily_volume_token = EXCLUDED.daily_volume_token,
			daily_volume_usd = EXCLUDED.daily_volume_usd,
			daily_txns = EXCLUDED.daily_txns`

	_, err := s.pool.Exec(ctx, query,
		d.ID, d.Token, d.Date,
		d.TotalLiquidity.String(), d.PriceUSD.String(),
		d.DailyVolumeToken.String(), d.DailyVolumeUSD.String(), d.DailyTxns,
	)
	if err != nil {
		return fmt.Errorf("failed to save token day data %s: %w", d.ID, err)
	}
	return nil
}

func (s *Postgres) FactoryDayData(ctx context.Context, id string) (*entity.FactoryDayData, error) {
	query := `
		SELECT id, factory, date,
			daily_volume_usd::text, total_volume_usd::text, daily_txns
		FROM factory_day_data WHERE id = $1`

	var d entity.FactoryDayData
	var dailyUSD, totalUSD string

	err := s.pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.Factory, &d.Date,
		&dailyUSD, &totalUSD, &d.DailyTxns,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get factory day data %s: %w", id, err)
	}

	for _, pair := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&d.DailyVolumeUSD, dailyUSD}, {&d.TotalVolumeUSD, totalUSD},
	} {
		if *pair.dst, err = scanDecimal(pair.src); err != nil {
			return nil, fmt.Errorf("failed to parse factory day data numeric: %w", err)
		}
	}
	return &d, nil
}

func (s *Postgres) SaveFactoryDayData(ctx context.Context, d *entity.FactoryDayData) error {
	query := `
		INSERT INTO factory_day_data (
			id, factory, date,
			daily_volume_usd, total_volume_usd, daily_txns
		) VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET
			daily_volume_usd = EXCLUDED.daily_volume_usd,
			total_volume_usd = EXCLUDED.total_volume_usd,
			daily_txns = EXCLUDED.daily_txns`

	_, err := s.pool.Exec(ctx, query,
		d.ID, d.Factory, d.Date,
		d.DailyVolumeUSD.String(), d.TotalVolumeUSD.String(), d.DailyTxns,
	)
	if err != nil {
		return fmt.Errorf("failed to save factory day data %s: %w", d.ID, err)
	}
	return nil
}

func (s *Postgres) SyncState(ctx context.Context, module string) (uint64, error) {
	var block uint64
	err := s.pool.QueryRow(ctx,
		`SELECT last_block FROM sync_state WHERE module = $1`, module,
	).Scan(&block)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get sync state for %s: %w", module, err)
	}
	return block, nil
}

func (s *Postgres) SaveSyncState(ctx context.Context, module string, block uint64) error {
	query := `
		INSERT INTO sync_state (module, last_block, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (module) DO UPDATE SET
			last_block = GREATEST(sync_state.last_block, EXCLUDED.last_block),
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, module, block)
	if err != nil {
		return fmt.Errorf("failed to save sync state for %s: %w", module, err)
	}
	return nil
}
