// Package scheduler runs periodic refreshes that are not driven by chain
// events, currently gauge emission rates and APRs for pools with a gauge.
package scheduler

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aerostream/indexer/internal/chain"
	"github.com/aerostream/indexer/internal/numeric"
	"github.com/aerostream/indexer/internal/store"
)

type EmissionsScheduler struct {
	store     store.Store
	reader    chain.Reader
	interval  time.Duration
	scheduler gocron.Scheduler
	logger    zerolog.Logger
}

func NewEmissionsScheduler(st store.Store, reader chain.Reader, interval time.Duration, logger zerolog.Logger) (*EmissionsScheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &EmissionsScheduler{
		store:     st,
		reader:    reader,
		interval:  interval,
		scheduler: s,
		logger:    logger.With().Str("component", "emissions-scheduler").Logger(),
	}, nil
}

func (s *EmissionsScheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.refreshAll, ctx),
		gocron.WithName("refresh-emissions"),
	)
	if err != nil {
		return err
	}

	s.logger.Info().Dur("interval", s.interval).Msg("Emissions scheduler started")
	s.scheduler.Start()

	// Run immediately on startup
	go s.refreshAll(ctx)

	return nil
}

func (s *EmissionsScheduler) Stop() {
	s.logger.Info().Msg("Stopping emissions scheduler")
	if err := s.scheduler.Shutdown(); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down scheduler")
	}
}

// refreshAll re-reads the reward rate of every gauged pool and recomputes its
// emission figures. Gauge reward rates drift between pool events; swaps on a
// quiet pool may be hours apart.
func (s *EmissionsScheduler) refreshAll(ctx context.Context) {
	s.logger.Info().Msg("Starting emissions refresh")
	start := time.Now()

	pools, err := s.store.PoolsWithGauge(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list gauged pools")
		return
	}

	successCount := 0
	for _, pool := range pools {
		if pool.GaugeAddress == nil {
			continue
		}

		rate, err := s.reader.RewardRate(ctx, common.HexToAddress(*pool.GaugeAddress))
		if err != nil {
			s.logger.Warn().Err(err).
				Str("pool", pool.Address).
				Str("gauge", *pool.GaugeAddress).
				Msg("Failed to read reward rate")
			continue
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

		if err := s.store.SavePool(ctx, pool); err != nil {
			s.logger.Error().Err(err).Str("pool", pool.Address).Msg("Failed to save pool emissions")
			continue
		}
		successCount++
	}

	s.logger.Info().
		Int("success", successCount).
		Int("total", len(pools)).
		Dur("duration", time.Since(start)).
		Msg("Emissions refresh completed")
}
