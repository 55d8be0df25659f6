// Package realtime pushes pool updates to Centrifugo subscribers. Individual
// pool events are published immediately; pool state snapshots are coalesced
// and flushed in batches so a busy block does not produce one message per
// log.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/centrifugal/gocent/v3"
	"github.com/rs/zerolog"

	"github.com/aerostream/indexer/internal/entity"
	"github.com/aerostream/indexer/internal/store"
)

type Publisher struct {
	gc           *gocent.Client
	store        store.Store
	logger       zerolog.Logger
	mu           sync.Mutex
	pending      map[string]struct{}
	flushCh      chan struct{}
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	currentBlock uint64
}

type PublishConfig struct {
	APIURL string
	APIKey string
}

func NewPublisher(config PublishConfig, st store.Store, logger zerolog.Logger) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())

	p := &Publisher{
		gc: gocent.New(gocent.Config{
			Addr: config.APIURL,
			Key:  config.APIKey,
		}),
		store:   st,
		logger:  logger.With().Str("component", "realtime-publisher").Logger(),
		pending: make(map[string]struct{}),
		flushCh: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}

	p.startFlusher()
	return p
}

func (p *Publisher) startFlusher() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-p.ctx.Done():
				p.logger.Info().Msg("Stopping publisher flusher")
				return
			case <-ticker.C:
				p.flush(p.ctx)
			case <-p.flushCh:
				p.flush(p.ctx)
			}
		}
	}()
}

// EnqueuePoolChanged marks a pool for inclusion in the next snapshot flush.
func (p *Publisher) EnqueuePoolChanged(address string) {
	addr := strings.ToLower(address)
	p.mu.Lock()
	p.pending[addr] = struct{}{}
	p.mu.Unlock()

	select {
	case p.flushCh <- struct{}{}:
	default:
	}
}

// PublishPoolEvent pushes a processed swap/deposit/withdraw to the pool's
// channel and queues the pool for a snapshot flush. Fire-and-forget.
func (p *Publisher) PublishPoolEvent(ctx context.Context, ev *entity.PoolEvent) {
	payload := map[string]any{
		"type":       "pool.event",
		"event_type": string(ev.Type),
		"data":       ev,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to marshal event payload")
		return
	}

	channel := fmt.Sprintf("amm.pool.%s", strings.ToLower(ev.Pool))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := p.gc.Publish(p.ctx, channel, payloadBytes); err != nil {
			// Ignore errors if context is cancelled (shutting down)
			if p.ctx.Err() != nil {
				return
			}
			p.logger.Warn().
				Err(err).
				Str("pool", ev.Pool).
				Str("channel", channel).
				Msg("Failed to publish pool event")
		}
	}()

	p.EnqueuePoolChanged(ev.Pool)
}

func (p *Publisher) SetCurrentBlock(blockNumber uint64) {
	p.mu.Lock()
	p.currentBlock = blockNumber
	p.mu.Unlock()
}

func (p *Publisher) Flush() {
	p.flush(p.ctx)
}

func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}

	addrs := make([]string, 0, len(p.pending))
	for addr := range p.pending {
		addrs = append(addrs, addr)
	}
	currentBlock := p.currentBlock
	p.pending = make(map[string]struct{})
	p.mu.Unlock()

	p.logger.Debug().
		Int("count", len(addrs)).
		Uint64("block", currentBlock).
		Msg("Flushing pool updates")

	pools := make([]*entity.Pool, 0, len(addrs))
	for _, addr := range addrs {
		pool, err := p.store.Pool(ctx, addr)
		if err != nil {
			p.logger.Warn().Err(err).Str("pool", addr).Msg("Failed to load pool for snapshot")
			continue
		}
		pools = append(pools, pool)
	}

	if len(pools) == 0 {
		return
	}

	timestamp := time.Now().UTC().Unix()

	for _, pool := range pools {
		payload := map[string]any{
			"type":         "pool.update",
			"block_number": currentBlock,
			"ts":           timestamp,
			"pool":         pool,
		}

		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			p.logger.Warn().Err(err).Msg("Failed to marshal pool payload")
			continue
		}

		channel := fmt.Sprintf("amm.pool.%s", pool.Address)
		if _, err := p.gc.Publish(ctx, channel, payloadBytes); err != nil {
			p.logger.Warn().
				Err(err).
				Str("pool", pool.Address).
				Str("channel", channel).
				Msg("Failed to publish pool update")
		}
	}

	items := make([]any, 0, len(pools))
	for _, pool := range pools {
		items = append(items, pool)
	}

	batchPayload := map[string]any{
		"type":         "pool.batch",
		"block_number": currentBlock,
		"ts":           timestamp,
		"items":        items,
	}

	batchPayloadBytes, err := json.Marshal(batchPayload)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to marshal batch payload")
		return
	}

	if _, err := p.gc.Publish(ctx, "amm.pools", batchPayloadBytes); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to publish batch update")
	} else {
		p.logger.Debug().
			Int("count", len(items)).
			Uint64("block", currentBlock).
			Msg("Published batch update")
	}
}

func (p *Publisher) Close() error {
	p.logger.Info().Msg("Closing publisher")
	p.cancel()
	p.wg.Wait()
	return nil
}
