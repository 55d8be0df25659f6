package store

import (
	"context"
	"sync"

	"github.com/aerostream/indexer/internal/entity"
)

// Memory is an in-process Store used by tests and as a working-set cache.
// Loads return copies so callers can follow load-mutate-save without
// aliasing stored state.
type Memory struct {
	mu sync.RWMutex

	pools      map[string]*entity.Pool
	tokens     map[string]*entity.Token
	events     map[string]*entity.PoolEvent
	factories  map[string]*entity.Factory
	poolHours   map[string]*entity.PoolHourData
	poolDays    map[string]*entity.PoolDayData
	tokenDays   map[string]*entity.TokenDayData
	factoryDays map[string]*entity.FactoryDayData
	syncStates  map[string]uint64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		pools:      make(map[string]*entity.Pool),
		tokens:     make(map[string]*entity.Token),
		events:     make(map[string]*entity.PoolEvent),
		factories:  make(map[string]*entity.Factory),
		poolHours:   make(map[string]*entity.PoolHourData),
		poolDays:    make(map[string]*entity.PoolDayData),
		tokenDays:   make(map[string]*entity.TokenDayData),
		factoryDays: make(map[string]*entity.FactoryDayData),
		syncStates:  make(map[string]uint64),
	}
}

func clonePool(p *entity.Pool) *entity.Pool {
	cp := *p
	if p.GaugeAddress != nil {
		g := *p.GaugeAddress
		cp.GaugeAddress = &g
	}
	return &cp
}

func cloneEvent(e *entity.PoolEvent) *entity.PoolEvent {
	ce := *e
	if e.AmountUSD != nil {
		usd := *e.AmountUSD
		ce.AmountUSD = &usd
	}
	return &ce
}

func (m *Memory) Pool(_ context.Context, address string) (*entity.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[address]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePool(p), nil
}

func (m *Memory) SavePool(_ context.Context, pool *entity.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[pool.Address] = clonePool(pool)
	return nil
}

func (m *Memory) PoolByTokens(_ context.Context, tokenA, tokenB string) (*entity.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *entity.Pool
	for _, p := range m.pools {
		if (p.Token0 == tokenA && p.Token1 == tokenB) || (p.Token0 == tokenB && p.Token1 == tokenA) {
			if best == nil || p.TVLUSD.GreaterThan(best.TVLUSD) {
				best = p
			}
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return clonePool(best), nil
}

func (m *Memory) PoolsWithGauge(_ context.Context) ([]*entity.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*entity.Pool
	for _, p := range m.pools {
		if p.GaugeAddress != nil {
			out = append(out, clonePool(p))
		}
	}
	return out, nil
}

func (m *Memory) Token(_ context.Context, address string) (*entity.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[address]
	if !ok {
		return nil, ErrNotFound
	}
	ct := *t
	return &ct, nil
}

func (m *Memory) SaveToken(_ context.Context, token *entity.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ct := *token
	m.tokens[token.Address] = &ct
	return nil
}

func (m *Memory) PoolEvent(_ context.Context, id string) (*entity.PoolEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEvent(e), nil
}

func (m *Memory) SavePoolEvent(_ context.Context, ev *entity.PoolEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.ID] = cloneEvent(ev)
	return nil
}

func (m *Memory) Factory(_ context.Context, address string) (*entity.Factory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.factories[address]
	if !ok {
		return nil, ErrNotFound
	}
	cf := *f
	return &cf, nil
}

func (m *Memory) SaveFactory(_ context.Context, f *entity.Factory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cf := *f
	m.factories[f.Address] = &cf
	return nil
}

func (m *Memory) PoolHourData(_ context.Context, id string) (*entity.PoolHourData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.poolHours[id]
	if !ok {
		return nil, ErrNotFound
	}
	cd := *d
	return &cd, nil
}

func (m *Memory) SavePoolHourData(_ context.Context, d *entity.PoolHourData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cd := *d
	m.poolHours[d.ID] = &cd
	return nil
}

func (m *Memory) PoolDayData(_ context.Context, id string) (*entity.PoolDayData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.poolDays[id]
	if !ok {
		return nil, ErrNotFound
	}
	cd := *d
	return &cd, nil
}

func (m *Memory) SavePoolDayData(_ context.Context, d *entity.PoolDayData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cd := *d
	m.poolDays[d.ID] = &cd
	return nil
}

func (m *Memory) TokenDayData(_ context.Context, id string) (*entity.TokenDayData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.tokenDays[id]
	if !ok {
		return nil, ErrNotFound
	}
	cd := *d
	return &cd, nil
}

func (m *Memory) SaveTokenDayData(_ context.Context, d *entity.TokenDayData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cd := *d
	m.tokenDays[d.ID] = &cd
	return nil
}

func (m *Memory) FactoryDayData(_ context.Context, id string) (*entity.FactoryDayData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.factoryDays[id]
	if !ok {
		return nil, ErrNotFound
	}
	cd := *d
	return &cd, nil
}

func (m *Memory) SaveFactoryDayData(_ context.Context, d *entity.FactoryDayData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cd := *d
	m.factoryDays[d.ID] = &cd
	return nil
}

func (m *Memory) SyncState(_ context.Context, module string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.syncStates[module], nil
}

func (m *Memory) SaveSyncState(_ context.Context, module string, block uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if block > m.syncStates[module] {
		m.syncStates[module] = block
	}
	return nil
}
