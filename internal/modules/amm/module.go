// Package amm is the pool-state aggregation engine: it consumes factory and
// pool event logs and maintains pools, tokens, pool events, protocol totals
// and the hour/day rollups.
package amm

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/aerostream/indexer/internal/chain"
	"github.com/aerostream/indexer/internal/entity"
	"github.com/aerostream/indexer/internal/modules/core"
	"github.com/aerostream/indexer/internal/modules/loader"
	"github.com/aerostream/indexer/internal/prices"
	"github.com/aerostream/indexer/internal/rollup"
	"github.com/aerostream/indexer/internal/store"
)

// Reserve update strategies. One strategy per deployment; they are never
// mixed for a pool.
const (
	StrategyEventDelta   = "event-delta"
	StrategySyncSnapshot = "sync-snapshot"
)

// EventPublisher pushes processed pool events to subscribers. Publishing is
// fire-and-forget; failures never block event processing.
type EventPublisher interface {
	PublishPoolEvent(ctx context.Context, ev *entity.PoolEvent)
}

// Module implements the core.Module interface for AMM pool indexing
type Module struct {
	store    store.Store
	manifest *core.Manifest
	logger   zerolog.Logger
	parser   *core.EventParser

	reader    chain.Reader
	resolver  *prices.Resolver
	rollup    *rollup.Manager
	publisher EventPublisher
	ethClient *ethclient.Client

	factoryAddress common.Address
	factoryABI     *abi.ABI
	poolABI        *abi.ABI

	config *Config

	// Event handlers keyed by topic0, computed from the embedded ABIs
	handlers map[common.Hash]EventHandler

	locks *keyedMutex

	tsMu         sync.Mutex
	tsCache      map[uint64]int64
	timestampFor func(ctx context.Context, blockNumber uint64) int64
}

// Config represents the module configuration, parsed from the manifest
// context.
type Config struct {
	FactoryAddress     string   `yaml:"factoryAddress"`
	VoterAddress       string   `yaml:"voterAddress"`
	OracleAddress      string   `yaml:"oracleAddress"`
	RefToken           string   `yaml:"refToken"`
	UsdToken           string   `yaml:"usdToken"`
	Connectors         []string `yaml:"connectors"`
	RPCEndpoint        string   `yaml:"rpcEndpoint"`
	ReserveStrategy    string   `yaml:"reserveStrategy"`
	CallTimeoutSeconds int      `yaml:"callTimeoutSeconds"`
}

// EventHandler function type for handling specific events
type EventHandler func(ctx context.Context, module *Module, event *core.ParsedEvent) error

// New creates the AMM module from its manifest file.
func New(manifestPath string, logger zerolog.Logger) (*Module, error) {
	manifestLoader := loader.NewManifestLoader(logger)
	manifest, err := manifestLoader.LoadFromFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	// Parse configuration from manifest context
	var config Config
	if manifest.Context != nil {
		contextBytes, _ := yaml.Marshal(manifest.Context)
		if err := yaml.Unmarshal(contextBytes, &config); err != nil {
			return nil, fmt.Errorf("failed to parse module config: %w", err)
		}
	}

	// Normalize address casing from config to avoid user formatting requirements
	config.FactoryAddress = strings.ToLower(config.FactoryAddress)
	config.VoterAddress = strings.ToLower(config.VoterAddress)
	config.OracleAddress = strings.ToLower(config.OracleAddress)
	config.RefToken = strings.ToLower(config.RefToken)
	config.UsdToken = strings.ToLower(config.UsdToken)
	for i := range config.Connectors {
		config.Connectors[i] = strings.ToLower(config.Connectors[i])
	}
	if config.ReserveStrategy == "" {
		config.ReserveStrategy = StrategyEventDelta
	}
	if config.ReserveStrategy != StrategyEventDelta && config.ReserveStrategy != StrategySyncSnapshot {
		return nil, fmt.Errorf("unknown reserve strategy %q", config.ReserveStrategy)
	}

	module := &Module{
		manifest:       manifest,
		logger:         logger.With().Str("module", manifest.Name).Logger(),
		parser:         core.NewEventParser(),
		factoryAddress: common.HexToAddress(config.FactoryAddress),
		config:         &config,
		handlers:       make(map[common.Hash]EventHandler),
		locks:          newKeyedMutex(),
		tsCache:        make(map[uint64]int64, 1024),
	}

	if err := module.initializeABIs(); err != nil {
		return nil, fmt.Errorf("failed to initialize ABIs: %w", err)
	}

	module.registerEventHandlers()

	return module, nil
}

func (m *Module) initializeABIs() error {
	factoryABI, err := abi.JSON(strings.NewReader(factoryABIJSON))
	if err != nil {
		return fmt.Errorf("failed to parse factory ABI: %w", err)
	}
	poolABI, err := abi.JSON(strings.NewReader(poolABIJSON))
	if err != nil {
		return fmt.Errorf("failed to parse pool ABI: %w", err)
	}

	m.factoryABI = &factoryABI
	m.poolABI = &poolABI

	m.parser.AddContract(m.factoryAddress, m.factoryABI)
	// Pool instances are discovered at runtime; index their events globally.
	m.parser.AddABI(m.poolABI)

	return nil
}

// Name returns the module name
func (m *Module) Name() string {
	return m.manifest.Name
}

// Version returns the module version
func (m *Module) Version() string {
	return m.manifest.Version
}

// Manifest returns the module manifest
func (m *Module) Manifest() *core.Manifest {
	return m.manifest
}

// SetReader injects the chain reader
func (m *Module) SetReader(r chain.Reader) {
	m.reader = r
}

// SetResolver injects the price resolver
func (m *Module) SetResolver(r *prices.Resolver) {
	m.resolver = r
}

// SetPublisher injects the realtime publisher
func (m *Module) SetPublisher(p EventPublisher) {
	m.publisher = p
}

// SetEthClient injects the RPC client used for backfill and block timestamps
func (m *Module) SetEthClient(client *ethclient.Client) {
	m.ethClient = client
}

// Initialize sets up the module with its store
func (m *Module) Initialize(ctx context.Context, st store.Store) error {
	m.store = st
	m.rollup = rollup.NewManager(st, m.logger)

	// Connect to RPC if we have an endpoint configured and nothing injected
	if m.ethClient == nil && m.config.RPCEndpoint != "" {
		client, err := ethclient.Dial(m.config.RPCEndpoint)
		if err != nil {
			m.logger.Warn().Err(err).Msg("Failed to connect to RPC, contract reads disabled")
		} else {
			m.ethClient = client
			m.logger.Info().Str("endpoint", m.config.RPCEndpoint).Msg("Connected to RPC")
		}
	}

	if m.reader == nil && m.ethClient != nil {
		timeout := time.Duration(m.config.CallTimeoutSeconds) * time.Second
		reader, err := chain.NewEthReader(
			m.ethClient,
			m.factoryAddress,
			common.HexToAddress(m.config.VoterAddress),
			common.HexToAddress(m.config.OracleAddress),
			timeout,
			m.logger,
		)
		if err != nil {
			return fmt.Errorf("failed to build chain reader: %w", err)
		}
		m.reader = reader
	}

	if m.resolver == nil {
		m.resolver = prices.NewResolver(st, m.reader, m.config.RefToken, m.config.UsdToken, m.config.Connectors, m.logger)
	}

	// Ensure the factory entity exists
	factoryAddr := strings.ToLower(m.factoryAddress.Hex())
	if _, err := st.Factory(ctx, factoryAddr); err != nil {
		if err != store.ErrNotFound {
			return fmt.Errorf("failed to load factory: %w", err)
		}
		if err := st.SaveFactory(ctx, &entity.Factory{Address: factoryAddr}); err != nil {
			return fmt.Errorf("failed to initialize factory: %w", err)
		}
	}

	m.logger.Info().
		Str("factory", factoryAddr).
		Str("reserve_strategy", m.config.ReserveStrategy).
		Msg("AMM module initialized")
	return nil
}

// HandleEvent processes a single event log
func (m *Module) HandleEvent(ctx context.Context, log *types.Log) error {
	if len(log.Topics) == 0 {
		return nil
	}

	handler, exists := m.handlers[log.Topics[0]]
	if !exists {
		return nil
	}

	parsedEvent, err := m.parser.ParseEvent(log)
	if err != nil {
		return fmt.Errorf("failed to parse event: %w", err)
	}

	parsedEvent.Timestamp = big.NewInt(m.blockTimestamp(ctx, log.BlockNumber))

	if err := handler(ctx, m, parsedEvent); err != nil {
		return fmt.Errorf("handler %s: %w", parsedEvent.EventName, err)
	}

	if err := m.UpdateSyncState(ctx, log.BlockNumber); err != nil {
		m.logger.Warn().Err(err).Uint64("block", log.BlockNumber).Msg("Failed to update sync state")
	}

	return nil
}

// blockTimestamp resolves a block's timestamp through the RPC header,
// memoized per block.
func (m *Module) blockTimestamp(ctx context.Context, blockNumber uint64) int64 {
	m.tsMu.Lock()
	if ts, ok := m.tsCache[blockNumber]; ok {
		m.tsMu.Unlock()
		return ts
	}
	m.tsMu.Unlock()

	var ts int64
	if m.timestampFor != nil {
		ts = m.timestampFor(ctx, blockNumber)
	} else if m.ethClient != nil {
		hdr, err := m.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
		if err == nil && hdr != nil {
			ts = int64(hdr.Time)
		}
	}

	if ts > 0 {
		m.tsMu.Lock()
		m.tsCache[blockNumber] = ts
		m.tsMu.Unlock()
	}
	return ts
}

// GetEventFilters returns the event filters this module is interested in
func (m *Module) GetEventFilters() []core.EventFilter {
	filters := []core.EventFilter{
		{
			Address: m.factoryAddress.Hex(),
			Topic0:  m.factoryABI.Events["PoolCreated"].ID.Hex(),
		},
	}

	// Pool events arrive from addresses discovered at runtime, so filter by
	// topic only.
	for _, name := range []string{"Swap", "Mint", "Burn", "Sync"} {
		filters = append(filters, core.EventFilter{
			Topic0: m.poolABI.Events[name].ID.Hex(),
		})
	}

	return filters
}

// GetStartBlock returns the block number to start indexing from
func (m *Module) GetStartBlock() uint64 {
	if len(m.manifest.DataSources) > 0 && m.manifest.DataSources[0].Source.StartBlock != nil {
		return *m.manifest.DataSources[0].Source.StartBlock
	}
	return 0
}

// GetSyncState returns the last processed block for this module
func (m *Module) GetSyncState(ctx context.Context) (uint64, error) {
	return m.store.SyncState(ctx, m.Name())
}

// UpdateSyncState updates the last processed block for this module
func (m *Module) UpdateSyncState(ctx context.Context, blockNumber uint64) error {
	return m.store.SaveSyncState(ctx, m.Name(), blockNumber)
}

// Backfill replays historical logs from the chain. Factory logs are applied
// first so pools exist before their events, then pool logs are sharded by
// emitting address across an errgroup: per-pool order is preserved, only
// cross-pool work runs concurrently.
func (m *Module) Backfill(ctx context.Context, fromBlock, toBlock uint64) error {
	if m.ethClient == nil {
		return fmt.Errorf("backfill requires an RPC client")
	}

	m.logger.Info().
		Uint64("from", fromBlock).
		Uint64("to", toBlock).
		Msg("Starting AMM backfill")

	start := big.NewInt(0).SetUint64(fromBlock)
	end := big.NewInt(0).SetUint64(toBlock)

	// Factory logs first
	factoryLogs, err := m.ethClient.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: start,
		ToBlock:   end,
		Addresses: []common.Address{m.factoryAddress},
		Topics:    [][]common.Hash{{m.factoryABI.Events["PoolCreated"].ID}},
	})
	if err != nil {
		return fmt.Errorf("failed to fetch factory logs: %w", err)
	}

	for i := range factoryLogs {
		if err := m.HandleEvent(ctx, &factoryLogs[i]); err != nil {
			m.logger.Error().
				Err(err).
				Uint64("block", factoryLogs[i].BlockNumber).
				Msg("Failed to process factory event during backfill")
		}
	}

	poolTopics := []common.Hash{
		m.poolABI.Events["Swap"].ID,
		m.poolABI.Events["Mint"].ID,
		m.poolABI.Events["Burn"].ID,
		m.poolABI.Events["Sync"].ID,
	}

	poolLogs, err := m.ethClient.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: start,
		ToBlock:   end,
		Topics:    [][]common.Hash{poolTopics},
	})
	if err != nil {
		return fmt.Errorf("failed to fetch pool logs: %w", err)
	}

	// Shard by emitting address, keeping per-address log order
	shards := make(map[common.Address][]types.Log)
	for _, log := range poolLogs {
		shards[log.Address] = append(shards[log.Address], log)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	processed := 0
	var mu sync.Mutex
	for addr := range shards {
		logs := shards[addr]
		g.Go(func() error {
			count := 0
			for i := range logs {
				if err := m.HandleEvent(gctx, &logs[i]); err != nil {
					m.logger.Error().
						Err(err).
						Uint64("block", logs[i].BlockNumber).
						Str("tx", logs[i].TxHash.Hex()).
						Msg("Failed to process event during backfill")
					continue
				}
				count++
			}
			mu.Lock()
			processed += count
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.logger.Info().
		Uint64("from", fromBlock).
		Uint64("to", toBlock).
		Int("processed", processed).
		Msg("Completed AMM backfill")

	return nil
}

// keyedMutex serializes work per string key. Pool handlers hold the pool's
// lock for the whole handler; token mutations take per-token locks in sorted
// order to avoid lock-order inversion.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	return l
}

// Lock locks the key and returns the unlock function.
func (k *keyedMutex) Lock(key string) func() {
	l := k.get(key)
	l.Lock()
	return l.Unlock
}

// LockAll locks all keys in sorted order and returns a single unlock.
func (k *keyedMutex) LockAll(keys ...string) func() {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if !seen[key] {
			uniq = append(uniq, key)
			seen[key] = true
		}
	}
	sort.Strings(uniq)

	unlocks := make([]func(), 0, len(uniq))
	for _, key := range uniq {
		unlocks = append(unlocks, k.Lock(key))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}
