// Package chain wraps the on-chain view calls the aggregator depends on:
// ERC20 metadata, pool supply and reserves, the voter's gauge registry,
// gauge reward rates, and the offchain price oracle.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// CallError wraps a failed contract call with enough context to log it.
type CallError struct {
	Contract common.Address
	Method   string
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call %s on %s: %v", e.Method, strings.ToLower(e.Contract.Hex()), e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// TokenMetadata is the on-chain ERC20 metadata. Missing fields fall back to
// defaults rather than failing the fetch: many tokens revert on name or
// symbol.
type TokenMetadata struct {
	Name     string
	Symbol   string
	Decimals int32
}

// Reader is the read-only chain access the engine and scheduler consume.
type Reader interface {
	TokenMetadata(ctx context.Context, token common.Address) (*TokenMetadata, error)
	TotalSupply(ctx context.Context, pool common.Address) (*big.Int, error)
	Reserves(ctx context.Context, pool common.Address) (reserve0, reserve1 *big.Int, err error)

	// PoolFee asks the factory for the pool's swap fee in basis points.
	PoolFee(ctx context.Context, pool common.Address, stable bool) (*big.Int, error)

	// GaugeForPool asks the voter contract for the pool's gauge. The zero
	// address means no gauge is registered.
	GaugeForPool(ctx context.Context, pool common.Address) (common.Address, error)
	RewardRate(ctx context.Context, gauge common.Address) (*big.Int, error)

	// RateToRef quotes a token in the reference currency via the offchain
	// oracle. The rate is a raw 1e18-scaled integer.
	RateToRef(ctx context.Context, token common.Address) (*big.Int, error)
	RateToRefWithConnectors(ctx context.Context, token common.Address, connectors []common.Address) (*big.Int, error)
}

const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

const poolABIJSON = `[
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"_reserve0","type":"uint256"},{"name":"_reserve1","type":"uint256"},{"name":"_blockTimestampLast","type":"uint256"}],"type":"function"}
]`

const factoryABIJSON = `[
	{"constant":true,"inputs":[{"name":"pool","type":"address"},{"name":"stable","type":"bool"}],"name":"getFee","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

const voterABIJSON = `[
	{"constant":true,"inputs":[{"name":"pool","type":"address"}],"name":"gauges","outputs":[{"name":"","type":"address"}],"type":"function"}
]`

const gaugeABIJSON = `[
	{"constant":true,"inputs":[],"name":"rewardRate","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

const oracleABIJSON = `[
	{"constant":true,"inputs":[{"name":"srcToken","type":"address"},{"name":"useSrcWrappers","type":"bool"}],"name":"getRateToEth","outputs":[{"name":"weightedRate","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"srcToken","type":"address"},{"name":"useSrcWrappers","type":"bool"},{"name":"customConnectors","type":"address[]"},{"name":"thresholdFilter","type":"uint256"}],"name":"getRateToEthWithCustomConnectors","outputs":[{"name":"weightedRate","type":"uint256"}],"type":"function"}
]`

// EthReader implements Reader against a go-ethereum client. Every call runs
// under its own timeout so one stuck node request never stalls event
// processing.
type EthReader struct {
	client      *ethclient.Client
	factory     common.Address
	voter       common.Address
	oracle      common.Address
	callTimeout time.Duration
	logger      zerolog.Logger

	erc20ABI   abi.ABI
	poolABI    abi.ABI
	factoryABI abi.ABI
	voterABI   abi.ABI
	gaugeABI   abi.ABI
	oracleABI  abi.ABI
}

// NewEthReader builds a reader bound to the given factory, voter and oracle
// contracts.
func NewEthReader(client *ethclient.Client, factory, voter, oracle common.Address, callTimeout time.Duration, logger zerolog.Logger) (*EthReader, error) {
	r := &EthReader{
		client:      client,
		factory:     factory,
		voter:       voter,
		oracle:      oracle,
		callTimeout: callTimeout,
		logger:      logger.With().Str("component", "chain").Logger(),
	}
	if r.callTimeout <= 0 {
		r.callTimeout = 10 * time.Second
	}

	var err error
	for _, spec := range []struct {
		dst  *abi.ABI
		json string
	}{
		{&r.erc20ABI, erc20ABIJSON},
		{&r.poolABI, poolABIJSON},
		{&r.factoryABI, factoryABIJSON},
		{&r.voterABI, voterABIJSON},
		{&r.gaugeABI, gaugeABIJSON},
		{&r.oracleABI, oracleABIJSON},
	} {
		if *spec.dst, err = abi.JSON(strings.NewReader(spec.json)); err != nil {
			return nil, fmt.Errorf("failed to parse ABI: %w", err)
		}
	}

	return r, nil
}

func (r *EthReader) call(ctx context.Context, contractABI abi.ABI, address common.Address, results *[]interface{}, method string, args ...interface{}) error {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	contract := bind.NewBoundContract(address, contractABI, r.client, r.client, r.client)
	if err := contract.Call(&bind.CallOpts{Context: callCtx}, results, method, args...); err != nil {
		return &CallError{Contract: address, Method: method, Err: err}
	}
	return nil
}

func (r *EthReader) TokenMetadata(ctx context.Context, token common.Address) (*TokenMetadata, error) {
	metadata := &TokenMetadata{
		Name:     "Unknown",
		Symbol:   "???",
		Decimals: 18,
	}

	results := []interface{}{new(string)}
	if err := r.call(ctx, r.erc20ABI, token, &results, "name"); err != nil {
		r.logger.Debug().Err(err).Str("token", strings.ToLower(token.Hex())).Msg("Failed to fetch token name")
	} else if name, ok := results[0].(*string); ok && name != nil && *name != "" {
		metadata.Name = *name
	}

	results = []interface{}{new(string)}
	if err := r.call(ctx, r.erc20ABI, token, &results, "symbol"); err != nil {
		r.logger.Debug().Err(err).Str("token", strings.ToLower(token.Hex())).Msg("Failed to fetch token symbol")
	} else if symbol, ok := results[0].(*string); ok && symbol != nil && *symbol != "" {
		metadata.Symbol = *symbol
	}

	results = []interface{}{new(uint8)}
	if err := r.call(ctx, r.erc20ABI, token, &results, "decimals"); err != nil {
		r.logger.Debug().Err(err).Str("token", strings.ToLower(token.Hex())).Msg("Failed to fetch token decimals")
	} else if decimals, ok := results[0].(*uint8); ok && decimals != nil {
		metadata.Decimals = int32(*decimals)
	}

	return metadata, nil
}

func (r *EthReader) TotalSupply(ctx context.Context, pool common.Address) (*big.Int, error) {
	results := []interface{}{new(*big.Int)}
	if err := r.call(ctx, r.poolABI, pool, &results, "totalSupply"); err != nil {
		return nil, err
	}
	supply, ok := results[0].(**big.Int)
	if !ok || supply == nil || *supply == nil {
		return nil, &CallError{Contract: pool, Method: "totalSupply", Err: fmt.Errorf("unexpected result type")}
	}
	return *supply, nil
}

func (r *EthReader) Reserves(ctx context.Context, pool common.Address) (*big.Int, *big.Int, error) {
	results := []interface{}{new(*big.Int), new(*big.Int), new(*big.Int)}
	if err := r.call(ctx, r.poolABI, pool, &results, "getReserves"); err != nil {
		return nil, nil, err
	}
	reserve0, ok0 := results[0].(**big.Int)
	reserve1, ok1 := results[1].(**big.Int)
	if !ok0 || !ok1 || reserve0 == nil || reserve1 == nil {
		return nil, nil, &CallError{Contract: pool, Method: "getReserves", Err: fmt.Errorf("unexpected result type")}
	}
	return *reserve0, *reserve1, nil
}

func (r *EthReader) PoolFee(ctx context.Context, pool common.Address, stable bool) (*big.Int, error) {
	results := []interface{}{new(*big.Int)}
	if err := r.call(ctx, r.factoryABI, r.factory, &results, "getFee", pool, stable); err != nil {
		return nil, err
	}
	fee, ok := results[0].(**big.Int)
	if !ok || fee == nil || *fee == nil {
		return nil, &CallError{Contract: r.factory, Method: "getFee", Err: fmt.Errorf("unexpected result type")}
	}
	return *fee, nil
}

func (r *EthReader) GaugeForPool(ctx context.Context, pool common.Address) (common.Address, error) {
	results := []interface{}{new(common.Address)}
	if err := r.call(ctx, r.voterABI, r.voter, &results, "gauges", pool); err != nil {
		return common.Address{}, err
	}
	gauge, ok := results[0].(*common.Address)
	if !ok || gauge == nil {
		return common.Address{}, &CallError{Contract: r.voter, Method: "gauges", Err: fmt.Errorf("unexpected result type")}
	}
	return *gauge, nil
}

func (r *EthReader) RewardRate(ctx context.Context, gauge common.Address) (*big.Int, error) {
	results := []interface{}{new(*big.Int)}
	if err := r.call(ctx, r.gaugeABI, gauge, &results, "rewardRate"); err != nil {
		return nil, err
	}
	rate, ok := results[0].(**big.Int)
	if !ok || rate == nil || *rate == nil {
		return nil, &CallError{Contract: gauge, Method: "rewardRate", Err: fmt.Errorf("unexpected result type")}
	}
	return *rate, nil
}

func (r *EthReader) RateToRef(ctx context.Context, token common.Address) (*big.Int, error) {
	results := []interface{}{new(*big.Int)}
	if err := r.call(ctx, r.oracleABI, r.oracle, &results, "getRateToEth", token, true); err != nil {
		return nil, err
	}
	rate, ok := results[0].(**big.Int)
	if !ok || rate == nil || *rate == nil {
		return nil, &CallError{Contract: r.oracle, Method: "getRateToEth", Err: fmt.Errorf("unexpected result type")}
	}
	return *rate, nil
}

func (r *EthReader) RateToRefWithConnectors(ctx context.Context, token common.Address, connectors []common.Address) (*big.Int, error) {
	results := []interface{}{new(*big.Int)}
	if err := r.call(ctx, r.oracleABI, r.oracle, &results, "getRateToEthWithCustomConnectors",
		token, true, connectors, big.NewInt(1e18)); err != nil {
		return nil, err
	}
	rate, ok := results[0].(**big.Int)
	if !ok || rate == nil || *rate == nil {
		return nil, &CallError{Contract: r.oracle, Method: "getRateToEthWithCustomConnectors", Err: fmt.Errorf("unexpected result type")}
	}
	return *rate, nil
}
