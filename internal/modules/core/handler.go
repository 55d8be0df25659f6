package core

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EventHandlerFunc is the function signature for event handlers
type EventHandlerFunc func(ctx context.Context, event *ParsedEvent) error

// ParsedEvent represents a decoded event log
type ParsedEvent struct {
	// Raw log data
	Log *types.Log

	// Event information
	EventName string
	Address   common.Address

	// Parsed event data
	Args map[string]interface{}

	// Transaction context
	TransactionHash  common.Hash
	TransactionIndex uint
	BlockNumber      uint64
	BlockHash        common.Hash
	LogIndex         uint

	// Additional context
	Timestamp *big.Int
}

// EventParser handles parsing of event logs using ABI definitions
type EventParser struct {
	mu        sync.RWMutex
	contracts map[common.Address]*abi.ABI
	events    map[common.Hash]*abi.Event // topic0 -> event
}

// NewEventParser creates a new event parser
func NewEventParser() *EventParser {
	return &EventParser{
		contracts: make(map[common.Address]*abi.ABI),
		events:    make(map[common.Hash]*abi.Event),
	}
}

// AddContract adds a contract ABI for parsing. Pool contracts are added
// dynamically as the factory creates them, so this is safe for concurrent use.
func (p *EventParser) AddContract(address common.Address, contractABI *abi.ABI) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.contracts[address] = contractABI

	// Index events by topic hash
	for name := range contractABI.Events {
		event := contractABI.Events[name]
		p.events[event.ID] = &event
	}
}

// AddABI indexes an ABI's events by topic hash without binding them to a
// contract address. Used for contract templates whose instances are
// discovered at runtime, like pools created by a factory.
func (p *EventParser) AddABI(contractABI *abi.ABI) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for name := range contractABI.Events {
		event := contractABI.Events[name]
		p.events[event.ID] = &event
	}
}

// HasContract reports whether an ABI is registered for the address.
func (p *EventParser) HasContract(address common.Address) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.contracts[address]
	return ok
}

// ParseEvent parses a log into a ParsedEvent
func (p *EventParser) ParseEvent(log *types.Log) (*ParsedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, ErrInvalidEvent{Reason: "no topics in log"}
	}

	// Find the event by topic0 (event signature)
	p.mu.RLock()
	eventABI, exists := p.events[log.Topics[0]]
	p.mu.RUnlock()
	if !exists {
		return nil, ErrUnknownEvent{Topic: log.Topics[0].Hex()}
	}

	args := make(map[string]interface{})

	// Parse indexed parameters (topics[1:])
	topicIndex := 1
	for _, input := range eventABI.Inputs {
		if input.Indexed {
			if topicIndex < len(log.Topics) {
				args[input.Name] = parseIndexedArg(log.Topics[topicIndex], input.Type)
				topicIndex++
			}
		}
	}

	// Parse non-indexed parameters (data field)
	if len(log.Data) > 0 {
		nonIndexedInputs := make(abi.Arguments, 0)
		for _, input := range eventABI.Inputs {
			if !input.Indexed {
				nonIndexedInputs = append(nonIndexedInputs, input)
			}
		}

		if len(nonIndexedInputs) > 0 {
			nonIndexedArgs, err := nonIndexedInputs.Unpack(log.Data)
			if err != nil {
				return nil, ErrEventParsing{Event: eventABI.Name, Err: err}
			}

			for i, input := range nonIndexedInputs {
				if i < len(nonIndexedArgs) {
					args[input.Name] = nonIndexedArgs[i]
				}
			}
		}
	}

	return &ParsedEvent{
		Log:              log,
		EventName:        eventABI.Name,
		Address:          log.Address,
		Args:             args,
		TransactionHash:  log.TxHash,
		TransactionIndex: log.TxIndex,
		BlockNumber:      log.BlockNumber,
		BlockHash:        log.BlockHash,
		LogIndex:         log.Index,
	}, nil
}

// parseIndexedArg converts a topic hash to the appropriate Go type
func parseIndexedArg(topic common.Hash, argType abi.Type) interface{} {
	switch argType.T {
	case abi.AddressTy:
		return common.HexToAddress(topic.Hex())
	case abi.IntTy, abi.UintTy:
		return new(big.Int).SetBytes(topic.Bytes())
	case abi.BoolTy:
		return topic.Big().Cmp(common.Big0) != 0
	case abi.BytesTy, abi.FixedBytesTy:
		return topic.Bytes()
	case abi.StringTy, abi.HashTy:
		return topic.Hex()
	default:
		// For complex types, return the raw hash
		return topic.Hex()
	}
}

// Error types
type ErrInvalidEvent struct {
	Reason string
}

func (e ErrInvalidEvent) Error() string {
	return "invalid event: " + e.Reason
}

type ErrUnknownEvent struct {
	Topic string
}

func (e ErrUnknownEvent) Error() string {
	return "unknown event topic: " + e.Topic
}

type ErrEventParsing struct {
	Event string
	Err   error
}

func (e ErrEventParsing) Error() string {
	return "failed to parse event " + e.Event + ": " + e.Err.Error()
}
