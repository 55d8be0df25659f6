package core

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const transferABIJSON = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "from", "type": "address"},
			{"indexed": true, "name": "to", "type": "address"},
			{"indexed": false, "name": "value", "type": "uint256"}
		],
		"name": "Transfer",
		"type": "event"
	}
]`

func transferLog(t *testing.T, contractABI *abi.ABI) types.Log {
	t.Helper()
	from := common.HexToAddress("0x01")
	to := common.HexToAddress("0x02")
	return types.Log{
		Address: common.HexToAddress("0xc0ffee"),
		Topics: []common.Hash{
			contractABI.Events["Transfer"].ID,
			common.BytesToHash(common.LeftPadBytes(from.Bytes(), 32)),
			common.BytesToHash(common.LeftPadBytes(to.Bytes(), 32)),
		},
		Data:        common.LeftPadBytes(big.NewInt(1000).Bytes(), 32),
		BlockNumber: 42,
		TxHash:      common.HexToHash("0xaa"),
		Index:       3,
	}
}

func Test_EventParser_ParseEvent(t *testing.T) {
	contractABI, err := abi.JSON(strings.NewReader(transferABIJSON))
	require.NoError(t, err)

	parser := NewEventParser()
	parser.AddContract(common.HexToAddress("0xc0ffee"), &contractABI)
	assert.True(t, parser.HasContract(common.HexToAddress("0xc0ffee")))

	log := transferLog(t, &contractABI)
	parsed, err := parser.ParseEvent(&log)
	require.NoError(t, err)

	assert.Equal(t, "Transfer", parsed.EventName)
	assert.Equal(t, uint64(42), parsed.BlockNumber)
	assert.Equal(t, uint(3), parsed.LogIndex)

	from, ok := parsed.Args["from"].(common.Address)
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0x01"), from)

	value, ok := parsed.Args["value"].(*big.Int)
	require.True(t, ok)
	assert.Equal(t, int64(1000), value.Int64())
}

func Test_EventParser_AddABI_ParsesWithoutAddressBinding(t *testing.T) {
	contractABI, err := abi.JSON(strings.NewReader(transferABIJSON))
	require.NoError(t, err)

	parser := NewEventParser()
	parser.AddABI(&contractABI)
	assert.False(t, parser.HasContract(common.HexToAddress("0xc0ffee")))

	log := transferLog(t, &contractABI)
	parsed, err := parser.ParseEvent(&log)
	require.NoError(t, err)
	assert.Equal(t, "Transfer", parsed.EventName)
}

func Test_EventParser_UnknownTopic(t *testing.T) {
	parser := NewEventParser()

	log := types.Log{Topics: []common.Hash{common.HexToHash("0xdead")}}
	_, err := parser.ParseEvent(&log)
	var unknown ErrUnknownEvent
	require.ErrorAs(t, err, &unknown)
}

func Test_EventParser_NoTopics(t *testing.T) {
	parser := NewEventParser()

	_, err := parser.ParseEvent(&types.Log{})
	var invalid ErrInvalidEvent
	require.ErrorAs(t, err, &invalid)
}

func Test_Manifest_Validate(t *testing.T) {
	manifest := &Manifest{
		Name:    "test",
		Version: "1.0.0",
		DataSources: []DataSource{
			{
				Kind: "ethereum/contract",
				Name: "Factory",
				Source: DataSourceSource{
					ABI: "Factory",
				},
				Mapping: DataSourceMapping{
					EventHandlers: []EventHandler{{Event: "X()", Handler: "handleX"}},
				},
			},
		},
	}
	require.NoError(t, manifest.ValidateManifest())

	manifest.Name = ""
	require.Error(t, manifest.ValidateManifest())
}
