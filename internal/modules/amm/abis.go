package amm

// Minimal ABIs for the factory and pool contracts. Event topic hashes are
// computed from these at registration time rather than hardcoded, since the
// pool's event signatures differ from plain UniswapV2 (indexed stable flag on
// PoolCreated, uint256 reserves on Sync).

const factoryABIJSON = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "token0", "type": "address"},
			{"indexed": true, "name": "token1", "type": "address"},
			{"indexed": true, "name": "stable", "type": "bool"},
			{"indexed": false, "name": "pool", "type": "address"},
			{"indexed": false, "name": "poolCount", "type": "uint256"}
		],
		"name": "PoolCreated",
		"type": "event"
	}
]`

const poolABIJSON = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "sender", "type": "address"},
			{"indexed": true, "name": "to", "type": "address"},
			{"indexed": false, "name": "amount0In", "type": "uint256"},
			{"indexed": false, "name": "amount1In", "type": "uint256"},
			{"indexed": false, "name": "amount0Out", "type": "uint256"},
			{"indexed": false, "name": "amount1Out", "type": "uint256"}
		],
		"name": "Swap",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "sender", "type": "address"},
			{"indexed": false, "name": "amount0", "type": "uint256"},
			{"indexed": false, "name": "amount1", "type": "uint256"}
		],
		"name": "Mint",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "sender", "type": "address"},
			{"indexed": true, "name": "to", "type": "address"},
			{"indexed": false, "name": "amount0", "type": "uint256"},
			{"indexed": false, "name": "amount1", "type": "uint256"}
		],
		"name": "Burn",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "name": "reserve0", "type": "uint256"},
			{"indexed": false, "name": "reserve1", "type": "uint256"}
		],
		"name": "Sync",
		"type": "event"
	}
]`
