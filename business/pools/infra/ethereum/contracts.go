// Package ethereum implements the pools context's on-chain adapters: pool
// discovery, batched state sync over Multicall3, and token metadata reads.
package ethereum

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	tracerName = "github.com/fd1az/dexarb/business/pools/infra/ethereum"
	meterName  = "github.com/fd1az/dexarb/business/pools/infra/ethereum"
)

// Multicall3ABI covers aggregate3 plus the block-number helper that gets
// prepended to every batch so results carry the block they were read at.
const Multicall3ABI = `[
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "target", "type": "address"},
					{"internalType": "bool", "name": "allowFailure", "type": "bool"},
					{"internalType": "bytes", "name": "callData", "type": "bytes"}
				],
				"internalType": "struct Multicall3.Call3[]",
				"name": "calls",
				"type": "tuple[]"
			}
		],
		"name": "aggregate3",
		"outputs": [
			{
				"components": [
					{"internalType": "bool", "name": "success", "type": "bool"},
					{"internalType": "bytes", "name": "returnData", "type": "bytes"}
				],
				"internalType": "struct Multicall3.Result[]",
				"name": "returnData",
				"type": "tuple[]"
			}
		],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getBlockNumber",
		"outputs": [{"internalType": "uint256", "name": "blockNumber", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// V2PairABI covers the reserve read and token ordering of a constant-product
// pair contract.
const V2PairABI = `[
	{
		"inputs": [],
		"name": "getReserves",
		"outputs": [
			{"internalType": "uint112", "name": "reserve0", "type": "uint112"},
			{"internalType": "uint112", "name": "reserve1", "type": "uint112"},
			{"internalType": "uint32", "name": "blockTimestampLast", "type": "uint32"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "token0",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "token1",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// V3PoolABI covers slot0 and liquidity for Uniswap-style pools.
const V3PoolABI = `[
	{
		"inputs": [],
		"name": "slot0",
		"outputs": [
			{"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
			{"internalType": "int24", "name": "tick", "type": "int24"},
			{"internalType": "uint16", "name": "observationIndex", "type": "uint16"},
			{"internalType": "uint16", "name": "observationCardinality", "type": "uint16"},
			{"internalType": "uint16", "name": "observationCardinalityNext", "type": "uint16"},
			{"internalType": "uint8", "name": "feeProtocol", "type": "uint8"},
			{"internalType": "bool", "name": "unlocked", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "liquidity",
		"outputs": [{"internalType": "uint128", "name": "", "type": "uint128"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "token0",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// AlgebraPoolABI covers globalState, the Algebra equivalent of slot0. The
// fee field is the live dynamic fee in millionths.
const AlgebraPoolABI = `[
	{
		"inputs": [],
		"name": "globalState",
		"outputs": [
			{"internalType": "uint160", "name": "price", "type": "uint160"},
			{"internalType": "int24", "name": "tick", "type": "int24"},
			{"internalType": "uint16", "name": "fee", "type": "uint16"},
			{"internalType": "uint16", "name": "timepointIndex", "type": "uint16"},
			{"internalType": "uint8", "name": "communityFeeToken0", "type": "uint8"},
			{"internalType": "uint8", "name": "communityFeeToken1", "type": "uint8"},
			{"internalType": "bool", "name": "unlocked", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "liquidity",
		"outputs": [{"internalType": "uint128", "name": "", "type": "uint128"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// ERC20ABI covers the metadata reads the pair builder needs.
const ERC20ABI = `[
	{
		"inputs": [],
		"name": "decimals",
		"outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "symbol",
		"outputs": [{"internalType": "string", "name": "", "type": "string"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// V2FactoryABI resolves pair contracts.
const V2FactoryABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "tokenA", "type": "address"},
			{"internalType": "address", "name": "tokenB", "type": "address"}
		],
		"name": "getPair",
		"outputs": [{"internalType": "address", "name": "pair", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// V3FactoryABI resolves per-tier pool contracts.
const V3FactoryABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "tokenA", "type": "address"},
			{"internalType": "address", "name": "tokenB", "type": "address"},
			{"internalType": "uint24", "name": "fee", "type": "uint24"}
		],
		"name": "getPool",
		"outputs": [{"internalType": "address", "name": "pool", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// AlgebraFactoryABI resolves the single dynamic-fee pool per pair.
const AlgebraFactoryABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "tokenA", "type": "address"},
			{"internalType": "address", "name": "tokenB", "type": "address"}
		],
		"name": "poolByPair",
		"outputs": [{"internalType": "address", "name": "pool", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// contractABIs holds every parsed ABI the adapters share.
type contractABIs struct {
	multicall      abi.ABI
	v2Pair         abi.ABI
	v3Pool         abi.ABI
	algebraPool    abi.ABI
	erc20          abi.ABI
	v2Factory      abi.ABI
	v3Factory      abi.ABI
	algebraFactory abi.ABI
}

func parseABIs() (*contractABIs, error) {
	parse := func(name, raw string, dst *abi.ABI) error {
		parsed, err := abi.JSON(strings.NewReader(raw))
		if err != nil {
			return fmt.Errorf("parse %s ABI: %w", name, err)
		}
		*dst = parsed
		return nil
	}

	c := &contractABIs{}
	for _, p := range []struct {
		name string
		raw  string
		dst  *abi.ABI
	}{
		{"multicall3", Multicall3ABI, &c.multicall},
		{"v2 pair", V2PairABI, &c.v2Pair},
		{"v3 pool", V3PoolABI, &c.v3Pool},
		{"algebra pool", AlgebraPoolABI, &c.algebraPool},
		{"erc20", ERC20ABI, &c.erc20},
		{"v2 factory", V2FactoryABI, &c.v2Factory},
		{"v3 factory", V3FactoryABI, &c.v3Factory},
		{"algebra factory", AlgebraFactoryABI, &c.algebraFactory},
	} {
		if err := parse(p.name, p.raw, p.dst); err != nil {
			return nil, err
		}
	}
	return c, nil
}
