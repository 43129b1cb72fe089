// Package app contains application services and port definitions for the
// pools context.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/dexarb/business/pools/domain"
)

// V2State is one pool's reserve snapshot as returned by the chain.
type V2State struct {
	Address  common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
	Block    uint64
}

// V3Target identifies a concentrated-liquidity pool to refresh. Algebra
// pools expose globalState instead of slot0 and carry a dynamic fee.
type V3Target struct {
	Address common.Address
	Algebra bool
}

// V3State is one pool's price/liquidity snapshot as returned by the chain.
type V3State struct {
	Address      common.Address
	SqrtPriceX96 *big.Int
	Tick         int32
	// Fee is only populated for Algebra pools (dynamic); static-tier pools
	// keep the fee from their venue.
	Fee       uint32
	Liquidity *big.Int
	Block     uint64
}

// V2Syncer batch-reads reserve state for V2 pools.
type V2Syncer interface {
	Sync(ctx context.Context, addrs []common.Address) ([]V2State, error)
}

// V3Syncer batch-reads price and liquidity state for V3 pools.
type V3Syncer interface {
	Sync(ctx context.Context, targets []V3Target) ([]V3State, error)
}

// PoolDiscoverer resolves pool addresses from factory contracts at startup.
type PoolDiscoverer interface {
	// V2Pool returns the pair contract for two tokens, or the zero address
	// when the factory has no pool.
	V2Pool(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error)
	// V3Pool returns the pool for two tokens at a fee tier.
	V3Pool(ctx context.Context, factory, tokenA, tokenB common.Address, fee uint32) (common.Address, error)
	// AlgebraPool returns the single dynamic-fee pool for two tokens.
	AlgebraPool(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error)
	// Token0 returns the pool contract's token0, which fixes the canonical
	// ordering regardless of config order.
	Token0(ctx context.Context, pool common.Address) (common.Address, error)
}

// TokenMetadata reads ERC-20 metadata. Implementations cache aggressively;
// decimals never change after deployment.
type TokenMetadata interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// PriceLogger persists per-pool price observations for offline analysis.
type PriceLogger interface {
	Log(block uint64, views []domain.PoolView) error
	Close() error
}
