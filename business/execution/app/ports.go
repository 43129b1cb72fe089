// Package app contains the execution engine and its ports.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fd1az/dexarb/business/execution/domain"
	poolsapp "github.com/fd1az/dexarb/business/pools/app"
)

// TxCall is one fully-priced call ready to sign: the backend owns the key,
// the engine owns everything else.
type TxCall struct {
	To       common.Address
	Data     []byte
	Nonce    uint64
	GasLimit uint64
	FeeCap   *big.Int
	TipCap   *big.Int
}

// TxBackend is the signing and submission surface. One implementation per
// wallet; the engine never touches the key.
type TxBackend interface {
	// From is the wallet address trades are signed with.
	From() common.Address
	// PendingNonce returns the wallet's pending transaction count.
	PendingNonce(ctx context.Context) (uint64, error)
	// PackExecuteArb encodes the atomic arb call. Fees use the per-leg
	// routing sentinels: uint24 max marks a V2 leg, zero an Algebra leg.
	PackExecuteArb(token0, token1, routerBuy, routerSell common.Address,
		feeBuy, feeSell uint32, amountIn, minProfit *big.Int) ([]byte, error)
	// DryRun replays the call as an eth_call from the wallet; a revert
	// comes back as an error.
	DryRun(ctx context.Context, to common.Address, data []byte, gasLimit uint64) error
	// SignAndSubmit signs the call and broadcasts it, through the private
	// endpoint when one is configured.
	SignAndSubmit(ctx context.Context, call TxCall) (common.Hash, error)
	// Receipt returns the receipt for a hash, or nil when still pending.
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	// TokenBalance reads an ERC20 balance, for halt reconciliation.
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Close() error
}

// GasSource quotes the current gas price in wei.
type GasSource interface {
	GasPrice(ctx context.Context) (*big.Int, error)
}

// GasSourceFunc adapts a function to GasSource.
type GasSourceFunc func(ctx context.Context) (*big.Int, error)

func (f GasSourceFunc) GasPrice(ctx context.Context) (*big.Int, error) { return f(ctx) }

// Recorder is the accounting sink. Exactly one Record call per attempt.
type Recorder interface {
	Record(ctx context.Context, rec domain.TradeRecord) error
	Close() error
}

// PairSource resolves pair addresses and the current head, for sizing
// mempool-signal trades and stamping cooldowns. Implemented by the pools
// context's PoolService.
type PairSource interface {
	PairOrientations() []poolsapp.PairOrientation
	LastBlock() uint64
}
