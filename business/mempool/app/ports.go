// Package app contains the mempool monitor, the post-swap simulator, and
// their ports.
package app

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	poolsapp "github.com/fd1az/dexarb/business/pools/app"
	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
)

// PendingTx is one pending transaction from the node's mempool feed, already
// filtered to the watched routers.
type PendingTx struct {
	Hash  common.Hash
	To    common.Address
	Input []byte
	// GasPrice and GasTipCap are the sender's bids, used to price a backrun
	// behind the trigger.
	GasPrice  *big.Int
	GasTipCap *big.Int
}

// PendingSource streams pending transactions addressed to the watched
// routers. The channel closes when the source shuts down for good.
type PendingSource interface {
	Pending(ctx context.Context) (<-chan PendingTx, error)
	Close() error
}

// ChainReader reads confirmed chain state for the block cross-reference
// loop. This is a dedicated connection: the shared block subscription
// already feeds detection.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	// BlockTxHashes returns the transaction hashes of the given block.
	BlockTxHashes(ctx context.Context, number uint64) ([]common.Hash, error)
}

// PoolSource is the read surface the simulator projects against.
// Implemented by the pools context's PoolService.
type PoolSource interface {
	V2ByVenue(venue poolsdomain.Venue, symbol string) (*poolsdomain.V2Pool, bool, error)
	V3ByVenue(venue poolsdomain.Venue, symbol string) (*poolsdomain.V3Pool, bool, error)
	ViewsByPair() map[string][]poolsdomain.PoolView
	PairOrientations() []poolsapp.PairOrientation
}

// PendingRecord is one decoded pending swap for the observation log.
type PendingRecord struct {
	Timestamp    time.Time
	TxHash       common.Hash
	Router       common.Address
	RouterName   string
	Function     string
	TokenIn      *common.Address
	TokenOut     *common.Address
	AmountIn     *big.Int
	AmountOutMin *big.Int
	FeeTier      *uint32
	GasPrice     *big.Int
	GasTipCap    *big.Int
}

// SimulatedRecord is one projected opportunity for the observation log.
type SimulatedRecord struct {
	Timestamp       time.Time
	TxHash          common.Hash
	TriggerVenue    string
	TriggerFunction string
	PairSymbol      string
	ZeroForOne      bool
	AmountIn        *big.Int
	PreSwapPrice    float64
	PostSwapPrice   float64
	PriceImpactPct  float64
	BuyVenue        string
	SellVenue       string
	SpreadPct       float64
	EstProfitUSD    float64
}

// AccuracyRecord scores one confirmed projection against the refreshed
// on-chain price.
type AccuracyRecord struct {
	Timestamp      time.Time
	TxHash         common.Hash
	PairSymbol     string
	Venue          string
	PredictedPrice float64
	ActualPrice    float64
	ErrorPct       float64
	LeadTime       time.Duration
}

// ObservationLog persists the monitor's research output. Implementations
// must tolerate being called from the hot path; failures are logged, never
// fatal.
type ObservationLog interface {
	LogPending(rec PendingRecord) error
	LogSimulated(rec SimulatedRecord) error
	LogAccuracy(rec AccuracyRecord) error
	Close() error
}
