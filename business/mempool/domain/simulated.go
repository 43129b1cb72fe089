package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
)

// SimulatedPool is the projected state of one pool after a pending swap
// lands: the price it traded at before, and the price it will show after.
type SimulatedPool struct {
	Venue      poolsdomain.Venue
	PairSymbol string
	V3         bool

	PreSwapPrice  float64
	PostSwapPrice float64

	// V3 projection.
	PostSqrtPriceX96 *big.Int
	PostTick         int32

	// V2 projection.
	PostReserve0 *big.Int
	PostReserve1 *big.Int
}

// PriceImpactPct is the absolute relative price move the swap causes, in
// percent.
func (s *SimulatedPool) PriceImpactPct() float64 {
	if s.PreSwapPrice == 0 {
		return 0
	}
	impact := (s.PostSwapPrice - s.PreSwapPrice) / s.PreSwapPrice * 100
	if impact < 0 {
		impact = -impact
	}
	return impact
}

// SimulatedOpportunity is a cross-venue spread that a pending swap is about
// to create. Sizes and profit are estimates against the projected state;
// nothing here has been depth-verified.
type SimulatedOpportunity struct {
	TxHash          common.Hash
	TriggerVenue    poolsdomain.Venue
	TriggerFunction string

	PairSymbol string
	ZeroForOne bool
	AmountIn   *big.Int

	PreSwapPrice   float64
	PostSwapPrice  float64
	PriceImpactPct float64

	BuyVenue  poolsdomain.Venue
	SellVenue poolsdomain.Venue
	// SpreadPct is the fee-adjusted executable spread, in percent.
	SpreadPct    float64
	EstProfitUSD float64

	DetectedAt time.Time
}

// Signal is handed to the execution loop when a simulated opportunity
// clears the mempool thresholds.
type Signal struct {
	Opportunity SimulatedOpportunity
	// GasPrice and PriorityFee are the trigger transaction's bids; a
	// backrun has to land behind it, not outbid it.
	GasPrice    *big.Int
	PriorityFee *big.Int
	SeenAt      time.Time
}
