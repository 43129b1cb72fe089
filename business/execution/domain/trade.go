// Package domain contains the execution context's core types: the trade
// pipeline states, the per-pair halt latch, and the nonce cache.
package domain

import (
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
)

// State is one stage of the trade pipeline.
type State uint8

const (
	StateIdle State = iota
	StateQuoting
	StateBuilding
	StateSubmitted
	StateConfirmedSuccess
	StateConfirmedRevert
	StateTimeout
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateQuoting:
		return "quoting"
	case StateBuilding:
		return "building"
	case StateSubmitted:
		return "submitted"
	case StateConfirmedSuccess:
		return "confirmed_success"
	case StateConfirmedRevert:
		return "confirmed_revert"
	case StateTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Status is the terminal outcome of one attempt, as written to the
// accounting sink. Every attempt ends in exactly one of these.
type Status string

const (
	// StatusDryRun means the pipeline ran through the eth_call check and
	// stopped there because live submission is disabled.
	StatusDryRun Status = "dry_run"
	// StatusRejectedGas means the affordable gas bid could not cover the
	// current market price.
	StatusRejectedGas Status = "rejected_gas"
	// StatusDryRunRevert means the pre-submission eth_call reverted.
	StatusDryRunRevert Status = "dry_run_revert"
	// StatusSubmitFailed means signing or broadcasting failed; nothing is
	// known to be on chain.
	StatusSubmitFailed Status = "submit_failed"
	// StatusConfirmed means the trade landed and the contract kept its
	// ending-balance guarantee.
	StatusConfirmed Status = "confirmed"
	// StatusReverted means the trade landed and reverted; only gas is lost.
	StatusReverted Status = "reverted"
	// StatusTimeout means the receipt never arrived inside the window; the
	// outcome is ambiguous and the pair is halted until reconciled.
	StatusTimeout Status = "timeout"
)

// Source tags where a trade request came from.
const (
	SourceDetector = "detector"
	SourceMempool  = "mempool"
)

// TradeRequest is everything the engine needs to build one executeArb call.
// TokenIn is the quote token the contract starts and ends in; TokenOut is
// the base token bought on the cheap venue and sold on the expensive one.
type TradeRequest struct {
	Source     string
	PairSymbol string

	TokenIn       common.Address
	TokenOut      common.Address
	QuoteDecimals uint8

	BuyVenue  poolsdomain.Venue
	SellVenue poolsdomain.Venue

	// AmountIn and MinProfit are raw quote token units.
	AmountIn  *big.Int
	MinProfit *big.Int

	TradeSizeUSD      float64
	ExpectedProfitUSD float64

	// MaxFeeWei and MaxTipWei, when set, further bound the gas bid. A
	// mempool backrun carries the trigger's bids here so it lands behind
	// the trigger instead of outbidding it.
	MaxFeeWei *big.Int
	MaxTipWei *big.Int
}

// TradeRecord is the accounting row for one attempt. Exactly one record is
// emitted per attempt, whatever the outcome.
type TradeRecord struct {
	Timestamp  time.Time
	Source     string
	PairSymbol string
	BuyVenue   poolsdomain.Venue
	SellVenue  poolsdomain.Venue

	TradeSizeUSD      float64
	AmountIn          *big.Int
	MinProfit         *big.Int
	ExpectedProfitUSD float64

	DryRun bool
	Status Status
	Error  string

	TxHash      common.Hash
	Nonce       uint64
	GasFeeWei   *big.Int
	GasTipWei   *big.Int
	GasUsed     uint64
	GasCostUSD  float64
	BlockNumber uint64

	Duration time.Duration
}

// Succeeded reports whether the attempt ended with the trade confirmed, or
// with a clean dry run.
func (r *TradeRecord) Succeeded() bool {
	return r.Status == StatusConfirmed || r.Status == StatusDryRun
}

// ScaleUSD converts a USD amount to raw units of a USD-pegged quote token.
func ScaleUSD(usd float64, decimals uint8) *big.Int {
	raw := usd * math.Pow(10, float64(decimals))
	if raw <= 0 || math.IsInf(raw, 0) || math.IsNaN(raw) {
		return new(big.Int)
	}
	f := new(big.Float).SetFloat64(raw)
	out, _ := f.Int(nil)
	return out
}
