// Package domain contains the detection context's core types: the
// opportunity model, the route cooldown, and whitelist admission.
package domain

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
)

// RouteKey identifies one directed arbitrage route. Cooldowns and halts are
// keyed by route, not by pool, so a failing venue combination is suppressed
// without blinding the detector to the rest of the pair.
type RouteKey struct {
	Pair string
	Buy  poolsdomain.Venue
	Sell poolsdomain.Venue
}

func (k RouteKey) String() string {
	return fmt.Sprintf("%s %s->%s", k.Pair, k.Buy, k.Sell)
}

// Opportunity is one detected arbitrage candidate: buy the base token on the
// cheaper pool, sell it on the more expensive one, settle in the quote token.
type Opportunity struct {
	PairSymbol  string
	Pair        poolsdomain.Pair
	QuoteToken0 bool

	Buy  poolsdomain.PoolView
	Sell poolsdomain.PoolView

	// BuyPrice and SellPrice are normalized base-in-quote prices, so BuyPrice
	// is always the lower of the two regardless of on-chain token ordering.
	BuyPrice  float64
	SellPrice float64

	// MidmarketSpreadPct ignores fees; ExecutableSpreadPct subtracts the
	// round-trip protocol fees. Both are fractions, not percent.
	MidmarketSpread  float64
	ExecutableSpread float64

	TradeSizeUSD   float64
	GrossProfitUSD float64
	SlippageUSD    float64
	GasCostUSD     float64
	NetProfitUSD   float64

	Block      uint64
	DetectedAt time.Time

	// Verified quote results, populated by the Multicall pre-screen. A
	// passthrough (batch transport failure) leaves Verified false with the
	// detector's own estimates standing.
	Verified      bool
	QuotedBuyOut  *big.Int
	QuotedSellOut *big.Int
}

// Route returns the cooldown key for this opportunity.
func (o *Opportunity) Route() RouteKey {
	return RouteKey{Pair: o.PairSymbol, Buy: o.Buy.Venue, Sell: o.Sell.Venue}
}

// QuoteToken returns the quote token address.
func (o *Opportunity) QuoteToken() common.Address {
	if o.QuoteToken0 {
		return o.Pair.Token0
	}
	return o.Pair.Token1
}

// BaseToken returns the base (traded) token address.
func (o *Opportunity) BaseToken() common.Address {
	if o.QuoteToken0 {
		return o.Pair.Token1
	}
	return o.Pair.Token0
}

// QuoteDecimals returns the quote token's decimals.
func (o *Opportunity) QuoteDecimals() uint8 {
	if o.QuoteToken0 {
		return o.Pair.Token0Decimals
	}
	return o.Pair.Token1Decimals
}

// BaseDecimals returns the base token's decimals.
func (o *Opportunity) BaseDecimals() uint8 {
	if o.QuoteToken0 {
		return o.Pair.Token1Decimals
	}
	return o.Pair.Token0Decimals
}

// TradeSizeRaw returns the trade size scaled to raw quote token units.
func (o *Opportunity) TradeSizeRaw() *big.Int {
	return scaleToRaw(o.TradeSizeUSD, o.QuoteDecimals())
}

// EstimatedBuyOutRaw returns the expected buy-leg output in raw base token
// units at the detector's buy price, scaled by haircut (1.0 = no haircut).
func (o *Opportunity) EstimatedBuyOutRaw(haircut float64) *big.Int {
	if o.BuyPrice <= 0 {
		return new(big.Int)
	}
	return scaleToRaw(o.TradeSizeUSD/o.BuyPrice*haircut, o.BaseDecimals())
}

func scaleToRaw(human float64, decimals uint8) *big.Int {
	raw := human * math.Pow(10, float64(decimals))
	if raw <= 0 || math.IsInf(raw, 0) || math.IsNaN(raw) {
		return new(big.Int)
	}
	f := new(big.Float).SetFloat64(raw)
	out, _ := f.Int(nil)
	return out
}

// NormalizePrice converts a pool's token1-per-token0 price into a
// base-in-quote price so pools of a pair compare on the same axis.
func NormalizePrice(v poolsdomain.PoolView) float64 {
	if !v.QuoteToken0 {
		return v.Price
	}
	if v.Price == 0 {
		return 0
	}
	return 1 / v.Price
}

// quoteRank orders candidate quote currencies; lower is preferred. Bridged
// USDC wins over native because its Polygon pools are still the deepest.
var quoteRank = map[string]int{
	"USDC.E": 0,
	"USDC":   1,
	"USDT":   2,
	"WETH":   3,
	"WMATIC": 4,
}

// QuoteRank returns the preference rank of a token symbol as a quote
// currency. Unknown symbols rank last.
func QuoteRank(symbol string) int {
	if r, ok := quoteRank[strings.ToUpper(symbol)]; ok {
		return r
	}
	return len(quoteRank)
}

var stableSymbols = map[string]bool{
	"USDC.E": true,
	"USDC":   true,
	"USDT":   true,
	"DAI":    true,
}

// IsStablePair reports whether both sides of a "BASE/QUOTE" symbol are
// stablecoins. The lowest V3 fee tier is only trusted on such pairs; on
// volatile pairs a 1bp pool is too thin for its price to mean anything.
func IsStablePair(pairSymbol string) bool {
	base, quote, ok := strings.Cut(pairSymbol, "/")
	if !ok {
		return false
	}
	return stableSymbols[strings.ToUpper(base)] && stableSymbols[strings.ToUpper(quote)]
}
