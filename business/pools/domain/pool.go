package domain

import (
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pair is a token pair in the pool contract's own ordering (tokens are
// sorted by address on-chain; config order is never trusted). Decimals are
// read from the token contracts once and cached; mis-scaling here corrupts
// every downstream price.
type Pair struct {
	Token0         common.Address
	Token1         common.Address
	Token0Decimals uint8
	Token1Decimals uint8
	Symbol         string
}

// V2Pool is the state of a constant-product pool.
type V2Pool struct {
	Address  common.Address
	Venue    Venue
	Pair     Pair
	Reserve0 *big.Int
	Reserve1 *big.Int
	// LastUpdated is the block height of the last successful refresh.
	LastUpdated uint64
}

// HasLiquidity reports whether both reserves are non-zero.
func (p *V2Pool) HasLiquidity() bool {
	return p.Reserve0 != nil && p.Reserve1 != nil &&
		p.Reserve0.Sign() > 0 && p.Reserve1.Sign() > 0
}

// Price returns the decimal-adjusted token1-per-token0 price:
// (reserve1 / reserve0) * 10^(dec0 - dec1). Zero when either reserve is zero.
func (p *V2Pool) Price() float64 {
	if !p.HasLiquidity() {
		return 0
	}
	r0, _ := new(big.Float).SetInt(p.Reserve0).Float64()
	r1, _ := new(big.Float).SetInt(p.Reserve1).Float64()
	if r0 == 0 {
		return 0
	}
	adjust := math.Pow(10, float64(p.Pair.Token0Decimals)-float64(p.Pair.Token1Decimals))
	return r1 / r0 * adjust
}

// V3Pool is the state of a concentrated-liquidity pool. SqrtPriceX96 is the
// Q64.96 square root of the token1/token0 price; Fee is in millionths
// (500 = 0.05%) and is the live dynamic value for Algebra pools.
type V3Pool struct {
	Address      common.Address
	Venue        Venue
	Pair         Pair
	SqrtPriceX96 *big.Int
	Tick         int32
	Fee          uint32
	Liquidity    *big.Int
	LastUpdated  uint64
}

// HasLiquidity reports whether the pool has in-range liquidity.
func (p *V3Pool) HasLiquidity() bool {
	return p.Liquidity != nil && p.Liquidity.Sign() > 0 &&
		p.SqrtPriceX96 != nil && p.SqrtPriceX96.Sign() > 0
}

// Price returns the decimal-adjusted token1-per-token0 price derived from
// the tick: 1.0001^tick * 10^(dec0 - dec1).
func (p *V3Pool) Price() float64 {
	raw := math.Pow(1.0001, float64(p.Tick))
	adjust := math.Pow(10, float64(p.Pair.Token0Decimals)-float64(p.Pair.Token1Decimals))
	return raw * adjust
}

// FeePercent returns the pool's fee as a percentage.
func (p *V3Pool) FeePercent() float64 {
	return float64(p.Fee) / 10_000.0
}

// PoolView is the mechanism-agnostic projection the detector works with:
// one entry per admitted pool of a pair.
type PoolView struct {
	Address    common.Address
	Venue      Venue
	PairSymbol string
	// Price is the decimal-adjusted token1-per-token0 price.
	Price float64
	// FeePercent is the protocol fee for one leg, in percent.
	FeePercent float64
	// FeeTier is the fee in millionths (V3) or 0 (V2/Algebra dynamic).
	FeeTier     uint32
	QuoteToken0 bool
	// Liquidity is a comparable depth scalar for whitelist thresholds:
	// the raw in-range liquidity for V3, sqrt(reserve0*reserve1) for V2.
	// It is NOT executable depth; only the quoter verifies that.
	Liquidity   float64
	LastUpdated uint64
}

// View projects a V2 pool for detection.
func (p *V2Pool) View(quoteToken0 bool) PoolView {
	liq := 0.0
	if p.HasLiquidity() {
		r0, _ := new(big.Float).SetInt(p.Reserve0).Float64()
		r1, _ := new(big.Float).SetInt(p.Reserve1).Float64()
		liq = math.Sqrt(r0 * r1)
	}
	return PoolView{
		Address:     p.Address,
		Venue:       p.Venue,
		PairSymbol:  p.Pair.Symbol,
		Price:       p.Price(),
		FeePercent:  0.30,
		QuoteToken0: quoteToken0,
		Liquidity:   liq,
		LastUpdated: p.LastUpdated,
	}
}

// View projects a V3 pool for detection.
func (p *V3Pool) View(quoteToken0 bool) PoolView {
	liq := 0.0
	if p.Liquidity != nil {
		liq, _ = new(big.Float).SetInt(p.Liquidity).Float64()
	}
	return PoolView{
		Address:     p.Address,
		Venue:       p.Venue,
		PairSymbol:  p.Pair.Symbol,
		Price:       p.Price(),
		FeePercent:  p.FeePercent(),
		FeeTier:     p.Fee,
		QuoteToken0: quoteToken0,
		Liquidity:   liq,
		LastUpdated: p.LastUpdated,
	}
}

// IsStale reports whether the view is older than maxAge blocks.
func (v PoolView) IsStale(currentBlock, maxAge uint64) bool {
	return currentBlock > v.LastUpdated && currentBlock-v.LastUpdated > maxAge
}
