package domain

import (
	"fmt"
	"math"
	"math/big"

	"github.com/fd1az/dexarb/internal/apperror"
)

// Q96 is the fixed-point scale of sqrtPriceX96 (2^96).
var Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

var maxUint160 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 160), big.NewInt(1))

// MaxTicksCrossed bounds the single-range V3 simulation. Crossing a tick
// boundary changes active liquidity, which this model does not track, so
// swaps that would cross more than this many ticks are rejected rather
// than mispriced.
const MaxTicksCrossed = 10

const feeDenominator = 1_000_000

// V3SwapResult is the outcome of a single-range concentrated-liquidity swap
// simulation.
type V3SwapResult struct {
	AmountOut       *big.Int
	NewSqrtPriceX96 *big.Int
	NewTick         int32
	TicksCrossed    int32
}

// nextSqrtPriceFromAmount0 computes the post-swap sqrt price when token0 is
// added (price decreases). Uses the precise rounding-up formula
//
//	ceil(L<<96 * sqrtP / (L<<96 + amount * sqrtP))
//
// and falls back to ceil(L<<96 / (L<<96/sqrtP + amount)) when the precise
// numerator would overflow 256 bits.
func nextSqrtPriceFromAmount0(sqrtPriceX96, liquidity, amountIn *big.Int) (*big.Int, error) {
	if amountIn.Sign() == 0 {
		return new(big.Int).Set(sqrtPriceX96), nil
	}

	numerator1 := new(big.Int).Lsh(liquidity, 96)

	product := new(big.Int).Mul(amountIn, sqrtPriceX96)
	denominator := new(big.Int).Add(numerator1, product)
	num := new(big.Int).Mul(numerator1, sqrtPriceX96)

	// The precise path matches the on-chain uint256 math only while the
	// intermediate product fits in 256 bits.
	if num.BitLen() <= 256 && denominator.BitLen() <= 256 {
		return ceilDiv(num, denominator), nil
	}

	// Fallback path, loses a little precision but never overflows.
	denom := new(big.Int).Div(numerator1, sqrtPriceX96)
	denom.Add(denom, amountIn)
	if denom.Sign() == 0 {
		return nil, apperror.New(apperror.CodeNoLiquidity)
	}
	return ceilDiv(numerator1, denom), nil
}

// nextSqrtPriceFromAmount1 computes the post-swap sqrt price when token1 is
// added (price increases): sqrtP + (amount << 96) / L.
func nextSqrtPriceFromAmount1(sqrtPriceX96, liquidity, amountIn *big.Int) (*big.Int, error) {
	quotient := new(big.Int).Lsh(amountIn, 96)
	quotient.Div(quotient, liquidity)

	next := new(big.Int).Add(sqrtPriceX96, quotient)
	if next.Cmp(maxUint160) > 0 {
		return nil, apperror.New(apperror.CodeSimulationFailed,
			apperror.WithContext("sqrt price overflow"))
	}
	return next, nil
}

func ceilDiv(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// TickFromSqrtPriceX96 derives the tick index from a Q64.96 sqrt price:
// floor(2 * ln(sqrtP / 2^96) / ln 1.0001). Float math is accurate to well
// within one tick for the price range pools actually trade in.
func TickFromSqrtPriceX96(sqrtPriceX96 *big.Int) int32 {
	sp, _ := new(big.Float).Quo(
		new(big.Float).SetInt(sqrtPriceX96),
		new(big.Float).SetInt(Q96),
	).Float64()
	if sp <= 0 {
		return 0
	}
	return int32(math.Floor(2 * math.Log(sp) / math.Log(1.0001)))
}

// PriceFromSqrtPriceX96 returns the decimal-adjusted token1-per-token0 price
// for a Q64.96 sqrt price.
func PriceFromSqrtPriceX96(sqrtPriceX96 *big.Int, dec0, dec1 uint8) float64 {
	sp, _ := new(big.Float).Quo(
		new(big.Float).SetInt(sqrtPriceX96),
		new(big.Float).SetInt(Q96),
	).Float64()
	return sp * sp * math.Pow(10, float64(dec0)-float64(dec1))
}

// V3Swap simulates a swap within the pool's current liquidity range.
// The pool fee (millionths) is taken off the input first, then the new sqrt
// price is computed for the net amount. Swaps that would cross more than
// MaxTicksCrossed tick boundaries are rejected because active liquidity is
// only known for the current range.
func (p *V3Pool) V3Swap(amountIn *big.Int, zeroForOne bool) (*V3SwapResult, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, apperror.New(apperror.CodeInvalidTradeSize, apperror.WithContext("amountIn must be positive"))
	}
	if !p.HasLiquidity() {
		return nil, apperror.New(apperror.CodeNoLiquidity)
	}

	// Fee first, in millionths of the input.
	afterFee := new(big.Int).Mul(amountIn, big.NewInt(int64(feeDenominator-p.Fee)))
	afterFee.Div(afterFee, big.NewInt(feeDenominator))
	if afterFee.Sign() == 0 {
		return nil, apperror.New(apperror.CodeInvalidTradeSize, apperror.WithContext("amount rounds to zero after fee"))
	}

	var (
		newSqrt *big.Int
		err     error
	)
	if zeroForOne {
		newSqrt, err = nextSqrtPriceFromAmount0(p.SqrtPriceX96, p.Liquidity, afterFee)
	} else {
		newSqrt, err = nextSqrtPriceFromAmount1(p.SqrtPriceX96, p.Liquidity, afterFee)
	}
	if err != nil {
		return nil, err
	}

	// Direction sanity: selling token0 must move the price down, selling
	// token1 must move it up. A violation means corrupted pool state.
	if zeroForOne && newSqrt.Cmp(p.SqrtPriceX96) > 0 {
		return nil, apperror.New(apperror.CodeSimulationFailed,
			apperror.WithContext("price increased on zeroForOne swap"))
	}
	if !zeroForOne && newSqrt.Cmp(p.SqrtPriceX96) < 0 {
		return nil, apperror.New(apperror.CodeSimulationFailed,
			apperror.WithContext("price decreased on oneForZero swap"))
	}

	var amountOut *big.Int
	if zeroForOne {
		// amount1 out = L * (sqrtP - sqrtP') / 2^96
		diff := new(big.Int).Sub(p.SqrtPriceX96, newSqrt)
		amountOut = new(big.Int).Mul(p.Liquidity, diff)
		amountOut.Rsh(amountOut, 96)
	} else {
		// amount0 out = L * (sqrtP' - sqrtP) * 2^96 / (sqrtP' * sqrtP)
		diff := new(big.Int).Sub(newSqrt, p.SqrtPriceX96)
		num := new(big.Int).Mul(p.Liquidity, diff)
		num.Lsh(num, 96)
		denom := new(big.Int).Mul(newSqrt, p.SqrtPriceX96)
		amountOut = num.Div(num, denom)
	}

	newTick := TickFromSqrtPriceX96(newSqrt)
	spacing := TickSpacing(p.Fee)
	delta := newTick - p.Tick
	if delta < 0 {
		delta = -delta
	}
	crossed := (delta + spacing - 1) / spacing
	if crossed > MaxTicksCrossed {
		return nil, apperror.New(apperror.CodeTickRangeExceeded,
			apperror.WithContext(fmt.Sprintf("swap crosses %d ticks (max %d)", crossed, MaxTicksCrossed)))
	}

	return &V3SwapResult{
		AmountOut:       amountOut,
		NewSqrtPriceX96: newSqrt,
		NewTick:         newTick,
		TicksCrossed:    crossed,
	}, nil
}

// PostSwap projects the pool state after a simulated swap. Liquidity is
// unchanged because the simulation never leaves the current range.
func (p *V3Pool) PostSwap(res *V3SwapResult) *V3Pool {
	return &V3Pool{
		Address:      p.Address,
		Venue:        p.Venue,
		Pair:         p.Pair,
		SqrtPriceX96: new(big.Int).Set(res.NewSqrtPriceX96),
		Tick:         res.NewTick,
		Fee:          p.Fee,
		Liquidity:    p.Liquidity,
		LastUpdated:  p.LastUpdated,
	}
}
