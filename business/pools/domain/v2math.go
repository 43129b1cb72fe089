package domain

import (
	"math/big"

	"github.com/fd1az/dexarb/internal/apperror"
)

var (
	big997  = big.NewInt(997)
	big1000 = big.NewInt(1000)
)

// V2AmountOut computes the constant-product swap output with the 0.3% fee:
//
//	out = in*997*reserveOut / (reserveIn*1000 + in*997)
//
// Integer math throughout; truncation rounds against the trader. Zero input
// or an empty reserve returns a no-liquidity error.
func V2AmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, apperror.New(apperror.CodeInvalidTradeSize, apperror.WithContext("amountIn must be positive"))
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, apperror.New(apperror.CodeNoLiquidity)
	}

	inWithFee := new(big.Int).Mul(amountIn, big997)
	numerator := new(big.Int).Mul(inWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big1000)
	denominator.Add(denominator, inWithFee)

	return numerator.Div(numerator, denominator), nil
}

// V2AmountIn computes the input required for an exact output; the inverse of
// V2AmountOut, rounded up so the quoted input always suffices.
func V2AmountIn(amountOut, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, apperror.New(apperror.CodeInvalidTradeSize, apperror.WithContext("amountOut must be positive"))
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, apperror.New(apperror.CodeNoLiquidity)
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithContext("requested output exceeds pool reserve"))
	}

	numerator := new(big.Int).Mul(reserveIn, amountOut)
	numerator.Mul(numerator, big1000)
	denominator := new(big.Int).Sub(reserveOut, amountOut)
	denominator.Mul(denominator, big997)

	in := numerator.Div(numerator, denominator)
	return in.Add(in, big.NewInt(1)), nil
}

// V2Swap simulates a swap against the pool and returns the output plus the
// projected post-swap reserves. tokenIn selects the direction; it must be
// one of the pair's tokens.
func (p *V2Pool) V2Swap(amountIn *big.Int, zeroForOne bool) (amountOut *big.Int, post *V2Pool, err error) {
	var reserveIn, reserveOut *big.Int
	if zeroForOne {
		reserveIn, reserveOut = p.Reserve0, p.Reserve1
	} else {
		reserveIn, reserveOut = p.Reserve1, p.Reserve0
	}

	amountOut, err = V2AmountOut(amountIn, reserveIn, reserveOut)
	if err != nil {
		return nil, nil, err
	}

	post = &V2Pool{
		Address:     p.Address,
		Venue:       p.Venue,
		Pair:        p.Pair,
		LastUpdated: p.LastUpdated,
	}
	if zeroForOne {
		post.Reserve0 = new(big.Int).Add(p.Reserve0, amountIn)
		post.Reserve1 = new(big.Int).Sub(p.Reserve1, amountOut)
	} else {
		post.Reserve0 = new(big.Int).Sub(p.Reserve0, amountOut)
		post.Reserve1 = new(big.Int).Add(p.Reserve1, amountIn)
	}

	return amountOut, post, nil
}

// V2PriceImpact returns the relative price degradation of a trade versus the
// spot price, as a percentage.
func V2PriceImpact(amountIn, reserveIn, reserveOut *big.Int) float64 {
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return 100
	}

	out, err := V2AmountOut(amountIn, reserveIn, reserveOut)
	if err != nil || out.Sign() == 0 {
		return 100
	}

	rIn, _ := new(big.Float).SetInt(reserveIn).Float64()
	rOut, _ := new(big.Float).SetInt(reserveOut).Float64()
	in, _ := new(big.Float).SetInt(amountIn).Float64()
	o, _ := new(big.Float).SetInt(out).Float64()

	spot := rOut / rIn
	execution := o / in
	return (spot - execution) / spot * 100
}
