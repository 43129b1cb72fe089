// Package domain contains the core domain types for the pools context:
// venue identity, pool state for both AMM mechanisms, and the pure swap
// simulation math.
package domain

// Venue identifies a DEX deployment. V3 venues are split per fee tier
// because each tier is a distinct pool with its own liquidity.
type Venue uint8

const (
	VenueUnknown Venue = iota
	QuickSwapV2
	SushiSwapV2
	UniswapV3Fee100
	UniswapV3Fee500
	UniswapV3Fee3000
	UniswapV3Fee10000
	SushiSwapV3Fee500
	// QuickSwapV3 is an Algebra deployment: single pool per pair with a
	// dynamic fee read from pool state, not a tier.
	QuickSwapV3
)

// V2FeeSentinel is the uint24 maximum, reserved in the executor contract's
// leg encoding to mean "route this leg through a V2 router". It can never
// collide with a real V3 tier (tiers are well below 2^24-1).
const V2FeeSentinel uint32 = 16_777_215

// AlgebraFeeSentinel marks a dynamic-fee Algebra leg in the executor call.
const AlgebraFeeSentinel uint32 = 0

func (v Venue) String() string {
	switch v {
	case QuickSwapV2:
		return "QuickSwapV2"
	case SushiSwapV2:
		return "SushiSwapV2"
	case UniswapV3Fee100:
		return "UniswapV3-0.01%"
	case UniswapV3Fee500:
		return "UniswapV3-0.05%"
	case UniswapV3Fee3000:
		return "UniswapV3-0.30%"
	case UniswapV3Fee10000:
		return "UniswapV3-1.00%"
	case SushiSwapV3Fee500:
		return "SushiV3-0.05%"
	case QuickSwapV3:
		return "QuickSwapV3"
	default:
		return "Unknown"
	}
}

// IsV2 reports whether the venue uses the constant-product mechanism.
func (v Venue) IsV2() bool {
	return v == QuickSwapV2 || v == SushiSwapV2
}

// IsV3 reports whether the venue uses concentrated liquidity.
func (v Venue) IsV3() bool {
	switch v {
	case UniswapV3Fee100, UniswapV3Fee500, UniswapV3Fee3000, UniswapV3Fee10000,
		SushiSwapV3Fee500, QuickSwapV3:
		return true
	}
	return false
}

// FeeTier returns the V3 fee tier in millionths (500 = 0.05%). Returns 0 for
// V2 venues and Algebra (whose fee is dynamic, read from pool state).
func (v Venue) FeeTier() uint32 {
	switch v {
	case UniswapV3Fee100:
		return 100
	case UniswapV3Fee500, SushiSwapV3Fee500:
		return 500
	case UniswapV3Fee3000:
		return 3000
	case UniswapV3Fee10000:
		return 10000
	default:
		return 0
	}
}

// FeePercent returns the protocol fee as a percentage (0.3 for V2).
// For Algebra the caller should prefer the fee stored on pool state.
func (v Venue) FeePercent() float64 {
	if v.IsV2() {
		return 0.30
	}
	return float64(v.FeeTier()) / 10_000.0
}

// ExecutionFee returns the fee value encoded into the executor contract call
// for a leg on this venue: the sentinel for V2, zero for Algebra, the tier
// otherwise.
func (v Venue) ExecutionFee() uint32 {
	switch {
	case v.IsV2():
		return V2FeeSentinel
	case v == QuickSwapV3:
		return AlgebraFeeSentinel
	default:
		return v.FeeTier()
	}
}

// VenueForFeeTier maps a Uniswap-family fee tier to its venue.
func VenueForFeeTier(tier uint32) Venue {
	switch tier {
	case 100:
		return UniswapV3Fee100
	case 500:
		return UniswapV3Fee500
	case 3000:
		return UniswapV3Fee3000
	case 10000:
		return UniswapV3Fee10000
	default:
		return VenueUnknown
	}
}

// TickSpacing returns the tick spacing for a fee tier in millionths.
// Dynamic-fee pools use the minimum spacing.
func TickSpacing(feeTier uint32) int32 {
	switch feeTier {
	case 100:
		return 1
	case 500:
		return 10
	case 3000:
		return 60
	case 10000:
		return 200
	default:
		return 1
	}
}
