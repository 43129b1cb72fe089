package app

import (
	"io"
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/dexarb/business/mempool/domain"
	poolsapp "github.com/fd1az/dexarb/business/pools/app"
	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
	"github.com/fd1az/dexarb/internal/apperror"
	"github.com/fd1az/dexarb/internal/logger"
)

var (
	simWETH = common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619")
	simUSDC = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
)

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

func bigFromString(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad big int literal %q", s)
	}
	return v
}

// sqrtPriceX96FromRaw converts a raw (decimal-unadjusted) token1/token0
// price into its Q64.96 square root.
func sqrtPriceX96FromRaw(raw float64) *big.Int {
	f := new(big.Float).Mul(
		big.NewFloat(math.Sqrt(raw)),
		new(big.Float).SetInt(poolsdomain.Q96),
	)
	out, _ := f.Int(nil)
	return out
}

type fakePoolSource struct {
	v2       *poolsdomain.V2Pool
	v2Quote0 bool
	v3       *poolsdomain.V3Pool
	v3Quote0 bool
	views    map[string][]poolsdomain.PoolView
	orients  []poolsapp.PairOrientation
}

func (f *fakePoolSource) V2ByVenue(venue poolsdomain.Venue, symbol string) (*poolsdomain.V2Pool, bool, error) {
	if f.v2 != nil && f.v2.Venue == venue && f.v2.Pair.Symbol == symbol {
		return f.v2, f.v2Quote0, nil
	}
	return nil, false, apperror.NotFound(apperror.CodePoolNotFound, symbol)
}

func (f *fakePoolSource) V3ByVenue(venue poolsdomain.Venue, symbol string) (*poolsdomain.V3Pool, bool, error) {
	if f.v3 != nil && f.v3.Venue == venue && f.v3.Pair.Symbol == symbol {
		return f.v3, f.v3Quote0, nil
	}
	return nil, false, apperror.NotFound(apperror.CodePoolNotFound, symbol)
}

func (f *fakePoolSource) ViewsByPair() map[string][]poolsdomain.PoolView { return f.views }

func (f *fakePoolSource) PairOrientations() []poolsapp.PairOrientation { return f.orients }

func wethUSDCPair() poolsdomain.Pair {
	return poolsdomain.Pair{
		Token0:         simWETH,
		Token1:         simUSDC,
		Token0Decimals: 18,
		Token1Decimals: 6,
		Symbol:         "WETH/USDC",
	}
}

// testPoolSource tracks WETH/USDC on three venues around $3350: a
// QuickSwap V2 pool, a Uniswap V3 0.05% pool, and a slightly richer Sushi
// V3 view for the cross-venue comparison.
func testPoolSource(t *testing.T) *fakePoolSource {
	t.Helper()
	pair := wethUSDCPair()

	// Raw token1/token0 price for $3350 with 18/6 decimals.
	sqrtP := sqrtPriceX96FromRaw(3350e-12)

	return &fakePoolSource{
		v2: &poolsdomain.V2Pool{
			Address:  common.HexToAddress("0x01"),
			Venue:    poolsdomain.QuickSwapV2,
			Pair:     pair,
			Reserve0: bigFromString(t, "100000000000000000000"), // 100 WETH
			Reserve1: bigFromString(t, "335000000000"),          // 335,000 USDC
		},
		v3: &poolsdomain.V3Pool{
			Address:      common.HexToAddress("0x02"),
			Venue:        poolsdomain.UniswapV3Fee500,
			Pair:         pair,
			SqrtPriceX96: sqrtP,
			Tick:         poolsdomain.TickFromSqrtPriceX96(sqrtP),
			Fee:          500,
			Liquidity:    bigFromString(t, "1000000000000000000000000"),
		},
		views: map[string][]poolsdomain.PoolView{
			"WETH/USDC": {
				{Venue: poolsdomain.QuickSwapV2, PairSymbol: "WETH/USDC", Price: 3350, FeePercent: 0.30},
				{Venue: poolsdomain.UniswapV3Fee500, PairSymbol: "WETH/USDC", Price: 3350, FeePercent: 0.05, FeeTier: 500},
				{Venue: poolsdomain.SushiSwapV3Fee500, PairSymbol: "WETH/USDC", Price: 3360, FeePercent: 0.05, FeeTier: 500},
			},
		},
		orients: []poolsapp.PairOrientation{{Pair: pair, QuoteToken0: false}},
	}
}

func testSimulator(t *testing.T) *Simulator {
	t.Helper()
	return NewSimulator(SimulatorConfig{
		MaxTradeSizeUSD: 1000,
		GasCostUSD:      0.05,
	}, testPoolSource(t))
}

func wethIn(amountIn string, feeTier uint32, name string) *domain.DecodedSwap {
	in, out := simWETH, simUSDC
	d := &domain.DecodedSwap{
		FunctionName: name,
		TokenIn:      &in,
		TokenOut:     &out,
		AmountIn:     new(big.Int),
		AmountOutMin: big.NewInt(0),
	}
	d.AmountIn.SetString(amountIn, 10)
	if feeTier > 0 {
		tier := feeTier
		d.FeeTier = &tier
	}
	return d
}

func TestSimulator_V2Projection(t *testing.T) {
	s := testSimulator(t)

	// 1 WETH into the V2 pool pushes its price from ~3350 to ~3284, well
	// below the other venues.
	res, err := s.Simulate(wethIn("1000000000000000000", 0, "swapExactTokensForTokens"), RouterQuickV2)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	if res.Pool.Venue != poolsdomain.QuickSwapV2 || res.Pool.V3 {
		t.Errorf("projected pool = %s v3=%v, want QuickSwapV2 v2", res.Pool.Venue, res.Pool.V3)
	}
	if !res.ZeroForOne {
		t.Error("selling token0 should be zeroForOne")
	}
	if res.Pool.PreSwapPrice < 3349 || res.Pool.PreSwapPrice > 3351 {
		t.Errorf("PreSwapPrice = %f, want ~3350", res.Pool.PreSwapPrice)
	}
	if res.Pool.PostSwapPrice >= res.Pool.PreSwapPrice {
		t.Errorf("PostSwapPrice = %f did not drop from %f",
			res.Pool.PostSwapPrice, res.Pool.PreSwapPrice)
	}
	if res.Pool.PostSwapPrice < 3270 || res.Pool.PostSwapPrice > 3300 {
		t.Errorf("PostSwapPrice = %f, want ~3284", res.Pool.PostSwapPrice)
	}
	if res.Pool.PostReserve0 == nil || res.Pool.PostReserve1 == nil {
		t.Fatal("V2 projection missing post reserves")
	}
	if impact := res.Pool.PriceImpactPct(); impact < 1.5 || impact > 2.5 {
		t.Errorf("PriceImpactPct = %f, want ~2", impact)
	}

	// The quote sits on token1, so the depressed simulated pool is the buy
	// side against both richer venues, best spread first.
	if len(res.Opportunities) != 2 {
		t.Fatalf("got %d opportunities, want 2", len(res.Opportunities))
	}
	best := res.Opportunities[0]
	if best.BuyVenue != poolsdomain.QuickSwapV2 || best.SellVenue != poolsdomain.SushiSwapV3Fee500 {
		t.Errorf("best route = buy %s sell %s, want buy QuickSwapV2 sell SushiV3",
			best.BuyVenue, best.SellVenue)
	}
	if best.EstProfitUSD <= res.Opportunities[1].EstProfitUSD {
		t.Error("opportunities not sorted by profit descending")
	}
	// ~1.96% executable spread on $1000 minus gas and the 1% haircut.
	if best.EstProfitUSD < 15 || best.EstProfitUSD > 25 {
		t.Errorf("EstProfitUSD = %f, want ~19", best.EstProfitUSD)
	}
	if best.SpreadPct <= 0 {
		t.Errorf("SpreadPct = %f, want positive", best.SpreadPct)
	}
}

func TestSimulator_V2ReverseDirection(t *testing.T) {
	s := testSimulator(t)

	in, out := simUSDC, simWETH
	swap := &domain.DecodedSwap{
		FunctionName: "swapExactTokensForTokens",
		TokenIn:      &in,
		TokenOut:     &out,
		AmountIn:     big.NewInt(10_000_000_000), // 10,000 USDC
		AmountOutMin: big.NewInt(0),
	}

	res, err := s.Simulate(swap, RouterQuickV2)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if res.ZeroForOne {
		t.Error("selling token1 should not be zeroForOne")
	}
	if res.Pool.PostSwapPrice <= res.Pool.PreSwapPrice {
		t.Errorf("buying token0 must raise the price: pre %f post %f",
			res.Pool.PreSwapPrice, res.Pool.PostSwapPrice)
	}
}

func TestSimulator_V3Projection(t *testing.T) {
	s := testSimulator(t)

	res, err := s.Simulate(wethIn("1000000000000000000", 500, "exactInputSingle"), RouterUniswapV3)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	if res.Pool.Venue != poolsdomain.UniswapV3Fee500 || !res.Pool.V3 {
		t.Errorf("projected pool = %s v3=%v, want UniswapV3Fee500 v3", res.Pool.Venue, res.Pool.V3)
	}
	if !res.ZeroForOne {
		t.Error("selling token0 should be zeroForOne")
	}
	if res.Pool.PostSqrtPriceX96 == nil {
		t.Fatal("V3 projection missing post sqrt price")
	}
	if res.Pool.PreSwapPrice < 3349 || res.Pool.PreSwapPrice > 3351 {
		t.Errorf("PreSwapPrice = %f, want ~3350", res.Pool.PreSwapPrice)
	}
	if res.Pool.PostSwapPrice > res.Pool.PreSwapPrice {
		t.Errorf("zeroForOne swap raised the price: pre %f post %f",
			res.Pool.PreSwapPrice, res.Pool.PostSwapPrice)
	}
}

func TestSimulator_Skips(t *testing.T) {
	s := testSimulator(t)
	exotic := common.HexToAddress("0x0d")

	tests := []struct {
		name   string
		swap   *domain.DecodedSwap
		router string
	}{
		{
			name:   "exact_output",
			swap:   wethIn("1000000000000000000", 500, "exactOutputSingle"),
			router: RouterUniswapV3,
		},
		{
			name:   "opaque_multicall",
			swap:   &domain.DecodedSwap{FunctionName: "multicall(opaque)"},
			router: RouterUniswapV3,
		},
		{
			name: "missing_amount",
			swap: &domain.DecodedSwap{
				FunctionName: "exactInputSingle",
				TokenIn:      &simWETH,
				TokenOut:     &simUSDC,
			},
			router: RouterUniswapV3,
		},
		{
			name: "untracked_tokens",
			swap: func() *domain.DecodedSwap {
				d := wethIn("1000000000000000000", 500, "exactInputSingle")
				d.TokenIn = &exotic
				return d
			}(),
			router: RouterUniswapV3,
		},
		{
			name:   "missing_fee_tier",
			swap:   wethIn("1000000000000000000", 0, "exactInputSingle"),
			router: RouterUniswapV3,
		},
		{
			name:   "untracked_sushi_tier",
			swap:   wethIn("1000000000000000000", 3000, "exactInput"),
			router: RouterSushiV3,
		},
		{
			name:   "unknown_router",
			swap:   wethIn("1000000000000000000", 500, "exactInputSingle"),
			router: "KyberSwap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Simulate(tt.swap, tt.router); err == nil {
				t.Error("Simulate succeeded, want skip error")
			}
		})
	}
}

func TestSimulator_SpotPrice(t *testing.T) {
	s := testSimulator(t)

	v2, err := s.SpotPrice(poolsdomain.QuickSwapV2, "WETH/USDC")
	if err != nil {
		t.Fatalf("SpotPrice v2: %v", err)
	}
	if v2 < 3349 || v2 > 3351 {
		t.Errorf("v2 spot = %f, want ~3350", v2)
	}

	v3, err := s.SpotPrice(poolsdomain.UniswapV3Fee500, "WETH/USDC")
	if err != nil {
		t.Fatalf("SpotPrice v3: %v", err)
	}
	if v3 < 3349 || v3 > 3351 {
		t.Errorf("v3 spot = %f, want ~3350", v3)
	}

	if _, err := s.SpotPrice(poolsdomain.SushiSwapV2, "WETH/USDC"); err == nil {
		t.Error("SpotPrice for an untracked venue succeeded")
	}
}
