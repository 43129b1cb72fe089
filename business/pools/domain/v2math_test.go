package domain

import (
	"errors"
	"math/big"
	"testing"

	"github.com/fd1az/dexarb/internal/apperror"
)

func TestV2AmountOut(t *testing.T) {
	tests := []struct {
		name       string
		amountIn   string
		reserveIn  string
		reserveOut string
		wantOut    string
		wantErr    apperror.Code
	}{
		{
			name:       "balanced_pool_small_trade",
			amountIn:   "1000000",
			reserveIn:  "1000000000000",
			reserveOut: "1000000000000",
			// 1000000*997*1e12 / (1e12*1000 + 1000000*997) = 996999
			wantOut: "996999",
		},
		{
			name:       "skewed_pool",
			amountIn:   "1000000000000000000", // 1e18
			reserveIn:  "100000000000000000000",
			reserveOut: "340000000000", // 6-decimal quote side
			wantOut:    "3356337316",
		},
		{
			name:       "trade_half_of_reserve",
			amountIn:   "500",
			reserveIn:  "1000",
			reserveOut: "1000",
			// 500*997*1000 / (1000*1000 + 500*997) = 498500000/1498500 = 332
			wantOut: "332",
		},
		{
			name:       "zero_input",
			amountIn:   "0",
			reserveIn:  "1000",
			reserveOut: "1000",
			wantErr:    apperror.CodeInvalidTradeSize,
		},
		{
			name:       "empty_reserve_in",
			amountIn:   "100",
			reserveIn:  "0",
			reserveOut: "1000",
			wantErr:    apperror.CodeNoLiquidity,
		},
		{
			name:       "empty_reserve_out",
			amountIn:   "100",
			reserveIn:  "1000",
			reserveOut: "0",
			wantErr:    apperror.CodeNoLiquidity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := V2AmountOut(mustBig(t, tt.amountIn), mustBig(t, tt.reserveIn), mustBig(t, tt.reserveOut))
			if tt.wantErr != "" {
				if apperror.GetCode(err) != tt.wantErr {
					t.Fatalf("error code = %v, want %v", apperror.GetCode(err), tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.String() != tt.wantOut {
				t.Errorf("amountOut = %s, want %s", out, tt.wantOut)
			}
		})
	}
}

func TestV2AmountIn_RoundTrip(t *testing.T) {
	// The input quoted for an exact output must produce at least that output.
	reserveIn := mustBig(t, "5000000000000000000000")
	reserveOut := mustBig(t, "17000000000000")

	for _, outStr := range []string{"1000000", "340000000", "999999999999"} {
		want := mustBig(t, outStr)

		in, err := V2AmountIn(want, reserveIn, reserveOut)
		if err != nil {
			t.Fatalf("V2AmountIn(%s): %v", outStr, err)
		}

		got, err := V2AmountOut(in, reserveIn, reserveOut)
		if err != nil {
			t.Fatalf("V2AmountOut: %v", err)
		}
		if got.Cmp(want) < 0 {
			t.Errorf("round trip for out=%s: got %s, want >= %s", outStr, got, want)
		}
	}
}

func TestV2AmountOut_MonotonicInInput(t *testing.T) {
	// A larger input never buys less output.
	reserveIn := mustBig(t, "100000000000000000000")
	reserveOut := mustBig(t, "340000000000")

	prev := big.NewInt(-1)
	in := mustBig(t, "1000000")
	for i := 0; i < 40; i++ {
		out, err := V2AmountOut(in, reserveIn, reserveOut)
		if err != nil {
			t.Fatalf("V2AmountOut(%s): %v", in, err)
		}
		if out.Cmp(prev) < 0 {
			t.Fatalf("output decreased: in=%s out=%s prev=%s", in, out, prev)
		}
		prev = out
		in = new(big.Int).Mul(in, big.NewInt(3))
		in.Div(in, big.NewInt(2))
	}
}

func TestV2Swap_RoundTripNeverProfits(t *testing.T) {
	// Swapping forward and immediately reversing on the projected post-swap
	// state must always come back with less than went in: the fee and the
	// price impact are paid twice.
	pools := []struct {
		name string
		r0   string
		r1   string
	}{
		{name: "balanced", r0: "1000000000000000000000", r1: "1000000000000000000000"},
		{name: "skewed", r0: "100000000000000000000", r1: "340000000000"},
	}
	sizes := []string{"1000000", "1000000000000", "1000000000000000000"}

	for _, p := range pools {
		for _, size := range sizes {
			pool := &V2Pool{
				Reserve0: mustBig(t, p.r0),
				Reserve1: mustBig(t, p.r1),
			}
			amountIn := mustBig(t, size)

			out, post, err := pool.V2Swap(amountIn, true)
			if err != nil {
				t.Fatalf("%s/%s forward: %v", p.name, size, err)
			}
			if out.Sign() == 0 {
				continue
			}

			back, _, err := post.V2Swap(out, false)
			if err != nil {
				t.Fatalf("%s/%s reverse: %v", p.name, size, err)
			}
			if back.Cmp(amountIn) >= 0 {
				t.Errorf("%s/%s: round trip netted %s from %s", p.name, size, back, amountIn)
			}
		}
	}
}

func TestV2AmountIn_OutputExceedsReserve(t *testing.T) {
	_, err := V2AmountIn(mustBig(t, "1000"), mustBig(t, "1000"), mustBig(t, "1000"))
	if apperror.GetCode(err) != apperror.CodeInsufficientLiquidity {
		t.Errorf("error code = %v, want %v", apperror.GetCode(err), apperror.CodeInsufficientLiquidity)
	}
}

func TestV2Swap_ReserveProjection(t *testing.T) {
	pool := &V2Pool{
		Reserve0: mustBig(t, "1000000000000"),
		Reserve1: mustBig(t, "2000000000000"),
	}

	amountIn := mustBig(t, "5000000")
	out, post, err := pool.V2Swap(amountIn, true)
	if err != nil {
		t.Fatalf("V2Swap: %v", err)
	}

	wantR0 := new(big.Int).Add(pool.Reserve0, amountIn)
	wantR1 := new(big.Int).Sub(pool.Reserve1, out)
	if post.Reserve0.Cmp(wantR0) != 0 {
		t.Errorf("post reserve0 = %s, want %s", post.Reserve0, wantR0)
	}
	if post.Reserve1.Cmp(wantR1) != 0 {
		t.Errorf("post reserve1 = %s, want %s", post.Reserve1, wantR1)
	}

	// The original pool state must be untouched.
	if pool.Reserve0.String() != "1000000000000" || pool.Reserve1.String() != "2000000000000" {
		t.Errorf("input pool mutated: r0=%s r1=%s", pool.Reserve0, pool.Reserve1)
	}

	// A swap moves the price against the trader.
	if post.Price() >= pool.Price() {
		t.Errorf("price did not fall after selling token0: before=%f after=%f", pool.Price(), post.Price())
	}
}

func TestV2Swap_OneForZero(t *testing.T) {
	pool := &V2Pool{
		Reserve0: mustBig(t, "1000000000000"),
		Reserve1: mustBig(t, "2000000000000"),
	}

	out, post, err := pool.V2Swap(mustBig(t, "5000000"), false)
	if err != nil {
		t.Fatalf("V2Swap: %v", err)
	}
	if out.Sign() <= 0 {
		t.Fatalf("amountOut = %s, want positive", out)
	}
	if post.Price() <= pool.Price() {
		t.Errorf("price did not rise after selling token1: before=%f after=%f", pool.Price(), post.Price())
	}
}

func TestV2PriceImpact(t *testing.T) {
	reserveIn := mustBig(t, "1000000000000000000000")
	reserveOut := mustBig(t, "1000000000000000000000")

	small := V2PriceImpact(mustBig(t, "1000000000000000"), reserveIn, reserveOut)
	large := V2PriceImpact(mustBig(t, "100000000000000000000"), reserveIn, reserveOut)

	if small < 0 || small > 1 {
		t.Errorf("small trade impact = %f, want within (0, 1)", small)
	}
	if large <= small {
		t.Errorf("larger trade should have larger impact: small=%f large=%f", small, large)
	}
	if got := V2PriceImpact(mustBig(t, "100"), big.NewInt(0), reserveOut); got != 100 {
		t.Errorf("empty pool impact = %f, want 100", got)
	}
}

func TestV2Pool_Price(t *testing.T) {
	tests := []struct {
		name     string
		reserve0 string
		reserve1 string
		dec0     uint8
		dec1     uint8
		want     float64
	}{
		{
			name:     "weth_usdc_like",
			reserve0: "100000000000000000000", // 100 WETH, 18 dec
			reserve1: "340000000000",          // 340k USDC, 6 dec
			dec0:     18,
			dec1:     6,
			want:     3400,
		},
		{
			name:     "same_decimals",
			reserve0: "1000",
			reserve1: "2000",
			dec0:     18,
			dec1:     18,
			want:     2,
		},
		{
			name:     "no_liquidity",
			reserve0: "0",
			reserve1: "2000",
			dec0:     18,
			dec1:     18,
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &V2Pool{
				Pair:     Pair{Token0Decimals: tt.dec0, Token1Decimals: tt.dec1},
				Reserve0: mustBig(t, tt.reserve0),
				Reserve1: mustBig(t, tt.reserve1),
			}
			got := p.Price()
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Price() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestV2AmountOut_NilInput(t *testing.T) {
	_, err := V2AmountOut(nil, big.NewInt(1), big.NewInt(1))
	if err == nil {
		t.Fatal("expected error for nil amountIn")
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Errorf("error is not an AppError: %T", err)
	}
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad big.Int literal %q", s)
	}
	return v
}
