package app

import (
	"context"
	"io"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/dexarb/business/detection/domain"
	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
	"github.com/fd1az/dexarb/internal/logger"
)

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

type fakePools struct {
	views map[string][]poolsdomain.PoolView
	block uint64
}

func (f *fakePools) ViewsByPair() map[string][]poolsdomain.PoolView { return f.views }
func (f *fakePools) LastBlock() uint64                              { return f.block }
func (f *fakePools) Pair(common.Address) (poolsdomain.Pair, bool, error) {
	return poolsdomain.Pair{
		Token0:         common.HexToAddress("0xaa"),
		Token1:         common.HexToAddress("0xbb"),
		Token0Decimals: 18,
		Token1Decimals: 6,
		Symbol:         "WETH/USDC",
	}, false, nil
}

type fakeWhitelist struct{ wl *domain.Whitelist }

func (f *fakeWhitelist) Current() *domain.Whitelist { return f.wl }

type fakeVerifier struct {
	verdicts []Verification
	err      error
	calls    int
}

func (f *fakeVerifier) BatchVerify(_ context.Context, opps []*domain.Opportunity) ([]Verification, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.verdicts != nil {
		return f.verdicts, nil
	}
	out := make([]Verification, len(opps))
	for i, o := range opps {
		out[i] = Verification{
			BuyOut:        o.EstimatedBuyOutRaw(1.0),
			SellOut:       o.TradeSizeRaw(),
			BothLegsValid: true,
		}
	}
	return out, nil
}

func poolView(addr string, venue poolsdomain.Venue, price, feePct float64, feeTier uint32) poolsdomain.PoolView {
	return poolsdomain.PoolView{
		Address:    common.HexToAddress(addr),
		Venue:      venue,
		PairSymbol: "WETH/USDC",
		Price:      price,
		FeePercent: feePct,
		FeeTier:    feeTier,
		Liquidity:  1_000_000,
	}
}

func testConfig() DetectorConfig {
	return DetectorConfig{
		MinProfitUSD:    0.10,
		MaxTradeSizeUSD: 500,
		SlippagePct:     10,
		GasCostUSD:      0.02,
	}
}

func newTestDetector(t *testing.T, cfg DetectorConfig, pools PoolSource, verifier QuoteVerifier) *Detector {
	t.Helper()
	d, err := NewDetector(cfg, testLogger(),
		pools,
		&fakeWhitelist{wl: domain.PermissiveWhitelist()},
		domain.NewRouteCooldown(domain.DefaultCooldownConfig()),
		verifier,
	)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	return d
}

func TestDetector_FindsSpread(t *testing.T) {
	// 1% midmarket spread, 0.35% round-trip fees.
	pools := &fakePools{
		block: 100,
		views: map[string][]poolsdomain.PoolView{
			"WETH/USDC": {
				poolView("0x01", poolsdomain.QuickSwapV2, 2000, 0.30, 0),
				poolView("0x02", poolsdomain.UniswapV3Fee500, 2020, 0.05, 500),
			},
		},
	}
	d := newTestDetector(t, testConfig(), pools, nil)

	opps := d.Scan(context.Background(), 100)
	if len(opps) != 1 {
		t.Fatalf("Scan returned %d opportunities, want 1", len(opps))
	}

	o := opps[0]
	if o.Buy.Venue != poolsdomain.QuickSwapV2 || o.Sell.Venue != poolsdomain.UniswapV3Fee500 {
		t.Errorf("route = %s, want buy QuickSwapV2 sell UniswapV3-0.05%%", o.Route())
	}

	// midmarket = 20/2000 = 1%; executable = 1% - 0.35% = 0.65%;
	// gross = 0.0065 * 500 = 3.25; slippage = 0.325; net = 3.25 - 0.02 - 0.325.
	if diff := o.NetProfitUSD - 2.905; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("NetProfitUSD = %v, want 2.905", o.NetProfitUSD)
	}
	if o.TradeSizeUSD != 500 {
		t.Errorf("TradeSizeUSD = %v, want 500", o.TradeSizeUSD)
	}
}

func TestDetector_FeesEatTheSpread(t *testing.T) {
	// 0.2% spread against 0.6% round-trip fees: no opportunity.
	pools := &fakePools{
		block: 100,
		views: map[string][]poolsdomain.PoolView{
			"WETH/USDC": {
				poolView("0x01", poolsdomain.QuickSwapV2, 2000, 0.30, 0),
				poolView("0x02", poolsdomain.SushiSwapV2, 2004, 0.30, 0),
			},
		},
	}
	d := newTestDetector(t, testConfig(), pools, nil)

	if opps := d.Scan(context.Background(), 100); len(opps) != 0 {
		t.Errorf("Scan returned %d opportunities, want 0", len(opps))
	}
}

func TestDetector_SameVenueRejected(t *testing.T) {
	// Two tiers of the same venue enum would be distinct, but two pools on
	// the literal same venue never form a route.
	pools := &fakePools{
		block: 100,
		views: map[string][]poolsdomain.PoolView{
			"WETH/USDC": {
				poolView("0x01", poolsdomain.QuickSwapV2, 2000, 0.30, 0),
				poolView("0x02", poolsdomain.QuickSwapV2, 2050, 0.30, 0),
			},
		},
	}
	d := newTestDetector(t, testConfig(), pools, nil)

	if opps := d.Scan(context.Background(), 100); len(opps) != 0 {
		t.Errorf("same-venue route detected: %d opportunities", len(opps))
	}
}

func TestDetector_ProfitFloor(t *testing.T) {
	cfg := testConfig()
	cfg.MinProfitUSD = 5.0

	pools := &fakePools{
		block: 100,
		views: map[string][]poolsdomain.PoolView{
			"WETH/USDC": {
				poolView("0x01", poolsdomain.QuickSwapV2, 2000, 0.30, 0),
				poolView("0x02", poolsdomain.UniswapV3Fee500, 2020, 0.05, 500),
			},
		},
	}
	d := newTestDetector(t, cfg, pools, nil)

	// Nets ~2.905, below the 5 USD floor.
	if opps := d.Scan(context.Background(), 100); len(opps) != 0 {
		t.Errorf("opportunity below profit floor returned: %d", len(opps))
	}
}

func TestDetector_CooldownSuppresses(t *testing.T) {
	pools := &fakePools{
		block: 100,
		views: map[string][]poolsdomain.PoolView{
			"WETH/USDC": {
				poolView("0x01", poolsdomain.QuickSwapV2, 2000, 0.30, 0),
				poolView("0x02", poolsdomain.UniswapV3Fee500, 2020, 0.05, 500),
			},
		},
	}
	d := newTestDetector(t, testConfig(), pools, nil)

	route := domain.RouteKey{
		Pair: "WETH/USDC",
		Buy:  poolsdomain.QuickSwapV2,
		Sell: poolsdomain.UniswapV3Fee500,
	}
	d.Cooldown().RecordFailure(route, 100)

	if opps := d.Scan(context.Background(), 100); len(opps) != 0 {
		t.Errorf("cooled route returned: %d opportunities", len(opps))
	}

	// Past the cooldown window the route comes back.
	if opps := d.Scan(context.Background(), 200); len(opps) != 1 {
		t.Errorf("route missing after cooldown expiry: %d opportunities", len(opps))
	}
}

func TestDetector_LowTierSkippedOnVolatilePair(t *testing.T) {
	pools := &fakePools{
		block: 100,
		views: map[string][]poolsdomain.PoolView{
			"WETH/USDC": {
				poolView("0x01", poolsdomain.QuickSwapV2, 2000, 0.30, 0),
				poolView("0x02", poolsdomain.UniswapV3Fee100, 2050, 0.01, 100),
			},
		},
	}
	d := newTestDetector(t, testConfig(), pools, nil)

	if opps := d.Scan(context.Background(), 100); len(opps) != 0 {
		t.Errorf("1bp tier trusted on a volatile pair: %d opportunities", len(opps))
	}
}

func TestDetector_CyclePublishesVerifiedBest(t *testing.T) {
	pools := &fakePools{
		block: 100,
		views: map[string][]poolsdomain.PoolView{
			"WETH/USDC": {
				poolView("0x01", poolsdomain.QuickSwapV2, 2000, 0.30, 0),
				poolView("0x02", poolsdomain.UniswapV3Fee500, 2020, 0.05, 500),
			},
		},
	}
	verifier := &fakeVerifier{}
	cfg := testConfig()
	cfg.QuoteVerification = true

	d := newTestDetector(t, cfg, pools, verifier)
	d.Cycle(context.Background(), 100)

	select {
	case got := <-d.Candidates():
		if !got.Verified {
			t.Error("published candidate must be marked verified")
		}
		if got.QuotedBuyOut == nil || got.QuotedBuyOut.Sign() <= 0 {
			t.Error("verified candidate must carry quoted outputs")
		}
	default:
		t.Fatal("no candidate published")
	}
	if verifier.calls != 1 {
		t.Errorf("verifier called %d times, want 1", verifier.calls)
	}
}

func TestDetector_PhantomDepthRejected(t *testing.T) {
	pools := &fakePools{
		block: 100,
		views: map[string][]poolsdomain.PoolView{
			"WETH/USDC": {
				poolView("0x01", poolsdomain.QuickSwapV2, 2000, 0.30, 0),
				poolView("0x02", poolsdomain.UniswapV3Fee500, 2020, 0.05, 500),
			},
		},
	}
	// Quoted buy output of 1 wei: far below the price-implied output.
	verifier := &fakeVerifier{
		verdicts: []Verification{{
			BuyOut:        big.NewInt(1),
			SellOut:       big.NewInt(1),
			BothLegsValid: true,
		}},
	}
	cfg := testConfig()
	cfg.QuoteVerification = true

	d := newTestDetector(t, cfg, pools, verifier)
	d.Cycle(context.Background(), 100)

	select {
	case got := <-d.Candidates():
		t.Fatalf("phantom-depth candidate published: %s", got.Route())
	default:
	}

	// A depth rejection is a detection-only signal: no execution attempt
	// happened, so the route cooldown must stay untouched.
	route := domain.RouteKey{
		Pair: "WETH/USDC",
		Buy:  poolsdomain.QuickSwapV2,
		Sell: poolsdomain.UniswapV3Fee500,
	}
	if d.Cooldown().IsCooledDown(route, 100) {
		t.Error("depth rejection escalated the route cooldown without an execution attempt")
	}
	if d.Stats().DepthRejected != 1 {
		t.Errorf("DepthRejected = %d, want 1", d.Stats().DepthRejected)
	}
}

func TestDetector_RepeatedDepthFailuresDemotePool(t *testing.T) {
	pools := &fakePools{
		block: 100,
		views: map[string][]poolsdomain.PoolView{
			"WETH/USDC": {
				poolView("0x01", poolsdomain.QuickSwapV2, 2000, 0.30, 0),
				poolView("0x02", poolsdomain.UniswapV3Fee500, 2020, 0.05, 500),
			},
		},
	}
	verifier := &fakeVerifier{
		verdicts: []Verification{{
			BuyOut:        big.NewInt(1),
			SellOut:       big.NewInt(1),
			BothLegsValid: true,
		}},
	}
	cfg := testConfig()
	cfg.QuoteVerification = true
	cfg.DepthFailureLimit = 2

	d := newTestDetector(t, cfg, pools, verifier)

	// Two cycles, two depth failures against the buy pool.
	d.Cycle(context.Background(), 100)
	d.Cycle(context.Background(), 101)
	if got := d.Stats().DepthRejected; got != 2 {
		t.Fatalf("DepthRejected = %d, want 2", got)
	}

	// The buy pool is demoted from admission, leaving one pool for the
	// pair: no route, and the verifier is no longer consulted.
	if opps := d.Scan(context.Background(), 102); len(opps) != 0 {
		t.Errorf("demoted pool still forms routes: %d opportunities", len(opps))
	}
	calls := verifier.calls
	d.Cycle(context.Background(), 102)
	if verifier.calls != calls {
		t.Error("cycle with a demoted pool must not reach the verifier")
	}
}

func TestDetector_VerifierErrorPassesThrough(t *testing.T) {
	pools := &fakePools{
		block: 100,
		views: map[string][]poolsdomain.PoolView{
			"WETH/USDC": {
				poolView("0x01", poolsdomain.QuickSwapV2, 2000, 0.30, 0),
				poolView("0x02", poolsdomain.UniswapV3Fee500, 2020, 0.05, 500),
			},
		},
	}
	verifier := &fakeVerifier{err: context.DeadlineExceeded}
	cfg := testConfig()
	cfg.QuoteVerification = true

	d := newTestDetector(t, cfg, pools, verifier)
	d.Cycle(context.Background(), 100)

	select {
	case got := <-d.Candidates():
		if got.Verified {
			t.Error("passthrough candidate must not be marked verified")
		}
	default:
		t.Fatal("batch failure must degrade to passthrough, not drop")
	}
}
