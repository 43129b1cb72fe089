package app

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/dexarb/business/mempool/domain"
)

var testRouterAddr = common.HexToAddress("0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff")

type fakePendingSource struct {
	ch chan PendingTx
}

func (f *fakePendingSource) Pending(context.Context) (<-chan PendingTx, error) { return f.ch, nil }
func (f *fakePendingSource) Close() error                                      { return nil }

type fakeChain struct {
	number uint64
	hashes map[uint64][]common.Hash
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) { return f.number, nil }
func (f *fakeChain) BlockTxHashes(_ context.Context, n uint64) ([]common.Hash, error) {
	return f.hashes[n], nil
}

type fakeObsLog struct {
	pending   []PendingRecord
	simulated []SimulatedRecord
	accuracy  []AccuracyRecord
}

func (f *fakeObsLog) LogPending(rec PendingRecord) error     { f.pending = append(f.pending, rec); return nil }
func (f *fakeObsLog) LogSimulated(rec SimulatedRecord) error { f.simulated = append(f.simulated, rec); return nil }
func (f *fakeObsLog) LogAccuracy(rec AccuracyRecord) error   { f.accuracy = append(f.accuracy, rec); return nil }
func (f *fakeObsLog) Close() error                           { return nil }

// v2SwapCalldata encodes swapExactTokensForTokens(amountIn, amountOutMin,
// [WETH, USDC], to, deadline).
func v2SwapCalldata(amountIn *big.Int) []byte {
	word := func(v *big.Int) []byte {
		w := make([]byte, 32)
		v.FillBytes(w)
		return w
	}
	addr := func(a common.Address) []byte {
		w := make([]byte, 32)
		copy(w[12:], a.Bytes())
		return w
	}

	var out []byte
	out = append(out, 0x38, 0xed, 0x17, 0x39)
	out = append(out, word(amountIn)...)
	out = append(out, word(big.NewInt(0))...)
	out = append(out, word(big.NewInt(5*32))...)
	out = append(out, addr(common.HexToAddress("0xdead"))...)
	out = append(out, word(big.NewInt(1700000000))...)
	out = append(out, word(big.NewInt(2))...)
	out = append(out, addr(simWETH)...)
	out = append(out, addr(simUSDC)...)
	return out
}

func newTestMonitor(t *testing.T, mode domain.Mode, chain ChainReader, obs ObservationLog) (*Monitor, *fakePendingSource) {
	t.Helper()
	source := &fakePendingSource{ch: make(chan PendingTx, 4)}
	m, err := NewMonitor(
		MonitorConfig{
			Mode:          mode,
			MinProfitUSD:  0.25,
			MinSpreadPct:  0.01,
			CheckInterval: time.Second,
			TrackerMaxAge: 2 * time.Minute,
			SignalBuffer:  2,
		},
		testLogger(),
		source,
		chain,
		testSimulator(t),
		obs,
		map[common.Address]string{testRouterAddr: RouterQuickV2},
	)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	return m, source
}

func pendingSwap(hash common.Hash) PendingTx {
	amountIn, _ := new(big.Int).SetString("1000000000000000000", 10)
	return PendingTx{
		Hash:      hash,
		To:        testRouterAddr,
		Input:     v2SwapCalldata(amountIn),
		GasPrice:  big.NewInt(40_000_000_000),
		GasTipCap: big.NewInt(2_000_000_000),
	}
}

func TestMonitor_SignalsAboveThresholds(t *testing.T) {
	obs := &fakeObsLog{}
	m, _ := newTestMonitor(t, domain.ModeExecute, &fakeChain{}, obs)
	ctx := context.Background()

	hash := common.HexToHash("0xabc1")
	m.handlePending(ctx, pendingSwap(hash))

	st := m.Stats()
	if st.Decoded != 1 || st.Undecoded != 0 {
		t.Fatalf("decoded/undecoded = %d/%d, want 1/0", st.Decoded, st.Undecoded)
	}
	if st.Seen != 1 || st.Tracking != 1 {
		t.Errorf("seen/tracking = %d/%d, want 1/1", st.Seen, st.Tracking)
	}
	if st.Simulated != 1 {
		t.Errorf("simulated = %d, want 1", st.Simulated)
	}
	if st.Opportunities != 1 {
		t.Errorf("tracked opportunities = %d, want 1", st.Opportunities)
	}

	select {
	case sig := <-m.Signals():
		if sig.Opportunity.TxHash != hash {
			t.Errorf("signal tx = %s, want %s", sig.Opportunity.TxHash.Hex(), hash.Hex())
		}
		if sig.Opportunity.TriggerFunction != "swapExactTokensForTokens" {
			t.Errorf("trigger = %q, want swapExactTokensForTokens", sig.Opportunity.TriggerFunction)
		}
		if sig.Opportunity.EstProfitUSD < 0.25 {
			t.Errorf("signal profit %f below the floor", sig.Opportunity.EstProfitUSD)
		}
		if sig.GasPrice == nil || sig.GasPrice.Int64() != 40_000_000_000 {
			t.Errorf("signal gas price = %v, want the trigger's bid", sig.GasPrice)
		}
	default:
		t.Fatal("no signal published")
	}

	if len(obs.pending) != 1 {
		t.Errorf("pending log has %d rows, want 1", len(obs.pending))
	}
	if len(obs.simulated) != 2 {
		t.Errorf("simulated log has %d rows, want one per opportunity", len(obs.simulated))
	}
	if obs.pending[0].RouterName != RouterQuickV2 {
		t.Errorf("logged router = %q, want %q", obs.pending[0].RouterName, RouterQuickV2)
	}
}

func TestMonitor_ObserveModeDoesNotSignal(t *testing.T) {
	m, _ := newTestMonitor(t, domain.ModeObserve, &fakeChain{}, nil)
	m.handlePending(context.Background(), pendingSwap(common.HexToHash("0xabc2")))

	select {
	case <-m.Signals():
		t.Fatal("observe mode published a signal")
	default:
	}
	if st := m.Stats(); st.Simulated != 1 {
		t.Errorf("simulated = %d, observe mode should still project", st.Simulated)
	}
}

func TestMonitor_UndecodedCalldata(t *testing.T) {
	m, _ := newTestMonitor(t, domain.ModeObserve, &fakeChain{}, nil)
	m.handlePending(context.Background(), PendingTx{
		Hash:  common.HexToHash("0xabc3"),
		To:    testRouterAddr,
		Input: []byte{0xde, 0xad, 0xbe, 0xef},
	})

	st := m.Stats()
	if st.Decoded != 0 || st.Undecoded != 1 {
		t.Errorf("decoded/undecoded = %d/%d, want 0/1", st.Decoded, st.Undecoded)
	}
	if st.Tracking != 0 {
		t.Errorf("tracking = %d, undecoded transactions must not be tracked", st.Tracking)
	}
}

func TestMonitor_UnwatchedRouterIgnored(t *testing.T) {
	m, _ := newTestMonitor(t, domain.ModeObserve, &fakeChain{}, nil)
	tx := pendingSwap(common.HexToHash("0xabc4"))
	tx.To = common.HexToAddress("0xbeef")
	m.handlePending(context.Background(), tx)

	if st := m.Stats(); st.Decoded != 0 && st.Undecoded != 0 {
		t.Errorf("unwatched router was processed: %+v", st)
	}
}

func TestMonitor_BlockConfirmationScoresProjection(t *testing.T) {
	hash := common.HexToHash("0xabc5")
	chain := &fakeChain{
		number: 100,
		hashes: map[uint64][]common.Hash{101: {hash}},
	}
	obs := &fakeObsLog{}
	m, _ := newTestMonitor(t, domain.ModeObserve, chain, obs)
	ctx := context.Background()

	m.handlePending(ctx, pendingSwap(hash))

	// First pass only anchors the block cursor.
	m.checkBlocks(ctx)
	if st := m.Stats(); st.Confirmed != 0 {
		t.Fatalf("confirmed = %d before the block landed", st.Confirmed)
	}

	chain.number = 101
	m.checkBlocks(ctx)

	st := m.Stats()
	if st.Confirmed != 1 {
		t.Fatalf("confirmed = %d, want 1", st.Confirmed)
	}
	if st.Tracking != 0 {
		t.Errorf("tracking = %d after confirmation, want 0", st.Tracking)
	}
	if st.BlocksChecked != 1 {
		t.Errorf("blocks checked = %d, want 1", st.BlocksChecked)
	}
	if st.Validated != 1 {
		t.Fatalf("validated projections = %d, want 1", st.Validated)
	}
	if len(obs.accuracy) != 1 {
		t.Fatalf("accuracy log has %d rows, want 1", len(obs.accuracy))
	}

	rec := obs.accuracy[0]
	if rec.TxHash != hash || rec.PairSymbol != "WETH/USDC" {
		t.Errorf("accuracy row = %+v, want the confirmed projection", rec)
	}
	// The fake pool state never refreshed, so the prediction is off by
	// exactly the projected impact (~2%).
	if rec.ErrorPct < 1.5 || rec.ErrorPct > 2.5 {
		t.Errorf("ErrorPct = %f, want ~2", rec.ErrorPct)
	}

	// The same block must not confirm twice.
	m.checkBlocks(ctx)
	if st := m.Stats(); st.Confirmed != 1 {
		t.Errorf("confirmed = %d after re-check, want 1", st.Confirmed)
	}
}

func TestMonitor_SignalDropWhenFull(t *testing.T) {
	m, _ := newTestMonitor(t, domain.ModeExecute, &fakeChain{}, nil)
	ctx := context.Background()

	// Buffer of 2, three qualifying swaps.
	m.handlePending(ctx, pendingSwap(common.HexToHash("0x01")))
	m.handlePending(ctx, pendingSwap(common.HexToHash("0x02")))
	m.handlePending(ctx, pendingSwap(common.HexToHash("0x03")))

	st := m.Stats()
	if st.SignalsSent != 2 {
		t.Errorf("signals sent = %d, want 2", st.SignalsSent)
	}
	if st.SignalsDropped != 1 {
		t.Errorf("signals dropped = %d, want 1", st.SignalsDropped)
	}
}
