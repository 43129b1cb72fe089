package domain

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestConfirmationTracker(t *testing.T) {
	tr := NewConfirmationTracker()

	h1 := common.HexToHash("0x01")
	h2 := common.HexToHash("0x02")
	h3 := common.HexToHash("0x03")

	tr.Track(h1, "UniswapV3")
	tr.Track(h2, "SushiV3")
	tr.Track(h3, "AlgebraV3")

	if got := tr.TrackingCount(); got != 3 {
		t.Fatalf("TrackingCount = %d, want 3", got)
	}
	if got := tr.TotalSeen(); got != 3 {
		t.Fatalf("TotalSeen = %d, want 3", got)
	}

	// A block containing two of the three, plus an untracked hash.
	matches := tr.CheckBlock([]common.Hash{h1, common.HexToHash("0xff"), h3})
	if len(matches) != 2 {
		t.Fatalf("CheckBlock returned %d matches, want 2", len(matches))
	}
	if matches[0].Hash != h1 || matches[0].Router != "UniswapV3" {
		t.Errorf("first match = %+v, want h1 on UniswapV3", matches[0])
	}
	if matches[1].Hash != h3 || matches[1].Router != "AlgebraV3" {
		t.Errorf("second match = %+v, want h3 on AlgebraV3", matches[1])
	}
	for _, m := range matches {
		if m.LeadTime < 0 {
			t.Errorf("lead time for %s is negative: %v", m.Hash.Hex(), m.LeadTime)
		}
	}

	if got := tr.TrackingCount(); got != 1 {
		t.Errorf("TrackingCount after block = %d, want 1", got)
	}
	if got := tr.TotalConfirmed(); got != 2 {
		t.Errorf("TotalConfirmed = %d, want 2", got)
	}
	wantRate := float64(2) / 3 * 100
	if got := tr.ConfirmationRate(); got != wantRate {
		t.Errorf("ConfirmationRate = %f, want %f", got, wantRate)
	}

	// Re-checking the same block must not double count.
	if again := tr.CheckBlock([]common.Hash{h1, h3}); len(again) != 0 {
		t.Errorf("CheckBlock matched already-confirmed hashes: %v", again)
	}
	if got := tr.TotalConfirmed(); got != 2 {
		t.Errorf("TotalConfirmed after re-check = %d, want 2", got)
	}

	if tr.MedianLeadTime() < 0 || tr.MeanLeadTime() < 0 {
		t.Error("lead time stats went negative")
	}
}

func TestConfirmationTrackerCleanup(t *testing.T) {
	tr := NewConfirmationTracker()
	tr.Track(common.HexToHash("0x01"), "UniswapV3")
	tr.Track(common.HexToHash("0x02"), "UniswapV3")

	if removed := tr.Cleanup(time.Hour); removed != 0 {
		t.Errorf("Cleanup(1h) removed %d fresh entries", removed)
	}
	// A zero max age expires everything immediately.
	if removed := tr.Cleanup(0); removed != 2 {
		t.Errorf("Cleanup(0) removed %d, want 2", removed)
	}
	if got := tr.TrackingCount(); got != 0 {
		t.Errorf("TrackingCount after cleanup = %d, want 0", got)
	}
	// Seen stats survive cleanup; only the pending set shrinks.
	if got := tr.TotalSeen(); got != 2 {
		t.Errorf("TotalSeen after cleanup = %d, want 2", got)
	}
}

func TestConfirmationTrackerEmptyStats(t *testing.T) {
	tr := NewConfirmationTracker()
	if got := tr.ConfirmationRate(); got != 0 {
		t.Errorf("ConfirmationRate on empty tracker = %f, want 0", got)
	}
	if got := tr.MedianLeadTime(); got != 0 {
		t.Errorf("MedianLeadTime on empty tracker = %v, want 0", got)
	}
	if got := tr.MeanLeadTime(); got != 0 {
		t.Errorf("MeanLeadTime on empty tracker = %v, want 0", got)
	}
}

func TestSimulationTracker(t *testing.T) {
	tr := NewSimulationTracker()

	h1 := common.HexToHash("0x0a")
	h2 := common.HexToHash("0x0b")

	sim1 := SimulatedPool{PairSymbol: "WETH/USDC", PreSwapPrice: 3350, PostSwapPrice: 3342}
	opp := &SimulatedOpportunity{PairSymbol: "WETH/USDC", EstProfitUSD: 1.5}

	tr.Track(h1, sim1, opp)
	tr.Track(h2, SimulatedPool{PairSymbol: "WMATIC/USDC"}, nil)

	if got := tr.TotalOpportunities(); got != 1 {
		t.Errorf("TotalOpportunities = %d, want 1 (nil opp must not count)", got)
	}

	sim, gotOpp, ok := tr.CheckConfirmation(h1)
	if !ok {
		t.Fatal("CheckConfirmation missed a tracked hash")
	}
	if sim.PairSymbol != "WETH/USDC" || sim.PostSwapPrice != 3342 {
		t.Errorf("simulation = %+v, want the tracked projection", sim)
	}
	if gotOpp == nil || gotOpp.EstProfitUSD != 1.5 {
		t.Errorf("opportunity = %+v, want the tracked one", gotOpp)
	}

	// Confirmation consumes the entry.
	if _, _, ok := tr.CheckConfirmation(h1); ok {
		t.Error("CheckConfirmation returned a consumed entry")
	}
	if _, _, ok := tr.CheckConfirmation(common.HexToHash("0xff")); ok {
		t.Error("CheckConfirmation matched an untracked hash")
	}

	if removed := tr.Cleanup(0); removed != 1 {
		t.Errorf("Cleanup(0) removed %d, want the one stale entry", removed)
	}
}

func TestSimulationTrackerAccuracy(t *testing.T) {
	tr := NewSimulationTracker()
	if got := tr.MedianErrorPct(); got != 0 {
		t.Errorf("MedianErrorPct with no samples = %f, want 0", got)
	}

	tr.RecordAccuracy(5.0)
	tr.RecordAccuracy(100.0)
	tr.RecordAccuracy(1.0)

	if got := tr.TotalValidated(); got != 3 {
		t.Errorf("TotalValidated = %d, want 3", got)
	}
	// Sorted samples are [1, 5, 100]; the outlier must not drag the median.
	if got := tr.MedianErrorPct(); got != 5.0 {
		t.Errorf("MedianErrorPct = %f, want 5.0", got)
	}
}

func TestSimulatedPoolPriceImpact(t *testing.T) {
	tests := []struct {
		name string
		pre  float64
		post float64
		want float64
	}{
		{"price_drop", 3350, 3316.5, 1.0},
		{"price_rise", 100, 102, 2.0},
		{"no_move", 3350, 3350, 0},
		{"zero_pre_price", 0, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := SimulatedPool{PreSwapPrice: tt.pre, PostSwapPrice: tt.post}
			got := s.PriceImpactPct()
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("PriceImpactPct = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in         string
		want       Mode
		wantActive bool
	}{
		{"off", ModeOff, false},
		{"observe", ModeObserve, true},
		{"OBSERVE", ModeObserve, true},
		{"execute", ModeExecute, true},
		{"", ModeOff, false},
		{"garbage", ModeOff, false},
	}

	for _, tt := range tests {
		got := ParseMode(tt.in)
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if got.Active() != tt.wantActive {
			t.Errorf("ParseMode(%q).Active() = %v, want %v", tt.in, got.Active(), tt.wantActive)
		}
	}
}
