package domain

import (
	"math/big"
	"testing"
)

func TestScaleUSD(t *testing.T) {
	tests := []struct {
		name     string
		usd      float64
		decimals uint8
		want     string
	}{
		{"usdc_whole", 1000, 6, "1000000000"},
		{"usdc_cents", 0.25, 6, "250000"},
		{"eighteen_decimals", 1, 18, "1000000000000000000"},
		{"zero", 0, 6, "0"},
		{"negative", -5, 6, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScaleUSD(tt.usd, tt.decimals)
			if got.String() != tt.want {
				t.Errorf("ScaleUSD(%v, %d) = %s, want %s", tt.usd, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestStateStrings(t *testing.T) {
	if StateConfirmedRevert.String() != "confirmed_revert" {
		t.Errorf("State string = %q", StateConfirmedRevert.String())
	}
	if State(200).String() != "unknown" {
		t.Errorf("out-of-range state = %q", State(200).String())
	}
}

func TestTradeRecordSucceeded(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusConfirmed:    true,
		StatusDryRun:       true,
		StatusReverted:     false,
		StatusTimeout:      false,
		StatusRejectedGas:  false,
		StatusSubmitFailed: false,
	} {
		r := &TradeRecord{Status: status}
		if r.Succeeded() != want {
			t.Errorf("Succeeded(%s) = %v, want %v", status, r.Succeeded(), want)
		}
	}
}

func TestNonceCache(t *testing.T) {
	n := NewNonceCache()

	if _, ok := n.Reserve(); ok {
		t.Fatal("Reserve before Sync should fail")
	}

	n.Sync(42)
	for want := uint64(42); want < 45; want++ {
		got, ok := n.Reserve()
		if !ok || got != want {
			t.Fatalf("Reserve = %d/%v, want %d", got, ok, want)
		}
	}

	n.Invalidate()
	if n.Synced() {
		t.Error("Synced after Invalidate")
	}
	if _, ok := n.Reserve(); ok {
		t.Error("Reserve after Invalidate should fail")
	}

	n.Sync(100)
	if got, _ := n.Reserve(); got != 100 {
		t.Errorf("Reserve after resync = %d, want 100", got)
	}
}

func TestPairHalt(t *testing.T) {
	h := NewPairHalt()

	if h.IsHalted("WETH/USDC") {
		t.Fatal("fresh latch should be empty")
	}

	h.Halt("WETH/USDC", HaltInfo{Reason: "confirmation timeout", Nonce: 7, PreBalance: big.NewInt(1000)})
	if !h.IsHalted("WETH/USDC") {
		t.Fatal("pair not halted")
	}
	if h.Len() != 1 {
		t.Errorf("Len = %d, want 1", h.Len())
	}

	info, ok := h.Info("WETH/USDC")
	if !ok || info.Reason != "confirmation timeout" || info.Since.IsZero() {
		t.Errorf("Info = %+v, %v", info, ok)
	}

	// A second halt must not overwrite the first ambiguity.
	h.Halt("WETH/USDC", HaltInfo{Reason: "later"})
	info, _ = h.Info("WETH/USDC")
	if info.Reason != "confirmation timeout" {
		t.Errorf("halt overwritten: %q", info.Reason)
	}

	h.Clear("WETH/USDC")
	if h.IsHalted("WETH/USDC") {
		t.Error("pair still halted after Clear")
	}
}

func TestPairHaltSnapshotIsCopy(t *testing.T) {
	h := NewPairHalt()
	h.Halt("WMATIC/USDC", HaltInfo{Reason: "timeout"})

	snap := h.Halted()
	delete(snap, "WMATIC/USDC")
	if !h.IsHalted("WMATIC/USDC") {
		t.Error("mutating the snapshot reached the latch")
	}
}
