package domain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestPoolFailures_DemotesAtLimit(t *testing.T) {
	f := NewPoolFailures(3)
	addr := common.HexToAddress("0x01")

	for i := 1; i <= 2; i++ {
		if got := f.RecordFailure(addr); got != i {
			t.Fatalf("failure %d: count = %d", i, got)
		}
		if f.Demoted(addr) {
			t.Fatalf("demoted after %d failures, limit is 3", i)
		}
	}

	f.RecordFailure(addr)
	if !f.Demoted(addr) {
		t.Error("not demoted after reaching the limit")
	}
	if f.DemotedCount() != 1 {
		t.Errorf("DemotedCount = %d, want 1", f.DemotedCount())
	}
}

func TestPoolFailures_SuccessResetsStreak(t *testing.T) {
	f := NewPoolFailures(2)
	addr := common.HexToAddress("0x02")

	f.RecordFailure(addr)
	f.RecordFailure(addr)
	if !f.Demoted(addr) {
		t.Fatal("expected demotion at the limit")
	}

	f.RecordSuccess(addr)
	if f.Demoted(addr) {
		t.Error("success must clear the demotion")
	}
	if got := f.RecordFailure(addr); got != 1 {
		t.Errorf("streak after reset = %d, want 1", got)
	}
}

func TestPoolFailures_PoolsAreIndependent(t *testing.T) {
	f := NewPoolFailures(2)
	a := common.HexToAddress("0x0a")
	b := common.HexToAddress("0x0b")

	f.RecordFailure(a)
	f.RecordFailure(a)
	f.RecordFailure(b)

	if !f.Demoted(a) {
		t.Error("pool a should be demoted")
	}
	if f.Demoted(b) {
		t.Error("pool b demoted by pool a's failures")
	}
}

func TestPoolFailures_ZeroLimitUsesDefault(t *testing.T) {
	f := NewPoolFailures(0)
	addr := common.HexToAddress("0x03")

	for i := 0; i < DefaultDepthFailureLimit-1; i++ {
		f.RecordFailure(addr)
	}
	if f.Demoted(addr) {
		t.Error("demoted below the default limit")
	}
	f.RecordFailure(addr)
	if !f.Demoted(addr) {
		t.Error("not demoted at the default limit")
	}
}
