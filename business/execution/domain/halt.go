package domain

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
)

// HaltInfo describes why a pair is latched and what reconciliation needs to
// check: the ambiguous transaction and the quote balance held before it.
// The route venues survive here so a late receipt can still feed the
// cooldown correctly.
type HaltInfo struct {
	Reason     string
	TxHash     common.Hash
	Nonce      uint64
	Token      common.Address
	PreBalance *big.Int
	BuyVenue   poolsdomain.Venue
	SellVenue  poolsdomain.Venue
	Since      time.Time
}

// PairHalt latches pairs whose last trade ended ambiguously. A halted pair
// takes no further automated submissions until a reconciliation pass (or an
// operator) clears it. Safe for concurrent use.
type PairHalt struct {
	mu     sync.Mutex
	halted map[string]HaltInfo
}

// NewPairHalt creates an empty latch.
func NewPairHalt() *PairHalt {
	return &PairHalt{halted: make(map[string]HaltInfo)}
}

// Halt latches a pair. An already-halted pair keeps its original info; the
// first ambiguity is the one reconciliation has to resolve.
func (h *PairHalt) Halt(pair string, info HaltInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.halted[pair]; ok {
		return
	}
	if info.Since.IsZero() {
		info.Since = time.Now()
	}
	h.halted[pair] = info
}

// IsHalted reports whether a pair is latched.
func (h *PairHalt) IsHalted(pair string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.halted[pair]
	return ok
}

// Info returns the halt details for a pair.
func (h *PairHalt) Info(pair string) (HaltInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	info, ok := h.halted[pair]
	return info, ok
}

// Clear releases a pair.
func (h *PairHalt) Clear(pair string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.halted, pair)
}

// Halted returns the latched pairs and their info, for reconciliation and
// status display.
func (h *PairHalt) Halted() map[string]HaltInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]HaltInfo, len(h.halted))
	for pair, info := range h.halted {
		out[pair] = info
	}
	return out
}

// Len returns the number of latched pairs.
func (h *PairHalt) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.halted)
}
