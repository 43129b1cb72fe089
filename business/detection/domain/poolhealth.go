package domain

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultDepthFailureLimit is how many consecutive depth failures demote a
// pool when no limit is configured.
const DefaultDepthFailureLimit = 3

// PoolFailures counts consecutive quote-depth failures per pool. A pool
// whose reported price repeatedly fails depth verification is advertising
// liquidity it does not have; past the limit it is demoted from admission
// until a verification against it succeeds. Detection-only signal, fully
// separate from the execution-outcome RouteCooldown.
// Safe for concurrent use.
type PoolFailures struct {
	limit int

	mu    sync.Mutex
	count map[common.Address]int
}

// NewPoolFailures creates the counter. A limit of 0 or less uses
// DefaultDepthFailureLimit.
func NewPoolFailures(limit int) *PoolFailures {
	if limit <= 0 {
		limit = DefaultDepthFailureLimit
	}
	return &PoolFailures{
		limit: limit,
		count: make(map[common.Address]int),
	}
}

// RecordFailure notes one more consecutive depth failure and returns the new
// count.
func (f *PoolFailures) RecordFailure(addr common.Address) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.count[addr]++
	return f.count[addr]
}

// RecordSuccess clears the pool's failure streak.
func (f *PoolFailures) RecordSuccess(addr common.Address) {
	f.mu.Lock()
	delete(f.count, addr)
	f.mu.Unlock()
}

// Demoted reports whether the pool has reached the failure limit.
func (f *PoolFailures) Demoted(addr common.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count[addr] >= f.limit
}

// DemotedCount returns how many pools are currently demoted.
func (f *PoolFailures) DemotedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.count {
		if c >= f.limit {
			n++
		}
	}
	return n
}
