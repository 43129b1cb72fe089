package domain

import (
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Confirmation reports a tracked pending transaction that landed in a
// block, with the time between first mempool sighting and inclusion.
type Confirmation struct {
	Hash     common.Hash
	LeadTime time.Duration
	Router   string
}

type pendingEntry struct {
	seenAt time.Time
	router string
}

// ConfirmationTracker cross-references pending swap sightings against
// confirmed block contents to measure mempool visibility and lead time.
type ConfirmationTracker struct {
	mu      sync.Mutex
	pending map[common.Hash]pendingEntry

	totalSeen      uint64
	totalConfirmed uint64
	totalLead      time.Duration
	leadSamples    []time.Duration
}

// NewConfirmationTracker creates an empty tracker.
func NewConfirmationTracker() *ConfirmationTracker {
	return &ConfirmationTracker{pending: make(map[common.Hash]pendingEntry)}
}

// Track records a pending swap sighting.
func (t *ConfirmationTracker) Track(hash common.Hash, router string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalSeen++
	t.pending[hash] = pendingEntry{seenAt: time.Now(), router: router}
}

// CheckBlock matches a confirmed block's transaction hashes against the
// tracked pending set and returns the matches with their lead times.
func (t *ConfirmationTracker) CheckBlock(hashes []common.Hash) []Confirmation {
	t.mu.Lock()
	defer t.mu.Unlock()

	var matches []Confirmation
	for _, h := range hashes {
		e, ok := t.pending[h]
		if !ok {
			continue
		}
		delete(t.pending, h)

		lead := time.Since(e.seenAt)
		t.totalConfirmed++
		t.totalLead += lead
		t.leadSamples = append(t.leadSamples, lead)
		matches = append(matches, Confirmation{Hash: h, LeadTime: lead, Router: e.router})
	}
	return matches
}

// Cleanup drops entries older than maxAge; those were probably evicted from
// the mempool. Returns how many were dropped.
func (t *ConfirmationTracker) Cleanup(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for h, e := range t.pending {
		if time.Since(e.seenAt) >= maxAge {
			delete(t.pending, h)
			removed++
		}
	}
	return removed
}

// TrackingCount returns the number of pending transactions being watched.
func (t *ConfirmationTracker) TrackingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// TotalSeen returns how many pending swaps were ever tracked.
func (t *ConfirmationTracker) TotalSeen() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalSeen
}

// TotalConfirmed returns how many tracked swaps were later confirmed.
func (t *ConfirmationTracker) TotalConfirmed() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalConfirmed
}

// ConfirmationRate is confirmed/seen as a percentage.
func (t *ConfirmationTracker) ConfirmationRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.totalSeen == 0 {
		return 0
	}
	return float64(t.totalConfirmed) / float64(t.totalSeen) * 100
}

// MedianLeadTime returns the median sighting-to-inclusion delay.
func (t *ConfirmationTracker) MedianLeadTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.leadSamples) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(t.leadSamples))
	copy(sorted, t.leadSamples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2]
}

// MeanLeadTime returns the mean sighting-to-inclusion delay.
func (t *ConfirmationTracker) MeanLeadTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.totalConfirmed == 0 {
		return 0
	}
	return t.totalLead / time.Duration(t.totalConfirmed)
}

type trackedSimulation struct {
	simulated   SimulatedPool
	opportunity *SimulatedOpportunity
	seenAt      time.Time
}

// SimulationTracker holds speculative projections until their trigger
// transaction confirms, so the predicted price can be scored against the
// refreshed on-chain price.
type SimulationTracker struct {
	mu      sync.Mutex
	pending map[common.Hash]trackedSimulation

	totalOpportunities uint64
	totalValidated     uint64
	errSamples         []float64
}

// NewSimulationTracker creates an empty tracker.
func NewSimulationTracker() *SimulationTracker {
	return &SimulationTracker{pending: make(map[common.Hash]trackedSimulation)}
}

// Track stores the projection for a pending transaction. opp may be nil:
// accuracy is scored for every simulation, opportunity or not.
func (t *SimulationTracker) Track(hash common.Hash, sim SimulatedPool, opp *SimulatedOpportunity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if opp != nil {
		t.totalOpportunities++
	}
	t.pending[hash] = trackedSimulation{simulated: sim, opportunity: opp, seenAt: time.Now()}
}

// CheckConfirmation removes and returns the projection for a confirmed
// hash, if one is being tracked.
func (t *SimulationTracker) CheckConfirmation(hash common.Hash) (SimulatedPool, *SimulatedOpportunity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.pending[hash]
	if !ok {
		return SimulatedPool{}, nil, false
	}
	delete(t.pending, hash)
	return e.simulated, e.opportunity, true
}

// RecordAccuracy stores one predicted-vs-actual error percentage.
func (t *SimulationTracker) RecordAccuracy(errorPct float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalValidated++
	t.errSamples = append(t.errSamples, errorPct)
}

// Cleanup drops projections whose trigger never confirmed within maxAge.
func (t *SimulationTracker) Cleanup(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for h, e := range t.pending {
		if time.Since(e.seenAt) >= maxAge {
			delete(t.pending, h)
			removed++
		}
	}
	return removed
}

// TotalOpportunities returns how many simulations produced an opportunity.
func (t *SimulationTracker) TotalOpportunities() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalOpportunities
}

// TotalValidated returns how many projections were scored.
func (t *SimulationTracker) TotalValidated() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalValidated
}

// MedianErrorPct returns the median prediction error percentage.
func (t *SimulationTracker) MedianErrorPct() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.errSamples) == 0 {
		return 0
	}
	sorted := make([]float64, len(t.errSamples))
	copy(sorted, t.errSamples)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}
