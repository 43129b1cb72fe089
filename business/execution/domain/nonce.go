package domain

import "sync"

// NonceCache hands out account nonces without a round trip per trade. The
// next nonce is pre-computed from the chain once, then advanced locally
// exactly once per submission. Anything that leaves the local view in doubt
// (a failed broadcast, an out-of-band transaction) invalidates the cache and
// forces a resync before the next reservation.
type NonceCache struct {
	mu     sync.Mutex
	next   uint64
	synced bool
}

// NewNonceCache creates an unsynced cache; Sync must run before the first
// Reserve.
func NewNonceCache() *NonceCache {
	return &NonceCache{}
}

// Sync sets the next nonce from the chain's pending count.
func (n *NonceCache) Sync(pending uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next = pending
	n.synced = true
}

// Reserve returns the next nonce and advances the cache. The second return
// is false when the cache needs a resync first.
func (n *NonceCache) Reserve() (uint64, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.synced {
		return 0, false
	}
	nonce := n.next
	n.next++
	return nonce, true
}

// Invalidate marks the cache stale.
func (n *NonceCache) Invalidate() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.synced = false
}

// Synced reports whether the cache holds a usable nonce.
func (n *NonceCache) Synced() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.synced
}
