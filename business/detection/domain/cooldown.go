package domain

import (
	"sync"
)

// CooldownConfig tunes the escalating per-route backoff.
type CooldownConfig struct {
	// InitialBlocks is the first cooldown length; 0 disables cooldowns.
	InitialBlocks uint64
	// Factor multiplies the cooldown on every consecutive failure.
	Factor uint64
	// CapBlocks bounds the escalation.
	CapBlocks uint64
}

// DefaultCooldownConfig returns the production defaults: 10 blocks, times 5
// per failure, capped at 1800 blocks (about an hour on Polygon).
func DefaultCooldownConfig() CooldownConfig {
	return CooldownConfig{InitialBlocks: 10, Factor: 5, CapBlocks: 1800}
}

type routeState struct {
	failures        uint32
	lastFailedBlock uint64
}

// RouteCooldown suppresses routes that keep failing. Each consecutive
// failure escalates the cooldown, a success clears the route entirely.
// Safe for concurrent use; the detector reads while the execution engine
// records outcomes.
type RouteCooldown struct {
	cfg CooldownConfig

	mu     sync.Mutex
	routes map[RouteKey]routeState
}

// NewRouteCooldown creates a cooldown tracker.
func NewRouteCooldown(cfg CooldownConfig) *RouteCooldown {
	return &RouteCooldown{
		cfg:    cfg,
		routes: make(map[RouteKey]routeState),
	}
}

// Enabled reports whether cooldown tracking is active.
func (c *RouteCooldown) Enabled() bool {
	return c.cfg.InitialBlocks > 0
}

// blocksFor returns the cooldown length after the given failure count:
// initial * factor^(failures-1), capped.
func (c *RouteCooldown) blocksFor(failures uint32) uint64 {
	blocks := c.cfg.InitialBlocks
	for i := uint32(1); i < failures; i++ {
		blocks *= c.cfg.Factor
		if blocks >= c.cfg.CapBlocks {
			return c.cfg.CapBlocks
		}
	}
	if blocks > c.cfg.CapBlocks {
		return c.cfg.CapBlocks
	}
	return blocks
}

// IsCooledDown reports whether the route is currently suppressed.
func (c *RouteCooldown) IsCooledDown(key RouteKey, currentBlock uint64) bool {
	if !c.Enabled() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.routes[key]
	if !ok {
		return false
	}
	return currentBlock < st.lastFailedBlock+c.blocksFor(st.failures)
}

// Remaining returns how many blocks of cooldown are left; 0 when the route
// is clear.
func (c *RouteCooldown) Remaining(key RouteKey, currentBlock uint64) uint64 {
	if !c.Enabled() {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.routes[key]
	if !ok {
		return 0
	}
	until := st.lastFailedBlock + c.blocksFor(st.failures)
	if currentBlock >= until {
		return 0
	}
	return until - currentBlock
}

// RecordFailure notes a failed attempt on the route, escalating its cooldown.
func (c *RouteCooldown) RecordFailure(key RouteKey, block uint64) {
	if !c.Enabled() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.routes[key]
	st.failures++
	st.lastFailedBlock = block
	c.routes[key] = st
}

// RecordSuccess clears the route's failure history.
func (c *RouteCooldown) RecordSuccess(key RouteKey) {
	c.mu.Lock()
	delete(c.routes, key)
	c.mu.Unlock()
}

// Cleanup drops entries whose cooldown has expired and returns how many were
// removed. Expired entries also lose their escalation history; a route that
// sat quiet through its full cooldown starts over at the initial backoff.
func (c *RouteCooldown) Cleanup(currentBlock uint64) int {
	if !c.Enabled() {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, st := range c.routes {
		if currentBlock >= st.lastFailedBlock+c.blocksFor(st.failures) {
			delete(c.routes, key)
			removed++
		}
	}
	return removed
}

// ActiveCount returns how many routes are currently suppressed.
func (c *RouteCooldown) ActiveCount(currentBlock uint64) int {
	if !c.Enabled() {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	active := 0
	for _, st := range c.routes {
		if currentBlock < st.lastFailedBlock+c.blocksFor(st.failures) {
			active++
		}
	}
	return active
}
