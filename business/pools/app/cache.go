package app

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/dexarb/business/pools/domain"
	"github.com/fd1az/dexarb/internal/apperror"
)

type v2Entry struct {
	pool        *domain.V2Pool
	quoteToken0 bool
}

type v3Entry struct {
	pool        *domain.V3Pool
	quoteToken0 bool
}

// StateCache is the concurrent pool-state store shared between the syncers
// (writers) and the detector and mempool simulator (readers). Readers get
// snapshot copies; stored pools are never handed out by reference so a
// half-applied update can never be observed.
type StateCache struct {
	mu sync.RWMutex
	v2 map[common.Address]v2Entry
	v3 map[common.Address]v3Entry
}

// NewStateCache creates an empty state cache.
func NewStateCache() *StateCache {
	return &StateCache{
		v2: make(map[common.Address]v2Entry),
		v3: make(map[common.Address]v3Entry),
	}
}

// PutV2 stores or replaces a V2 pool snapshot.
func (c *StateCache) PutV2(pool *domain.V2Pool, quoteToken0 bool) {
	c.mu.Lock()
	c.v2[pool.Address] = v2Entry{pool: pool, quoteToken0: quoteToken0}
	c.mu.Unlock()
}

// PutV3 stores or replaces a V3 pool snapshot.
func (c *StateCache) PutV3(pool *domain.V3Pool, quoteToken0 bool) {
	c.mu.Lock()
	c.v3[pool.Address] = v3Entry{pool: pool, quoteToken0: quoteToken0}
	c.mu.Unlock()
}

// V2 returns a copy of the V2 pool at addr.
func (c *StateCache) V2(addr common.Address) (*domain.V2Pool, error) {
	c.mu.RLock()
	e, ok := c.v2[addr]
	c.mu.RUnlock()
	if !ok {
		return nil, apperror.NotFound(apperror.CodePoolNotFound, addr.Hex())
	}
	cp := *e.pool
	return &cp, nil
}

// V3 returns a copy of the V3 pool at addr.
func (c *StateCache) V3(addr common.Address) (*domain.V3Pool, error) {
	c.mu.RLock()
	e, ok := c.v3[addr]
	c.mu.RUnlock()
	if !ok {
		return nil, apperror.NotFound(apperror.CodePoolNotFound, addr.Hex())
	}
	cp := *e.pool
	return &cp, nil
}

// QuoteToken0 reports whether the quote currency is token0 for the pool at
// addr.
func (c *StateCache) QuoteToken0(addr common.Address) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.v2[addr]; ok {
		return e.quoteToken0, nil
	}
	if e, ok := c.v3[addr]; ok {
		return e.quoteToken0, nil
	}
	return false, apperror.NotFound(apperror.CodePoolNotFound, addr.Hex())
}

// Pair returns the token pair and quote orientation for the pool at addr.
func (c *StateCache) Pair(addr common.Address) (domain.Pair, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.v2[addr]; ok {
		return e.pool.Pair, e.quoteToken0, nil
	}
	if e, ok := c.v3[addr]; ok {
		return e.pool.Pair, e.quoteToken0, nil
	}
	return domain.Pair{}, false, apperror.NotFound(apperror.CodePoolNotFound, addr.Hex())
}

// V2ByVenue returns a copy of the V2 pool on venue trading symbol, plus its
// quote orientation.
func (c *StateCache) V2ByVenue(venue domain.Venue, symbol string) (*domain.V2Pool, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.v2 {
		if e.pool.Venue == venue && e.pool.Pair.Symbol == symbol {
			cp := *e.pool
			return &cp, e.quoteToken0, nil
		}
	}
	return nil, false, apperror.NotFound(apperror.CodePoolNotFound, venue.String()+" "+symbol)
}

// V3ByVenue returns a copy of the V3 pool on venue trading symbol, plus its
// quote orientation.
func (c *StateCache) V3ByVenue(venue domain.Venue, symbol string) (*domain.V3Pool, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.v3 {
		if e.pool.Venue == venue && e.pool.Pair.Symbol == symbol {
			cp := *e.pool
			return &cp, e.quoteToken0, nil
		}
	}
	return nil, false, apperror.NotFound(apperror.CodePoolNotFound, venue.String()+" "+symbol)
}

// PairOrientation pairs a token pair with its quote orientation; one entry
// per tracked pool.
type PairOrientation struct {
	Pair        domain.Pair
	QuoteToken0 bool
}

// PairOrientations lists every tracked pool's pair and orientation. The
// mempool pair lookup is rebuilt from this.
func (c *StateCache) PairOrientations() []PairOrientation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]PairOrientation, 0, len(c.v2)+len(c.v3))
	for _, e := range c.v2 {
		out = append(out, PairOrientation{Pair: e.pool.Pair, QuoteToken0: e.quoteToken0})
	}
	for _, e := range c.v3 {
		out = append(out, PairOrientation{Pair: e.pool.Pair, QuoteToken0: e.quoteToken0})
	}
	return out
}

// Views returns detection projections for every pool that has liquidity and
// is not stale at currentBlock. maxStale of 0 disables the staleness filter.
func (c *StateCache) Views(currentBlock, maxStale uint64) []domain.PoolView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	views := make([]domain.PoolView, 0, len(c.v2)+len(c.v3))
	for _, e := range c.v2 {
		if !e.pool.HasLiquidity() {
			continue
		}
		v := e.pool.View(e.quoteToken0)
		if maxStale > 0 && v.IsStale(currentBlock, maxStale) {
			continue
		}
		views = append(views, v)
	}
	for _, e := range c.v3 {
		if !e.pool.HasLiquidity() {
			continue
		}
		v := e.pool.View(e.quoteToken0)
		if maxStale > 0 && v.IsStale(currentBlock, maxStale) {
			continue
		}
		views = append(views, v)
	}
	return views
}

// ViewsByPair groups fresh views by pair symbol.
func (c *StateCache) ViewsByPair(currentBlock, maxStale uint64) map[string][]domain.PoolView {
	grouped := make(map[string][]domain.PoolView)
	for _, v := range c.Views(currentBlock, maxStale) {
		grouped[v.PairSymbol] = append(grouped[v.PairSymbol], v)
	}
	return grouped
}

// Len returns the number of tracked pools.
func (c *StateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.v2) + len(c.v3)
}
