package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/dexarb/business/pools/domain"
	"github.com/fd1az/dexarb/internal/apperror"
	"github.com/fd1az/dexarb/internal/logger"
)

const (
	tracerName = "github.com/fd1az/dexarb/business/pools/app"
	meterName  = "github.com/fd1az/dexarb/business/pools/app"
)

// PairSpec seeds pool discovery for one trading pair. TokenB is the quote
// currency; the pool contract's own ordering decides token0/token1.
type PairSpec struct {
	TokenA common.Address
	TokenB common.Address
	Symbol string
}

// VenueSpec names a factory to discover pools on.
type VenueSpec struct {
	Venue   domain.Venue
	Factory common.Address
}

// ServiceConfig holds sync loop tuning.
type ServiceConfig struct {
	SyncInterval time.Duration
	// SyncBatchPairs caps how many pairs refresh per tick; pairs rotate
	// round-robin so a large pair set spreads its RPC load over time.
	SyncBatchPairs int
	MaxStaleBlocks uint64
}

type trackedPool struct {
	address     common.Address
	venue       domain.Venue
	pair        domain.Pair
	quoteToken0 bool
	algebra     bool
}

type serviceMetrics struct {
	syncTotal    metric.Int64Counter
	syncErrors   metric.Int64Counter
	syncDuration metric.Float64Histogram
	poolsTracked metric.Int64Gauge
}

// PoolService owns pool discovery and the periodic state sync loop, and is
// the read surface other contexts use for pool views.
type PoolService struct {
	cfg    ServiceConfig
	logger logger.LoggerInterface

	cache      *StateCache
	v2Syncer   V2Syncer
	v3Syncer   V3Syncer
	discoverer PoolDiscoverer
	tokens     TokenMetadata
	priceLog   PriceLogger // nil disables price logging

	// pairOrder fixes the round-robin rotation; pools are grouped by the
	// pair symbol they trade.
	pairOrder []string
	byPair    map[string][]trackedPool
	nextPair  int

	// lastBlock is read by other contexts while the sync loop writes it.
	lastBlock atomic.Uint64

	tracer  trace.Tracer
	metrics *serviceMetrics
}

// NewPoolService creates the pool service. priceLog may be nil.
func NewPoolService(
	cfg ServiceConfig,
	log logger.LoggerInterface,
	cache *StateCache,
	v2 V2Syncer,
	v3 V3Syncer,
	disc PoolDiscoverer,
	tokens TokenMetadata,
	priceLog PriceLogger,
) (*PoolService, error) {
	s := &PoolService{
		cfg:        cfg,
		logger:     log,
		cache:      cache,
		v2Syncer:   v2,
		v3Syncer:   v3,
		discoverer: disc,
		tokens:     tokens,
		priceLog:   priceLog,
		byPair:     make(map[string][]trackedPool),
		tracer:     otel.Tracer(tracerName),
	}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return s, nil
}

func (s *PoolService) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &serviceMetrics{}

	s.metrics.syncTotal, err = meter.Int64Counter(
		"pool_sync_total",
		metric.WithDescription("Pool sync attempts"),
		metric.WithUnit("{sync}"),
	)
	if err != nil {
		return err
	}

	s.metrics.syncErrors, err = meter.Int64Counter(
		"pool_sync_errors_total",
		metric.WithDescription("Pool sync failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	s.metrics.syncDuration, err = meter.Float64Histogram(
		"pool_sync_duration_seconds",
		metric.WithDescription("Pool sync batch duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	s.metrics.poolsTracked, err = meter.Int64Gauge(
		"pools_tracked",
		metric.WithDescription("Number of pools in the state cache"),
		metric.WithUnit("{pool}"),
	)
	return err
}

// Discover resolves pool addresses for every pair on every venue and seeds
// the cache with empty state. Venues without a pool for a pair are skipped;
// a pair that resolves nowhere is reported but does not fail startup.
func (s *PoolService) Discover(ctx context.Context, pairs []PairSpec, venues []VenueSpec) error {
	ctx, span := s.tracer.Start(ctx, "pools.discover",
		trace.WithAttributes(
			attribute.Int("pairs", len(pairs)),
			attribute.Int("venues", len(venues)),
		),
	)
	defer span.End()

	for _, p := range pairs {
		found := 0
		for _, v := range venues {
			tracked, err := s.discoverOne(ctx, p, v)
			if err != nil {
				s.logger.Warn(ctx, "pool discovery failed",
					"pair", p.Symbol, "venue", v.Venue.String(), "error", err)
				continue
			}
			if tracked == nil {
				continue
			}

			s.byPair[p.Symbol] = append(s.byPair[p.Symbol], *tracked)
			s.seed(*tracked)
			found++

			s.logger.Info(ctx, "pool discovered",
				"pair", p.Symbol,
				"venue", v.Venue.String(),
				"address", tracked.address.Hex())
		}

		if found == 0 {
			s.logger.Warn(ctx, "no pools found for pair", "pair", p.Symbol)
			continue
		}
		s.pairOrder = append(s.pairOrder, p.Symbol)
	}

	if len(s.pairOrder) == 0 {
		return apperror.New(apperror.CodePoolNotFound,
			apperror.WithContext("no pools discovered for any configured pair"))
	}

	s.metrics.poolsTracked.Record(ctx, int64(s.cache.Len()))
	span.SetAttributes(attribute.Int("pools", s.cache.Len()))
	return nil
}

func (s *PoolService) discoverOne(ctx context.Context, p PairSpec, v VenueSpec) (*trackedPool, error) {
	if v.Factory == (common.Address{}) {
		return nil, nil
	}

	var (
		addr    common.Address
		algebra bool
		err     error
	)
	switch {
	case v.Venue.IsV2():
		addr, err = s.discoverer.V2Pool(ctx, v.Factory, p.TokenA, p.TokenB)
	case v.Venue == domain.QuickSwapV3:
		algebra = true
		addr, err = s.discoverer.AlgebraPool(ctx, v.Factory, p.TokenA, p.TokenB)
	default:
		addr, err = s.discoverer.V3Pool(ctx, v.Factory, p.TokenA, p.TokenB, v.Venue.FeeTier())
	}
	if err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return nil, nil
	}

	token0, err := s.discoverer.Token0(ctx, addr)
	if err != nil {
		return nil, err
	}

	pair, quoteToken0, err := s.buildPair(ctx, p, token0)
	if err != nil {
		return nil, err
	}

	return &trackedPool{
		address:     addr,
		venue:       v.Venue,
		pair:        pair,
		quoteToken0: quoteToken0,
		algebra:     algebra,
	}, nil
}

func (s *PoolService) buildPair(ctx context.Context, p PairSpec, token0 common.Address) (domain.Pair, bool, error) {
	token1 := p.TokenB
	quoteToken0 := false
	if token0 == p.TokenB {
		// Contract ordering swapped the config order; the quote sits at
		// token0.
		token1 = p.TokenA
		quoteToken0 = true
	}

	dec0, err := s.tokens.Decimals(ctx, token0)
	if err != nil {
		return domain.Pair{}, false, err
	}
	dec1, err := s.tokens.Decimals(ctx, token1)
	if err != nil {
		return domain.Pair{}, false, err
	}

	return domain.Pair{
		Token0:         token0,
		Token1:         token1,
		Token0Decimals: dec0,
		Token1Decimals: dec1,
		Symbol:         p.Symbol,
	}, quoteToken0, nil
}

// seed registers a pool in the cache with empty state so it shows up in
// status output before the first sync lands.
func (s *PoolService) seed(t trackedPool) {
	if t.venue.IsV2() {
		s.cache.PutV2(&domain.V2Pool{
			Address: t.address,
			Venue:   t.venue,
			Pair:    t.pair,
		}, t.quoteToken0)
		return
	}
	s.cache.PutV3(&domain.V3Pool{
		Address: t.address,
		Venue:   t.venue,
		Pair:    t.pair,
		Fee:     t.venue.FeeTier(),
	}, t.quoteToken0)
}

// Run drives the sync loop until ctx is cancelled. Each tick refreshes the
// next batch of pairs in rotation.
func (s *PoolService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	// Initial full sync so the detector has state immediately.
	if err := s.syncPairs(ctx, s.pairOrder); err != nil {
		s.logger.Warn(ctx, "initial pool sync failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			batch := s.nextBatch()
			if err := s.syncPairs(ctx, batch); err != nil {
				s.logger.Warn(ctx, "pool sync failed", "pairs", batch, "error", err)
			}
		}
	}
}

// nextBatch advances the round-robin cursor and returns the pairs to sync.
func (s *PoolService) nextBatch() []string {
	n := s.cfg.SyncBatchPairs
	if n <= 0 || n >= len(s.pairOrder) {
		return s.pairOrder
	}

	batch := make([]string, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, s.pairOrder[s.nextPair])
		s.nextPair = (s.nextPair + 1) % len(s.pairOrder)
	}
	return batch
}

func (s *PoolService) syncPairs(ctx context.Context, symbols []string) error {
	ctx, span := s.tracer.Start(ctx, "pools.sync",
		trace.WithAttributes(attribute.StringSlice("pairs", symbols)),
	)
	defer span.End()

	start := time.Now()
	s.metrics.syncTotal.Add(ctx, 1)

	var (
		v2Addrs   []common.Address
		v3Targets []V3Target
		tracked   = make(map[common.Address]trackedPool)
	)
	for _, sym := range symbols {
		for _, t := range s.byPair[sym] {
			tracked[t.address] = t
			if t.venue.IsV2() {
				v2Addrs = append(v2Addrs, t.address)
			} else {
				v3Targets = append(v3Targets, V3Target{Address: t.address, Algebra: t.algebra})
			}
		}
	}

	var firstErr error

	if len(v2Addrs) > 0 {
		states, err := s.v2Syncer.Sync(ctx, v2Addrs)
		if err != nil {
			firstErr = err
			s.metrics.syncErrors.Add(ctx, 1)
		} else {
			for _, st := range states {
				s.applyV2(st, tracked[st.Address])
			}
		}
	}

	if len(v3Targets) > 0 {
		states, err := s.v3Syncer.Sync(ctx, v3Targets)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.metrics.syncErrors.Add(ctx, 1)
		} else {
			for _, st := range states {
				s.applyV3(st, tracked[st.Address])
			}
		}
	}

	s.metrics.syncDuration.Record(ctx, time.Since(start).Seconds())
	s.metrics.poolsTracked.Record(ctx, int64(s.cache.Len()))

	if block := s.lastBlock.Load(); s.priceLog != nil && block > 0 {
		if err := s.priceLog.Log(block, s.cache.Views(block, s.cfg.MaxStaleBlocks)); err != nil {
			s.logger.Warn(ctx, "price log write failed", "error", err)
		}
	}

	if firstErr != nil {
		span.RecordError(firstErr)
		return apperror.Wrap(firstErr, apperror.CodePoolSyncFailed, "batch sync")
	}
	return nil
}

func (s *PoolService) applyV2(st V2State, t trackedPool) {
	if t.address == (common.Address{}) {
		return
	}
	s.cache.PutV2(&domain.V2Pool{
		Address:     st.Address,
		Venue:       t.venue,
		Pair:        t.pair,
		Reserve0:    st.Reserve0,
		Reserve1:    st.Reserve1,
		LastUpdated: st.Block,
	}, t.quoteToken0)
	s.noteBlock(st.Block)
}

func (s *PoolService) applyV3(st V3State, t trackedPool) {
	if t.address == (common.Address{}) {
		return
	}
	fee := t.venue.FeeTier()
	if t.algebra {
		fee = st.Fee
	}
	s.cache.PutV3(&domain.V3Pool{
		Address:      st.Address,
		Venue:        t.venue,
		Pair:         t.pair,
		SqrtPriceX96: st.SqrtPriceX96,
		Tick:         st.Tick,
		Fee:          fee,
		Liquidity:    st.Liquidity,
		LastUpdated:  st.Block,
	}, t.quoteToken0)
	s.noteBlock(st.Block)
}

func (s *PoolService) noteBlock(block uint64) {
	for {
		cur := s.lastBlock.Load()
		if block <= cur || s.lastBlock.CompareAndSwap(cur, block) {
			return
		}
	}
}

// Views returns fresh detection projections as of the last synced block.
func (s *PoolService) Views() []domain.PoolView {
	return s.cache.Views(s.lastBlock.Load(), s.cfg.MaxStaleBlocks)
}

// ViewsByPair groups fresh views by pair symbol.
func (s *PoolService) ViewsByPair() map[string][]domain.PoolView {
	return s.cache.ViewsByPair(s.lastBlock.Load(), s.cfg.MaxStaleBlocks)
}

// Pair returns the token pair and quote orientation for a tracked pool.
func (s *PoolService) Pair(addr common.Address) (domain.Pair, bool, error) {
	return s.cache.Pair(addr)
}

// Cache exposes the underlying state cache for contexts that need direct
// pool snapshots (the mempool simulator).
func (s *PoolService) Cache() *StateCache {
	return s.cache
}

// V2ByVenue returns the V2 pool on venue trading symbol.
func (s *PoolService) V2ByVenue(venue domain.Venue, symbol string) (*domain.V2Pool, bool, error) {
	return s.cache.V2ByVenue(venue, symbol)
}

// V3ByVenue returns the V3 pool on venue trading symbol.
func (s *PoolService) V3ByVenue(venue domain.Venue, symbol string) (*domain.V3Pool, bool, error) {
	return s.cache.V3ByVenue(venue, symbol)
}

// PairOrientations lists every tracked pool's pair and quote orientation.
func (s *PoolService) PairOrientations() []PairOrientation {
	return s.cache.PairOrientations()
}

// LastBlock returns the highest block any sync has observed.
func (s *PoolService) LastBlock() uint64 {
	return s.lastBlock.Load()
}

// Close flushes the price log.
func (s *PoolService) Close() error {
	if s.priceLog != nil {
		return s.priceLog.Close()
	}
	return nil
}
