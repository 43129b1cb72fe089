package app

import (
	"math/big"
	"sort"

	"github.com/fd1az/dexarb/business/mempool/domain"
	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
	"github.com/fd1az/dexarb/internal/apperror"
)

// Router names the monitor subscribes under. The simulator resolves them,
// together with the calldata fee tier, to a tracked venue.
const (
	RouterUniswapV3 = "UniswapV3"
	RouterSushiV3   = "SushiV3"
	RouterQuickV3   = "QuickSwapV3"
	RouterQuickV2   = "QuickSwapV2"
	RouterSushiV2   = "SushiV2"
)

// simSlippagePct is the haircut applied to projected gross profit. Mempool
// projections race the trigger transaction, so they get a tighter haircut
// than block-driven detection.
const simSlippagePct = 1.0

// SimulatorConfig holds the speculative profit model parameters.
type SimulatorConfig struct {
	MaxTradeSizeUSD float64
	GasCostUSD      float64
}

// SimulationResult is one projected pool state plus the cross-venue
// opportunities it would open, ranked by estimated profit descending.
type SimulationResult struct {
	Pool       domain.SimulatedPool
	ZeroForOne bool
	AmountIn   *big.Int
	// Opportunities carry venue, spread and profit; the monitor stamps the
	// trigger identity before publishing.
	Opportunities []domain.SimulatedOpportunity
}

// Simulator projects the post-swap state of the pool a pending swap
// targets and prices the cross-venue spreads that state would open. It
// only reads synced pool state; nothing here touches the chain.
type Simulator struct {
	cfg    SimulatorConfig
	pools  PoolSource
	lookup *PairLookup
}

// NewSimulator builds the simulator and its token lookup from the pools
// tracked at construction time.
func NewSimulator(cfg SimulatorConfig, pools PoolSource) *Simulator {
	return &Simulator{
		cfg:    cfg,
		pools:  pools,
		lookup: BuildPairLookup(pools.PairOrientations()),
	}
}

// PairCount reports how many base tokens the lookup resolves.
func (s *Simulator) PairCount() int {
	return s.lookup.PairCount()
}

// Simulate projects a decoded pending swap onto the tracked pool it
// targets. Swaps that cannot be attributed or priced return an error with
// a reason; the monitor counts them, nothing more.
func (s *Simulator) Simulate(swap *domain.DecodedSwap, routerName string) (*SimulationResult, error) {
	if swap.TokenIn == nil || swap.TokenOut == nil || swap.AmountIn == nil {
		return nil, apperror.New(apperror.CodeSimulationFailed,
			apperror.WithContext("swap parameters incomplete"))
	}
	if swap.IsExactOutput() {
		// The input amount of an exact-output swap is unknown until it
		// executes; projecting a guess would poison the accuracy stats.
		return nil, apperror.New(apperror.CodeSimulationFailed,
			apperror.WithContext("exact-output swap"))
	}

	symbol, ok := s.lookup.IdentifyPair(*swap.TokenIn, *swap.TokenOut)
	if !ok {
		return nil, apperror.New(apperror.CodeSimulationFailed,
			apperror.WithContext("tokens not tracked"))
	}

	venue, err := resolveVenue(routerName, swap.FeeTier)
	if err != nil {
		return nil, err
	}

	if venue.IsV2() {
		return s.simulateV2(swap, venue, symbol)
	}
	return s.simulateV3(swap, venue, symbol)
}

func (s *Simulator) simulateV2(swap *domain.DecodedSwap, venue poolsdomain.Venue, symbol string) (*SimulationResult, error) {
	pool, quoteToken0, err := s.pools.V2ByVenue(venue, symbol)
	if err != nil {
		return nil, err
	}
	if !pool.HasLiquidity() {
		return nil, apperror.New(apperror.CodeNoLiquidity, apperror.WithContext(symbol))
	}

	zeroForOne := *swap.TokenIn == pool.Pair.Token0
	_, post, err := pool.V2Swap(swap.AmountIn, zeroForOne)
	if err != nil {
		return nil, err
	}

	sim := domain.SimulatedPool{
		Venue:         venue,
		PairSymbol:    symbol,
		PreSwapPrice:  pool.Price(),
		PostSwapPrice: post.Price(),
		PostReserve0:  post.Reserve0,
		PostReserve1:  post.Reserve1,
	}
	return s.finish(sim, zeroForOne, swap.AmountIn, venue.FeePercent(), quoteToken0), nil
}

func (s *Simulator) simulateV3(swap *domain.DecodedSwap, venue poolsdomain.Venue, symbol string) (*SimulationResult, error) {
	pool, quoteToken0, err := s.pools.V3ByVenue(venue, symbol)
	if err != nil {
		return nil, err
	}
	if !pool.HasLiquidity() {
		return nil, apperror.New(apperror.CodeNoLiquidity, apperror.WithContext(symbol))
	}

	zeroForOne := *swap.TokenIn == pool.Pair.Token0
	res, err := pool.V3Swap(swap.AmountIn, zeroForOne)
	if err != nil {
		return nil, err
	}

	dec0, dec1 := pool.Pair.Token0Decimals, pool.Pair.Token1Decimals
	sim := domain.SimulatedPool{
		Venue:            venue,
		PairSymbol:       symbol,
		V3:               true,
		PreSwapPrice:     poolsdomain.PriceFromSqrtPriceX96(pool.SqrtPriceX96, dec0, dec1),
		PostSwapPrice:    poolsdomain.PriceFromSqrtPriceX96(res.NewSqrtPriceX96, dec0, dec1),
		PostSqrtPriceX96: res.NewSqrtPriceX96,
		PostTick:         res.NewTick,
	}
	return s.finish(sim, zeroForOne, swap.AmountIn, pool.FeePercent(), quoteToken0), nil
}

func (s *Simulator) finish(sim domain.SimulatedPool, zeroForOne bool, amountIn *big.Int, simFeePct float64, quoteToken0 bool) *SimulationResult {
	return &SimulationResult{
		Pool:          sim,
		ZeroForOne:    zeroForOne,
		AmountIn:      amountIn,
		Opportunities: s.opportunities(sim, zeroForOne, amountIn, simFeePct, quoteToken0),
	}
}

// opportunities prices the spread between the projected pool and every
// other tracked pool of the pair at its current price.
func (s *Simulator) opportunities(sim domain.SimulatedPool, zeroForOne bool, amountIn *big.Int, simFeePct float64, quoteToken0 bool) []domain.SimulatedOpportunity {
	views := s.pools.ViewsByPair()[sim.PairSymbol]

	var opps []domain.SimulatedOpportunity
	for _, v := range views {
		if v.Venue == sim.Venue || v.Price <= 0 {
			continue
		}

		// Pick the buy side by quote orientation: with the quote on
		// token0 the token1-per-token0 price is base per quote, so the
		// higher price buys more base; with the quote on token1 the
		// cheaper pool is the buy side.
		var buyVenue, sellVenue poolsdomain.Venue
		var buyFee, sellFee, mid float64
		simBuys := sim.PostSwapPrice > v.Price
		if !quoteToken0 {
			simBuys = sim.PostSwapPrice < v.Price
		}
		if simBuys {
			buyVenue, sellVenue = sim.Venue, v.Venue
			buyFee, sellFee = simFeePct, v.FeePercent
		} else {
			buyVenue, sellVenue = v.Venue, sim.Venue
			buyFee, sellFee = v.FeePercent, simFeePct
		}
		hi, lo := sim.PostSwapPrice, v.Price
		if lo > hi {
			hi, lo = lo, hi
		}
		if lo <= 0 {
			continue
		}
		mid = (hi - lo) / lo

		roundTrip := (buyFee + sellFee) / 100
		executable := mid - roundTrip
		if executable <= 0 {
			continue
		}

		gross := executable * s.cfg.MaxTradeSizeUSD
		slippage := gross * simSlippagePct / 100
		net := gross - s.cfg.GasCostUSD - slippage
		if net <= 0 {
			continue
		}

		opps = append(opps, domain.SimulatedOpportunity{
			TriggerVenue:   sim.Venue,
			PairSymbol:     sim.PairSymbol,
			ZeroForOne:     zeroForOne,
			AmountIn:       amountIn,
			PreSwapPrice:   sim.PreSwapPrice,
			PostSwapPrice:  sim.PostSwapPrice,
			PriceImpactPct: sim.PriceImpactPct(),
			BuyVenue:       buyVenue,
			SellVenue:      sellVenue,
			SpreadPct:      executable * 100,
			EstProfitUSD:   net,
		})
	}

	sort.Slice(opps, func(i, j int) bool {
		return opps[i].EstProfitUSD > opps[j].EstProfitUSD
	})
	return opps
}

// SpotPrice reads the current price of a pair's pool on one venue, for
// scoring a confirmed projection against reality.
func (s *Simulator) SpotPrice(venue poolsdomain.Venue, symbol string) (float64, error) {
	if venue.IsV2() {
		pool, _, err := s.pools.V2ByVenue(venue, symbol)
		if err != nil {
			return 0, err
		}
		return pool.Price(), nil
	}

	pool, _, err := s.pools.V3ByVenue(venue, symbol)
	if err != nil {
		return 0, err
	}
	if pool.SqrtPriceX96 == nil {
		return 0, apperror.New(apperror.CodeNoLiquidity, apperror.WithContext(symbol))
	}
	return poolsdomain.PriceFromSqrtPriceX96(pool.SqrtPriceX96,
		pool.Pair.Token0Decimals, pool.Pair.Token1Decimals), nil
}

// resolveVenue maps a watched router plus the calldata fee tier to the
// venue whose pool the swap will hit.
func resolveVenue(routerName string, feeTier *uint32) (poolsdomain.Venue, error) {
	switch routerName {
	case RouterQuickV2:
		return poolsdomain.QuickSwapV2, nil
	case RouterSushiV2:
		return poolsdomain.SushiSwapV2, nil
	case RouterQuickV3:
		return poolsdomain.QuickSwapV3, nil
	case RouterUniswapV3:
		if feeTier == nil {
			return poolsdomain.VenueUnknown, apperror.New(apperror.CodeSimulationFailed,
				apperror.WithContext("uniswap swap without fee tier"))
		}
		if v := poolsdomain.VenueForFeeTier(*feeTier); v != poolsdomain.VenueUnknown {
			return v, nil
		}
		return poolsdomain.VenueUnknown, apperror.New(apperror.CodeSimulationFailed,
			apperror.WithContext("unknown uniswap fee tier"))
	case RouterSushiV3:
		if feeTier != nil && *feeTier == 500 {
			return poolsdomain.SushiSwapV3Fee500, nil
		}
		return poolsdomain.VenueUnknown, apperror.New(apperror.CodeSimulationFailed,
			apperror.WithContext("untracked sushi fee tier"))
	}
	return poolsdomain.VenueUnknown, apperror.New(apperror.CodeSimulationFailed,
		apperror.WithContext("unknown router "+routerName))
}
