package app

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/dexarb/business/detection/domain"
	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
	"github.com/fd1az/dexarb/internal/logger"
)

const (
	tracerName = "github.com/fd1az/dexarb/business/detection/app"
	meterName  = "github.com/fd1az/dexarb/business/detection/app"
)

// depthFloor is the phantom-spread defense: a quoted buy output below this
// fraction of the price-implied output means the pool's reported price has
// no depth behind it, and the opportunity is discarded.
const depthFloor = 0.5

// cooldownCleanupEvery is how often, in blocks, expired cooldown entries are
// swept.
const cooldownCleanupEvery = 100

// DetectorConfig holds the profit model parameters.
type DetectorConfig struct {
	MinProfitUSD    float64
	MaxTradeSizeUSD float64
	// SlippagePct haircuts gross profit, in percent (10 = 10%).
	SlippagePct float64
	GasCostUSD  float64
	// QuoteVerification toggles the Multicall depth pre-screen.
	QuoteVerification bool
	// CandidateBuffer sizes the channel feeding execution.
	CandidateBuffer int
	// DepthFailureLimit is how many consecutive depth failures demote a
	// pool from admission; 0 uses the domain default.
	DepthFailureLimit int
}

// Stats is a snapshot of detector counters for status output.
type Stats struct {
	Cycles          uint64
	Found           uint64
	Verified        uint64
	DepthRejected   uint64
	CooldownSkipped uint64
	Published       uint64
	Dropped         uint64
}

type detectorMetrics struct {
	cycles    metric.Int64Counter
	found     metric.Int64Counter
	rejected  metric.Int64Counter
	duration  metric.Float64Histogram
	bestNet   metric.Float64Gauge
	cooldowns metric.Int64Gauge
}

// Detector scans synced pool state for profitable two-leg routes, verifies
// the best candidates against on-chain quoter depth, and feeds the winner of
// each cycle to the execution engine.
type Detector struct {
	cfg    DetectorConfig
	logger logger.LoggerInterface

	pools     PoolSource
	whitelist WhitelistProvider
	cooldown  *domain.RouteCooldown
	failures  *domain.PoolFailures
	verifier  QuoteVerifier

	candidates chan *domain.Opportunity

	cycles          atomic.Uint64
	found           atomic.Uint64
	verified        atomic.Uint64
	depthRejected   atomic.Uint64
	cooldownSkipped atomic.Uint64
	published       atomic.Uint64
	dropped         atomic.Uint64

	tracer  trace.Tracer
	metrics *detectorMetrics
}

// NewDetector creates the detector. verifier may be nil when quote
// verification is disabled.
func NewDetector(
	cfg DetectorConfig,
	log logger.LoggerInterface,
	pools PoolSource,
	whitelist WhitelistProvider,
	cooldown *domain.RouteCooldown,
	verifier QuoteVerifier,
) (*Detector, error) {
	if cfg.CandidateBuffer <= 0 {
		cfg.CandidateBuffer = 4
	}
	d := &Detector{
		cfg:        cfg,
		logger:     log,
		pools:      pools,
		whitelist:  whitelist,
		cooldown:   cooldown,
		failures:   domain.NewPoolFailures(cfg.DepthFailureLimit),
		verifier:   verifier,
		candidates: make(chan *domain.Opportunity, cfg.CandidateBuffer),
		tracer:     otel.Tracer(tracerName),
	}
	if err := d.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return d, nil
}

func (d *Detector) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	d.metrics = &detectorMetrics{}

	d.metrics.cycles, err = meter.Int64Counter(
		"detection_cycles_total",
		metric.WithDescription("Detection cycles run"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return err
	}

	d.metrics.found, err = meter.Int64Counter(
		"detection_opportunities_total",
		metric.WithDescription("Opportunities above the profit floor"),
		metric.WithUnit("{opportunity}"),
	)
	if err != nil {
		return err
	}

	d.metrics.rejected, err = meter.Int64Counter(
		"detection_rejections_total",
		metric.WithDescription("Candidates rejected, by reason"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		return err
	}

	d.metrics.duration, err = meter.Float64Histogram(
		"detection_cycle_duration_seconds",
		metric.WithDescription("Full detection cycle duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	d.metrics.bestNet, err = meter.Float64Gauge(
		"detection_best_net_usd",
		metric.WithDescription("Net profit of the best candidate this cycle"),
		metric.WithUnit("{usd}"),
	)
	if err != nil {
		return err
	}

	d.metrics.cooldowns, err = meter.Int64Gauge(
		"detection_active_cooldowns",
		metric.WithDescription("Routes currently suppressed by cooldown"),
		metric.WithUnit("{route}"),
	)
	return err
}

// Candidates is the bounded stream of verified best-per-cycle opportunities.
func (d *Detector) Candidates() <-chan *domain.Opportunity {
	return d.candidates
}

// Cooldown exposes the route cooldown so the execution engine can record
// trade outcomes.
func (d *Detector) Cooldown() *domain.RouteCooldown {
	return d.cooldown
}

// Stats returns a counter snapshot.
func (d *Detector) Stats() Stats {
	return Stats{
		Cycles:          d.cycles.Load(),
		Found:           d.found.Load(),
		Verified:        d.verified.Load(),
		DepthRejected:   d.depthRejected.Load(),
		CooldownSkipped: d.cooldownSkipped.Load(),
		Published:       d.published.Load(),
		Dropped:         d.dropped.Load(),
	}
}

// Run drives one detection cycle per incoming block number until ctx is
// cancelled.
func (d *Detector) Run(ctx context.Context, blocks <-chan uint64) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case block, ok := <-blocks:
			if !ok {
				return nil
			}
			d.Cycle(ctx, block)
			if block%cooldownCleanupEvery == 0 {
				if removed := d.cooldown.Cleanup(block); removed > 0 {
					d.logger.Debug(ctx, "cooldown cleanup", "removed", removed)
				}
			}
		}
	}
}

// Cycle runs one full scan-verify-publish pass for the given block.
func (d *Detector) Cycle(ctx context.Context, block uint64) {
	ctx, span := d.tracer.Start(ctx, "detection.cycle",
		trace.WithAttributes(attribute.Int64("block", int64(block))),
	)
	defer span.End()

	start := time.Now()
	d.cycles.Add(1)
	d.metrics.cycles.Add(ctx, 1)
	d.metrics.cooldowns.Record(ctx, int64(d.cooldown.ActiveCount(block)))

	opps := d.Scan(ctx, block)
	if len(opps) == 0 {
		d.metrics.duration.Record(ctx, time.Since(start).Seconds())
		return
	}

	d.found.Add(uint64(len(opps)))
	d.metrics.found.Add(ctx, int64(len(opps)))
	d.metrics.bestNet.Record(ctx, opps[0].NetProfitUSD)

	best := d.verifyBest(ctx, opps)
	d.metrics.duration.Record(ctx, time.Since(start).Seconds())
	if best == nil {
		return
	}

	// One trade at a time: only the cycle winner goes downstream. A full
	// channel means execution is still busy with an earlier candidate;
	// this one is stale by definition, drop it.
	select {
	case d.candidates <- best:
		d.published.Add(1)
		d.logger.Info(ctx, "opportunity published",
			"route", best.Route().String(),
			"net_usd", best.NetProfitUSD,
			"spread", best.ExecutableSpread,
			"verified", best.Verified)
	default:
		d.dropped.Add(1)
		d.logger.Warn(ctx, "candidate dropped, execution busy",
			"route", best.Route().String(),
			"net_usd", best.NetProfitUSD)
	}
}

// Scan compares every admitted pool pair per trading pair and returns the
// best route per pair, ranked by net profit descending.
func (d *Detector) Scan(ctx context.Context, block uint64) []*domain.Opportunity {
	wl := d.whitelist.Current()
	grouped := d.pools.ViewsByPair()

	var opps []*domain.Opportunity
	for symbol, views := range grouped {
		admitted := d.admit(ctx, wl, symbol, views)
		if len(admitted) < 2 {
			continue
		}
		if best := d.bestForPair(ctx, wl, block, admitted); best != nil {
			opps = append(opps, best)
		}
	}

	sort.Slice(opps, func(i, j int) bool {
		return opps[i].NetProfitUSD > opps[j].NetProfitUSD
	})
	return opps
}

// admit filters a pair's pools through the whitelist and the fee-tier trust
// policy.
func (d *Detector) admit(ctx context.Context, wl *domain.Whitelist, symbol string, views []poolsdomain.PoolView) []poolsdomain.PoolView {
	admitted := make([]poolsdomain.PoolView, 0, len(views))
	for _, v := range views {
		if v.Price <= 0 {
			continue
		}
		if v.FeeTier == 100 && !domain.IsStablePair(symbol) {
			// The 1bp tier only carries meaningful liquidity on
			// stable/stable pairs.
			continue
		}
		if err := wl.Admit(v); err != nil {
			d.metrics.rejected.Add(ctx, 1,
				metric.WithAttributes(attribute.String("reason", "whitelist")))
			continue
		}
		if d.failures.Demoted(v.Address) {
			d.metrics.rejected.Add(ctx, 1,
				metric.WithAttributes(attribute.String("reason", "demoted")))
			continue
		}
		admitted = append(admitted, v)
	}
	return admitted
}

// bestForPair compares all admitted pools of one pair pairwise and returns
// the most profitable viable route, or nil.
func (d *Detector) bestForPair(ctx context.Context, wl *domain.Whitelist, block uint64, views []poolsdomain.PoolView) *domain.Opportunity {
	var best *domain.Opportunity
	for i := range views {
		for j := range views {
			if i == j {
				continue
			}
			buy, sell := views[i], views[j]
			if buy.Venue == sell.Venue || buy.Address == sell.Address {
				continue
			}

			opp := d.evaluate(wl, block, buy, sell)
			if opp == nil {
				continue
			}

			if d.cooldown.IsCooledDown(opp.Route(), block) {
				d.cooldownSkipped.Add(1)
				d.metrics.rejected.Add(ctx, 1,
					metric.WithAttributes(attribute.String("reason", "cooldown")))
				continue
			}

			if best == nil || opp.NetProfitUSD > best.NetProfitUSD {
				best = opp
			}
		}
	}
	return best
}

// evaluate prices one directed route. Returns nil when the route is not
// viable or nets below the profit floor.
func (d *Detector) evaluate(wl *domain.Whitelist, block uint64, buy, sell poolsdomain.PoolView) *domain.Opportunity {
	buyPrice := domain.NormalizePrice(buy)
	sellPrice := domain.NormalizePrice(sell)
	if buyPrice <= 0 || sellPrice <= buyPrice {
		return nil
	}

	midmarket := (sellPrice - buyPrice) / buyPrice
	roundTripFee := (buy.FeePercent + sell.FeePercent) / 100
	executable := midmarket - roundTripFee
	if executable <= 0 {
		return nil
	}

	tradeSize := d.cfg.MaxTradeSizeUSD
	if limit, ok := wl.MaxTradeSizeUSD(buy.Address); ok && limit < tradeSize {
		tradeSize = limit
	}
	if limit, ok := wl.MaxTradeSizeUSD(sell.Address); ok && limit < tradeSize {
		tradeSize = limit
	}
	if tradeSize <= 0 {
		return nil
	}

	gross := executable * tradeSize
	slippage := gross * d.cfg.SlippagePct / 100
	net := gross - d.cfg.GasCostUSD - slippage
	if net < d.cfg.MinProfitUSD {
		return nil
	}

	pair, quoteToken0, err := d.pools.Pair(buy.Address)
	if err != nil {
		return nil
	}

	return &domain.Opportunity{
		PairSymbol:       buy.PairSymbol,
		Pair:             pair,
		QuoteToken0:      quoteToken0,
		Buy:              buy,
		Sell:             sell,
		BuyPrice:         buyPrice,
		SellPrice:        sellPrice,
		MidmarketSpread:  midmarket,
		ExecutableSpread: executable,
		TradeSizeUSD:     tradeSize,
		GrossProfitUSD:   gross,
		SlippageUSD:      slippage,
		GasCostUSD:       d.cfg.GasCostUSD,
		NetProfitUSD:     net,
		Block:            block,
		DetectedAt:       time.Now().UTC(),
	}
}

// verifyBest runs the Multicall depth pre-screen over the ranked candidates
// and returns the best survivor. With verification disabled (or no verifier
// wired) the top candidate passes through unverified.
func (d *Detector) verifyBest(ctx context.Context, opps []*domain.Opportunity) *domain.Opportunity {
	if !d.cfg.QuoteVerification || d.verifier == nil {
		return opps[0]
	}

	verdicts, err := d.verifier.BatchVerify(ctx, opps)
	if err != nil || len(verdicts) != len(opps) {
		d.logger.Warn(ctx, "quote verification unavailable, passing through", "error", err)
		return opps[0]
	}

	for i, opp := range opps {
		v := verdicts[i]
		if v.Passthrough {
			return opp
		}
		if !v.BothLegsValid {
			d.metrics.rejected.Add(ctx, 1,
				metric.WithAttributes(attribute.String("reason", "quote")))
			d.logger.Debug(ctx, "quote rejected candidate",
				"route", opp.Route().String(), "reason", v.Err)
			continue
		}

		// Phantom-spread defense: the pool reports a price the quoter
		// cannot fill anywhere near. This is a detection-only signal, so
		// it charges the buy pool's failure streak, never the route
		// cooldown; the cooldown tracks execution outcomes only.
		implied := opp.EstimatedBuyOutRaw(depthFloor)
		if implied.Sign() > 0 && v.BuyOut.Cmp(implied) < 0 {
			d.depthRejected.Add(1)
			d.metrics.rejected.Add(ctx, 1,
				metric.WithAttributes(attribute.String("reason", "depth")))
			streak := d.failures.RecordFailure(opp.Buy.Address)
			d.logger.Warn(ctx, "phantom spread, depth far below implied",
				"route", opp.Route().String(),
				"pool", opp.Buy.Address.Hex(),
				"streak", streak,
				"quoted", v.BuyOut.String(),
				"floor", implied.String())
			continue
		}

		opp.Verified = true
		opp.QuotedBuyOut = v.BuyOut
		opp.QuotedSellOut = v.SellOut
		d.failures.RecordSuccess(opp.Buy.Address)
		d.failures.RecordSuccess(opp.Sell.Address)
		d.verified.Add(1)
		return opp
	}
	return nil
}
