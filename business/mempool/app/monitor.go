package app

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/dexarb/business/mempool/domain"
	"github.com/fd1az/dexarb/internal/apperror"
	"github.com/fd1az/dexarb/internal/logger"
)

const meterName = "github.com/fd1az/dexarb/business/mempool/app"

// statsEveryTicks is how many check-interval ticks pass between summary
// log lines.
const statsEveryTicks = 100

// maxBlockCatchup bounds how many blocks one tick will cross-reference
// after a stall; anything older has aged out of the trackers anyway.
const maxBlockCatchup = 30

// MonitorConfig holds the monitor's thresholds and cadences.
type MonitorConfig struct {
	Mode domain.Mode
	// MinProfitUSD and MinSpreadPct gate execution signals, not logging.
	MinProfitUSD float64
	MinSpreadPct float64
	// CheckInterval paces the confirmed-block cross-reference loop.
	CheckInterval time.Duration
	// TrackerMaxAge evicts pending entries that never confirmed.
	TrackerMaxAge time.Duration
	SignalBuffer  int
}

// Stats is a snapshot of monitor counters for status output.
type Stats struct {
	Decoded        uint64
	Undecoded      uint64
	Simulated      uint64
	SimFailed      uint64
	Confirmed      uint64
	Seen           uint64
	ConfirmRatePct float64
	MedianLead     time.Duration
	Tracking       int
	BlocksChecked  uint64
	Opportunities  uint64
	Validated      uint64
	MedianErrPct   float64
	SignalsSent    uint64
	SignalsDropped uint64
}

type monitorMetrics struct {
	pending     metric.Int64Counter
	simulations metric.Int64Counter
	confirmed   metric.Int64Counter
	signals     metric.Int64Counter
	leadTime    metric.Float64Histogram
	tracking    metric.Int64Gauge
}

// Monitor watches the pending-transaction stream for swaps aimed at the
// monitored routers, projects their price impact before they confirm, and
// emits execution signals for the spreads they are about to open. A
// confirmed-block loop scores every projection against the chain.
type Monitor struct {
	cfg    MonitorConfig
	logger logger.LoggerInterface

	source  PendingSource
	chain   ChainReader
	sim     *Simulator
	obs     ObservationLog
	routers map[common.Address]string

	tracker    *domain.ConfirmationTracker
	simTracker *domain.SimulationTracker

	signals chan domain.Signal

	decoded        atomic.Uint64
	undecoded      atomic.Uint64
	simulated      atomic.Uint64
	simFailed      atomic.Uint64
	blocksChecked  atomic.Uint64
	signalsSent    atomic.Uint64
	signalsDropped atomic.Uint64

	lastBlock uint64
	ticks     uint64

	metrics *monitorMetrics
}

// NewMonitor creates the monitor. obs may be nil when observation logging
// is disabled.
func NewMonitor(
	cfg MonitorConfig,
	log logger.LoggerInterface,
	source PendingSource,
	chain ChainReader,
	sim *Simulator,
	obs ObservationLog,
	routers map[common.Address]string,
) (*Monitor, error) {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 6 * time.Second
	}
	if cfg.TrackerMaxAge <= 0 {
		cfg.TrackerMaxAge = 2 * time.Minute
	}
	if cfg.SignalBuffer <= 0 {
		cfg.SignalBuffer = 8
	}
	m := &Monitor{
		cfg:        cfg,
		logger:     log,
		source:     source,
		chain:      chain,
		sim:        sim,
		obs:        obs,
		routers:    routers,
		tracker:    domain.NewConfirmationTracker(),
		simTracker: domain.NewSimulationTracker(),
		signals:    make(chan domain.Signal, cfg.SignalBuffer),
	}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return m, nil
}

func (m *Monitor) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	m.metrics = &monitorMetrics{}

	m.metrics.pending, err = meter.Int64Counter(
		"mempool_pending_total",
		metric.WithDescription("Pending router transactions seen, by decode outcome"),
		metric.WithUnit("{transaction}"),
	)
	if err != nil {
		return err
	}

	m.metrics.simulations, err = meter.Int64Counter(
		"mempool_simulations_total",
		metric.WithDescription("Post-swap simulations run, by outcome"),
		metric.WithUnit("{simulation}"),
	)
	if err != nil {
		return err
	}

	m.metrics.confirmed, err = meter.Int64Counter(
		"mempool_confirmations_total",
		metric.WithDescription("Tracked pending swaps later seen in a block"),
		metric.WithUnit("{transaction}"),
	)
	if err != nil {
		return err
	}

	m.metrics.signals, err = meter.Int64Counter(
		"mempool_signals_total",
		metric.WithDescription("Execution signals, by outcome"),
		metric.WithUnit("{signal}"),
	)
	if err != nil {
		return err
	}

	m.metrics.leadTime, err = meter.Float64Histogram(
		"mempool_lead_time_seconds",
		metric.WithDescription("Delay between mempool sighting and block inclusion"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	m.metrics.tracking, err = meter.Int64Gauge(
		"mempool_tracking_pending",
		metric.WithDescription("Pending transactions currently tracked"),
		metric.WithUnit("{transaction}"),
	)
	return err
}

// Signals is the bounded stream of mempool-triggered execution signals.
func (m *Monitor) Signals() <-chan domain.Signal {
	return m.signals
}

// Stats returns a counter snapshot.
func (m *Monitor) Stats() Stats {
	return Stats{
		Decoded:        m.decoded.Load(),
		Undecoded:      m.undecoded.Load(),
		Simulated:      m.simulated.Load(),
		SimFailed:      m.simFailed.Load(),
		Confirmed:      m.tracker.TotalConfirmed(),
		Seen:           m.tracker.TotalSeen(),
		ConfirmRatePct: m.tracker.ConfirmationRate(),
		MedianLead:     m.tracker.MedianLeadTime(),
		Tracking:       m.tracker.TrackingCount(),
		BlocksChecked:  m.blocksChecked.Load(),
		Opportunities:  m.simTracker.TotalOpportunities(),
		Validated:      m.simTracker.TotalValidated(),
		MedianErrPct:   m.simTracker.MedianErrorPct(),
		SignalsSent:    m.signalsSent.Load(),
		SignalsDropped: m.signalsDropped.Load(),
	}
}

// Run consumes the pending stream and paces the block cross-reference loop
// until ctx is cancelled or the stream closes for good.
func (m *Monitor) Run(ctx context.Context) error {
	pending, err := m.source.Pending(ctx)
	if err != nil {
		return err
	}

	m.logger.Info(ctx, "mempool monitor started",
		"mode", m.cfg.Mode.String(),
		"routers", len(m.routers),
		"pairs", m.sim.PairCount(),
		"check_interval", m.cfg.CheckInterval.String())

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tx, ok := <-pending:
			if !ok {
				return apperror.New(apperror.CodeWebSocketClosed,
					apperror.WithContext("pending stream closed"))
			}
			m.handlePending(ctx, tx)
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) handlePending(ctx context.Context, tx PendingTx) {
	routerName, ok := m.routers[tx.To]
	if !ok {
		// The subscription filters by router address; anything else is a
		// provider glitch.
		return
	}

	swap, err := domain.Decode(tx.Input)
	if err != nil {
		m.undecoded.Add(1)
		m.metrics.pending.Add(ctx, 1,
			metric.WithAttributes(attribute.String("outcome", "undecoded")))
		m.logger.Debug(ctx, "undecoded router calldata",
			"router", routerName,
			"selector", domain.SelectorHex(tx.Input),
			"tx", tx.Hash.Hex())
		return
	}

	m.decoded.Add(1)
	m.metrics.pending.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", "decoded")))

	now := time.Now().UTC()
	if m.obs != nil {
		if err := m.obs.LogPending(PendingRecord{
			Timestamp:    now,
			TxHash:       tx.Hash,
			Router:       tx.To,
			RouterName:   routerName,
			Function:     swap.FunctionName,
			TokenIn:      swap.TokenIn,
			TokenOut:     swap.TokenOut,
			AmountIn:     swap.AmountIn,
			AmountOutMin: swap.AmountOutMin,
			FeeTier:      swap.FeeTier,
			GasPrice:     tx.GasPrice,
			GasTipCap:    tx.GasTipCap,
		}); err != nil {
			m.logger.Warn(ctx, "pending log write failed", "error", err)
		}
	}

	m.tracker.Track(tx.Hash, routerName)
	m.metrics.tracking.Record(ctx, int64(m.tracker.TrackingCount()))

	result, err := m.sim.Simulate(swap, routerName)
	if err != nil {
		m.simFailed.Add(1)
		m.metrics.simulations.Add(ctx, 1,
			metric.WithAttributes(attribute.String("outcome", "skipped")))
		m.logger.Debug(ctx, "simulation skipped",
			"function", swap.FunctionName, "error", err)
		return
	}

	m.simulated.Add(1)
	m.metrics.simulations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", "projected")))

	var best *domain.SimulatedOpportunity
	for i := range result.Opportunities {
		opp := &result.Opportunities[i]
		opp.TxHash = tx.Hash
		opp.TriggerFunction = swap.FunctionName
		opp.DetectedAt = now

		if m.obs != nil {
			if err := m.obs.LogSimulated(SimulatedRecord{
				Timestamp:       now,
				TxHash:          tx.Hash,
				TriggerVenue:    opp.TriggerVenue.String(),
				TriggerFunction: opp.TriggerFunction,
				PairSymbol:      opp.PairSymbol,
				ZeroForOne:      opp.ZeroForOne,
				AmountIn:        opp.AmountIn,
				PreSwapPrice:    opp.PreSwapPrice,
				PostSwapPrice:   opp.PostSwapPrice,
				PriceImpactPct:  opp.PriceImpactPct,
				BuyVenue:        opp.BuyVenue.String(),
				SellVenue:       opp.SellVenue.String(),
				SpreadPct:       opp.SpreadPct,
				EstProfitUSD:    opp.EstProfitUSD,
			}); err != nil {
				m.logger.Warn(ctx, "simulation log write failed", "error", err)
			}
		}
		if best == nil {
			best = opp
		}
	}

	if best != nil {
		m.logger.Info(ctx, "projected opportunity",
			"pair", best.PairSymbol,
			"trigger", best.TriggerFunction,
			"buy", best.BuyVenue.String(),
			"sell", best.SellVenue.String(),
			"spread_pct", best.SpreadPct,
			"est_usd", best.EstProfitUSD,
			"tx", tx.Hash.Hex())
	}

	m.simTracker.Track(tx.Hash, result.Pool, cloneOpportunity(best))

	if m.cfg.Mode == domain.ModeExecute && best != nil &&
		best.EstProfitUSD >= m.cfg.MinProfitUSD &&
		best.SpreadPct >= m.cfg.MinSpreadPct {
		m.publish(ctx, domain.Signal{
			Opportunity: *best,
			GasPrice:    tx.GasPrice,
			PriorityFee: tx.GasTipCap,
			SeenAt:      now,
		})
	}
}

// publish hands a signal to execution without blocking the stream. A full
// channel means execution has not drained earlier signals; this one would
// be stale before it ran.
func (m *Monitor) publish(ctx context.Context, sig domain.Signal) {
	select {
	case m.signals <- sig:
		m.signalsSent.Add(1)
		m.metrics.signals.Add(ctx, 1,
			metric.WithAttributes(attribute.String("outcome", "sent")))
	default:
		m.signalsDropped.Add(1)
		m.metrics.signals.Add(ctx, 1,
			metric.WithAttributes(attribute.String("outcome", "dropped")))
		m.logger.Warn(ctx, "signal dropped, execution busy",
			"pair", sig.Opportunity.PairSymbol,
			"est_usd", sig.Opportunity.EstProfitUSD)
	}
}

func (m *Monitor) tick(ctx context.Context) {
	m.ticks++

	m.checkBlocks(ctx)

	if removed := m.tracker.Cleanup(m.cfg.TrackerMaxAge); removed > 0 {
		m.logger.Debug(ctx, "evicted stale pending entries", "removed", removed)
	}
	m.simTracker.Cleanup(m.cfg.TrackerMaxAge)

	if m.ticks%statsEveryTicks == 0 {
		st := m.Stats()
		m.logger.Info(ctx, "mempool stats",
			"decoded", st.Decoded,
			"undecoded", st.Undecoded,
			"confirmed", st.Confirmed,
			"seen", st.Seen,
			"confirm_rate_pct", st.ConfirmRatePct,
			"median_lead", st.MedianLead.String(),
			"tracking", st.Tracking,
			"blocks_checked", st.BlocksChecked,
			"sim_opportunities", st.Opportunities,
			"sim_validated", st.Validated,
			"sim_median_err_pct", st.MedianErrPct)
	}
}

// checkBlocks cross-references newly confirmed blocks against the tracked
// pending set and scores any confirmed projections.
func (m *Monitor) checkBlocks(ctx context.Context) {
	current, err := m.chain.BlockNumber(ctx)
	if err != nil {
		m.logger.Warn(ctx, "block number read failed", "error", err)
		return
	}
	if m.lastBlock == 0 || current < m.lastBlock {
		m.lastBlock = current
		return
	}
	if current == m.lastBlock {
		return
	}

	from := m.lastBlock + 1
	if current-m.lastBlock > maxBlockCatchup {
		from = current - maxBlockCatchup + 1
	}

	for n := from; n <= current; n++ {
		hashes, err := m.chain.BlockTxHashes(ctx, n)
		if err != nil {
			m.logger.Warn(ctx, "block fetch failed", "block", n, "error", err)
			return
		}
		m.blocksChecked.Add(1)

		for _, conf := range m.tracker.CheckBlock(hashes) {
			m.metrics.confirmed.Add(ctx, 1)
			m.metrics.leadTime.Record(ctx, conf.LeadTime.Seconds())
			m.logger.Info(ctx, "tracked swap confirmed",
				"tx", conf.Hash.Hex(),
				"router", conf.Router,
				"block", n,
				"lead", conf.LeadTime.String())

			m.scoreProjection(ctx, conf)
		}
	}
	m.lastBlock = current
}

// scoreProjection compares a confirmed transaction's predicted post-swap
// price against the pool's refreshed state.
func (m *Monitor) scoreProjection(ctx context.Context, conf domain.Confirmation) {
	sim, opp, ok := m.simTracker.CheckConfirmation(conf.Hash)
	if !ok {
		return
	}

	actual, err := m.sim.SpotPrice(sim.Venue, sim.PairSymbol)
	if err != nil || actual <= 0 {
		m.logger.Debug(ctx, "projection unscorable",
			"pair", sim.PairSymbol, "error", err)
		return
	}

	errorPct := math.Abs(sim.PostSwapPrice-actual) / actual * 100
	m.simTracker.RecordAccuracy(errorPct)

	m.logger.Info(ctx, "projection scored",
		"pair", sim.PairSymbol,
		"venue", sim.Venue.String(),
		"predicted", sim.PostSwapPrice,
		"actual", actual,
		"error_pct", errorPct,
		"had_opportunity", opp != nil)

	if m.obs != nil {
		if err := m.obs.LogAccuracy(AccuracyRecord{
			Timestamp:      time.Now().UTC(),
			TxHash:         conf.Hash,
			PairSymbol:     sim.PairSymbol,
			Venue:          sim.Venue.String(),
			PredictedPrice: sim.PostSwapPrice,
			ActualPrice:    actual,
			ErrorPct:       errorPct,
			LeadTime:       conf.LeadTime,
		}); err != nil {
			m.logger.Warn(ctx, "accuracy log write failed", "error", err)
		}
	}
}

// cloneOpportunity copies the tracked best so later mutation of the result
// slice cannot race the tracker.
func cloneOpportunity(opp *domain.SimulatedOpportunity) *domain.SimulatedOpportunity {
	if opp == nil {
		return nil
	}
	c := *opp
	return &c
}
