package app

import (
	"context"
	"errors"
	"math"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	detectiondomain "github.com/fd1az/dexarb/business/detection/domain"
	"github.com/fd1az/dexarb/business/execution/domain"
	mempooldomain "github.com/fd1az/dexarb/business/mempool/domain"
	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
	"github.com/fd1az/dexarb/internal/apm"
	"github.com/fd1az/dexarb/internal/apperror"
	"github.com/fd1az/dexarb/internal/logger"
)

const meterName = "github.com/fd1az/dexarb/business/execution/app"

// EngineConfig tunes the execution pipeline.
type EngineConfig struct {
	// DryRun stops the pipeline after the eth_call check; nothing is
	// signed or broadcast.
	DryRun bool
	// Executor is the deployed atomic arb contract.
	Executor common.Address
	// Routers maps each tradable venue to its swap router.
	Routers map[poolsdomain.Venue]common.Address

	GasLimit        uint64
	MaxGasPriceGwei float64
	PriorityFeeGwei float64
	// GasProfitCap bounds the gas bid so the projected gas cost never
	// exceeds this fraction of the expected profit.
	GasProfitCap float64
	// NativeUSD prices the gas token for cost conversion.
	NativeUSD float64

	// MinProfitUSD becomes the contract's minProfit floor; MaxTradeSizeUSD
	// sizes trades built from mempool signals.
	MinProfitUSD    float64
	MaxTradeSizeUSD float64

	ConfirmationTimeout time.Duration
	ReceiptPollInterval time.Duration
	ReconcileInterval   time.Duration
}

// Stats is a point-in-time snapshot of the engine counters.
type Stats struct {
	Attempts       uint64
	DryRuns        uint64
	Submitted      uint64
	Confirmed      uint64
	Reverted       uint64
	Timeouts       uint64
	RejectedGas    uint64
	SubmitFailures uint64

	SkippedInFlight   uint64
	SkippedHalted     uint64
	SkippedCooldown   uint64
	SkippedUnroutable uint64

	HaltedPairs int
	NonceSynced bool
}

type engineMetrics struct {
	attempts metric.Int64Counter
	outcomes metric.Int64Counter
	skips    metric.Int64Counter
	halted   metric.Int64UpDownCounter
	duration metric.Float64Histogram
}

// Engine drives trades end to end: gas quoting, calldata build, dry-run
// check, signing, submission, and the confirmation wait. One trade is in
// flight at a time; a pair whose outcome turns ambiguous is halted until a
// reconciliation pass clears it.
type Engine struct {
	cfg      EngineConfig
	logger   logger.LoggerInterface
	backend  TxBackend
	gas      GasSource
	recorder Recorder
	pairs    PairSource
	cooldown *detectiondomain.RouteCooldown

	halts  *domain.PairHalt
	nonces *domain.NonceCache
	tracer apm.Tracer

	recentMu sync.Mutex
	recent   []domain.TradeRecord

	inFlight atomic.Bool
	metrics  *engineMetrics

	attempts          atomic.Uint64
	dryRuns           atomic.Uint64
	submitted         atomic.Uint64
	confirmedTrades   atomic.Uint64
	revertedTrades    atomic.Uint64
	timeouts          atomic.Uint64
	rejectedGas       atomic.Uint64
	submitFailures    atomic.Uint64
	skippedInFlight   atomic.Uint64
	skippedHalted     atomic.Uint64
	skippedCooldown   atomic.Uint64
	skippedUnroutable atomic.Uint64
}

// NewEngine creates the engine. The recorder is required; cooldown may be
// nil when route suppression is disabled.
func NewEngine(
	cfg EngineConfig,
	log logger.LoggerInterface,
	backend TxBackend,
	gas GasSource,
	recorder Recorder,
	pairs PairSource,
	cooldown *detectiondomain.RouteCooldown,
) (*Engine, error) {
	if backend == nil || gas == nil || recorder == nil || pairs == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("execution engine dependencies"))
	}
	if !cfg.DryRun && cfg.Executor == (common.Address{}) {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("live execution needs an executor address"))
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = 800_000
	}
	if cfg.GasProfitCap <= 0 || cfg.GasProfitCap > 1 {
		cfg.GasProfitCap = 0.5
	}
	if cfg.NativeUSD <= 0 {
		cfg.NativeUSD = 0.40
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = 30 * time.Second
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = time.Second
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = time.Minute
	}

	e := &Engine{
		cfg:      cfg,
		logger:   log,
		backend:  backend,
		gas:      gas,
		recorder: recorder,
		pairs:    pairs,
		cooldown: cooldown,
		halts:    domain.NewPairHalt(),
		nonces:   domain.NewNonceCache(),
		tracer:   apm.NewTracer(meterName),
	}
	if err := e.initMetrics(); err != nil {
		return nil, apperror.New(apperror.CodeInternalError,
			apperror.WithCause(err),
			apperror.WithContext("init execution metrics"))
	}
	return e, nil
}

func (e *Engine) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	e.metrics = &engineMetrics{}

	e.metrics.attempts, err = meter.Int64Counter(
		"execution_attempts_total",
		metric.WithDescription("Trade attempts started"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	e.metrics.outcomes, err = meter.Int64Counter(
		"execution_outcomes_total",
		metric.WithDescription("Attempt outcomes, by status"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	e.metrics.skips, err = meter.Int64Counter(
		"execution_skips_total",
		metric.WithDescription("Requests dropped before an attempt, by reason"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	e.metrics.halted, err = meter.Int64UpDownCounter(
		"execution_halted_pairs",
		metric.WithDescription("Pairs latched pending reconciliation"),
		metric.WithUnit("{pair}"),
	)
	if err != nil {
		return err
	}

	e.metrics.duration, err = meter.Float64Histogram(
		"execution_attempt_seconds",
		metric.WithDescription("Wall time per attempt"),
		metric.WithUnit("s"),
	)
	return err
}

// Run consumes detection candidates and mempool signals until the context
// ends. Either channel may be nil.
func (e *Engine) Run(ctx context.Context, candidates <-chan *detectiondomain.Opportunity, signals <-chan mempooldomain.Signal) error {
	if n, err := e.backend.PendingNonce(ctx); err != nil {
		e.logger.Warn(ctx, "initial nonce sync failed, will retry before first trade", "error", err)
	} else {
		e.nonces.Sync(n)
	}

	reconcile := time.NewTicker(e.cfg.ReconcileInterval)
	defer reconcile.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case opp, ok := <-candidates:
			if !ok {
				candidates = nil
				continue
			}
			if opp == nil {
				continue
			}
			e.dispatch(ctx, e.fromOpportunity(opp))

		case sig, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			req, err := e.fromSignal(sig)
			if err != nil {
				e.logger.Debug(ctx, "unusable mempool signal", "pair", sig.Opportunity.PairSymbol, "error", err)
				continue
			}
			e.dispatch(ctx, req)

		case <-reconcile.C:
			e.reconcile(ctx)
		}
	}
}

// dispatch runs the pre-attempt gates and hands the request to a worker
// goroutine. The gates reject without an accounting record: an attempt only
// exists once the pipeline starts.
func (e *Engine) dispatch(ctx context.Context, req *domain.TradeRequest) {
	if e.halts.IsHalted(req.PairSymbol) {
		e.skippedHalted.Add(1)
		e.metrics.skips.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "halted")))
		e.logger.Debug(ctx, "pair halted, skipping", "pair", req.PairSymbol)
		return
	}

	route := detectiondomain.RouteKey{Pair: req.PairSymbol, Buy: req.BuyVenue, Sell: req.SellVenue}
	if e.cooldown != nil && e.cooldown.IsCooledDown(route, e.pairs.LastBlock()) {
		e.skippedCooldown.Add(1)
		e.metrics.skips.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "cooldown")))
		e.logger.Debug(ctx, "route cooled down, skipping", "route", route.String())
		return
	}

	if _, ok := e.cfg.Routers[req.BuyVenue]; !ok {
		e.skipUnroutable(ctx, req.BuyVenue)
		return
	}
	if _, ok := e.cfg.Routers[req.SellVenue]; !ok {
		e.skipUnroutable(ctx, req.SellVenue)
		return
	}

	if !e.inFlight.CompareAndSwap(false, true) {
		e.skippedInFlight.Add(1)
		e.metrics.skips.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "in_flight")))
		e.logger.Debug(ctx, "trade already in flight, skipping", "pair", req.PairSymbol)
		return
	}

	go func() {
		defer e.inFlight.Store(false)
		e.execute(ctx, req, route)
	}()
}

func (e *Engine) skipUnroutable(ctx context.Context, venue poolsdomain.Venue) {
	e.skippedUnroutable.Add(1)
	e.metrics.skips.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "no_router")))
	e.logger.Warn(ctx, "no router configured for venue", "venue", venue.String())
}

// execute runs one attempt end to end and emits exactly one trade record.
func (e *Engine) execute(ctx context.Context, req *domain.TradeRequest, route detectiondomain.RouteKey) {
	ctx, span := e.tracer.StartSpanFromContext(ctx, "execute_trade")
	defer span.End()
	span.SetAttributes(
		attribute.String("pair", req.PairSymbol),
		attribute.String("route", route.String()),
		attribute.String("source", req.Source),
	)

	start := time.Now()
	e.attempts.Add(1)
	e.metrics.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("source", req.Source)))

	rec := domain.TradeRecord{
		Timestamp:         start,
		Source:            req.Source,
		PairSymbol:        req.PairSymbol,
		BuyVenue:          req.BuyVenue,
		SellVenue:         req.SellVenue,
		TradeSizeUSD:      req.TradeSizeUSD,
		AmountIn:          req.AmountIn,
		MinProfit:         req.MinProfit,
		ExpectedProfitUSD: req.ExpectedProfitUSD,
		DryRun:            e.cfg.DryRun,
	}
	defer func() { e.finish(ctx, &rec, start) }()

	// Quoting: bound the bid by the configured ceiling, the gas/profit cap,
	// and the trigger's own bid when backrunning.
	price, err := e.gas.GasPrice(ctx)
	if err != nil {
		rec.Status = domain.StatusRejectedGas
		rec.Error = "gas price unavailable: " + err.Error()
		return
	}
	feeCap := e.feeCeiling(req)
	if price.Cmp(feeCap) > 0 {
		rec.Status = domain.StatusRejectedGas
		rec.Error = apperror.New(apperror.CodeGasPriceTooHigh,
			apperror.WithContext(price.String()+" wei > "+feeCap.String()+" wei cap")).Error()
		return
	}
	tip := minBig(gweiToWei(e.cfg.PriorityFeeGwei), feeCap)
	if req.MaxTipWei != nil {
		tip = minBig(tip, req.MaxTipWei)
	}
	rec.GasFeeWei = feeCap
	rec.GasTipWei = tip

	// Building.
	data, err := e.backend.PackExecuteArb(
		req.TokenIn, req.TokenOut,
		e.cfg.Routers[req.BuyVenue], e.cfg.Routers[req.SellVenue],
		req.BuyVenue.ExecutionFee(), req.SellVenue.ExecutionFee(),
		req.AmountIn, req.MinProfit,
	)
	if err != nil {
		rec.Status = domain.StatusSubmitFailed
		rec.Error = "pack executeArb: " + err.Error()
		return
	}

	// The contract reverts unless the ending balance beats the start, so a
	// clean eth_call here is the last cheap exit before spending gas.
	if err := e.backend.DryRun(ctx, e.cfg.Executor, data, e.cfg.GasLimit); err != nil {
		rec.Status = domain.StatusDryRunRevert
		rec.Error = err.Error()
		if e.cooldown != nil {
			e.cooldown.RecordFailure(route, e.pairs.LastBlock())
		}
		return
	}

	if e.cfg.DryRun {
		rec.Status = domain.StatusDryRun
		e.logger.Info(ctx, "dry run passed",
			"pair", req.PairSymbol,
			"route", route.String(),
			"expected_profit_usd", req.ExpectedProfitUSD)
		return
	}

	preBalance, err := e.backend.TokenBalance(ctx, req.TokenIn, e.backend.From())
	if err != nil {
		e.logger.Warn(ctx, "pre-trade balance read failed", "error", err)
		preBalance = nil
	}

	if !e.nonces.Synced() {
		n, err := e.backend.PendingNonce(ctx)
		if err != nil {
			rec.Status = domain.StatusSubmitFailed
			rec.Error = apperror.New(apperror.CodeNonceSyncFailed, apperror.WithCause(err)).Error()
			return
		}
		e.nonces.Sync(n)
	}
	nonce, ok := e.nonces.Reserve()
	if !ok {
		rec.Status = domain.StatusSubmitFailed
		rec.Error = string(apperror.CodeNonceSyncFailed)
		return
	}
	rec.Nonce = nonce

	hash, err := e.backend.SignAndSubmit(ctx, TxCall{
		To:       e.cfg.Executor,
		Data:     data,
		Nonce:    nonce,
		GasLimit: e.cfg.GasLimit,
		FeeCap:   feeCap,
		TipCap:   tip,
	})
	if err != nil {
		e.nonces.Invalidate()
		rec.Status = domain.StatusSubmitFailed
		rec.Error = err.Error()
		return
	}
	rec.TxHash = hash
	span.AddEvent("transaction_submitted")
	e.submitted.Add(1)
	e.logger.Info(ctx, "trade submitted",
		"pair", req.PairSymbol,
		"route", route.String(),
		"tx", hash.Hex(),
		"nonce", nonce)

	receipt := e.awaitReceipt(ctx, hash)
	switch {
	case receipt == nil:
		rec.Status = domain.StatusTimeout
		rec.Error = string(apperror.CodeConfirmationTimeout)
		e.halts.Halt(req.PairSymbol, domain.HaltInfo{
			Reason:     "confirmation timeout",
			TxHash:     hash,
			Nonce:      nonce,
			Token:      req.TokenIn,
			PreBalance: preBalance,
			BuyVenue:   req.BuyVenue,
			SellVenue:  req.SellVenue,
		})
		e.metrics.halted.Add(ctx, 1)
		e.logger.Warn(ctx, "confirmation timed out, pair halted",
			"pair", req.PairSymbol, "tx", hash.Hex())

	case receipt.Status == 1:
		rec.Status = domain.StatusConfirmed
		rec.GasUsed = receipt.GasUsed
		rec.GasCostUSD = e.gasCostUSD(receipt.EffectiveGasPrice, receipt.GasUsed)
		if receipt.BlockNumber != nil {
			rec.BlockNumber = receipt.BlockNumber.Uint64()
		}
		if e.cooldown != nil {
			e.cooldown.RecordSuccess(route)
		}
		e.logger.Info(ctx, "trade confirmed",
			"pair", req.PairSymbol,
			"tx", hash.Hex(),
			"gas_used", receipt.GasUsed,
			"gas_cost_usd", rec.GasCostUSD)

	default:
		// Revert is safe by construction: the contract unwound, only gas
		// is lost. The route pays for it with an escalating cooldown.
		rec.Status = domain.StatusReverted
		rec.Error = string(apperror.CodeTradeReverted)
		rec.GasUsed = receipt.GasUsed
		rec.GasCostUSD = e.gasCostUSD(receipt.EffectiveGasPrice, receipt.GasUsed)
		block := e.pairs.LastBlock()
		if receipt.BlockNumber != nil {
			block = receipt.BlockNumber.Uint64()
			rec.BlockNumber = block
		}
		if e.cooldown != nil {
			e.cooldown.RecordFailure(route, block)
		}
		e.logger.Warn(ctx, "trade reverted on-chain",
			"pair", req.PairSymbol,
			"tx", hash.Hex(),
			"gas_cost_usd", rec.GasCostUSD)
	}
}

// finish stamps the record, bumps the outcome counters, and writes the one
// accounting row for this attempt.
func (e *Engine) finish(ctx context.Context, rec *domain.TradeRecord, start time.Time) {
	rec.Duration = time.Since(start)

	span := e.tracer.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("status", string(rec.Status)))
	if rec.Error != "" {
		span.NoticeError(errors.New(rec.Error))
	}

	switch rec.Status {
	case domain.StatusDryRun:
		e.dryRuns.Add(1)
	case domain.StatusRejectedGas:
		e.rejectedGas.Add(1)
	case domain.StatusDryRunRevert, domain.StatusSubmitFailed:
		e.submitFailures.Add(1)
	case domain.StatusConfirmed:
		e.confirmedTrades.Add(1)
	case domain.StatusReverted:
		e.revertedTrades.Add(1)
	case domain.StatusTimeout:
		e.timeouts.Add(1)
	}
	e.metrics.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(rec.Status))))
	e.metrics.duration.Record(ctx, rec.Duration.Seconds())

	e.recentMu.Lock()
	e.recent = append([]domain.TradeRecord{*rec}, e.recent...)
	if len(e.recent) > recentTrades {
		e.recent = e.recent[:recentTrades]
	}
	e.recentMu.Unlock()

	if err := e.recorder.Record(ctx, *rec); err != nil {
		e.logger.Error(ctx, "trade record write failed",
			"error", apperror.New(apperror.CodeTradeRecordFailed, apperror.WithCause(err)),
			"pair", rec.PairSymbol,
			"status", string(rec.Status))
	}
}

// awaitReceipt polls until the receipt lands or the window closes.
func (e *Engine) awaitReceipt(ctx context.Context, hash common.Hash) *types.Receipt {
	deadline := time.NewTimer(e.cfg.ConfirmationTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(e.cfg.ReceiptPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			return nil
		case <-poll.C:
			receipt, err := e.backend.Receipt(ctx, hash)
			if err != nil {
				e.logger.Debug(ctx, "receipt poll failed", "tx", hash.Hex(), "error", err)
				continue
			}
			if receipt != nil {
				return receipt
			}
		}
	}
}

// reconcile revisits halted pairs. A late receipt resolves the trade the
// normal way; a missing receipt with the wallet balance intact means the
// transaction evaporated, so the halt clears and the nonce resyncs.
func (e *Engine) reconcile(ctx context.Context) {
	for pair, info := range e.halts.Halted() {
		route := detectiondomain.RouteKey{Pair: pair, Buy: info.BuyVenue, Sell: info.SellVenue}

		receipt, err := e.backend.Receipt(ctx, info.TxHash)
		if err == nil && receipt != nil {
			e.halts.Clear(pair)
			e.metrics.halted.Add(ctx, -1)
			if receipt.Status == 1 {
				if e.cooldown != nil {
					e.cooldown.RecordSuccess(route)
				}
				e.logger.Info(ctx, "halt resolved, trade confirmed late",
					"pair", pair, "tx", info.TxHash.Hex())
			} else {
				block := e.pairs.LastBlock()
				if receipt.BlockNumber != nil {
					block = receipt.BlockNumber.Uint64()
				}
				if e.cooldown != nil {
					e.cooldown.RecordFailure(route, block)
				}
				e.logger.Warn(ctx, "halt resolved, trade reverted late",
					"pair", pair, "tx", info.TxHash.Hex())
			}
			continue
		}

		if info.PreBalance == nil {
			e.logger.Warn(ctx, "halted pair has no balance baseline, operator must clear",
				"pair", pair, "tx", info.TxHash.Hex())
			continue
		}
		balance, err := e.backend.TokenBalance(ctx, info.Token, e.backend.From())
		if err != nil {
			e.logger.Debug(ctx, "reconcile balance read failed", "pair", pair, "error", err)
			continue
		}
		if balance.Cmp(info.PreBalance) >= 0 {
			e.halts.Clear(pair)
			e.metrics.halted.Add(ctx, -1)
			e.nonces.Invalidate()
			e.logger.Warn(ctx, "halt cleared, balance intact and transaction gone",
				"pair", pair, "tx", info.TxHash.Hex())
		}
	}
}

// ClearHalt releases a pair by operator decision.
func (e *Engine) ClearHalt(ctx context.Context, pair string) bool {
	if !e.halts.IsHalted(pair) {
		return false
	}
	e.halts.Clear(pair)
	e.metrics.halted.Add(ctx, -1)
	e.nonces.Invalidate()
	e.logger.Warn(ctx, "halt cleared by operator", "pair", pair)
	return true
}

// HaltedPairs returns the latched pairs for status display.
func (e *Engine) HaltedPairs() map[string]domain.HaltInfo {
	return e.halts.Halted()
}

// recentTrades bounds the in-memory trade history kept for dashboards.
const recentTrades = 64

// Recent returns the latest trade records, newest first.
func (e *Engine) Recent() []domain.TradeRecord {
	e.recentMu.Lock()
	defer e.recentMu.Unlock()
	out := make([]domain.TradeRecord, len(e.recent))
	copy(out, e.recent)
	return out
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Attempts:          e.attempts.Load(),
		DryRuns:           e.dryRuns.Load(),
		Submitted:         e.submitted.Load(),
		Confirmed:         e.confirmedTrades.Load(),
		Reverted:          e.revertedTrades.Load(),
		Timeouts:          e.timeouts.Load(),
		RejectedGas:       e.rejectedGas.Load(),
		SubmitFailures:    e.submitFailures.Load(),
		SkippedInFlight:   e.skippedInFlight.Load(),
		SkippedHalted:     e.skippedHalted.Load(),
		SkippedCooldown:   e.skippedCooldown.Load(),
		SkippedUnroutable: e.skippedUnroutable.Load(),
		HaltedPairs:       e.halts.Len(),
		NonceSynced:       e.nonces.Synced(),
	}
}

// fromOpportunity converts a verified detection candidate.
func (e *Engine) fromOpportunity(opp *detectiondomain.Opportunity) *domain.TradeRequest {
	return &domain.TradeRequest{
		Source:            domain.SourceDetector,
		PairSymbol:        opp.PairSymbol,
		TokenIn:           opp.QuoteToken(),
		TokenOut:          opp.BaseToken(),
		QuoteDecimals:     opp.QuoteDecimals(),
		BuyVenue:          opp.Buy.Venue,
		SellVenue:         opp.Sell.Venue,
		AmountIn:          opp.TradeSizeRaw(),
		MinProfit:         domain.ScaleUSD(e.cfg.MinProfitUSD, opp.QuoteDecimals()),
		TradeSizeUSD:      opp.TradeSizeUSD,
		ExpectedProfitUSD: opp.NetProfitUSD,
	}
}

// fromSignal converts a mempool backrun signal. The signal names venues and
// the pair only, so the pair registry supplies addresses, and the trigger's
// own gas bids become ceilings: the backrun must land behind the trigger.
func (e *Engine) fromSignal(sig mempooldomain.Signal) (*domain.TradeRequest, error) {
	opp := sig.Opportunity

	for _, po := range e.pairs.PairOrientations() {
		if po.Pair.Symbol != opp.PairSymbol {
			continue
		}
		tokenIn, tokenOut := po.Pair.Token0, po.Pair.Token1
		quoteDec := po.Pair.Token0Decimals
		if !po.QuoteToken0 {
			tokenIn, tokenOut = po.Pair.Token1, po.Pair.Token0
			quoteDec = po.Pair.Token1Decimals
		}
		return &domain.TradeRequest{
			Source:            domain.SourceMempool,
			PairSymbol:        opp.PairSymbol,
			TokenIn:           tokenIn,
			TokenOut:          tokenOut,
			QuoteDecimals:     quoteDec,
			BuyVenue:          opp.BuyVenue,
			SellVenue:         opp.SellVenue,
			AmountIn:          domain.ScaleUSD(e.cfg.MaxTradeSizeUSD, quoteDec),
			MinProfit:         domain.ScaleUSD(e.cfg.MinProfitUSD, quoteDec),
			TradeSizeUSD:      e.cfg.MaxTradeSizeUSD,
			ExpectedProfitUSD: opp.EstProfitUSD,
			MaxFeeWei:         sig.GasPrice,
			MaxTipWei:         sig.PriorityFee,
		}, nil
	}
	return nil, apperror.NotFound(apperror.CodePoolNotFound, opp.PairSymbol)
}

// feeCeiling is the lowest of the configured gas ceiling, the gas/profit
// cap, and the signal's own bid when present.
func (e *Engine) feeCeiling(req *domain.TradeRequest) *big.Int {
	ceiling := gweiToWei(e.cfg.MaxGasPriceGwei)

	affordUSD := req.ExpectedProfitUSD * e.cfg.GasProfitCap
	if affordUSD > 0 {
		perGasWei := affordUSD * 1e18 / (float64(e.cfg.GasLimit) * e.cfg.NativeUSD)
		if !math.IsInf(perGasWei, 0) && !math.IsNaN(perGasWei) && perGasWei > 0 {
			ceiling = minBig(ceiling, big.NewInt(int64(perGasWei)))
		}
	}
	if req.MaxFeeWei != nil {
		ceiling = minBig(ceiling, req.MaxFeeWei)
	}
	return ceiling
}

// gasCostUSD converts a spent gas amount to dollars.
func (e *Engine) gasCostUSD(effectivePrice *big.Int, gasUsed uint64) float64 {
	if effectivePrice == nil {
		return 0
	}
	wei := new(big.Float).SetInt(effectivePrice)
	wei.Mul(wei, new(big.Float).SetUint64(gasUsed))
	native, _ := wei.Float64()
	return native / 1e18 * e.cfg.NativeUSD
}

func gweiToWei(gwei float64) *big.Int {
	if gwei <= 0 {
		return new(big.Int)
	}
	return big.NewInt(int64(gwei * 1e9))
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
