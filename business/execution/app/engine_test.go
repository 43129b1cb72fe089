package app

import (
	"context"
	"errors"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	detectiondomain "github.com/fd1az/dexarb/business/detection/domain"
	"github.com/fd1az/dexarb/business/execution/domain"
	mempooldomain "github.com/fd1az/dexarb/business/mempool/domain"
	poolsapp "github.com/fd1az/dexarb/business/pools/app"
	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
	"github.com/fd1az/dexarb/internal/logger"
)

var (
	execWETH = common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619")
	execUSDC = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")

	quickRouter = common.HexToAddress("0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff")
	sushiRouter = common.HexToAddress("0x0aF89E1620b96170e2a9D0b68fEebb767eD044c3")
	uniRouter   = common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")
	executorAdr = common.HexToAddress("0x00000000000000000000000000000000000ArB01")
)

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

type fakeBackend struct {
	mu sync.Mutex

	from     common.Address
	nonce    uint64
	nonceErr error

	dryRunErr error
	submitErr error
	// submitGate, when set, blocks SignAndSubmit until closed.
	submitGate chan struct{}

	submitted []TxCall
	nextHash  common.Hash
	receipts  map[common.Hash]*types.Receipt

	balance    *big.Int
	balanceErr error

	dryRuns int
}

func (f *fakeBackend) From() common.Address { return f.from }

func (f *fakeBackend) PendingNonce(ctx context.Context) (uint64, error) {
	if f.nonceErr != nil {
		return 0, f.nonceErr
	}
	return f.nonce, nil
}

func (f *fakeBackend) PackExecuteArb(token0, token1, routerBuy, routerSell common.Address,
	feeBuy, feeSell uint32, amountIn, minProfit *big.Int) ([]byte, error) {
	return append(token0.Bytes(), token1.Bytes()...), nil
}

func (f *fakeBackend) DryRun(ctx context.Context, to common.Address, data []byte, gasLimit uint64) error {
	f.mu.Lock()
	f.dryRuns++
	f.mu.Unlock()
	return f.dryRunErr
}

func (f *fakeBackend) SignAndSubmit(ctx context.Context, call TxCall) (common.Hash, error) {
	if f.submitGate != nil {
		<-f.submitGate
	}
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, call)
	f.mu.Unlock()
	return f.nextHash, nil
}

func (f *fakeBackend) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipts[hash], nil
}

func (f *fakeBackend) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) submittedCalls() []TxCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]TxCall, len(f.submitted))
	copy(out, f.submitted)
	return out
}

type fakeGas struct {
	price *big.Int
	err   error
}

func (f *fakeGas) GasPrice(ctx context.Context) (*big.Int, error) { return f.price, f.err }

type fakeRecorder struct {
	mu      sync.Mutex
	records []domain.TradeRecord
}

func (f *fakeRecorder) Record(ctx context.Context, rec domain.TradeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeRecorder) Close() error { return nil }

func (f *fakeRecorder) all() []domain.TradeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TradeRecord, len(f.records))
	copy(out, f.records)
	return out
}

type fakePairs struct {
	orients   []poolsapp.PairOrientation
	lastBlock uint64
}

func (f *fakePairs) PairOrientations() []poolsapp.PairOrientation { return f.orients }
func (f *fakePairs) LastBlock() uint64                            { return f.lastBlock }

func wethUSDCPair() poolsdomain.Pair {
	return poolsdomain.Pair{
		Token0:         execWETH,
		Token1:         execUSDC,
		Token0Decimals: 18,
		Token1Decimals: 6,
		Symbol:         "WETH/USDC",
	}
}

func testRouters() map[poolsdomain.Venue]common.Address {
	return map[poolsdomain.Venue]common.Address{
		poolsdomain.QuickSwapV2:       quickRouter,
		poolsdomain.SushiSwapV3Fee500: sushiRouter,
		poolsdomain.UniswapV3Fee500:   uniRouter,
	}
}

type engineFixture struct {
	engine   *Engine
	backend  *fakeBackend
	gas      *fakeGas
	recorder *fakeRecorder
	pairs    *fakePairs
	cooldown *detectiondomain.RouteCooldown
}

func newFixture(t *testing.T, mutate func(cfg *EngineConfig)) *engineFixture {
	t.Helper()

	backend := &fakeBackend{
		from:     common.HexToAddress("0xfeed"),
		nonce:    7,
		nextHash: common.HexToHash("0xbeef"),
		receipts: map[common.Hash]*types.Receipt{},
		balance:  big.NewInt(1_000_000_000),
	}
	gas := &fakeGas{price: big.NewInt(40_000_000_000)} // 40 gwei
	recorder := &fakeRecorder{}
	pairs := &fakePairs{
		orients:   []poolsapp.PairOrientation{{Pair: wethUSDCPair(), QuoteToken0: false}},
		lastBlock: 1000,
	}
	cooldown := detectiondomain.NewRouteCooldown(detectiondomain.DefaultCooldownConfig())

	cfg := EngineConfig{
		DryRun:              false,
		Executor:            executorAdr,
		Routers:             testRouters(),
		GasLimit:            500_000,
		MaxGasPriceGwei:     300,
		PriorityFeeGwei:     2,
		GasProfitCap:        0.5,
		NativeUSD:           0.40,
		MinProfitUSD:        0.5,
		MaxTradeSizeUSD:     1000,
		ConfirmationTimeout: 60 * time.Millisecond,
		ReceiptPollInterval: 5 * time.Millisecond,
		ReconcileInterval:   time.Hour,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := NewEngine(cfg, testLogger(), backend, gas, recorder, pairs, cooldown)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return &engineFixture{engine: engine, backend: backend, gas: gas, recorder: recorder, pairs: pairs, cooldown: cooldown}
}

func testOpportunity() *detectiondomain.Opportunity {
	return &detectiondomain.Opportunity{
		PairSymbol:   "WETH/USDC",
		Pair:         wethUSDCPair(),
		QuoteToken0:  false,
		Buy:          poolsdomain.PoolView{Venue: poolsdomain.QuickSwapV2},
		Sell:         poolsdomain.PoolView{Venue: poolsdomain.SushiSwapV3Fee500},
		BuyPrice:     3350,
		SellPrice:    3370,
		TradeSizeUSD: 1000,
		NetProfitUSD: 5,
		Block:        1000,
	}
}

func (fx *engineFixture) runAttempt(opp *detectiondomain.Opportunity) {
	req := fx.engine.fromOpportunity(opp)
	route := detectiondomain.RouteKey{Pair: req.PairSymbol, Buy: req.BuyVenue, Sell: req.SellVenue}
	fx.engine.execute(context.Background(), req, route)
}

func singleRecord(t *testing.T, recorder *fakeRecorder) domain.TradeRecord {
	t.Helper()
	records := recorder.all()
	if len(records) != 1 {
		t.Fatalf("records = %d, want exactly 1 per attempt", len(records))
	}
	return records[0]
}

func TestEngineDryRunMode(t *testing.T) {
	fx := newFixture(t, func(cfg *EngineConfig) { cfg.DryRun = true })

	fx.runAttempt(testOpportunity())

	rec := singleRecord(t, fx.recorder)
	if rec.Status != domain.StatusDryRun {
		t.Fatalf("status = %s, want dry_run", rec.Status)
	}
	if !rec.DryRun || !rec.Succeeded() {
		t.Errorf("record = %+v", rec)
	}
	if got := fx.backend.submittedCalls(); len(got) != 0 {
		t.Errorf("submitted %d transactions in dry-run mode", len(got))
	}
	if fx.backend.dryRuns != 1 {
		t.Errorf("dryRuns = %d, want the eth_call check to still run", fx.backend.dryRuns)
	}
	if s := fx.engine.Stats(); s.Attempts != 1 || s.DryRuns != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestEngineRejectsExpensiveGas(t *testing.T) {
	fx := newFixture(t, nil)
	fx.gas.price = big.NewInt(400_000_000_000) // 400 gwei > 300 gwei ceiling

	fx.runAttempt(testOpportunity())

	rec := singleRecord(t, fx.recorder)
	if rec.Status != domain.StatusRejectedGas {
		t.Fatalf("status = %s, want rejected_gas", rec.Status)
	}
	if len(fx.backend.submittedCalls()) != 0 {
		t.Error("transaction submitted despite gas rejection")
	}
}

func TestEngineGasProfitCap(t *testing.T) {
	fx := newFixture(t, nil)

	// 0.01 USD expected profit affords 0.005 USD of gas: 25 gwei over a
	// 500k limit at 0.40 USD native, below the 40 gwei market price.
	opp := testOpportunity()
	opp.NetProfitUSD = 0.01
	fx.runAttempt(opp)

	rec := singleRecord(t, fx.recorder)
	if rec.Status != domain.StatusRejectedGas {
		t.Fatalf("status = %s, want rejected_gas from the profit cap", rec.Status)
	}
}

func TestEngineSubmitsAndConfirms(t *testing.T) {
	fx := newFixture(t, nil)
	fx.backend.receipts[fx.backend.nextHash] = &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		GasUsed:           250_000,
		EffectiveGasPrice: big.NewInt(40_000_000_000),
		BlockNumber:       big.NewInt(1234),
	}

	fx.runAttempt(testOpportunity())

	rec := singleRecord(t, fx.recorder)
	if rec.Status != domain.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", rec.Status)
	}
	if rec.TxHash != fx.backend.nextHash || rec.Nonce != 7 || rec.BlockNumber != 1234 {
		t.Errorf("record = %+v", rec)
	}
	// 250k gas at 40 gwei is 0.01 native, 0.004 USD at 0.40.
	if rec.GasCostUSD < 0.0039 || rec.GasCostUSD > 0.0041 {
		t.Errorf("GasCostUSD = %v", rec.GasCostUSD)
	}

	calls := fx.backend.submittedCalls()
	if len(calls) != 1 {
		t.Fatalf("submitted = %d, want 1", len(calls))
	}
	call := calls[0]
	if call.Nonce != 7 || call.To != executorAdr || call.GasLimit != 500_000 {
		t.Errorf("call = %+v", call)
	}
	if call.TipCap.Cmp(big.NewInt(2_000_000_000)) != 0 {
		t.Errorf("TipCap = %s, want 2 gwei", call.TipCap)
	}

	route := testOpportunity().Route()
	if fx.cooldown.IsCooledDown(route, 1234) {
		t.Error("route cooled down after a success")
	}
	if s := fx.engine.Stats(); s.Submitted != 1 || s.Confirmed != 1 || !s.NonceSynced {
		t.Errorf("stats = %+v", s)
	}
	if recent := fx.engine.Recent(); len(recent) != 1 || recent[0].Status != domain.StatusConfirmed {
		t.Errorf("recent = %+v, want the confirmed trade", recent)
	}
}

func TestEngineRevertFeedsCooldown(t *testing.T) {
	fx := newFixture(t, nil)
	fx.backend.receipts[fx.backend.nextHash] = &types.Receipt{
		Status:            types.ReceiptStatusFailed,
		GasUsed:           180_000,
		EffectiveGasPrice: big.NewInt(40_000_000_000),
		BlockNumber:       big.NewInt(1300),
	}

	fx.runAttempt(testOpportunity())

	rec := singleRecord(t, fx.recorder)
	if rec.Status != domain.StatusReverted {
		t.Fatalf("status = %s, want reverted", rec.Status)
	}

	route := testOpportunity().Route()
	if !fx.cooldown.IsCooledDown(route, 1300) {
		t.Error("reverted route not cooled down")
	}
	// Revert is safe by construction: the pair must not be halted.
	if fx.engine.Stats().HaltedPairs != 0 {
		t.Error("pair halted after a plain revert")
	}
}

func TestEngineDryRunRevert(t *testing.T) {
	fx := newFixture(t, nil)
	fx.backend.dryRunErr = errors.New("execution reverted: insufficient output")

	fx.runAttempt(testOpportunity())

	rec := singleRecord(t, fx.recorder)
	if rec.Status != domain.StatusDryRunRevert {
		t.Fatalf("status = %s, want dry_run_revert", rec.Status)
	}
	if len(fx.backend.submittedCalls()) != 0 {
		t.Error("submitted after a dry-run revert")
	}
	route := testOpportunity().Route()
	if !fx.cooldown.IsCooledDown(route, 1000) {
		t.Error("dry-run revert did not cool the route")
	}
}

func TestEngineTimeoutHaltsPair(t *testing.T) {
	fx := newFixture(t, nil)
	// No receipt registered: the wait times out.

	fx.runAttempt(testOpportunity())

	rec := singleRecord(t, fx.recorder)
	if rec.Status != domain.StatusTimeout {
		t.Fatalf("status = %s, want timeout", rec.Status)
	}
	if !fx.engine.halts.IsHalted("WETH/USDC") {
		t.Fatal("pair not halted after timeout")
	}

	// The halted pair takes no further automated submissions.
	req := fx.engine.fromOpportunity(testOpportunity())
	fx.engine.dispatch(context.Background(), req)
	if s := fx.engine.Stats(); s.SkippedHalted != 1 || s.Attempts != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestEngineReconcileLateReceipt(t *testing.T) {
	fx := newFixture(t, nil)
	fx.runAttempt(testOpportunity()) // times out, halts

	fx.backend.mu.Lock()
	fx.backend.receipts[fx.backend.nextHash] = &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		GasUsed:           250_000,
		EffectiveGasPrice: big.NewInt(40_000_000_000),
		BlockNumber:       big.NewInt(1400),
	}
	fx.backend.mu.Unlock()

	fx.engine.reconcile(context.Background())

	if fx.engine.halts.IsHalted("WETH/USDC") {
		t.Fatal("halt not cleared by a late receipt")
	}
	route := testOpportunity().Route()
	if fx.cooldown.IsCooledDown(route, 1400) {
		t.Error("late success left the route cooled down")
	}
}

func TestEngineReconcileBalanceIntact(t *testing.T) {
	fx := newFixture(t, nil)
	fx.backend.balance = big.NewInt(500_000_000)
	fx.runAttempt(testOpportunity()) // times out, halts with this baseline

	// No receipt ever appears, but the balance is untouched: the
	// transaction evaporated.
	fx.engine.reconcile(context.Background())

	if fx.engine.halts.IsHalted("WETH/USDC") {
		t.Fatal("halt not cleared with balance intact")
	}
	if fx.engine.Stats().NonceSynced {
		t.Error("nonce cache should be invalidated after a vanished transaction")
	}
}

func TestEngineSubmitFailureInvalidatesNonce(t *testing.T) {
	fx := newFixture(t, nil)
	fx.backend.submitErr = errors.New("replacement transaction underpriced")

	fx.runAttempt(testOpportunity())

	rec := singleRecord(t, fx.recorder)
	if rec.Status != domain.StatusSubmitFailed {
		t.Fatalf("status = %s, want submit_failed", rec.Status)
	}
	if fx.engine.Stats().NonceSynced {
		t.Error("nonce cache still synced after a failed broadcast")
	}
}

func TestEngineSingleFlight(t *testing.T) {
	fx := newFixture(t, nil)
	gate := make(chan struct{})
	fx.backend.submitGate = gate
	fx.backend.receipts[fx.backend.nextHash] = &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		GasUsed:           100_000,
		EffectiveGasPrice: big.NewInt(40_000_000_000),
		BlockNumber:       big.NewInt(1500),
	}

	ctx := context.Background()
	fx.engine.dispatch(ctx, fx.engine.fromOpportunity(testOpportunity()))
	fx.engine.dispatch(ctx, fx.engine.fromOpportunity(testOpportunity()))

	close(gate)

	deadline := time.After(2 * time.Second)
	for len(fx.recorder.all()) < 1 {
		select {
		case <-deadline:
			t.Fatal("first attempt never finished")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if s := fx.engine.Stats(); s.SkippedInFlight != 1 || s.Attempts != 1 {
		t.Errorf("stats = %+v, want the second dispatch dropped", s)
	}
}

func TestEngineSkipsCooledRoute(t *testing.T) {
	fx := newFixture(t, nil)
	route := testOpportunity().Route()
	fx.cooldown.RecordFailure(route, 1000)

	fx.engine.dispatch(context.Background(), fx.engine.fromOpportunity(testOpportunity()))

	if s := fx.engine.Stats(); s.SkippedCooldown != 1 || s.Attempts != 0 {
		t.Errorf("stats = %+v", s)
	}
	if len(fx.recorder.all()) != 0 {
		t.Error("a skipped request must not produce a record")
	}
}

func TestEngineSkipsUnroutableVenue(t *testing.T) {
	fx := newFixture(t, nil)

	opp := testOpportunity()
	opp.Sell.Venue = poolsdomain.UniswapV3Fee3000 // no router configured
	fx.engine.dispatch(context.Background(), fx.engine.fromOpportunity(opp))

	if s := fx.engine.Stats(); s.SkippedUnroutable != 1 || s.Attempts != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestFromOpportunity(t *testing.T) {
	fx := newFixture(t, nil)

	req := fx.engine.fromOpportunity(testOpportunity())
	if req.Source != domain.SourceDetector {
		t.Errorf("Source = %s", req.Source)
	}
	// Quote is USDC (token1), so the contract starts in USDC.
	if req.TokenIn != execUSDC || req.TokenOut != execWETH {
		t.Errorf("tokens = %s -> %s", req.TokenIn.Hex(), req.TokenOut.Hex())
	}
	if req.AmountIn.String() != "1000000000" { // 1000 USDC
		t.Errorf("AmountIn = %s", req.AmountIn)
	}
	if req.MinProfit.String() != "500000" { // 0.50 USDC floor
		t.Errorf("MinProfit = %s", req.MinProfit)
	}
}

func TestFromSignal(t *testing.T) {
	fx := newFixture(t, nil)

	sig := mempooldomain.Signal{
		Opportunity: mempooldomain.SimulatedOpportunity{
			PairSymbol:   "WETH/USDC",
			BuyVenue:     poolsdomain.QuickSwapV2,
			SellVenue:    poolsdomain.SushiSwapV3Fee500,
			EstProfitUSD: 12.5,
		},
		GasPrice:    big.NewInt(55_000_000_000),
		PriorityFee: big.NewInt(1_500_000_000),
	}

	req, err := fx.engine.fromSignal(sig)
	if err != nil {
		t.Fatalf("fromSignal: %v", err)
	}
	if req.Source != domain.SourceMempool {
		t.Errorf("Source = %s", req.Source)
	}
	if req.TokenIn != execUSDC || req.QuoteDecimals != 6 {
		t.Errorf("quote side = %s dec %d", req.TokenIn.Hex(), req.QuoteDecimals)
	}
	if req.AmountIn.String() != "1000000000" {
		t.Errorf("AmountIn = %s, want the configured max trade size", req.AmountIn)
	}
	if req.MaxFeeWei.Cmp(sig.GasPrice) != 0 || req.MaxTipWei.Cmp(sig.PriorityFee) != 0 {
		t.Error("trigger gas bids not carried as ceilings")
	}

	sig.Opportunity.PairSymbol = "WBTC/USDC"
	if _, err := fx.engine.fromSignal(sig); err == nil {
		t.Error("untracked pair should fail")
	}
}

func TestFeeCeilingUsesTriggerBid(t *testing.T) {
	fx := newFixture(t, nil)

	req := &domain.TradeRequest{
		ExpectedProfitUSD: 100, // affords far more than 300 gwei
		MaxFeeWei:         big.NewInt(20_000_000_000),
	}
	ceiling := fx.engine.feeCeiling(req)
	if ceiling.Cmp(big.NewInt(20_000_000_000)) != 0 {
		t.Errorf("ceiling = %s, want the trigger's 20 gwei bid", ceiling)
	}
}

func TestEngineRunConsumesCandidates(t *testing.T) {
	fx := newFixture(t, func(cfg *EngineConfig) { cfg.DryRun = true })

	candidates := make(chan *detectiondomain.Opportunity, 1)
	candidates <- testOpportunity()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		fx.engine.Run(ctx, candidates, nil)
	}()

	deadline := time.After(2 * time.Second)
	for len(fx.recorder.all()) < 1 {
		select {
		case <-deadline:
			t.Fatal("candidate never recorded")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if rec := fx.recorder.all()[0]; rec.Status != domain.StatusDryRun {
		t.Errorf("status = %s", rec.Status)
	}
}
