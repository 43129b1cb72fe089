// Package quoter pre-screens opportunities for executable depth by batching
// QuoterV1 probes through Multicall3.
//
// QuoterV1 returns its result by reverting; inside aggregate3 with
// allowFailure=true the revert payload lands in returnData, so a single
// eth_call verifies both legs of every candidate. This is a pre-screen only:
// the execution engine re-quotes before it signs anything.
package quoter

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/dexarb/business/detection/app"
	"github.com/fd1az/dexarb/business/detection/domain"
	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
	"github.com/fd1az/dexarb/business/pools/infra/ethereum"
	"github.com/fd1az/dexarb/internal/logger"
)

const (
	tracerName = "github.com/fd1az/dexarb/business/detection/infra/quoter"
	meterName  = "github.com/fd1az/dexarb/business/detection/infra/quoter"
)

// sellEstimateFactor haircuts the estimated buy output for the sell-leg
// probe; the engine quotes the exact amount at execution time.
const sellEstimateFactor = 0.95

// QuoterV1ABI covers quoteExactInputSingle; sqrtPriceLimitX96 is always 0.
const QuoterV1ABI = `[{"inputs":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],"name":"quoteExactInputSingle","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}]`

// Revert selectors that mark a real failure rather than a data-carrying
// QuoterV1 revert.
var (
	errorSelector = []byte{0x08, 0xc3, 0x79, 0xa0} // Error(string)
	panicSelector = []byte{0x4e, 0x48, 0x7b, 0x71} // Panic(uint256)
)

var _ app.QuoteVerifier = (*Quoter)(nil)

type quoterMetrics struct {
	batches      metric.Int64Counter
	legFailures  metric.Int64Counter
	passthroughs metric.Int64Counter
}

// Quoter batches QuoterV1 probes through the shared Multicall3 read client.
type Quoter struct {
	client *ethereum.Client
	addr   common.Address
	logger logger.LoggerInterface

	abi        abi.ABI
	stringArgs abi.Arguments

	tracer  trace.Tracer
	metrics *quoterMetrics
}

// New creates the quoter against the configured QuoterV1 deployment.
func New(client *ethereum.Client, quoterAddr common.Address, log logger.LoggerInterface) (*Quoter, error) {
	parsed, err := abi.JSON(bytes.NewReader([]byte(QuoterV1ABI)))
	if err != nil {
		return nil, fmt.Errorf("parse quoter ABI: %w", err)
	}
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		return nil, fmt.Errorf("build string type: %w", err)
	}

	q := &Quoter{
		client:     client,
		addr:       quoterAddr,
		logger:     log,
		abi:        parsed,
		stringArgs: abi.Arguments{{Type: stringType}},
		tracer:     otel.Tracer(tracerName),
	}
	if err := q.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return q, nil
}

func (q *Quoter) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	q.metrics = &quoterMetrics{}

	q.metrics.batches, err = meter.Int64Counter(
		"quoter_batches_total",
		metric.WithDescription("Multicall quote batches issued"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return err
	}

	q.metrics.legFailures, err = meter.Int64Counter(
		"quoter_leg_failures_total",
		metric.WithDescription("Quote probes that failed"),
		metric.WithUnit("{probe}"),
	)
	if err != nil {
		return err
	}

	q.metrics.passthroughs, err = meter.Int64Counter(
		"quoter_passthroughs_total",
		metric.WithDescription("Opportunities passed through unverified"),
		metric.WithUnit("{opportunity}"),
	)
	return err
}

// quotable reports whether a venue can be probed through QuoterV1: the
// Uniswap fee-tier deployments only. V2, Sushi V3 and Algebra legs pass
// through to the engine's own checks.
func quotable(v poolsdomain.Venue) bool {
	tier := v.FeeTier()
	return tier > 0 && poolsdomain.VenueForFeeTier(tier) == v
}

// BatchVerify probes both legs of every opportunity in one aggregate3 call.
// Results are positional. A transport failure degrades every entry to
// passthrough rather than returning an error; the detector still has its own
// estimates.
func (q *Quoter) BatchVerify(ctx context.Context, opps []*domain.Opportunity) ([]app.Verification, error) {
	if len(opps) == 0 {
		return nil, nil
	}

	ctx, span := q.tracer.Start(ctx, "quoter.batch_verify",
		trace.WithAttributes(attribute.Int("opportunities", len(opps))),
	)
	defer span.End()

	q.metrics.batches.Add(ctx, 1)

	verdicts := make([]app.Verification, len(opps))
	var (
		calls  []ethereum.Call3
		probed []int // opportunity index per call pair
	)

	for i, opp := range opps {
		if !quotable(opp.Buy.Venue) || !quotable(opp.Sell.Venue) {
			verdicts[i] = app.Verification{Passthrough: true}
			q.metrics.passthroughs.Add(ctx, 1)
			continue
		}

		buyCall, err := q.abi.Pack("quoteExactInputSingle",
			opp.QuoteToken(), opp.BaseToken(),
			big.NewInt(int64(opp.Buy.FeeTier)),
			opp.TradeSizeRaw(), big.NewInt(0))
		if err != nil {
			verdicts[i] = app.Verification{Err: "pack buy leg: " + err.Error()}
			continue
		}
		sellCall, err := q.abi.Pack("quoteExactInputSingle",
			opp.BaseToken(), opp.QuoteToken(),
			big.NewInt(int64(opp.Sell.FeeTier)),
			opp.EstimatedBuyOutRaw(sellEstimateFactor), big.NewInt(0))
		if err != nil {
			verdicts[i] = app.Verification{Err: "pack sell leg: " + err.Error()}
			continue
		}

		calls = append(calls,
			ethereum.Call3{Target: q.addr, AllowFailure: true, CallData: buyCall},
			ethereum.Call3{Target: q.addr, AllowFailure: true, CallData: sellCall},
		)
		probed = append(probed, i)
	}

	if len(calls) == 0 {
		return verdicts, nil
	}

	results, _, err := q.client.Aggregate3(ctx, calls)
	if err != nil || len(results) != len(calls) {
		q.logger.Warn(ctx, "quote batch failed, passing through", "error", err)
		for _, i := range probed {
			verdicts[i] = app.Verification{Passthrough: true}
			q.metrics.passthroughs.Add(ctx, 1)
		}
		return verdicts, nil
	}

	for n, i := range probed {
		buyOut, buyErr := q.decodeResult(results[n*2])
		sellOut, sellErr := q.decodeResult(results[n*2+1])

		switch {
		case buyErr != nil:
			q.metrics.legFailures.Add(ctx, 1)
			verdicts[i] = app.Verification{Err: "buy leg: " + buyErr.Error()}
		case sellErr != nil:
			q.metrics.legFailures.Add(ctx, 1)
			verdicts[i] = app.Verification{BuyOut: buyOut, Err: "sell leg: " + sellErr.Error()}
		default:
			verdicts[i] = app.Verification{
				BuyOut:        buyOut,
				SellOut:       sellOut,
				BothLegsValid: true,
			}
		}
	}
	return verdicts, nil
}

// decodeResult interprets one QuoterV1 sub-call result. The normal path is
// success=false with the quote in the revert payload; success=true is
// unexpected but decoded anyway.
func (q *Quoter) decodeResult(r ethereum.CallResult) (*big.Int, error) {
	data := r.ReturnData

	if r.Success && len(data) >= 32 {
		return new(big.Int).SetBytes(data[:32]), nil
	}

	if len(data) < 32 {
		return nil, fmt.Errorf("insufficient return data (%d bytes), pool likely has no liquidity", len(data))
	}

	if bytes.Equal(data[:4], errorSelector) {
		msg := "unknown error"
		if vals, err := q.stringArgs.Unpack(data[4:]); err == nil && len(vals) == 1 {
			if s, ok := vals[0].(string); ok {
				msg = s
			}
		}
		return nil, fmt.Errorf("quoter reverted: %s", msg)
	}

	if bytes.Equal(data[:4], panicSelector) {
		return nil, fmt.Errorf("quoter panicked, likely arithmetic overflow")
	}

	out := new(big.Int).SetBytes(data[:32])
	if out.Sign() == 0 {
		return nil, fmt.Errorf("quoter returned zero, no executable depth")
	}
	return out, nil
}
