package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/dexarb/internal/apperror"
	"github.com/fd1az/dexarb/internal/circuitbreaker"
	"github.com/fd1az/dexarb/internal/logger"
	"github.com/fd1az/dexarb/internal/ratelimit"
)

// Call3 is one entry in an aggregate3 batch.
type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// CallResult is one decoded aggregate3 result.
type CallResult struct {
	Success    bool
	ReturnData []byte
}

// ClientConfig tunes the shared read client.
type ClientConfig struct {
	RPCURL    string
	Multicall common.Address
	// RequestsPerSecond shares the metered provider's budget across every
	// read this process makes.
	RequestsPerSecond float64
	Burst             int
}

type clientMetrics struct {
	rpcCalls      metric.Int64Counter
	rpcErrors     metric.Int64Counter
	batchSize     metric.Int64Histogram
	partialFailed metric.Int64Counter
}

// Client is the rate-limited, breaker-wrapped read path every pools adapter
// shares. One Multicall3 round trip costs a single RPC credit no matter how
// many pool reads it carries.
type Client struct {
	cfg    ClientConfig
	logger logger.LoggerInterface

	eth  *ethclient.Client
	abis *contractABIs

	limiter *ratelimit.Limiter
	cb      *circuitbreaker.CircuitBreaker[[]byte]

	tracer  trace.Tracer
	metrics *clientMetrics
}

// NewClient dials the RPC endpoint and prepares the shared ABIs.
func NewClient(cfg ClientConfig, log logger.LoggerInterface) (*Client, error) {
	abis, err := parseABIs()
	if err != nil {
		return nil, err
	}

	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("dial pools read client"))
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	c := &Client{
		cfg:     cfg,
		logger:  log,
		eth:     eth,
		abis:    abis,
		limiter: ratelimit.NewWithBurst(cfg.RequestsPerSecond, burst),
		cb:      circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("pools-rpc")),
		tracer:  otel.Tracer(tracerName),
	}
	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return c, nil
}

func (c *Client) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &clientMetrics{}

	c.metrics.rpcCalls, err = meter.Int64Counter(
		"pools_rpc_calls_total",
		metric.WithDescription("RPC calls issued by the pools context"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	c.metrics.rpcErrors, err = meter.Int64Counter(
		"pools_rpc_errors_total",
		metric.WithDescription("RPC call failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	c.metrics.batchSize, err = meter.Int64Histogram(
		"pools_multicall_batch_size",
		metric.WithDescription("Calls per multicall batch"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	c.metrics.partialFailed, err = meter.Int64Counter(
		"pools_multicall_partial_failures_total",
		metric.WithDescription("Individual calls that failed inside a batch"),
		metric.WithUnit("{call}"),
	)
	return err
}

// Call performs a single eth_call against target, metered and wrapped in the
// circuit breaker.
func (c *Client) Call(ctx context.Context, target common.Address, data []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	c.metrics.rpcCalls.Add(ctx, 1)

	out, err := c.cb.Execute(func() ([]byte, error) {
		return c.eth.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	})
	if err != nil {
		c.metrics.rpcErrors.Add(ctx, 1)
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext(target.Hex()))
	}
	return out, nil
}

// Aggregate3 executes a batch through Multicall3 and returns the per-call
// results plus the block the batch was served at. A getBlockNumber call is
// prepended so the block comes from the same state read.
func (c *Client) Aggregate3(ctx context.Context, calls []Call3) ([]CallResult, uint64, error) {
	ctx, span := c.tracer.Start(ctx, "pools.multicall",
		trace.WithAttributes(attribute.Int("calls", len(calls))),
	)
	defer span.End()

	c.metrics.batchSize.Record(ctx, int64(len(calls)))

	blockCall, err := c.abis.multicall.Pack("getBlockNumber")
	if err != nil {
		return nil, 0, fmt.Errorf("pack getBlockNumber: %w", err)
	}

	type packedCall struct {
		Target       common.Address
		AllowFailure bool
		CallData     []byte
	}
	packed := make([]packedCall, 0, len(calls)+1)
	packed = append(packed, packedCall{Target: c.cfg.Multicall, CallData: blockCall})
	for _, call := range calls {
		packed = append(packed, packedCall(call))
	}

	data, err := c.abis.multicall.Pack("aggregate3", packed)
	if err != nil {
		return nil, 0, fmt.Errorf("pack aggregate3: %w", err)
	}

	raw, err := c.Call(ctx, c.cfg.Multicall, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "multicall failed")
		return nil, 0, apperror.Wrap(err, apperror.CodeMulticallFailed, "aggregate3")
	}

	outputs, err := c.abis.multicall.Unpack("aggregate3", raw)
	if err != nil {
		return nil, 0, apperror.New(apperror.CodeMulticallFailed,
			apperror.WithCause(err),
			apperror.WithContext("decode aggregate3 return"))
	}

	decoded, ok := outputs[0].([]struct {
		Success    bool   `json:"success"`
		ReturnData []byte `json:"returnData"`
	})
	if !ok || len(decoded) != len(calls)+1 {
		return nil, 0, apperror.New(apperror.CodeMulticallFailed,
			apperror.WithContext(fmt.Sprintf("unexpected result shape: %d entries", len(decoded))))
	}

	if !decoded[0].Success {
		return nil, 0, apperror.New(apperror.CodeMulticallFailed,
			apperror.WithContext("getBlockNumber failed inside batch"))
	}
	block := new(big.Int).SetBytes(decoded[0].ReturnData).Uint64()

	results := make([]CallResult, len(calls))
	failed := 0
	for i, d := range decoded[1:] {
		results[i] = CallResult{Success: d.Success, ReturnData: d.ReturnData}
		if !d.Success {
			failed++
		}
	}
	if failed > 0 {
		c.metrics.partialFailed.Add(ctx, int64(failed))
		span.SetAttributes(attribute.Int("failed", failed))
	}

	span.SetAttributes(attribute.Int64("block", int64(block)))
	span.SetStatus(codes.Ok, "batched")
	return results, block, nil
}

// ABIs exposes the parsed contract ABIs to sibling adapters.
func (c *Client) ABIs() *contractABIs {
	return c.abis
}

// Raw exposes the underlying ethclient for adapters that need direct access.
func (c *Client) Raw() *ethclient.Client {
	return c.eth
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}
