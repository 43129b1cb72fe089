// Package alchemy adapts the provider's pending-transaction firehose and a
// dedicated confirmed-chain connection to the mempool monitor's ports.
package alchemy

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/dexarb/business/mempool/app"
	"github.com/fd1az/dexarb/internal/apperror"
	"github.com/fd1az/dexarb/internal/logger"
	"github.com/fd1az/dexarb/internal/wsconn"
)

const meterName = "github.com/fd1az/dexarb/business/mempool/infra/alchemy"

// Ensure Subscriber implements the port.
var _ app.PendingSource = (*Subscriber)(nil)

// SubscriberConfig holds the pending-transaction subscription settings.
type SubscriberConfig struct {
	WSURL string
	// Routers is the toAddress filter; the provider only forwards pending
	// transactions aimed at these contracts.
	Routers []common.Address
	// BufferSize sizes the delivery channel; the stream is lossy by design.
	BufferSize int
	// MaxReconnects bounds the underlying socket's retry budget; 0 retries
	// forever.
	MaxReconnects int
}

// DefaultSubscriberConfig returns sensible defaults.
func DefaultSubscriberConfig(wsURL string, routers []common.Address) SubscriberConfig {
	return SubscriberConfig{
		WSURL:         wsURL,
		Routers:       routers,
		BufferSize:    256,
		MaxReconnects: 50,
	}
}

type subscriberMetrics struct {
	received     metric.Int64Counter
	dropped      metric.Int64Counter
	resubscribes metric.Int64Counter
}

// Subscriber streams alchemy_pendingTransactions notifications, filtered
// to the watched routers, over a self-healing websocket. Every reconnect
// re-issues the subscription; transactions broadcast while the socket was
// down are gone, which the confirmation tracker surfaces as a lowered
// seen-in-mempool rate.
type Subscriber struct {
	config SubscriberConfig
	logger logger.LoggerInterface

	conn *wsconn.Client

	pending chan app.PendingTx
	closed  atomic.Bool
	reqID   atomic.Int64

	metrics *subscriberMetrics
}

// NewSubscriber creates the subscriber; the socket is not dialed until
// Pending is called.
func NewSubscriber(cfg SubscriberConfig, log logger.LoggerInterface) (*Subscriber, error) {
	if len(cfg.Routers) == 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("no routers to watch"))
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}

	wsCfg := wsconn.DefaultConfig(cfg.WSURL, "alchemy-mempool")
	wsCfg.MaxReconnects = cfg.MaxReconnects
	conn, err := wsconn.New(wsCfg)
	if err != nil {
		return nil, err
	}

	s := &Subscriber{
		config:  cfg,
		logger:  log,
		conn:    conn,
		pending: make(chan app.PendingTx, cfg.BufferSize),
	}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return s, nil
}

func (s *Subscriber) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &subscriberMetrics{}

	s.metrics.received, err = meter.Int64Counter(
		"mempool_pending_received_total",
		metric.WithDescription("Pending transaction notifications received"),
		metric.WithUnit("{transaction}"),
	)
	if err != nil {
		return err
	}

	s.metrics.dropped, err = meter.Int64Counter(
		"mempool_pending_dropped_total",
		metric.WithDescription("Pending transactions dropped, by reason"),
		metric.WithUnit("{transaction}"),
	)
	if err != nil {
		return err
	}

	s.metrics.resubscribes, err = meter.Int64Counter(
		"mempool_resubscribes_total",
		metric.WithDescription("Pending-transaction subscriptions issued"),
		metric.WithUnit("{subscription}"),
	)
	return err
}

// Pending dials the socket and returns the delivery channel.
func (s *Subscriber) Pending(ctx context.Context) (<-chan app.PendingTx, error) {
	s.conn.OnMessage(s.handleMessage)
	// The subscription is issued from the state handler so reconnects and
	// the initial connect share one path.
	s.conn.OnStateChange(func(state wsconn.State, err error) {
		switch state {
		case wsconn.StateConnected:
			s.subscribe(context.Background())
		case wsconn.StateReconnecting:
			s.logger.Warn(context.Background(), "pending stream reconnecting", "error", err)
		case wsconn.StateDisconnected:
			s.logger.Error(context.Background(), "pending stream gave up", "error", err)
		}
	})

	if err := s.conn.Connect(ctx); err != nil {
		return nil, err
	}
	return s.pending, nil
}

// subscribe issues the filtered pending-transaction subscription.
func (s *Subscriber) subscribe(ctx context.Context) {
	addrs := make([]string, len(s.config.Routers))
	for i, r := range s.config.Routers {
		addrs[i] = r.Hex()
	}

	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      s.reqID.Add(1),
		"method":  "eth_subscribe",
		"params": []any{
			"alchemy_pendingTransactions",
			map[string]any{
				"toAddress":  addrs,
				"hashesOnly": false,
			},
		},
	}
	if err := s.conn.SendJSON(ctx, req); err != nil {
		s.logger.Error(ctx, "pending subscription request failed", "error", err)
		return
	}
	s.metrics.resubscribes.Add(ctx, 1)
	s.logger.Info(ctx, "pending transaction subscription requested",
		"routers", len(addrs))
}

// rpcEnvelope covers both the subscription ack and the notifications.
type rpcEnvelope struct {
	ID     *int64          `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Params struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type pendingTxPayload struct {
	Hash                 common.Hash     `json:"hash"`
	To                   *common.Address `json:"to"`
	Input                hexutil.Bytes   `json:"input"`
	GasPrice             *hexutil.Big    `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
}

func (s *Subscriber) handleMessage(ctx context.Context, msg []byte) {
	var env rpcEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		s.logger.Warn(ctx, "unparseable stream message", "error", err)
		return
	}

	if env.Error != nil {
		s.logger.Error(ctx, "subscription error from provider",
			"code", env.Error.Code, "message", env.Error.Message)
		return
	}
	if env.ID != nil {
		// Subscription ack.
		s.logger.Debug(ctx, "subscription confirmed", "result", string(env.Result))
		return
	}
	if env.Method != "eth_subscription" {
		return
	}

	var tx pendingTxPayload
	if err := json.Unmarshal(env.Params.Result, &tx); err != nil {
		s.logger.Warn(ctx, "unparseable pending transaction", "error", err)
		return
	}
	if tx.To == nil {
		// Contract creation; the filter should never forward one.
		return
	}

	s.metrics.received.Add(ctx, 1)

	gasPrice := bigOrNil(tx.GasPrice)
	if gasPrice == nil {
		gasPrice = bigOrNil(tx.MaxFeePerGas)
	}

	out := app.PendingTx{
		Hash:      tx.Hash,
		To:        *tx.To,
		Input:     tx.Input,
		GasPrice:  gasPrice,
		GasTipCap: bigOrNil(tx.MaxPriorityFeePerGas),
	}

	select {
	case s.pending <- out:
	default:
		// The monitor is behind; a stale pending transaction is worthless.
		s.metrics.dropped.Add(ctx, 1,
			metric.WithAttributes(attribute.String("reason", "buffer_full")))
		s.logger.Warn(ctx, "pending transaction dropped, buffer full",
			"tx", tx.Hash.Hex())
	}
}

// Close tears down the socket and the delivery channel.
func (s *Subscriber) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.conn.Close()
	close(s.pending)
	return err
}

func bigOrNil(v *hexutil.Big) *big.Int {
	if v == nil {
		return nil
	}
	return (*big.Int)(v)
}
