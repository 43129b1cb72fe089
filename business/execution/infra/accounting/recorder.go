// Package accounting persists trade records: every attempt is logged, and
// mirrored to Postgres when a DSN is configured.
package accounting

import (
	"context"
	"math/big"

	"github.com/fd1az/dexarb/business/execution/app"
	"github.com/fd1az/dexarb/business/execution/domain"
	"github.com/fd1az/dexarb/internal/logger"
)

var _ app.Recorder = (*LogRecorder)(nil)

// LogRecorder writes each trade record as one structured log line. It is
// the always-on sink; losing a record to a crashed database would violate
// the one-record-per-attempt guarantee.
type LogRecorder struct {
	logger logger.LoggerInterface
}

// NewLogRecorder creates the log sink.
func NewLogRecorder(log logger.LoggerInterface) *LogRecorder {
	return &LogRecorder{logger: log}
}

// Record logs the attempt.
func (r *LogRecorder) Record(ctx context.Context, rec domain.TradeRecord) error {
	r.logger.Info(ctx, "trade record",
		"source", rec.Source,
		"pair", rec.PairSymbol,
		"buy", rec.BuyVenue.String(),
		"sell", rec.SellVenue.String(),
		"trade_size_usd", rec.TradeSizeUSD,
		"amount_in", bigString(rec.AmountIn),
		"min_profit", bigString(rec.MinProfit),
		"expected_profit_usd", rec.ExpectedProfitUSD,
		"dry_run", rec.DryRun,
		"status", string(rec.Status),
		"error", rec.Error,
		"tx", rec.TxHash.Hex(),
		"nonce", rec.Nonce,
		"gas_used", rec.GasUsed,
		"gas_cost_usd", rec.GasCostUSD,
		"block", rec.BlockNumber,
		"duration_ms", rec.Duration.Milliseconds(),
	)
	return nil
}

// Close is a no-op; the logger outlives the recorder.
func (r *LogRecorder) Close() error { return nil }

var _ app.Recorder = (MultiRecorder)(nil)

// MultiRecorder fans one record out to every sink. The first error is
// returned after all sinks have been tried; a failing database must not
// starve the log sink.
type MultiRecorder []app.Recorder

// Record writes to every sink.
func (m MultiRecorder) Record(ctx context.Context, rec domain.TradeRecord) error {
	var first error
	for _, r := range m {
		if err := r.Record(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every sink.
func (m MultiRecorder) Close() error {
	var first error
	for _, r := range m {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
