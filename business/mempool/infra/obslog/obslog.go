// Package obslog persists the mempool monitor's observations as CSV: one
// file per day for pending swaps, projected opportunities, and prediction
// accuracy, for offline research.
package obslog

import (
	"encoding/csv"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/dexarb/business/mempool/app"
	"github.com/fd1az/dexarb/internal/apperror"
)

// Ensure Logger implements the port.
var _ app.ObservationLog = (*Logger)(nil)

var (
	pendingHeader = []string{
		"timestamp_utc", "tx_hash", "router", "router_name", "function",
		"token_in", "token_out", "amount_in", "amount_out_min", "fee_tier",
		"gas_price_gwei", "max_priority_fee_gwei",
	}
	simulatedHeader = []string{
		"timestamp_utc", "tx_hash", "trigger_dex", "trigger_function",
		"pair_symbol", "zero_for_one", "amount_in", "pre_swap_price",
		"post_swap_price", "price_impact_pct", "arb_buy_dex", "arb_sell_dex",
		"arb_spread_pct", "arb_est_profit_usd",
	}
	accuracyHeader = []string{
		"timestamp_utc", "tx_hash", "pair_symbol", "dex", "predicted_price",
		"actual_price", "error_pct", "lead_time_ms",
	}
)

type sink struct {
	prefix string
	header []string

	date string
	file *os.File
	w    *csv.Writer
}

// Logger appends observation rows to date-stamped CSV files, rolling over
// at midnight UTC.
type Logger struct {
	dir string

	mu        sync.Mutex
	pending   sink
	simulated sink
	accuracy  sink
}

// New creates the logger, creating dir if needed.
func New(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("create observation log dir"))
	}
	return &Logger{
		dir:       dir,
		pending:   sink{prefix: "pending_swaps", header: pendingHeader},
		simulated: sink{prefix: "simulated_opportunities", header: simulatedHeader},
		accuracy:  sink{prefix: "simulation_accuracy", header: accuracyHeader},
	}, nil
}

// LogPending appends one decoded pending swap.
func (l *Logger) LogPending(rec app.PendingRecord) error {
	return l.write(&l.pending, rec.Timestamp, []string{
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.TxHash.Hex(),
		rec.Router.Hex(),
		rec.RouterName,
		rec.Function,
		optAddr(rec.TokenIn),
		optAddr(rec.TokenOut),
		optBig(rec.AmountIn),
		optBig(rec.AmountOutMin),
		optFee(rec.FeeTier),
		gwei(rec.GasPrice),
		gwei(rec.GasTipCap),
	})
}

// LogSimulated appends one projected opportunity.
func (l *Logger) LogSimulated(rec app.SimulatedRecord) error {
	return l.write(&l.simulated, rec.Timestamp, []string{
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.TxHash.Hex(),
		rec.TriggerVenue,
		rec.TriggerFunction,
		rec.PairSymbol,
		strconv.FormatBool(rec.ZeroForOne),
		optBig(rec.AmountIn),
		formatFloat(rec.PreSwapPrice),
		formatFloat(rec.PostSwapPrice),
		formatFloat(rec.PriceImpactPct),
		rec.BuyVenue,
		rec.SellVenue,
		formatFloat(rec.SpreadPct),
		formatFloat(rec.EstProfitUSD),
	})
}

// LogAccuracy appends one scored projection.
func (l *Logger) LogAccuracy(rec app.AccuracyRecord) error {
	return l.write(&l.accuracy, rec.Timestamp, []string{
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.TxHash.Hex(),
		rec.PairSymbol,
		rec.Venue,
		formatFloat(rec.PredictedPrice),
		formatFloat(rec.ActualPrice),
		formatFloat(rec.ErrorPct),
		strconv.FormatInt(rec.LeadTime.Milliseconds(), 10),
	})
}

func (l *Logger) write(s *sink, ts time.Time, row []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotate(s, ts); err != nil {
		return err
	}
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("write %s row: %w", s.prefix, err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", s.prefix, err)
	}
	return nil
}

// rotate opens the sink's file for the row's UTC date, writing the header
// when the file is new.
func (l *Logger) rotate(s *sink, ts time.Time) error {
	date := ts.UTC().Format("20060102")
	if s.file != nil && s.date == date {
		return nil
	}
	if s.file != nil {
		s.w.Flush()
		s.file.Close()
		s.file = nil
	}

	path := filepath.Join(l.dir, fmt.Sprintf("%s_%s.csv", s.prefix, date))
	info, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if statErr != nil || info.Size() == 0 {
		if err := w.Write(s.header); err != nil {
			f.Close()
			return fmt.Errorf("write %s header: %w", s.prefix, err)
		}
	}

	s.date = date
	s.file = f
	s.w = w
	return nil
}

// Close flushes and closes every open file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for _, s := range []*sink{&l.pending, &l.simulated, &l.accuracy} {
		if s.file == nil {
			continue
		}
		s.w.Flush()
		if err := s.w.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.file = nil
	}
	return firstErr
}

func optAddr(a *common.Address) string {
	if a == nil {
		return ""
	}
	return a.Hex()
}

func optBig(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func optFee(tier *uint32) string {
	if tier == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*tier), 10)
}

// gwei renders a wei amount in gwei, empty when unknown.
func gwei(wei *big.Int) string {
	if wei == nil {
		return ""
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		big.NewFloat(1e9),
	).Float64()
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
