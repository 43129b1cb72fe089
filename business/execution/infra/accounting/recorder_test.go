package accounting

import (
	"context"
	"errors"
	"io"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/dexarb/business/execution/domain"
	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
	"github.com/fd1az/dexarb/internal/logger"
)

func testRecord() domain.TradeRecord {
	return domain.TradeRecord{
		Timestamp:         time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
		Source:            domain.SourceDetector,
		PairSymbol:        "WETH/USDC",
		BuyVenue:          poolsdomain.QuickSwapV2,
		SellVenue:         poolsdomain.SushiSwapV3Fee500,
		TradeSizeUSD:      1000,
		AmountIn:          big.NewInt(1_000_000_000),
		MinProfit:         big.NewInt(500_000),
		ExpectedProfitUSD: 5,
		Status:            domain.StatusConfirmed,
		TxHash:            common.HexToHash("0xbeef"),
		Nonce:             7,
		GasUsed:           250_000,
		GasCostUSD:        0.004,
		BlockNumber:       1234,
		Duration:          1500 * time.Millisecond,
	}
}

func TestLogRecorderWritesOneLine(t *testing.T) {
	var buf strings.Builder
	log := logger.New(&buf, logger.LevelInfo, "test", nil)

	r := NewLogRecorder(log)
	if err := r.Record(context.Background(), testRecord()); err != nil {
		t.Fatalf("Record: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"trade record", "WETH/USDC", "confirmed", "1000000000"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
	if strings.Count(out, "trade record") != 1 {
		t.Errorf("want exactly one line, got: %s", out)
	}
}

type failingRecorder struct{ err error }

func (f *failingRecorder) Record(ctx context.Context, rec domain.TradeRecord) error { return f.err }
func (f *failingRecorder) Close() error                                             { return f.err }

type countingRecorder struct{ n int }

func (c *countingRecorder) Record(ctx context.Context, rec domain.TradeRecord) error {
	c.n++
	return nil
}
func (c *countingRecorder) Close() error { return nil }

func TestMultiRecorderTriesEverySink(t *testing.T) {
	failed := &failingRecorder{err: errors.New("db down")}
	counted := &countingRecorder{}

	m := MultiRecorder{failed, counted}
	err := m.Record(context.Background(), testRecord())
	if err == nil || err.Error() != "db down" {
		t.Errorf("err = %v, want the sink failure surfaced", err)
	}
	if counted.n != 1 {
		t.Errorf("second sink calls = %d, want 1 despite the first failing", counted.n)
	}
}

func TestLogRecorderNilAmounts(t *testing.T) {
	r := NewLogRecorder(logger.New(io.Discard, logger.LevelInfo, "test", nil))

	rec := testRecord()
	rec.AmountIn = nil
	rec.MinProfit = nil
	if err := r.Record(context.Background(), rec); err != nil {
		t.Fatalf("Record with nil amounts: %v", err)
	}
}
