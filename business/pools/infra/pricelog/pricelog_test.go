package pricelog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fd1az/dexarb/business/pools/domain"
)

func TestLogger_WritesDatedFilePerPair(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	views := []domain.PoolView{
		{PairSymbol: "WETH/USDC", Venue: domain.QuickSwapV2, Price: 2501.5, FeePercent: 0.3},
		{PairSymbol: "WETH/USDC", Venue: domain.UniswapV3Fee500, Price: 2502.1, FeePercent: 0.05},
	}
	if err := l.Log(12345, views); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := l.Log(12346, views[:1]); err != nil {
		t.Fatalf("Log second block: %v", err)
	}

	day := time.Now().UTC().Format("2006-01-02")
	path := filepath.Join(dir, "WETH-USDC-" + day + ".csv")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("expected dated pair file: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	// Header plus three observation rows.
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if rows[0][0] != "timestamp" || rows[0][2] != "venue" {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[1][1] != "12345" || rows[3][1] != "12346" {
		t.Errorf("block column wrong: %v / %v", rows[1], rows[3])
	}
	if rows[1][2] != domain.QuickSwapV2.String() {
		t.Errorf("venue = %q", rows[1][2])
	}
}

func TestLogger_AppendDoesNotRepeatHeader(t *testing.T) {
	dir := t.TempDir()
	views := []domain.PoolView{
		{PairSymbol: "WMATIC/USDT", Venue: domain.SushiSwapV2, Price: 0.41, FeePercent: 0.3},
	}

	l, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := l.Log(1, views); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen, same day, same file.
	l2, err := New(dir)
	if err != nil {
		t.Fatalf("New again: %v", err)
	}
	if err := l2.Log(2, views); err != nil {
		t.Fatalf("Log after reopen: %v", err)
	}
	if err := l2.Close(); err != nil {
		t.Fatalf("Close again: %v", err)
	}

	day := time.Now().UTC().Format("2006-01-02")
	f, err := os.Open(filepath.Join(dir, "WMATIC-USDT-" + day + ".csv"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header plus two", len(rows))
	}
}
