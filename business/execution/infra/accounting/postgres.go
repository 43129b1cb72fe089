package accounting

import (
	"context"
	"database/sql"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/lib/pq"

	"github.com/fd1az/dexarb/business/execution/app"
	"github.com/fd1az/dexarb/business/execution/domain"
	"github.com/fd1az/dexarb/internal/apperror"
)

var _ app.Recorder = (*PostgresRecorder)(nil)

const tradesSchema = `
CREATE TABLE IF NOT EXISTS trades (
	id                  BIGSERIAL PRIMARY KEY,
	ts                  TIMESTAMPTZ NOT NULL,
	source              TEXT NOT NULL,
	pair                TEXT NOT NULL,
	buy_venue           TEXT NOT NULL,
	sell_venue          TEXT NOT NULL,
	trade_size_usd      DOUBLE PRECISION NOT NULL,
	amount_in           NUMERIC(78,0),
	min_profit          NUMERIC(78,0),
	expected_profit_usd DOUBLE PRECISION NOT NULL,
	dry_run             BOOLEAN NOT NULL,
	status              TEXT NOT NULL,
	error               TEXT,
	tx_hash             TEXT,
	nonce               BIGINT,
	gas_fee_wei         NUMERIC(78,0),
	gas_tip_wei         NUMERIC(78,0),
	gas_used            BIGINT,
	gas_cost_usd        DOUBLE PRECISION,
	block_number        BIGINT,
	duration_ms         BIGINT
)`

const insertTrade = `
INSERT INTO trades (
	ts, source, pair, buy_venue, sell_venue,
	trade_size_usd, amount_in, min_profit, expected_profit_usd,
	dry_run, status, error, tx_hash, nonce,
	gas_fee_wei, gas_tip_wei, gas_used, gas_cost_usd,
	block_number, duration_ms
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`

// PostgresRecorder mirrors trade records into a trades table.
type PostgresRecorder struct {
	db *sql.DB
}

// NewPostgres opens the pool and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*PostgresRecorder, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("open postgres"))
	}
	db.SetMaxOpenConns(4)

	if _, err := db.ExecContext(ctx, tradesSchema); err != nil {
		db.Close()
		return nil, apperror.New(apperror.CodeTradeRecordFailed,
			apperror.WithCause(err),
			apperror.WithContext("ensure trades schema"))
	}
	return &PostgresRecorder{db: db}, nil
}

// Record inserts one row.
func (r *PostgresRecorder) Record(ctx context.Context, rec domain.TradeRecord) error {
	txHash := sql.NullString{}
	if rec.TxHash != (common.Hash{}) {
		txHash = sql.NullString{String: rec.TxHash.Hex(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, insertTrade,
		rec.Timestamp,
		rec.Source,
		rec.PairSymbol,
		rec.BuyVenue.String(),
		rec.SellVenue.String(),
		rec.TradeSizeUSD,
		nullBig(rec.AmountIn),
		nullBig(rec.MinProfit),
		rec.ExpectedProfitUSD,
		rec.DryRun,
		string(rec.Status),
		nullString(rec.Error),
		txHash,
		int64(rec.Nonce),
		nullBig(rec.GasFeeWei),
		nullBig(rec.GasTipWei),
		int64(rec.GasUsed),
		rec.GasCostUSD,
		int64(rec.BlockNumber),
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return apperror.New(apperror.CodeTradeRecordFailed,
			apperror.WithCause(err),
			apperror.WithContext(rec.PairSymbol))
	}
	return nil
}

// Close drains the pool.
func (r *PostgresRecorder) Close() error {
	return r.db.Close()
}

func nullBig(v *big.Int) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
