// Package ui provides the Bubble Tea TUI for the arbitrage bot.
package ui

import (
	"time"

	detectionapp "github.com/fd1az/dexarb/business/detection/app"
	executionapp "github.com/fd1az/dexarb/business/execution/app"
	executiondomain "github.com/fd1az/dexarb/business/execution/domain"
	mempoolapp "github.com/fd1az/dexarb/business/mempool/app"
	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
)

// Message types for TUI updates

// BlockMsg is sent when a new block is synced.
type BlockMsg struct {
	Number    uint64
	Timestamp time.Time
}

// GasPriceMsg is sent when gas price is updated.
type GasPriceMsg struct {
	GweiPrice float64
}

// PoolsMsg carries the latest synced pool views, keyed by pair symbol.
type PoolsMsg struct {
	Views map[string][]poolsdomain.PoolView
}

// TradeMsg is sent for each finished execution attempt.
type TradeMsg struct {
	Record executiondomain.TradeRecord
}

// TradesMsg replaces the whole trade history, newest first.
type TradesMsg struct {
	Records []executiondomain.TradeRecord
}

// SessionMsg carries run settings that never change after startup.
type SessionMsg struct {
	DryRun      bool
	MempoolMode string
}

// StatsMsg carries a periodic snapshot of the pipeline counters. Mempool
// stats are zero-valued while monitoring is off.
type StatsMsg struct {
	Detection detectionapp.Stats
	Mempool   mempoolapp.Stats
	Execution executionapp.Stats
	Halted    map[string]executiondomain.HaltInfo
}

// ConnectionStatusMsg is sent when connection status changes.
type ConnectionStatusMsg struct {
	Name      string
	Connected bool
	Latency   time.Duration
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Error error
}

// TickMsg is sent periodically for UI updates.
type TickMsg struct{}

// StartModulesMsg signals that modules should start loading.
type StartModulesMsg struct{}

// LogMsg is sent to display a log message in the UI.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}

// StartupMsg is sent during application startup to show progress.
type StartupMsg struct {
	Step    string // Current step name
	Status  string // "connecting", "connected", "failed"
	Message string // Optional message
}
