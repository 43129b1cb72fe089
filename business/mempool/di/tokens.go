// Package di contains dependency injection tokens for the mempool context.
package di

import (
	"github.com/fd1az/dexarb/business/mempool/app"
	"github.com/fd1az/dexarb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	// Monitor is public so the execution engine can consume Signals().
	Monitor = di.NewToken[*app.Monitor]("mempool.Monitor")
)

// Private dependency tokens - internal to mempool module
var (
	Simulator      = di.NewToken[*app.Simulator]("mempool:simulator")
	PendingSource  = di.NewToken[app.PendingSource]("mempool:pendingSource")
	ChainReader    = di.NewToken[app.ChainReader]("mempool:chainReader")
	ObservationLog = di.NewToken[app.ObservationLog]("mempool:observationLog")
)

// Helper functions for type-safe access
func GetMonitor(c di.ServiceRegistry) *app.Monitor {
	return di.GetToken(c, Monitor)
}
