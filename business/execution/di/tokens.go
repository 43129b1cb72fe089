// Package di contains dependency injection tokens for the execution context.
package di

import (
	"github.com/fd1az/dexarb/business/execution/app"
	"github.com/fd1az/dexarb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	// Engine is public so the UI can surface execution stats and halts.
	Engine = di.NewToken[*app.Engine]("execution.Engine")
)

// Private dependency tokens - internal to execution module
var (
	Backend   = di.NewToken[app.TxBackend]("execution:backend")
	Recorder  = di.NewToken[app.Recorder]("execution:recorder")
	GasSource = di.NewToken[app.GasSource]("execution:gasSource")
)

// Helper functions for type-safe access
func GetEngine(c di.ServiceRegistry) *app.Engine {
	return di.GetToken(c, Engine)
}
