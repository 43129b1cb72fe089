// Package di contains dependency injection tokens for the pools context.
package di

import (
	"github.com/fd1az/dexarb/business/pools/app"
	"github.com/fd1az/dexarb/business/pools/infra/ethereum"
	"github.com/fd1az/dexarb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	PoolService = di.NewToken[*app.PoolService]("pools.PoolService")
	StateCache  = di.NewToken[*app.StateCache]("pools.StateCache")
	// ReadClient is the shared rate-limited Multicall3 read path. Other
	// contexts batch through it so the whole process stays inside one RPC
	// budget.
	ReadClient = di.NewToken[*ethereum.Client]("pools.ReadClient")
)

// Private dependency tokens - internal to pools module
var (
	V2Syncer      = di.NewToken[app.V2Syncer]("pools:v2Syncer")
	V3Syncer      = di.NewToken[app.V3Syncer]("pools:v3Syncer")
	Discoverer    = di.NewToken[app.PoolDiscoverer]("pools:discoverer")
	TokenMetadata = di.NewToken[app.TokenMetadata]("pools:tokenMetadata")
	PriceLogger   = di.NewToken[app.PriceLogger]("pools:priceLogger")
)

// Helper functions for type-safe access
func GetPoolService(c di.ServiceRegistry) *app.PoolService {
	return di.GetToken(c, PoolService)
}

func GetStateCache(c di.ServiceRegistry) *app.StateCache {
	return di.GetToken(c, StateCache)
}

func GetReadClient(c di.ServiceRegistry) *ethereum.Client {
	return di.GetToken(c, ReadClient)
}
