// Package pools implements the pool-state bounded context: discovery,
// periodic sync, and the shared state cache.
package pools

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/dexarb/business/pools/app"
	poolsDI "github.com/fd1az/dexarb/business/pools/di"
	"github.com/fd1az/dexarb/business/pools/domain"
	"github.com/fd1az/dexarb/business/pools/infra/ethereum"
	"github.com/fd1az/dexarb/business/pools/infra/pricelog"
	"github.com/fd1az/dexarb/internal/asset"
	"github.com/fd1az/dexarb/internal/config"
	"github.com/fd1az/dexarb/internal/di"
	"github.com/fd1az/dexarb/internal/logger"
	"github.com/fd1az/dexarb/internal/monolith"
)

// Module implements the pools bounded context.
type Module struct{}

// RegisterServices registers all pools services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, poolsDI.ReadClient, func(sr di.ServiceRegistry) *ethereum.Client {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		client, err := ethereum.NewClient(ethereum.ClientConfig{
			RPCURL:            cfg.Ethereum.HTTPURL,
			Multicall:         cfg.Venues.MulticallAddress(),
			RequestsPerSecond: cfg.Ethereum.RequestsPerSecond,
		}, log)
		if err != nil {
			panic("failed to create pools read client: " + err.Error())
		}
		return client
	})

	di.RegisterToken(c, poolsDI.StateCache, func(sr di.ServiceRegistry) *app.StateCache {
		return app.NewStateCache()
	})

	di.RegisterToken(c, poolsDI.V2Syncer, func(sr di.ServiceRegistry) app.V2Syncer {
		log := sr.Get("logger").(logger.LoggerInterface)
		return ethereum.NewV2Syncer(poolsDI.GetReadClient(sr), log)
	})

	di.RegisterToken(c, poolsDI.V3Syncer, func(sr di.ServiceRegistry) app.V3Syncer {
		log := sr.Get("logger").(logger.LoggerInterface)
		return ethereum.NewV3Syncer(poolsDI.GetReadClient(sr), log)
	})

	di.RegisterToken(c, poolsDI.Discoverer, func(sr di.ServiceRegistry) app.PoolDiscoverer {
		log := sr.Get("logger").(logger.LoggerInterface)
		return ethereum.NewDiscoverer(poolsDI.GetReadClient(sr), log)
	})

	di.RegisterToken(c, poolsDI.TokenMetadata, func(sr di.ServiceRegistry) app.TokenMetadata {
		log := sr.Get("logger").(logger.LoggerInterface)
		return ethereum.NewTokenReader(poolsDI.GetReadClient(sr), log)
	})

	di.RegisterToken(c, poolsDI.PriceLogger, func(sr di.ServiceRegistry) app.PriceLogger {
		cfg := sr.Get("config").(*config.Config)
		if cfg.Pools.PriceLogDir == "" {
			return nil
		}
		pl, err := pricelog.New(cfg.Pools.PriceLogDir)
		if err != nil {
			panic("failed to create price logger: " + err.Error())
		}
		return pl
	})

	di.RegisterToken(c, poolsDI.PoolService, func(sr di.ServiceRegistry) *app.PoolService {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		svc, err := app.NewPoolService(
			app.ServiceConfig{
				SyncInterval:   cfg.Pools.SyncInterval,
				SyncBatchPairs: cfg.Pools.SyncBatchPairs,
				MaxStaleBlocks: cfg.Pools.MaxStaleBlocks,
			},
			log,
			poolsDI.GetStateCache(sr),
			di.GetToken(sr, poolsDI.V2Syncer),
			di.GetToken(sr, poolsDI.V3Syncer),
			di.GetToken(sr, poolsDI.Discoverer),
			di.GetToken(sr, poolsDI.TokenMetadata),
			di.GetToken(sr, poolsDI.PriceLogger),
		)
		if err != nil {
			panic("failed to create pool service: " + err.Error())
		}
		return svc
	})

	return nil
}

// Startup discovers pools and launches the sync loop.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()

	pairs, err := ParsePairSpecs(cfg.Pools.Pairs, mono.AssetRegistry(), cfg.Ethereum.ChainID)
	if err != nil {
		return err
	}
	venues := VenueSpecs(&cfg.Venues)

	svc := poolsDI.GetPoolService(mono.Services())
	if err := svc.Discover(ctx, pairs, venues); err != nil {
		return err
	}

	go func() {
		if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error(ctx, "pool sync loop stopped", "error", err)
		}
	}()

	log.Info(ctx, "pools module started", "pairs", len(pairs))
	return nil
}

// ParsePairSpecs parses "tokenA:tokenB:SYMBOL" config entries. TokenB is the
// quote currency. Tokens are hex addresses or symbols registered for the
// configured chain, so "WETH:USDC.E:WETH/USDC" works on Polygon.
func ParsePairSpecs(entries []string, reg *asset.Registry, chainID uint64) ([]app.PairSpec, error) {
	resolve := func(token, entry string) (common.Address, error) {
		if common.IsHexAddress(token) {
			return common.HexToAddress(token), nil
		}
		if reg != nil {
			if a, ok := reg.GetBySymbolAndChain(strings.ToUpper(token), chainID); ok {
				return a.Address(), nil
			}
		}
		return common.Address{}, fmt.Errorf("unknown token %q in pair %q", token, entry)
	}

	specs := make([]app.PairSpec, 0, len(entries))
	for _, e := range entries {
		parts := strings.Split(e, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid pair %q, want tokenA:tokenB:SYMBOL", e)
		}
		tokenA, err := resolve(parts[0], e)
		if err != nil {
			return nil, err
		}
		tokenB, err := resolve(parts[1], e)
		if err != nil {
			return nil, err
		}
		specs = append(specs, app.PairSpec{
			TokenA: tokenA,
			TokenB: tokenB,
			Symbol: parts[2],
		})
	}
	return specs, nil
}

// VenueSpecs maps configured venues to discovery specs; venues without a
// factory address are skipped.
func VenueSpecs(v *config.VenuesConfig) []app.VenueSpec {
	specs := make([]app.VenueSpec, 0, 8)
	add := func(venue domain.Venue, vc *config.VenueConfig) {
		if vc.Factory == "" {
			return
		}
		specs = append(specs, app.VenueSpec{Venue: venue, Factory: vc.FactoryAddress()})
	}

	add(domain.QuickSwapV2, &v.QuickSwapV2)
	add(domain.SushiSwapV2, &v.SushiV2)
	add(domain.QuickSwapV3, &v.QuickSwapV3)
	add(domain.SushiSwapV3Fee500, &v.SushiV3)
	for _, venue := range []domain.Venue{
		domain.UniswapV3Fee100,
		domain.UniswapV3Fee500,
		domain.UniswapV3Fee3000,
		domain.UniswapV3Fee10000,
	} {
		add(venue, &v.UniswapV3)
	}
	return specs
}
