// Package mempool implements the pending-transaction bounded context:
// streaming decoded router swaps, projecting their price impact before
// they confirm, and signaling the spreads they are about to open.
package mempool

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/dexarb/business/mempool/app"
	mempoolDI "github.com/fd1az/dexarb/business/mempool/di"
	"github.com/fd1az/dexarb/business/mempool/domain"
	"github.com/fd1az/dexarb/business/mempool/infra/alchemy"
	"github.com/fd1az/dexarb/business/mempool/infra/obslog"
	poolsDI "github.com/fd1az/dexarb/business/pools/di"
	"github.com/fd1az/dexarb/internal/config"
	"github.com/fd1az/dexarb/internal/di"
	"github.com/fd1az/dexarb/internal/logger"
	"github.com/fd1az/dexarb/internal/monolith"
)

// Module implements the mempool bounded context.
type Module struct{}

// RegisterServices registers all mempool services with the DI container.
// Factories stay unresolved while mempool.mode is off.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, mempoolDI.Simulator, func(sr di.ServiceRegistry) *app.Simulator {
		cfg := sr.Get("config").(*config.Config)
		return app.NewSimulator(app.SimulatorConfig{
			MaxTradeSizeUSD: cfg.Detection.MaxTradeSizeUSD,
			GasCostUSD:      cfg.Detection.GasCostUSD,
		}, poolsDI.GetPoolService(sr))
	})

	di.RegisterToken(c, mempoolDI.PendingSource, func(sr di.ServiceRegistry) app.PendingSource {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		routers := make([]common.Address, 0, 5)
		for addr := range watchedRouters(cfg) {
			routers = append(routers, addr)
		}

		subCfg := alchemy.DefaultSubscriberConfig(cfg.Ethereum.WebSocketURL, routers)
		subCfg.MaxReconnects = cfg.Mempool.MaxReconnects
		sub, err := alchemy.NewSubscriber(subCfg, log)
		if err != nil {
			panic("failed to create pending subscriber: " + err.Error())
		}
		return sub
	})

	di.RegisterToken(c, mempoolDI.ChainReader, func(sr di.ServiceRegistry) app.ChainReader {
		cfg := sr.Get("config").(*config.Config)

		url := cfg.Ethereum.HTTPURL
		if url == "" {
			url = cfg.Ethereum.WebSocketURL
		}
		reader, err := alchemy.NewChainReader(context.Background(), url)
		if err != nil {
			panic("failed to create chain reader: " + err.Error())
		}
		return reader
	})

	di.RegisterToken(c, mempoolDI.ObservationLog, func(sr di.ServiceRegistry) app.ObservationLog {
		cfg := sr.Get("config").(*config.Config)

		if cfg.Mempool.ObservationLogDir == "" {
			return nil
		}
		l, err := obslog.New(cfg.Mempool.ObservationLogDir)
		if err != nil {
			panic("failed to create observation log: " + err.Error())
		}
		return l
	})

	di.RegisterToken(c, mempoolDI.Monitor, func(sr di.ServiceRegistry) *app.Monitor {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		mon, err := app.NewMonitor(
			app.MonitorConfig{
				Mode:          domain.ParseMode(cfg.Mempool.Mode),
				MinProfitUSD:  cfg.Mempool.MinProfitUSD,
				MinSpreadPct:  cfg.Mempool.MinSpreadPct,
				CheckInterval: cfg.Mempool.CheckInterval,
				TrackerMaxAge: cfg.Mempool.TrackerMaxAge,
				SignalBuffer:  cfg.Mempool.SignalBuffer,
			},
			log,
			di.GetToken(sr, mempoolDI.PendingSource),
			di.GetToken(sr, mempoolDI.ChainReader),
			di.GetToken(sr, mempoolDI.Simulator),
			di.GetToken(sr, mempoolDI.ObservationLog),
			watchedRouters(cfg),
		)
		if err != nil {
			panic("failed to create mempool monitor: " + err.Error())
		}
		return mon
	})

	return nil
}

// Startup launches the monitor loop unless mempool monitoring is off.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()

	mode := domain.ParseMode(cfg.Mempool.Mode)
	if !mode.Active() {
		log.Info(ctx, "mempool monitoring disabled")
		return nil
	}

	monitor := mempoolDI.GetMonitor(mono.Services())
	go func() {
		if err := monitor.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error(ctx, "mempool monitor stopped", "error", err)
		}
	}()

	log.Info(ctx, "mempool module started", "mode", mode.String())
	return nil
}

// watchedRouters maps the configured router addresses to the names the
// simulator resolves venues by. Venues without a configured router are
// simply not watched.
func watchedRouters(cfg *config.Config) map[common.Address]string {
	routers := make(map[common.Address]string)
	add := func(vc config.VenueConfig, name string) {
		if vc.Router == "" {
			return
		}
		routers[vc.RouterAddress()] = name
	}
	add(cfg.Venues.UniswapV3, app.RouterUniswapV3)
	add(cfg.Venues.SushiV3, app.RouterSushiV3)
	add(cfg.Venues.QuickSwapV3, app.RouterQuickV3)
	add(cfg.Venues.QuickSwapV2, app.RouterQuickV2)
	add(cfg.Venues.SushiV2, app.RouterSushiV2)
	return routers
}
