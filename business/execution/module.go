// Package execution implements the trade execution bounded context: atomic
// arb submission against the deployed executor contract, confirmation
// tracking, halt-and-reconcile, and trade accounting.
package execution

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	blockchainDI "github.com/fd1az/dexarb/business/blockchain/di"
	detectionDI "github.com/fd1az/dexarb/business/detection/di"
	"github.com/fd1az/dexarb/business/execution/app"
	executionDI "github.com/fd1az/dexarb/business/execution/di"
	"github.com/fd1az/dexarb/business/execution/infra/accounting"
	"github.com/fd1az/dexarb/business/execution/infra/executor"
	mempoolDI "github.com/fd1az/dexarb/business/mempool/di"
	mempooldomain "github.com/fd1az/dexarb/business/mempool/domain"
	poolsDI "github.com/fd1az/dexarb/business/pools/di"
	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
	"github.com/fd1az/dexarb/internal/config"
	"github.com/fd1az/dexarb/internal/di"
	"github.com/fd1az/dexarb/internal/logger"
	"github.com/fd1az/dexarb/internal/monolith"
)

// Module implements the execution bounded context.
type Module struct{}

// RegisterServices registers all execution services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, executionDI.Backend, func(sr di.ServiceRegistry) app.TxBackend {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		url := cfg.Ethereum.HTTPURL
		if url == "" {
			url = cfg.Ethereum.WebSocketURL
		}
		backend, err := executor.New(context.Background(), executor.BackendConfig{
			RPCURL:        url,
			PrivateRPCURL: cfg.Execution.PrivateRPCURL,
			PrivateKey:    cfg.Execution.PrivateKey,
			ChainID:       int64(cfg.Ethereum.ChainID),
		}, log)
		if err != nil {
			panic("failed to create execution backend: " + err.Error())
		}
		return backend
	})

	di.RegisterToken(c, executionDI.Recorder, func(sr di.ServiceRegistry) app.Recorder {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		sinks := accounting.MultiRecorder{accounting.NewLogRecorder(log)}
		if cfg.Accounting.PostgresDSN != "" {
			pg, err := accounting.NewPostgres(context.Background(), cfg.Accounting.PostgresDSN)
			if err != nil {
				panic("failed to create postgres recorder: " + err.Error())
			}
			sinks = append(sinks, pg)
		}
		return sinks
	})

	di.RegisterToken(c, executionDI.GasSource, func(sr di.ServiceRegistry) app.GasSource {
		blockchain := blockchainDI.GetBlockchainService(sr)
		return app.GasSourceFunc(func(ctx context.Context) (*big.Int, error) {
			gp, err := blockchain.GetGasPrice(ctx)
			if err != nil {
				return nil, err
			}
			return gp.Wei, nil
		})
	})

	di.RegisterToken(c, executionDI.Engine, func(sr di.ServiceRegistry) *app.Engine {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		engine, err := app.NewEngine(
			app.EngineConfig{
				DryRun:              cfg.Execution.DryRun,
				Executor:            cfg.Execution.ExecutorAddressHex(),
				Routers:             venueRouters(cfg),
				GasLimit:            cfg.Execution.GasLimit,
				MaxGasPriceGwei:     cfg.Execution.MaxGasPriceGwei,
				PriorityFeeGwei:     cfg.Execution.PriorityFeeGwei,
				GasProfitCap:        cfg.Execution.GasProfitCap,
				NativeUSD:           cfg.Execution.NativeUSD,
				MinProfitUSD:        cfg.Detection.MinProfitUSD,
				MaxTradeSizeUSD:     cfg.Detection.MaxTradeSizeUSD,
				ConfirmationTimeout: cfg.Execution.ConfirmationTimeout,
				ReceiptPollInterval: cfg.Execution.ReceiptPollInterval,
				ReconcileInterval:   cfg.Execution.ReconcileInterval,
			},
			log,
			di.GetToken(sr, executionDI.Backend),
			di.GetToken(sr, executionDI.GasSource),
			di.GetToken(sr, executionDI.Recorder),
			poolsDI.GetPoolService(sr),
			detectionDI.GetRouteCooldown(sr),
		)
		if err != nil {
			panic("failed to create execution engine: " + err.Error())
		}
		return engine
	})

	return nil
}

// Startup launches the engine loop, fed by detection candidates and, in
// execute mode, mempool signals.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()
	services := mono.Services()

	engine := executionDI.GetEngine(services)
	candidates := detectionDI.GetDetector(services).Candidates()

	var signals <-chan mempooldomain.Signal
	if mempooldomain.ParseMode(cfg.Mempool.Mode) == mempooldomain.ModeExecute {
		signals = mempoolDI.GetMonitor(services).Signals()
	}

	go func() {
		if err := engine.Run(ctx, candidates, signals); err != nil && ctx.Err() == nil {
			log.Error(ctx, "execution engine stopped", "error", err)
		}
	}()

	log.Info(ctx, "execution module started", "dry_run", cfg.Execution.DryRun)
	return nil
}

// venueRouters maps every tradable venue to its configured swap router.
// Venues whose router is not configured are simply not tradable.
func venueRouters(cfg *config.Config) map[poolsdomain.Venue]common.Address {
	routers := make(map[poolsdomain.Venue]common.Address)
	add := func(vc config.VenueConfig, venues ...poolsdomain.Venue) {
		if vc.Router == "" {
			return
		}
		for _, v := range venues {
			routers[v] = vc.RouterAddress()
		}
	}
	add(cfg.Venues.UniswapV3,
		poolsdomain.UniswapV3Fee100, poolsdomain.UniswapV3Fee500,
		poolsdomain.UniswapV3Fee3000, poolsdomain.UniswapV3Fee10000)
	add(cfg.Venues.SushiV3, poolsdomain.SushiSwapV3Fee500)
	add(cfg.Venues.QuickSwapV3, poolsdomain.QuickSwapV3)
	add(cfg.Venues.QuickSwapV2, poolsdomain.QuickSwapV2)
	add(cfg.Venues.SushiV2, poolsdomain.SushiSwapV2)
	return routers
}
