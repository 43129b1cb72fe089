// Package detection implements the opportunity-detection bounded context:
// spread scanning, whitelist admission, route cooldowns, and the Multicall
// quote pre-screen.
package detection

import (
	"context"

	blockchainDI "github.com/fd1az/dexarb/business/blockchain/di"
	"github.com/fd1az/dexarb/business/detection/app"
	detectionDI "github.com/fd1az/dexarb/business/detection/di"
	"github.com/fd1az/dexarb/business/detection/domain"
	"github.com/fd1az/dexarb/business/detection/infra/quoter"
	"github.com/fd1az/dexarb/business/detection/infra/whitelistfile"
	poolsDI "github.com/fd1az/dexarb/business/pools/di"
	"github.com/fd1az/dexarb/internal/config"
	"github.com/fd1az/dexarb/internal/di"
	"github.com/fd1az/dexarb/internal/logger"
	"github.com/fd1az/dexarb/internal/monolith"
)

// Module implements the detection bounded context.
type Module struct{}

// RegisterServices registers all detection services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, detectionDI.RouteCooldown, func(sr di.ServiceRegistry) *domain.RouteCooldown {
		cfg := sr.Get("config").(*config.Config)
		return domain.NewRouteCooldown(domain.CooldownConfig{
			InitialBlocks: cfg.Detection.CooldownBlocks,
			Factor:        cfg.Detection.CooldownFactor,
			CapBlocks:     cfg.Detection.CooldownCapBlocks,
		})
	})

	di.RegisterToken(c, detectionDI.WhitelistProvider, func(sr di.ServiceRegistry) app.WhitelistProvider {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		if cfg.Pools.WhitelistPath == "" {
			return whitelistfile.NewStatic(domain.PermissiveWhitelist())
		}
		loader, err := whitelistfile.New(cfg.Pools.WhitelistPath, cfg.Pools.WhitelistReloadInterval, log)
		if err != nil {
			panic("failed to load whitelist: " + err.Error())
		}
		return loader
	})

	di.RegisterToken(c, detectionDI.QuoteVerifier, func(sr di.ServiceRegistry) app.QuoteVerifier {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		if !cfg.Detection.QuoteVerification || cfg.Venues.UniswapV3.Quoter == "" {
			return nil
		}
		q, err := quoter.New(poolsDI.GetReadClient(sr), cfg.Venues.UniswapV3.QuoterAddress(), log)
		if err != nil {
			panic("failed to create quoter: " + err.Error())
		}
		return q
	})

	di.RegisterToken(c, detectionDI.Detector, func(sr di.ServiceRegistry) *app.Detector {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		d, err := app.NewDetector(
			app.DetectorConfig{
				MinProfitUSD:      cfg.Detection.MinProfitUSD,
				MaxTradeSizeUSD:   cfg.Detection.MaxTradeSizeUSD,
				SlippagePct:       cfg.Detection.SlippagePct,
				GasCostUSD:        cfg.Detection.GasCostUSD,
				QuoteVerification: cfg.Detection.QuoteVerification,
				CandidateBuffer:   cfg.Detection.CandidateBuffer,
				DepthFailureLimit: cfg.Detection.DepthFailureLimit,
			},
			log,
			poolsDI.GetPoolService(sr),
			di.GetToken(sr, detectionDI.WhitelistProvider),
			detectionDI.GetRouteCooldown(sr),
			di.GetToken(sr, detectionDI.QuoteVerifier),
		)
		if err != nil {
			panic("failed to create detector: " + err.Error())
		}
		return d
	})

	return nil
}

// Startup launches the detection loop, driven by block headers, and the
// whitelist reload loop when a file is configured.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	services := mono.Services()

	detector := detectionDI.GetDetector(services)

	if loader, ok := di.GetToken(services, detectionDI.WhitelistProvider).(*whitelistfile.Loader); ok {
		go loader.Run(ctx)
	}

	blockchain := blockchainDI.GetBlockchainService(services)
	blocks, err := blockchain.SubscribeBlocks(ctx)
	if err != nil {
		return err
	}

	numbers := make(chan uint64, 1)
	go func() {
		defer close(numbers)
		for {
			select {
			case <-ctx.Done():
				return
			case b, ok := <-blocks:
				if !ok {
					return
				}
				select {
				case numbers <- b.Number:
				default:
					// Detection is still busy with an older block; scanning
					// a skipped height adds nothing, the next one wins.
				}
			}
		}
	}()

	go func() {
		if err := detector.Run(ctx, numbers); err != nil && ctx.Err() == nil {
			log.Error(ctx, "detection loop stopped", "error", err)
		}
	}()

	log.Info(ctx, "detection module started",
		"quote_verification", mono.Config().Detection.QuoteVerification)
	return nil
}
