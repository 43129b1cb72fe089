// Package main is the entry point for the DEX arbitrage bot.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/fd1az/dexarb/business/blockchain"
	blockchainDI "github.com/fd1az/dexarb/business/blockchain/di"
	"github.com/fd1az/dexarb/business/detection"
	detectionDI "github.com/fd1az/dexarb/business/detection/di"
	"github.com/fd1az/dexarb/business/execution"
	executionDI "github.com/fd1az/dexarb/business/execution/di"
	"github.com/fd1az/dexarb/business/mempool"
	mempoolDI "github.com/fd1az/dexarb/business/mempool/di"
	mempooldomain "github.com/fd1az/dexarb/business/mempool/domain"
	"github.com/fd1az/dexarb/business/pools"
	poolsDI "github.com/fd1az/dexarb/business/pools/di"
	"github.com/fd1az/dexarb/internal/apm"
	"github.com/fd1az/dexarb/internal/config"
	"github.com/fd1az/dexarb/internal/health"
	"github.com/fd1az/dexarb/internal/logger"
	"github.com/fd1az/dexarb/internal/metrics"
	"github.com/fd1az/dexarb/internal/monolith"
	"github.com/fd1az/dexarb/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Parse flags
	configPath := flag.String("config", "", "Path to configuration file")
	cliMode := flag.Bool("cli", false, "Run in CLI mode with logs (no TUI)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dexarb %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// TUI is the default, CLI is for debugging
	tuiMode := !*cliMode

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if !tuiMode {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	// Run application
	if err := run(ctx, *configPath, tuiMode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, tuiMode bool) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set TUI mode in config so modules know
	cfg.App.TUIMode = tuiMode

	// Setup logger (only log to stderr in CLI mode)
	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}

	var log *logger.Logger
	if tuiMode {
		// In TUI mode, suppress logs (discard output)
		log = logger.New(io.Discard, logLevel, cfg.App.Name, nil)
	} else {
		log = logger.New(os.Stderr, logLevel, cfg.App.Name, nil)
		log.Info(ctx, "starting DEX arbitrage bot",
			"version", version,
			"environment", cfg.App.Environment,
			"dry_run", cfg.Execution.DryRun,
		)
	}

	// Initialize observability if enabled
	var traceProvider apm.TraceProvider
	if cfg.Telemetry.Enabled {
		// Set service name env var for OTEL
		if cfg.Telemetry.ServiceName != "" {
			os.Setenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
		}
		if cfg.Telemetry.OTLPEndpoint != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
		}

		// Initialize tracing with Zipkin (local dev friendly)
		traceProvider = apm.NewTraceProvider(log, apm.WithProvider(apm.ZipkinProvider, log))
		log.Info(ctx, "tracing initialized", "provider", "zipkin", "endpoint", cfg.Telemetry.OTLPEndpoint)

		// Initialize metrics with Prometheus
		metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.ProviderCfg{
				Provider: metrics.PrometheusProvider,
			}),
		)

		// Start Prometheus metrics server in background
		port := cfg.Telemetry.PrometheusPort
		if port == 0 {
			port = 9090
		}
		go metrics.ServePrometheusMetrics(metrics.WithPort(strconv.Itoa(port)))
		log.Info(ctx, "prometheus metrics server started", "port", port)
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
	}()

	// Start health check server on port 8081
	healthServer := health.NewServer(8081, version)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", 8081)
	}
	defer healthServer.Stop(ctx)

	// Create monolith (application container)
	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	// Define modules in dependency order
	modules := []monolith.Module{
		&blockchain.Module{}, // Must be first - provides blocks and gas
		&pools.Module{},      // Pool discovery and state sync
		&detection.Module{},  // Scans pool state for candidates
		&mempool.Module{},    // Pending-swap signals (optional by mode)
		&execution.Module{},  // Consumes candidates and signals
	}

	// Register all module services
	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	if tuiMode {
		// TUI mode: Start modules in background so TUI shows immediately
		startFunc := func() error {
			if err := mono.StartModules(ctx, modules...); err != nil {
				return fmt.Errorf("failed to start modules: %w", err)
			}
			registerHealthChecks(mono, healthServer)
			go forwardState(ctx, mono)
			return nil
		}
		return runTUI(ctx, startFunc)
	}

	// CLI mode: Start modules synchronously
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}
	registerHealthChecks(mono, healthServer)

	return runCLI(ctx, mono, log)
}

// registerHealthChecks wires the readiness probes once the modules run.
func registerHealthChecks(mono monolith.Monolith, hs *health.Server) {
	poolSvc := poolsDI.GetPoolService(mono.Services())
	engine := executionDI.GetEngine(mono.Services())

	hs.RegisterCheck("pools", func(ctx context.Context) (bool, string) {
		block := poolSvc.LastBlock()
		if block == 0 {
			return false, "no pool state synced yet"
		}
		return true, fmt.Sprintf("synced at block %d", block)
	})
	dryRun := mono.Config().Execution.DryRun
	hs.RegisterCheck("execution", func(ctx context.Context) (bool, string) {
		stats := engine.Stats()
		if !dryRun && !stats.NonceSynced {
			return false, "wallet nonce not synced"
		}
		if stats.HaltedPairs > 0 {
			return true, fmt.Sprintf("%d pairs halted", stats.HaltedPairs)
		}
		return true, ""
	})
}

// runCLI blocks until shutdown, logging a periodic pipeline summary.
func runCLI(ctx context.Context, mono monolith.Monolith, log *logger.Logger) error {
	log.Info(ctx, "all modules started, scanning for arbitrage")

	engine := executionDI.GetEngine(mono.Services())
	detector := detectionDI.GetDetector(mono.Services())

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info(context.Background(), "shutting down")
			return nil
		case <-ticker.C:
			ds := detector.Stats()
			es := engine.Stats()
			log.Info(ctx, "pipeline summary",
				"cycles", ds.Cycles,
				"found", ds.Found,
				"published", ds.Published,
				"attempts", es.Attempts,
				"confirmed", es.Confirmed,
				"reverted", es.Reverted,
				"halted_pairs", es.HaltedPairs,
			)
		}
	}
}

// forwardState polls the running services and feeds the TUI. The candidate
// and signal channels belong to the engine, so the dashboard reads counters
// and snapshots instead of tapping the pipeline.
func forwardState(ctx context.Context, mono monolith.Monolith) {
	cfg := mono.Config()
	services := mono.Services()

	poolSvc := poolsDI.GetPoolService(services)
	detector := detectionDI.GetDetector(services)
	engine := executionDI.GetEngine(services)
	blockchainSvc := blockchainDI.GetBlockchainService(services)

	mode := mempooldomain.ParseMode(cfg.Mempool.Mode)

	ui.Send(ui.SessionMsg{DryRun: cfg.Execution.DryRun, MempoolMode: mode.String()})
	ui.Send(ui.StartupMsg{Step: "config", Status: "done"})
	ui.Send(ui.StartupMsg{Step: "detection", Status: "connecting"})

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var tick int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		tick++

		block := poolSvc.LastBlock()
		ui.Send(ui.BlockMsg{Number: block, Timestamp: time.Now()})
		ui.Send(ui.PoolsMsg{Views: poolSvc.ViewsByPair()})
		ui.Send(ui.ConnectionStatusMsg{Name: "Ethereum", Connected: block > 0})
		ui.Send(ui.ConnectionStatusMsg{Name: "Mempool", Connected: mode.Active()})

		stats := ui.StatsMsg{
			Detection: detector.Stats(),
			Execution: engine.Stats(),
			Halted:    engine.HaltedPairs(),
		}
		if mode.Active() {
			stats.Mempool = mempoolDI.GetMonitor(services).Stats()
		}
		ui.Send(stats)
		ui.Send(ui.TradesMsg{Records: engine.Recent()})

		// Gas needs an RPC round trip, so poll it less often.
		if tick%5 == 1 {
			if gp, err := blockchainSvc.GetGasPrice(ctx); err == nil {
				ui.Send(ui.GasPriceMsg{GweiPrice: gp.Gwei})
			}
		}
	}
}

func runTUI(ctx context.Context, startFunc func() error) error {
	// Channel to receive StartModulesMsg signal
	startSignal := make(chan struct{}, 1)
	ui.OnStartModules = func() {
		select {
		case startSignal <- struct{}{}:
		default:
		}
	}

	// Create and start the TUI program IMMEDIATELY (shows welcome screen)
	p := tea.NewProgram(ui.New(), tea.WithAltScreen())
	ui.Program = p

	// Run bot logic in background (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		// Wait for welcome screen to complete (StartModulesMsg signal)
		select {
		case <-startSignal:
			// Welcome complete, start modules
		case <-ctx.Done():
			errCh <- nil
			return
		}

		// Start modules (connections happen here, TUI shows progress)
		if err := startFunc(); err != nil {
			ui.Send(ui.ErrorMsg{Error: err})
			errCh <- err
			return
		}

		// Wait for context cancellation
		<-ctx.Done()
		errCh <- nil
	}()

	// Run TUI (blocking) - shows immediately with welcome screen
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	// Check for bot errors
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
