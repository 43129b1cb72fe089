// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Venues     VenuesConfig     `mapstructure:"venues"`
	Pools      PoolsConfig      `mapstructure:"pools"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	Mempool    MempoolConfig    `mapstructure:"mempool"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Accounting AccountingConfig `mapstructure:"accounting"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	TUIMode     bool   `mapstructure:"-"` // Set at runtime, not from config file
}

// EthereumConfig holds Ethereum node configuration.
type EthereumConfig struct {
	WebSocketURL   string        `mapstructure:"websocket_url"`
	HTTPURL        string        `mapstructure:"http_url"`
	ChainID        uint64        `mapstructure:"chain_id"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	// RequestsPerSecond caps outbound RPC reads across the whole process.
	// Metered providers bill per call; syncers share this budget.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// VenueConfig holds the contract addresses for one DEX.
type VenueConfig struct {
	Router  string `mapstructure:"router"`
	Factory string `mapstructure:"factory"`
	Quoter  string `mapstructure:"quoter"`
}

// RouterAddress returns the router address as common.Address.
func (v *VenueConfig) RouterAddress() common.Address {
	return common.HexToAddress(v.Router)
}

// FactoryAddress returns the factory address as common.Address.
func (v *VenueConfig) FactoryAddress() common.Address {
	return common.HexToAddress(v.Factory)
}

// QuoterAddress returns the quoter address as common.Address.
func (v *VenueConfig) QuoterAddress() common.Address {
	return common.HexToAddress(v.Quoter)
}

// VenuesConfig holds per-venue contract addresses. Empty venues are skipped.
type VenuesConfig struct {
	UniswapV3   VenueConfig `mapstructure:"uniswap_v3"`
	SushiV3     VenueConfig `mapstructure:"sushi_v3"`
	QuickSwapV3 VenueConfig `mapstructure:"quickswap_v3"`
	QuickSwapV2 VenueConfig `mapstructure:"quickswap_v2"`
	SushiV2     VenueConfig `mapstructure:"sushi_v2"`
	Multicall   string      `mapstructure:"multicall"`
}

// MulticallAddress returns the Multicall3 address as common.Address.
func (v *VenuesConfig) MulticallAddress() common.Address {
	return common.HexToAddress(v.Multicall)
}

// PoolsConfig holds pool tracking and sync configuration.
type PoolsConfig struct {
	// Pairs are "token0:token1:SYMBOL" triples; the pool contract's own
	// token ordering is authoritative, this only seeds discovery.
	Pairs []string `mapstructure:"pairs"`
	// WhitelistPath is the JSON admission list; empty means permissive.
	WhitelistPath           string        `mapstructure:"whitelist_path"`
	WhitelistReloadInterval time.Duration `mapstructure:"whitelist_reload_interval"`
	SyncInterval            time.Duration `mapstructure:"sync_interval"`
	// SyncBatchPairs limits how many pairs are refreshed per tick.
	SyncBatchPairs int `mapstructure:"sync_batch_pairs"`
	// MaxStaleBlocks marks cache entries stale beyond this block age.
	MaxStaleBlocks uint64 `mapstructure:"max_stale_blocks"`
	PriceLogDir    string `mapstructure:"price_log_dir"`
}

// DetectionConfig holds opportunity detection configuration.
type DetectionConfig struct {
	MinProfitUSD      float64 `mapstructure:"min_profit_usd"`
	MaxTradeSizeUSD   float64 `mapstructure:"max_trade_size_usd"`
	SlippagePct       float64 `mapstructure:"slippage_pct"`
	GasCostUSD        float64 `mapstructure:"gas_cost_usd"`
	CooldownBlocks    uint64  `mapstructure:"cooldown_blocks"`
	CooldownFactor    uint64  `mapstructure:"cooldown_factor"`
	CooldownCapBlocks uint64  `mapstructure:"cooldown_cap_blocks"`
	// QuoteVerification toggles the Multicall depth check before execution.
	QuoteVerification bool `mapstructure:"quote_verification"`
	// CandidateBuffer sizes the detector-to-execution channel.
	CandidateBuffer int `mapstructure:"candidate_buffer"`
	// DepthFailureLimit demotes a pool from admission after this many
	// consecutive quote-depth failures.
	DepthFailureLimit int `mapstructure:"depth_failure_limit"`
}

// MinProfitUSDDecimal returns the profit floor as decimal.Decimal.
func (c *DetectionConfig) MinProfitUSDDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinProfitUSD)
}

// MaxTradeSizeUSDDecimal returns the trade cap as decimal.Decimal.
func (c *DetectionConfig) MaxTradeSizeUSDDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxTradeSizeUSD)
}

// MempoolConfig holds pending-transaction monitoring configuration.
type MempoolConfig struct {
	// Mode is off, observe, or execute.
	Mode          string        `mapstructure:"mode"`
	MinProfitUSD  float64       `mapstructure:"min_profit_usd"`
	MinSpreadPct  float64       `mapstructure:"min_spread_pct"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	SignalBuffer  int           `mapstructure:"signal_buffer"`
	TrackerMaxAge time.Duration `mapstructure:"tracker_max_age"`
	// CheckInterval paces the confirmed-block cross-reference loop.
	CheckInterval time.Duration `mapstructure:"check_interval"`
	// ObservationLogDir receives the pending/simulation CSVs; empty disables.
	ObservationLogDir string `mapstructure:"observation_log_dir"`
}

// ExecutionConfig holds trade submission configuration.
type ExecutionConfig struct {
	// DryRun skips signing and submission; the full pipeline still runs.
	DryRun bool `mapstructure:"dry_run"`
	// PrivateKey is the hot wallet key in hex, no 0x prefix.
	PrivateKey string `mapstructure:"private_key"`
	// ExecutorAddress is the deployed atomic arb contract.
	ExecutorAddress string `mapstructure:"executor_address"`
	// PrivateRPCURL, when set, receives signed transactions instead of the
	// public endpoint (front-running protection).
	PrivateRPCURL       string        `mapstructure:"private_rpc_url"`
	MaxGasPriceGwei     float64       `mapstructure:"max_gas_price_gwei"`
	PriorityFeeGwei     float64       `mapstructure:"priority_fee_gwei"`
	GasLimit            uint64        `mapstructure:"gas_limit"`
	GasProfitCap        float64       `mapstructure:"gas_profit_cap"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval"`
	ReconcileInterval   time.Duration `mapstructure:"reconcile_interval"`
	// NativeUSD prices the chain's gas token for gas-cost conversion.
	NativeUSD float64 `mapstructure:"native_usd"`
}

// ExecutorAddressHex returns the executor contract address.
func (c *ExecutionConfig) ExecutorAddressHex() common.Address {
	return common.HexToAddress(c.ExecutorAddress)
}

// AccountingConfig holds the trade-record sink configuration.
type AccountingConfig struct {
	// PostgresDSN enables the Postgres recorder when non-empty; records are
	// always logged regardless.
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("DEXARB")
	v.AutomaticEnv()

	// Bind env vars to config keys
	bindEnvVars(v)

	// Set defaults
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "DEXARB_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "DEXARB_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "DEXARB_LOG_LEVEL", "LOG_LEVEL")

	// Ethereum
	v.BindEnv("ethereum.websocket_url", "DEXARB_ETH_WS_URL", "ETH_WS_URL")
	v.BindEnv("ethereum.http_url", "DEXARB_ETH_HTTP_URL", "ETH_HTTP_URL")
	v.BindEnv("ethereum.chain_id", "DEXARB_ETH_CHAIN_ID", "ETH_CHAIN_ID")
	v.BindEnv("ethereum.requests_per_second", "DEXARB_ETH_RPS")

	// Venues
	v.BindEnv("venues.uniswap_v3.router", "DEXARB_UNIV3_ROUTER")
	v.BindEnv("venues.uniswap_v3.factory", "DEXARB_UNIV3_FACTORY")
	v.BindEnv("venues.uniswap_v3.quoter", "DEXARB_UNIV3_QUOTER")
	v.BindEnv("venues.sushi_v3.router", "DEXARB_SUSHIV3_ROUTER")
	v.BindEnv("venues.sushi_v3.factory", "DEXARB_SUSHIV3_FACTORY")
	v.BindEnv("venues.sushi_v3.quoter", "DEXARB_SUSHIV3_QUOTER")
	v.BindEnv("venues.quickswap_v3.router", "DEXARB_QSV3_ROUTER")
	v.BindEnv("venues.quickswap_v3.factory", "DEXARB_QSV3_FACTORY")
	v.BindEnv("venues.quickswap_v3.quoter", "DEXARB_QSV3_QUOTER")
	v.BindEnv("venues.quickswap_v2.router", "DEXARB_QSV2_ROUTER")
	v.BindEnv("venues.quickswap_v2.factory", "DEXARB_QSV2_FACTORY")
	v.BindEnv("venues.sushi_v2.router", "DEXARB_SUSHIV2_ROUTER")
	v.BindEnv("venues.sushi_v2.factory", "DEXARB_SUSHIV2_FACTORY")
	v.BindEnv("venues.multicall", "DEXARB_MULTICALL")

	// Pools
	v.BindEnv("pools.pairs", "DEXARB_PAIRS", "TRADING_PAIRS")
	v.BindEnv("pools.whitelist_path", "DEXARB_WHITELIST_PATH")
	v.BindEnv("pools.sync_interval", "DEXARB_SYNC_INTERVAL")

	// Detection
	v.BindEnv("detection.min_profit_usd", "DEXARB_MIN_PROFIT_USD", "MIN_PROFIT_USD")
	v.BindEnv("detection.max_trade_size_usd", "DEXARB_MAX_TRADE_SIZE_USD", "MAX_TRADE_SIZE_USD")
	v.BindEnv("detection.slippage_pct", "DEXARB_SLIPPAGE_PCT")
	v.BindEnv("detection.cooldown_blocks", "DEXARB_COOLDOWN_BLOCKS")

	// Mempool
	v.BindEnv("mempool.mode", "DEXARB_MEMPOOL_MODE", "MEMPOOL_MONITOR")
	v.BindEnv("mempool.min_profit_usd", "DEXARB_MEMPOOL_MIN_PROFIT_USD")

	// Execution
	v.BindEnv("execution.dry_run", "DEXARB_DRY_RUN", "DRY_RUN")
	v.BindEnv("execution.private_key", "DEXARB_PRIVATE_KEY", "PRIVATE_KEY")
	v.BindEnv("execution.executor_address", "DEXARB_EXECUTOR_ADDRESS", "ARB_EXECUTOR_ADDRESS")
	v.BindEnv("execution.private_rpc_url", "DEXARB_PRIVATE_RPC_URL")
	v.BindEnv("execution.max_gas_price_gwei", "DEXARB_MAX_GAS_PRICE_GWEI", "MAX_GAS_PRICE_GWEI")

	// Accounting
	v.BindEnv("accounting.postgres_dsn", "DEXARB_POSTGRES_DSN", "DATABASE_URL")

	// Telemetry
	v.BindEnv("telemetry.enabled", "DEXARB_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "DEXARB_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "DEXARB_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "dexarb")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Ethereum defaults (Polygon PoS)
	v.SetDefault("ethereum.chain_id", 137)
	v.SetDefault("ethereum.max_reconnects", 0) // infinite
	v.SetDefault("ethereum.initial_backoff", "1s")
	v.SetDefault("ethereum.max_backoff", "30s")
	v.SetDefault("ethereum.requests_per_second", 25.0)

	// Venue defaults (Polygon deployments)
	v.SetDefault("venues.uniswap_v3.router", "0xE592427A0AEce92De3Edee1F18E0157C05861564")
	v.SetDefault("venues.uniswap_v3.factory", "0x1F98431c8aD98523631AE4a59f267346ea31F984")
	v.SetDefault("venues.uniswap_v3.quoter", "0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6")
	v.SetDefault("venues.multicall", "0xcA11bde05977b3631167028862bE2a173976CA11")

	// Pools defaults
	v.SetDefault("pools.whitelist_reload_interval", "5m")
	v.SetDefault("pools.sync_interval", "6s")
	v.SetDefault("pools.sync_batch_pairs", 2)
	v.SetDefault("pools.max_stale_blocks", 30)

	// Detection defaults
	v.SetDefault("detection.min_profit_usd", 0.10)
	v.SetDefault("detection.max_trade_size_usd", 500)
	v.SetDefault("detection.slippage_pct", 10)
	v.SetDefault("detection.gas_cost_usd", 0.02)
	v.SetDefault("detection.cooldown_blocks", 10)
	v.SetDefault("detection.cooldown_factor", 5)
	v.SetDefault("detection.cooldown_cap_blocks", 1800)
	v.SetDefault("detection.quote_verification", true)
	v.SetDefault("detection.candidate_buffer", 4)
	v.SetDefault("detection.depth_failure_limit", 3)

	// Mempool defaults
	v.SetDefault("mempool.mode", "off")
	v.SetDefault("mempool.min_profit_usd", 0.25)
	v.SetDefault("mempool.min_spread_pct", 0.01)
	v.SetDefault("mempool.max_reconnects", 50)
	v.SetDefault("mempool.signal_buffer", 8)
	v.SetDefault("mempool.tracker_max_age", "2m")
	v.SetDefault("mempool.check_interval", "6s")

	// Execution defaults: dry run until the operator says otherwise.
	v.SetDefault("execution.dry_run", true)
	v.SetDefault("execution.max_gas_price_gwei", 300)
	v.SetDefault("execution.priority_fee_gwei", 30)
	v.SetDefault("execution.gas_limit", 800000)
	v.SetDefault("execution.gas_profit_cap", 0.5)
	v.SetDefault("execution.confirmation_timeout", "30s")
	v.SetDefault("execution.receipt_poll_interval", "1s")
	v.SetDefault("execution.reconcile_interval", "1m")
	// POL is cheap enough that a stale price only skews the gas cap, not
	// profitability itself.
	v.SetDefault("execution.native_usd", 0.40)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "dexarb")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Ethereum.WebSocketURL == "" {
		return fmt.Errorf("ethereum.websocket_url is required")
	}
	if c.Ethereum.HTTPURL == "" {
		return fmt.Errorf("ethereum.http_url is required")
	}
	if len(c.Pools.Pairs) == 0 {
		return fmt.Errorf("pools.pairs cannot be empty")
	}
	if c.Venues.Multicall != "" && !common.IsHexAddress(c.Venues.Multicall) {
		return fmt.Errorf("invalid venues.multicall: %s", c.Venues.Multicall)
	}
	switch c.Mempool.Mode {
	case "off", "observe", "execute":
	default:
		return fmt.Errorf("mempool.mode must be off, observe, or execute, got %q", c.Mempool.Mode)
	}
	if !c.Execution.DryRun {
		if c.Execution.PrivateKey == "" {
			return fmt.Errorf("execution.private_key is required when dry_run is false")
		}
		if !common.IsHexAddress(c.Execution.ExecutorAddress) {
			return fmt.Errorf("invalid execution.executor_address: %s", c.Execution.ExecutorAddress)
		}
	}
	if c.Execution.GasProfitCap <= 0 || c.Execution.GasProfitCap > 1 {
		return fmt.Errorf("execution.gas_profit_cap must be in (0, 1], got %v", c.Execution.GasProfitCap)
	}
	return nil
}
