package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Engine-specific error codes
const (
	// Blockchain/Ethereum errors
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumSubscribeFailed  Code = "ETHEREUM_SUBSCRIBE_FAILED"
	CodeEthereumRPCError         Code = "ETHEREUM_RPC_ERROR"
	CodeBlockNotFound            Code = "BLOCK_NOT_FOUND"
	CodeGasEstimationFailed      Code = "GAS_ESTIMATION_FAILED"

	// WebSocket errors
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketReconnecting    Code = "WEBSOCKET_RECONNECTING"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"

	// Pool state errors
	CodePoolNotFound       Code = "POOL_NOT_FOUND"
	CodePoolSyncFailed     Code = "POOL_SYNC_FAILED"
	CodePoolStateStale     Code = "POOL_STATE_STALE"
	CodeNoLiquidity        Code = "NO_LIQUIDITY"
	CodeTickRangeExceeded  Code = "TICK_RANGE_EXCEEDED"
	CodeDecimalsFetchError Code = "DECIMALS_FETCH_ERROR"

	// Quoting errors
	CodeQuoteFailed        Code = "QUOTE_FAILED"
	CodeDepthTooLow        Code = "DEPTH_TOO_LOW"
	CodeMulticallFailed    Code = "MULTICALL_FAILED"
	CodeContractCallFailed Code = "CONTRACT_CALL_FAILED"

	// Detection errors
	CodeSpreadCalculationError Code = "SPREAD_CALCULATION_ERROR"
	CodeInsufficientLiquidity  Code = "INSUFFICIENT_LIQUIDITY"
	CodeInvalidTradeSize       Code = "INVALID_TRADE_SIZE"
	CodePoolNotWhitelisted     Code = "POOL_NOT_WHITELISTED"
	CodeRouteCooledDown        Code = "ROUTE_COOLED_DOWN"

	// Mempool errors
	CodeCalldataDecodeFailed Code = "CALLDATA_DECODE_FAILED"
	CodeUnknownSelector      Code = "UNKNOWN_SELECTOR"
	CodeSimulationFailed     Code = "SIMULATION_FAILED"

	// Execution errors
	CodeExecutionInFlight   Code = "EXECUTION_IN_FLIGHT"
	CodeExecutionHalted     Code = "EXECUTION_HALTED"
	CodeGasPriceTooHigh     Code = "GAS_PRICE_TOO_HIGH"
	CodeDryRunRevert        Code = "DRY_RUN_REVERT"
	CodeSubmissionFailed    Code = "SUBMISSION_FAILED"
	CodeConfirmationTimeout Code = "CONFIRMATION_TIMEOUT"
	CodeTradeReverted       Code = "TRADE_REVERTED"
	CodeNonceSyncFailed     Code = "NONCE_SYNC_FAILED"

	// Accounting errors
	CodeTradeRecordFailed Code = "TRADE_RECORD_FAILED"

	// Cache errors
	CodeCacheMiss    Code = "CACHE_MISS"
	CodeCacheExpired Code = "CACHE_EXPIRED"

	// Circuit breaker errors
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)
