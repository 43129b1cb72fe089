package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Blockchain/Ethereum errors
	CodeEthereumConnectionFailed: "Failed to connect to Ethereum node",
	CodeEthereumSubscribeFailed:  "Failed to subscribe to Ethereum events",
	CodeEthereumRPCError:         "Ethereum RPC call failed",
	CodeBlockNotFound:            "Block not found",
	CodeGasEstimationFailed:      "Gas estimation failed",

	// WebSocket errors
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketReconnecting:    "WebSocket reconnecting",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	// Pool state errors
	CodePoolNotFound:       "Pool not found in state cache",
	CodePoolSyncFailed:     "Failed to sync pool state",
	CodePoolStateStale:     "Pool state is stale",
	CodeNoLiquidity:        "Pool has no liquidity",
	CodeTickRangeExceeded:  "Swap crosses too many ticks for single-range simulation",
	CodeDecimalsFetchError: "Failed to fetch token decimals",

	// Quoting errors
	CodeQuoteFailed:        "Failed to get on-chain quote",
	CodeDepthTooLow:        "Executable depth far below price-implied output",
	CodeMulticallFailed:    "Multicall batch request failed",
	CodeContractCallFailed: "Smart contract call failed",

	// Detection errors
	CodeSpreadCalculationError: "Spread calculation error",
	CodeInsufficientLiquidity:  "Insufficient liquidity for trade size",
	CodeInvalidTradeSize:       "Invalid trade size",
	CodePoolNotWhitelisted:     "Pool is not admitted by the whitelist",
	CodeRouteCooledDown:        "Route is suppressed by cooldown",

	// Mempool errors
	CodeCalldataDecodeFailed: "Failed to decode swap calldata",
	CodeUnknownSelector:      "Unknown function selector",
	CodeSimulationFailed:     "Post-swap simulation failed",

	// Execution errors
	CodeExecutionInFlight:   "Another trade is already in flight",
	CodeExecutionHalted:     "Execution halted pending reconciliation",
	CodeGasPriceTooHigh:     "Gas price exceeds configured maximum",
	CodeDryRunRevert:        "Pre-submission dry run reverted",
	CodeSubmissionFailed:    "Transaction submission failed",
	CodeConfirmationTimeout: "Confirmation wait timed out",
	CodeTradeReverted:       "Trade reverted on-chain",
	CodeNonceSyncFailed:     "Failed to sync account nonce",

	// Accounting errors
	CodeTradeRecordFailed: "Failed to persist trade record",

	// Cache errors
	CodeCacheMiss:    "Cache miss",
	CodeCacheExpired: "Cache entry expired",

	// Circuit breaker errors
	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}
