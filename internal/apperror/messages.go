package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	CodeConfigurationError: "Configuration error",

	CodeInternalError: "Internal error",
	CodeUnknownError:  "An unknown error occurred",

	// Provider errors
	CodeProviderTransient: "Provider request failed",
	CodeProviderThrottled: "Provider rate limit exceeded",
	CodeUnsupportedSymbol: "Symbol not supported by provider",
	CodeMalformedBook:     "Malformed or empty order book",

	// Detection and orchestration errors
	CodeInsufficientLiquidity: "Insufficient liquidity for trade size",
	CodeInvalidTradeSize:      "Invalid trade size",
	CodeScanInFlight:          "A scan is already in progress",
	CodeScanNotReady:          "No scan has completed yet",
	CodeScanFailed:            "Scan aborted with an error",

	// Persistence and alerting errors
	CodeStoreError:  "Opportunity store operation failed",
	CodeNotifyError: "Alert notification failed",

	// Circuit breaker errors
	CodeCircuitOpen: "Circuit breaker is open",
}
