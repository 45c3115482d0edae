package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Market-data provider error codes. These form the closed taxonomy the
// detection pipeline branches on: transient, throttled, unsupported,
// malformed. Anything else from a provider is wrapped as transient.
const (
	CodeProviderTransient Code = "PROVIDER_TRANSIENT"
	CodeProviderThrottled Code = "PROVIDER_THROTTLED"
	CodeUnsupportedSymbol Code = "UNSUPPORTED_SYMBOL"
	CodeMalformedBook     Code = "MALFORMED_BOOK"
)

// Detection and orchestration error codes
const (
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeInvalidTradeSize      Code = "INVALID_TRADE_SIZE"
	CodeScanInFlight          Code = "SCAN_IN_FLIGHT"
	CodeScanNotReady          Code = "SCAN_NOT_READY"
	CodeScanFailed            Code = "SCAN_FAILED"
)

// Persistence and alerting error codes
const (
	CodeStoreError  Code = "STORE_ERROR"
	CodeNotifyError Code = "NOTIFY_ERROR"
)

// Circuit breaker error codes
const (
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)
