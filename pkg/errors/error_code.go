package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidSizing        ErrorCode = 102
	ErrCodeInvalidSymbol        ErrorCode = 103
	ErrCodeInvalidInterval      ErrorCode = 104
	ErrCodeMissingParameter     ErrorCode = 105

	// Store errors (200-299)
	ErrCodeStoreUnavailable ErrorCode = 200
	ErrCodeStoreWriteFailed ErrorCode = 201
	ErrCodeStoreReadFailed  ErrorCode = 202
	ErrCodeKeyNotFound      ErrorCode = 203
	ErrCodeDecodeFailed     ErrorCode = 204

	// Strategy errors (400-499)
	ErrCodeStrategyNotFound     ErrorCode = 400
	ErrCodeDuplicateStrategy    ErrorCode = 401
	ErrCodeStrategyConfigError  ErrorCode = 402
	ErrCodeStrategyRuntimeError ErrorCode = 403

	// Trading errors (500-599)
	ErrCodeOrderFailed        ErrorCode = 500
	ErrCodePositionNotFound   ErrorCode = 501
	ErrCodeAccountUnavailable ErrorCode = 502
	ErrCodePriceUnavailable   ErrorCode = 503
	ErrCodeTradingDisabled    ErrorCode = 504
	ErrCodeLiquidationFailed  ErrorCode = 505

	// Control-plane errors (600-699)
	ErrCodeAlreadyRunning    ErrorCode = 600
	ErrCodeNotRunning        ErrorCode = 601
	ErrCodeRestartInProgress ErrorCode = 602
	ErrCodeCommandRejected   ErrorCode = 603
	ErrCodeHealthCheckFailed ErrorCode = 604

	// Market data errors (700-799)
	ErrCodeMarketDataFetchFailed ErrorCode = 700
	ErrCodeMarketDataMissing     ErrorCode = 701
	ErrCodeMarketDataStale       ErrorCode = 702
)
