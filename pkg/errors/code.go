package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 10100-10199: Auth errors
// 11000-11999: Launch errors
// 12000-12999: Monitoring errors
// 13000-13999: Quota & Ledger errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Auth errors (10100-10199)
	TokenExpired ErrorCode = 10100
	TokenInvalid ErrorCode = 10101

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Launch Errors (11000-11999) ==========

	TargetNotFound      ErrorCode = 11000
	TargetResolveFailed ErrorCode = 11001
	LaunchFailed        ErrorCode = 11002
	PlatformUnsupported ErrorCode = 11003

	// ========== Monitoring Errors (12000-12999) ==========

	MonitorFailed      ErrorCode = 12000
	ProcessTableFailed ErrorCode = 12001
	KillFailed         ErrorCode = 12002
	JoinTimeout        ErrorCode = 12003
	JobQueueFull       ErrorCode = 12100

	// ========== Quota & Ledger Errors (13000-13999) ==========

	QuotaExhausted      ErrorCode = 13000
	InsufficientCredits ErrorCode = 13001
	LedgerIOError       ErrorCode = 13100
	LedgerNotConfigured ErrorCode = 13101
	InvalidPaymentMode  ErrorCode = 13102
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Auth
	TokenExpired: "Token has expired",
	TokenInvalid: "Invalid token",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Launch
	TargetNotFound:      "Target executable not found",
	TargetResolveFailed: "Failed to resolve target",
	LaunchFailed:        "Failed to start target process",
	PlatformUnsupported: "Process monitoring is not supported on this platform",

	// Monitoring
	MonitorFailed:      "Process monitoring failed",
	ProcessTableFailed: "Failed to read process table",
	KillFailed:         "Failed to terminate process tree",
	JoinTimeout:        "Monitor did not finish in time",
	JobQueueFull:       "Job slots are full, please try again later",

	// Quota & Ledger
	QuotaExhausted:      "Requested CPU quota exceeds the remaining session quota",
	InsufficientCredits: "Insufficient credits",
	LedgerIOError:       "Ledger persistence failed",
	LedgerNotConfigured: "Payment mode is not configured",
	InvalidPaymentMode:  "Invalid payment mode",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return 401
	case c == Forbidden:
		return 403
	case c == NotFound, c == TargetNotFound:
		return 404
	case c == TooManyRequests, c == JobQueueFull:
		return 429
	case c == ServiceUnavailable:
		return 503
	case c == QuotaExhausted, c == InsufficientCredits:
		return 402
	case c == LedgerNotConfigured, c == InvalidPaymentMode:
		return 409
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams:
		return 400
	default:
		return 500
	}
}
