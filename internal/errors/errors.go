package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is an application-specific error type
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// wraps an error with a code and message
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// CodeOf returns the code of the outermost AppError in err's chain,
// or an empty string when err carries no AppError.
func CodeOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether the outermost AppError in err's chain has the given code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// Error code constants
const (
	CodeInternal   = "INTERNAL_ERROR"
	CodeInvalidArg = "INVALID_ARGUMENT"
	CodeExternal   = "EXTERNAL_ERROR"
	CodeConflict   = "CONFLICT" // Resource already exists (UNIQUE violation)
)

// Ingestion failure taxonomy. Probe and fetch adapters return errors carrying
// one of these codes; the retry classifier switches on them.
const (
	CodeNotYetLive         = "NOT_YET_LIVE" // informational: stream scheduled but not started
	CodeQuiescent          = "QUIESCENT"    // informational: nothing available right now
	CodeTransientNetwork   = "TRANSIENT_NETWORK"
	CodeRateLimited        = "RATE_LIMITED"
	CodeItemUnavailable    = "ITEM_UNAVAILABLE"    // removed, region-locked, private or malformed
	CodeChannelUnavailable = "CHANNEL_UNAVAILABLE" // deleted, banned or not found
	CodeLedgerWrite        = "LEDGER_WRITE_FAILURE"
	CodeConfiguration      = "CONFIGURATION_ERROR"
)
