// internal/curve/errors.go
package curve

import (
	"errors"

	errorsmod "cosmossdk.io/errors"

	"github.com/rovshanmuradov/vcurve/internal/fixedpoint"
)

// Codespace of the curve error taxonomy.
const Codespace = "curve"

// Recoverable errors: the caller may retry with corrected input, state is untouched.
var (
	ErrInvalidAmount          = errorsmod.Register(Codespace, 2, "invalid amount")
	ErrUnauthorized           = errorsmod.Register(Codespace, 3, "unauthorized")
	ErrAlreadyInitialized     = errorsmod.Register(Codespace, 4, "curve already initialized")
	ErrCurveNotActive         = errorsmod.Register(Codespace, 5, "curve not active")
	ErrInsufficientLiquidity  = errorsmod.Register(Codespace, 6, "insufficient liquidity")
	ErrMaxTransactionExceeded = errorsmod.Register(Codespace, 7, "max transaction exceeded")
	ErrSlippageExceeded       = errorsmod.Register(Codespace, 8, "slippage exceeded")
	ErrReentrantCall          = errorsmod.Register(Codespace, 9, "reentrant call")
)

// Fatal errors point at a logic defect and abort without committing.
var (
	ErrInvariantViolation = errorsmod.Register(Codespace, 10, "invariant violation")

	ErrArithmeticOverflow      = fixedpoint.ErrArithmeticOverflow
	ErrDivisionByZero          = fixedpoint.ErrDivisionByZero
	ErrInvalidFeeConfiguration = fixedpoint.ErrInvalidFeeConfiguration
)

// Collaborator errors.
var (
	ErrTransferFailed  = errorsmod.Register(Codespace, 11, "transfer failed")
	ErrMigrationFailed = errorsmod.Register(Codespace, 12, "migration failed")
	ErrInvalidConfig   = errorsmod.Register(Codespace, 13, "invalid curve configuration")
)

var recoverable = []error{
	ErrInvalidAmount,
	ErrUnauthorized,
	ErrAlreadyInitialized,
	ErrCurveNotActive,
	ErrInsufficientLiquidity,
	ErrMaxTransactionExceeded,
	ErrSlippageExceeded,
	ErrReentrantCall,
}

// IsRecoverable reports whether err is a user-input error that left the
// curve unchanged.
func IsRecoverable(err error) bool {
	for _, target := range recoverable {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsFatal reports whether err signals a math or invariant defect.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvariantViolation) || errors.Is(err, ErrArithmeticOverflow)
}

// IsRetriable reports whether an operator may simply retry the call
// (a failed migration; the curve stays Graduating).
func IsRetriable(err error) bool {
	return errors.Is(err, ErrMigrationFailed)
}
