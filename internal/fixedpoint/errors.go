package fixedpoint

import errorsmod "cosmossdk.io/errors"

// Codespace groups the arithmetic errors.
const Codespace = "fixedpoint"

var (
	ErrArithmeticOverflow      = errorsmod.Register(Codespace, 2, "arithmetic overflow")
	ErrDivisionByZero          = errorsmod.Register(Codespace, 3, "division by zero")
	ErrInvalidFeeConfiguration = errorsmod.Register(Codespace, 4, "invalid fee configuration")
	ErrInvalidUnits            = errorsmod.Register(Codespace, 5, "invalid unit amount")
)
