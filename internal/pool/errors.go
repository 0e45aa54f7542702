// internal/pool/errors.go
package pool

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
)

const Codespace = "pool"

var (
	// ErrUnavailable is a transient exchange failure; callers may retry.
	ErrUnavailable     = errorsmod.Register(Codespace, 2, "exchange unavailable")
	ErrUnknownPool     = errorsmod.Register(Codespace, 3, "unknown pool")
	ErrInvalidDeposit  = errorsmod.Register(Codespace, 4, "invalid deposit")
	ErrUnsupportedPair = errorsmod.Register(Codespace, 5, "unsupported token pair")
)

// IsTemporary reports whether err is worth retrying.
func IsTemporary(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
