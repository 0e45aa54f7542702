// internal/fixedpoint/units.go
package fixedpoint

import (
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ParseUnits converts a human decimal string ("10", "0.975") into base units
// with the given number of decimals, like ethers.parseEther for 18.
func ParseUnits(s string, decimals int32) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errorsmod.Wrap(ErrInvalidUnits, "empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, errorsmod.Wrapf(ErrInvalidUnits, "%q: %v", s, err)
	}
	if d.IsNegative() {
		return nil, errorsmod.Wrapf(ErrInvalidUnits, "%q is negative", s)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, errorsmod.Wrapf(ErrInvalidUnits, "%q has more than %d decimals", s, decimals)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, errorsmod.Wrapf(ErrArithmeticOverflow, "%q does not fit 256 bits", s)
	}
	return v, nil
}

// MustParseUnits panics on malformed input. Tests and constants only.
func MustParseUnits(s string, decimals int32) *uint256.Int {
	v, err := ParseUnits(s, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// ToDecimal converts base units into a decimal with the given precision.
func ToDecimal(x *uint256.Int, decimals int32) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x.ToBig(), -decimals)
}

// FormatUnits is the inverse of ParseUnits (ethers.formatEther for 18).
func FormatUnits(x *uint256.Int, decimals int32) string {
	return ToDecimal(x, decimals).String()
}

// ToFloat is a lossy conversion for metrics and display.
func ToFloat(x *uint256.Int, decimals int32) float64 {
	f, _ := ToDecimal(x, decimals).Float64()
	return f
}
