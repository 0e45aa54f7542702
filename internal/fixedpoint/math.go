// internal/fixedpoint/math.go
package fixedpoint

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
)

const (
	// DefaultDecimals is the native precision of project tokens and of the
	// fixed-point prices reported by the engine.
	DefaultDecimals = 18

	// BpsDenominator is 100% expressed in basis points.
	BpsDenominator = 10_000
)

var (
	bpsDenominator = uint256.NewInt(BpsDenominator)

	maxUint256 = new(uint256.Int).SetAllOne()

	// WAD is 10^18, the scale of fixed-point prices.
	WAD = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(DefaultDecimals))
)

// Bps is a validated basis-point value in [0, 10000].
// The zero value is a valid 0% fee.
type Bps struct {
	v uint64
}

// NewBps validates a raw basis-point value. Out-of-range values are rejected
// here so that fee application itself never has to.
func NewBps(v uint64) (Bps, error) {
	if v > BpsDenominator {
		return Bps{}, errorsmod.Wrapf(ErrInvalidFeeConfiguration, "%d bps exceeds %d", v, BpsDenominator)
	}
	return Bps{v: v}, nil
}

// MustBps is NewBps for constants.
func MustBps(v uint64) Bps {
	b, err := NewBps(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Uint64 returns the raw basis points.
func (b Bps) Uint64() uint64 { return b.v }

// MulDiv returns a*b/denominator truncated toward zero.
//
// The product is held in 512 bits, so only a quotient that does not fit in
// 256 bits fails with ErrArithmeticOverflow.
func MulDiv(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	if denominator.IsZero() {
		return nil, errorsmod.Wrapf(ErrDivisionByZero, "%s * %s / 0", a, b)
	}
	quo, overflow := new(uint256.Int).MulDivOverflow(a, b, denominator)
	if overflow {
		return nil, errorsmod.Wrapf(ErrArithmeticOverflow, "%s * %s / %s exceeds 256 bits", a, b, denominator)
	}
	return quo, nil
}

// MulDivUp is MulDiv rounded up instead of down. Used wherever the pool has
// to keep the remainder (k / newReserve).
func MulDivUp(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	quo, err := MulDiv(a, b, denominator)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(a, b, denominator).IsZero() {
		return quo, nil
	}
	if quo.Eq(maxUint256) {
		return nil, errorsmod.Wrapf(ErrArithmeticOverflow, "ceil(%s * %s / %s) exceeds 256 bits", a, b, denominator)
	}
	return quo.AddUint64(quo, 1), nil
}

// DivUp returns ceil(a / denominator).
func DivUp(a, denominator *uint256.Int) (*uint256.Int, error) {
	return MulDivUp(a, one(), denominator)
}

// ValidateBps reports whether v is a usable basis-point value.
func ValidateBps(v uint64) error {
	_, err := NewBps(v)
	return err
}

// ApplyFeeBps splits amount into (amountAfterFee, feeAmount) with
// feeAmount = amount * bps / 10000 rounded down.
func ApplyFeeBps(amount *uint256.Int, bps Bps) (afterFee, fee *uint256.Int, err error) {
	fee, err = MulDiv(amount, uint256.NewInt(bps.v), bpsDenominator)
	if err != nil {
		return nil, nil, err
	}
	return new(uint256.Int).Sub(amount, fee), fee, nil
}

// Add returns a+b or ErrArithmeticOverflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, errorsmod.Wrapf(ErrArithmeticOverflow, "%s + %s exceeds 256 bits", a, b)
	}
	return sum, nil
}

// Mul returns a*b or ErrArithmeticOverflow.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	prod, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, errorsmod.Wrapf(ErrArithmeticOverflow, "%s * %s exceeds 256 bits", a, b)
	}
	return prod, nil
}

// SubFloor returns a-b, or zero when b > a.
func SubFloor(a, b *uint256.Int) *uint256.Int {
	if b.Gt(a) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}

// Clone copies x; nil becomes zero.
func Clone(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(x)
}

func one() *uint256.Int { return uint256.NewInt(1) }
