package fixedpoint

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b, d uint64
		want    uint64
		wantUp  uint64
	}{
		{name: "exact", a: 10, b: 20, d: 5, want: 40, wantUp: 40},
		{name: "truncates", a: 10, b: 10, d: 3, want: 33, wantUp: 34},
		{name: "zero numerator", a: 0, b: 7, d: 3, want: 0, wantUp: 0},
		{name: "pool scenario", a: 1000, b: 10, d: 11, want: 909, wantUp: 910},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MulDiv(uint256.NewInt(tt.a), uint256.NewInt(tt.b), uint256.NewInt(tt.d))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Uint64())

			up, err := MulDivUp(uint256.NewInt(tt.a), uint256.NewInt(tt.b), uint256.NewInt(tt.d))
			require.NoError(t, err)
			assert.Equal(t, tt.wantUp, up.Uint64())
		})
	}
}

func TestMulDivLargeReserves(t *testing.T) {
	// 10^27 * 10^27 still fits comfortably in 256 bits.
	big := MustParseUnits("1000000000", 18)
	got, err := MulDiv(big, big, big)
	require.NoError(t, err)
	assert.True(t, got.Eq(big))
}

func TestMulDivWideIntermediate(t *testing.T) {
	// maxU*2 needs 257 bits but the quotient fits.
	maxU := new(uint256.Int).SetAllOne()
	got, err := MulDiv(maxU, uint256.NewInt(2), uint256.NewInt(2))
	require.NoError(t, err)
	assert.True(t, got.Eq(maxU))
}

func TestMulDivErrors(t *testing.T) {
	_, err := MulDiv(uint256.NewInt(1), uint256.NewInt(1), new(uint256.Int))
	assert.True(t, errors.Is(err, ErrDivisionByZero))

	maxU := new(uint256.Int).SetAllOne()
	_, err = MulDiv(maxU, uint256.NewInt(2), uint256.NewInt(1))
	assert.True(t, errors.Is(err, ErrArithmeticOverflow))

	_, err = MulDivUp(maxU, uint256.NewInt(3), uint256.NewInt(3))
	require.NoError(t, err)

	_, err = Mul(maxU, uint256.NewInt(2))
	assert.True(t, errors.Is(err, ErrArithmeticOverflow))

	_, err = Add(maxU, uint256.NewInt(1))
	assert.True(t, errors.Is(err, ErrArithmeticOverflow))
}

func TestApplyFeeBps(t *testing.T) {
	amount := MustParseUnits("1", 18)

	after, fee, err := ApplyFeeBps(amount, MustBps(250))
	require.NoError(t, err)
	assert.Equal(t, "0.025", FormatUnits(fee, 18))
	assert.Equal(t, "0.975", FormatUnits(after, 18))

	after, fee, err = ApplyFeeBps(uint256.NewInt(39), MustBps(250))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), fee.Uint64(), "fee rounds down")
	assert.Equal(t, uint64(39), after.Uint64())

	after, fee, err = ApplyFeeBps(amount, MustBps(BpsDenominator))
	require.NoError(t, err)
	assert.True(t, after.IsZero())
	assert.True(t, fee.Eq(amount))
}

func TestNewBpsRejectsOutOfRange(t *testing.T) {
	_, err := NewBps(10_001)
	assert.True(t, errors.Is(err, ErrInvalidFeeConfiguration))

	b, err := NewBps(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), b.Uint64())
}

func TestUnits(t *testing.T) {
	v, err := ParseUnits("1000.5", 18)
	require.NoError(t, err)
	assert.Equal(t, "1000500000000000000000", v.Dec())
	assert.Equal(t, "1000.5", FormatUnits(v, 18))

	_, err = ParseUnits("-1", 18)
	assert.True(t, errors.Is(err, ErrInvalidUnits))

	_, err = ParseUnits("0.1234567", 6)
	assert.True(t, errors.Is(err, ErrInvalidUnits))

	_, err = ParseUnits("abc", 18)
	assert.True(t, errors.Is(err, ErrInvalidUnits))

	assert.InDelta(t, 0.01, ToFloat(MustParseUnits("0.01", 18), 18), 1e-12)
}
