// internal/curve/reserves_test.go
package curve

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/vcurve/internal/fixedpoint"
)

func units(s string) *uint256.Int { return fixedpoint.MustParseUnits(s, 18) }

func newPair(t *testing.T) *ReservePair {
	t.Helper()
	p, err := NewReservePair(units("1000"), units("10"))
	require.NoError(t, err)
	return p
}

func TestNewReservePairRejectsZero(t *testing.T) {
	_, err := NewReservePair(new(uint256.Int), units("10"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = NewReservePair(units("1"), nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestQuoteBuyScenario(t *testing.T) {
	p := newPair(t)

	out, err := p.QuoteBuy(units("1"), nil)
	require.NoError(t, err)
	// 1000 - 1000*10/11 = 90.909..., rounded in the pool's favour.
	assert.Equal(t, "90909090909090909090", out.Dec())

	// Quotes are pure.
	assert.Equal(t, units("1000"), p.Reserves().Token)
}

func TestQuoteBuySupplyBound(t *testing.T) {
	p := newPair(t)
	_, err := p.QuoteBuy(units("1"), units("90"))
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)

	_, err = p.QuoteBuy(new(uint256.Int), nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestQuoteBuyDustBuysNothing(t *testing.T) {
	p, err := NewReservePair(uint256.NewInt(10), uint256.NewInt(1000))
	require.NoError(t, err)
	_, err = p.QuoteBuy(uint256.NewInt(1), nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestQuoteSellAndExactOut(t *testing.T) {
	p := newPair(t)

	assetOut, err := p.QuoteSell(units("100"))
	require.NoError(t, err)
	// 10 - ceil(10000/1100) = 0.9090...
	assert.Equal(t, "909090909090909090", assetOut.Dec())

	cost, err := p.QuoteBuyExactOut(units("90.909090909090909090"))
	require.NoError(t, err)
	assert.True(t, cost.Cmp(units("1")) <= 0)

	_, err = p.QuoteBuyExactOut(units("1000"))
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestCommitKeepsK(t *testing.T) {
	p := newPair(t)
	k0 := p.K()

	out, err := p.QuoteBuy(units("1"), nil)
	require.NoError(t, err)
	require.NoError(t, p.Commit(out, units("1"), Buy))
	assert.False(t, p.K().Lt(k0))

	k1 := p.K()
	back, err := p.QuoteSell(out)
	require.NoError(t, err)
	require.NoError(t, p.Commit(out, back, Sell))
	assert.False(t, p.K().Lt(k1))
	assert.True(t, back.Lt(units("1")), "round trip returns less than paid")
}

func TestCommitRejectsInvariantViolation(t *testing.T) {
	p := newPair(t)
	before := p.Reserves()

	// Taking 100 tokens for 0.5 asset would shrink k.
	err := p.Commit(units("100"), units("0.5"), Buy)
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.True(t, IsFatal(err))
	assert.Equal(t, before, p.Reserves())

	err = p.Commit(units("1000"), units("1"), Buy)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestFeePolicy(t *testing.T) {
	_, err := NewFeePolicy(10_001, 0, common.Address{})
	assert.ErrorIs(t, err, ErrInvalidFeeConfiguration)

	fp, err := NewFeePolicy(250, 100, common.HexToAddress("0xfee"))
	require.NoError(t, err)

	buy, err := fp.Apply(units("1"), Buy)
	require.NoError(t, err)
	assert.Equal(t, units("0.025"), buy.Fee)
	assert.Equal(t, units("0.975"), buy.Net)
	assert.Equal(t, units("1"), buy.Gross)

	sell, err := fp.Apply(units("1"), Sell)
	require.NoError(t, err)
	assert.Equal(t, units("0.01"), sell.Fee)
	assert.Equal(t, uint64(250), fp.BuyBps())
	assert.Equal(t, uint64(100), fp.SellBps())
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsRecoverable(ErrSlippageExceeded))
	assert.True(t, IsRecoverable(ErrCurveNotActive))
	assert.False(t, IsRecoverable(ErrInvariantViolation))
	assert.True(t, IsFatal(ErrArithmeticOverflow))
	assert.True(t, IsRetriable(ErrMigrationFailed))
	assert.False(t, IsRetriable(ErrTransferFailed))
}
