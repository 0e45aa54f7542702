// internal/curve/engine_test.go
package curve_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/vcurve/internal/curve"
	"github.com/rovshanmuradov/vcurve/internal/events"
	"github.com/rovshanmuradov/vcurve/internal/fixedpoint"
	"github.com/rovshanmuradov/vcurve/internal/ledger"
	"github.com/rovshanmuradov/vcurve/internal/pool"
)

var (
	tokenAddr = common.HexToAddress("0x7000000000000000000000000000000000000001")
	wethAddr  = common.HexToAddress("0x0500000000000000000000000000000000000002")
	owner     = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	feeTo     = common.HexToAddress("0x0000000000000000000000000000000000000fee")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	stranger  = common.HexToAddress("0x0000000000000000000000000000000000000bad")
)

func units(s string) *uint256.Int { return fixedpoint.MustParseUnits(s, 18) }

type recordingSink struct {
	mu     sync.Mutex
	events []*events.CurveEvent
}

func (s *recordingSink) Publish(e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e.(*events.CurveEvent))
	return nil
}

func (s *recordingSink) types() []events.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type())
	}
	return out
}

type fixture struct {
	engine *curve.Engine
	tokens *ledger.Memory
	assets *ledger.Memory
	pools  *pool.Memory
	sink   *recordingSink
}

// baseConfig is the 1000 token / 10 asset curve used across these tests,
// with no fees and a threshold out of reach.
func baseConfig() curve.Config {
	return curve.Config{
		Token:          tokenAddr,
		Asset:          wethAddr,
		AssetKind:      curve.AssetERC20,
		TokenSupplyCap: units("1000"),
		AssetRate:      1000,
		GradThreshold:  units("1000000"),
		GradMetric:     curve.MetricAssetRaised,
		MaxTx:          units("100"),
		FeeRecipient:   feeTo,
		Owner:          owner,
	}
}

func newFixture(t require.TestingT, logger *zap.Logger, mutate ...func(*curve.Config)) *fixture {
	cfg := baseConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	tokens := ledger.NewMemory(tokenAddr, "TKN", 18, ledger.WithSupplyCap(cfg.TokenSupplyCap))
	assets := ledger.NewMemory(cfg.Asset, "WETH", 18)
	require.NoError(t, tokens.Mint(owner, cfg.TokenSupplyCap))
	require.NoError(t, assets.Mint(owner, units("10")))
	require.NoError(t, assets.Mint(alice, units("1000")))
	require.NoError(t, assets.Mint(bob, units("1000")))

	pools := pool.NewMemory(common.Address{}, map[common.Address]curve.Ledger{
		tokenAddr: tokens,
		cfg.Asset: assets,
	}, logger)
	sink := &recordingSink{}

	e, err := curve.NewEngine(cfg, curve.Deps{
		Tokens: tokens,
		Assets: assets,
		Pools:  pools,
		Sink:   sink,
		Logger: logger,
		Clock:  func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	require.NoError(t, err)

	return &fixture{engine: e, tokens: tokens, assets: assets, pools: pools, sink: sink}
}

func (f *fixture) init(t require.TestingT) {
	require.NoError(t, f.engine.AddInitialLiquidity(context.Background(), owner, units("10"), units("1000")))
}

func balance(t *testing.T, l curve.Ledger, a common.Address) *uint256.Int {
	t.Helper()
	b, err := l.BalanceOf(context.Background(), a)
	require.NoError(t, err)
	return b
}

func TestNewEngineValidatesConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*curve.Config)
		target error
	}{
		{"fee over 100%", func(c *curve.Config) { c.BuyFeeBps = 10_001 }, curve.ErrInvalidFeeConfiguration},
		{"no max tx", func(c *curve.Config) { c.MaxTx = nil }, curve.ErrInvalidConfig},
		{"native with asset", func(c *curve.Config) { c.AssetKind = curve.AssetNative }, curve.ErrInvalidConfig},
		{"no owner", func(c *curve.Config) { c.Owner = common.Address{} }, curve.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(&cfg)
			l := ledger.NewMemory(tokenAddr, "TKN", 18)
			_, err := curve.NewEngine(cfg, curve.Deps{Tokens: l, Assets: l, Pools: pool.NewMemory(common.Address{}, nil, nil)})
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestAddInitialLiquidity(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	ctx := context.Background()

	assert.Equal(t, curve.StatusUninitialized, f.engine.Status())
	_, err := f.engine.CurrentPrice()
	assert.ErrorIs(t, err, curve.ErrDivisionByZero)

	err = f.engine.AddInitialLiquidity(ctx, stranger, units("10"), units("1000"))
	assert.ErrorIs(t, err, curve.ErrUnauthorized)

	err = f.engine.AddInitialLiquidity(ctx, owner, new(uint256.Int), units("1000"))
	assert.ErrorIs(t, err, curve.ErrInvalidAmount)

	f.init(t)
	assert.Equal(t, curve.StatusActive, f.engine.Status())

	token, asset := f.engine.GetReserves()
	assert.Equal(t, units("1000"), token)
	assert.Equal(t, units("10"), asset)
	assert.Equal(t, new(uint256.Int).Mul(units("1000"), units("10")), f.engine.GetKLast())
	assert.Equal(t, units("1000"), balance(t, f.tokens, f.engine.ID()))

	price, err := f.engine.CurrentPrice()
	require.NoError(t, err)
	assert.Equal(t, units("0.01"), price)

	err = f.engine.AddInitialLiquidity(ctx, owner, units("1"), units("1"))
	assert.ErrorIs(t, err, curve.ErrAlreadyInitialized)

	assert.Equal(t, []events.EventType{events.CurveAddLiquidity}, f.sink.types())
}

func TestAddInitialLiquidityWithVirtualOffsets(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t), func(c *curve.Config) {
		c.VirtualAssetOffset = units("30")
		c.VirtualTokenOffset = units("500")
		c.TokenSupplyCap = units("1000")
	})
	f.init(t)

	token, asset := f.engine.GetReserves()
	assert.Equal(t, units("1500"), token)
	assert.Equal(t, units("40"), asset)
	// Only the real deposit moved.
	assert.Equal(t, units("10"), balance(t, f.assets, f.engine.ID()))
}

func TestBuyScenario(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	f.init(t)
	ctx := context.Background()

	q, err := f.engine.QuoteBuy(units("1"))
	require.NoError(t, err)

	res, err := f.engine.BuyTokens(ctx, alice, units("1"), units("90"))
	require.NoError(t, err)

	assert.Equal(t, "90909090909090909090", res.AmountOut.Dec())
	assert.Equal(t, q.AmountOut, res.AmountOut, "quote matches execution")
	assert.Equal(t, res.AmountOut, balance(t, f.tokens, alice))
	assert.Equal(t, units("999"), balance(t, f.assets, alice))
	assert.True(t, res.Fee.IsZero())

	// (10+1)/(1000-90.909) ~ 0.0121
	assert.Equal(t, "12099999999999999", res.Price.Dec())
	price, err := f.engine.CurrentPrice()
	require.NoError(t, err)
	assert.Equal(t, res.Price, price)

	assert.False(t, res.ReservesAfter.Token.Gt(res.ReservesBefore.Token))
	assert.Equal(t, []events.EventType{events.CurveAddLiquidity, events.CurveBuy}, f.sink.types())
	last := f.sink.events[1]
	assert.Equal(t, uint64(2), last.Sequence)
	assert.Equal(t, alice, last.Account)
}

func TestBuyFeeIsSkimmedBeforeQuote(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t), func(c *curve.Config) { c.BuyFeeBps = 250 })
	f.init(t)

	res, err := f.engine.BuyTokens(context.Background(), alice, units("1"), nil)
	require.NoError(t, err)

	assert.Equal(t, units("0.025"), res.Fee)
	assert.Equal(t, units("0.975"), res.CurveAsset)
	assert.Equal(t, "88838268792710706150", res.AmountOut.Dec())
	assert.Equal(t, units("0.025"), balance(t, f.assets, feeTo))
	assert.Equal(t, units("10.975"), balance(t, f.assets, f.engine.ID()))
}

func TestSellScenario(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t), func(c *curve.Config) { c.SellFeeBps = 100 })
	f.init(t)
	ctx := context.Background()

	buy, err := f.engine.BuyTokens(ctx, alice, units("1"), nil)
	require.NoError(t, err)

	gross, err := f.engine.SellPrice(buy.AmountOut)
	require.NoError(t, err)
	q, err := f.engine.QuoteSell(buy.AmountOut)
	require.NoError(t, err)

	sell, err := f.engine.SellTokens(ctx, alice, buy.AmountOut, nil)
	require.NoError(t, err)

	assert.Equal(t, gross, sell.CurveAsset)
	assert.Equal(t, q.AmountOut, sell.AmountOut)
	assert.Equal(t, new(uint256.Int).Add(sell.AmountOut, sell.Fee), gross)
	assert.True(t, sell.AmountOut.Lt(units("1")), "no free round trip")
	assert.True(t, balance(t, f.tokens, alice).IsZero())
	assert.Equal(t, sell.Fee, balance(t, f.assets, feeTo))
}

func TestSellOverMaxTxLeavesReservesUnchanged(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	f.init(t)
	before := f.engine.Snapshot()

	_, err := f.engine.SellTokens(context.Background(), alice, units("150"), nil)
	assert.ErrorIs(t, err, curve.ErrMaxTransactionExceeded)
	assert.True(t, curve.IsRecoverable(err))

	after := f.engine.Snapshot()
	assert.Equal(t, before.Reserves, after.Reserves)
	assert.Equal(t, before.Sequence, after.Sequence)
}

func TestBuyOverMaxTx(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	f.init(t)

	// 2 asset buys ~166 tokens, over the 100 cap.
	_, err := f.engine.BuyTokens(context.Background(), alice, units("2"), nil)
	assert.ErrorIs(t, err, curve.ErrMaxTransactionExceeded)
	_, err = f.engine.QuoteBuy(units("2"))
	assert.ErrorIs(t, err, curve.ErrMaxTransactionExceeded)
}

func TestBuyOverMaxTxAndMinOutReportsMaxTx(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	f.init(t)
	before := f.engine.Snapshot()

	// ~166 tokens breaks both the 100 cap and the 500 minimum.
	_, err := f.engine.BuyTokens(context.Background(), alice, units("2"), units("500"))
	assert.ErrorIs(t, err, curve.ErrMaxTransactionExceeded)
	assert.NotErrorIs(t, err, curve.ErrSlippageExceeded)
	assert.Equal(t, before.Reserves, f.engine.Snapshot().Reserves)
}

func TestSupplyCapBoundsCumulativeSales(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t), func(c *curve.Config) { c.MaxTx = units("1000") })
	f.init(t)
	ctx := context.Background()
	capped := units("1000")

	buy, err := f.engine.BuyTokens(ctx, alice, units("90"), nil)
	require.NoError(t, err)
	require.Equal(t, units("900"), buy.AmountOut)
	sell, err := f.engine.SellTokens(ctx, alice, buy.AmountOut, nil)
	require.NoError(t, err)
	require.Equal(t, units("90"), sell.AmountOut)

	s := f.engine.Snapshot()
	assert.True(t, s.TokensOutstanding.IsZero())
	assert.Equal(t, units("900"), s.TokensSold)

	// Reserves are back where they started but only 100 tokens remain
	// under the cap.
	_, err = f.engine.QuoteBuy(units("90"))
	assert.ErrorIs(t, err, curve.ErrInsufficientLiquidity)
	_, err = f.engine.BuyTokens(ctx, alice, units("90"), nil)
	assert.ErrorIs(t, err, curve.ErrInsufficientLiquidity)

	small, err := f.engine.BuyTokens(ctx, alice, units("1"), nil)
	require.NoError(t, err)
	assert.Equal(t, "90909090909090909090", small.AmountOut.Dec())

	_, err = f.engine.BuyTokens(ctx, bob, units("1"), nil)
	assert.ErrorIs(t, err, curve.ErrInsufficientLiquidity)

	s = f.engine.Snapshot()
	assert.False(t, s.TokensSold.Gt(capped), "sold %s over cap", s.TokensSold)
	assert.Equal(t, new(uint256.Int).Add(units("900"), small.AmountOut), s.TokensSold)

	// Selling is never bounded by the cap.
	_, err = f.engine.SellTokens(ctx, alice, small.AmountOut, nil)
	require.NoError(t, err)
	assert.Equal(t, s.TokensSold, f.engine.Snapshot().TokensSold)
}

func TestPriceOverflowRejectsTradeBeforeTransfers(t *testing.T) {
	// A tiny token side against a huge virtual asset side: k still fits in
	// 256 bits but the price after a large buy does not.
	f := newFixture(t, zaptest.NewLogger(t), func(c *curve.Config) {
		c.TokenSupplyCap = units("100")
		c.VirtualAssetOffset = uint256.MustFromDecimal("1" + zeros(57))
	})
	ctx := context.Background()
	require.NoError(t, f.engine.AddInitialLiquidity(ctx, owner, units("10"), units("100")))

	assetIn := uint256.MustFromDecimal("2" + zeros(68))
	require.NoError(t, f.assets.Mint(alice, assetIn))
	aliceAsset := balance(t, f.assets, alice)
	before := f.engine.Snapshot()

	_, err := f.engine.BuyTokens(ctx, alice, assetIn, nil)
	require.ErrorIs(t, err, curve.ErrArithmeticOverflow)
	assert.True(t, curve.IsFatal(err))

	after := f.engine.Snapshot()
	assert.Equal(t, before.Reserves, after.Reserves)
	assert.Equal(t, before.KLast, after.KLast)
	assert.Equal(t, before.Sequence, after.Sequence)
	assert.True(t, after.TokensSold.IsZero())
	assert.Equal(t, aliceAsset, balance(t, f.assets, alice))
	assert.True(t, balance(t, f.tokens, alice).IsZero())
	assert.Equal(t, []events.EventType{events.CurveAddLiquidity}, f.sink.types())
}

func zeros(n int) string { return strings.Repeat("0", n) }

func TestSlippage(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	f.init(t)
	before := f.engine.Snapshot()

	_, err := f.engine.BuyTokens(context.Background(), alice, units("1"), units("91"))
	assert.ErrorIs(t, err, curve.ErrSlippageExceeded)
	assert.Equal(t, before.Reserves, f.engine.Snapshot().Reserves)
	assert.Equal(t, units("1000"), balance(t, f.assets, alice))
}

func TestTradesRequireActiveCurve(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	_, err := f.engine.BuyTokens(context.Background(), alice, units("1"), nil)
	assert.ErrorIs(t, err, curve.ErrCurveNotActive)
	_, err = f.engine.QuoteSell(units("1"))
	assert.ErrorIs(t, err, curve.ErrCurveNotActive)
}

func TestTransferFailureRollsBack(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t), func(c *curve.Config) { c.BuyFeeBps = 250 })
	f.init(t)
	before := f.engine.Snapshot()

	// The fee leg is the last transfer of a buy.
	f.assets.Freeze(feeTo, true)
	_, err := f.engine.BuyTokens(context.Background(), alice, units("1"), nil)
	require.ErrorIs(t, err, curve.ErrTransferFailed)

	after := f.engine.Snapshot()
	assert.Equal(t, before.Reserves, after.Reserves)
	assert.Equal(t, before.KLast, after.KLast)
	assert.Equal(t, before.TokensSold, after.TokensSold)
	assert.Equal(t, units("1000"), balance(t, f.assets, alice))
	assert.True(t, balance(t, f.tokens, alice).IsZero())
	assert.Equal(t, units("10"), balance(t, f.assets, f.engine.ID()))

	f.assets.Freeze(feeTo, false)
	_, err = f.engine.BuyTokens(context.Background(), alice, units("1"), nil)
	require.NoError(t, err)
}

func TestReentrantCallIsRejected(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	f.init(t)

	var reentryErr error
	f.tokens.OnTransfer(func(ctx context.Context, _, to common.Address, _ *uint256.Int) error {
		if to != alice {
			return nil
		}
		_, reentryErr = f.engine.BuyTokens(ctx, alice, units("1"), nil)
		return reentryErr
	})

	_, err := f.engine.BuyTokens(context.Background(), alice, units("1"), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, reentryErr, curve.ErrReentrantCall)
	assert.Equal(t, uint64(2), f.engine.Snapshot().Sequence)
}

func TestReadsAndSupplementaryGetters(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t), func(c *curve.Config) {
		c.AssetRate = 2000
		c.GradThreshold = units("4")
	})
	f.init(t)

	assert.Equal(t, uint64(2000), f.engine.AssetRate())
	assert.Equal(t, units("100"), f.engine.MaxTx())
	assert.Equal(t, units("4"), f.engine.GetThreshold())

	ext, err := f.engine.ExternalPrice()
	require.NoError(t, err)
	assert.Equal(t, units("0.02"), ext)

	cost, err := f.engine.BuyPrice(units("90"))
	require.NoError(t, err)
	assert.True(t, cost.Lt(units("1")))

	_, err = f.engine.BuyTokens(context.Background(), alice, units("1"), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2500), f.engine.GraduationProgress())
	assert.False(t, f.engine.CheckThreshold())
}
