// internal/curve/engine.go
package curve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/vcurve/internal/events"
	"github.com/rovshanmuradov/vcurve/internal/fixedpoint"
)

// Deps are the collaborators of one curve.
type Deps struct {
	// ID is the curve's account on both ledgers. Zero derives one from the
	// token and owner addresses.
	ID     common.Address
	Tokens Ledger
	Assets Ledger
	Pools  PoolAdapter
	Auth   Authorizer
	Sink   EventSink
	Logger *zap.Logger
	Clock  func() time.Time
}

// Engine is one bonding curve instance.
//
// All mutations run under a single trade lock. Reads never take the lock:
// they load the last published Snapshot, which is replaced only after a
// mutation has fully completed (transfers included).
type Engine struct {
	id     common.Address
	cfg    Config
	fees   FeePolicy
	tokens Ledger
	assets Ledger
	auth   Authorizer
	sink   EventSink
	logger *zap.Logger
	now    func() time.Time

	coordinator *Coordinator

	mu                sync.Mutex
	reserves          *ReservePair
	tokensOutstanding *uint256.Int
	tokensSold        *uint256.Int
	assetRaised       *uint256.Int
	feesOwed          *uint256.Int
	seq               uint64

	status     atomic.Int32
	snap       atomic.Pointer[Snapshot]
	graduation atomic.Pointer[Graduation]
}

// DeriveCurveID returns the default curve account for a token and owner.
func DeriveCurveID(token, owner common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256(token.Bytes(), owner.Bytes())[12:])
}

// NewEngine validates cfg and returns an Uninitialized curve.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Tokens == nil || deps.Assets == nil {
		return nil, errorsmod.Wrap(ErrInvalidConfig, "token and asset ledgers are required")
	}
	if deps.Pools == nil {
		return nil, errorsmod.Wrap(ErrInvalidConfig, "pool adapter is required")
	}

	fees, err := NewFeePolicy(cfg.BuyFeeBps, cfg.SellFeeBps, cfg.FeeRecipient)
	if err != nil {
		return nil, err
	}

	cfg.TokenSupplyCap = fixedpoint.Clone(cfg.TokenSupplyCap)
	cfg.GradThreshold = fixedpoint.Clone(cfg.GradThreshold)
	cfg.MaxTx = fixedpoint.Clone(cfg.MaxTx)
	cfg.VirtualAssetOffset = fixedpoint.Clone(cfg.VirtualAssetOffset)
	cfg.VirtualTokenOffset = fixedpoint.Clone(cfg.VirtualTokenOffset)

	id := deps.ID
	if id == (common.Address{}) {
		id = DeriveCurveID(cfg.Token, cfg.Owner)
	}
	if deps.Auth == nil {
		deps.Auth = OwnerOnly(cfg.Owner)
	}
	if deps.Sink == nil {
		deps.Sink = discardSink{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	e := &Engine{
		id:                id,
		cfg:               cfg,
		fees:              fees,
		tokens:            deps.Tokens,
		assets:            deps.Assets,
		auth:              deps.Auth,
		sink:              deps.Sink,
		logger:            deps.Logger.Named("curve").With(zap.String("curve_id", id.Hex())),
		now:               deps.Clock,
		tokensOutstanding: new(uint256.Int),
		tokensSold:        new(uint256.Int),
		assetRaised:       new(uint256.Int),
		feesOwed:          new(uint256.Int),
	}
	e.coordinator = newCoordinator(e, deps.Pools)
	e.status.Store(int32(StatusUninitialized))
	e.publishLocked()

	e.logger.Info("Curve created",
		zap.String("token", cfg.Token.Hex()),
		zap.String("asset_kind", cfg.AssetKind.String()),
		zap.String("supply_cap", cfg.TokenSupplyCap.Dec()),
		zap.String("grad_threshold", cfg.GradThreshold.Dec()),
		zap.String("grad_metric", cfg.GradMetric.String()))

	return e, nil
}

type callKey struct{ e *Engine }

// enter marks ctx as being inside a mutating call of this engine. A
// collaborator that calls back into the engine with that ctx gets
// ErrReentrantCall instead of a deadlock.
func (e *Engine) enter(ctx context.Context) (context.Context, error) {
	if ctx.Value(callKey{e}) != nil {
		return ctx, errorsmod.Wrap(ErrReentrantCall, "curve call from inside a curve call")
	}
	return context.WithValue(ctx, callKey{e}, struct{}{}), nil
}

func (e *Engine) authorize(ctx context.Context, caller common.Address, action Action) error {
	err := e.auth.Authorize(ctx, caller, action)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnauthorized) {
		return err
	}
	return errorsmod.Wrapf(ErrUnauthorized, "%s: %v", action, err)
}

// AddInitialLiquidity moves assetAmount and tokenAmount from caller to the
// curve, seeds the reserves (plus any virtual offsets) and activates trading.
func (e *Engine) AddInitialLiquidity(ctx context.Context, caller common.Address, assetAmount, tokenAmount *uint256.Int) error {
	ctx, err := e.enter(ctx)
	if err != nil {
		return err
	}
	if err := e.authorize(ctx, caller, ActionAddInitialLiquidity); err != nil {
		return err
	}
	if assetAmount == nil || assetAmount.IsZero() || tokenAmount == nil || tokenAmount.IsZero() {
		return errorsmod.Wrap(ErrInvalidAmount, "initial liquidity amounts must be positive")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Status() != StatusUninitialized {
		return errorsmod.Wrapf(ErrAlreadyInitialized, "curve is %s", e.Status())
	}

	tokenReserve, err := fixedpoint.Add(tokenAmount, e.cfg.VirtualTokenOffset)
	if err != nil {
		return err
	}
	assetReserve, err := fixedpoint.Add(assetAmount, e.cfg.VirtualAssetOffset)
	if err != nil {
		return err
	}
	pair, err := NewReservePair(tokenReserve, assetReserve)
	if err != nil {
		return err
	}

	if err := e.transfer(ctx, []transferStep{
		{ledger: e.tokens, from: caller, to: e.id, amount: tokenAmount, what: "initial tokens"},
		{ledger: e.assets, from: caller, to: e.id, amount: assetAmount, what: "initial asset"},
	}); err != nil {
		return err
	}

	e.reserves = pair
	e.status.Store(int32(StatusActive))
	e.seq++
	e.publishLocked()

	after := pair.Reserves()
	e.emit(events.CurveAddLiquidity, func(ev *events.CurveEvent) {
		ev.Account = caller
		ev.ReservesBefore = events.Reserves{Token: new(uint256.Int), Asset: new(uint256.Int)}
		ev.ReservesAfter = toEventReserves(after)
		ev.AmountIn = fixedpoint.Clone(assetAmount)
		ev.AmountOut = fixedpoint.Clone(tokenAmount)
	})

	e.logger.Info("Initial liquidity added",
		zap.String("caller", caller.Hex()),
		zap.String("asset_amount", assetAmount.Dec()),
		zap.String("token_amount", tokenAmount.Dec()),
		zap.String("token_reserve", after.Token.Dec()),
		zap.String("asset_reserve", after.Asset.Dec()))

	return nil
}

// BuyTokens spends assetIn on tokens. The trade fails with
// ErrSlippageExceeded when fewer than minTokenOut tokens would be released.
// If the trade crosses the graduation threshold the curve stops trading and
// migration runs before BuyTokens returns; a migration failure is reported
// in TradeResult.GraduationErr, not as the trade's error.
func (e *Engine) BuyTokens(ctx context.Context, trader common.Address, assetIn, minTokenOut *uint256.Int) (*TradeResult, error) {
	return e.trade(ctx, trader, Buy, assetIn, minTokenOut)
}

// SellTokens sells tokenIn for asset, fees deducted. See BuyTokens.
func (e *Engine) SellTokens(ctx context.Context, trader common.Address, tokenIn, minAssetOut *uint256.Int) (*TradeResult, error) {
	return e.trade(ctx, trader, Sell, tokenIn, minAssetOut)
}

func (e *Engine) trade(ctx context.Context, trader common.Address, dir Direction, amountIn, minOut *uint256.Int) (*TradeResult, error) {
	ctx, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	if minOut == nil {
		minOut = new(uint256.Int)
	}

	e.mu.Lock()
	res, err := e.tradeLocked(ctx, trader, dir, amountIn, minOut)
	e.mu.Unlock()

	if err != nil {
		if IsFatal(err) || errors.Is(err, ErrTransferFailed) {
			e.logger.Error("Trade aborted",
				zap.String("direction", dir.String()),
				zap.String("trader", trader.Hex()),
				zap.Error(err))
		} else {
			e.logger.Debug("Trade rejected",
				zap.String("direction", dir.String()),
				zap.String("trader", trader.Hex()),
				zap.Error(err))
		}
		return nil, err
	}

	if res.GraduationTriggered {
		res.Graduation, res.GraduationErr = e.coordinator.migrate(ctx)
	}
	return res, nil
}

func (e *Engine) tradeLocked(ctx context.Context, trader common.Address, dir Direction, amountIn, minOut *uint256.Int) (*TradeResult, error) {
	if st := e.Status(); st != StatusActive {
		return nil, errorsmod.Wrapf(ErrCurveNotActive, "curve is %s", st)
	}

	q, err := e.quote(e.reserves, e.tokensSold, dir, amountIn)
	if err != nil {
		return nil, err
	}
	if q.AmountOut.Lt(minOut) {
		return nil, errorsmod.Wrapf(ErrSlippageExceeded, "%s out %s below minimum %s", dir, q.AmountOut, minOut)
	}

	next, err := e.nextCounters(dir, q)
	if err != nil {
		return nil, err
	}

	before := e.reserves.Reserves()
	kBefore := e.reserves.K()
	tokenDelta, assetDelta := q.AmountOut, q.CurveAsset
	if dir == Sell {
		tokenDelta = q.AmountIn
	}
	if err := e.reserves.Commit(tokenDelta, assetDelta, dir); err != nil {
		return nil, err
	}
	after := e.reserves.Reserves()
	price, err := spotPrice(after)
	if err != nil {
		e.reserves.restore(before, kBefore)
		return nil, err
	}

	if err := e.transfer(ctx, e.tradeTransfers(trader, dir, q)); err != nil {
		e.reserves.restore(before, kBefore)
		return nil, err
	}

	e.tokensOutstanding, e.tokensSold, e.assetRaised, e.feesOwed = next.outstanding, next.sold, next.raised, next.feesOwed
	e.seq++

	res := &TradeResult{
		Quote:          q,
		Trader:         trader,
		ReservesBefore: before,
		ReservesAfter:  after,
		Price:          price,
		Timestamp:      e.now(),
	}

	if e.thresholdReachedLocked() && e.status.CompareAndSwap(int32(StatusActive), int32(StatusGraduating)) {
		res.GraduationTriggered = true
	}
	e.publishLocked()

	typ := events.CurveBuy
	if dir == Sell {
		typ = events.CurveSell
	}
	e.emit(typ, func(ev *events.CurveEvent) {
		ev.Account = trader
		ev.ReservesBefore = toEventReserves(before)
		ev.ReservesAfter = toEventReserves(after)
		ev.AmountIn = fixedpoint.Clone(q.AmountIn)
		ev.AmountOut = fixedpoint.Clone(q.AmountOut)
		ev.Fee = fixedpoint.Clone(q.Fee)
		ev.Price = fixedpoint.Clone(price)
	})

	e.logger.Debug("Trade executed",
		zap.String("direction", dir.String()),
		zap.String("trader", trader.Hex()),
		zap.String("amount_in", q.AmountIn.Dec()),
		zap.String("amount_out", q.AmountOut.Dec()),
		zap.String("fee", q.Fee.Dec()),
		zap.String("price", price.Dec()),
		zap.Uint64("sequence", e.seq))

	if res.GraduationTriggered {
		e.logger.Info("Graduation threshold reached",
			zap.String("metric", e.cfg.GradMetric.String()),
			zap.String("threshold", e.cfg.GradThreshold.Dec()))
		e.emit(events.CurveGraduationStarted, func(ev *events.CurveEvent) {
			ev.Account = trader
			ev.ReservesAfter = toEventReserves(after)
			ev.Price = fixedpoint.Clone(price)
		})
	}

	return res, nil
}

// quote computes a trade against pair exactly as execution would, fees and
// both caps included, but without slippage. sold is the cumulative count of
// tokens ever bought from the curve.
func (e *Engine) quote(pair *ReservePair, sold *uint256.Int, dir Direction, amountIn *uint256.Int) (Quote, error) {
	if amountIn == nil || amountIn.IsZero() {
		return Quote{}, errorsmod.Wrapf(ErrInvalidAmount, "%s amount must be positive", dir)
	}

	switch dir {
	case Buy:
		split, err := e.fees.Apply(amountIn, Buy)
		if err != nil {
			return Quote{}, err
		}
		remaining := fixedpoint.SubFloor(e.cfg.TokenSupplyCap, sold)
		tokenOut, err := pair.QuoteBuy(split.Net, remaining)
		if err != nil {
			return Quote{}, err
		}
		if tokenOut.Gt(e.cfg.MaxTx) {
			return Quote{}, errorsmod.Wrapf(ErrMaxTransactionExceeded, "buy of %s tokens exceeds max %s", tokenOut, e.cfg.MaxTx)
		}
		return Quote{
			Direction:  Buy,
			AmountIn:   fixedpoint.Clone(amountIn),
			AmountOut:  tokenOut,
			Fee:        split.Fee,
			CurveAsset: split.Net,
		}, nil

	case Sell:
		if amountIn.Gt(e.cfg.MaxTx) {
			return Quote{}, errorsmod.Wrapf(ErrMaxTransactionExceeded, "sell of %s tokens exceeds max %s", amountIn, e.cfg.MaxTx)
		}
		gross, err := pair.QuoteSell(amountIn)
		if err != nil {
			return Quote{}, err
		}
		split, err := e.fees.Apply(gross, Sell)
		if err != nil {
			return Quote{}, err
		}
		return Quote{
			Direction:  Sell,
			AmountIn:   fixedpoint.Clone(amountIn),
			AmountOut:  split.Net,
			Fee:        split.Fee,
			CurveAsset: gross,
		}, nil
	}
	return Quote{}, errorsmod.Wrapf(ErrInvalidAmount, "unknown direction %d", dir)
}

type counters struct {
	outstanding *uint256.Int
	sold        *uint256.Int
	raised      *uint256.Int
	feesOwed    *uint256.Int
}

// nextCounters computes the cumulative counters after q. TokensSold and
// AssetRaised only ever grow, so the threshold check is monotonic, and
// TokensSold is what the supply cap bounds. TokensOutstanding is net of
// sells.
func (e *Engine) nextCounters(dir Direction, q Quote) (counters, error) {
	next := counters{
		outstanding: e.tokensOutstanding,
		sold:        e.tokensSold,
		raised:      e.assetRaised,
		feesOwed:    e.feesOwed,
	}
	var err error
	if dir == Buy {
		if next.outstanding, err = fixedpoint.Add(e.tokensOutstanding, q.AmountOut); err != nil {
			return counters{}, err
		}
		if next.sold, err = fixedpoint.Add(e.tokensSold, q.AmountOut); err != nil {
			return counters{}, err
		}
		if next.raised, err = fixedpoint.Add(e.assetRaised, q.CurveAsset); err != nil {
			return counters{}, err
		}
	} else {
		next.outstanding = fixedpoint.SubFloor(e.tokensOutstanding, q.AmountIn)
	}
	if e.cfg.AccrueFees && !q.Fee.IsZero() {
		if next.feesOwed, err = fixedpoint.Add(e.feesOwed, q.Fee); err != nil {
			return counters{}, err
		}
	}
	return next, nil
}

func (e *Engine) tradeTransfers(trader common.Address, dir Direction, q Quote) []transferStep {
	var steps []transferStep
	if dir == Buy {
		steps = []transferStep{
			{ledger: e.assets, from: trader, to: e.id, amount: q.AmountIn, what: "asset in"},
			{ledger: e.tokens, from: e.id, to: trader, amount: q.AmountOut, what: "token out"},
		}
	} else {
		steps = []transferStep{
			{ledger: e.tokens, from: trader, to: e.id, amount: q.AmountIn, what: "token in"},
			{ledger: e.assets, from: e.id, to: trader, amount: q.AmountOut, what: "asset out"},
		}
	}
	if !e.cfg.AccrueFees && !q.Fee.IsZero() {
		steps = append(steps, transferStep{ledger: e.assets, from: e.id, to: e.fees.Recipient(), amount: q.Fee, what: "fee"})
	}
	return steps
}

type transferStep struct {
	ledger   Ledger
	from, to common.Address
	amount   *uint256.Int
	what     string
}

// transfer runs steps in order. When one fails, the steps already done are
// reversed newest first and ErrTransferFailed is returned.
func (e *Engine) transfer(ctx context.Context, steps []transferStep) error {
	for i, step := range steps {
		if step.amount == nil || step.amount.IsZero() {
			continue
		}
		err := step.ledger.Transfer(ctx, step.from, step.to, step.amount)
		if err == nil {
			continue
		}

		failure := errorsmod.Wrapf(ErrTransferFailed, "%s %s from %s to %s: %v",
			step.what, step.amount, step.from.Hex(), step.to.Hex(), err)

		for j := i - 1; j >= 0; j-- {
			done := steps[j]
			if done.amount == nil || done.amount.IsZero() {
				continue
			}
			if rerr := done.ledger.Transfer(ctx, done.to, done.from, done.amount); rerr != nil {
				e.logger.Error("Failed to reverse transfer",
					zap.String("what", done.what),
					zap.String("amount", done.amount.Dec()),
					zap.Error(rerr))
				return errors.Join(failure, fmt.Errorf("failed to reverse %s: %w", done.what, rerr))
			}
		}
		return failure
	}
	return nil
}

// ClaimFees pays accrued fees to the fee recipient.
func (e *Engine) ClaimFees(ctx context.Context, caller common.Address) (*uint256.Int, error) {
	ctx, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, caller, ActionClaimFees); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	paid, err := e.payFeesLocked(ctx)
	if err != nil {
		return nil, err
	}
	if !paid.IsZero() {
		e.emit(events.CurveFeesClaimed, func(ev *events.CurveEvent) {
			ev.Account = e.fees.Recipient()
			ev.AmountOut = fixedpoint.Clone(paid)
		})
	}
	return paid, nil
}

func (e *Engine) payFeesLocked(ctx context.Context) (*uint256.Int, error) {
	owed := fixedpoint.Clone(e.feesOwed)
	if owed.IsZero() {
		return owed, nil
	}
	if err := e.transfer(ctx, []transferStep{
		{ledger: e.assets, from: e.id, to: e.fees.Recipient(), amount: owed, what: "accrued fees"},
	}); err != nil {
		return nil, err
	}
	e.feesOwed = new(uint256.Int)
	e.seq++
	e.publishLocked()

	e.logger.Info("Accrued fees paid",
		zap.String("recipient", e.fees.Recipient().Hex()),
		zap.String("amount", owed.Dec()))
	return owed, nil
}

// Graduate starts graduation on behalf of an authorized caller, or retries
// a migration that failed earlier. On a graduated curve it returns the
// recorded result.
func (e *Engine) Graduate(ctx context.Context, caller common.Address) (*Graduation, error) {
	ctx, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, caller, ActionGraduate); err != nil {
		return nil, err
	}

	switch e.Status() {
	case StatusUninitialized:
		return nil, errorsmod.Wrap(ErrCurveNotActive, "curve has no liquidity")
	case StatusGraduated:
		return e.graduation.Load(), nil
	case StatusActive:
		e.mu.Lock()
		if e.status.CompareAndSwap(int32(StatusActive), int32(StatusGraduating)) {
			e.seq++
			e.publishLocked()
			e.logger.Info("Graduation forced", zap.String("caller", caller.Hex()))
			e.emit(events.CurveGraduationStarted, func(ev *events.CurveEvent) {
				ev.Account = caller
				ev.ReservesAfter = toEventReserves(e.reserves.Reserves())
			})
		}
		e.mu.Unlock()
	}

	return e.coordinator.migrate(ctx)
}

// Coordinator returns the graduation coordinator of this curve.
func (e *Engine) Coordinator() *Coordinator { return e.coordinator }

func (e *Engine) thresholdReachedLocked() bool {
	return !metricOf(e.cfg.GradMetric, e.tokensSold, e.assetRaised).Lt(e.cfg.GradThreshold)
}

func metricOf(m GraduationMetric, sold, raised *uint256.Int) *uint256.Int {
	if m == MetricAssetRaised {
		return raised
	}
	return sold
}

// publishLocked replaces the read snapshot. Caller holds e.mu, or is the
// constructor.
func (e *Engine) publishLocked() {
	s := &Snapshot{
		Status:            e.Status(),
		Reserves:          Reserves{Token: new(uint256.Int), Asset: new(uint256.Int)},
		KLast:             new(uint256.Int),
		TokensOutstanding: fixedpoint.Clone(e.tokensOutstanding),
		TokensSold:        fixedpoint.Clone(e.tokensSold),
		AssetRaised:       fixedpoint.Clone(e.assetRaised),
		FeesOwed:          fixedpoint.Clone(e.feesOwed),
		Sequence:          e.seq,
	}
	if e.reserves != nil {
		s.Reserves = e.reserves.Reserves()
		s.KLast = e.reserves.K()
	}
	e.snap.Store(s)
}

func (e *Engine) emit(typ events.EventType, fill func(ev *events.CurveEvent)) {
	ev := &events.CurveEvent{
		BaseEvent: events.NewBaseEvent(typ, e.now()),
		CurveID:   e.id,
		Sequence:  e.seq,
		Status:    e.Status().String(),
	}
	fill(ev)
	if err := e.sink.Publish(ev); err != nil {
		e.logger.Warn("Failed to publish curve event",
			zap.String("event_type", string(typ)),
			zap.Error(err))
	}
}

func toEventReserves(r Reserves) events.Reserves {
	return events.Reserves{Token: r.Token, Asset: r.Asset}
}

// spotPrice is asset per token scaled by WAD.
func spotPrice(r Reserves) (*uint256.Int, error) {
	return fixedpoint.MulDiv(r.Asset, fixedpoint.WAD, r.Token)
}
