// internal/curve/reserves.go
package curve

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/vcurve/internal/fixedpoint"
)

// ReservePair holds the virtual reserves of one curve and the cached
// product k. Quotes are pure; only Commit mutates.
//
// A ReservePair is not safe for concurrent use. The engine guards it with
// its trade lock.
type ReservePair struct {
	token *uint256.Int
	asset *uint256.Int
	k     *uint256.Int
}

// NewReservePair seeds both sides. Both must be positive.
func NewReservePair(token, asset *uint256.Int) (*ReservePair, error) {
	if token == nil || token.IsZero() || asset == nil || asset.IsZero() {
		return nil, errorsmod.Wrap(ErrInvalidAmount, "reserves must be positive")
	}
	k, err := fixedpoint.Mul(token, asset)
	if err != nil {
		return nil, err
	}
	return &ReservePair{
		token: fixedpoint.Clone(token),
		asset: fixedpoint.Clone(asset),
		k:     k,
	}, nil
}

func pairFromSnapshot(r Reserves, k *uint256.Int) *ReservePair {
	return &ReservePair{token: r.Token, asset: r.Asset, k: k}
}

// Reserves returns a copy of both sides.
func (p *ReservePair) Reserves() Reserves {
	return Reserves{Token: fixedpoint.Clone(p.token), Asset: fixedpoint.Clone(p.asset)}
}

// K returns a copy of the cached product.
func (p *ReservePair) K() *uint256.Int {
	return fixedpoint.Clone(p.k)
}

// QuoteBuy returns the tokens released for assetIn entering the curve.
// supplyRemaining bounds the output; nil means unbounded.
//
// The new token reserve is ceil(k / (asset + assetIn)), so the remainder of
// the division stays in the pool.
func (p *ReservePair) QuoteBuy(assetIn, supplyRemaining *uint256.Int) (*uint256.Int, error) {
	if assetIn == nil || assetIn.IsZero() {
		return nil, errorsmod.Wrap(ErrInvalidAmount, "asset in must be positive")
	}
	newAsset, err := fixedpoint.Add(p.asset, assetIn)
	if err != nil {
		return nil, err
	}
	newToken, err := fixedpoint.DivUp(p.k, newAsset)
	if err != nil {
		return nil, err
	}
	if newToken.Gt(p.token) {
		return nil, errorsmod.Wrapf(ErrInvariantViolation, "token reserve would grow on buy: %s > %s", newToken, p.token)
	}

	tokenOut := new(uint256.Int).Sub(p.token, newToken)
	if tokenOut.IsZero() {
		return nil, errorsmod.Wrapf(ErrInvalidAmount, "asset in %s buys no tokens", assetIn)
	}
	if !tokenOut.Lt(p.token) {
		return nil, errorsmod.Wrapf(ErrInsufficientLiquidity, "token out %s drains reserve %s", tokenOut, p.token)
	}
	if supplyRemaining != nil && tokenOut.Gt(supplyRemaining) {
		return nil, errorsmod.Wrapf(ErrInsufficientLiquidity, "token out %s exceeds remaining supply %s", tokenOut, supplyRemaining)
	}
	return tokenOut, nil
}

// QuoteBuyExactOut returns the asset that must enter the curve to release
// exactly tokenOut.
func (p *ReservePair) QuoteBuyExactOut(tokenOut *uint256.Int) (*uint256.Int, error) {
	if tokenOut == nil || tokenOut.IsZero() {
		return nil, errorsmod.Wrap(ErrInvalidAmount, "token amount must be positive")
	}
	if !tokenOut.Lt(p.token) {
		return nil, errorsmod.Wrapf(ErrInsufficientLiquidity, "token amount %s drains reserve %s", tokenOut, p.token)
	}
	newToken := new(uint256.Int).Sub(p.token, tokenOut)
	newAsset, err := fixedpoint.DivUp(p.k, newToken)
	if err != nil {
		return nil, err
	}
	return fixedpoint.SubFloor(newAsset, p.asset), nil
}

// QuoteSell returns the gross asset released for tokenIn, before fees.
func (p *ReservePair) QuoteSell(tokenIn *uint256.Int) (*uint256.Int, error) {
	if tokenIn == nil || tokenIn.IsZero() {
		return nil, errorsmod.Wrap(ErrInvalidAmount, "token in must be positive")
	}
	newToken, err := fixedpoint.Add(p.token, tokenIn)
	if err != nil {
		return nil, err
	}
	newAsset, err := fixedpoint.DivUp(p.k, newToken)
	if err != nil {
		return nil, err
	}
	if newAsset.Gt(p.asset) {
		return nil, errorsmod.Wrapf(ErrInvariantViolation, "asset reserve would grow on sell: %s > %s", newAsset, p.asset)
	}

	assetOut := new(uint256.Int).Sub(p.asset, newAsset)
	if assetOut.IsZero() {
		return nil, errorsmod.Wrapf(ErrInvalidAmount, "token in %s returns no asset", tokenIn)
	}
	if !assetOut.Lt(p.asset) {
		return nil, errorsmod.Wrapf(ErrInsufficientLiquidity, "asset out %s drains reserve %s", assetOut, p.asset)
	}
	return assetOut, nil
}

// Commit applies an accepted quote. For a buy tokenDelta leaves the pool and
// assetDelta enters it; a sell is the reverse. The new product must not be
// below the previous k, otherwise nothing changes and ErrInvariantViolation
// is returned.
func (p *ReservePair) Commit(tokenDelta, assetDelta *uint256.Int, dir Direction) error {
	var newToken, newAsset *uint256.Int
	var err error

	switch dir {
	case Buy:
		if !tokenDelta.Lt(p.token) {
			return errorsmod.Wrapf(ErrInvariantViolation, "buy removes %s of %s tokens", tokenDelta, p.token)
		}
		newToken = new(uint256.Int).Sub(p.token, tokenDelta)
		if newAsset, err = fixedpoint.Add(p.asset, assetDelta); err != nil {
			return err
		}
	case Sell:
		if !assetDelta.Lt(p.asset) {
			return errorsmod.Wrapf(ErrInvariantViolation, "sell removes %s of %s asset", assetDelta, p.asset)
		}
		newAsset = new(uint256.Int).Sub(p.asset, assetDelta)
		if newToken, err = fixedpoint.Add(p.token, tokenDelta); err != nil {
			return err
		}
	default:
		return errorsmod.Wrapf(ErrInvariantViolation, "unknown direction %d", dir)
	}

	k, err := fixedpoint.Mul(newToken, newAsset)
	if err != nil {
		return err
	}
	if k.Lt(p.k) {
		return errorsmod.Wrapf(ErrInvariantViolation, "k decreased from %s to %s", p.k, k)
	}

	p.token, p.asset, p.k = newToken, newAsset, k
	return nil
}

// restore puts back reserves saved before a trade that did not complete.
func (p *ReservePair) restore(r Reserves, k *uint256.Int) {
	p.token = fixedpoint.Clone(r.Token)
	p.asset = fixedpoint.Clone(r.Asset)
	p.k = fixedpoint.Clone(k)
}
