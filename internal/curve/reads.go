// internal/curve/reads.go
package curve

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/vcurve/internal/fixedpoint"
)

// Read-only accessors. None of them take the trade lock; each works on one
// published Snapshot so the two reserves are never torn.

func (e *Engine) ID() common.Address { return e.id }

// Config returns the construction-time configuration.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Fees() FeePolicy { return e.fees }

func (e *Engine) Status() Status { return Status(e.status.Load()) }

// Snapshot returns the last published state.
func (e *Engine) Snapshot() Snapshot {
	s := *e.snap.Load()
	s.Status = e.Status()
	s.Reserves = s.Reserves.clone()
	s.KLast = fixedpoint.Clone(s.KLast)
	s.TokensOutstanding = fixedpoint.Clone(s.TokensOutstanding)
	s.TokensSold = fixedpoint.Clone(s.TokensSold)
	s.AssetRaised = fixedpoint.Clone(s.AssetRaised)
	s.FeesOwed = fixedpoint.Clone(s.FeesOwed)
	return s
}

// Graduation returns the migration record, or nil before graduation.
func (e *Engine) Graduation() *Graduation { return e.graduation.Load() }

// GetReserves returns the virtual token and asset reserves.
func (e *Engine) GetReserves() (token, asset *uint256.Int) {
	r := e.snap.Load().Reserves
	return fixedpoint.Clone(r.Token), fixedpoint.Clone(r.Asset)
}

func (e *Engine) GetKLast() *uint256.Int { return fixedpoint.Clone(e.snap.Load().KLast) }

func (e *Engine) GetThreshold() *uint256.Int { return fixedpoint.Clone(e.cfg.GradThreshold) }

func (e *Engine) AssetRate() uint64 { return e.cfg.AssetRate }

func (e *Engine) MaxTx() *uint256.Int { return fixedpoint.Clone(e.cfg.MaxTx) }

func (e *Engine) BuyFeeBps() uint64 { return e.fees.BuyBps() }

func (e *Engine) SellFeeBps() uint64 { return e.fees.SellBps() }

// CurrentPrice is the marginal price, asset per token scaled by 1e18.
// It fails with ErrDivisionByZero before initial liquidity.
func (e *Engine) CurrentPrice() (*uint256.Int, error) {
	return spotPrice(e.snap.Load().Reserves)
}

// ExternalPrice is CurrentPrice valued through assetRate, where an assetRate
// of AssetRateDenominator means one asset unit is one unit of account.
func (e *Engine) ExternalPrice() (*uint256.Int, error) {
	price, err := e.CurrentPrice()
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(price, uint256.NewInt(e.cfg.AssetRate), uint256.NewInt(AssetRateDenominator))
}

func (e *Engine) readPair() (*ReservePair, *Snapshot, error) {
	s := e.snap.Load()
	if s.Reserves.Token.IsZero() || s.Reserves.Asset.IsZero() {
		return nil, nil, errorsmod.Wrap(ErrDivisionByZero, "curve has no reserves")
	}
	return pairFromSnapshot(s.Reserves, s.KLast), s, nil
}

// BuyPrice is the asset that must enter the curve to release exactly
// tokenAmount tokens. The buy fee is not included.
func (e *Engine) BuyPrice(tokenAmount *uint256.Int) (*uint256.Int, error) {
	pair, _, err := e.readPair()
	if err != nil {
		return nil, err
	}
	return pair.QuoteBuyExactOut(tokenAmount)
}

// SellPrice is the gross asset released for tokenAmount tokens. The sell fee
// is not deducted.
func (e *Engine) SellPrice(tokenAmount *uint256.Int) (*uint256.Int, error) {
	pair, _, err := e.readPair()
	if err != nil {
		return nil, err
	}
	return pair.QuoteSell(tokenAmount)
}

// QuoteBuy previews BuyTokens: the same fee split, caps and rounding
// against the current snapshot.
func (e *Engine) QuoteBuy(assetIn *uint256.Int) (Quote, error) {
	return e.previewTrade(Buy, assetIn)
}

// QuoteSell previews SellTokens.
func (e *Engine) QuoteSell(tokenIn *uint256.Int) (Quote, error) {
	return e.previewTrade(Sell, tokenIn)
}

func (e *Engine) previewTrade(dir Direction, amountIn *uint256.Int) (Quote, error) {
	if st := e.Status(); st != StatusActive {
		return Quote{}, errorsmod.Wrapf(ErrCurveNotActive, "curve is %s", st)
	}
	pair, s, err := e.readPair()
	if err != nil {
		return Quote{}, err
	}
	return e.quote(pair, s.TokensSold, dir, amountIn)
}

// CheckThreshold reports whether the graduation metric has reached the
// threshold. Once true it stays true.
func (e *Engine) CheckThreshold() bool {
	s := e.snap.Load()
	return !metricOf(e.cfg.GradMetric, s.TokensSold, s.AssetRaised).Lt(e.cfg.GradThreshold)
}

// GraduationProgress is metric/threshold in basis points, capped at 10000.
func (e *Engine) GraduationProgress() uint64 {
	s := e.snap.Load()
	metric := metricOf(e.cfg.GradMetric, s.TokensSold, s.AssetRaised)
	if !metric.Lt(e.cfg.GradThreshold) {
		return fixedpoint.BpsDenominator
	}
	bps, err := fixedpoint.MulDiv(metric, uint256.NewInt(fixedpoint.BpsDenominator), e.cfg.GradThreshold)
	if err != nil {
		return 0
	}
	return bps.Uint64()
}
