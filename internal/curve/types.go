// internal/curve/types.go
package curve

import (
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/vcurve/internal/fixedpoint"
)

// Status is the curve lifecycle. It only moves forward.
type Status int32

const (
	StatusUninitialized Status = iota
	StatusActive
	StatusGraduating
	StatusGraduated
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusActive:
		return "active"
	case StatusGraduating:
		return "graduating"
	case StatusGraduated:
		return "graduated"
	default:
		return "unknown"
	}
}

// AssetKind selects what funds buys.
type AssetKind int

const (
	// AssetNative is the chain's base currency (BondingCurve variant).
	AssetNative AssetKind = iota
	// AssetERC20 is a designated fungible asset such as WETH (VirtualBondingCurve variant).
	AssetERC20
)

func (k AssetKind) String() string {
	if k == AssetERC20 {
		return "erc20"
	}
	return "native"
}

// NativeAsset identifies the base currency on a ledger.
var NativeAsset = common.Address{}

// Direction of a trade relative to the curve's token.
type Direction int

const (
	Buy Direction = iota
	Sell
)

func (d Direction) String() string {
	if d == Sell {
		return "sell"
	}
	return "buy"
}

// GraduationMetric selects which cumulative counter is compared to GradThreshold.
type GraduationMetric int

const (
	// MetricTokensSold counts every token bought from the curve.
	MetricTokensSold GraduationMetric = iota
	// MetricAssetRaised counts net asset (after buy fees) paid into the curve.
	MetricAssetRaised
)

func (m GraduationMetric) String() string {
	if m == MetricAssetRaised {
		return "asset_raised"
	}
	return "tokens_sold"
}

// AssetRateDenominator makes an assetRate of 1000 a 1:1 valuation.
const AssetRateDenominator = 1000

// Config is fixed at construction.
type Config struct {
	Token     common.Address
	Asset     common.Address
	AssetKind AssetKind

	TokenSupplyCap *uint256.Int
	AssetRate      uint64
	GradThreshold  *uint256.Int
	GradMetric     GraduationMetric
	MaxTx          *uint256.Int

	BuyFeeBps    uint64
	SellFeeBps   uint64
	FeeRecipient common.Address
	Owner        common.Address

	// VirtualAssetOffset and VirtualTokenOffset are baseline reserves that are
	// not backed by deposits; they flatten the early price curve.
	VirtualAssetOffset *uint256.Int
	VirtualTokenOffset *uint256.Int

	// AccrueFees keeps fees on the curve until ClaimFees or graduation
	// instead of paying FeeRecipient on every trade.
	AccrueFees bool
}

// Validate checks construction-time invariants.
func (c Config) Validate() error {
	if c.TokenSupplyCap == nil || c.TokenSupplyCap.IsZero() {
		return errorsmod.Wrap(ErrInvalidConfig, "token supply cap must be positive")
	}
	if c.GradThreshold == nil || c.GradThreshold.IsZero() {
		return errorsmod.Wrap(ErrInvalidConfig, "graduation threshold must be positive")
	}
	if c.MaxTx == nil || c.MaxTx.IsZero() {
		return errorsmod.Wrap(ErrInvalidConfig, "max tx must be positive")
	}
	if c.AssetRate == 0 {
		return errorsmod.Wrap(ErrInvalidConfig, "asset rate must be positive")
	}
	if c.Token == (common.Address{}) {
		return errorsmod.Wrap(ErrInvalidConfig, "token address is required")
	}
	if c.AssetKind == AssetNative && c.Asset != NativeAsset {
		return errorsmod.Wrap(ErrInvalidConfig, "native curves must not name an asset token")
	}
	if c.AssetKind == AssetERC20 && c.Asset == NativeAsset {
		return errorsmod.Wrap(ErrInvalidConfig, "erc20 curves need an asset token")
	}
	if c.Owner == (common.Address{}) {
		return errorsmod.Wrap(ErrInvalidConfig, "owner is required")
	}
	if c.FeeRecipient == (common.Address{}) && (c.BuyFeeBps > 0 || c.SellFeeBps > 0) {
		return errorsmod.Wrap(ErrInvalidConfig, "fee recipient is required when fees are set")
	}
	if _, err := fixedpoint.NewBps(c.BuyFeeBps); err != nil {
		return errorsmod.Wrap(err, "buy fee")
	}
	if _, err := fixedpoint.NewBps(c.SellFeeBps); err != nil {
		return errorsmod.Wrap(err, "sell fee")
	}
	return nil
}

// Reserves is one view of both virtual reserves.
type Reserves struct {
	Token *uint256.Int
	Asset *uint256.Int
}

func (r Reserves) clone() Reserves {
	return Reserves{Token: fixedpoint.Clone(r.Token), Asset: fixedpoint.Clone(r.Asset)}
}

// Snapshot is an immutable, internally consistent copy of curve state.
type Snapshot struct {
	Status            Status
	Reserves          Reserves
	KLast             *uint256.Int
	TokensOutstanding *uint256.Int
	TokensSold        *uint256.Int
	AssetRaised       *uint256.Int
	FeesOwed          *uint256.Int
	Sequence          uint64
}

// Quote previews a trade exactly as execution would perform it.
type Quote struct {
	Direction Direction
	// AmountIn is what the trader pays (asset for buys, token for sells).
	AmountIn *uint256.Int
	// AmountOut is what the trader receives, fees already deducted.
	AmountOut *uint256.Int
	Fee       *uint256.Int
	// CurveAsset is the asset amount crossing the constant product:
	// net asset in for buys, gross asset out for sells.
	CurveAsset *uint256.Int
}

// TradeResult is returned by BuyTokens and SellTokens.
type TradeResult struct {
	Quote
	Trader         common.Address
	ReservesBefore Reserves
	ReservesAfter  Reserves
	Price          *uint256.Int
	Timestamp      time.Time

	// GraduationTriggered is set when this trade flipped the curve to Graduating.
	GraduationTriggered bool
	Graduation          *Graduation
	// GraduationErr holds a migration failure; the trade itself succeeded.
	GraduationErr error
}

// Graduation records a completed migration.
type Graduation struct {
	Pool        PoolHandle
	Position    PositionID
	TokenAmount *uint256.Int
	AssetAmount *uint256.Int
	FeesPaid    *uint256.Int
	CompletedAt time.Time
}
