// internal/deploy/deploy.go
package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/vcurve/internal/curve"
	"github.com/rovshanmuradov/vcurve/internal/export"
	"github.com/rovshanmuradov/vcurve/internal/fixedpoint"
)

// Deploy mints the initial supply and asset to the owner and seeds the
// curve with the configured initial liquidity.
func (s *Service) Deploy(ctx context.Context) (*export.DeploymentInfo, error) {
	assetAmount, tokenAmount, err := s.cfg.InitialAmounts()
	if err != nil {
		return nil, err
	}
	owner := s.params.Owner

	if st := s.engine.Status(); st != curve.StatusUninitialized {
		return nil, fmt.Errorf("curve is %s: %w", st, curve.ErrAlreadyInitialized)
	}
	if err := s.tokens.Mint(owner, tokenAmount); err != nil {
		return nil, fmt.Errorf("failed to mint initial token supply: %w", err)
	}
	if err := s.assets.Mint(owner, assetAmount); err != nil {
		return nil, fmt.Errorf("failed to fund owner: %w", err)
	}

	if err := s.engine.AddInitialLiquidity(ctx, owner, assetAmount, tokenAmount); err != nil {
		return nil, fmt.Errorf("failed to add initial liquidity: %w", err)
	}

	info := s.Info()
	s.logger.Info("Curve deployed",
		zap.String("curve_id", info.Curve),
		zap.String("current_price", info.State.CurrentPrice),
		zap.String("reserve_token", info.State.ReserveToken),
		zap.String("reserve_asset", info.State.ReserveAsset))
	return info, nil
}

// Info describes the curve as it is now.
func (s *Service) Info() *export.DeploymentInfo {
	e := s.engine
	p := s.params
	td, ad := s.cfg.Curve.TokenDecimals, s.cfg.Curve.AssetDecimals
	assetAmount, tokenAmount, _ := s.cfg.InitialAmounts()

	info := &export.DeploymentInfo{
		Network:     s.cfg.Network,
		DeployedAt:  time.Now().UTC(),
		Owner:       p.Owner.Hex(),
		Token:       p.Token.Hex(),
		TokenSymbol: s.tokens.Symbol(),
		Asset:       p.Asset.Hex(),
		AssetSymbol: s.assets.Symbol(),
		AssetKind:   p.AssetKind.String(),
		Curve:       e.ID().Hex(),
		PoolFactory: s.exchange.Factory().Hex(),
		Status:      e.Status().String(),
	}
	info.InitialLiquidity.Asset = fixedpoint.FormatUnits(assetAmount, ad)
	info.InitialLiquidity.Token = fixedpoint.FormatUnits(tokenAmount, td)

	thresholdDecimals := ad
	if p.GradMetric == curve.MetricTokensSold {
		thresholdDecimals = td
	}
	info.Parameters.SupplyCap = fixedpoint.FormatUnits(p.TokenSupplyCap, td)
	info.Parameters.GradThreshold = fixedpoint.FormatUnits(e.GetThreshold(), thresholdDecimals)
	info.Parameters.GradMetric = p.GradMetric.String()
	info.Parameters.AssetRate = e.AssetRate()
	info.Parameters.MaxTx = fixedpoint.FormatUnits(e.MaxTx(), td)
	info.Parameters.BuyFeeBps = e.BuyFeeBps()
	info.Parameters.SellFeeBps = e.SellFeeBps()
	info.Parameters.FeeRecipient = p.FeeRecipient.Hex()

	token, asset := e.GetReserves()
	info.State.ReserveToken = fixedpoint.FormatUnits(token, td)
	info.State.ReserveAsset = fixedpoint.FormatUnits(asset, ad)
	info.State.KLast = e.GetKLast().Dec()
	info.State.CurrentPrice = formatPrice(e.CurrentPrice())
	info.State.ExternalPrice = formatPrice(e.ExternalPrice())
	info.State.Progress = e.GraduationProgress()
	info.State.ThresholdMet = e.CheckThreshold()
	return info
}

// formatPrice renders a 1e18-scaled price; an unavailable price reads as 0.
func formatPrice(p *uint256.Int, err error) string {
	if err != nil {
		return "0"
	}
	return fixedpoint.FormatUnits(p, 18)
}

// SmokeReport is the outcome of SmokeTest.
type SmokeReport struct {
	Buyer        common.Address
	Buy          *curve.TradeResult
	CurrentPrice *uint256.Int
	BuyCost      *uint256.Int
	SellReturn   *uint256.Int
	ThresholdMet bool
	Progress     uint64
}

// SmokeTest runs the post-deploy checks: one buy, then the price readings
// for buying buyTokens and selling sellTokens, then the threshold.
func (s *Service) SmokeTest(ctx context.Context, buyer common.Address, assetIn, buyTokens, sellTokens *uint256.Int) (*SmokeReport, error) {
	res, err := s.engine.BuyTokens(ctx, buyer, assetIn, nil)
	if err != nil {
		return nil, fmt.Errorf("smoke buy failed: %w", err)
	}

	report := &SmokeReport{
		Buyer:        buyer,
		Buy:          res,
		ThresholdMet: s.engine.CheckThreshold(),
		Progress:     s.engine.GraduationProgress(),
	}
	if res.Graduation != nil || s.engine.Status() != curve.StatusActive {
		// Trading closed on this buy; the price readings no longer apply.
		return report, nil
	}

	if report.CurrentPrice, err = s.engine.CurrentPrice(); err != nil {
		return nil, fmt.Errorf("failed to read current price: %w", err)
	}
	if report.BuyCost, err = s.engine.BuyPrice(buyTokens); err != nil {
		return nil, fmt.Errorf("failed to read buy price: %w", err)
	}
	if report.SellReturn, err = s.engine.SellPrice(sellTokens); err != nil {
		return nil, fmt.Errorf("failed to read sell price: %w", err)
	}

	s.logger.Info("Smoke test passed",
		zap.String("buyer", buyer.Hex()),
		zap.String("token_out", res.AmountOut.Dec()),
		zap.String("current_price", report.CurrentPrice.Dec()),
		zap.Bool("threshold_met", report.ThresholdMet))
	return report, nil
}
