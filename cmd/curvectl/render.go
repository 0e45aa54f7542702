package main

import (
	"fmt"
	"strconv"

	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/vcurve/internal/curve"
	"github.com/rovshanmuradov/vcurve/internal/deploy"
	"github.com/rovshanmuradov/vcurve/internal/export"
	"github.com/rovshanmuradov/vcurve/internal/fixedpoint"
	"github.com/rovshanmuradov/vcurve/internal/style"
)

// units formats base units for display; nil reads as "-".
func units(x *uint256.Int, decimals int32) string {
	if x == nil {
		return "-"
	}
	return fixedpoint.FormatUnits(x, decimals)
}

func price(x *uint256.Int) string { return units(x, 18) }

func progress(bps uint64) string {
	return strconv.FormatFloat(float64(bps)/100, 'f', 2, 64) + "%"
}

func renderDeployment(info *export.DeploymentInfo) string {
	contracts := style.Section("Deployment ("+info.Network+")",
		style.KV("Owner", info.Owner),
		style.KV("Token", fmt.Sprintf("%s (%s)", info.Token, info.TokenSymbol)),
		style.KV("Asset", fmt.Sprintf("%s (%s, %s)", info.Asset, info.AssetSymbol, info.AssetKind)),
		style.KV("Curve", info.Curve),
		style.KV("Pool factory", info.PoolFactory),
		style.Styled("Status", info.Status, style.StatusStyle(info.Status)),
	)

	p := info.Parameters
	params := style.Section("Parameters",
		style.KV("Initial liquidity", fmt.Sprintf("%s %s / %s %s",
			info.InitialLiquidity.Asset, info.AssetSymbol, info.InitialLiquidity.Token, info.TokenSymbol)),
		style.KV("Supply cap", p.SupplyCap),
		style.KV("Threshold", fmt.Sprintf("%s (%s)", p.GradThreshold, p.GradMetric)),
		style.KV("Asset rate", strconv.FormatUint(p.AssetRate, 10)),
		style.KV("Max tx", p.MaxTx),
		style.KV("Fees (bps)", fmt.Sprintf("buy %d / sell %d", p.BuyFeeBps, p.SellFeeBps)),
		style.KV("Fee recipient", p.FeeRecipient),
	)

	s := info.State
	met := style.WarningStyle
	if s.ThresholdMet {
		met = style.SuccessStyle
	}
	state := style.Section("State",
		style.KV("Current price", s.CurrentPrice),
		style.KV("External price", s.ExternalPrice),
		style.KV("Reserves", fmt.Sprintf("%s %s / %s %s", s.ReserveToken, info.TokenSymbol, s.ReserveAsset, info.AssetSymbol)),
		style.KV("k", s.KLast),
		style.Styled("Progress", progress(s.Progress), met),
	)
	return style.Report(contracts, params, state)
}

func renderSmoke(r *deploy.SmokeReport, td, ad int32, buyTokens, sellTokens string) string {
	rows := []style.Row{
		style.KV("Buyer", r.Buyer.Hex()),
		style.Styled("Bought", units(r.Buy.AmountOut, td)+" for "+units(r.Buy.AmountIn, ad), style.BuyStyle),
		style.KV("Fee", units(r.Buy.Fee, ad)),
	}
	if r.CurrentPrice != nil {
		rows = append(rows,
			style.KV("Current price", price(r.CurrentPrice)),
			style.KV("Cost of "+buyTokens, units(r.BuyCost, ad)),
			style.Styled("Return for "+sellTokens, units(r.SellReturn, ad), style.SellStyle),
		)
	}
	met := style.WarningStyle
	if r.ThresholdMet {
		met = style.SuccessStyle
	}
	rows = append(rows, style.Styled("Threshold", fmt.Sprintf("%t (%s)", r.ThresholdMet, progress(r.Progress)), met))
	return style.Section("Smoke test", rows...)
}

func renderQuote(q curve.Quote, td, ad int32) string {
	in, out := units(q.AmountIn, ad), units(q.AmountOut, td)
	s := style.BuyStyle
	if q.Direction == curve.Sell {
		in, out = units(q.AmountIn, td), units(q.AmountOut, ad)
		s = style.SellStyle
	}
	return style.Section("Quote ("+q.Direction.String()+")",
		style.KV("Amount in", in),
		style.Styled("Amount out", out, s),
		style.KV("Fee", units(q.Fee, ad)),
		style.KV("Curve asset", units(q.CurveAsset, ad)),
	)
}

func renderGraduation(g *curve.Graduation, td, ad int32) string {
	return style.Section("Graduation",
		style.KV("Pool", g.Pool.ID),
		style.KV("Position", string(g.Position)),
		style.KV("Token migrated", units(g.TokenAmount, td)),
		style.KV("Asset migrated", units(g.AssetAmount, ad)),
		style.KV("Fees paid", units(g.FeesPaid, ad)),
		style.KV("Completed", g.CompletedAt.Format("2006-01-02 15:04:05")),
	)
}

func renderSimulation(r *deploy.SimulationReport, td, ad int32) string {
	rows := []style.Row{
		style.Styled("Buys", strconv.FormatUint(r.Buys, 10), style.BuyStyle),
		style.Styled("Sells", strconv.FormatUint(r.Sells, 10), style.SellStyle),
		style.KV("Rejected", strconv.FormatUint(r.Rejected, 10)),
		style.Styled("Status", r.Status.String(), style.StatusStyle(r.Status.String())),
		style.KV("Tokens sold", units(r.Snapshot.TokensSold, td)),
		style.KV("Asset raised", units(r.Snapshot.AssetRaised, ad)),
		style.KV("Events", strconv.FormatUint(r.Snapshot.Sequence, 10)),
	}
	if r.FinalPrice != nil {
		rows = append(rows, style.KV("Final price", price(r.FinalPrice)))
	}
	if r.MigrationErr != nil {
		rows = append(rows, style.Styled("Migration", r.MigrationErr.Error(), style.ErrorStyle))
	}
	return style.Section("Simulation", rows...)
}
