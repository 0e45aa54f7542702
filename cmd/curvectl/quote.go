package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/vcurve/internal/curve"
	"github.com/rovshanmuradov/vcurve/internal/style"
)

func newQuoteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote [buy|sell] [amount]",
		Short: "Preview a trade against the freshly deployed curve",
		Long: `Preview a buy (amount is asset in) or a sell (amount is token in) against
the curve right after initial liquidity. Nothing is executed.

Example:
  $ curvectl quote buy 1.5
  $ curvectl quote sell 100`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"buy", "sell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.openService(ctx, serviceOptions{})
			if err != nil {
				return err
			}
			defer closeService(svc, a.log.Logger)

			e := svc.Engine()
			td, ad := a.cfg.Curve.TokenDecimals, a.cfg.Curve.AssetDecimals

			var (
				q      curve.Quote
				market style.Row
			)
			switch args[0] {
			case "buy":
				amount, err := a.cfg.AssetAmount(args[1])
				if err != nil {
					return err
				}
				if q, err = e.QuoteBuy(amount); err != nil {
					return err
				}
				cost, err := e.BuyPrice(q.AmountOut)
				if err != nil {
					return err
				}
				market = style.KV("Cost of "+units(q.AmountOut, td), units(cost, ad))
			case "sell":
				amount, err := a.cfg.TokenAmount(args[1])
				if err != nil {
					return err
				}
				if q, err = e.QuoteSell(amount); err != nil {
					return err
				}
				ret, err := e.SellPrice(amount)
				if err != nil {
					return err
				}
				market = style.KV("Gross return", units(ret, ad))
			default:
				return fmt.Errorf("unknown side %q, want buy or sell", args[0])
			}

			current, err := e.CurrentPrice()
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), style.Report(
				renderQuote(q, td, ad),
				style.Section("Market", style.KV("Current price", price(current)), market),
			))
			return nil
		},
	}
	return cmd
}
