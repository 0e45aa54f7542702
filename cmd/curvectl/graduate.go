package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/vcurve/internal/curve"
	"github.com/rovshanmuradov/vcurve/internal/export"
	"github.com/rovshanmuradov/vcurve/internal/style"
)

func newGraduateCmd(a *app) *cobra.Command {
	var (
		caller     string
		buyer      string
		assetIn    string
		failCreate int
		failAdd    int
	)

	cmd := &cobra.Command{
		Use:   "graduate",
		Short: "Deploy, optionally buy, then migrate the curve to the external exchange",
		Long: `Deploy the curve, make an optional buy and force graduation as --caller.
--fail-create and --fail-add make the local exchange fail its next calls,
to rehearse the retry path. A migration that still fails leaves the curve
Graduating and is retried once more as --caller.

Example:
  $ curvectl graduate --buyer alice --asset-in 5 --caller ops --fail-add 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.openService(ctx, serviceOptions{
				journal: true,
				poolFailures: map[string]int{
					"create_pool":   failCreate,
					"add_liquidity": failAdd,
				},
			})
			if err != nil {
				return err
			}
			defer closeService(svc, a.log.Logger)

			e := svc.Engine()
			out := cmd.OutOrStdout()
			td, ad := a.cfg.Curve.TokenDecimals, a.cfg.Curve.AssetDecimals

			if assetIn != "" {
				who, err := svc.Account(buyer)
				if err != nil {
					return err
				}
				amount, err := a.cfg.AssetAmount(assetIn)
				if err != nil {
					return err
				}
				res, err := e.BuyTokens(ctx, who, amount, nil)
				if err != nil {
					return err
				}
				fmt.Fprint(out, style.Section("Buy",
					style.KV("Buyer", who.Hex()),
					style.Styled("Bought", units(res.AmountOut, td), style.BuyStyle),
					style.KV("Graduation triggered", fmt.Sprint(res.GraduationTriggered)),
				))
			}

			who, err := svc.Account(caller)
			if err != nil {
				return err
			}
			g, err := e.Graduate(ctx, who)
			if curve.IsRetriable(err) {
				a.log.Warn("Migration failed, retrying once", zap.Error(err))
				g, err = e.Graduate(ctx, who)
			}
			if err != nil {
				return err
			}

			if _, err := export.WriteDeploymentInfo(svc.Info(), a.cfg.Export.Dir); err != nil {
				return err
			}
			fmt.Fprint(out, renderGraduation(g, td, ad))
			fmt.Fprint(out, style.Section("Exchange",
				style.KV("create_pool calls", fmt.Sprint(svc.Exchange().Calls("create_pool"))),
				style.KV("add_liquidity calls", fmt.Sprint(svc.Exchange().Calls("add_liquidity"))),
				style.KV("Attempts", fmt.Sprint(e.Coordinator().Attempts())),
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&caller, "caller", "owner", "account that requests graduation")
	cmd.Flags().StringVar(&buyer, "buyer", "alice", "account for the optional buy")
	cmd.Flags().StringVar(&assetIn, "asset-in", "", "asset spent before graduating (skip when empty)")
	cmd.Flags().IntVar(&failCreate, "fail-create", 0, "fail the next n pool creations")
	cmd.Flags().IntVar(&failAdd, "fail-add", 0, "fail the next n liquidity deposits")
	return cmd
}
