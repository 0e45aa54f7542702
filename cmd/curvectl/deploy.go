package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/vcurve/internal/export"
)

func newDeployCmd(a *app) *cobra.Command {
	var (
		smoke      bool
		buyer      string
		assetIn    string
		buyTokens  string
		sellTokens string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the curve, seed initial liquidity and run the smoke test",
		Long: `Deploy the token, asset and curve on the local network, add the initial
liquidity, run one smoke trade and write the deployment info JSON into
the export directory.

Example:
  $ curvectl deploy -c configs/curve.yaml --buyer alice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.openService(ctx, serviceOptions{journal: true})
			if err != nil {
				return err
			}
			defer closeService(svc, a.log.Logger)

			out := cmd.OutOrStdout()
			td, ad := a.cfg.Curve.TokenDecimals, a.cfg.Curve.AssetDecimals

			if smoke {
				addr, err := svc.Account(buyer)
				if err != nil {
					return err
				}
				amounts, err := parseAmounts(a.cfg.AssetAmount, assetIn)
				if err != nil {
					return err
				}
				tokens, err := parseAmounts(a.cfg.TokenAmount, buyTokens, sellTokens)
				if err != nil {
					return err
				}
				report, err := svc.SmokeTest(ctx, addr, amounts[0], tokens[0], tokens[1])
				if err != nil {
					return err
				}
				fmt.Fprint(out, renderSmoke(report, td, ad, buyTokens, sellTokens))
			}

			info := svc.Info()
			path, err := export.WriteDeploymentInfo(info, a.cfg.Export.Dir)
			if err != nil {
				return err
			}
			a.log.Info("Deployment info written", zap.String("path", path))

			fmt.Fprint(out, renderDeployment(info))
			return nil
		},
	}

	cmd.Flags().BoolVar(&smoke, "smoke", true, "run the post-deploy smoke test")
	cmd.Flags().StringVar(&buyer, "buyer", "alice", "account that makes the smoke buy")
	cmd.Flags().StringVar(&assetIn, "asset-in", "1", "asset spent by the smoke buy")
	cmd.Flags().StringVar(&buyTokens, "buy-tokens", "100", "token amount priced for buying")
	cmd.Flags().StringVar(&sellTokens, "sell-tokens", "10", "token amount priced for selling")
	return cmd
}
