package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/vcurve/internal/deploy"
	"github.com/rovshanmuradov/vcurve/internal/events"
	"github.com/rovshanmuradov/vcurve/internal/export"
	"github.com/rovshanmuradov/vcurve/internal/metrics"
)

func newSimulateCmd(a *app) *cobra.Command {
	var (
		rounds      int
		assetPerBuy string
		sellPercent uint64
		tapePath    string
		hold        bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run every funded account as a concurrent trader until the rounds end or the curve graduates",
		Long: `Deploy the curve and let every account with an asset balance trade on its
own goroutine: each round buys, then sells a share of what it bought.
Events are journaled to storage.path, mirrored to --tape and exposed as
metrics on metrics.listen_addr when metrics.enabled is set.

Example:
  $ curvectl simulate -c configs/curve.yaml --rounds 50 --asset-per-buy 2 --tape exports/tape.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := a.log.Logger

			handlers := map[string]events.Handler{}
			var tape *export.Tape
			if tapePath != "" {
				t, err := export.OpenTape(tapePath, time.Second, log)
				if err != nil {
					return err
				}
				tape = t
				handlers["tape"] = tape
			}

			svc, err := a.openService(ctx, serviceOptions{
				journal:  true,
				metrics:  a.cfg.Metrics.Enabled,
				handlers: handlers,
			})
			if err != nil {
				if tape != nil {
					_ = tape.Close()
				}
				return err
			}

			var srv *http.Server
			if c := svc.Metrics(); c != nil {
				srv = serveMetrics(a.cfg.Metrics.ListenAddr, c, log)
			}

			amount, err := a.cfg.AssetAmount(assetPerBuy)
			if err == nil {
				var report *deploy.SimulationReport
				report, err = svc.Simulate(ctx, deploy.SimulateOptions{
					Traders:     svc.Traders(ctx),
					Rounds:      rounds,
					AssetPerBuy: amount,
					SellPercent: sellPercent,
				})
				if err == nil {
					td, ad := a.cfg.Curve.TokenDecimals, a.cfg.Curve.AssetDecimals
					fmt.Fprint(cmd.OutOrStdout(), renderSimulation(report, td, ad))
					if report.Graduation != nil {
						fmt.Fprint(cmd.OutOrStdout(), renderGraduation(report.Graduation, td, ad))
					}
					log.Debug("Event bus", zap.Any("stats", svc.Bus().Stats()))
				}
			}

			if err == nil && hold && srv != nil {
				log.Info("Serving metrics until interrupted", zap.String("addr", srv.Addr))
				<-ctx.Done()
			}

			// The bus drains into the tape and the journal before they close.
			closeService(svc, log)
			if tape != nil {
				if cerr := tape.Close(); cerr != nil {
					log.Warn("Tape not closed cleanly", zap.Error(cerr))
				} else {
					log.Info("Tape written", zap.String("path", tapePath), zap.Uint64("records", tape.Records()))
				}
			}
			if srv != nil {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(sctx)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&rounds, "rounds", 10, "buy/sell rounds per trader")
	cmd.Flags().StringVar(&assetPerBuy, "asset-per-buy", "1", "asset each trader spends per round")
	cmd.Flags().Uint64Var(&sellPercent, "sell-percent", 25, "share of each buy sold back in the same round")
	cmd.Flags().StringVar(&tapePath, "tape", "", "append every event to this CSV file")
	cmd.Flags().BoolVar(&hold, "hold", false, "keep serving metrics after the run until interrupted")
	return cmd
}

func serveMetrics(addr string, c *metrics.Collector, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.HTTPHandler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()
	log.Info("Metrics available", zap.String("addr", addr), zap.String("path", "/metrics"))
	return srv
}
