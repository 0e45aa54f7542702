package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/vcurve/internal/export"
	"github.com/rovshanmuradov/vcurve/internal/storage/models"
	"github.com/rovshanmuradov/vcurve/internal/storage/sqlite"
	"github.com/rovshanmuradov/vcurve/internal/style"
)

func newTradesCmd(a *app) *cobra.Command {
	var (
		curveID    string
		limit      int
		offset     int
		format     string
		action     string
		account    string
		tradesOnly bool
		daily      string
	)

	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List or export the journaled events of a curve",
		Long: `List the events journaled in storage.path for a curve, or export them as
CSV or JSON into export.dir. The curve defaults to the one recorded in the
last deployment info file.

Example:
  $ curvectl trades --limit 20
  $ curvectl trades --export csv --action buy
  $ curvectl trades --daily 2026-10-16`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := a.log.Logger

			if curveID == "" {
				info, err := export.ReadDeploymentInfo(filepath.Join(a.cfg.Export.Dir, export.DeploymentInfoFile))
				if err != nil {
					return fmt.Errorf("no --curve given and no deployment info: %w", err)
				}
				curveID = info.Curve
			}

			if _, err := os.Stat(a.cfg.Storage.Path); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("no journal at %s; run deploy or simulate first", a.cfg.Storage.Path)
			}
			store, err := sqlite.Open(a.cfg.Storage.Path, log)
			if err != nil {
				return err
			}
			defer store.Close()

			if format == "" && daily == "" {
				trades, err := store.ListTrades(ctx, curveID, limit, offset)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTrades(trades, a.cfg.Curve.TokenDecimals, a.cfg.Curve.AssetDecimals))
				return nil
			}

			trades, err := store.ListTrades(ctx, curveID, 0, 0)
			if err != nil {
				return err
			}
			exporter := export.NewTradeExporter(log)

			var path string
			if daily != "" {
				date, perr := time.Parse("2006-01-02", daily)
				if perr != nil {
					return fmt.Errorf("invalid --daily date: %w", perr)
				}
				path, err = exporter.ExportDailyReport(trades, date, a.cfg.Curve.AssetDecimals, a.cfg.Export.Dir)
			} else {
				path, err = exporter.ExportTrades(trades, export.ExportOptions{
					Format:        export.ExportFormat(format),
					CurveFilter:   curveID,
					AccountFilter: account,
					ActionFilter:  action,
					TradesOnly:    tradesOnly,
					AssetDecimals: a.cfg.Curve.AssetDecimals,
					OutputDir:     a.cfg.Export.Dir,
				})
			}
			if err != nil {
				return err
			}
			log.Info("Export written", zap.String("path", path))
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&curveID, "curve", "", "curve id (defaults to the last deployment)")
	cmd.Flags().IntVar(&limit, "limit", 50, "rows to list (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	cmd.Flags().StringVar(&format, "export", "", "export format: csv or json")
	cmd.Flags().StringVar(&action, "action", "", "export only this action (buy, sell or an event type)")
	cmd.Flags().StringVar(&account, "account", "", "export only this account")
	cmd.Flags().BoolVar(&tradesOnly, "trades-only", false, "skip lifecycle events in the export")
	cmd.Flags().StringVar(&daily, "daily", "", "write the daily report for this date (YYYY-MM-DD)")
	return cmd
}

func renderTrades(trades []*models.Trade, td, ad int32) string {
	if len(trades) == 0 {
		return style.LabelStyle.Render("no events journaled")
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(style.Base01)).
		Headers("SEQ", "TIME", "EVENT", "ACCOUNT", "IN", "OUT", "FEE", "STATUS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return style.TitleStyle.Margin(0).Padding(0, 1)
			}
			if col == 2 && row >= 0 && row < len(trades) {
				switch trades[row].EventType {
				case "curve.buy":
					return style.BuyStyle.Padding(0, 1)
				case "curve.sell":
					return style.SellStyle.Padding(0, 1)
				}
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for _, tr := range trades {
		inDec, outDec := ad, td
		switch tr.EventType {
		case "curve.sell":
			inDec, outDec = td, ad
		case "curve.fees_claimed":
			outDec = ad
		}
		t.Row(
			fmt.Sprint(tr.Sequence),
			tr.BlockTime.Format("15:04:05.000"),
			tr.EventType,
			shortAddress(tr.Account),
			display(tr.AmountIn, inDec),
			display(tr.AmountOut, outDec),
			display(tr.Fee, ad),
			tr.Status,
		)
	}
	return t.Render()
}

// display renders a journaled base-unit amount in display units.
func display(s string, decimals int32) string {
	if s == "" || s == "0" {
		return s
	}
	x, err := uint256.FromDecimal(s)
	if err != nil {
		return s
	}
	return units(x, decimals)
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
