// internal/deploy/simulate.go
package deploy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/vcurve/internal/curve"
)

// SimulateOptions drive a concurrent trading session.
type SimulateOptions struct {
	Traders []common.Address
	Rounds  int
	// AssetPerBuy is spent by every trader in every round.
	AssetPerBuy *uint256.Int
	// SellPercent of each buy's output is sold back in the same round.
	SellPercent uint64
}

// SimulationReport summarises a Simulate run.
type SimulationReport struct {
	Buys       uint64
	Sells      uint64
	Rejected   uint64
	Status     curve.Status
	Graduation *curve.Graduation
	// MigrationErr is the last failed migration attempt, if the curve is
	// left Graduating.
	MigrationErr error
	FinalPrice   *uint256.Int
	Snapshot     curve.Snapshot
}

// Simulate runs every trader on its own goroutine against the curve until
// the rounds are done or trading closes. Rejected trades (slippage, limits,
// exhausted balances) are counted, not fatal.
func (s *Service) Simulate(ctx context.Context, opts SimulateOptions) (*SimulationReport, error) {
	if len(opts.Traders) == 0 {
		return nil, fmt.Errorf("no traders to simulate")
	}
	if opts.AssetPerBuy == nil || opts.AssetPerBuy.IsZero() {
		return nil, fmt.Errorf("asset per buy must be positive")
	}
	if opts.SellPercent > 100 {
		return nil, fmt.Errorf("sell percent must be at most 100")
	}
	if opts.Rounds <= 0 {
		opts.Rounds = 1
	}

	var (
		buys, sells, rejected atomic.Uint64
		mu                    sync.Mutex
		migrationErr          error
	)
	recordMigration := func(res *curve.TradeResult) {
		if res.GraduationErr == nil {
			return
		}
		mu.Lock()
		migrationErr = res.GraduationErr
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, trader := range opts.Traders {
		g.Go(func() error {
			for round := 0; round < opts.Rounds; round++ {
				if err := gctx.Err(); err != nil {
					return err
				}

				res, err := s.engine.BuyTokens(gctx, trader, opts.AssetPerBuy, nil)
				switch {
				case errors.Is(err, curve.ErrCurveNotActive):
					return nil
				case err != nil && isRejection(err):
					rejected.Add(1)
					continue
				case err != nil:
					return fmt.Errorf("trader %s buy: %w", trader.Hex(), err)
				}
				buys.Add(1)
				recordMigration(res)

				if opts.SellPercent == 0 {
					continue
				}
				tokenIn := new(uint256.Int).Div(
					new(uint256.Int).Mul(res.AmountOut, uint256.NewInt(opts.SellPercent)),
					uint256.NewInt(100))
				if tokenIn.IsZero() {
					continue
				}
				sold, err := s.engine.SellTokens(gctx, trader, tokenIn, nil)
				switch {
				case errors.Is(err, curve.ErrCurveNotActive):
					return nil
				case err != nil && isRejection(err):
					rejected.Add(1)
				case err != nil:
					return fmt.Errorf("trader %s sell: %w", trader.Hex(), err)
				default:
					sells.Add(1)
					recordMigration(sold)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &SimulationReport{
		Buys:       buys.Load(),
		Sells:      sells.Load(),
		Rejected:   rejected.Load(),
		Status:     s.engine.Status(),
		Graduation: s.engine.Graduation(),
		Snapshot:   s.engine.Snapshot(),
	}
	if report.Status == curve.StatusGraduating {
		report.MigrationErr = migrationErr
	}
	if price, err := s.engine.CurrentPrice(); err == nil {
		report.FinalPrice = price
	}

	s.logger.Info("Simulation finished",
		zap.Int("traders", len(opts.Traders)),
		zap.Uint64("buys", report.Buys),
		zap.Uint64("sells", report.Sells),
		zap.Uint64("rejected", report.Rejected),
		zap.String("status", report.Status.String()))
	return report, nil
}

// isRejection reports errors that leave the curve untouched and only end
// the trader's attempt: bad input, limits, or a trader out of funds.
func isRejection(err error) bool {
	return curve.IsRecoverable(err) || errors.Is(err, curve.ErrTransferFailed)
}
