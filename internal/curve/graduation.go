// internal/curve/graduation.go
package curve

import (
	"context"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/vcurve/internal/events"
	"github.com/rovshanmuradov/vcurve/internal/fixedpoint"
)

// Coordinator migrates the real liquidity of a Graduating curve to the
// external exchange. Every step is recorded in a plan that survives failed
// attempts, so a retry resumes where the last attempt stopped and reuses the
// same deposit key.
type Coordinator struct {
	engine *Engine
	pools  PoolAdapter
	logger *zap.Logger

	mu       sync.Mutex
	plan     *migrationPlan
	attempts int
	// feesPaid accumulates fees paid out by every attempt, including
	// attempts that failed before a plan was recorded.
	feesPaid *uint256.Int
}

type migrationPlan struct {
	key         string
	tokenAmount *uint256.Int
	assetAmount *uint256.Int
	feesPaid    *uint256.Int

	pool     *PoolHandle
	position PositionID
}

func newCoordinator(e *Engine, pools PoolAdapter) *Coordinator {
	return &Coordinator{
		engine:   e,
		pools:    pools,
		logger:   e.logger.Named("graduation"),
		feesPaid: new(uint256.Int),
	}
}

// Graduate runs or resumes migration. The curve must already be
// Graduating; use Engine.Graduate to force the transition from Active.
func (c *Coordinator) Graduate(ctx context.Context) (*Graduation, error) {
	ctx, err := c.engine.enter(ctx)
	if err != nil {
		return nil, err
	}
	return c.migrate(ctx)
}

// Attempts is the number of migration attempts made so far.
func (c *Coordinator) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// DepositKey is the idempotency key used for the liquidity deposit.
func (c *Coordinator) DepositKey() string {
	return c.engine.id.Hex() + "/graduation"
}

func (c *Coordinator) migrate(ctx context.Context) (*Graduation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.engine
	switch st := e.Status(); st {
	case StatusGraduated:
		return e.graduation.Load(), nil
	case StatusGraduating:
	default:
		return nil, errorsmod.Wrapf(ErrCurveNotActive, "cannot migrate a curve that is %s", st)
	}

	c.attempts++
	g, err := c.run(ctx)
	if err != nil {
		err = errorsmod.Wrapf(ErrMigrationFailed, "attempt %d: %v", c.attempts, err)
		c.logger.Error("Migration failed",
			zap.Int("attempt", c.attempts),
			zap.Error(err))
		e.mu.Lock()
		e.emit(events.CurveMigrationFailed, func(ev *events.CurveEvent) {
			ev.Error = err.Error()
		})
		e.mu.Unlock()
		return nil, err
	}
	return g, nil
}

func (c *Coordinator) run(ctx context.Context) (*Graduation, error) {
	e := c.engine

	if c.plan == nil {
		plan, err := c.preparePlan(ctx)
		if err != nil {
			return nil, err
		}
		c.plan = plan
	}
	plan := c.plan

	if plan.pool == nil {
		pool, err := c.pools.CreatePool(ctx, e.cfg.Token, e.cfg.Asset)
		if err != nil {
			return nil, err
		}
		plan.pool = &pool
		c.logger.Info("External pool ready",
			zap.String("pool_id", pool.ID),
			zap.String("pool_address", pool.Address.Hex()))
	}

	if plan.position == "" {
		position, err := c.pools.AddLiquidity(ctx, *plan.pool, Deposit{
			Key:         plan.key,
			From:        e.id,
			Token:       e.cfg.Token,
			TokenAmount: fixedpoint.Clone(plan.tokenAmount),
			AssetAmount: fixedpoint.Clone(plan.assetAmount),
		})
		if err != nil {
			return nil, err
		}
		plan.position = position
	}

	g := &Graduation{
		Pool:        *plan.pool,
		Position:    plan.position,
		TokenAmount: fixedpoint.Clone(plan.tokenAmount),
		AssetAmount: fixedpoint.Clone(plan.assetAmount),
		FeesPaid:    fixedpoint.Clone(plan.feesPaid),
		CompletedAt: e.now(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.graduation.Store(g)
	if !e.status.CompareAndSwap(int32(StatusGraduating), int32(StatusGraduated)) {
		return nil, errorsmod.Wrapf(ErrInvariantViolation, "curve left graduating state as %s", e.Status())
	}
	e.seq++
	e.publishLocked()

	e.emit(events.CurveGraduate, func(ev *events.CurveEvent) {
		ev.ReservesAfter = toEventReserves(e.reserves.Reserves())
		ev.AmountIn = fixedpoint.Clone(g.AssetAmount)
		ev.AmountOut = fixedpoint.Clone(g.TokenAmount)
		ev.Fee = fixedpoint.Clone(g.FeesPaid)
		ev.PoolID = g.Pool.ID
		ev.PositionID = string(g.Position)
	})

	c.logger.Info("Curve graduated",
		zap.String("pool_id", g.Pool.ID),
		zap.String("position_id", string(g.Position)),
		zap.String("token_amount", g.TokenAmount.Dec()),
		zap.String("asset_amount", g.AssetAmount.Dec()),
		zap.Int("attempts", c.attempts))

	return g, nil
}

// preparePlan pays what the fee recipient is owed and fixes the amounts to
// migrate from the curve's real ledger balances. Trading is already closed,
// so the balances cannot move afterwards.
func (c *Coordinator) preparePlan(ctx context.Context) (*migrationPlan, error) {
	e := c.engine

	e.mu.Lock()
	defer e.mu.Unlock()

	paid, err := e.payFeesLocked(ctx)
	if err != nil {
		return nil, err
	}
	feesPaid, err := fixedpoint.Add(c.feesPaid, paid)
	if err != nil {
		return nil, err
	}
	c.feesPaid = feesPaid

	tokenAmount, err := e.tokens.BalanceOf(ctx, e.id)
	if err != nil {
		return nil, errorsmod.Wrapf(ErrTransferFailed, "token balance of curve: %v", err)
	}
	assetAmount, err := e.assets.BalanceOf(ctx, e.id)
	if err != nil {
		return nil, errorsmod.Wrapf(ErrTransferFailed, "asset balance of curve: %v", err)
	}
	if tokenAmount.IsZero() || assetAmount.IsZero() {
		return nil, errorsmod.Wrapf(ErrInsufficientLiquidity, "nothing to migrate (token %s, asset %s)", tokenAmount, assetAmount)
	}

	c.logger.Info("Migration planned",
		zap.String("token_amount", tokenAmount.Dec()),
		zap.String("asset_amount", assetAmount.Dec()),
		zap.String("fees_paid", feesPaid.Dec()))

	return &migrationPlan{
		key:         c.DepositKey(),
		tokenAmount: tokenAmount,
		assetAmount: assetAmount,
		feesPaid:    fixedpoint.Clone(feesPaid),
	}, nil
}
