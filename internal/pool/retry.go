// internal/pool/retry.go
package pool

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/vcurve/internal/curve"
)

// RetryOptions tune the Retrying adapter.
type RetryOptions struct {
	MaxTries   uint
	RetryDelay time.Duration
	MaxElapsed time.Duration
}

// DefaultRetryOptions returns the defaults used by the CLI.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxTries:   5,
		RetryDelay: 200 * time.Millisecond,
		MaxElapsed: 30 * time.Second,
	}
}

// Retrying wraps a PoolAdapter and retries temporary failures with
// exponential backoff. Both adapter calls are idempotent, so a retry after
// an ambiguous failure is safe.
type Retrying struct {
	next   curve.PoolAdapter
	opts   RetryOptions
	logger *zap.Logger
}

var _ curve.PoolAdapter = (*Retrying)(nil)

// NewRetrying decorates next.
func NewRetrying(next curve.PoolAdapter, logger *zap.Logger, opts ...RetryOptions) *Retrying {
	options := DefaultRetryOptions()
	if len(opts) > 0 {
		options = opts[0]
	}
	if options.MaxTries == 0 {
		options.MaxTries = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{next: next, opts: options, logger: logger.Named("pool_retry")}
}

func (r *Retrying) policy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if r.opts.RetryDelay > 0 {
		b.InitialInterval = r.opts.RetryDelay
		b.MaxInterval = r.opts.RetryDelay * 10
	}
	return b
}

func (r *Retrying) notify(op string) backoff.Notify {
	return func(err error, d time.Duration) {
		r.logger.Warn("Retrying exchange call",
			zap.String("op", op),
			zap.Error(err),
			zap.Duration("backoff", d))
	}
}

func (r *Retrying) retryOptions(op string) []backoff.RetryOption {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(r.policy()),
		backoff.WithMaxTries(r.opts.MaxTries),
		backoff.WithNotify(r.notify(op)),
	}
	if r.opts.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(r.opts.MaxElapsed))
	}
	return opts
}

func (r *Retrying) CreatePool(ctx context.Context, tokenA, tokenB common.Address) (curve.PoolHandle, error) {
	op := func() (curve.PoolHandle, error) {
		h, err := r.next.CreatePool(ctx, tokenA, tokenB)
		if err != nil && !IsTemporary(err) {
			return h, backoff.Permanent(err)
		}
		return h, err
	}
	return backoff.Retry(ctx, op, r.retryOptions("create_pool")...)
}

func (r *Retrying) AddLiquidity(ctx context.Context, h curve.PoolHandle, dep curve.Deposit) (curve.PositionID, error) {
	op := func() (curve.PositionID, error) {
		pos, err := r.next.AddLiquidity(ctx, h, dep)
		if err != nil && !IsTemporary(err) {
			return pos, backoff.Permanent(err)
		}
		return pos, err
	}
	return backoff.Retry(ctx, op, r.retryOptions("add_liquidity")...)
}
