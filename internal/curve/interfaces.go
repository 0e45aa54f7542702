// internal/curve/interfaces.go
package curve

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/vcurve/internal/events"
)

// Ledger is a single fungible balance book (the project token, or the asset).
type Ledger interface {
	BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error)
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error
}

// PoolHandle identifies a pool on the external exchange.
type PoolHandle struct {
	ID      string
	Address common.Address
	TokenA  common.Address
	TokenB  common.Address
}

// PositionID identifies a liquidity position on the external exchange.
type PositionID string

// Deposit asks the exchange to pull liquidity from From into a pool.
// Key makes the deposit idempotent: reusing it must not deposit twice.
// Token is the curve's token; the other side of the pool is the asset.
type Deposit struct {
	Key         string
	From        common.Address
	Token       common.Address
	TokenAmount *uint256.Int
	AssetAmount *uint256.Int
}

// PoolAdapter is the narrow surface of the external exchange.
// Both calls must be safe to retry.
type PoolAdapter interface {
	// CreatePool creates the pair or returns the existing one.
	CreatePool(ctx context.Context, tokenA, tokenB common.Address) (PoolHandle, error)
	// AddLiquidity deposits once per Deposit.Key.
	AddLiquidity(ctx context.Context, pool PoolHandle, dep Deposit) (PositionID, error)
}

// Action names an administrative entry point.
type Action string

const (
	ActionAddInitialLiquidity Action = "add_initial_liquidity"
	ActionGraduate            Action = "graduate"
	ActionClaimFees           Action = "claim_fees"
)

// Authorizer is the access-control collaborator consulted before
// administrative operations.
type Authorizer interface {
	Authorize(ctx context.Context, caller common.Address, action Action) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, caller common.Address, action Action) error

func (f AuthorizerFunc) Authorize(ctx context.Context, caller common.Address, action Action) error {
	return f(ctx, caller, action)
}

// OwnerOnly allows every administrative action to owner and nobody else.
func OwnerOnly(owner common.Address) Authorizer {
	return AuthorizerFunc(func(_ context.Context, caller common.Address, action Action) error {
		if caller != owner {
			return errorsmod.Wrapf(ErrUnauthorized, "%s is not the owner (%s)", caller.Hex(), action)
		}
		return nil
	})
}

// EventSink receives a record for every state transition.
type EventSink interface {
	Publish(event events.Event) error
}

type discardSink struct{}

func (discardSink) Publish(events.Event) error { return nil }
