// internal/access/roles.go
package access

import (
	"context"
	"sort"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/vcurve/internal/curve"
)

// Role is a named capability holder.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// DefaultPolicy lists which roles may run each administrative action.
func DefaultPolicy() map[curve.Action][]Role {
	return map[curve.Action][]Role{
		curve.ActionAddInitialLiquidity: {RoleOwner},
		curve.ActionGraduate:            {RoleOwner, RoleAdmin, RoleOperator},
		curve.ActionClaimFees:           {RoleOwner, RoleAdmin},
	}
}

// Roles is a role table that implements curve.Authorizer. Owners and admins
// may grant and revoke; only owners may grant RoleOwner or RoleAdmin.
type Roles struct {
	logger *zap.Logger

	mu      sync.RWMutex
	members map[Role]map[common.Address]struct{}
	policy  map[curve.Action][]Role
}

var _ curve.Authorizer = (*Roles)(nil)

// NewRoles creates a table with owner holding RoleOwner.
func NewRoles(owner common.Address, logger *zap.Logger) *Roles {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Roles{
		logger:  logger.Named("access"),
		members: make(map[Role]map[common.Address]struct{}),
		policy:  DefaultPolicy(),
	}
	r.add(RoleOwner, owner)
	return r
}

// SetPolicy replaces the roles allowed to run action.
func (r *Roles) SetPolicy(action curve.Action, roles ...Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policy[action] = append([]Role(nil), roles...)
}

func (r *Roles) add(role Role, account common.Address) {
	if r.members[role] == nil {
		r.members[role] = make(map[common.Address]struct{})
	}
	r.members[role][account] = struct{}{}
}

// Has reports whether account holds role.
func (r *Roles) Has(role Role, account common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasLocked(role, account)
}

func (r *Roles) hasLocked(role Role, account common.Address) bool {
	_, ok := r.members[role][account]
	return ok
}

func (r *Roles) canManage(granter common.Address, role Role) bool {
	if r.hasLocked(RoleOwner, granter) {
		return true
	}
	return role == RoleOperator && r.hasLocked(RoleAdmin, granter)
}

// Grant gives role to account.
func (r *Roles) Grant(granter common.Address, role Role, account common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.canManage(granter, role) {
		return errorsmod.Wrapf(curve.ErrUnauthorized, "%s cannot grant %s", granter.Hex(), role)
	}
	r.add(role, account)

	r.logger.Info("Role granted",
		zap.String("role", string(role)),
		zap.String("account", account.Hex()),
		zap.String("granter", granter.Hex()))
	return nil
}

// Revoke removes role from account. The last owner cannot be removed.
func (r *Roles) Revoke(granter common.Address, role Role, account common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.canManage(granter, role) {
		return errorsmod.Wrapf(curve.ErrUnauthorized, "%s cannot revoke %s", granter.Hex(), role)
	}
	if role == RoleOwner && len(r.members[RoleOwner]) == 1 && r.hasLocked(RoleOwner, account) {
		return errorsmod.Wrap(curve.ErrUnauthorized, "cannot revoke the last owner")
	}
	delete(r.members[role], account)

	r.logger.Info("Role revoked",
		zap.String("role", string(role)),
		zap.String("account", account.Hex()),
		zap.String("granter", granter.Hex()))
	return nil
}

// Members lists the holders of role ordered by address.
func (r *Roles) Members(role Role) []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]common.Address, 0, len(r.members[role]))
	for a := range r.members[role] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Authorize implements curve.Authorizer.
func (r *Roles) Authorize(_ context.Context, caller common.Address, action curve.Action) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, role := range r.policy[action] {
		if r.hasLocked(role, caller) {
			return nil
		}
	}
	r.logger.Warn("Unauthorized call",
		zap.String("caller", caller.Hex()),
		zap.String("action", string(action)))
	return errorsmod.Wrapf(curve.ErrUnauthorized, "%s may not %s", caller.Hex(), action)
}
