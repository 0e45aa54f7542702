// internal/ledger/memory.go
package ledger

import (
	"context"
	"sort"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/vcurve/internal/fixedpoint"
)

const Codespace = "ledger"

var (
	ErrInsufficientBalance = errorsmod.Register(Codespace, 2, "insufficient balance")
	ErrSupplyCapExceeded   = errorsmod.Register(Codespace, 3, "supply cap exceeded")
	ErrInvalidTransfer     = errorsmod.Register(Codespace, 4, "invalid transfer")
	ErrFrozen              = errorsmod.Register(Codespace, 5, "account frozen")
)

// Hook runs after every successful transfer, outside the ledger lock.
// It receives the caller's context.
type Hook func(ctx context.Context, from, to common.Address, amount *uint256.Int) error

// Memory is an in-memory fungible balance book for one asset: the project
// token, an ERC20-like asset or native value.
type Memory struct {
	asset    common.Address
	symbol   string
	decimals int32
	cap      *uint256.Int
	logger   *zap.Logger

	mu       sync.RWMutex
	balances map[common.Address]*uint256.Int
	supply   *uint256.Int
	frozen   map[common.Address]bool
	hooks    []Hook
}

// Option configures a Memory ledger.
type Option func(*Memory)

// WithSupplyCap limits the total that Mint may ever create.
func WithSupplyCap(c *uint256.Int) Option {
	return func(m *Memory) { m.cap = fixedpoint.Clone(c) }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Memory) { m.logger = l }
}

// NewMemory creates an empty ledger.
func NewMemory(asset common.Address, symbol string, decimals int32, opts ...Option) *Memory {
	m := &Memory{
		asset:    asset,
		symbol:   symbol,
		decimals: decimals,
		logger:   zap.NewNop(),
		balances: make(map[common.Address]*uint256.Int),
		supply:   new(uint256.Int),
		frozen:   make(map[common.Address]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("ledger").With(zap.String("symbol", symbol))
	return m
}

func (m *Memory) Asset() common.Address { return m.asset }
func (m *Memory) Symbol() string        { return m.symbol }
func (m *Memory) Decimals() int32       { return m.decimals }

// Mint credits amount to account.
func (m *Memory) Mint(account common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	supply, err := fixedpoint.Add(m.supply, amount)
	if err != nil {
		return err
	}
	if m.cap != nil && supply.Gt(m.cap) {
		return errorsmod.Wrapf(ErrSupplyCapExceeded, "%s %s: supply would be %s, cap %s", m.symbol, amount, supply, m.cap)
	}
	bal, err := fixedpoint.Add(m.balanceLocked(account), amount)
	if err != nil {
		return err
	}
	m.balances[account] = bal
	m.supply = supply

	m.logger.Debug("Minted",
		zap.String("account", account.Hex()),
		zap.String("amount", amount.Dec()))
	return nil
}

// BalanceOf returns a copy of the balance of account.
func (m *Memory) BalanceOf(_ context.Context, account common.Address) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fixedpoint.Clone(m.balanceLocked(account)), nil
}

// Transfer moves amount from one account to another, all or nothing.
func (m *Memory) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return errorsmod.Wrap(ErrInvalidTransfer, "nil amount")
	}

	m.mu.Lock()
	if m.frozen[from] || m.frozen[to] {
		m.mu.Unlock()
		return errorsmod.Wrapf(ErrFrozen, "%s -> %s", from.Hex(), to.Hex())
	}
	fromBal := m.balanceLocked(from)
	if fromBal.Lt(amount) {
		m.mu.Unlock()
		return errorsmod.Wrapf(ErrInsufficientBalance, "%s has %s %s, needs %s", from.Hex(), fromBal, m.symbol, amount)
	}
	if from != to {
		toBal, err := fixedpoint.Add(m.balanceLocked(to), amount)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		m.balances[from] = new(uint256.Int).Sub(fromBal, amount)
		m.balances[to] = toBal
	}
	hooks := append([]Hook(nil), m.hooks...)
	m.mu.Unlock()

	for _, h := range hooks {
		if err := h(ctx, from, to, amount); err != nil {
			m.logger.Warn("Transfer hook failed", zap.Error(err))
		}
	}
	return nil
}

// Freeze makes every transfer touching account fail. Used to exercise
// rollback paths.
func (m *Memory) Freeze(account common.Address, frozen bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if frozen {
		m.frozen[account] = true
	} else {
		delete(m.frozen, account)
	}
}

// OnTransfer registers a hook, e.g. a token with transfer callbacks.
func (m *Memory) OnTransfer(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, h)
}

// TotalSupply is the sum of all minted amounts.
func (m *Memory) TotalSupply() *uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fixedpoint.Clone(m.supply)
}

// Holder is one non-zero balance.
type Holder struct {
	Account common.Address
	Balance *uint256.Int
}

// Holders lists non-zero balances ordered by address.
func (m *Memory) Holders() []Holder {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Holder, 0, len(m.balances))
	for acc, bal := range m.balances {
		if !bal.IsZero() {
			out = append(out, Holder{Account: acc, Balance: fixedpoint.Clone(bal)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Account.Cmp(out[j].Account) < 0
	})
	return out
}

func (m *Memory) balanceLocked(account common.Address) *uint256.Int {
	if b, ok := m.balances[account]; ok {
		return b
	}
	return new(uint256.Int)
}
