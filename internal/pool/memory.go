// internal/pool/memory.go
package pool

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/vcurve/internal/curve"
	"github.com/rovshanmuradov/vcurve/internal/fixedpoint"
)

// MinimumLiquidity is locked forever on the first deposit of a pool.
const MinimumLiquidity = 1000

// DefaultFactory stands in for the factory address when none is given.
var DefaultFactory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")

// pairInitCodeHash seeds pair address derivation.
var pairInitCodeHash = crypto.Keccak256([]byte("vcurve/pool/pair"))

// State is the observable state of one pool.
type State struct {
	Handle    curve.PoolHandle
	Reserve0  *uint256.Int
	Reserve1  *uint256.Int
	LPSupply  *uint256.Int
	Positions map[curve.PositionID]*uint256.Int
}

type pair struct {
	handle    curve.PoolHandle
	reserve0  *uint256.Int
	reserve1  *uint256.Int
	lpSupply  *uint256.Int
	positions map[curve.PositionID]*uint256.Int
}

// Memory is a constant-product exchange kept in memory. It plays the
// factory and router of the external exchange for local runs and tests.
//
// Deposits move real balances on the supplied ledgers, keyed by token
// address.
type Memory struct {
	factory common.Address
	ledgers map[common.Address]curve.Ledger
	logger  *zap.Logger

	mu       sync.Mutex
	pools    map[common.Address]*pair
	deposits map[string]curve.PositionID

	failCreate int
	failAdd    int
	calls      map[string]int
}

// NewMemory creates an exchange over the given ledgers.
func NewMemory(factory common.Address, ledgers map[common.Address]curve.Ledger, logger *zap.Logger) *Memory {
	if factory == (common.Address{}) {
		factory = DefaultFactory
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := make(map[common.Address]curve.Ledger, len(ledgers))
	for k, v := range ledgers {
		l[k] = v
	}
	return &Memory{
		factory:  factory,
		ledgers:  l,
		logger:   logger.Named("pool_memory"),
		pools:    make(map[common.Address]*pair),
		deposits: make(map[string]curve.PositionID),
		calls:    make(map[string]int),
	}
}

// FailNext makes the next n calls of op ("create_pool" or "add_liquidity")
// fail with ErrUnavailable.
func (m *Memory) FailNext(op string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch op {
	case "create_pool":
		m.failCreate = n
	case "add_liquidity":
		m.failAdd = n
	}
}

// Calls returns how many times op was invoked, failures included.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *Memory) Factory() common.Address { return m.factory }

// PairAddress derives the deterministic pair address the way a
// CREATE2-based factory does: salt is keccak(token0 ++ token1).
func PairAddress(factory, tokenA, tokenB common.Address) common.Address {
	t0, t1 := sortTokens(tokenA, tokenB)
	salt := crypto.Keccak256Hash(t0.Bytes(), t1.Bytes())
	return crypto.CreateAddress2(factory, salt, pairInitCodeHash)
}

func sortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		return b, a
	}
	return a, b
}

// CreatePool returns the pool for the pair, creating it on first use.
func (m *Memory) CreatePool(_ context.Context, tokenA, tokenB common.Address) (curve.PoolHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls["create_pool"]++
	if m.failCreate > 0 {
		m.failCreate--
		return curve.PoolHandle{}, errorsmod.Wrap(ErrUnavailable, "create pool")
	}
	if tokenA == tokenB {
		return curve.PoolHandle{}, errorsmod.Wrapf(ErrUnsupportedPair, "%s/%s", tokenA.Hex(), tokenB.Hex())
	}

	addr := PairAddress(m.factory, tokenA, tokenB)
	if p, ok := m.pools[addr]; ok {
		return p.handle, nil
	}

	t0, t1 := sortTokens(tokenA, tokenB)
	h := curve.PoolHandle{
		ID:      addr.Hex(),
		Address: addr,
		TokenA:  t0,
		TokenB:  t1,
	}
	m.pools[addr] = &pair{
		handle:    h,
		reserve0:  new(uint256.Int),
		reserve1:  new(uint256.Int),
		lpSupply:  new(uint256.Int),
		positions: make(map[curve.PositionID]*uint256.Int),
	}

	m.logger.Info("Pool created",
		zap.String("pool", addr.Hex()),
		zap.String("token0", t0.Hex()),
		zap.String("token1", t1.Hex()))
	return h, nil
}

// AddLiquidity pulls both amounts from dep.From into the pool and mints LP
// units to a new position. A key that was already used returns its position
// without moving anything.
func (m *Memory) AddLiquidity(ctx context.Context, h curve.PoolHandle, dep curve.Deposit) (curve.PositionID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls["add_liquidity"]++
	if m.failAdd > 0 {
		m.failAdd--
		return "", errorsmod.Wrap(ErrUnavailable, "add liquidity")
	}
	if dep.Key == "" {
		return "", errorsmod.Wrap(ErrInvalidDeposit, "deposit key is required")
	}
	if pos, ok := m.deposits[dep.Key]; ok {
		m.logger.Debug("Deposit already applied", zap.String("key", dep.Key), zap.String("position", string(pos)))
		return pos, nil
	}

	p, ok := m.pools[h.Address]
	if !ok {
		return "", errorsmod.Wrapf(ErrUnknownPool, "%s", h.Address.Hex())
	}
	if dep.TokenAmount == nil || dep.TokenAmount.IsZero() || dep.AssetAmount == nil || dep.AssetAmount.IsZero() {
		return "", errorsmod.Wrap(ErrInvalidDeposit, "both amounts must be positive")
	}

	tokenSide, assetSide, err := m.sides(p, dep)
	if err != nil {
		return "", err
	}
	amount0, amount1 := dep.TokenAmount, dep.AssetAmount
	if tokenSide != p.handle.TokenA {
		amount0, amount1 = dep.AssetAmount, dep.TokenAmount
	}

	lp, locked, err := mintAmount(p, amount0, amount1)
	if err != nil {
		return "", err
	}

	if err := m.pull(ctx, tokenSide, dep.From, p.handle.Address, dep.TokenAmount); err != nil {
		return "", err
	}
	if err := m.pull(ctx, assetSide, dep.From, p.handle.Address, dep.AssetAmount); err != nil {
		if rerr := m.ledgers[tokenSide].Transfer(ctx, p.handle.Address, dep.From, dep.TokenAmount); rerr != nil {
			m.logger.Error("Failed to refund token side", zap.Error(rerr))
		}
		return "", err
	}

	p.reserve0 = new(uint256.Int).Add(p.reserve0, amount0)
	p.reserve1 = new(uint256.Int).Add(p.reserve1, amount1)
	p.lpSupply = new(uint256.Int).Add(p.lpSupply, lp)
	p.lpSupply.Add(p.lpSupply, locked)

	pos := curve.PositionID(fmt.Sprintf("%s#%d", p.handle.ID, len(p.positions)+1))
	p.positions[pos] = lp
	m.deposits[dep.Key] = pos

	m.logger.Info("Liquidity added",
		zap.String("pool", p.handle.ID),
		zap.String("position", string(pos)),
		zap.String("lp", lp.Dec()),
		zap.String("key", dep.Key))
	return pos, nil
}

// sides maps the deposit's token and asset onto the pool's two tokens.
func (m *Memory) sides(p *pair, dep curve.Deposit) (token, asset common.Address, err error) {
	a, b := p.handle.TokenA, p.handle.TokenB
	switch dep.Token {
	case a:
		token, asset = a, b
	case b:
		token, asset = b, a
	default:
		return common.Address{}, common.Address{}, errorsmod.Wrapf(ErrUnsupportedPair, "%s is not in pool %s", dep.Token.Hex(), p.handle.ID)
	}
	if _, ok := m.ledgers[token]; !ok {
		return common.Address{}, common.Address{}, errorsmod.Wrapf(ErrUnsupportedPair, "no ledger for %s", token.Hex())
	}
	if _, ok := m.ledgers[asset]; !ok {
		return common.Address{}, common.Address{}, errorsmod.Wrapf(ErrUnsupportedPair, "no ledger for %s", asset.Hex())
	}
	return token, asset, nil
}

func (m *Memory) pull(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error {
	if err := m.ledgers[token].Transfer(ctx, from, to, amount); err != nil {
		return errorsmod.Wrapf(ErrInvalidDeposit, "pull %s of %s: %v", amount, token.Hex(), err)
	}
	return nil
}

// mintAmount follows the constant-product LP rule: sqrt(a0*a1) minus the
// locked minimum on the first deposit, proportional afterwards.
func mintAmount(p *pair, amount0, amount1 *uint256.Int) (minted, locked *uint256.Int, err error) {
	if p.lpSupply.IsZero() {
		prod, err := fixedpoint.Mul(amount0, amount1)
		if err != nil {
			return nil, nil, err
		}
		root := new(uint256.Int).Sqrt(prod)
		minimum := uint256.NewInt(MinimumLiquidity)
		if !root.Gt(minimum) {
			return nil, nil, errorsmod.Wrapf(ErrInvalidDeposit, "liquidity %s below minimum", root)
		}
		return root.Sub(root, minimum), minimum, nil
	}
	l0, err := fixedpoint.MulDiv(amount0, p.lpSupply, p.reserve0)
	if err != nil {
		return nil, nil, err
	}
	l1, err := fixedpoint.MulDiv(amount1, p.lpSupply, p.reserve1)
	if err != nil {
		return nil, nil, err
	}
	if l1.Lt(l0) {
		return l1, new(uint256.Int), nil
	}
	return l0, new(uint256.Int), nil
}

// Pool returns a copy of the state of the pool at addr.
func (m *Memory) Pool(addr common.Address) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pools[addr]
	if !ok {
		return State{}, false
	}
	s := State{
		Handle:    p.handle,
		Reserve0:  fixedpoint.Clone(p.reserve0),
		Reserve1:  fixedpoint.Clone(p.reserve1),
		LPSupply:  fixedpoint.Clone(p.lpSupply),
		Positions: make(map[curve.PositionID]*uint256.Int, len(p.positions)),
	}
	for id, lp := range p.positions {
		s.Positions[id] = fixedpoint.Clone(lp)
	}
	return s, true
}

// Price is reserve of the other side per unit of token, scaled by 1e18.
func (s State) Price(token common.Address) (*uint256.Int, error) {
	if token == s.Handle.TokenA {
		return fixedpoint.MulDiv(s.Reserve1, fixedpoint.WAD, s.Reserve0)
	}
	return fixedpoint.MulDiv(s.Reserve0, fixedpoint.WAD, s.Reserve1)
}
