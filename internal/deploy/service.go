// internal/deploy/service.go
package deploy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/vcurve/internal/access"
	"github.com/rovshanmuradov/vcurve/internal/config"
	"github.com/rovshanmuradov/vcurve/internal/curve"
	"github.com/rovshanmuradov/vcurve/internal/events"
	"github.com/rovshanmuradov/vcurve/internal/ledger"
	"github.com/rovshanmuradov/vcurve/internal/metrics"
	"github.com/rovshanmuradov/vcurve/internal/pool"
	"github.com/rovshanmuradov/vcurve/internal/storage"
	"github.com/rovshanmuradov/vcurve/internal/storage/models"
)

// Options wires optional collaborators into a Service.
type Options struct {
	Config *config.Config
	Logger *zap.Logger
	// Store journals every curve event when set.
	Store storage.Storage
	// Metrics is subscribed to the bus when set.
	Metrics *metrics.Collector
	// Handlers are extra bus subscribers, such as an export tape.
	Handlers map[string]events.Handler
	// PoolFailures makes the local exchange fail the next n calls per
	// operation. Used to rehearse graduation retries.
	PoolFailures map[string]int
}

// Service assembles one curve with its ledgers, local exchange, roles and
// event plumbing, the way the deployment scripts set up a local network.
type Service struct {
	cfg    *config.Config
	params curve.Config
	logger *zap.Logger

	bus      *events.Bus
	tokens   *ledger.Memory
	assets   *ledger.Memory
	exchange *pool.Memory
	roles    *access.Roles
	engine   *curve.Engine
	store    storage.Storage
	metrics  *metrics.Collector

	accounts map[string]common.Address
	shutdown *ShutdownHandler
}

// New builds the service. Nothing is deposited until Deploy.
func New(ctx context.Context, opts Options) (*Service, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("deploy")
	cfg := opts.Config

	params, err := cfg.CurveParams()
	if err != nil {
		return nil, fmt.Errorf("invalid curve parameters: %w", err)
	}

	s := &Service{
		cfg:      cfg,
		params:   params,
		logger:   logger,
		store:    opts.Store,
		metrics:  opts.Metrics,
		accounts: make(map[string]common.Address),
		shutdown: NewShutdownHandler(logger, 10*time.Second),
	}

	if s.store != nil {
		s.shutdown.Add("storage", s.store)
	}

	s.bus = events.NewBus(logger, cfg.EventBuffer)
	s.shutdown.AddFunc("event_bus", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.bus.Shutdown(ctx)
	})

	s.tokens = ledger.NewMemory(params.Token, cfg.Curve.TokenSymbol, cfg.Curve.TokenDecimals,
		ledger.WithSupplyCap(params.TokenSupplyCap), ledger.WithLogger(logger))
	assetSymbol := cfg.Curve.AssetSymbol
	if params.AssetKind == curve.AssetNative {
		assetSymbol = "ETH"
	}
	s.assets = ledger.NewMemory(params.Asset, assetSymbol, cfg.Curve.AssetDecimals, ledger.WithLogger(logger))

	factory := pool.DefaultFactory
	if cfg.Pool.Factory != "" {
		factory = common.HexToAddress(cfg.Pool.Factory)
	}
	s.exchange = pool.NewMemory(factory, map[common.Address]curve.Ledger{
		params.Token: s.tokens,
		params.Asset: s.assets,
	}, logger)
	for op, n := range opts.PoolFailures {
		s.exchange.FailNext(op, n)
	}
	adapter := pool.NewRetrying(s.exchange, logger, pool.RetryOptions{
		MaxTries:   uint(cfg.Pool.Retries) + 1,
		RetryDelay: time.Duration(cfg.Pool.RetryDelayMs) * time.Millisecond,
		MaxElapsed: 30 * time.Second,
	})

	s.roles = access.NewRoles(params.Owner, logger)

	s.engine, err = curve.NewEngine(params, curve.Deps{
		Tokens: s.tokens,
		Assets: s.assets,
		Pools:  adapter,
		Auth:   s.roles,
		Sink:   s.bus,
		Logger: logger,
	})
	if err != nil {
		_ = s.shutdown.Shutdown(ctx)
		return nil, err
	}
	id := s.engine.ID()

	if s.store != nil {
		if err := s.store.SaveCurve(ctx, s.curveRow()); err != nil {
			_ = s.shutdown.Shutdown(ctx)
			return nil, fmt.Errorf("failed to register curve: %w", err)
		}
		s.bus.Subscribe(events.AllEvents, events.ForCurve(id, storage.NewJournal(s.store, logger)))
	}
	if s.metrics != nil {
		s.bus.Subscribe(events.AllEvents, s.metrics)
	}
	names := make([]string, 0, len(opts.Handlers))
	for name := range opts.Handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.bus.Subscribe(events.AllEvents, opts.Handlers[name])
		logger.Debug("Handler attached", zap.String("handler", name))
	}

	if err := s.seedAccounts(); err != nil {
		_ = s.shutdown.Shutdown(ctx)
		return nil, err
	}

	logger.Info("Curve assembled",
		zap.String("curve_id", id.Hex()),
		zap.String("token", params.Token.Hex()),
		zap.String("asset", params.Asset.Hex()),
		zap.Int("accounts", len(s.accounts)))

	return s, nil
}

func (s *Service) seedAccounts() error {
	s.accounts["owner"] = s.params.Owner
	s.accounts["fee_recipient"] = s.params.FeeRecipient

	for _, acc := range s.cfg.Accounts {
		addr := acc.AccountAddress()
		name := acc.Name
		if name == "" {
			name = addr.Hex()
		}
		s.accounts[name] = addr

		if acc.Asset != "" {
			amount, err := s.cfg.AssetAmount(acc.Asset)
			if err != nil {
				return fmt.Errorf("account %s: %w", name, err)
			}
			if err := s.assets.Mint(addr, amount); err != nil {
				return fmt.Errorf("failed to fund account %s: %w", name, err)
			}
		}
		if acc.Role != "" {
			if err := s.roles.Grant(s.params.Owner, access.Role(acc.Role), addr); err != nil {
				return fmt.Errorf("failed to grant %s to %s: %w", acc.Role, name, err)
			}
		}
	}
	return nil
}

func (s *Service) curveRow() *models.Curve {
	p := s.params
	return &models.Curve{
		CurveID:       s.engine.ID().Hex(),
		Token:         p.Token.Hex(),
		Asset:         p.Asset.Hex(),
		AssetKind:     p.AssetKind.String(),
		Owner:         p.Owner.Hex(),
		SupplyCap:     p.TokenSupplyCap.Dec(),
		GradThreshold: p.GradThreshold.Dec(),
		GradMetric:    p.GradMetric.String(),
		MaxTx:         p.MaxTx.Dec(),
		BuyFeeBps:     p.BuyFeeBps,
		SellFeeBps:    p.SellFeeBps,
		AssetRate:     p.AssetRate,
		Status:        s.engine.Status().String(),
	}
}

func (s *Service) Engine() *curve.Engine       { return s.engine }
func (s *Service) Bus() *events.Bus            { return s.bus }
func (s *Service) Tokens() *ledger.Memory      { return s.tokens }
func (s *Service) Assets() *ledger.Memory      { return s.assets }
func (s *Service) Exchange() *pool.Memory      { return s.exchange }
func (s *Service) Roles() *access.Roles        { return s.roles }
func (s *Service) Config() *config.Config      { return s.cfg }
func (s *Service) Params() curve.Config        { return s.params }
func (s *Service) Metrics() *metrics.Collector { return s.metrics }

// Account resolves a configured account name, or a hex address.
func (s *Service) Account(name string) (common.Address, error) {
	if addr, ok := s.accounts[name]; ok {
		return addr, nil
	}
	if common.IsHexAddress(name) {
		return common.HexToAddress(name), nil
	}
	return common.Address{}, fmt.Errorf("unknown account %q", name)
}

// Traders lists the configured accounts that hold asset, sorted by name.
func (s *Service) Traders(ctx context.Context) []common.Address {
	var names []string
	for _, acc := range s.cfg.Accounts {
		if acc.Asset == "" {
			continue
		}
		name := acc.Name
		if name == "" {
			name = acc.AccountAddress().Hex()
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]common.Address, 0, len(names))
	for _, n := range names {
		addr := s.accounts[n]
		if bal, err := s.assets.BalanceOf(ctx, addr); err == nil && !bal.IsZero() {
			out = append(out, addr)
		}
	}
	return out
}

// Close drains the event bus and closes storage.
func (s *Service) Close(ctx context.Context) error {
	return s.shutdown.Shutdown(ctx)
}
