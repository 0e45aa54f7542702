// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/vcurve/internal/curve"
	"github.com/rovshanmuradov/vcurve/internal/fixedpoint"
)

type Config struct {
	Network          string          `mapstructure:"network"`
	Curve            CurveConfig     `mapstructure:"curve"`
	InitialLiquidity LiquidityConfig `mapstructure:"initial_liquidity"`
	Accounts         []AccountConfig `mapstructure:"accounts"`
	Pool             PoolConfig      `mapstructure:"pool"`
	Storage          StorageConfig   `mapstructure:"storage"`
	Logging          LoggingConfig   `mapstructure:"logging"`
	Metrics          MetricsConfig   `mapstructure:"metrics"`
	Export           ExportConfig    `mapstructure:"export"`
	EventBuffer      int             `mapstructure:"event_buffer"`
}

// CurveConfig holds the curve parameters. Amounts are human decimal strings.
type CurveConfig struct {
	TokenName     string `mapstructure:"token_name"`
	TokenSymbol   string `mapstructure:"token_symbol"`
	TokenDecimals int32  `mapstructure:"token_decimals"`
	Token         string `mapstructure:"token"`
	AssetSymbol   string `mapstructure:"asset_symbol"`
	AssetDecimals int32  `mapstructure:"asset_decimals"`
	AssetKind     string `mapstructure:"asset_kind"`
	Asset         string `mapstructure:"asset"`
	Owner         string `mapstructure:"owner"`
	FeeRecipient  string `mapstructure:"fee_recipient"`
	SupplyCap     string `mapstructure:"supply_cap"`
	AssetRate     uint64 `mapstructure:"asset_rate"`
	GradThreshold string `mapstructure:"grad_threshold"`
	GradMetric    string `mapstructure:"grad_metric"`
	MaxTx         string `mapstructure:"max_tx"`
	BuyFeeBps     uint64 `mapstructure:"buy_fee_bps"`
	SellFeeBps    uint64 `mapstructure:"sell_fee_bps"`
	VirtualAsset  string `mapstructure:"virtual_asset"`
	VirtualToken  string `mapstructure:"virtual_token"`
	AccrueFees    bool   `mapstructure:"accrue_fees"`
}

type LiquidityConfig struct {
	Asset string `mapstructure:"asset"`
	Token string `mapstructure:"token"`
}

// AccountConfig seeds a local account with asset and optionally a role.
type AccountConfig struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
	Asset   string `mapstructure:"asset"`
	Role    string `mapstructure:"role"`
}

type PoolConfig struct {
	Factory      string `mapstructure:"factory"`
	Retries      int    `mapstructure:"retries"`
	RetryDelayMs int    `mapstructure:"retry_delay_ms"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	File        string `mapstructure:"file"`
	Development bool   `mapstructure:"development"`
}

type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

const (
	DefaultNetwork       = "local"
	DefaultDecimals      = 18
	DefaultAssetRate     = curve.AssetRateDenominator
	DefaultRetries       = 3
	DefaultRetryDelayMs  = 200
	DefaultEventBuffer   = 1024
	DefaultStoragePath   = "data/vcurve.db"
	DefaultLogFile       = "logs/vcurve.log"
	DefaultExportDir     = "exports"
	DefaultMetricsListen = ":9464"
)

func setDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		"network":                 DefaultNetwork,
		"event_buffer":            DefaultEventBuffer,
		"curve.token_name":        "Virtual Token",
		"curve.token_symbol":      "VTK",
		"curve.token_decimals":    DefaultDecimals,
		"curve.asset_symbol":      "WETH",
		"curve.asset_decimals":    DefaultDecimals,
		"curve.asset_kind":        "erc20",
		"curve.owner":             "0x00000000000000000000000000000000000000a0",
		"curve.supply_cap":        "1000000000",
		"curve.asset_rate":        DefaultAssetRate,
		"curve.grad_threshold":    "1000000",
		"curve.grad_metric":       "asset_raised",
		"curve.max_tx":            "100000000",
		"curve.virtual_asset":     "0",
		"curve.virtual_token":     "0",
		"initial_liquidity.asset": "10",
		"initial_liquidity.token": "1000",
		"pool.retries":            DefaultRetries,
		"pool.retry_delay_ms":     DefaultRetryDelayMs,
		"storage.path":            DefaultStoragePath,
		"logging.file":            DefaultLogFile,
		"metrics.listen_addr":     DefaultMetricsListen,
		"export.dir":              DefaultExportDir,
		"curve.token":             "",
		"curve.asset":             "",
		"curve.fee_recipient":     "",
		"curve.buy_fee_bps":       0,
		"curve.sell_fee_bps":      0,
		"curve.accrue_fees":       false,
		"logging.development":     false,
		"metrics.enabled":         false,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// LoadConfig reads path (YAML, JSON or TOML). An empty path yields the
// defaults, still subject to VCURVE_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	loadEnvironmentVariables(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &cfg, validateConfig(&cfg)
}

// loadEnvironmentVariables maps VCURVE_CURVE_MAX_TX onto curve.max_tx and so on.
func loadEnvironmentVariables(v *viper.Viper) {
	v.SetEnvPrefix("VCURVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func validateConfig(cfg *Config) error {
	c := cfg.Curve
	if c.TokenSymbol == "" {
		return errors.New("curve.token_symbol is required")
	}
	if c.TokenDecimals < 0 || c.TokenDecimals > 36 || c.AssetDecimals < 0 || c.AssetDecimals > 36 {
		return errors.New("decimals must be between 0 and 36")
	}
	if _, err := parseAssetKind(c.AssetKind); err != nil {
		return err
	}
	if _, err := parseMetric(c.GradMetric); err != nil {
		return err
	}
	for name, addr := range map[string]string{
		"curve.owner":         c.Owner,
		"curve.fee_recipient": c.FeeRecipient,
		"curve.token":         c.Token,
		"curve.asset":         c.Asset,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("%s is not a valid address: %q", name, addr)
		}
	}
	if c.Owner == "" {
		return errors.New("curve.owner is required")
	}
	if err := fixedpoint.ValidateBps(c.BuyFeeBps); err != nil {
		return fmt.Errorf("curve.buy_fee_bps: %w", err)
	}
	if err := fixedpoint.ValidateBps(c.SellFeeBps); err != nil {
		return fmt.Errorf("curve.sell_fee_bps: %w", err)
	}
	for i, acc := range cfg.Accounts {
		if acc.Name == "" && acc.Address == "" {
			return fmt.Errorf("accounts[%d] needs a name or an address", i)
		}
		if acc.Address != "" && !common.IsHexAddress(acc.Address) {
			return fmt.Errorf("accounts[%d].address is not a valid address: %q", i, acc.Address)
		}
		switch acc.Role {
		case "", "admin", "operator":
		default:
			return fmt.Errorf("accounts[%d].role must be admin or operator, got %q", i, acc.Role)
		}
	}
	if cfg.Pool.Retries < 0 {
		return errors.New("invalid pool.retries")
	}
	if cfg.Pool.RetryDelayMs < 0 {
		return errors.New("invalid pool.retry_delay_ms")
	}
	if cfg.EventBuffer <= 0 {
		return errors.New("invalid event_buffer")
	}

	// Amount strings are validated by converting them once.
	if _, err := cfg.CurveParams(); err != nil {
		return err
	}
	if _, _, err := cfg.InitialAmounts(); err != nil {
		return err
	}
	return nil
}

func parseAssetKind(s string) (curve.AssetKind, error) {
	switch strings.ToLower(s) {
	case "native":
		return curve.AssetNative, nil
	case "erc20", "":
		return curve.AssetERC20, nil
	default:
		return 0, fmt.Errorf("curve.asset_kind must be native or erc20, got %q", s)
	}
}

func parseMetric(s string) (curve.GraduationMetric, error) {
	switch strings.ToLower(s) {
	case "asset_raised", "":
		return curve.MetricAssetRaised, nil
	case "tokens_sold":
		return curve.MetricTokensSold, nil
	default:
		return 0, fmt.Errorf("curve.grad_metric must be asset_raised or tokens_sold, got %q", s)
	}
}

// LocalAddress derives a stable address from a name for local deployments
// that do not pin real addresses.
func LocalAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("vcurve:" + name)))
}

// TokenAddress is curve.token, or an address derived from the symbol.
func (c *Config) TokenAddress() common.Address {
	if c.Curve.Token != "" {
		return common.HexToAddress(c.Curve.Token)
	}
	return LocalAddress("token:" + c.Curve.TokenSymbol)
}

// AssetAddress is the asset token, or the native sentinel for native curves.
func (c *Config) AssetAddress() common.Address {
	kind, _ := parseAssetKind(c.Curve.AssetKind)
	if kind == curve.AssetNative {
		return curve.NativeAsset
	}
	if c.Curve.Asset != "" {
		return common.HexToAddress(c.Curve.Asset)
	}
	return LocalAddress("asset:" + c.Curve.AssetSymbol)
}

// AccountAddress resolves an account entry.
func (a AccountConfig) AccountAddress() common.Address {
	if a.Address != "" {
		return common.HexToAddress(a.Address)
	}
	return LocalAddress("account:" + a.Name)
}

func (c *Config) tokenUnits(field, s string) (*uint256.Int, error) {
	v, err := fixedpoint.ParseUnits(s, c.Curve.TokenDecimals)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

func (c *Config) assetUnits(field, s string) (*uint256.Int, error) {
	v, err := fixedpoint.ParseUnits(s, c.Curve.AssetDecimals)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

// CurveParams converts the curve section into engine configuration.
func (c *Config) CurveParams() (curve.Config, error) {
	kind, err := parseAssetKind(c.Curve.AssetKind)
	if err != nil {
		return curve.Config{}, err
	}
	metric, err := parseMetric(c.Curve.GradMetric)
	if err != nil {
		return curve.Config{}, err
	}

	supplyCap, err := c.tokenUnits("curve.supply_cap", c.Curve.SupplyCap)
	if err != nil {
		return curve.Config{}, err
	}
	maxTx, err := c.tokenUnits("curve.max_tx", c.Curve.MaxTx)
	if err != nil {
		return curve.Config{}, err
	}
	var threshold *uint256.Int
	if metric == curve.MetricTokensSold {
		threshold, err = c.tokenUnits("curve.grad_threshold", c.Curve.GradThreshold)
	} else {
		threshold, err = c.assetUnits("curve.grad_threshold", c.Curve.GradThreshold)
	}
	if err != nil {
		return curve.Config{}, err
	}
	virtualAsset, err := c.assetUnits("curve.virtual_asset", orZero(c.Curve.VirtualAsset))
	if err != nil {
		return curve.Config{}, err
	}
	virtualToken, err := c.tokenUnits("curve.virtual_token", orZero(c.Curve.VirtualToken))
	if err != nil {
		return curve.Config{}, err
	}

	owner := common.HexToAddress(c.Curve.Owner)
	feeRecipient := owner
	if c.Curve.FeeRecipient != "" {
		feeRecipient = common.HexToAddress(c.Curve.FeeRecipient)
	}

	return curve.Config{
		Token:              c.TokenAddress(),
		Asset:              c.AssetAddress(),
		AssetKind:          kind,
		TokenSupplyCap:     supplyCap,
		AssetRate:          c.Curve.AssetRate,
		GradThreshold:      threshold,
		GradMetric:         metric,
		MaxTx:              maxTx,
		BuyFeeBps:          c.Curve.BuyFeeBps,
		SellFeeBps:         c.Curve.SellFeeBps,
		FeeRecipient:       feeRecipient,
		Owner:              owner,
		VirtualAssetOffset: virtualAsset,
		VirtualTokenOffset: virtualToken,
		AccrueFees:         c.Curve.AccrueFees,
	}, nil
}

// InitialAmounts returns the initial liquidity in base units.
func (c *Config) InitialAmounts() (asset, token *uint256.Int, err error) {
	asset, err = c.assetUnits("initial_liquidity.asset", c.InitialLiquidity.Asset)
	if err != nil {
		return nil, nil, err
	}
	token, err = c.tokenUnits("initial_liquidity.token", c.InitialLiquidity.Token)
	if err != nil {
		return nil, nil, err
	}
	return asset, token, nil
}

// AssetAmount converts a human asset amount.
func (c *Config) AssetAmount(s string) (*uint256.Int, error) {
	return c.assetUnits("amount", s)
}

// TokenAmount converts a human token amount.
func (c *Config) TokenAmount(s string) (*uint256.Int, error) {
	return c.tokenUnits("amount", s)
}

func orZero(s string) string {
	if strings.TrimSpace(s) == "" {
		return "0"
	}
	return s
}
