package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DeploymentInfoFile is the file name WriteDeploymentInfo writes into its directory.
const DeploymentInfoFile = "virtual-bonding-deployment-info.json"

// DeploymentInfo records one curve deployment. Amounts are decimal strings
// in display units.
type DeploymentInfo struct {
	Network     string    `json:"network"`
	DeployedAt  time.Time `json:"deployed_at"`
	Owner       string    `json:"owner"`
	Token       string    `json:"token"`
	TokenSymbol string    `json:"token_symbol"`
	Asset       string    `json:"asset"`
	AssetSymbol string    `json:"asset_symbol"`
	AssetKind   string    `json:"asset_kind"`
	Curve       string    `json:"curve"`
	PoolFactory string    `json:"pool_factory"`
	Status      string    `json:"status"`

	InitialLiquidity struct {
		Asset string `json:"asset"`
		Token string `json:"token"`
	} `json:"initial_liquidity"`

	Parameters struct {
		SupplyCap     string `json:"supply_cap"`
		GradThreshold string `json:"grad_threshold"`
		GradMetric    string `json:"grad_metric"`
		AssetRate     uint64 `json:"asset_rate"`
		MaxTx         string `json:"max_tx"`
		BuyFeeBps     uint64 `json:"buy_fee_bps"`
		SellFeeBps    uint64 `json:"sell_fee_bps"`
		FeeRecipient  string `json:"fee_recipient"`
	} `json:"parameters"`

	State struct {
		CurrentPrice  string `json:"current_price"`
		ExternalPrice string `json:"external_price"`
		ReserveToken  string `json:"reserve_token"`
		ReserveAsset  string `json:"reserve_asset"`
		KLast         string `json:"k_last"`
		Progress      uint64 `json:"graduation_progress_bps"`
		ThresholdMet  bool   `json:"threshold_met"`
	} `json:"state"`
}

// WriteDeploymentInfo writes info as indented JSON into dir and returns the path.
func WriteDeploymentInfo(info *DeploymentInfo, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode deployment info: %w", err)
	}

	path := filepath.Join(dir, DeploymentInfoFile)
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("failed to write deployment info: %w", err)
	}
	return path, nil
}

// ReadDeploymentInfo loads a file written by WriteDeploymentInfo.
func ReadDeploymentInfo(path string) (*DeploymentInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deployment info: %w", err)
	}
	var info DeploymentInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to decode deployment info: %w", err)
	}
	return &info, nil
}
