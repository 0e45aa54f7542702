package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/vcurve/internal/export"
)

const testConfig = `network: test
curve:
  token_symbol: VTK
  asset_symbol: WETH
  asset_kind: erc20
  grad_threshold: "200"
  grad_metric: tokens_sold
initial_liquidity:
  asset: "10"
  token: "1000"
accounts:
  - name: alice
    asset: "100"
  - name: bob
    asset: "100"
  - name: ops
    role: operator
pool:
  retries: 2
  retry_delay_ms: 1
storage:
  path: %s
export:
  dir: %s
`

func writeConfig(t *testing.T) (path, dir string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "curve.yaml")
	body := fmt.Sprintf(testConfig, filepath.Join(dir, "vcurve.db"), filepath.Join(dir, "exports"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--no-log-file"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDeployWritesDeploymentInfo(t *testing.T) {
	cfgPath, dir := writeConfig(t)

	out, err := run(t, "deploy", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Smoke test")
	assert.Contains(t, out, "Deployment (test)")

	info, err := export.ReadDeploymentInfo(filepath.Join(dir, "exports", export.DeploymentInfoFile))
	require.NoError(t, err)
	assert.Equal(t, "active", info.Status)
	assert.Equal(t, "VTK", info.TokenSymbol)

	listed, err := run(t, "trades", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, listed, "curve.add_liquidity")
	assert.Contains(t, listed, "curve.buy")

	exported, err := run(t, "trades", "-c", cfgPath, "--export", "csv", "--trades-only")
	require.NoError(t, err)
	path := strings.TrimSpace(lastLine(exported))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "buy")
}

func TestQuote(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := run(t, "quote", "buy", "1", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Quote (buy)")
	assert.Contains(t, out, "90.90909090909090909")

	_, err = run(t, "quote", "hold", "1", "-c", cfgPath)
	assert.Error(t, err)
}

func TestSimulateWithTape(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	tape := filepath.Join(dir, "tape.csv")

	out, err := run(t, "simulate", "-c", cfgPath, "--rounds", "5", "--asset-per-buy", "2", "--tape", tape)
	require.NoError(t, err)
	assert.Contains(t, out, "graduated")
	assert.Contains(t, out, "Graduation")

	data, err := os.ReadFile(tape)
	require.NoError(t, err)
	assert.Contains(t, string(data), "curve.graduate")
}

func TestGraduateRetriesFailedMigration(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := run(t, "graduate", "-c", cfgPath, "--caller", "ops", "--fail-add", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Graduation")
	assert.Contains(t, out, "add_liquidity calls")

	_, err = run(t, "graduate", "-c", cfgPath, "--caller", "bob")
	assert.Error(t, err)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
