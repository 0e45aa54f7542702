package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "logs", "vcurve.log")

	l, err := newWithConsole(&Config{LogFile: logFile, MaxSize: 1}, &console)
	require.NoError(t, err)

	l.WithCurve(common.HexToAddress("0xc0")).Info("Curve created", zap.String("token", "0x01"))
	l.Debug("hidden below info")
	require.NoError(t, l.Sync())

	assert.Contains(t, console.String(), "Curve created")
	assert.NotContains(t, console.String(), "hidden below info")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"curve_id":"0x00000000000000000000000000000000000000C0"`)
}

func TestDevelopmentLowersLevel(t *testing.T) {
	var console bytes.Buffer
	l, err := newWithConsole(&Config{Development: true}, &console)
	require.NoError(t, err)

	end := l.TrackPerformance("quote")
	end()
	assert.Contains(t, console.String(), "Operation completed")
}

func TestPrettyConsoleRewritesKnownMessages(t *testing.T) {
	var console bytes.Buffer
	l, err := newWithConsole(&Config{Pretty: true}, &console)
	require.NoError(t, err)

	l.With(zap.String("curve_id", "0x00000000000000000000000000000000000000C0")).
		Info("Initial liquidity added", zap.String("asset_amount", "10"), zap.String("token_amount", "1000"))
	l.Info("Something else", zap.String("noise", "dropped"))

	out := console.String()
	assert.Contains(t, out, "Curve 0x0000...00C0 live: 10 asset / 1000 token")
	assert.Contains(t, out, "Something else")
	assert.False(t, strings.Contains(out, "dropped"), "fields stay out of pretty output")
}

func TestFormatMessage(t *testing.T) {
	msg := FormatMessage("Migration failed", zap.Int("attempt", 2), zap.String("error", "pool unavailable"))
	assert.Contains(t, msg, "Migration attempt 2 failed: pool unavailable")

	assert.Equal(t, "unchanged", FormatMessage("unchanged"))
}
