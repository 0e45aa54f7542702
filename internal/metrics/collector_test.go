// internal/metrics/collector_test.go
package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/vcurve/internal/events"
)

var curveID = common.HexToAddress("0xc0")

func eth(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

func curveEvent(typ events.EventType, seq uint64, fill func(*events.CurveEvent)) *events.CurveEvent {
	ev := &events.CurveEvent{
		BaseEvent: events.NewBaseEvent(typ, time.Now()),
		CurveID:   curveID,
		Sequence:  seq,
		Status:    "active",
	}
	if fill != nil {
		fill(ev)
	}
	return ev
}

func TestCollectorCountsTrades(t *testing.T) {
	c := NewCollector(18, 18)
	ctx := context.Background()
	id := curveID.Hex()

	require.NoError(t, c.Handle(ctx, curveEvent(events.CurveAddLiquidity, 1, func(ev *events.CurveEvent) {
		ev.ReservesAfter = events.Reserves{Token: eth(1000), Asset: eth(10)}
		ev.Price = uint256.NewInt(1e16)
	})))
	require.NoError(t, c.Handle(ctx, curveEvent(events.CurveBuy, 2, func(ev *events.CurveEvent) {
		ev.AmountIn = eth(2)
		ev.Fee = eth(1)
	})))
	require.NoError(t, c.Handle(ctx, curveEvent(events.CurveSell, 3, func(ev *events.CurveEvent) {
		ev.AmountOut = eth(1)
	})))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.trades.WithLabelValues(id, "buy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.trades.WithLabelValues(id, "sell")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.volume.WithLabelValues(id, "buy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fees.WithLabelValues(id, "buy")))
	assert.Equal(t, 1000.0, testutil.ToFloat64(c.reserves.WithLabelValues(id, "token")))
	assert.InDelta(t, 0.01, testutil.ToFloat64(c.price.WithLabelValues(id)), 1e-12)
	assert.Equal(t, 3.0, testutil.ToFloat64(c.lastSeq.WithLabelValues(id)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.status.WithLabelValues(id, "active")))
}

func TestCollectorTracksGraduation(t *testing.T) {
	c := NewCollector(18, 18)
	ctx := context.Background()
	id := curveID.Hex()

	require.NoError(t, c.Handle(ctx, curveEvent(events.CurveMigrationFailed, 4, func(ev *events.CurveEvent) {
		ev.Status = "graduating"
	})))
	require.NoError(t, c.Handle(ctx, curveEvent(events.CurveGraduate, 5, func(ev *events.CurveEvent) {
		ev.Status = "graduated"
	})))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.migrations.WithLabelValues(id, "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.migrations.WithLabelValues(id, "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.status.WithLabelValues(id, "graduating")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.status.WithLabelValues(id, "graduated")))
}

func TestCollectorServesExposition(t *testing.T) {
	c := NewCollector(18, 18)
	require.NoError(t, c.Handle(context.Background(), curveEvent(events.CurveBuy, 1, func(ev *events.CurveEvent) {
		ev.AmountIn = eth(1)
	})))

	rec := httptest.NewRecorder()
	c.HTTPHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "vcurve_trades_total"))

	c.Reset()
	assert.Equal(t, 0, testutil.CollectAndCount(c.trades))
}
