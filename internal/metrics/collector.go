// internal/metrics/collector.go
package metrics

import (
	"context"
	"net/http"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rovshanmuradov/vcurve/internal/events"
	"github.com/rovshanmuradov/vcurve/internal/fixedpoint"
)

const namespace = "vcurve"

// Collector turns curve events into prometheus series. Subscribe it to the
// event bus with AllEvents.
type Collector struct {
	registry      *prometheus.Registry
	tokenDecimals int32
	assetDecimals int32

	trades     *prometheus.CounterVec
	volume     *prometheus.CounterVec
	fees       *prometheus.CounterVec
	price      *prometheus.GaugeVec
	reserves   *prometheus.GaugeVec
	status     *prometheus.GaugeVec
	migrations *prometheus.CounterVec
	lastSeq    *prometheus.GaugeVec
}

var _ events.Handler = (*Collector)(nil)

// NewCollector registers the curve metrics on a private registry.
func NewCollector(tokenDecimals, assetDecimals int32) *Collector {
	c := &Collector{
		registry:      prometheus.NewRegistry(),
		tokenDecimals: tokenDecimals,
		assetDecimals: assetDecimals,

		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Total number of committed curve trades",
		}, []string{"curve_id", "direction"}),

		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asset_volume_total",
			Help:      "Asset paid into or out of the curve, in asset units",
		}, []string{"curve_id", "direction"}),

		fees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_total",
			Help:      "Fees charged, in asset units",
		}, []string{"curve_id", "direction"}),

		price: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spot_price",
			Help:      "Spot price in asset per token after the last event",
		}, []string{"curve_id"}),

		reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "virtual_reserves",
			Help:      "Virtual reserves after the last event",
		}, []string{"curve_id", "side"}),

		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "curve_status",
			Help:      "1 for the curve's current lifecycle status",
		}, []string{"curve_id", "status"}),

		migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Graduation migration outcomes",
		}, []string{"curve_id", "result"}),

		lastSeq: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sequence",
			Help:      "Sequence number of the last observed event",
		}, []string{"curve_id"}),
	}

	c.registry.MustRegister(c.trades, c.volume, c.fees, c.price, c.reserves, c.status, c.migrations, c.lastSeq)
	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// HTTPHandler serves the collected metrics in the exposition format.
func (c *Collector) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Reset clears every series.
func (c *Collector) Reset() {
	for _, v := range []interface{ Reset() }{c.trades, c.volume, c.fees, c.price, c.reserves, c.status, c.migrations, c.lastSeq} {
		v.Reset()
	}
}

// Handle implements events.Handler.
func (c *Collector) Handle(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.CurveEvent)
	if !ok {
		return nil
	}
	id := ev.CurveID.Hex()

	switch ev.Type() {
	case events.CurveBuy:
		c.recordTrade(id, "buy", ev.AmountIn, ev.Fee)
	case events.CurveSell:
		c.recordTrade(id, "sell", ev.AmountOut, ev.Fee)
	case events.CurveGraduate:
		c.migrations.WithLabelValues(id, "success").Inc()
	case events.CurveMigrationFailed:
		c.migrations.WithLabelValues(id, "failure").Inc()
	}

	if ev.ReservesAfter.Token != nil && ev.ReservesAfter.Asset != nil {
		c.reserves.WithLabelValues(id, "token").Set(fixedpoint.ToFloat(ev.ReservesAfter.Token, c.tokenDecimals))
		c.reserves.WithLabelValues(id, "asset").Set(fixedpoint.ToFloat(ev.ReservesAfter.Asset, c.assetDecimals))
	}
	if ev.Price != nil {
		c.price.WithLabelValues(id).Set(fixedpoint.ToFloat(ev.Price, 18))
	}
	if ev.Status != "" {
		c.setStatus(id, ev.Status)
	}
	c.lastSeq.WithLabelValues(id).Set(float64(ev.Sequence))
	return nil
}

func (c *Collector) recordTrade(id, direction string, assetAmount, fee *uint256.Int) {
	c.trades.WithLabelValues(id, direction).Inc()
	if assetAmount != nil {
		c.volume.WithLabelValues(id, direction).Add(fixedpoint.ToFloat(assetAmount, c.assetDecimals))
	}
	if fee != nil {
		c.fees.WithLabelValues(id, direction).Add(fixedpoint.ToFloat(fee, c.assetDecimals))
	}
}

func (c *Collector) setStatus(id, status string) {
	for _, s := range []string{"uninitialized", "active", "graduating", "graduated"} {
		v := 0.0
		if s == status {
			v = 1
		}
		c.status.WithLabelValues(id, s).Set(v)
	}
}
