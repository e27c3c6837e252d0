package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records
// nothing, and one Metrics may be shared by many books.
type Metrics struct {
	orders        *prometheus.CounterVec
	rejected      prometheus.Counter
	trades        *prometheus.CounterVec
	volume        prometheus.Counter
	cancellations prometheus.Counter
	discarded     prometheus.Counter
	runaway       prometheus.Counter
	injected      prometheus.Counter
	slippage      prometheus.Histogram
}

// NewMetrics registers the engine collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		orders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lobsim",
			Subsystem: "engine",
			Name:      "orders_total",
			Help:      "Orders accepted for matching, by side.",
		}, []string{"side"}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: "lobsim",
			Subsystem: "engine",
			Name:      "orders_rejected_total",
			Help:      "Orders rejected at the submission boundary.",
		}),
		trades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lobsim",
			Subsystem: "engine",
			Name:      "trades_total",
			Help:      "Executed trades, by aggressor side.",
		}, []string{"side"}),
		volume: f.NewCounter(prometheus.CounterOpts{
			Namespace: "lobsim",
			Subsystem: "engine",
			Name:      "executed_volume_total",
			Help:      "Total executed quantity.",
		}),
		cancellations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "lobsim",
			Subsystem: "engine",
			Name:      "cancellations_total",
			Help:      "Orders cancelled, simulated or explicit.",
		}),
		discarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: "lobsim",
			Subsystem: "engine",
			Name:      "discarded_children_total",
			Help:      "Child orders dropped for being below the minimum size.",
		}),
		runaway: f.NewCounter(prometheus.CounterOpts{
			Namespace: "lobsim",
			Subsystem: "engine",
			Name:      "runaway_matches_total",
			Help:      "Matches aborted by the iteration cap.",
		}),
		injected: f.NewCounter(prometheus.CounterOpts{
			Namespace: "lobsim",
			Subsystem: "engine",
			Name:      "injected_quotes_total",
			Help:      "Synthetic quotes added by the liquidity provider.",
		}),
		slippage: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lobsim",
			Subsystem: "engine",
			Name:      "slippage",
			Help:      "Per-trade slippage.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
	}
}

func (m *Metrics) order(side Side) {
	if m != nil {
		m.orders.WithLabelValues(side.String()).Inc()
	}
}

func (m *Metrics) reject() {
	if m != nil {
		m.rejected.Inc()
	}
}

func (m *Metrics) trade(t Trade, slippage float64) {
	if m == nil {
		return
	}
	m.trades.WithLabelValues(t.Side.String()).Inc()
	m.volume.Add(t.Qty)
	m.slippage.Observe(slippage)
}

func (m *Metrics) cancel() {
	if m != nil {
		m.cancellations.Inc()
	}
}

func (m *Metrics) discard() {
	if m != nil {
		m.discarded.Inc()
	}
}

func (m *Metrics) runawayMatch() {
	if m != nil {
		m.runaway.Inc()
	}
}

func (m *Metrics) inject(n int) {
	if m != nil && n > 0 {
		m.injected.Add(float64(n))
	}
}
