// Package metrics exposes the trader's Prometheus collectors and the
// /healthz liveness report.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading loop.
type Metrics struct {
	registry *prometheus.Registry

	TicksTotal    prometheus.Counter
	SkippedCycles *prometheus.CounterVec // labels: reason
	CycleDur      prometheus.Histogram
	CyclePanics   prometheus.Counter

	// Decision engine
	ActionsTotal  *prometheus.CounterVec // labels: action
	TradesTotal   *prometheus.CounterVec // labels: side
	RejectedTotal prometheus.Counter

	// Model trainer
	RetrainDur   prometheus.Histogram
	RetrainTotal *prometheus.CounterVec // labels: outcome

	// Wallet
	Equity   prometheus.Gauge
	Balance  prometheus.Gauge
	Drawdown prometheus.Gauge

	// Collaborators
	FeedErrors    *prometheus.CounterVec // labels: provider
	BreakerState  *prometheus.GaugeVec   // labels: name (0=closed, 1=open, 2=half-open)
	PublishErrs   prometheus.Counter
	StreamClients prometheus.Gauge
}

// NewMetrics registers all collectors on a dedicated registry so several
// instances can coexist in one process (tests, backtests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,

		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_ticks_total",
			Help: "Price ticks accepted into the tick buffer",
		}),
		SkippedCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_skipped_cycles_total",
			Help: "Ingestion cycles skipped (by reason)",
		}, []string{"reason"}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_cycle_duration_seconds",
			Help:    "Ingestion cycle latency, fetch through publish",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		CyclePanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_cycle_panics_total",
			Help: "Ingestion cycles aborted by a recovered panic",
		}),

		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_actions_total",
			Help: "Decision engine actions emitted (by action)",
		}, []string{"action"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_trades_total",
			Help: "Simulated trades executed (by side)",
		}, []string{"side"}),
		RejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_trades_rejected_total",
			Help: "BUY/SELL decisions the wallet could not fill",
		}),

		RetrainDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_retrain_duration_seconds",
			Help:    "Model retrain latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		RetrainTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_retrain_total",
			Help: "Retrain attempts (by outcome)",
		}, []string{"outcome"}),

		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_wallet_equity",
			Help: "Wallet equity at the last observed price",
		}),
		Balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_wallet_balance",
			Help: "Wallet cash balance",
		}),
		Drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_wallet_drawdown_pct",
			Help: "Equity drawdown from the running peak, in percent",
		}),

		FeedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_feed_errors_total",
			Help: "Price provider failures (by provider)",
		}, []string{"provider"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trader_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		PublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_publish_errors_total",
			Help: "Latest-snapshot publish failures",
		}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_stream_clients",
			Help: "Connected /stream WebSocket clients",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TicksTotal,
		m.SkippedCycles,
		m.CycleDur,
		m.CyclePanics,
		m.ActionsTotal,
		m.TradesTotal,
		m.RejectedTotal,
		m.RetrainDur,
		m.RetrainTotal,
		m.Equity,
		m.Balance,
		m.Drawdown,
		m.FeedErrors,
		m.BreakerState,
		m.PublishErrs,
		m.StreamClients,
	)

	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCycle records one completed cycle's duration.
func (m *Metrics) ObserveCycle(start time.Time) {
	m.CycleDur.Observe(time.Since(start).Seconds())
}

// ObserveRetrain records a retrain attempt. outcome is one of
// "ok", "skipped", "insufficient" or "error".
func (m *Metrics) ObserveRetrain(outcome string, d time.Duration) {
	m.RetrainTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" || outcome == "error" {
		m.RetrainDur.Observe(d.Seconds())
	}
}
