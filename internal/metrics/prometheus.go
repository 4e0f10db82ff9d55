package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics holds all Prometheus metrics for a run.
type PrometheusMetrics struct {
	// Transaction counters
	TxTotal *prometheus.CounterVec

	// Receipts by status (success / reverted)
	ReceiptsTotal *prometheus.CounterVec

	// Errors by classification
	ErrorsTotal *prometheus.CounterVec

	// Gauges
	Phase        *prometheus.GaugeVec
	FundedSenders prometheus.Gauge

	// Histograms
	BroadcastLatency prometheus.Histogram
}

// NewPrometheusMetrics creates and registers all Prometheus metrics.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &PrometheusMetrics{
		TxTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txblast_transactions_total",
				Help: "Total transactions by status and type",
			},
			[]string{"status", "tx_type"},
		),

		ReceiptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txblast_receipts_total",
				Help: "Receipts fetched by status",
			},
			[]string{"status"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txblast_errors_total",
				Help: "Broadcast errors by classification",
			},
			[]string{"class"},
		),

		Phase: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "txblast_phase",
				Help: "Current run phase (1 if active, 0 otherwise)",
			},
			[]string{"phase"},
		),

		FundedSenders: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "txblast_funded_senders",
				Help: "Number of funded sender accounts",
			},
		),

		BroadcastLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "txblast_broadcast_latency_seconds",
				Help:    "Per-transaction broadcast latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
			},
		),
	}
}

// RecordTxAccepted records a broadcast-accepted transaction.
func (m *PrometheusMetrics) RecordTxAccepted(txType string) {
	m.TxTotal.WithLabelValues("accepted", txType).Inc()
}

// RecordTxFailed records a broadcast-rejected transaction.
func (m *PrometheusMetrics) RecordTxFailed(txType string) {
	m.TxTotal.WithLabelValues("failed", txType).Inc()
}

// RecordTxConfirmed records a confirmed transaction.
func (m *PrometheusMetrics) RecordTxConfirmed(txType string) {
	m.TxTotal.WithLabelValues("confirmed", txType).Inc()
}

// RecordReceipt records a fetched receipt by outcome.
func (m *PrometheusMetrics) RecordReceipt(success bool) {
	status := "success"
	if !success {
		status = "reverted"
	}
	m.ReceiptsTotal.WithLabelValues(status).Inc()
}

// RecordError records a classified broadcast error.
func (m *PrometheusMetrics) RecordError(class string) {
	m.ErrorsTotal.WithLabelValues(class).Inc()
}

// RecordBroadcastLatency records one send round-trip.
func (m *PrometheusMetrics) RecordBroadcastLatency(d time.Duration) {
	m.BroadcastLatency.Observe(d.Seconds())
}

// SetPhase updates the phase gauges.
func (m *PrometheusMetrics) SetPhase(phase string) {
	for _, p := range []string{"idle", "funding", "generating", "signing", "broadcasting", "confirming", "verifying", "done"} {
		if p == phase {
			m.Phase.WithLabelValues(p).Set(1)
		} else {
			m.Phase.WithLabelValues(p).Set(0)
		}
	}
}

// Serve exposes /metrics on addr in a background goroutine.
// A listener failure is logged, never fatal.
func Serve(addr string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		logger.Info("Serving metrics", slog.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics listener failed", slog.String("err", err.Error()))
		}
	}()
}
