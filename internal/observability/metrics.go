// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Presale program metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	SaleTotalRaised   *prometheus.GaugeVec
	LamportsPurchased prometheus.Counter
	LamportsWithdrawn prometheus.Counter
	TokensClaimed     prometheus.Counter

	// Event export metrics
	EventsExported     *prometheus.CounterVec
	ExportErrors       *prometheus.CounterVec
	LastExportedSeq    *prometheus.GaugeVec
	StreamSubscribers  prometheus.Gauge
	StreamDroppedTotal prometheus.Counter

	// Ledger metrics
	LedgerTxDuration *prometheus.HistogramVec
	LedgerTxErrors   *prometheus.CounterVec

	// Transport metrics
	HTTPRequests   *prometheus.CounterVec
	RPCCallLatency *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulOperation prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_presale"
	}

	return &Metrics{
		// Presale program metrics
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "program",
			Name:      "operations_total",
			Help:      "Total number of presale operations by operation and result kind",
		}, []string{"operation", "result"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "program",
			Name:      "operation_duration_seconds",
			Help:      "Presale operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		SaleTotalRaised: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "program",
			Name:      "sale_total_raised_lamports",
			Help:      "Total lamports raised per sale",
		}, []string{"sale_id"}),
		LamportsPurchased: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "program",
			Name:      "lamports_purchased_total",
			Help:      "Total lamports deposited into vaults by purchases",
		}),
		LamportsWithdrawn: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "program",
			Name:      "lamports_withdrawn_total",
			Help:      "Total lamports withdrawn from vaults to treasuries",
		}),
		TokensClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "program",
			Name:      "tokens_claimed_total",
			Help:      "Total tokens paid out by claims",
		}),

		// Event export metrics
		EventsExported: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "events_exported_total",
			Help:      "Total number of ledger events exported by sink",
		}, []string{"sink"}),
		ExportErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "errors_total",
			Help:      "Total number of failed export batches by sink",
		}, []string{"sink"}),
		LastExportedSeq: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "last_exported_sequence",
			Help:      "Sequence of the last exported ledger event by sink",
		}, []string{"sink"}),
		StreamSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Current number of WebSocket event stream subscribers",
		}),
		StreamDroppedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "dropped_events_total",
			Help:      "Total number of events dropped for slow stream subscribers",
		}),

		// Ledger metrics
		LedgerTxDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tx_duration_seconds",
			Help:      "Ledger transaction duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		LedgerTxErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tx_errors_total",
			Help:      "Total number of ledger transactions that did not commit",
		}, []string{"mode"}),

		// Transport metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Health metrics
		LastSuccessfulOperation: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_operation_timestamp",
			Help:      "Unix timestamp of the last committed presale operation",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordOperation records one presale operation. result is "ok" or an error kind.
func RecordOperation(operation, result string, seconds float64) {
	DefaultMetrics.OperationsTotal.WithLabelValues(operation, result).Inc()
	DefaultMetrics.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordPurchase records a committed purchase.
func RecordPurchase(saleID string, lamports, totalRaised uint64) {
	DefaultMetrics.LamportsPurchased.Add(float64(lamports))
	DefaultMetrics.SaleTotalRaised.WithLabelValues(saleID).Set(float64(totalRaised))
}

// RecordWithdrawal records a committed treasury withdrawal.
func RecordWithdrawal(lamports uint64) {
	DefaultMetrics.LamportsWithdrawn.Add(float64(lamports))
}

// RecordClaim records a committed token claim.
func RecordClaim(tokens uint64) {
	DefaultMetrics.TokensClaimed.Add(float64(tokens))
}

// RecordCommit updates the last successful operation timestamp.
func RecordCommit(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulOperation.Set(float64(unixSeconds))
}

// RecordExport records an export batch for sink.
func RecordExport(sink string, events int, lastSequence int64, err error) {
	if err != nil {
		DefaultMetrics.ExportErrors.WithLabelValues(sink).Inc()
		return
	}
	DefaultMetrics.EventsExported.WithLabelValues(sink).Add(float64(events))
	DefaultMetrics.LastExportedSeq.WithLabelValues(sink).Set(float64(lastSequence))
}

// UpdateStreamSubscribers sets the current subscriber count.
func UpdateStreamSubscribers(n int) {
	DefaultMetrics.StreamSubscribers.Set(float64(n))
}

// RecordStreamDrop counts an event dropped for a slow subscriber.
func RecordStreamDrop() {
	DefaultMetrics.StreamDroppedTotal.Inc()
}

// RecordLedgerTx records ledger transaction metrics.
func RecordLedgerTx(mode string, seconds float64, err error) {
	DefaultMetrics.LedgerTxDuration.WithLabelValues(mode).Observe(seconds)
	if err != nil {
		DefaultMetrics.LedgerTxErrors.WithLabelValues(mode).Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(route string, status int) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}
