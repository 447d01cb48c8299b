package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "cvgen"

// Probe execution Prometheus metrics.
var (
	ProbeRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_runs_total",
			Help:      "Completed probe runs by outcome",
		},
		[]string{"status"}, // "passed" / "failed" / "error"
	)

	ProbeResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_results_total",
			Help:      "Probe results by probe and status",
		},
		[]string{"probe", "status"},
	)

	ProbeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Probe execution time in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"probe"},
	)

	ProbeStoreErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_store_errors_total",
			Help:      "Probe results that could not be persisted",
		},
	)

	DiagnosisRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnosis_requests_total",
			Help:      "AI diagnosis requests by outcome",
		},
		[]string{"status"}, // "ok" / "error" / "timeout" / "panic" / "unavailable"
	)

	DiagnosisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "diagnosis_duration_seconds",
			Help:      "AI diagnosis duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	RealtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_connections",
			Help:      "Open WebSocket connections across all rooms",
		},
	)
)

var probeMetricsRegistered bool

// RegisterProbeMetrics registers the probe collectors. Must be called once from main.
func RegisterProbeMetrics() {
	if probeMetricsRegistered {
		return
	}
	prometheus.MustRegister(ProbeRunsTotal)
	prometheus.MustRegister(ProbeResultsTotal)
	prometheus.MustRegister(ProbeDuration)
	prometheus.MustRegister(ProbeStoreErrorsTotal)
	prometheus.MustRegister(DiagnosisRequestsTotal)
	prometheus.MustRegister(DiagnosisDuration)
	prometheus.MustRegister(RealtimeConnections)
	probeMetricsRegistered = true
}
