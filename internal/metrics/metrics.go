package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	checksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirador_sentinel",
			Name:      "checks_total",
			Help:      "Total number of completed monitoring poll ticks.",
		},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_sentinel",
			Name:      "alerts_total",
			Help:      "Admitted anomaly alerts, partitioned by detector and severity.",
		},
		[]string{"detector", "severity"},
	)

	alertsSuppressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirador_sentinel",
			Name:      "alerts_suppressed_total",
			Help:      "Alert candidates dropped by the per-metric rate limiter.",
		},
	)

	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_sentinel",
			Name:      "executions_total",
			Help:      "Response executions reaching a state, partitioned by status.",
		},
		[]string{"status"},
	)

	executionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_sentinel",
			Name:      "execution_seconds",
			Help:      "Remediation execution latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)
)

// Register attaches sentinel collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		checksTotal,
		alertsTotal,
		alertsSuppressedTotal,
		executionsTotal,
		executionSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCheck counts a completed poll tick.
func ObserveCheck() {
	checksTotal.Inc()
}

// ObserveAlert counts an admitted alert.
func ObserveAlert(detector, severity string) {
	alertsTotal.WithLabelValues(detector, severity).Inc()
}

// ObserveSuppressedAlert counts a rate-limited alert candidate.
func ObserveSuppressedAlert() {
	alertsSuppressedTotal.Inc()
}

// ObserveExecution records an execution outcome and its latency.
func ObserveExecution(status string, duration time.Duration) {
	executionsTotal.WithLabelValues(status).Inc()
	if duration < 0 {
		duration = 0
	}
	executionSeconds.Observe(duration.Seconds())
}

// ObserveExecutionState counts a state transition without a latency sample,
// e.g. pending-approval creation or denial.
func ObserveExecutionState(status string) {
	executionsTotal.WithLabelValues(status).Inc()
}
