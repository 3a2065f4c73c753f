package config

import (
	"fmt"
	"sync"

	"github.com/miradorstack/mirador-sentinel/internal/models"
)

// Runtime holds the live monitoring settings behind a lock. The engine reads
// a snapshot on every poll tick; the control API patches individual fields.
type Runtime struct {
	mu  sync.RWMutex
	cfg models.MonitoringConfig
}

// NewRuntime wraps the initial monitoring settings.
func NewRuntime(cfg models.MonitoringConfig) *Runtime {
	return &Runtime{cfg: cfg}
}

// Snapshot returns a copy of the current settings.
func (r *Runtime) Snapshot() models.MonitoringConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.cfg
	out.MonitoredMetrics = append([]string(nil), r.cfg.MonitoredMetrics...)
	out.CorrelationPairs = append([]models.MetricPair(nil), r.cfg.CorrelationPairs...)
	if r.cfg.MetricThresholds != nil {
		out.MetricThresholds = make(map[string]float64, len(r.cfg.MetricThresholds))
		for k, v := range r.cfg.MetricThresholds {
			out.MetricThresholds[k] = v
		}
	}
	return out
}

// Apply patches the settings; unset fields are left unchanged. Values that
// would wedge the poll loop are rejected.
func (r *Runtime) Apply(patch models.MonitoringPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if patch.PollIntervalSeconds != nil {
		if *patch.PollIntervalSeconds <= 0 {
			return fmt.Errorf("poll_interval_seconds must be positive")
		}
		r.cfg.PollIntervalSeconds = *patch.PollIntervalSeconds
	}
	if patch.AnomalyDetectionWindow != nil {
		if *patch.AnomalyDetectionWindow < 5 {
			return fmt.Errorf("anomaly_detection_window must be at least 5")
		}
		r.cfg.AnomalyDetectionWindow = *patch.AnomalyDetectionWindow
	}
	if patch.StatisticalThreshold != nil {
		if *patch.StatisticalThreshold <= 0 {
			return fmt.Errorf("statistical_threshold must be positive")
		}
		r.cfg.StatisticalThreshold = *patch.StatisticalThreshold
	}
	if patch.CorrelationThreshold != nil {
		if *patch.CorrelationThreshold <= 0 {
			return fmt.Errorf("correlation_threshold must be positive")
		}
		r.cfg.CorrelationThreshold = *patch.CorrelationThreshold
	}
	if patch.ThresholdRatio != nil {
		if *patch.ThresholdRatio <= 0 {
			return fmt.Errorf("threshold_ratio must be positive")
		}
		r.cfg.ThresholdRatio = *patch.ThresholdRatio
	}
	if patch.MaxAlertsPerMinute != nil {
		if *patch.MaxAlertsPerMinute <= 0 {
			return fmt.Errorf("max_alerts_per_minute must be positive")
		}
		r.cfg.MaxAlertsPerMinute = *patch.MaxAlertsPerMinute
	}
	if patch.EnableAutoResponse != nil {
		r.cfg.EnableAutoResponse = *patch.EnableAutoResponse
	}
	if patch.MonitoredMetrics != nil {
		r.cfg.MonitoredMetrics = append([]string(nil), (*patch.MonitoredMetrics)...)
	}
	if patch.MetricThresholds != nil {
		r.cfg.MetricThresholds = *patch.MetricThresholds
	}
	if patch.CorrelationPairs != nil {
		r.cfg.CorrelationPairs = append([]models.MetricPair(nil), (*patch.CorrelationPairs)...)
	}
	if patch.ExecutionTimeoutSeconds != nil {
		if *patch.ExecutionTimeoutSeconds <= 0 {
			return fmt.Errorf("execution_timeout_seconds must be positive")
		}
		r.cfg.ExecutionTimeoutSeconds = *patch.ExecutionTimeoutSeconds
	}
	if patch.AutoExecuteMaxSeverity != nil {
		if patch.AutoExecuteMaxSeverity.Rank() < 0 {
			return fmt.Errorf("auto_execute_max_severity %q is not a severity", *patch.AutoExecuteMaxSeverity)
		}
		r.cfg.AutoExecuteMaxSeverity = *patch.AutoExecuteMaxSeverity
	}
	return nil
}
