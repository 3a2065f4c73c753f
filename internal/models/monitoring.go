package models

// MetricPair names two metrics whose correlation is tracked, e.g. latency
// against request volume.
type MetricPair struct {
	Primary   string `json:"primary" yaml:"primary"`
	Secondary string `json:"secondary" yaml:"secondary"`
}

// MonitoringConfig holds the runtime-tunable monitoring settings. The engine
// reads a fresh snapshot on every poll tick, so patches take effect without a
// restart.
type MonitoringConfig struct {
	PollIntervalSeconds     int                `json:"poll_interval_seconds"`
	AnomalyDetectionWindow  int                `json:"anomaly_detection_window"`
	StatisticalThreshold    float64            `json:"statistical_threshold"`
	CorrelationThreshold    float64            `json:"correlation_threshold"`
	ThresholdRatio          float64            `json:"threshold_ratio"`
	MaxAlertsPerMinute      int                `json:"max_alerts_per_minute"`
	EnableAutoResponse      bool               `json:"enable_auto_response"`
	MonitoredMetrics        []string           `json:"monitored_metrics"`
	MetricThresholds        map[string]float64 `json:"metric_thresholds,omitempty"`
	CorrelationPairs        []MetricPair       `json:"correlation_pairs,omitempty"`
	ExecutionTimeoutSeconds int                `json:"execution_timeout_seconds"`
	AutoExecuteMaxSeverity  Severity           `json:"auto_execute_max_severity"`
}

// MonitoringPatch is a partial MonitoringConfig update; nil fields are left
// unchanged.
type MonitoringPatch struct {
	PollIntervalSeconds     *int                `json:"poll_interval_seconds,omitempty"`
	AnomalyDetectionWindow  *int                `json:"anomaly_detection_window,omitempty"`
	StatisticalThreshold    *float64            `json:"statistical_threshold,omitempty"`
	CorrelationThreshold    *float64            `json:"correlation_threshold,omitempty"`
	ThresholdRatio          *float64            `json:"threshold_ratio,omitempty"`
	MaxAlertsPerMinute      *int                `json:"max_alerts_per_minute,omitempty"`
	EnableAutoResponse      *bool               `json:"enable_auto_response,omitempty"`
	MonitoredMetrics        *[]string           `json:"monitored_metrics,omitempty"`
	MetricThresholds        *map[string]float64 `json:"metric_thresholds,omitempty"`
	CorrelationPairs        *[]MetricPair       `json:"correlation_pairs,omitempty"`
	ExecutionTimeoutSeconds *int                `json:"execution_timeout_seconds,omitempty"`
	AutoExecuteMaxSeverity  *Severity           `json:"auto_execute_max_severity,omitempty"`
}
