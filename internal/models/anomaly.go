package models

import "time"

// AnomalyType enumerates the detection strategies that can raise an alert.
type AnomalyType string

const (
	AnomalyStatistical AnomalyType = "statistical"
	AnomalyThreshold   AnomalyType = "threshold"
	AnomalyCorrelation AnomalyType = "correlation"
)

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (0) to critical (3). Unknown values rank
// below low so they never widen an auto-execution policy.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// SeverityFromScore maps a deviation score (sigma multiples or ratio) to a
// severity band.
func SeverityFromScore(score float64) Severity {
	switch {
	case score >= 4:
		return SeverityCritical
	case score >= 3:
		return SeverityHigh
	case score >= 2:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// AnomalyAlert is a single detected anomaly. Alerts are immutable once
// appended to the alert log.
type AnomalyAlert struct {
	ID                    string         `json:"id"`
	Timestamp             time.Time      `json:"timestamp"`
	Type                  AnomalyType    `json:"anomaly_type"`
	MetricName            string         `json:"metric_name"`
	Severity              Severity       `json:"severity"`
	ActualValue           float64        `json:"actual_value"`
	ExpectedValue         float64        `json:"expected_value"`
	DeviationScore        float64        `json:"deviation_score"`
	Message               string         `json:"message"`
	Context               map[string]any `json:"context_data,omitempty"`
	AutoResponseTriggered bool           `json:"auto_response_triggered"`
	ResponseActions       []string       `json:"response_actions,omitempty"`
}
