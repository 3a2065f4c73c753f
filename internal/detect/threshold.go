package detect

import (
	"fmt"

	"github.com/miradorstack/mirador-sentinel/internal/models"
)

// ThresholdDetector compares the newest sample against a configured expected
// ceiling (an SLA bound or budget) per metric.
type ThresholdDetector struct{}

// NewThresholdDetector creates a static-threshold detector.
func NewThresholdDetector() *ThresholdDetector {
	return &ThresholdDetector{}
}

func (d *ThresholdDetector) Name() string { return "threshold" }

// Evaluate flags when the relative excess over the expected value exceeds
// the configured ratio (1.0 means 100% over).
func (d *ThresholdDetector) Evaluate(metric string, windows Windows, p Params) (*models.AnomalyAlert, error) {
	expected, ok := p.MetricThresholds[metric]
	if !ok {
		return nil, nil
	}
	samples := windows[metric]
	if len(samples) == 0 {
		return nil, nil
	}
	actual := samples[len(samples)-1]

	var deviation float64
	if expected > 0 {
		deviation = actual/expected - 1
	} else {
		deviation = actual - expected
	}

	ratio := p.ThresholdRatio
	if ratio <= 0 {
		ratio = 1.0
	}
	if deviation <= ratio {
		return nil, nil
	}

	alert := newAlert(models.AnomalyThreshold, metric, deviation, actual, expected,
		fmt.Sprintf("%s at %.2f exceeds expected %.2f by %.0f%%", metric, actual, expected, deviation*100))
	alert.Context["detection_method"] = "threshold"
	alert.Context["threshold_ratio"] = ratio
	return alert, nil
}
