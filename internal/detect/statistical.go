package detect

import (
	"fmt"
	"math"

	"github.com/miradorstack/mirador-sentinel/internal/models"
)

// zeroVarianceScore is the deviation score assigned when a perfectly flat
// series departs from its mean: any departure from zero variance is treated
// as maximal surprise.
const zeroVarianceScore = 4.0

// StatisticalDetector flags samples whose z-score against the trailing
// window exceeds the configured sigma multiplier.
type StatisticalDetector struct{}

// NewStatisticalDetector creates a z-score detector.
func NewStatisticalDetector() *StatisticalDetector {
	return &StatisticalDetector{}
}

func (d *StatisticalDetector) Name() string { return "statistical" }

// Evaluate compares the newest sample against the mean and standard
// deviation of the preceding history.
func (d *StatisticalDetector) Evaluate(metric string, windows Windows, p Params) (*models.AnomalyAlert, error) {
	samples := windows[metric]
	if len(samples) < minSamples+1 {
		return nil, nil
	}

	history := samples[:len(samples)-1]
	actual := samples[len(samples)-1]
	mu := mean(history)
	sigma := stdDev(history)

	threshold := p.StatisticalThreshold
	if threshold <= 0 {
		threshold = 2.0
	}

	var score float64
	zeroVariance := sigma == 0
	if zeroVariance {
		if actual == mu {
			return nil, nil
		}
		score = zeroVarianceScore
	} else {
		score = math.Abs((actual - mu) / sigma)
		if score < threshold {
			return nil, nil
		}
	}

	alert := newAlert(models.AnomalyStatistical, metric, score, actual, mu,
		fmt.Sprintf("%s deviates %.2f sigma from mean %.2f", metric, score, mu))
	alert.Context["sample_size"] = len(history)
	alert.Context["std_dev"] = sigma
	alert.Context["detection_method"] = "z-score"
	if zeroVariance {
		alert.Context["zero_variance"] = true
	}
	return alert, nil
}
