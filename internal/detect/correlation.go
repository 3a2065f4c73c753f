package detect

import (
	"fmt"

	"github.com/miradorstack/mirador-sentinel/internal/models"
)

// baselineWarmup is how many correlation observations a pair needs before
// divergence from the baseline is trusted.
const baselineWarmup = 3

// CorrelationDetector tracks the rolling Pearson correlation of configured
// metric pairs and flags when the live correlation diverges from its
// historical baseline. Latency rising while request volume is flat is a
// different signature than load-driven slowdown, and this is what catches it.
type CorrelationDetector struct {
	baselines map[string]*correlationBaseline
}

type correlationBaseline struct {
	value float64
	count int
}

// observe folds a new correlation observation into the EWMA baseline.
func (b *correlationBaseline) observe(r float64) {
	if b.count == 0 {
		b.value = r
	} else {
		// Slow EWMA so that a short-lived divergence does not drag the
		// baseline along with it.
		b.value = 0.9*b.value + 0.1*r
	}
	b.count++
}

// NewCorrelationDetector creates a detector with empty baselines.
func NewCorrelationDetector() *CorrelationDetector {
	return &CorrelationDetector{baselines: make(map[string]*correlationBaseline)}
}

func (d *CorrelationDetector) Name() string { return "correlation" }

// Evaluate runs only for metrics that are the primary of a configured pair.
func (d *CorrelationDetector) Evaluate(metric string, windows Windows, p Params) (*models.AnomalyAlert, error) {
	for _, pair := range p.CorrelationPairs {
		if pair.Primary != metric {
			continue
		}
		if alert := d.evaluatePair(pair, windows, p); alert != nil {
			return alert, nil
		}
	}
	return nil, nil
}

func (d *CorrelationDetector) evaluatePair(pair models.MetricPair, windows Windows, p Params) *models.AnomalyAlert {
	primary := windows[pair.Primary]
	secondary := windows[pair.Secondary]
	n := len(primary)
	if len(secondary) < n {
		n = len(secondary)
	}
	if n < minSamples {
		return nil
	}
	// Align on the trailing n samples of each series.
	live, ok := pearson(primary[len(primary)-n:], secondary[len(secondary)-n:])
	if !ok {
		return nil
	}

	key := pair.Primary + "|" + pair.Secondary
	baseline, exists := d.baselines[key]
	if !exists {
		baseline = &correlationBaseline{}
		d.baselines[key] = baseline
	}

	threshold := p.CorrelationThreshold
	if threshold <= 0 {
		threshold = 0.5
	}

	var alert *models.AnomalyAlert
	divergence := live - baseline.value
	if divergence < 0 {
		divergence = -divergence
	}
	if baseline.count >= baselineWarmup && divergence > threshold {
		score := 2.0 * divergence / threshold
		alert = newAlert(models.AnomalyCorrelation, pair.Primary, score, live, baseline.value,
			fmt.Sprintf("correlation between %s and %s shifted from %.2f to %.2f",
				pair.Primary, pair.Secondary, baseline.value, live))
		alert.Context["correlated_metric"] = pair.Secondary
		alert.Context["live_correlation"] = live
		alert.Context["baseline_correlation"] = baseline.value
		alert.Context["detection_method"] = "pearson"
	}

	baseline.observe(live)
	return alert
}
