package detect

import (
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-sentinel/internal/models"
)

// minSamples is the smallest history a detector will evaluate. Fewer samples
// means no evaluation, not an error.
const minSamples = 5

// Windows carries one poll tick's sample windows keyed by metric name,
// oldest sample first.
type Windows map[string][]float64

// Params is a per-tick snapshot of the detection tuning.
type Params struct {
	WindowSize           int
	StatisticalThreshold float64
	CorrelationThreshold float64
	ThresholdRatio       float64
	MetricThresholds     map[string]float64
	CorrelationPairs     []models.MetricPair
}

// Detector evaluates one metric against the tick's sample windows and either
// returns an alert candidate or nil.
type Detector interface {
	Name() string
	Evaluate(metric string, windows Windows, p Params) (*models.AnomalyAlert, error)
}

func newAlert(kind models.AnomalyType, metric string, score, actual, expected float64, message string) *models.AnomalyAlert {
	return &models.AnomalyAlert{
		ID:             uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		Type:           kind,
		MetricName:     metric,
		Severity:       models.SeverityFromScore(score),
		ActualValue:    actual,
		ExpectedValue:  expected,
		DeviationScore: score,
		Message:        message,
		Context:        map[string]any{},
	}
}
