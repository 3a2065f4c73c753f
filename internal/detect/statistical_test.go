package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-sentinel/internal/models"
)

// alternating 10/20 history: mean 15, population sigma 5.
func sigmaHistory(n int) []float64 {
	samples := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			samples = append(samples, 10)
		} else {
			samples = append(samples, 20)
		}
	}
	return samples
}

func TestStatisticalFlagsFiveSigmaAsCritical(t *testing.T) {
	det := NewStatisticalDetector()
	samples := append(sigmaHistory(20), 40) // mean + 5*sigma

	alert, err := det.Evaluate("avg_latency_ms", Windows{"avg_latency_ms": samples}, Params{StatisticalThreshold: 2.0})
	require.NoError(t, err)
	require.NotNil(t, alert)

	assert.Equal(t, models.AnomalyStatistical, alert.Type)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.InDelta(t, 5.0, alert.DeviationScore, 1e-9)
	assert.Equal(t, 40.0, alert.ActualValue)
	assert.InDelta(t, 15.0, alert.ExpectedValue, 1e-9)
	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, 20, alert.Context["sample_size"])
}

func TestStatisticalIgnoresNormalVariation(t *testing.T) {
	det := NewStatisticalDetector()
	// Newest sample within one sigma of the mean.
	samples := append(sigmaHistory(20), 18)

	alert, err := det.Evaluate("avg_latency_ms", Windows{"avg_latency_ms": samples}, Params{StatisticalThreshold: 2.0})
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestStatisticalSeverityBands(t *testing.T) {
	det := NewStatisticalDetector()
	cases := []struct {
		actual   float64
		severity models.Severity
	}{
		{27.5, models.SeverityMedium}, // 2.5 sigma
		{32.5, models.SeverityHigh},   // 3.5 sigma
		{37.5, models.SeverityCritical},
	}
	for _, tc := range cases {
		samples := append(sigmaHistory(20), tc.actual)
		alert, err := det.Evaluate("m", Windows{"m": samples}, Params{StatisticalThreshold: 2.0})
		require.NoError(t, err)
		require.NotNil(t, alert, "actual %v", tc.actual)
		assert.Equal(t, tc.severity, alert.Severity, "actual %v", tc.actual)
	}
}

func TestStatisticalNeedsMinimumHistory(t *testing.T) {
	det := NewStatisticalDetector()
	alert, err := det.Evaluate("m", Windows{"m": {10, 20, 10, 20, 100}}, Params{StatisticalThreshold: 2.0})
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestStatisticalZeroVariance(t *testing.T) {
	det := NewStatisticalDetector()
	flat := []float64{10, 10, 10, 10, 10, 10}

	alert, err := det.Evaluate("m", Windows{"m": append(flat, 10)}, Params{StatisticalThreshold: 2.0})
	require.NoError(t, err)
	assert.Nil(t, alert)

	alert, err = det.Evaluate("m", Windows{"m": append(flat, 11)}, Params{StatisticalThreshold: 2.0})
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, true, alert.Context["zero_variance"])
}
