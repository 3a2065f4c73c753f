package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-sentinel/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Nil(t, cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8480", cfg.Server.Address)
	assert.Equal(t, 30, cfg.Monitoring.PollIntervalSeconds)
	assert.False(t, cfg.Monitoring.EnableAutoResponse)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.yaml")
	data := []byte(`
server:
  address: ":9000"
monitoring:
  pollIntervalSeconds: 5
  enableAutoResponse: true
  metricThresholds:
    avg_latency_ms: 1000
  correlationPairs:
    - primary: avg_latency_ms
      secondary: requests_per_minute
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("MIRADOR_SENTINEL_SERVER_ADDRESS", ":9100")
	t.Setenv("MIRADOR_SENTINEL_MONITORED_METRICS", "error_rate, total_cost")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Server.Address)
	assert.Equal(t, 5, cfg.Monitoring.PollIntervalSeconds)
	assert.True(t, cfg.Monitoring.EnableAutoResponse)
	assert.Equal(t, 1000.0, cfg.Monitoring.MetricThresholds["avg_latency_ms"])
	assert.Equal(t, []string{"error_rate", "total_cost"}, cfg.Monitoring.MonitoredMetrics)
	require.Len(t, cfg.Monitoring.CorrelationPairs, 1)
	assert.Equal(t, "avg_latency_ms", cfg.Monitoring.CorrelationPairs[0].Primary)
}

func TestToMonitoringBadSeverityFallsBack(t *testing.T) {
	m := MonitoringConfig{AutoExecuteMaxSeverity: "catastrophic"}
	assert.Equal(t, models.SeverityHigh, m.ToMonitoring().AutoExecuteMaxSeverity)
}

func TestRuntimePatch(t *testing.T) {
	rt := NewRuntime(defaultConfig().Monitoring.ToMonitoring())

	interval := 10
	enabled := true
	require.NoError(t, rt.Apply(models.MonitoringPatch{
		PollIntervalSeconds: &interval,
		EnableAutoResponse:  &enabled,
	}))

	snap := rt.Snapshot()
	assert.Equal(t, 10, snap.PollIntervalSeconds)
	assert.True(t, snap.EnableAutoResponse)
	// Untouched fields keep their values.
	assert.Equal(t, 2.0, snap.StatisticalThreshold)

	bad := -1
	require.Error(t, rt.Apply(models.MonitoringPatch{PollIntervalSeconds: &bad}))
	assert.Equal(t, 10, rt.Snapshot().PollIntervalSeconds)
}
