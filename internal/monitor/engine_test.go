package monitor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-sentinel/internal/config"
	"github.com/miradorstack/mirador-sentinel/internal/detect"
	"github.com/miradorstack/mirador-sentinel/internal/models"
	"github.com/miradorstack/mirador-sentinel/internal/utils"
)

// fakeSource serves canned sample windows per metric.
type fakeSource struct {
	mu      sync.Mutex
	samples map[string][]float64
	errs    map[string]error
	calls   map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		samples: make(map[string][]float64),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (f *fakeSource) FetchRecentSamples(ctx context.Context, metric string, window int) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[metric]++
	if err := f.errs[metric]; err != nil {
		return nil, err
	}
	return f.samples[metric], nil
}

func (f *fakeSource) callCount(metric string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[metric]
}

// fakeResponder records forwarded alerts and hands back one execution each.
type fakeResponder struct {
	mu     sync.Mutex
	alerts []models.AnomalyAlert
}

func (f *fakeResponder) ProcessAnomaly(ctx context.Context, alert *models.AnomalyAlert) []*models.Execution {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, *alert)
	return []*models.Execution{{ID: uuid.NewString(), AnomalyID: alert.ID, Status: models.StatusSucceeded}}
}

func (f *fakeResponder) received() []models.AnomalyAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.AnomalyAlert, len(f.alerts))
	copy(out, f.alerts)
	return out
}

// stubDetector fires a fixed-score alert for one metric.
type stubDetector struct {
	name   string
	metric string
	score  float64
	panics bool
}

func (d *stubDetector) Name() string { return d.name }

func (d *stubDetector) Evaluate(metric string, windows detect.Windows, p detect.Params) (*models.AnomalyAlert, error) {
	if d.panics {
		panic("detector blew up")
	}
	if metric != d.metric {
		return nil, nil
	}
	return &models.AnomalyAlert{
		ID:             uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		Type:           models.AnomalyStatistical,
		MetricName:     metric,
		Severity:       models.SeverityFromScore(d.score),
		DeviationScore: d.score,
		Message:        "stubbed anomaly",
	}, nil
}

func monitorConfig(autoResponse bool) models.MonitoringConfig {
	return models.MonitoringConfig{
		PollIntervalSeconds:     30,
		AnomalyDetectionWindow:  10,
		StatisticalThreshold:    2.0,
		CorrelationThreshold:    0.5,
		ThresholdRatio:          1.0,
		MaxAlertsPerMinute:      10,
		EnableAutoResponse:      autoResponse,
		MonitoredMetrics:        []string{"avg_latency_ms", "error_rate"},
		MetricThresholds:        map[string]float64{"avg_latency_ms": 1000},
		ExecutionTimeoutSeconds: 30,
		AutoExecuteMaxSeverity:  models.SeverityHigh,
	}
}

func newTestEngine(t *testing.T, cfg models.MonitoringConfig, source SampleSource, detectors []detect.Detector, responder Responder) (*Engine, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	logger := utils.NewLoggerTo(io.Discard, "debug", false)
	runtime := config.NewRuntime(cfg)
	engine := NewEngine(logger, mock, runtime, source, detectors, NewRateLimiter(mock), NewAlertLog(), responder)
	t.Cleanup(engine.Stop)
	return engine, mock
}

func TestEngineLifecycle(t *testing.T) {
	engine, _ := newTestEngine(t, monitorConfig(false), newFakeSource(), nil, nil)

	assert.Equal(t, StateStopped, engine.State())
	assert.False(t, engine.Pause())
	assert.False(t, engine.Resume())

	assert.True(t, engine.Start())
	assert.False(t, engine.Start())
	assert.Equal(t, StateRunning, engine.State())
	assert.True(t, engine.Status().LoopAlive)

	assert.True(t, engine.Pause())
	assert.False(t, engine.Pause())
	assert.Equal(t, StatePaused, engine.State())
	assert.False(t, engine.Start())

	assert.True(t, engine.Resume())
	assert.False(t, engine.Resume())

	engine.Stop()
	assert.Equal(t, StateStopped, engine.State())
	assert.False(t, engine.Status().LoopAlive)
	engine.Stop()
}

func TestRunTickDetectsAndForwards(t *testing.T) {
	source := newFakeSource()
	source.samples["avg_latency_ms"] = []float64{900, 950, 1000, 980, 990, 3000}
	source.samples["error_rate"] = []float64{0.01, 0.02, 0.01, 0.02, 0.01, 0.01}
	responder := &fakeResponder{}
	cfg := monitorConfig(true)

	engine, _ := newTestEngine(t, cfg, source, []detect.Detector{detect.NewThresholdDetector()}, responder)
	engine.runTick(context.Background(), cfg)

	recent := engine.RecentAnomalies(10)
	require.Len(t, recent, 1)
	alert := recent[0]
	assert.Equal(t, "avg_latency_ms", alert.MetricName)
	assert.Equal(t, models.AnomalyThreshold, alert.Type)
	assert.Equal(t, models.SeverityMedium, alert.Severity)
	assert.InDelta(t, 2.0, alert.DeviationScore, 1e-9)
	assert.True(t, alert.AutoResponseTriggered)
	assert.Len(t, alert.ResponseActions, 1)

	require.Len(t, responder.received(), 1)

	status := engine.Status()
	assert.Equal(t, int64(1), status.ChecksPerformed)
	assert.Equal(t, int64(1), status.AlertsEmitted)
	require.NotNil(t, status.LastCheck)
}

func TestRunTickWithoutAutoResponse(t *testing.T) {
	source := newFakeSource()
	source.samples["avg_latency_ms"] = []float64{900, 950, 1000, 980, 990, 3000}
	source.samples["error_rate"] = []float64{0.01, 0.02, 0.01, 0.02, 0.01, 0.01}
	responder := &fakeResponder{}
	cfg := monitorConfig(false)

	engine, _ := newTestEngine(t, cfg, source, []detect.Detector{detect.NewThresholdDetector()}, responder)
	engine.runTick(context.Background(), cfg)

	recent := engine.RecentAnomalies(10)
	require.Len(t, recent, 1)
	assert.False(t, recent[0].AutoResponseTriggered)
	assert.Empty(t, recent[0].ResponseActions)
	assert.Empty(t, responder.received())
}

func TestFetchWindowAccumulatesAcrossTicks(t *testing.T) {
	source := newFakeSource()
	source.samples["avg_latency_ms"] = []float64{900, 950, 1000}
	engine, _ := newTestEngine(t, monitorConfig(false), source, nil, nil)

	first, err := engine.fetchWindow(context.Background(), "avg_latency_ms", 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{900, 950, 1000}, first)

	source.samples["avg_latency_ms"] = []float64{950, 1000, 3000}
	second, err := engine.fetchWindow(context.Background(), "avg_latency_ms", 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{900, 950, 1000, 3000}, second)

	source.samples["avg_latency_ms"] = []float64{1000, 3000, 4000}
	third, err := engine.fetchWindow(context.Background(), "avg_latency_ms", 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{950, 1000, 3000, 4000}, third)
}

func TestRunTickSourceErrorIsolation(t *testing.T) {
	source := newFakeSource()
	source.errs["avg_latency_ms"] = fmt.Errorf("upstream unavailable")
	source.samples["error_rate"] = []float64{0.01, 0.02, 0.01, 0.02, 0.01, 0.01}
	cfg := monitorConfig(false)

	engine, _ := newTestEngine(t, cfg, source, []detect.Detector{
		&stubDetector{name: "stub", metric: "error_rate", score: 3.5},
	}, nil)
	engine.runTick(context.Background(), cfg)

	assert.Equal(t, 1, source.callCount("avg_latency_ms"))
	assert.Equal(t, 1, source.callCount("error_rate"))

	recent := engine.RecentAnomalies(10)
	require.Len(t, recent, 1)
	assert.Equal(t, "error_rate", recent[0].MetricName)
	assert.Equal(t, int64(1), engine.Status().ChecksPerformed)
}

func TestRunTickDetectorPanicIsolation(t *testing.T) {
	source := newFakeSource()
	source.samples["avg_latency_ms"] = []float64{1, 2, 3, 4, 5, 6}
	source.samples["error_rate"] = []float64{0.01, 0.02, 0.01, 0.02, 0.01, 0.01}
	cfg := monitorConfig(false)

	engine, _ := newTestEngine(t, cfg, source, []detect.Detector{
		&stubDetector{name: "broken", metric: "avg_latency_ms", panics: true},
	}, nil)

	engine.runTick(context.Background(), cfg)
	assert.Equal(t, int64(1), engine.Status().ChecksPerformed)
}

func TestRunTickRateLimitsAlertStorm(t *testing.T) {
	source := newFakeSource()
	source.samples["avg_latency_ms"] = []float64{1, 2, 3, 4, 5, 6}
	source.samples["error_rate"] = []float64{0.01, 0.02, 0.01, 0.02, 0.01, 0.01}
	cfg := monitorConfig(false)
	cfg.MaxAlertsPerMinute = 1

	engine, _ := newTestEngine(t, cfg, source, []detect.Detector{
		&stubDetector{name: "stub-a", metric: "error_rate", score: 3.0},
		&stubDetector{name: "stub-b", metric: "error_rate", score: 4.5},
	}, nil)
	engine.runTick(context.Background(), cfg)

	assert.Len(t, engine.RecentAnomalies(10), 1)
	status := engine.Status()
	assert.Equal(t, int64(1), status.AlertsEmitted)
	assert.Equal(t, int64(1), status.AlertsSuppressed)
	assert.Equal(t, int64(1), status.SuppressedByMetric["error_rate"])
}

func TestLoopTicksOnClock(t *testing.T) {
	source := newFakeSource()
	source.samples["avg_latency_ms"] = []float64{1, 2, 3, 4, 5, 6}
	source.samples["error_rate"] = []float64{0.01, 0.02, 0.01, 0.02, 0.01, 0.01}
	cfg := monitorConfig(false)

	engine, mock := newTestEngine(t, cfg, source, nil, nil)
	require.True(t, engine.Start())

	time.Sleep(20 * time.Millisecond)
	mock.Add(30 * time.Second)

	assert.Eventually(t, func() bool {
		return engine.Status().ChecksPerformed >= 1
	}, 2*time.Second, 10*time.Millisecond)

	engine.Stop()
	checks := engine.Status().ChecksPerformed
	assert.GreaterOrEqual(t, checks, int64(1))
}

func TestLoopSkipsTicksWhilePaused(t *testing.T) {
	source := newFakeSource()
	source.samples["avg_latency_ms"] = []float64{1, 2, 3, 4, 5, 6}
	cfg := monitorConfig(false)

	engine, mock := newTestEngine(t, cfg, source, nil, nil)
	require.True(t, engine.Start())
	require.True(t, engine.Pause())

	time.Sleep(20 * time.Millisecond)
	mock.Add(90 * time.Second)
	time.Sleep(50 * time.Millisecond)

	assert.Zero(t, engine.Status().ChecksPerformed)
	assert.Zero(t, source.callCount("avg_latency_ms"))
}

func TestClearAlerts(t *testing.T) {
	engine, mock := newTestEngine(t, monitorConfig(false), newFakeSource(), nil, nil)

	old := models.AnomalyAlert{ID: "old", Timestamp: mock.Now().Add(-2 * time.Hour), MetricName: "error_rate"}
	fresh := models.AnomalyAlert{ID: "fresh", Timestamp: mock.Now(), MetricName: "error_rate"}
	engine.alerts.Append(old)
	engine.alerts.Append(fresh)

	assert.Equal(t, 1, engine.ClearAlerts(time.Hour))
	recent := engine.RecentAnomalies(0)
	require.Len(t, recent, 1)
	assert.Equal(t, "fresh", recent[0].ID)
}
