package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/miradorstack/mirador-sentinel/internal/config"
	"github.com/miradorstack/mirador-sentinel/internal/detect"
	"github.com/miradorstack/mirador-sentinel/internal/metrics"
	"github.com/miradorstack/mirador-sentinel/internal/models"
)

// RunState is the monitoring engine lifecycle state.
type RunState string

const (
	StateStopped RunState = "stopped"
	StateRunning RunState = "running"
	StatePaused  RunState = "paused"
)

// SampleSource fetches recent sample windows for a metric. The mirador-core
// samples client satisfies this.
type SampleSource interface {
	FetchRecentSamples(ctx context.Context, metric string, window int) ([]float64, error)
}

// Responder receives admitted alerts when auto-response is enabled.
type Responder interface {
	ProcessAnomaly(ctx context.Context, alert *models.AnomalyAlert) []*models.Execution
}

// Status is the runtime view returned by the control API.
type Status struct {
	State              RunState                `json:"state"`
	LoopAlive          bool                    `json:"loop_alive"`
	ChecksPerformed    int64                   `json:"checks_performed"`
	LastCheck          *time.Time              `json:"last_check,omitempty"`
	AlertsEmitted      int64                   `json:"alerts_emitted"`
	AlertsSuppressed   int64                   `json:"alerts_suppressed"`
	SuppressedByMetric map[string]int64        `json:"suppressed_by_metric,omitempty"`
	Config             models.MonitoringConfig `json:"config"`
}

// Engine owns the poll loop: each tick it fetches sample windows for every
// monitored metric, runs the detectors, rate-limits the candidates, appends
// admitted alerts, and forwards them to the responder when auto-response is
// enabled. All exported methods are safe for concurrent use.
type Engine struct {
	logger    *slog.Logger
	clock     clock.Clock
	source    SampleSource
	detectors []detect.Detector
	limiter   *RateLimiter
	alerts    *AlertLog
	responder Responder
	runtime   *config.Runtime

	mu        sync.Mutex
	state     RunState
	cancel    context.CancelFunc
	done      chan struct{}
	checks    int64
	lastCheck time.Time
	windows   map[string]*detect.Window
}

// NewEngine constructs a stopped monitoring engine.
func NewEngine(
	logger *slog.Logger,
	clk clock.Clock,
	runtime *config.Runtime,
	source SampleSource,
	detectors []detect.Detector,
	limiter *RateLimiter,
	alerts *AlertLog,
	responder Responder,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	if limiter == nil {
		limiter = NewRateLimiter(clk)
	}
	if alerts == nil {
		alerts = NewAlertLog()
	}
	return &Engine{
		logger:    logger,
		clock:     clk,
		source:    source,
		detectors: detectors,
		limiter:   limiter,
		alerts:    alerts,
		responder: responder,
		runtime:   runtime,
		state:     StateStopped,
		windows:   make(map[string]*detect.Window),
	}
}

// Start transitions Stopped to Running and spawns the poll loop. Returns
// false when the engine is already running or paused.
func (e *Engine) Start() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateStopped {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.state = StateRunning

	go e.loop(ctx, e.done)
	e.logger.Info("monitoring started")
	return true
}

// Stop signals the loop to exit and joins it. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return
	}
	cancel := e.cancel
	done := e.done
	e.state = StateStopped
	e.cancel = nil
	e.done = nil
	e.mu.Unlock()

	cancel()
	<-done
	e.logger.Info("monitoring stopped")
}

// Pause suspends detection without tearing down the loop.
func (e *Engine) Pause() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return false
	}
	e.state = StatePaused
	return true
}

// Resume re-enables detection after a pause.
func (e *Engine) Resume() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused {
		return false
	}
	e.state = StateRunning
	return true
}

// State returns the current run state.
func (e *Engine) State() RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status returns the runtime counters and the current config snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	state := e.state
	loopAlive := e.done != nil
	checks := e.checks
	last := e.lastCheck
	e.mu.Unlock()

	st := Status{
		State:              state,
		LoopAlive:          loopAlive,
		ChecksPerformed:    checks,
		AlertsEmitted:      e.alerts.Total(),
		AlertsSuppressed:   e.limiter.Suppressed(),
		SuppressedByMetric: e.limiter.SuppressedByMetric(),
		Config:             e.runtime.Snapshot(),
	}
	if !last.IsZero() {
		st.LastCheck = &last
	}
	return st
}

// RecentAnomalies returns up to limit admitted alerts, newest first.
func (e *Engine) RecentAnomalies(limit int) []models.AnomalyAlert {
	return e.alerts.Recent(limit)
}

// ClearAlerts purges alerts older than the given age and returns the count.
func (e *Engine) ClearAlerts(olderThan time.Duration) int {
	return e.alerts.ClearOlderThan(e.clock.Now().Add(-olderThan))
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		cfg := e.runtime.Snapshot()
		interval := time.Duration(cfg.PollIntervalSeconds) * time.Second
		if interval <= 0 {
			interval = 30 * time.Second
		}

		timer := e.clock.Timer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if e.State() != StateRunning {
			continue
		}
		e.runTick(ctx, e.runtime.Snapshot())
	}
}

// runTick performs one detection pass. A fetch or detector failure for one
// metric never affects the others or the loop itself.
func (e *Engine) runTick(ctx context.Context, cfg models.MonitoringConfig) {
	windows := make(detect.Windows, len(cfg.MonitoredMetrics))

	for _, metric := range cfg.MonitoredMetrics {
		if ctx.Err() != nil {
			return
		}
		samples, err := e.fetchWindow(ctx, metric, cfg.AnomalyDetectionWindow)
		if err != nil {
			e.logger.Warn("sample fetch failed",
				slog.String("metric", metric), slog.Any("error", err))
			continue
		}
		windows[metric] = samples
	}

	params := detect.Params{
		WindowSize:           cfg.AnomalyDetectionWindow,
		StatisticalThreshold: cfg.StatisticalThreshold,
		CorrelationThreshold: cfg.CorrelationThreshold,
		ThresholdRatio:       cfg.ThresholdRatio,
		MetricThresholds:     cfg.MetricThresholds,
		CorrelationPairs:     cfg.CorrelationPairs,
	}

	for _, metric := range cfg.MonitoredMetrics {
		if ctx.Err() != nil {
			return
		}
		if _, ok := windows[metric]; !ok {
			continue
		}
		e.evaluateMetric(ctx, metric, windows, params, cfg)
	}

	metrics.ObserveCheck()
	e.mu.Lock()
	e.checks++
	e.lastCheck = e.clock.Now()
	e.mu.Unlock()
}

// fetchWindow pulls samples from the source and folds them into the metric's
// rolling window. The first fetch seeds the window with the whole series;
// every later tick pushes only the newest sample, so the window accumulates
// one point per poll and survives short fetches.
func (e *Engine) fetchWindow(ctx context.Context, metric string, size int) ([]float64, error) {
	samples, err := e.source.FetchRecentSamples(ctx, metric, size)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	w, ok := e.windows[metric]
	if !ok {
		w = detect.NewWindow(size)
		e.windows[metric] = w
	}
	w.Resize(size)
	if len(samples) > 0 {
		if w.Len() == 0 {
			w.Fill(samples)
		} else {
			w.Push(samples[len(samples)-1])
		}
	}
	values := w.Values()
	e.mu.Unlock()

	return values, nil
}

func (e *Engine) evaluateMetric(ctx context.Context, metric string, windows detect.Windows, params detect.Params, cfg models.MonitoringConfig) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("detector panic",
				slog.String("metric", metric), slog.Any("panic", r))
		}
	}()

	for _, det := range e.detectors {
		alert, err := det.Evaluate(metric, windows, params)
		if err != nil {
			e.logger.Warn("detector error",
				slog.String("detector", det.Name()),
				slog.String("metric", metric),
				slog.Any("error", err))
			continue
		}
		if alert == nil {
			continue
		}

		if !e.limiter.Allow(metric, cfg.MaxAlertsPerMinute) {
			metrics.ObserveSuppressedAlert()
			e.logger.Debug("alert suppressed",
				slog.String("metric", metric), slog.String("detector", det.Name()))
			continue
		}

		if cfg.EnableAutoResponse && e.responder != nil {
			execs := e.responder.ProcessAnomaly(ctx, alert)
			alert.AutoResponseTriggered = len(execs) > 0
			for _, exec := range execs {
				alert.ResponseActions = append(alert.ResponseActions, exec.ID)
			}
		}

		e.alerts.Append(*alert)
		metrics.ObserveAlert(string(alert.Type), string(alert.Severity))
		e.logger.Info("anomaly detected",
			slog.String("metric", metric),
			slog.String("detector", det.Name()),
			slog.String("severity", string(alert.Severity)),
			slog.String("message", alert.Message),
			slog.Float64("score", alert.DeviationScore))
	}
}
