package respond

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/miradorstack/mirador-sentinel/internal/config"
	"github.com/miradorstack/mirador-sentinel/internal/metrics"
	"github.com/miradorstack/mirador-sentinel/internal/models"
	"github.com/miradorstack/mirador-sentinel/internal/utils"
)

const latencyTrackerSize = 1000

// executionRecord pairs an execution with the alert that produced it and the
// handler that owns its lifecycle.
type executionRecord struct {
	exec    *models.Execution
	alert   models.AnomalyAlert
	handler Handler
	// rollingBack guards the undo window so a second Rollback cannot pass
	// the status check while the first is still running the handler.
	rollingBack bool
}

// Engine routes admitted anomalies to category handlers, runs the resulting
// executions through their lifecycle, and keeps the audit trail.
type Engine struct {
	logger   *slog.Logger
	clock    clock.Clock
	runtime  *config.Runtime
	handlers []Handler

	mu         sync.Mutex
	executions map[string]*executionRecord
	// pairIndex maps anomalyID|actionType to the execution that already
	// covers that pair, so re-detected anomalies never double-fire.
	pairIndex map[string]string

	latency *utils.LatencyTracker
}

// Statistics summarizes the execution history.
type Statistics struct {
	Total       int                            `json:"total_executions"`
	ByStatus    map[models.ExecutionStatus]int `json:"by_status"`
	ByCategory  map[string]int                 `json:"by_category"`
	Active      int                            `json:"active_executions"`
	Pending     int                            `json:"pending_approvals"`
	SuccessRate float64                        `json:"success_rate"`
	P95Duration float64                        `json:"p95_duration_seconds"`
}

// NewEngine constructs the response engine over the given handlers. Every
// handler whose CanHandle matches an alert contributes actions, in
// registration order.
func NewEngine(logger *slog.Logger, clk clock.Clock, runtime *config.Runtime, handlers []Handler) *Engine {
	return &Engine{
		logger:     logger.With(slog.String("component", "respond")),
		clock:      clk,
		runtime:    runtime,
		handlers:   handlers,
		executions: make(map[string]*executionRecord),
		pairIndex:  make(map[string]string),
		latency:    utils.NewLatencyTracker(latencyTrackerSize),
	}
}

// ProcessAnomaly dispatches the alert to every capable handler and creates
// one execution per proposed action. Actions that fail validation are
// recorded as Failed; actions requiring approval park in PendingApproval;
// the rest execute immediately. Returns the executions created for this
// alert, which is empty when no handler owns the metric or every action is
// already covered by an earlier execution.
func (e *Engine) ProcessAnomaly(ctx context.Context, alert *models.AnomalyAlert) []*models.Execution {
	handlers := e.handlersFor(alert)
	if len(handlers) == 0 {
		e.logger.Debug("no response handler for metric", slog.String("metric", alert.MetricName))
		return nil
	}

	cfg := e.runtime.Snapshot()
	var created []*models.Execution

	for _, handler := range handlers {
		for _, action := range handler.ResponseActions(alert) {
			rec, ok := e.admit(alert, action, handler)
			if !ok {
				continue
			}

			if err := handler.ValidateAction(action, alert); err != nil {
				e.complete(rec, models.StatusFailed, nil, fmt.Sprintf("validation failed: %v", err))
				created = append(created, e.snapshotOf(rec))
				continue
			}

			if needsApproval(cfg, alert, action) {
				e.logger.Info("execution awaiting approval",
					slog.String("execution_id", rec.exec.ID),
					slog.String("action", string(action.Type)),
					slog.String("severity", string(alert.Severity)),
				)
				metrics.ObserveExecutionState(string(models.StatusPendingApproval))
				created = append(created, e.snapshotOf(rec))
				continue
			}

			e.execute(ctx, rec, cfg)
			created = append(created, e.snapshotOf(rec))
		}
	}
	return created
}

// ApprovePending resolves a parked execution. Approval runs the action;
// denial moves it to the Denied end state. Only PendingApproval executions
// can be resolved; the guard and the status transition share one critical
// section, so one of two concurrent resolutions always loses with
// ErrInvalidTransition.
func (e *Engine) ApprovePending(ctx context.Context, executionID string, approved bool, approver string) (*models.Execution, error) {
	e.mu.Lock()
	rec, ok := e.executions[executionID]
	if !ok {
		e.mu.Unlock()
		return nil, ErrExecutionNotFound
	}
	if status := rec.exec.Status; status != models.StatusPendingApproval {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot resolve approval from %s", ErrInvalidTransition, status)
	}
	rec.exec.HumanApproved = &approved
	rec.exec.Approver = approver
	now := e.clock.Now().UTC()
	if approved {
		rec.exec.Status = models.StatusExecuting
		rec.exec.StartedAt = now
	} else {
		rec.exec.Status = models.StatusDenied
		rec.exec.CompletedAt = &now
	}
	e.mu.Unlock()

	if !approved {
		metrics.ObserveExecutionState(string(models.StatusDenied))
		e.logger.Info("execution denied",
			slog.String("execution_id", executionID),
			slog.String("approver", approver),
		)
		return e.snapshotOf(rec), nil
	}

	metrics.ObserveExecutionState(string(models.StatusExecuting))
	e.run(ctx, rec, e.runtime.Snapshot())
	return e.snapshotOf(rec), nil
}

// Rollback undoes a Succeeded or Failed execution whose action is
// reversible. A failed rollback leaves the execution in its current status
// with the rollback error appended. The record is marked rolling-back
// inside the same critical section as the status guard, so of two
// concurrent Rollback calls only one reaches the handler.
func (e *Engine) Rollback(ctx context.Context, executionID string) (*models.Execution, error) {
	e.mu.Lock()
	rec, ok := e.executions[executionID]
	if !ok {
		e.mu.Unlock()
		return nil, ErrExecutionNotFound
	}
	status := rec.exec.Status
	if status != models.StatusSucceeded && status != models.StatusFailed {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot roll back from %s", ErrInvalidTransition, status)
	}
	if !rec.exec.Action.Reversible {
		e.mu.Unlock()
		return nil, ErrRollbackUnsupported
	}
	if rec.rollingBack {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: rollback already in progress", ErrInvalidTransition)
	}
	rec.rollingBack = true
	snapshot := copyExecution(rec.exec)
	e.mu.Unlock()

	cfg := e.runtime.Snapshot()
	timeout := time.Duration(cfg.ExecutionTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rbCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := rec.handler.RollbackAction(rbCtx, snapshot.Action, snapshot); err != nil {
		e.mu.Lock()
		rec.rollingBack = false
		rec.exec.ErrorMessage = joinMessages(rec.exec.ErrorMessage, fmt.Sprintf("rollback failed: %v", err))
		e.mu.Unlock()
		e.logger.Error("rollback failed",
			slog.String("execution_id", executionID),
			slog.Any("error", err),
		)
		return e.snapshotOf(rec), err
	}

	e.mu.Lock()
	rec.rollingBack = false
	rec.exec.Status = models.StatusRolledBack
	rec.exec.RollbackExecuted = true
	now := e.clock.Now().UTC()
	rec.exec.CompletedAt = &now
	e.mu.Unlock()

	metrics.ObserveExecutionState(string(models.StatusRolledBack))
	e.logger.Info("execution rolled back", slog.String("execution_id", executionID))
	return e.snapshotOf(rec), nil
}

// ExecutionByID returns a copy of the execution with the given id.
func (e *Engine) ExecutionByID(executionID string) (*models.Execution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.executions[executionID]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	return copyExecution(rec.exec), nil
}

// PendingApprovals returns copies of all executions awaiting a human
// decision.
func (e *Engine) PendingApprovals() []*models.Execution {
	e.mu.Lock()
	defer e.mu.Unlock()

	var pending []*models.Execution
	for _, rec := range e.executions {
		if rec.exec.Status == models.StatusPendingApproval {
			pending = append(pending, copyExecution(rec.exec))
		}
	}
	return pending
}

// Statistics aggregates counts and the p95 execution duration across the
// retained history.
func (e *Engine) Statistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Statistics{
		Total:      len(e.executions),
		ByStatus:   make(map[models.ExecutionStatus]int),
		ByCategory: make(map[string]int),
	}
	for _, rec := range e.executions {
		stats.ByStatus[rec.exec.Status]++
		stats.ByCategory[rec.exec.Category]++
	}
	stats.Active = stats.ByStatus[models.StatusExecuting]
	stats.Pending = stats.ByStatus[models.StatusPendingApproval]

	// Rolled-back executions are counted in neither term.
	succeeded := stats.ByStatus[models.StatusSucceeded]
	failed := stats.ByStatus[models.StatusFailed]
	if succeeded+failed > 0 {
		stats.SuccessRate = float64(succeeded) / float64(succeeded+failed)
	}
	stats.P95Duration = e.latency.Percentile(95).Seconds()
	return stats
}

// CleanupCompleted removes terminal executions that completed at or before
// now-olderThan and returns the count removed. PendingApproval and Executing
// records are never removed regardless of age.
func (e *Engine) CleanupCompleted(olderThan time.Duration) int {
	cutoff := e.clock.Now().Add(-olderThan)

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for id, rec := range e.executions {
		if !rec.exec.Status.Terminal() || rec.exec.CompletedAt == nil || rec.rollingBack {
			continue
		}
		if rec.exec.CompletedAt.After(cutoff) {
			continue
		}
		delete(e.executions, id)
		delete(e.pairIndex, pairKey(rec.exec.AnomalyID, rec.exec.Action.Type))
		removed++
	}
	return removed
}

func (e *Engine) handlersFor(alert *models.AnomalyAlert) []Handler {
	var capable []Handler
	for _, h := range e.handlers {
		if h.CanHandle(alert) {
			capable = append(capable, h)
		}
	}
	return capable
}

// admit registers a new execution for the alert/action pair unless one
// already exists.
func (e *Engine) admit(alert *models.AnomalyAlert, action models.ResponseAction, handler Handler) (*executionRecord, bool) {
	key := pairKey(alert.ID, action.Type)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.pairIndex[key]; exists {
		return nil, false
	}

	rec := &executionRecord{
		exec: &models.Execution{
			ID:         uuid.NewString(),
			ActionID:   action.ID,
			AnomalyID:  alert.ID,
			Action:     action,
			Category:   handler.Name(),
			MetricName: alert.MetricName,
			StartedAt:  e.clock.Now().UTC(),
			Status:     models.StatusPendingApproval,
		},
		alert:   *alert,
		handler: handler,
	}
	e.executions[rec.exec.ID] = rec
	e.pairIndex[key] = rec.exec.ID
	return rec, true
}

// execute claims a PendingApproval record for immediate execution and runs
// it. The claim is guarded so a record resolved concurrently through
// ApprovePending is never started twice.
func (e *Engine) execute(ctx context.Context, rec *executionRecord, cfg models.MonitoringConfig) {
	e.mu.Lock()
	if rec.exec.Status != models.StatusPendingApproval {
		e.mu.Unlock()
		return
	}
	rec.exec.Status = models.StatusExecuting
	rec.exec.StartedAt = e.clock.Now().UTC()
	e.mu.Unlock()
	metrics.ObserveExecutionState(string(models.StatusExecuting))

	e.run(ctx, rec, cfg)
}

// run drives an already-claimed Executing record through its action under
// the configured timeout and records the outcome.
func (e *Engine) run(ctx context.Context, rec *executionRecord, cfg models.MonitoringConfig) {
	timeout := time.Duration(cfg.ExecutionTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result map[string]any
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		result, err := rec.handler.ExecuteAction(execCtx, rec.exec.Action, &rec.alert)
		ch <- outcome{result: result, err: err}
	}()

	var out outcome
	select {
	case out = <-ch:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) {
			out.err = fmt.Errorf("execution timed out after %s: %w", timeout, out.err)
		}
	case <-execCtx.Done():
		out = outcome{err: fmt.Errorf("execution timed out after %s: %w", timeout, execCtx.Err())}
	}

	if out.err != nil {
		e.complete(rec, models.StatusFailed, nil, out.err.Error())
		e.logger.Error("execution failed",
			slog.String("execution_id", rec.exec.ID),
			slog.String("action", string(rec.exec.Action.Type)),
			slog.Any("error", out.err),
		)
		return
	}

	e.complete(rec, models.StatusSucceeded, out.result, "")
	e.logger.Info("execution succeeded",
		slog.String("execution_id", rec.exec.ID),
		slog.String("action", string(rec.exec.Action.Type)),
		slog.String("metric", rec.exec.MetricName),
	)
}

// complete moves the execution to a terminal status. Latency is only
// recorded for executions that actually ran; denials and validation
// failures count as state transitions without a duration sample.
func (e *Engine) complete(rec *executionRecord, status models.ExecutionStatus, result map[string]any, errMsg string) {
	e.mu.Lock()
	ran := rec.exec.Status == models.StatusExecuting
	now := e.clock.Now().UTC()
	rec.exec.Status = status
	rec.exec.CompletedAt = &now
	rec.exec.Result = result
	if errMsg != "" {
		rec.exec.ErrorMessage = errMsg
	}
	duration := now.Sub(rec.exec.StartedAt)
	e.mu.Unlock()

	if ran {
		e.latency.Observe(duration)
		metrics.ObserveExecution(string(status), duration)
		return
	}
	metrics.ObserveExecutionState(string(status))
}

func (e *Engine) snapshotOf(rec *executionRecord) *models.Execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyExecution(rec.exec)
}

// needsApproval decides whether an action may auto-execute. Critical alerts
// always require a human regardless of configuration.
func needsApproval(cfg models.MonitoringConfig, alert *models.AnomalyAlert, action models.ResponseAction) bool {
	if alert.Severity == models.SeverityCritical {
		return true
	}
	if !cfg.EnableAutoResponse {
		return true
	}
	if action.RequiresApproval {
		return true
	}
	return alert.Severity.Rank() > cfg.AutoExecuteMaxSeverity.Rank()
}

func pairKey(anomalyID string, actionType models.ActionType) string {
	return anomalyID + "|" + string(actionType)
}

func copyExecution(exec *models.Execution) *models.Execution {
	cp := *exec
	if exec.CompletedAt != nil {
		t := *exec.CompletedAt
		cp.CompletedAt = &t
	}
	if exec.HumanApproved != nil {
		b := *exec.HumanApproved
		cp.HumanApproved = &b
	}
	return &cp
}

func joinMessages(existing, added string) string {
	if existing == "" {
		return added
	}
	return existing + "; " + added
}
