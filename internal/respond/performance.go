package respond

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-sentinel/internal/models"
)

// maxThrottlePct bounds how much traffic a throttle action may shed.
const maxThrottlePct = 90

// PerformanceHandler remediates latency and throughput anomalies.
type PerformanceHandler struct {
	actuator Actuator
}

// NewPerformanceHandler constructs the handler on the given actuator.
func NewPerformanceHandler(actuator Actuator) *PerformanceHandler {
	return &PerformanceHandler{actuator: actuator}
}

func (h *PerformanceHandler) Name() string { return "performance" }

// CanHandle matches the latency/throughput metrics this handler owns.
func (h *PerformanceHandler) CanHandle(alert *models.AnomalyAlert) bool {
	return metricIn(alert, "avg_latency_ms", "p95_latency_ms", "requests_per_minute")
}

// ResponseActions proposes remediations, lowest-risk first.
func (h *PerformanceHandler) ResponseActions(alert *models.AnomalyAlert) []models.ResponseAction {
	if alert.Severity == models.SeverityLow {
		return []models.ResponseAction{notifyAction(alert)}
	}

	actions := []models.ResponseAction{{
		ID:          uuid.NewString(),
		Type:        models.ActionThrottle,
		Description: "Shed a slice of incoming traffic until latency recovers",
		RiskLevel:   models.RiskLow,
		Reversible:  true,
		Parameters: map[string]any{
			"rate_limit_pct": throttlePctFor(alert.Severity),
		},
	}}

	if alert.Severity.Rank() >= models.SeverityHigh.Rank() {
		actions = append(actions, models.ResponseAction{
			ID:               uuid.NewString(),
			Type:             models.ActionRestartComponent,
			Description:      "Restart the query worker behind the slow path",
			RiskLevel:        models.RiskMedium,
			RequiresApproval: true,
			Reversible:       false,
			Parameters: map[string]any{
				"component": "query-worker",
			},
		})
	}
	return actions
}

// ValidateAction checks throttle bounds and restart targets.
func (h *PerformanceHandler) ValidateAction(action models.ResponseAction, alert *models.AnomalyAlert) error {
	switch action.Type {
	case models.ActionThrottle:
		pct, ok := asFloat(action.Parameters["rate_limit_pct"])
		if !ok || pct <= 0 || pct > maxThrottlePct {
			return fmt.Errorf("rate_limit_pct must be in (0, %d]", maxThrottlePct)
		}
	case models.ActionRestartComponent:
		component, _ := action.Parameters["component"].(string)
		if component == "" {
			return fmt.Errorf("restart target component is required")
		}
	case models.ActionNotifyOnly:
	default:
		return fmt.Errorf("action %s is not owned by the performance handler", action.Type)
	}
	return nil
}

// ExecuteAction applies the remediation through the control API.
func (h *PerformanceHandler) ExecuteAction(ctx context.Context, action models.ResponseAction, alert *models.AnomalyAlert) (map[string]any, error) {
	return runCommand(ctx, h.actuator, action, alert.MetricName, false)
}

// RollbackAction lifts a previously applied throttle.
func (h *PerformanceHandler) RollbackAction(ctx context.Context, action models.ResponseAction, exec *models.Execution) error {
	_, err := runCommand(ctx, h.actuator, action, exec.MetricName, true)
	return err
}

func throttlePctFor(severity models.Severity) float64 {
	if severity.Rank() >= models.SeverityHigh.Rank() {
		return 50
	}
	return 25
}
