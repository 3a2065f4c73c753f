package respond

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-sentinel/internal/models"
)

// minInstances is the floor below which scale-down proposals are rejected.
const minInstances = 2

// CostHandler remediates spend anomalies such as runaway per-request cost or
// token burn.
type CostHandler struct {
	actuator Actuator
}

// NewCostHandler constructs the handler on the given actuator.
func NewCostHandler(actuator Actuator) *CostHandler {
	return &CostHandler{actuator: actuator}
}

func (h *CostHandler) Name() string { return "cost" }

// CanHandle matches the spend metrics this handler owns.
func (h *CostHandler) CanHandle(alert *models.AnomalyAlert) bool {
	return metricIn(alert, "total_cost", "cost_per_request", "tokens_per_request")
}

// ResponseActions proposes remediations, lowest-risk first.
func (h *CostHandler) ResponseActions(alert *models.AnomalyAlert) []models.ResponseAction {
	if alert.Severity == models.SeverityLow {
		return []models.ResponseAction{notifyAction(alert)}
	}

	actions := []models.ResponseAction{{
		ID:          uuid.NewString(),
		Type:        models.ActionCapBudget,
		Description: "Rotate the spend cap down to the expected baseline",
		RiskLevel:   models.RiskMedium,
		Reversible:  true,
		Parameters: map[string]any{
			"new_cap": capFor(alert),
		},
	}}

	if alert.Severity.Rank() >= models.SeverityHigh.Rank() {
		actions = append(actions, models.ResponseAction{
			ID:               uuid.NewString(),
			Type:             models.ActionScaleDown,
			Description:      "Scale down the inference pool to stop the burn",
			RiskLevel:        models.RiskHigh,
			RequiresApproval: true,
			Reversible:       true,
			Parameters: map[string]any{
				"instances_delta": -1,
				"min_instances":   minInstances,
			},
		})
	}
	return actions
}

// ValidateAction refuses budget caps that make no sense and scale-downs
// below the instance floor.
func (h *CostHandler) ValidateAction(action models.ResponseAction, alert *models.AnomalyAlert) error {
	switch action.Type {
	case models.ActionCapBudget:
		cap, ok := asFloat(action.Parameters["new_cap"])
		if !ok || cap <= 0 {
			return fmt.Errorf("new_cap must be positive")
		}
	case models.ActionScaleDown:
		if current, ok := asFloat(alert.Context["current_instances"]); ok {
			if current <= minInstances {
				return fmt.Errorf("scale-down not valid at or below minimum instance count %d", minInstances)
			}
		}
	case models.ActionNotifyOnly:
	default:
		return fmt.Errorf("action %s is not owned by the cost handler", action.Type)
	}
	return nil
}

// ExecuteAction applies the remediation through the control API.
func (h *CostHandler) ExecuteAction(ctx context.Context, action models.ResponseAction, alert *models.AnomalyAlert) (map[string]any, error) {
	return runCommand(ctx, h.actuator, action, alert.MetricName, false)
}

// RollbackAction restores the previous cap or instance count.
func (h *CostHandler) RollbackAction(ctx context.Context, action models.ResponseAction, exec *models.Execution) error {
	_, err := runCommand(ctx, h.actuator, action, exec.MetricName, true)
	return err
}

// capFor proposes the expected value as the new cap, falling back to the
// actual spend when the detector had no baseline.
func capFor(alert *models.AnomalyAlert) float64 {
	if alert.ExpectedValue > 0 {
		return alert.ExpectedValue
	}
	return alert.ActualValue
}
