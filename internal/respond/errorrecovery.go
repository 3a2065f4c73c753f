package respond

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-sentinel/internal/models"
)

// ErrorRecoveryHandler remediates failure-rate anomalies, typically a
// component stuck in a crash loop or a bad config rollout.
type ErrorRecoveryHandler struct {
	actuator Actuator
}

// NewErrorRecoveryHandler constructs the handler on the given actuator.
func NewErrorRecoveryHandler(actuator Actuator) *ErrorRecoveryHandler {
	return &ErrorRecoveryHandler{actuator: actuator}
}

func (h *ErrorRecoveryHandler) Name() string { return "error_recovery" }

// CanHandle matches the failure metrics this handler owns.
func (h *ErrorRecoveryHandler) CanHandle(alert *models.AnomalyAlert) bool {
	return metricIn(alert, "error_rate", "failed_requests")
}

// ResponseActions proposes remediations, lowest-risk first.
func (h *ErrorRecoveryHandler) ResponseActions(alert *models.AnomalyAlert) []models.ResponseAction {
	if alert.Severity == models.SeverityLow {
		return []models.ResponseAction{notifyAction(alert)}
	}

	actions := []models.ResponseAction{{
		ID:          uuid.NewString(),
		Type:        models.ActionRestartComponent,
		Description: "Restart the failing component to clear wedged state",
		RiskLevel:   models.RiskMedium,
		Reversible:  false,
		Parameters: map[string]any{
			"component": componentFor(alert),
		},
	}}

	if alert.Severity.Rank() >= models.SeverityHigh.Rank() {
		actions = append(actions, models.ResponseAction{
			ID:               uuid.NewString(),
			Type:             models.ActionRollbackConfig,
			Description:      "Roll the component config back to the last known-good revision",
			RiskLevel:        models.RiskHigh,
			RequiresApproval: true,
			Reversible:       true,
			Parameters: map[string]any{
				"revision": "last-known-good",
			},
		})
	}
	return actions
}

// ValidateAction checks restart targets and rollback revisions.
func (h *ErrorRecoveryHandler) ValidateAction(action models.ResponseAction, alert *models.AnomalyAlert) error {
	switch action.Type {
	case models.ActionRestartComponent:
		component, _ := action.Parameters["component"].(string)
		if component == "" {
			return fmt.Errorf("restart target component is required")
		}
	case models.ActionRollbackConfig:
		revision, _ := action.Parameters["revision"].(string)
		if revision == "" {
			return fmt.Errorf("rollback target revision is required")
		}
	case models.ActionNotifyOnly:
	default:
		return fmt.Errorf("action %s is not owned by the error recovery handler", action.Type)
	}
	return nil
}

// ExecuteAction applies the remediation through the control API.
func (h *ErrorRecoveryHandler) ExecuteAction(ctx context.Context, action models.ResponseAction, alert *models.AnomalyAlert) (map[string]any, error) {
	return runCommand(ctx, h.actuator, action, alert.MetricName, false)
}

// RollbackAction re-applies the config revision that was rolled away from.
func (h *ErrorRecoveryHandler) RollbackAction(ctx context.Context, action models.ResponseAction, exec *models.Execution) error {
	_, err := runCommand(ctx, h.actuator, action, exec.MetricName, true)
	return err
}

// componentFor picks the restart target from the alert context, defaulting
// to the ingestion path that produces both failure metrics.
func componentFor(alert *models.AnomalyAlert) string {
	if c, ok := alert.Context["component"].(string); ok && c != "" {
		return c
	}
	return "request-router"
}
