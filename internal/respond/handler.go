package respond

import (
	"context"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-sentinel/internal/models"
	"github.com/miradorstack/mirador-sentinel/internal/repo"
)

// Actuator applies remediation commands to the outside world. The
// mirador-core control client satisfies this; tests substitute fakes.
type Actuator interface {
	Execute(ctx context.Context, cmd repo.Command) (map[string]any, error)
}

// Handler is a category-specific remediation strategy. Handlers are
// stateless between calls; the only side effects live in ExecuteAction and
// RollbackAction.
type Handler interface {
	// Name is the handler category used for statistics and rollback routing.
	Name() string

	// CanHandle reports whether this handler owns the alert's metric.
	CanHandle(alert *models.AnomalyAlert) bool

	// ResponseActions returns candidate actions, lowest-risk first.
	ResponseActions(alert *models.AnomalyAlert) []models.ResponseAction

	// ValidateAction performs pre-flight checks for one of this handler's
	// actions against the alert it would remediate.
	ValidateAction(action models.ResponseAction, alert *models.AnomalyAlert) error

	// ExecuteAction performs the remediation and returns result data.
	ExecuteAction(ctx context.Context, action models.ResponseAction, alert *models.AnomalyAlert) (map[string]any, error)

	// RollbackAction undoes a previously executed action.
	RollbackAction(ctx context.Context, action models.ResponseAction, exec *models.Execution) error
}

func runCommand(ctx context.Context, actuator Actuator, action models.ResponseAction, metric string, rollback bool) (map[string]any, error) {
	return actuator.Execute(ctx, repo.Command{
		Action:     string(action.Type),
		MetricName: metric,
		Parameters: action.Parameters,
		Rollback:   rollback,
	})
}

func metricIn(alert *models.AnomalyAlert, metrics ...string) bool {
	for _, m := range metrics {
		if alert.MetricName == m {
			return true
		}
	}
	return false
}

// notifyAction is the observation-only fallback proposed for low-severity
// anomalies.
func notifyAction(alert *models.AnomalyAlert) models.ResponseAction {
	return models.ResponseAction{
		ID:          uuid.NewString(),
		Type:        models.ActionNotifyOnly,
		Description: "Record the anomaly and notify operators without intervening",
		RiskLevel:   models.RiskLow,
		Reversible:  false,
		Parameters: map[string]any{
			"severity": string(alert.Severity),
		},
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
