package models

import "time"

// RiskLevel grades the blast radius of a response action.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ActionType enumerates the remediation commands handlers can propose.
type ActionType string

const (
	ActionThrottle         ActionType = "throttle"
	ActionScaleDown        ActionType = "scale_down"
	ActionRestartComponent ActionType = "restart_component"
	ActionRollbackConfig   ActionType = "rollback_config"
	ActionCapBudget        ActionType = "cap_budget"
	ActionNotifyOnly       ActionType = "notify_only"
)

// ResponseAction is a candidate remediation proposed by a handler for a
// specific alert. An action is always owned by exactly one Execution.
type ResponseAction struct {
	ID               string         `json:"id"`
	Type             ActionType     `json:"action_type"`
	Description      string         `json:"description,omitempty"`
	RiskLevel        RiskLevel      `json:"risk_level"`
	RequiresApproval bool           `json:"requires_approval"`
	Parameters       map[string]any `json:"parameters,omitempty"`
	Reversible       bool           `json:"reversible"`
}

// ExecutionStatus tracks an Execution through its lifecycle.
type ExecutionStatus string

const (
	StatusPendingApproval ExecutionStatus = "pending_approval"
	StatusExecuting       ExecutionStatus = "executing"
	StatusSucceeded       ExecutionStatus = "succeeded"
	StatusFailed          ExecutionStatus = "failed"
	StatusDenied          ExecutionStatus = "denied"
	StatusRolledBack      ExecutionStatus = "rolled_back"
)

// Terminal reports whether the status is an end state eligible for retention
// cleanup. PendingApproval and Executing records are never cleaned up.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusDenied, StatusRolledBack:
		return true
	default:
		return false
	}
}

// Execution is the unit of remediation work and its audit record.
type Execution struct {
	ID               string          `json:"id"`
	ActionID         string          `json:"action_id"`
	AnomalyID        string          `json:"anomaly_id"`
	Action           ResponseAction  `json:"action"`
	Category         string          `json:"category"`
	MetricName       string          `json:"metric_name"`
	StartedAt        time.Time       `json:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	Status           ExecutionStatus `json:"status"`
	Result           map[string]any  `json:"result_data,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	RollbackExecuted bool            `json:"rollback_executed"`
	HumanApproved    *bool           `json:"human_approved,omitempty"`
	Approver         string          `json:"approver,omitempty"`
	ImpactAssessment string          `json:"impact_assessment,omitempty"`
}
