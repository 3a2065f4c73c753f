package repo

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/miradorstack/mirador-sentinel/internal/utils"
)

// Command is a remediation instruction sent to the mirador-core control API.
type Command struct {
	Action     string         `json:"action"`
	MetricName string         `json:"metric_name,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Rollback   bool           `json:"rollback,omitempty"`
}

// ControlClient applies remediation commands through mirador-core. Without a
// configured base URL it runs in dry-run mode: commands are acknowledged
// locally instead of being sent, which keeps single-binary deployments and
// tests working.
type ControlClient struct {
	baseURL     string
	controlPath string
	httpClient  *http.Client
}

// NewControlClient constructs a control client. An empty baseURL selects
// dry-run mode.
func NewControlClient(baseURL, controlPath string, timeout time.Duration) *ControlClient {
	return &ControlClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		controlPath: controlPath,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// DryRun reports whether commands are executed locally.
func (c *ControlClient) DryRun() bool {
	return c == nil || c.baseURL == ""
}

// Execute sends the command and returns the control API's result payload.
func (c *ControlClient) Execute(ctx context.Context, cmd Command) (map[string]any, error) {
	if cmd.Action == "" {
		return nil, fmt.Errorf("command action is required")
	}

	if c.DryRun() {
		return map[string]any{
			"action":     cmd.Action,
			"metric":     cmd.MetricName,
			"parameters": cmd.Parameters,
			"rollback":   cmd.Rollback,
			"mode":       "dry-run",
			"applied_at": time.Now().UTC().Format(time.RFC3339),
		}, nil
	}

	var response struct {
		Success bool           `json:"success"`
		Error   string         `json:"error"`
		Result  map[string]any `json:"result"`
	}

	endpoint := resolvePath(c.baseURL, c.controlPath)
	if err := postJSON(ctx, c.httpClient, endpoint, cmd, &response); err != nil {
		return nil, utils.NewOpError("repo.control", "execute command via mirador-core", err)
	}
	if !response.Success {
		msg := response.Error
		if msg == "" {
			msg = "control command rejected"
		}
		return nil, utils.NewOpError("repo.control", msg, nil)
	}
	if response.Result == nil {
		response.Result = map[string]any{"action": cmd.Action}
	}
	return response.Result, nil
}
