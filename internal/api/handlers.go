package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/miradorstack/mirador-sentinel/internal/config"
	"github.com/miradorstack/mirador-sentinel/internal/models"
	"github.com/miradorstack/mirador-sentinel/internal/monitor"
	"github.com/miradorstack/mirador-sentinel/internal/respond"
)

// MonitoringEngine is the control surface the handlers drive.
type MonitoringEngine interface {
	Start() bool
	Stop()
	Pause() bool
	Resume() bool
	State() monitor.RunState
	Status() monitor.Status
	RecentAnomalies(limit int) []models.AnomalyAlert
	ClearAlerts(olderThan time.Duration) int
}

// ResponseEngine is the execution surface the handlers drive.
type ResponseEngine interface {
	ApprovePending(ctx context.Context, executionID string, approved bool, approver string) (*models.Execution, error)
	Rollback(ctx context.Context, executionID string) (*models.Execution, error)
	ExecutionByID(executionID string) (*models.Execution, error)
	PendingApprovals() []*models.Execution
	Statistics() respond.Statistics
	CleanupCompleted(olderThan time.Duration) int
}

// Handler exposes the sentinel control API over JSON HTTP.
type Handler struct {
	logger    *slog.Logger
	engine    MonitoringEngine
	responder ResponseEngine
	runtime   *config.Runtime
}

// NewHandler wires the control API onto the monitoring and response engines.
func NewHandler(logger *slog.Logger, engine MonitoringEngine, responder ResponseEngine, runtime *config.Runtime) *Handler {
	return &Handler{
		logger:    logger.With(slog.String("component", "api")),
		engine:    engine,
		responder: responder,
		runtime:   runtime,
	}
}

// Routes builds the router. The health and metrics handlers are mounted
// alongside the control endpoints so the service serves everything from one
// listener.
func (h *Handler) Routes(health http.Handler, metrics http.Handler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/monitoring/start", h.startMonitoring).Methods(http.MethodPost)
	r.HandleFunc("/monitoring/stop", h.stopMonitoring).Methods(http.MethodPost)
	r.HandleFunc("/monitoring/pause", h.pauseMonitoring).Methods(http.MethodPost)
	r.HandleFunc("/monitoring/resume", h.resumeMonitoring).Methods(http.MethodPost)
	r.HandleFunc("/monitoring/status", h.monitoringStatus).Methods(http.MethodGet)
	r.HandleFunc("/monitoring/config", h.getConfig).Methods(http.MethodGet)
	r.HandleFunc("/monitoring/config", h.patchConfig).Methods(http.MethodPost)

	r.HandleFunc("/anomalies", h.listAnomalies).Methods(http.MethodGet)
	r.HandleFunc("/anomalies/clear", h.clearAnomalies).Methods(http.MethodPost)

	r.HandleFunc("/responses/statistics", h.responseStatistics).Methods(http.MethodGet)
	r.HandleFunc("/responses/pending-approvals", h.pendingApprovals).Methods(http.MethodGet)
	r.HandleFunc("/responses/approve/{execution_id}", h.approveExecution).Methods(http.MethodPost)
	r.HandleFunc("/responses/rollback/{execution_id}", h.rollbackExecution).Methods(http.MethodPost)
	r.HandleFunc("/responses/execution/{execution_id}", h.getExecution).Methods(http.MethodGet)
	r.HandleFunc("/responses/cleanup", h.cleanupExecutions).Methods(http.MethodPost)

	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	if health != nil {
		r.Handle("/live", health).Methods(http.MethodGet)
		r.Handle("/ready", health).Methods(http.MethodGet)
	}
	return r
}

func (h *Handler) startMonitoring(w http.ResponseWriter, r *http.Request) {
	started := h.engine.Start()
	body := map[string]any{
		"success": started,
		"status":  h.engine.State(),
	}
	if !started {
		body["message"] = "monitoring is not stopped"
		h.writeJSON(w, http.StatusConflict, body)
		return
	}
	body["message"] = "monitoring started"
	h.writeJSON(w, http.StatusOK, body)
}

func (h *Handler) stopMonitoring(w http.ResponseWriter, r *http.Request) {
	h.engine.Stop()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "monitoring stopped",
		"status":  h.engine.State(),
	})
}

func (h *Handler) pauseMonitoring(w http.ResponseWriter, r *http.Request) {
	paused := h.engine.Pause()
	body := map[string]any{
		"success": paused,
		"status":  h.engine.State(),
	}
	if !paused {
		body["message"] = "monitoring is not running"
		h.writeJSON(w, http.StatusConflict, body)
		return
	}
	body["message"] = "monitoring paused"
	h.writeJSON(w, http.StatusOK, body)
}

func (h *Handler) resumeMonitoring(w http.ResponseWriter, r *http.Request) {
	resumed := h.engine.Resume()
	body := map[string]any{
		"success": resumed,
		"status":  h.engine.State(),
	}
	if !resumed {
		body["message"] = "monitoring is not paused"
		h.writeJSON(w, http.StatusConflict, body)
		return
	}
	body["message"] = "monitoring resumed"
	h.writeJSON(w, http.StatusOK, body)
}

func (h *Handler) monitoringStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Status())
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.runtime.Snapshot())
}

func (h *Handler) patchConfig(w http.ResponseWriter, r *http.Request) {
	var patch models.MonitoringPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid config patch: "+err.Error())
		return
	}
	if err := h.runtime.Apply(patch); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "configuration updated",
		"config":  h.runtime.Snapshot(),
	})
}

func (h *Handler) listAnomalies(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	alerts := h.engine.RecentAnomalies(limit)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"anomalies": alerts,
		"count":     len(alerts),
	})
}

func (h *Handler) clearAnomalies(w http.ResponseWriter, r *http.Request) {
	minutes := 0
	if raw := r.URL.Query().Get("older_than_minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "older_than_minutes must be a non-negative integer")
			return
		}
		minutes = n
	}
	removed := h.engine.ClearAlerts(time.Duration(minutes) * time.Minute)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "anomaly history cleared",
		"removed": removed,
	})
}

func (h *Handler) responseStatistics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.responder.Statistics())
}

func (h *Handler) pendingApprovals(w http.ResponseWriter, r *http.Request) {
	pending := h.responder.PendingApprovals()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"pending_approvals": pending,
		"count":             len(pending),
	})
}

func (h *Handler) approveExecution(w http.ResponseWriter, r *http.Request) {
	executionID := mux.Vars(r)["execution_id"]

	var req struct {
		Approved *bool  `json:"approved"`
		Approver string `json:"approver"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid approval request: "+err.Error())
		return
	}
	if req.Approved == nil {
		h.writeError(w, http.StatusBadRequest, "approved is required")
		return
	}
	if req.Approver == "" {
		h.writeError(w, http.StatusBadRequest, "approver is required")
		return
	}

	exec, err := h.responder.ApprovePending(r.Context(), executionID, *req.Approved, req.Approver)
	if err != nil {
		h.writeExecutionError(w, err)
		return
	}

	message := "execution denied"
	if *req.Approved {
		message = "execution approved"
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   message,
		"execution": exec,
	})
}

func (h *Handler) rollbackExecution(w http.ResponseWriter, r *http.Request) {
	executionID := mux.Vars(r)["execution_id"]

	exec, err := h.responder.Rollback(r.Context(), executionID)
	if err != nil {
		h.writeExecutionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "execution rolled back",
		"execution": exec,
	})
}

func (h *Handler) getExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := h.responder.ExecutionByID(mux.Vars(r)["execution_id"])
	if err != nil {
		h.writeExecutionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, exec)
}

func (h *Handler) cleanupExecutions(w http.ResponseWriter, r *http.Request) {
	hours := 0
	if raw := r.URL.Query().Get("older_than_hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "older_than_hours must be a non-negative integer")
			return
		}
		hours = n
	}
	removed := h.responder.CleanupCompleted(time.Duration(hours) * time.Hour)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "completed executions cleaned up",
		"removed": removed,
	})
}

// writeExecutionError maps domain errors onto HTTP statuses.
func (h *Handler) writeExecutionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, respond.ErrExecutionNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, respond.ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, respond.ErrRollbackUnsupported):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode response", slog.Any("error", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}
