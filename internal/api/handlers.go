package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chainlens/internal/agent"
	"github.com/chainlens/internal/alert"
	"github.com/chainlens/internal/health"
	"github.com/chainlens/internal/logging"
	"github.com/chainlens/internal/store"
	"github.com/chainlens/internal/triangle"
	"github.com/chainlens/pkg/models"
)

const (
	maxWindowDays       = 365
	defaultHistoryLimit = 30
	maxHistoryLimit     = 365
	defaultAlertLimit   = 100
	maxAlertLimit       = 1000
)

// Request types

type AlertRuleRequest struct {
	Name            string               `json:"name"`
	Metric          string               `json:"metric"`
	Operator        models.AlertOperator `json:"operator"`
	Threshold       float64              `json:"threshold"`
	Severity        models.AlertSeverity `json:"severity"`
	CooldownSeconds int64                `json:"cooldown_seconds"`
	Enabled         *bool                `json:"enabled,omitempty"`
}

func (req AlertRuleRequest) apply(rule *models.AlertRule) {
	rule.Name = req.Name
	rule.Metric = req.Metric
	rule.Operator = req.Operator
	rule.Threshold = req.Threshold
	rule.Severity = req.Severity
	rule.Cooldown = time.Duration(req.CooldownSeconds) * time.Second
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
}

// writeDomainError maps service errors onto HTTP statuses
func (g *Gateway) writeDomainError(w http.ResponseWriter, r *http.Request, err error, message string) {
	switch {
	case errors.Is(err, triangle.ErrDataUnavailable):
		writeErrorResponse(w, http.StatusNotFound, "NO_DATA", message, err.Error())
	case errors.Is(err, triangle.ErrMalformedInput):
		writeErrorResponse(w, http.StatusUnprocessableEntity, "MALFORMED_INPUT", message, err.Error())
	case errors.Is(err, triangle.ErrAggregationUndefined):
		writeErrorResponse(w, http.StatusUnprocessableEntity, "AGGREGATION_UNDEFINED", message, err.Error())
	case errors.Is(err, agent.ErrAlreadyRunning):
		writeErrorResponse(w, http.StatusConflict, "ALREADY_RUNNING", message, err.Error())
	case errors.Is(err, agent.ErrNotRunning):
		writeErrorResponse(w, http.StatusNotFound, "NOT_RUNNING", message, err.Error())
	case errors.Is(err, agent.ErrUnknownTask):
		writeErrorResponse(w, http.StatusNotFound, "UNKNOWN_TASK", message, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeErrorResponse(w, http.StatusNotFound, "NOT_FOUND", message, err.Error())
	case errors.Is(err, alert.ErrInvalidRule):
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_RULE", message, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeErrorResponse(w, http.StatusGatewayTimeout, "TIMEOUT", message, err.Error())
	default:
		logging.FromContext(r.Context(), g.logger).Error(message, zap.Error(err))
		writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", message, "")
	}
}

// queryInt parses an optional positive integer query parameter
func queryInt(r *http.Request, name string, fallback, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > max {
		return 0, errors.New(name + " must be an integer between 1 and " + strconv.Itoa(max))
	}
	return v, nil
}

func tenantOf(r *http.Request) string {
	return logging.TenantID(r.Context())
}

// Triangle handlers

func (g *Gateway) handleGetTriangle(w http.ResponseWriter, r *http.Request) {
	windowDays, err := queryInt(r, "window_days", 0, maxWindowDays)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_PARAMETER", "Invalid window", err.Error())
		return
	}

	analysis, err := g.deps.Triangle.Analyze(r.Context(), tenantOf(r), windowDays)
	if err != nil {
		g.writeDomainError(w, r, err, "Failed to analyze supply chain triangle")
		return
	}

	writeSuccessResponse(w, analysis, nil)
}

func (g *Gateway) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_PARAMETER", "Invalid limit", err.Error())
		return
	}

	history, err := g.deps.History.ListScoreHistory(r.Context(), tenantOf(r), limit)
	if err != nil {
		g.writeDomainError(w, r, err, "Failed to read score history")
		return
	}
	if history == nil {
		history = []models.TriangleScore{}
	}

	writeSuccessResponse(w, history, &APIMeta{Total: len(history), Limit: limit, HasMore: len(history) == limit})
}

// Data ingestion handlers

type InventoryRequest struct {
	Records []models.InventoryRecord `json:"records"`
}

type SalesRequest struct {
	Records []models.SalesRecord `json:"records"`
}

func (g *Gateway) handleUpsertInventory(w http.ResponseWriter, r *http.Request) {
	var req InventoryRequest
	if err := g.parseRequestBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to parse request body", err.Error())
		return
	}
	if len(req.Records) == 0 {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "No records", "records must not be empty")
		return
	}

	tenantID := tenantOf(r)
	if err := g.deps.Data.UpsertInventory(r.Context(), tenantID, req.Records); err != nil {
		g.writeDomainError(w, r, err, "Failed to store inventory")
		return
	}
	g.invalidate(r.Context(), tenantID)

	writeSuccessResponse(w, map[string]int{"stored": len(req.Records)}, nil)
}

func (g *Gateway) handleInsertSales(w http.ResponseWriter, r *http.Request) {
	var req SalesRequest
	if err := g.parseRequestBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to parse request body", err.Error())
		return
	}
	if len(req.Records) == 0 {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "No records", "records must not be empty")
		return
	}

	tenantID := tenantOf(r)
	if err := g.deps.Data.InsertSales(r.Context(), tenantID, req.Records); err != nil {
		g.writeDomainError(w, r, err, "Failed to store sales")
		return
	}
	g.invalidate(r.Context(), tenantID)

	writeSuccessResponse(w, map[string]int{"stored": len(req.Records)}, nil)
}

func (g *Gateway) invalidate(ctx context.Context, tenantID string) {
	if g.deps.Cache != nil {
		g.deps.Cache.InvalidateTenant(ctx, tenantID)
	}
}

// Alert rule handlers

func (g *Gateway) handleListAlertRules(w http.ResponseWriter, r *http.Request) {
	enabledOnly := r.URL.Query().Get("enabled") == "true"

	rules, err := g.deps.Alerts.ListAlertRules(r.Context(), tenantOf(r), enabledOnly)
	if err != nil {
		g.writeDomainError(w, r, err, "Failed to list alert rules")
		return
	}
	if rules == nil {
		rules = []models.AlertRule{}
	}

	writeSuccessResponse(w, rules, &APIMeta{Total: len(rules)})
}

func (g *Gateway) handleCreateAlertRule(w http.ResponseWriter, r *http.Request) {
	var req AlertRuleRequest
	if err := g.parseRequestBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to parse request body", err.Error())
		return
	}

	now := g.now().UTC()
	rule := models.AlertRule{
		ID:        uuid.New().String(),
		TenantID:  tenantOf(r),
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	req.apply(&rule)

	if err := alert.ValidateRule(rule); err != nil {
		g.writeDomainError(w, r, err, "Invalid alert rule")
		return
	}

	if err := g.deps.Alerts.CreateAlertRule(r.Context(), rule); err != nil {
		g.writeDomainError(w, r, err, "Failed to create alert rule")
		return
	}

	writeStatusResponse(w, http.StatusCreated, rule, nil)
}

func (g *Gateway) handleUpdateAlertRule(w http.ResponseWriter, r *http.Request) {
	ruleID := mux.Vars(r)["id"]

	var req AlertRuleRequest
	if err := g.parseRequestBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to parse request body", err.Error())
		return
	}

	rule, err := g.deps.Alerts.GetAlertRule(r.Context(), tenantOf(r), ruleID)
	if err != nil {
		g.writeDomainError(w, r, err, "Alert rule not found")
		return
	}

	req.apply(rule)
	rule.UpdatedAt = g.now().UTC()

	if err := alert.ValidateRule(*rule); err != nil {
		g.writeDomainError(w, r, err, "Invalid alert rule")
		return
	}

	if err := g.deps.Alerts.UpdateAlertRule(r.Context(), *rule); err != nil {
		g.writeDomainError(w, r, err, "Failed to update alert rule")
		return
	}

	writeSuccessResponse(w, rule, nil)
}

func (g *Gateway) handleDeleteAlertRule(w http.ResponseWriter, r *http.Request) {
	ruleID := mux.Vars(r)["id"]

	if err := g.deps.Alerts.DeleteAlertRule(r.Context(), tenantOf(r), ruleID); err != nil {
		g.writeDomainError(w, r, err, "Failed to delete alert rule")
		return
	}

	writeSuccessResponse(w, map[string]string{"deleted": ruleID}, nil)
}

// Alert handlers

func (g *Gateway) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultAlertLimit, maxAlertLimit)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_PARAMETER", "Invalid limit", err.Error())
		return
	}

	filter := store.AlertFilter{
		UnacknowledgedOnly: r.URL.Query().Get("unacknowledged") == "true",
		Limit:              limit,
	}

	alerts, err := g.deps.Alerts.ListAlerts(r.Context(), tenantOf(r), filter)
	if err != nil {
		g.writeDomainError(w, r, err, "Failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}

	writeSuccessResponse(w, alerts, &APIMeta{Total: len(alerts), Limit: limit, HasMore: len(alerts) == limit})
}

func (g *Gateway) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alertID := mux.Vars(r)["id"]

	if err := g.deps.Alerts.AcknowledgeAlert(r.Context(), tenantOf(r), alertID, g.now().UTC()); err != nil {
		g.writeDomainError(w, r, err, "Failed to acknowledge alert")
		return
	}

	writeSuccessResponse(w, map[string]string{"acknowledged": alertID}, nil)
}

func (g *Gateway) handleEvaluateAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := g.deps.Evaluator.EvaluateTenant(r.Context(), tenantOf(r))
	if err != nil {
		g.writeDomainError(w, r, err, "Failed to evaluate alert rules")
		return
	}

	writeSuccessResponse(w, alerts, &APIMeta{Total: len(alerts)})
}

// Agent handlers

func (g *Gateway) handleStartAgent(w http.ResponseWriter, r *http.Request) {
	task := mux.Vars(r)["task"]

	run, err := g.deps.Agents.Start(r.Context(), tenantOf(r), task)
	if err != nil {
		g.writeDomainError(w, r, err, "Failed to start agent task")
		return
	}

	writeStatusResponse(w, http.StatusAccepted, run, nil)
}

func (g *Gateway) handleCancelAgent(w http.ResponseWriter, r *http.Request) {
	task := mux.Vars(r)["task"]

	if err := g.deps.Agents.Cancel(tenantOf(r), task); err != nil {
		g.writeDomainError(w, r, err, "Failed to cancel agent task")
		return
	}

	writeSuccessResponse(w, map[string]string{"cancelled": task}, nil)
}

func (g *Gateway) handleListAgentRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := g.deps.Agents.ListRuns(r.Context(), tenantOf(r))
	if err != nil {
		g.writeDomainError(w, r, err, "Failed to list agent runs")
		return
	}
	if runs == nil {
		runs = []models.AgentRun{}
	}

	writeSuccessResponse(w, runs, &APIMeta{Total: len(runs)})
}

// Health and metrics handlers

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if g.deps.Health == nil {
		writeSuccessResponse(w, health.Report{Status: health.StatusHealthy, Timestamp: g.now().UTC()}, nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	report := g.deps.Health.Report(ctx)
	if report.Status == health.StatusUnhealthy {
		writeJSONResponse(w, http.StatusServiceUnavailable, APIResponse{Success: false, Data: report})
		return
	}

	writeSuccessResponse(w, report, nil)
}

func (g *Gateway) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]interface{}{
		"gateway": g.GetMetrics(),
	}
	if g.deps.Triangle != nil {
		metrics["triangle"] = g.deps.Triangle.GetMetrics()
	}
	if g.deps.Evaluator != nil {
		metrics["alerts"] = g.deps.Evaluator.GetStats()
	}
	if g.deps.Agents != nil {
		metrics["agents_running"] = g.deps.Agents.Running()
		metrics["agent_tasks"] = g.deps.Agents.Tasks()
	}
	if g.deps.Hub != nil {
		metrics["websocket_clients"] = g.deps.Hub.ClientCount()
	}

	writeSuccessResponse(w, metrics, nil)
}
