package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainlens/internal/agent"
	"github.com/chainlens/internal/alert"
	"github.com/chainlens/internal/health"
	"github.com/chainlens/internal/store"
	"github.com/chainlens/internal/triangle"
	"github.com/chainlens/pkg/models"
)

var testNow = time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

type fakeTriangle struct {
	analysis   *models.TriangleAnalysis
	err        error
	lastWindow int
	lastTenant string
}

func (f *fakeTriangle) Analyze(ctx context.Context, tenantID string, windowDays int) (*models.TriangleAnalysis, error) {
	f.lastTenant = tenantID
	f.lastWindow = windowDays
	return f.analysis, f.err
}

func (f *fakeTriangle) GetMetrics() triangle.EngineMetrics { return triangle.EngineMetrics{} }

type fakeHistory struct {
	lastLimit int
}

func (f *fakeHistory) ListScoreHistory(ctx context.Context, tenantID string, limit int) ([]models.TriangleScore, error) {
	f.lastLimit = limit
	return []models.TriangleScore{{TenantID: tenantID, Overall: 70}}, nil
}

type fakeData struct {
	inventory   []models.InventoryRecord
	sales       []models.SalesRecord
	err         error
	invalidated []string
}

func (f *fakeData) UpsertInventory(ctx context.Context, tenantID string, records []models.InventoryRecord) error {
	if f.err != nil {
		return f.err
	}
	f.inventory = append(f.inventory, records...)
	return nil
}

func (f *fakeData) InsertSales(ctx context.Context, tenantID string, records []models.SalesRecord) error {
	if f.err != nil {
		return f.err
	}
	f.sales = append(f.sales, records...)
	return nil
}

func (f *fakeData) InvalidateTenant(ctx context.Context, tenantID string) {
	f.invalidated = append(f.invalidated, tenantID)
}

type fakeAlerts struct {
	mu     sync.Mutex
	rules  map[string]models.AlertRule
	alerts []models.Alert
	acked  []string
	filter store.AlertFilter
}

func newFakeAlerts() *fakeAlerts {
	return &fakeAlerts{rules: map[string]models.AlertRule{}}
}

func (f *fakeAlerts) CreateAlertRule(ctx context.Context, rule models.AlertRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[rule.ID] = rule
	return nil
}

func (f *fakeAlerts) GetAlertRule(ctx context.Context, tenantID, ruleID string) (*models.AlertRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[ruleID]
	if !ok || rule.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &rule, nil
}

func (f *fakeAlerts) ListAlertRules(ctx context.Context, tenantID string, enabledOnly bool) ([]models.AlertRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AlertRule
	for _, r := range f.rules {
		if r.TenantID == tenantID && (!enabledOnly || r.Enabled) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAlerts) UpdateAlertRule(ctx context.Context, rule models.AlertRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[rule.ID] = rule
	return nil
}

func (f *fakeAlerts) DeleteAlertRule(ctx context.Context, tenantID, ruleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rules[ruleID]; !ok {
		return store.ErrNotFound
	}
	delete(f.rules, ruleID)
	return nil
}

func (f *fakeAlerts) ListAlerts(ctx context.Context, tenantID string, filter store.AlertFilter) ([]models.Alert, error) {
	f.filter = filter
	return f.alerts, nil
}

func (f *fakeAlerts) AcknowledgeAlert(ctx context.Context, tenantID, alertID string, at time.Time) error {
	if alertID == "missing" {
		return store.ErrNotFound
	}
	f.acked = append(f.acked, alertID)
	return nil
}

type fakeEvaluator struct {
	alerts []models.Alert
	err    error
}

func (f *fakeEvaluator) EvaluateTenant(ctx context.Context, tenantID string) ([]models.Alert, error) {
	return f.alerts, f.err
}

func (f *fakeEvaluator) GetStats() alert.Stats { return alert.Stats{} }

type fakeAgents struct {
	startErr  error
	cancelErr error
}

func (f *fakeAgents) Start(ctx context.Context, tenantID, task string) (*models.AgentRun, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &models.AgentRun{ID: "run-1", TenantID: tenantID, Task: task, Status: models.AgentRunRunning}, nil
}

func (f *fakeAgents) Cancel(tenantID, task string) error { return f.cancelErr }

func (f *fakeAgents) ListRuns(ctx context.Context, tenantID string) ([]models.AgentRun, error) {
	return nil, nil
}

func (f *fakeAgents) Running() []agent.RunningTask { return nil }

func (f *fakeAgents) Tasks() []string { return []string{agent.TaskTriangleInsights} }

type fakeHealth struct {
	status health.HealthStatus
}

func (f fakeHealth) Report(ctx context.Context) health.Report {
	return health.Report{Status: f.status, Timestamp: testNow}
}

type fixture struct {
	gateway   *Gateway
	triangle  *fakeTriangle
	history   *fakeHistory
	data      *fakeData
	alerts    *fakeAlerts
	evaluator *fakeEvaluator
	agents    *fakeAgents
}

func newFixture() *fixture {
	return newFixtureWithConfig(DefaultGatewayConfig())
}

func newFixtureWithConfig(cfg GatewayConfig) *fixture {
	f := &fixture{
		triangle: &fakeTriangle{analysis: &models.TriangleAnalysis{
			Scores: models.TriangleScore{TenantID: "acme", Service: 80, Cost: 60, Capital: 70, Overall: 69.04},
		}},
		history:   &fakeHistory{},
		data:      &fakeData{},
		alerts:    newFakeAlerts(),
		evaluator: &fakeEvaluator{},
		agents:    &fakeAgents{},
	}
	f.gateway = NewGateway(cfg, Dependencies{
		Triangle:  f.triangle,
		History:   f.history,
		Data:      f.data,
		Cache:     f.data,
		Alerts:    f.alerts,
		Evaluator: f.evaluator,
		Agents:    f.agents,
		Health:    fakeHealth{status: health.StatusHealthy},
	})
	f.gateway.now = func() time.Time { return testNow }
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(HeaderTenantID, "acme")

	rec := httptest.NewRecorder()
	f.gateway.Handler().ServeHTTP(rec, req)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func TestGetTriangle(t *testing.T) {
	f := newFixture()

	rec, resp := f.do(t, http.MethodGet, "/api/v1/triangle?window_days=60", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, 60, f.triangle.lastWindow)
	assert.Equal(t, "acme", f.triangle.lastTenant)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	data := resp.Data.(map[string]interface{})
	scores := data["scores"].(map[string]interface{})
	assert.Equal(t, 69.04, scores["overall"])
}

func TestGetTriangleDefaultsWindow(t *testing.T) {
	f := newFixture()

	rec, _ := f.do(t, http.MethodGet, "/api/v1/triangle", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, f.triangle.lastWindow)
}

func TestGetTriangleRejectsBadWindow(t *testing.T) {
	f := newFixture()

	for _, q := range []string{"abc", "0", "-5", "400"} {
		rec, resp := f.do(t, http.MethodGet, "/api/v1/triangle?window_days="+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)
	}
}

func TestGetTriangleRequiresTenant(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/triangle", nil)
	rec := httptest.NewRecorder()
	f.gateway.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "MISSING_TENANT")
}

func TestDomainErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{triangle.ErrDataUnavailable, http.StatusNotFound, "NO_DATA"},
		{fmt.Errorf("row: %w", triangle.ErrMalformedInput), http.StatusUnprocessableEntity, "MALFORMED_INPUT"},
		{triangle.ErrAggregationUndefined, http.StatusUnprocessableEntity, "AGGREGATION_UNDEFINED"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		f := newFixture()
		f.triangle.err = tt.err

		rec, resp := f.do(t, http.MethodGet, "/api/v1/triangle", nil)
		assert.Equal(t, tt.status, rec.Code, tt.code)
		assert.False(t, resp.Success)
		assert.Equal(t, tt.code, resp.Error.Code)
	}
}

func TestInternalErrorsHideDetails(t *testing.T) {
	f := newFixture()
	f.triangle.err = fmt.Errorf("query inventory: dial tcp dsn=secret")

	rec, resp := f.do(t, http.MethodGet, "/api/v1/triangle", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	assert.Empty(t, resp.Error.Details)
	assert.NotContains(t, rec.Body.String(), "dsn=secret")
}

func TestMetricsListsAgentTasks(t *testing.T) {
	f := newFixture()

	rec, resp := f.do(t, http.MethodGet, "/api/v1/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	metrics := resp.Data.(map[string]interface{})
	assert.Equal(t, []interface{}{agent.TaskTriangleInsights}, metrics["agent_tasks"])
	assert.Contains(t, metrics, "gateway")
}

func TestGetHistory(t *testing.T) {
	f := newFixture()

	rec, resp := f.do(t, http.MethodGet, "/api/v1/triangle/history", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultHistoryLimit, f.history.lastLimit)
	assert.Equal(t, 1, resp.Meta.Total)

	f.do(t, http.MethodGet, "/api/v1/triangle/history?limit=5", nil)
	assert.Equal(t, 5, f.history.lastLimit)
}

func TestAlertRuleLifecycle(t *testing.T) {
	f := newFixture()

	rec, resp := f.do(t, http.MethodPost, "/api/v1/alert-rules", AlertRuleRequest{
		Name:            "overall floor",
		Metric:          "overall",
		Operator:        models.OperatorLessThan,
		Threshold:       60,
		Severity:        models.AlertSeverityCritical,
		CooldownSeconds: 3600,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := resp.Data.(map[string]interface{})
	id := created["id"].(string)
	assert.Equal(t, true, created["enabled"])

	stored := f.alerts.rules[id]
	assert.Equal(t, "acme", stored.TenantID)
	assert.Equal(t, time.Hour, stored.Cooldown)
	assert.Equal(t, testNow, stored.CreatedAt)

	disabled := false
	rec, _ = f.do(t, http.MethodPut, "/api/v1/alert-rules/"+id, AlertRuleRequest{
		Name:      "overall floor",
		Metric:    "overall",
		Operator:  models.OperatorLessOrEqual,
		Threshold: 55,
		Severity:  models.AlertSeverityWarning,
		Enabled:   &disabled,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 55.0, f.alerts.rules[id].Threshold)
	assert.False(t, f.alerts.rules[id].Enabled)

	rec, resp = f.do(t, http.MethodGet, "/api/v1/alert-rules", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, resp.Meta.Total)

	rec, _ = f.do(t, http.MethodDelete, "/api/v1/alert-rules/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp = f.do(t, http.MethodDelete, "/api/v1/alert-rules/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestCreateAlertRuleValidation(t *testing.T) {
	f := newFixture()

	rec, resp := f.do(t, http.MethodPost, "/api/v1/alert-rules", AlertRuleRequest{
		Name:     "bad",
		Metric:   "nps",
		Operator: models.OperatorLessThan,
		Severity: models.AlertSeverityInfo,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_RULE", resp.Error.Code)
	assert.Empty(t, f.alerts.rules)

	rec, resp = f.do(t, http.MethodPost, "/api/v1/alert-rules", map[string]string{"unknown": "field"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", resp.Error.Code)
}

func TestCreateAlertRuleRejectsLongName(t *testing.T) {
	f := newFixture()

	rec, resp := f.do(t, http.MethodPost, "/api/v1/alert-rules", AlertRuleRequest{
		Name:     strings.Repeat("n", alert.MaxRuleNameLength+1),
		Metric:   "overall",
		Operator: models.OperatorLessThan,
		Severity: models.AlertSeverityInfo,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_RULE", resp.Error.Code)
	assert.Empty(t, f.alerts.rules)
}

func TestUpdateMissingAlertRule(t *testing.T) {
	f := newFixture()

	rec, _ := f.do(t, http.MethodPut, "/api/v1/alert-rules/nope", AlertRuleRequest{
		Name: "x", Metric: "overall", Operator: models.OperatorLessThan, Severity: models.AlertSeverityInfo,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlerts(t *testing.T) {
	f := newFixture()
	f.alerts.alerts = []models.Alert{{ID: "a1", TenantID: "acme"}}

	rec, resp := f.do(t, http.MethodGet, "/api/v1/alerts?unacknowledged=true&limit=10", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, resp.Meta.Total)
	assert.True(t, f.alerts.filter.UnacknowledgedOnly)
	assert.Equal(t, 10, f.alerts.filter.Limit)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/alerts/a1/acknowledge", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a1"}, f.alerts.acked)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/alerts/missing/acknowledge", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvaluateAlerts(t *testing.T) {
	f := newFixture()
	f.evaluator.alerts = []models.Alert{{ID: "a1"}, {ID: "a2"}}

	rec, resp := f.do(t, http.MethodPost, "/api/v1/alerts/evaluate", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, resp.Meta.Total)

	f.evaluator.err = triangle.ErrDataUnavailable
	rec, resp = f.do(t, http.MethodPost, "/api/v1/alerts/evaluate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NO_DATA", resp.Error.Code)
}

func TestAgents(t *testing.T) {
	f := newFixture()

	rec, resp := f.do(t, http.MethodPost, "/api/v1/agents/triangle_insights/run", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "triangle_insights", resp.Data.(map[string]interface{})["task"])

	f.agents.startErr = agent.ErrAlreadyRunning
	rec, resp = f.do(t, http.MethodPost, "/api/v1/agents/triangle_insights/run", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_RUNNING", resp.Error.Code)

	rec, _ = f.do(t, http.MethodDelete, "/api/v1/agents/triangle_insights", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	f.agents.cancelErr = agent.ErrNotRunning
	rec, _ = f.do(t, http.MethodDelete, "/api/v1/agents/triangle_insights", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, resp = f.do(t, http.MethodGet, "/api/v1/agents/runs", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{}, resp.Data)
}

func TestHealth(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	f.gateway.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	f.gateway.deps.Health = fakeHealth{status: health.StatusUnhealthy}
	rec = httptest.NewRecorder()
	f.gateway.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/triangle", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	f.gateway.Handler().ServeHTTP(rec, req)

	assert.Less(t, rec.Code, 300)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardNeverAllowsCredentials(t *testing.T) {
	for _, allow := range []bool{false, true} {
		cfg := DefaultGatewayConfig()
		cfg.AllowCredentials = allow
		f := newFixtureWithConfig(cfg)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/triangle", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set(HeaderTenantID, "acme")
		rec := httptest.NewRecorder()
		f.gateway.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"), "allow_credentials=%v", allow)
	}
}

func TestCORSCredentialsWithExplicitOrigins(t *testing.T) {
	cfg := DefaultGatewayConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	cfg.AllowCredentials = true
	f := newFixtureWithConfig(cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/triangle", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set(HeaderTenantID, "acme")
	rec := httptest.NewRecorder()
	f.gateway.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/triangle", nil)
	req.Header.Set(HeaderTenantID, "acme")
	req.Header.Set(HeaderRequestID, "req-123")
	rec := httptest.NewRecorder()
	f.gateway.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(HeaderRequestID))
	assert.Equal(t, int64(1), f.gateway.GetMetrics().RequestsByRoute["GET /api/v1/triangle"])
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture()

	rec, resp := f.do(t, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestIngestInvalidatesCache(t *testing.T) {
	f := newFixture()

	rec, _ := f.do(t, http.MethodPost, "/api/v1/inventory", InventoryRequest{
		Records: []models.InventoryRecord{{SKU: "A-1", QuantityOnHand: 10, UnitCost: 4}},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.data.inventory, 1)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/sales", SalesRequest{
		Records: []models.SalesRecord{{SKU: "A-1", QuantitySold: 2, Revenue: 20, TransactionDate: testNow, Fulfilled: true}},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.data.sales, 1)
	assert.Equal(t, []string{"acme", "acme"}, f.data.invalidated)
}

func TestIngestRejectsMalformedRecords(t *testing.T) {
	f := newFixture()
	f.data.err = fmt.Errorf("inventory sku %q: %w", "A-1", triangle.ErrMalformedInput)

	rec, resp := f.do(t, http.MethodPost, "/api/v1/inventory", InventoryRequest{
		Records: []models.InventoryRecord{{SKU: "A-1", QuantityOnHand: -1}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "MALFORMED_INPUT", resp.Error.Code)
	assert.Empty(t, f.data.invalidated)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/sales", SalesRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
