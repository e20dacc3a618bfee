package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/chainlens/internal/agent"
	"github.com/chainlens/internal/alert"
	"github.com/chainlens/internal/health"
	"github.com/chainlens/internal/logging"
	"github.com/chainlens/internal/store"
	"github.com/chainlens/internal/triangle"
	"github.com/chainlens/pkg/models"
)

// Header names
const (
	HeaderTenantID  = "X-Tenant-ID"
	HeaderRequestID = "X-Request-ID"
)

// TriangleService computes tenant analyses
type TriangleService interface {
	Analyze(ctx context.Context, tenantID string, windowDays int) (*models.TriangleAnalysis, error)
	GetMetrics() triangle.EngineMetrics
}

// HistoryReader reads persisted scores
type HistoryReader interface {
	ListScoreHistory(ctx context.Context, tenantID string, limit int) ([]models.TriangleScore, error)
}

// DataWriter ingests tenant inventory and sales records
type DataWriter interface {
	UpsertInventory(ctx context.Context, tenantID string, records []models.InventoryRecord) error
	InsertSales(ctx context.Context, tenantID string, records []models.SalesRecord) error
}

// CacheInvalidator drops cached analyses after new data arrives
type CacheInvalidator interface {
	InvalidateTenant(ctx context.Context, tenantID string)
}

// AlertStore persists rules and alerts
type AlertStore interface {
	CreateAlertRule(ctx context.Context, rule models.AlertRule) error
	GetAlertRule(ctx context.Context, tenantID, ruleID string) (*models.AlertRule, error)
	ListAlertRules(ctx context.Context, tenantID string, enabledOnly bool) ([]models.AlertRule, error)
	UpdateAlertRule(ctx context.Context, rule models.AlertRule) error
	DeleteAlertRule(ctx context.Context, tenantID, ruleID string) error
	ListAlerts(ctx context.Context, tenantID string, filter store.AlertFilter) ([]models.Alert, error)
	AcknowledgeAlert(ctx context.Context, tenantID, alertID string, at time.Time) error
}

// AlertEvaluator runs a tenant's rules on demand
type AlertEvaluator interface {
	EvaluateTenant(ctx context.Context, tenantID string) ([]models.Alert, error)
	GetStats() alert.Stats
}

// AgentRunner starts and stops background tasks
type AgentRunner interface {
	Start(ctx context.Context, tenantID, task string) (*models.AgentRun, error)
	Cancel(tenantID, task string) error
	ListRuns(ctx context.Context, tenantID string) ([]models.AgentRun, error)
	Running() []agent.RunningTask
	Tasks() []string
}

// HealthReporter aggregates dependency checks
type HealthReporter interface {
	Report(ctx context.Context) health.Report
}

// Dependencies are the services the gateway routes to
type Dependencies struct {
	Triangle  TriangleService
	History   HistoryReader
	Data      DataWriter
	Cache     CacheInvalidator
	Alerts    AlertStore
	Evaluator AlertEvaluator
	Agents    AgentRunner
	Health    HealthReporter
	Hub       *AlertHub
	Logger    *zap.Logger
}

// Gateway represents the API gateway
type Gateway struct {
	server  *http.Server
	router  *mux.Router
	handler http.Handler
	deps    Dependencies
	config  GatewayConfig
	logger  *zap.Logger
	now     func() time.Time

	metricsMu sync.RWMutex
	metrics   GatewayMetrics
}

// GatewayConfig represents gateway configuration
type GatewayConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	EnableCORS      bool          `yaml:"enable_cors" json:"enable_cors"`
	AllowedOrigins  []string      `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods  []string      `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders  []string      `yaml:"allowed_headers" json:"allowed_headers"`
	// AllowCredentials is ignored when AllowedOrigins contains "*"
	AllowCredentials bool          `yaml:"allow_credentials" json:"allow_credentials"`
	RequestTimeout   time.Duration `yaml:"request_timeout" json:"request_timeout"`
	MaxRequestSize   int64         `yaml:"max_request_size" json:"max_request_size"`
}

// DefaultGatewayConfig returns default gateway configuration
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		EnableCORS:      true,
		AllowedOrigins:  []string{"*"},
		AllowedMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:  []string{"*"},
		RequestTimeout:  30 * time.Second,
		MaxRequestSize:  1 << 20, // 1MB
	}
}

// GatewayMetrics represents gateway metrics
type GatewayMetrics struct {
	RequestsTotal    int64            `json:"requests_total"`
	RequestsFailed   int64            `json:"requests_failed"`
	AverageLatency   time.Duration    `json:"average_latency"`
	RequestsByRoute  map[string]int64 `json:"requests_by_route"`
	RequestsByStatus map[int]int64    `json:"requests_by_status"`
	LastRequest      time.Time        `json:"last_request"`
}

// NewGateway creates a new API gateway
func NewGateway(config GatewayConfig, deps Dependencies) *Gateway {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	gateway := &Gateway{
		router: mux.NewRouter(),
		deps:   deps,
		config: config,
		logger: logger,
		metrics: GatewayMetrics{
			RequestsByRoute:  make(map[string]int64),
			RequestsByStatus: make(map[int]int64),
		},
		now: time.Now,
	}

	gateway.setupRoutes()
	gateway.setupMiddleware()

	gateway.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      gateway.handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return gateway
}

// setupRoutes configures all API routes
func (g *Gateway) setupRoutes() {
	api := g.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", g.handleHealth).Methods("GET")
	api.HandleFunc("/metrics", g.handleMetrics).Methods("GET")

	tenant := api.NewRoute().Subrouter()
	tenant.Use(g.tenantMiddleware)
	if g.config.RequestTimeout > 0 {
		tenant.Use(g.timeoutMiddleware)
	}

	// Triangle routes
	tenant.HandleFunc("/triangle", g.handleGetTriangle).Methods("GET")
	tenant.HandleFunc("/triangle/history", g.handleGetHistory).Methods("GET")

	// Data ingestion routes
	tenant.HandleFunc("/inventory", g.handleUpsertInventory).Methods("POST")
	tenant.HandleFunc("/sales", g.handleInsertSales).Methods("POST")

	// Alert rule routes
	tenant.HandleFunc("/alert-rules", g.handleListAlertRules).Methods("GET")
	tenant.HandleFunc("/alert-rules", g.handleCreateAlertRule).Methods("POST")
	tenant.HandleFunc("/alert-rules/{id}", g.handleUpdateAlertRule).Methods("PUT")
	tenant.HandleFunc("/alert-rules/{id}", g.handleDeleteAlertRule).Methods("DELETE")

	// Alert routes
	tenant.HandleFunc("/alerts", g.handleListAlerts).Methods("GET")
	tenant.HandleFunc("/alerts/evaluate", g.handleEvaluateAlerts).Methods("POST")
	tenant.HandleFunc("/alerts/{id}/acknowledge", g.handleAcknowledgeAlert).Methods("POST")

	// Agent routes
	tenant.HandleFunc("/agents/runs", g.handleListAgentRuns).Methods("GET")
	tenant.HandleFunc("/agents/{task}/run", g.handleStartAgent).Methods("POST")
	tenant.HandleFunc("/agents/{task}", g.handleCancelAgent).Methods("DELETE")

	if g.deps.Hub != nil {
		g.router.HandleFunc("/ws/alerts", g.deps.Hub.HandleConnection).Methods("GET")
	}

	g.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Route not found", r.URL.Path)
	})
	g.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", r.Method)
	})
}

// setupMiddleware configures HTTP middleware. CORS wraps the router so
// preflight requests are answered before route matching.
func (g *Gateway) setupMiddleware() {
	g.router.Use(g.requestIDMiddleware)
	g.router.Use(g.metricsMiddleware)

	var handler http.Handler = g.router
	if g.config.EnableCORS {
		c := cors.New(cors.Options{
			AllowedOrigins:   g.config.AllowedOrigins,
			AllowedMethods:   g.config.AllowedMethods,
			AllowedHeaders:   g.config.AllowedHeaders,
			ExposedHeaders:   []string{HeaderRequestID},
			AllowCredentials: g.config.AllowCredentials && !wildcardOrigin(g.config.AllowedOrigins),
		})
		handler = c.Handler(handler)
	}
	g.handler = handler
}

// Handler returns the root HTTP handler
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Start starts the API gateway
func (g *Gateway) Start() error {
	g.logger.Info("starting API gateway", zap.String("addr", g.server.Addr))
	return g.server.ListenAndServe()
}

// Stop stops the API gateway
func (g *Gateway) Stop(ctx context.Context) error {
	g.logger.Info("stopping API gateway")
	return g.server.Shutdown(ctx)
}

// Response types

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type APIMeta struct {
	Total   int  `json:"total,omitempty"`
	Limit   int  `json:"limit,omitempty"`
	HasMore bool `json:"has_more,omitempty"`
}

// Helper functions

func writeJSONResponse(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	// the status line is already written
	_ = json.NewEncoder(w).Encode(response)
}

func wildcardOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message, details string) {
	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
	writeJSONResponse(w, status, response)
}

func writeSuccessResponse(w http.ResponseWriter, data interface{}, meta *APIMeta) {
	writeStatusResponse(w, http.StatusOK, data, meta)
}

func writeStatusResponse(w http.ResponseWriter, status int, data interface{}, meta *APIMeta) {
	response := APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	}
	writeJSONResponse(w, status, response)
}

func (g *Gateway) parseRequestBody(w http.ResponseWriter, r *http.Request, target interface{}) error {
	defer r.Body.Close()
	body := http.MaxBytesReader(w, r.Body, g.config.MaxRequestSize)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

// Middleware implementations

func (g *Gateway) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), requestID)))
	})
}

func (g *Gateway) tenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get(HeaderTenantID))
		if tenantID == "" {
			writeErrorResponse(w, http.StatusBadRequest, "MISSING_TENANT", "Tenant header is required", HeaderTenantID)
			return
		}
		next.ServeHTTP(w, r.WithContext(logging.WithTenantID(r.Context(), tenantID)))
	})
}

func (g *Gateway) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), g.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Gateway) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		g.updateMetrics(r.Method+" "+route, wrapped.statusCode, duration)

		logging.FromContext(r.Context(), g.logger).Debug("request handled",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", duration))
	})
}

func (g *Gateway) updateMetrics(route string, statusCode int, duration time.Duration) {
	g.metricsMu.Lock()
	defer g.metricsMu.Unlock()

	g.metrics.RequestsTotal++
	if statusCode >= http.StatusInternalServerError {
		g.metrics.RequestsFailed++
	}
	g.metrics.RequestsByRoute[route]++
	g.metrics.RequestsByStatus[statusCode]++
	g.metrics.LastRequest = time.Now()

	if g.metrics.AverageLatency == 0 {
		g.metrics.AverageLatency = duration
	} else {
		g.metrics.AverageLatency = (g.metrics.AverageLatency + duration) / 2
	}
}

// GetMetrics returns a copy of the gateway metrics
func (g *Gateway) GetMetrics() GatewayMetrics {
	g.metricsMu.RLock()
	defer g.metricsMu.RUnlock()

	snapshot := GatewayMetrics{
		RequestsTotal:    g.metrics.RequestsTotal,
		RequestsFailed:   g.metrics.RequestsFailed,
		AverageLatency:   g.metrics.AverageLatency,
		LastRequest:      g.metrics.LastRequest,
		RequestsByRoute:  make(map[string]int64, len(g.metrics.RequestsByRoute)),
		RequestsByStatus: make(map[int]int64, len(g.metrics.RequestsByStatus)),
	}
	for k, v := range g.metrics.RequestsByRoute {
		snapshot.RequestsByRoute[k] = v
	}
	for k, v := range g.metrics.RequestsByStatus {
		snapshot.RequestsByStatus[k] = v
	}
	return snapshot
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
