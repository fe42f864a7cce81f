package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/gapforge/internal/gaps"
	"github.com/fentz26/gapforge/internal/models"
	"go.uber.org/zap"
)

// Version is reported by /health. The CLI overrides it at startup.
var Version = "dev"

// Server provides the HTTP API for gapforge.
type Server struct {
	service *Service
	addr    string
	server  *http.Server
	logger  *zap.Logger
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: service,
		addr:    addr,
		logger:  logger,
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/gaps", s.handleGaps)

	// Budget endpoints
	mux.HandleFunc("/budgets", s.handleBudgets)
	mux.HandleFunc("/budgets/forecast", s.getOnly(s.getForecast))
	mux.HandleFunc("/budgets/optimizations", s.getOnly(s.getOptimizations))
	mux.HandleFunc("/alerts", s.getOnly(s.getAlerts))

	// Tool endpoints
	mux.HandleFunc("/usage", s.handleUsage)
	mux.HandleFunc("/tools/metrics", s.getOnly(s.getMetrics))
	mux.HandleFunc("/tools/best", s.getOnly(s.getBestTool))
	mux.HandleFunc("/tools/retire", s.getOnly(s.getRetire))

	mux.HandleFunc("/decisions", s.getOnly(s.getDecisions))

	return mux
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting gapforge API", zap.String("addr", s.addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) getOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

type errorResponse struct {
	Error string `json:"error"`
}

// intParam reads a non-negative integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", ErrBadRequest, name)
	}
	return n, nil
}

// --- Health ---

// HealthResponse is the /health payload.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := HealthResponse{
		OK:      true,
		DB:      "ok",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.service.Ping(ctx); err != nil {
		resp.OK = false
		resp.DB = "error: " + err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// --- Gap Handlers ---

// handleGaps serves GET /gaps?freq=Name=n&top=n&min_freq=m
func (s *Server) handleGaps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	freq, err := gaps.ParseFrequencies(r.URL.Query()["freq"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	top, err := intParam(r, "top", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	minFreq, err := intParam(r, "min_freq", 1)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := s.service.Gaps(freq, top, minFreq)
	if out == nil {
		out = []models.CapabilityGap{}
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Budget Handlers ---

// handleBudgets handles GET /budgets and PUT /budgets
func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listBudgets(w, r)
	case http.MethodPut:
		s.setBudget(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) listBudgets(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.service.Budgets(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if statuses == nil {
		statuses = []models.BudgetStatus{}
	}
	writeJSON(w, http.StatusOK, statuses)
}

type setBudgetRequest struct {
	Period models.Period `json:"period"`
	Limit  *float64      `json:"limit"`
}

func (s *Server) setBudget(w http.ResponseWriter, r *http.Request) {
	var req setBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Limit == nil {
		http.Error(w, "limit is required", http.StatusBadRequest)
		return
	}

	b, err := s.service.SetBudget(r.Context(), req.Period, *req.Limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type forecastResponse struct {
	ForecastMonthly float64 `json:"forecast_monthly"`
}

func (s *Server) getForecast(w http.ResponseWriter, r *http.Request) {
	f, err := s.service.Forecast(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forecastResponse{ForecastMonthly: f})
}

func (s *Server) getOptimizations(w http.ResponseWriter, r *http.Request) {
	opts, err := s.service.Optimizations(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if opts == nil {
		opts = []models.Optimization{}
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) getAlerts(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r, "limit", 20)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	alerts, err := s.service.Alerts(r.Context(), n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// --- Tool Handlers ---

// handleUsage handles POST /usage
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var rec models.UsageRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	rec.ID = 0

	saved, err := s.service.RecordUsage(r.Context(), rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.service.Metrics(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if metrics == nil {
		metrics = []models.PerformanceMetrics{}
	}
	writeJSON(w, http.StatusOK, metrics)
}

type bestToolResponse struct {
	Capability string `json:"capability"`
	Tool       string `json:"tool"`
}

func (s *Server) getBestTool(w http.ResponseWriter, r *http.Request) {
	capability := strings.TrimSpace(r.URL.Query().Get("capability"))
	tool, err := s.service.BestTool(r.Context(), capability)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bestToolResponse{Capability: capability, Tool: tool})
}

func (s *Server) getRetire(w http.ResponseWriter, r *http.Request) {
	minUses, err := intParam(r, "min_uses", 10)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.service.ToolsToRetire(r.Context(), minUses)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if out == nil {
		out = []models.PerformanceMetrics{}
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Audit Handlers ---

func (s *Server) getDecisions(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.service.Decisions(r.Context(), r.URL.Query().Get("capability"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.PDREntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
