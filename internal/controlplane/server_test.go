package controlplane

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fentz26/gapforge/internal/audit"
	"github.com/fentz26/gapforge/internal/budget"
	"github.com/fentz26/gapforge/internal/gaps"
	"github.com/fentz26/gapforge/internal/models"
	"github.com/fentz26/gapforge/internal/performance"
	"github.com/fentz26/gapforge/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthEndpoint_OK(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if !health.OK {
		t.Error("Expected health.OK to be true")
	}
	if health.DB != "ok" {
		t.Errorf("Expected DB status 'ok', got '%s'", health.DB)
	}
	if health.Version == "" {
		t.Error("Expected version to be set")
	}
	if health.Time == "" {
		t.Error("Expected time to be set")
	}
}

func TestHealthEndpoint_MethodNotAllowed(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint_DBError(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	server := NewServer(newService(st), "127.0.0.1:0", nil)

	// Close the store to simulate DB error
	st.Close()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	server.handleHealth(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if health.OK {
		t.Error("Expected health.OK to be false when DB is down")
	}
	if health.DB == "ok" {
		t.Error("Expected DB status to indicate error")
	}
}

func TestBudgets(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()
	h := s.Handler()

	w := do(h, http.MethodPut, "/budgets", `{"period":"daily","limit":25}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var statuses []models.BudgetStatus
	w = do(h, http.MethodGet, "/budgets", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, models.PeriodDaily, statuses[0].Period)
	assert.Equal(t, 25.0, statuses[0].Remaining)

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, "/budgets", `{"period":"yearly","limit":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, "/budgets", `{"period":"daily"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, "/budgets", `{`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodDelete, "/budgets", "").Code)

	var entries []models.PDREntry
	w = do(h, http.MethodGet, "/decisions", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionBudget, entries[0].Action)
	assert.Contains(t, entries[0].Details, "daily")
}

func TestEmptyCollectionsAreArrays(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()
	h := s.Handler()

	for _, path := range []string{"/budgets", "/budgets/optimizations", "/alerts", "/tools/metrics", "/tools/retire", "/decisions"} {
		w := do(h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()), path)
	}

	w := do(h, http.MethodGet, "/budgets/forecast", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"forecast_monthly":0}`, w.Body.String())
}

func TestUsageAndTools(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()
	h := s.Handler()

	body := `{"tool":"gocyclo","capability":"Diminishing Returns","success":true,"latency_ms":120,"score":0.8}`
	for i := 0; i < 3; i++ {
		w := do(h, http.MethodPost, "/usage", body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/usage", `{"capability":"Diminishing Returns"}`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodGet, "/usage", "").Code)

	var metrics []models.PerformanceMetrics
	w := do(h, http.MethodGet, "/tools/metrics", "")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&metrics))
	require.Len(t, metrics, 1)
	assert.Equal(t, 3, metrics[0].UsageCount)
	assert.Equal(t, models.VerdictKeep, metrics[0].Recommendation)

	w = do(h, http.MethodGet, "/tools/best?capability=Diminishing+Returns", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"capability":"Diminishing Returns","tool":"gocyclo"}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/tools/best?capability=Gap+Analysis", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/tools/best", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/tools/retire?min_uses=-1", "").Code)
}

func TestGaps(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()
	h := s.Handler()

	var out []models.CapabilityGap
	w := do(h, http.MethodGet, "/gaps?top=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	require.Len(t, out, 2)
	assert.Equal(t, "Production Readiness", out[0].Name)
	assert.Equal(t, "Gap Analysis", out[1].Name)

	out = nil
	w = do(h, http.MethodGet, "/gaps?top=5&freq=Gap+Analysis%3D4", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, 4, out[0].Frequency)

	out = nil
	w = do(h, http.MethodGet, "/gaps", "")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	assert.Len(t, out, len(gaps.DefaultCatalog))

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/gaps?top=x", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/gaps?freq=nope", "").Code)
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func newService(st *store.Store) *Service {
	return NewService(st,
		audit.NewPDRWriter(st),
		gaps.NewDetector(nil, nil),
		budget.New(st, nil),
		performance.New(st, nil),
		nil,
	)
}

func newTestServer(t *testing.T) (*Server, func()) {
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	server := NewServer(newService(st), "127.0.0.1:0", nil)
	cleanup := func() {
		st.Close()
	}
	return server, cleanup
}
