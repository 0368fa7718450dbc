package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zgpcy/aliyun-cms-exporter/internal/collector"
	"github.com/zgpcy/aliyun-cms-exporter/internal/config"
	"github.com/zgpcy/aliyun-cms-exporter/internal/logger"
	"github.com/zgpcy/aliyun-cms-exporter/internal/pager"
	"github.com/zgpcy/aliyun-cms-exporter/internal/provider"
)

// testLogger creates a logger for testing (error level to suppress test output)
func testLogger() *logger.Logger {
	return logger.New("error")
}

// mockMetricSource is a mock implementation for testing
type mockMetricSource struct {
	mu       sync.Mutex
	raw      string
	err      error
	calls    int
	deadline time.Duration // remaining time of the context seen by the last call
}

func (m *mockMetricSource) Datapoints(rule config.MetricRule) pager.Iterator[provider.Datapoint] {
	return pager.New(func(ctx context.Context, token string) ([]provider.Datapoint, string, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.calls++
		if d, ok := ctx.Deadline(); ok {
			m.deadline = time.Until(d)
		}
		if m.err != nil {
			return nil, "", m.err
		}
		points, err := provider.ParseDatapoints(m.raw)
		return points, "", err
	})
}

// mockTagSource yields no resources
type mockTagSource struct{}

func (mockTagSource) TagResources(config.MetricRule) pager.Iterator[provider.TagResource] {
	return pager.Empty[provider.TagResource]()
}

func testConfig() *config.Config {
	noTimestamps := false
	return &config.Config{
		HTTPPort:      9107,
		ScrapeTimeout: 60,
		SetTimestamp:  &noTimestamps,
		Metrics: []config.MetricRule{{
			Namespace:  "acs_ecs_dashboard",
			MetricName: "CPUUtilization",
			Statistics: []string{"Average"},
		}},
	}
}

func newTestServer(cfg *config.Config, source *mockMetricSource) (*Server, *collector.Collector) {
	c := collector.New(source, mockTagSource{}, cfg, testLogger())
	base := prometheus.NewRegistry()
	base.MustRegister(c)
	return NewServer(cfg, c, base, testLogger()), c
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	return string(body)
}

// TestNewServer tests server creation
func TestNewServer(t *testing.T) {
	server, _ := newTestServer(testConfig(), &mockMetricSource{})

	if server == nil {
		t.Fatal("NewServer returned nil")
	}
	if server.collector == nil {
		t.Error("server.collector should not be nil")
	}
	if server.gatherer == nil {
		t.Error("server.gatherer should not be nil")
	}
	if server.server.Addr != ":9107" {
		t.Errorf("server address: got %v, want :9107", server.server.Addr)
	}
	if server.server.WriteTimeout != 70*time.Second {
		t.Errorf("write timeout: got %v, want 70s", server.server.WriteTimeout)
	}
}

// TestNewServer_MinimumWriteTimeout tests that short scrape timeouts keep the default write timeout
func TestNewServer_MinimumWriteTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ScrapeTimeout = 1
	server, _ := newTestServer(cfg, &mockMetricSource{})

	if server.server.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("write timeout: got %v, want %v", server.server.WriteTimeout, DefaultWriteTimeout)
	}
}

// TestHandleMetrics tests that a scrape runs a collection cycle
func TestHandleMetrics(t *testing.T) {
	source := &mockMetricSource{raw: `[{"instanceId":"i-1","timestamp":1,"Average":12.5}]`}
	server, c := newTestServer(testConfig(), source)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	server.handleMetrics(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status code: got %v, want %v", resp.StatusCode, http.StatusOK)
	}

	body := readBody(t, resp)
	requiredStrings := []string{
		`acs_ecs_dashboard_cpu_utilization_average{instance_id="i-1"} 12.5`,
		"aliyun_exporter_scrape_failed_rules 0",
		"aliyun_exporter_scrape_duration_seconds",
		"aliyun_exporter_build_info",
	}
	for _, required := range requiredStrings {
		if !strings.Contains(body, required) {
			t.Errorf("Response body should contain %q, got:\n%s", required, body)
		}
	}

	if source.calls != 1 {
		t.Errorf("upstream calls: got %d, want 1", source.calls)
	}
	if c.LastScrapeTime().IsZero() {
		t.Error("the cycle should have been recorded")
	}
}

// TestHandleMetrics_EachScrapeQueriesUpstream tests that nothing is cached between scrapes
func TestHandleMetrics_EachScrapeQueriesUpstream(t *testing.T) {
	source := &mockMetricSource{raw: `[{"timestamp":1,"Average":1}]`}
	server, _ := newTestServer(testConfig(), source)

	for range 3 {
		w := httptest.NewRecorder()
		server.handleMetrics(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Status code: got %v, want %v", w.Code, http.StatusOK)
		}
	}

	if source.calls != 3 {
		t.Errorf("upstream calls: got %d, want 3", source.calls)
	}
}

// TestHandleMetrics_RuleFailure tests that failing rules still produce a response
func TestHandleMetrics_RuleFailure(t *testing.T) {
	source := &mockMetricSource{err: &provider.UpstreamError{Action: "DescribeMetricLast", Code: "InvalidParameter", Unretryable: true}}
	server, _ := newTestServer(testConfig(), source)

	w := httptest.NewRecorder()
	server.handleMetrics(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status code: got %v, want %v", resp.StatusCode, http.StatusOK)
	}

	body := readBody(t, resp)
	if !strings.Contains(body, "aliyun_exporter_scrape_failed_rules 1") {
		t.Errorf("Response body should report the failed rule, got:\n%s", body)
	}
	if !strings.Contains(body, `aliyun_exporter_rule_errors_total{kind="unretryable",metric_name="CPUUtilization",namespace="acs_ecs_dashboard",phase="metric"} 1`) {
		t.Errorf("Response body should count the rule error, got:\n%s", body)
	}
}

// TestScrapeTimeout tests negotiation of the cycle deadline
func TestScrapeTimeout(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"no header", "", 60 * time.Second},
		{"shorter header", "10", 9500 * time.Millisecond},
		{"fractional header", "2.5", 2 * time.Second},
		{"longer header", "120", 60 * time.Second},
		{"tiny header", "0.2", 200 * time.Millisecond},
		{"invalid header", "soon", 60 * time.Second},
		{"negative header", "-1", 60 * time.Second},
	}

	server, _ := newTestServer(testConfig(), &mockMetricSource{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.header != "" {
				req.Header.Set(ScrapeTimeoutHeader, tt.header)
			}
			if got := server.scrapeTimeout(req); got != tt.want {
				t.Errorf("scrapeTimeout: got %v, want %v", got, tt.want)
			}
		})
	}
}

// TestHandleMetrics_DeadlineReachesSources tests that the cycle runs under the negotiated deadline
func TestHandleMetrics_DeadlineReachesSources(t *testing.T) {
	source := &mockMetricSource{raw: `[]`}
	server, _ := newTestServer(testConfig(), source)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set(ScrapeTimeoutHeader, "5")
	server.handleMetrics(httptest.NewRecorder(), req)

	if source.deadline <= 0 || source.deadline > 5*time.Second {
		t.Errorf("source deadline: got %v, want within (0, 5s]", source.deadline)
	}
}

// TestHandleHealth tests the /health endpoint
func TestHandleHealth(t *testing.T) {
	server, _ := newTestServer(testConfig(), &mockMetricSource{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	server.handleHealth(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	// Verify status code
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status code: got %v, want %v", resp.StatusCode, http.StatusOK)
	}

	// Verify content type
	contentType := resp.Header.Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type: got %v, want application/json", contentType)
	}

	expectedBody := `{"status":"healthy"}`
	if body := readBody(t, resp); body != expectedBody {
		t.Errorf("Response body: got %v, want %v", body, expectedBody)
	}
}

// TestHandleHealth_AlwaysHealthy tests that health endpoint always returns 200
func TestHandleHealth_AlwaysHealthy(t *testing.T) {
	source := &mockMetricSource{err: errors.New("CloudMonitor unreachable")}
	server, c := newTestServer(testConfig(), source)

	// Run a failing cycle
	for range c.Families(context.Background()) {
	}

	w := httptest.NewRecorder()
	server.handleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	// Health should still be OK even with collector errors
	if w.Code != http.StatusOK {
		t.Errorf("Status code: got %v, want %v (health should always be OK)", w.Code, http.StatusOK)
	}
}

// TestHandleReady_BeforeFirstScrape tests that the exporter is ready before any cycle
func TestHandleReady_BeforeFirstScrape(t *testing.T) {
	server, _ := newTestServer(testConfig(), &mockMetricSource{})

	w := httptest.NewRecorder()
	server.handleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status code: got %v, want %v", resp.StatusCode, http.StatusOK)
	}

	expectedBody := `{"status":"ready"}`
	if body := strings.TrimSpace(readBody(t, resp)); body != expectedBody {
		t.Errorf("Response body: got %v, want %v", body, expectedBody)
	}
}

// TestHandleReady_AllRulesFailed tests the /ready endpoint after a cycle where every rule failed
func TestHandleReady_AllRulesFailed(t *testing.T) {
	source := &mockMetricSource{err: errors.New(`CloudMonitor "unreachable"`)}
	server, c := newTestServer(testConfig(), source)

	for range c.Families(context.Background()) {
	}

	w := httptest.NewRecorder()
	server.handleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	resp := w.Result()
	defer resp.Body.Close()

	// Should return 503 Service Unavailable
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Status code: got %v, want %v", resp.StatusCode, http.StatusServiceUnavailable)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type: got %v, want application/json", contentType)
	}

	expectedBody := `{"status":"not ready","error":"CloudMonitor \"unreachable\""}`
	if body := strings.TrimSpace(readBody(t, resp)); body != expectedBody {
		t.Errorf("Response body: got %v, want %v", body, expectedBody)
	}
}

// TestHandleIndex tests the landing page
func TestHandleIndex(t *testing.T) {
	server, _ := newTestServer(testConfig(), &mockMetricSource{raw: `[]`})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	server.handleIndex(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	// Verify status code
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status code: got %v, want %v", resp.StatusCode, http.StatusOK)
	}

	// Verify content type
	contentType := resp.Header.Get("Content-Type")
	if contentType != "text/html" {
		t.Errorf("Content-Type: got %v, want text/html", contentType)
	}

	body := readBody(t, resp)
	requiredStrings := []string{
		"Aliyun CloudMonitor Exporter",
		"Ready",
		"Never",
		"/metrics",
		"/health",
		"/ready",
		"60 seconds", // scrape timeout
	}
	for _, required := range requiredStrings {
		if !strings.Contains(body, required) {
			t.Errorf("Response body should contain %q", required)
		}
	}
}

// TestHandleIndex_UnknownPath tests that only / serves the landing page
func TestHandleIndex_UnknownPath(t *testing.T) {
	server, _ := newTestServer(testConfig(), &mockMetricSource{})

	w := httptest.NewRecorder()
	server.handleIndex(w, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("Status code: got %v, want %v", w.Code, http.StatusNotFound)
	}
}
