package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zgpcy/aliyun-cms-exporter/internal/collector"
	"github.com/zgpcy/aliyun-cms-exporter/internal/config"
	"github.com/zgpcy/aliyun-cms-exporter/internal/logger"
	"github.com/zgpcy/aliyun-cms-exporter/internal/version"
)

//go:embed templates/index.html
var indexTemplate string

// HTTP server timeout constants
const (
	DefaultReadTimeout  = 15 * time.Second // Maximum duration for reading the entire request
	DefaultWriteTimeout = 15 * time.Second // Minimum duration before timing out writes of the response
	DefaultIdleTimeout  = 60 * time.Second // Maximum amount of time to wait for the next request

	// writeTimeoutMargin is added to the scrape timeout for writing the response
	writeTimeoutMargin = 10 * time.Second
)

// Scrape timeout negotiation
const (
	// ScrapeTimeoutHeader carries the scrape timeout of the Prometheus server
	ScrapeTimeoutHeader = "X-Prometheus-Scrape-Timeout-Seconds"

	// ScrapeTimeoutOffset is kept free for writing the response before
	// Prometheus gives up on the scrape
	ScrapeTimeoutOffset = 500 * time.Millisecond
)

// indexPageData holds template data for the index page
type indexPageData struct {
	StatusClass   string
	StatusText    string
	LastScrape    string
	FamilyCount   int
	RuleCount     int
	ScrapeTimeout int
	Version       string
}

// Server represents the HTTP server
type Server struct {
	server    *http.Server
	collector *collector.Collector
	gatherer  prometheus.Gatherer // process-wide metrics served next to each cycle
	cfg       *config.Config
	logger    *logger.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, collector *collector.Collector, gatherer prometheus.Gatherer, log *logger.Logger) *Server {
	mux := http.NewServeMux()

	writeTimeout := time.Duration(cfg.ScrapeTimeout)*time.Second + writeTimeoutMargin
	if writeTimeout < DefaultWriteTimeout {
		writeTimeout = DefaultWriteTimeout
	}

	s := &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
			Handler:      mux,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  DefaultIdleTimeout,
		},
		collector: collector,
		gatherer:  gatherer,
		cfg:       cfg,
		logger:    log,
	}

	// Register handlers
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// handleMetrics runs one collection cycle and serves its families together
// with the process-wide metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	timeout := s.scrapeTimeout(r)
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	s.logger.Debug("Scrape started", "timeout_seconds", timeout.Seconds())

	registry := prometheus.NewRegistry()
	if err := registry.Register(s.collector.Scrape(ctx)); err != nil {
		s.logger.Error("Failed to register scrape collector", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// The cycle registry comes first so its failures are reported first
	gatherers := prometheus.Gatherers{registry, s.gatherer}
	promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
		ErrorHandling: promhttp.ContinueOnError,
	}).ServeHTTP(w, r)
}

// scrapeTimeout returns the configured scrape timeout, shortened to what
// the scraping Prometheus server allows
func (s *Server) scrapeTimeout(r *http.Request) time.Duration {
	timeout := time.Duration(s.cfg.ScrapeTimeout) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultScrapeTimeout) * time.Second
	}

	header := r.Header.Get(ScrapeTimeoutHeader)
	if header == "" {
		return timeout
	}
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil || seconds <= 0 {
		s.logger.Warn("Ignoring invalid scrape timeout header", "value", header)
		return timeout
	}

	requested := time.Duration(seconds * float64(time.Second))
	if requested > ScrapeTimeoutOffset {
		requested -= ScrapeTimeoutOffset
	}
	return min(timeout, requested)
}

// handleIndex serves a simple landing page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	// Parse template
	tmpl, err := template.New("index").Parse(indexTemplate)
	if err != nil {
		s.logger.Error("Failed to parse index template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// Prepare template data
	ready := s.collector.IsReady()
	statusClass := "not-ready"
	statusText := "Not Ready"
	if ready {
		statusClass = "ready"
		statusText = "Ready"
	}

	lastScrape := s.collector.LastScrapeTime()
	lastScrapeText := "Never"
	if !lastScrape.IsZero() {
		lastScrapeText = lastScrape.Format("2006-01-02 15:04:05 MST")
	}

	data := indexPageData{
		StatusClass:   statusClass,
		StatusText:    statusText,
		LastScrape:    lastScrapeText,
		FamilyCount:   s.collector.FamilyCount(),
		RuleCount:     len(s.cfg.Metrics),
		ScrapeTimeout: s.cfg.ScrapeTimeout,
		Version:       version.Version,
	}

	// Execute template
	w.Header().Set("Content-Type", "text/html")
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.Error("Failed to execute index template", "error", err)
	}
}

// handleHealth handles health check requests (always returns 200 for liveness)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"healthy"}`)); err != nil {
		s.logger.Error("Failed to write health response", "error", err)
	}
}

// readyResponse is the body of /ready
type readyResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// handleReady handles readiness check requests (returns 503 when every
// rule of the last collection cycle failed)
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status := http.StatusOK
	resp := readyResponse{Status: "ready"}
	if !s.collector.IsReady() {
		status = http.StatusServiceUnavailable
		resp.Status = "not ready"
		if err := s.collector.LastError(); err != nil {
			resp.Error = err.Error()
		}
	}

	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Failed to write ready response", "error", err)
	}
}
