package collector

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zgpcy/aliyun-cms-exporter/internal/clock"
	"github.com/zgpcy/aliyun-cms-exporter/internal/config"
	"github.com/zgpcy/aliyun-cms-exporter/internal/family"
	"github.com/zgpcy/aliyun-cms-exporter/internal/logger"
	"github.com/zgpcy/aliyun-cms-exporter/internal/pager"
	"github.com/zgpcy/aliyun-cms-exporter/internal/provider"
	"github.com/zgpcy/aliyun-cms-exporter/internal/version"
)

// Collection phases of a rule
const (
	PhaseMetric = "metric"
	PhaseTag    = "tag"
)

// Rule error kinds
const (
	KindTimeout      = "timeout"
	KindCanceled     = "canceled"
	KindUnretryable  = "unretryable"
	KindUpstream     = "upstream"
	KindStructural   = "structural"
	KindUnclassified = "unclassified"
)

// Collector runs collection cycles over the configured metric rules.
//
// A cycle is started per scrape through Scrape or Families and is the only
// owner of its resource dedup set, so concurrent scrapes do not interfere.
// The Collector itself implements prometheus.Collector for the exporter's
// own metrics, which outlive single cycles.
type Collector struct {
	metricSource provider.MetricSource
	tagSource    provider.TagSource
	builder      *family.Builder
	cfg          *config.Config
	logger       *logger.Logger
	clock        clock.Clock // Time provider for testing

	// Metrics
	ruleErrorsTotal      *prometheus.CounterVec
	buildInfo            *prometheus.GaugeVec
	lastScrapeTimeMetric *prometheus.Desc
	lastDurationMetric   *prometheus.Desc
	lastFamiliesMetric   *prometheus.Desc
	scrapeDurationMetric *prometheus.Desc // per cycle
	scrapeFailedMetric   *prometheus.Desc // per cycle

	// State of the last finished cycle
	mu           sync.RWMutex
	lastError    error
	lastScrape   time.Time
	lastDuration time.Duration
	lastFamilies int
	isReady      bool
}

// cycleResult summarises one collection cycle
type cycleResult struct {
	rules    int
	failed   int // rules with at least one failed phase
	families int
	duration time.Duration
	lastErr  error
}

// New creates a Collector
func New(metricSource provider.MetricSource, tagSource provider.TagSource, cfg *config.Config, log *logger.Logger) *Collector {
	ruleErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aliyun_exporter_rule_errors_total",
			Help: "Total number of failed metric rule phases since startup",
		},
		[]string{"namespace", "metric_name", "phase", "kind"},
	)

	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aliyun_exporter_build_info",
			Help: "Build version information",
		},
		version.LabelNames,
	)
	buildInfo.WithLabelValues(version.Values()...).Set(1)

	return &Collector{
		metricSource:    metricSource,
		tagSource:       tagSource,
		builder:         family.NewBuilder(cfg, log),
		cfg:             cfg,
		logger:          log,
		clock:           clock.RealClock{}, // Use real system time by default
		ruleErrorsTotal: ruleErrorsTotal,
		buildInfo:       buildInfo,
		lastScrapeTimeMetric: prometheus.NewDesc(
			"aliyun_exporter_last_scrape_timestamp_seconds",
			"Unix timestamp of the last finished collection cycle",
			nil, nil,
		),
		lastDurationMetric: prometheus.NewDesc(
			"aliyun_exporter_last_scrape_duration_seconds",
			"Duration of the last finished collection cycle in seconds",
			nil, nil,
		),
		lastFamiliesMetric: prometheus.NewDesc(
			"aliyun_exporter_last_scrape_families",
			"Number of metric families produced by the last finished collection cycle",
			nil, nil,
		),
		scrapeDurationMetric: prometheus.NewDesc(
			"aliyun_exporter_scrape_duration_seconds",
			"Duration of this collection cycle in seconds",
			nil, nil,
		),
		scrapeFailedMetric: prometheus.NewDesc(
			"aliyun_exporter_scrape_failed_rules",
			"Number of metric rules that failed in this collection cycle",
			nil, nil,
		),
		isReady: true, // nothing is cached, every scrape queries upstream
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.ruleErrorsTotal.Describe(ch)
	c.buildInfo.Describe(ch)
	ch <- c.lastScrapeTimeMetric
	ch <- c.lastDurationMetric
	ch <- c.lastFamiliesMetric
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.ruleErrorsTotal.Collect(ch)
	c.buildInfo.Collect(ch)

	c.mu.RLock()
	defer c.mu.RUnlock()

	// No cycle has finished yet
	if c.lastScrape.IsZero() {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.lastScrapeTimeMetric, prometheus.GaugeValue, float64(c.lastScrape.Unix()))
	ch <- prometheus.MustNewConstMetric(c.lastDurationMetric, prometheus.GaugeValue, c.lastDuration.Seconds())
	ch <- prometheus.MustNewConstMetric(c.lastFamiliesMetric, prometheus.GaugeValue, float64(c.lastFamilies))
}

// Families runs one collection cycle and yields its metric families: rules
// in configuration order, and per rule its gauge families before its info
// family. A failing rule is logged and skipped.
func (c *Collector) Families(ctx context.Context) iter.Seq[family.Family] {
	return func(yield func(family.Family) bool) {
		c.cycle(ctx, yield)
	}
}

// Scrape returns a collector that runs one collection cycle when collected.
// It is unchecked: the families of a cycle are only known once it ran.
func (c *Collector) Scrape(ctx context.Context) prometheus.Collector {
	return &scrape{collector: c, ctx: ctx}
}

type scrape struct {
	collector *Collector
	ctx       context.Context
}

// Describe sends nothing, which registers the collector as unchecked
func (s *scrape) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector
func (s *scrape) Collect(ch chan<- prometheus.Metric) {
	c := s.collector
	result := c.cycle(s.ctx, func(f family.Family) bool {
		metrics, err := f.Metrics()
		if err != nil {
			c.logger.Warn("Skipped samples that cannot be exposed", "family", f.Name(), "error", err)
		}
		for _, m := range metrics {
			ch <- m
		}
		return true
	})

	ch <- prometheus.MustNewConstMetric(c.scrapeDurationMetric, prometheus.GaugeValue, result.duration.Seconds())
	ch <- prometheus.MustNewConstMetric(c.scrapeFailedMetric, prometheus.GaugeValue, float64(result.failed))
}

// cycle collects every rule once, passing each family to yield until it
// returns false
func (c *Collector) cycle(ctx context.Context, yield func(family.Family) bool) cycleResult {
	log := c.logger.WithFields("cycle_id", uuid.NewString())
	log.Info("Starting collection cycle", "rules", len(c.cfg.Metrics))

	start := time.Now()
	seen := family.NewARNSet()
	result := cycleResult{}

	for _, rule := range c.cfg.Metrics {
		result.rules++
		emitted, err := c.collectRule(ctx, log, rule, seen, yield)
		result.families += emitted
		if errors.Is(err, errStopped) {
			break
		}
		if err != nil {
			result.failed++
			result.lastErr = err
		}
	}

	result.duration = time.Since(start)
	c.finishCycle(result)

	log.Info("Collection cycle finished",
		"rules", result.rules,
		"failed_rules", result.failed,
		"families", result.families,
		"duration_seconds", result.duration.Seconds())
	return result
}

// errStopped is returned when the consumer of a cycle stops early
var errStopped = errors.New("consumer stopped")

// collectRule runs the metric phase and, when the rule selects tagged
// resources, the tag phase of one rule. A failed metric phase or an empty
// result ends the rule; a failed tag phase drops only the info family.
func (c *Collector) collectRule(ctx context.Context, log *logger.Logger, rule config.MetricRule, seen family.ARNSet, yield func(family.Family) bool) (int, error) {
	if c.cfg.RuleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.RuleTimeout)*time.Second)
		defer cancel()
	}
	log = log.WithFields("rule", rule.String())

	var (
		points []provider.Datapoint
		gauges []*family.GaugeFamily
	)
	err := c.runPhase(log, rule, PhaseMetric, func() error {
		var err error
		points, err = pager.Collect(ctx, c.metricSource.Datapoints(rule))
		if err != nil {
			return err
		}
		gauges, err = c.builder.Gauges(rule, points)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		log.Debug("No datapoints returned, skipping rule")
		return 0, nil
	}

	emitted := 0
	for _, g := range gauges {
		if !yield(g) {
			return emitted, errStopped
		}
		emitted++
	}

	if rule.TagSelect == nil {
		return emitted, nil
	}

	var info *family.InfoFamily
	err = c.runPhase(log, rule, PhaseTag, func() error {
		resources, err := pager.Collect(ctx, c.tagSource.TagResources(rule))
		if err != nil {
			return err
		}
		info = c.builder.Info(rule, resources, seen)
		return nil
	})
	if err != nil {
		return emitted, err
	}

	if !yield(info) {
		return emitted, errStopped
	}
	return emitted + 1, nil
}

// runPhase runs one phase of a rule. Its failure, including a panic, is
// classified, logged and counted; it never escapes the rule.
func (c *Collector) runPhase(log *logger.Logger, rule config.MetricRule, phase string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			c.ruleFailed(log, rule, phase, err)
		}
	}()
	return fn()
}

// ruleFailed logs and counts a failed rule phase
func (c *Collector) ruleFailed(log *logger.Logger, rule config.MetricRule, phase string, err error) {
	kind := Classify(err)
	c.ruleErrorsTotal.WithLabelValues(rule.Namespace, rule.MetricName, phase, kind).Inc()

	fields := []any{
		"namespace", rule.Namespace,
		"metric_name", rule.MetricName,
		"phase", phase,
		"kind", kind,
	}
	var regionErr *provider.RegionError
	if errors.As(err, &regionErr) {
		fields = append(fields, "region", regionErr.Region)
	}
	var upstream *provider.UpstreamError
	if errors.As(err, &upstream) {
		fields = append(fields,
			"action", upstream.Action,
			"code", upstream.Code,
			"message", upstream.Message)
		if upstream.StatusCode != 0 {
			fields = append(fields, "status_code", upstream.StatusCode)
		}
		if upstream.Body != "" {
			fields = append(fields, "body", upstream.Body)
		}
	}
	fields = append(fields, "error", err)

	if kind == KindCanceled {
		log.Warn("Metric rule aborted", fields...)
		return
	}
	log.Error("Metric rule failed", fields...)
}

// Classify maps a rule error to its kind
func Classify(err error) string {
	var (
		upstream   *provider.UpstreamError
		structural *family.StructuralError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, provider.ErrUnretryable):
		return KindUnretryable
	case errors.As(err, &upstream):
		return KindUpstream
	case errors.As(err, &structural):
		return KindStructural
	default:
		return KindUnclassified
	}
}

// finishCycle records the outcome of a cycle. The exporter stays ready
// unless every rule of the last cycle failed.
func (c *Collector) finishCycle(result cycleResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastScrape = c.clock.Now()
	c.lastDuration = result.duration
	c.lastFamilies = result.families
	c.lastError = result.lastErr
	c.isReady = result.rules == 0 || result.failed < result.rules
}

// IsReady returns false when every rule of the last cycle failed
func (c *Collector) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isReady
}

// LastError returns the last rule error of the last cycle
func (c *Collector) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// LastScrapeTime returns the time the last cycle finished
func (c *Collector) LastScrapeTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastScrape
}

// FamilyCount returns the number of families of the last cycle
func (c *Collector) FamilyCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastFamilies
}
