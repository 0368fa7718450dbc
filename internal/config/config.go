package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration validation constants
const (
	MinPort       = 1     // Minimum valid port number
	MaxPort       = 65535 // Maximum valid port number
	MaxAPITimeout = 300   // Upper bound for a single SDK call in seconds
	TagPageSize   = 500   // Page size of ListTagResources requests

	// RegionPlaceholder is replaced by the region in the tag endpoint
	RegionPlaceholder = "{region}"

	// Default values
	DefaultHTTPPort        = 9107
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultPeriodSeconds   = 60
	DefaultDelaySeconds    = 60
	DefaultRangeSeconds    = 300
	DefaultScrapeTimeout   = 60 // seconds
	DefaultAPITimeout      = 10 // seconds
	DefaultRetryMaxElapsed = 10 // seconds
	DefaultMetricsEndpoint = "metrics.aliyuncs.com"
	DefaultTagEndpoint     = "tag." + RegionPlaceholder + ".aliyuncs.com"
)

// DefaultStatistics are requested when a rule lists none
var DefaultStatistics = []string{"Maximum", "Minimum", "Average", "Value", "Sum"}

// ResourceTypeSelection identifies the resources of a rule by service and type
type ResourceTypeSelection struct {
	Service      string `yaml:"service"`
	ResourceType string `yaml:"resource_type"`
}

// ARNPattern returns the wildcard ARN matching every resource of the selection
func (s ResourceTypeSelection) ARNPattern() string {
	return fmt.Sprintf("arn:acs:%s:*:*:%s/*", s.Service, s.ResourceType)
}

// TagSelectRule selects the resources whose tags are exported for a rule
type TagSelectRule struct {
	ResourceIDDimension   string                `yaml:"resource_id_dimension"`
	ResourceTypeSelection ResourceTypeSelection `yaml:"resource_type_selection"`
	Regions               []string              `yaml:"regions"`
}

// MetricRule describes one CloudMonitor metric to export.
// Pointer fields distinguish "unset" from an explicit zero.
type MetricRule struct {
	Namespace     string              `yaml:"namespace"`
	MetricName    string              `yaml:"metric_name"`
	Dimensions    []map[string]string `yaml:"dimensions"`
	GroupBy       []string            `yaml:"group_by"`
	Statistics    []string            `yaml:"statistics"`
	PeriodSeconds *int                `yaml:"period_seconds"`
	DelaySeconds  *int                `yaml:"delay_seconds"`
	RangeSeconds  *int                `yaml:"range_seconds"`
	SetTimestamp  *bool               `yaml:"set_timestamp"`
	TagSelect     *TagSelectRule      `yaml:"tag_select"`
}

// String identifies the rule in logs
func (r MetricRule) String() string {
	return r.Namespace + "/" + r.MetricName
}

// TimestampEnabled reports whether the rule allows sample timestamps
func (r MetricRule) TimestampEnabled() bool {
	return r.SetTimestamp == nil || *r.SetTimestamp
}

// Endpoint holds the API endpoints
type Endpoint struct {
	Metrics string `yaml:"metrics"`
	// Tag may contain {region}, replaced by the queried region
	Tag string `yaml:"tag"`
}

// TagEndpoint returns the tag API endpoint for region
func (e Endpoint) TagEndpoint(region string) string {
	return strings.ReplaceAll(e.Tag, RegionPlaceholder, region)
}

// Retry configures retries of a single page request
type Retry struct {
	MaxElapsedSeconds int `yaml:"max_elapsed_seconds"`
}

// Config represents the application configuration
type Config struct {
	Metrics       []MetricRule `yaml:"metrics"`
	Endpoint      Endpoint     `yaml:"endpoint"`
	Retry         Retry        `yaml:"retry"`
	LogLevel      string       `yaml:"log_level"`
	LogFormat     string       `yaml:"log_format"`
	HTTPPort      int          `yaml:"http_port"`
	PeriodSeconds int          `yaml:"period_seconds"`
	DelaySeconds  *int         `yaml:"delay_seconds"` // Pointer to distinguish between 0 and unset
	RangeSeconds  *int         `yaml:"range_seconds"`
	SetTimestamp  *bool        `yaml:"set_timestamp"`
	ScrapeTimeout int          `yaml:"scrape_timeout"` // seconds
	RuleTimeout   int          `yaml:"rule_timeout"`   // seconds, 0 means bounded by the scrape only
	APITimeout    int          `yaml:"api_timeout"`    // seconds
}

// TimestampEnabled reports whether sample timestamps are globally allowed
func (c *Config) TimestampEnabled() bool {
	return c.SetTimestamp == nil || *c.SetTimestamp
}

// Delay returns how far behind now the query window of rule ends
func (c *Config) Delay(rule MetricRule) time.Duration {
	if rule.DelaySeconds != nil {
		return time.Duration(*rule.DelaySeconds) * time.Second
	}
	if c.DelaySeconds != nil {
		return time.Duration(*c.DelaySeconds) * time.Second
	}
	return 0
}

// Range returns the length of the query window of rule; 0 leaves the
// window start to the API default. An explicit 0 on the rule overrides
// the global range.
func (c *Config) Range(rule MetricRule) time.Duration {
	if rule.RangeSeconds != nil {
		return time.Duration(*rule.RangeSeconds) * time.Second
	}
	if c.RangeSeconds != nil {
		return time.Duration(*c.RangeSeconds) * time.Second
	}
	return 0
}

// Period returns the aggregation period of rule in seconds; 0 means unset
func (c *Config) Period(rule MetricRule) int {
	if rule.PeriodSeconds != nil && *rule.PeriodSeconds > 0 {
		return *rule.PeriodSeconds
	}
	return c.PeriodSeconds
}

// Load loads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	// #nosec G304 -- Config file path is provided by administrator via CLI flag, not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment variable error: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for configuration
func applyDefaults(cfg *Config) {
	if cfg.Endpoint.Metrics == "" {
		cfg.Endpoint.Metrics = DefaultMetricsEndpoint
	}
	if cfg.Endpoint.Tag == "" {
		cfg.Endpoint.Tag = DefaultTagEndpoint
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = DefaultLogFormat
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = DefaultHTTPPort
	}
	if cfg.PeriodSeconds == 0 {
		cfg.PeriodSeconds = DefaultPeriodSeconds
	}
	// Only apply defaults when unset, an explicit 0 is meaningful
	if cfg.DelaySeconds == nil {
		delay := DefaultDelaySeconds
		cfg.DelaySeconds = &delay
	}
	if cfg.RangeSeconds == nil {
		rng := DefaultRangeSeconds
		cfg.RangeSeconds = &rng
	}
	if cfg.SetTimestamp == nil {
		enabled := true
		cfg.SetTimestamp = &enabled
	}
	if cfg.ScrapeTimeout == 0 {
		cfg.ScrapeTimeout = DefaultScrapeTimeout
	}
	if cfg.APITimeout == 0 {
		cfg.APITimeout = DefaultAPITimeout
	}
	if cfg.Retry.MaxElapsedSeconds == 0 {
		cfg.Retry.MaxElapsedSeconds = DefaultRetryMaxElapsed
	}

	for i := range cfg.Metrics {
		if len(cfg.Metrics[i].Statistics) == 0 {
			cfg.Metrics[i].Statistics = append([]string(nil), DefaultStatistics...)
		}
	}
}

// applyEnvOverrides applies environment variable overrides to configuration
func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("ALIYUN_EXPORTER_LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}

	if val := os.Getenv("ALIYUN_EXPORTER_LOG_FORMAT"); val != "" {
		cfg.LogFormat = val
	}

	if val := os.Getenv("ALIYUN_EXPORTER_METRICS_ENDPOINT"); val != "" {
		cfg.Endpoint.Metrics = val
	}

	if err := envInt("ALIYUN_EXPORTER_HTTP_PORT", &cfg.HTTPPort); err != nil {
		return err
	}
	if err := envInt("ALIYUN_EXPORTER_PERIOD_SECONDS", &cfg.PeriodSeconds); err != nil {
		return err
	}
	if err := envInt("ALIYUN_EXPORTER_SCRAPE_TIMEOUT", &cfg.ScrapeTimeout); err != nil {
		return err
	}

	if val := os.Getenv("ALIYUN_EXPORTER_DELAY_SECONDS"); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid ALIYUN_EXPORTER_DELAY_SECONDS: must be an integer, got %q", val)
		}
		cfg.DelaySeconds = &i
	}

	if val := os.Getenv("ALIYUN_EXPORTER_RANGE_SECONDS"); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid ALIYUN_EXPORTER_RANGE_SECONDS: must be an integer, got %q", val)
		}
		cfg.RangeSeconds = &i
	}

	if val := os.Getenv("ALIYUN_EXPORTER_SET_TIMESTAMP"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid ALIYUN_EXPORTER_SET_TIMESTAMP: must be a boolean, got %q", val)
		}
		cfg.SetTimestamp = &b
	}

	return nil
}

func envInt(name string, dst *int) error {
	val := os.Getenv(name)
	if val == "" {
		return nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("invalid %s: must be an integer, got %q", name, val)
	}
	*dst = i
	return nil
}

// validate validates the configuration
func validate(cfg *Config) error {
	if len(cfg.Metrics) == 0 {
		return fmt.Errorf("no metrics configured")
	}

	for i, rule := range cfg.Metrics {
		if err := validateRule(rule); err != nil {
			return fmt.Errorf("metric at index %d: %w", i, err)
		}
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("log_format must be json or text, got %q", cfg.LogFormat)
	}

	if cfg.HTTPPort < MinPort || cfg.HTTPPort > MaxPort {
		return fmt.Errorf("http_port must be between %d and %d", MinPort, MaxPort)
	}

	if cfg.PeriodSeconds < 0 {
		return fmt.Errorf("period_seconds cannot be negative, got %d", cfg.PeriodSeconds)
	}
	if cfg.DelaySeconds != nil && *cfg.DelaySeconds < 0 {
		return fmt.Errorf("delay_seconds cannot be negative, got %d", *cfg.DelaySeconds)
	}
	if cfg.RangeSeconds != nil && *cfg.RangeSeconds < 0 {
		return fmt.Errorf("range_seconds cannot be negative, got %d", *cfg.RangeSeconds)
	}

	if cfg.ScrapeTimeout <= 0 {
		return fmt.Errorf("scrape_timeout must be positive, got %d", cfg.ScrapeTimeout)
	}
	if cfg.RuleTimeout < 0 {
		return fmt.Errorf("rule_timeout cannot be negative, got %d", cfg.RuleTimeout)
	}

	if cfg.APITimeout <= 0 {
		return fmt.Errorf("api_timeout must be positive, got %d", cfg.APITimeout)
	}
	if cfg.APITimeout > MaxAPITimeout {
		return fmt.Errorf("api_timeout should not exceed %d seconds, got %d", MaxAPITimeout, cfg.APITimeout)
	}

	if cfg.Retry.MaxElapsedSeconds < 0 {
		return fmt.Errorf("retry.max_elapsed_seconds cannot be negative, got %d", cfg.Retry.MaxElapsedSeconds)
	}

	return nil
}

func validateRule(rule MetricRule) error {
	if rule.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if rule.MetricName == "" {
		return fmt.Errorf("metric_name is required")
	}

	for _, p := range []struct {
		name string
		val  *int
	}{
		{"period_seconds", rule.PeriodSeconds},
		{"delay_seconds", rule.DelaySeconds},
		{"range_seconds", rule.RangeSeconds},
	} {
		if p.val != nil && *p.val < 0 {
			return fmt.Errorf("%s cannot be negative, got %d", p.name, *p.val)
		}
	}

	ts := rule.TagSelect
	if ts == nil {
		return nil
	}
	if ts.ResourceIDDimension == "" {
		return fmt.Errorf("tag_select.resource_id_dimension is required")
	}
	if ts.ResourceTypeSelection.Service == "" || ts.ResourceTypeSelection.ResourceType == "" {
		return fmt.Errorf("tag_select.resource_type_selection needs service and resource_type")
	}
	if len(ts.Regions) == 0 {
		return fmt.Errorf("tag_select.regions must list at least one region")
	}
	for i, region := range ts.Regions {
		if region == "" {
			return fmt.Errorf("tag_select.regions[%d] is empty", i)
		}
	}

	return nil
}
