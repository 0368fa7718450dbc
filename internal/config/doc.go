// Package config provides configuration management for the Aliyun CloudMonitor Exporter.
//
// This package handles loading configuration from YAML files, applying
// environment variable overrides, setting defaults, and validating the
// configuration. Everything the collection pipeline consumes is validated
// here, before any API call is made.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (highest priority)
//  2. YAML configuration file
//  3. Default values (lowest priority)
//
// Supported environment variables:
//   - ALIYUN_EXPORTER_LOG_LEVEL: Log level (debug, info, warn, error)
//   - ALIYUN_EXPORTER_LOG_FORMAT: Log format (json, text)
//   - ALIYUN_EXPORTER_HTTP_PORT: HTTP server port (1-65535)
//   - ALIYUN_EXPORTER_METRICS_ENDPOINT: CloudMonitor API endpoint
//   - ALIYUN_EXPORTER_PERIOD_SECONDS: Default aggregation period
//   - ALIYUN_EXPORTER_DELAY_SECONDS: Default delay of the query window end
//   - ALIYUN_EXPORTER_RANGE_SECONDS: Default query window length (0 = API default)
//   - ALIYUN_EXPORTER_SET_TIMESTAMP: Emit upstream timestamps (true/false)
//   - ALIYUN_EXPORTER_SCRAPE_TIMEOUT: Upper bound for one collection cycle in seconds
//
// Global period/delay/range/set_timestamp values are defaults; each metric
// rule may override them.
//
// Example configuration file (config.yaml):
//
//	log_level: info
//	http_port: 9107
//	period_seconds: 60
//	delay_seconds: 60
//	range_seconds: 300
//
//	endpoint:
//	  metrics: metrics.cn-hangzhou.aliyuncs.com
//
//	metrics:
//	  - namespace: acs_ecs_dashboard
//	    metric_name: CPUUtilization
//	    group_by: [instanceId]
//	    statistics: [Average, Maximum]
//	    tag_select:
//	      resource_id_dimension: instanceId
//	      resource_type_selection:
//	        service: ecs
//	        resource_type: instance
//	      regions: [cn-beijing, cn-hangzhou]
//
// Example usage:
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//		log.Fatalf("Failed to load config: %v", err)
//	}
//
//	fmt.Printf("Exporting %d metric rules\n", len(cfg.Metrics))
package config
