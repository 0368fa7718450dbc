// Package collector runs the collection cycles of the exporter.
//
// A cycle walks the configured metric rules in order. For every rule it
// pages through the CloudMonitor datapoints, builds one gauge family per
// statistic, and when the rule selects tagged resources, pages through the
// Tag API and builds the acs_resource info family. Each resource is exported
// once per cycle even when several rules select it.
//
// Failures never abort a cycle. They are classified (timeout, canceled,
// unretryable, upstream, structural, unclassified), logged with the rule
// and upstream error code, and counted. A failed metric phase drops the whole
// rule; a failed tag phase drops only its info family.
//
// The collector exposes the following metrics:
//   - aliyun_exporter_rule_errors_total: Failed rule phases by namespace, metric_name, phase and kind
//   - aliyun_exporter_build_info: Build version information
//   - aliyun_exporter_last_scrape_timestamp_seconds: Unix timestamp of the last finished cycle
//   - aliyun_exporter_last_scrape_duration_seconds: Duration of the last finished cycle
//   - aliyun_exporter_last_scrape_families: Number of families of the last finished cycle
//
// and, with every scrape, aliyun_exporter_scrape_duration_seconds and
// aliyun_exporter_scrape_failed_rules for the cycle that scrape ran.
//
// Example usage:
//
//	c := collector.New(metricClient, tagClient, cfg, logger)
//	prometheus.MustRegister(c)
//
//	// Per scrape
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(c.Scrape(r.Context()))
//	promhttp.HandlerFor(prometheus.Gatherers{reg, prometheus.DefaultGatherer}, opts).ServeHTTP(w, r)
package collector
