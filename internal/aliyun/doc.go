// Package aliyun provides the Alibaba Cloud API clients of the exporter.
//
// This package implements the two upstream sources of the collection
// pipeline:
//   - MetricClient: queries CloudMonitor DescribeMetricLast for a metric
//     rule and yields its datapoints (provider.MetricSource)
//   - TagClient: queries the Tag API ListTagResources for the resource type
//     selected by a rule, region by region (provider.TagSource)
//
// Both clients are lazy: they return pager iterators and issue one request
// per page as the consumer pulls items. Pagination follows the upstream
// token contract: the first page is always requested, follow-up pages send
// the continuation token in place of the query parameters, and iteration
// stops when a page has no token. There is no page cap.
//
// Each page request is retried with exponential backoff while the failure
// is temporary (transport errors, 5xx, throttling). Client errors are
// reported as unretryable. Every attempt is counted in
// cms_requests_total / cms_failed_requests_total by action.
//
// The SDK calls take no context; they run in a goroutine so that a
// cancelled or expired context ends the wait immediately.
//
// Credentials come from the default credential chain of credentials-go
// and are shared read-only by all clients.
//
// Example usage:
//
//	cred, err := aliyun.NewCredential()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	requests := metrics.NewRequests(prometheus.DefaultRegisterer)
//	cms, err := aliyun.NewMetricClient(cfg, cred, requests, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	points, err := pager.Collect(ctx, cms.Datapoints(cfg.Metrics[0]))
package aliyun
