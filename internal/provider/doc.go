// Package provider defines the contract between the collection pipeline and
// the cloud APIs it reads from.
//
// The collector never talks to an SDK directly. It consumes two sources:
//
//	type MetricSource interface {
//		Datapoints(rule config.MetricRule) pager.Iterator[Datapoint]
//	}
//
//	type TagSource interface {
//		TagResources(rule config.MetricRule) pager.Iterator[TagResource]
//	}
//
// Both return lazy iterators; no request is made until the caller pulls the
// first item, and every page fetch honours the context given to Next.
//
// Datapoint models the loosely typed records of the monitoring API. There
// is no schema shared across namespaces: a record holds some reserved
// value keys (timestamp, Average, Maximum, ...) and any number of
// dimension or group-by keys. Keys are kept in document order because label
// names are discovered from the first record of a result set.
//
// The error types describe upstream failures independently of the SDK:
//   - UpstreamError: API-level failure with code, message and raw body
//   - ErrUnretryable: matched by errors.Is for failures that retrying cannot fix
//   - RegionError: a failure scoped to one region of a region-partitioned API
package provider
