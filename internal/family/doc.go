// Package family turns CloudMonitor datapoints and tagged resources into
// Prometheus metric families.
//
// Gauge families are named {namespace}_{metric_snake}_{statistic}, one per
// statistic of a rule that the response actually carries. The label schema
// of a rule is derived from the first datapoint: every key that is not a
// statistic or the timestamp becomes a label, in document order. Later
// datapoints must carry the same keys or the rule fails with a
// StructuralError.
//
// The info family acs_resource exposes the tags of the resources selected
// by a rule:
//
//	acs_resource_info{job="acs_ecs_dashboard",instance="",arn="...",instance_id="i-abc",tag_env="prod"} 1
//
// A resource is exported once per collection cycle; the cycle passes the
// same ARNSet to every rule.
package family
