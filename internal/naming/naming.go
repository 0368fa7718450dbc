// Package naming turns upstream identifiers into names that are safe to
// use as Prometheus metric and label names.
//
// All functions are pure, total over arbitrary input and idempotent.
package naming

import (
	"regexp"
	"strings"
)

var (
	invalidMetricChars = regexp.MustCompile(`[^a-zA-Z0-9:_]`)
	invalidLabelChars  = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	underscoreRuns     = regexp.MustCompile(`__+`)

	// acronymBoundary splits "CPUUtilization" into "CPU_Utilization"
	acronymBoundary = regexp.MustCompile(`([A-Z]+)([A-Z][a-z])`)
	camelBoundary   = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// MetricName replaces every character outside [A-Za-z0-9:_] with an
// underscore and collapses runs of underscores.
func MetricName(s string) string {
	s = invalidMetricChars.ReplaceAllString(s, "_")
	return underscoreRuns.ReplaceAllString(s, "_")
}

// LabelName is MetricName without the colon, which label names may not carry.
func LabelName(s string) string {
	s = invalidLabelChars.ReplaceAllString(s, "_")
	return underscoreRuns.ReplaceAllString(s, "_")
}

// SnakeCase converts a camel-cased identifier to lower snake case.
func SnakeCase(s string) string {
	s = acronymBoundary.ReplaceAllString(s, "${1}_${2}")
	s = camelBoundary.ReplaceAllString(s, "${1}_${2}")
	return strings.ToLower(s)
}

// SnakeLabelName is the label name used for upstream dimension keys.
func SnakeLabelName(s string) string {
	return LabelName(SnakeCase(s))
}
