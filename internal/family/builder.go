package family

import (
	"fmt"
	"strings"
	"time"

	"github.com/zgpcy/aliyun-cms-exporter/internal/config"
	"github.com/zgpcy/aliyun-cms-exporter/internal/logger"
	"github.com/zgpcy/aliyun-cms-exporter/internal/naming"
	"github.com/zgpcy/aliyun-cms-exporter/internal/provider"
)

// ARNLabel holds the resource ARN in info samples
const ARNLabel = "arn"

// tagLabelPrefix prefixes the label of every resource tag
const tagLabelPrefix = "tag_"

// StructuralError reports datapoints whose shape cannot be turned into a
// consistent label schema
type StructuralError struct {
	Rule   string
	Index  int // datapoint index within the rule's result
	Key    string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("rule %s: datapoint %d: key %q: %s", e.Rule, e.Index, e.Key, e.Reason)
}

// ARNSet records the resources already exported in one collection cycle.
// It is not safe for concurrent use; every cycle owns its own set.
type ARNSet map[string]struct{}

// NewARNSet creates an empty set
func NewARNSet() ARNSet {
	return make(ARNSet)
}

// Contains reports whether arn was added
func (s ARNSet) Contains(arn string) bool {
	_, ok := s[arn]
	return ok
}

// Add records arn and reports whether it was new
func (s ARNSet) Add(arn string) bool {
	if s.Contains(arn) {
		return false
	}
	s[arn] = struct{}{}
	return true
}

// LabelSchema maps the dimension keys of a datapoint to label names.
// Keys and Names are parallel and keep first-seen order.
type LabelSchema struct {
	Keys  []string
	Names []string
}

// DeriveLabelSchema takes every non-reserved key of the first datapoint of
// a result as a label. Keys whose label names collide after sanitizing
// yield a StructuralError.
func DeriveLabelSchema(first provider.Datapoint) (LabelSchema, error) {
	var schema LabelSchema
	owners := make(map[string]string)

	for _, key := range first.Keys() {
		if provider.IsReservedKey(key) {
			continue
		}
		name := naming.SnakeLabelName(key)
		if owner, ok := owners[name]; ok {
			return LabelSchema{}, &StructuralError{
				Key:    key,
				Reason: fmt.Sprintf("label name %q already used by key %q", name, owner),
			}
		}
		owners[name] = key
		schema.Keys = append(schema.Keys, key)
		schema.Names = append(schema.Names, name)
	}
	return schema, nil
}

// Validate checks that dp carries every key of the schema
func (s LabelSchema) Validate(dp provider.Datapoint) error {
	for _, key := range s.Keys {
		if !dp.Has(key) {
			return &StructuralError{Key: key, Reason: "label key missing"}
		}
	}
	return nil
}

// values returns the label values of dp in schema order
func (s LabelSchema) values(dp provider.Datapoint) []string {
	values := make([]string, len(s.Keys))
	for i, key := range s.Keys {
		values[i], _ = dp.Label(key)
	}
	return values
}

// ResourceIDFromARN strips an ARN down to its resource id: the part after
// the last '/' of the last ':' field
func ResourceIDFromARN(arn string) string {
	id := arn[strings.LastIndex(arn, ":")+1:]
	return id[strings.LastIndex(id, "/")+1:]
}

// Builder turns datapoints and tagged resources into metric families
type Builder struct {
	timestamps bool // global timestamp flag
	logger     *logger.Logger
}

// NewBuilder creates a Builder
func NewBuilder(cfg *config.Config, log *logger.Logger) *Builder {
	return &Builder{
		timestamps: cfg.TimestampEnabled(),
		logger:     log,
	}
}

// Prefix returns the family name prefix of rule
func Prefix(rule config.MetricRule) string {
	return naming.MetricName(strings.ToLower(rule.Namespace) + "_" + naming.SnakeCase(rule.MetricName))
}

// Gauges builds one gauge family per statistic of rule found in the first
// datapoint. An empty result yields no families and no error.
func (b *Builder) Gauges(rule config.MetricRule, points []provider.Datapoint) ([]*GaugeFamily, error) {
	if len(points) == 0 {
		return nil, nil
	}

	schema, err := DeriveLabelSchema(points[0])
	if err != nil {
		return nil, withRule(err, rule, 0)
	}
	for i, dp := range points[1:] {
		if err := schema.Validate(dp); err != nil {
			return nil, withRule(err, rule, i+1)
		}
	}

	stats := make([]string, 0, len(rule.Statistics))
	for _, stat := range rule.Statistics {
		if points[0].Has(stat) {
			stats = append(stats, stat)
			continue
		}
		b.logger.Debug("Statistic not in response, skipping",
			"rule", rule.String(),
			"statistic", stat)
	}

	prefix := Prefix(rule)
	timestamps := b.timestamps && rule.TimestampEnabled()

	families := make([]*GaugeFamily, 0, len(stats))
	for _, stat := range stats {
		lower := strings.ToLower(stat)
		name := naming.MetricName(prefix + "_" + lower)
		f := NewGaugeFamily(name, fmt.Sprintf("CloudMonitor %s of %s", lower, prefix), schema.Names)

		seen := make(map[string]struct{}, len(points))
		for _, dp := range points {
			value, ok := dp.Value(stat)
			if !ok {
				continue
			}
			labels := schema.values(dp)

			// Overlapping windows may repeat a series; keep the first
			key := strings.Join(labels, "\xff")
			if _, dup := seen[key]; dup {
				b.logger.Debug("Duplicate series in response, skipping",
					"family", name,
					"labels", labels)
				continue
			}
			seen[key] = struct{}{}

			s := Sample{LabelValues: labels, Value: value}
			if timestamps {
				if ms, ok := dp.Timestamp(); ok {
					s.Timestamp = time.UnixMilli(ms)
				}
			}
			f.Add(s)
		}
		families = append(families, f)
	}
	return families, nil
}

// Info builds the info family of rule from resources not yet in seen and
// adds them to seen. Rules without tag selection yield nil.
func (b *Builder) Info(rule config.MetricRule, resources []provider.TagResource, seen ARNSet) *InfoFamily {
	if rule.TagSelect == nil {
		return nil
	}

	idLabel := naming.SnakeLabelName(rule.TagSelect.ResourceIDDimension)
	job := strings.ToLower(rule.Namespace)

	f := &InfoFamily{}
	for _, r := range resources {
		if !seen.Add(r.ARN) {
			continue
		}

		values := make(map[string]string, len(r.Tags)+2)
		for _, t := range r.Tags {
			values[tagLabelPrefix+naming.LabelName(t.Key)] = t.Value
		}
		values[ARNLabel] = r.ARN
		values[idLabel] = ResourceIDFromARN(r.ARN)

		f.Add(InfoSample{
			Labels: map[string]string{JobLabel: job, InstanceLabel: ""},
			Values: values,
		})
	}
	return f
}

func withRule(err error, rule config.MetricRule, index int) error {
	if se, ok := err.(*StructuralError); ok {
		se.Rule = rule.String()
		se.Index = index
	}
	return err
}
