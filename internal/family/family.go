package family

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// InfoFamilyName is the name of the resource tag family; it is exposed
// with the conventional _info suffix
const InfoFamilyName = "acs_resource"

const (
	infoMetricName = InfoFamilyName + "_info"
	infoHelp       = "Tags of Alibaba Cloud resources"

	// JobLabel and InstanceLabel are the fixed labels of every info sample
	JobLabel      = "job"
	InstanceLabel = "instance"
)

// Family is one metric family produced by a collection cycle
type Family interface {
	// Name returns the family name
	Name() string
	// Len returns the number of samples
	Len() int
	// Metrics converts the samples into Prometheus metrics. Samples that
	// cannot be exposed are skipped and reported in the error; the
	// returned metrics are valid either way.
	Metrics() ([]prometheus.Metric, error)
}

// Sample is one gauge sample. A zero Timestamp leaves the sample time to
// the scrape.
type Sample struct {
	LabelValues []string
	Value       float64
	Timestamp   time.Time
}

// GaugeFamily holds the samples of one (rule, statistic) pair
type GaugeFamily struct {
	name       string
	help       string
	labelNames []string
	samples    []Sample
}

var _ Family = (*GaugeFamily)(nil)

// NewGaugeFamily creates an empty gauge family
func NewGaugeFamily(name, help string, labelNames []string) *GaugeFamily {
	return &GaugeFamily{name: name, help: help, labelNames: labelNames}
}

// Add appends a sample; label values are positional to the label names
func (f *GaugeFamily) Add(s Sample) {
	f.samples = append(f.samples, s)
}

func (f *GaugeFamily) Name() string         { return f.name }
func (f *GaugeFamily) Help() string         { return f.help }
func (f *GaugeFamily) LabelNames() []string { return f.labelNames }
func (f *GaugeFamily) Samples() []Sample    { return f.samples }
func (f *GaugeFamily) Len() int             { return len(f.samples) }

// Metrics implements Family
func (f *GaugeFamily) Metrics() ([]prometheus.Metric, error) {
	desc := prometheus.NewDesc(f.name, f.help, f.labelNames, nil)

	metrics := make([]prometheus.Metric, 0, len(f.samples))
	var errs []error
	for _, s := range f.samples {
		m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, s.Value, s.LabelValues...)
		if err != nil {
			errs = append(errs, fmt.Errorf("family %s: %w", f.name, err))
			continue
		}
		if !s.Timestamp.IsZero() {
			m = prometheus.NewMetricWithTimestamp(s.Timestamp, m)
		}
		metrics = append(metrics, m)
	}
	return metrics, errors.Join(errs...)
}

// InfoSample is one resource of the info family. Labels carries the fixed
// job and instance labels, Values the tag, arn and resource id entries.
type InfoSample struct {
	Labels map[string]string
	Values map[string]string
}

// labelSet merges Labels and Values; the fixed labels take precedence
func (s InfoSample) labelSet() (names, values []string) {
	merged := make(map[string]string, len(s.Labels)+len(s.Values))
	for k, v := range s.Values {
		merged[k] = v
	}
	for k, v := range s.Labels {
		merged[k] = v
	}

	names = make([]string, 0, len(merged))
	for k := range merged {
		if k != JobLabel && k != InstanceLabel {
			names = append(names, k)
		}
	}
	slices.Sort(names)
	names = append([]string{JobLabel, InstanceLabel}, names...)

	values = make([]string, len(names))
	for i, k := range names {
		values[i] = merged[k]
	}
	return names, values
}

// InfoFamily holds the resource tag samples of one rule. It is valid
// with zero samples.
type InfoFamily struct {
	samples []InfoSample
}

var _ Family = (*InfoFamily)(nil)

// Add appends a sample
func (f *InfoFamily) Add(s InfoSample) {
	f.samples = append(f.samples, s)
}

func (f *InfoFamily) Name() string          { return InfoFamilyName }
func (f *InfoFamily) Samples() []InfoSample { return f.samples }
func (f *InfoFamily) Len() int              { return len(f.samples) }

// Metrics implements Family. Each resource carries its own tag keys, so
// every sample gets its own descriptor.
func (f *InfoFamily) Metrics() ([]prometheus.Metric, error) {
	metrics := make([]prometheus.Metric, 0, len(f.samples))
	var errs []error
	for _, s := range f.samples {
		names, values := s.labelSet()
		desc := prometheus.NewDesc(infoMetricName, infoHelp, names, nil)
		m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, 1, values...)
		if err != nil {
			errs = append(errs, fmt.Errorf("family %s, arn %q: %w", InfoFamilyName, s.Values[ARNLabel], err))
			continue
		}
		metrics = append(metrics, m)
	}
	return metrics, errors.Join(errs...)
}
