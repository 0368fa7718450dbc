package provider

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/zgpcy/aliyun-cms-exporter/internal/config"
	"github.com/zgpcy/aliyun-cms-exporter/internal/pager"
)

// MetricSource turns a metric rule into a lazy sequence of datapoints
type MetricSource interface {
	Datapoints(rule config.MetricRule) pager.Iterator[Datapoint]
}

// TagSource turns the tag selection of a rule into a lazy sequence of
// tagged resources. Rules without a tag selection yield an empty sequence.
type TagSource interface {
	TagResources(rule config.MetricRule) pager.Iterator[TagResource]
}

// TimestampKey holds the datapoint time in milliseconds since the epoch
const TimestampKey = "timestamp"

// reservedKeys are the lower-cased datapoint keys that carry values or
// metadata rather than dimensions
var reservedKeys = map[string]struct{}{
	"timestamp":   {},
	"maximum":     {},
	"minimum":     {},
	"average":     {},
	"value":       {},
	"sum":         {},
	"sumps":       {},
	"samplecount": {},
}

// IsReservedKey reports whether key is a value or metadata key
func IsReservedKey(key string) bool {
	_, ok := reservedKeys[strings.ToLower(key)]
	return ok
}

// Datapoint is one record of a CloudMonitor response.
// The set of keys differs per namespace; Keys preserves document order.
type Datapoint struct {
	keys   []string
	fields map[string]gjson.Result
}

// ParseDatapoints parses the JSON array the monitoring API returns as a string
func ParseDatapoints(raw string) ([]Datapoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("datapoints payload is not valid JSON")
	}

	doc := gjson.Parse(raw)
	if !doc.IsArray() {
		return nil, fmt.Errorf("datapoints payload is a %s, want array", doc.Type)
	}

	var (
		points []Datapoint
		err    error
	)
	doc.ForEach(func(idx, record gjson.Result) bool {
		if !record.IsObject() {
			err = fmt.Errorf("datapoint %d is not an object", len(points))
			return false
		}
		points = append(points, newDatapoint(record))
		return true
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

func newDatapoint(record gjson.Result) Datapoint {
	dp := Datapoint{fields: make(map[string]gjson.Result)}
	record.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if _, seen := dp.fields[k]; !seen {
			dp.keys = append(dp.keys, k)
		}
		dp.fields[k] = value
		return true
	})
	return dp
}

// Keys returns the record keys in document order
func (d Datapoint) Keys() []string {
	return d.keys
}

// Has reports whether key is present, even with a null value
func (d Datapoint) Has(key string) bool {
	_, ok := d.fields[key]
	return ok
}

// Label returns the value of a dimension key as a label value.
// Null values become the empty string.
func (d Datapoint) Label(key string) (string, bool) {
	v, ok := d.fields[key]
	if !ok {
		return "", false
	}
	if v.Type == gjson.Null {
		return "", true
	}
	return v.String(), true
}

// Value returns the numeric value of key. It reports false when the key
// is missing, null or not a number.
func (d Datapoint) Value(key string) (float64, bool) {
	v, ok := d.fields[key]
	if !ok {
		return 0, false
	}
	switch v.Type {
	case gjson.Number:
		return v.Num, true
	case gjson.String:
		f, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Timestamp returns the datapoint time in milliseconds
func (d Datapoint) Timestamp() (int64, bool) {
	v, ok := d.Value(TimestampKey)
	if !ok {
		return 0, false
	}
	return int64(v), true
}

// Tag is one key/value pair attached to a cloud resource
type Tag struct {
	Key   string
	Value string
}

// TagResource is a resource ARN with its tags, in upstream order
type TagResource struct {
	ARN  string
	Tags []Tag
}
