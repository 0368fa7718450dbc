package aliyun

import (
	"strings"

	"github.com/zgpcy/aliyun-cms-exporter/internal/provider"
)

// MetricLastRequest is one DescribeMetricLast page request.
// Empty fields are not sent.
type MetricLastRequest struct {
	Namespace  string
	MetricName string
	Dimensions string
	Express    string
	Period     string
	StartTime  string
	EndTime    string
	NextToken  string
}

// MetricLastPage is one DescribeMetricLast response body
type MetricLastPage struct {
	Success    bool
	Code       string
	Message    string
	Datapoints string // JSON array of records
	NextToken  string
	Body       string // raw body, kept for error reports
}

// CMSAPI is the part of the CloudMonitor API the exporter uses
type CMSAPI interface {
	DescribeMetricLast(req *MetricLastRequest) (*MetricLastPage, error)
}

// TagResourcesRequest is one ListTagResources page request
type TagResourcesRequest struct {
	RegionID    string
	ResourceARN []string
	PageSize    int32
	NextToken   string
}

// TagResourcesPage is one ListTagResources response body
type TagResourcesPage struct {
	Resources []provider.TagResource
	NextToken string
}

// TagAPI is the part of the region-scoped Tag API the exporter uses
type TagAPI interface {
	ListTagResources(req *TagResourcesRequest) (*TagResourcesPage, error)
}

// TagAPIFactory builds a Tag API client bound to one region
type TagAPIFactory func(region string) (TagAPI, error)

// isThrottling reports whether an upstream error code signals rate limiting
func isThrottling(code string) bool {
	return strings.HasPrefix(code, "Throttling") || code == "429"
}

// responseError builds the error for a response body reporting success=false
func responseError(action string, page *MetricLastPage) *provider.UpstreamError {
	return &provider.UpstreamError{
		Action:    action,
		Code:      page.Code,
		Message:   page.Message,
		Body:      page.Body,
		Temporary: isThrottling(page.Code),
	}
}
