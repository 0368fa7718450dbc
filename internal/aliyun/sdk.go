package aliyun

import (
	"errors"
	"fmt"
	"time"

	cms "github.com/alibabacloud-go/cms-20190101/v8/client"
	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	tag "github.com/alibabacloud-go/tag-20180828/v2/client"
	"github.com/alibabacloud-go/tea/tea"
	"github.com/aliyun/credentials-go/credentials"
	"github.com/zgpcy/aliyun-cms-exporter/internal/metrics"
	"github.com/zgpcy/aliyun-cms-exporter/internal/provider"
)

// NewCredential resolves credentials through the default provider chain
// (environment variables, config file, instance RAM role, ...)
func NewCredential() (credentials.Credential, error) {
	cred, err := credentials.NewCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Aliyun credentials: %w", err)
	}
	return cred, nil
}

func openAPIConfig(cred credentials.Credential, endpoint, region string, timeout time.Duration) *openapi.Config {
	ms := int(timeout / time.Millisecond)
	cfg := &openapi.Config{
		Credential:     cred,
		Endpoint:       tea.String(endpoint),
		ReadTimeout:    tea.Int(ms),
		ConnectTimeout: tea.Int(ms),
	}
	if region != "" {
		cfg.RegionId = tea.String(region)
	}
	return cfg
}

// cmsSDK adapts the CloudMonitor SDK client to CMSAPI
type cmsSDK struct {
	client *cms.Client
}

func newCMSSDK(cred credentials.Credential, endpoint string, timeout time.Duration) (*cmsSDK, error) {
	client, err := cms.NewClient(openAPIConfig(cred, endpoint, "", timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to create CloudMonitor client: %w", err)
	}
	return &cmsSDK{client: client}, nil
}

func (s *cmsSDK) DescribeMetricLast(req *MetricLastRequest) (*MetricLastPage, error) {
	resp, err := s.client.DescribeMetricLast(&cms.DescribeMetricLastRequest{
		Namespace:  tea.String(req.Namespace),
		MetricName: tea.String(req.MetricName),
		Dimensions: optional(req.Dimensions),
		Express:    optional(req.Express),
		Period:     optional(req.Period),
		StartTime:  optional(req.StartTime),
		EndTime:    optional(req.EndTime),
		NextToken:  optional(req.NextToken),
	})
	if err != nil {
		return nil, sdkError(metrics.ActionDescribeMetricLast, err)
	}
	if resp == nil || resp.Body == nil {
		return nil, &provider.UpstreamError{
			Action:    metrics.ActionDescribeMetricLast,
			Message:   "empty response body",
			Temporary: true,
		}
	}

	body := resp.Body
	return &MetricLastPage{
		Success:    tea.BoolValue(body.Success),
		Code:       tea.StringValue(body.Code),
		Message:    tea.StringValue(body.Message),
		Datapoints: tea.StringValue(body.Datapoints),
		NextToken:  tea.StringValue(body.NextToken),
		Body:       body.String(),
	}, nil
}

// tagSDK adapts a region-scoped Tag SDK client to TagAPI
type tagSDK struct {
	client *tag.Client
}

// newTagAPIFactory returns a factory creating one Tag client per region
func newTagAPIFactory(cred credentials.Credential, endpoint func(region string) string, timeout time.Duration) TagAPIFactory {
	return func(region string) (TagAPI, error) {
		client, err := tag.NewClient(openAPIConfig(cred, endpoint(region), region, timeout))
		if err != nil {
			return nil, fmt.Errorf("failed to create Tag client for region %s: %w", region, err)
		}
		return &tagSDK{client: client}, nil
	}
}

func (s *tagSDK) ListTagResources(req *TagResourcesRequest) (*TagResourcesPage, error) {
	resp, err := s.client.ListTagResources(&tag.ListTagResourcesRequest{
		RegionId:    tea.String(req.RegionID),
		ResourceARN: tea.StringSlice(req.ResourceARN),
		PageSize:    tea.Int32(req.PageSize),
		NextToken:   optional(req.NextToken),
	})
	if err != nil {
		return nil, sdkError(metrics.ActionListTagResources, err)
	}
	if resp == nil || resp.Body == nil {
		return nil, &provider.UpstreamError{
			Action:    metrics.ActionListTagResources,
			Message:   "empty response body",
			Temporary: true,
		}
	}

	page := &TagResourcesPage{
		NextToken: tea.StringValue(resp.Body.NextToken),
		Resources: make([]provider.TagResource, 0, len(resp.Body.TagResources)),
	}
	for _, tr := range resp.Body.TagResources {
		if tr == nil {
			continue
		}
		resource := provider.TagResource{ARN: tea.StringValue(tr.ResourceARN)}
		for _, t := range tr.Tags {
			if t == nil {
				continue
			}
			resource.Tags = append(resource.Tags, provider.Tag{
				Key:   tea.StringValue(t.Key),
				Value: tea.StringValue(t.Value),
			})
		}
		page.Resources = append(page.Resources, resource)
	}
	return page, nil
}

// sdkError converts an SDK failure into an UpstreamError. Client errors
// other than throttling can never succeed and are marked unretryable.
func sdkError(action string, err error) error {
	var sdkErr *tea.SDKError
	if !errors.As(err, &sdkErr) {
		return fmt.Errorf("%s request failed: %w", action, err)
	}

	status := tea.IntValue(sdkErr.StatusCode)
	code := tea.StringValue(sdkErr.Code)
	throttled := status == 429 || isThrottling(code)

	return &provider.UpstreamError{
		Action:      action,
		StatusCode:  status,
		Code:        code,
		Message:     tea.StringValue(sdkErr.Message),
		Body:        tea.StringValue(sdkErr.Data),
		Unretryable: status >= 400 && status < 500 && !throttled,
		Temporary:   status == 0 || status >= 500 || throttled,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return tea.String(s)
}
