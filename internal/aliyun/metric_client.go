package aliyun

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aliyun/credentials-go/credentials"
	"github.com/zgpcy/aliyun-cms-exporter/internal/clock"
	"github.com/zgpcy/aliyun-cms-exporter/internal/config"
	"github.com/zgpcy/aliyun-cms-exporter/internal/logger"
	"github.com/zgpcy/aliyun-cms-exporter/internal/metrics"
	"github.com/zgpcy/aliyun-cms-exporter/internal/pager"
	"github.com/zgpcy/aliyun-cms-exporter/internal/provider"
)

// TimeFormat is the UTC time layout the monitoring API accepts
const TimeFormat = "2006-01-02T15:04:05Z"

// MetricClient wraps the CloudMonitor API and implements provider.MetricSource
type MetricClient struct {
	api     CMSAPI
	cfg     *config.Config
	logger  *logger.Logger
	clock   clock.Clock // Time provider for testing
	fetcher *pageFetcher
}

// Verify that MetricClient implements provider.MetricSource
var _ provider.MetricSource = (*MetricClient)(nil)

// NewMetricClient creates a CloudMonitor client for the configured endpoint
func NewMetricClient(cfg *config.Config, cred credentials.Credential, requests *metrics.Requests, log *logger.Logger) (*MetricClient, error) {
	api, err := newCMSSDK(cred, cfg.Endpoint.Metrics, time.Duration(cfg.APITimeout)*time.Second)
	if err != nil {
		return nil, err
	}
	return newMetricClient(api, cfg, requests, log), nil
}

func newMetricClient(api CMSAPI, cfg *config.Config, requests *metrics.Requests, log *logger.Logger) *MetricClient {
	return &MetricClient{
		api:    api,
		cfg:    cfg,
		logger: log,
		clock:  clock.RealClock{}, // Use real system time by default
		fetcher: &pageFetcher{
			requests:   requests,
			logger:     log,
			maxElapsed: time.Duration(cfg.Retry.MaxElapsedSeconds) * time.Second,
		},
	}
}

// Datapoints returns the datapoints of rule, fetched lazily page by page.
// The query window is fixed when Datapoints is called.
func (c *MetricClient) Datapoints(rule config.MetricRule) pager.Iterator[provider.Datapoint] {
	first, err := c.buildRequest(rule)
	if err != nil {
		return pager.Failed[provider.Datapoint](err)
	}

	return pager.New(func(ctx context.Context, token string) ([]provider.Datapoint, string, error) {
		req := first
		if token != "" {
			// Follow-up pages carry the token instead of the query parameters
			req = &MetricLastRequest{
				Namespace:  first.Namespace,
				MetricName: first.MetricName,
				NextToken:  token,
			}
		}

		c.logger.Debug("Querying CloudMonitor API",
			"rule", rule.String(),
			"start_time", req.StartTime,
			"end_time", req.EndTime,
			"has_token", token != "")

		page, err := fetchPage(ctx, c.fetcher, metrics.ActionDescribeMetricLast, func() (*MetricLastPage, error) {
			page, err := c.api.DescribeMetricLast(req)
			if err != nil {
				return nil, err
			}
			if !page.Success {
				return nil, responseError(metrics.ActionDescribeMetricLast, page)
			}
			return page, nil
		})
		if err != nil {
			return nil, "", err
		}

		points, err := provider.ParseDatapoints(page.Datapoints)
		if err != nil {
			return nil, "", fmt.Errorf("%s returned malformed datapoints: %w", metrics.ActionDescribeMetricLast, err)
		}

		c.logger.Debug("CloudMonitor page received",
			"rule", rule.String(),
			"datapoints", len(points),
			"has_next", page.NextToken != "")

		return points, page.NextToken, nil
	})
}

// buildRequest builds the first page request of rule
func (c *MetricClient) buildRequest(rule config.MetricRule) (*MetricLastRequest, error) {
	req := &MetricLastRequest{
		Namespace:  rule.Namespace,
		MetricName: rule.MetricName,
	}

	// Only group by expressions are supported by the API
	if len(rule.GroupBy) > 0 {
		express, err := json.Marshal(map[string][]string{"groupby": rule.GroupBy})
		if err != nil {
			return nil, fmt.Errorf("failed to encode group by expression: %w", err)
		}
		req.Express = string(express)
	}

	if len(rule.Dimensions) > 0 {
		dimensions, err := json.Marshal(rule.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("failed to encode dimensions: %w", err)
		}
		req.Dimensions = string(dimensions)
	}

	if period := c.cfg.Period(rule); period > 0 {
		req.Period = strconv.Itoa(period)
	}

	// The API only accepts UTC times
	endTime := c.clock.Now().UTC().Add(-c.cfg.Delay(rule))
	req.EndTime = endTime.Format(TimeFormat)
	if rng := c.cfg.Range(rule); rng > 0 {
		req.StartTime = endTime.Add(-rng).Format(TimeFormat)
	}

	return req, nil
}
