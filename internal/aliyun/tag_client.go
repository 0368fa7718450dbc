package aliyun

import (
	"context"
	"sync"
	"time"

	"github.com/aliyun/credentials-go/credentials"
	"github.com/zgpcy/aliyun-cms-exporter/internal/config"
	"github.com/zgpcy/aliyun-cms-exporter/internal/logger"
	"github.com/zgpcy/aliyun-cms-exporter/internal/metrics"
	"github.com/zgpcy/aliyun-cms-exporter/internal/pager"
	"github.com/zgpcy/aliyun-cms-exporter/internal/provider"
)

// TagClient wraps the region-partitioned Tag API and implements provider.TagSource
type TagClient struct {
	newAPI  TagAPIFactory
	logger  *logger.Logger
	fetcher *pageFetcher

	mu      sync.Mutex
	clients map[string]TagAPI // one client per region, created on first use
}

// Verify that TagClient implements provider.TagSource
var _ provider.TagSource = (*TagClient)(nil)

// NewTagClient creates a Tag API client; regional clients are built lazily
func NewTagClient(cfg *config.Config, cred credentials.Credential, requests *metrics.Requests, log *logger.Logger) *TagClient {
	factory := newTagAPIFactory(cred, cfg.Endpoint.TagEndpoint, time.Duration(cfg.APITimeout)*time.Second)
	return newTagClient(factory, cfg, requests, log)
}

func newTagClient(factory TagAPIFactory, cfg *config.Config, requests *metrics.Requests, log *logger.Logger) *TagClient {
	return &TagClient{
		newAPI: factory,
		logger: log,
		fetcher: &pageFetcher{
			requests:   requests,
			logger:     log,
			maxElapsed: time.Duration(cfg.Retry.MaxElapsedSeconds) * time.Second,
		},
		clients: make(map[string]TagAPI),
	}
}

// TagResources returns the tagged resources selected by rule across all of
// its regions, region by region in configuration order. A rule without tag
// selection yields nothing.
func (c *TagClient) TagResources(rule config.MetricRule) pager.Iterator[provider.TagResource] {
	if rule.TagSelect == nil {
		return pager.Empty[provider.TagResource]()
	}

	pattern := rule.TagSelect.ResourceTypeSelection.ARNPattern()
	regions := make([]pager.Iterator[provider.TagResource], 0, len(rule.TagSelect.Regions))
	for _, region := range rule.TagSelect.Regions {
		regions = append(regions, c.regionResources(region, pattern))
	}
	return pager.Concat(regions...)
}

func (c *TagClient) regionResources(region, pattern string) pager.Iterator[provider.TagResource] {
	return pager.New(func(ctx context.Context, token string) ([]provider.TagResource, string, error) {
		api, err := c.client(region)
		if err != nil {
			return nil, "", &provider.RegionError{Region: region, Err: err}
		}

		req := &TagResourcesRequest{
			RegionID:    region,
			ResourceARN: []string{pattern},
			PageSize:    config.TagPageSize,
			NextToken:   token,
		}

		page, err := fetchPage(ctx, c.fetcher, metrics.ActionListTagResources, func() (*TagResourcesPage, error) {
			return api.ListTagResources(req)
		})
		if err != nil {
			return nil, "", &provider.RegionError{Region: region, Err: err}
		}

		c.logger.Debug("Tag page received",
			"region", region,
			"resource_arn", pattern,
			"resources", len(page.Resources),
			"has_next", page.NextToken != "")

		return page.Resources, page.NextToken, nil
	})
}

// client returns the Tag API client of region, creating it on first use
func (c *TagClient) client(region string) (TagAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if api, ok := c.clients[region]; ok {
		return api, nil
	}
	api, err := c.newAPI(region)
	if err != nil {
		return nil, err
	}
	c.clients[region] = api
	return api, nil
}
