package aliyun

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/zgpcy/aliyun-cms-exporter/internal/logger"
	"github.com/zgpcy/aliyun-cms-exporter/internal/metrics"
	"github.com/zgpcy/aliyun-cms-exporter/internal/provider"
)

// Page request retry constants
const (
	// InitialRetryInterval is the initial backoff interval for retries
	InitialRetryInterval = 200 * time.Millisecond

	// MaxRetryInterval is the maximum backoff interval between retries
	MaxRetryInterval = 2 * time.Second
)

// pageFetcher runs single page requests with retries and request accounting
type pageFetcher struct {
	requests   *metrics.Requests
	logger     *logger.Logger
	maxElapsed time.Duration

	// newBackOff overrides the retry policy, used by tests
	newBackOff func() backoff.BackOff
}

func (f *pageFetcher) backOff() backoff.BackOff {
	if f.newBackOff != nil {
		return f.newBackOff()
	}
	if f.maxElapsed <= 0 {
		return &backoff.StopBackOff{}
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = InitialRetryInterval
	bo.MaxInterval = MaxRetryInterval
	bo.MaxElapsedTime = f.maxElapsed
	return bo
}

// fetchPage performs call with retries. Every attempt is counted as a
// success or failure of action. Errors that retrying cannot fix, and
// cancellation of ctx, end the retries at once.
func fetchPage[T any](ctx context.Context, f *pageFetcher, action string, call func() (T, error)) (T, error) {
	var result T

	operation := func() error {
		v, err := callWithContext(ctx, call)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			f.requests.Failed(action)
			if !shouldRetry(err) {
				return backoff.Permanent(err)
			}
			f.logger.Debug("Aliyun API call failed, will retry",
				"action", action,
				"error", err)
			return err
		}
		f.requests.Succeeded(action)
		result = v
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(f.backOff(), ctx)); err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// callWithContext runs a blocking SDK call and gives up when ctx is done.
// The SDK has no context support, so an abandoned call finishes in the
// background and its result is dropped.
func callWithContext[T any](ctx context.Context, call func() (T, error)) (T, error) {
	type outcome struct {
		v   T
		err error
	}

	done := make(chan outcome, 1)
	go func() {
		v, err := call()
		done <- outcome{v: v, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case o := <-done:
		return o.v, o.err
	}
}

// shouldRetry reports whether a failed request may succeed when repeated
func shouldRetry(err error) bool {
	if errors.Is(err, provider.ErrUnretryable) {
		return false
	}
	var upstream *provider.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Temporary
	}
	return true
}
