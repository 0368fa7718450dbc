package aliyun

import (
	"errors"
	"testing"

	"github.com/alibabacloud-go/tea/tea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zgpcy/aliyun-cms-exporter/internal/provider"
)

// counterValue returns the value of the counter name{action}, or 0 when
// the series was never created
func counterValue(t *testing.T, reg *prometheus.Registry, name, action string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "action" && l.GetValue() == action {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestSDKError_Classification(t *testing.T) {
	tests := []struct {
		name            string
		err             *tea.SDKError
		wantUnretryable bool
		wantTemporary   bool
	}{
		{
			name:            "client error",
			err:             &tea.SDKError{StatusCode: tea.Int(400), Code: tea.String("InvalidParameter"), Message: tea.String("bad namespace")},
			wantUnretryable: true,
		},
		{
			name:            "forbidden",
			err:             &tea.SDKError{StatusCode: tea.Int(403), Code: tea.String("Forbidden.RAM")},
			wantUnretryable: true,
		},
		{
			name:          "throttled by code",
			err:           &tea.SDKError{StatusCode: tea.Int(400), Code: tea.String("Throttling.User")},
			wantTemporary: true,
		},
		{
			name:          "throttled by status",
			err:           &tea.SDKError{StatusCode: tea.Int(429), Code: tea.String("TooManyRequests")},
			wantTemporary: true,
		},
		{
			name:          "server error",
			err:           &tea.SDKError{StatusCode: tea.Int(503), Code: tea.String("ServiceUnavailable")},
			wantTemporary: true,
		},
		{
			name:          "no status",
			err:           &tea.SDKError{Code: tea.String("ClientError")},
			wantTemporary: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sdkError("DescribeMetricLast", tt.err)

			var upstream *provider.UpstreamError
			require.ErrorAs(t, err, &upstream)
			assert.Equal(t, "DescribeMetricLast", upstream.Action)
			assert.Equal(t, tea.StringValue(tt.err.Code), upstream.Code)
			assert.Equal(t, tt.wantUnretryable, upstream.Unretryable)
			assert.Equal(t, tt.wantTemporary, upstream.Temporary)
			assert.Equal(t, tt.wantUnretryable, errors.Is(err, provider.ErrUnretryable))
			assert.Equal(t, tt.wantTemporary, shouldRetry(err))
		})
	}
}

func TestSDKError_TransportFailure(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := sdkError("ListTagResources", cause)

	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, provider.ErrUnretryable)
	assert.True(t, shouldRetry(err))
}

func TestResponseError(t *testing.T) {
	err := responseError("DescribeMetricLast", &MetricLastPage{Code: "Throttling", Message: "slow down"})
	assert.True(t, err.Temporary)
	assert.False(t, err.Unretryable)

	err = responseError("DescribeMetricLast", &MetricLastPage{Code: "400", Message: "bad request"})
	assert.False(t, err.Temporary)
	assert.False(t, shouldRetry(err))
}

func TestOptional(t *testing.T) {
	assert.Nil(t, optional(""))
	assert.Equal(t, "x", tea.StringValue(optional("x")))
}
