package provider

import (
	"errors"
	"fmt"
)

// ErrUnretryable marks upstream failures that can never succeed on retry,
// such as an unknown namespace or a rejected parameter
var ErrUnretryable = errors.New("unretryable upstream error")

// UpstreamError is an API-level failure reported by a cloud API, either as
// a transport error or as a response body with success=false
type UpstreamError struct {
	Action     string
	StatusCode int
	Code       string
	Message    string
	Body       string

	// Unretryable is set when the request can never succeed
	Unretryable bool
	// Temporary is set when repeating the request may succeed
	Temporary bool
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed (status %d, code %s): %s", e.Action, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s failed (code %s): %s", e.Action, e.Code, e.Message)
}

// Is lets errors.Is(err, ErrUnretryable) match unretryable upstream errors
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUnretryable && e.Unretryable
}

// RegionError scopes a failure to one region of a region-partitioned API
type RegionError struct {
	Region string
	Err    error
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("region %s: %v", e.Region, e.Err)
}

func (e *RegionError) Unwrap() error {
	return e.Err
}
