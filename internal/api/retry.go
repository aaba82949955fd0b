// internal/api/retry.go
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Transient failures worth retrying.
var (
	ErrRateLimit      = errors.New("rate limit exceeded (429)")
	ErrBadGateway     = errors.New("bad gateway (502)")
	ErrServerBusy     = errors.New("server busy (503)")
	ErrGatewayTimeout = errors.New("gateway timeout (504)")
)

// RetryPolicy bounds the retry loop for transient failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
	}
}

type retryingClient struct {
	client *http.Client
	policy RetryPolicy
}

func newRetryingClient(policy RetryPolicy) *retryingClient {
	return &retryingClient{
		client: &http.Client{
			Timeout: 120 * time.Second, // group turns can take a while
		},
		policy: policy,
	}
}

// do executes a request, retrying transient network errors and retryable
// status codes with a doubling delay.
func (c *retryingClient) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	delay := c.policy.BaseDelay

	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			if delay *= 2; delay > c.policy.MaxDelay {
				delay = c.policy.MaxDelay
			}
		}

		resp, err := c.client.Do(req.Clone(ctx))
		if err != nil {
			if !retryableNetError(err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		if retryableStatus(resp.StatusCode) {
			resp.Body.Close()
			lastErr = statusError(resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("after %d attempts: %w", c.policy.MaxAttempts, lastErr)
}

func retryableNetError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func retryableStatus(code int) bool {
	switch code {
	case 429, 502, 503, 504:
		return true
	default:
		return false
	}
}

func statusError(code int) error {
	switch code {
	case 429:
		return ErrRateLimit
	case 502:
		return ErrBadGateway
	case 503:
		return ErrServerBusy
	case 504:
		return ErrGatewayTimeout
	default:
		return fmt.Errorf("HTTP %d", code)
	}
}

// newJSONRequest builds a POST request whose body can be re-read on retry.
func newJSONRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		req.Body, _ = req.GetBody()
		req.ContentLength = int64(len(body))
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
