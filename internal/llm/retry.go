package llm

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spherical/bill-assistant/internal/domain"
)

// RetryConfig bounds how often a rate-limited or failing endpoint is retried.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig retries three times, starting at one second.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// delay doubles per attempt up to MaxBackoff. A Retry-After header in seconds
// takes precedence when it asks for longer.
func (c *RetryConfig) delay(attempt int, resp *http.Response) time.Duration {
	d := c.InitialBackoff << attempt
	if d <= 0 || d > c.MaxBackoff {
		d = c.MaxBackoff
	}
	if resp == nil {
		return d
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		if after := time.Duration(secs) * time.Second; after > d {
			d = min(after, c.MaxBackoff)
		}
	}
	return d
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// DoWithRetry calls send until it yields a non-retryable response or the
// budget is spent. The caller owns the returned body, whatever its status.
func DoWithRetry(ctx context.Context, cfg *RetryConfig, send func() (*http.Response, error)) (*http.Response, error) {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := send()
		switch {
		case err != nil:
			lastErr = err
		case !retryable(resp.StatusCode):
			return resp, nil
		default:
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
			resp.Body.Close()
		}

		if attempt >= cfg.MaxRetries {
			return nil, domain.APIError(fmt.Sprintf("giving up after %d attempts", attempt+1), lastErr)
		}

		timer := time.NewTimer(cfg.delay(attempt, resp))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
