package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// DefaultRetryWait is the default initial wait between retries.
const DefaultRetryWait = 1 * time.Second

// Client performs authenticated requests against a provider API and
// streams large payloads to disk.
type Client struct {
	client      *http.Client
	baseURL     string
	serviceName string
	maxAttempts int
	retryWait   time.Duration

	// beforeRequest is called before each request (for auth headers, etc.)
	beforeRequest func(req *http.Request)
}

// ClientConfig holds configuration for Client.
type ClientConfig struct {
	Client      *http.Client
	BaseURL     string
	ServiceName string

	// MaxAttempts bounds how many times a request is sent. Values below
	// one mean a single attempt.
	MaxAttempts   int
	RetryWait     time.Duration
	BeforeRequest func(req *http.Request)
}

// NewClient creates a new Client with the given configuration.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		client:        cfg.Client,
		baseURL:       cfg.BaseURL,
		serviceName:   cfg.ServiceName,
		maxAttempts:   cfg.MaxAttempts,
		retryWait:     cfg.RetryWait,
		beforeRequest: cfg.BeforeRequest,
	}

	// No overall timeout; callers bound requests through the context.
	if c.client == nil {
		c.client = &http.Client{}
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 1
	}
	if c.retryWait <= 0 {
		c.retryWait = DefaultRetryWait
	}

	return c
}

// Do executes a GET request with the given headers, retrying transient
// failures while attempts remain. A successful response is returned
// unread; the caller must close its body.
func (c *Client) Do(ctx context.Context, path string, headers map[string]string) (*http.Response, error) {
	url := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		// Apply auth headers via callback
		if c.beforeRequest != nil {
			c.beforeRequest(req)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%s request failed: %w", c.serviceName, err)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt < c.maxAttempts-1 {
				if err := c.wait(ctx, c.retryWait*time.Duration(1<<attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, lastErr
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := c.parseError(resp, path)
			resp.Body.Close()
			lastErr = apiErr
			if shouldRetry(resp) && attempt < c.maxAttempts-1 {
				if err := c.wait(ctx, c.getRetryWait(resp, attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, apiErr
		}

		return resp, nil
	}

	return nil, lastErr
}

// Stream performs a GET request and copies the response body into w.
// It returns the number of bytes written.
func (c *Client) Stream(ctx context.Context, path string, headers map[string]string, w io.Writer) (int64, error) {
	resp, err := c.Do(ctx, path, headers)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("read %s payload: %w", c.serviceName, err)
	}
	return n, nil
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// parseError parses an error response into an APIError.
func (c *Client) parseError(resp *http.Response, path string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{
		Service:    c.serviceName,
		StatusCode: resp.StatusCode,
		Endpoint:   path,
		RequestID:  resp.Header.Get("X-GitHub-Request-Id"),
	}

	var errResp struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Message != "" {
			apiErr.Message = errResp.Message
		} else if errResp.Error != "" {
			apiErr.Message = errResp.Error
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	return apiErr
}

// getRetryWait calculates the wait time for a retry.
func (c *Client) getRetryWait(resp *http.Response, attempt int) time.Duration {
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff
	return c.retryWait * time.Duration(1<<attempt)
}

// shouldRetry reports whether a failed response is worth another attempt.
func shouldRetry(resp *http.Response) bool {
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}
