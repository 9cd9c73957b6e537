package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/nicktill/journeyboard/pkg/config"
)

// Client is the shared JSON-over-HTTP helper the vendor adapters build on.
// It retries transient failures (timeouts, 5xx, 429) with a linearly
// growing delay and opens a fresh connection for every retry: some vendor
// load balancers serve corrupted responses on reused TLS sessions after a
// failure, so pooled connections are never carried across attempts.
type Client struct {
	BaseURL   string
	AuthToken string // sent as a bearer token when non-empty
	Timeout   time.Duration
	Attempts  int
	BaseDelay time.Duration
}

// NewClient returns a client with the standard retry budget.
func NewClient(baseURL, authToken string) *Client {
	return &Client{
		BaseURL:   baseURL,
		AuthToken: authToken,
		Timeout:   config.SourceCallTimeout,
		Attempts:  config.SourceRetryAttempts,
		BaseDelay: config.SourceRetryBaseDelay,
	}
}

// GetJSON issues a GET against path with the given query parameters and
// decodes the 2xx response body into out. Non-2xx statuses and undecodable
// bodies surface as *UpstreamError.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	attempts := c.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := c.BaseDelay * time.Duration(attempt-1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return &UpstreamError{Op: path, Transient: true, Err: ctx.Err()}
			}
		}

		err := c.doOnce(ctx, path, params, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsTransient(err) {
			return err
		}
	}
	return lastErr
}

// doOnce performs a single attempt on its own transport so the connection
// is never reused by a later attempt.
func (c *Client) doOnce(ctx context.Context, path string, params url.Values, out interface{}) error {
	transport := &http.Transport{
		DisableKeepAlives: true,
		Proxy:             http.ProxyFromEnvironment,
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   c.Timeout,
	}

	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &UpstreamError{Op: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &UpstreamError{Op: path, Transient: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can close cleanly.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &UpstreamError{
			Op:        path,
			Status:    resp.StatusCode,
			Transient: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
			Err:       fmt.Errorf("unexpected status"),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Op: path, Err: fmt.Errorf("malformed payload: %w", err)}
	}
	return nil
}

// isTimeout reports whether a transport error is a timeout or cancellation
// worth retrying.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
