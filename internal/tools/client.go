package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aalghamdi/voicedesk/internal/reliability"
)

// Client invokes a remote tool server. One client per configured endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// BaseURL returns the configured endpoint.
func (c *Client) BaseURL() string { return c.baseURL }

const listRetries = 3

// List fetches the tool definitions the server exposes. Tool servers may
// still be coming up when a pipeline starts, so transient failures are
// retried with backoff before giving up.
func (c *Client) List(ctx context.Context) ([]Definition, error) {
	var lastErr error
	for attempt := 0; attempt <= listRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(reliability.Backoff(attempt-1, 250*time.Millisecond, 2*time.Second)):
			}
		}
		defs, retryable, err := c.listOnce(ctx)
		if err == nil {
			return defs, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) listOnce(ctx context.Context) ([]Definition, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tools", nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("list tools at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		retryable := reliability.RetryableStatus(resp.StatusCode)
		return nil, retryable, fmt.Errorf("list tools at %s: status %d", c.baseURL, resp.StatusCode)
	}
	var body struct {
		Tools []Definition `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, false, fmt.Errorf("decode tool list: %w", err)
	}
	return body.Tools, false, nil
}

// Call invokes one tool and returns its spoken-sentence result.
func (c *Client) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	payload, err := json.Marshal(callRequest{Arguments: args})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tools/"+name, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call tool %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("call tool %s: status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var body callResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode tool result: %w", err)
	}
	return body.Result, nil
}
