package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client wraps http.Client with JSON request helpers shared by the
// provider callers and the gateway REST surface.
type Client struct {
	httpClient *http.Client
}

func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SendRequest performs a JSON request and decodes the JSON response body
// into out. A nil body sends no payload; a nil out discards the body.
func (c *Client) SendRequest(ctx context.Context, method, url string, headers map[string]string, body any, out any) error {
	_, err := c.SendRequestRaw(ctx, method, url, headers, body, out)
	return err
}

// SendRequestRaw is SendRequest but also hands back the raw response
// bytes, for callers that need the payload beyond the decoded struct.
func (c *Client) SendRequestRaw(ctx context.Context, method, url string, headers map[string]string, body any, out any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return data, &UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
			URL:        url,
		}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return data, fmt.Errorf("decode response body: %w", err)
		}
	}
	return data, nil
}

// Download fetches a URL and returns its raw bytes together with the
// Content-Type reported by the server.
func (c *Client) Download(ctx context.Context, url string, headers map[string]string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       fmt.Sprintf("download returned status %d", resp.StatusCode),
			URL:        url,
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read download body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
