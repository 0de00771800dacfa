package model

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// HTTPReconstructor calls a model server exposing a JSON reconstruction endpoint.
type HTTPReconstructor struct {
	baseURL         string
	reconstructPath string
	httpClient      *http.Client
}

// NewHTTPReconstructor constructs a client targeting the configured model server.
func NewHTTPReconstructor(baseURL, reconstructPath string, timeout time.Duration) *HTTPReconstructor {
	return &HTTPReconstructor{
		baseURL:         strings.TrimRight(baseURL, "/"),
		reconstructPath: reconstructPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Reconstruct posts the batch and decodes the reconstruction tensor.
func (c *HTTPReconstructor) Reconstruct(ctx context.Context, batch Batch) (Output, error) {
	if c == nil {
		return Output{}, fmt.Errorf("model client not initialised")
	}
	if c.baseURL == "" {
		return Output{}, fmt.Errorf("model base URL not configured")
	}

	body, err := encodeBatch(batch)
	if err != nil {
		return Output{}, err
	}
	data, err := c.postJSON(ctx, c.resolvePath(c.reconstructPath), body)
	if err != nil {
		return Output{}, fmt.Errorf("model reconstruction request failed: %w", err)
	}
	out, err := decodeOutput(data)
	if err != nil {
		return Output{}, err
	}
	if err := CheckShape(batch, out); err != nil {
		return Output{}, err
	}
	return out, nil
}

func (c *HTTPReconstructor) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *HTTPReconstructor) postJSON(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model server returned %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}
