package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request is an intercepted outgoing request
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Source identifies where a result came from
type Source string

const (
	SourceNetwork   Source = "network"
	SourceCache     Source = "cache"
	SourceSynthetic Source = "synthetic"
)

// Result is what the engine hands back to the caller. Queued and Offline are
// the only markers that reveal a degraded response.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Source     Source
	Queued     bool
	Offline    bool
}

// Fetcher performs the actual network exchange. A returned error means the
// network was unavailable (connection failure or timeout); HTTP error
// statuses are returned as ordinary results.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Result, error)
}

// HTTPFetcher is the production Fetcher backed by net/http
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher whose attempts are bounded by timeout
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch performs the request and buffers the response
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Result, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("network attempt failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       respBody,
		Source:     SourceNetwork,
	}, nil
}
