package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/iconidentify/reelrelay/internal/domain"
	"github.com/iconidentify/reelrelay/internal/downloader"
)

const maxAPIResponse = 4 << 20

func newAPIClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// jsonRequest sends body (if any) as JSON and decodes a JSON answer into T.
func jsonRequest[T any](ctx context.Context, client *http.Client, method, rawURL string, header http.Header, body any) (T, error) {
	var zero T

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return zero, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return zero, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponse))
	if err != nil {
		return zero, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return zero, fmt.Errorf("%w: status %d", domain.ErrRateLimited, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return zero, fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(data), 200))
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// fetchAll downloads urls into the request dir. A single URL is saved as
// <base>; several as <base>_1, <base>_2, ...
func fetchAll(ctx context.Context, f downloader.Fetcher, req *domain.DownloadRequest, urls []string, header http.Header) (int, error) {
	var saved int
	var lastErr error
	for i, u := range urls {
		name := req.BaseName
		if len(urls) > 1 {
			name = fmt.Sprintf("%s_%d", req.BaseName, i+1)
		}
		if _, err := f.Fetch(ctx, u, filepath.Join(req.Dir, name), header); err != nil {
			lastErr = err
			continue
		}
		saved++
	}
	if saved == 0 && lastErr != nil {
		return 0, lastErr
	}
	return saved, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
