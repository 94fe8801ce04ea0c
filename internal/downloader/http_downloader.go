package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/reelrelay/internal/domain"
)

// Fetcher saves a remote media URL into a local file.
type Fetcher interface {
	// Fetch downloads rawURL to destBase plus an extension derived from the
	// response, and returns the written file.
	Fetch(ctx context.Context, rawURL, destBase string, header http.Header) (*File, error)
}

// File describes a downloaded file.
type File struct {
	Path        string
	Size        int64
	ContentType string
}

// Config holds HTTP fetch configuration.
type Config struct {
	Timeout       time.Duration
	Retries       int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	MaxBytes      int64
}

// HTTPDownloader implements Fetcher using plain HTTP GETs.
type HTTPDownloader struct {
	client *http.Client
	cfg    Config
	logger *slog.Logger
}

// NewHTTPDownloader creates a new HTTP media fetcher.
func NewHTTPDownloader(cfg Config, logger *slog.Logger) *HTTPDownloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	retry := DefaultRetryConfig()
	if cfg.Retries <= 0 {
		cfg.Retries = retry.MaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = retry.InitialDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = retry.MaxDelay
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPDownloader{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
		cfg:    cfg,
		logger: logger,
	}
}

// Fetch downloads rawURL with retry logic.
func (d *HTTPDownloader) Fetch(ctx context.Context, rawURL, destBase string, header http.Header) (*File, error) {
	retry := RetryConfig{
		MaxAttempts:   d.cfg.Retries,
		InitialDelay:  d.cfg.RetryDelay,
		MaxDelay:      d.cfg.MaxRetryDelay,
		BackoffFactor: 2.0,
	}

	file, err := RetryWithCheck(ctx, retry, func(attempt int) (*File, error) {
		if attempt > 0 {
			d.logger.Debug("retrying media fetch", "url", rawURL, "attempt", attempt+1)
		}
		return d.fetchOnce(ctx, rawURL, destBase, header)
	}, isRetryableError)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	return file, nil
}

func (d *HTTPDownloader) fetchOnce(ctx context.Context, rawURL, destBase string, header http.Header) (*File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &permanentError{fmt.Errorf("create request: %w", err)}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "video/mp4,video/*;q=0.9,image/*;q=0.8,*/*;q=0.5")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.ErrURLExpired
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.ErrRateLimited
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, &permanentError{fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if d.cfg.MaxBytes > 0 && resp.ContentLength > d.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: %s > %s", domain.ErrTooLarge,
			humanize.IBytes(uint64(resp.ContentLength)), humanize.IBytes(uint64(d.cfg.MaxBytes)))
	}

	contentType := resp.Header.Get("Content-Type")
	dest := destBase + ExtensionFor(contentType, rawURL)

	f, err := os.Create(dest)
	if err != nil {
		return nil, &permanentError{fmt.Errorf("create file: %w", err)}
	}

	var body io.Reader = resp.Body
	if d.cfg.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, d.cfg.MaxBytes+1)
	}

	n, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(dest)
		return nil, fmt.Errorf("write body: %w", copyErr)
	}
	if d.cfg.MaxBytes > 0 && n > d.cfg.MaxBytes {
		os.Remove(dest)
		return nil, fmt.Errorf("%w: body exceeds %s", domain.ErrTooLarge, humanize.IBytes(uint64(d.cfg.MaxBytes)))
	}

	d.logger.Debug("media fetched", "url", rawURL, "size", humanize.IBytes(uint64(n)), "path", dest)

	return &File{
		Path:        dest,
		Size:        n,
		ContentType: contentType,
	}, nil
}

// permanentError marks a failure that another attempt cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func isRetryableError(err error) bool {
	if errors.Is(err, domain.ErrRateLimited) {
		return true
	}
	if errors.Is(err, domain.ErrURLExpired) || errors.Is(err, domain.ErrTooLarge) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perm *permanentError
	return !errors.As(err, &perm)
}

var extensionsByType = map[string]string{
	"video/mp4":        ".mp4",
	"video/quicktime":  ".mov",
	"video/webm":       ".webm",
	"video/x-matroska": ".mkv",
	"image/jpeg":       ".jpg",
	"image/jpg":        ".jpg",
	"image/png":        ".png",
	"image/webp":       ".webp",
}

// ExtensionFor picks a file extension from the Content-Type, falling back to
// the URL path and finally to ".bin".
func ExtensionFor(contentType, rawURL string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := extensionsByType[strings.ToLower(mediaType)]; ok {
			return ext
		}
	}

	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	ext := strings.ToLower(path.Ext(p))
	switch ext {
	case ".mp4", ".mov", ".webm", ".mkv", ".png", ".webp":
		return ext
	case ".jpg", ".jpeg":
		return ".jpg"
	}
	return ".bin"
}
