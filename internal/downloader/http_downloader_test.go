package downloader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iconidentify/reelrelay/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		Timeout:       5 * time.Second,
		Retries:       3,
		RetryDelay:    10 * time.Millisecond,
		MaxRetryDelay: 50 * time.Millisecond,
		MaxBytes:      1024,
	}
}

func TestNewHTTPDownloader_Defaults(t *testing.T) {
	d := NewHTTPDownloader(Config{}, nil)
	want := DefaultRetryConfig()

	if d.cfg.Retries != want.MaxAttempts {
		t.Errorf("Retries = %d, want %d", d.cfg.Retries, want.MaxAttempts)
	}
	if d.cfg.RetryDelay != want.InitialDelay {
		t.Errorf("RetryDelay = %v, want %v", d.cfg.RetryDelay, want.InitialDelay)
	}
	if d.cfg.MaxRetryDelay != want.MaxDelay {
		t.Errorf("MaxRetryDelay = %v, want %v", d.cfg.MaxRetryDelay, want.MaxDelay)
	}
	if d.cfg.Timeout != 2*time.Minute {
		t.Errorf("Timeout = %v, want 2m", d.cfg.Timeout)
	}
}

func TestHTTPDownloader_Fetch_Success(t *testing.T) {
	content := []byte("video content data here")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("User-Agent = %q, want %q", ua, "test-agent")
		}
		if ref := r.Header.Get("Referer"); ref != "https://www.instagram.com/" {
			t.Errorf("Referer = %q", ref)
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(content)
	}))
	defer server.Close()

	dir := t.TempDir()
	header := http.Header{}
	header.Set("User-Agent", "test-agent")
	header.Set("Referer", "https://www.instagram.com/")

	dl := NewHTTPDownloader(testConfig(), testLogger())
	file, err := dl.Fetch(context.Background(), server.URL+"/v", filepath.Join(dir, "abc"), header)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if file.Path != filepath.Join(dir, "abc.mp4") {
		t.Errorf("Path = %q, want abc.mp4", file.Path)
	}
	if file.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", file.Size, len(content))
	}
	data, _ := os.ReadFile(file.Path)
	if string(data) != string(content) {
		t.Errorf("content = %q, want %q", data, content)
	}
}

func TestHTTPDownloader_Fetch_RateLimitedThenSuccess(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg"))
	}))
	defer server.Close()

	dl := NewHTTPDownloader(testConfig(), testLogger())
	file, err := dl.Fetch(context.Background(), server.URL, filepath.Join(t.TempDir(), "p"), nil)
	if err != nil {
		t.Fatalf("Fetch should succeed after retries: %v", err)
	}
	if !strings.HasSuffix(file.Path, ".jpg") {
		t.Errorf("Path = %q, want .jpg suffix", file.Path)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestHTTPDownloader_Fetch_ForbiddenNotRetried(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	dl := NewHTTPDownloader(testConfig(), testLogger())
	_, err := dl.Fetch(context.Background(), server.URL, filepath.Join(t.TempDir(), "x"), nil)
	if !errors.Is(err, domain.ErrURLExpired) {
		t.Fatalf("err = %v, want ErrURLExpired", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestHTTPDownloader_Fetch_NotFoundNotRetried(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dl := NewHTTPDownloader(testConfig(), testLogger())
	if _, err := dl.Fetch(context.Background(), server.URL, filepath.Join(t.TempDir(), "x"), nil); err == nil {
		t.Fatal("expected error for 404")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestHTTPDownloader_Fetch_ServerErrorRetried(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	dl := NewHTTPDownloader(testConfig(), testLogger())
	if _, err := dl.Fetch(context.Background(), server.URL, filepath.Join(t.TempDir(), "x"), nil); err == nil {
		t.Fatal("expected error for 500")
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestHTTPDownloader_Fetch_TooLargeByContentLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", "4096")
		w.Write(make([]byte, 4096))
	}))
	defer server.Close()

	dir := t.TempDir()
	dl := NewHTTPDownloader(testConfig(), testLogger())
	_, err := dl.Fetch(context.Background(), server.URL, filepath.Join(dir, "big"), nil)
	if !errors.Is(err, domain.ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("no file should be left behind, found %d", len(entries))
	}
}

func TestHTTPDownloader_Fetch_TooLargeStreamed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		flusher := w.(http.Flusher)
		for i := 0; i < 4; i++ {
			w.Write(make([]byte, 512))
			flusher.Flush()
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	dl := NewHTTPDownloader(testConfig(), testLogger())
	_, err := dl.Fetch(context.Background(), server.URL, filepath.Join(dir, "big"), nil)
	if !errors.Is(err, domain.ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("no file should be left behind, found %d", len(entries))
	}
}

func TestHTTPDownloader_Fetch_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dl := NewHTTPDownloader(testConfig(), testLogger())
	if _, err := dl.Fetch(ctx, server.URL, filepath.Join(t.TempDir(), "x"), nil); err == nil {
		t.Fatal("expected context cancellation error")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", domain.ErrRateLimited, true},
		{"URL expired", domain.ErrURLExpired, false},
		{"too large", domain.ErrTooLarge, false},
		{"canceled", context.Canceled, false},
		{"permanent", &permanentError{io.EOF}, false},
		{"generic error", io.EOF, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		contentType string
		url         string
		want        string
	}{
		{"video/mp4", "https://cdn/x", ".mp4"},
		{"video/mp4; codecs=avc1", "https://cdn/x", ".mp4"},
		{"image/jpeg", "https://cdn/x.png", ".jpg"},
		{"image/webp", "https://cdn/x", ".webp"},
		{"application/octet-stream", "https://cdn/a/b.mp4?token=1", ".mp4"},
		{"", "https://cdn/a/b.JPEG", ".jpg"},
		{"text/html", "https://cdn/a/b", ".bin"},
	}

	for _, tt := range tests {
		if got := ExtensionFor(tt.contentType, tt.url); got != tt.want {
			t.Errorf("ExtensionFor(%q, %q) = %q, want %q", tt.contentType, tt.url, got, tt.want)
		}
	}
}

func TestRetryWithCheck_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := RetryWithCheck(context.Background(), RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func(int) (int, error) {
		calls++
		return 0, io.EOF
	}, func(error) bool { return false })

	if !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithCheck_SucceedsEventually(t *testing.T) {
	calls := 0
	got, err := RetryWithCheck(context.Background(), RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}, func(attempt int) (string, error) {
		calls++
		if attempt < 2 {
			return "", io.ErrUnexpectedEOF
		}
		return "ok", nil
	}, func(error) bool { return true })

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls, want ok after 3", got, calls)
	}
}
