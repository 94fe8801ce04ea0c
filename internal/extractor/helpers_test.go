package extractor

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/iconidentify/reelrelay/internal/domain"
	"github.com/iconidentify/reelrelay/internal/downloader"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testProfile() Profile {
	p := DefaultProfile()
	p.JitterMin, p.JitterMax = 0, 0
	p.SocketTimeout = 5 * time.Second
	return p
}

func testFetcher() downloader.Fetcher {
	return downloader.NewHTTPDownloader(downloader.Config{Retries: 1, MaxBytes: 1 << 20}, testLogger())
}

func testRequest(t *testing.T, platform domain.Platform, url string) *domain.DownloadRequest {
	t.Helper()
	return &domain.DownloadRequest{
		Source:   domain.PlatformURL{URL: url, Platform: platform},
		Dir:      t.TempDir(),
		BaseName: "post",
	}
}

// cdnServer serves /cdn/<name> with a content type derived from the name.
func cdnServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/cdn/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, ".mp4"):
			w.Header().Set("Content-Type", "video/mp4")
		case strings.HasSuffix(r.URL.Path, ".jpg"):
			w.Header().Set("Content-Type", "image/jpeg")
		default:
			w.Header().Set("Content-Type", "application/octet-stream")
		}
		w.Write([]byte("data:" + r.URL.Path))
	}))
	t.Cleanup(s.Close)
	return s
}

func dirFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
