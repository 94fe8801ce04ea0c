package extractor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/iconidentify/reelrelay/internal/domain"
	"github.com/iconidentify/reelrelay/internal/downloader"
)

var (
	videoMetaKeys = []string{"og:video:secure_url", "og:video:url", "og:video", "twitter:player:stream"}
	imageMetaKeys = []string{"og:image:secure_url", "og:image", "twitter:image"}
)

// PageMeta reads OpenGraph tags from the public post page.
type PageMeta struct {
	platform domain.Platform
	profile  Profile
	client   *http.Client
	fetcher  downloader.Fetcher
	logger   *slog.Logger
}

// NewPageMeta creates the strategy.
func NewPageMeta(platform domain.Platform, profile Profile, fetcher downloader.Fetcher, logger *slog.Logger) *PageMeta {
	return &PageMeta{
		platform: platform,
		profile:  profile,
		client:   newAPIClient(profile.SocketTimeout),
		fetcher:  fetcher,
		logger:   logger,
	}
}

func (p *PageMeta) Name() string       { return NamePageMeta }
func (p *PageMeta) PhotoCapable() bool { return true }

func (p *PageMeta) Attempt(ctx context.Context, req *domain.DownloadRequest) (Report, error) {
	header := p.profile.Headers(p.platform)

	doc, err := p.page(ctx, req.Source.URL, header)
	if err != nil {
		return Report{}, failed(NamePageMeta, err)
	}

	if video := firstMeta(doc, videoMetaKeys); video != "" {
		if _, err := fetchAll(ctx, p.fetcher, req, []string{video}, header); err != nil {
			return Report{}, failed(NamePageMeta, err)
		}
		return Report{}, nil
	}

	// A video page without a stream URL only exposes its poster frame.
	if ogType := firstMeta(doc, []string{"og:type"}); strings.HasPrefix(strings.ToLower(ogType), "video") {
		return Report{}, failed(NamePageMeta, fmt.Errorf("%w: %s page exposes only a poster image", domain.ErrNoMediaFound, ogType))
	}

	if image := firstMeta(doc, imageMetaKeys); image != "" {
		if _, err := fetchAll(ctx, p.fetcher, req, []string{image}, header); err != nil {
			return Report{}, failed(NamePageMeta, err)
		}
		return Report{VideoAbsent: true}, nil
	}

	return Report{}, failed(NamePageMeta, domain.ErrNoMediaFound)
}

func (p *PageMeta) page(ctx context.Context, rawURL string, header http.Header) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

// firstMeta returns the content of the first meta tag whose property or name
// matches one of keys, in key order.
func firstMeta(doc *goquery.Document, keys []string) string {
	for _, key := range keys {
		var found string
		doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			name, ok := s.Attr("property")
			if !ok {
				name, _ = s.Attr("name")
			}
			if !strings.EqualFold(name, key) {
				return true
			}
			if content := strings.TrimSpace(s.AttrOr("content", "")); content != "" {
				found = content
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}
