package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/iconidentify/reelrelay/internal/domain"
	"github.com/iconidentify/reelrelay/internal/downloader"
)

type scrapeRequest struct {
	Target string `json:"target"`
}

type scrapeResponse struct {
	RemoteURLs []string `json:"remote_urls"`
	Message    string   `json:"msg"`
}

// ScrapeAPI asks a public scraping service for direct media URLs and
// downloads them. It only produces video.
type ScrapeAPI struct {
	endpoint string
	platform domain.Platform
	profile  Profile
	client   *http.Client
	fetcher  downloader.Fetcher
	logger   *slog.Logger
}

// NewScrapeAPI creates the strategy. An empty endpoint leaves it disabled.
func NewScrapeAPI(endpoint string, platform domain.Platform, profile Profile, fetcher downloader.Fetcher, logger *slog.Logger) *ScrapeAPI {
	return &ScrapeAPI{
		endpoint: endpoint,
		platform: platform,
		profile:  profile,
		client:   newAPIClient(profile.SocketTimeout),
		fetcher:  fetcher,
		logger:   logger,
	}
}

func (s *ScrapeAPI) Name() string       { return NameScrapeAPI }
func (s *ScrapeAPI) PhotoCapable() bool { return false }

// Enabled reports whether an endpoint is configured.
func (s *ScrapeAPI) Enabled() bool { return s.endpoint != "" }

func (s *ScrapeAPI) Attempt(ctx context.Context, req *domain.DownloadRequest) (Report, error) {
	if !s.Enabled() {
		return Report{}, failed(NameScrapeAPI, fmt.Errorf("no endpoint configured"))
	}

	resp, err := jsonRequest[scrapeResponse](ctx, s.client, http.MethodPost, s.endpoint, nil, scrapeRequest{Target: req.Source.URL})
	if err != nil {
		return Report{}, failed(NameScrapeAPI, err)
	}
	if len(resp.RemoteURLs) == 0 {
		if resp.Message != "" {
			return Report{}, failed(NameScrapeAPI, fmt.Errorf("scrape API: %s", resp.Message))
		}
		return Report{}, failed(NameScrapeAPI, domain.ErrNoMediaFound)
	}

	s.logger.Debug("scrape API returned media", "count", len(resp.RemoteURLs))

	header := s.profile.Headers(s.platform)
	if _, err := fetchAll(ctx, s.fetcher, req, resp.RemoteURLs, header); err != nil {
		return Report{}, failed(NameScrapeAPI, err)
	}
	return Report{}, nil
}
