package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/iconidentify/reelrelay/internal/domain"
	"github.com/iconidentify/reelrelay/internal/downloader"
)

type tiktokResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		ID     string   `json:"id"`
		Play   string   `json:"play"`
		HDPlay string   `json:"hdplay"`
		Images []string `json:"images"`
		Size   int64    `json:"size"`
		HDSize int64    `json:"hd_size"`
	} `json:"data"`
}

// TikTokAPI resolves TikTok posts, including photo slideshows, through a
// tikwm-compatible API.
type TikTokAPI struct {
	endpoint string
	profile  Profile
	client   *http.Client
	fetcher  downloader.Fetcher
	logger   *slog.Logger
}

// NewTikTokAPI creates the strategy.
func NewTikTokAPI(endpoint string, profile Profile, fetcher downloader.Fetcher, logger *slog.Logger) *TikTokAPI {
	return &TikTokAPI{
		endpoint: endpoint,
		profile:  profile,
		client:   newAPIClient(profile.SocketTimeout),
		fetcher:  fetcher,
		logger:   logger,
	}
}

func (t *TikTokAPI) Name() string       { return NameTikTokAPI }
func (t *TikTokAPI) PhotoCapable() bool { return true }

// Enabled reports whether an endpoint is configured.
func (t *TikTokAPI) Enabled() bool { return t.endpoint != "" }

func (t *TikTokAPI) Attempt(ctx context.Context, req *domain.DownloadRequest) (Report, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil || t.endpoint == "" {
		return Report{}, failed(NameTikTokAPI, fmt.Errorf("invalid endpoint %q", t.endpoint))
	}
	q := u.Query()
	q.Set("url", req.Source.URL)
	q.Set("hd", "1")
	u.RawQuery = q.Encode()

	header := t.profile.Headers(domain.PlatformTikTok)
	resp, err := jsonRequest[tiktokResponse](ctx, t.client, http.MethodGet, u.String(), header, nil)
	if err != nil {
		return Report{}, failed(NameTikTokAPI, err)
	}
	if resp.Code != 0 {
		return Report{}, failed(NameTikTokAPI, fmt.Errorf("tiktok API code %d: %s", resp.Code, resp.Msg))
	}

	// Photo-mode posts carry a soundtrack in play; the images are the media.
	if len(resp.Data.Images) > 0 {
		if _, err := fetchAll(ctx, t.fetcher, req, resp.Data.Images, header); err != nil {
			return Report{}, failed(NameTikTokAPI, err)
		}
		return Report{VideoAbsent: true}, nil
	}

	play := resp.Data.HDPlay
	if play == "" || (t.profile.MaxFileSize > 0 && resp.Data.HDSize > t.profile.MaxFileSize) {
		play = resp.Data.Play
	}
	if play == "" {
		return Report{}, noVideo(NameTikTokAPI, nil)
	}

	if _, err := fetchAll(ctx, t.fetcher, req, []string{play}, header); err != nil {
		return Report{}, failed(NameTikTokAPI, err)
	}
	return Report{}, nil
}
