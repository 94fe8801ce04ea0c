package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/iconidentify/reelrelay/internal/domain"
	"github.com/iconidentify/reelrelay/internal/downloader"
)

// DefaultSyndicationURL is X's public embed endpoint.
const DefaultSyndicationURL = "https://cdn.syndication.twimg.com/tweet-result"

var (
	tweetIDPattern    = regexp.MustCompile(`(?:twitter\.com|x\.com)/\w+/status/(\d+)`)
	resolutionPattern = regexp.MustCompile(`/(\d+)x(\d+)/`)
)

type variant struct {
	Bitrate     int    `json:"bitrate"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

type mediaDetail struct {
	ID            string `json:"id_str"`
	Type          string `json:"type"`
	MediaURLHTTPS string `json:"media_url_https"`
	VideoInfo     struct {
		Variants []variant `json:"variants"`
	} `json:"video_info"`
}

// syndicationResponse is the part of the tweet-result payload that carries media.
type syndicationResponse struct {
	ID     string `json:"id_str"`
	Photos []struct {
		URL string `json:"url"`
	} `json:"photos"`
	Video struct {
		Variants []struct {
			Type string `json:"type"`
			Src  string `json:"src"`
		} `json:"variants"`
		Poster string `json:"poster"`
	} `json:"video"`
	MediaDetails     []mediaDetail `json:"mediaDetails"`
	ExtendedEntities struct {
		Media []mediaDetail `json:"media"`
	} `json:"extended_entities"`
}

// tweetMedia is what a tweet offers: its best video, or its photos.
type tweetMedia struct {
	Video  string
	Photos []string
}

// Syndication fetches tweet media through the public syndication API.
type Syndication struct {
	endpoint string
	profile  Profile
	client   *http.Client
	fetcher  downloader.Fetcher
	logger   *slog.Logger
}

// NewSyndication creates the strategy.
func NewSyndication(endpoint string, profile Profile, fetcher downloader.Fetcher, logger *slog.Logger) *Syndication {
	if endpoint == "" {
		endpoint = DefaultSyndicationURL
	}
	return &Syndication{
		endpoint: endpoint,
		profile:  profile,
		client:   newAPIClient(profile.SocketTimeout),
		fetcher:  fetcher,
		logger:   logger,
	}
}

func (s *Syndication) Name() string       { return NameSyndication }
func (s *Syndication) PhotoCapable() bool { return true }

func (s *Syndication) Attempt(ctx context.Context, req *domain.DownloadRequest) (Report, error) {
	tweetID := ExtractTweetID(req.Source.URL)
	if tweetID == "" {
		return Report{}, failed(NameSyndication, fmt.Errorf("could not extract tweet ID from URL: %s", req.Source.URL))
	}

	u, err := url.Parse(s.endpoint)
	if err != nil {
		return Report{}, failed(NameSyndication, fmt.Errorf("invalid endpoint: %w", err))
	}
	q := u.Query()
	q.Set("id", tweetID)
	q.Set("token", "x")
	u.RawQuery = q.Encode()

	header := s.profile.Headers(domain.PlatformTwitter)
	resp, err := jsonRequest[syndicationResponse](ctx, s.client, http.MethodGet, u.String(), header, nil)
	if err != nil {
		return Report{}, failed(NameSyndication, err)
	}

	media := parseTweetMedia(&resp)
	switch {
	case media.Video != "":
		if _, err := fetchAll(ctx, s.fetcher, req, []string{media.Video}, header); err != nil {
			return Report{}, failed(NameSyndication, err)
		}
		return Report{}, nil
	case len(media.Photos) > 0:
		if _, err := fetchAll(ctx, s.fetcher, req, media.Photos, header); err != nil {
			return Report{}, failed(NameSyndication, err)
		}
		return Report{VideoAbsent: true}, nil
	}
	return Report{}, failed(NameSyndication, domain.ErrNoMediaFound)
}

func parseTweetMedia(resp *syndicationResponse) tweetMedia {
	type candidate struct {
		url     string
		bitrate int
	}
	var videos []candidate
	var photos []string
	seen := make(map[string]bool)

	addPhoto := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		photos = append(photos, u)
	}

	for _, p := range resp.Photos {
		addPhoto(p.URL)
	}

	if resp.Video.Poster != "" {
		for _, v := range resp.Video.Variants {
			if v.Type == "video/mp4" || strings.Contains(v.Src, ".mp4") {
				videos = append(videos, candidate{url: v.Src, bitrate: bitrateFromURL(v.Src)})
			}
		}
	}

	// mediaDetails and extended_entities carry explicit bitrates.
	details := append(append([]mediaDetail{}, resp.MediaDetails...), resp.ExtendedEntities.Media...)
	for _, md := range details {
		switch md.Type {
		case "video", "animated_gif":
			for _, v := range md.VideoInfo.Variants {
				if v.ContentType == "video/mp4" {
					videos = append(videos, candidate{url: v.URL, bitrate: v.Bitrate})
				}
			}
		case "photo":
			addPhoto(md.MediaURLHTTPS)
		}
	}

	var out tweetMedia
	if len(videos) > 0 {
		sort.SliceStable(videos, func(i, j int) bool {
			return videos[i].bitrate > videos[j].bitrate
		})
		out.Video = videos[0].url
		return out
	}
	out.Photos = photos
	return out
}

// ExtractTweetID extracts the tweet ID from x.com and twitter.com status URLs.
func ExtractTweetID(rawURL string) string {
	if m := tweetIDPattern.FindStringSubmatch(rawURL); len(m) > 1 {
		return m[1]
	}
	return ""
}

// bitrateFromURL uses the /WxH/ segment as a rough quality proxy.
func bitrateFromURL(u string) int {
	m := resolutionPattern.FindStringSubmatch(u)
	if len(m) < 3 {
		return 0
	}
	w, err1 := strconv.Atoi(m[1])
	h, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return 0
	}
	return w * h
}
